// Package publicip asks an external echo service for the machine's public IP.
// It is the last resort of the resolver chain, used when no request header
// carries a usable address.
package publicip

import (
	"context"
	"encoding/json"
	"fmt"
	"net/netip"
	"time"

	"github.com/spf13/viper"

	"geovisit/pkg/fetch"
)

type Config struct {
	Endpoint  string
	Transport string
	Timeout   time.Duration
}

type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &Client{cfg: cfg}
}

// FromViper builds the client from the publicip.* config keys.
func FromViper() *Client {
	return NewClient(Config{
		Endpoint:  viper.GetString("publicip.endpoint"),
		Transport: viper.GetString("publicip.transport"),
		Timeout:   viper.GetDuration("publicip.timeout"),
	})
}

// CurrentIP returns the public address reported by the echo service. The
// answer must parse as an IP address; anything else is a failure.
func (c *Client) CurrentIP(ctx context.Context) (string, error) {
	res, err := fetch.Get(ctx, c.cfg.Endpoint, fetch.Options{
		Transport: c.cfg.Transport,
		Timeout:   c.cfg.Timeout,
	})
	if err != nil {
		return "", fmt.Errorf("public IP request failed: %w", err)
	}
	if res.StatusCode != 200 {
		return "", fmt.Errorf("public IP service returned status %d", res.StatusCode)
	}

	var echo struct {
		IP string `json:"ip"`
	}
	if err := json.Unmarshal(res.Body, &echo); err != nil {
		return "", fmt.Errorf("failed to decode public IP response: %w", err)
	}

	addr, err := netip.ParseAddr(echo.IP)
	if err != nil {
		return "", fmt.Errorf("public IP service returned %q, not an IP address", echo.IP)
	}

	return addr.String(), nil
}
