// Package geoip fetches raw geolocation payloads for IP addresses from the
// configured third-party provider. Payload shape detection belongs to the
// recorder; this client only classifies transport-level failures.
package geoip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/viper"

	"geovisit/pkg/fetch"
)

var (
	// ErrUpstreamTimeout means the provider did not answer within the bound.
	ErrUpstreamTimeout = errors.New("geolocation provider timed out")

	// ErrUpstreamUnavailable means the provider answered with a server error.
	ErrUpstreamUnavailable = errors.New("geolocation provider unavailable")

	// ErrUpstreamNotFound means the provider has no data for the address.
	ErrUpstreamNotFound = errors.New("geolocation provider has no data for this address")

	// ErrUpstreamRejected means the provider explicitly refused to resolve
	// the address. Raised by the recorder on a provider "fail" status.
	ErrUpstreamRejected = errors.New("geolocation provider could not resolve this address")
)

// Config for the provider client. Endpoint is a format string receiving the
// IP address, e.g. "http://ip-api.com/json/%s?fields=...".
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
		cfg.Timeout = 8 * time.Second
	}
	return &Client{cfg: cfg}
}

// FromViper builds the client from the provider.* config keys.
func FromViper() *Client {
	return NewClient(Config{
		Endpoint:  viper.GetString("provider.endpoint"),
		Transport: viper.GetString("provider.transport"),
		Timeout:   viper.GetDuration("provider.timeout"),
	})
}

// Lookup fetches the raw provider payload for ip. The body is returned
// unparsed so the recorder can run shape detection on it.
func (c *Client) Lookup(ctx context.Context, ip string) (json.RawMessage, error) {
	url := fmt.Sprintf(c.cfg.Endpoint, ip)

	res, err := fetch.Get(ctx, url, fetch.Options{
		Transport: c.cfg.Transport,
		Timeout:   c.cfg.Timeout,
	})
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
		}
		return nil, fmt.Errorf("geolocation request failed: %w", err)
	}

	switch {
	case res.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, res.StatusCode)
	case res.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamNotFound, res.StatusCode)
	case res.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected provider status: %d", res.StatusCode)
	}

	return json.RawMessage(res.Body), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
