// Package fetch makes outbound HTTP GET requests through a configurable
// transport. All upstream calls (geolocation provider, public-IP echo) go
// through here so they share the same dialing and timeout handling.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Jigsaw-Code/outline-sdk/x/configurl"
)

// Options configures a single request.
type Options struct {
	// Transport config string. Empty means a direct connection.
	Transport string
	// Bound on the whole request (default: 5s).
	Timeout time.Duration
}

// Result contains the response from a request.
type Result struct {
	StatusCode int
	Body       []byte
}

// Get performs an HTTP GET with the given options.
func Get(ctx context.Context, url string, opts Options) (*Result, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}

	dialer, err := configurl.NewDefaultConfigToDialer().NewStreamDialer(opts.Transport)
	if err != nil {
		return nil, fmt.Errorf("could not create dialer: %w", err)
	}

	dialContext := func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !strings.HasPrefix(network, "tcp") {
			return nil, fmt.Errorf("protocol not supported: %v", network)
		}
		return dialer.DialStream(ctx, addr)
	}

	httpClient := &http.Client{
		Transport: &http.Transport{DialContext: dialContext},
		Timeout:   opts.Timeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read of response body failed: %w", err)
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}
