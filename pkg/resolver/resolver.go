// Package resolver determines which IP address represents the requester.
// Strategies are tried in order, first usable answer wins; the final strategy
// asks an external echo service over the network with a short timeout.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"

	"geovisit/pkg/publicip"
)

// ErrUnknownClient means no strategy produced a usable address.
var ErrUnknownClient = errors.New("unable to determine client address")

type Config struct {
	// SentinelIP replaces private and loopback addresses for provider
	// lookups only; the resolved address itself is what gets stored.
	SentinelIP string
}

type strategy struct {
	name string
	fn   func(ctx context.Context, h http.Header) string
}

type Resolver struct {
	cfg        Config
	logger     *slog.Logger
	strategies []strategy
}

// New builds the resolver chain. public may be nil, in which case the
// network fallback is skipped.
func New(cfg Config, public *publicip.Client, logger *slog.Logger) *Resolver {
	r := &Resolver{cfg: cfg, logger: logger}

	r.strategies = []strategy{
		{"x-forwarded-for", headerFirstEntry("X-Forwarded-For")},
		{"x-real-ip", headerValue("X-Real-Ip")},
		{"x-vercel-forwarded-for", headerFirstEntry("X-Vercel-Forwarded-For")},
		{"x-remote-addr", headerValue("X-Remote-Addr")},
		{"public-ip", publicIPStrategy(public, logger)},
	}

	return r
}

// Resolve returns the best-effort client address for the given request
// headers, or ErrUnknownClient when every strategy comes up empty.
func (r *Resolver) Resolve(ctx context.Context, headers http.Header) (string, error) {
	for _, s := range r.strategies {
		if ip := s.fn(ctx, headers); ip != "" {
			r.logger.Debug("client IP resolved", "strategy", s.name, "ip", ip)
			return ip, nil
		}
	}
	return "", ErrUnknownClient
}

// LookupAddress returns the address to send to the geolocation provider.
// Loopback, private, link-local and unspecified addresses get the sentinel
// substitute; everything else passes through, including strings that do not
// parse (the provider rejects those itself).
func (r *Resolver) LookupAddress(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ip
	}
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsUnspecified() {
		r.logger.Debug("substituting sentinel address for provider lookup",
			"resolved", ip, "sentinel", r.cfg.SentinelIP)
		return r.cfg.SentinelIP
	}
	return ip
}

// headerFirstEntry reads a comma-chained forwarded header and takes the first
// entry, the closest-to-client convention. An empty first entry is not usable.
func headerFirstEntry(name string) func(ctx context.Context, h http.Header) string {
	return func(_ context.Context, h http.Header) string {
		value := h.Get(name)
		if value == "" {
			return ""
		}
		return strings.TrimSpace(strings.Split(value, ",")[0])
	}
}

func headerValue(name string) func(ctx context.Context, h http.Header) string {
	return func(_ context.Context, h http.Header) string {
		return strings.TrimSpace(h.Get(name))
	}
}

func publicIPStrategy(public *publicip.Client, logger *slog.Logger) func(ctx context.Context, h http.Header) string {
	return func(ctx context.Context, _ http.Header) string {
		if public == nil {
			return ""
		}
		ip, err := public.CurrentIP(ctx)
		if err != nil {
			logger.Warn("public IP fallback failed", "error", err)
			return ""
		}
		return ip
	}
}
