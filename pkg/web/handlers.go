package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"geovisit/pkg/database"
	"geovisit/pkg/geoip"
	"geovisit/pkg/models"
	"geovisit/pkg/recorder"
	"geovisit/pkg/resolver"
	"geovisit/pkg/stats"
)

// VisitReader is the read surface the handlers need from the store.
type VisitReader interface {
	RecentVisits(ctx context.Context, limit int) ([]models.Visit, error)
	PingContext(ctx context.Context) error
}

type Handler struct {
	store    VisitReader
	resolver *resolver.Resolver
	geo      *geoip.Client
	recorder *recorder.Recorder
	stats    *stats.Service
	logger   *slog.Logger
}

func NewHandler(store VisitReader, res *resolver.Resolver, geo *geoip.Client, rec *recorder.Recorder, st *stats.Service, logger *slog.Logger) *Handler {
	return &Handler{
		store:    store,
		resolver: res,
		geo:      geo,
		recorder: rec,
		stats:    st,
		logger:   logger,
	}
}

type ipInfoResponse struct {
	IP      string          `json:"ip"`
	Outcome models.Outcome  `json:"outcome"`
	Visit   *models.Visit   `json:"visit,omitempty"`
	Geo     json.RawMessage `json:"geo"`
}

// IPInfo resolves the caller's address (or honors an explicit ?ip= from the
// manual search path), fetches the geolocation payload and records the visit.
// A failed record is logged but does not fail the response; the address data
// is still returned.
func (h *Handler) IPInfo(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		resolved, err := h.resolver.Resolve(r.Context(), r.Header)
		if err != nil {
			writeError(w, statusFor(err), "unable to determine client address")
			return
		}
		ip = resolved
	}

	lookupIP := h.resolver.LookupAddress(ip)
	payload, err := h.geo.Lookup(r.Context(), lookupIP)
	if err != nil {
		h.logger.Warn("geolocation lookup failed", "ip", lookupIP, "error", err)
		writeError(w, statusFor(err), userMessage(err))
		return
	}

	result := h.recorder.Record(r.Context(), ip, payload)
	if result.Outcome == models.OutcomeRejected {
		if errors.Is(result.Err, geoip.ErrUpstreamRejected) {
			writeError(w, http.StatusNotFound, "could not resolve this address")
			return
		}
		// Persistence failure must not take down the lookup itself.
		h.logger.Warn("visit not recorded", "ip", ip, "reason", result.Reason, "error", result.Err)
	}

	writeJSON(w, http.StatusOK, ipInfoResponse{
		IP:      ip,
		Outcome: result.Outcome,
		Visit:   result.Visit,
		Geo:     payload,
	})
}

// Stats serves the aggregate counters. Unlike page rendering, the API caller
// gets a distinguishable retryable status when the store read fails.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.stats.Snapshot(r.Context())
	if err != nil {
		writeError(w, statusFor(err), userMessage(err))
		return
	}

	w.Header().Set("Cache-Control", "public, s-maxage=30, stale-while-revalidate=60")
	writeJSON(w, http.StatusOK, snapshot)
}

// Visits lists the most recent visit rows.
func (h *Handler) Visits(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > 100 {
		limit = 100
	}

	visits, err := h.store.RecentVisits(r.Context(), limit)
	if err != nil {
		err = database.ClassifyError(err)
		h.logger.Error("recent visits query failed", "error", err)
		writeError(w, statusFor(err), userMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"visits": visits})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps the error taxonomy onto HTTP statuses: input problems 400,
// explicit upstream rejection 404, timeouts and outages 503, contention 429.
func statusFor(err error) int {
	switch {
	case errors.Is(err, geoip.ErrUpstreamRejected),
		errors.Is(err, geoip.ErrUpstreamNotFound):
		return http.StatusNotFound
	case errors.Is(err, geoip.ErrUpstreamTimeout),
		errors.Is(err, geoip.ErrUpstreamUnavailable),
		errors.Is(err, database.ErrStoreUnavailable),
		errors.Is(err, resolver.ErrUnknownClient):
		return http.StatusServiceUnavailable
	case errors.Is(err, database.ErrStoreContention):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, geoip.ErrUpstreamTimeout),
		errors.Is(err, geoip.ErrUpstreamUnavailable):
		return "geolocation service temporarily unavailable, retry"
	case errors.Is(err, geoip.ErrUpstreamRejected),
		errors.Is(err, geoip.ErrUpstreamNotFound):
		return "could not resolve this address"
	case errors.Is(err, database.ErrStoreUnavailable):
		return "service temporarily unavailable, retry"
	case errors.Is(err, database.ErrStoreContention):
		return "too many concurrent requests, retry with backoff"
	}
	return "unable to retrieve information, retry"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
