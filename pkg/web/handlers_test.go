package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"geovisit/pkg/database"
	"geovisit/pkg/geoip"
	"geovisit/pkg/models"
	"geovisit/pkg/recorder"
	"geovisit/pkg/resolver"
	"geovisit/pkg/stats"
)

type memStore struct {
	visits  []models.Visit
	nextID  int64
	pingErr error
}

func (m *memStore) FindRecentVisit(_ context.Context, ip string, since time.Time) (*models.Visit, error) {
	for i := range m.visits {
		v := &m.visits[i]
		if v.SourceIP == ip && !v.CreatedAt.Before(since) {
			return v, nil
		}
	}
	return nil, database.ErrNoRecentVisit
}

func (m *memStore) InsertVisit(_ context.Context, visit *models.Visit) error {
	m.nextID++
	visit.ID = m.nextID
	m.visits = append(m.visits, *visit)
	return nil
}

func (m *memStore) InsertVisitUnique(_ context.Context, visit *models.Visit) (bool, error) {
	return true, m.InsertVisit(context.Background(), visit)
}

func (m *memStore) RecentVisits(_ context.Context, limit int) ([]models.Visit, error) {
	if limit > len(m.visits) {
		limit = len(m.visits)
	}
	return m.visits[:limit], nil
}

func (m *memStore) PingContext(context.Context) error { return m.pingErr }

func (m *memStore) Stats(context.Context) (models.VisitStats, error) {
	return models.VisitStats{TotalVisits: len(m.visits)}, nil
}

type failingStats struct{ err error }

func (f failingStats) Stats(context.Context) (models.VisitStats, error) {
	return models.VisitStats{}, f.err
}

func newTestHandler(store *memStore, providerURL string, statsStore stats.StatsStore) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if statsStore == nil {
		statsStore = store
	}
	return NewHandler(
		store,
		resolver.New(resolver.Config{SentinelIP: "8.8.4.4"}, nil, logger),
		geoip.NewClient(geoip.Config{Endpoint: providerURL + "/json/%s"}),
		recorder.New(store, recorder.Config{}, logger),
		stats.NewService(statsStore, logger),
		logger,
	)
}

func providerServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestIPInfoManualSearch(t *testing.T) {
	srv := providerServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"success","country":"United States","countryCode":"US","city":"Mountain View","lat":37.4,"lon":-122.1}`)
	})

	store := &memStore{}
	h := newTestHandler(store, srv.URL, nil)

	req := httptest.NewRequest("GET", "/api/ip-info?ip=8.8.8.8", nil)
	rec := httptest.NewRecorder()
	h.IPInfo(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body)
	}

	var resp ipInfoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.IP != "8.8.8.8" {
		t.Errorf("ip = %q, want 8.8.8.8", resp.IP)
	}
	if resp.Outcome != models.OutcomeInserted {
		t.Errorf("outcome = %q, want inserted", resp.Outcome)
	}
	if resp.Visit == nil || resp.Visit.Country != "United States" {
		t.Errorf("visit = %+v, want country United States", resp.Visit)
	}
	if len(store.visits) != 1 {
		t.Errorf("stored visits = %d, want 1", len(store.visits))
	}
}

func TestIPInfoResolvesFromHeaders(t *testing.T) {
	var queried string
	srv := providerServer(t, func(w http.ResponseWriter, r *http.Request) {
		queried = r.URL.Path
		fmt.Fprint(w, `{"status":"success","country":"France","countryCode":"FR","lat":48.8,"lon":2.3}`)
	})

	h := newTestHandler(&memStore{}, srv.URL, nil)

	req := httptest.NewRequest("GET", "/api/ip-info", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	h.IPInfo(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body)
	}
	if queried != "/json/203.0.113.7" {
		t.Errorf("provider queried %q, want first forwarded-for entry", queried)
	}
}

func TestIPInfoPrivateAddressUsesSentinelForLookupOnly(t *testing.T) {
	var queried string
	srv := providerServer(t, func(w http.ResponseWriter, r *http.Request) {
		queried = r.URL.Path
		fmt.Fprint(w, `{"status":"success","country":"United States","countryCode":"US","lat":37.4,"lon":-122.1}`)
	})

	store := &memStore{}
	h := newTestHandler(store, srv.URL, nil)

	req := httptest.NewRequest("GET", "/api/ip-info", nil)
	req.Header.Set("X-Real-Ip", "192.168.1.50")
	rec := httptest.NewRecorder()
	h.IPInfo(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body)
	}
	if queried != "/json/8.8.4.4" {
		t.Errorf("provider queried %q, want sentinel address", queried)
	}
	if len(store.visits) != 1 || store.visits[0].SourceIP != "192.168.1.50" {
		t.Errorf("stored visit = %+v, want original resolved address", store.visits)
	}
}

func TestIPInfoUnresolvableClient(t *testing.T) {
	h := newTestHandler(&memStore{}, "http://unused.invalid", nil)

	req := httptest.NewRequest("GET", "/api/ip-info", nil)
	rec := httptest.NewRecorder()
	h.IPInfo(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestIPInfoProviderFail(t *testing.T) {
	srv := providerServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"fail","message":"reserved range"}`)
	})

	store := &memStore{}
	h := newTestHandler(store, srv.URL, nil)

	req := httptest.NewRequest("GET", "/api/ip-info?ip=8.8.8.8", nil)
	rec := httptest.NewRecorder()
	h.IPInfo(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if len(store.visits) != 0 {
		t.Errorf("stored visits = %d, want 0", len(store.visits))
	}
}

func TestIPInfoProviderOutage(t *testing.T) {
	srv := providerServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	h := newTestHandler(&memStore{}, srv.URL, nil)

	req := httptest.NewRequest("GET", "/api/ip-info?ip=8.8.8.8", nil)
	rec := httptest.NewRecorder()
	h.IPInfo(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	store := &memStore{visits: []models.Visit{{SourceIP: "8.8.8.8"}}}
	h := newTestHandler(store, "http://unused.invalid", nil)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest("GET", "/api/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if cc := rec.Header().Get("Cache-Control"); cc == "" {
		t.Error("missing Cache-Control header")
	}

	var snapshot models.VisitStats
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshot); err != nil {
		t.Fatal(err)
	}
	if snapshot.TotalVisits != 1 {
		t.Errorf("totalVisits = %d, want 1", snapshot.TotalVisits)
	}
}

func TestStatsEndpointStoreDown(t *testing.T) {
	down := failingStats{err: fmt.Errorf("dial: %w", database.ErrStoreUnavailable)}
	h := newTestHandler(&memStore{}, "http://unused.invalid", down)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest("GET", "/api/stats", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestStatsEndpointContention(t *testing.T) {
	busy := failingStats{err: fmt.Errorf("pool: %w", database.ErrStoreContention)}
	h := newTestHandler(&memStore{}, "http://unused.invalid", busy)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest("GET", "/api/stats", nil))

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"upstream timeout", geoip.ErrUpstreamTimeout, http.StatusServiceUnavailable},
		{"upstream unavailable", geoip.ErrUpstreamUnavailable, http.StatusServiceUnavailable},
		{"upstream rejected", geoip.ErrUpstreamRejected, http.StatusNotFound},
		{"upstream not found", geoip.ErrUpstreamNotFound, http.StatusNotFound},
		{"store unavailable", database.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{"store contention", database.ErrStoreContention, http.StatusTooManyRequests},
		{"unknown client", resolver.ErrUnknownClient, http.StatusServiceUnavailable},
		{"anything else", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestVisitsEndpoint(t *testing.T) {
	store := &memStore{visits: []models.Visit{
		{ID: 1, SourceIP: "8.8.8.8"},
		{ID: 2, SourceIP: "1.1.1.1"},
	}}
	h := newTestHandler(store, "http://unused.invalid", nil)

	rec := httptest.NewRecorder()
	h.Visits(rec, httptest.NewRequest("GET", "/api/visits?limit=1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Visits []models.Visit `json:"visits"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Visits) != 1 {
		t.Errorf("visits = %d, want 1", len(resp.Visits))
	}
}

func TestVisitsEndpointBadLimit(t *testing.T) {
	h := newTestHandler(&memStore{}, "http://unused.invalid", nil)

	rec := httptest.NewRecorder()
	h.Visits(rec, httptest.NewRequest("GET", "/api/visits?limit=zero", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHandler(&memStore{}, "http://unused.invalid", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest("GET", "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	down := &memStore{pingErr: errors.New("refused")}
	h = newTestHandler(down, "http://unused.invalid", nil)
	rec = httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest("GET", "/api/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
