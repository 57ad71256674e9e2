// Package recorder normalizes geolocation payloads and persists visits with
// a rolling-window dedup rule: at most one logically active visit per source
// address per 24 hours.
package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"geovisit/pkg/database"
	"geovisit/pkg/geoip"
	"geovisit/pkg/models"
)

// VisitStore is the slice of the storage surface the recorder writes through.
type VisitStore interface {
	FindRecentVisit(ctx context.Context, ip string, since time.Time) (*models.Visit, error)
	InsertVisit(ctx context.Context, visit *models.Visit) error
	InsertVisitUnique(ctx context.Context, visit *models.Visit) (bool, error)
}

type Config struct {
	// Window is the dedup interval (default: 24h).
	Window time.Duration
	// StrictWindow routes inserts through the (source_ip, window_bucket)
	// conflict target, closing the check-then-insert race at the cost of
	// bucketed rather than rolling windows.
	StrictWindow bool
}

type Recorder struct {
	store  VisitStore
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func New(store VisitStore, cfg Config, logger *slog.Logger) *Recorder {
	if cfg.Window == 0 {
		cfg.Window = 24 * time.Hour
	}
	return &Recorder{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Record normalizes the payload, checks the dedup window and persists a new
// visit when none exists. Every failure path comes back as a Rejected result;
// nothing escapes as an error or panic.
//
// The default read-then-insert path is not atomic: two simultaneous requests
// from the same address can both insert. That race is tolerated for a usage
// counter; StrictWindow closes it.
func (r *Recorder) Record(ctx context.Context, ip string, payload json.RawMessage) models.RecordResult {
	if strings.TrimSpace(ip) == "" {
		return models.Rejected("no IP provided", nil)
	}
	if len(payload) == 0 {
		return models.Rejected("no geolocation data provided", nil)
	}

	visit, err := Normalize(payload)
	if err != nil {
		if errors.Is(err, geoip.ErrUpstreamRejected) {
			return models.Rejected("provider could not resolve this address", err)
		}
		return models.Rejected(err.Error(), err)
	}

	now := r.now()
	since := now.Add(-r.cfg.Window)

	existing, err := r.store.FindRecentVisit(ctx, ip, since)
	if err == nil {
		r.logger.Debug("visit already recorded inside window",
			"ip", ip, "visitID", existing.ID)
		return models.Skipped(existing)
	}
	if !errors.Is(err, database.ErrNoRecentVisit) {
		err = database.ClassifyError(err)
		r.logger.Error("dedup check failed", "ip", ip, "error", err)
		return models.Rejected("visit store unavailable", err)
	}

	visit.SourceIP = ip
	visit.CreatedAt = now
	visit.WindowBucket = now.Unix() / int64(r.cfg.Window/time.Second)

	if r.cfg.StrictWindow {
		return r.insertStrict(ctx, ip, since, visit)
	}

	if err := r.store.InsertVisit(ctx, visit); err != nil {
		err = database.ClassifyError(err)
		r.logger.Error("visit insert failed", "ip", ip, "error", err)
		return models.Rejected("failed to record visit", err)
	}

	r.logger.Info("visit recorded", "ip", ip, "visitID", visit.ID, "country", visit.Country)
	return models.Inserted(visit)
}

// insertStrict claims the window bucket; on conflict the surviving row is
// returned as a skip, matching the non-strict semantics.
func (r *Recorder) insertStrict(ctx context.Context, ip string, since time.Time, visit *models.Visit) models.RecordResult {
	inserted, err := r.store.InsertVisitUnique(ctx, visit)
	if err != nil {
		err = database.ClassifyError(err)
		r.logger.Error("visit insert failed", "ip", ip, "error", err)
		return models.Rejected("failed to record visit", err)
	}
	if inserted {
		r.logger.Info("visit recorded", "ip", ip, "visitID", visit.ID, "country", visit.Country)
		return models.Inserted(visit)
	}

	existing, err := r.store.FindRecentVisit(ctx, ip, since)
	if err != nil {
		err = database.ClassifyError(err)
		return models.Rejected("failed to read winning visit after conflict", err)
	}
	return models.Skipped(existing)
}
