// Package stats serves the aggregate counters derived from the visits table.
// It only reads; the recorder owns all writes.
package stats

import (
	"context"
	"log/slog"
	"time"

	"geovisit/pkg/database"
	"geovisit/pkg/models"
)

// StatsStore is the read-only slice of the storage surface this service uses.
type StatsStore interface {
	Stats(ctx context.Context) (models.VisitStats, error)
}

type Service struct {
	store  StatsStore
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store StatsStore, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Snapshot computes the current counters. Store failures come back classified
// so the API layer can map them to a retryable status.
func (s *Service) Snapshot(ctx context.Context) (models.VisitStats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return models.VisitStats{}, database.ClassifyError(err)
	}
	stats.ComputedAt = s.now()
	return stats, nil
}

// SafeSnapshot degrades to zero-valued counters when the store read fails,
// for callers that must render something rather than block.
func (s *Service) SafeSnapshot(ctx context.Context) models.VisitStats {
	stats, err := s.Snapshot(ctx)
	if err != nil {
		s.logger.Warn("statistics read failed, serving zero-valued defaults", "error", err)
		return models.VisitStats{ComputedAt: s.now()}
	}
	return stats
}
