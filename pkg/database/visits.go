package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"geovisit/pkg/models"
)

// FindRecentVisit returns the most recent visit for ip created at or after
// since, or ErrNoRecentVisit when no such row exists.
func (db *DB) FindRecentVisit(ctx context.Context, ip string, since time.Time) (*models.Visit, error) {
	var visit models.Visit
	err := db.NewSelect().
		Model(&visit).
		Where("source_ip = ?", ip).
		Where("created_at >= ?", since).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoRecentVisit
		}
		return nil, fmt.Errorf("error querying recent visit: %v", err)
	}

	return &visit, nil
}

// InsertVisit inserts a new visit row and fills in its generated ID.
func (db *DB) InsertVisit(ctx context.Context, visit *models.Visit) error {
	err := db.NewInsert().
		Model(visit).
		Returning("*").
		Scan(ctx)

	if err != nil {
		return fmt.Errorf("error inserting visit: %v", err)
	}

	return nil
}

// InsertVisitUnique inserts a visit with the (source_ip, window_bucket)
// conflict target, skipping silently when another row already claimed the
// bucket. It reports whether a row was written.
func (db *DB) InsertVisitUnique(ctx context.Context, visit *models.Visit) (bool, error) {
	res, err := db.NewInsert().
		Model(visit).
		On("CONFLICT (source_ip, window_bucket) DO NOTHING").
		Exec(ctx)

	if err != nil {
		return false, fmt.Errorf("error inserting visit: %v", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading insert result: %v", err)
	}

	return affected > 0, nil
}

// RecentVisits returns up to limit visits, newest first.
func (db *DB) RecentVisits(ctx context.Context, limit int) ([]models.Visit, error) {
	var visits []models.Visit
	err := db.NewSelect().
		Model(&visits).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("error querying recent visits: %v", err)
	}

	return visits, nil
}

// Stats computes the aggregate counters over the visits table.
func (db *DB) Stats(ctx context.Context) (models.VisitStats, error) {
	var stats models.VisitStats

	total, err := db.NewSelect().
		Model((*models.Visit)(nil)).
		Count(ctx)
	if err != nil {
		return models.VisitStats{}, fmt.Errorf("error counting visits: %v", err)
	}
	stats.TotalVisits = total

	var countries struct {
		Count int `bun:"count"`
	}
	err = db.NewSelect().
		Model((*models.Visit)(nil)).
		ColumnExpr("count(DISTINCT country) as count").
		Where("country != ''").
		Scan(ctx, &countries)
	if err != nil {
		return models.VisitStats{}, fmt.Errorf("error counting distinct countries: %v", err)
	}
	stats.DistinctCountries = countries.Count

	active, err := db.NewSelect().
		Model((*models.Visit)(nil)).
		Where("created_at >= ?", time.Now().Add(-24*time.Hour)).
		Count(ctx)
	if err != nil {
		return models.VisitStats{}, fmt.Errorf("error counting active visits: %v", err)
	}
	stats.ActiveLast24h = active

	return stats, nil
}

// DeleteVisitsBefore removes visits older than cutoff. Maintenance path only.
func (db *DB) DeleteVisitsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.NewDelete().
		Model((*models.Visit)(nil)).
		Where("created_at < ?", cutoff).
		Exec(ctx)

	if err != nil {
		return 0, fmt.Errorf("error deleting old visits: %v", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading delete result: %v", err)
	}

	return affected, nil
}
