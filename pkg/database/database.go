package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/viper"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"geovisit/pkg/models"
)

type DB struct {
	*bun.DB
}

// NewDB opens the pooled Postgres handle. It is constructed once per process
// and shared by every request; callers must not open a new handle per call.
func NewDB() (*DB, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		viper.GetString("database.user"),
		viper.GetString("database.password"),
		viper.GetString("database.host"),
		viper.GetInt("database.port"),
		viper.GetString("database.dbname"),
		viper.GetString("database.sslmode"),
	)

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))

	db := bun.NewDB(sqldb, pgdialect.New())

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}

	return &DB{db}, nil
}

// InitSchema creates the visits table and its indexes if they don't exist.
// The unique window index is only created in strict dedup mode; the default
// mode tolerates duplicate rows from the check-then-insert race.
func (db *DB) InitSchema(ctx context.Context, strictWindow bool) error {
	_, err := db.NewCreateTable().
		Model((*models.Visit)(nil)).
		IfNotExists().
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to create visits table: %v", err)
	}

	_, err = db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS visits_source_ip_created_at_idx ON visits (source_ip, created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create visits index: %v", err)
	}

	if strictWindow {
		_, err = db.ExecContext(ctx,
			`CREATE UNIQUE INDEX IF NOT EXISTS visits_source_ip_window_bucket_idx ON visits (source_ip, window_bucket)`)
		if err != nil {
			return fmt.Errorf("failed to create unique window index: %v", err)
		}
	}

	return nil
}
