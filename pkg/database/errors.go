package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/uptrace/bun/driver/pgdriver"
)

var (
	// ErrNoRecentVisit means no visit exists for the address inside the window.
	ErrNoRecentVisit = errors.New("no recent visit")

	// ErrStoreUnavailable covers connection and init failures; the caller may
	// retry without risk of corrupt data.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrStoreContention covers pool and resource exhaustion; retry with backoff.
	ErrStoreContention = errors.New("store contention")
)

// ClassifyError folds a raw store failure into the retryability taxonomy.
// Errors that are already classified pass through unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrStoreContention) || errors.Is(err, ErrNoRecentVisit) {
		return err
	}

	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		if isContentionState(pgErr.Field('C')) {
			return fmt.Errorf("%w: %v", ErrStoreContention, err)
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return err
}

// isContentionState reports whether a SQLSTATE code signals resource or
// connection exhaustion (class 53, plus serialization failures in class 40).
func isContentionState(code string) bool {
	return strings.HasPrefix(code, "53") || code == "40001" || code == "40P01"
}
