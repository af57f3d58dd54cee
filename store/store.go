// Package store provides the persistence interface and SQLite implementation
// for sessions, the API call log, and the profile cache.
package store

import (
	"context"
	"time"

	"github.com/goskyapi/gosky/model"
)

// CallLogParams holds filters for listing call log entries.
type CallLogParams struct {
	Endpoint string
	Limit    int
}

// Store defines the persistence interface.
type Store interface {
	// SaveSession inserts a new session row. Rows are never updated in
	// place; history is retained.
	SaveSession(ctx context.Context, s *model.Session) error

	// LatestSession returns the newest session row for the username with
	// no recorded exception, or nil if none exists.
	LatestSession(ctx context.Context, username string) (*model.Session, error)

	// SaveCallLog inserts a call log row.
	SaveCallLog(ctx context.Context, l *model.CallLog) error

	// ListCallLogs returns the newest call log rows matching the filters.
	ListCallLogs(ctx context.Context, p CallLogParams) ([]model.CallLog, error)

	// LatestCursor returns the most recent non-empty cursor received for
	// the (endpoint, cursorKey) pair, or "" if none was ever recorded.
	LatestCursor(ctx context.Context, endpoint, cursorKey string) (string, error)

	// WritePointsUsed sums write-op points consumed by the subject since
	// the given time.
	WritePointsUsed(ctx context.Context, did string, since time.Time) (int64, error)

	// Profile returns the cached profile for a did or handle, or nil.
	Profile(ctx context.Context, actor string) (*model.UserProfile, error)

	// SaveProfile inserts or replaces a cached profile.
	SaveProfile(ctx context.Context, p *model.UserProfile) error

	// Close closes the store.
	Close() error
}
