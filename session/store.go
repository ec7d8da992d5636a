package session

import (
	"context"
	"sort"
	"time"
)

// Store persists session records keyed by (identity, session id). Status
// changes go through CompareAndSetStatus so that a revoke racing a validation
// is never lost.
type Store interface {
	// Create fails with ErrDuplicateSession if the key is taken.
	Create(ctx context.Context, rec *Record) error

	// Get returns ErrSessionNotFound if there is no record under the key.
	Get(ctx context.Context, identity, sessionID string) (*Record, error)

	// ListByStatus returns the records filed under identity with the given
	// status, most recently active first.
	ListByStatus(ctx context.Context, identity string, status Status) ([]Record, error)

	// Touch refreshes last activity of an active record. It reports false if
	// the record is missing or no longer active.
	Touch(ctx context.Context, identity, sessionID string, at time.Time) (bool, error)

	// CompareAndSetStatus writes next only if the stored status still equals
	// expected, and reports whether it did.
	CompareAndSetStatus(ctx context.Context, identity, sessionID string, expected Status, next Record) (bool, error)

	// Purge deletes every record whose expiry has passed.
	Purge(ctx context.Context, now time.Time) (int64, error)
}

// Retention sets how long records live: active ones for ActiveTTL after their
// last write, all others for InactiveRetention after they left active.
type Retention struct {
	ActiveTTL         time.Duration
	InactiveRetention time.Duration
}

func (r Retention) expiresAt(rec Record) time.Time {
	if rec.Status == StatusActive {
		return rec.LastActiveAt.Add(r.ActiveTTL)
	}

	left := rec.LastActiveAt
	if rec.DeactivatedAt != nil && rec.DeactivatedAt.After(left) {
		left = *rec.DeactivatedAt
	}
	if rec.BlacklistedAt != nil && rec.BlacklistedAt.After(left) {
		left = *rec.BlacklistedAt
	}
	return left.Add(r.InactiveRetention)
}

func ActiveSessions(ctx context.Context, store Store, identity string) ([]Record, error) {
	return store.ListByStatus(ctx, identity, StatusActive)
}

func InactiveSessions(ctx context.Context, store Store, identity string) ([]Record, error) {
	return store.ListByStatus(ctx, identity, StatusInactive)
}

func BlacklistedSessions(ctx context.Context, store Store, identity string) ([]Record, error) {
	return store.ListByStatus(ctx, identity, StatusBlacklisted)
}

func sortByLastActive(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].LastActiveAt.After(records[j].LastActiveAt)
	})
}
