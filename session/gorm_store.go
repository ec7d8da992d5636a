package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// GormStore keeps records in the shared database. Status changes are single
// conditional UPDATEs, so several instances can serve the same identities.
type GormStore struct {
	db        *gorm.DB
	retention Retention
}

func NewGormStore(db *gorm.DB, retention Retention) *GormStore {
	return &GormStore{db: db, retention: retention}
}

func (g *GormStore) Create(ctx context.Context, rec *Record) error {
	normalizeTimes(rec)
	rec.ExpiresAt = g.retention.expiresAt(*rec).UTC()

	err := g.db.WithContext(ctx).Create(rec).Error
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateSession
	case err != nil:
		return unavailable(err)
	}
	return nil
}

func (g *GormStore) Get(ctx context.Context, identity, sessionID string) (*Record, error) {
	var rec Record
	err := g.db.WithContext(ctx).
		Where("owner = ? AND session_id = ?", identity, sessionID).
		First(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrSessionNotFound
	case err != nil:
		return nil, unavailable(err)
	}
	return &rec, nil
}

func (g *GormStore) ListByStatus(ctx context.Context, identity string, status Status) ([]Record, error) {
	var records []Record
	err := g.db.WithContext(ctx).
		Where("owner = ? AND status = ?", identity, status).
		Order("last_active_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, unavailable(err)
	}
	return records, nil
}

func (g *GormStore) Touch(ctx context.Context, identity, sessionID string, at time.Time) (bool, error) {
	at = at.UTC()
	res := g.db.WithContext(ctx).Model(&Record{}).
		Where("owner = ? AND session_id = ? AND status = ?", identity, sessionID, StatusActive).
		Updates(map[string]any{
			"last_active_at": at,
			"expires_at":     at.Add(g.retention.ActiveTTL),
		})
	if res.Error != nil {
		return false, unavailable(res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	// MySQL without clientFoundRows reports 0 when the row already holds these
	// values, e.g. two touches within the same millisecond.
	var rec Record
	err := g.db.WithContext(ctx).
		Select("status").
		Where("owner = ? AND session_id = ?", identity, sessionID).
		First(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	case err != nil:
		return false, unavailable(err)
	}
	return rec.Status == StatusActive, nil
}

func (g *GormStore) CompareAndSetStatus(ctx context.Context, identity, sessionID string, expected Status, next Record) (bool, error) {
	normalizeTimes(&next)
	res := g.db.WithContext(ctx).Model(&Record{}).
		Where("owner = ? AND session_id = ? AND status = ?", identity, sessionID, expected).
		Updates(map[string]any{
			"status":              next.Status,
			"last_active_at":      next.LastActiveAt,
			"deactivated_at":      next.DeactivatedAt,
			"deactivation_reason": next.DeactivationReason,
			"blacklisted_at":      next.BlacklistedAt,
			"blacklist_reason":    next.BlacklistReason,
			"expires_at":          g.retention.expiresAt(next).UTC(),
		})
	if res.Error != nil {
		return false, unavailable(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (g *GormStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	res := g.db.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&Record{})
	if res.Error != nil {
		return 0, unavailable(res.Error)
	}
	return res.RowsAffected, nil
}

// normalizeTimes stores every timestamp in UTC so that the textual
// comparisons some drivers fall back to stay ordered.
func normalizeTimes(rec *Record) {
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.LastActiveAt = rec.LastActiveAt.UTC()
	if rec.DeactivatedAt != nil {
		t := rec.DeactivatedAt.UTC()
		rec.DeactivatedAt = &t
	}
	if rec.BlacklistedAt != nil {
		t := rec.BlacklistedAt.UTC()
		rec.BlacklistedAt = &t
	}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
