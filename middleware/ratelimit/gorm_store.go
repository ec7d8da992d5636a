package ratelimit

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Window is one open counting window in the shared database.
type Window struct {
	Bucket  string    `gorm:"primaryKey;size:191"`
	Hits    int       `gorm:"not null"`
	ResetAt time.Time `gorm:"not null;index"`
}

func (Window) TableName() string {
	return "rate_limit_windows"
}

// GormStore shares counters between instances.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(ctx context.Context, key string, now time.Time) (int, time.Time, error) {
	var w Window
	err := s.db.WithContext(ctx).
		Where("bucket = ? AND reset_at > ?", key, now.UTC()).
		First(&w).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return 0, time.Time{}, nil
	case err != nil:
		return 0, time.Time{}, err
	}
	return w.Hits, w.ResetAt, nil
}

func (s *GormStore) Increment(ctx context.Context, key string, now time.Time, period time.Duration) (int, time.Time, error) {
	now = now.UTC()

	var w Window
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Window{}).
			Where("bucket = ? AND reset_at > ?", key, now).
			UpdateColumn("hits", gorm.Expr("hits + 1"))
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			w = Window{Bucket: key, Hits: 1, ResetAt: now.Add(period)}
			return tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "bucket"}},
				DoUpdates: clause.AssignmentColumns([]string{"hits", "reset_at"}),
			}).Create(&w).Error
		}

		return tx.Where("bucket = ?", key).First(&w).Error
	})
	if err != nil {
		return 0, time.Time{}, err
	}
	return w.Hits, w.ResetAt, nil
}

func (s *GormStore) Reset(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("bucket = ?", key).Delete(&Window{}).Error
}

func (s *GormStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("reset_at <= ?", now.UTC()).Delete(&Window{})
	return res.RowsAffected, res.Error
}
