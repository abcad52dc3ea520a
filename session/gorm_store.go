package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DurableStore is the source of truth for sessions.
type DurableStore interface {
	Create(ctx context.Context, s *Session) error
	FindByID(ctx context.Context, id string) (*Session, error)
	FindActiveByRefreshHash(ctx context.Context, refreshHash string) (*Session, error)
	CountActive(ctx context.Context, userID string, now time.Time) (int, error)
	ListActive(ctx context.Context, userID string) ([]Session, error)
	ListNonActive(ctx context.Context, userID string) ([]Session, error)
	HasFingerprint(ctx context.Context, userID, fingerprint string) (bool, error)
	MostRecent(ctx context.Context, userID string) (*Session, error)
	RecordIPChange(ctx context.Context, id string, change IPChange) (bool, error)
	TouchActivity(ctx context.Context, id string, at time.Time) (bool, error)
	SetStatus(ctx context.Context, id string, to Status, from ...Status) (bool, error)
	SetStatusForUser(ctx context.Context, userID string, to Status, from ...Status) (int64, error)
	ScheduleExpiry(ctx context.Context, id string, at time.Time) error
	MarkSuspicious(ctx context.Context, id string) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// GormStore implements [DurableStore] on any gorm dialect.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates or updates the sessions table.
func (s *GormStore) AutoMigrate(ctx context.Context) error {
	return storeErr(s.db.WithContext(ctx).AutoMigrate(&Session{}))
}

func (s *GormStore) Create(ctx context.Context, sess *Session) error {
	return storeErr(s.db.WithContext(ctx).Create(sess).Error)
}

func (s *GormStore) FindByID(ctx context.Context, id string) (*Session, error) {
	var sess Session
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&sess).Error; err != nil {
		return nil, storeErr(err)
	}
	return &sess, nil
}

func (s *GormStore) FindActiveByRefreshHash(ctx context.Context, refreshHash string) (*Session, error) {
	var sess Session
	err := s.db.WithContext(ctx).
		Where("refresh_token_hash = ? AND status = ?", refreshHash, StatusActive).
		First(&sess).Error
	if err != nil {
		return nil, storeErr(err)
	}
	return &sess, nil
}

func (s *GormStore) CountActive(ctx context.Context, userID string, now time.Time) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Session{}).
		Where("user_id = ? AND status = ? AND refresh_token_expiry > ?", userID, StatusActive, now).
		Count(&n).Error
	if err != nil {
		return 0, storeErr(err)
	}
	return int(n), nil
}

func (s *GormStore) ListActive(ctx context.Context, userID string) ([]Session, error) {
	var out []Session
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, StatusActive).
		Order("last_active_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

// ListNonActive returns the user's INACTIVE and REVOKED sessions, most recent first.
func (s *GormStore) ListNonActive(ctx context.Context, userID string) ([]Session, error) {
	var out []Session
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status <> ?", userID, StatusActive).
		Order("last_active_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

func (s *GormStore) HasFingerprint(ctx context.Context, userID, fingerprint string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Session{}).
		Where("user_id = ? AND device_fingerprint = ?", userID, fingerprint).
		Limit(1).
		Count(&n).Error
	if err != nil {
		return false, storeErr(err)
	}
	return n > 0, nil
}

func (s *GormStore) MostRecent(ctx context.Context, userID string) (*Session, error) {
	var sess Session
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_active_at DESC").
		First(&sess).Error
	if err != nil {
		return nil, storeErr(err)
	}
	return &sess, nil
}

// RecordIPChange applies an address change to an ACTIVE session. It reports
// false when no active row matched.
func (s *GormStore) RecordIPChange(ctx context.Context, id string, change IPChange) (bool, error) {
	res := s.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND status = ?", id, StatusActive).
		Updates(map[string]any{
			"ip_last_seen":       change.IP,
			"ip_last_changed_at": change.At,
			"ip_change_count":    gorm.Expr("ip_change_count + ?", 1),
			"last_active_at":     change.At,
			"location_city":      change.Location.City,
			"location_country":   change.Location.Country,
			"location_latitude":  change.Location.Latitude,
			"location_longitude": change.Location.Longitude,
		})
	if res.Error != nil {
		return false, storeErr(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) TouchActivity(ctx context.Context, id string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND status = ?", id, StatusActive).
		Update("last_active_at", at)
	if res.Error != nil {
		return false, storeErr(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// SetStatus moves a session to status to, but only from one of the given
// states. It reports whether a row changed.
func (s *GormStore) SetStatus(ctx context.Context, id string, to Status, from ...Status) (bool, error) {
	q := s.db.WithContext(ctx).Model(&Session{}).Where("id = ?", id)
	if len(from) > 0 {
		q = q.Where("status IN ?", from)
	}
	res := q.Update("status", to)
	if res.Error != nil {
		return false, storeErr(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) SetStatusForUser(ctx context.Context, userID string, to Status, from ...Status) (int64, error) {
	q := s.db.WithContext(ctx).Model(&Session{}).Where("user_id = ?", userID)
	if len(from) > 0 {
		q = q.Where("status IN ?", from)
	}
	res := q.Update("status", to)
	if res.Error != nil {
		return 0, storeErr(res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) ScheduleExpiry(ctx context.Context, id string, at time.Time) error {
	return storeErr(s.db.WithContext(ctx).Model(&Session{}).
		Where("id = ?", id).
		Update("expire_at", at).Error)
}

func (s *GormStore) MarkSuspicious(ctx context.Context, id string) error {
	return storeErr(s.db.WithContext(ctx).Model(&Session{}).
		Where("id = ?", id).
		Update("is_suspicious", true).Error)
}

// PurgeExpired hard-deletes rows whose retention deadline has passed.
func (s *GormStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expire_at IS NOT NULL AND expire_at <= ?", now).
		Delete(&Session{})
	if res.Error != nil {
		return 0, storeErr(res.Error)
	}
	return res.RowsAffected, nil
}

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
