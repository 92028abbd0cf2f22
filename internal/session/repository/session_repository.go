package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/architect/presence-engine/internal/session/models"
)

// SessionRepository defines data access for the session token store.
type SessionRepository interface {
	// Upsert registers a token or refreshes an existing row's ping time.
	Upsert(ctx context.Context, token string, ownerID *string, now time.Time) error

	// Refresh bumps last-ping for a known token; false when the token is
	// not in the store.
	Refresh(ctx context.Context, token string, ownerID *string, now time.Time) (bool, error)

	// Delete removes a token immediately; false when already absent.
	Delete(ctx context.Context, token string) (bool, error)

	// ActiveCounts returns, for rows pinged after cutoff: the session
	// count, the number of distinct non-null owners, and the number of
	// anonymous sessions.
	ActiveCounts(ctx context.Context, cutoff time.Time) (sessions, owners, anonymous int64, err error)

	// DeleteStale removes rows whose last ping predates cutoff.
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// sessionRepositoryImpl implements SessionRepository
type sessionRepositoryImpl struct {
	db *gorm.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepositoryImpl{db: db}
}

func (r *sessionRepositoryImpl) Upsert(ctx context.Context, token string, ownerID *string, now time.Time) error {
	row := models.SessionToken{
		Token:      token,
		OwnerID:    ownerID,
		CreatedAt:  now,
		LastPingAt: now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "token"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"owner_id":     ownerID,
			"last_ping_at": now,
		}),
	}).Create(&row).Error
}

func (r *sessionRepositoryImpl) Refresh(ctx context.Context, token string, ownerID *string, now time.Time) (bool, error) {
	updates := map[string]interface{}{"last_ping_at": now}
	if ownerID != nil {
		updates["owner_id"] = ownerID
	}

	result := r.db.WithContext(ctx).Model(&models.SessionToken{}).
		Where("token = ?", token).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *sessionRepositoryImpl) Delete(ctx context.Context, token string) (bool, error) {
	result := r.db.WithContext(ctx).Where("token = ?", token).Delete(&models.SessionToken{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *sessionRepositoryImpl) ActiveCounts(ctx context.Context, cutoff time.Time) (sessions, owners, anonymous int64, err error) {
	if err = r.db.WithContext(ctx).Model(&models.SessionToken{}).
		Where("last_ping_at > ?", cutoff).
		Count(&sessions).Error; err != nil {
		return 0, 0, 0, err
	}

	if err = r.db.WithContext(ctx).Model(&models.SessionToken{}).
		Where("last_ping_at > ? AND owner_id IS NOT NULL", cutoff).
		Distinct("owner_id").
		Count(&owners).Error; err != nil {
		return 0, 0, 0, err
	}

	if err = r.db.WithContext(ctx).Model(&models.SessionToken{}).
		Where("last_ping_at > ? AND owner_id IS NULL", cutoff).
		Count(&anonymous).Error; err != nil {
		return 0, 0, 0, err
	}

	return sessions, owners, anonymous, nil
}

func (r *sessionRepositoryImpl) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("last_ping_at < ?", cutoff).
		Delete(&models.SessionToken{})
	return result.RowsAffected, result.Error
}
