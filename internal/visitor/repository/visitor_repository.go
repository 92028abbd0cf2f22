package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/architect/presence-engine/internal/visitor/models"
)

// VisitorRepository defines data access for the identity store. All
// mutation goes through here; no caller touches the table directly.
type VisitorRepository interface {
	// RegisterVisit atomically inserts a new identity or bumps the existing
	// row's last-seen and session count. Returns the row after the write.
	RegisterVisit(ctx context.Context, clientKey, userAgent string, now time.Time) (*models.VisitorIdentity, error)

	// MarkOnline sets status=online and refreshes the online-since marker.
	MarkOnline(ctx context.Context, clientKey string, now time.Time) error

	// MarkOffline sets status=offline and clears the online-since marker.
	// Unknown keys are a no-op.
	MarkOffline(ctx context.Context, clientKey string) error

	// ExpireStale flips online rows whose marker is older than cutoff to
	// offline and returns the affected client keys.
	ExpireStale(ctx context.Context, cutoff time.Time) ([]string, error)

	// Aggregates computes the snapshot counts in one read: total distinct
	// visitors, visitors seen inside [dayStart, dayEnd), and the keys of
	// rows online with a marker fresher than onlineCutoff.
	Aggregates(ctx context.Context, dayStart, dayEnd, onlineCutoff time.Time) (*models.Aggregates, error)

	// GetByClientKey retrieves a single identity, nil when absent.
	GetByClientKey(ctx context.Context, clientKey string) (*models.VisitorIdentity, error)
}

// visitorRepositoryImpl implements VisitorRepository
type visitorRepositoryImpl struct {
	db *gorm.DB
}

// NewVisitorRepository creates a new visitor repository
func NewVisitorRepository(db *gorm.DB) VisitorRepository {
	return &visitorRepositoryImpl{db: db}
}

func (r *visitorRepositoryImpl) RegisterVisit(ctx context.Context, clientKey, userAgent string, now time.Time) (*models.VisitorIdentity, error) {
	row := models.VisitorIdentity{
		ClientKey:    clientKey,
		FirstSeenAt:  now,
		LastSeenAt:   now,
		Status:       models.StatusRegistered,
		SessionCount: 1,
		UserAgent:    userAgent,
	}

	// Single conflict-resolving insert; the unique index on client_key
	// serializes concurrent registrations for the same new key.
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "client_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_seen_at":  now,
			"session_count": gorm.Expr("session_count + 1"),
		}),
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}

	var current models.VisitorIdentity
	if err := r.db.WithContext(ctx).Where("client_key = ?", clientKey).First(&current).Error; err != nil {
		return nil, err
	}
	return &current, nil
}

func (r *visitorRepositoryImpl) MarkOnline(ctx context.Context, clientKey string, now time.Time) error {
	return r.db.WithContext(ctx).Model(&models.VisitorIdentity{}).
		Where("client_key = ?", clientKey).
		Updates(map[string]interface{}{
			"status":       models.StatusOnline,
			"online_since": now,
		}).Error
}

func (r *visitorRepositoryImpl) MarkOffline(ctx context.Context, clientKey string) error {
	return r.db.WithContext(ctx).Model(&models.VisitorIdentity{}).
		Where("client_key = ?", clientKey).
		Updates(map[string]interface{}{
			"status":       models.StatusOffline,
			"online_since": nil,
		}).Error
}

func (r *visitorRepositoryImpl) ExpireStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	var staleKeys []string
	err := r.db.WithContext(ctx).Model(&models.VisitorIdentity{}).
		Where("status = ? AND (online_since IS NULL OR online_since <= ?)", models.StatusOnline, cutoff).
		Pluck("client_key", &staleKeys).Error
	if err != nil {
		return nil, err
	}
	if len(staleKeys) == 0 {
		return nil, nil
	}

	err = r.db.WithContext(ctx).Model(&models.VisitorIdentity{}).
		Where("client_key IN ? AND status = ?", staleKeys, models.StatusOnline).
		Updates(map[string]interface{}{
			"status":       models.StatusOffline,
			"online_since": nil,
		}).Error
	if err != nil {
		return nil, err
	}
	return staleKeys, nil
}

func (r *visitorRepositoryImpl) Aggregates(ctx context.Context, dayStart, dayEnd, onlineCutoff time.Time) (*models.Aggregates, error) {
	agg := &models.Aggregates{}

	if err := r.db.WithContext(ctx).Model(&models.VisitorIdentity{}).
		Count(&agg.TotalVisitors).Error; err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).Model(&models.VisitorIdentity{}).
		Where("(first_seen_at >= ? AND first_seen_at < ?) OR (last_seen_at >= ? AND last_seen_at < ?)",
			dayStart, dayEnd, dayStart, dayEnd).
		Count(&agg.TodayVisitors).Error; err != nil {
		return nil, err
	}

	// Online is recomputed from the marker at read time; a row the sweep
	// has not flipped yet is still excluded here.
	if err := r.db.WithContext(ctx).Model(&models.VisitorIdentity{}).
		Where("status = ? AND online_since > ?", models.StatusOnline, onlineCutoff).
		Pluck("client_key", &agg.OnlineKeys).Error; err != nil {
		return nil, err
	}

	return agg, nil
}

func (r *visitorRepositoryImpl) GetByClientKey(ctx context.Context, clientKey string) (*models.VisitorIdentity, error) {
	var row models.VisitorIdentity
	result := r.db.WithContext(ctx).Where("client_key = ?", clientKey).First(&row)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &row, nil
}
