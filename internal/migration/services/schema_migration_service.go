package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/architect/presence-engine/internal/migration/models"
	sessionModels "github.com/architect/presence-engine/internal/session/models"
	visitorModels "github.com/architect/presence-engine/internal/visitor/models"
	"github.com/architect/presence-engine/pkg/logger"
)

// SchemaMigrator upgrades the identity store from the legacy per-session
// schema to the per-identity schema. It runs once at startup and must never
// leave the store half-migrated: if the transform fails it falls back to a
// clean empty schema, accepting data loss. Presence data is disposable
// telemetry, not a system of record.
type SchemaMigrator struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSchemaMigrator creates a new schema migrator
func NewSchemaMigrator(db *gorm.DB) *SchemaMigrator {
	return &SchemaMigrator{db: db, now: time.Now}
}

// Run inspects the store and brings it to the current schema. The returned
// error is non-nil only when even the clean-slate fallback failed.
func (m *SchemaMigrator) Run(ctx context.Context) (*models.MigrationResult, error) {
	result := &models.MigrationResult{
		ID:        uuid.New().String(),
		StartedAt: m.now(),
	}

	migrator := m.db.WithContext(ctx).Migrator()
	hasCurrent := migrator.HasTable(&visitorModels.VisitorIdentity{})
	hasLegacy := migrator.HasTable(models.LegacyTableName)

	switch {
	case hasCurrent:
		// Already migrated. A leftover legacy table means a previous run
		// stopped between copy and drop; finish the drop now.
		if hasLegacy {
			if err := migrator.DropTable(models.LegacyTableName); err != nil {
				logger.Warn("failed to drop leftover legacy table", zap.Error(err))
			}
		}
		result.Outcome = models.OutcomeCurrent

	case hasLegacy:
		if err := m.transformLegacy(ctx, result); err != nil {
			logger.Error("legacy transform failed, resetting to a clean schema",
				zap.Error(err))
			result.Error = err.Error()
			if resetErr := m.reset(ctx); resetErr != nil {
				return result, fmt.Errorf("migration reset failed: %w", resetErr)
			}
			result.Outcome = models.OutcomeReset
		}

	default:
		result.Outcome = models.OutcomeFresh
	}

	// Session tokens and any columns added since table creation.
	if err := m.db.WithContext(ctx).AutoMigrate(
		&visitorModels.VisitorIdentity{},
		&sessionModels.SessionToken{},
	); err != nil {
		return result, fmt.Errorf("schema setup failed: %w", err)
	}

	result.FinishedAt = m.now()
	logger.Info("schema migration finished",
		zap.String("outcome", result.Outcome),
		zap.Int("legacy_rows", result.LegacyRows),
		zap.Int("identities", result.Identities),
	)
	return result, nil
}

// transformLegacy copies the legacy per-session rows into per-identity
// rows, deduplicating by derived client key, then drops the legacy table.
func (m *SchemaMigrator) transformLegacy(ctx context.Context, result *models.MigrationResult) error {
	var legacyRows []models.LegacyVisitorSession
	if err := m.db.WithContext(ctx).Table(models.LegacyTableName).Find(&legacyRows).Error; err != nil {
		return fmt.Errorf("failed to read legacy rows: %w", err)
	}
	result.LegacyRows = len(legacyRows)

	identities := deriveIdentities(legacyRows)
	result.Identities = len(identities)

	if err := m.db.WithContext(ctx).Migrator().CreateTable(&visitorModels.VisitorIdentity{}); err != nil {
		return fmt.Errorf("failed to create identity table: %w", err)
	}

	if len(identities) > 0 {
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.CreateInBatches(identities, 100).Error
		})
		if err != nil {
			return fmt.Errorf("failed to copy identities: %w", err)
		}
	}

	if err := m.db.WithContext(ctx).Migrator().DropTable(models.LegacyTableName); err != nil {
		return fmt.Errorf("failed to drop legacy table: %w", err)
	}

	result.Outcome = models.OutcomeMigrated
	return nil
}

// reset drops whatever is left of both schemas and recreates a clean
// current one.
func (m *SchemaMigrator) reset(ctx context.Context) error {
	migrator := m.db.WithContext(ctx).Migrator()

	if migrator.HasTable(&visitorModels.VisitorIdentity{}) {
		if err := migrator.DropTable(&visitorModels.VisitorIdentity{}); err != nil {
			return err
		}
	}
	if migrator.HasTable(models.LegacyTableName) {
		if err := migrator.DropTable(models.LegacyTableName); err != nil {
			return err
		}
	}
	return migrator.CreateTable(&visitorModels.VisitorIdentity{})
}

// deriveIdentities groups legacy sessions by best-effort client key: the
// recorded address when present, otherwise the ephemeral session id.
func deriveIdentities(rows []models.LegacyVisitorSession) []visitorModels.VisitorIdentity {
	grouped := make(map[string]*visitorModels.VisitorIdentity)
	for _, row := range rows {
		key := row.IPAddress
		if key == "" {
			key = row.SessionID
		}
		if key == "" {
			continue
		}
		if len(key) > 64 {
			key = key[:64]
		}

		identity, ok := grouped[key]
		if !ok {
			grouped[key] = &visitorModels.VisitorIdentity{
				ClientKey:    key,
				FirstSeenAt:  row.CreatedAt,
				LastSeenAt:   row.CreatedAt,
				Status:       visitorModels.StatusOffline,
				SessionCount: 1,
				UserAgent:    row.UserAgent,
			}
			continue
		}

		identity.SessionCount++
		if row.CreatedAt.Before(identity.FirstSeenAt) {
			identity.FirstSeenAt = row.CreatedAt
		}
		if row.CreatedAt.After(identity.LastSeenAt) {
			identity.LastSeenAt = row.CreatedAt
		}
	}

	keys := make([]string, 0, len(grouped))
	for key := range grouped {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	identities := make([]visitorModels.VisitorIdentity, 0, len(grouped))
	for _, key := range keys {
		identities = append(identities, *grouped[key])
	}
	return identities
}
