package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/architect/presence-engine/internal/common/metrics"
	"github.com/architect/presence-engine/internal/common/validation"
	"github.com/architect/presence-engine/internal/visitor/models"
	"github.com/architect/presence-engine/internal/visitor/repository"
	"github.com/architect/presence-engine/pkg/config"
	"github.com/architect/presence-engine/pkg/logger"
)

// storageTimeout bounds every storage call; a timeout counts as a storage
// error and degrades the result instead of blocking the caller.
const storageTimeout = 3 * time.Second

const maxClientKeyLen = 64

// VisitorService is the presence engine. It owns the store handle and the
// in-memory presence set; all visitor mutation goes through it. Presence
// tracking is telemetry: every operation recovers storage errors locally
// and hands the caller a best-effort snapshot instead of failing.
type VisitorService struct {
	repo     repository.VisitorRepository
	presence *PresenceSet
	cfg      config.PresenceConfig
	metrics  *metrics.Metrics
	now      func() time.Time

	mu           sync.Mutex
	lastSnapshot models.Snapshot
}

// NewVisitorService creates the engine instance.
func NewVisitorService(repo repository.VisitorRepository, cfg config.PresenceConfig, m *metrics.Metrics) *VisitorService {
	return &VisitorService{
		repo:     repo,
		presence: NewPresenceSet(),
		cfg:      cfg,
		metrics:  m,
		now:      time.Now,
	}
}

// Presence exposes the cached set for fast approximate reads.
func (s *VisitorService) Presence() *PresenceSet {
	return s.presence
}

// RegisterVisit records a visit for clientKey. An empty or oversized key is
// a no-op that returns the current snapshot; the caller has no way to
// recover a missing identifier, so it never errors.
func (s *VisitorService) RegisterVisit(ctx context.Context, clientKey, userAgent string) *models.Snapshot {
	if validation.ValidateStringRange(clientKey, 1, maxClientKeyLen) != nil {
		return s.Snapshot(ctx)
	}

	opCtx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	row, err := s.repo.RegisterVisit(opCtx, clientKey, userAgent, s.now())
	if err != nil {
		logger.Error("register visit failed", zap.String("client_key", clientKey), zap.Error(err))
		return s.degraded()
	}

	s.metrics.VisitsTotal.Inc()
	if row.SessionCount == 1 {
		s.metrics.NewVisitors.Inc()
	}

	return s.Snapshot(ctx)
}

// MarkOnline upserts the identity, then refreshes its online marker. Safe
// to call repeatedly; every call slides the liveness window forward.
func (s *VisitorService) MarkOnline(ctx context.Context, clientKey string) *models.Snapshot {
	if validation.ValidateStringRange(clientKey, 1, maxClientKeyLen) != nil {
		return s.Snapshot(ctx)
	}

	opCtx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	now := s.now()
	row, err := s.repo.RegisterVisit(opCtx, clientKey, "", now)
	if err != nil {
		logger.Error("mark online failed", zap.String("client_key", clientKey), zap.Error(err))
		return s.degraded()
	}
	if err := s.repo.MarkOnline(opCtx, clientKey, now); err != nil {
		logger.Error("mark online failed", zap.String("client_key", clientKey), zap.Error(err))
		return s.degraded()
	}

	s.metrics.VisitsTotal.Inc()
	if row.SessionCount == 1 {
		s.metrics.NewVisitors.Inc()
	}
	s.presence.Add(clientKey)

	return s.Snapshot(ctx)
}

// MarkOffline flips the identity offline. Unknown keys are a no-op.
func (s *VisitorService) MarkOffline(ctx context.Context, clientKey string) *models.Snapshot {
	if validation.ValidateStringRange(clientKey, 1, maxClientKeyLen) != nil {
		return s.Snapshot(ctx)
	}

	opCtx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	if err := s.repo.MarkOffline(opCtx, clientKey); err != nil {
		logger.Error("mark offline failed", zap.String("client_key", clientKey), zap.Error(err))
		return s.degraded()
	}
	s.presence.Remove(clientKey)

	return s.Snapshot(ctx)
}

// ExpireStale flips every online row whose marker fell out of the online
// window and reconciles the presence set. Returns the number flipped;
// idempotent, a second immediate run returns 0.
func (s *VisitorService) ExpireStale(ctx context.Context) int {
	opCtx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	cutoff := s.now().Add(-s.cfg.OnlineWindow)
	keys, err := s.repo.ExpireStale(opCtx, cutoff)
	if err != nil {
		logger.Error("expire sweep failed", zap.Error(err))
		s.metrics.DegradedResults.Inc()
		return 0
	}

	if len(keys) > 0 {
		s.presence.Remove(keys...)
		s.metrics.ExpiredBySweep.Add(float64(len(keys)))
		logger.Info("expired stale visitors", zap.Int("count", len(keys)))
	}
	return len(keys)
}

// Snapshot recomputes the aggregate counts from storage. The online count
// comes from the online-since marker at read time, not from the cached
// presence set; the set is refreshed from the same read as a side effect.
func (s *VisitorService) Snapshot(ctx context.Context) *models.Snapshot {
	opCtx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	now := s.now()
	dayStart, dayEnd := s.dayBounds(now)

	agg, err := s.repo.Aggregates(opCtx, dayStart, dayEnd, now.Add(-s.cfg.OnlineWindow))
	if err != nil {
		logger.Error("snapshot query failed", zap.Error(err))
		return s.degraded()
	}

	s.presence.Replace(agg.OnlineKeys)
	s.metrics.OnlineNow.Set(float64(len(agg.OnlineKeys)))

	snap := models.Snapshot{
		TotalVisitors: agg.TotalVisitors,
		TodayVisitors: agg.TodayVisitors,
		OnlineNow:     int64(len(agg.OnlineKeys)),
		LastUpdate:    now,
	}

	s.mu.Lock()
	s.lastSnapshot = snap
	s.mu.Unlock()

	return &snap
}

// ResyncPresence rebuilds the presence set from storage. Run at startup and
// on the resync timer.
func (s *VisitorService) ResyncPresence(ctx context.Context) {
	s.Snapshot(ctx)
}

// dayBounds returns the configured calendar day containing t.
func (s *VisitorService) dayBounds(t time.Time) (time.Time, time.Time) {
	loc := s.cfg.Location()
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// degraded returns the last known good snapshot, flagged so callers and
// tests can tell it apart from a fresh read.
func (s *VisitorService) degraded() *models.Snapshot {
	s.metrics.DegradedResults.Inc()

	s.mu.Lock()
	snap := s.lastSnapshot
	s.mu.Unlock()

	snap.Degraded = true
	return &snap
}
