package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/architect/presence-engine/internal/common/metrics"
	"github.com/architect/presence-engine/internal/session/models"
	"github.com/architect/presence-engine/internal/session/repository"
	"github.com/architect/presence-engine/pkg/config"
	"github.com/architect/presence-engine/pkg/logger"
)

const storageTimeout = 3 * time.Second

// staleMultiple controls how long past the activity window an expired row
// may linger before the cleanup deletes it.
const staleMultiple = 10

// SessionService counts live sessions by opaque token. It is deliberately
// decoupled from the visitor identity store: it answers "how many tabs are
// pinging right now", which may disagree with the unique-visitor counters.
type SessionService struct {
	repo    repository.SessionRepository
	timeout time.Duration
	metrics *metrics.Metrics
	now     func() time.Time

	mu        sync.Mutex
	lastCount models.ActiveCount
}

// NewSessionService creates a new session liveness service
func NewSessionService(repo repository.SessionRepository, cfg config.SessionConfig, m *metrics.Metrics) *SessionService {
	return &SessionService{
		repo:    repo,
		timeout: cfg.Timeout,
		metrics: m,
		now:     time.Now,
	}
}

// IssueToken returns the token the caller should ping with: the supplied
// one when the caller already holds a token, otherwise a freshly minted
// random token. Storage failures are logged and the token is still handed
// out; the row appears on the next successful ping.
func (s *SessionService) IssueToken(ctx context.Context, token, ownerID string) string {
	if token == "" {
		token = newToken()
	}

	opCtx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	if err := s.repo.Upsert(opCtx, token, ownerRef(ownerID), s.now()); err != nil {
		logger.Error("session token registration failed", zap.Error(err))
		s.metrics.DegradedResults.Inc()
	}
	return token
}

// Ping refreshes the token's activity marker. False means the token is
// unknown and the caller should re-issue.
func (s *SessionService) Ping(ctx context.Context, token, ownerID string) bool {
	if token == "" {
		return false
	}

	opCtx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	known, err := s.repo.Refresh(opCtx, token, ownerRef(ownerID), s.now())
	if err != nil {
		logger.Error("session ping failed", zap.Error(err))
		s.metrics.DegradedResults.Inc()
		return false
	}
	return known
}

// EndSession deletes the token immediately. Idempotent; false when the
// token was already gone.
func (s *SessionService) EndSession(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}

	opCtx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	removed, err := s.repo.Delete(opCtx, token)
	if err != nil {
		logger.Error("session end failed", zap.Error(err))
		s.metrics.DegradedResults.Inc()
		return false
	}
	return removed
}

// ActiveCount recounts live sessions from storage. Expiry is lazy: a token
// leaves the count the moment its last ping falls out of the window,
// whether or not its row still exists.
func (s *SessionService) ActiveCount(ctx context.Context) *models.ActiveCount {
	opCtx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	now := s.now()
	sessions, owners, anonymous, err := s.repo.ActiveCounts(opCtx, now.Add(-s.timeout))
	if err != nil {
		logger.Error("active count query failed", zap.Error(err))
		s.metrics.DegradedResults.Inc()

		s.mu.Lock()
		count := s.lastCount
		s.mu.Unlock()
		count.Degraded = true
		return &count
	}

	// Anonymous sessions each count as one user.
	count := models.ActiveCount{
		TotalUsers:    owners + anonymous,
		TotalSessions: sessions,
		UpdatedAt:     now,
	}

	s.metrics.ActiveSessions.Set(float64(sessions))

	s.mu.Lock()
	s.lastCount = count
	s.mu.Unlock()

	return &count
}

// CleanupExpired deletes rows long past the activity window so the table
// stays bounded. Normal expiry never depends on it.
func (s *SessionService) CleanupExpired(ctx context.Context) int64 {
	opCtx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	removed, err := s.repo.DeleteStale(opCtx, s.now().Add(-time.Duration(staleMultiple)*s.timeout))
	if err != nil {
		logger.Error("session cleanup failed", zap.Error(err))
		return 0
	}
	if removed > 0 {
		logger.Info("removed expired session tokens", zap.Int64("count", removed))
	}
	return removed
}

// newToken mints an opaque session token with 128 bits of entropy.
func newToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process is in a bad state
		panic(err)
	}
	return hex.EncodeToString(buf)
}

func ownerRef(ownerID string) *string {
	if ownerID == "" {
		return nil
	}
	return &ownerID
}
