package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/architect/presence-engine/pkg/config"
	"github.com/architect/presence-engine/pkg/logger"
)

// Sweeper owns the engine's background timers: the stale-online expiry
// sweep and the periodic presence resync. It is started once by the hosting
// process and stopped on shutdown; no ambient timers survive it.
type Sweeper struct {
	visitors       *VisitorService
	sweepInterval  time.Duration
	resyncInterval time.Duration
	cleanups       []func(context.Context)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a sweeper for the given engine.
func NewSweeper(visitors *VisitorService, cfg config.PresenceConfig) *Sweeper {
	return &Sweeper{
		visitors:       visitors,
		sweepInterval:  cfg.SweepInterval,
		resyncInterval: cfg.ResyncInterval,
	}
}

// AddCleanup registers an extra job to run with every sweep tick, e.g. the
// session store's expired-token cleanup.
func (s *Sweeper) AddCleanup(fn func(context.Context)) {
	s.cleanups = append(s.cleanups, fn)
}

// Start launches the timer loop. Call Stop to tear it down.
func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)
	logger.Info("presence sweeper started",
		zap.Duration("sweep_interval", s.sweepInterval),
		zap.Duration("resync_interval", s.resyncInterval),
	)
}

// Stop cancels the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	logger.Info("presence sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	sweep := time.NewTicker(s.sweepInterval)
	defer sweep.Stop()
	resync := time.NewTicker(s.resyncInterval)
	defer resync.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			s.visitors.ExpireStale(ctx)
			for _, fn := range s.cleanups {
				fn(ctx)
			}
		case <-resync.C:
			s.visitors.ResyncPresence(ctx)
		}
	}
}
