package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/architect/presence-engine/pkg/config"
)

func TestSweeper_RunsCleanupsAndStops(t *testing.T) {
	svc, _, _ := newTestService(t)

	sweeper := NewSweeper(svc, config.PresenceConfig{
		OnlineWindow:   30 * time.Minute,
		SweepInterval:  10 * time.Millisecond,
		ResyncInterval: time.Hour,
		Timezone:       "UTC",
	})

	ran := make(chan struct{}, 1)
	sweeper.AddCleanup(func(ctx context.Context) {
		select {
		case ran <- struct{}{}:
		default:
		}
	})

	sweeper.Start()
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup hook never ran")
	}
	sweeper.Stop()
}

func TestSweeper_StopWithoutStart(t *testing.T) {
	svc, _, _ := newTestService(t)
	sweeper := NewSweeper(svc, testConfig())

	assert.NotPanics(t, func() { sweeper.Stop() })
}
