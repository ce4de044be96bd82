package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zeusync/worldcore/internal/config"
	"github.com/zeusync/worldcore/internal/core/observability/log"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := config.Default()
	cfg.Tick.Rate = 100
	cfg.Server.HTTPAddr = "127.0.0.1:0"

	logger := log.NewNop()
	collector, err := NewMetrics()
	require.NoError(t, err)

	return New(cfg, logger, collector,
		NewGame(logger, collector),
		NewExecutor(logger, collector),
		NewServer(cfg, logger, collector),
		NewChunkSource(cfg))
}

func TestNew_RegistersSystems(t *testing.T) {
	a := newTestApp(t)
	require.Equal(t, 8, a.Executor.Len())
	require.Equal(t, 10*time.Millisecond, a.Config.TickInterval())
}

func TestRun_StopsOnCancel(t *testing.T) {
	a := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return a.Loop.Ticks() >= 3 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("app did not stop")
	}
	require.GreaterOrEqual(t, a.Game.Tick(), uint64(3))
}
