// Package app assembles the simulation, its systems and the network
// listeners into one runnable process.
package app

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/worldcore/internal/config"
	"github.com/zeusync/worldcore/internal/core/observability/log"
	"github.com/zeusync/worldcore/internal/core/observability/metrics"
	"github.com/zeusync/worldcore/internal/core/systems"
	"github.com/zeusync/worldcore/internal/game"
	"github.com/zeusync/worldcore/internal/server"
)

const shutdownTimeout = 5 * time.Second

// App is the assembled server process.
type App struct {
	Config   *config.Config
	Logger   log.Log
	Metrics  *metrics.TickCollector
	Game     *game.Game
	Executor *systems.Executor[*game.Game]
	Loop     *systems.Loop[*game.Game]
	Server   *server.Server
	Source   game.ChunkSource
}

// New registers every system on exec and builds the tick loop.
func New(
	cfg *config.Config,
	logger log.Log,
	collector *metrics.TickCollector,
	g *game.Game,
	exec *systems.Executor[*game.Game],
	srv *server.Server,
	source game.ChunkSource,
) *App {
	server.Register(srv, g, exec, source)

	return &App{
		Config:   cfg,
		Logger:   logger.With(log.String("component", "app")),
		Metrics:  collector,
		Game:     g,
		Executor: exec,
		Loop:     systems.NewLoop(exec, g, cfg.TickInterval(), logger),
		Server:   srv,
		Source:   source,
	}
}

// Run serves HTTP (and QUIC when configured) and runs the tick loop until
// ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	var quicListener *server.QUICListener
	if addr := a.Config.Server.QUICAddr; addr != "" {
		tlsConf, err := a.tlsConfig()
		if err != nil {
			return err
		}
		if quicListener, err = a.Server.ListenQUIC(addr, tlsConf); err != nil {
			return err
		}
	}

	group, ctx := errgroup.WithContext(ctx)

	httpServer := &http.Server{
		Addr:              a.Config.Server.HTTPAddr,
		Handler:           a.Server.Router(a.Metrics),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group.Go(func() error {
		a.Logger.Info("HTTP listening", log.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		a.Server.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if quicListener != nil {
		group.Go(func() error {
			return quicListener.Serve(ctx)
		})
		group.Go(func() error {
			<-ctx.Done()
			return quicListener.Close()
		})
	}

	group.Go(func() error {
		return a.Loop.Run(ctx)
	})

	err := group.Wait()
	if closer, ok := a.Source.(io.Closer); ok {
		_ = closer.Close()
	}
	a.Logger.Info("Stopped", log.Uint64("ticks", a.Loop.Ticks()))
	return err
}

func (a *App) tlsConfig() (*tls.Config, error) {
	if a.Config.Server.CertFile == "" {
		return nil, nil
	}
	return server.LoadTLS(a.Config.Server.CertFile, a.Config.Server.KeyFile)
}

// NewMetrics registers the tick collector on a fresh registry so several
// apps can live in one test binary.
func NewMetrics() (*metrics.TickCollector, error) {
	return metrics.NewTickCollector(prometheus.NewRegistry())
}

// NewLogger builds the root logger from the config file.
func NewLogger(cfg *config.Config) (log.Log, error) {
	logger, err := log.NewWithConfig(cfg.LoggerConfig())
	if err != nil {
		return nil, err
	}
	return logger, nil
}

func NewGame(logger log.Log, collector *metrics.TickCollector) *game.Game {
	return game.New(logger, collector)
}

func NewExecutor(logger log.Log, collector *metrics.TickCollector) *systems.Executor[*game.Game] {
	return systems.NewExecutor[*game.Game](logger, collector)
}

// NewServer builds the network server from cfg.
func NewServer(cfg *config.Config, logger log.Log, collector *metrics.TickCollector) *server.Server {
	return server.New(server.OptionsFromConfig(cfg), logger, collector)
}

// NewChunkSource generates flat terrain on background workers.
func NewChunkSource(cfg *config.Config) game.ChunkSource {
	return game.NewAsyncChunkSource(
		cfg.World.GeneratorWorkers,
		cfg.World.GeneratorQueue,
		game.FlatGenerator(cfg.World.GroundHeight))
}
