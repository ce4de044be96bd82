package server

import (
	"fmt"
	"time"

	"github.com/zeusync/worldcore/internal/config"
	"github.com/zeusync/worldcore/internal/core/ecs"
	"github.com/zeusync/worldcore/internal/core/observability/log"
	"github.com/zeusync/worldcore/internal/core/observability/metrics"
	"github.com/zeusync/worldcore/internal/core/spatial"
	"github.com/zeusync/worldcore/internal/game"
)

// Options holds server settings taken from the configuration file.
type Options struct {
	MaxClients        int
	OutboundBuffer    int
	InboundRate       float64
	InboundBurst      int
	WriteTimeout      time.Duration
	HandshakeTimeout  time.Duration
	KeepaliveInterval time.Duration
	CORSOrigins       []string

	ViewDistance    int32
	MaxViewDistance int32
	Spawn           spatial.Position
}

// DefaultOptions mirrors config.Default.
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default())
}

// OptionsFromConfig copies the server, keepalive and world settings out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxClients:        cfg.Server.MaxClients,
		OutboundBuffer:    cfg.Server.OutboundBuffer,
		InboundRate:       cfg.Server.InboundRate,
		InboundBurst:      cfg.Server.InboundBurst,
		WriteTimeout:      cfg.Server.WriteTimeout,
		HandshakeTimeout:  cfg.Server.HandshakeWait,
		KeepaliveInterval: cfg.Keepalive.Interval,
		CORSOrigins:       cfg.Server.CORSOrigins,
		ViewDistance:      cfg.World.ViewDistance,
		MaxViewDistance:   cfg.World.MaxDistance,
		Spawn:             cfg.World.Spawn,
	}
}

// Option customizes a Server.
type Option func(*Server)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithDispatcher replaces the default packet handlers.
func WithDispatcher(d *Dispatcher) Option {
	return func(s *Server) { s.Handlers = d }
}

// Server is the resource systems in the Server group receive. There is
// exactly one per process.
type Server struct {
	Clients       *Clients
	Handlers      *Dispatcher
	LastKeepalive time.Time

	opts    Options
	now     func() time.Time
	logger  log.Log
	metrics *metrics.TickCollector
	subs    *chunkSubscriptions
}

// New creates a server without clients. LastKeepalive starts at the current time.
func New(opts Options, logger log.Log, collector *metrics.TickCollector, options ...Option) *Server {
	if logger == nil {
		logger = log.NewNop()
	}

	s := &Server{
		Clients:  NewClients(opts.MaxClients),
		Handlers: DefaultDispatcher(),
		opts:     opts,
		now:      time.Now,
		logger:   logger.With(log.String("component", "server")),
		metrics:  collector,
		subs:     newChunkSubscriptions(),
	}
	for _, o := range options {
		o(s)
	}
	s.LastKeepalive = s.now()

	s.logger.Info("Server created",
		log.Int("max_clients", opts.MaxClients),
		log.Duration("keepalive_interval", opts.KeepaliveInterval))

	return s
}

// Options returns the settings the server was created with.
func (s *Server) Options() Options {
	return s.opts
}

// Logger returns the server scoped logger.
func (s *Server) Logger() log.Log {
	return s.logger
}

// Now returns the server clock.
func (s *Server) Now() time.Time {
	return s.now()
}

// BroadcastKeepalive sends a keepalive probe to every registered client and
// records the time it was sent.
func (s *Server) BroadcastKeepalive() {
	now := s.now()
	probe := keepAliveProbe(now)
	for _, c := range s.Clients.All() {
		c.Send(probe)
	}
	s.LastKeepalive = now
	s.metrics.IncKeepalives()
}

// Close disconnects every client.
func (s *Server) Close() {
	for _, c := range s.Clients.All() {
		c.Disconnect("server closing")
	}
}

// ClientOf looks up the client owning player.
func (s *Server) ClientOf(g *game.Game, player ecs.Entity) (*Client, error) {
	id, err := ecs.Get[ClientID](g.World, player)
	if err != nil {
		return nil, err
	}
	c, ok := s.Clients.Get(*id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrClientNotFound, *id)
	}
	return c, nil
}
