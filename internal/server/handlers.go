package server

import (
	"fmt"
	"math"
	"time"

	"github.com/zeusync/worldcore/internal/core/ecs"
	"github.com/zeusync/worldcore/internal/core/protocol"
	"github.com/zeusync/worldcore/internal/core/spatial"
	"github.com/zeusync/worldcore/internal/game"
)

// Handler processes one message received from player.
type Handler func(g *game.Game, s *Server, player ecs.Entity, msg protocol.Message) error

// Dispatcher routes messages to handlers by kind.
type Dispatcher struct {
	handlers map[protocol.Kind]Handler
}

// NewDispatcher returns a dispatcher without handlers.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[protocol.Kind]Handler)}
}

// DefaultDispatcher handles keepalive answers, movement, client settings and
// client initiated disconnects.
func DefaultDispatcher() *Dispatcher {
	return NewDispatcher().
		Register(protocol.KindKeepAlive, HandleKeepAlive).
		Register(protocol.KindPlayerPosition, HandlePlayerPosition).
		Register(protocol.KindClientSettings, HandleClientSettings).
		Register(protocol.KindDisconnect, HandleDisconnect)
}

// Register sets the handler for kind, replacing any previous one.
func (d *Dispatcher) Register(kind protocol.Kind, h Handler) *Dispatcher {
	d.handlers[kind] = h
	return d
}

// Handle runs the handler registered for msg's kind.
func (d *Dispatcher) Handle(g *game.Game, s *Server, player ecs.Entity, msg protocol.Message) error {
	h, ok := d.handlers[msg.Kind()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnhandledMessage, msg.Kind())
	}
	return h(g, s, player, msg)
}

func keepAliveProbe(now time.Time) protocol.KeepAlive {
	return protocol.KeepAlive{ID: now.UnixMilli()}
}

// HandleKeepAlive records the keepalive answer on the player's client.
func HandleKeepAlive(g *game.Game, s *Server, player ecs.Entity, _ protocol.Message) error {
	c, err := s.ClientOf(g, player)
	if err != nil {
		return err
	}
	c.ackKeepalive(s.now())
	return nil
}

// HandlePlayerPosition moves player. Non-finite coordinates are rejected.
func HandlePlayerPosition(g *game.Game, _ *Server, player ecs.Entity, msg protocol.Message) error {
	m, ok := msg.(protocol.PlayerPosition)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnhandledMessage, msg)
	}
	for _, v := range []float64{m.X, m.Y, m.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %v,%v,%v", ErrInvalidPosition, m.X, m.Y, m.Z)
		}
	}
	return ecs.Insert(g.World, player, spatial.Position{X: m.X, Y: m.Y, Z: m.Z})
}

// HandleClientSettings updates the view distance, clamped to MaxViewDistance.
func HandleClientSettings(g *game.Game, s *Server, player ecs.Entity, msg protocol.Message) error {
	m, ok := msg.(protocol.ClientSettings)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnhandledMessage, msg)
	}
	if m.ViewDistance < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidViewDistance, m.ViewDistance)
	}
	distance := m.ViewDistance
	if limit := s.opts.MaxViewDistance; limit > 0 && distance > limit {
		distance = limit
	}
	return ecs.Insert(g.World, player, game.ViewDistance(distance))
}

// HandleDisconnect disconnects the client at its own request.
func HandleDisconnect(g *game.Game, s *Server, player ecs.Entity, _ protocol.Message) error {
	c, err := s.ClientOf(g, player)
	if err != nil {
		return err
	}
	c.Disconnect("client disconnected")
	return nil
}
