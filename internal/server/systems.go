package server

import (
	"errors"
	"fmt"

	"github.com/zeusync/worldcore/internal/core/ecs"
	"github.com/zeusync/worldcore/internal/core/events"
	"github.com/zeusync/worldcore/internal/core/events/bus"
	"github.com/zeusync/worldcore/internal/core/observability/log"
	"github.com/zeusync/worldcore/internal/core/protocol"
	"github.com/zeusync/worldcore/internal/core/spatial"
	"github.com/zeusync/worldcore/internal/core/systems"
	"github.com/zeusync/worldcore/internal/game"
)

// Register inserts srv as a resource and adds the server systems around the
// spatial ones:
//
//	join_players, handle_packets, send_keepalives,
//	detect_chunk_crossings, update_views, load_chunks,
//	update_chunk_subscriptions, remove_disconnected
func Register(srv *Server, g *game.Game, exec *systems.Executor[*game.Game], source game.ChunkSource) {
	ecs.InsertResource(g.Resources(), srv)

	systems.Group[*Server](exec).
		AddSystem("join_players", JoinPlayers).
		AddSystem("handle_packets", HandlePackets).
		AddSystem("send_keepalives", SendKeepalives)

	game.Register(g, exec, source)

	systems.Group[*Server](exec).
		AddSystem("update_chunk_subscriptions", UpdateChunkSubscriptions).
		AddSystem("remove_disconnected", RemoveDisconnected)
}

// HandlePackets drains the inbound queue of every player and dispatches each
// message. A failing message is logged and does not stop the others.
func HandlePackets(g *game.Game, s *Server) error {
	type packet struct {
		player ecs.Entity
		msg    protocol.Message
	}
	var packets []packet

	for e, id := range ecs.Query[ClientID](g.World) {
		c, ok := s.Clients.Get(*id)
		if !ok {
			continue
		}
		for _, msg := range c.ReceivedPackets() {
			packets = append(packets, packet{player: e, msg: msg})
		}
	}

	for _, p := range packets {
		err := s.Handlers.Handle(g, s, p.player, p.msg)
		if err == nil {
			s.metrics.IncPacketsHandled()
			continue
		}
		s.metrics.IncPacketFailures()

		name, nameErr := ecs.Get[game.Name](g.World, p.player)
		if nameErr != nil {
			return fmt.Errorf("name of %s: %w", p.player, nameErr)
		}
		s.logger.Warn("Failed to handle packet",
			log.Stringer("player", name),
			log.String("kind", string(p.msg.Kind())),
			log.Error(err))
	}
	return nil
}

// SendKeepalives broadcasts a keepalive once the interval has elapsed since
// the last one.
func SendKeepalives(_ *game.Game, s *Server) error {
	if s.now().Sub(s.LastKeepalive) >= s.opts.KeepaliveInterval {
		s.BroadcastKeepalive()
	}
	return nil
}

// JoinPlayers spawns an entity for every client that finished its handshake
// since the previous tick. The entity starts with an empty View so that
// UpdateViews publishes its whole initial view as added cells.
func JoinPlayers(g *game.Game, s *Server) error {
	for _, c := range s.Clients.TakeJoining() {
		if c.IsDisconnected() {
			s.Clients.Remove(c.id)
			continue
		}

		e := g.Spawn()
		spawn := s.opts.Spawn
		components := []error{
			ecs.Insert(g.World, e, c.id),
			ecs.Insert(g.World, e, game.Name(c.username)),
			ecs.Insert(g.World, e, spawn),
			ecs.Insert(g.World, e, game.ViewDistance(s.opts.ViewDistance)),
			ecs.Insert(g.World, e, spatial.Empty()),
		}
		if err := errors.Join(components...); err != nil {
			return err
		}
		c.setPlayer(e)

		c.Send(protocol.JoinGame{
			Entity:       uint64(e),
			X:            spawn.X,
			Y:            spawn.Y,
			Z:            spawn.Z,
			ViewDistance: s.opts.ViewDistance,
		})
		bus.Publish(g.Bus, events.PlayerJoin{Player: e})

		s.logger.Info("Player joined",
			log.String("username", c.username),
			log.String("session", c.session.String()),
			log.Stringer("entity", e))
	}
	s.metrics.SetConnectedClients(s.Clients.Len())
	return nil
}

// RemoveDisconnected despawns the players of disconnected clients and drops
// those clients from the registry.
func RemoveDisconnected(g *game.Game, s *Server) error {
	var gone []ecs.Entity
	for e, id := range ecs.Query[ClientID](g.World) {
		c, ok := s.Clients.Get(*id)
		if !ok || c.IsDisconnected() {
			gone = append(gone, e)
		}
	}

	for _, e := range gone {
		id, err := ecs.Get[ClientID](g.World, e)
		if err != nil {
			return err
		}
		if c, ok := s.Clients.Get(*id); ok {
			s.logger.Info("Player left",
				log.String("username", c.username),
				log.String("reason", c.DisconnectReason()),
				log.Uint64("dropped", c.Dropped()))
		}
		s.Clients.Remove(*id)
		if err := ecs.Remove[ClientID](g.World, e); err != nil {
			return err
		}
		if err := g.Despawn(e); err != nil && !errors.Is(err, ecs.ErrAlreadyDespawning) {
			return err
		}
	}
	s.metrics.SetConnectedClients(s.Clients.Len())
	return nil
}
