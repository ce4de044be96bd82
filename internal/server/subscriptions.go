package server

import (
	"github.com/zeusync/worldcore/internal/core/chunk"
	"github.com/zeusync/worldcore/internal/core/ecs"
	"github.com/zeusync/worldcore/internal/core/events"
	"github.com/zeusync/worldcore/internal/core/events/bus"
	"github.com/zeusync/worldcore/internal/core/protocol"
	"github.com/zeusync/worldcore/internal/core/spatial"
	"github.com/zeusync/worldcore/internal/game"
)

type subscriber struct {
	client ClientID
	view   spatial.View
}

// chunkSubscriptions tracks which clients should receive each cell.
type chunkSubscriptions struct {
	byChunk map[spatial.ChunkPosition]map[ClientID]struct{}
	players map[ecs.Entity]subscriber

	viewUpdates bus.Reader[events.ViewUpdate]
	loads       bus.Reader[events.ChunkLoad]
	removals    bus.Reader[events.EntityRemove]
}

func newChunkSubscriptions() *chunkSubscriptions {
	return &chunkSubscriptions{
		byChunk: make(map[spatial.ChunkPosition]map[ClientID]struct{}),
		players: make(map[ecs.Entity]subscriber),
	}
}

func (cs *chunkSubscriptions) subscribe(pos spatial.ChunkPosition, id ClientID) {
	set, ok := cs.byChunk[pos]
	if !ok {
		set = make(map[ClientID]struct{})
		cs.byChunk[pos] = set
	}
	set[id] = struct{}{}
}

func (cs *chunkSubscriptions) unsubscribe(pos spatial.ChunkPosition, id ClientID) {
	set, ok := cs.byChunk[pos]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(cs.byChunk, pos)
	}
}

// Subscribers returns how many clients are subscribed to pos.
func (s *Server) Subscribers(pos spatial.ChunkPosition) int {
	return len(s.subs.byChunk[pos])
}

// UpdateChunkSubscriptions keeps every client's chunk subscriptions in line
// with its player's View. Clients receive UnloadChunk for cells that left
// their view and ChunkData once a cell in their view is loaded.
func UpdateChunkSubscriptions(g *game.Game, s *Server) error {
	cs := s.subs
	chunks, _ := ecs.Resource[*game.ChunkMap](g.Resources())

	// Loads are handled before view changes so a client subscribing this
	// tick to a chunk loaded this tick gets it exactly once.
	for _, ev := range cs.loads.Read(g.Bus) {
		data := chunkData(ev.Chunk)
		for id := range cs.byChunk[ev.Position] {
			if c, ok := s.Clients.Get(id); ok {
				c.Send(data)
			}
		}
	}

	for _, ev := range cs.viewUpdates.Read(g.Bus) {
		id, err := ecs.Get[ClientID](g.World, ev.Player)
		if err != nil {
			continue
		}
		c, ok := s.Clients.Get(*id)
		if !ok {
			continue
		}
		for _, pos := range ev.Removed {
			cs.unsubscribe(pos, *id)
			c.Send(protocol.UnloadChunk{X: pos.X, Z: pos.Z})
		}
		for _, pos := range ev.Added {
			cs.subscribe(pos, *id)
			if chunks == nil {
				continue
			}
			if h, ok := chunks.Get(pos); ok {
				c.Send(chunkData(h))
			}
		}
		cs.players[ev.Player] = subscriber{client: *id, view: ev.NewView}
	}

	for _, ev := range cs.removals.Read(g.Bus) {
		sub, ok := cs.players[ev.Entity]
		if !ok {
			continue
		}
		for pos := range sub.view.Chunks() {
			cs.unsubscribe(pos, sub.client)
		}
		delete(cs.players, ev.Entity)
	}
	return nil
}

func chunkData(h *chunk.Handle) protocol.ChunkData {
	var data protocol.ChunkData
	h.Read(func(c *chunk.Chunk) {
		data = protocol.ChunkData{
			X:       c.Position.X,
			Z:       c.Position.Z,
			Heights: append([]uint16(nil), c.Heights[:]...),
		}
	})
	return data
}
