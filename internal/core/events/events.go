// Package events defines the notifications routines publish on the bus.
package events

import (
	"github.com/zeusync/worldcore/internal/core/chunk"
	"github.com/zeusync/worldcore/internal/core/ecs"
	"github.com/zeusync/worldcore/internal/core/spatial"
)

// PlayerJoin is published when a participant entity is spawned for a
// newly connected client.
type PlayerJoin struct {
	Player ecs.Entity
}

// ViewUpdate is published when a participant's View is replaced, meaning
// they crossed into a new cell or changed their view distance.
type ViewUpdate struct {
	Player  ecs.Entity
	OldView spatial.View
	NewView spatial.View

	// Added holds cells in NewView but not OldView, nearest to the new
	// center first.
	Added []spatial.ChunkPosition
	// Removed holds cells in OldView but not NewView, nearest to the old
	// center first.
	Removed []spatial.ChunkPosition
}

// NewViewUpdate diffs two views.
func NewViewUpdate(player ecs.Entity, oldView, newView spatial.View) ViewUpdate {
	return ViewUpdate{
		Player:  player,
		OldView: oldView,
		NewView: newView,
		Added:   newView.SortedDifference(oldView),
		Removed: oldView.SortedDifference(newView),
	}
}

// ChunkCross is published when any positioned entity moves into a new
// cell. Unlike ViewUpdate it fires for every entity, not only players.
type ChunkCross struct {
	Entity   ecs.Entity
	OldChunk spatial.ChunkPosition
	NewChunk spatial.ChunkPosition
}

// ChunkLoad is published when a chunk becomes available.
type ChunkLoad struct {
	Position spatial.ChunkPosition
	Chunk    *chunk.Handle
}

// ChunkLoadFail is published when the chunk source could not produce a chunk.
type ChunkLoadFail struct {
	Position spatial.ChunkPosition
	Err      error
}

// EntityCreate is published the tick an entity is spawned.
type EntityCreate struct {
	Entity ecs.Entity
}

// EntityRemove is published the tick removal of an entity is requested.
// The entity's components stay readable until the end of that tick.
type EntityRemove struct {
	Entity ecs.Entity
}
