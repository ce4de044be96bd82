package game

import (
	"github.com/zeusync/worldcore/internal/core/ecs"
	"github.com/zeusync/worldcore/internal/core/events"
	"github.com/zeusync/worldcore/internal/core/events/bus"
	"github.com/zeusync/worldcore/internal/core/spatial"
)

// DetectChunkCrossings publishes ChunkCross for every positioned entity
// whose cell differs from the one it was in last tick. An entity seen for
// the first time only has its cell recorded.
func DetectChunkCrossings(g *Game) error {
	type crossing struct {
		entity   ecs.Entity
		from, to spatial.ChunkPosition
		first    bool
	}
	var crossings []crossing

	for e, pos := range ecs.Query[spatial.Position](g.World) {
		current := pos.Chunk()
		last, err := ecs.Get[lastChunk](g.World, e)
		if err != nil {
			crossings = append(crossings, crossing{entity: e, to: current, first: true})
			continue
		}
		if prev := spatial.ChunkPosition(*last); prev != current {
			crossings = append(crossings, crossing{entity: e, from: prev, to: current})
		}
	}

	for _, c := range crossings {
		if err := ecs.Insert(g.World, c.entity, lastChunk(c.to)); err != nil {
			return err
		}
		if !c.first {
			bus.Publish(g.Bus, events.ChunkCross{Entity: c.entity, OldChunk: c.from, NewChunk: c.to})
		}
	}
	return nil
}

// UpdateViews replaces the View of every entity whose wanted view (its
// current cell and view distance) no longer matches, publishing a
// ViewUpdate for each replacement.
func UpdateViews(g *Game) error {
	type replacement struct {
		entity        ecs.Entity
		before, after spatial.View
	}
	var replacements []replacement

	for e, view := range ecs.Query[spatial.View](g.World) {
		pos, err := ecs.Get[spatial.Position](g.World, e)
		if err != nil {
			continue
		}
		distance := view.Distance
		if d, err := ecs.Get[ViewDistance](g.World, e); err == nil {
			distance = int32(*d)
		}
		wanted := spatial.NewView(pos.Chunk(), distance)
		if !wanted.Equal(*view) {
			replacements = append(replacements, replacement{entity: e, before: *view, after: wanted})
		}
	}

	for _, r := range replacements {
		if err := ReplaceView(g, r.entity, r.before, r.after); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceView stores newView on e and publishes the diff against oldView.
func ReplaceView(g *Game, e ecs.Entity, oldView, newView spatial.View) error {
	if err := ecs.Insert(g.World, e, newView); err != nil {
		return err
	}
	bus.Publish(g.Bus, events.NewViewUpdate(e, oldView, newView))
	g.Metrics.IncViewUpdates()
	return nil
}
