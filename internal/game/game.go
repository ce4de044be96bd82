// Package game holds the simulation context threaded through every system
// and the spatial systems that apply to all entities.
package game

import (
	"github.com/zeusync/worldcore/internal/core/ecs"
	"github.com/zeusync/worldcore/internal/core/events"
	"github.com/zeusync/worldcore/internal/core/events/bus"
	"github.com/zeusync/worldcore/internal/core/observability/log"
	"github.com/zeusync/worldcore/internal/core/observability/metrics"
	"github.com/zeusync/worldcore/internal/core/systems"
)

var _ systems.Context = (*Game)(nil)

// Game is the simulation state: entities, resources and the event bus.
type Game struct {
	World   *ecs.World
	Bus     *bus.Bus
	Logger  log.Log
	Metrics *metrics.TickCollector

	tick uint64
}

// New creates an empty game. The collector, if any, observes the event bus.
func New(logger log.Log, collector *metrics.TickCollector) *Game {
	if logger == nil {
		logger = log.NewNop()
	}
	g := &Game{
		World:   ecs.NewWorld(),
		Bus:     bus.New(),
		Logger:  logger.With(log.String("component", "game")),
		Metrics: collector,
	}
	if collector != nil {
		g.Bus.AddObserver(collector)
	}
	return g
}

// Resources returns the resources shared by every system.
func (g *Game) Resources() *ecs.Resources {
	return g.World.Resources()
}

// EndTick destroys entities despawned this tick and expires old events.
func (g *Game) EndTick() {
	if n := g.World.Maintain(); n > 0 {
		g.Logger.Debug("Destroyed entities", log.Int("count", n), log.Uint64("tick", g.tick))
	}
	g.Bus.Advance()
	g.tick++
}

// Tick returns the number of completed ticks.
func (g *Game) Tick() uint64 {
	return g.tick
}

// Spawn creates an entity and publishes EntityCreate for it.
func (g *Game) Spawn() ecs.Entity {
	e := g.World.Spawn()
	bus.Publish(g.Bus, events.EntityCreate{Entity: e})
	return e
}

// Despawn requests removal of e and publishes EntityRemove. Components of e
// stay readable for the rest of the tick.
func (g *Game) Despawn(e ecs.Entity) error {
	if err := g.World.Despawn(e); err != nil {
		return err
	}
	bus.Publish(g.Bus, events.EntityRemove{Entity: e})
	return nil
}
