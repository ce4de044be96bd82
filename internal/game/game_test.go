package game

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/worldcore/internal/core/chunk"
	"github.com/zeusync/worldcore/internal/core/ecs"
	"github.com/zeusync/worldcore/internal/core/events"
	"github.com/zeusync/worldcore/internal/core/events/bus"
	"github.com/zeusync/worldcore/internal/core/observability/metrics"
	"github.com/zeusync/worldcore/internal/core/spatial"
	"github.com/zeusync/worldcore/internal/core/systems"
)

func spawnAt(t *testing.T, g *Game, x, z float64) ecs.Entity {
	t.Helper()
	e := g.Spawn()
	require.NoError(t, ecs.Insert(g.World, e, spatial.Position{X: x, Z: z}))
	return e
}

func spawnViewer(t *testing.T, g *Game, x, z float64, distance int32) ecs.Entity {
	t.Helper()
	e := spawnAt(t, g, x, z)
	require.NoError(t, ecs.Insert(g.World, e, ViewDistance(distance)))
	require.NoError(t, ecs.Insert(g.World, e, spatial.Empty()))
	return e
}

func move(t *testing.T, g *Game, e ecs.Entity, x, z float64) {
	t.Helper()
	pos, err := ecs.Get[spatial.Position](g.World, e)
	require.NoError(t, err)
	pos.X, pos.Z = x, z
}

func TestGame_EntityLifecycleEvents(t *testing.T) {
	g := New(nil, nil)
	e := g.Spawn()
	require.Equal(t, []events.EntityCreate{{Entity: e}}, bus.Read[events.EntityCreate](g.Bus))
	require.NoError(t, ecs.Insert(g.World, e, Name("zombie")))

	require.NoError(t, g.Despawn(e))
	require.Equal(t, []events.EntityRemove{{Entity: e}}, bus.Read[events.EntityRemove](g.Bus))

	// still readable during the tick removal was requested
	name, err := ecs.Get[Name](g.World, e)
	require.NoError(t, err)
	require.Equal(t, Name("zombie"), *name)

	g.EndTick()
	require.False(t, g.World.IsAlive(e))
	require.Equal(t, uint64(1), g.Tick())
}

func TestGame_BusFeedsMetrics(t *testing.T) {
	collector, err := metrics.NewTickCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	g := New(nil, collector)

	g.Spawn()
	require.Equal(t, 1.0, testutil.ToFloat64(collector.EventsPublished.WithLabelValues("events.EntityCreate")))

	g.EndTick()
	require.Equal(t, 0.0, testutil.ToFloat64(collector.EventsExpired.WithLabelValues("events.EntityCreate")))
	g.EndTick()
	require.Equal(t, 1.0, testutil.ToFloat64(collector.EventsExpired.WithLabelValues("events.EntityCreate")))
}

func TestDetectChunkCrossings(t *testing.T) {
	g := New(nil, nil)
	mob := spawnAt(t, g, 1, 1)

	require.NoError(t, DetectChunkCrossings(g))
	require.Empty(t, bus.Read[events.ChunkCross](g.Bus), "first sighting is not a crossing")

	move(t, g, mob, 5, 5)
	require.NoError(t, DetectChunkCrossings(g))
	require.Empty(t, bus.Read[events.ChunkCross](g.Bus))

	move(t, g, mob, 17, -1)
	require.NoError(t, DetectChunkCrossings(g))
	require.Equal(t, []events.ChunkCross{{
		Entity:   mob,
		OldChunk: spatial.ChunkPosition{X: 0, Z: 0},
		NewChunk: spatial.ChunkPosition{X: 1, Z: -1},
	}}, bus.Read[events.ChunkCross](g.Bus))
}

func TestUpdateViews_OnlyViewersGetViewUpdates(t *testing.T) {
	g := New(nil, nil)
	mob := spawnAt(t, g, 1, 1)
	player := spawnViewer(t, g, 1, 1, 1)

	require.NoError(t, DetectChunkCrossings(g))
	require.NoError(t, UpdateViews(g))

	// initial view from empty covers all 9 cells
	updates := bus.Read[events.ViewUpdate](g.Bus)
	require.Len(t, updates, 1)
	require.Equal(t, player, updates[0].Player)
	require.Len(t, updates[0].Added, 9)
	require.Empty(t, updates[0].Removed)
	g.EndTick()
	g.EndTick()

	// both cross into chunk (1, 0)
	move(t, g, mob, 20, 1)
	move(t, g, player, 20, 1)
	require.NoError(t, DetectChunkCrossings(g))
	require.NoError(t, UpdateViews(g))

	crossings := bus.Read[events.ChunkCross](g.Bus)
	require.Len(t, crossings, 2)

	updates = bus.Read[events.ViewUpdate](g.Bus)
	require.Len(t, updates, 1)
	require.Equal(t, player, updates[0].Player)
	require.Len(t, updates[0].Added, 3)
	require.Len(t, updates[0].Removed, 3)

	view, err := ecs.Get[spatial.View](g.World, player)
	require.NoError(t, err)
	require.Equal(t, spatial.NewView(spatial.ChunkPosition{X: 1, Z: 0}, 1), *view)
}

func TestUpdateViews_ViewDistanceChange(t *testing.T) {
	g := New(nil, nil)
	player := spawnViewer(t, g, 0, 0, 1)
	require.NoError(t, UpdateViews(g))
	g.EndTick()
	g.EndTick()

	require.NoError(t, ecs.Insert(g.World, player, ViewDistance(2)))
	require.NoError(t, UpdateViews(g))

	updates := bus.Read[events.ViewUpdate](g.Bus)
	require.Len(t, updates, 1)
	require.Len(t, updates[0].Added, 25-9)
	require.Empty(t, updates[0].Removed)

	// nothing changed: no update
	g.EndTick()
	g.EndTick()
	require.NoError(t, UpdateViews(g))
	require.Empty(t, bus.Read[events.ViewUpdate](g.Bus))
}

func TestLoadChunks(t *testing.T) {
	g := New(nil, nil)
	bad := spatial.ChunkPosition{X: 1, Z: 1}
	source := NewFlatChunkSource(64).WithInvalid(func(p spatial.ChunkPosition) bool { return p == bad })
	m := NewChunkMap(source)

	player := spawnViewer(t, g, 0, 0, 1)
	require.NoError(t, UpdateViews(g))
	require.NoError(t, LoadChunks(g, m))

	require.Equal(t, 8, m.Len())
	require.False(t, m.IsLoaded(bad))
	require.Len(t, bus.Read[events.ChunkLoad](g.Bus), 8)
	require.Equal(t, []spatial.ChunkPosition{bad}, positionsOf(bus.Read[events.ChunkLoadFail](g.Bus)))

	h, ok := m.Get(spatial.ChunkPosition{})
	require.True(t, ok)
	h.Read(func(c *chunk.Chunk) { require.Equal(t, uint16(64), c.Height(3, 3)) })

	// a second tick must not re-request a cell that failed to generate
	g.EndTick()
	require.NoError(t, LoadChunks(g, m))
	require.Len(t, bus.Read[events.ChunkLoad](g.Bus), 8, "only last tick's events remain")
	require.Len(t, bus.Read[events.ChunkLoadFail](g.Bus), 1)

	// despawning releases every chunk the view covered
	require.NoError(t, g.Despawn(player))
	require.NoError(t, LoadChunks(g, m))
	require.Zero(t, m.Len())
}

// busySource rejects the first request for each cell in busy, the way a
// full AsyncChunkSource queue does.
type busySource struct {
	*FlatChunkSource
	busy     map[spatial.ChunkPosition]bool
	requests int
	rejected []ChunkResult
}

func (s *busySource) Request(pos spatial.ChunkPosition) {
	s.requests++
	if s.busy[pos] {
		delete(s.busy, pos)
		s.rejected = append(s.rejected, ChunkResult{Position: pos, Err: ErrSourceBusy})
		return
	}
	s.FlatChunkSource.Request(pos)
}

func (s *busySource) Poll() []ChunkResult {
	out := append(s.rejected, s.FlatChunkSource.Poll()...)
	s.rejected = nil
	return out
}

func TestLoadChunks_RetriesBusySource(t *testing.T) {
	g := New(nil, nil)
	first, second := spatial.ChunkPosition{X: 0, Z: 0}, spatial.ChunkPosition{X: 1, Z: 0}
	source := &busySource{
		FlatChunkSource: NewFlatChunkSource(64),
		busy:            map[spatial.ChunkPosition]bool{first: true, second: true},
	}
	m := NewChunkMap(source)

	spawnViewer(t, g, 0, 0, 1)
	require.NoError(t, UpdateViews(g))
	require.NoError(t, LoadChunks(g, m))
	require.Equal(t, 7, m.Len())
	require.Equal(t, 9, source.requests)
	require.False(t, m.IsLoaded(first))
	require.Empty(t, bus.Read[events.ChunkLoadFail](g.Bus))

	g.EndTick()
	require.NoError(t, LoadChunks(g, m))
	require.Equal(t, 9, m.Len())
	require.Equal(t, 11, source.requests)
	require.True(t, m.IsLoaded(first))
	require.True(t, m.IsLoaded(second))

	g.EndTick()
	require.NoError(t, LoadChunks(g, m))
	require.Equal(t, 11, source.requests)
}

func TestLoadChunks_BusyCellOutOfViewIsNotRetried(t *testing.T) {
	g := New(nil, nil)
	west := spatial.ChunkPosition{X: -1, Z: 0}
	source := &busySource{
		FlatChunkSource: NewFlatChunkSource(64),
		busy:            map[spatial.ChunkPosition]bool{west: true},
	}
	m := NewChunkMap(source)

	player := spawnViewer(t, g, 0, 0, 1)
	require.NoError(t, UpdateViews(g))
	require.NoError(t, LoadChunks(g, m))
	require.Equal(t, 9, source.requests)

	g.EndTick()
	move(t, g, player, 16, 0)
	require.NoError(t, DetectChunkCrossings(g))
	require.NoError(t, UpdateViews(g))
	require.NoError(t, LoadChunks(g, m))
	require.Equal(t, 12, source.requests, "only the three new cells")
	require.False(t, m.IsLoaded(west))
}

// emptySource answers every request without an error and without a chunk.
type emptySource struct{ queued []spatial.ChunkPosition }

func (s *emptySource) Request(pos spatial.ChunkPosition) { s.queued = append(s.queued, pos) }

func (s *emptySource) Poll() []ChunkResult {
	out := make([]ChunkResult, 0, len(s.queued))
	for _, pos := range s.queued {
		out = append(out, ChunkResult{Position: pos})
	}
	s.queued = nil
	return out
}

func TestLoadChunks_MissingChunkIsAFailure(t *testing.T) {
	g := New(nil, nil)
	m := NewChunkMap(&emptySource{})

	spawnViewer(t, g, 0, 0, 0)
	require.NoError(t, UpdateViews(g))
	require.NoError(t, LoadChunks(g, m))

	require.Zero(t, m.Len())
	require.Empty(t, bus.Read[events.ChunkLoad](g.Bus))
	fails := bus.Read[events.ChunkLoadFail](g.Bus)
	require.Len(t, fails, 1)
	require.ErrorIs(t, fails[0].Err, ErrChunkGeneration)
}

func TestLoadChunks_SharedInterest(t *testing.T) {
	g := New(nil, nil)
	m := NewChunkMap(NewFlatChunkSource(1))

	a := spawnViewer(t, g, 0, 0, 0)
	spawnViewer(t, g, 0, 0, 0)
	require.NoError(t, UpdateViews(g))
	require.NoError(t, LoadChunks(g, m))
	require.Equal(t, 1, m.Len())

	require.NoError(t, g.Despawn(a))
	require.NoError(t, LoadChunks(g, m))
	require.Equal(t, 1, m.Len(), "still covered by the other viewer")
}

func TestRegister(t *testing.T) {
	g := New(nil, nil)
	exec := systems.NewExecutor[*Game](nil, nil)
	Register(g, exec, NewFlatChunkSource(0))

	require.Equal(t, []string{"detect_chunk_crossings", "update_views", "load_chunks"}, exec.Names())
	require.True(t, ecs.HasResource[*ChunkMap](g.Resources()))

	spawnViewer(t, g, 0, 0, 2)
	require.Zero(t, exec.Run(g))

	m, err := ecs.Resource[*ChunkMap](g.Resources())
	require.NoError(t, err)
	require.Equal(t, 25, m.Len())
}

func positionsOf(evs []events.ChunkLoadFail) []spatial.ChunkPosition {
	out := make([]spatial.ChunkPosition, len(evs))
	for i, ev := range evs {
		out[i] = ev.Position
	}
	return out
}
