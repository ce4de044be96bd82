package game

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zeusync/worldcore/internal/core/chunk"
	"github.com/zeusync/worldcore/internal/core/ecs"
	"github.com/zeusync/worldcore/internal/core/events"
	"github.com/zeusync/worldcore/internal/core/events/bus"
	"github.com/zeusync/worldcore/internal/core/observability/log"
	"github.com/zeusync/worldcore/internal/core/spatial"
)

// ErrChunkGeneration is reported for cells the generator could not produce.
var ErrChunkGeneration = errors.New("chunk generation failed")

// ChunkResult is what a ChunkSource hands back for a requested cell.
type ChunkResult struct {
	Position spatial.ChunkPosition
	Chunk    *chunk.Chunk
	Err      error
}

// ChunkSource produces chunk data. Request must not block; results are
// collected with Poll on a later call, possibly the same tick.
type ChunkSource interface {
	Request(pos spatial.ChunkPosition)
	Poll() []ChunkResult
}

// ChunkMap is the resource tracking which cells are loaded and how many
// participant views cover each of them.
type ChunkMap struct {
	source   ChunkSource
	loaded   map[spatial.ChunkPosition]*chunk.Handle
	pending  map[spatial.ChunkPosition]struct{}
	retry    map[spatial.ChunkPosition]struct{}
	interest map[spatial.ChunkPosition]int
	views    map[ecs.Entity]spatial.View

	viewUpdates bus.Reader[events.ViewUpdate]
	removals    bus.Reader[events.EntityRemove]
}

// NewChunkMap returns an empty map loading from source.
func NewChunkMap(source ChunkSource) *ChunkMap {
	return &ChunkMap{
		source:   source,
		loaded:   make(map[spatial.ChunkPosition]*chunk.Handle),
		pending:  make(map[spatial.ChunkPosition]struct{}),
		retry:    make(map[spatial.ChunkPosition]struct{}),
		interest: make(map[spatial.ChunkPosition]int),
		views:    make(map[ecs.Entity]spatial.View),
	}
}

// Get returns the handle of a loaded chunk.
func (m *ChunkMap) Get(pos spatial.ChunkPosition) (*chunk.Handle, bool) {
	h, ok := m.loaded[pos]
	return h, ok
}

// IsLoaded reports whether pos is in memory.
func (m *ChunkMap) IsLoaded(pos spatial.ChunkPosition) bool {
	_, ok := m.loaded[pos]
	return ok
}

// IsPending reports whether pos was requested and has not come back yet.
func (m *ChunkMap) IsPending(pos spatial.ChunkPosition) bool {
	_, ok := m.pending[pos]
	return ok
}

// Len returns the number of loaded chunks.
func (m *ChunkMap) Len() int {
	return len(m.loaded)
}

func (m *ChunkMap) acquire(pos spatial.ChunkPosition) {
	m.interest[pos]++
	if m.interest[pos] > 1 || m.IsLoaded(pos) || m.IsPending(pos) {
		return
	}
	m.pending[pos] = struct{}{}
	m.source.Request(pos)
}

func (m *ChunkMap) release(pos spatial.ChunkPosition) {
	if m.interest[pos] <= 1 {
		delete(m.interest, pos)
		delete(m.loaded, pos)
		delete(m.retry, pos)
		return
	}
	m.interest[pos]--
}

// LoadChunks requests chunks that entered some participant's view, unloads
// chunks no view covers anymore and publishes ChunkLoad / ChunkLoadFail for
// everything the source finished. Cells the source was too busy to accept
// are requested again on the next call while some view still covers them.
func LoadChunks(g *Game, m *ChunkMap) error {
	for _, ev := range m.viewUpdates.Read(g.Bus) {
		for _, pos := range ev.Added {
			m.acquire(pos)
		}
		for _, pos := range ev.Removed {
			m.release(pos)
		}
		m.views[ev.Player] = ev.NewView
	}

	for _, ev := range m.removals.Read(g.Bus) {
		view, ok := m.views[ev.Entity]
		if !ok {
			continue
		}
		for pos := range view.Chunks() {
			m.release(pos)
		}
		delete(m.views, ev.Entity)
	}

	for pos := range m.retry {
		delete(m.retry, pos)
		if m.interest[pos] == 0 || m.IsLoaded(pos) || m.IsPending(pos) {
			continue
		}
		m.pending[pos] = struct{}{}
		m.source.Request(pos)
	}

	for _, res := range m.source.Poll() {
		delete(m.pending, res.Position)
		err := res.Err
		if err == nil && res.Chunk == nil {
			err = fmt.Errorf("%w: %s: generator returned no chunk", ErrChunkGeneration, res.Position)
		}
		if errors.Is(err, ErrSourceBusy) {
			if m.interest[res.Position] > 0 {
				m.retry[res.Position] = struct{}{}
			}
			g.Logger.Debug("Chunk source busy",
				log.Stringer("chunk", res.Position))
			continue
		}
		if err != nil {
			g.Logger.Warn("Failed to load chunk",
				log.Stringer("chunk", res.Position),
				log.Error(err))
			bus.Publish(g.Bus, events.ChunkLoadFail{Position: res.Position, Err: err})
			continue
		}
		if m.interest[res.Position] == 0 {
			// nobody wants it anymore
			continue
		}
		handle := chunk.NewHandle(res.Chunk)
		m.loaded[res.Position] = handle
		bus.Publish(g.Bus, events.ChunkLoad{Position: res.Position, Chunk: handle})
	}
	return nil
}

// Generator produces the chunk for one cell.
type Generator func(pos spatial.ChunkPosition) (*chunk.Chunk, error)

// FlatGenerator fills every column up to height.
func FlatGenerator(height uint16) Generator {
	return func(pos spatial.ChunkPosition) (*chunk.Chunk, error) {
		c := chunk.New(pos)
		for x := 0; x < chunk.Width; x++ {
			for z := 0; z < chunk.Width; z++ {
				c.SetHeight(x, z, height)
			}
		}
		return c, nil
	}
}

// FlatChunkSource generates flat terrain at a fixed height. Requests are
// served on the next Poll.
type FlatChunkSource struct {
	Height uint16

	mu      sync.Mutex
	queued  []spatial.ChunkPosition
	invalid func(spatial.ChunkPosition) bool
}

// NewFlatChunkSource generates flat chunks synchronously.
func NewFlatChunkSource(height uint16) *FlatChunkSource {
	return &FlatChunkSource{Height: height}
}

// WithInvalid marks cells for which generation fails.
func (s *FlatChunkSource) WithInvalid(fn func(spatial.ChunkPosition) bool) *FlatChunkSource {
	s.invalid = fn
	return s
}

// Request queues pos; the result is available on the next Poll.
func (s *FlatChunkSource) Request(pos spatial.ChunkPosition) {
	s.mu.Lock()
	s.queued = append(s.queued, pos)
	s.mu.Unlock()
}

// Poll returns every result produced since the previous call.
func (s *FlatChunkSource) Poll() []ChunkResult {
	s.mu.Lock()
	queued := s.queued
	s.queued = nil
	s.mu.Unlock()

	generate := FlatGenerator(s.Height)
	out := make([]ChunkResult, 0, len(queued))
	for _, pos := range queued {
		if s.invalid != nil && s.invalid(pos) {
			out = append(out, ChunkResult{Position: pos, Err: ErrChunkGeneration})
			continue
		}
		c, err := generate(pos)
		out = append(out, ChunkResult{Position: pos, Chunk: c, Err: err})
	}
	return out
}
