package game

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zeusync/worldcore/internal/core/spatial"
	"github.com/zeusync/worldcore/pkg/concurrent"
)

// ErrSourceBusy means the request queue was full. The cell may be requested again.
var ErrSourceBusy = errors.New("chunk source queue full")

// AsyncChunkSource runs a Generator on background workers. Results show up
// in Poll once a worker finished them, usually a few ticks later.
type AsyncChunkSource struct {
	workers *concurrent.Workers[spatial.ChunkPosition, ChunkResult]

	mu       sync.Mutex
	rejected []ChunkResult
}

// NewAsyncChunkSource starts workers goroutines sharing a queue of the given size.
func NewAsyncChunkSource(workers, queue int, generate Generator) *AsyncChunkSource {
	return &AsyncChunkSource{
		workers: concurrent.NewWorkers(workers, queue, func(pos spatial.ChunkPosition) ChunkResult {
			c, err := generate(pos)
			if err != nil {
				err = fmt.Errorf("%w: %s: %w", ErrChunkGeneration, pos, err)
			}
			return ChunkResult{Position: pos, Chunk: c, Err: err}
		}),
	}
}

// Request never blocks. A request that does not fit the queue fails with
// ErrSourceBusy on the next Poll.
func (s *AsyncChunkSource) Request(pos spatial.ChunkPosition) {
	if s.workers.Submit(pos) {
		return
	}
	s.mu.Lock()
	s.rejected = append(s.rejected, ChunkResult{Position: pos, Err: ErrSourceBusy})
	s.mu.Unlock()
}

// Poll returns the results finished since the previous call without blocking.
func (s *AsyncChunkSource) Poll() []ChunkResult {
	s.mu.Lock()
	out := s.rejected
	s.rejected = nil
	s.mu.Unlock()
	return append(out, s.workers.Drain()...)
}

// Close waits for in-flight generation to finish.
func (s *AsyncChunkSource) Close() error {
	s.workers.Close()
	return nil
}
