package chunk

import (
	"sync"

	"github.com/zeusync/worldcore/internal/core/spatial"
)

// Width is the number of columns along each horizontal axis.
const Width = spatial.ChunkSize

// Chunk is the terrain data of one cell. Only a column heightmap is kept;
// block storage belongs to the generator that produces chunks.
type Chunk struct {
	Position spatial.ChunkPosition
	Heights  [Width * Width]uint16
}

// New returns a chunk at pos with every column at height zero.
func New(pos spatial.ChunkPosition) *Chunk {
	return &Chunk{Position: pos}
}

func columnIndex(x, z int) int {
	return z*Width + x
}

// Height returns the top of the column at local (x, z).
func (c *Chunk) Height(x, z int) uint16 {
	return c.Heights[columnIndex(x, z)]
}

func (c *Chunk) SetHeight(x, z int, h uint16) {
	c.Heights[columnIndex(x, z)] = h
}

// Handle shares a loaded chunk between the tick loop and I/O goroutines
// that serialize it.
type Handle struct {
	mu    sync.RWMutex
	chunk *Chunk
}

// NewHandle wraps c for shared access.
func NewHandle(c *Chunk) *Handle {
	return &Handle{chunk: c}
}

func (h *Handle) Position() spatial.ChunkPosition {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.chunk.Position
}

// Read calls fn with the chunk under a read lock.
func (h *Handle) Read(fn func(c *Chunk)) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn(h.chunk)
}
