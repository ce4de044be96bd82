package spatial

import (
	"fmt"
	"math"
)

// ChunkSize is the edge length of a cell in world units.
const ChunkSize = 16

// ChunkPosition addresses one cell of the 2D spatial grid.
type ChunkPosition struct {
	X int32 `json:"x" yaml:"x"`
	Z int32 `json:"z" yaml:"z"`
}

func (c ChunkPosition) String() string {
	return fmt.Sprintf("(%d, %d)", c.X, c.Z)
}

// DistanceSquaredTo avoids the square root; ordering is preserved since
// distances are non-negative.
func (c ChunkPosition) DistanceSquaredTo(o ChunkPosition) int64 {
	dx := int64(c.X) - int64(o.X)
	dz := int64(c.Z) - int64(o.Z)
	return dx*dx + dz*dz
}

// Position is a continuous world position.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Chunk returns the cell containing p. Negative coordinates round towards
// negative infinity so that -0.5 lands in cell -1.
func (p Position) Chunk() ChunkPosition {
	return ChunkPosition{
		X: int32(math.Floor(p.X / ChunkSize)),
		Z: int32(math.Floor(p.Z / ChunkSize)),
	}
}
