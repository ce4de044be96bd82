package spatial

import (
	"iter"
	"slices"
)

// View is the square region of cells a participant is interested in: every
// cell whose Chebyshev distance to Center is at most Distance. A View is a
// value; replace it rather than mutating it.
type View struct {
	Center   ChunkPosition
	Distance int32
}

// NewView covers every chunk within distance of center on both axes.
func NewView(center ChunkPosition, distance int32) View {
	if distance < 0 {
		distance = 0
	}
	return View{Center: center, Distance: distance}
}

// Empty is a view covering no cells, used as the "old" view of a freshly
// joined participant.
func Empty() View {
	return View{Distance: -1}
}

// IsEmpty reports whether v covers no chunk.
func (v View) IsEmpty() bool {
	return v.Distance < 0
}

func (v View) minX() int32 { return v.Center.X - v.Distance }
func (v View) maxX() int32 { return v.Center.X + v.Distance }
func (v View) minZ() int32 { return v.Center.Z - v.Distance }
func (v View) maxZ() int32 { return v.Center.Z + v.Distance }

// Contains reports whether pos is covered by v.
func (v View) Contains(pos ChunkPosition) bool {
	if v.IsEmpty() {
		return false
	}
	return pos.X >= v.minX() && pos.X <= v.maxX() &&
		pos.Z >= v.minZ() && pos.Z <= v.maxZ()
}

// Len is the number of covered cells.
func (v View) Len() int {
	if v.IsEmpty() {
		return 0
	}
	side := int(2*v.Distance + 1)
	return side * side
}

// Chunks enumerates covered cells, x-major then z ascending.
func (v View) Chunks() iter.Seq[ChunkPosition] {
	return func(yield func(ChunkPosition) bool) {
		if v.IsEmpty() {
			return
		}
		for x := v.minX(); x <= v.maxX(); x++ {
			for z := v.minZ(); z <= v.maxZ(); z++ {
				if !yield(ChunkPosition{X: x, Z: z}) {
					return
				}
			}
		}
	}
}

// Difference enumerates cells in v that are not in other. No ordering
// beyond the enumeration order of Chunks is implied.
func (v View) Difference(other View) iter.Seq[ChunkPosition] {
	return func(yield func(ChunkPosition) bool) {
		for pos := range v.Chunks() {
			if other.Contains(pos) {
				continue
			}
			if !yield(pos) {
				return
			}
		}
	}
}

// Equal compares the covered cell sets.
func (v View) Equal(other View) bool {
	if v.IsEmpty() || other.IsEmpty() {
		return v.IsEmpty() == other.IsEmpty()
	}
	return v == other
}

// SortedDifference collects v \ other ordered by ascending squared distance
// from v's center. Ties keep enumeration order.
func (v View) SortedDifference(other View) []ChunkPosition {
	out := slices.Collect(v.Difference(other))
	slices.SortStableFunc(out, func(a, b ChunkPosition) int {
		da, db := a.DistanceSquaredTo(v.Center), b.DistanceSquaredTo(v.Center)
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		default:
			return 0
		}
	})
	return out
}
