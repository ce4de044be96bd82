package spatial

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func cellSet(v View) map[ChunkPosition]struct{} {
	out := make(map[ChunkPosition]struct{})
	for c := range v.Chunks() {
		out[c] = struct{}{}
	}
	return out
}

func TestPosition_Chunk(t *testing.T) {
	require.Equal(t, ChunkPosition{0, 0}, Position{X: 0, Z: 15.9}.Chunk())
	require.Equal(t, ChunkPosition{1, 0}, Position{X: 16, Z: 0}.Chunk())
	require.Equal(t, ChunkPosition{-1, -1}, Position{X: -0.5, Z: -16}.Chunk())
	require.Equal(t, ChunkPosition{-2, 0}, Position{X: -16.1, Z: 3}.Chunk())
}

func TestView_Coverage(t *testing.T) {
	v := NewView(ChunkPosition{0, 0}, 1)
	require.Equal(t, 9, v.Len())
	require.Len(t, cellSet(v), 9)
	require.True(t, v.Contains(ChunkPosition{1, -1}))
	require.False(t, v.Contains(ChunkPosition{2, 0}))

	require.Equal(t, 0, Empty().Len())
	require.False(t, Empty().Contains(ChunkPosition{}))
	require.Equal(t, 1, NewView(ChunkPosition{5, 5}, 0).Len())
}

func TestView_DifferenceIsSymmetricDifference(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		o := NewView(ChunkPosition{int32(rng.Intn(9) - 4), int32(rng.Intn(9) - 4)}, int32(rng.Intn(4)))
		n := NewView(ChunkPosition{int32(rng.Intn(9) - 4), int32(rng.Intn(9) - 4)}, int32(rng.Intn(4)))

		added := slices.Collect(n.Difference(o))
		removed := slices.Collect(o.Difference(n))

		oSet, nSet := cellSet(o), cellSet(n)
		want := make(map[ChunkPosition]struct{})
		for c := range oSet {
			if _, ok := nSet[c]; !ok {
				want[c] = struct{}{}
			}
		}
		for c := range nSet {
			if _, ok := oSet[c]; !ok {
				want[c] = struct{}{}
			}
		}

		got := make(map[ChunkPosition]struct{})
		for _, c := range added {
			_, inOld := oSet[c]
			require.False(t, inOld, "added cell %v already in old view", c)
			got[c] = struct{}{}
		}
		for _, c := range removed {
			_, inNew := nSet[c]
			require.False(t, inNew, "removed cell %v still in new view", c)
			_, dup := got[c]
			require.False(t, dup, "cell %v both added and removed", c)
			got[c] = struct{}{}
		}
		require.Equal(t, want, got)
	}
}

func TestView_SortedDifferenceOrdersByDistance(t *testing.T) {
	o := NewView(ChunkPosition{0, 0}, 3)
	n := NewView(ChunkPosition{2, -1}, 3)

	added := n.SortedDifference(o)
	require.NotEmpty(t, added)
	for i := 1; i < len(added); i++ {
		require.LessOrEqual(t,
			added[i-1].DistanceSquaredTo(n.Center),
			added[i].DistanceSquaredTo(n.Center))
	}

	// deterministic
	require.Equal(t, added, n.SortedDifference(o))
}

func TestView_EqualViewsHaveNoDifference(t *testing.T) {
	v := NewView(ChunkPosition{3, -2}, 2)
	require.Empty(t, v.SortedDifference(v))
	require.True(t, v.Equal(NewView(ChunkPosition{3, -2}, 2)))
	require.True(t, Empty().Equal(View{Distance: -5}))
	require.False(t, Empty().Equal(NewView(ChunkPosition{}, 0)))
}

func TestView_FromEmptyCoversEverything(t *testing.T) {
	n := NewView(ChunkPosition{0, 0}, 2)
	added := n.SortedDifference(Empty())
	require.Len(t, added, 25)
	require.Equal(t, ChunkPosition{0, 0}, added[0])
}
