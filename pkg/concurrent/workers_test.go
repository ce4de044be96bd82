package concurrent

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorkers_ProcessesEverything(t *testing.T) {
	w := NewWorkers(4, 100, func(n int) int { return n * n })
	for i := range 10 {
		require.True(t, w.Submit(i))
	}

	var got []int
	require.Eventually(t, func() bool {
		got = append(got, w.Drain()...)
		return len(got) == 10
	}, 2*time.Second, 5*time.Millisecond)

	sort.Ints(got)
	require.Equal(t, []int{0, 1, 4, 9, 16, 25, 36, 49, 64, 81}, got)
	require.Empty(t, w.Drain())
	w.Close()
}

func TestWorkers_SubmitDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	w := NewWorkers(1, 1, func(n int) int {
		<-release
		return n
	})

	accepted := 0
	for i := range 10 {
		if w.Submit(i) {
			accepted++
		}
	}
	// one job held by the worker at most, one queued
	require.LessOrEqual(t, accepted, 2)
	require.GreaterOrEqual(t, accepted, 1)

	close(release)
	w.Close()
	require.Len(t, w.Drain(), accepted)
	require.False(t, w.Submit(1))
}
