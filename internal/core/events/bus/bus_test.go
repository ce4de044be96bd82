package bus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type joined struct{ name string }
type left struct{ name string }

type testObserver struct {
	published map[string]int
	expired   map[string]int
}

func (o *testObserver) OnPublish(kind string)           { o.published[kind]++ }
func (o *testObserver) OnExpire(kind string, count int) { o.expired[kind] += count }

func TestBus_KindsAreIsolated(t *testing.T) {
	b := New()
	Publish(b, joined{"a"})
	Publish(b, joined{"b"})
	Publish(b, left{"c"})

	require.Equal(t, []joined{{"a"}, {"b"}}, Read[joined](b))
	require.Equal(t, []left{{"c"}}, Read[left](b))
	require.Equal(t, 3, b.Len())
}

func TestBus_ReadIsNonDestructive(t *testing.T) {
	b := New()
	Publish(b, joined{"a"})

	require.Len(t, Read[joined](b), 1)
	require.Len(t, Read[joined](b), 1)
	require.Equal(t, 1, Pending[joined](b))
}

func TestBus_DrainConsumes(t *testing.T) {
	b := New()
	Publish(b, joined{"a"})
	Publish(b, joined{"b"})

	require.Equal(t, []joined{{"a"}, {"b"}}, Drain[joined](b))
	require.Empty(t, Drain[joined](b))
	require.Empty(t, Read[joined](b))
}

func TestBus_EventsLiveForOneFollowingTick(t *testing.T) {
	b := New()

	// tick 0
	Publish(b, joined{"early"})
	b.Advance()

	// tick 1: still visible to routines that ran before the publisher
	require.Equal(t, []joined{{"early"}}, Read[joined](b))
	Publish(b, joined{"late"})
	b.Advance()

	// tick 2: only the tick 1 event remains
	require.Equal(t, []joined{{"late"}}, Read[joined](b))
	b.Advance()

	require.Empty(t, Read[joined](b))
	require.Equal(t, uint64(3), b.Tick())
}

func TestBus_Observer(t *testing.T) {
	b := New()
	obs := &testObserver{published: map[string]int{}, expired: map[string]int{}}
	b.AddObserver(obs)

	Publish(b, joined{"a"})
	Publish(b, joined{"b"})
	b.Advance()
	b.Advance()

	require.Equal(t, 2, obs.published["bus.joined"])
	require.Equal(t, 2, obs.expired["bus.joined"])
}

func TestReader_SeesEachEventOnce(t *testing.T) {
	b := New()
	var early, late Reader[joined]

	// tick 0: early runs before the publisher, late after it
	require.Empty(t, early.Read(b))
	Publish(b, joined{"a"})
	require.Equal(t, []joined{{"a"}}, late.Read(b))
	b.Advance()

	// tick 1
	require.Equal(t, []joined{{"a"}}, early.Read(b))
	Publish(b, joined{"b"})
	require.Equal(t, []joined{{"b"}}, late.Read(b))
	b.Advance()

	// tick 2
	require.Equal(t, []joined{{"b"}}, early.Read(b))
	require.Empty(t, late.Read(b))
}

func TestReader_SkipsExpiredEvents(t *testing.T) {
	b := New()
	var r Reader[joined]
	Publish(b, joined{"gone"})
	b.Advance()
	b.Advance()
	Publish(b, joined{"fresh"})

	require.Equal(t, []joined{{"fresh"}}, r.Read(b))
}
