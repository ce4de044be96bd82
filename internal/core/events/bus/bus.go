package bus

import (
	"reflect"
	"sync"
)

// Bus is a set of typed, per-kind event queues owned by the simulation
// context.
//
// Key characteristics:
//   - Kind-based queues: each Go type gets its own queue; Publish[T] and
//     Read[T] never see events of another type.
//   - Tick-scoped lifetime: an event published during tick T is visible to
//     every later reader in tick T and to every reader in tick T+1. Advance,
//     called once at the end of each tick, drops events older than that.
//   - Ordered: events of one kind are returned in publish order.
//   - Optional observability through Observer.
//
// All methods are safe for concurrent use, although the tick loop is
// expected to be the only publisher and consumer.
type Bus struct {
	mu        sync.Mutex
	tick      uint64
	queues    map[reflect.Type]queue
	observers []Observer
}

// Observer is notified about publishes and expirations. Observers are
// called with the bus lock held and must not call back into the bus.
type Observer interface {
	OnPublish(kind string)
	OnExpire(kind string, count int)
}

type queue interface {
	expire(before uint64) int
	size() int
	kind() string
}

type entry[T any] struct {
	tick  uint64
	seq   uint64
	event T
}

type typedQueue[T any] struct {
	name    string
	nextSeq uint64
	entries []entry[T]
}

func (q *typedQueue[T]) expire(before uint64) int {
	n := 0
	for n < len(q.entries) && q.entries[n].tick < before {
		n++
	}
	if n == 0 {
		return 0
	}
	clear(q.entries[:n])
	q.entries = append(q.entries[:0], q.entries[n:]...)
	return n
}

func (q *typedQueue[T]) size() int    { return len(q.entries) }
func (q *typedQueue[T]) kind() string { return q.name }

// New creates an empty bus at tick zero.
func New() *Bus {
	return &Bus{queues: make(map[reflect.Type]queue)}
}

func queueFor[T any](b *Bus) *typedQueue[T] {
	t := reflect.TypeFor[T]()
	if q, ok := b.queues[t]; ok {
		return q.(*typedQueue[T])
	}
	q := &typedQueue[T]{name: t.String()}
	b.queues[t] = q
	return q
}

// Publish appends event to the queue of its kind.
func Publish[T any](b *Bus, event T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := queueFor[T](b)
	q.entries = append(q.entries, entry[T]{tick: b.tick, seq: q.nextSeq, event: event})
	q.nextSeq++
	for _, obs := range b.observers {
		obs.OnPublish(q.name)
	}
}

// Read returns every live event of kind T without consuming them, so any
// number of routines can observe the same events.
func Read[T any](b *Bus) []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := queueFor[T](b)
	out := make([]T, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.event
	}
	return out
}

// Reader is a per-consumer cursor over one kind. Each event is returned
// by a given Reader at most once, no matter how many ticks it stays live.
// The zero value starts at the oldest live event.
type Reader[T any] struct {
	next uint64
}

// Read returns the live events of kind T this reader has not seen yet.
func (r *Reader[T]) Read(b *Bus) []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := queueFor[T](b)
	var out []T
	for _, e := range q.entries {
		if e.seq >= r.next {
			out = append(out, e.event)
		}
	}
	r.next = q.nextSeq
	return out
}

// Drain returns every live event of kind T and removes them from the bus.
func Drain[T any](b *Bus) []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := queueFor[T](b)
	out := make([]T, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.event
	}
	clear(q.entries)
	q.entries = q.entries[:0]
	return out
}

// Pending reports how many live events of kind T are queued.
func Pending[T any](b *Bus) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return queueFor[T](b).size()
}

// Advance closes the current tick: events published before it are dropped
// and the tick counter moves forward.
func (b *Bus) Advance() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, q := range b.queues {
		if n := q.expire(b.tick); n > 0 {
			for _, obs := range b.observers {
				obs.OnExpire(q.kind(), n)
			}
		}
	}
	b.tick++
}

// Tick returns the current tick number.
func (b *Bus) Tick() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tick
}

// Len returns the number of live events across all kinds.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, q := range b.queues {
		n += q.size()
	}
	return n
}

// AddObserver registers obs for every kind, including kinds seen later.
func (b *Bus) AddObserver(obs Observer) {
	b.mu.Lock()
	b.observers = append(b.observers, obs)
	b.mu.Unlock()
}
