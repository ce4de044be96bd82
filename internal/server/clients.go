package server

import (
	"cmp"
	"encoding/binary"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

const clientShards = 16

type clientShard struct {
	mu      sync.RWMutex
	clients map[ClientID]*Client
}

// Clients maps ClientID to the live Client handle. It is shared between the
// tick goroutine and the transport goroutines.
type Clients struct {
	shards [clientShards]clientShard
	nextID atomic.Uint32
	count  atomic.Int64
	max    int

	joinMu  sync.Mutex
	joining []*Client
}

// NewClients creates a registry admitting at most maxClients clients. Zero
// or less means no limit.
func NewClients(maxClients int) *Clients {
	c := &Clients{max: maxClients}
	for i := range c.shards {
		c.shards[i].clients = make(map[ClientID]*Client)
	}
	return c
}

func (c *Clients) shard(id ClientID) *clientShard {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(id))
	return &c.shards[xxhash.Sum64(buf[:])%clientShards]
}

// Create registers a new client and queues it for joining on the next tick.
func (c *Clients) Create(username, remote string, outbound int) (*Client, error) {
	if n := c.count.Add(1); c.max > 0 && n > int64(c.max) {
		c.count.Add(-1)
		return nil, ErrMaxClientsReached
	}

	client := newClient(ClientID(c.nextID.Add(1)), username, remote, outbound)

	s := c.shard(client.id)
	s.mu.Lock()
	s.clients[client.id] = client
	s.mu.Unlock()

	c.joinMu.Lock()
	c.joining = append(c.joining, client)
	c.joinMu.Unlock()

	return client, nil
}

// Get returns the client registered under id.
func (c *Clients) Get(id ClientID) (*Client, bool) {
	s := c.shard(id)
	s.mu.RLock()
	client, ok := s.clients[id]
	s.mu.RUnlock()
	return client, ok
}

// Remove drops id from the registry. It reports whether id was present.
func (c *Clients) Remove(id ClientID) bool {
	s := c.shard(id)
	s.mu.Lock()
	_, ok := s.clients[id]
	delete(s.clients, id)
	s.mu.Unlock()

	if ok {
		c.count.Add(-1)
	}
	return ok
}

// Len returns the number of registered clients, joined or not.
func (c *Clients) Len() int {
	return int(c.count.Load())
}

// All returns a snapshot of every registered client ordered by id.
func (c *Clients) All() []*Client {
	out := make([]*Client, 0, c.Len())
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		for _, client := range s.clients {
			out = append(out, client)
		}
		s.mu.RUnlock()
	}
	slices.SortFunc(out, func(a, b *Client) int {
		return cmp.Compare(a.id, b.id)
	})
	return out
}

// TakeJoining returns the clients created since the previous call.
func (c *Clients) TakeJoining() []*Client {
	c.joinMu.Lock()
	defer c.joinMu.Unlock()

	joining := c.joining
	c.joining = nil
	return joining
}
