package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/worldcore/internal/core/ecs"
	"github.com/zeusync/worldcore/internal/core/protocol"
)

// ClientID links a player entity to its entry in the Clients registry.
type ClientID uint32

// Client is the server side of one connection. Transport goroutines push
// inbound messages and drain Outbound; the tick goroutine drains the inbound
// queue and calls Send.
type Client struct {
	id       ClientID
	session  uuid.UUID
	username string
	remote   string

	mu       sync.Mutex
	received []protocol.Message

	outbound chan protocol.Message
	done     chan struct{}
	once     sync.Once
	reason   atomic.Value // string

	player       atomic.Uint64
	joined       atomic.Bool
	lastAck      atomic.Int64
	dropped      atomic.Uint64
	disconnected atomic.Bool
}

func newClient(id ClientID, username, remote string, outbound int) *Client {
	if outbound <= 0 {
		outbound = 1
	}
	return &Client{
		id:       id,
		session:  uuid.New(),
		username: username,
		remote:   remote,
		outbound: make(chan protocol.Message, outbound),
		done:     make(chan struct{}),
	}
}

// ID is the key of the client in the Clients registry.
func (c *Client) ID() ClientID { return c.id }

// Session is unique per connection, including reconnects under the same name.
func (c *Client) Session() uuid.UUID { return c.session }
func (c *Client) Username() string   { return c.username }
func (c *Client) RemoteAddr() string { return c.remote }

// Player returns the entity spawned for this client, if it joined already.
func (c *Client) Player() (ecs.Entity, bool) {
	if !c.joined.Load() {
		return 0, false
	}
	return ecs.Entity(c.player.Load()), true
}

func (c *Client) setPlayer(e ecs.Entity) {
	c.player.Store(uint64(e))
	c.joined.Store(true)
}

// Push appends msg to the inbound queue.
func (c *Client) Push(msg protocol.Message) {
	c.mu.Lock()
	c.received = append(c.received, msg)
	c.mu.Unlock()
}

// ReceivedPackets removes and returns every message received since the last
// call, in arrival order. It never blocks on I/O.
func (c *Client) ReceivedPackets() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.received) == 0 {
		return nil
	}
	msgs := c.received
	c.received = nil
	return msgs
}

// Send queues msg for the writer goroutine. A client whose outbound buffer
// is full is disconnected; it could not have kept up anyway.
func (c *Client) Send(msg protocol.Message) bool {
	if c.disconnected.Load() {
		return false
	}
	select {
	case c.outbound <- msg:
		return true
	default:
		c.dropped.Add(1)
		c.Disconnect("outbound buffer full")
		return false
	}
}

// Outbound is drained by the transport writer.
func (c *Client) Outbound() <-chan protocol.Message {
	return c.outbound
}

// Done is closed once the client is disconnected.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Disconnect marks the client as gone. The transport closes the connection
// and RemoveDisconnected despawns the player on the next tick.
func (c *Client) Disconnect(reason string) {
	c.once.Do(func() {
		c.reason.Store(reason)
		c.disconnected.Store(true)
		close(c.done)
	})
}

// IsDisconnected reports whether Disconnect was called.
func (c *Client) IsDisconnected() bool {
	return c.disconnected.Load()
}

// DisconnectReason is empty while the client is connected.
func (c *Client) DisconnectReason() string {
	if r, ok := c.reason.Load().(string); ok {
		return r
	}
	return ""
}

// LastKeepaliveAck returns when the client last answered a keepalive.
func (c *Client) LastKeepaliveAck() time.Time {
	ns := c.lastAck.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (c *Client) ackKeepalive(at time.Time) {
	c.lastAck.Store(at.UnixNano())
}

// Dropped counts messages refused because the outbound buffer was full.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}
