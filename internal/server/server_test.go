package server

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zeusync/worldcore/internal/core/ecs"
	"github.com/zeusync/worldcore/internal/core/events"
	"github.com/zeusync/worldcore/internal/core/events/bus"
	"github.com/zeusync/worldcore/internal/core/observability/log"
	"github.com/zeusync/worldcore/internal/core/protocol"
	"github.com/zeusync/worldcore/internal/core/spatial"
	"github.com/zeusync/worldcore/internal/core/systems"
	"github.com/zeusync/worldcore/internal/game"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testOptions() Options {
	opts := DefaultOptions()
	opts.OutboundBuffer = 128
	opts.ViewDistance = 1
	return opts
}

func newTestServer(t *testing.T, options ...Option) (*game.Game, *Server, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	logger := log.FromZap(zap.New(core), log.LevelDebug)

	g := game.New(logger, nil)
	s := New(testOptions(), logger, nil, options...)
	ecs.InsertResource(g.Resources(), s)
	return g, s, logs
}

func join(t *testing.T, g *game.Game, s *Server, username string) (*Client, ecs.Entity) {
	t.Helper()
	c, err := s.Clients.Create(username, "test", s.opts.OutboundBuffer)
	require.NoError(t, err)
	require.NoError(t, JoinPlayers(g, s))
	e, ok := c.Player()
	require.True(t, ok)
	return c, e
}

func drainOutbound(c *Client) []protocol.Message {
	var out []protocol.Message
	for {
		select {
		case msg := <-c.Outbound():
			out = append(out, msg)
		default:
			return out
		}
	}
}

func ofKind[T protocol.Message](msgs []protocol.Message) []T {
	var out []T
	for _, m := range msgs {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func TestClient_ReceivedPacketsDrains(t *testing.T) {
	c := newClient(1, "alice", "test", 4)
	c.Push(protocol.KeepAlive{ID: 1})
	c.Push(protocol.KeepAlive{ID: 2})

	require.Equal(t, []protocol.Message{protocol.KeepAlive{ID: 1}, protocol.KeepAlive{ID: 2}}, c.ReceivedPackets())
	require.Empty(t, c.ReceivedPackets())
}

func TestClient_SendOverflowDisconnects(t *testing.T) {
	c := newClient(1, "alice", "test", 1)
	require.True(t, c.Send(protocol.KeepAlive{ID: 1}))
	require.False(t, c.Send(protocol.KeepAlive{ID: 2}))
	require.True(t, c.IsDisconnected())
	require.Equal(t, "outbound buffer full", c.DisconnectReason())
	require.EqualValues(t, 1, c.Dropped())
	require.False(t, c.Send(protocol.KeepAlive{ID: 3}))
}

func TestClients_MaxAndRemove(t *testing.T) {
	clients := NewClients(2)
	a, err := clients.Create("a", "", 1)
	require.NoError(t, err)
	b, err := clients.Create("b", "", 1)
	require.NoError(t, err)

	_, err = clients.Create("c", "", 1)
	require.ErrorIs(t, err, ErrMaxClientsReached)
	require.Equal(t, 2, clients.Len())
	require.Equal(t, []*Client{a, b}, clients.All())
	require.Equal(t, []*Client{a, b}, clients.TakeJoining())
	require.Empty(t, clients.TakeJoining())

	require.True(t, clients.Remove(a.ID()))
	require.False(t, clients.Remove(a.ID()))
	_, ok := clients.Get(a.ID())
	require.False(t, ok)

	_, err = clients.Create("c", "", 1)
	require.NoError(t, err)
}

func TestJoinPlayers(t *testing.T) {
	g, s, _ := newTestServer(t)
	c, e := join(t, g, s, "alice")

	id, err := ecs.Get[ClientID](g.World, e)
	require.NoError(t, err)
	require.Equal(t, c.ID(), *id)

	name, err := ecs.Get[game.Name](g.World, e)
	require.NoError(t, err)
	require.Equal(t, game.Name("alice"), *name)

	view, err := ecs.Get[spatial.View](g.World, e)
	require.NoError(t, err)
	require.True(t, view.IsEmpty())

	require.Equal(t, []events.PlayerJoin{{Player: e}}, bus.Read[events.PlayerJoin](g.Bus))
	require.Equal(t, []events.EntityCreate{{Entity: e}}, bus.Read[events.EntityCreate](g.Bus))

	msgs := drainOutbound(c)
	require.Len(t, msgs, 1)
	joined, ok := msgs[0].(protocol.JoinGame)
	require.True(t, ok)
	require.Equal(t, uint64(e), joined.Entity)
}

func TestClient_PlayerZeroEntity(t *testing.T) {
	g, s, _ := newTestServer(t)
	c, err := s.Clients.Create("alice", "test", 4)
	require.NoError(t, err)

	_, ok := c.Player()
	require.False(t, ok)

	require.NoError(t, JoinPlayers(g, s))
	e, ok := c.Player()
	require.True(t, ok)
	require.Zero(t, e.Index())
	require.Zero(t, e.Generation())
}

func TestHandlePackets_FailureIsIsolated(t *testing.T) {
	g, s, logs := newTestServer(t)
	alice, aliceEntity := join(t, g, s, "alice")
	bob, bobEntity := join(t, g, s, "bob")

	var handled []ecs.Entity
	s.Handlers = NewDispatcher().Register(protocol.KindKeepAlive,
		func(_ *game.Game, _ *Server, player ecs.Entity, _ protocol.Message) error {
			handled = append(handled, player)
			if player == aliceEntity {
				return errors.New("boom")
			}
			return nil
		})

	alice.Push(protocol.KeepAlive{ID: 1})
	bob.Push(protocol.KeepAlive{ID: 2})
	bob.Push(protocol.Disconnect{Reason: "unregistered kind"})

	require.NoError(t, HandlePackets(g, s))
	require.ElementsMatch(t, []ecs.Entity{aliceEntity, bobEntity}, handled)

	warnings := logs.FilterMessage("Failed to handle packet").All()
	require.Len(t, warnings, 2)
	players := []any{warnings[0].ContextMap()["player"], warnings[1].ContextMap()["player"]}
	require.ElementsMatch(t, []any{"alice", "bob"}, players)

	// queues were drained
	require.Empty(t, alice.ReceivedPackets())
	require.Empty(t, bob.ReceivedPackets())
}

func TestHandlePackets_MissingNameFailsRoutine(t *testing.T) {
	g, s, _ := newTestServer(t)
	c, e := join(t, g, s, "alice")
	require.NoError(t, ecs.Remove[game.Name](g.World, e))

	c.Push(protocol.Handshake{Username: "again"})
	err := HandlePackets(g, s)
	require.ErrorIs(t, err, ecs.ErrMissingComponent)
}

func TestDefaultHandlers(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	g, s, _ := newTestServer(t, WithClock(clock.Now))
	c, e := join(t, g, s, "alice")

	c.Push(protocol.PlayerPosition{X: 20, Y: 70, Z: -3})
	c.Push(protocol.ClientSettings{ViewDistance: 1000})
	c.Push(protocol.KeepAlive{ID: 5})
	require.NoError(t, HandlePackets(g, s))

	pos, err := ecs.Get[spatial.Position](g.World, e)
	require.NoError(t, err)
	require.Equal(t, spatial.Position{X: 20, Y: 70, Z: -3}, *pos)

	distance, err := ecs.Get[game.ViewDistance](g.World, e)
	require.NoError(t, err)
	require.Equal(t, game.ViewDistance(s.opts.MaxViewDistance), *distance)

	require.Equal(t, clock.now, c.LastKeepaliveAck())

	err = s.Handlers.Handle(g, s, e, protocol.ClientSettings{ViewDistance: -1})
	require.ErrorIs(t, err, ErrInvalidViewDistance)

	err = s.Handlers.Handle(g, s, e, protocol.JoinGame{})
	require.ErrorIs(t, err, ErrUnhandledMessage)

	require.NoError(t, s.Handlers.Handle(g, s, e, protocol.Disconnect{}))
	require.True(t, c.IsDisconnected())
}

func TestSendKeepalives_Interval(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	g, s, _ := newTestServer(t, WithClock(clock.Now))
	c, _ := join(t, g, s, "alice")
	drainOutbound(c)
	t0 := s.LastKeepalive

	clock.Advance(4 * time.Second)
	require.NoError(t, SendKeepalives(g, s))
	require.Empty(t, drainOutbound(c))
	require.Equal(t, t0, s.LastKeepalive)

	clock.Advance(time.Second)
	require.NoError(t, SendKeepalives(g, s))
	msgs := drainOutbound(c)
	require.Len(t, msgs, 1)
	require.Equal(t, protocol.KeepAlive{ID: clock.now.UnixMilli()}, msgs[0])
	require.Equal(t, clock.now, s.LastKeepalive)

	require.NoError(t, SendKeepalives(g, s))
	require.Empty(t, drainOutbound(c))
}

func TestRemoveDisconnected(t *testing.T) {
	g, s, logs := newTestServer(t)
	alice, aliceEntity := join(t, g, s, "alice")
	_, bobEntity := join(t, g, s, "bob")

	alice.Disconnect("bye")
	require.NoError(t, RemoveDisconnected(g, s))

	require.Equal(t, 1, s.Clients.Len())
	_, ok := s.Clients.Get(alice.ID())
	require.False(t, ok)
	require.False(t, ecs.Has[ClientID](g.World, aliceEntity))
	require.True(t, g.World.IsDespawning(aliceEntity))
	require.Contains(t, bus.Read[events.EntityRemove](g.Bus), events.EntityRemove{Entity: aliceEntity})

	left := logs.FilterMessage("Player left").All()
	require.Len(t, left, 1)
	require.Equal(t, "bye", left[0].ContextMap()["reason"])
	require.EqualValues(t, 0, left[0].ContextMap()["dropped"])

	g.EndTick()
	require.False(t, g.World.IsAlive(aliceEntity))
	require.True(t, g.World.IsAlive(bobEntity))
}

func TestJoinPlayers_SkipsClientsGoneBeforeJoining(t *testing.T) {
	g, s, _ := newTestServer(t)
	c, err := s.Clients.Create("ghost", "test", 4)
	require.NoError(t, err)
	c.Disconnect("gone")

	require.NoError(t, JoinPlayers(g, s))
	_, ok := c.Player()
	require.False(t, ok)
	require.Zero(t, s.Clients.Len())
}

func TestRegister_Order(t *testing.T) {
	g, s, _ := newTestServer(t)
	exec := systems.NewExecutor[*game.Game](nil, nil)
	Register(s, g, exec, game.NewFlatChunkSource(64))

	require.Equal(t, []string{
		"join_players",
		"handle_packets",
		"send_keepalives",
		"detect_chunk_crossings",
		"update_views",
		"load_chunks",
		"update_chunk_subscriptions",
		"remove_disconnected",
	}, exec.Names())
}

func TestChunkStreaming(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	g, s, _ := newTestServer(t, WithClock(clock.Now))
	exec := systems.NewExecutor[*game.Game](nil, nil)
	Register(s, g, exec, game.NewFlatChunkSource(64))

	c, err := s.Clients.Create("alice", "test", s.opts.OutboundBuffer)
	require.NoError(t, err)

	require.Zero(t, exec.Run(g))
	msgs := drainOutbound(c)
	require.Len(t, ofKind[protocol.JoinGame](msgs), 1)
	require.Len(t, ofKind[protocol.ChunkData](msgs), 9)
	require.Equal(t, 1, s.Subscribers(spatial.ChunkPosition{X: 1, Z: 1}))

	// one cell east: three columns enter, three leave
	c.Push(protocol.PlayerPosition{X: 16, Y: 64, Z: 0})
	require.Zero(t, exec.Run(g))
	msgs = drainOutbound(c)

	var loaded []spatial.ChunkPosition
	for _, m := range ofKind[protocol.ChunkData](msgs) {
		require.Len(t, m.Heights, 256)
		loaded = append(loaded, spatial.ChunkPosition{X: m.X, Z: m.Z})
	}
	require.ElementsMatch(t, []spatial.ChunkPosition{{X: 2, Z: -1}, {X: 2, Z: 0}, {X: 2, Z: 1}}, loaded)

	var unloaded []spatial.ChunkPosition
	for _, m := range ofKind[protocol.UnloadChunk](msgs) {
		unloaded = append(unloaded, spatial.ChunkPosition{X: m.X, Z: m.Z})
	}
	require.ElementsMatch(t, []spatial.ChunkPosition{{X: -1, Z: -1}, {X: -1, Z: 0}, {X: -1, Z: 1}}, unloaded)
	require.Zero(t, s.Subscribers(spatial.ChunkPosition{X: -1, Z: 0}))

	// leaving drops every subscription
	c.Disconnect("bye")
	require.Zero(t, exec.Run(g))
	require.Zero(t, exec.Run(g))
	require.Zero(t, s.Subscribers(spatial.ChunkPosition{X: 1, Z: 0}))
	require.Zero(t, s.Clients.Len())
}
