// Package client provides a websocket client SDK for worldcore servers.
package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/worldcore/internal/core/observability/log"
	"github.com/zeusync/worldcore/internal/core/protocol"
)

// Client is one player connection to a worldcore server.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	handlers     map[protocol.Kind][]MessageHandler
	handlerMutex sync.RWMutex

	connected atomic.Bool
	closed    atomic.Bool
	done      chan struct{}
	doneOnce  sync.Once
	reason    atomic.Value // string
	received  atomic.Uint64

	config Config
	logger log.Log

	workerGroup sync.WaitGroup
}

// Config holds configuration for the client
type Config struct {
	// ServerURL is the websocket endpoint, e.g. ws://localhost:8080/ws.
	ServerURL      string
	Username       string
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration

	// AutoKeepalive answers server keepalive probes.
	AutoKeepalive bool

	// Logger defaults to the process logger.
	Logger log.Log
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() Config {
	return Config{
		ServerURL:      "ws://localhost:8080/ws",
		ConnectTimeout: 10 * time.Second,
		WriteTimeout:   5 * time.Second,
		AutoKeepalive:  true,
	}
}

// MessageHandler is called on the receiver goroutine for every message of
// the kind it was registered for.
type MessageHandler func(msg protocol.Message) error

// NewClient fills in defaults for unset fields. It does not connect.
func NewClient(config Config) *Client {
	logger := config.Logger
	if logger == nil {
		logger = log.Provide()
	}

	return &Client{
		handlers: make(map[protocol.Kind][]MessageHandler),
		done:     make(chan struct{}),
		config:   config,
		logger:   logger.With(log.String("component", "client"), log.String("username", config.Username)),
	}
}

// Connect dials the server and sends the handshake.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if c.connected.Load() {
		return ErrAlreadyConnected
	}
	if c.config.Username == "" || c.config.ServerURL == "" {
		return errors.Wrap(ErrInvalidConfig, "server url and username are required")
	}

	c.logger.Info("Connecting to server", log.String("url", c.config.ServerURL))

	connectCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(connectCtx, c.config.ServerURL, nil)
	if err != nil {
		return errors.Wrapf(err, "dial %s", c.config.ServerURL)
	}
	c.conn = conn
	c.connected.Store(true)

	if err := c.Send(protocol.Handshake{Username: c.config.Username}); err != nil {
		_ = c.Close()
		return err
	}

	c.workerGroup.Add(1)
	go func() {
		defer c.workerGroup.Done()
		c.messageReceiver()
	}()

	c.logger.Info("Connected to server", log.String("remote_addr", conn.RemoteAddr().String()))
	return nil
}

// Send writes msg to the server.
func (c *Client) Send(msg protocol.Message) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if !c.connected.Load() {
		return ErrNotConnected
	}

	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.config.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}
	return errors.Wrap(c.conn.WriteMessage(websocket.TextMessage, data), "write frame")
}

// Move reports the player's position.
func (c *Client) Move(x, y, z float64, onGround bool) error {
	return c.Send(protocol.PlayerPosition{X: x, Y: y, Z: z, OnGround: onGround})
}

// SetViewDistance asks the server for a different view radius.
func (c *Client) SetViewDistance(distance int32) error {
	return c.Send(protocol.ClientSettings{ViewDistance: distance})
}

// OnMessage registers handler for kind. Handlers run in registration order.
func (c *Client) OnMessage(kind protocol.Kind, handler MessageHandler) {
	c.handlerMutex.Lock()
	defer c.handlerMutex.Unlock()
	c.handlers[kind] = append(c.handlers[kind], handler)
}

// Done is closed when the connection ends for any reason.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns ErrDisconnected with the server's reason once the server
// closed the session, nil otherwise.
func (c *Client) Err() error {
	if r, ok := c.reason.Load().(string); ok {
		return errors.Wrap(ErrDisconnected, r)
	}
	return nil
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Received counts messages read from the server.
func (c *Client) Received() uint64 {
	return c.received.Load()
}

// Close tells the server the client is leaving and closes the connection.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.logger.Info("Closing client")

	if c.conn != nil {
		if c.connected.Load() {
			c.writeMu.Lock()
			if data, err := protocol.Encode(protocol.Disconnect{Reason: "client closed"}); err == nil {
				_ = c.conn.WriteMessage(websocket.TextMessage, data)
			}
			c.writeMu.Unlock()
		}
		_ = c.conn.Close()
	}
	c.workerGroup.Wait()
	c.finish()
	return nil
}

func (c *Client) finish() {
	c.connected.Store(false)
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Client) messageReceiver() {
	c.logger.Debug("Message receiver started")
	defer c.logger.Debug("Message receiver stopped")

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.logger.Warn("Connection lost", log.Error(err))
			}
			c.finish()
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("Dropping undecodable message", log.Error(err))
			continue
		}
		c.received.Add(1)
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.KeepAlive:
		if c.config.AutoKeepalive {
			if err := c.Send(m); err != nil {
				c.logger.Warn("Failed to answer keepalive", log.Error(err))
			}
		}
	case protocol.Disconnect:
		c.reason.Store(m.Reason)
		c.logger.Info("Disconnected by server", log.String("reason", m.Reason))
	}

	c.handlerMutex.RLock()
	handlers := c.handlers[msg.Kind()]
	c.handlerMutex.RUnlock()

	for _, h := range handlers {
		if err := h(msg); err != nil {
			c.logger.Error("Message handler error",
				log.String("kind", string(msg.Kind())),
				log.Error(err))
		}
	}
}
