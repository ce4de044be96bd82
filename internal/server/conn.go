package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/zeusync/worldcore/internal/core/observability/log"
	"github.com/zeusync/worldcore/internal/core/protocol"
)

// Conn is a message oriented connection provided by a transport.
type Conn interface {
	ReadMessage() (protocol.Message, error)
	WriteMessage(msg protocol.Message) error
	SetReadDeadline(t time.Time) error
	RemoteAddr() string
	Close() error
}

// Serve runs one connection until it fails, the client is disconnected or
// ctx is cancelled. The first message must be a Handshake.
func (s *Server) Serve(ctx context.Context, conn Conn) error {
	defer conn.Close()

	username, err := s.handshake(conn)
	if err != nil {
		s.logger.Debug("Handshake failed",
			log.String("remote_addr", conn.RemoteAddr()),
			log.Error(err))
		return err
	}

	client, err := s.Clients.Create(username, conn.RemoteAddr(), s.opts.OutboundBuffer)
	if err != nil {
		s.logger.Warn("Rejecting connection",
			log.String("remote_addr", conn.RemoteAddr()),
			log.Error(err))
		_ = conn.WriteMessage(protocol.Disconnect{Reason: "server full"})
		return err
	}

	logger := s.logger.With(
		log.Uint32("client_id", uint32(client.id)),
		log.String("session", client.session.String()))
	logger.Info("Client connected",
		log.String("username", username),
		log.String("remote_addr", client.remote),
		log.Int("total_clients", s.Clients.Len()))

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return s.readLoop(conn, client)
	})
	group.Go(func() error {
		return s.writeLoop(gctx, conn, client)
	})
	err = group.Wait()
	client.Disconnect("connection closed")

	logger.Info("Client disconnected",
		log.String("reason", client.DisconnectReason()),
		log.Error(err))
	return nil
}

func (s *Server) handshake(conn Conn) (string, error) {
	if s.opts.HandshakeTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.opts.HandshakeTimeout)); err != nil {
			return "", pkgerrors.Wrap(err, "set handshake deadline")
		}
	}

	msg, err := conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	hs, ok := msg.(protocol.Handshake)
	if !ok {
		return "", fmt.Errorf("%w: expected handshake, got %s", ErrHandshake, msg.Kind())
	}
	if hs.Username == "" {
		return "", fmt.Errorf("%w: empty username", ErrHandshake)
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return "", pkgerrors.Wrap(err, "clear handshake deadline")
	}
	return hs.Username, nil
}

// readLoop pushes decoded messages to the client's inbound queue. Messages
// above the configured rate are dropped.
func (s *Server) readLoop(conn Conn, client *Client) error {
	limit := rate.Inf
	if s.opts.InboundRate > 0 {
		limit = rate.Limit(s.opts.InboundRate)
	}
	limiter := rate.NewLimiter(limit, max(s.opts.InboundBurst, 1))

	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownKind) || errors.Is(err, protocol.ErrMalformed) {
				s.logger.Debug("Dropping malformed message",
					log.Uint32("client_id", uint32(client.id)),
					log.Error(err))
				continue
			}
			client.Disconnect("read failed")
			return err
		}
		if !limiter.Allow() {
			continue
		}
		client.Push(msg)
	}
}

// writeLoop sends queued messages until the client disconnects, then tells
// the peer why and closes the connection so readLoop returns.
func (s *Server) writeLoop(ctx context.Context, conn Conn, client *Client) error {
	defer conn.Close()

	for {
		select {
		case msg := <-client.Outbound():
			if err := conn.WriteMessage(msg); err != nil {
				client.Disconnect("write failed")
				return err
			}
		case <-client.Done():
			_ = conn.WriteMessage(protocol.Disconnect{Reason: client.DisconnectReason()})
			return nil
		case <-ctx.Done():
			client.Disconnect("server shutting down")
			_ = conn.WriteMessage(protocol.Disconnect{Reason: client.DisconnectReason()})
			return nil
		}
	}
}
