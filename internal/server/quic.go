package server

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/worldcore/internal/core/observability/log"
	"github.com/zeusync/worldcore/internal/core/protocol"
)

// ALPN is the application protocol negotiated on QUIC connections.
const ALPN = "worldcore"

const maxQUICFrame = 1 << 20

// quicConn carries newline delimited JSON envelopes on the first
// bidirectional stream the client opens.
type quicConn struct {
	conn   *quic.Conn
	stream *quic.Stream
	reader *bufio.Reader

	writeTimeout time.Duration
	writeMu      sync.Mutex
	closeOnce    sync.Once
}

func newQUICConn(conn *quic.Conn, stream *quic.Stream, writeTimeout time.Duration) *quicConn {
	return &quicConn{
		conn:         conn,
		stream:       stream,
		reader:       bufio.NewReaderSize(stream, 4096),
		writeTimeout: writeTimeout,
	}
}

func (c *quicConn) ReadMessage() (protocol.Message, error) {
	line, err := c.reader.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		buf := append([]byte(nil), line...)
		for errors.Is(err, bufio.ErrBufferFull) && len(buf) < maxQUICFrame {
			line, err = c.reader.ReadSlice('\n')
			buf = append(buf, line...)
		}
		line = buf
	}
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return nil, errors.New("quic frame too large")
		}
		return nil, errors.Wrap(err, "read quic stream")
	}
	return protocol.Decode(line)
}

func (c *quicConn) WriteMessage(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		if err := c.stream.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return errors.Wrap(err, "set write deadline")
		}
	}
	_, err = c.stream.Write(data)
	return errors.Wrap(err, "write quic stream")
}

func (c *quicConn) SetReadDeadline(t time.Time) error {
	return c.stream.SetReadDeadline(t)
}

func (c *quicConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *quicConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.stream.Close()
		err = c.conn.CloseWithError(0, "closed")
	})
	return err
}

// QUICListener accepts QUIC connections and serves them on a Server.
type QUICListener struct {
	ln     *quic.Listener
	srv    *Server
	logger log.Log
}

// ListenQUIC starts listening on addr. A nil tlsConf gets a self-signed
// certificate.
func (s *Server) ListenQUIC(addr string, tlsConf *tls.Config) (*QUICListener, error) {
	if tlsConf == nil {
		var err error
		if tlsConf, err = SelfSignedTLS(); err != nil {
			return nil, err
		}
	}

	ln, err := quic.ListenAddr(addr, tlsConf, &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to start QUIC listener")
	}

	l := &QUICListener{
		ln:     ln,
		srv:    s,
		logger: s.logger.With(log.String("transport", "quic")),
	}
	l.logger.Info("QUIC listening", log.String("addr", ln.Addr().String()))
	return l, nil
}

// Addr returns the bound UDP address.
func (l *QUICListener) Addr() net.Addr {
	return l.ln.Addr()
}

// Serve accepts connections until ctx is cancelled or the listener closes.
func (l *QUICListener) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := l.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, quic.ErrServerClosed) {
				return nil
			}
			return errors.Wrap(err, "accept quic connection")
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			l.handle(ctx, conn)
		}()
	}
}

func (l *QUICListener) handle(ctx context.Context, conn *quic.Conn) {
	streamCtx, cancel := context.WithTimeout(ctx, max(l.srv.opts.HandshakeTimeout, time.Second))
	stream, err := conn.AcceptStream(streamCtx)
	cancel()
	if err != nil {
		l.logger.Debug("No stream opened",
			log.String("remote_addr", conn.RemoteAddr().String()),
			log.Error(err))
		_ = conn.CloseWithError(0, "no stream")
		return
	}
	_ = l.srv.Serve(ctx, newQUICConn(conn, stream, l.srv.opts.WriteTimeout))
}

// Close stops accepting connections.
func (l *QUICListener) Close() error {
	return l.ln.Close()
}

// LoadTLS reads a certificate pair for the QUIC listener.
func LoadTLS(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load TLS certificate")
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{ALPN},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// SelfSignedTLS generates a throwaway certificate for development.
func SelfSignedTLS() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, errors.Wrap(err, "generate key")
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{Organization: []string{"worldcore"}},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		DNSNames:     []string{"localhost"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, errors.Wrap(err, "create certificate")
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, errors.Wrap(err, "load generated certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{ALPN},
		MinVersion:   tls.VersionTLS13,
	}, nil
}
