package mqtt311

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

// QUICConn wraps a QUIC stream to implement net.Conn.
type QUICConn struct {
	conn   quic.Connection
	stream quic.Stream
	mu     sync.Mutex
}

// Read reads data from the QUIC stream.
func (c *QUICConn) Read(b []byte) (int, error) {
	return c.stream.Read(b)
}

// Write writes data to the QUIC stream.
func (c *QUICConn) Write(b []byte) (int, error) {
	return c.stream.Write(b)
}

// Close closes the QUIC stream and connection.
func (c *QUICConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.stream.Close(); err != nil {
		return err
	}
	return c.conn.CloseWithError(0, "")
}

// LocalAddr returns the local network address.
func (c *QUICConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *QUICConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetDeadline sets the read and write deadlines.
func (c *QUICConn) SetDeadline(t time.Time) error {
	if err := c.stream.SetReadDeadline(t); err != nil {
		return err
	}
	return c.stream.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline.
func (c *QUICConn) SetReadDeadline(t time.Time) error {
	return c.stream.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline.
func (c *QUICConn) SetWriteDeadline(t time.Time) error {
	return c.stream.SetWriteDeadline(t)
}

// QUICDialer connects to MQTT brokers over QUIC.
type QUICDialer struct {
	// TLSConfig is the TLS configuration for the QUIC connection.
	// QUIC requires TLS 1.3.
	TLSConfig *tls.Config

	// QUICConfig is the QUIC configuration.
	QUICConfig *quic.Config
}

// NewQUICDialer creates a new QUIC dialer.
func NewQUICDialer(tlsConfig *tls.Config) *QUICDialer {
	if tlsConfig == nil {
		tlsConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
			NextProtos: []string{WebSocketSubprotocol},
		}
	}
	return &QUICDialer{TLSConfig: tlsConfig}
}

// Dial connects to the QUIC address in "host:port" form.
func (d *QUICDialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	tlsConfig := d.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
			NextProtos: []string{WebSocketSubprotocol},
		}
	}

	// Ensure ALPN is set for MQTT
	if len(tlsConfig.NextProtos) == 0 {
		tlsConfig = tlsConfig.Clone()
		tlsConfig.NextProtos = []string{WebSocketSubprotocol}
	}

	conn, err := quic.DialAddr(ctx, address, tlsConfig, d.QUICConfig)
	if err != nil {
		return nil, err
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "failed to open stream")
		return nil, err
	}

	return &QUICConn{
		conn:   conn,
		stream: stream,
	}, nil
}
