package mqtt311

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// TransportEvents is implemented by the connection facade and bound to
// a Transport. The transport invokes these callbacks on its own I/O
// execution context.
type TransportEvents interface {
	// OnConnected is raised after every successful broker handshake,
	// both the first connect and transport-driven reconnects.
	OnConnected(sessionPresent bool)

	// OnConnectFailed is raised when the handshake fails before the
	// first successful connect.
	OnConnectFailed(err error)

	// OnAck is raised for acknowledgement packets that complete a
	// client operation: PUBACK, PUBCOMP, SUBACK, UNSUBACK.
	OnAck(pkt Packet)

	// OnMessage is raised for every received application message,
	// after the transport has performed any QoS acknowledgement
	// plumbing of its own.
	OnMessage(msg *Message)

	// OnInterrupted is raised when the transport is lost unexpectedly.
	// The transport keeps reconnecting underneath; every successful
	// attempt is reported through OnConnected.
	OnInterrupted(err error)

	// OnError is raised for transport errors not tied to any pending
	// operation.
	OnError(err error)

	// OnClosed is raised once after Close, when the transport has
	// confirmed the connection is down.
	OnClosed()
}

// Transport is the wire collaborator a client connection drives. It
// owns socket I/O, packet framing and the reconnection policy; the
// client only reacts to the events it raises.
type Transport interface {
	// Bind registers the event sink. Must be called before Connect.
	Bind(events TransportEvents)

	// Connect starts the connection attempt. The outcome is reported
	// through OnConnected or OnConnectFailed.
	Connect(ctx context.Context) error

	// Send writes a packet to the broker.
	Send(pkt Packet) error

	// Close shuts the transport down and stops any reconnection
	// attempts. Confirmed through OnClosed.
	Close() error
}

// ErrTransportClosed is returned for operations on a closed transport.
var ErrTransportClosed = errors.New("transport closed")

// dialServer opens a network connection to an MQTT broker address in
// URI form: scheme://host:port. Supported schemes: tcp/mqtt, ssl/tls/
// mqtts, ws/wss, quic.
func dialServer(ctx context.Context, addr string, tlsConfig *tls.Config, proxyDialer *ProxyDialer) (net.Conn, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}

	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "tcp", "mqtt":
			host = net.JoinHostPort(u.Hostname(), "1883")
		case "ssl", "tls", "mqtts":
			host = net.JoinHostPort(u.Hostname(), "8883")
		case "ws":
			host = net.JoinHostPort(u.Hostname(), "80")
		case "wss":
			host = net.JoinHostPort(u.Hostname(), "443")
		case "quic":
			host = net.JoinHostPort(u.Hostname(), "8883")
		}
	}

	dialer := &net.Dialer{}

	switch u.Scheme {
	case "tcp", "mqtt":
		if proxyDialer != nil {
			return proxyDialer.DialContext(ctx, "tcp", host)
		}
		return dialer.DialContext(ctx, "tcp", host)

	case "ssl", "tls", "mqtts":
		if tlsConfig == nil {
			tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		if proxyDialer != nil {
			conn, err := proxyDialer.DialContext(ctx, "tcp", host)
			if err != nil {
				return nil, err
			}
			tlsConn := tls.Client(conn, tlsConfig)
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, fmt.Errorf("TLS handshake failed: %w", err)
			}
			return tlsConn, nil
		}
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: tlsConfig}
		return tlsDialer.DialContext(ctx, "tcp", host)

	case "ws", "wss":
		wsDialer := NewWSDialer(tlsConfig)
		return wsDialer.Dial(ctx, addr)

	case "quic":
		quicDialer := NewQUICDialer(tlsConfig)
		return quicDialer.Dial(ctx, host)

	default:
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
}
