package mqtt311

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// netTransportConfig carries everything the transport needs to dial,
// handshake and keep a broker connection alive on its own.
type netTransportConfig struct {
	server string

	clientID     string
	cleanSession bool
	username     string
	password     []byte
	will         *WillMessage

	keepAlive      uint16
	pingTimeout    time.Duration
	connectTimeout time.Duration
	writeTimeout   time.Duration
	maxPacketSize  uint32

	reconnectBackoff time.Duration
	maxBackoff       time.Duration

	tlsConfig *tls.Config
	proxy     *ProxyDialer
	logger    Logger
}

// netTransport is the default Transport: a single broker connection
// over TCP, TLS, WebSocket or QUIC with transport-owned automatic
// reconnection. The bound client only observes connect/interrupt/
// reconnect events; the retry policy lives entirely here.
type netTransport struct {
	cfg    netTransportConfig
	events TransportEvents
	logger Logger

	mu   sync.Mutex // guards conn and session channels
	conn net.Conn
	stop chan struct{} // per-connection; closed when the session ends

	stopMu sync.Mutex // serializes closing of stop channels

	writeMu sync.Mutex

	connected    atomic.Bool
	closed       atomic.Bool
	reconnecting atomic.Bool

	lastPacket atomic.Int64 // unix nanos of the last written packet
	pingSent   atomic.Int64 // unix nanos of the outstanding PINGREQ, 0 if none

	// Inbound QoS 2 messages held between PUBREC and PUBREL.
	qos2Mu      sync.Mutex
	pendingQoS2 map[uint16]*Message
}

func newNetTransport(cfg netTransportConfig) *netTransport {
	logger := cfg.logger
	if logger == nil {
		logger = NewNoOpLogger()
	}
	return &netTransport{
		cfg:         cfg,
		logger:      logger,
		pendingQoS2: make(map[uint16]*Message),
	}
}

// Bind registers the event sink.
func (t *netTransport) Bind(events TransportEvents) {
	t.events = events
}

// Connect starts the first connection attempt. The outcome is reported
// through OnConnected or OnConnectFailed.
func (t *netTransport) Connect(ctx context.Context) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}

	go func() {
		attemptCtx, cancel := context.WithTimeout(ctx, t.cfg.connectTimeout)
		defer cancel()

		sessionPresent, err := t.attempt(attemptCtx)
		if err != nil {
			t.events.OnConnectFailed(err)
			return
		}
		t.events.OnConnected(sessionPresent)
	}()

	return nil
}

// attempt dials the broker and performs the CONNECT/CONNACK handshake.
// On success the read loop and pinger for the new session are started.
func (t *netTransport) attempt(ctx context.Context) (bool, error) {
	conn, err := dialServer(ctx, t.cfg.server, t.cfg.tlsConfig, t.cfg.proxy)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	connect := &ConnectPacket{
		ClientID:     t.cfg.clientID,
		CleanSession: t.cfg.cleanSession,
		KeepAlive:    t.cfg.keepAlive,
	}
	if t.cfg.username != "" {
		connect.HasUsername = true
		connect.Username = t.cfg.username
	}
	if t.cfg.password != nil {
		connect.HasPassword = true
		connect.Password = t.cfg.password
	}
	if will := t.cfg.will; will != nil {
		connect.WillFlag = true
		connect.WillTopic = will.Topic
		connect.WillPayload = will.Payload
		connect.WillQoS = will.QoS
		connect.WillRetain = will.Retain
	}

	conn.SetDeadline(time.Now().Add(t.cfg.connectTimeout))
	if _, err := connect.Encode(conn); err != nil {
		conn.Close()
		return false, fmt.Errorf("%w: failed to send CONNECT: %v", ErrConnectFailed, err)
	}

	pkt, err := ReadPacket(conn, t.cfg.maxPacketSize)
	conn.SetDeadline(time.Time{})
	if err != nil {
		conn.Close()
		return false, fmt.Errorf("%w: failed to read CONNACK: %v", ErrConnectFailed, err)
	}

	connack, ok := pkt.(*ConnackPacket)
	if !ok {
		conn.Close()
		return false, fmt.Errorf("%w: expected CONNACK, got %s", ErrConnectFailed, pkt.Type())
	}
	if connack.ReturnCode != ConnectAccepted {
		conn.Close()
		return false, fmt.Errorf("%w: %s", ErrConnectFailed, connack.ReturnCode)
	}

	stop := make(chan struct{})

	t.mu.Lock()
	t.conn = conn
	t.stop = stop
	t.mu.Unlock()

	t.connected.Store(true)
	t.pingSent.Store(0)
	t.lastPacket.Store(time.Now().UnixNano())

	go t.readLoop(conn, stop)
	go t.pinger(stop)

	t.logger.Info("connected", LogFields{
		LogFieldClientID: t.cfg.clientID,
		"server":         t.cfg.server,
		"session":        connack.SessionPresent,
	})

	return connack.SessionPresent, nil
}

// Send writes a packet to the broker.
func (t *netTransport) Send(pkt Packet) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	if !t.connected.Load() {
		return ErrNotConnected
	}

	return t.writePacket(pkt)
}

func (t *netTransport) writePacket(pkt Packet) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	if t.cfg.writeTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(t.cfg.writeTimeout))
		defer conn.SetWriteDeadline(time.Time{})
	}

	if _, err := pkt.Encode(conn); err != nil {
		return err
	}

	t.lastPacket.Store(time.Now().UnixNano())
	return nil
}

// Close shuts the transport down for good.
func (t *netTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}

	if t.connected.Load() {
		t.writePacket(&DisconnectPacket{})
	}
	t.connected.Store(false)

	t.mu.Lock()
	conn := t.conn
	stop := t.stop
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if stop != nil {
		t.endSession(stop)
	}

	t.events.OnClosed()
	return nil
}

// endSession closes the session stop channel exactly once. It reports
// false if the session had already ended.
func (t *netTransport) endSession(stop chan struct{}) bool {
	t.stopMu.Lock()
	defer t.stopMu.Unlock()

	select {
	case <-stop:
		return false
	default:
		close(stop)
		return true
	}
}

// dropSession tears the current session down without raising any
// events. Used when a reconnect attempt lost the race against Close.
func (t *netTransport) dropSession() {
	t.connected.Store(false)

	t.mu.Lock()
	conn := t.conn
	stop := t.stop
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if stop != nil {
		t.endSession(stop)
	}
}

// readLoop decodes packets from the connection until it fails.
func (t *netTransport) readLoop(conn net.Conn, stop chan struct{}) {
	for {
		pkt, err := ReadPacket(conn, t.cfg.maxPacketSize)
		if err != nil {
			t.sessionLost(conn, stop, err)
			return
		}
		t.handlePacket(pkt)
	}
}

// sessionLost tears the current session down and, unless Close was
// called, reports the interruption and starts reconnecting.
func (t *netTransport) sessionLost(conn net.Conn, stop chan struct{}, err error) {
	if !t.endSession(stop) {
		return // session already torn down
	}

	wasConnected := t.connected.Swap(false)
	conn.Close()

	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
	}
	t.mu.Unlock()

	if t.closed.Load() || !wasConnected {
		return
	}

	t.logger.Warn("connection lost", LogFields{
		LogFieldClientID: t.cfg.clientID,
		LogFieldError:    err,
	})
	t.events.OnInterrupted(err)

	go t.reconnectLoop()
}

// reconnectLoop retries the broker with bounded exponential backoff
// until it succeeds or the transport is closed.
func (t *netTransport) reconnectLoop() {
	if !t.reconnecting.CompareAndSwap(false, true) {
		return
	}
	defer t.reconnecting.Store(false)

	backoff := t.cfg.reconnectBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	for attempt := 1; ; attempt++ {
		if t.closed.Load() {
			return
		}

		time.Sleep(backoff)
		if t.closed.Load() {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.connectTimeout)
		sessionPresent, err := t.attempt(ctx)
		cancel()

		if err == nil {
			// Close may have raced the attempt after it dialed; a
			// closed transport must not report a fresh connection.
			if t.closed.Load() {
				t.dropSession()
				return
			}
			t.events.OnConnected(sessionPresent)
			return
		}

		t.logger.Debug("reconnect attempt failed", LogFields{
			"attempt":     attempt,
			"backoff":     backoff,
			LogFieldError: err,
		})

		backoff *= 2
		if t.cfg.maxBackoff > 0 && backoff > t.cfg.maxBackoff {
			backoff = t.cfg.maxBackoff
		}
	}
}

// pinger keeps the connection alive with PINGREQ packets and declares
// the connection dead when a PINGRESP does not arrive in time.
func (t *netTransport) pinger(stop chan struct{}) {
	if t.cfg.keepAlive == 0 {
		return
	}

	interval := time.Duration(t.cfg.keepAlive) * time.Second / 2
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !t.connected.Load() {
				continue
			}

			// Ping timeout: an unanswered PINGREQ invalidates the
			// connection; closing it makes the read loop fail over.
			if sent := t.pingSent.Load(); sent != 0 && t.cfg.pingTimeout > 0 {
				if time.Since(time.Unix(0, sent)) > t.cfg.pingTimeout {
					t.logger.Warn("ping timeout", LogFields{
						LogFieldClientID: t.cfg.clientID,
					})
					t.mu.Lock()
					conn := t.conn
					t.mu.Unlock()
					if conn != nil {
						conn.Close()
					}
					continue
				}
			}

			lastPacketTime := time.Unix(0, t.lastPacket.Load())
			if time.Since(lastPacketTime) >= interval {
				if err := t.writePacket(&PingreqPacket{}); err == nil {
					t.pingSent.CompareAndSwap(0, time.Now().UnixNano())
				}
			}
		}
	}
}

// handlePacket dispatches an incoming packet. Acknowledgements that
// complete client operations go up through OnAck; QoS plumbing for
// received publishes is handled here.
func (t *netTransport) handlePacket(pkt Packet) {
	switch p := pkt.(type) {
	case *PublishPacket:
		t.handlePublish(p)
	case *PubackPacket, *PubcompPacket, *SubackPacket, *UnsubackPacket:
		t.events.OnAck(pkt)
	case *PubrecPacket:
		// Outbound QoS 2: answer PUBREC with PUBREL; the final
		// PUBCOMP completes the publish.
		if err := t.writePacket(&PubrelPacket{PacketID: p.PacketID}); err != nil {
			t.events.OnError(err)
		}
	case *PubrelPacket:
		t.handlePubrel(p)
	case *PingrespPacket:
		t.pingSent.Store(0)
	default:
		t.logger.Debug("ignoring unexpected packet", LogFields{
			LogFieldPacketType: pkt.Type(),
		})
	}
}

func (t *netTransport) handlePublish(pkt *PublishPacket) {
	msg := pkt.ToMessage()

	t.logger.Debug("received publish", LogFields{
		LogFieldTopic:    pkt.Topic,
		LogFieldQoS:      pkt.QoS,
		LogFieldPacketID: pkt.PacketID,
	})

	switch pkt.QoS {
	case QoS0:
		t.events.OnMessage(msg)
	case QoS1:
		if err := t.writePacket(&PubackPacket{PacketID: pkt.PacketID}); err != nil {
			t.events.OnError(err)
		}
		t.events.OnMessage(msg)
	case QoS2:
		// Hold delivery until PUBREL so a retransmitted PUBLISH is
		// not delivered twice.
		t.qos2Mu.Lock()
		if _, tracked := t.pendingQoS2[pkt.PacketID]; !tracked {
			t.pendingQoS2[pkt.PacketID] = msg
		}
		t.qos2Mu.Unlock()

		if err := t.writePacket(&PubrecPacket{PacketID: pkt.PacketID}); err != nil {
			t.events.OnError(err)
		}
	}
}

func (t *netTransport) handlePubrel(pkt *PubrelPacket) {
	t.qos2Mu.Lock()
	msg, ok := t.pendingQoS2[pkt.PacketID]
	delete(t.pendingQoS2, pkt.PacketID)
	t.qos2Mu.Unlock()

	if err := t.writePacket(&PubcompPacket{PacketID: pkt.PacketID}); err != nil {
		t.events.OnError(err)
	}

	if ok {
		t.events.OnMessage(msg)
	}
}
