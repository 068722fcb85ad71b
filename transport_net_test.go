package mqtt311

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testBroker is a minimal in-process MQTT endpoint. It answers the
// CONNECT handshake and hands every later packet to the test's handler
// together with the connection to reply on.
type testBroker struct {
	ln         net.Listener
	returnCode ConnectReturnCode
	session    bool
	handler    func(conn net.Conn, pkt Packet)

	// connects receives a signal for every CONNECT read; connackGate,
	// when set, must be fed a token before each CONNACK is written.
	connects    chan struct{}
	connackGate chan struct{}

	mu    sync.Mutex
	conns []net.Conn
}

func startTestBroker(t *testing.T, handler func(conn net.Conn, pkt Packet)) *testBroker {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	b := &testBroker{ln: ln, returnCode: ConnectAccepted, handler: handler}
	go b.acceptLoop()

	t.Cleanup(func() { b.stop() })
	return b
}

func (b *testBroker) addr() string {
	return "tcp://" + b.ln.Addr().String()
}

func (b *testBroker) acceptLoop() {
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			return
		}

		b.mu.Lock()
		b.conns = append(b.conns, conn)
		b.mu.Unlock()

		go b.serve(conn)
	}
}

func (b *testBroker) serve(conn net.Conn) {
	pkt, err := ReadPacket(conn, 0)
	if err != nil {
		conn.Close()
		return
	}
	if _, ok := pkt.(*ConnectPacket); !ok {
		conn.Close()
		return
	}

	if b.connects != nil {
		b.connects <- struct{}{}
	}
	if b.connackGate != nil {
		<-b.connackGate
	}

	connack := &ConnackPacket{SessionPresent: b.session, ReturnCode: b.returnCode}
	if _, err := connack.Encode(conn); err != nil || b.returnCode != ConnectAccepted {
		conn.Close()
		return
	}

	for {
		pkt, err := ReadPacket(conn, 0)
		if err != nil {
			conn.Close()
			return
		}
		if b.handler != nil {
			b.handler(conn, pkt)
		}
	}
}

// dropConnections closes every accepted connection, simulating a
// network failure.
func (b *testBroker) dropConnections() {
	b.mu.Lock()
	conns := b.conns
	b.conns = nil
	b.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

func (b *testBroker) stop() {
	b.ln.Close()
	b.dropConnections()
}

// recordingEvents collects transport events on channels so tests can
// wait for them without polling.
type recordingEvents struct {
	connected     chan bool
	connectFailed chan error
	acks          chan Packet
	messages      chan *Message
	interrupted   chan error
	errs          chan error
	closed        chan struct{}
}

func newRecordingEvents() *recordingEvents {
	return &recordingEvents{
		connected:     make(chan bool, 4),
		connectFailed: make(chan error, 4),
		acks:          make(chan Packet, 16),
		messages:      make(chan *Message, 16),
		interrupted:   make(chan error, 4),
		errs:          make(chan error, 16),
		closed:        make(chan struct{}, 1),
	}
}

func (r *recordingEvents) OnConnected(sessionPresent bool) { r.connected <- sessionPresent }
func (r *recordingEvents) OnConnectFailed(err error)       { r.connectFailed <- err }
func (r *recordingEvents) OnAck(pkt Packet)                { r.acks <- pkt }
func (r *recordingEvents) OnMessage(msg *Message)          { r.messages <- msg }
func (r *recordingEvents) OnInterrupted(err error)         { r.interrupted <- err }
func (r *recordingEvents) OnError(err error)               { r.errs <- err }
func (r *recordingEvents) OnClosed()                       { r.closed <- struct{}{} }

func testTransportConfig(server string) netTransportConfig {
	return netTransportConfig{
		server:           server,
		clientID:         "transport-test",
		cleanSession:     true,
		connectTimeout:   5 * time.Second,
		writeTimeout:     5 * time.Second,
		reconnectBackoff: 10 * time.Millisecond,
		maxBackoff:       100 * time.Millisecond,
	}
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func TestNetTransportHandshake(t *testing.T) {
	broker := startTestBroker(t, nil)
	broker.session = true

	events := newRecordingEvents()
	tr := newNetTransport(testTransportConfig(broker.addr()))
	tr.Bind(events)
	defer tr.Close()

	require.NoError(t, tr.Connect(context.Background()))

	sessionPresent := waitFor(t, events.connected, "connect")
	assert.True(t, sessionPresent)
}

func TestNetTransportConnectRefused(t *testing.T) {
	broker := startTestBroker(t, nil)
	broker.returnCode = ConnectBadUsernamePassword

	events := newRecordingEvents()
	tr := newNetTransport(testTransportConfig(broker.addr()))
	tr.Bind(events)
	defer tr.Close()

	require.NoError(t, tr.Connect(context.Background()))

	err := waitFor(t, events.connectFailed, "connect failure")
	assert.ErrorIs(t, err, ErrConnectFailed)
}

func TestNetTransportDialFailure(t *testing.T) {
	events := newRecordingEvents()
	cfg := testTransportConfig("tcp://127.0.0.1:1")
	cfg.connectTimeout = 500 * time.Millisecond
	tr := newNetTransport(cfg)
	tr.Bind(events)
	defer tr.Close()

	require.NoError(t, tr.Connect(context.Background()))

	err := waitFor(t, events.connectFailed, "connect failure")
	assert.ErrorIs(t, err, ErrConnectFailed)
}

func TestNetTransportAckRouting(t *testing.T) {
	broker := startTestBroker(t, func(conn net.Conn, pkt Packet) {
		switch p := pkt.(type) {
		case *SubscribePacket:
			suback := &SubackPacket{PacketID: p.PacketID, ReturnCodes: []byte{QoS1}}
			suback.Encode(conn)
		case *UnsubscribePacket:
			unsuback := &UnsubackPacket{PacketID: p.PacketID}
			unsuback.Encode(conn)
		}
	})

	events := newRecordingEvents()
	tr := newNetTransport(testTransportConfig(broker.addr()))
	tr.Bind(events)
	defer tr.Close()

	require.NoError(t, tr.Connect(context.Background()))
	waitFor(t, events.connected, "connect")

	require.NoError(t, tr.Send(&SubscribePacket{
		PacketID:      10,
		Subscriptions: []TopicSubscription{{TopicFilter: "a/b", QoS: QoS1}},
	}))

	ack := waitFor(t, events.acks, "suback")
	suback, ok := ack.(*SubackPacket)
	require.True(t, ok)
	assert.Equal(t, uint16(10), suback.PacketID)

	require.NoError(t, tr.Send(&UnsubscribePacket{PacketID: 11, TopicFilters: []string{"a/b"}}))

	ack = waitFor(t, events.acks, "unsuback")
	unsuback, ok := ack.(*UnsubackPacket)
	require.True(t, ok)
	assert.Equal(t, uint16(11), unsuback.PacketID)
}

func TestNetTransportInboundQoS1(t *testing.T) {
	pubacks := make(chan *PubackPacket, 1)
	broker := startTestBroker(t, func(conn net.Conn, pkt Packet) {
		switch p := pkt.(type) {
		case *SubscribePacket:
			(&SubackPacket{PacketID: p.PacketID, ReturnCodes: []byte{QoS1}}).Encode(conn)
			publish := &PublishPacket{Topic: "a/b", Payload: []byte("x"), PacketID: 20, QoS: QoS1}
			publish.Encode(conn)
		case *PubackPacket:
			pubacks <- p
		}
	})

	events := newRecordingEvents()
	tr := newNetTransport(testTransportConfig(broker.addr()))
	tr.Bind(events)
	defer tr.Close()

	require.NoError(t, tr.Connect(context.Background()))
	waitFor(t, events.connected, "connect")

	require.NoError(t, tr.Send(&SubscribePacket{
		PacketID:      1,
		Subscriptions: []TopicSubscription{{TopicFilter: "a/b", QoS: QoS1}},
	}))
	waitFor(t, events.acks, "suback")

	msg := waitFor(t, events.messages, "message")
	assert.Equal(t, "a/b", msg.Topic)
	assert.Equal(t, QoS1, msg.QoS)

	// The transport acknowledged the QoS 1 delivery on its own.
	puback := waitFor(t, pubacks, "puback")
	assert.Equal(t, uint16(20), puback.PacketID)
}

func TestNetTransportInboundQoS2(t *testing.T) {
	pubcomps := make(chan *PubcompPacket, 1)
	broker := startTestBroker(t, func(conn net.Conn, pkt Packet) {
		switch p := pkt.(type) {
		case *SubscribePacket:
			(&SubackPacket{PacketID: p.PacketID, ReturnCodes: []byte{QoS2}}).Encode(conn)
			// Send the same QoS 2 publish twice: the duplicate must not
			// be delivered twice.
			publish := &PublishPacket{Topic: "a/b", Payload: []byte("x"), PacketID: 30, QoS: QoS2}
			publish.Encode(conn)
			publish.DUP = true
			publish.Encode(conn)
		case *PubrecPacket:
			(&PubrelPacket{PacketID: p.PacketID}).Encode(conn)
		case *PubcompPacket:
			pubcomps <- p
		}
	})

	events := newRecordingEvents()
	tr := newNetTransport(testTransportConfig(broker.addr()))
	tr.Bind(events)
	defer tr.Close()

	require.NoError(t, tr.Connect(context.Background()))
	waitFor(t, events.connected, "connect")

	require.NoError(t, tr.Send(&SubscribePacket{
		PacketID:      1,
		Subscriptions: []TopicSubscription{{TopicFilter: "a/b", QoS: QoS2}},
	}))
	waitFor(t, events.acks, "suback")

	msg := waitFor(t, events.messages, "message")
	assert.Equal(t, "a/b", msg.Topic)

	waitFor(t, pubcomps, "pubcomp")

	// No second delivery for the retransmitted publish.
	select {
	case <-events.messages:
		t.Fatal("QoS 2 message delivered twice")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNetTransportReconnect(t *testing.T) {
	broker := startTestBroker(t, nil)

	events := newRecordingEvents()
	tr := newNetTransport(testTransportConfig(broker.addr()))
	tr.Bind(events)
	defer tr.Close()

	require.NoError(t, tr.Connect(context.Background()))
	waitFor(t, events.connected, "first connect")

	broker.dropConnections()

	waitFor(t, events.interrupted, "interruption")
	waitFor(t, events.connected, "reconnect")

	// The new session is usable.
	require.NoError(t, tr.Send(&PingreqPacket{}))
}

func TestNetTransportClose(t *testing.T) {
	disconnects := make(chan struct{}, 1)
	broker := startTestBroker(t, func(_ net.Conn, pkt Packet) {
		if _, ok := pkt.(*DisconnectPacket); ok {
			disconnects <- struct{}{}
		}
	})

	events := newRecordingEvents()
	tr := newNetTransport(testTransportConfig(broker.addr()))
	tr.Bind(events)

	require.NoError(t, tr.Connect(context.Background()))
	waitFor(t, events.connected, "connect")

	require.NoError(t, tr.Close())

	waitFor(t, events.closed, "close confirmation")
	waitFor(t, disconnects, "DISCONNECT packet")

	// No interruption or reconnect after an explicit close.
	select {
	case <-events.interrupted:
		t.Fatal("close reported as interruption")
	case <-time.After(100 * time.Millisecond):
	}

	assert.ErrorIs(t, tr.Send(&PingreqPacket{}), ErrTransportClosed)
	assert.NoError(t, tr.Close())
}

func TestNetTransportCloseDuringReconnectAttempt(t *testing.T) {
	broker := startTestBroker(t, nil)
	broker.connects = make(chan struct{}, 4)
	broker.connackGate = make(chan struct{}, 4)
	// Let the first handshake through immediately.
	broker.connackGate <- struct{}{}

	events := newRecordingEvents()
	tr := newNetTransport(testTransportConfig(broker.addr()))
	tr.Bind(events)

	require.NoError(t, tr.Connect(context.Background()))
	waitFor(t, broker.connects, "first CONNECT")
	waitFor(t, events.connected, "first connect")

	broker.dropConnections()
	waitFor(t, events.interrupted, "interruption")

	// The reconnect attempt has dialed and sent CONNECT; its CONNACK is
	// held back while the transport is closed underneath it.
	waitFor(t, broker.connects, "reconnect CONNECT")
	require.NoError(t, tr.Close())
	waitFor(t, events.closed, "close confirmation")

	broker.connackGate <- struct{}{}

	// The completed attempt must be torn down, not reported.
	select {
	case <-events.connected:
		t.Fatal("reconnect reported after close")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestNetTransportConnectAfterClose(t *testing.T) {
	broker := startTestBroker(t, nil)

	tr := newNetTransport(testTransportConfig(broker.addr()))
	tr.Bind(newRecordingEvents())
	require.NoError(t, tr.Close())

	assert.ErrorIs(t, tr.Connect(context.Background()), ErrTransportClosed)
}
