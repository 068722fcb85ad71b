package mqtt311

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNoServer is returned by NewClient when no broker address was given
// and no custom transport was supplied.
var ErrNoServer = errors.New("no server address configured")

// Client is an MQTT v3.1.1 client. It routes received messages through
// a topic trie, tracks acknowledgement-bearing operations by packet
// identifier and surfaces the connection lifecycle as events.
//
// All operations return a Token immediately; Wait on the token for the
// outcome. The client is safe for concurrent use.
type Client struct {
	opts      *clientOptions
	transport Transport
	logger    Logger

	state      *stateMachine
	correlator *correlator
	packetIDs  *packetIDManager
	events     *eventBus

	trieMu sync.Mutex
	trie   *TopicTrie

	closed atomic.Bool

	tokenMu         sync.Mutex
	connectTokens   []*ConnectToken
	disconnectToken *DisconnectToken
	sessionPresent  bool // from the most recent handshake

	// SUBSCRIBE and UNSUBSCRIBE packets issued while the connection is
	// down are parked here and flushed on the next successful handshake.
	parkedMu sync.Mutex
	parked   []Packet
}

// NewClient creates a client from the given options. The client does
// not touch the network until Connect is called.
func NewClient(opts ...Option) (*Client, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	transport := options.transport
	if transport == nil {
		if options.server == "" {
			return nil, ErrNoServer
		}
		transport = newNetTransport(netTransportConfig{
			server:           options.server,
			clientID:         options.clientID,
			cleanSession:     options.cleanSession,
			username:         options.username,
			password:         options.password,
			will:             options.will,
			keepAlive:        uint16(options.keepAlive / time.Second),
			pingTimeout:      options.pingTimeout,
			connectTimeout:   options.connectTimeout,
			writeTimeout:     options.writeTimeout,
			maxPacketSize:    options.maxPacketSize,
			reconnectBackoff: options.reconnectBackoff,
			maxBackoff:       options.maxBackoff,
			tlsConfig:        options.tlsConfig,
			proxy:            options.proxy,
			logger:           options.logger,
		})
	}

	if options.will != nil {
		if err := options.will.Validate(); err != nil {
			return nil, err
		}
	}

	c := &Client{
		opts:       options,
		transport:  transport,
		logger:     options.logger,
		state:      newStateMachine(),
		correlator: newCorrelator(options.operationTimeout),
		packetIDs:  newPacketIDManager(),
		events:     newEventBus(),
		trie:       NewTopicTrie(),
	}

	for _, h := range options.lifecycleHandlers {
		c.events.addLifecycle(h)
	}
	for _, h := range options.errorHandlers {
		c.events.addError(h)
	}
	for _, h := range options.messageHandlers {
		c.events.addMessage(h)
	}

	transport.Bind(c)
	return c, nil
}

// ClientID returns the client identifier.
func (c *Client) ClientID() string {
	return c.opts.clientID
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	return c.state.State()
}

// ConnectionCount returns the number of successful handshakes so far.
func (c *Client) ConnectionCount() uint64 {
	return c.state.ConnectionCount()
}

// Connect starts connecting to the broker. The returned token resolves
// after the first successful handshake, or with an error wrapping
// ErrConnectFailed. Calling Connect again is benign: while a handshake
// is in flight the token resolves with its outcome, and on an already
// established session it resolves immediately, describing that session.
func (c *Client) Connect(ctx context.Context) *ConnectToken {
	token := &ConnectToken{baseToken: newBaseToken()}

	if c.closed.Load() {
		token.complete(ErrClientClosed)
		return token
	}

	if !c.state.BeginConnect() {
		if c.state.State() == StateConnecting {
			c.tokenMu.Lock()
			c.connectTokens = append(c.connectTokens, token)
			c.tokenMu.Unlock()
			return token
		}

		// Connected or Interrupted: the session already exists.
		c.tokenMu.Lock()
		sessionPresent := c.sessionPresent
		c.tokenMu.Unlock()
		token.completeConnected(sessionPresent)
		return token
	}

	c.tokenMu.Lock()
	c.connectTokens = append(c.connectTokens, token)
	c.tokenMu.Unlock()

	if err := c.transport.Connect(ctx); err != nil {
		c.state.HandshakeFailed()
		wrapped := fmt.Errorf("%w: %v", ErrConnectFailed, err)
		for _, t := range c.takeConnectTokens() {
			t.complete(wrapped)
		}
	}

	return token
}

// takeConnectTokens drains the tokens waiting on the in-flight connect.
func (c *Client) takeConnectTokens() []*ConnectToken {
	c.tokenMu.Lock()
	tokens := c.connectTokens
	c.connectTokens = nil
	c.tokenMu.Unlock()
	return tokens
}

// Publish sends an application message. The payload may be nil, []byte,
// string, json.RawMessage, or any value that marshals to JSON; anything
// else fails the token with ErrInvalidPayload.
//
// A QoS 0 token resolves as soon as the packet is written. QoS 1 and 2
// tokens resolve on PUBACK and PUBCOMP respectively, or with
// ErrOperationTimeout when the acknowledgement does not arrive within
// the protocol operation timeout.
func (c *Client) Publish(ctx context.Context, topic string, payload any, qos byte, retain bool) *PublishToken {
	token := &PublishToken{baseToken: newBaseToken()}

	if c.closed.Load() {
		token.complete(ErrClientClosed)
		return token
	}
	if err := ValidateTopicName(topic); err != nil {
		token.complete(fmt.Errorf("%w: %w", ErrPublishFailed, err))
		return token
	}
	if qos > QoS2 {
		token.complete(fmt.Errorf("%w: %w", ErrPublishFailed, ErrInvalidQoS))
		return token
	}

	body, err := NormalizePayload(payload)
	if err != nil {
		token.complete(fmt.Errorf("%w: %w", ErrPublishFailed, err))
		return token
	}

	if c.state.State() != StateConnected {
		token.complete(fmt.Errorf("%w: %w", ErrPublishFailed, ErrNotConnected))
		return token
	}

	if limiter := c.opts.publishLimiter; limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			token.complete(fmt.Errorf("%w: %w", ErrPublishFailed, err))
			return token
		}
	}

	pkt := &PublishPacket{
		Topic:   topic,
		Payload: body,
		QoS:     qos,
		Retain:  retain,
	}

	if qos == QoS0 {
		if err := c.transport.Send(pkt); err != nil {
			token.complete(fmt.Errorf("%w: %w", ErrPublishFailed, err))
			return token
		}
		token.complete(nil)
		return token
	}

	packetID, err := c.packetIDs.Allocate()
	if err != nil {
		token.complete(fmt.Errorf("%w: %w", ErrPublishFailed, err))
		return token
	}
	pkt.PacketID = packetID
	token.packetID = packetID

	c.correlator.Track(packetID, opPublish, func(_ ackResult, err error) {
		c.packetIDs.Release(packetID)
		if err != nil {
			token.complete(fmt.Errorf("%w: %w", ErrPublishFailed, err))
			return
		}
		token.complete(nil)
	})

	if err := c.transport.Send(pkt); err != nil {
		c.correlator.failOne(packetID, err)
	}

	return token
}

// Subscribe registers handler for the given topic filter and sends a
// SUBSCRIBE to the broker. The handler is installed in the routing trie
// before the packet is written, so a message arriving between the
// SUBSCRIBE and the SUBACK is still routed.
//
// When the connection is down the subscription is installed locally and
// the packet is parked until the next successful handshake; the token
// stays pending until the broker acknowledges it.
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) *SubscribeToken {
	token := &SubscribeToken{baseToken: newBaseToken(), filter: filter}

	if c.closed.Load() {
		token.complete(ErrClientClosed)
		return token
	}
	if err := ValidateTopicFilter(filter); err != nil {
		token.complete(fmt.Errorf("%w: %w", ErrSubscribeFailed, err))
		return token
	}
	if qos > QoS2 {
		token.complete(fmt.Errorf("%w: %w", ErrSubscribeFailed, ErrInvalidQoS))
		return token
	}

	c.trieMu.Lock()
	err := c.trie.Insert(filter, handler)
	c.trieMu.Unlock()
	if err != nil {
		token.complete(fmt.Errorf("%w: %w", ErrSubscribeFailed, err))
		return token
	}

	packetID, err := c.packetIDs.Allocate()
	if err != nil {
		token.complete(fmt.Errorf("%w: %w", ErrSubscribeFailed, err))
		return token
	}

	pkt := &SubscribePacket{
		PacketID: packetID,
		Subscriptions: []TopicSubscription{
			{TopicFilter: filter, QoS: qos},
		},
	}

	c.correlator.Track(packetID, opSubscribe, func(ack ackResult, err error) {
		c.packetIDs.Release(packetID)
		if err != nil {
			token.complete(fmt.Errorf("%w: %w", ErrSubscribeFailed, err))
			return
		}
		if ack.grantedQoS == subackFailure {
			c.trieMu.Lock()
			c.trie.Remove(filter)
			c.trieMu.Unlock()
			token.complete(fmt.Errorf("%w: rejected by broker", ErrSubscribeFailed))
			return
		}
		token.completeGranted(ack.grantedQoS)
	})

	c.sendOrPark(pkt)
	return token
}

// Unsubscribe removes the given topic filter. Routing stops immediately;
// the token resolves on UNSUBACK, or with ErrOperationTimeout.
func (c *Client) Unsubscribe(filter string) *UnsubscribeToken {
	token := &UnsubscribeToken{baseToken: newBaseToken()}

	if c.closed.Load() {
		token.complete(ErrClientClosed)
		return token
	}
	if err := ValidateTopicFilter(filter); err != nil {
		token.complete(fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err))
		return token
	}

	c.trieMu.Lock()
	c.trie.Remove(filter)
	c.trieMu.Unlock()

	packetID, err := c.packetIDs.Allocate()
	if err != nil {
		token.complete(fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err))
		return token
	}
	token.packetID = packetID

	pkt := &UnsubscribePacket{
		PacketID:     packetID,
		TopicFilters: []string{filter},
	}

	c.correlator.Track(packetID, opUnsubscribe, func(_ ackResult, err error) {
		c.packetIDs.Release(packetID)
		if err != nil {
			token.complete(fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err))
			return
		}
		token.complete(nil)
	})

	c.sendOrPark(pkt)
	return token
}

// Disconnect closes the connection and fails every pending operation
// with ErrConnectionClosed. Disconnecting an already disconnected client
// resolves the token immediately.
func (c *Client) Disconnect(_ context.Context) *DisconnectToken {
	token := &DisconnectToken{baseToken: newBaseToken()}

	if c.closed.Swap(true) {
		token.complete(nil)
		return token
	}

	c.tokenMu.Lock()
	c.disconnectToken = token
	c.tokenMu.Unlock()

	if err := c.transport.Close(); err != nil {
		token.complete(err)
	}

	return token
}

// sendOrPark writes the packet when connected; otherwise it parks the
// packet for the next successful handshake. The pending operation was
// already tracked, so the token resolves on the eventual acknowledgement.
func (c *Client) sendOrPark(pkt Packet) {
	if c.state.State() == StateConnected {
		if err := c.transport.Send(pkt); err == nil {
			return
		}
		// Fall through: a send that raced the connection loss is parked
		// like an offline one.
	}

	c.parkedMu.Lock()
	c.parked = append(c.parked, pkt)
	c.parkedMu.Unlock()
}

// flushParked sends every parked packet on a fresh connection.
func (c *Client) flushParked() {
	c.parkedMu.Lock()
	parked := c.parked
	c.parked = nil
	c.parkedMu.Unlock()

	for _, pkt := range parked {
		if err := c.transport.Send(pkt); err != nil {
			c.logger.Warn("failed to flush parked packet", LogFields{
				LogFieldPacketType: pkt.Type(),
				LogFieldError:      err,
			})
			c.events.emitError(err)
		}
	}
}

// OnConnected reacts to every successful handshake. The first one
// resolves the connect token and emits a connected event; later ones
// emit resumed events. Parked packets are flushed either way.
func (c *Client) OnConnected(sessionPresent bool) {
	resumed, reconnectCount := c.state.HandshakeComplete()

	c.tokenMu.Lock()
	c.sessionPresent = sessionPresent
	c.tokenMu.Unlock()

	for _, token := range c.takeConnectTokens() {
		token.completeConnected(sessionPresent)
	}

	if resumed {
		c.logger.Info("connection resumed", LogFields{
			LogFieldClientID: c.opts.clientID,
			"reconnects":     reconnectCount,
		})
		c.events.emit(newResumedEvent(reconnectCount, sessionPresent))
	} else {
		c.events.emit(newConnectedEvent(sessionPresent))
	}

	c.flushParked()
}

// OnConnectFailed fails every token waiting on the handshake.
func (c *Client) OnConnectFailed(err error) {
	c.state.HandshakeFailed()

	for _, token := range c.takeConnectTokens() {
		token.complete(err)
	}
}

// OnAck resolves the pending operation matching the acknowledgement.
// Acknowledgements with no pending operation are ignored.
func (c *Client) OnAck(pkt Packet) {
	switch p := pkt.(type) {
	case *PubackPacket:
		c.correlator.Resolve(p.PacketID, ackResult{})
	case *PubcompPacket:
		c.correlator.Resolve(p.PacketID, ackResult{})
	case *SubackPacket:
		var granted byte = subackFailure
		if len(p.ReturnCodes) > 0 {
			granted = p.ReturnCodes[0]
		}
		c.correlator.Resolve(p.PacketID, ackResult{grantedQoS: granted})
	case *UnsubackPacket:
		c.correlator.Resolve(p.PacketID, ackResult{})
	}
}

// OnMessage routes a received message through the topic trie and then
// fans it out to the registered message handlers. Registered handlers
// always fire, whether or not a subscription matched.
func (c *Client) OnMessage(msg *Message) {
	c.trieMu.Lock()
	handler, _ := c.trie.Find(msg.Topic)
	c.trieMu.Unlock()

	if handler != nil {
		handler(msg)
	}
	c.events.emitMessage(msg)
}

// OnInterrupted emits an interrupted event. Pending operations are kept:
// the transport reconnects underneath and late acknowledgements still
// resolve them.
func (c *Client) OnInterrupted(err error) {
	if !c.state.TransportLost() {
		return
	}

	c.logger.Warn("connection interrupted", LogFields{
		LogFieldClientID: c.opts.clientID,
		LogFieldError:    err,
	})
	c.events.emit(newInterruptedEvent(err))
}

// OnError fans a transport error out to the error handlers.
func (c *Client) OnError(err error) {
	c.events.emitError(err)
}

// OnClosed finishes the disconnect: every pending operation fails with
// ErrConnectionClosed, the disconnect token resolves, and a disconnected
// event is emitted if there was an active session to leave.
func (c *Client) OnClosed() {
	c.closed.Store(true)
	wasActive := c.state.DisconnectComplete()

	c.correlator.FailAll(ErrConnectionClosed)

	for _, token := range c.takeConnectTokens() {
		token.complete(ErrConnectionClosed)
	}

	c.tokenMu.Lock()
	disconnectToken := c.disconnectToken
	c.tokenMu.Unlock()
	if disconnectToken != nil {
		disconnectToken.complete(nil)
	}

	if wasActive {
		c.events.emit(ErrDisconnected)
	}
}
