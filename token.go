package mqtt311

import (
	"context"
	"sync"
)

// Token tracks the completion of an asynchronous operation. Operations
// that wait for a broker acknowledgement return a Token immediately; the
// token resolves exactly once, either successfully or with an error.
type Token interface {
	// Done returns a channel that is closed when the operation completes.
	Done() <-chan struct{}

	// Wait blocks until the operation completes or the context is
	// canceled, and returns the operation's error.
	Wait(ctx context.Context) error

	// Err returns the operation's error. It must only be consulted
	// after Done is closed.
	Err() error
}

// baseToken is the single-resolution completion slot shared by all
// token types.
type baseToken struct {
	mu       sync.Mutex
	done     chan struct{}
	err      error
	resolved bool
}

func newBaseToken() baseToken {
	return baseToken{done: make(chan struct{})}
}

// Done returns a channel that is closed when the operation completes.
func (t *baseToken) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the operation completes or ctx is canceled.
func (t *baseToken) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the operation's error.
func (t *baseToken) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// complete resolves the token. Later calls are ignored.
func (t *baseToken) complete(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.resolved {
		return
	}
	t.resolved = true
	t.err = err
	close(t.done)
}

// ConnectToken is returned by Connect.
type ConnectToken struct {
	baseToken
	sessionPresent bool
}

// SessionPresent reports whether the broker resumed a pre-existing
// session. Only valid after Done is closed.
func (t *ConnectToken) SessionPresent() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionPresent
}

func (t *ConnectToken) completeConnected(sessionPresent bool) {
	t.mu.Lock()
	t.sessionPresent = sessionPresent
	t.mu.Unlock()
	t.complete(nil)
}

// PublishToken is returned by Publish.
type PublishToken struct {
	baseToken
	packetID uint16
}

// PacketID returns the packet identifier assigned to the publish, or 0
// for a QoS 0 publish.
func (t *PublishToken) PacketID() uint16 {
	return t.packetID
}

// SubscribeToken is returned by Subscribe.
type SubscribeToken struct {
	baseToken
	filter     string
	grantedQoS byte
}

// TopicFilter returns the subscribed topic filter.
func (t *SubscribeToken) TopicFilter() string {
	return t.filter
}

// GrantedQoS returns the QoS level granted by the broker. Only valid
// after Done is closed.
func (t *SubscribeToken) GrantedQoS() byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.grantedQoS
}

func (t *SubscribeToken) completeGranted(qos byte) {
	t.mu.Lock()
	t.grantedQoS = qos
	t.mu.Unlock()
	t.complete(nil)
}

// UnsubscribeToken is returned by Unsubscribe.
type UnsubscribeToken struct {
	baseToken
	packetID uint16
}

// PacketID returns the packet identifier assigned to the unsubscribe.
func (t *UnsubscribeToken) PacketID() uint16 {
	return t.packetID
}

// DisconnectToken is returned by Disconnect.
type DisconnectToken struct {
	baseToken
}
