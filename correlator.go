package mqtt311

import (
	"sync"
	"time"
)

// operationKind identifies the kind of an acknowledgement-bearing
// operation tracked by the correlator.
type operationKind int

const (
	opPublish operationKind = iota
	opSubscribe
	opUnsubscribe
)

func (k operationKind) String() string {
	switch k {
	case opPublish:
		return "publish"
	case opSubscribe:
		return "subscribe"
	case opUnsubscribe:
		return "unsubscribe"
	default:
		return "unknown"
	}
}

// ackResult carries acknowledgement data back to a pending operation.
type ackResult struct {
	// grantedQoS is the return code from a SUBACK: the granted QoS
	// level, or subackFailure (0x80) on broker rejection.
	grantedQoS byte
}

// pendingOp is an in-flight operation awaiting a broker acknowledgement.
type pendingOp struct {
	kind     operationKind
	packetID uint16
	timer    *time.Timer

	// complete resolves the caller's token. Invoked exactly once, with
	// either an acknowledgement or an error.
	complete func(ack ackResult, err error)
}

// correlator tracks in-flight operations keyed by packet identifier and
// resolves each exactly once: on the matching acknowledgement, on the
// protocol operation timeout, or when the connection is torn down.
type correlator struct {
	mu      sync.Mutex
	pending map[uint16]*pendingOp

	// opTimeout bounds the wait for PUBACK and UNSUBACK. Zero disables
	// the timeout. SUBACKs are not subject to it: a subscribe issued
	// while the connection is interrupted may legitimately wait until
	// the transport reconnects.
	opTimeout time.Duration
}

func newCorrelator(opTimeout time.Duration) *correlator {
	return &correlator{
		pending:   make(map[uint16]*pendingOp),
		opTimeout: opTimeout,
	}
}

// Track registers a pending operation under its packet identifier. The
// complete callback is invoked exactly once when the operation resolves.
func (c *correlator) Track(packetID uint16, kind operationKind, complete func(ack ackResult, err error)) {
	op := &pendingOp{
		kind:     kind,
		packetID: packetID,
		complete: complete,
	}

	c.mu.Lock()
	c.pending[packetID] = op
	if c.opTimeout > 0 && (kind == opPublish || kind == opUnsubscribe) {
		op.timer = time.AfterFunc(c.opTimeout, func() {
			c.failOne(packetID, ErrOperationTimeout)
		})
	}
	c.mu.Unlock()
}

// Resolve completes the operation tracked under packetID with the given
// acknowledgement. Resolving an unknown identifier is a no-op, so
// duplicate or late acknowledgements are harmless.
func (c *correlator) Resolve(packetID uint16, ack ackResult) {
	c.mu.Lock()
	op, ok := c.pending[packetID]
	if ok {
		delete(c.pending, packetID)
		if op.timer != nil {
			op.timer.Stop()
		}
	}
	c.mu.Unlock()

	if ok {
		op.complete(ack, nil)
	}
}

// failOne fails a single pending operation.
func (c *correlator) failOne(packetID uint16, err error) {
	c.mu.Lock()
	op, ok := c.pending[packetID]
	if ok {
		delete(c.pending, packetID)
		if op.timer != nil {
			op.timer.Stop()
		}
	}
	c.mu.Unlock()

	if ok {
		op.complete(ackResult{}, err)
	}
}

// FailAll fails every pending operation with the given reason and
// empties the correlator. Called on connection teardown so that no
// operation is left permanently unresolved.
func (c *correlator) FailAll(err error) {
	c.mu.Lock()
	ops := make([]*pendingOp, 0, len(c.pending))
	for _, op := range c.pending {
		if op.timer != nil {
			op.timer.Stop()
		}
		ops = append(ops, op)
	}
	c.pending = make(map[uint16]*pendingOp)
	c.mu.Unlock()

	for _, op := range ops {
		op.complete(ackResult{}, err)
	}
}

// Len returns the number of in-flight operations.
func (c *correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
