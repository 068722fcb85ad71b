package mqtt311

import (
	"errors"
	"sync"
)

// Sentinel events for the connection lifecycle - check with errors.Is().
var (
	// ErrConnected is emitted after the first successful handshake.
	ErrConnected = errors.New("connected")

	// ErrResumed is emitted after the connection is re-established
	// following an interruption.
	ErrResumed = errors.New("connection resumed")

	// ErrInterrupted is emitted when the transport is lost unexpectedly.
	ErrInterrupted = errors.New("connection interrupted")

	// ErrDisconnected is emitted after an explicit disconnect completes.
	ErrDisconnected = errors.New("disconnected")
)

// EventHandler receives lifecycle events. Events are errors: check the
// kind with errors.Is() against the sentinels above and extract typed
// payloads with errors.As(). Handlers are invoked on the execution
// context the transport surfaces completions on and must not block.
type EventHandler func(event error)

// ConnectedEvent carries details of the first successful connect.
// Extract with errors.As().
type ConnectedEvent struct {
	err            error
	SessionPresent bool
}

func (e *ConnectedEvent) Error() string { return e.err.Error() }
func (e *ConnectedEvent) Unwrap() error { return e.err }

func newConnectedEvent(sessionPresent bool) *ConnectedEvent {
	return &ConnectedEvent{err: ErrConnected, SessionPresent: sessionPresent}
}

// ResumedEvent carries details of a reconnection after an interruption.
// Extract with errors.As().
type ResumedEvent struct {
	err            error
	ReconnectCount uint64
	SessionPresent bool
}

func (e *ResumedEvent) Error() string { return e.err.Error() }
func (e *ResumedEvent) Unwrap() error { return e.err }

func newResumedEvent(reconnectCount uint64, sessionPresent bool) *ResumedEvent {
	return &ResumedEvent{
		err:            ErrResumed,
		ReconnectCount: reconnectCount,
		SessionPresent: sessionPresent,
	}
}

// InterruptedEvent carries the transport error that caused an
// interruption. Extract with errors.As().
type InterruptedEvent struct {
	err    error
	Reason error
}

func (e *InterruptedEvent) Error() string {
	if e.Reason != nil {
		return "connection interrupted: " + e.Reason.Error()
	}
	return e.err.Error()
}

func (e *InterruptedEvent) Unwrap() error { return e.err }

func newInterruptedEvent(reason error) *InterruptedEvent {
	return &InterruptedEvent{err: ErrInterrupted, Reason: reason}
}

// eventBus fans lifecycle events, transport errors and received
// messages out to registered listeners. Message listeners always fire
// for every received publish, independent of trie dispatch.
type eventBus struct {
	mu        sync.RWMutex
	lifecycle []EventHandler
	onError   []func(error)
	messages  []MessageHandler
}

func newEventBus() *eventBus {
	return &eventBus{}
}

func (b *eventBus) addLifecycle(h EventHandler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.lifecycle = append(b.lifecycle, h)
	b.mu.Unlock()
}

func (b *eventBus) addError(h func(error)) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.onError = append(b.onError, h)
	b.mu.Unlock()
}

func (b *eventBus) addMessage(h MessageHandler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.messages = append(b.messages, h)
	b.mu.Unlock()
}

func (b *eventBus) emit(event error) {
	b.mu.RLock()
	handlers := b.lifecycle
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// emitError surfaces a transport error not tied to any pending operation.
func (b *eventBus) emitError(err error) {
	b.mu.RLock()
	handlers := b.onError
	b.mu.RUnlock()

	for _, h := range handlers {
		h(err)
	}
}

func (b *eventBus) emitMessage(msg *Message) {
	b.mu.RLock()
	handlers := b.messages
	b.mu.RUnlock()

	for _, h := range handlers {
		h(msg)
	}
}
