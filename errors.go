package mqtt311

import "errors"

// Sentinel errors for failed operations - check with errors.Is().
var (
	// ErrConnectFailed is returned when the handshake fails before the
	// first successful connect.
	ErrConnectFailed = errors.New("connect failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("subscribe failed")

	// ErrUnsubscribeFailed is returned when an unsubscribe operation fails.
	ErrUnsubscribeFailed = errors.New("unsubscribe failed")

	// ErrConnectionClosed is returned for every operation still pending
	// when the connection is torn down.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrOperationTimeout is returned when a pending operation does not
	// receive its acknowledgement within the protocol operation timeout.
	ErrOperationTimeout = errors.New("operation timed out")
)

// Sentinel errors for synchronous validation failures - check with errors.Is().
var (
	// ErrInvalidPayload is returned when a payload cannot be normalized
	// to bytes. The failure is synchronous; no transport call is made.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrInvalidTopicName is returned for a malformed concrete topic name.
	ErrInvalidTopicName = errors.New("invalid topic name")

	// ErrInvalidTopicFilter is returned for a malformed topic filter,
	// for example '#' not in the final position.
	ErrInvalidTopicFilter = errors.New("invalid topic filter")

	// ErrEmptyTopic is returned when a topic or filter is empty.
	ErrEmptyTopic = errors.New("topic cannot be empty")
)

// Sentinel errors for client state - check with errors.Is().
var (
	// ErrClientClosed is returned when an operation is attempted on a
	// closed client.
	ErrClientClosed = errors.New("client closed")

	// ErrNotConnected is returned when an operation requires an active
	// connection.
	ErrNotConnected = errors.New("not connected")

	// ErrPacketIDExhausted is returned when no packet identifiers are
	// available.
	ErrPacketIDExhausted = errors.New("no available packet IDs")
)
