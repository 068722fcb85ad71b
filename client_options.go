package mqtt311

import (
	"crypto/tls"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Default client settings.
const (
	DefaultKeepAlive        = 60 * time.Second
	DefaultPingTimeout      = 10 * time.Second
	DefaultConnectTimeout   = 30 * time.Second
	DefaultWriteTimeout     = 30 * time.Second
	DefaultOperationTimeout = 30 * time.Second
	DefaultReconnectBackoff = 1 * time.Second
	DefaultMaxBackoff       = 2 * time.Minute
	DefaultMaxPacketSize    = 268435455 // protocol maximum
)

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	server       string
	clientID     string
	cleanSession bool
	username     string
	password     []byte
	will         *WillMessage

	keepAlive        time.Duration
	pingTimeout      time.Duration
	connectTimeout   time.Duration
	writeTimeout     time.Duration
	operationTimeout time.Duration
	maxPacketSize    uint32

	reconnectBackoff time.Duration
	maxBackoff       time.Duration

	tlsConfig *tls.Config
	proxy     *ProxyDialer

	publishLimiter *rate.Limiter

	transport Transport
	logger    Logger

	lifecycleHandlers []EventHandler
	errorHandlers     []func(error)
	messageHandlers   []MessageHandler
}

func defaultOptions() *clientOptions {
	return &clientOptions{
		clientID:         "mqtt-" + uuid.NewString(),
		cleanSession:     true,
		keepAlive:        DefaultKeepAlive,
		pingTimeout:      DefaultPingTimeout,
		connectTimeout:   DefaultConnectTimeout,
		writeTimeout:     DefaultWriteTimeout,
		operationTimeout: DefaultOperationTimeout,
		maxPacketSize:    DefaultMaxPacketSize,
		reconnectBackoff: DefaultReconnectBackoff,
		maxBackoff:       DefaultMaxBackoff,
		logger:           NewNoOpLogger(),
	}
}

// WithServer sets the broker address in URI form, e.g. tcp://host:1883,
// ssl://host:8883, ws://host/mqtt, quic://host:8883.
func WithServer(server string) Option {
	return func(o *clientOptions) {
		o.server = server
	}
}

// WithClientID sets the MQTT client identifier. When unset a random
// identifier is generated.
func WithClientID(clientID string) Option {
	return func(o *clientOptions) {
		o.clientID = clientID
	}
}

// WithCleanSession controls the CONNECT clean session flag. Defaults to
// true.
func WithCleanSession(clean bool) Option {
	return func(o *clientOptions) {
		o.cleanSession = clean
	}
}

// WithCredentials sets the username and password sent in CONNECT.
func WithCredentials(username string, password []byte) Option {
	return func(o *clientOptions) {
		o.username = username
		o.password = password
	}
}

// WithWill registers a last-will message.
func WithWill(will *WillMessage) Option {
	return func(o *clientOptions) {
		o.will = will
	}
}

// WithKeepAlive sets the keep alive interval. Zero disables keep alive.
func WithKeepAlive(interval time.Duration) Option {
	return func(o *clientOptions) {
		o.keepAlive = interval
	}
}

// WithPingTimeout sets how long to wait for a PINGRESP before the
// connection is considered dead.
func WithPingTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		o.pingTimeout = timeout
	}
}

// WithConnectTimeout bounds the dial and CONNECT/CONNACK handshake.
func WithConnectTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		o.connectTimeout = timeout
	}
}

// WithWriteTimeout bounds every packet write.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		o.writeTimeout = timeout
	}
}

// WithProtocolOperationTimeout bounds how long the client waits for the
// acknowledgement of a publish or unsubscribe before failing it with
// ErrOperationTimeout. Zero disables the timeout.
func WithProtocolOperationTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		o.operationTimeout = timeout
	}
}

// WithMaxPacketSize limits the size of inbound packets.
func WithMaxPacketSize(size uint32) Option {
	return func(o *clientOptions) {
		o.maxPacketSize = size
	}
}

// WithReconnectBackoff sets the initial reconnect delay and the cap the
// exponential backoff grows toward.
func WithReconnectBackoff(initial, max time.Duration) Option {
	return func(o *clientOptions) {
		o.reconnectBackoff = initial
		o.maxBackoff = max
	}
}

// WithTLS sets the TLS configuration for ssl, wss and quic servers.
func WithTLS(config *tls.Config) Option {
	return func(o *clientOptions) {
		o.tlsConfig = config
	}
}

// WithProxy routes the broker connection through an HTTP CONNECT or
// SOCKS5 proxy.
func WithProxy(config ProxyConfig) Option {
	return func(o *clientOptions) {
		dialer, err := NewProxyDialer(config.URL, config.Username, config.Password)
		if err != nil {
			return
		}
		o.proxy = dialer
	}
}

// WithPublishRateLimit throttles outbound publishes to the given rate
// with the given burst.
func WithPublishRateLimit(limit rate.Limit, burst int) Option {
	return func(o *clientOptions) {
		o.publishLimiter = rate.NewLimiter(limit, burst)
	}
}

// WithTransport replaces the default network transport. Used for
// testing and custom wire setups.
func WithTransport(transport Transport) Option {
	return func(o *clientOptions) {
		o.transport = transport
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger Logger) Option {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEventHandler registers a handler for lifecycle events. The event
// is an error matching ErrConnected, ErrResumed, ErrInterrupted or
// ErrDisconnected; use errors.As to extract the typed payload.
func WithEventHandler(handler EventHandler) Option {
	return func(o *clientOptions) {
		o.lifecycleHandlers = append(o.lifecycleHandlers, handler)
	}
}

// WithErrorHandler registers a handler for asynchronous errors not tied
// to any pending operation.
func WithErrorHandler(handler func(error)) Option {
	return func(o *clientOptions) {
		o.errorHandlers = append(o.errorHandlers, handler)
	}
}

// WithMessageHandler registers a handler invoked for every received
// message, regardless of subscription routing.
func WithMessageHandler(handler MessageHandler) Option {
	return func(o *clientOptions) {
		o.messageHandlers = append(o.messageHandlers, handler)
	}
}
