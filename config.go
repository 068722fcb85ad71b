package mqtt311

import (
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

// Config is the YAML-loadable client configuration. Every field maps to
// a client option; zero values leave the option at its default.
type Config struct {
	Server       string `yaml:"server"`
	ClientID     string `yaml:"client_id"`
	CleanSession *bool  `yaml:"clean_session"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	KeepAlive        time.Duration `yaml:"keep_alive"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	OperationTimeout time.Duration `yaml:"operation_timeout"`
	MaxPacketSize    uint32        `yaml:"max_packet_size"`

	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`
	MaxBackoff       time.Duration `yaml:"max_backoff"`

	Will *WillConfig `yaml:"will"`

	Proxy *ProxyConfig `yaml:"proxy"`

	PublishRate  float64 `yaml:"publish_rate"`
	PublishBurst int     `yaml:"publish_burst"`

	TLS *TLSConfig `yaml:"tls"`
}

// WillConfig is the YAML shape of a last-will message.
type WillConfig struct {
	Topic   string `yaml:"topic"`
	Payload string `yaml:"payload"`
	QoS     byte   `yaml:"qos"`
	Retain  bool   `yaml:"retain"`
}

// TLSConfig is the YAML shape of the TLS settings.
type TLSConfig struct {
	ServerName         string `yaml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration bytes.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Options converts the configuration into client options.
func (c *Config) Options() []Option {
	var opts []Option

	if c.Server != "" {
		opts = append(opts, WithServer(c.Server))
	}
	if c.ClientID != "" {
		opts = append(opts, WithClientID(c.ClientID))
	}
	if c.CleanSession != nil {
		opts = append(opts, WithCleanSession(*c.CleanSession))
	}
	if c.Username != "" {
		opts = append(opts, WithCredentials(c.Username, []byte(c.Password)))
	}
	if c.KeepAlive > 0 {
		opts = append(opts, WithKeepAlive(c.KeepAlive))
	}
	if c.PingTimeout > 0 {
		opts = append(opts, WithPingTimeout(c.PingTimeout))
	}
	if c.ConnectTimeout > 0 {
		opts = append(opts, WithConnectTimeout(c.ConnectTimeout))
	}
	if c.WriteTimeout > 0 {
		opts = append(opts, WithWriteTimeout(c.WriteTimeout))
	}
	if c.OperationTimeout > 0 {
		opts = append(opts, WithProtocolOperationTimeout(c.OperationTimeout))
	}
	if c.MaxPacketSize > 0 {
		opts = append(opts, WithMaxPacketSize(c.MaxPacketSize))
	}
	if c.ReconnectBackoff > 0 {
		maxBackoff := c.MaxBackoff
		if maxBackoff <= 0 {
			maxBackoff = DefaultMaxBackoff
		}
		opts = append(opts, WithReconnectBackoff(c.ReconnectBackoff, maxBackoff))
	}
	if c.Will != nil {
		opts = append(opts, WithWill(&WillMessage{
			Topic:   c.Will.Topic,
			Payload: []byte(c.Will.Payload),
			QoS:     c.Will.QoS,
			Retain:  c.Will.Retain,
		}))
	}
	if c.Proxy != nil {
		opts = append(opts, WithProxy(*c.Proxy))
	}
	if c.PublishRate > 0 {
		burst := c.PublishBurst
		if burst <= 0 {
			burst = 1
		}
		opts = append(opts, WithPublishRateLimit(rate.Limit(c.PublishRate), burst))
	}
	if c.TLS != nil {
		opts = append(opts, WithTLS(&tls.Config{
			ServerName:         c.TLS.ServerName,
			InsecureSkipVerify: c.TLS.InsecureSkipVerify,
			MinVersion:         tls.VersionTLS12,
		}))
	}

	return opts
}
