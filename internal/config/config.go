// Package config loads listener settings from the environment, with an
// optional JSON tuning file layered on top.
package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// LogLevel is the level of logs to output (debug|info|warn|error)
	LogLevel string `env:"LOG_LEVEL" default:"info"`

	// LogFormat selects the log encoding (json|text)
	LogFormat string `env:"LOG_FORMAT" default:"json"`

	// Port is the UDP port PSN senders publish to
	Port int `env:"PSN_PORT" default:"56565"`

	// Group is the multicast group to join; empty binds the port without joining
	Group string `env:"PSN_GROUP" default:"236.10.10.10"`

	// Interface is the interface name or address used for the group join
	Interface string `env:"PSN_INTERFACE" default:""`

	// RcvBuf is the socket receive buffer size in bytes
	RcvBuf int `env:"PSN_RCVBUF" default:"4194304"` // 4MB

	// LogInterval is how often traffic statistics are logged
	LogInterval time.Duration `env:"PSN_LOG_INTERVAL" default:"1m"`

	// ChangeThreshold is the per-axis distance, in metres, that counts as movement
	ChangeThreshold float64 `env:"PSN_CHANGE_THRESHOLD" default:"1.0"`

	// ChangeDebounce is how long a tracker must hold still before it is reported settled
	ChangeDebounce time.Duration `env:"PSN_CHANGE_DEBOUNCE" default:"1s"`

	// ForwardAddr relays every raw datagram to this host:port when set
	ForwardAddr string `env:"PSN_FORWARD_ADDR" default:""`

	// NATSURL enables event publishing when set
	NATSURL string `env:"NATS_URL" default:""`

	// NATSClientPrefix is the prefix to use for the NATS client connection (prefix + hostname)
	NATSClientPrefix string `env:"NATS_CLIENT_PREFIX" default:"psn-listen "`

	// NATSSubjectPrefix is the first token of every published subject
	NATSSubjectPrefix string `env:"NATS_SUBJECT_PREFIX" default:"psn"`

	// NATSOutgoingBufferSize is the size of the outgoing buffer while reconnecting
	NATSOutgoingBufferSize int `env:"NATS_OUTGOING_BUFFER_SIZE" default:"8388608"` // 8MB

	// HTTPListen is the address of the tracker API and debug pages; empty disables it
	HTTPListen string `env:"HTTP_LISTEN" default:"localhost:8082"`
}

// ParseConfigFromEnv reads Config from the process environment.
func ParseConfigFromEnv() (Config, error) {
	return ParseConfig(nil)
}

// ParseConfig reads Config from environ, or from the process environment
// when environ is nil.
func ParseConfig(environ map[string]string) (Config, error) {
	opts := env.Options{DefaultValueTagName: "default"}
	if environ != nil {
		opts.Environment = environ
	}
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PSN_PORT must be between 1 and 65535, got %d", c.Port))
	}
	if c.Group != "" {
		ip := net.ParseIP(c.Group)
		if ip == nil || ip.To4() == nil || !ip.IsMulticast() {
			errs = append(errs, fmt.Errorf("PSN_GROUP must be an IPv4 multicast address, got %q", c.Group))
		}
	}
	if c.RcvBuf < 0 {
		errs = append(errs, fmt.Errorf("PSN_RCVBUF must be non-negative, got %d", c.RcvBuf))
	}
	if c.LogInterval <= 0 {
		errs = append(errs, fmt.Errorf("PSN_LOG_INTERVAL must be positive, got %v", c.LogInterval))
	}
	if c.ChangeThreshold <= 0 {
		errs = append(errs, fmt.Errorf("PSN_CHANGE_THRESHOLD must be positive, got %g", c.ChangeThreshold))
	}
	if c.ChangeDebounce < 0 {
		errs = append(errs, fmt.Errorf("PSN_CHANGE_DEBOUNCE must be non-negative, got %v", c.ChangeDebounce))
	}
	if c.ForwardAddr != "" {
		if _, _, err := net.SplitHostPort(c.ForwardAddr); err != nil {
			errs = append(errs, fmt.Errorf("PSN_FORWARD_ADDR must be host:port: %w", err))
		}
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// GroupIP returns the parsed multicast group, or nil when Group is empty.
func (c Config) GroupIP() net.IP {
	if c.Group == "" {
		return nil
	}
	return net.ParseIP(c.Group)
}
