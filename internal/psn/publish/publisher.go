package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher receives the events produced for each decoded datagram.
type Publisher interface {
	PublishTracker(ev TrackerEvent) error
	PublishMotion(ev MotionEvent) error
	Close() error
}

// Conn is the part of *nats.Conn the NATS publisher uses.
type Conn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// NATSPublisher publishes JSON events under a subject prefix:
//
//	<prefix>.tracker.<id>  TrackerEvent
//	<prefix>.motion.<id>   MotionEvent
type NATSPublisher struct {
	conn   Conn
	prefix string
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(conn Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = "psn"
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// NATSOptions configures DialNATS.
type NATSOptions struct {
	URL              string
	ClientPrefix     string
	ReconnectBufSize int
	Logger           *slog.Logger
}

// DialNATS connects to a NATS server, retrying forever on disconnect.
func DialNATS(opts NATSOptions) (*nats.Conn, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hostname, _ := os.Hostname()
	options := []nats.Option{
		nats.Name(fmt.Sprintf("%s%s", opts.ClientPrefix, hostname)),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("NATS connection permanently closed")
		}),
	}
	if opts.ReconnectBufSize > 0 {
		options = append(options, nats.ReconnectBufSize(opts.ReconnectBufSize))
	}
	nc, err := nats.Connect(opts.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", opts.URL, err)
	}
	return nc, nil
}

func (p *NATSPublisher) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode event for %s: %w", subject, err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

func (p *NATSPublisher) PublishTracker(ev TrackerEvent) error {
	return p.publish(fmt.Sprintf("%s.tracker.%d", p.prefix, ev.TrackerID), ev)
}

func (p *NATSPublisher) PublishMotion(ev MotionEvent) error {
	return p.publish(fmt.Sprintf("%s.motion.%d", p.prefix, ev.TrackerID), ev)
}

// Close drains the connection so queued events are flushed.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// LogPublisher writes events to a structured logger. Tracker events are
// logged at debug level since one is produced per tracker per datagram.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func (p LogPublisher) PublishTracker(ev TrackerEvent) error {
	p.logger().Debug("tracker", "topic", ev.Topic, "id", ev.TrackerID, "position", ev.Position)
	return nil
}

func (p LogPublisher) PublishMotion(ev MotionEvent) error {
	p.logger().Info("tracker "+ev.Type, "topic", ev.Topic, "id", ev.TrackerID,
		"x", ev.Position.X, "y", ev.Position.Y, "z", ev.Position.Z)
	return nil
}

func (LogPublisher) Close() error { return nil }

// Multi fans events out to several publishers, returning the joined errors.
type Multi []Publisher

func (m Multi) PublishTracker(ev TrackerEvent) error {
	var errs []error
	for _, p := range m {
		errs = append(errs, p.PublishTracker(ev))
	}
	return errors.Join(errs...)
}

func (m Multi) PublishMotion(ev MotionEvent) error {
	var errs []error
	for _, p := range m {
		errs = append(errs, p.PublishMotion(ev))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}
