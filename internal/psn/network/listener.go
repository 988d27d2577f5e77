package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/psn.report/internal/monitoring"
	"github.com/banshee-data/psn.report/internal/psn"
	"github.com/banshee-data/psn.report/internal/psn/wire"
	"github.com/banshee-data/psn.report/internal/timeutil"
)

// Decoder turns one datagram into a snapshot. *psn.Session implements it.
type Decoder interface {
	Decode(raw []byte) (*psn.Snapshot, error)
}

// SnapshotHandler consumes each successfully decoded snapshot.
type SnapshotHandler interface {
	HandleSnapshot(snap *psn.Snapshot)
}

// Ticker is optionally implemented by a SnapshotHandler that needs periodic
// calls, for example to report trackers that stopped moving.
type Ticker interface {
	Tick(now time.Time)
}

// SnapshotHandlerFunc adapts a function to SnapshotHandler.
type SnapshotHandlerFunc func(snap *psn.Snapshot)

func (f SnapshotHandlerFunc) HandleSnapshot(snap *psn.Snapshot) { f(snap) }

// UDPListener receives PSN datagrams, decodes them and hands snapshots to a
// handler. Decode failures are logged with the datagram size and source and
// never stop the loop.
type UDPListener struct {
	multicast     MulticastConfig
	rcvBuf        int
	logInterval   time.Duration
	tickInterval  time.Duration
	socketFactory UDPSocketFactory
	stats         PacketStatsInterface
	forwarder     *PacketForwarder
	decoder       Decoder
	handler       SnapshotHandler
	clock         timeutil.Clock
	lastTick      time.Time
}

// UDPListenerConfig contains configuration options for the UDP listener
type UDPListenerConfig struct {
	Multicast     MulticastConfig
	RcvBuf        int
	LogInterval   time.Duration
	TickInterval  time.Duration
	SocketFactory UDPSocketFactory
	Stats         PacketStatsInterface
	Forwarder     *PacketForwarder
	Decoder       Decoder
	Handler       SnapshotHandler
	Clock         timeutil.Clock
}

// NewUDPListener creates a new UDP listener with the provided configuration
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	l := &UDPListener{
		multicast:     config.Multicast,
		rcvBuf:        config.RcvBuf,
		logInterval:   config.LogInterval,
		tickInterval:  config.TickInterval,
		socketFactory: config.SocketFactory,
		stats:         config.Stats,
		forwarder:     config.Forwarder,
		decoder:       config.Decoder,
		handler:       config.Handler,
		clock:         config.Clock,
	}
	if l.multicast.Port == 0 {
		l.multicast.Port = DefaultPort
	}
	if l.stats == nil {
		l.stats = noopStats{}
	}
	if l.logInterval == 0 {
		l.logInterval = time.Minute
	}
	if l.tickInterval == 0 {
		l.tickInterval = 100 * time.Millisecond
	}
	if l.socketFactory == nil {
		l.socketFactory = NewRealUDPSocketFactory()
	}
	if l.clock == nil {
		l.clock = timeutil.RealClock{}
	}
	return l
}

// Start listens until ctx is cancelled. It returns ctx.Err() on
// cancellation and an error if the socket cannot be opened.
func (l *UDPListener) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, err := l.socketFactory.Listen(ctx, l.multicast)
	if err != nil {
		return fmt.Errorf("failed to open PSN socket: %w", err)
	}
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Logger().Warn("failed to set UDP receive buffer size", "bytes", l.rcvBuf, "error", err)
		}
	}
	monitoring.Logger().Info("PSN listener started", "listen", l.multicast.String(), "rcvbuf", l.rcvBuf)

	if l.forwarder != nil {
		l.forwarder.Start(ctx)
	}
	go l.startStatsLogging(ctx)

	buffer := make([]byte, wire.MaxDatagramSize)
	l.lastTick = l.clock.Now()
	for {
		select {
		case <-ctx.Done():
			monitoring.Logger().Info("PSN listener stopping due to context cancellation")
			return ctx.Err()
		default:
		}

		// Short deadline so cancellation and ticks are noticed promptly.
		if err := conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
			monitoring.Logger().Warn("failed to set read deadline", "error", err)
		}
		n, addr, err := conn.ReadFromUDP(buffer)
		l.maybeTick()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("PSN socket closed: %w", err)
			}
			monitoring.Logger().Warn("UDP read error", "error", err)
			continue
		}
		l.HandlePacket(buffer[:n], addr)
	}
}

func (l *UDPListener) maybeTick() {
	t, ok := l.handler.(Ticker)
	if !ok {
		return
	}
	now := l.clock.Now()
	if now.Sub(l.lastTick) < l.tickInterval {
		return
	}
	l.lastTick = now
	t.Tick(now)
}

// startStatsLogging periodically logs packet statistics until ctx is done.
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	ticker := l.clock.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			l.stats.LogStats()
		}
	}
}

// HandlePacket processes a single datagram. packet is only valid for the
// duration of the call.
func (l *UDPListener) HandlePacket(packet []byte, addr *net.UDPAddr) {
	l.stats.AddPacket(len(packet))

	if l.forwarder != nil {
		l.forwarder.ForwardAsync(packet)
	}
	l.decode(packet, addr)
}

// replayPacket is HandlePacket for capture replay: forwarding waits for
// queue space instead of dropping, since replay is not paced.
func (l *UDPListener) replayPacket(ctx context.Context, packet []byte, addr *net.UDPAddr) error {
	l.stats.AddPacket(len(packet))

	if l.forwarder != nil {
		if err := l.forwarder.Forward(ctx, packet); err != nil {
			return err
		}
	}
	l.decode(packet, addr)
	return nil
}

func (l *UDPListener) decode(packet []byte, addr *net.UDPAddr) {
	if l.decoder == nil {
		return
	}

	snap, err := l.decoder.Decode(packet)
	if err != nil {
		l.stats.AddFailure()
		monitoring.Logger().Warn("PSN decode failed", "bytes", len(packet), "source", addrString(addr), "error", err)
		return
	}
	l.stats.AddTrackers(len(snap.Updated()))
	if l.handler != nil {
		l.handler.HandleSnapshot(snap)
	}
}

func addrString(addr *net.UDPAddr) string {
	if addr == nil {
		return "unknown"
	}
	return addr.String()
}
