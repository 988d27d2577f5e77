package network

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/psn.report/internal/monitoring"
)

// DropCounter receives a count of packets the forwarder could not queue.
type DropCounter interface {
	AddDropped()
}

// PacketForwarder relays raw PSN datagrams to a unicast address, for hosts
// that cannot join the multicast group. Forwarding never blocks the receive
// loop: when the queue is full the datagram is dropped and counted.
type PacketForwarder struct {
	conn        net.Conn
	channel     chan []byte
	stats       DropCounter
	logInterval time.Duration
	address     string
	startOnce   sync.Once
	closeOnce   sync.Once
	done        chan struct{} // closed when the send loop exits
}

// NewPacketForwarder dials addr:port over UDP.
func NewPacketForwarder(addr string, port int, stats DropCounter, logInterval time.Duration) (*PacketForwarder, error) {
	forwardAddress := net.JoinHostPort(addr, fmt.Sprint(port))
	forwardUDPAddr, err := net.ResolveUDPAddr("udp", forwardAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve forward address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, forwardUDPAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create forward connection: %w", err)
	}
	if stats == nil {
		stats = noopStats{}
	}
	if logInterval <= 0 {
		logInterval = time.Minute
	}
	return &PacketForwarder{
		conn:        conn,
		channel:     make(chan []byte, 1000),
		stats:       stats,
		logInterval: logInterval,
		address:     forwardAddress,
	}, nil
}

// Address returns the destination host:port.
func (f *PacketForwarder) Address() string { return f.address }

// Start runs the send loop until ctx is done. Send errors are summarised
// once per log interval. Calls after the first do nothing.
func (f *PacketForwarder) Start(ctx context.Context) {
	f.startOnce.Do(func() { f.start(ctx) })
}

func (f *PacketForwarder) start(ctx context.Context) {
	f.done = make(chan struct{})
	go func() {
		defer close(f.done)
		droppedCount := 0
		var lastError error
		ticker := time.NewTicker(f.logInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case packet, ok := <-f.channel:
				if !ok {
					return
				}
				if _, err := f.conn.Write(packet); err != nil {
					droppedCount++
					lastError = err
				}
			case <-ticker.C:
				if droppedCount > 0 && lastError != nil {
					monitoring.Logf("Dropped %d forwarded packets due to errors (latest: %v)", droppedCount, lastError)
					droppedCount = 0
					lastError = nil
				}
			}
		}
	}()

	monitoring.Logf("Forwarding PSN packets to %s", f.address)
}

// ForwardAsync queues a copy of packet without blocking.
func (f *PacketForwarder) ForwardAsync(packet []byte) {
	packetCopy := make([]byte, len(packet))
	copy(packetCopy, packet)

	select {
	case f.channel <- packetCopy:
	default:
		f.stats.AddDropped()
	}
}

// Forward queues a copy of packet, waiting for room in the queue. It
// returns ctx.Err() if ctx is done first. The send loop must be running.
func (f *PacketForwarder) Forward(ctx context.Context, packet []byte) error {
	packetCopy := make([]byte, len(packet))
	copy(packetCopy, packet)

	select {
	case f.channel <- packetCopy:
		return nil
	case <-ctx.Done():
		f.stats.AddDropped()
		return ctx.Err()
	}
}

// Close stops the send loop and closes the connection. If the loop is still
// running it first sends everything already queued. Only the first call has
// any effect.
func (f *PacketForwarder) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.channel)
		if f.done != nil {
			<-f.done
		}
		err = f.conn.Close()
	})
	return err
}
