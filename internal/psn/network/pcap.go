package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/psn.report/internal/monitoring"
)

// PCAPReplayConfig controls ReadPCAPFile.
type PCAPReplayConfig struct {
	// Port keeps only UDP datagrams sent to this port; 0 keeps all.
	Port int
	// SetTime, if set, is called with each packet's capture time before it is
	// handled, so decode timestamps follow the capture rather than the wall
	// clock.
	SetTime func(time.Time)
}

// PCAPReplayResult summarises a replay.
type PCAPReplayResult struct {
	Packets  int // frames read from the file
	Datagram int // UDP payloads handed to the listener
	Elapsed  time.Duration
}

type packetDataSource interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

func openCapture(f *os.File) (packetDataSource, error) {
	if pr, err := pcapgo.NewReader(f); err == nil {
		return pr, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	ng, err := pcapgo.NewNgReader(f, pcapgo.DefaultNgReaderOptions)
	if err != nil {
		return nil, fmt.Errorf("not a pcap or pcapng file: %w", err)
	}
	return ng, nil
}

// ReadPCAPFile replays the UDP payloads of a capture file through the
// listener, in file order and without pacing. When cfg.SetTime drives the
// listener's clock, handler ticks follow capture time too. A configured
// forwarder is started with ctx and relays every replayed datagram.
func ReadPCAPFile(ctx context.Context, pcapFile string, cfg PCAPReplayConfig, l *UDPListener) (PCAPReplayResult, error) {
	var res PCAPReplayResult
	f, err := os.Open(pcapFile)
	if err != nil {
		return res, fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer f.Close()

	src, err := openCapture(f)
	if err != nil {
		return res, fmt.Errorf("failed to read PCAP file %s: %w", pcapFile, err)
	}

	if l.forwarder != nil {
		l.forwarder.Start(ctx)
	}

	packetSource := gopacket.NewPacketSource(src, src.LinkType())
	packetSource.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}
	startTime := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			monitoring.Logf("PCAP reader stopping due to context cancellation (processed %d packets)", res.Packets)
			return res, err
		}
		packet, err := packetSource.NextPacket()
		if errors.Is(err, io.EOF) {
			res.Elapsed = time.Since(startTime)
			monitoring.Logf("PCAP file reading complete: %d packets, %d PSN datagrams in %v", res.Packets, res.Datagram, res.Elapsed)
			return res, nil
		}
		if err != nil {
			// Truncated trailing records are common in live captures.
			res.Elapsed = time.Since(startTime)
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return res, nil
			}
			return res, fmt.Errorf("failed to read packet %d: %w", res.Packets+1, err)
		}
		res.Packets++

		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if cfg.Port != 0 && int(udp.DstPort) != cfg.Port {
			continue
		}

		var srcAddr *net.UDPAddr
		if ip, ok := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4); ok {
			srcAddr = &net.UDPAddr{IP: ip.SrcIP, Port: int(udp.SrcPort)}
		}
		if cfg.SetTime != nil {
			cfg.SetTime(packet.Metadata().Timestamp)
		}
		res.Datagram++
		if err := l.replayPacket(ctx, udp.Payload, srcAddr); err != nil {
			res.Elapsed = time.Since(startTime)
			return res, err
		}
		l.maybeTick()

		if res.Packets%10000 == 0 {
			monitoring.Logf("PCAP progress: %d packets processed in %v", res.Packets, time.Since(startTime))
		}
	}
}
