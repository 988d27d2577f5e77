package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/psn.report/internal/config"
	tu "github.com/banshee-data/psn.report/internal/testutil"
)

func defaultConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.ParseConfig(map[string]string{})
	require.NoError(t, err)
	return cfg
}

func TestParseFlags_KeepsEnvironmentWhenUnset(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Port = 7000 // as if from PSN_PORT
	want := cfg

	opts, err := parseFlags(nil, &cfg, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, want, cfg)
	assert.Equal(t, options{}, opts)
}

func TestParseFlags_Overrides(t *testing.T) {
	cfg := defaultConfig(t)
	opts, err := parseFlags([]string{
		"-port", "9001",
		"-group", "",
		"-threshold", "0.5",
		"-debounce", "300ms",
		"-nats", "nats://127.0.0.1:4222",
		"-listen", "",
		"-pcap", "show.pcap",
		"-tuning", "venue.json",
		"-version",
	}, &cfg, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Port)
	assert.Empty(t, cfg.Group)
	assert.Equal(t, 0.5, cfg.ChangeThreshold)
	assert.Equal(t, 300*time.Millisecond, cfg.ChangeDebounce)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATSURL)
	assert.Empty(t, cfg.HTTPListen)
	assert.Equal(t, "show.pcap", opts.pcapFile)
	assert.Equal(t, "venue.json", opts.tuningFile)
	assert.True(t, opts.showVersion)
}

func TestParseFlags_Errors(t *testing.T) {
	cfg := defaultConfig(t)
	var stderr bytes.Buffer

	_, err := parseFlags([]string{"-port", "abc"}, &cfg, &stderr)
	assert.Error(t, err)

	_, err = parseFlags([]string{"stray"}, &cfg, &stderr)
	assert.ErrorContains(t, err, "unexpected arguments")

	_, err = parseFlags([]string{"-h"}, &cfg, &stderr)
	assert.True(t, errors.Is(err, flag.ErrHelp))
	assert.Contains(t, stderr.String(), "-threshold")
}

func TestLoadConfig_TuningOverridesFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "venue.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"change_threshold": 0.2}`), 0o644))

	cfg, opts, err := loadConfig([]string{"-threshold", "3", "-tuning", path}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, path, opts.tuningFile)
	assert.Equal(t, 0.2, cfg.ChangeThreshold)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, _, err := loadConfig([]string{"-group", "10.1.1.1"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "PSN_GROUP")

	_, _, err = loadConfig([]string{"-tuning", "missing.json"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestBuildPublisher_LogOnly(t *testing.T) {
	cfg := defaultConfig(t)
	pub, err := buildPublisher(cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.NoError(t, pub.Close())
}

func TestRun_ReplayMissingFile(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.HTTPListen = ""
	err := run(context.Background(), cfg, options{pcapFile: filepath.Join(t.TempDir(), "none.pcap")}, slog.New(slog.DiscardHandler))
	assert.Error(t, err)
}

func TestRun_BadForwardAddress(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.HTTPListen = ""
	cfg.ForwardAddr = "127.0.0.1"
	err := run(context.Background(), cfg, options{pcapFile: filepath.Join(t.TempDir(), "none.pcap")}, slog.New(slog.DiscardHandler))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid forward address")
}

// writeReplayCapture writes one Ethernet/IPv4/UDP frame per payload.
func writeReplayCapture(t *testing.T, port int, payloads ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replay.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	at := time.Date(2025, 3, 14, 19, 30, 0, 0, time.UTC)
	for i, payload := range payloads {
		ip := &layers.IPv4{
			Version:  4,
			TTL:      1,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.IPv4(10, 0, 0, 5),
			DstIP:    net.IPv4(236, 10, 10, 10),
		}
		udp := &layers.UDP{SrcPort: 40000, DstPort: layers.UDPPort(port)}
		require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 5},
			DstMAC:       net.HardwareAddr{0x01, 0x00, 0x5e, 0x0a, 0x0a, 0x0a},
			EthernetType: layers.EthernetTypeIPv4,
		}
		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))
		frame := buf.Bytes()
		ci := gopacket.CaptureInfo{
			Timestamp:     at.Add(time.Duration(i) * 16 * time.Millisecond),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		require.NoError(t, w.WritePacket(ci, frame))
	}
	return path
}

func TestRun_ReplayRelaysToForwarder(t *testing.T) {
	sink, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Skipf("loopback UDP unavailable: %v", err)
	}
	defer sink.Close()

	cfg := defaultConfig(t)
	cfg.HTTPListen = ""
	cfg.ForwardAddr = sink.LocalAddr().String()

	payloads := [][]byte{
		tu.InfoPacket("Studio B", 1, 1, tu.TrackerName(2, "Boom")),
		tu.DataPacket(1, 1, tu.Tracker(2, tu.Position(0, 1, 0))),
		tu.DataPacket(2, 1, tu.Tracker(2, tu.Position(0, 2, 0))),
	}
	path := writeReplayCapture(t, cfg.Port, payloads...)

	require.NoError(t, run(context.Background(), cfg, options{pcapFile: path}, slog.New(slog.DiscardHandler)))

	buf := make([]byte, 1500)
	for i, want := range payloads {
		require.NoError(t, sink.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, _, err := sink.ReadFromUDP(buf)
		require.NoError(t, err, "datagram %d", i)
		assert.True(t, bytes.Equal(want, buf[:n]), "datagram %d differs", i)
	}
}

func TestRun_ReplayFlushUsesDetectorDebounce(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.HTTPListen = ""
	cfg.ChangeDebounce = 0 // detector falls back to its default window

	path := writeReplayCapture(t, cfg.Port,
		tu.DataPacket(1, 1, tu.Tracker(6, tu.Position(1, 1, 1))),
	)

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	require.NoError(t, run(context.Background(), cfg, options{pcapFile: path}, logger))
	assert.Contains(t, logs.String(), "tracker settled")
}
