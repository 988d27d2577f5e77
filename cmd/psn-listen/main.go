// Command psn-listen joins a PosiStageNet multicast group, keeps the latest
// state of every tracker, serves it over HTTP and optionally publishes
// tracker and motion events to NATS.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/banshee-data/psn.report/internal/api"
	"github.com/banshee-data/psn.report/internal/config"
	"github.com/banshee-data/psn.report/internal/monitoring"
	"github.com/banshee-data/psn.report/internal/psn"
	"github.com/banshee-data/psn.report/internal/psn/monitor"
	"github.com/banshee-data/psn.report/internal/psn/network"
	"github.com/banshee-data/psn.report/internal/psn/publish"
	"github.com/banshee-data/psn.report/internal/timeutil"
	"github.com/banshee-data/psn.report/internal/version"
)

// options are settings that only make sense on the command line.
type options struct {
	tuningFile  string
	pcapFile    string
	showVersion bool
}

// parseFlags layers command-line flags over cfg, which already holds the
// environment values, so an unset flag keeps the environment setting.
func parseFlags(args []string, cfg *config.Config, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("psn-listen", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.IntVar(&cfg.Port, "port", cfg.Port, "UDP port to listen on")
	fs.StringVar(&cfg.Group, "group", cfg.Group, "Multicast group to join (empty for unicast)")
	fs.StringVar(&cfg.Interface, "iface", cfg.Interface, "Interface name or address for the multicast join")
	fs.IntVar(&cfg.RcvBuf, "rcvbuf", cfg.RcvBuf, "UDP receive buffer size in bytes")
	fs.DurationVar(&cfg.LogInterval, "log-interval", cfg.LogInterval, "Interval between traffic statistics log lines")
	fs.Float64Var(&cfg.ChangeThreshold, "threshold", cfg.ChangeThreshold, "Per-axis movement threshold in metres")
	fs.DurationVar(&cfg.ChangeDebounce, "debounce", cfg.ChangeDebounce, "Time a tracker must hold still to be reported settled")
	fs.StringVar(&cfg.ForwardAddr, "forward", cfg.ForwardAddr, "Relay raw datagrams to host:port")
	fs.StringVar(&cfg.NATSURL, "nats", cfg.NATSURL, "NATS server URL (empty disables publishing)")
	fs.StringVar(&cfg.NATSSubjectPrefix, "subject-prefix", cfg.NATSSubjectPrefix, "First token of published NATS subjects")
	fs.StringVar(&cfg.HTTPListen, "listen", cfg.HTTPListen, "HTTP listen address (empty disables the API)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug|info|warn|error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (json|text)")
	fs.StringVar(&opts.tuningFile, "tuning", "", "Optional JSON tuning file applied over env and flags")
	fs.StringVar(&opts.pcapFile, "pcap", "", "Replay a capture file instead of listening")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

// loadConfig resolves the final configuration: environment, then flags, then
// the tuning file.
func loadConfig(args []string, stderr io.Writer) (config.Config, options, error) {
	cfg, err := config.ParseConfigFromEnv()
	if err != nil {
		return cfg, options{}, err
	}
	opts, err := parseFlags(args, &cfg, stderr)
	if err != nil {
		return cfg, opts, err
	}
	if opts.tuningFile != "" {
		tc, err := config.LoadTuningConfig(opts.tuningFile)
		if err != nil {
			return cfg, opts, err
		}
		tc.ApplyTo(&cfg)
	}
	return cfg, opts, cfg.Validate()
}

func main() {
	// load .env file automatically
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found (continuing with system environment)")
	}

	cfg, opts, err := loadConfig(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Println("psn-listen", version.String())
		return
	}

	logger, err := monitoring.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	monitoring.SetLogger(logger)
	slog.SetDefault(logger)

	if _, err := maxprocs.Set(maxprocs.Logger(func(message string, args ...any) {
		logger.Info(fmt.Sprintf(message, args...))
	})); err != nil {
		logger.Error("could not set GOMAXPROCS", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("psn-listen stopped", "error", err)
		os.Exit(1)
	}
}

func buildPublisher(cfg config.Config, logger *slog.Logger) (publish.Publisher, error) {
	pubs := publish.Multi{publish.LogPublisher{Logger: logger.With("component", "events")}}
	if cfg.NATSURL == "" {
		return pubs, nil
	}
	nc, err := publish.DialNATS(publish.NATSOptions{
		URL:              cfg.NATSURL,
		ClientPrefix:     cfg.NATSClientPrefix,
		ReconnectBufSize: cfg.NATSOutgoingBufferSize,
		Logger:           logger.With("component", "nats"),
	})
	if err != nil {
		return nil, err
	}
	logger.Info("publishing events to NATS", "url", cfg.NATSURL, "prefix", cfg.NATSSubjectPrefix)
	return append(pubs, publish.NewNATSPublisher(nc, cfg.NATSSubjectPrefix)), nil
}

func run(ctx context.Context, cfg config.Config, opts options, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Replays stamp records with capture time rather than wall time.
	var clock timeutil.Clock = timeutil.RealClock{}
	var replayClock *timeutil.MockClock
	if opts.pcapFile != "" {
		replayClock = timeutil.NewMockClock(time.Time{})
		clock = replayClock
	}

	session := psn.NewSession(psn.SessionOptions{Clock: clock})
	logger.Info("PSN session started", "session", session.ID(), "version", version.Version)

	pub, err := buildPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer pub.Close()

	detector := monitor.NewDetector(cfg.ChangeThreshold, cfg.ChangeDebounce)
	dispatcher := publish.NewDispatcher(pub, detector)
	stats := network.NewPacketStats()

	var forwarder *network.PacketForwarder
	if cfg.ForwardAddr != "" {
		host, portStr, err := net.SplitHostPort(cfg.ForwardAddr)
		if err != nil {
			return fmt.Errorf("invalid forward address %q: %w", cfg.ForwardAddr, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid forward port %q: %w", portStr, err)
		}
		forwarder, err = network.NewPacketForwarder(host, port, stats, cfg.LogInterval)
		if err != nil {
			return err
		}
		defer forwarder.Close()
	}

	listener := network.NewUDPListener(network.UDPListenerConfig{
		Multicast: network.MulticastConfig{
			Port:      cfg.Port,
			Group:     cfg.GroupIP(),
			Interface: cfg.Interface,
		},
		RcvBuf:      cfg.RcvBuf,
		LogInterval: cfg.LogInterval,
		Stats:       stats,
		Forwarder:   forwarder,
		Decoder:     session,
		Handler:     dispatcher,
		Clock:       clock,
	})

	var wg sync.WaitGroup
	if cfg.HTTPListen != "" {
		server := &http.Server{
			Addr:              cfg.HTTPListen,
			Handler:           api.LoggingMiddleware(api.NewServer(session).ServeMux()),
			ReadHeaderTimeout: 5 * time.Second,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("HTTP server listening", "addr", cfg.HTTPListen)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server failed", "error", err)
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("HTTP server shutdown", "error", err)
			}
		}()
	}

	var runErr error
	if opts.pcapFile != "" {
		runErr = replay(ctx, opts.pcapFile, cfg, listener, dispatcher, detector.Debounce(), replayClock, stats, session, logger)
		if forwarder != nil {
			// Send what replay queued before the context goes away.
			if err := forwarder.Close(); err != nil {
				logger.Warn("closing forwarder", "error", err)
			}
		}
		if runErr == nil && cfg.HTTPListen != "" {
			logger.Info("replay complete; serving results until interrupted")
			<-ctx.Done()
		}
	} else {
		runErr = listener.Start(ctx)
	}
	cancel()
	wg.Wait()
	return runErr
}

func replay(ctx context.Context, path string, cfg config.Config, listener *network.UDPListener,
	dispatcher *publish.Dispatcher, debounce time.Duration, clock *timeutil.MockClock, stats *network.PacketStats,
	session *psn.Session, logger *slog.Logger) error {
	res, err := network.ReadPCAPFile(ctx, path, network.PCAPReplayConfig{
		Port:    cfg.Port,
		SetTime: clock.Set,
	}, listener)
	if err != nil {
		return err
	}
	// Flush settle events that the capture ended before reporting.
	dispatcher.Tick(clock.Now().Add(debounce))
	stats.LogStats()
	logger.Info("replay finished", "packets", res.Packets, "datagrams", res.Datagram,
		"trackers", session.Store().Len(), "failures", session.Stats().TotalFailures(),
		"elapsed", res.Elapsed)
	return nil
}
