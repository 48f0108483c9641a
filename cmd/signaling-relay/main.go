package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/devicelink/signaling-relay/internal/config"
	"github.com/devicelink/signaling-relay/internal/httpserver"
	"github.com/devicelink/signaling-relay/internal/janitor"
	"github.com/devicelink/signaling-relay/internal/metrics"
	"github.com/devicelink/signaling-relay/internal/pairing"
	"github.com/devicelink/signaling-relay/internal/presence"
	"github.com/devicelink/signaling-relay/internal/relay"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting signaling-relay",
		"listen_addr", cfg.ListenAddr,
		"presence_ttl", cfg.PresenceTTL,
		"presence_sweep_interval", cfg.PresenceSweepInterval,
		"pairing_ttl", cfg.PairingTTL,
		"pairing_sweep_interval", cfg.PairingSweepInterval,
		"max_message_bytes", cfg.MaxMessageBytes,
		"max_messages_per_second", cfg.MaxMessagesPerSecond,
		"trust_proxy", cfg.TrustProxy,
	)

	logStartupWarnings(logger, cfg)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	commit, built := resolveBuildInfo(buildCommit, buildTime)
	srv := httpserver.New(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: built})

	m := metrics.New()
	registry := presence.NewRegistry(nil)
	store := pairing.NewStore(cfg.PairingTTL, nil)
	relaySrv := relay.NewServer(cfg, registry, store, m, nil, logger)

	srv.Mux().Handle("GET /ws", relaySrv)
	srv.Mux().Handle("GET /metrics", metrics.PrometheusHandler(m))

	sweeper := janitor.New(logger,
		janitor.Job{
			Name:   "presence",
			Period: cfg.PresenceSweepInterval,
			Run: func() int {
				evicted := registry.Sweep(cfg.PresenceTTL)
				m.Add(metrics.PresenceEvicted, uint64(evicted))
				return evicted
			},
		},
		janitor.Job{
			Name:   "pairing",
			Period: cfg.PairingSweepInterval,
			Run: func() int {
				swept := store.Sweep()
				m.Add(metrics.PairingSwept, uint64(swept))
				return swept
			},
		},
	)
	sweeper.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		sweeper.Stop()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}
	sweeper.Stop()
	registry.CloseAll()

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return commit, buildTime
}
