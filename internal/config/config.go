package config

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/devicelink/signaling-relay/internal/origin"
)

const (
	envVarPort            = "PORT"
	envVarListenAddr      = "LISTEN_ADDR"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"
	envVarTrustProxy      = "TRUST_PROXY"
	envVarLogFormat       = "LOG_FORMAT"
	envVarLogLevel        = "LOG_LEVEL"
	envVarShutdownTimeout = "SHUTDOWN_TIMEOUT"

	envVarPresenceTTL           = "PRESENCE_TTL"
	envVarPresenceSweepInterval = "PRESENCE_SWEEP_INTERVAL"
	envVarPairingTTL            = "PAIRING_TTL"
	envVarPairingSweepInterval  = "PAIRING_SWEEP_INTERVAL"

	envVarMaxMessageBytes      = "MAX_MESSAGE_BYTES"
	envVarMaxMessagesPerSecond = "MAX_MESSAGES_PER_SECOND"

	DefaultPort     = 7071
	DefaultShutdown = 15 * time.Second

	DefaultPresenceTTL           = 60 * time.Second
	DefaultPresenceSweepInterval = 15 * time.Second
	DefaultPairingTTL            = 5 * time.Minute
	DefaultPairingSweepInterval  = 30 * time.Second

	DefaultMaxMessageBytes      = int64(64 * 1024)
	DefaultMaxMessagesPerSecond = 50
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ListenAddr      string
	AllowedOrigins  []string
	TrustProxy      bool
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	PresenceTTL           time.Duration
	PresenceSweepInterval time.Duration
	PairingTTL            time.Duration
	PairingSweepInterval  time.Duration

	MaxMessageBytes      int64
	MaxMessagesPerSecond int
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	listenAddr := envOrDefault(lookup, envVarListenAddr, "")
	if listenAddr == "" {
		port := DefaultPort
		if raw, ok := lookup(envVarPort); ok && strings.TrimSpace(raw) != "" {
			p, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil || p < 1 || p > 65535 {
				return Config{}, fmt.Errorf("invalid %s %q", envVarPort, raw)
			}
			port = p
		}
		listenAddr = net.JoinHostPort("", strconv.Itoa(port))
	}

	allowedOriginsStr := envOrDefault(lookup, envVarAllowedOrigins, "")
	logFormatStr := envOrDefault(lookup, envVarLogFormat, string(LogFormatText))
	logLevelStr := envOrDefault(lookup, envVarLogLevel, "info")

	trustProxy := false
	if raw, ok := lookup(envVarTrustProxy); ok && strings.TrimSpace(raw) != "" {
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarTrustProxy, raw, err)
		}
		trustProxy = v
	}

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdown)
	if err != nil {
		return Config{}, err
	}
	presenceTTL, err := envDurationOrDefault(lookup, envVarPresenceTTL, DefaultPresenceTTL)
	if err != nil {
		return Config{}, err
	}
	presenceSweepInterval, err := envDurationOrDefault(lookup, envVarPresenceSweepInterval, DefaultPresenceSweepInterval)
	if err != nil {
		return Config{}, err
	}
	pairingTTL, err := envDurationOrDefault(lookup, envVarPairingTTL, DefaultPairingTTL)
	if err != nil {
		return Config{}, err
	}
	pairingSweepInterval, err := envDurationOrDefault(lookup, envVarPairingSweepInterval, DefaultPairingSweepInterval)
	if err != nil {
		return Config{}, err
	}

	maxMessageBytes := DefaultMaxMessageBytes
	if raw, ok := lookup(envVarMaxMessageBytes); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarMaxMessageBytes, raw, err)
		}
		maxMessageBytes = n
	}
	maxMessagesPerSecond, err := envIntOrDefault(lookup, envVarMaxMessagesPerSecond, DefaultMaxMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("signaling-relay", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "HTTP listen address (host:port; env "+envVarListenAddr+", or "+envVarPort+" for the port alone)")
	fs.StringVar(&allowedOriginsStr, "allowed-origins", allowedOriginsStr, "Comma-separated list of allowed browser origins (env "+envVarAllowedOrigins+")")
	fs.BoolVar(&trustProxy, "trust-proxy", trustProxy, "Trust X-Forwarded-For for client addresses (env "+envVarTrustProxy+")")
	fs.StringVar(&logFormatStr, "log-format", logFormatStr, "Log format: text or json (env "+envVarLogFormat+")")
	fs.StringVar(&logLevelStr, "log-level", logLevelStr, "Log level: debug, info, warn, error (env "+envVarLogLevel+")")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (env "+envVarShutdownTimeout+")")
	fs.DurationVar(&presenceTTL, "presence-ttl", presenceTTL, "Evict devices not heard from within this duration (env "+envVarPresenceTTL+")")
	fs.DurationVar(&presenceSweepInterval, "presence-sweep-interval", presenceSweepInterval, "How often to sweep stale presence entries (env "+envVarPresenceSweepInterval+")")
	fs.DurationVar(&pairingTTL, "pairing-ttl", pairingTTL, "Pairing session lifetime (env "+envVarPairingTTL+")")
	fs.DurationVar(&pairingSweepInterval, "pairing-sweep-interval", pairingSweepInterval, "How often to sweep expired pairing sessions (env "+envVarPairingSweepInterval+")")
	fs.Int64Var(&maxMessageBytes, "max-message-bytes", maxMessageBytes, "Max inbound WebSocket message size in bytes (env "+envVarMaxMessageBytes+")")
	fs.IntVar(&maxMessagesPerSecond, "max-messages-per-second", maxMessagesPerSecond, "Max inbound WebSocket messages per second per connection (env "+envVarMaxMessagesPerSecond+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}
	allowedOrigins, err := parseAllowedOrigins(allowedOriginsStr)
	if err != nil {
		return Config{}, fmt.Errorf("%s/--allowed-origins: %w", envVarAllowedOrigins, err)
	}

	if listenAddr == "" {
		return Config{}, fmt.Errorf("listen address must not be empty")
	}
	if shutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--shutdown-timeout must be > 0", envVarShutdownTimeout)
	}
	if presenceTTL <= 0 {
		return Config{}, fmt.Errorf("%s/--presence-ttl must be > 0", envVarPresenceTTL)
	}
	if presenceSweepInterval <= 0 {
		return Config{}, fmt.Errorf("%s/--presence-sweep-interval must be > 0", envVarPresenceSweepInterval)
	}
	if pairingTTL <= 0 {
		return Config{}, fmt.Errorf("%s/--pairing-ttl must be > 0", envVarPairingTTL)
	}
	if pairingSweepInterval <= 0 {
		return Config{}, fmt.Errorf("%s/--pairing-sweep-interval must be > 0", envVarPairingSweepInterval)
	}
	if maxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("%s/--max-message-bytes must be > 0", envVarMaxMessageBytes)
	}
	if maxMessagesPerSecond <= 0 {
		return Config{}, fmt.Errorf("%s/--max-messages-per-second must be > 0", envVarMaxMessagesPerSecond)
	}

	return Config{
		ListenAddr:      listenAddr,
		AllowedOrigins:  allowedOrigins,
		TrustProxy:      trustProxy,
		LogFormat:       logFormat,
		LogLevel:        level,
		ShutdownTimeout: shutdownTimeout,

		PresenceTTL:           presenceTTL,
		PresenceSweepInterval: presenceSweepInterval,
		PairingTTL:            pairingTTL,
		PairingSweepInterval:  pairingSweepInterval,

		MaxMessageBytes:      maxMessageBytes,
		MaxMessagesPerSecond: maxMessagesPerSecond,
	}, nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}

func parseAllowedOrigins(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var out []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if entry == "*" {
			out = append(out, entry)
			continue
		}

		normalized, _, ok := origin.Normalize(entry)
		if !ok {
			return nil, fmt.Errorf("invalid origin %q (expected full origin like https://example.com)", entry)
		}
		out = append(out, normalized)
	}

	return out, nil
}
