package main

import (
	"log/slog"

	"github.com/devicelink/signaling-relay/internal/config"
)

func logStartupWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if containsString(cfg.AllowedOrigins, "*") {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (allows any browser origin)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
		)
	}

	if cfg.PresenceSweepInterval > cfg.PresenceTTL {
		logger.Warn("startup warning: PRESENCE_SWEEP_INTERVAL exceeds PRESENCE_TTL (stale devices linger up to a full sweep period past their TTL)",
			"warning_code", "presence_sweep_slower_than_ttl",
			"presence_ttl", cfg.PresenceTTL,
			"presence_sweep_interval", cfg.PresenceSweepInterval,
		)
	}

	if cfg.PairingSweepInterval > cfg.PairingTTL {
		logger.Warn("startup warning: PAIRING_SWEEP_INTERVAL exceeds PAIRING_TTL",
			"warning_code", "pairing_sweep_slower_than_ttl",
			"pairing_ttl", cfg.PairingTTL,
			"pairing_sweep_interval", cfg.PairingSweepInterval,
		)
	}
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
