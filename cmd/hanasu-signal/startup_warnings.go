package main

import (
	"log/slog"
	"slices"
	"time"

	"github.com/hanasu-chat/hanasu-signal/internal/config"
)

func logStartupWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if slices.Contains(cfg.AllowedOrigins, "*") {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (any website can open signaling connections)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && !cfg.HasTURN() {
		logger.Warn("startup warning: no TURN server configured (calls between peers behind symmetric NATs will fail)",
			"warning_code", "ice_no_turn",
			"ice_servers", len(cfg.ICEServers),
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.CallBlockPolicy == "none" {
		logger.Warn("startup warning: HANASU_CALL_BLOCK_POLICY=none lets blocked users keep calling",
			"warning_code", "call_block_policy_none",
			"mode", cfg.Mode,
		)
	}

	if cfg.SignalingWSIdleTimeout > 5*time.Minute {
		logger.Warn("startup warning: SIGNALING_WS_IDLE_TIMEOUT is very large (dead connections stay in the presence list longer)",
			"warning_code", "signaling_idle_timeout_large",
			"signaling_ws_idle_timeout", cfg.SignalingWSIdleTimeout,
			"mode", cfg.Mode,
		)
	}
}
