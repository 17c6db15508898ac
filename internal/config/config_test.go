package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func noEnv(string) (string, bool) { return "", false }

func TestDefaultsDev(t *testing.T) {
	cfg, err := load(noEnv, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeDev {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeDev)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("ListenAddr=%q, want :8080", cfg.ListenAddr)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatText)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("logLevel=%v, want debug", cfg.LogLevel)
	}
	if strings.Join(cfg.AllowedOrigins, ",") != strings.Join(DefaultDevAllowedOrigins, ",") {
		t.Fatalf("AllowedOrigins=%v, want %v", cfg.AllowedOrigins, DefaultDevAllowedOrigins)
	}
	if cfg.ShutdownTimeout != DefaultShutdown {
		t.Fatalf("ShutdownTimeout=%v, want %v", cfg.ShutdownTimeout, DefaultShutdown)
	}
	if cfg.SignalingWSIdleTimeout != DefaultSignalingWSIdleTimeout || cfg.SignalingWSPingInterval != DefaultSignalingWSPingInterval {
		t.Fatalf("keepalive=%v/%v, want defaults", cfg.SignalingWSIdleTimeout, cfg.SignalingWSPingInterval)
	}
	if cfg.MaxSignalingMessageBytes != DefaultMaxSignalingMessageBytes {
		t.Fatalf("MaxSignalingMessageBytes=%d, want %d", cfg.MaxSignalingMessageBytes, DefaultMaxSignalingMessageBytes)
	}
	if cfg.SignalingSendQueueBytes != DefaultSignalingSendQueueBytes {
		t.Fatalf("SignalingSendQueueBytes=%d, want %d", cfg.SignalingSendQueueBytes, DefaultSignalingSendQueueBytes)
	}
	if cfg.HandshakeFailure != HandshakeFailureInert {
		t.Fatalf("HandshakeFailure=%q, want inert", cfg.HandshakeFailure)
	}
	if cfg.CallBlockPolicy != "target" {
		t.Fatalf("CallBlockPolicy=%q, want target", cfg.CallBlockPolicy)
	}
	if len(cfg.ICEServers) != 1 || !strings.HasPrefix(cfg.ICEServers[0].URLs[0], "stun:") {
		t.Fatalf("ICEServers=%#v, want default STUN", cfg.ICEServers)
	}
	if cfg.TURNREST.Enabled() {
		t.Fatalf("TURN REST enabled without a shared secret")
	}
}

func TestDefaultsProdWhenModeFlagSet(t *testing.T) {
	cfg, err := load(noEnv, []string{"--mode", "prod"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeProd {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeProd)
	}
	if strings.Join(cfg.AllowedOrigins, ",") != strings.Join(DefaultProdAllowedOrigins, ",") {
		t.Fatalf("AllowedOrigins=%v, want prod defaults", cfg.AllowedOrigins)
	}
}

func TestDefaultsProdFromEnv(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{envVarMode: "production"}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Fatalf("logFormat=%q, want json", cfg.LogFormat)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("logLevel=%v, want info", cfg.LogLevel)
	}
}

func TestPortEnv(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{envVarPort: "9000"}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":9000" {
		t.Fatalf("ListenAddr=%q, want :9000", cfg.ListenAddr)
	}

	cfg, err = load(lookupMap(map[string]string{envVarPort: "9000", envVarListenAddr: "127.0.0.1:7000"}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:7000" {
		t.Fatalf("ListenAddr=%q, want explicit listen addr to win", cfg.ListenAddr)
	}

	if _, err := load(lookupMap(map[string]string{envVarPort: "70000"}), nil); err == nil {
		t.Fatalf("expected error for out-of-range PORT")
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarAllowedOrigins:  "https://env.example.com",
		envVarCallBlockPolicy: "none",
	}), []string{
		"--allowed-origins", "https://flag.example.com, HTTPS://Other.example.com:443",
		"--call-block-policy", "mutual",
		"--handshake-failure", "close",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := strings.Join(cfg.AllowedOrigins, ","); got != "https://flag.example.com,https://other.example.com" {
		t.Fatalf("AllowedOrigins=%q", got)
	}
	if cfg.CallBlockPolicy != "mutual" {
		t.Fatalf("CallBlockPolicy=%q, want mutual", cfg.CallBlockPolicy)
	}
	if cfg.HandshakeFailure != HandshakeFailureClose {
		t.Fatalf("HandshakeFailure=%q, want close", cfg.HandshakeFailure)
	}
}

func TestSignalingEnvOverrides(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarSignalingWSIdleTimeout:        "30s",
		envVarSignalingWSPingInterval:       "5s",
		envVarMaxSignalingMessageBytes:      "1024",
		envVarMaxSignalingMessagesPerSecond: "10",
		envVarSignalingSendQueueBytes:       "4096",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SignalingWSIdleTimeout != 30*time.Second || cfg.SignalingWSPingInterval != 5*time.Second {
		t.Fatalf("keepalive=%v/%v", cfg.SignalingWSIdleTimeout, cfg.SignalingWSPingInterval)
	}
	if cfg.MaxSignalingMessageBytes != 1024 || cfg.MaxSignalingMessagesPerSecond != 10 || cfg.SignalingSendQueueBytes != 4096 {
		t.Fatalf("limits=%d/%d/%d", cfg.MaxSignalingMessageBytes, cfg.MaxSignalingMessagesPerSecond, cfg.SignalingSendQueueBytes)
	}
}

func TestInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{"mode", map[string]string{envVarMode: "staging"}, nil},
		{"log format", nil, []string{"--log-format", "xml"}},
		{"log level", nil, []string{"--log-level", "loud"}},
		{"origin", map[string]string{envVarAllowedOrigins: "example.com"}, nil},
		{"null origin", map[string]string{envVarAllowedOrigins: "null"}, nil},
		{"ping >= idle", map[string]string{envVarSignalingWSPingInterval: "60s"}, nil},
		{"idle duration", map[string]string{envVarSignalingWSIdleTimeout: "soon"}, nil},
		{"zero rate", nil, []string{"--max-signaling-messages-per-second", "0"}},
		{"queue smaller than message", map[string]string{envVarSignalingSendQueueBytes: "10"}, nil},
		{"handshake failure", map[string]string{envVarHandshakeFailure: "explode"}, nil},
		{"block policy", map[string]string{envVarCallBlockPolicy: "strict"}, nil},
		{"turn without creds", map[string]string{envTurnURLs: "turn:turn.example.com"}, nil},
		{"listen addr", nil, []string{"--listen-addr", "nope"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := load(lookupMap(tc.env), tc.args); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestHasTURN(t *testing.T) {
	cfg, err := load(noEnv, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HasTURN() {
		t.Fatalf("default ICE servers should be STUN only")
	}

	cfg, err = load(lookupMap(map[string]string{
		envTurnURLs:       "turn:turn.example.com:3478",
		envTurnUsername:   "u",
		envTurnCredential: "p",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.HasTURN() {
		t.Fatalf("expected TURN to be detected")
	}
}

func TestNewLogger(t *testing.T) {
	for _, f := range []LogFormat{LogFormatText, LogFormatJSON} {
		if _, err := NewLogger(Config{LogFormat: f}); err != nil {
			t.Fatalf("NewLogger(%s): %v", f, err)
		}
	}
	if _, err := NewLogger(Config{LogFormat: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
