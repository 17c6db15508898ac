// Command hanasu-probe is a headless chat peer. It connects to a signaling
// server, places or answers one call, opens a WebRTC data channel and
// exchanges chat messages with the other side.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/hanasu-chat/hanasu-signal/internal/peerclient"
	"github.com/hanasu-chat/hanasu-signal/internal/webrtcpeer"
)

type options struct {
	url      string
	id       string
	name     string
	origin   string
	call     string
	accept   bool
	message  string
	verbose  bool
	gather   time.Duration
	linger   time.Duration
	pionLogs bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("hanasu-probe", flag.ContinueOnError)
	fs.StringVar(&o.url, "url", "ws://localhost:8080/ws", "signaling WebSocket URL")
	fs.StringVar(&o.id, "id", "", "logical user id (random when empty)")
	fs.StringVar(&o.name, "name", "probe", "display name")
	fs.StringVar(&o.origin, "origin", "", "Origin header to send")
	fs.StringVar(&o.call, "call", "", "id of the user to call; when empty the probe waits for calls")
	fs.BoolVar(&o.accept, "accept", true, "accept incoming calls (decline when false)")
	fs.StringVar(&o.message, "message", "hello from hanasu-probe", "chat message to send once connected")
	fs.BoolVar(&o.verbose, "v", false, "debug logging")
	fs.BoolVar(&o.pionLogs, "pion-logs", false, "enable pion's internal logs")
	fs.DurationVar(&o.gather, "gather-timeout", 10*time.Second, "ICE gathering timeout")
	fs.DurationVar(&o.linger, "linger", 0, "hang up this long after the chat opens (0 waits for Ctrl-C)")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	return o, nil
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("probe failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, logger *slog.Logger) error {
	iceServers, err := fetchICEServers(ctx, o.url, o.origin)
	if err != nil {
		logger.Warn("probe_ice_fetch_failed", "err", err)
	}

	pionLevel := logging.LogLevelDisabled
	if o.pionLogs {
		pionLevel = logging.LogLevelDebug
	}
	api := webrtcpeer.NewAPI(webrtcpeer.APIOptions{LogLevel: pionLevel})

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := peerclient.Dial(dialCtx, peerclient.Options{
		URL:    o.url,
		ID:     o.id,
		Name:   o.name,
		Origin: o.origin,
		Logger: logger,
	})
	cancel()
	if err != nil {
		return err
	}
	defer client.Close()

	logger.Info("probe_connected", "id", o.id, "name", o.name)

	s := &session{
		opts:       o,
		log:        logger,
		client:     client,
		api:        api,
		iceServers: iceServers,
	}
	return s.loop(ctx)
}

func printf(format string, args ...any) {
	fmt.Fprintf(os.Stdout, format+"\n", args...)
}
