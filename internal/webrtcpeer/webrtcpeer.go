// Package webrtcpeer builds the direct peer connection that two users set up
// once signaling has exchanged their session descriptions. Only the probe CLI
// uses it; the signaling server never touches media.
package webrtcpeer

import (
	"io"
	"os"

	"github.com/pion/logging"
	"github.com/pion/transport/v4"
	"github.com/pion/webrtc/v4"
)

// APIOptions configures the pion API shared by every peer a process creates.
type APIOptions struct {
	// LogLevel applies to pion's internal loggers. Zero disables them.
	LogLevel  logging.LogLevel
	LogWriter io.Writer

	// Net replaces the OS network stack, e.g. with a vnet router in tests.
	Net transport.Net
}

func NewAPI(opts APIOptions) *webrtc.API {
	factory := logging.NewDefaultLoggerFactory()
	factory.DefaultLogLevel = opts.LogLevel
	factory.Writer = opts.LogWriter
	if factory.Writer == nil {
		factory.Writer = os.Stderr
	}

	se := webrtc.SettingEngine{LoggerFactory: factory}
	if opts.Net != nil {
		se.SetNet(opts.Net)
	}
	return webrtc.NewAPI(webrtc.WithSettingEngine(se))
}
