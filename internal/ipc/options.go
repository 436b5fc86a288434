package ipc

import (
	"log/slog"
	"time"

	"localipc/internal/config"
	"localipc/internal/frame"
	"localipc/internal/logging"
	"localipc/internal/telemetry"
	"localipc/internal/transport"
)

const (
	DefaultSendQueueFrames   = 1024
	DefaultDispatcherBacklog = 4096
	DefaultConnectTimeout    = 5 * time.Second
	DefaultCloseFlushTimeout = 2 * time.Second
	DefaultReadBufferBytes   = 64 * 1024
)

// Options tunes the engine. Zero values select the defaults above.
type Options struct {
	// MaxFrameBytes bounds a single payload in both directions.
	MaxFrameBytes int
	// SendQueueFrames is the per-connection outbound queue bound; Send fails
	// with ErrBackpressure beyond it.
	SendQueueFrames   int
	DispatcherBacklog int
	ConnectTimeout    time.Duration
	// CloseFlushTimeout bounds how long Close waits for queued frames to be
	// written and for the peer to acknowledge the half-close.
	CloseFlushTimeout time.Duration
	ReadBufferBytes   int

	Transport transport.Options

	Logger  *slog.Logger
	Metrics telemetry.Collector
}

func (o Options) withDefaults() Options {
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = frame.DefaultMaxPayload
	}
	if o.SendQueueFrames <= 0 {
		o.SendQueueFrames = DefaultSendQueueFrames
	}
	if o.DispatcherBacklog <= 0 {
		o.DispatcherBacklog = DefaultDispatcherBacklog
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.CloseFlushTimeout <= 0 {
		o.CloseFlushTimeout = DefaultCloseFlushTimeout
	}
	if o.ReadBufferBytes <= 0 {
		o.ReadBufferBytes = DefaultReadBufferBytes
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
	if o.Metrics == nil {
		o.Metrics = telemetry.Noop()
	}
	return o
}

// OptionsFromConfig maps the [transport] and [limits] sections onto Options.
// Logger and Metrics are left for the caller to supply.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{
		MaxFrameBytes:     cfg.Limits.MaxFrameBytes,
		SendQueueFrames:   cfg.Limits.SendQueueFrames,
		DispatcherBacklog: cfg.Limits.DispatcherBacklog,
		ConnectTimeout:    cfg.ConnectTimeout(),
		CloseFlushTimeout: cfg.CloseFlushTimeout(),
		ReadBufferBytes:   cfg.Limits.ReadBufferBytes,
		Transport:         cfg.TransportOptions(),
	}
}
