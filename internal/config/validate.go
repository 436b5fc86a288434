package config

import (
	"errors"
	"fmt"
	"math"
	"net"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTransport(); err != nil {
		return err
	}
	if err := c.validateLimits(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateMetrics()
}

func (c *Config) validateTransport() error {
	if c.Transport.SocketDir == "" {
		return errors.New("transport.socket_dir must be set")
	}
	if c.Transport.SocketPermissions > 0o777 {
		return fmt.Errorf("transport.socket_permissions must be a permission mode such as 0o600, got %#o", c.Transport.SocketPermissions)
	}
	return nil
}

func (c *Config) validateLimits() error {
	l := c.Limits
	if l.MaxFrameBytes <= 0 || l.MaxFrameBytes > math.MaxInt32 {
		return fmt.Errorf("limits.max_frame_bytes must be between 1 and %d", math.MaxInt32)
	}
	if l.SendQueueFrames <= 0 {
		return errors.New("limits.send_queue_frames must be positive")
	}
	if l.DispatcherBacklog <= 0 {
		return errors.New("limits.dispatcher_backlog must be positive")
	}
	if l.ConnectTimeoutMS <= 0 {
		return errors.New("limits.connect_timeout_ms must be positive")
	}
	if l.CloseFlushTimeoutMS <= 0 {
		return errors.New("limits.close_flush_timeout_ms must be positive")
	}
	if l.ReadBufferBytes < minReadBufferBytes {
		return fmt.Errorf("limits.read_buffer_bytes must be at least %d", minReadBufferBytes)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (use console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if !c.Metrics.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Metrics.Bind); err != nil {
		return fmt.Errorf("metrics.bind: %w", err)
	}
	return nil
}
