package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeTransport(); err != nil {
		return err
	}
	c.normalizeLimits()
	if err := c.normalizeLogging(); err != nil {
		return err
	}
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	if c.Metrics.Bind == "" {
		c.Metrics.Bind = defaultMetricsBind
	}
	return nil
}

func (c *Config) normalizeTransport() error {
	dir := strings.TrimSpace(c.Transport.SocketDir)
	if dir == "" {
		if value, ok := os.LookupEnv(socketDirEnv); ok && strings.TrimSpace(value) != "" {
			dir = strings.TrimSpace(value)
		} else {
			dir = defaultSocketDir()
		}
	}
	expanded, err := expandPath(dir)
	if err != nil {
		return fmt.Errorf("transport.socket_dir: %w", err)
	}
	c.Transport.SocketDir = expanded
	c.Transport.PipePrefix = strings.TrimSpace(c.Transport.PipePrefix)
	c.Transport.SecurityDescriptor = strings.TrimSpace(c.Transport.SecurityDescriptor)
	return nil
}

// defaultSocketDir prefers the per-user runtime directory.
func defaultSocketDir() string {
	if base, ok := os.LookupEnv("XDG_RUNTIME_DIR"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "localipc")
	}
	return filepath.Join(os.TempDir(), "localipc")
}

func (c *Config) normalizeLimits() {
	if c.Limits.MaxFrameBytes == 0 {
		c.Limits.MaxFrameBytes = defaultMaxFrameBytes
	}
	if c.Limits.SendQueueFrames == 0 {
		c.Limits.SendQueueFrames = defaultSendQueueFrames
	}
	if c.Limits.DispatcherBacklog == 0 {
		c.Limits.DispatcherBacklog = defaultDispatcherBacklog
	}
	if c.Limits.ConnectTimeoutMS == 0 {
		c.Limits.ConnectTimeoutMS = defaultConnectTimeoutMS
	}
	if c.Limits.CloseFlushTimeoutMS == 0 {
		c.Limits.CloseFlushTimeoutMS = defaultCloseFlushMS
	}
	if c.Limits.ReadBufferBytes == 0 {
		c.Limits.ReadBufferBytes = defaultReadBufferBytes
	}
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.File != "" {
		file, err := expandPath(strings.TrimSpace(c.Logging.File))
		if err != nil {
			return fmt.Errorf("logging.file: %w", err)
		}
		c.Logging.File = file
	}
	return nil
}
