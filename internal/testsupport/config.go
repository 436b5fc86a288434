package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"localipc/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config with a private socket directory and pipe
// prefix per test, short timeouts and quiet logging.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Transport.SocketDir = filepath.Join(base, "s")
	cfgVal.Transport.PipePrefix = "localipc-test-" + uuid.NewString()[:8] + "-"
	cfgVal.Limits.ConnectTimeoutMS = 2000
	cfgVal.Limits.CloseFlushTimeoutMS = 500
	cfgVal.Logging.Level = "error"
	cfgVal.Metrics.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}
	return builder.cfg
}

// WithLimits adjusts the [limits] section.
func WithLimits(fn func(*config.Limits)) ConfigOption {
	return func(b *configBuilder) {
		fn(&b.cfg.Limits)
	}
}

// WithLogLevel overrides logging.level.
func WithLogLevel(level string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Logging.Level = level
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Transport.SocketDir)
}

// WriteConfig renders cfg as TOML at path so CLI code can load it back.
func WriteConfig(t testing.TB, path string, cfg *config.Config) {
	t.Helper()

	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}
