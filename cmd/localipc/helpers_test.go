package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"localipc/internal/config"
	"localipc/internal/ipc"
	"localipc/internal/testsupport"
)

type cliTestEnv struct {
	home       string
	socketDir  string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	home := filepath.Join(base, "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", home)
	t.Setenv("LOCALIPC_SOCKET_DIR", "")

	cfg := testsupport.NewConfig(t)
	env := &cliTestEnv{
		home:       home,
		socketDir:  cfg.Transport.SocketDir,
		configPath: filepath.Join(base, "localipc.toml"),
	}
	testsupport.WriteConfig(t, env.configPath, cfg)
	return env
}

func (e *cliTestEnv) config(t *testing.T) *config.Config {
	t.Helper()
	cfg, _, _, err := config.Load(e.configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

// echoHost runs an in-process endpoint that echoes every message.
func (e *cliTestEnv) echoHost(t *testing.T, name string) *ipc.Host {
	t.Helper()
	host := ipc.NewHost(ipc.OptionsFromConfig(e.config(t)))
	t.Cleanup(func() { _ = host.Close() })
	handle, err := host.CreateServer(name)
	if err != nil {
		t.Fatalf("CreateServer: %v", err)
	}
	err = host.Listen(handle, func(ev ipc.Event) {
		if ev.Kind == ipc.EventMessage {
			_ = host.SendMessageFromServer(ev.ConnID, ev.Payload)
		}
	})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	return host
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	return runCLIContext(context.Background(), env, &lockedBuffer{}, args...)
}

func runCLIContext(ctx context.Context, env *cliTestEnv, stdout *lockedBuffer, args ...string) (string, string, error) {
	cmd := newRootCommand()
	var stderr lockedBuffer
	cmd.SetOut(stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

// lockedBuffer is written by a running command while the test polls it.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func lineWithPrefix(output, prefix string) string {
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return ""
}
