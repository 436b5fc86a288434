package ipc_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"localipc/internal/config"
	"localipc/internal/ipc"
	"localipc/internal/testsupport"
)

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Transport.SocketDir = t.TempDir()
	cfg.Limits.SendQueueFrames = 32
	cfg.Limits.ConnectTimeoutMS = 150

	opts := ipc.OptionsFromConfig(&cfg)
	require.Equal(t, 32, opts.SendQueueFrames)
	require.Equal(t, 16<<20, opts.MaxFrameBytes)
	require.Equal(t, 150*time.Millisecond, opts.ConnectTimeout)
	require.Equal(t, 2*time.Second, opts.CloseFlushTimeout)
	require.Equal(t, cfg.Transport.SocketDir, opts.Transport.SocketDir)
	require.Nil(t, opts.Logger)

	require.Equal(t, ipc.Options{}, ipc.OptionsFromConfig(nil))
}

func TestHostFromConfigRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithLimits(func(l *config.Limits) {
		l.SendQueueFrames = 4
	}))
	opts := ipc.OptionsFromConfig(cfg)
	require.Equal(t, 4, opts.SendQueueFrames)

	h := newTestHost(t, opts)
	handle, err := h.CreateServer("from-config")
	require.NoError(t, err)
	require.NotEmpty(t, handle)
	require.NoError(t, h.CloseServer(handle))
}
