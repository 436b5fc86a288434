package ipc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"localipc/internal/frame"
	"localipc/internal/ipc"
)

// pair wires a standalone server and connector on a fresh registry.
func pair(t *testing.T, opts ipc.Options, name string) (*ipc.Server, *ipc.Connection, *recorder, *recorder) {
	t.Helper()
	reg := ipc.NewRegistry()
	serverRec, clientRec := &recorder{}, &recorder{}
	serverD := ipc.NewDispatcher(serverRec.handle, opts)
	clientD := ipc.NewDispatcher(clientRec.handle, opts)
	t.Cleanup(func() {
		require.NoError(t, reg.Close())
		serverD.Close()
		clientD.Close()
	})

	srv, err := ipc.Listen(reg, name, func(ev ipc.Event) { serverD.Publish(ev) }, opts)
	require.NoError(t, err)
	conn, err := ipc.NewConnector(reg, func(ev ipc.Event) { clientD.Publish(ev) }, opts).
		Connect(context.Background(), name)
	require.NoError(t, err)
	serverRec.waitCount(t, ipc.EventOpened, 1)
	return srv, conn, serverRec, clientRec
}

func TestConnectionLifecycle(t *testing.T) {
	srv, conn, serverRec, clientRec := pair(t, testOptions(t), "lifecycle")

	require.Equal(t, ipc.RoleClient, conn.Role())
	require.Empty(t, conn.Endpoint())
	require.Equal(t, "lifecycle", conn.Target())
	require.Equal(t, ipc.StateOpen, conn.State())
	require.NotEmpty(t, conn.ID())

	require.NoError(t, conn.Send([]byte("abc")))
	serverRec.waitCount(t, ipc.EventMessage, 1)
	require.Eventually(t, func() bool {
		st := conn.Stats()
		return st.FramesOut == 1 && st.BytesOut == 3
	}, waitTimeout, time.Millisecond)

	serverSide := srv.Connections()
	require.Len(t, serverSide, 1)
	require.Equal(t, uint64(1), serverSide[0].Stats().FramesIn)
	require.Equal(t, "lifecycle", serverSide[0].Endpoint())

	require.NoError(t, conn.Close(ipc.CauseUserRequested))
	require.NoError(t, conn.Close(ipc.CauseTransportError))
	require.ErrorIs(t, conn.Send([]byte("late")), ipc.ErrClosed)

	select {
	case <-conn.Done():
	case <-time.After(waitTimeout):
		t.Fatal("connection did not finish closing")
	}
	require.Equal(t, ipc.StateClosed, conn.State())

	closed := clientRec.waitCount(t, ipc.EventClosed, 1)
	require.Equal(t, ipc.CauseUserRequested, closed[0].Reason.Cause)
	require.Equal(t, "UserRequested", closed[0].Reason.String())
	serverRec.waitCount(t, ipc.EventClosed, 1)
	require.Eventually(t, func() bool {
		return len(srv.Connections()) == 0
	}, waitTimeout, time.Millisecond)
}

func TestConnectionFlushesQueueOnClose(t *testing.T) {
	_, conn, serverRec, _ := pair(t, testOptions(t), "flush")

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, conn.Send([]byte{byte(i)}))
	}
	require.NoError(t, conn.Close(ipc.CauseUserRequested))

	msgs := serverRec.waitCount(t, ipc.EventMessage, n)
	for i, ev := range msgs {
		require.Equal(t, []byte{byte(i)}, ev.Payload)
	}
	closed := serverRec.waitCount(t, ipc.EventClosed, 1)
	require.Equal(t, ipc.CausePeerClosed, closed[0].Reason.Cause)
}

func TestConnectionRejectsOversizePayload(t *testing.T) {
	opts := testOptions(t)
	opts.MaxFrameBytes = 16
	_, conn, _, _ := pair(t, opts, "oversize")

	require.ErrorIs(t, conn.Send(make([]byte, 17)), frame.ErrFrameTooLarge)
	require.NoError(t, conn.Send(make([]byte, 16)))
	require.Equal(t, ipc.StateOpen, conn.State())
}

func TestServerCloseIsIdempotent(t *testing.T) {
	opts := testOptions(t)
	reg := ipc.NewRegistry()
	srv, err := ipc.Listen(reg, "idem", nil, opts)
	require.NoError(t, err)

	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())
	_, ok := reg.Lookup("idem")
	require.False(t, ok)

	again, err := ipc.Listen(reg, "idem", nil, opts)
	require.NoError(t, err)
	require.NoError(t, reg.Close())
	_, ok = reg.Server(again.Handle())
	require.False(t, ok)
}

func TestConnectorClassifiesErrors(t *testing.T) {
	opts := testOptions(t)
	reg := ipc.NewRegistry()
	t.Cleanup(func() { require.NoError(t, reg.Close()) })
	c := ipc.NewConnector(reg, nil, opts)

	_, err := c.Connect(context.Background(), "missing")
	require.ErrorIs(t, err, ipc.ErrNoSuchEndpoint)

	_, err = c.Connect(context.Background(), "")
	require.ErrorIs(t, err, ipc.ErrInvalidName)

	require.ErrorIs(t, c.Disconnect("unknown"), ipc.ErrConnectionNotFound)

	srv, err := ipc.Listen(reg, "live", nil, opts)
	require.NoError(t, err)
	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err = c.Connect(expired, "live")
	require.ErrorIs(t, err, ipc.ErrConnectTimeout)
	require.Equal(t, "CONNECT_TIMEOUT", ipc.ErrorCode(err))
	require.Equal(t, "live", srv.Name())

	conn, err := c.Connect(context.Background(), "live")
	require.NoError(t, err)
	require.NoError(t, c.Disconnect(conn.ID()))
	require.ErrorIs(t, c.Disconnect(conn.ID()), ipc.ErrConnectionNotFound)
	<-conn.Done()
}
