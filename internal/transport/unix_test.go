//go:build !windows

package transport_test

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"localipc/internal/transport"
)

func TestListenDialRoundTrip(t *testing.T) {
	tr := transport.New(transport.Options{SocketDir: t.TempDir()})
	ln, err := tr.Listen("roundtrip")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
		close(accepted)
	}()

	conn, err := tr.Dial(context.Background(), "roundtrip")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	server, ok := <-accepted
	if !ok {
		t.Fatal("accept failed")
	}
	defer server.Close()

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := server.Read(buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "ping" {
		t.Fatalf("got %q", buf)
	}
	if _, ok := server.(transport.HalfCloser); !ok {
		t.Fatal("expected unix connections to support half-close")
	}
}

func TestListenSecondClaimIsBusy(t *testing.T) {
	tr := transport.New(transport.Options{SocketDir: t.TempDir()})
	ln, err := tr.Listen("busy")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	if _, err := tr.Listen("busy"); !errors.Is(err, transport.ErrEndpointBusy) {
		t.Fatalf("expected ErrEndpointBusy, got %v", err)
	}
}

func TestCloseReleasesName(t *testing.T) {
	dir := t.TempDir()
	tr := transport.New(transport.Options{SocketDir: dir})
	ln, err := tr.Listen("reuse")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if err := ln.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "reuse.sock")); !os.IsNotExist(err) {
		t.Fatalf("expected socket file removed, stat err=%v", err)
	}

	again, err := tr.Listen("reuse")
	if err != nil {
		t.Fatalf("second Listen: %v", err)
	}
	again.Close()
}

func TestListenReplacesStaleSocket(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "stale.sock")
	if err := os.WriteFile(stale, []byte("leftover"), 0o600); err != nil {
		t.Fatalf("write stale file: %v", err)
	}
	tr := transport.New(transport.Options{SocketDir: dir})
	ln, err := tr.Listen("stale")
	if err != nil {
		t.Fatalf("Listen over stale socket: %v", err)
	}
	ln.Close()
}

func TestSocketPermissionsApplied(t *testing.T) {
	dir := t.TempDir()
	tr := transport.New(transport.Options{SocketDir: dir, SocketPermissions: 0o600})
	ln, err := tr.Listen("perm")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	info, err := os.Stat(filepath.Join(dir, "perm.sock"))
	if err != nil {
		t.Fatalf("stat socket: %v", err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		t.Fatalf("expected group/other bits cleared, got %o", perm)
	}
}

func TestDialMissingEndpoint(t *testing.T) {
	tr := transport.New(transport.Options{SocketDir: t.TempDir()})
	if _, err := tr.Dial(context.Background(), "nobody"); !errors.Is(err, transport.ErrNoEndpoint) {
		t.Fatalf("expected ErrNoEndpoint, got %v", err)
	}
}
