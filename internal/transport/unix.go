//go:build !windows

package transport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"
)

// umaskMu serializes umask changes; the umask is process-wide.
var umaskMu sync.Mutex

type unixTransport struct {
	opts Options
}

// New returns the platform transport.
func New(opts Options) Transport {
	return &unixTransport{opts: opts}
}

func (t *unixTransport) dir() string {
	if t.opts.SocketDir != "" {
		return t.opts.SocketDir
	}
	return os.TempDir()
}

func (t *unixTransport) Address(name string) string {
	return filepath.Join(t.dir(), name+".sock")
}

func (t *unixTransport) Listen(name string) (net.Listener, error) {
	path := t.Address(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire endpoint lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s is held by another process", ErrEndpointBusy, path)
	}

	// Holding the lock means any socket file left here belongs to a dead owner.
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_ = lock.Unlock()
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := t.listenUnix(path)
	if err != nil {
		_ = lock.Unlock()
		if errors.Is(err, unix.EADDRINUSE) {
			return nil, fmt.Errorf("%w: %v", ErrEndpointBusy, err)
		}
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	return &unixListener{UnixListener: ln, path: path, lock: lock}, nil
}

func (t *unixTransport) listenUnix(path string) (*net.UnixListener, error) {
	addr := &net.UnixAddr{Name: path, Net: "unix"}
	if t.opts.SocketPermissions == 0 {
		return net.ListenUnix("unix", addr)
	}
	umaskMu.Lock()
	defer umaskMu.Unlock()
	old := unix.Umask(int(^t.opts.SocketPermissions & 0o777))
	defer unix.Umask(old)
	return net.ListenUnix("unix", addr)
}

func (t *unixTransport) Dial(ctx context.Context, name string) (net.Conn, error) {
	path := t.Address(name)
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ECONNREFUSED) {
			return nil, fmt.Errorf("%w: %s", ErrNoEndpoint, path)
		}
		return nil, err
	}
	return conn, nil
}

type unixListener struct {
	*net.UnixListener
	path string
	lock *flock.Flock

	once     sync.Once
	closeErr error
}

// Close stops the listener, unlinks the socket and releases the name lock.
// The lock file is left in place so concurrent claimants always contend on
// the same inode.
func (l *unixListener) Close() error {
	l.once.Do(func() {
		l.closeErr = l.UnixListener.Close()
		if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) && l.closeErr == nil {
			l.closeErr = err
		}
		if err := l.lock.Unlock(); err != nil && l.closeErr == nil {
			l.closeErr = err
		}
	})
	return l.closeErr
}
