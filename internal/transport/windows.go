//go:build windows

package transport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"

	"github.com/Microsoft/go-winio"
	"golang.org/x/sys/windows"
)

const pipeRoot = `\\.\pipe\`

const pipeBufferSize = 64 * 1024

type pipeTransport struct {
	opts Options
}

// New returns the platform transport.
func New(opts Options) Transport {
	return &pipeTransport{opts: opts}
}

func (t *pipeTransport) Address(name string) string {
	return pipeRoot + t.opts.PipePrefix + name
}

func (t *pipeTransport) Listen(name string) (net.Listener, error) {
	path := t.Address(name)
	cfg := &winio.PipeConfig{
		SecurityDescriptor: t.opts.SecurityDescriptor,
		InputBufferSize:    pipeBufferSize,
		OutputBufferSize:   pipeBufferSize,
	}
	ln, err := winio.ListenPipe(path, cfg)
	if err != nil {
		if errors.Is(err, windows.ERROR_ACCESS_DENIED) || errors.Is(err, windows.ERROR_PIPE_BUSY) {
			return nil, fmt.Errorf("%w: %s", ErrEndpointBusy, path)
		}
		return nil, fmt.Errorf("listen on pipe: %w", err)
	}
	return ln, nil
}

func (t *pipeTransport) Dial(ctx context.Context, name string) (net.Conn, error) {
	path := t.Address(name)
	conn, err := winio.DialPipeContext(ctx, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, windows.ERROR_FILE_NOT_FOUND) {
			return nil, fmt.Errorf("%w: %s", ErrNoEndpoint, path)
		}
		return nil, err
	}
	return conn, nil
}
