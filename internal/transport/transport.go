package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	// ErrInvalidName is returned for names that cannot map to a local endpoint.
	ErrInvalidName = errors.New("invalid endpoint name")
	// ErrEndpointBusy means another listener already owns the name.
	ErrEndpointBusy = errors.New("endpoint already bound")
	// ErrNoEndpoint means nothing is listening under the name.
	ErrNoEndpoint = errors.New("no endpoint listening")
)

// maxNameLength keeps socket paths under the sun_path limit on common
// platforms once the directory prefix is added.
const maxNameLength = 64

// Options configures where endpoints live on the local machine.
type Options struct {
	// SocketDir holds Unix socket files. Empty uses os.TempDir().
	SocketDir string
	// SocketPermissions is applied to socket files through the umask. Zero keeps the process umask.
	SocketPermissions uint32
	// PipePrefix is prepended to Windows pipe names.
	PipePrefix string
	// SecurityDescriptor is an SDDL string applied to Windows pipes.
	SecurityDescriptor string
}

// Transport binds and dials named local endpoints.
type Transport interface {
	// Listen binds name. Closing the returned listener releases the name.
	Listen(name string) (net.Listener, error)
	// Dial connects to the endpoint bound under name.
	Dial(ctx context.Context, name string) (net.Conn, error)
	// Address reports the platform address used for name.
	Address(name string) string
}

// HalfCloser is implemented by connections that can shut down their write side.
type HalfCloser interface {
	CloseWrite() error
}

// NormalizeName validates name and returns its NFC form.
func NormalizeName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if !utf8.ValidString(trimmed) {
		return "", fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidName, name)
	}
	normalized := norm.NFC.String(trimmed)
	if strings.ContainsAny(normalized, "/\\\x00:") {
		return "", fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	if normalized == "." || normalized == ".." {
		return "", fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
	}
	if len(normalized) > maxNameLength {
		return "", fmt.Errorf("%w: %q exceeds %d bytes", ErrInvalidName, name, maxNameLength)
	}
	return normalized, nil
}
