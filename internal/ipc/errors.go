package ipc

import (
	"errors"
	"fmt"

	"localipc/internal/frame"
	"localipc/internal/transport"
)

// Endpoint-level errors.
var (
	ErrNameInUse      = errors.New("endpoint name already in use")
	ErrBindFailed     = errors.New("endpoint bind failed")
	ErrNoSuchEndpoint = errors.New("no such endpoint")
	ErrInvalidName    = transport.ErrInvalidName
)

// Connection-level errors.
var (
	ErrTransport      = errors.New("transport error")
	ErrBackpressure   = errors.New("send queue full")
	ErrConnectTimeout = errors.New("connect timed out")
	ErrClosed         = errors.New("connection closed")
	ErrNotFound       = errors.New("not found")

	ErrServerNotFound     = fmt.Errorf("server %w", ErrNotFound)
	ErrConnectionNotFound = fmt.Errorf("connection %w", ErrNotFound)
)

var (
	// ErrDispatcherOverflow is informational; it rides on DispatcherOverflow events.
	ErrDispatcherOverflow = errors.New("dispatcher backlog overflow")
	ErrInvalidArguments   = errors.New("invalid arguments")
	ErrHostClosed         = errors.New("ipc host closed")
)

// ErrorCode maps an error onto the stable string codes exposed to binding
// layers. It returns "" for nil and "IPC_ERROR" for anything unrecognized.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNameInUse):
		return "NAME_IN_USE"
	case errors.Is(err, ErrBindFailed):
		return "PIPE_CREATION_FAILED"
	case errors.Is(err, ErrNoSuchEndpoint):
		return "NO_SUCH_ENDPOINT"
	case errors.Is(err, ErrConnectTimeout):
		return "CONNECT_TIMEOUT"
	case errors.Is(err, ErrInvalidName), errors.Is(err, ErrInvalidArguments):
		return "INVALID_ARGUMENTS"
	case errors.Is(err, ErrTransport):
		return "PIPE_CONNECTION_FAILED"
	case errors.Is(err, ErrServerNotFound):
		return "SERVER_NOT_FOUND"
	case errors.Is(err, ErrNotFound):
		return "CLIENT_NOT_FOUND"
	case errors.Is(err, ErrBackpressure):
		return "BACKPRESSURE"
	case errors.Is(err, frame.ErrFrameTooLarge):
		return "FRAME_TOO_LARGE"
	case errors.Is(err, ErrClosed), errors.Is(err, ErrHostClosed):
		return "CONNECTION_CLOSED"
	default:
		return "IPC_ERROR"
	}
}
