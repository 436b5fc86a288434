package ipc

import (
	"context"
	"fmt"
	"strings"
)

// Command is one operation of the host's operation set.
type Command interface {
	command() string
}

type CreateServerCommand struct{ Name string }

type CloseServerCommand struct{ Handle string }

type ConnectCommand struct{ Name string }

type DisconnectCommand struct{ ConnID string }

type ListenCommand struct {
	Handle  string
	Handler Handler
}

type SendFromServerCommand struct {
	ConnID  string
	Payload []byte
}

type SendFromClientCommand struct {
	ConnID  string
	Payload []byte
}

func (CreateServerCommand) command() string   { return "createServer" }
func (CloseServerCommand) command() string    { return "closeServer" }
func (ConnectCommand) command() string        { return "connect" }
func (DisconnectCommand) command() string     { return "disconnect" }
func (ListenCommand) command() string         { return "listen" }
func (SendFromServerCommand) command() string { return "sendMessageFromServer" }
func (SendFromClientCommand) command() string { return "sendMessageFromClient" }

// Result is a command outcome. Value carries the endpoint handle for
// CreateServer and the connection id for Connect.
type Result struct {
	Value string
	Err   error
}

// Code returns the stable error code for Err, or "" on success.
func (r Result) Code() string { return ErrorCode(r.Err) }

// Execute runs cmd synchronously.
func (h *Host) Execute(ctx context.Context, cmd Command) Result {
	if cmd == nil {
		return Result{Err: fmt.Errorf("%w: nil command", ErrInvalidArguments)}
	}
	if err := ctx.Err(); err != nil {
		return Result{Err: err}
	}

	switch c := cmd.(type) {
	case CreateServerCommand:
		if err := requireArg("name", c.Name); err != nil {
			return Result{Err: err}
		}
		handle, err := h.CreateServer(c.Name)
		return Result{Value: handle, Err: err}
	case CloseServerCommand:
		if err := requireArg("handle", c.Handle); err != nil {
			return Result{Err: err}
		}
		return Result{Err: h.CloseServer(c.Handle)}
	case ConnectCommand:
		if err := requireArg("name", c.Name); err != nil {
			return Result{Err: err}
		}
		id, err := h.Connect(ctx, c.Name)
		return Result{Value: id, Err: err}
	case DisconnectCommand:
		if err := requireArg("connection id", c.ConnID); err != nil {
			return Result{Err: err}
		}
		return Result{Err: h.Disconnect(c.ConnID)}
	case ListenCommand:
		if err := requireArg("handle", c.Handle); err != nil {
			return Result{Err: err}
		}
		return Result{Err: h.Listen(c.Handle, c.Handler)}
	case SendFromServerCommand:
		if err := requireArg("connection id", c.ConnID); err != nil {
			return Result{Err: err}
		}
		return Result{Err: h.SendMessageFromServer(c.ConnID, c.Payload)}
	case SendFromClientCommand:
		if err := requireArg("connection id", c.ConnID); err != nil {
			return Result{Err: err}
		}
		return Result{Err: h.SendMessageFromClient(c.ConnID, c.Payload)}
	default:
		return Result{Err: fmt.Errorf("%w: unsupported command %s", ErrInvalidArguments, cmd.command())}
	}
}

// Submit runs cmd on its own goroutine and delivers the result on the
// returned channel, which receives exactly one value.
func (h *Host) Submit(ctx context.Context, cmd Command) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		out <- h.Execute(ctx, cmd)
	}()
	return out
}

func requireArg(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: missing %s", ErrInvalidArguments, field)
	}
	return nil
}
