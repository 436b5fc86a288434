package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"localipc/internal/ipc"
	"localipc/internal/telemetry"
)

func newSendCommand(ctx *commandContext) *cobra.Command {
	var wait int
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "send NAME MESSAGE...",
		Short: "Connect to an endpoint and send each message as one frame",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if wait < 0 {
				return fmt.Errorf("--wait must not be negative")
			}
			return runSend(cmd, ctx, args[0], args[1:], wait, timeout)
		},
	}

	cmd.Flags().IntVar(&wait, "wait", 0, "Number of replies to print before disconnecting")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "How long to wait for replies")
	return cmd
}

func runSend(cmd *cobra.Command, ctx *commandContext, name string, messages []string, wait int, timeout time.Duration) error {
	host, _, err := ctx.newHost(telemetry.Noop())
	if err != nil {
		return err
	}
	defer host.Close()

	replies := make(chan []byte, wait+1)
	closed := make(chan ipc.CloseReason, 1)
	host.OnClientEvent(func(ev ipc.Event) {
		switch ev.Kind {
		case ipc.EventMessage:
			select {
			case replies <- ev.Payload:
			default:
			}
		case ipc.EventClosed:
			select {
			case closed <- ev.Reason:
			default:
			}
		}
	})

	runCtx := cmd.Context()
	if runCtx == nil {
		runCtx = context.Background()
	}
	id, err := host.Connect(runCtx, name)
	if err != nil {
		return fmt.Errorf("connect to %q: %w (%s)", name, err, ipc.ErrorCode(err))
	}

	for _, msg := range messages {
		if err := host.SendMessageFromClient(id, []byte(msg)); err != nil {
			return fmt.Errorf("send: %w (%s)", err, ipc.ErrorCode(err))
		}
	}

	out := cmd.OutOrStdout()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for received := 0; received < wait; {
		select {
		case payload := <-replies:
			fmt.Fprintln(out, string(payload))
			received++
		case reason := <-closed:
			return fmt.Errorf("connection closed after %d of %d replies: %s", received, wait, reason)
		case <-deadline.C:
			return fmt.Errorf("timed out after %s waiting for replies (%d of %d)", timeout, received, wait)
		case <-runCtx.Done():
			return runCtx.Err()
		}
	}

	if err := host.Disconnect(id); err != nil && !errors.Is(err, ipc.ErrNotFound) {
		return err
	}
	return host.Close()
}
