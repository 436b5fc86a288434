package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"localipc/internal/logging"
	"localipc/internal/transport"
)

// Connector dials named endpoints and owns the resulting client connections
// until they close.
type Connector struct {
	registry  *Registry
	transport transport.Transport
	opts      Options
	publish   Handler
	logger    *slog.Logger
}

// NewConnector returns a connector whose connections report to onEvent.
func NewConnector(reg *Registry, onEvent Handler, opts Options) *Connector {
	opts = opts.withDefaults()
	if onEvent == nil {
		onEvent = func(Event) {}
	}
	return &Connector{
		registry:  reg,
		transport: transport.New(opts.Transport),
		opts:      opts,
		publish:   onEvent,
		logger:    logging.NewComponentLogger(opts.Logger, "connector"),
	}
}

// Connect dials name and returns an open client connection whose Opened
// event has already been published. The attempt is bounded by the
// configured connect timeout and by ctx.
func (c *Connector) Connect(ctx context.Context, name string) (*Connection, error) {
	normalized, err := transport.NormalizeName(name)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()
	nc, err := c.transport.Dial(dialCtx, normalized)
	if err != nil {
		return nil, classifyDialError(dialCtx, normalized, err)
	}

	conn := newConnection(nc, RoleClient, "", normalized, c.opts, c.publish)
	conn.onClosed = c.registry.removeConnection
	if err := c.registry.addConnection(conn); err != nil {
		_ = nc.Close()
		return nil, err
	}
	conn.start()
	c.logger.Debug("connected",
		logging.String(logging.FieldEndpoint, normalized),
		logging.String(logging.FieldConnectionID, conn.id))
	return conn, nil
}

func classifyDialError(ctx context.Context, name string, err error) error {
	if errors.Is(err, transport.ErrNoEndpoint) {
		return fmt.Errorf("%w: %q", ErrNoSuchEndpoint, name)
	}
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %q", ErrConnectTimeout, name)
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// Disconnect closes a client connection with UserRequested. Unknown ids and
// connections already closing yield ErrConnectionNotFound.
func (c *Connector) Disconnect(id string) error {
	conn, ok := c.registry.Connection(id)
	if !ok || conn.role != RoleClient || conn.State() != StateOpen {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, id)
	}
	return conn.Close(CauseUserRequested)
}
