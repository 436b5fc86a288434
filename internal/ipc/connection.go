package ipc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"localipc/internal/frame"
	"localipc/internal/logging"
	"localipc/internal/telemetry"
	"localipc/internal/transport"
)

// Stats are cumulative payload counters for one connection.
type Stats struct {
	FramesIn  uint64
	FramesOut uint64
	BytesIn   uint64
	BytesOut  uint64
}

// Connection is one established message channel. A read goroutine turns
// inbound frames into events and a single write goroutine drains the
// outbound queue, so concurrent Send calls never interleave on the wire.
type Connection struct {
	id       string
	role     Role
	endpoint string
	target   string

	conn         net.Conn
	codec        frame.Codec
	publish      Handler
	onClosed     func(*Connection)
	logger       *slog.Logger
	metrics      telemetry.Collector
	readBufSize  int
	flushTimeout time.Duration

	state atomic.Int32

	mu        sync.Mutex
	out       chan []byte
	outClosed bool
	reason    *CloseReason

	done chan struct{}

	framesIn, framesOut atomic.Uint64
	bytesIn, bytesOut   atomic.Uint64
}

func newConnection(nc net.Conn, role Role, endpoint, target string, opts Options, publish Handler) *Connection {
	c := &Connection{
		id:           uuid.NewString(),
		role:         role,
		endpoint:     endpoint,
		target:       target,
		conn:         nc,
		codec:        frame.NewCodec(opts.MaxFrameBytes),
		publish:      publish,
		metrics:      opts.Metrics,
		readBufSize:  opts.ReadBufferBytes,
		flushTimeout: opts.CloseFlushTimeout,
		out:          make(chan []byte, opts.SendQueueFrames),
		done:         make(chan struct{}),
	}
	if c.publish == nil {
		c.publish = func(Event) {}
	}
	name := endpoint
	if name == "" {
		name = target
	}
	c.logger = logging.NewComponentLogger(opts.Logger, "connection").With(
		logging.String(logging.FieldConnectionID, c.id),
		logging.String(logging.FieldRole, role.String()),
		logging.String(logging.FieldEndpoint, name),
	)
	c.state.Store(int32(StateConnecting))
	return c
}

// start announces the connection and launches its loops. Opened is
// published before either loop runs, so it always precedes the
// connection's other events.
func (c *Connection) start() {
	c.state.Store(int32(StateOpen))
	c.metrics.ConnectionOpened(c.role.String())
	c.logger.Debug("connection opened")
	c.publish(c.event(EventOpened))
	go c.run()
}

func (c *Connection) run() {
	defer close(c.done)

	var g errgroup.Group
	g.Go(c.readLoop)
	g.Go(c.writeLoop)
	loopErr := g.Wait()
	_ = c.conn.Close()

	c.mu.Lock()
	if c.reason == nil {
		c.reason = &CloseReason{Cause: CauseTransportError, Err: loopErr}
	}
	reason := *c.reason
	c.mu.Unlock()

	c.state.Store(int32(StateClosed))
	c.metrics.ConnectionClosed(c.role.String(), reason.Cause.String())
	if reason.Cause == CauseTransportError || reason.Cause == CauseProtocolError {
		logging.WarnWithContext(c.logger, "connection failed", "ipc_connection_failed",
			logging.String(logging.FieldCloseReason, reason.Cause.String()),
			logging.Error(reason.Err),
			logging.String(logging.FieldImpact, "peer messages after the failure are lost"),
			logging.String(logging.FieldErrorHint, "check that both sides use the same frame size limit"))
	} else {
		c.logger.Debug("connection closed", logging.String(logging.FieldCloseReason, reason.String()))
	}

	ev := c.event(EventClosed)
	ev.Reason = reason
	c.publish(ev)
	if c.onClosed != nil {
		c.onClosed(c)
	}
}

func (c *Connection) event(kind EventKind) Event {
	return Event{
		Kind:     kind,
		Time:     time.Now(),
		ConnID:   c.id,
		Endpoint: c.endpoint,
		Role:     c.role,
	}
}

// ID returns the process-unique connection id.
func (c *Connection) ID() string { return c.id }

func (c *Connection) Role() Role { return c.role }

// Endpoint returns the owning endpoint name; empty for client connections.
func (c *Connection) Endpoint() string { return c.endpoint }

// Target returns the endpoint name a client connection dialed.
func (c *Connection) Target() string { return c.target }

func (c *Connection) State() State { return State(c.state.Load()) }

// Done is closed once the connection is fully torn down and its Closed
// event has been published.
func (c *Connection) Done() <-chan struct{} { return c.done }

func (c *Connection) Stats() Stats {
	return Stats{
		FramesIn:  c.framesIn.Load(),
		FramesOut: c.framesOut.Load(),
		BytesIn:   c.bytesIn.Load(),
		BytesOut:  c.bytesOut.Load(),
	}
}

// Send queues payload for writing. It never blocks: a full queue yields
// ErrBackpressure and a closed outbound direction yields ErrClosed. The
// payload is copied, so callers may reuse it.
func (c *Connection) Send(payload []byte) error {
	encoded, err := c.codec.Encode(payload)
	if err != nil {
		c.metrics.SendRejected("frame_too_large")
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outClosed {
		c.metrics.SendRejected("closed")
		return ErrClosed
	}
	select {
	case c.out <- encoded:
		return nil
	default:
		c.metrics.SendRejected("backpressure")
		return fmt.Errorf("%w: %d frames pending", ErrBackpressure, cap(c.out))
	}
}

// Close half-closes the outbound direction after flushing queued frames,
// then releases the transport once the peer finishes or the flush timeout
// passes. Calls after the first are no-ops.
func (c *Connection) Close(cause CloseCause) error {
	c.shutdown(CloseReason{Cause: cause}, true)
	return nil
}

// shutdown records reason unless one is already set and stops the outbound
// queue. With flush set the writer drains what is queued under a write
// deadline; otherwise the transport is closed at once. It reports whether
// this call was the one that stopped the queue.
func (c *Connection) shutdown(reason CloseReason, flush bool) bool {
	c.mu.Lock()
	if c.reason == nil {
		c.reason = &reason
	}
	first := !c.outClosed
	if first {
		c.outClosed = true
		close(c.out)
		c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
	}
	c.mu.Unlock()

	if !flush {
		_ = c.conn.Close()
	} else if first {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.flushTimeout))
	}
	return first
}

func (c *Connection) localClose() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason != nil
}

func (c *Connection) readLoop() error {
	chunk := make([]byte, c.readBufSize)
	var pending []byte
	for {
		n, err := c.conn.Read(chunk)
		if n > 0 {
			pending = append(pending, chunk[:n]...)
			off := 0
			for {
				payload, used, derr := c.codec.Decode(pending[off:])
				if errors.Is(derr, frame.ErrIncomplete) {
					break
				}
				if derr != nil {
					c.shutdown(CloseReason{Cause: CauseProtocolError, Err: derr}, false)
					return derr
				}
				off += used
				c.framesIn.Add(1)
				c.bytesIn.Add(uint64(len(payload)))
				c.metrics.FrameReceived(len(payload))
				ev := c.event(EventMessage)
				ev.Payload = payload
				c.publish(ev)
			}
			pending = append(pending[:0], pending[off:]...)
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			// Peer finished sending; flush our side and half-close too.
			c.shutdown(CloseReason{Cause: CausePeerClosed}, true)
			return nil
		}
		if c.localClose() {
			return nil
		}
		c.shutdown(CloseReason{Cause: CauseTransportError, Err: err}, false)
		return fmt.Errorf("%w: read: %w", ErrTransport, err)
	}
}

func (c *Connection) writeLoop() error {
	w := bufio.NewWriterSize(c.conn, c.readBufSize)
	for encoded := range c.out {
		if _, err := w.Write(encoded); err != nil {
			return c.writeFailed(err)
		}
		c.framesOut.Add(1)
		payloadLen := len(encoded) - frame.HeaderSize
		c.bytesOut.Add(uint64(payloadLen))
		c.metrics.FrameSent(payloadLen)
		if len(c.out) == 0 {
			if err := w.Flush(); err != nil {
				return c.writeFailed(err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return c.writeFailed(err)
	}

	hc, ok := c.conn.(transport.HalfCloser)
	if !ok || hc.CloseWrite() != nil {
		_ = c.conn.Close()
		return nil
	}
	// Give the peer until the flush deadline to finish its side; the read
	// loop exits on its EOF or on the deadline.
	_ = c.conn.SetReadDeadline(time.Now().Add(c.flushTimeout))
	return nil
}

func (c *Connection) writeFailed(err error) error {
	c.shutdown(CloseReason{Cause: CauseTransportError, Err: err}, false)
	return fmt.Errorf("%w: write: %w", ErrTransport, err)
}
