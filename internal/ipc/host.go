package ipc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"localipc/internal/logging"
)

// clientRoute keys the subscription for client-side connections.
const clientRoute = ""

// Host wires a Registry, a Connector and a Dispatcher into the operation
// set a binding layer drives: create and close servers, connect and
// disconnect clients, subscribe to endpoint events and send by connection
// id. Subscribers run on the dispatcher goroutine.
type Host struct {
	opts       Options
	logger     *slog.Logger
	registry   *Registry
	connector  *Connector
	dispatcher *Dispatcher

	// routes is only touched on the dispatcher goroutine.
	routes map[string]*route
	// pendingDropped counts events discarded from unsubscribed routes.
	pendingDropped atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

type route struct {
	handle  string
	handler Handler
	pending []Event
	// dropped and droppedSeq describe events lost before a subscriber
	// arrived; droppedSeq is the Seq of the latest of them.
	dropped    uint64
	droppedSeq uint64
}

// NewHost returns a ready host. Call Close to release every endpoint and
// connection it created.
func NewHost(opts Options) *Host {
	opts = opts.withDefaults()
	h := &Host{
		opts:     opts,
		logger:   logging.NewComponentLogger(opts.Logger, "host"),
		registry: NewRegistry(),
		routes:   make(map[string]*route),
	}
	h.registry.endpointsChanged = opts.Metrics.SetEndpoints
	h.dispatcher = NewDispatcher(h.route, opts)
	h.connector = NewConnector(h.registry, h.publish, opts)
	return h
}

func (h *Host) publish(ev Event) { h.dispatcher.Publish(ev) }

// Registry exposes the host's endpoint table for diagnostics.
func (h *Host) Registry() *Registry { return h.registry }

// CreateServer binds name and returns its endpoint handle. Events for the
// endpoint are held until Listen subscribes to them.
func (h *Host) CreateServer(name string) (string, error) {
	srv, err := Listen(h.registry, name, h.publish, h.opts)
	if err != nil {
		return "", err
	}
	handle, key := srv.Handle(), srv.Name()
	// The route exists from here on, so overflow notices are held for it.
	h.dispatcher.Do(func() {
		if _, ok := h.routes[key]; !ok {
			h.routes[key] = &route{handle: handle}
		}
	})
	return handle, nil
}

// CloseServer closes the endpoint and all of its connections. The
// subscriber still receives the resulting Closed events.
func (h *Host) CloseServer(handle string) error {
	srv, ok := h.registry.Server(handle)
	if !ok {
		return fmt.Errorf("%w: %s", ErrServerNotFound, handle)
	}
	err := srv.Close()
	name := srv.Name()
	h.dispatcher.Do(func() {
		if r, ok := h.routes[name]; ok && (r.handle == handle || r.handle == "") {
			delete(h.routes, name)
		}
	})
	return err
}

// Listen subscribes handler to the endpoint's events, first replaying any
// that arrived before the subscription.
func (h *Host) Listen(handle string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrInvalidArguments)
	}
	srv, ok := h.registry.Server(handle)
	if !ok {
		return fmt.Errorf("%w: %s", ErrServerNotFound, handle)
	}
	name := srv.Name()
	if !h.dispatcher.Do(func() { h.subscribe(name, handle, handler) }) {
		return ErrHostClosed
	}
	return nil
}

// OnClientEvent subscribes handler to events of client-side connections.
// Overflow notices go to every subscriber.
func (h *Host) OnClientEvent(handler Handler) {
	h.dispatcher.Do(func() { h.subscribe(clientRoute, "", handler) })
}

// Connect dials name and returns the new connection id.
func (h *Host) Connect(ctx context.Context, name string) (string, error) {
	conn, err := h.connector.Connect(ctx, name)
	if err != nil {
		return "", err
	}
	return conn.ID(), nil
}

// Disconnect closes a client connection by id.
func (h *Host) Disconnect(id string) error {
	return h.connector.Disconnect(id)
}

// SendMessageFromServer queues payload on a server-side connection.
func (h *Host) SendMessageFromServer(id string, payload []byte) error {
	return h.send(id, RoleServer, payload)
}

// SendMessageFromClient queues payload on a client-side connection.
func (h *Host) SendMessageFromClient(id string, payload []byte) error {
	return h.send(id, RoleClient, payload)
}

func (h *Host) send(id string, role Role, payload []byte) error {
	conn, ok := h.registry.Connection(id)
	if !ok || conn.Role() != role {
		return fmt.Errorf("%w: no %s connection %s", ErrConnectionNotFound, role, id)
	}
	return conn.Send(payload)
}

// Endpoints lists the host's listening endpoints.
func (h *Host) Endpoints() []EndpointInfo {
	return h.registry.Endpoints()
}

// Dropped returns how many events were discarded, either by the dispatcher
// or from the buffer of an endpoint nobody listens to yet.
func (h *Host) Dropped() uint64 {
	return h.dispatcher.Dropped() + h.pendingDropped.Load()
}

// Close tears down every endpoint and connection, then delivers the
// remaining events and stops the dispatcher. It must not be called from a
// subscriber, since it waits for the delivery goroutine to finish.
func (h *Host) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.registry.Close()
		h.dispatcher.Close()
	})
	return h.closeErr
}

func (h *Host) subscribe(key, handle string, handler Handler) {
	r, ok := h.routes[key]
	if !ok {
		r = &route{}
		h.routes[key] = r
	}
	r.handle = handle
	r.handler = handler
	pending := r.pending
	r.pending = nil
	if r.dropped > 0 {
		dropped := r.dropped
		r.dropped = 0
		h.call(handler, Event{
			Kind:    EventDispatcherOverflow,
			Seq:     r.droppedSeq,
			Time:    time.Now(),
			Dropped: dropped,
			Err:     fmt.Errorf("%w: %d events dropped before subscribe", ErrDispatcherOverflow, dropped),
		})
	}
	for _, ev := range pending {
		h.call(handler, ev)
	}
}

// route runs on the dispatcher goroutine.
func (h *Host) route(ev Event) {
	if ev.Kind == EventDispatcherOverflow {
		for _, r := range h.routes {
			if r.handler != nil {
				h.call(r.handler, ev)
				continue
			}
			h.hold(r, ev)
		}
		return
	}

	key := ev.Endpoint
	if ev.Role == RoleClient {
		key = clientRoute
	}
	r, ok := h.routes[key]
	if !ok {
		r = &route{}
		h.routes[key] = r
	}
	if r.handler != nil {
		h.call(r.handler, ev)
		return
	}
	h.hold(r, ev)
}

// hold buffers ev for a route without a subscriber, discarding the oldest
// buffered event when full. A discarded overflow notice folds its count
// into the route's own.
func (h *Host) hold(r *route, ev Event) {
	if len(r.pending) >= h.opts.DispatcherBacklog {
		oldest := r.pending[0]
		r.pending = r.pending[1:]
		r.droppedSeq = oldest.Seq
		if oldest.Kind == EventDispatcherOverflow {
			r.dropped += oldest.Dropped
		} else {
			r.dropped++
			h.pendingDropped.Add(1)
			h.opts.Metrics.EventsDropped(1)
		}
	}
	r.pending = append(r.pending, ev)
}

func (h *Host) call(handler Handler, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.ErrorWithContext(h.logger, "event subscriber panicked", "ipc_handler_panic",
				logging.Any("panic", rec),
				logging.String("event", ev.Kind.String()),
				logging.String(logging.FieldErrorHint, "fix the subscriber; later events are still delivered"))
		}
	}()
	handler(ev)
}
