package ipc

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"localipc/internal/logging"
	"localipc/internal/telemetry"
)

// dispatchItem is either an event or an ordered callback. Callbacks are
// never dropped and do not count toward the backlog.
type dispatchItem struct {
	ev Event
	fn func()
}

// Dispatcher serializes events from every connection and server onto a
// single delivery goroutine. Publish never waits on the handler: once the
// backlog is full the oldest queued event is discarded, and a
// DispatcherOverflow event reporting the count precedes the next delivery.
type Dispatcher struct {
	handler Handler
	backlog int
	logger  *slog.Logger
	metrics telemetry.Collector
	warn    rate.Sometimes

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []dispatchItem
	events   int
	dropped  uint64
	total    uint64
	seq      uint64
	closed   bool
	finished chan struct{}
}

// NewDispatcher starts a dispatcher delivering to handler. A nil handler
// discards events.
func NewDispatcher(handler Handler, opts Options) *Dispatcher {
	opts = opts.withDefaults()
	if handler == nil {
		handler = func(Event) {}
	}
	d := &Dispatcher{
		handler:  handler,
		backlog:  opts.DispatcherBacklog,
		logger:   logging.NewComponentLogger(opts.Logger, "dispatcher"),
		metrics:  opts.Metrics,
		warn:     rate.Sometimes{Interval: time.Second},
		finished: make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	go d.loop()
	return d
}

// Publish enqueues ev. It reports false if the dispatcher is closed.
func (d *Dispatcher) Publish(ev Event) bool {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	overflowed := false
	if d.events >= d.backlog {
		d.dropOldestLocked()
		overflowed = true
	}
	d.queue = append(d.queue, dispatchItem{ev: ev})
	d.events++
	total := d.total
	d.cond.Signal()
	d.mu.Unlock()

	if overflowed {
		d.metrics.EventsDropped(1)
		d.warn.Do(func() {
			logging.WarnWithContext(d.logger, "event backlog full; dropping oldest events", "ipc_dispatcher_overflow",
				logging.Uint64("dropped_total", total),
				logging.Int("backlog", d.backlog),
				logging.String(logging.FieldImpact, "subscribers miss events"),
				logging.String(logging.FieldErrorHint, "make the event handler faster or raise limits.dispatcher_backlog"))
		})
	}
	return true
}

// Do runs fn on the delivery goroutine after everything published before it.
func (d *Dispatcher) Do(fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.queue = append(d.queue, dispatchItem{fn: fn})
	d.cond.Signal()
	return true
}

func (d *Dispatcher) dropOldestLocked() {
	for i, item := range d.queue {
		if item.fn != nil {
			continue
		}
		d.queue = append(d.queue[:i], d.queue[i+1:]...)
		d.events--
		d.dropped++
		d.total++
		return
	}
}

// Dropped returns the number of events discarded since creation.
func (d *Dispatcher) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total
}

// Close delivers the remaining backlog and stops the delivery goroutine.
// It must not be called from a handler.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
	<-d.finished
}

func (d *Dispatcher) loop() {
	defer close(d.finished)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && d.dropped == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 && d.dropped == 0 {
			d.mu.Unlock()
			return
		}

		var overflow *Event
		if d.dropped > 0 {
			d.seq++
			overflow = &Event{
				Kind:    EventDispatcherOverflow,
				Seq:     d.seq,
				Time:    time.Now(),
				Dropped: d.dropped,
				Err:     fmt.Errorf("%w: %d events dropped", ErrDispatcherOverflow, d.dropped),
			}
			d.dropped = 0
		}
		var item dispatchItem
		hasItem := len(d.queue) > 0
		if hasItem {
			item = d.queue[0]
			d.queue[0] = dispatchItem{}
			d.queue = d.queue[1:]
			if item.fn == nil {
				d.events--
				d.seq++
				item.ev.Seq = d.seq
			}
		}
		d.mu.Unlock()

		if overflow != nil {
			d.deliver(*overflow)
		}
		if !hasItem {
			continue
		}
		if item.fn != nil {
			d.run(item.fn)
			continue
		}
		d.deliver(item.ev)
	}
}

func (d *Dispatcher) deliver(ev Event) {
	d.run(func() { d.handler(ev) })
}

func (d *Dispatcher) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(d.logger, "event handler panicked", "ipc_handler_panic",
				logging.Any("panic", r),
				logging.String(logging.FieldErrorHint, "fix the subscriber; later events are still delivered"))
		}
	}()
	fn()
}
