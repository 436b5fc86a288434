package telemetry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures telemetry events emitted by the IPC engine.
//
// Hooks run inline on connection read/write paths, so implementations must be
// cheap and must not block.
type Collector interface {
	ConnectionOpened(role string)
	ConnectionClosed(role, cause string)
	FrameSent(bytes int)
	FrameReceived(bytes int)
	SendRejected(reason string)
	EventsDropped(count uint64)
	SetEndpoints(count int)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) ConnectionOpened(string)         {}
func (noopCollector) ConnectionClosed(string, string) {}
func (noopCollector) FrameSent(int)                   {}
func (noopCollector) FrameReceived(int)               {}
func (noopCollector) SendRejected(string)             {}
func (noopCollector) EventsDropped(uint64)            {}
func (noopCollector) SetEndpoints(int)                {}

// PrometheusCollector exposes IPC counters via Prometheus.
type PrometheusCollector struct {
	opened    *prometheus.CounterVec
	closed    *prometheus.CounterVec
	frames    *prometheus.CounterVec
	bytes     *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	dropped   prometheus.Counter
	endpoints prometheus.Gauge
}

// NewPrometheusCollector registers the IPC metrics with reg. Metrics that are
// already registered are reused, so building a second collector against the
// same registry is safe.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	opened, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "localipc_connections_opened_total",
		Help: "Connections that reached the open state, by role.",
	}, []string{"role"}))
	if err != nil {
		return nil, err
	}
	closed, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "localipc_connections_closed_total",
		Help: "Connections torn down, by role and close cause.",
	}, []string{"role", "cause"}))
	if err != nil {
		return nil, err
	}
	frames, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "localipc_frames_total",
		Help: "Frames written or read, by direction.",
	}, []string{"direction"}))
	if err != nil {
		return nil, err
	}
	bytes, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "localipc_payload_bytes_total",
		Help: "Payload bytes written or read, by direction.",
	}, []string{"direction"}))
	if err != nil {
		return nil, err
	}
	rejected, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "localipc_send_rejected_total",
		Help: "Sends refused before reaching the write queue, by reason.",
	}, []string{"reason"}))
	if err != nil {
		return nil, err
	}
	dropped, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "localipc_dispatcher_dropped_total",
		Help: "Events discarded because the dispatcher backlog was full.",
	}))
	if err != nil {
		return nil, err
	}
	endpoints, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "localipc_endpoints_listening",
		Help: "Endpoints currently bound by this process.",
	}))
	if err != nil {
		return nil, err
	}

	return &PrometheusCollector{
		opened:    opened,
		closed:    closed,
		frames:    frames,
		bytes:     bytes,
		rejected:  rejected,
		dropped:   dropped,
		endpoints: endpoints,
	}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

func (p *PrometheusCollector) ConnectionOpened(role string) {
	p.opened.WithLabelValues(role).Inc()
}

func (p *PrometheusCollector) ConnectionClosed(role, cause string) {
	p.closed.WithLabelValues(role, cause).Inc()
}

func (p *PrometheusCollector) FrameSent(n int) {
	p.frames.WithLabelValues("out").Inc()
	p.bytes.WithLabelValues("out").Add(float64(n))
}

func (p *PrometheusCollector) FrameReceived(n int) {
	p.frames.WithLabelValues("in").Inc()
	p.bytes.WithLabelValues("in").Add(float64(n))
}

func (p *PrometheusCollector) SendRejected(reason string) {
	p.rejected.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) EventsDropped(count uint64) {
	p.dropped.Add(float64(count))
}

func (p *PrometheusCollector) SetEndpoints(count int) {
	p.endpoints.Set(float64(count))
}
