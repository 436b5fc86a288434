package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"localipc/internal/logging"
	"localipc/internal/transport"
)

// acceptRetryInterval paces accept retries so a persistent failure such as
// descriptor exhaustion cannot spin the loop.
const acceptRetryInterval = 100 * time.Millisecond

// Server owns one listening endpoint and every connection accepted on it.
type Server struct {
	name    string
	handle  string
	address string

	listener net.Listener
	registry *Registry
	opts     Options
	publish  Handler
	logger   *slog.Logger
	limiter  *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	conns   map[string]*Connection
	closing bool

	closeOnce sync.Once
	closeErr  error
}

// Listen binds name and starts accepting clients. Every event of the
// endpoint's connections, and any accept failure, is passed to onEvent from
// connection goroutines; onEvent must not block. Pass a Dispatcher's Publish
// to serialize them.
func Listen(reg *Registry, name string, onEvent Handler, opts Options) (*Server, error) {
	if reg == nil {
		return nil, fmt.Errorf("%w: nil registry", ErrInvalidArguments)
	}
	opts = opts.withDefaults()
	normalized, err := transport.NormalizeName(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBindFailed, err)
	}
	if err := reg.reserve(normalized); err != nil {
		return nil, err
	}

	tr := transport.New(opts.Transport)
	ln, err := tr.Listen(normalized)
	if err != nil {
		reg.unreserve(normalized)
		if errors.Is(err, transport.ErrEndpointBusy) {
			return nil, fmt.Errorf("%w: %w", ErrNameInUse, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrBindFailed, err)
	}

	if onEvent == nil {
		onEvent = func(Event) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	srv := &Server{
		name:     normalized,
		address:  tr.Address(normalized),
		listener: ln,
		registry: reg,
		opts:     opts,
		publish:  onEvent,
		limiter:  rate.NewLimiter(rate.Every(acceptRetryInterval), 1),
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[string]*Connection),
	}
	handle, err := reg.commit(srv)
	if err != nil {
		cancel()
		_ = ln.Close()
		return nil, err
	}
	srv.handle = handle
	srv.logger = logging.NewComponentLogger(opts.Logger, "server").With(
		logging.String(logging.FieldEndpoint, normalized),
		logging.String("handle", handle),
	)

	srv.wg.Add(1)
	go srv.acceptLoop()
	srv.logger.Info("endpoint listening", logging.String("address", srv.address))
	return srv, nil
}

func (s *Server) Name() string { return s.name }

// Handle returns the opaque endpoint handle ("server_N").
func (s *Server) Handle() string { return s.handle }

// Address returns the socket path or pipe name the server is bound to.
func (s *Server) Address() string { return s.address }

// Connections returns the server's live connections.
func (s *Server) Connections() []*Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}

func (s *Server) connectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "clients may fail to connect"),
				logging.String(logging.FieldErrorHint, "check open file limits and socket permissions"))
			s.publish(Event{
				Kind:     EventEndpointError,
				Time:     time.Now(),
				Endpoint: s.name,
				Err:      fmt.Errorf("%w: accept: %w", ErrTransport, err),
			})
			if s.limiter.Wait(s.ctx) != nil {
				return
			}
			continue
		}

		conn := newConnection(nc, RoleServer, s.name, "", s.opts, s.publish)
		conn.onClosed = s.untrack
		if !s.track(conn) {
			_ = nc.Close()
			continue
		}
		conn.start()
	}
}

func (s *Server) track(c *Connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	if err := s.registry.addConnection(c); err != nil {
		return false
	}
	s.conns[c.id] = c
	return true
}

func (s *Server) untrack(c *Connection) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
	s.registry.removeConnection(c)
}

// Close stops accepting, closes every owned connection with
// EndpointClosing, waits for their Closed events, and releases the name.
// It is idempotent.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.mu.Lock()
		s.closing = true
		conns := make([]*Connection, 0, len(s.conns))
		for _, c := range s.conns {
			conns = append(conns, c)
		}
		s.mu.Unlock()

		s.closeErr = s.listener.Close()
		s.wg.Wait()

		for _, c := range conns {
			_ = c.Close(CauseEndpointClosing)
		}
		for _, c := range conns {
			<-c.Done()
		}
		s.registry.removeServer(s)
		s.logger.Info("endpoint closed", logging.Int("connections_closed", len(conns)))
	})
	return s.closeErr
}
