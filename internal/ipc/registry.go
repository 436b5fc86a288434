package ipc

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// EndpointInfo is a diagnostic snapshot of one listening endpoint.
type EndpointInfo struct {
	Name        string
	Handle      string
	Address     string
	Connections int
}

// Registry is the process-scoped table of listening endpoints and live
// connections. Names are reserved before the OS bind, so concurrent Listen
// calls for one name produce exactly one winner.
type Registry struct {
	mu         sync.Mutex
	names      map[string]*Server
	handles    map[string]*Server
	conns      map[string]*Connection
	nextHandle uint64
	closed     bool

	// endpointsChanged is called with the listening count after it changes.
	endpointsChanged func(int)
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		names:   make(map[string]*Server),
		handles: make(map[string]*Server),
		conns:   make(map[string]*Connection),
	}
}

// reserve claims name ahead of binding. The nil entry marks a bind in progress.
func (r *Registry) reserve(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrHostClosed
	}
	if _, taken := r.names[name]; taken {
		return fmt.Errorf("%w: %q", ErrNameInUse, name)
	}
	r.names[name] = nil
	return nil
}

func (r *Registry) unreserve(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if srv, ok := r.names[name]; ok && srv == nil {
		delete(r.names, name)
	}
}

// commit binds a reserved name to srv and assigns its handle.
func (r *Registry) commit(srv *Server) (string, error) {
	r.mu.Lock()
	if r.closed {
		delete(r.names, srv.name)
		r.mu.Unlock()
		return "", ErrHostClosed
	}
	r.nextHandle++
	handle := "server_" + strconv.FormatUint(r.nextHandle, 10)
	r.names[srv.name] = srv
	r.handles[handle] = srv
	count := len(r.handles)
	notify := r.endpointsChanged
	r.mu.Unlock()

	if notify != nil {
		notify(count)
	}
	return handle, nil
}

func (r *Registry) removeServer(srv *Server) {
	r.mu.Lock()
	if r.names[srv.name] == srv {
		delete(r.names, srv.name)
	}
	delete(r.handles, srv.handle)
	count := len(r.handles)
	notify := r.endpointsChanged
	r.mu.Unlock()

	if notify != nil {
		notify(count)
	}
}

func (r *Registry) addConnection(c *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrHostClosed
	}
	r.conns[c.id] = c
	return nil
}

func (r *Registry) removeConnection(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[c.id] == c {
		delete(r.conns, c.id)
	}
}

// Lookup returns the listening server bound to name.
func (r *Registry) Lookup(name string) (*Server, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	srv := r.names[name]
	return srv, srv != nil
}

// Server returns the server for an endpoint handle.
func (r *Registry) Server(handle string) (*Server, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	srv, ok := r.handles[handle]
	return srv, ok
}

// Connection returns a live connection by id.
func (r *Registry) Connection(id string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	return c, ok
}

// Endpoints returns a snapshot of listening endpoints ordered by name.
func (r *Registry) Endpoints() []EndpointInfo {
	r.mu.Lock()
	servers := make([]*Server, 0, len(r.handles))
	for _, srv := range r.handles {
		servers = append(servers, srv)
	}
	r.mu.Unlock()

	out := make([]EndpointInfo, 0, len(servers))
	for _, srv := range servers {
		out = append(out, EndpointInfo{
			Name:        srv.name,
			Handle:      srv.handle,
			Address:     srv.address,
			Connections: srv.connectionCount(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close stops every server and client connection and waits for their
// teardown. Later registrations fail with ErrHostClosed.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	servers := make([]*Server, 0, len(r.handles))
	for _, srv := range r.handles {
		servers = append(servers, srv)
	}
	var clients []*Connection
	for _, c := range r.conns {
		if c.role == RoleClient {
			clients = append(clients, c)
		}
	}
	r.mu.Unlock()

	var firstErr error
	for _, srv := range servers {
		if err := srv.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, c := range clients {
		_ = c.Close(CauseUserRequested)
	}
	for _, c := range clients {
		<-c.Done()
	}
	return firstErr
}
