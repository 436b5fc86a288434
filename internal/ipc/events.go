package ipc

import (
	"fmt"
	"time"
)

// Role says which side of a connection this process holds.
type Role int

const (
	RoleServer Role = iota + 1
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RoleClient:
		return "client"
	default:
		return "unknown"
	}
}

// State is a connection's lifecycle position. Transitions only move forward.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// CloseCause classifies why a connection ended.
type CloseCause int

const (
	CausePeerClosed CloseCause = iota + 1
	CauseTransportError
	CauseProtocolError
	CauseEndpointClosing
	CauseUserRequested
)

func (c CloseCause) String() string {
	switch c {
	case CausePeerClosed:
		return "PeerClosed"
	case CauseTransportError:
		return "TransportError"
	case CauseProtocolError:
		return "ProtocolError"
	case CauseEndpointClosing:
		return "EndpointClosing"
	case CauseUserRequested:
		return "UserRequested"
	default:
		return "Unknown"
	}
}

// CloseReason is the cause plus, for transport and protocol failures, the
// underlying error.
type CloseReason struct {
	Cause CloseCause
	Err   error
}

func (r CloseReason) String() string {
	if r.Err != nil {
		return r.Cause.String() + "(" + r.Err.Error() + ")"
	}
	return r.Cause.String()
}

// EventKind tags the Event variant.
type EventKind int

const (
	EventOpened EventKind = iota + 1
	EventMessage
	EventClosed
	EventEndpointError
	EventDispatcherOverflow
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "Opened"
	case EventMessage:
		return "MessageReceived"
	case EventClosed:
		return "Closed"
	case EventEndpointError:
		return "EndpointError"
	case EventDispatcherOverflow:
		return "DispatcherOverflow"
	default:
		return "Unknown"
	}
}

// Event is delivered to subscribers in per-connection order. Which fields
// are meaningful depends on Kind:
//
//	Opened              ConnID, Endpoint, Role
//	MessageReceived     ConnID, Endpoint, Role, Payload
//	Closed              ConnID, Endpoint, Role, Reason
//	EndpointError       Endpoint, Err
//	DispatcherOverflow  Dropped, Err
//
// Seq is assigned at delivery and strictly increases across all events of
// one dispatcher.
type Event struct {
	Kind     EventKind
	Seq      uint64
	Time     time.Time
	ConnID   string
	Endpoint string
	Role     Role
	Payload  []byte
	Reason   CloseReason
	Err      error
	Dropped  uint64
}

func (e Event) String() string {
	switch e.Kind {
	case EventMessage:
		return fmt.Sprintf("%s(%s, %d bytes)", e.Kind, e.ConnID, len(e.Payload))
	case EventClosed:
		return fmt.Sprintf("%s(%s, %s)", e.Kind, e.ConnID, e.Reason)
	case EventEndpointError:
		return fmt.Sprintf("%s(%s, %v)", e.Kind, e.Endpoint, e.Err)
	case EventDispatcherOverflow:
		return fmt.Sprintf("%s(%d)", e.Kind, e.Dropped)
	default:
		return fmt.Sprintf("%s(%s)", e.Kind, e.ConnID)
	}
}

// Handler consumes events. Handlers passed to a Dispatcher run on its single
// delivery goroutine; handlers passed to Listen or NewConnector directly run
// on connection goroutines and must not block.
type Handler func(Event)
