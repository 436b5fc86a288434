// Package ipc implements the local message engine: named endpoints served
// over Unix domain sockets or Windows named pipes, length-prefixed framed
// connections with bounded outbound queues, and an ordered event
// dispatcher.
//
// Host is the entry point for binding layers. It owns a Registry of
// endpoints and connections and routes every Opened, MessageReceived,
// Closed and EndpointError event to the subscriber of the endpoint it
// belongs to. Listen, NewConnector and NewDispatcher expose the same
// pieces for callers that want to wire them differently.
//
// Events of one connection are delivered in order and Closed is always the
// last event for a connection id. Nothing here is fatal to the process: a
// failing connection or endpoint is torn down alone.
package ipc
