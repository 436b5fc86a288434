// Package transport binds and dials named endpoints on the local machine.
//
// On Linux and macOS an endpoint is a Unix domain socket in a configurable
// directory, guarded by a sibling flock file so two processes cannot claim the
// same name and a stale socket left by a crashed process can be replaced
// safely. On Windows an endpoint is a named pipe created through go-winio.
//
// Errors are classified into ErrEndpointBusy, ErrNoEndpoint and ErrInvalidName
// so callers can map them onto their own taxonomy without inspecting errno.
package transport
