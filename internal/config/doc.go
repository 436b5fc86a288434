// Package config loads, normalizes, and validates localipc configuration.
//
// It supplies defaults, expands user paths (including tilde shortcuts),
// reads TOML files, and honours the LOCALIPC_SOCKET_DIR environment
// fallback. Both the CLI and embedders obtain transport locations, queue
// limits and logging settings from the Config type.
package config
