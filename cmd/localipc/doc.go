// Package main hosts the localipc CLI.
//
// The Cobra command tree runs a named endpoint (serve), talks to one as a
// client (send), inspects the socket directory (endpoints) and scaffolds
// configuration (config). Configuration and logger setup live on the shared
// commandContext so subcommands only deal with the engine.
package main
