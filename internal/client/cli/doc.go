// Package cli implements the interactive Plateful client: a small REPL
// over the local record store with on-demand and background sync.
//
// All writes hit the local store first and are reconciled with the server
// by the sync engine, so the CLI stays fully usable offline.
package cli
