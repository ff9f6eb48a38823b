// ABOUTME: Package documentation for the client package.
// ABOUTME: Describes the gateway API client used by the TUI.

// Package client wraps the genie-gateway HTTP API. Thread management and
// history are plain request/response calls; Send consumes the SSE stream of
// a turn and delivers typed events on a channel that closes when the turn
// ends.
package client
