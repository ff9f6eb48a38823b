// ABOUTME: Package documentation for the gateway package.
// ABOUTME: Describes the HTTP API surface and its streaming contract.

// Package gateway exposes the conversational API over HTTP.
//
// Thread management and history are plain JSON endpoints under /api/threads.
// POST /api/send runs one turn and streams progress as Server-Sent Events:
// a "started" event carrying the thread id, then interleaved "token",
// "tool_start" and "tool_end" events in stream order, and finally "done"
// with the full answer or "error" with the failure detail. Token events
// carry deltas; concatenating them reproduces the full answer exactly.
//
// All /api/ routes sit behind bearer-token auth when a verifier is
// configured; /healthz is always open.
package gateway
