// Package store holds conversation state for the gateway.
//
// # ThreadStore
//
// ThreadStore is the in-memory source of truth: a map of threads, each an
// append-only message log plus a display title, with an active-thread
// pointer. State is process-lifetime scoped; restarting the gateway starts
// with an empty store.
//
// Concurrency: appends within one thread are serialized by a per-thread
// mutex, so two turns can never interleave writes inside a single log.
// Appends to different threads proceed in parallel.
//
// # SQLiteLedger
//
// SQLiteLedger is a best-effort audit trail. The orchestrator records every
// user query, assistant answer, tool boundary, and stream failure as a
// LedgerEvent. Ledger writes never fail a turn; they are logged and dropped
// on error.
package store
