// Package dedupe provides idempotency-key tracking with a TTL cache so
// retried send requests are rejected instead of re-running a turn.
package dedupe
