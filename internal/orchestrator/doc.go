// Package orchestrator is the streaming core of the gateway.
//
// # Overview
//
// One RunTurn call executes one user turn: it appends the user message to
// the thread, opens the agent runtime's event stream, and consumes events
// strictly in arrival order until the stream ends. Token events grow the
// accumulated answer; tool-start and tool-end events maintain an ephemeral
// tool-activity log for the turn. After every recognized event a TurnUpdate
// snapshot is published so observers can render partial state live.
//
// # Guarantees
//
//   - The answer delivered in any snapshot is a prefix of the answer in
//     every later snapshot; the final answer is the exact concatenation of
//     the token fragments in arrival order.
//   - The user message strictly precedes its assistant answer in the
//     transcript, and the assistant message is appended only on normal
//     stream end.
//   - A stream that fails mid-flight surfaces ErrStreamFailure; the user
//     message stays in the thread and no partial assistant message is
//     recorded, so the caller can retry cleanly.
//   - A second turn on a thread whose stream is still open is rejected
//     with ErrTurnInProgress before any side effects.
//
// Turns on different threads run concurrently and independently.
package orchestrator
