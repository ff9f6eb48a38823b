// ABOUTME: Package documentation for the coordinator package.
// ABOUTME: Explains the model/tool loop behind the streaming runtime.

// Package coordinator implements the agent runtime on top of OpenAI-style
// chat completions. Each turn streams a model round, forwards content deltas
// as token events, and if the model requested tool calls, executes them
// through the tool registry and feeds the results back for another round.
// The loop ends when a round produces no tool calls; the concatenation of
// all emitted token events is the assistant answer.
package coordinator
