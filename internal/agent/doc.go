// Package agent defines the boundary between the gateway and the agent
// runtime that actually answers questions.
//
// # Overview
//
// The gateway never talks to a language model directly. It hands a
// transcript to a Runtime and consumes the resulting event stream:
//
//	events, err := runtime.StreamTurn(ctx, messages, threadID)
//	for ev := range events {
//	    switch ev.Kind {
//	    case agent.EventToken:     // incremental answer text
//	    case agent.EventToolStart: // a data-query tool began
//	    case agent.EventToolEnd:   // the tool finished
//	    case agent.EventError:     // terminal failure
//	    }
//	}
//
// # Event ordering
//
// Events arrive in emission order and the channel closes exactly once, on
// stream end. EventError is always the last event of a failed stream.
//
// The production Runtime lives in internal/coordinator; tests substitute
// small scripted runtimes.
package agent
