package solvent

import (
	"fmt"
	"time"
)

// CallState tracks an injector call through its lifecycle. States are
// reported through the WithStateObserver callback.
type CallState int

const (
	// StateIdle is the state before a call begins.
	StateIdle CallState = iota
	// StateResolving covers solution planning and provider execution.
	StateResolving
	// StateInvoking covers the target function's own execution.
	StateInvoking
	// StateReleasing covers the unwinding of the call's transient frame.
	StateReleasing
	// StateDone is a successful terminal state.
	StateDone
	// StateFailed is the terminal state after a resolution, invocation,
	// or release failure.
	StateFailed
)

func (s CallState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateInvoking:
		return "invoking"
	case StateReleasing:
		return "releasing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("CallState(%d)", int(s))
	}
}

// Options configures an Engine. The engine carries no logger of its own;
// embedders observe resolution through these callbacks.
type Options struct {
	// OnResolved is called after each provider executes successfully.
	OnResolved func(key *Key, value any, duration time.Duration)

	// OnError is called when resolution of a key fails.
	OnError func(key *Key, err error)

	// OnStateChange is called on every injector call state transition.
	OnStateChange func(state CallState)
}

// Option configures an Engine.
type Option func(*Options)

// WithResolvedCallback observes successful provider executions.
func WithResolvedCallback(fn func(key *Key, value any, duration time.Duration)) Option {
	return func(o *Options) { o.OnResolved = fn }
}

// WithErrorCallback observes resolution failures.
func WithErrorCallback(fn func(key *Key, err error)) Option {
	return func(o *Options) { o.OnError = fn }
}

// WithStateObserver observes injector call state transitions.
func WithStateObserver(fn func(state CallState)) Option {
	return func(o *Options) { o.OnStateChange = fn }
}
