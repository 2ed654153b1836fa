package solvent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/solventdi/solvent/internal/graph"
)

// ========================================
// Core Error Values (Sentinel Errors)
// ========================================
// Base errors wrapped by the typed errors below. Never returned bare to
// callers of the public API.

var (
	// Registration errors.
	ErrProviderNil     = errors.New("provider cannot be nil")
	ErrKeyNil          = errors.New("key cannot be nil")
	ErrUnionProvided   = errors.New("a union key cannot be provided, only required")
	ErrUnboundProvider = errors.New("generic provider must be bound to a concrete key before use")

	// Lifecycle errors.
	ErrEngineClosed = errors.New("engine has been closed")
	ErrScopeClosed  = errors.New("scope has been closed")

	// Call errors.
	ErrAsyncCall = errors.New("asynchronous injection site must be called with CallContext")

	// Resolution errors.
	ErrNoProviders = errors.New("no provider registered")
)

var (
	_ error = (*MissingProviderError)(nil)
	_ error = (*ModeMismatchError)(nil)
	_ error = (*ProviderExecutionError)(nil)
	_ error = (*ReleaseError)(nil)
	_ error = (*OverrideError)(nil)
	_ error = (*RegistrationError)(nil)
)

// CycleError reports a re-entrant key detected while building a Solution.
// It is always surfaced at solve time, before any provider executes.
type CycleError = graph.CycleError

// MissingProviderError indicates a required key has no matching provider
// and no ambient value in scope. It is never retried.
type MissingProviderError struct {
	Key  *Key
	Sync bool // true when only synchronous providers were considered

	// Keys that ARE registered, for suggestions. Optional.
	Available []*Key
}

func (e *MissingProviderError) Error() string {
	var b strings.Builder
	if e.Sync {
		b.WriteString(fmt.Sprintf("no sync provider for key %s", e.Key))
	} else {
		b.WriteString(fmt.Sprintf("no provider for key %s", e.Key))
	}

	if similar := similarKeys(e.Key, e.Available); len(similar) > 0 {
		b.WriteString("\n\nDid you mean one of these?\n")
		for _, k := range similar {
			b.WriteString(fmt.Sprintf("  • %s\n", k))
		}
	}

	b.WriteString("\nRegister a provider for the key or seed a value into the scope.")
	return b.String()
}

func (e *MissingProviderError) Unwrap() error { return ErrNoProviders }

// similarKeys finds registered keys whose names resemble the missing one.
func similarKeys(target *Key, available []*Key) []*Key {
	if target == nil || len(available) == 0 {
		return nil
	}

	var similar []*Key
	targetName := strings.ToLower(target.Name())
	for _, k := range available {
		if k == nil || k == target {
			continue
		}
		name := strings.ToLower(k.Name())
		if strings.Contains(name, targetName) || strings.Contains(targetName, name) {
			similar = append(similar, k)
		}
		if len(similar) >= 5 {
			break
		}
	}
	return similar
}

// ModeMismatchError indicates a key whose only providers are asynchronous
// was requested from a synchronous injection site. The provider is not
// executed.
type ModeMismatchError struct {
	Key *Key
}

func (e *ModeMismatchError) Error() string {
	return fmt.Sprintf("key %s only has asynchronous providers and cannot satisfy a synchronous call; use CallContext or register a synchronous provider", e.Key)
}

// ProviderExecutionError wraps a failure inside a provider's own acquire
// code. Resources acquired earlier in the same Solution are released
// before this error propagates.
type ProviderExecutionError struct {
	Key   *Key
	Cause error
}

func (e *ProviderExecutionError) Error() string {
	return fmt.Sprintf("provider for %s failed: %v", e.Key, e.Cause)
}

func (e *ProviderExecutionError) Unwrap() error { return e.Cause }

// ReleaseError aggregates release callback failures from one frame. Every
// release in the frame is still attempted before this is returned.
type ReleaseError struct {
	Scope  string // scope id
	Errors []error
}

func (e *ReleaseError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("scope %s release failed: %v", e.Scope, e.Errors[0])
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("scope %s release failed with %d errors:", e.Scope, len(e.Errors)))
	for i, err := range e.Errors {
		b.WriteString(fmt.Sprintf("\n  %d. %v", i+1, err))
	}
	return b.String()
}

func (e *ReleaseError) Unwrap() []error { return e.Errors }

// OverrideError indicates a call-time override that cannot be applied,
// such as overriding a union requirement where the intended member is
// ambiguous.
type OverrideError struct {
	Key    *Key
	Reason string
}

func (e *OverrideError) Error() string {
	return fmt.Sprintf("cannot override %s: %s", e.Key, e.Reason)
}

// RegistrationError wraps errors during provider registration.
type RegistrationError struct {
	Key   *Key
	Cause error
}

func (e *RegistrationError) Error() string {
	if e.Key != nil {
		return fmt.Sprintf("failed to register provider for %s: %v", e.Key, e.Cause)
	}
	return fmt.Sprintf("failed to register provider: %v", e.Cause)
}

func (e *RegistrationError) Unwrap() error { return e.Cause }

// IsMissingProvider reports whether err is a missing-provider failure.
func IsMissingProvider(err error) bool {
	var m *MissingProviderError
	return errors.As(err, &m)
}

// IsCycle reports whether err is a dependency-cycle failure.
func IsCycle(err error) bool {
	var c *CycleError
	return errors.As(err, &c)
}

// IsModeMismatch reports whether err is a sync/async mode mismatch.
func IsModeMismatch(err error) bool {
	var m *ModeMismatchError
	return errors.As(err, &m)
}
