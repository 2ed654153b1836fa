package solvent

import "context"

type scopeContextKey struct{}

// NewContext returns a context carrying the scope, for handing a frame
// across API boundaries that only pass contexts (HTTP middleware, worker
// queues).
func NewContext(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, s)
}

// FromContext extracts the scope stored by NewContext.
func FromContext(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeContextKey{}).(*Scope)
	return s, ok
}

// MustFromContext is FromContext for call paths where a missing scope is a
// wiring bug.
func MustFromContext(ctx context.Context) *Scope {
	s, ok := FromContext(ctx)
	if !ok {
		panic("solvent: no scope in context; wrap the context with NewContext first")
	}
	return s
}
