package solvent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Mode identifies the execution shape of a provider. All four shapes are
// normalized into one acquire/release contract; the mode decides which
// call paths may use the provider and whether acquire/release observe the
// context.
type Mode int

const (
	// SyncValue providers return a value with no cleanup.
	SyncValue Mode = iota
	// SyncResource providers return a value plus a release callback.
	SyncResource
	// ModeAsyncValue providers return a value and observe ctx during acquire.
	ModeAsyncValue
	// ModeAsyncResource providers return a value plus a release callback and
	// observe ctx during both acquire and release.
	ModeAsyncResource
)

// IsAsync reports whether the provider may only be used from asynchronous
// (context-carrying) call paths.
func (m Mode) IsAsync() bool { return m == ModeAsyncValue || m == ModeAsyncResource }

// IsResource reports whether the provider yields a resource with cleanup.
func (m Mode) IsResource() bool { return m == SyncResource || m == ModeAsyncResource }

func (m Mode) String() string {
	switch m {
	case SyncValue:
		return "sync-value"
	case SyncResource:
		return "sync-resource"
	case ModeAsyncValue:
		return "async-value"
	case ModeAsyncResource:
		return "async-resource"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ReleaseFunc finalizes a resource acquired from a provider. The engine
// guarantees it is invoked at most once and always invoked, even when the
// caller fails after acquiring.
type ReleaseFunc func(ctx context.Context) error

// KeyFunc infers the produced key of a generic provider from its bound
// arguments. Used when the key cannot be read off the provider declaration
// itself.
type KeyFunc func(args ...any) *Key

// providerCounter assigns ids used as graph node identities for provider
// activations.
var providerCounter uint64

// Provider produces or yields a value for a dependency key, possibly
// requiring other keys itself. Providers are declared once and may be
// activated on any number of engines, including twice on the same engine
// for override or accumulator chains.
type Provider struct {
	id       uint64
	provides *Key
	requires []*Key
	mode     Mode

	// acquire normalizes all provider shapes: run setup, hand back the
	// value, defer teardown to the returned release.
	acquire func(ctx context.Context, d Deps, args []any) (any, ReleaseFunc, error)

	infer KeyFunc // key-inference rule for generic providers
	args  []any   // bound non-dependency arguments
	tuple bool    // value is []any aligned with provides.Members()
}

func newProvider(provides *Key, mode Mode, requires []*Key,
	acquire func(ctx context.Context, d Deps, args []any) (any, ReleaseFunc, error)) *Provider {
	return &Provider{
		id:       atomic.AddUint64(&providerCounter, 1),
		provides: provides,
		requires: requires,
		mode:     mode,
		acquire:  acquire,
	}
}

// Provides returns the key this provider produces, or nil for an unbound
// generic provider.
func (p *Provider) Provides() *Key { return p.provides }

// Requires returns the keys this provider depends on.
func (p *Provider) Requires() []*Key {
	out := make([]*Key, len(p.requires))
	copy(out, p.requires)
	return out
}

// Mode returns the provider's execution shape.
func (p *Provider) Mode() Mode { return p.mode }

// requiresSelf reports whether the provider's requirement set includes its
// own produced key. This is what selects accumulator chaining over plain
// last-wins override when the same key is registered twice.
func (p *Provider) requiresSelf() bool {
	if p.provides == nil {
		return false
	}
	for _, r := range p.requires {
		if r == p.provides {
			return true
		}
	}
	return false
}

// String returns a diagnostic description of the provider.
func (p *Provider) String() string {
	if p.provides == nil {
		return fmt.Sprintf("provider(unbound, %s)", p.mode)
	}
	return fmt.Sprintf("provider(%s, %s)", p.provides, p.mode)
}

// clone returns a copy of the provider with a fresh activation id.
func (p *Provider) clone() *Provider {
	c := *p
	c.id = atomic.AddUint64(&providerCounter, 1)
	return &c
}

// For narrows a provider to a concrete key, returning a new provider. Used
// to bind a provider declared against an abstract or generic key.
func (p *Provider) For(key *Key) *Provider {
	if key == nil {
		panic("solvent: For requires a non-nil key")
	}
	c := p.clone()
	c.provides = key
	return c
}

// Bind fixes non-dependency arguments before use. When the provider was
// declared with a key-inference rule, the produced key is computed from
// the bound arguments.
func (p *Provider) Bind(args ...any) *Provider {
	c := p.clone()
	c.args = args
	if p.infer != nil {
		c.provides = p.infer(args...)
	}
	return c
}

// checkBindable validates a provider at registration time.
func (p *Provider) validate() error {
	if p.provides == nil {
		return &RegistrationError{Cause: ErrUnboundProvider}
	}
	if p.provides.IsUnion() {
		return &RegistrationError{Key: p.provides, Cause: ErrUnionProvided}
	}
	if p.tuple && !p.provides.IsTuple() {
		return &RegistrationError{Key: p.provides, Cause: fmt.Errorf("tuple provider must produce a tuple key")}
	}
	return nil
}

// onceRelease wraps a release so it runs exactly once even if both a
// failure path and a frame close attempt it.
func onceRelease(fn ReleaseFunc) ReleaseFunc {
	if fn == nil {
		return nil
	}
	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() { err = fn(ctx) })
		return err
	}
}

// Static creates a provider that always supplies the given value. Static
// providers are synchronous, have no dependencies, and no cleanup.
func Static[T any](key *Key, value T) *Provider {
	return newProvider(key, SyncValue, nil,
		func(context.Context, Deps, []any) (any, ReleaseFunc, error) {
			return value, nil, nil
		})
}

// Value creates a synchronous value provider.
func Value[T any](key *Key, fn func(d Deps) (T, error), requires ...*Key) *Provider {
	return newProvider(key, SyncValue, requires,
		func(_ context.Context, d Deps, _ []any) (any, ReleaseFunc, error) {
			v, err := fn(d)
			return v, nil, err
		})
}

// Resource creates a synchronous resource provider: acquire runs fn up to
// the point it hands back the value; the returned release finalizes it.
func Resource[T any](key *Key, fn func(d Deps) (T, ReleaseFunc, error), requires ...*Key) *Provider {
	return newProvider(key, SyncResource, requires,
		func(_ context.Context, d Deps, _ []any) (any, ReleaseFunc, error) {
			v, release, err := fn(d)
			return v, onceRelease(release), err
		})
}

// AsyncValue creates an asynchronous value provider. Acquire observes ctx;
// only context-carrying call paths may use it.
func AsyncValue[T any](key *Key, fn func(ctx context.Context, d Deps) (T, error), requires ...*Key) *Provider {
	return newProvider(key, ModeAsyncValue, requires,
		func(ctx context.Context, d Deps, _ []any) (any, ReleaseFunc, error) {
			v, err := fn(ctx, d)
			return v, nil, err
		})
}

// AsyncResource creates an asynchronous resource provider.
func AsyncResource[T any](key *Key, fn func(ctx context.Context, d Deps) (T, ReleaseFunc, error), requires ...*Key) *Provider {
	return newProvider(key, ModeAsyncResource, requires,
		func(ctx context.Context, d Deps, _ []any) (any, ReleaseFunc, error) {
			v, release, err := fn(ctx, d)
			return v, onceRelease(release), err
		})
}

// Tuple creates a synchronous provider that supplies all members of a
// tuple key at once. fn must return one value per member, in order. This
// is also the mechanism for explicit concurrent resolution: gather several
// independent operations inside one provider and return their results as a
// tuple.
func Tuple(key *Key, fn func(d Deps) ([]any, error), requires ...*Key) *Provider {
	if !key.IsTuple() {
		panic(fmt.Sprintf("solvent: Tuple requires a tuple key, got %s", key))
	}
	p := newProvider(key, SyncValue, requires,
		func(_ context.Context, d Deps, _ []any) (any, ReleaseFunc, error) {
			vs, err := fn(d)
			if err != nil {
				return nil, nil, err
			}
			if len(vs) != len(key.members) {
				return nil, nil, fmt.Errorf("tuple provider for %s returned %d values, want %d", key, len(vs), len(key.members))
			}
			return vs, nil, nil
		})
	p.tuple = true
	return p
}

// AsyncTuple creates an asynchronous tuple provider.
func AsyncTuple(key *Key, fn func(ctx context.Context, d Deps) ([]any, error), requires ...*Key) *Provider {
	if !key.IsTuple() {
		panic(fmt.Sprintf("solvent: AsyncTuple requires a tuple key, got %s", key))
	}
	p := newProvider(key, ModeAsyncValue, requires,
		func(ctx context.Context, d Deps, _ []any) (any, ReleaseFunc, error) {
			vs, err := fn(ctx, d)
			if err != nil {
				return nil, nil, err
			}
			if len(vs) != len(key.members) {
				return nil, nil, fmt.Errorf("tuple provider for %s returned %d values, want %d", key, len(vs), len(key.members))
			}
			return vs, nil, nil
		})
	p.tuple = true
	return p
}

// Generic creates a provider whose produced key is not known until bound
// arguments are supplied. infer maps the bound arguments to the concrete
// key; fn receives them at acquire time. The provider must be narrowed via
// Bind (or For) before registration.
func Generic[T any](infer KeyFunc, fn func(d Deps, args ...any) (T, error), requires ...*Key) *Provider {
	p := newProvider(nil, SyncValue, requires,
		func(_ context.Context, d Deps, args []any) (any, ReleaseFunc, error) {
			v, err := fn(d, args...)
			return v, nil, err
		})
	p.infer = infer
	return p
}
