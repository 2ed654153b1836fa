package solvent

import "context"

// Override replaces the resolved value of one key for the duration of a
// single injector call. Scope entries that were derived from the
// overridden key are recomputed for that call and discarded afterwards.
type Override struct {
	key   *Key
	value any
}

// With builds a call-time override for key.
func With(key *Key, value any) Override {
	return Override{key: key, value: value}
}

// Site is a declared injection point: a function plus the dependency keys
// it consumes. Declaring the site once and calling it per scope is the
// intended pattern; a Site is immutable and safe for concurrent calls
// against different scopes.
type Site[T any] struct {
	fn       func(ctx context.Context, d Deps) (T, error)
	requires []*Key
	async    bool
	shared   bool
}

// NewSite declares a synchronous injection site. fn receives the resolved
// requirements through Deps. Only synchronous providers can satisfy the
// site's requirements.
func NewSite[T any](fn func(d Deps) (T, error), requires ...*Key) *Site[T] {
	checkRequires(requires)
	return &Site[T]{
		fn: func(_ context.Context, d Deps) (T, error) {
			return fn(d)
		},
		requires: requires,
	}
}

// NewAsyncSite declares an asynchronous injection site. Its requirements
// may be satisfied by providers of any mode, with asynchronous providers
// preferred when both exist for a key. The site must be invoked through
// CallContext.
func NewAsyncSite[T any](fn func(ctx context.Context, d Deps) (T, error), requires ...*Key) *Site[T] {
	checkRequires(requires)
	return &Site[T]{fn: fn, requires: requires, async: true}
}

func checkRequires(requires []*Key) {
	for _, k := range requires {
		if k == nil {
			panic(ErrKeyNil)
		}
	}
}

// Requires returns the site's declared dependency keys.
func (s *Site[T]) Requires() []*Key {
	out := make([]*Key, len(s.requires))
	copy(out, s.requires)
	return out
}

// Shared returns a copy of the site whose resolutions outlive the call:
// on success, everything the call resolved is promoted into the caller's
// scope, and the resources it acquired are released when that scope
// closes instead of when the call returns.
func (s *Site[T]) Shared() *Site[T] {
	c := *s
	c.shared = true
	return &c
}

// Call resolves the site's requirements against scope and invokes the
// function. Values already resolved in the scope are reused; everything
// resolved for this call alone is released before Call returns, in
// reverse acquisition order.
func (s *Site[T]) Call(scope *Scope, overrides ...Override) (T, error) {
	if s.async {
		var zero T
		return zero, ErrAsyncCall
	}
	return s.call(context.Background(), scope, true, overrides)
}

// CallContext is Call for asynchronous call chains. ctx flows into
// asynchronous providers and the site function; cancellation stops
// resolution between providers, and resources acquired before the
// cancellation are still released.
func (s *Site[T]) CallContext(ctx context.Context, scope *Scope, overrides ...Override) (T, error) {
	return s.call(ctx, scope, false, overrides)
}

func (s *Site[T]) call(ctx context.Context, scope *Scope, syncOnly bool, overrides []Override) (T, error) {
	var zero T
	if scope == nil || scope.IsClosed() {
		return zero, ErrScopeClosed
	}
	e := scope.engine
	if e == nil || e.IsClosed() {
		return zero, ErrEngineClosed
	}

	e.observe(StateResolving)

	// The call gets its own frame. Overrides live only here, and the
	// boundary keeps the call from seeing scope entries the overrides
	// made stale.
	frame := scope.Child()
	frame.shadowBoundary = true

	fail := func(err error) (T, error) {
		closeErr := frame.CloseContext(ctx)
		e.observe(StateFailed)
		return zero, joinErrors(err, closeErr)
	}

	var shadow map[*Key]bool
	for _, ov := range overrides {
		if ov.key == nil {
			return fail(ErrKeyNil)
		}
		if ov.key.IsUnion() {
			return fail(&OverrideError{Key: ov.key, Reason: "a union key does not name one concrete value to replace"})
		}
		frame.store(ov.key, ov.value)
		if shadow == nil {
			shadow = make(map[*Key]bool)
		}
		for _, dep := range e.registry.dependentKeys(ov.key) {
			shadow[dep] = true
		}
	}

	lookup := func(k *Key) (any, bool) {
		return lookupKey(frame, shadow, k)
	}

	var missing []*Key
	for _, k := range s.requires {
		if _, ok := lookup(k); !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sol, err := e.solve(missing, syncOnly, lookup)
		if err != nil {
			return fail(err)
		}
		if err := e.execute(ctx, sol, frame, shadow); err != nil {
			e.observe(StateReleasing)
			return fail(err)
		}
	}

	e.observe(StateInvoking)
	out, err := s.fn(ctx, Deps{lookup: lookup})

	e.observe(StateReleasing)
	if err == nil && s.shared {
		scope.absorb(frame)
		e.observe(StateDone)
		return out, nil
	}

	closeErr := frame.CloseContext(ctx)
	if err != nil || closeErr != nil {
		e.observe(StateFailed)
		return zero, joinErrors(err, closeErr)
	}
	e.observe(StateDone)
	return out, nil
}

// Proc is an injection site for functions invoked for effect rather than
// a return value.
type Proc struct {
	site *Site[struct{}]
}

// NewProc declares a synchronous effect-only injection site.
func NewProc(fn func(d Deps) error, requires ...*Key) *Proc {
	return &Proc{site: NewSite(func(d Deps) (struct{}, error) {
		return struct{}{}, fn(d)
	}, requires...)}
}

// NewAsyncProc declares an asynchronous effect-only injection site.
func NewAsyncProc(fn func(ctx context.Context, d Deps) error, requires ...*Key) *Proc {
	return &Proc{site: NewAsyncSite(func(ctx context.Context, d Deps) (struct{}, error) {
		return struct{}{}, fn(ctx, d)
	}, requires...)}
}

// Shared returns a copy whose resolutions are promoted to the caller's
// scope on success.
func (p *Proc) Shared() *Proc {
	return &Proc{site: p.site.Shared()}
}

// Call invokes the site against scope.
func (p *Proc) Call(scope *Scope, overrides ...Override) error {
	_, err := p.site.Call(scope, overrides...)
	return err
}

// CallContext invokes the site with a context.
func (p *Proc) CallContext(ctx context.Context, scope *Scope, overrides ...Override) error {
	_, err := p.site.CallContext(ctx, scope, overrides...)
	return err
}
