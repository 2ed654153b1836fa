package solvent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Engine owns a provider registry and a solution cache and hands out
// scopes. One engine is shared by any number of goroutines; each logical
// call chain works against its own scope.
type Engine struct {
	id       string
	registry *Registry
	cache    *solutionCache
	opts     Options

	mu     sync.Mutex
	scopes []*Scope

	closed int32
}

// New creates an engine with an empty registry.
func New(opts ...Option) *Engine {
	e := &Engine{
		id:       uuid.NewString(),
		registry: NewRegistry(),
		cache:    newSolutionCache(),
	}
	for _, opt := range opts {
		opt(&e.opts)
	}
	return e
}

// ID returns the unique id of this engine.
func (e *Engine) ID() string { return e.id }

// Registry returns the engine's provider registry.
func (e *Engine) Registry() *Registry { return e.registry }

// IsClosed reports whether the engine has been closed.
func (e *Engine) IsClosed() bool { return atomic.LoadInt32(&e.closed) != 0 }

// Use activates providers for the lifetime of the engine. Later
// activations for a key shadow earlier ones, except that providers
// requiring their own key chain onto the existing registration instead of
// replacing it. Registration is atomic: on error nothing stays activated.
func (e *Engine) Use(providers ...*Provider) error {
	if e.IsClosed() {
		return ErrEngineClosed
	}

	var created []*binding
	for _, p := range providers {
		bs, err := e.registry.Register(p)
		if err != nil {
			e.registry.unregister(created)
			return err
		}
		created = append(created, bs...)
	}
	return nil
}

// UseSet activates every provider of the given sets.
func (e *Engine) UseSet(sets ...*Set) error {
	if e.IsClosed() {
		return ErrEngineClosed
	}
	for _, set := range sets {
		if set == nil {
			continue
		}
		if err := e.Use(set.providers...); err != nil {
			return err
		}
	}
	return nil
}

// Remove drops every provider registered for the given keys. Values
// already resolved from them stay in their scopes; only future resolution
// is affected.
func (e *Engine) Remove(keys ...*Key) error {
	if e.IsClosed() {
		return ErrEngineClosed
	}
	for _, k := range keys {
		e.registry.Remove(k)
	}
	return nil
}

// Activation is a revocable provider registration. Closing it restores
// whatever the registry held before, which re-exposes any providers the
// activation had shadowed.
type Activation struct {
	engine   *Engine
	bindings []*binding
	closed   int32
}

// Close deactivates the providers. Values already resolved from them keep
// living in their scopes until those scopes close; only future resolution
// is affected. Closing twice is a no-op.
func (a *Activation) Close() {
	if !atomic.CompareAndSwapInt32(&a.closed, 0, 1) {
		return
	}
	a.engine.registry.unregister(a.bindings)
}

// Activate registers providers temporarily, typically for a test or a
// request-scoped override. The returned Activation undoes the
// registration.
func (e *Engine) Activate(providers ...*Provider) (*Activation, error) {
	if e.IsClosed() {
		return nil, ErrEngineClosed
	}

	var created []*binding
	for _, p := range providers {
		bs, err := e.registry.Register(p)
		if err != nil {
			e.registry.unregister(created)
			return nil, err
		}
		created = append(created, bs...)
	}
	return &Activation{engine: e, bindings: created}, nil
}

// NewScope pushes a root frame. Seeds become resolved values of the frame,
// shadowing providers for their keys.
func (e *Engine) NewScope(seeds ...Seed) *Scope {
	if e.IsClosed() {
		panic(ErrEngineClosed)
	}

	s := newScope(e, nil, seeds)
	e.mu.Lock()
	e.scopes = append(e.scopes, s)
	e.mu.Unlock()
	return s
}

// forgetScope drops a closed root frame from the engine's tracking list.
func (e *Engine) forgetScope(s *Scope) {
	if s.parent != nil {
		return
	}
	e.mu.Lock()
	for i, tracked := range e.scopes {
		if tracked == s {
			e.scopes = append(e.scopes[:i], e.scopes[i+1:]...)
			break
		}
	}
	e.mu.Unlock()
}

// Close shuts the engine down: every open root scope is closed, newest
// first, and the solution cache is dropped. Release failures are
// aggregated, never swallowed.
func (e *Engine) Close() error {
	return e.CloseContext(context.Background())
}

// CloseContext is Close with a context for asynchronous releases.
func (e *Engine) CloseContext(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&e.closed, 0, 1) {
		return nil
	}

	e.mu.Lock()
	scopes := e.scopes
	e.scopes = nil
	e.mu.Unlock()

	var errs []error
	for i := len(scopes) - 1; i >= 0; i-- {
		if err := scopes[i].CloseContext(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	e.cache.clear()

	if len(errs) > 0 {
		return &ReleaseError{Scope: e.id, Errors: errs}
	}
	return nil
}

// Acquire resolves a single key against the scope right now, outside any
// injector call, using only synchronous providers. The key's own provider
// always executes afresh, even when the scope already holds a value for
// it; dependencies are reused from the scope as usual. The returned
// release finalizes everything acquired along the way and must be called.
func (e *Engine) Acquire(scope *Scope, key *Key) (any, ReleaseFunc, error) {
	return e.acquireKey(context.Background(), scope, key, true)
}

// AcquireContext is Acquire for asynchronous call paths.
func (e *Engine) AcquireContext(ctx context.Context, scope *Scope, key *Key) (any, ReleaseFunc, error) {
	return e.acquireKey(ctx, scope, key, false)
}

func (e *Engine) acquireKey(ctx context.Context, scope *Scope, key *Key, syncOnly bool) (any, ReleaseFunc, error) {
	if e.IsClosed() {
		return nil, nil, ErrEngineClosed
	}
	if key == nil {
		return nil, nil, ErrKeyNil
	}
	if scope == nil || scope.IsClosed() {
		return nil, nil, ErrScopeClosed
	}

	// Shadowing the key behind the frame boundary hides any value the
	// scope already holds for it, forcing a fresh acquisition.
	frame := scope.Child()
	frame.shadowBoundary = true
	shadow := map[*Key]bool{key: true}
	lookup := func(k *Key) (any, bool) {
		return lookupKey(frame, shadow, k)
	}

	sol, err := e.solve([]*Key{key}, syncOnly, lookup)
	if err != nil {
		_ = frame.CloseContext(ctx)
		return nil, nil, err
	}
	if err := e.execute(ctx, sol, frame, shadow); err != nil {
		closeErr := frame.CloseContext(ctx)
		return nil, nil, joinErrors(err, closeErr)
	}

	v, ok := lookupKey(frame, shadow, key)
	if !ok {
		closeErr := frame.CloseContext(ctx)
		return nil, nil, joinErrors(&MissingProviderError{Key: key, Sync: syncOnly, Available: e.registry.registeredKeys()}, closeErr)
	}

	release := func(ctx context.Context) error {
		return frame.CloseContext(ctx)
	}
	return v, onceRelease(release), nil
}

// solve returns an execution plan for the requested keys, reusing a cached
// plan when the registry has not changed and the ambient values the plan
// relied on are still in scope.
func (e *Engine) solve(requested []*Key, syncOnly bool, lookup func(*Key) (any, bool)) (*Solution, error) {
	if e.IsClosed() {
		return nil, ErrEngineClosed
	}

	ambient := func(k *Key) bool {
		if lookup == nil {
			return false
		}
		_, ok := lookup(k)
		return ok
	}

	ck := cacheKey(requested, syncOnly)
	generation := e.registry.Generation()
	if sol, ok := e.cache.get(ck, generation); ok {
		valid := true
		for _, k := range sol.ambient {
			if !ambient(k) {
				valid = false
				break
			}
		}
		if valid {
			return sol, nil
		}
	}

	sol, err := newSolution(e.registry, requested, syncOnly, ambient)
	if err != nil {
		if e.opts.OnError != nil && len(requested) > 0 {
			e.opts.OnError(requested[0], err)
		}
		return nil, err
	}
	e.cache.put(ck, sol)
	return sol, nil
}

// execute runs a Solution's steps in order, storing every output in the
// given frame and queueing releases on it. Steps whose outputs are already
// resolved in scope are skipped. Accumulator links follow the same rule
// unless an earlier link of their chain ran in this execution, or the
// chain is anchored on an ambient seed; in both cases the link folds over
// the current value. Cancellation stops execution between steps; resources
// already acquired stay queued on the frame and are released when it
// closes.
func (e *Engine) execute(ctx context.Context, sol *Solution, frame *Scope, shadow map[*Key]bool) error {
	lookup := func(k *Key) (any, bool) {
		return lookupKey(frame, shadow, k)
	}
	deps := Deps{lookup: lookup}
	produced := make(map[*Key]bool)

	for _, st := range sol.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if skippable(st, produced) && outputsResolved(st, lookup) {
			continue
		}

		key := st.provider.provides
		start := time.Now()
		raw, release, err := st.provider.acquire(ctx, deps, st.provider.args)
		if err != nil {
			perr := &ProviderExecutionError{Key: key, Cause: err}
			if e.opts.OnError != nil {
				e.opts.OnError(key, perr)
			}
			return perr
		}
		frame.addRelease(key, release)
		for _, o := range st.outputs {
			v := raw
			if o.getter != nil {
				v = o.getter(raw)
			}
			frame.store(o.key, v)
			produced[o.key] = true
		}
		if e.opts.OnResolved != nil {
			e.opts.OnResolved(key, raw, time.Since(start))
		}
	}
	return nil
}

// skippable reports whether a step may be elided when its outputs are
// already resolved. Anchored chain links never skip, and a chain link must
// run when an earlier link produced its key in this execution.
func skippable(st *Step, produced map[*Key]bool) bool {
	if !st.chain {
		return true
	}
	if st.anchored {
		return false
	}
	for _, o := range st.outputs {
		if produced[o.key] {
			return false
		}
	}
	return true
}

// outputsResolved reports whether every key a step would produce is already
// resolvable from the current frame chain.
func outputsResolved(st *Step, lookup func(*Key) (any, bool)) bool {
	for _, o := range st.outputs {
		if _, ok := lookup(o.key); !ok {
			return false
		}
	}
	return true
}

func (e *Engine) observe(state CallState) {
	if e.opts.OnStateChange != nil {
		e.opts.OnStateChange(state)
	}
}

// joinErrors keeps both a primary failure and a cleanup failure visible.
func joinErrors(primary, secondary error) error {
	if primary == nil {
		return secondary
	}
	if secondary == nil {
		return primary
	}
	return errors.Join(primary, secondary)
}
