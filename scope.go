package solvent

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// Scope is one frame of the nested resolution cache: a mapping from keys
// to already-resolved values plus the release callbacks of the resources
// acquired while filling it, linked to a parent frame.
//
// A key resolved in a frame is visible to that frame and every frame
// pushed after it, never to ancestors. Closing a frame runs its releases
// in exact reverse of acquisition order.
//
// Each logical call chain (goroutine) owns its own frame chain; frames are
// deliberately unlocked. Isolation, not mutual exclusion, is the
// concurrency discipline here: share an Engine between goroutines, not a
// Scope.
type Scope struct {
	id     string
	engine *Engine
	parent *Scope

	values   map[*Key]any
	releases []scopeRelease
	children []*Scope

	// shadowBoundary marks transient per-call frames. Keys invalidated by
	// a call-time override are not looked up past this boundary.
	shadowBoundary bool

	closed int32
}

type scopeRelease struct {
	key *Key
	fn  ReleaseFunc
}

// Seed places a value into a frame at creation time, bypassing any
// provider for its key.
type Seed struct {
	key   *Key
	value any
}

// WithValue seeds a frame with a static value for key. The underlying
// provider, if any, is never invoked for the key in this frame or its
// descendants.
func WithValue(key *Key, value any) Seed {
	return Seed{key: key, value: value}
}

func newScope(engine *Engine, parent *Scope, seeds []Seed) *Scope {
	s := &Scope{
		id:     uuid.NewString(),
		engine: engine,
		parent: parent,
		values: make(map[*Key]any, len(seeds)),
	}
	for _, seed := range seeds {
		s.values[seed.key] = seed.value
	}
	return s
}

// ID returns the unique id of this frame.
func (s *Scope) ID() string { return s.id }

// Parent returns the frame this one was pushed onto, or nil for a root.
func (s *Scope) Parent() *Scope { return s.parent }

// Engine returns the engine whose registry is active for this frame.
func (s *Scope) Engine() *Engine { return s.engine }

// IsClosed reports whether the frame has been popped.
func (s *Scope) IsClosed() bool { return atomic.LoadInt32(&s.closed) != 0 }

// Child pushes a nested frame. Values stored in the child shadow the
// parent's entries for the same keys until the child is closed, after
// which the parent's entries become visible again.
func (s *Scope) Child(seeds ...Seed) *Scope {
	if s.IsClosed() {
		panic(ErrScopeClosed)
	}
	child := newScope(s.engine, s, seeds)
	s.children = append(s.children, child)
	return child
}

// Lookup walks the frame chain, nearest frame first, and returns the
// resolved value for key. Union keys resolve to the first member with a
// value; tuple keys with no direct entry assemble from their members.
func (s *Scope) Lookup(key *Key) (any, bool) {
	return lookupKey(s, nil, key)
}

// Has reports whether key is currently resolvable from this frame chain.
func (s *Scope) Has(key *Key) bool {
	_, ok := s.Lookup(key)
	return ok
}

// store caches a resolved value in this frame.
func (s *Scope) store(key *Key, value any) {
	s.values[key] = value
}

// addRelease records a resource release to run when the frame closes.
// Releases run in reverse of the order they were added.
func (s *Scope) addRelease(key *Key, fn ReleaseFunc) {
	if fn == nil {
		return
	}
	s.releases = append(s.releases, scopeRelease{key: key, fn: fn})
}

// Share resolves the given keys now and caches them in this frame, so
// every call made while the frame is open reuses them. Resources acquired
// this way are released when the frame closes.
func (s *Scope) Share(keys ...*Key) error {
	return s.shareInto(context.Background(), true, keys)
}

// ShareContext is Share for asynchronous call chains: it may use
// asynchronous providers and observes ctx during resolution.
func (s *Scope) ShareContext(ctx context.Context, keys ...*Key) error {
	return s.shareInto(ctx, false, keys)
}

func (s *Scope) shareInto(ctx context.Context, syncOnly bool, keys []*Key) error {
	if s.IsClosed() {
		return ErrScopeClosed
	}
	if s.engine == nil {
		return ErrEngineClosed
	}

	var missing []*Key
	for _, k := range keys {
		if k == nil {
			return ErrKeyNil
		}
		if !s.Has(k) {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	sol, err := s.engine.solve(missing, syncOnly, s.Lookup)
	if err != nil {
		return err
	}
	return s.engine.execute(ctx, sol, s, nil)
}

// absorb moves a child frame's entries and pending releases into this
// frame without running them. A shared injector call uses this to promote
// what it resolved into the caller's scope; the promoted releases now run
// when this frame closes.
func (s *Scope) absorb(frame *Scope) {
	if !atomic.CompareAndSwapInt32(&frame.closed, 0, 1) {
		return
	}
	for k, v := range frame.values {
		s.values[k] = v
	}
	s.releases = append(s.releases, frame.releases...)
	frame.values = nil
	frame.releases = nil
	for i, c := range s.children {
		if c == frame {
			s.children = append(s.children[:i], s.children[i+1:]...)
			break
		}
	}
}

// Close pops the frame: every release runs in exact reverse of
// acquisition order, all of them attempted even when some fail, with the
// failures aggregated into a *ReleaseError. Open child frames are closed
// first. Closing twice is a no-op.
func (s *Scope) Close() error {
	return s.CloseContext(context.Background())
}

// CloseContext pops the frame, passing ctx to asynchronous releases.
// Releases still run when ctx is already cancelled: a partially resolved
// frame must not leak its resources.
func (s *Scope) CloseContext(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}

	var errs []error

	// Children first, newest first, so nested acquisitions unwind before
	// the values they were built on.
	for i := len(s.children) - 1; i >= 0; i-- {
		if err := s.children[i].CloseContext(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.children = nil

	// Releases must run even when the surrounding context was cancelled.
	releaseCtx := context.WithoutCancel(ctx)
	for i := len(s.releases) - 1; i >= 0; i-- {
		if err := s.releases[i].fn(releaseCtx); err != nil {
			errs = append(errs, &ProviderExecutionError{Key: s.releases[i].key, Cause: err})
		}
	}
	s.releases = nil
	s.values = nil

	if s.engine != nil {
		s.engine.forgetScope(s)
	}

	if len(errs) > 0 {
		return &ReleaseError{Scope: s.id, Errors: errs}
	}
	return nil
}

// lookupKey resolves key against a frame chain. shadow names keys whose
// ancestor entries must be ignored for the current call because an
// override invalidated them; values stored in frames at or below local
// still count.
func lookupKey(head *Scope, shadow map[*Key]bool, key *Key) (any, bool) {
	if head == nil || key == nil {
		return nil, false
	}

	shadowed := shadow != nil && shadow[key]
	for f := head; f != nil; f = f.parent {
		if f.IsClosed() {
			break
		}
		if v, ok := f.values[key]; ok {
			return v, true
		}
		if shadowed && f.shadowBoundary {
			// Entries above the call boundary are stale for this key.
			break
		}
	}

	switch {
	case key.IsUnion():
		for _, m := range key.Members() {
			if v, ok := lookupKey(head, shadow, m); ok {
				return v, true
			}
		}
	case key.IsTuple():
		members := key.Members()
		vs := make([]any, len(members))
		for i, m := range members {
			v, ok := lookupKey(head, shadow, m)
			if !ok {
				return nil, false
			}
			vs[i] = v
		}
		return vs, true
	}

	return nil, false
}
