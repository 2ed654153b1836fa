package solvent

import (
	"sync"
	"sync/atomic"
)

// binding is one (key, provider activation) entry in a registry. A single
// registration fans out to several bindings when the provider produces a
// tuple key: one for the tuple itself and one per member with an index
// getter. All bindings of one registration share the provider's activation
// id, so the provider executes once per Solution no matter how many of its
// keys are demanded.
type binding struct {
	key      *Key
	provider *Provider
	getter   func(any) any // nil means identity
	seq      uint64        // registration sequence, for chain ordering
}

func (b *binding) value(raw any) any {
	if b.getter == nil {
		return raw
	}
	return b.getter(raw)
}

// Registry maps dependency keys to ordered provider bindings. Later
// registrations win for plain lookups; all registrations stay ordered so
// accumulator chains (providers that require the key they produce) can
// execute in sequence.
type Registry struct {
	mu    sync.RWMutex
	exact map[*Key][]*binding // bindings in registration order
	subs  map[*Key][]*binding // ancestor key -> bindings of derived keys

	seq        uint64
	generation uint64 // bumped on every mutation; invalidates cached Solutions
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		exact: make(map[*Key][]*binding),
		subs:  make(map[*Key][]*binding),
	}
}

// Generation returns a counter that changes whenever the registry is
// mutated. Solutions are safe to reuse while the generation is unchanged.
func (r *Registry) Generation() uint64 {
	return atomic.LoadUint64(&r.generation)
}

// Register activates a provider. Returns the bindings created so spans can
// undo the activation.
func (r *Registry) Register(p *Provider) ([]*binding, error) {
	if p == nil {
		return nil, &RegistrationError{Cause: ErrProviderNil}
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	created := []*binding{{key: p.provides, provider: p, seq: r.seq}}

	// A tuple provider also satisfies each member key individually.
	if p.tuple {
		for i, member := range p.provides.Members() {
			idx := i
			created = append(created, &binding{
				key:      member,
				provider: p,
				getter:   func(raw any) any { return raw.([]any)[idx] },
				seq:      r.seq,
			})
		}
	}

	for _, b := range created {
		r.exact[b.key] = append(r.exact[b.key], b)
		for _, ancestor := range b.key.ancestors() {
			r.subs[ancestor] = append(r.subs[ancestor], b)
		}
	}

	atomic.AddUint64(&r.generation, 1)
	return created, nil
}

// unregister removes previously created bindings, restoring whatever was
// registered before them.
func (r *Registry) unregister(bindings []*binding) {
	if len(bindings) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	drop := make(map[*binding]bool, len(bindings))
	for _, b := range bindings {
		drop[b] = true
	}

	filter := func(list []*binding) []*binding {
		kept := list[:0]
		for _, b := range list {
			if !drop[b] {
				kept = append(kept, b)
			}
		}
		return kept
	}

	for _, b := range bindings {
		r.exact[b.key] = filter(r.exact[b.key])
		if len(r.exact[b.key]) == 0 {
			delete(r.exact, b.key)
		}
		for _, ancestor := range b.key.ancestors() {
			r.subs[ancestor] = filter(r.subs[ancestor])
			if len(r.subs[ancestor]) == 0 {
				delete(r.subs, ancestor)
			}
		}
	}

	atomic.AddUint64(&r.generation, 1)
}

// Remove drops every binding registered for the exact key, including all
// links of an accumulator chain. Bindings fanned out from a tuple
// registration are removed together with their registration.
func (r *Registry) Remove(key *Key) {
	if key == nil {
		return
	}

	r.mu.RLock()
	targets := append([]*binding{}, r.exact[key]...)
	r.mu.RUnlock()

	seqs := make(map[uint64]bool, len(targets))
	for _, b := range targets {
		seqs[b.seq] = true
	}

	r.mu.RLock()
	var drop []*binding
	for _, list := range r.exact {
		for _, b := range list {
			if seqs[b.seq] {
				drop = append(drop, b)
			}
		}
	}
	r.mu.RUnlock()

	r.unregister(drop)
}

// candidates returns the bindings registered for the exact key, in
// registration order.
func (r *Registry) candidates(key *Key) []*binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.exact[key]
	out := make([]*binding, len(list))
	copy(out, list)
	return out
}

// derived returns bindings whose keys were derived from key. Consulted
// only when no exact binding exists (subclass-as-substitute).
func (r *Registry) derived(key *Key) []*binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.subs[key]
	out := make([]*binding, len(list))
	copy(out, list)
	return out
}

// dependentKeys returns every key whose resolution could observe the value
// of key, directly or transitively: keys produced by providers that require
// it, and composite keys it is a member of. Used to invalidate stale scope
// entries when key is overridden at call time.
func (r *Registry) dependentKeys(key *Key) []*Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Reverse edges: requirement -> keys produced from it.
	rev := make(map[*Key][]*Key)
	addMemberEdges := func(k *Key) {
		if k.IsUnion() || k.IsTuple() {
			for _, m := range k.Members() {
				rev[m] = append(rev[m], k)
			}
		}
	}
	for produced, list := range r.exact {
		addMemberEdges(produced)
		for _, b := range list {
			for _, dep := range b.provider.requires {
				addMemberEdges(dep)
				if dep == produced {
					continue // accumulator self-edge
				}
				rev[dep] = append(rev[dep], produced)
			}
		}
	}

	seen := make(map[*Key]bool)
	var out []*Key
	var visit func(*Key)
	visit = func(k *Key) {
		for _, d := range rev[k] {
			if seen[d] {
				continue
			}
			seen[d] = true
			out = append(out, d)
			visit(d)
		}
	}
	visit(key)
	return out
}

// registeredKeys returns every key with at least one binding, for error
// suggestions.
func (r *Registry) registeredKeys() []*Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]*Key, 0, len(r.exact))
	for k := range r.exact {
		keys = append(keys, k)
	}
	return keys
}
