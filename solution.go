package solvent

import (
	"strings"

	"github.com/solventdi/solvent/internal/graph"
)

// stepOutput names one key a step stores its value under, with the getter
// extracting that key's portion of the raw provider result.
type stepOutput struct {
	key    *Key
	getter func(any) any
}

// Step is one executable entry of a Solution: a provider activation plus
// the keys it satisfies in this plan.
type Step struct {
	provider *Provider
	seq      uint64
	outputs  []stepOutput

	// chain marks accumulator links. A chain step executes whenever an
	// earlier link of its chain ran in the same execution, because its job
	// is to fold over that link's value; a chain whose final value already
	// sits in scope is reused like any other resolved key.
	chain bool

	// anchored marks the first link of a chain with no base provider: its
	// input is an ambient seed, and the chain re-folds on every execution.
	anchored bool
}

func (s *Step) addOutput(key *Key, getter func(any) any) {
	for _, o := range s.outputs {
		if o.key == key {
			return
		}
	}
	s.outputs = append(s.outputs, stepOutput{key: key, getter: getter})
}

// Solution is an immutable, cycle-free execution plan for a requested key
// set: a topologically ordered, de-duplicated sequence of provider steps.
// It is computed once per distinct requested-key-set and registry
// generation and is safe to reuse until the registry changes.
type Solution struct {
	requested []*Key
	steps     []*Step

	// assembled maps tuple keys that had no direct provider to their
	// members, resolved individually and assembled at lookup time.
	assembled map[*Key][]*Key

	// ambient keys the plan relies on being present in scope (keys with no
	// provider that were resolvable when the plan was built).
	ambient []*Key

	syncOnly   bool
	generation uint64

	g *graph.Graph
}

// Keys returns the requested key set this Solution satisfies.
func (s *Solution) Keys() []*Key {
	out := make([]*Key, len(s.requested))
	copy(out, s.requested)
	return out
}

// Providers returns the planned providers in execution order.
func (s *Solution) Providers() []*Provider {
	out := make([]*Provider, len(s.steps))
	for i, st := range s.steps {
		out[i] = st.provider
	}
	return out
}

// Descendants returns the keys of every planned step that transitively
// depends on key within this Solution. An override of key at call time
// makes exactly these keys stale.
func (s *Solution) Descendants(key *Key) []*Key {
	var id uint64
	found := false
	for _, st := range s.steps {
		for _, o := range st.outputs {
			if o.key == key {
				id = stepNodeID(st.seq)
				found = true
			}
		}
	}
	if !found {
		for _, k := range s.ambient {
			if k == key {
				id = leafNodeID(key)
				found = true
			}
		}
	}
	if !found {
		return nil
	}

	dependents := make(map[uint64]bool)
	for _, d := range s.g.TransitiveDependents(id) {
		dependents[d] = true
	}

	var out []*Key
	seen := make(map[*Key]bool)
	for _, st := range s.steps {
		if !dependents[stepNodeID(st.seq)] {
			continue
		}
		for _, o := range st.outputs {
			if !seen[o.key] {
				seen[o.key] = true
				out = append(out, o.key)
			}
		}
	}
	return out
}

// String renders the execution order for diagnostics.
func (s *Solution) String() string {
	parts := make([]string, len(s.steps))
	for i, st := range s.steps {
		names := make([]string, len(st.outputs))
		for j, o := range st.outputs {
			names[j] = o.key.Name()
		}
		parts[i] = strings.Join(names, "+")
	}
	return "solution[" + strings.Join(parts, " → ") + "]"
}

// node id namespaces: step nodes use the binding sequence shifted left,
// ambient leaf nodes use the key id with the low bit set.
func stepNodeID(seq uint64) uint64 { return seq << 1 }
func leafNodeID(key *Key) uint64   { return key.id<<1 | 1 }

// solver performs the depth-first construction of a Solution. A key
// encountered twice along one DFS path is a genuine cycle; a key reached
// by two different paths (a diamond) is de-duplicated through the memo.
type solver struct {
	reg      *Registry
	syncOnly bool
	ambient  func(*Key) bool

	steps     []*Step
	stepBySeq map[uint64]*Step
	memo      map[*Key][]uint64 // request key -> node ids satisfying it
	path      []*Key            // current DFS path for cycle reporting
	onPath    map[*Key]bool

	assembled   map[*Key][]*Key
	ambientKeys []*Key
	g           *graph.Graph
}

// newSolution builds an execution plan for the requested keys. ambient
// reports whether a key is already resolvable from the caller's scope;
// such keys become plan leaves instead of failures.
func newSolution(reg *Registry, requested []*Key, syncOnly bool, ambient func(*Key) bool) (*Solution, error) {
	if ambient == nil {
		ambient = func(*Key) bool { return false }
	}
	s := &solver{
		reg:       reg,
		syncOnly:  syncOnly,
		ambient:   ambient,
		stepBySeq: make(map[uint64]*Step),
		memo:      make(map[*Key][]uint64),
		onPath:    make(map[*Key]bool),
		assembled: make(map[*Key][]*Key),
		g:         graph.New(),
	}

	for _, k := range requested {
		if k == nil {
			return nil, &RegistrationError{Cause: ErrKeyNil}
		}
		if _, err := s.require(k); err != nil {
			return nil, err
		}
	}

	return &Solution{
		requested:  append([]*Key{}, requested...),
		steps:      s.steps,
		assembled:  s.assembled,
		ambient:    s.ambientKeys,
		syncOnly:   syncOnly,
		generation: reg.Generation(),
		g:          s.g,
	}, nil
}

// require resolves how key k is satisfied, appending any needed steps in
// dependencies-first order. It returns the graph node ids that satisfy k.
func (s *solver) require(k *Key) ([]uint64, error) {
	if ids, ok := s.memo[k]; ok {
		return ids, nil
	}

	if s.onPath[k] {
		return nil, s.cycleError(k)
	}
	s.onPath[k] = true
	s.path = append(s.path, k)
	defer func() {
		s.path = s.path[:len(s.path)-1]
		delete(s.onPath, k)
	}()

	ids, err := s.requireUnmemoized(k)
	if err != nil {
		return nil, err
	}
	s.memo[k] = ids
	return ids, nil
}

func (s *solver) requireUnmemoized(k *Key) ([]uint64, error) {
	// Union: first member, left to right, with any provider or ambient
	// value wins.
	if k.IsUnion() {
		for _, m := range k.Members() {
			if s.satisfiable(m) {
				return s.require(m)
			}
		}
		return nil, s.missing(k)
	}

	if chain, ok, err := s.selectExact(k); err != nil {
		return nil, err
	} else if ok {
		return s.buildChain(k, chain)
	}

	// Subclass-as-substitute: a derived key's provider serves the parent
	// only when the parent has no provider of its own.
	if b, ok, err := s.selectDerived(k); err != nil {
		return nil, err
	} else if ok {
		ids, err := s.buildChain(k, []*binding{b})
		if err != nil {
			return nil, err
		}
		// The value also answers to the requested parent key.
		s.stepBySeq[b.seq].addOutput(k, b.getter)
		return ids, nil
	}

	// Tuple with no direct provider: assemble from individually resolved
	// members.
	if k.IsTuple() {
		var ids []uint64
		for _, m := range k.Members() {
			memberIDs, err := s.require(m)
			if err != nil {
				return nil, err
			}
			ids = append(ids, memberIDs...)
		}
		s.assembled[k] = k.Members()
		return ids, nil
	}

	// No provider at all: an ambient value is the last resort.
	if s.ambient(k) {
		s.ambientKeys = append(s.ambientKeys, k)
		id := leafNodeID(k)
		s.g.AddNode(id, k.String(), nil)
		return []uint64{id}, nil
	}

	return nil, s.missing(k)
}

// satisfiable reports whether any provider or ambient value could satisfy
// k, without committing to a plan. Used for union member selection.
func (s *solver) satisfiable(k *Key) bool {
	if len(s.reg.candidates(k)) > 0 || len(s.reg.derived(k)) > 0 {
		return true
	}
	if k.IsUnion() || k.IsTuple() {
		for _, m := range k.Members() {
			if k.IsUnion() && s.satisfiable(m) {
				return true
			}
			if k.IsTuple() && !s.satisfiable(m) {
				return false
			}
		}
		return k.IsTuple()
	}
	return s.ambient(k)
}

// selectExact picks the bindings for a key registered directly. The result
// is a chain: one element for plain overrides (last registered wins, with
// async preferred on asynchronous call paths), or several for accumulator
// providers that require the key they produce, ordered by registration.
func (s *solver) selectExact(k *Key) ([]*binding, bool, error) {
	cands := s.reg.candidates(k)
	if len(cands) == 0 {
		return nil, false, nil
	}

	var links []*binding
	var base *binding
	for _, b := range cands {
		if b.provider.requiresSelf() {
			links = append(links, b)
		} else {
			base = b // later registrations shadow earlier ones
		}
	}

	if len(links) == 0 {
		chosen := base
		if !s.syncOnly {
			// An asynchronous injection site prefers the async provider
			// when both exist for one key.
			for _, b := range cands {
				if b.provider.mode.IsAsync() {
					chosen = b
				}
			}
		}
		if s.syncOnly && chosen.provider.mode.IsAsync() {
			// Fall back to the newest synchronous candidate, if any.
			chosen = nil
			for _, b := range cands {
				if !b.provider.mode.IsAsync() {
					chosen = b
				}
			}
			if chosen == nil {
				return nil, false, &ModeMismatchError{Key: k}
			}
		}
		return []*binding{chosen}, true, nil
	}

	chain := make([]*binding, 0, len(links)+1)
	if base != nil {
		chain = append(chain, base)
	}
	chain = append(chain, links...)

	if s.syncOnly {
		for _, b := range chain {
			if b.provider.mode.IsAsync() {
				return nil, false, &ModeMismatchError{Key: k}
			}
		}
	}
	return chain, true, nil
}

// selectDerived picks the newest usable derived-key binding for k.
func (s *solver) selectDerived(k *Key) (*binding, bool, error) {
	cands := s.reg.derived(k)
	if len(cands) == 0 {
		return nil, false, nil
	}

	var chosen *binding
	for _, b := range cands {
		if s.syncOnly && b.provider.mode.IsAsync() {
			continue
		}
		if chosen == nil || b.seq >= chosen.seq {
			chosen = b
		}
	}
	if !s.syncOnly {
		for _, b := range cands {
			if b.provider.mode.IsAsync() {
				chosen = b
			}
		}
	}
	if chosen == nil {
		return nil, false, &ModeMismatchError{Key: k}
	}
	return chosen, true, nil
}

// buildChain appends steps for the selected bindings in order, wiring each
// accumulator link to the previous one's result. The last link's node ids
// are what consumers of the key depend on.
func (s *solver) buildChain(k *Key, chain []*binding) ([]uint64, error) {
	var prev uint64
	for i, b := range chain {
		step, created := s.step(b)

		var depIDs []uint64
		if i > 0 {
			// The link folds over the previous link's value.
			depIDs = append(depIDs, prev)
			step.chain = true
		} else if b.provider.requiresSelf() {
			// First link with no base below it: the seed value must come
			// from the ambient scope.
			if !s.ambient(k) {
				return nil, s.missing(k)
			}
			s.ambientKeys = append(s.ambientKeys, k)
			leaf := leafNodeID(k)
			s.g.AddNode(leaf, k.String(), nil)
			depIDs = append(depIDs, leaf)
			step.chain = true
			step.anchored = true
		}

		if created {
			for _, dep := range b.provider.requires {
				if dep == b.provider.provides {
					continue // wired structurally above
				}
				ids, err := s.require(dep)
				if err != nil {
					return nil, err
				}
				depIDs = append(depIDs, ids...)
			}
			s.steps = append(s.steps, step)
			s.g.AddNode(stepNodeID(b.seq), b.key.String(), depIDs)
		}

		step.addOutput(b.key, b.getter)
		prev = stepNodeID(b.seq)
	}
	return []uint64{prev}, nil
}

// step returns the Step for a binding's activation, creating it on first
// demand. Bindings fanned out from one registration (a tuple provider and
// its members) share one step, so the provider executes exactly once per
// Solution even when several of its keys are demanded.
func (s *solver) step(b *binding) (*Step, bool) {
	if st, ok := s.stepBySeq[b.seq]; ok {
		return st, false
	}
	st := &Step{provider: b.provider, seq: b.seq}
	s.stepBySeq[b.seq] = st
	return st, true
}

func (s *solver) missing(k *Key) error {
	return &MissingProviderError{
		Key:       k,
		Sync:      s.syncOnly,
		Available: s.reg.registeredKeys(),
	}
}

func (s *solver) cycleError(k *Key) error {
	start := 0
	for i, p := range s.path {
		if p == k {
			start = i
			break
		}
	}
	cycle := s.path[start:]
	refs := make([]graph.NodeRef, len(cycle))
	for i, c := range cycle {
		refs[i] = graph.NodeRef{ID: c.id, Label: c.String()}
	}
	return &CycleError{
		Node: graph.NodeRef{ID: k.id, Label: k.String()},
		Path: refs,
	}
}
