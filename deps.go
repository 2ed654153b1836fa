package solvent

import "fmt"

// Deps gives providers and injection sites access to their resolved
// requirements. Requirements are looked up by key, never by position.
type Deps struct {
	lookup func(*Key) (any, bool)
}

// GetOK returns the resolved value for key, reporting whether one exists.
func (d Deps) GetOK(key *Key) (any, bool) {
	if d.lookup == nil {
		return nil, false
	}
	return d.lookup(key)
}

// Get returns the resolved value for key. It panics when the key was not
// declared as a requirement (and therefore never resolved); that is a
// programming error at the declaration site, not a runtime condition.
func (d Deps) Get(key *Key) any {
	v, ok := d.GetOK(key)
	if !ok {
		panic(fmt.Sprintf("solvent: key %s was not resolved for this call; declare it as a requirement", key))
	}
	return v
}

// Get returns the resolved value for key asserted to type T. Like
// Deps.Get, absence panics; a type mismatch panics with the two types
// named.
func Get[T any](d Deps, key *Key) T {
	v := d.Get(key)
	t, ok := v.(T)
	if !ok {
		panic(fmt.Sprintf("solvent: key %s resolved to %T, not %T", key, v, *new(T)))
	}
	return t
}

// GetOK returns the resolved value for key asserted to type T, reporting
// whether a value of that type exists.
func GetOK[T any](d Deps, key *Key) (T, bool) {
	v, ok := d.GetOK(key)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
