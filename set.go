package solvent

// Set is a named group of providers activated together, typically one
// subsystem's worth. Sets compose: a feature set can extend a base set
// without mutating it.
type Set struct {
	name      string
	providers []*Provider
}

// NewSet groups providers under a name.
func NewSet(name string, providers ...*Provider) *Set {
	return &Set{name: name, providers: providers}
}

// Name returns the set's name.
func (s *Set) Name() string { return s.name }

// Providers returns the set's providers in activation order.
func (s *Set) Providers() []*Provider {
	out := make([]*Provider, len(s.providers))
	copy(out, s.providers)
	return out
}

// With returns a new set extending this one with more providers. The
// added providers activate after the existing ones, so they win plain
// last-registered-wins selection for any key both provide.
func (s *Set) With(providers ...*Provider) *Set {
	combined := make([]*Provider, 0, len(s.providers)+len(providers))
	combined = append(combined, s.providers...)
	combined = append(combined, providers...)
	return &Set{name: s.name, providers: combined}
}
