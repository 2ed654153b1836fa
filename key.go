package solvent

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// keyCounter assigns process-unique ids to keys. Identity, not structure,
// is what makes two keys equal.
var keyCounter uint64

// keyKind discriminates the key variants.
type keyKind int

const (
	kindScalar keyKind = iota
	kindUnion
	kindTuple
)

func (k keyKind) String() string {
	switch k {
	case kindScalar:
		return "scalar"
	case kindUnion:
		return "union"
	case kindTuple:
		return "tuple"
	default:
		return fmt.Sprintf("keyKind(%d)", int(k))
	}
}

// Key is the semantic identity of a dependency: what a provider produces
// and what an injection site asks for.
//
// Keys are compared by identity. Two keys created independently with the
// same name are distinct dependencies:
//
//	UserName := solvent.NewKey("UserName")
//	Greeting := solvent.NewKey("Greeting")
//
// Both may carry string values, but a provider for one never satisfies a
// request for the other.
type Key struct {
	id      uint64
	name    string
	kind    keyKind
	parent  *Key   // set for derived keys
	members []*Key // set for union and tuple keys
}

func newKey(name string, kind keyKind) *Key {
	return &Key{
		id:   atomic.AddUint64(&keyCounter, 1),
		name: name,
		kind: kind,
	}
}

// NewKey creates a plain dependency key. The name is used only for error
// messages and diagnostics; it does not participate in matching.
func NewKey(name string) *Key {
	return newKey(name, kindScalar)
}

// DerivedKey creates a key that is a distinct subtype of parent. A provider
// bound to a derived key satisfies a request for the parent key only when
// no provider for the parent itself is registered.
func DerivedKey(name string, parent *Key) *Key {
	if parent == nil {
		panic("solvent: DerivedKey requires a non-nil parent")
	}
	if parent.kind != kindScalar {
		panic(fmt.Sprintf("solvent: cannot derive from %s key %q", parent.kind, parent.name))
	}
	k := newKey(name, kindScalar)
	k.parent = parent
	return k
}

// UnionKey creates a key that is satisfied by the first member, left to
// right, for which any provider or ambient value exists. Union keys cannot
// be produced, only required.
func UnionKey(name string, members ...*Key) *Key {
	if len(members) < 2 {
		panic("solvent: UnionKey requires at least two members")
	}
	k := newKey(name, kindUnion)
	k.members = members
	return k
}

// TupleKey creates a key whose provider supplies all member keys at once.
// Requesting the tuple key directly yields the full []any value; requesting
// a member yields the element at that member's position. When no direct
// tuple provider exists, a request for the tuple key is satisfied by
// resolving each member individually.
func TupleKey(name string, members ...*Key) *Key {
	if len(members) < 2 {
		panic("solvent: TupleKey requires at least two members")
	}
	k := newKey(name, kindTuple)
	k.members = members
	return k
}

// Name returns the diagnostic name of the key.
func (k *Key) Name() string { return k.name }

// Members returns the member keys of a union or tuple key, or nil.
func (k *Key) Members() []*Key {
	if len(k.members) == 0 {
		return nil
	}
	out := make([]*Key, len(k.members))
	copy(out, k.members)
	return out
}

// Parent returns the key this key was derived from, or nil.
func (k *Key) Parent() *Key { return k.parent }

// IsUnion reports whether the key is a union key.
func (k *Key) IsUnion() bool { return k.kind == kindUnion }

// IsTuple reports whether the key is a tuple key.
func (k *Key) IsTuple() bool { return k.kind == kindTuple }

// String implements fmt.Stringer.
func (k *Key) String() string {
	if k == nil {
		return "<nil>"
	}
	switch k.kind {
	case kindUnion, kindTuple:
		names := make([]string, len(k.members))
		for i, m := range k.members {
			names[i] = m.Name()
		}
		return fmt.Sprintf("%s(%s)", k.name, strings.Join(names, " | "))
	default:
		return k.name
	}
}

// ancestors returns the derivation chain above k, nearest first.
func (k *Key) ancestors() []*Key {
	var out []*Key
	for p := k.parent; p != nil; p = p.parent {
		out = append(out, p)
	}
	return out
}

// memberIndex returns the position of member within a tuple key, or -1.
func (k *Key) memberIndex(member *Key) int {
	for i, m := range k.members {
		if m == member {
			return i
		}
	}
	return -1
}
