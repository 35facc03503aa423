// Package strset provides de-duplicated name sets and name-to-type maps
// shared by the closure and header-lowering passes. Keys are
// hashed with xxhash the way the teacher's trigram index keys its
// postings, trading a little hash-collision bookkeeping for cheap
// equality checks on the short identifier strings these passes churn
// through by the thousands per translation unit.
package strset

import "github.com/cespare/xxhash/v2"

// Set is a de-duplicated set of identifier names.
type Set struct {
	m map[uint64]string
}

// New returns an empty Set.
func New() *Set {
	return &Set{m: make(map[uint64]string)}
}

func key(name string) uint64 {
	return xxhash.Sum64String(name)
}

// Add inserts name, returning true if it was not already present.
func (s *Set) Add(name string) bool {
	k := key(name)
	if _, ok := s.m[k]; ok {
		return false
	}
	s.m[k] = name
	return true
}

// Has reports whether name is in the set.
func (s *Set) Has(name string) bool {
	_, ok := s.m[key(name)]
	return ok
}

// Remove deletes name from the set, if present.
func (s *Set) Remove(name string) {
	delete(s.m, key(name))
}

// Len returns the number of distinct names in the set.
func (s *Set) Len() int { return len(s.m) }

// Names returns the set's members in unspecified order.
func (s *Set) Names() []string {
	out := make([]string, 0, len(s.m))
	for _, name := range s.m {
		out = append(out, name)
	}
	return out
}

// Union returns a new Set containing every name in s or other.
func (s *Set) Union(other *Set) *Set {
	out := New()
	for _, n := range s.m {
		out.Add(n)
	}
	for _, n := range other.m {
		out.Add(n)
	}
	return out
}

// Difference returns the names in s that are not in other — the shape
// the closure pass needs for "refs \ decls \ globals" (spec §4.3 step 3).
func (s *Set) Difference(other *Set) *Set {
	out := New()
	for k, n := range s.m {
		if _, ok := other.m[k]; !ok {
			out.Add(n)
		}
	}
	return out
}

// TypeMap maps identifier names to their written type string, the
// variable-type map each function body walk populates (spec §4.3 step 2).
type TypeMap struct {
	m map[uint64]entry
}

type entry struct {
	name string
	typ  string
}

// NewTypeMap returns an empty TypeMap.
func NewTypeMap() *TypeMap {
	return &TypeMap{m: make(map[uint64]entry)}
}

// Set records name's written type, overwriting any prior binding — the
// innermost declaration always wins, matching the preorder walk the
// closure pass performs.
func (tm *TypeMap) Set(name, typ string) {
	tm.m[key(name)] = entry{name: name, typ: typ}
}

// Lookup returns name's written type and whether it is bound.
func (tm *TypeMap) Lookup(name string) (string, bool) {
	e, ok := tm.m[key(name)]
	if !ok {
		return "", false
	}
	return e.typ, true
}

// Clone returns an independent copy, used when a nested closure body
// needs its own type-map scope seeded from the enclosing one.
func (tm *TypeMap) Clone() *TypeMap {
	out := NewTypeMap()
	for k, e := range tm.m {
		out.m[k] = e
	}
	return out
}
