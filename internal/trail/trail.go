// Package trail allocates process-unique trail identifiers.
//
// A trail groups every event and marker belonging to one logical
// transaction. Identifiers come from a single atomic counter, so Next is
// lock-free and never returns the same value twice until the counter wraps
// at 2^64.
package trail

import "sync/atomic"

// ID identifies a trail. It is a value, not a resource.
type ID = uint64

// Generator hands out trail identifiers. The zero value starts at 0; use
// NewGenerator to pick the first value.
type Generator struct {
	next atomic.Uint64
}

// NewGenerator returns a Generator whose first identifier is seed.
func NewGenerator(seed ID) *Generator {
	g := &Generator{}
	g.next.Store(seed)
	return g
}

// Next returns a fresh identifier. Safe for concurrent use.
func (g *Generator) Next() ID {
	return g.next.Add(1) - 1
}
