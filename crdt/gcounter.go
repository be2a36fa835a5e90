package crdt

import (
	"slices"
	"strings"
)

// GCounter is a grow-only counter.
//
// It holds, for every actor, the counter of the latest dot observed from it. Counters only
// ever grow, and merging takes the maximum per actor.
//
// The zero value is an empty counter ready to use.
type GCounter[A Actor] struct {
	counters map[A]uint64
}

var (
	_ CvRDT[*GCounter[string]] = (*GCounter[string])(nil)
	_ CmRDT[Dot[string]]       = (*GCounter[string])(nil)
)

// NewGCounter creates an empty grow-only counter.
func NewGCounter[A Actor]() *GCounter[A] {
	return &GCounter[A]{counters: make(map[A]uint64)}
}

// Value returns the sum of all actors' counters.
func (c *GCounter[A]) Value() uint64 {
	var sum uint64
	for _, n := range c.counters {
		sum += n
	}
	return sum
}

// Get returns the counter stored for an actor, or 0 if it was never seen.
func (c *GCounter[A]) Get(actor A) uint64 {
	return c.counters[actor]
}

// Inc returns the dot for the actor's next operation. The counter is not modified: the
// dot must be applied to take effect.
//
// Calling Inc twice without applying the first dot returns the same dot, and applying
// the second one is a no-op.
func (c *GCounter[A]) Inc(actor A) Dot[A] {
	return Dot[A]{Actor: actor, Counter: c.Get(actor)}.Inc()
}

// Apply raises the actor's counter to the dot's counter, if it's larger.
// Applying an older or repeated dot has no effect.
func (c *GCounter[A]) Apply(dot Dot[A]) {
	if dot.Counter <= c.counters[dot.Actor] {
		return
	}
	if c.counters == nil {
		c.counters = make(map[A]uint64)
	}
	c.counters[dot.Actor] = dot.Counter
}

// Merge updates the current state with that of another counter, keeping the
// largest counter for each actor.
func (c *GCounter[A]) Merge(other *GCounter[A]) {
	if other == nil {
		return
	}
	for actor, n := range other.counters {
		c.Apply(Dot[A]{Actor: actor, Counter: n})
	}
}

// +-----------+
// | Utilities |
// +-----------+

// Actors returns the actors with a non-zero counter, in ascending order.
func (c *GCounter[A]) Actors() []A {
	actors := make([]A, 0, len(c.counters))
	for actor := range c.counters {
		actors = append(actors, actor)
	}
	slices.Sort(actors)
	return actors
}

// Dots returns the latest dot of every actor, ordered by actor.
func (c *GCounter[A]) Dots() []Dot[A] {
	actors := c.Actors()
	dots := make([]Dot[A], len(actors))
	for i, actor := range actors {
		dots[i] = Dot[A]{Actor: actor, Counter: c.counters[actor]}
	}
	return dots
}

// Clone returns an independent copy of the counter.
func (c *GCounter[A]) Clone() *GCounter[A] {
	clone := NewGCounter[A]()
	for actor, n := range c.counters {
		clone.counters[actor] = n
	}
	return clone
}

// Equal reports whether both counters hold the same counter for every actor.
//
// Unlike PNCounter.Equal, this is a structural comparison.
func (c *GCounter[A]) Equal(other *GCounter[A]) bool {
	if len(c.counters) != len(other.counters) {
		return false
	}
	for actor, n := range c.counters {
		if m, ok := other.counters[actor]; !ok || m != n {
			return false
		}
	}
	return true
}

func (c *GCounter[A]) String() string {
	dots := c.Dots()
	parts := make([]string, len(dots))
	for i, dot := range dots {
		parts[i] = dot.String()
	}
	return "GCounter{" + strings.Join(parts, ", ") + "}"
}
