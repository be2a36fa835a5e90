package crdt

import (
	"cmp"
	"fmt"
)

// PNCounter is a counter that may be incremented and decremented.
//
// Increments (P) and decrements (N) are kept in separate grow-only counters, so that
// merging stays a pointwise maximum. The value of the counter is P minus N.
//
// The zero value is an empty counter ready to use.
type PNCounter[A Actor] struct {
	p, n GCounter[A]
}

var (
	_ CvRDT[*PNCounter[string]] = (*PNCounter[string])(nil)
	_ CmRDT[Op[string]]         = (*PNCounter[string])(nil)
)

// Dir is the direction of a PNCounter operation.
type Dir uint8

// Directions of a PNCounter operation.
const (
	Increase Dir = iota
	Decrease
)

func (d Dir) String() string {
	switch d {
	case Increase:
		return "inc"
	case Decrease:
		return "dec"
	default:
		return fmt.Sprintf("Dir(%d)", uint8(d))
	}
}

// Op is an operation produced by PNCounter.Inc or PNCounter.Dec.
// Ship ops to other replicas to have them sync up.
type Op[A Actor] struct {
	// Dot identifies the operation within its actor's increments or decrements.
	Dot Dot[A]
	// Dir tells which half of the counter the dot belongs to.
	Dir Dir
}

func (op Op[A]) String() string {
	return fmt.Sprintf("%v(%v)", op.Dir, op.Dot)
}

// NewPNCounter creates an empty increment/decrement counter.
func NewPNCounter[A Actor]() *PNCounter[A] {
	return &PNCounter[A]{}
}

// Value returns the number of increments minus the number of decrements.
func (c *PNCounter[A]) Value() int64 {
	return int64(c.p.Value()) - int64(c.n.Value())
}

// Inc returns an operation incrementing the counter on behalf of actor.
// The counter is not modified until the operation is applied.
func (c *PNCounter[A]) Inc(actor A) Op[A] {
	return Op[A]{Dot: c.p.Inc(actor), Dir: Increase}
}

// Dec returns an operation decrementing the counter on behalf of actor.
// The counter is not modified until the operation is applied.
func (c *PNCounter[A]) Dec(actor A) Op[A] {
	return Op[A]{Dot: c.n.Inc(actor), Dir: Decrease}
}

// Apply incorporates an operation, either local or from another replica.
// Applying the same operation more than once has no further effect.
func (c *PNCounter[A]) Apply(op Op[A]) {
	switch op.Dir {
	case Increase:
		c.p.Apply(op.Dot)
	case Decrease:
		c.n.Apply(op.Dot)
	default:
		panic(fmt.Sprintf("PNCounter.Apply: unexpected direction %v in %v", op.Dir, op))
	}
}

// Merge updates the current state with that of another counter.
func (c *PNCounter[A]) Merge(other *PNCounter[A]) {
	if other == nil {
		return
	}
	c.p.Merge(&other.p)
	c.n.Merge(&other.n)
}

// +----------+
// | Ordering |
// +----------+

// Compare returns the relative order between the values of both counters.
//
// Counters with different histories but the same value compare as equal.
func (c *PNCounter[A]) Compare(other *PNCounter[A]) int {
	return cmp.Compare(c.Value(), other.Value())
}

// Equal reports whether both counters have the same value.
func (c *PNCounter[A]) Equal(other *PNCounter[A]) bool {
	return c.Compare(other) == 0
}

// Less reports whether this counter's value is smaller than other's.
func (c *PNCounter[A]) Less(other *PNCounter[A]) bool {
	return c.Compare(other) < 0
}

// +-----------+
// | Utilities |
// +-----------+

// Increments returns a copy of the grow-only counter of increments.
func (c *PNCounter[A]) Increments() *GCounter[A] {
	return c.p.Clone()
}

// Decrements returns a copy of the grow-only counter of decrements.
func (c *PNCounter[A]) Decrements() *GCounter[A] {
	return c.n.Clone()
}

// Clone returns an independent copy of the counter.
func (c *PNCounter[A]) Clone() *PNCounter[A] {
	return &PNCounter[A]{
		p: *c.p.Clone(),
		n: *c.n.Clone(),
	}
}

func (c *PNCounter[A]) String() string {
	return fmt.Sprintf("PNCounter(%d){P: %v, N: %v}", c.Value(), &c.p, &c.n)
}
