/*
Package crdt provides replicated counters that converge without coordination.

Replicated data types are structured such that they can be copied across multiple sites
in a distributed environment, mutated independently at each site, and they still may be
merged back without conflicts.

Two counters are provided:

  - GCounter, a grow-only counter holding, for each actor, the largest operation counter
    observed from it. Its value is the sum over all actors.
  - PNCounter, an increment/decrement counter composed of two GCounters, one for increments
    (P) and one for decrements (N). Its value is P minus N.

Both can be replicated by shipping full states (Merge) or by shipping individual operations
(Apply). Merge is a pointwise maximum, so it's commutative, associative and idempotent, and
operations may be delivered more than once and in any order.

  # BEGIN ASCII ART

   replica 1      P{A:2}     N{A:1}           value 1
                     \          \
                      max        max
                     /          /
   replica 2      P{B:1}     N{B:1}           value 0
                     |          |
                     v          v
   merged         P{A:2,B:1} N{A:1,B:1}       value 1

  # END ASCII ART
  # ALT TEXT: Two replicas, each holding a P and an N table. Merging takes the maximum per
              actor of each table; the merged value is 3 - 2 = 1.

Access to the types in this package is not synchronized. Callers that share a counter
between goroutines must guard it themselves, e.g. with one owner per replica.
*/
package crdt

import (
	"cmp"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/google/uuid"
)

var (
	uuidv1 = randomUUIDv1 // Stubbed for mocking in mocks_test.go
)

// +-----------------------+
// | Replication contracts |
// +-----------------------+

// CvRDT is a state-based replicated data type: replicas converge by merging full states.
type CvRDT[T any] interface {
	// Merge incorporates the state of other into the receiver.
	Merge(other T)
}

// CmRDT is an operation-based replicated data type: replicas converge by applying
// operations, which may arrive duplicated or reordered.
type CmRDT[Op any] interface {
	// Apply incorporates a single operation into the receiver.
	Apply(op Op)
}

// +--------------+
// | Actor & Dots |
// +--------------+

// Actor is the set of types that may identify a replica.
//
// Actors must be ordered and usable as map keys. Floating point types are left out since
// NaN is not equal to itself.
type Actor interface {
	~string |
		~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Dot identifies the N-th operation issued by an actor.
type Dot[A Actor] struct {
	// Actor is the replica that issued the operation.
	Actor A `json:"actor" msgpack:"actor"`
	// Counter is the number of operations issued by Actor, including this one.
	Counter uint64 `json:"counter" msgpack:"counter"`
}

// Inc returns the dot following this one for the same actor.
func (d Dot[A]) Inc() Dot[A] {
	return Dot[A]{Actor: d.Actor, Counter: d.Counter + 1}
}

// Compare returns the relative order between dots.
//
// Only dots from the same actor are causally related; dots from different actors are
// ordered by actor so that listings are deterministic.
func (d Dot[A]) Compare(other Dot[A]) int {
	if c := cmp.Compare(d.Actor, other.Actor); c != 0 {
		return c
	}
	return cmp.Compare(d.Counter, other.Counter)
}

func (d Dot[A]) String() string {
	return fmt.Sprintf("%v@%d", d.Actor, d.Counter)
}

// +---------+
// | Site ID |
// +---------+

// SiteID is an actor identified by a UUIDv1 string.
type SiteID string

// NewSiteID returns a fresh site identifier.
func NewSiteID() SiteID {
	return SiteID(uuidv1().String())
}

// Provides a random MAC address.
func randomMAC() []byte {
	mac := make([]byte, 6)
	if _, err := io.ReadFull(rand.Reader, mac); err != nil {
		panic(err.Error())
	}
	return mac
}

// Create UUIDv1, using local timestamp as lower bits and random MAC.
func randomUUIDv1() uuid.UUID {
	uuid.SetNodeID(randomMAC())
	id, err := uuid.NewUUID()
	if err != nil {
		panic(fmt.Sprintf("creating UUIDv1: %v", err))
	}
	return id
}
