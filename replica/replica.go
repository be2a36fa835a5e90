/*
Package replica hosts counters as independent replicas within one process.

A Replica owns one crdt.PNCounter and serializes access to it, fulfilling the
single-writer requirement of package crdt. Replicas talk to each other only through
encoded payloads: operations produced by Increment and Decrement, and full states
produced by Snapshot. A Cluster moves those payloads between replicas, duplicating and
reordering them, which is enough to observe that replicas converge anyway.
*/
package replica

import (
	"sync"

	"github.com/brunokim/counters/crdt"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
)

// Replica is a counter replica identified by an actor.
type Replica[A crdt.Actor] struct {
	// ID is the actor of all operations issued by this replica.
	ID A

	mu      sync.Mutex
	counter *crdt.PNCounter[A]
	logger  log.Logger
	metrics *Metrics
}

// New creates a replica with an empty counter. A nil metrics records nothing.
func New[A crdt.Actor](id A, logger log.Logger, m *Metrics) *Replica[A] {
	if m == nil {
		m = NewDiscardMetrics()
	}
	return &Replica[A]{
		ID:      id,
		counter: crdt.NewPNCounter[A](),
		logger:  log.With(logger, "replica", id),
		metrics: m.with(id),
	}
}

// Increment increments the counter and returns the encoded operation, to be
// delivered to other replicas.
func (r *Replica[A]) Increment() ([]byte, error) {
	return r.issue(crdt.Increase)
}

// Decrement decrements the counter and returns the encoded operation, to be
// delivered to other replicas.
func (r *Replica[A]) Decrement() ([]byte, error) {
	return r.issue(crdt.Decrease)
}

func (r *Replica[A]) issue(dir crdt.Dir) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var op crdt.Op[A]
	switch dir {
	case crdt.Increase:
		op = r.counter.Inc(r.ID)
	case crdt.Decrease:
		op = r.counter.Dec(r.ID)
	default:
		return nil, errors.Wrapf(crdt.ErrUnknownDir, "issuing %v", dir)
	}
	// Issuing and applying under the same lock keeps dots from this replica distinct.
	r.counter.Apply(op)

	payload, err := crdt.EncodeOp(op)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding %v", op)
	}
	r.metrics.OpsIssued.Add(1)
	level.Debug(r.logger).Log("msg", "issued op", "op", op, "value", r.counter.Value())
	return payload, nil
}

// Deliver applies an encoded operation from any replica. Payloads may be delivered
// more than once and in any order.
func (r *Replica[A]) Deliver(payload []byte) error {
	op, err := crdt.DecodeOp[A](payload)
	if err != nil {
		level.Warn(r.logger).Log("msg", "dropping undecodable op", "err", err)
		return errors.Wrap(err, "delivering op")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.counter.Apply(op)
	r.metrics.OpsDelivered.Add(1)
	level.Debug(r.logger).Log("msg", "applied op", "op", op, "value", r.counter.Value())
	return nil
}

// Snapshot returns the encoded state of the counter.
func (r *Replica[A]) Snapshot() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	payload, err := crdt.EncodeState(r.counter)
	if err != nil {
		return nil, errors.Wrap(err, "encoding snapshot")
	}
	return payload, nil
}

// MergeSnapshot merges the encoded state of another replica.
func (r *Replica[A]) MergeSnapshot(payload []byte) error {
	other, err := crdt.DecodeState[A](payload)
	if err != nil {
		level.Warn(r.logger).Log("msg", "dropping undecodable snapshot", "err", err)
		return errors.Wrap(err, "merging snapshot")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.counter.Merge(other)
	r.metrics.Merges.Add(1)
	level.Debug(r.logger).Log("msg", "merged snapshot", "value", r.counter.Value())
	return nil
}

// Value returns the current value of the counter.
func (r *Replica[A]) Value() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counter.Value()
}

// Counter returns a copy of the replica's counter.
func (r *Replica[A]) Counter() *crdt.PNCounter[A] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counter.Clone()
}
