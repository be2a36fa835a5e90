package replica

import (
	"math/rand"

	"github.com/brunokim/counters/crdt"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
)

// Options configure how a Cluster moves payloads between replicas.
type Options struct {
	// DuplicateRate is the probability that a delivery is queued a second time.
	DuplicateRate float64
	// Seed seeds the source of randomness for reordering and duplication.
	Seed int64
	// Metrics is shared by all replicas. Nil records nothing.
	Metrics *Metrics
}

type delivery struct {
	to      int
	payload []byte
}

// Cluster is a set of replicas connected by an in-memory feed of operations.
//
// The feed never loses payloads, but may duplicate them, and delivers them in random
// order. A Cluster is not safe for concurrent use; its replicas are.
type Cluster[A crdt.Actor] struct {
	// Replicas are the cluster members, in the order given to NewCluster.
	Replicas []*Replica[A]

	pending       []delivery
	rnd           *rand.Rand
	duplicateRate float64
	logger        log.Logger
}

// ErrDuplicateID is returned by NewCluster when two replicas would share an actor.
var ErrDuplicateID = errors.New("duplicate replica ID")

// NewCluster creates one empty replica per ID. IDs must be distinct, since replicas
// sharing an actor would issue colliding operations.
func NewCluster[A crdt.Actor](ids []A, opts Options, logger log.Logger) (*Cluster[A], error) {
	if opts.Metrics == nil {
		opts.Metrics = NewDiscardMetrics()
	}
	seen := make(map[A]bool, len(ids))
	replicas := make([]*Replica[A], len(ids))
	for i, id := range ids {
		if seen[id] {
			return nil, errors.Wrapf(ErrDuplicateID, "%v", id)
		}
		seen[id] = true
		replicas[i] = New(id, logger, opts.Metrics)
	}
	return &Cluster[A]{
		Replicas:      replicas,
		rnd:           rand.New(rand.NewSource(opts.Seed)),
		duplicateRate: opts.DuplicateRate,
		logger:        logger,
	}, nil
}

// Broadcast queues a payload issued by replica 'from' for every other replica.
func (c *Cluster[A]) Broadcast(from int, payload []byte) {
	for to := range c.Replicas {
		if to == from {
			continue
		}
		c.pending = append(c.pending, delivery{to, payload})
		if c.rnd.Float64() < c.duplicateRate {
			c.pending = append(c.pending, delivery{to, payload})
		}
	}
}

// Pending returns the number of queued deliveries.
func (c *Cluster[A]) Pending() int {
	return len(c.pending)
}

// Flush delivers all queued payloads, in random order.
func (c *Cluster[A]) Flush() error {
	pending := c.pending
	c.pending = nil
	c.rnd.Shuffle(len(pending), func(i, j int) {
		pending[i], pending[j] = pending[j], pending[i]
	})
	for _, d := range pending {
		if err := c.Replicas[d.to].Deliver(d.payload); err != nil {
			return errors.Wrapf(err, "replica #%d", d.to)
		}
	}
	level.Debug(c.logger).Log("msg", "flushed ops", "deliveries", len(pending))
	return nil
}

// Gossip runs a full anti-entropy round: every replica merges the snapshot of every
// other replica, in random order.
func (c *Cluster[A]) Gossip() error {
	snapshots := make([][]byte, len(c.Replicas))
	for i, r := range c.Replicas {
		snapshot, err := r.Snapshot()
		if err != nil {
			return errors.Wrapf(err, "replica #%d", i)
		}
		snapshots[i] = snapshot
	}
	for i, r := range c.Replicas {
		for _, j := range c.rnd.Perm(len(snapshots)) {
			if i == j {
				continue
			}
			if err := r.MergeSnapshot(snapshots[j]); err != nil {
				return errors.Wrapf(err, "replica #%d from #%d", i, j)
			}
		}
	}
	level.Debug(c.logger).Log("msg", "gossip round done", "replicas", len(c.Replicas))
	return nil
}

// Converged reports whether all replicas have the same value, and which.
func (c *Cluster[A]) Converged() (int64, bool) {
	if len(c.Replicas) == 0 {
		return 0, true
	}
	value := c.Replicas[0].Value()
	for _, r := range c.Replicas[1:] {
		if r.Value() != value {
			return value, false
		}
	}
	return value, true
}
