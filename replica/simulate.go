package replica

import (
	"context"
	"math/rand"

	"github.com/brunokim/counters/crdt"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
)

// SimOptions configure a simulation run.
type SimOptions struct {
	// Steps is the number of local operations issued across all replicas.
	Steps int
	// FlushEvery delivers queued operations every N steps. Zero only flushes at the end.
	FlushEvery int
	// GossipEvery runs an anti-entropy round every N steps. Zero only gossips at the end.
	GossipEvery int
	// DecrementRate is the probability that a step is a decrement.
	DecrementRate float64
	// Seed seeds the choice of replica and direction of every step.
	Seed int64
}

// Result summarizes a simulation run.
type Result struct {
	Increments int
	Decrements int
	// Value is the value of the first replica after the final flush and gossip.
	Value     int64
	Converged bool
}

// Want returns the value all replicas should reach.
func (r Result) Want() int64 {
	return int64(r.Increments - r.Decrements)
}

// Simulate issues random operations on random replicas, shipping them through the
// cluster. At the end every pending operation is delivered and a gossip round is run,
// after which all replicas should hold the same value.
//
// Cancelling the context stops issuing operations; the partial result is returned with
// the context error.
func Simulate[A crdt.Actor](ctx context.Context, c *Cluster[A], opts SimOptions) (Result, error) {
	var res Result
	if len(c.Replicas) == 0 {
		res.Converged = true
		return res, nil
	}
	rnd := rand.New(rand.NewSource(opts.Seed))
	for step := 1; step <= opts.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		i := rnd.Intn(len(c.Replicas))
		r := c.Replicas[i]
		dir := crdt.Increase
		if rnd.Float64() < opts.DecrementRate {
			dir = crdt.Decrease
		}
		payload, err := r.issue(dir)
		if err != nil {
			return res, errors.Wrapf(err, "step %d", step)
		}
		if dir == crdt.Decrease {
			res.Decrements++
		} else {
			res.Increments++
		}
		c.Broadcast(i, payload)

		if opts.FlushEvery > 0 && step%opts.FlushEvery == 0 {
			if err := c.Flush(); err != nil {
				return res, errors.Wrapf(err, "step %d", step)
			}
		}
		if opts.GossipEvery > 0 && step%opts.GossipEvery == 0 {
			if err := c.Gossip(); err != nil {
				return res, errors.Wrapf(err, "step %d", step)
			}
		}
	}

	if err := c.Flush(); err != nil {
		return res, errors.Wrap(err, "final flush")
	}
	if err := c.Gossip(); err != nil {
		return res, errors.Wrap(err, "final gossip")
	}
	res.Value, res.Converged = c.Converged()
	if res.Converged && res.Value != res.Want() {
		res.Converged = false
	}
	level.Info(c.logger).Log(
		"msg", "simulation done",
		"increments", res.Increments,
		"decrements", res.Decrements,
		"value", res.Value,
		"converged", res.Converged,
	)
	return res, nil
}
