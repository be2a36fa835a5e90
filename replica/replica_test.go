package replica_test

import (
	"context"
	"sync"
	"testing"

	"github.com/brunokim/counters/crdt"
	"github.com/brunokim/counters/replica"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplicaOps(t *testing.T) {
	r1 := replica.New("A", log.NewNopLogger(), nil)
	r2 := replica.New("B", log.NewNopLogger(), nil)

	inc, err := r1.Increment()
	require.NoError(t, err)
	dec, err := r2.Decrement()
	require.NoError(t, err)
	dec2, err := r2.Decrement()
	require.NoError(t, err)

	assert.Equal(t, int64(1), r1.Value())
	assert.Equal(t, int64(-2), r2.Value())

	// Duplicated and reordered delivery.
	for _, payload := range [][]byte{dec2, dec, dec2} {
		require.NoError(t, r1.Deliver(payload))
	}
	require.NoError(t, r2.Deliver(inc))
	require.NoError(t, r2.Deliver(inc))

	assert.Equal(t, int64(-1), r1.Value())
	assert.Equal(t, int64(-1), r2.Value())
}

func TestReplicaSnapshots(t *testing.T) {
	r1 := replica.New("A", log.NewNopLogger(), nil)
	r2 := replica.New("B", log.NewNopLogger(), nil)
	_, err := r1.Increment()
	require.NoError(t, err)
	_, err = r2.Increment()
	require.NoError(t, err)
	_, err = r2.Decrement()
	require.NoError(t, err)

	s1, err := r1.Snapshot()
	require.NoError(t, err)
	s2, err := r2.Snapshot()
	require.NoError(t, err)
	require.NoError(t, r1.MergeSnapshot(s2))
	require.NoError(t, r2.MergeSnapshot(s1))
	require.NoError(t, r2.MergeSnapshot(s1))

	assert.Equal(t, int64(1), r1.Value())
	assert.Equal(t, int64(1), r2.Value())
	assert.Equal(t, []string{"A", "B"}, r1.Counter().Increments().Actors())
}

func TestReplicaRejectsGarbage(t *testing.T) {
	r := replica.New(7, log.NewNopLogger(), nil)
	assert.Error(t, r.Deliver([]byte{0xc1}))
	assert.Error(t, r.MergeSnapshot([]byte{0xc1}))
	assert.Equal(t, int64(0), r.Value())
}

func TestReplicaRejectsNilOp(t *testing.T) {
	m, _, delivered, merges := newMetrics()
	r := replica.New("A", log.NewNopLogger(), m)
	for _, payload := range [][]byte{nil, {0xc0}} {
		assert.ErrorIs(t, r.Deliver(payload), crdt.ErrEmptyPayload)
		assert.ErrorIs(t, r.MergeSnapshot(payload), crdt.ErrEmptyPayload)
	}
	assert.Zero(t, delivered.Value())
	assert.Zero(t, merges.Value())
	assert.Equal(t, int64(0), r.Value())
}

func TestReplicaConcurrentUse(t *testing.T) {
	local := replica.New("A", log.NewNopLogger(), nil)
	remote := crdt.NewPNCounter[string]()
	var ops [][]byte
	for i := 0; i < 50; i++ {
		op := remote.Inc("B")
		remote.Apply(op)
		payload, err := crdt.EncodeOp(op)
		require.NoError(t, err)
		ops = append(ops, payload)
	}

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if _, err := local.Increment(); err != nil {
					t.Error(err)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for _, payload := range ops {
				if err := local.Deliver(payload); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()

	// Every local increment got its own dot, and remote ops count once.
	assert.Equal(t, int64(4*25+50), local.Value())
}

// sumCounter adds up all observations, ignoring labels.
type sumCounter struct {
	mu  sync.Mutex
	sum float64
}

func (c *sumCounter) With(labelValues ...string) metrics.Counter { return c }

func (c *sumCounter) Add(delta float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sum += delta
}

func (c *sumCounter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sum
}

func newMetrics() (*replica.Metrics, *sumCounter, *sumCounter, *sumCounter) {
	issued, delivered, merges := &sumCounter{}, &sumCounter{}, &sumCounter{}
	return &replica.Metrics{OpsIssued: issued, OpsDelivered: delivered, Merges: merges}, issued, delivered, merges
}

func TestClusterConverges(t *testing.T) {
	tests := []struct {
		desc string
		ids  []string
		cfg  replica.SimOptions
		dup  float64
	}{
		{
			desc: "ops only",
			ids:  []string{"A", "B", "C"},
			cfg:  replica.SimOptions{Steps: 200, FlushEvery: 7, DecrementRate: 0.4, Seed: 1},
			dup:  0.5,
		},
		{
			desc: "gossip only",
			ids:  []string{"A", "B", "C", "D"},
			cfg:  replica.SimOptions{Steps: 200, GossipEvery: 13, DecrementRate: 0.6, Seed: 2},
		},
		{
			desc: "ops and gossip",
			ids:  []string{"A", "B"},
			cfg:  replica.SimOptions{Steps: 500, FlushEvery: 3, GossipEvery: 50, DecrementRate: 0.5, Seed: 3},
			dup:  1,
		},
		{
			desc: "single replica",
			ids:  []string{"A"},
			cfg:  replica.SimOptions{Steps: 10, Seed: 4},
		},
	}
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			c, err := replica.NewCluster(test.ids, replica.Options{DuplicateRate: test.dup, Seed: 42}, log.NewNopLogger())
			require.NoError(t, err)
			res, err := replica.Simulate(context.Background(), c, test.cfg)
			require.NoError(t, err)
			assert.True(t, res.Converged, "replicas did not converge: %+v", res)
			assert.Equal(t, test.cfg.Steps, res.Increments+res.Decrements)
			assert.Equal(t, res.Want(), res.Value)
			assert.Zero(t, c.Pending())
			for _, r := range c.Replicas {
				assert.Equal(t, res.Want(), r.Value(), "replica %s", r.ID)
			}
		})
	}
}

func TestClusterMetrics(t *testing.T) {
	m, issued, delivered, merges := newMetrics()
	c, err := replica.NewCluster([]int{1, 2, 3}, replica.Options{Metrics: m}, log.NewNopLogger())
	require.NoError(t, err)
	res, err := replica.Simulate(context.Background(), c, replica.SimOptions{Steps: 10})
	require.NoError(t, err)
	require.True(t, res.Converged)

	assert.Equal(t, 10.0, issued.Value())
	// Without duplication, each op reaches the two other replicas once.
	assert.Equal(t, 20.0, delivered.Value())
	// Final gossip: each replica merges the two others.
	assert.Equal(t, 6.0, merges.Value())
}

func TestClusterDuplicateIDs(t *testing.T) {
	c, err := replica.NewCluster([]string{"A", "B", "A"}, replica.Options{}, log.NewNopLogger())
	assert.ErrorIs(t, err, replica.ErrDuplicateID)
	assert.Nil(t, c)
}

func TestClusterBroadcastDuplicates(t *testing.T) {
	c, err := replica.NewCluster([]string{"A", "B", "C"}, replica.Options{DuplicateRate: 1}, log.NewNopLogger())
	require.NoError(t, err)
	payload, err := c.Replicas[0].Increment()
	require.NoError(t, err)
	c.Broadcast(0, payload)
	assert.Equal(t, 4, c.Pending())

	_, ok := c.Converged()
	assert.False(t, ok)
	require.NoError(t, c.Flush())
	value, ok := c.Converged()
	assert.True(t, ok)
	assert.Equal(t, int64(1), value)
}

func TestSimulateCancelled(t *testing.T) {
	c, err := replica.NewCluster([]string{"A", "B"}, replica.Options{}, log.NewNopLogger())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := replica.Simulate(ctx, c, replica.SimOptions{Steps: 100})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Increments+res.Decrements)
}
