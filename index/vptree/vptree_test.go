package vptree

import (
	"bytes"
	"encoding/gob"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/metrigo/index"
	"github.com/hupe1980/metrigo/params"
	"github.com/hupe1980/metrigo/pruner"
	"github.com/hupe1980/metrigo/space"
	"github.com/hupe1980/metrigo/testutil"
)

// sixPoints is two tight clusters in the plane: {A,B,C} near the origin and
// {D,E,F} around (5,5).
func sixPoints(t *testing.T) (*space.Lp, []*space.Object) {
	t.Helper()
	l2 := space.NewL2()
	data, err := testutil.MakeDataset[float32](l2, [][]float32{
		{0, 0}, // A = 0
		{1, 0}, // B = 1
		{0, 1}, // C = 2
		{5, 5}, // D = 3
		{5, 6}, // E = 4
		{6, 5}, // F = 5
	})
	require.NoError(t, err)
	return l2, data
}

func query(t *testing.T, sp *space.Lp, v []float32) *space.Object {
	t.Helper()
	q, err := sp.CreateObjFromVector(0, -1, v)
	require.NoError(t, err)
	return q
}

func TestNew(t *testing.T) {
	t.Run("EmptyDataset", func(t *testing.T) {
		_, err := New[float32](space.NewL2(), nil, DefaultOptions, nil, nil)
		assert.ErrorIs(t, err, index.ErrEmptyDataset)
	})

	t.Run("BadBucketSize", func(t *testing.T) {
		_, data := sixPoints(t)
		opts := DefaultOptions
		opts.BucketSize = 0
		_, err := New[float32](space.NewL2(), data, opts, nil, nil)

		var cfg *index.ConfigError
		assert.ErrorAs(t, err, &cfg)
	})
}

func TestInvariants(t *testing.T) {
	l2 := space.NewL2()
	rng := testutil.NewRNG(42)
	vectors := rng.UniformVectors(300, 4)
	data, err := testutil.MakeDataset[float32](l2, vectors)
	require.NoError(t, err)

	opts := DefaultOptions
	opts.BucketSize = 5
	opts.Seed = 7
	tree, err := New[float32](l2, data, opts, nil, nil)
	require.NoError(t, err)

	t.Run("PartitionRespectsMedian", func(t *testing.T) {
		var walk func(n *node[float32])
		walk = func(n *node[float32]) {
			if n.isLeaf() {
				return
			}
			forEachObject(n.left, func(o *space.Object) {
				assert.LessOrEqual(t, l2.Distance(n.pivot, o), n.median)
			})
			forEachObject(n.right, func(o *space.Object) {
				assert.GreaterOrEqual(t, l2.Distance(n.pivot, o), n.median)
			})
			walk(n.left)
			walk(n.right)
		}
		walk(tree.root)
	})

	t.Run("EveryObjectExactlyOnce", func(t *testing.T) {
		seen := map[uint32]int{}
		forEachObject(tree.root, func(o *space.Object) {
			seen[o.ID()]++
		})
		assert.Len(t, seen, len(data))
		for id, n := range seen {
			assert.Equal(t, 1, n, "object %d", id)
		}
	})

	t.Run("LeafSizeBounded", func(t *testing.T) {
		var walk func(n *node[float32])
		walk = func(n *node[float32]) {
			if n.isLeaf() {
				assert.LessOrEqual(t, len(n.bucket), opts.BucketSize)
				return
			}
			walk(n.left)
			walk(n.right)
		}
		walk(tree.root)
	})

	t.Run("DeterministicUnderSeed", func(t *testing.T) {
		again, err := New[float32](l2, data, opts, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, tree.Snapshot(), again.Snapshot())
	})
}

// forEachObject visits pivots and bucket members once each.
func forEachObject[D space.Dist](n *node[D], fn func(o *space.Object)) {
	if n.isLeaf() {
		for _, o := range n.bucket {
			fn(o)
		}
		return
	}
	fn(n.pivot)
	forEachObject(n.left, fn)
	forEachObject(n.right, fn)
}

func TestExactSearch(t *testing.T) {
	l2 := space.NewL2()
	rng := testutil.NewRNG(11)
	data, err := testutil.MakeDataset[float32](l2, rng.UniformVectors(250, 4))
	require.NoError(t, err)

	opts := DefaultOptions
	opts.BucketSize = 4
	tree, err := New[float32](l2, data, opts, nil, nil)
	require.NoError(t, err)

	t.Run("KNNMatchesLinearScan", func(t *testing.T) {
		for qi := range 20 {
			q, err := l2.CreateObjFromVector(0, -1, rng.UniformVectors(1, 4)[0])
			require.NoError(t, err)

			got, err := tree.KNNQuery(q, 5)
			require.NoError(t, err)
			want := testutil.BruteForceKNN[float32](l2, data, q, 5)

			require.Len(t, got, len(want), "query %d", qi)
			for i := range got {
				assert.InDelta(t, want[i].Dist, got[i].Dist, 1e-6, "query %d rank %d", qi, i)
			}
		}
	})

	t.Run("RangeMatchesLinearScan", func(t *testing.T) {
		q, err := l2.CreateObjFromVector(0, -1, []float32{0.5, 0.5, 0.5, 0.5})
		require.NoError(t, err)

		got, err := tree.RangeQuery(q, 0.4)
		require.NoError(t, err)
		want := testutil.BruteForceRange[float32](l2, data, q, 0.4)

		gotIDs := make(map[uint32]bool, len(got))
		for _, r := range got {
			gotIDs[r.ID] = true
		}
		require.Len(t, got, len(want))
		for _, r := range want {
			assert.True(t, gotIDs[r.ID], "missing id %d", r.ID)
		}
	})
}

func TestScenarios(t *testing.T) {
	l2, data := sixPoints(t)

	opts := DefaultOptions
	opts.BucketSize = 1
	tree, err := New[float32](l2, data, opts, nil, nil)
	require.NoError(t, err)

	t.Run("KNNNearOrigin", func(t *testing.T) {
		res, err := tree.KNNQuery(query(t, l2, []float32{0.1, 0.1}), 2)
		require.NoError(t, err)
		require.Len(t, res, 2)

		assert.Equal(t, uint32(0), res[0].ID) // A
		assert.InDelta(t, 0.1414, res[0].Dist, 1e-3)
		// B and C are equidistant up to the query offset; either may rank
		// second.
		assert.Contains(t, []uint32{1, 2}, res[1].ID)
		assert.InDelta(t, 0.9055, res[1].Dist, 1e-3)
	})

	t.Run("RangeAtOrigin", func(t *testing.T) {
		res, err := tree.RangeQuery(query(t, l2, []float32{0, 0}), 1.0)
		require.NoError(t, err)
		require.Len(t, res, 3)

		ids := []uint32{res[0].ID, res[1].ID, res[2].ID}
		assert.ElementsMatch(t, []uint32{0, 1, 2}, ids)
		assert.Equal(t, float32(0), res[0].Dist)
		assert.Equal(t, float32(1), res[1].Dist)
		assert.Equal(t, float32(1), res[2].Dist)
	})

	t.Run("KNNInFarCluster", func(t *testing.T) {
		res, err := tree.KNNQuery(query(t, l2, []float32{5, 5}), 3)
		require.NoError(t, err)
		require.Len(t, res, 3)

		ids := []uint32{res[0].ID, res[1].ID, res[2].ID}
		assert.ElementsMatch(t, []uint32{3, 4, 5}, ids)
		assert.Equal(t, float32(0), res[0].Dist)
		assert.Equal(t, float32(1), res[1].Dist)
		assert.Equal(t, float32(1), res[2].Dist)
	})

	t.Run("RelaxedOracleNeverExceedsExact", func(t *testing.T) {
		relaxed, err := pruner.NewPolynomial(0.5, 1, 0.5, 1)
		require.NoError(t, err)

		approx, err := New[float32](l2, data, opts, relaxed, nil)
		require.NoError(t, err)

		res, err := approx.KNNQuery(query(t, l2, []float32{0.1, 0.1}), 2)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(res), 2)
		for _, r := range res {
			// Only near-origin objects can appear; pruning may drop some
			// but never invents far ones ahead of close ones it visited.
			assert.Contains(t, []uint32{0, 1, 2}, r.ID)
		}
	})
}

func TestBoundaries(t *testing.T) {
	l2, data := sixPoints(t)

	opts := DefaultOptions
	opts.BucketSize = 2
	tree, err := New[float32](l2, data, opts, nil, nil)
	require.NoError(t, err)

	t.Run("KOne", func(t *testing.T) {
		res, err := tree.KNNQuery(query(t, l2, []float32{4.9, 5.1}), 1)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, uint32(3), res[0].ID) // D
	})

	t.Run("KAboveN", func(t *testing.T) {
		res, err := tree.KNNQuery(query(t, l2, []float32{0, 0}), 100)
		require.NoError(t, err)
		require.Len(t, res, len(data))
		for i := 1; i < len(res); i++ {
			assert.LessOrEqual(t, res[i-1].Dist, res[i].Dist)
		}
	})

	t.Run("RadiusZero", func(t *testing.T) {
		res, err := tree.RangeQuery(query(t, l2, []float32{5, 6}), 0)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, uint32(4), res[0].ID) // E exactly
	})

	t.Run("InvalidK", func(t *testing.T) {
		_, err := tree.KNNQuery(query(t, l2, []float32{0, 0}), 0)
		assert.ErrorIs(t, err, index.ErrInvalidK)
	})

	t.Run("OneLeafTree", func(t *testing.T) {
		big := DefaultOptions
		big.BucketSize = len(data)
		flat, err := New[float32](l2, data, big, nil, nil)
		require.NoError(t, err)

		stats := flat.Stats()
		assert.Equal(t, 1, stats.Leaves)
		assert.Equal(t, 0, stats.Internal)

		res, err := flat.KNNQuery(query(t, l2, []float32{0.1, 0.1}), 2)
		require.NoError(t, err)
		want := testutil.BruteForceKNN[float32](l2, data, query(t, l2, []float32{0.1, 0.1}), 2)
		require.Len(t, res, 2)
		assert.InDelta(t, want[0].Dist, res[0].Dist, 1e-6)
		assert.InDelta(t, want[1].Dist, res[1].Dist, 1e-6)
	})
}

func TestChunkBucket(t *testing.T) {
	l2 := space.NewL2()
	rng := testutil.NewRNG(3)
	data, err := testutil.MakeDataset[float32](l2, rng.UniformVectors(120, 8))
	require.NoError(t, err)

	chunked := DefaultOptions
	chunked.BucketSize = 10
	chunked.ChunkBucket = true

	plain := chunked
	plain.ChunkBucket = false

	a, err := New[float32](l2, data, chunked, nil, nil)
	require.NoError(t, err)
	b, err := New[float32](l2, data, plain, nil, nil)
	require.NoError(t, err)

	q, err := l2.CreateObjFromVector(0, -1, rng.UniformVectors(1, 8)[0])
	require.NoError(t, err)

	ra, err := a.KNNQuery(q, 7)
	require.NoError(t, err)
	rb, err := b.KNNQuery(q, 7)
	require.NoError(t, err)
	assert.Equal(t, rb, ra)
}

func TestSetQueryTimeParams(t *testing.T) {
	l2, data := sixPoints(t)
	tree, err := New[float32](l2, data, DefaultOptions, nil, nil)
	require.NoError(t, err)

	t.Run("CurrentValuesAreNoOp", func(t *testing.T) {
		q := query(t, l2, []float32{0.1, 0.1})
		before, err := tree.KNNQuery(q, 3)
		require.NoError(t, err)

		require.NoError(t, tree.SetQueryTimeParams(params.Params{
			"alphaLeft": "1", "alphaRight": "1", "expLeft": "1", "expRight": "1",
		}))

		after, err := tree.KNNQuery(q, 3)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("UpdatesOracle", func(t *testing.T) {
		require.NoError(t, tree.SetQueryTimeParams(params.Params{"alphaLeft": "2.0"}))
		assert.Equal(t, 2.0, tree.Oracle().AlphaLeft())
	})

	t.Run("UnknownKey", func(t *testing.T) {
		err := tree.SetQueryTimeParams(params.Params{"bogus": "1"})
		var cfg *index.ConfigError
		assert.ErrorAs(t, err, &cfg)
	})
}

func TestSnapshot(t *testing.T) {
	l2 := space.NewL2()
	rng := testutil.NewRNG(99)
	data, err := testutil.MakeDataset[float32](l2, rng.UniformVectors(150, 4))
	require.NoError(t, err)

	opts := DefaultOptions
	opts.BucketSize = 8
	tree, err := New[float32](l2, data, opts, nil, nil)
	require.NoError(t, err)

	q, err := l2.CreateObjFromVector(0, -1, rng.UniformVectors(1, 4)[0])
	require.NoError(t, err)
	want, err := tree.KNNQuery(q, 5)
	require.NoError(t, err)

	t.Run("RoundTrip", func(t *testing.T) {
		restored, err := FromSnapshot[float32](l2, data, tree.Snapshot())
		require.NoError(t, err)

		got, err := restored.KNNQuery(q, 5)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("GobRoundTrip", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, gob.NewEncoder(&buf).Encode(tree.Snapshot()))

		var snap Snapshot[float32]
		require.NoError(t, gob.NewDecoder(&buf).Decode(&snap))

		restored, err := FromSnapshot[float32](l2, data, &snap)
		require.NoError(t, err)

		got, err := restored.KNNQuery(q, 5)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("UnknownObject", func(t *testing.T) {
		snap := tree.Snapshot()
		_, err := FromSnapshot[float32](l2, data[:10], snap)
		assert.Error(t, err)
	})
}

// skewed is an asymmetric, non-triangle distance: the plain L2 distance
// inflated by a direction-dependent factor.
type skewed struct{ *space.Lp }

func (s skewed) Distance(a, b *space.Object) float32 {
	d := s.Lp.Distance(a, b)
	if a.ID() < b.ID() {
		return d * 1.5
	}
	return d
}

func (s skewed) Name() string { return "skewed_l2" }

func TestNonMetricDegradesGracefully(t *testing.T) {
	base := space.NewL2()
	rng := testutil.NewRNG(5)
	data, err := testutil.MakeDataset[float32](base, rng.UniformVectors(200, 4))
	require.NoError(t, err)

	sp := skewed{base}
	opts := DefaultOptions
	opts.BucketSize = 5
	tree, err := New[float32](sp, data, opts, nil, nil)
	require.NoError(t, err)

	// No exactness claim: just full leaves and complete, well-formed
	// answers.
	seen := map[uint32]int{}
	forEachObject(tree.root, func(o *space.Object) { seen[o.ID()]++ })
	assert.Len(t, seen, len(data))

	q, err := base.CreateObjFromVector(0, -1, rng.UniformVectors(1, 4)[0])
	require.NoError(t, err)
	res, err := tree.KNNQuery(q, 10)
	require.NoError(t, err)
	assert.Len(t, res, 10)
	for i := 1; i < len(res); i++ {
		assert.LessOrEqual(t, res[i-1].Dist, res[i].Dist)
	}

	all, err := tree.KNNQuery(q, len(data))
	require.NoError(t, err)
	assert.Len(t, all, len(data))
	assert.False(t, math.IsNaN(float64(all[len(all)-1].Dist)))
}
