package projvptree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/metrigo/index"
	"github.com/hupe1980/metrigo/params"
	"github.com/hupe1980/metrigo/projection"
	"github.com/hupe1980/metrigo/space"
	"github.com/hupe1980/metrigo/testutil"
)

func dataset(t *testing.T, n, dim int) (*space.Lp, []*space.Object) {
	t.Helper()
	l2 := space.NewL2()
	data, err := testutil.MakeDataset[float32](l2, testutil.NewRNG(21).UniformVectors(n, dim))
	require.NoError(t, err)
	return l2, data
}

func TestOptionsFromParams(t *testing.T) {
	t.Run("Full", func(t *testing.T) {
		m := params.NewManager(params.Params{
			"projType": "rand", "projDim": "8", "intermDim": "16",
			"projSpaceType": "l1", "knnAmp": "10",
			"bucketSize": "20", "alphaLeft": "2",
		})
		opts, err := OptionsFromParams(m)
		require.NoError(t, err)
		require.NoError(t, m.CheckUnclaimed())

		assert.Equal(t, projection.KindRandomDense, opts.ProjKind)
		assert.Equal(t, 8, opts.ProjDim)
		assert.Equal(t, 16, opts.IntermDim)
		assert.Equal(t, "l1", opts.ProjSpace)
		assert.Equal(t, 10, opts.KNNAmp)
		assert.Equal(t, 0.0, opts.DBScanFrac)
		assert.Equal(t, 20, opts.Tree.BucketSize)
		assert.Equal(t, 2.0, opts.Oracle.AlphaLeft())
	})

	t.Run("MissingProjDim", func(t *testing.T) {
		m := params.NewManager(params.Params{"projType": "rand"})
		_, err := OptionsFromParams(m)
		assert.Error(t, err)
	})

	t.Run("MutuallyExclusive", func(t *testing.T) {
		m := params.NewManager(params.Params{
			"projType": "rand", "projDim": "8",
			"dbScanFrac": "0.1", "knnAmp": "5",
		})
		_, err := OptionsFromParams(m)

		var cfg *index.ConfigError
		assert.ErrorAs(t, err, &cfg)
	})

	t.Run("FracOutOfRange", func(t *testing.T) {
		m := params.NewManager(params.Params{
			"projType": "rand", "projDim": "8", "dbScanFrac": "1.5",
		})
		_, err := OptionsFromParams(m)
		assert.Error(t, err)
	})
}

func TestFullScanIsExact(t *testing.T) {
	l2, data := dataset(t, 200, 16)

	opts := DefaultOptions
	opts.ProjKind = projection.KindRandomDense
	opts.ProjDim = 8
	opts.DBScanFrac = 1.0
	tree, err := New[float32](l2, data, opts)
	require.NoError(t, err)

	q, err := l2.CreateObjFromVector(0, -1, testutil.NewRNG(7).UniformVectors(1, 16)[0])
	require.NoError(t, err)

	got, err := tree.KNNQuery(q, 10)
	require.NoError(t, err)
	want := testutil.BruteForceKNN[float32](l2, data, q, 10)

	require.Len(t, got, 10)
	for i := range got {
		assert.InDelta(t, want[i].Dist, got[i].Dist, 1e-6, "rank %d", i)
	}
}

func TestApproximateRecall(t *testing.T) {
	l2, data := dataset(t, 500, 16)

	for _, kind := range []string{projection.KindRandomDense, projection.KindPCA, projection.KindFastMap, projection.KindPermutation} {
		t.Run(kind, func(t *testing.T) {
			opts := DefaultOptions
			opts.ProjKind = kind
			opts.ProjDim = 8
			opts.DBScanFrac = 0.2
			tree, err := New[float32](l2, data, opts)
			require.NoError(t, err)

			rng := testutil.NewRNG(31)
			hits, total := 0, 0
			for range 10 {
				q, err := l2.CreateObjFromVector(0, -1, rng.UniformVectors(1, 16)[0])
				require.NoError(t, err)

				got, err := tree.KNNQuery(q, 5)
				require.NoError(t, err)
				require.LessOrEqual(t, len(got), 5)

				want := testutil.BruteForceKNN[float32](l2, data, q, 5)
				wantIDs := map[uint32]bool{}
				for _, r := range want {
					wantIDs[r.ID] = true
				}
				for _, r := range got {
					if wantIDs[r.ID] {
						hits++
					}
				}
				total += len(want)
			}
			// A 20% scan of a low-dimensional uniform cloud recovers a
			// solid share of the true neighbors for every projection kind.
			assert.Greater(t, float64(hits)/float64(total), 0.5)
		})
	}
}

func TestKNNAmp(t *testing.T) {
	l2, data := dataset(t, 100, 8)

	opts := DefaultOptions
	opts.ProjDim = 4
	opts.DBScanFrac = 0
	opts.KNNAmp = 20
	tree, err := New[float32](l2, data, opts)
	require.NoError(t, err)

	q, err := l2.CreateObjFromVector(0, -1, testutil.NewRNG(1).UniformVectors(1, 8)[0])
	require.NoError(t, err)

	res, err := tree.KNNQuery(q, 3)
	require.NoError(t, err)
	assert.Len(t, res, 3)

	t.Run("RangeNeedsDBScanFrac", func(t *testing.T) {
		_, err := tree.RangeQuery(q, 0.5)
		var unsupported *index.UnsupportedOperationError
		assert.ErrorAs(t, err, &unsupported)
	})
}

func TestRangeQuery(t *testing.T) {
	l2, data := dataset(t, 200, 8)

	opts := DefaultOptions
	opts.ProjDim = 4
	opts.DBScanFrac = 1.0
	tree, err := New[float32](l2, data, opts)
	require.NoError(t, err)

	q, err := l2.CreateObjFromVector(0, -1, testutil.NewRNG(2).UniformVectors(1, 8)[0])
	require.NoError(t, err)

	got, err := tree.RangeQuery(q, 0.6)
	require.NoError(t, err)
	want := testutil.BruteForceRange[float32](l2, data, q, 0.6)
	assert.Equal(t, len(want), len(got))
	for _, r := range got {
		assert.LessOrEqual(t, r.Dist, float32(0.6))
	}
}

func TestSetQueryTimeParams(t *testing.T) {
	l2, data := dataset(t, 100, 8)

	opts := DefaultOptions
	opts.ProjDim = 4
	tree, err := New[float32](l2, data, opts)
	require.NoError(t, err)

	t.Run("SwitchToKNNAmp", func(t *testing.T) {
		require.NoError(t, tree.SetQueryTimeParams(params.Params{"knnAmp": "15"}))
		assert.Equal(t, 15, tree.knnAmp)
		assert.Equal(t, 0.0, tree.dbScanFrac)
	})

	t.Run("ForwardsOracleParams", func(t *testing.T) {
		require.NoError(t, tree.SetQueryTimeParams(params.Params{"alphaLeft": "3"}))
		assert.Equal(t, 3.0, tree.Surrogate().Oracle().AlphaLeft())
	})

	t.Run("RejectsBoth", func(t *testing.T) {
		err := tree.SetQueryTimeParams(params.Params{"dbScanFrac": "0.1", "knnAmp": "2"})
		var cfg *index.ConfigError
		assert.ErrorAs(t, err, &cfg)
	})

	t.Run("UnknownKey", func(t *testing.T) {
		err := tree.SetQueryTimeParams(params.Params{"bogus": "1"})
		assert.Error(t, err)
	})
}

func TestDenseSourceRequired(t *testing.T) {
	// A bit-Hamming source space has no dense vectors to multiply; dense
	// projections must be rejected at build time.
	bh := space.NewBitHamming()
	var data []*space.Object
	for i := range 20 {
		o, err := bh.CreateObjFromVector(uint32(i), -1, []float32{float32(i % 2), 1, 0, float32((i / 2) % 2)})
		require.NoError(t, err)
		data = append(data, o)
	}

	opts := DefaultOptions
	opts.ProjKind = projection.KindRandomDense
	opts.ProjDim = 2
	_, err := New[int32](bh, data, opts)
	assert.Error(t, err)
}
