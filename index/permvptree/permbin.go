package permvptree

import (
	"math/rand"

	"github.com/hupe1980/metrigo/index"
	"github.com/hupe1980/metrigo/index/vptree"
	"github.com/hupe1980/metrigo/params"
	"github.com/hupe1980/metrigo/projection"
	"github.com/hupe1980/metrigo/queue"
	"github.com/hupe1980/metrigo/space"
)

// BinaryPermutationVPTree indexes thresholded permutations as packed bit
// vectors under Hamming distance. Bit i of an object's signature is set iff
// pivot i ranks below the binarization threshold.
type BinaryPermutationVPTree[D space.Dist] struct {
	*base[D]
	surSpace  *space.BitHamming
	threshold int32
}

var _ index.Index[float32] = (*BinaryPermutationVPTree[float32])(nil)

// NewBinary builds the pivot set, binarizes every object's permutation and
// indexes the bit vectors with a VP-tree.
func NewBinary[D space.Dist](sp space.Space[D], data []*space.Object, opts Options) (*BinaryPermutationVPTree[D], error) {
	b, err := newBase(sp, data, opts)
	if err != nil {
		return nil, err
	}

	threshold := int32(opts.BinThreshold)
	if threshold <= 0 {
		threshold = int32(opts.NumPivot / 2)
	}
	if threshold < 1 {
		return nil, index.NewConfigError("binThreshold must be >= 1 (got %d)", threshold)
	}

	surSpace := space.NewBitHamming()

	if opts.Logger != nil {
		opts.Logger.Info("building perm_bin_vptree",
			"numPivot", opts.NumPivot,
			"binThreshold", threshold,
			"dbScanFrac", opts.DBScanFrac,
			"knnAmp", opts.KNNAmp,
		)
	}

	surData, err := projectAll(data, func(o *space.Object) (*space.Object, error) {
		bits := projection.Binarize(projection.Permutation(sp, b.pivots, o), threshold)
		return surSpace.CreateObjFromBitSet(o.ID(), o.Label(), bits)
	})
	if err != nil {
		return nil, err
	}

	if opts.Logger != nil {
		rng := rand.New(rand.NewSource(opts.Seed))
		mean, sigma, idim := projection.IntrinsicDimensionality[int32](surSpace, surData, 1000, rng)
		opts.Logger.Info("binary permutation dataset statistics", "mean", mean, "sigma", sigma, "intrinsicDim", idim)
	}

	b.surrogate, err = vptree.New(surSpace, surData, opts.Tree, opts.Oracle, nil)
	if err != nil {
		return nil, err
	}

	return &BinaryPermutationVPTree[D]{base: b, surSpace: surSpace, threshold: threshold}, nil
}

// Name identifies the method.
func (t *BinaryPermutationVPTree[D]) Name() string { return "perm_bin_vptree" }

func (t *BinaryPermutationVPTree[D]) surrogateQuery(q *space.Object) (*space.Object, error) {
	bits := projection.Binarize(projection.Permutation(t.sp, t.pivots, q), t.threshold)
	return t.surSpace.CreateObjFromBitSet(0, -1, bits)
}

// KNNQuery searches the bit-vector surrogate and re-ranks candidates with
// the original distance.
func (t *BinaryPermutationVPTree[D]) KNNQuery(q *space.Object, k int) ([]index.Result[D], error) {
	if k < 1 {
		return nil, index.ErrInvalidK
	}
	cand := t.scanQty(k)
	if cand < 1 {
		return nil, index.NewConfigError("candidate list is empty; set knnAmp > 0 or a larger dbScanFrac")
	}

	sq, err := t.surrogateQuery(q)
	if err != nil {
		return nil, err
	}
	ids, err := t.surrogateCandidates(sq, cand)
	if err != nil {
		return nil, err
	}

	col := queue.NewKNN[D](k)
	t.rerank(q, ids, col)
	return index.ResultsFromItems(col.Results()), nil
}

// RangeQuery requires dbScanFrac, as the candidate count must not depend
// on k.
func (t *BinaryPermutationVPTree[D]) RangeQuery(q *space.Object, r D) ([]index.Result[D], error) {
	if t.dbScanFrac <= 0 {
		return nil, &index.UnsupportedOperationError{
			Method:    t.Name(),
			Operation: "range query",
			Reason:    "requires dbScanFrac > 0",
		}
	}
	cand := t.scanQty(0)
	if cand < 1 {
		return nil, index.NewConfigError("candidate list is empty; set a larger dbScanFrac")
	}

	sq, err := t.surrogateQuery(q)
	if err != nil {
		return nil, err
	}
	ids, err := t.surrogateCandidates(sq, cand)
	if err != nil {
		return nil, err
	}

	col := queue.NewRange[D](r)
	t.rerank(q, ids, col)
	return index.ResultsFromItems(col.Results()), nil
}

// SetQueryTimeParams adjusts dbScanFrac/knnAmp and forwards oracle
// parameters to the surrogate tree.
func (t *BinaryPermutationVPTree[D]) SetQueryTimeParams(p params.Params) error {
	return t.setQueryTimeParams(p)
}

// Surrogate exposes the underlying tree (the tuner retunes its oracle).
func (t *BinaryPermutationVPTree[D]) Surrogate() *vptree.VPTree[int32] { return t.surrogate }
