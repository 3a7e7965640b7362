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

// PermutationVPTree indexes rank vectors under a Spearman distance.
type PermutationVPTree[D space.Dist] struct {
	*base[D]
	surSpace *space.Spearman
}

var _ index.Index[float32] = (*PermutationVPTree[float32])(nil)

// New builds the pivot set, computes every object's permutation and indexes
// the permutations with a VP-tree under the configured rank correlation.
func New[D space.Dist](sp space.Space[D], data []*space.Object, opts Options) (*PermutationVPTree[D], error) {
	b, err := newBase(sp, data, opts)
	if err != nil {
		return nil, err
	}

	var kind space.SpearmanKind
	switch opts.RankCorrel {
	case "", "rho":
		kind = space.SpearmanRho
	case "footrule":
		kind = space.SpearmanFootrule
	default:
		return nil, index.NewConfigError("unknown rankCorrel %q (want rho or footrule)", opts.RankCorrel)
	}
	surSpace := space.NewSpearman(kind)

	if opts.Logger != nil {
		opts.Logger.Info("building perm_vptree",
			"numPivot", opts.NumPivot,
			"rankCorrel", opts.RankCorrel,
			"dbScanFrac", opts.DBScanFrac,
			"knnAmp", opts.KNNAmp,
		)
	}

	surData, err := projectAll(data, func(o *space.Object) (*space.Object, error) {
		return surSpace.CreateObjFromRanks(o.ID(), o.Label(), projection.Permutation(sp, b.pivots, o))
	})
	if err != nil {
		return nil, err
	}

	if opts.Logger != nil {
		rng := rand.New(rand.NewSource(opts.Seed))
		mean, sigma, idim := projection.IntrinsicDimensionality[int32](surSpace, surData, 1000, rng)
		opts.Logger.Info("permutation dataset statistics", "mean", mean, "sigma", sigma, "intrinsicDim", idim)
	}

	b.surrogate, err = vptree.New(surSpace, surData, opts.Tree, opts.Oracle, nil)
	if err != nil {
		return nil, err
	}

	return &PermutationVPTree[D]{base: b, surSpace: surSpace}, nil
}

// Name identifies the method.
func (t *PermutationVPTree[D]) Name() string { return "perm_vptree" }

func (t *PermutationVPTree[D]) surrogateQuery(q *space.Object) (*space.Object, error) {
	return t.surSpace.CreateObjFromRanks(0, -1, projection.Permutation(t.sp, t.pivots, q))
}

// KNNQuery searches the permutation surrogate and re-ranks candidates with
// the original distance.
func (t *PermutationVPTree[D]) KNNQuery(q *space.Object, k int) ([]index.Result[D], error) {
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
func (t *PermutationVPTree[D]) RangeQuery(q *space.Object, r D) ([]index.Result[D], error) {
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
func (t *PermutationVPTree[D]) SetQueryTimeParams(p params.Params) error {
	return t.setQueryTimeParams(p)
}

// Surrogate exposes the underlying tree (the tuner retunes its oracle).
func (t *PermutationVPTree[D]) Surrogate() *vptree.VPTree[int32] { return t.surrogate }
