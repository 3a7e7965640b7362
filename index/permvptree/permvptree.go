// Package permvptree implements the permutation VP-tree and its binarized
// variant: objects are represented by how they rank a fixed pivot set, the
// rank vectors (or their thresholded bit vectors) are indexed with a
// VP-tree, and surrogate candidates are re-ranked in the original space.
package permvptree

import (
	"log/slog"
	"math"
	"math/rand"
	"runtime"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/metrigo/index"
	"github.com/hupe1980/metrigo/index/vptree"
	"github.com/hupe1980/metrigo/params"
	"github.com/hupe1980/metrigo/projection"
	"github.com/hupe1980/metrigo/pruner"
	"github.com/hupe1980/metrigo/queue"
	"github.com/hupe1980/metrigo/space"
)

// Parameter keys understood by the permutation wrappers.
const (
	ParamNumPivot     = "numPivot"
	ParamRankCorrel   = "rankCorrel"
	ParamBinThreshold = "binThreshold"
	ParamDBScanFrac   = "dbScanFrac"
	ParamKNNAmp       = "knnAmp"
)

// Defaults mirror the usual permutation-index settings.
const (
	DefaultNumPivot   = 16
	DefaultDBScanFrac = 0.05
)

// Options configures both wrapper variants.
type Options struct {
	// NumPivot is the pivot set size (the permutation length).
	NumPivot int

	// RankCorrel selects the surrogate distance for the non-binary
	// variant: "rho" or "footrule".
	RankCorrel string

	// BinThreshold is the binarization rank threshold tau; bit i is set
	// iff pivot i ranks below tau. 0 means NumPivot/2. Binary variant
	// only.
	BinThreshold int

	// DBScanFrac sizes the candidate list as a dataset fraction;
	// KNNAmp sizes it as a multiple of k. At most one may be positive.
	DBScanFrac float64
	KNNAmp     int

	// Tree configures the surrogate VP-tree.
	Tree vptree.Options

	// Oracle is the surrogate tree's pruning oracle; nil for identity.
	Oracle *pruner.Pruner

	// Seed drives pivot selection.
	Seed int64

	// Logger receives INFO-level build information. Nil disables logging.
	Logger *slog.Logger
}

// DefaultOptions are the wrapper defaults.
var DefaultOptions = Options{
	NumPivot:   DefaultNumPivot,
	RankCorrel: "rho",
	DBScanFrac: DefaultDBScanFrac,
	Tree:       vptree.DefaultOptions,
	Seed:       1,
}

// OptionsFromParams builds Options from the parameter surface. Leftover
// keys configure the surrogate tree and its oracle.
func OptionsFromParams(m *params.Manager) (Options, error) {
	opts := DefaultOptions

	var err error
	if opts.NumPivot, err = m.Int(ParamNumPivot, opts.NumPivot); err != nil {
		return opts, err
	}
	if opts.NumPivot < 1 {
		return opts, index.NewConfigError("numPivot must be >= 1 (got %d)", opts.NumPivot)
	}
	opts.RankCorrel = m.String(ParamRankCorrel, opts.RankCorrel)
	if opts.BinThreshold, err = m.Int(ParamBinThreshold, 0); err != nil {
		return opts, err
	}
	if opts.DBScanFrac, opts.KNNAmp, err = scanParams(m, opts.DBScanFrac); err != nil {
		return opts, err
	}
	if opts.Tree, err = vptree.OptionsFromParams(m); err != nil {
		return opts, err
	}
	if opts.Oracle, err = pruner.FromParams(m); err != nil {
		return opts, err
	}
	return opts, nil
}

func scanParams(m *params.Manager, defFrac float64) (float64, int, error) {
	if m.Has(ParamDBScanFrac) && m.Has(ParamKNNAmp) {
		return 0, 0, index.NewConfigError("dbScanFrac and knnAmp are mutually exclusive")
	}

	frac, err := m.Float(ParamDBScanFrac, 0)
	if err != nil {
		return 0, 0, err
	}
	amp, err := m.Int(ParamKNNAmp, 0)
	if err != nil {
		return 0, 0, err
	}

	if m.Has(ParamKNNAmp) {
		if amp < 1 {
			return 0, 0, index.NewConfigError("knnAmp must be >= 1 (got %d)", amp)
		}
		return 0, amp, nil
	}
	if m.Has(ParamDBScanFrac) {
		if frac < 0 || frac > 1 {
			return 0, 0, index.NewConfigError("dbScanFrac must be in [0,1] (got %g)", frac)
		}
		return frac, 0, nil
	}
	return defFrac, 0, nil
}

// base carries everything the two variants share.
type base[D space.Dist] struct {
	sp     space.Space[D]
	byID   map[uint32]*space.Object
	size   int
	pivots []*space.Object

	surrogate *vptree.VPTree[int32]

	dbScanFrac float64
	knnAmp     int
}

func (b *base[D]) scanQty(k int) int {
	if b.knnAmp > 0 {
		return min(b.knnAmp*k, b.size)
	}
	return int(math.Ceil(b.dbScanFrac * float64(b.size)))
}

func (b *base[D]) rerank(q *space.Object, ids *roaring.Bitmap, col queue.Collector[D]) {
	it := ids.Iterator()
	for it.HasNext() {
		o := b.byID[it.Next()]
		col.Add(b.sp.Distance(q, o), o)
	}
}

// surrogateCandidates runs a cand-NN search in the surrogate tree.
func (b *base[D]) surrogateCandidates(sq *space.Object, cand int) (*roaring.Bitmap, error) {
	res, err := b.surrogate.KNNQuery(sq, cand)
	if err != nil {
		return nil, err
	}
	ids := roaring.New()
	for _, r := range res {
		ids.Add(r.ID)
	}
	return ids, nil
}

func (b *base[D]) setQueryTimeParams(p params.Params) error {
	m := params.NewManager(p)

	frac, amp, err := scanParams(m, b.dbScanFrac)
	if err != nil {
		return err
	}
	if m.Has(ParamKNNAmp) {
		b.dbScanFrac, b.knnAmp = 0, amp
	} else if m.Has(ParamDBScanFrac) {
		b.dbScanFrac, b.knnAmp = frac, 0
	}

	rest := m.ExtractExcept(ParamDBScanFrac, ParamKNNAmp)
	if len(rest) > 0 {
		return b.surrogate.SetQueryTimeParams(rest)
	}
	return nil
}

func newBase[D space.Dist](sp space.Space[D], data []*space.Object, opts Options) (*base[D], error) {
	if len(data) == 0 {
		return nil, index.ErrEmptyDataset
	}
	if opts.NumPivot < 1 || opts.NumPivot > len(data) {
		return nil, index.NewConfigError("numPivot must be in [1, %d] (got %d)", len(data), opts.NumPivot)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	pivots, err := projection.PermutationPivots[D](data, opts.NumPivot, rng)
	if err != nil {
		return nil, index.WrapConfigError(err)
	}

	return &base[D]{
		sp:         sp,
		byID:       byID(data),
		size:       len(data),
		pivots:     pivots,
		dbScanFrac: opts.DBScanFrac,
		knnAmp:     opts.KNNAmp,
	}, nil
}

func byID(data []*space.Object) map[uint32]*space.Object {
	m := make(map[uint32]*space.Object, len(data))
	for _, o := range data {
		m[o.ID()] = o
	}
	return m
}

// projectAll materializes surrogate objects in parallel, preserving IDs.
func projectAll(data []*space.Object, project func(o *space.Object) (*space.Object, error)) ([]*space.Object, error) {
	out := make([]*space.Object, len(data))

	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, o := range data {
		g.Go(func() error {
			s, err := project(o)
			if err != nil {
				return err
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
