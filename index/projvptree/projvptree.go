// Package projvptree implements the projection VP-tree: objects are
// embedded into a low-dimensional dense surrogate space, a VP-tree over the
// surrogate produces a candidate list, and candidates are re-ranked with
// the original distance.
package projvptree

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

// Parameter keys understood by this wrapper.
const (
	ParamProjType      = "projType"
	ParamProjDim       = "projDim"
	ParamIntermDim     = "intermDim"
	ParamProjSpaceType = "projSpaceType"
	ParamDBScanFrac    = "dbScanFrac"
	ParamKNNAmp        = "knnAmp"
)

// DefaultDBScanFrac is the candidate fraction used when neither dbScanFrac
// nor knnAmp is configured.
const DefaultDBScanFrac = 0.05

// Options configures the wrapper.
type Options struct {
	// ProjKind and ProjDim select the projection ("rand", "randsparse",
	// "pca", "fastmap", "perm"). ProjDim is required.
	ProjKind string
	ProjDim  int

	// IntermDim optionally pre-reduces dense sources.
	IntermDim int

	// ProjSpace is the surrogate Lp space name ("l1", "l2", "linf").
	ProjSpace string

	// DBScanFrac sizes the candidate list as a dataset fraction;
	// KNNAmp sizes it as a multiple of k. At most one may be positive.
	DBScanFrac float64
	KNNAmp     int

	// Tree configures the surrogate VP-tree.
	Tree vptree.Options

	// Oracle is the surrogate tree's pruning oracle; nil for identity.
	Oracle *pruner.Pruner

	// Seed drives the projection; the surrogate tree uses Tree.Seed.
	Seed int64

	// Logger receives INFO-level build information. Nil disables logging.
	Logger *slog.Logger
}

// DefaultOptions are the wrapper defaults.
var DefaultOptions = Options{
	ProjKind:   projection.KindRandomDense,
	ProjSpace:  "l2",
	DBScanFrac: DefaultDBScanFrac,
	Tree:       vptree.DefaultOptions,
	Seed:       1,
}

// OptionsFromParams builds Options from the parameter surface. Leftover
// keys configure the surrogate tree and its oracle.
func OptionsFromParams(m *params.Manager) (Options, error) {
	opts := DefaultOptions

	var err error
	if opts.ProjDim, err = m.RequireInt(ParamProjDim); err != nil {
		return opts, err
	}
	if opts.ProjKind, err = m.RequireString(ParamProjType); err != nil {
		return opts, err
	}
	if opts.IntermDim, err = m.Int(ParamIntermDim, 0); err != nil {
		return opts, err
	}
	opts.ProjSpace = m.String(ParamProjSpaceType, opts.ProjSpace)

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

// scanParams reads dbScanFrac/knnAmp, enforcing mutual exclusion.
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

// ProjectionVPTree searches a projected surrogate space and re-ranks in the
// original one.
type ProjectionVPTree[D space.Dist] struct {
	sp        space.Space[D]
	byID      map[uint32]*space.Object
	size      int
	proj      projection.Projection[D]
	surSpace  *space.Lp
	surrogate *vptree.VPTree[float32]

	dbScanFrac float64
	knnAmp     int
}

var _ index.Index[float32] = (*ProjectionVPTree[float32])(nil)

// New builds the projection, projects every dataset object and indexes the
// surrogate vectors with a VP-tree.
func New[D space.Dist](sp space.Space[D], data []*space.Object, opts Options) (*ProjectionVPTree[D], error) {
	if len(data) == 0 {
		return nil, index.ErrEmptyDataset
	}
	if opts.DBScanFrac > 0 && opts.KNNAmp > 0 {
		return nil, index.NewConfigError("dbScanFrac and knnAmp are mutually exclusive")
	}

	surSpace, err := space.NewLp(opts.ProjSpace)
	if err != nil {
		return nil, index.WrapConfigError(err)
	}

	proj, err := projection.New(sp, data, projection.Options{
		Kind:      opts.ProjKind,
		TargetDim: opts.ProjDim,
		IntermDim: opts.IntermDim,
		Seed:      opts.Seed,
	})
	if err != nil {
		return nil, index.WrapConfigError(err)
	}

	if opts.Logger != nil {
		opts.Logger.Info("building proj_vptree",
			"projType", opts.ProjKind,
			"projDim", opts.ProjDim,
			"intermDim", opts.IntermDim,
			"projSpaceType", opts.ProjSpace,
			"dbScanFrac", opts.DBScanFrac,
			"knnAmp", opts.KNNAmp,
		)
	}

	t := &ProjectionVPTree[D]{
		sp:         sp,
		byID:       byID(data),
		size:       len(data),
		proj:       proj,
		surSpace:   surSpace,
		dbScanFrac: opts.DBScanFrac,
		knnAmp:     opts.KNNAmp,
	}

	surData, err := t.projectAll(data, surSpace)
	if err != nil {
		return nil, err
	}

	if opts.Logger != nil {
		rng := rand.New(rand.NewSource(opts.Seed))
		mean, sigma, idim := projection.IntrinsicDimensionality[float32](surSpace, surData, 1000, rng)
		opts.Logger.Info("surrogate dataset statistics", "mean", mean, "sigma", sigma, "intrinsicDim", idim)
	}

	t.surrogate, err = vptree.New(surSpace, surData, opts.Tree, opts.Oracle, nil)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// projectAll projects the dataset in parallel, preserving IDs.
func (t *ProjectionVPTree[D]) projectAll(data []*space.Object, surSpace *space.Lp) ([]*space.Object, error) {
	surData := make([]*space.Object, len(data))

	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, o := range data {
		g.Go(func() error {
			v, err := t.proj.Project(o)
			if err != nil {
				return err
			}
			s, err := surSpace.CreateObjFromVector(o.ID(), o.Label(), v)
			if err != nil {
				return err
			}
			surData[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return surData, nil
}

func byID(data []*space.Object) map[uint32]*space.Object {
	m := make(map[uint32]*space.Object, len(data))
	for _, o := range data {
		m[o.ID()] = o
	}
	return m
}

// Name identifies the method.
func (t *ProjectionVPTree[D]) Name() string { return "proj_vptree" }

// scanQty sizes the candidate list for a query.
func (t *ProjectionVPTree[D]) scanQty(k int) int {
	if t.knnAmp > 0 {
		return min(t.knnAmp*k, t.size)
	}
	return int(math.Ceil(t.dbScanFrac * float64(t.size)))
}

// candidates runs the surrogate search and returns the candidate ID set.
func (t *ProjectionVPTree[D]) candidates(q *space.Object, cand int) (*roaring.Bitmap, error) {
	v, err := t.proj.Project(q)
	if err != nil {
		return nil, err
	}
	sq, err := t.surSpace.CreateObjFromVector(0, -1, v)
	if err != nil {
		return nil, err
	}

	res, err := t.surrogate.KNNQuery(sq, cand)
	if err != nil {
		return nil, err
	}

	ids := roaring.New()
	for _, r := range res {
		ids.Add(r.ID)
	}
	return ids, nil
}

// KNNQuery searches the surrogate for knnAmp*k (or dbScanFrac*N)
// candidates and re-ranks them with the original distance.
func (t *ProjectionVPTree[D]) KNNQuery(q *space.Object, k int) ([]index.Result[D], error) {
	if k < 1 {
		return nil, index.ErrInvalidK
	}
	cand := t.scanQty(k)
	if cand < 1 {
		return nil, index.NewConfigError("candidate list is empty; set knnAmp > 0 or a larger dbScanFrac")
	}

	ids, err := t.candidates(q, cand)
	if err != nil {
		return nil, err
	}

	col := queue.NewKNN[D](k)
	t.rerank(q, ids, col)
	return index.ResultsFromItems(col.Results()), nil
}

// RangeQuery requires dbScanFrac: the candidate list must not depend on k.
func (t *ProjectionVPTree[D]) RangeQuery(q *space.Object, r D) ([]index.Result[D], error) {
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

	ids, err := t.candidates(q, cand)
	if err != nil {
		return nil, err
	}

	col := queue.NewRange[D](r)
	t.rerank(q, ids, col)
	return index.ResultsFromItems(col.Results()), nil
}

func (t *ProjectionVPTree[D]) rerank(q *space.Object, ids *roaring.Bitmap, col queue.Collector[D]) {
	it := ids.Iterator()
	for it.HasNext() {
		o := t.byID[it.Next()]
		col.Add(t.sp.Distance(q, o), o)
	}
}

// SetQueryTimeParams adjusts dbScanFrac/knnAmp and forwards oracle
// parameters to the surrogate tree.
func (t *ProjectionVPTree[D]) SetQueryTimeParams(p params.Params) error {
	m := params.NewManager(p)

	frac, amp, err := scanParams(m, t.dbScanFrac)
	if err != nil {
		return err
	}
	if m.Has(ParamKNNAmp) {
		t.dbScanFrac, t.knnAmp = 0, amp
	} else if m.Has(ParamDBScanFrac) {
		t.dbScanFrac, t.knnAmp = frac, 0
	}

	rest := m.ExtractExcept(ParamDBScanFrac, ParamKNNAmp)
	if len(rest) > 0 {
		return t.surrogate.SetQueryTimeParams(rest)
	}
	return nil
}

// Surrogate exposes the underlying tree (the tuner retunes its oracle).
func (t *ProjectionVPTree[D]) Surrogate() *vptree.VPTree[float32] { return t.surrogate }
