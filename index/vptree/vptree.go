// Package vptree implements a vantage-point tree over an arbitrary space,
// with subtree pruning delegated to a per-node oracle.
//
// The tree partitions objects by their distance to a randomly chosen pivot:
// objects within the median distance go left, the rest go right. At query
// time the oracle decides, from the query-pivot distance and the current
// pruning radius, which subtrees can be skipped. With the identity oracle
// and a metric distance the search is exact; relaxed oracles trade recall
// for fewer distance computations.
package vptree

import (
	"log/slog"
	"math/rand"

	"github.com/hupe1980/metrigo/index"
	"github.com/hupe1980/metrigo/params"
	"github.com/hupe1980/metrigo/pruner"
	"github.com/hupe1980/metrigo/queue"
	"github.com/hupe1980/metrigo/space"
)

// Parameter keys understood at build time.
const (
	ParamBucketSize  = "bucketSize"
	ParamChunkBucket = "chunkBucket"
)

// DefaultBucketSize is the leaf capacity used when none is configured.
const DefaultBucketSize = 50

// OracleFactory yields the pruning oracle for an internal node, given the
// node's depth, its pivot and the pivot-to-object distances of the node's
// remaining objects.
type OracleFactory[D space.Dist] func(level int, pivot *space.Object, dists []space.DistObjectPair[D]) *pruner.Pruner

// Options configures tree construction.
type Options struct {
	// BucketSize is the leaf capacity. A node with at most BucketSize
	// objects becomes a leaf.
	BucketSize int

	// ChunkBucket packs leaf payloads into one contiguous buffer for
	// cache-friendly scans. Requires fixed-size payloads within a bucket,
	// which holds for all spaces in this module.
	ChunkBucket bool

	// Seed drives pivot selection. Two builds over the same dataset with
	// the same seed produce identical trees.
	Seed int64

	// Logger receives INFO-level build information. Nil disables logging.
	Logger *slog.Logger
}

// DefaultOptions are the construction defaults.
var DefaultOptions = Options{
	BucketSize:  DefaultBucketSize,
	ChunkBucket: true,
	Seed:        1,
}

// OptionsFromParams applies "bucketSize" and "chunkBucket" on top of
// DefaultOptions.
func OptionsFromParams(m *params.Manager) (Options, error) {
	opts := DefaultOptions

	bucketSize, err := m.Int(ParamBucketSize, opts.BucketSize)
	if err != nil {
		return opts, err
	}
	if bucketSize < 1 {
		return opts, index.NewConfigError("bucketSize must be >= 1 (got %d)", bucketSize)
	}
	opts.BucketSize = bucketSize

	opts.ChunkBucket, err = m.Bool(ParamChunkBucket, opts.ChunkBucket)
	if err != nil {
		return opts, err
	}
	return opts, nil
}

type node[D space.Dist] struct {
	// Internal nodes.
	pivot  *space.Object
	median D
	oracle *pruner.Pruner
	left   *node[D]
	right  *node[D]

	// Leaves. When chunking is on, bucket objects alias one contiguous
	// payload buffer.
	bucket []*space.Object
}

func (n *node[D]) isLeaf() bool { return n.bucket != nil }

// VPTree is a vantage-point tree. Immutable after New apart from
// SetQueryTimeParams, which swaps the pruning oracles.
type VPTree[D space.Dist] struct {
	sp      space.Space[D]
	root    *node[D]
	opts    Options
	oracle  *pruner.Pruner // the shared oracle handed out by the default factory
	factory OracleFactory[D]
	size    int
}

var _ index.Index[float32] = (*VPTree[float32])(nil)

// New builds a VP-tree over data. The dataset must be non-empty. oracle is
// the shared pruning oracle; pass nil for the identity oracle. factory
// overrides per-node oracle creation; pass nil to use the shared oracle at
// every node.
func New[D space.Dist](sp space.Space[D], data []*space.Object, opts Options, oracle *pruner.Pruner, factory OracleFactory[D]) (*VPTree[D], error) {
	if len(data) == 0 {
		return nil, index.ErrEmptyDataset
	}
	if opts.BucketSize < 1 {
		return nil, index.NewConfigError("bucketSize must be >= 1 (got %d)", opts.BucketSize)
	}
	if oracle == nil {
		oracle = pruner.Default()
	}

	t := &VPTree[D]{
		sp:     sp,
		opts:   opts,
		oracle: oracle,
		size:   len(data),
	}
	if factory == nil {
		factory = func(int, *space.Object, []space.DistObjectPair[D]) *pruner.Pruner {
			return t.oracle
		}
	}
	t.factory = factory

	if opts.Logger != nil {
		opts.Logger.Info("building vptree",
			"size", len(data),
			"bucketSize", opts.BucketSize,
			"chunkBucket", opts.ChunkBucket,
			"oracle", oracle.String(),
		)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	work := make([]*space.Object, len(data))
	copy(work, data)
	t.root = t.build(work, 0, rng)
	return t, nil
}

// Name identifies the method.
func (t *VPTree[D]) Name() string { return "vptree" }

// Size returns the number of indexed objects.
func (t *VPTree[D]) Size() int { return t.size }

// Oracle returns the shared pruning oracle.
func (t *VPTree[D]) Oracle() *pruner.Pruner { return t.oracle }

func (t *VPTree[D]) build(objs []*space.Object, level int, rng *rand.Rand) *node[D] {
	if len(objs) <= t.opts.BucketSize {
		return t.newLeaf(objs)
	}

	// Pull a random pivot out of the working set.
	idx := rng.Intn(len(objs))
	pivot := objs[idx]
	objs[idx] = objs[len(objs)-1]
	objs = objs[:len(objs)-1]

	dists := make([]space.DistObjectPair[D], len(objs))
	for i, o := range objs {
		dists[i] = space.DistObjectPair[D]{Dist: t.sp.Distance(pivot, o), Obj: o}
	}

	median := selectMedian(dists)
	left, right := partition(dists, median)

	n := &node[D]{
		pivot:  pivot,
		median: median,
		oracle: t.factory(level, pivot, dists),
	}
	n.left = t.build(left, level+1, rng)
	n.right = t.build(right, level+1, rng)
	return n
}

func (t *VPTree[D]) newLeaf(objs []*space.Object) *node[D] {
	bucket := make([]*space.Object, len(objs))
	copy(bucket, objs)

	if t.opts.ChunkBucket && len(bucket) > 0 {
		stride := bucket[0].DataLen()
		uniform := true
		for _, o := range bucket[1:] {
			if o.DataLen() != stride {
				uniform = false
				break
			}
		}
		if uniform && stride > 0 {
			// Rebind bucket members to slices of one contiguous buffer so a
			// leaf scan walks memory linearly.
			chunk := make([]byte, stride*len(bucket))
			for i, o := range bucket {
				dst := chunk[i*stride : (i+1)*stride]
				copy(dst, o.Data())
				bucket[i] = space.NewObject(o.ID(), o.Label(), dst)
			}
		}
	}
	return &node[D]{bucket: bucket}
}

// selectMedian returns the lower median distance via quickselect.
func selectMedian[D space.Dist](dists []space.DistObjectPair[D]) D {
	work := make([]space.DistObjectPair[D], len(dists))
	copy(work, dists)

	k := (len(work) - 1) / 2
	lo, hi := 0, len(work)-1
	for lo < hi {
		p := work[(lo+hi)/2].Dist
		i, j := lo, hi
		for i <= j {
			for work[i].Dist < p {
				i++
			}
			for work[j].Dist > p {
				j--
			}
			if i <= j {
				work[i], work[j] = work[j], work[i]
				i++
				j--
			}
		}
		if k <= j {
			hi = j
		} else if k >= i {
			lo = i
		} else {
			break
		}
	}
	return work[k].Dist
}

// partition splits objects into left (d <= median) and right (d > median)
// halves. Ties at the median go left until the halves are balanced, then
// spill right, keeping |left| - |right| <= 1.
func partition[D space.Dist](dists []space.DistObjectPair[D], median D) (left, right []*space.Object) {
	n := len(dists)
	targetLeft := (n + 1) / 2

	left = make([]*space.Object, 0, targetLeft)
	right = make([]*space.Object, 0, n-targetLeft)
	var ties []*space.Object

	for _, p := range dists {
		switch {
		case p.Dist < median:
			left = append(left, p.Obj)
		case p.Dist > median:
			right = append(right, p.Obj)
		default:
			ties = append(ties, p.Obj)
		}
	}
	for _, o := range ties {
		if len(left) < targetLeft {
			left = append(left, o)
		} else {
			right = append(right, o)
		}
	}
	return left, right
}

// KNNQuery returns the k approximately nearest neighbors of q.
func (t *VPTree[D]) KNNQuery(q *space.Object, k int) ([]index.Result[D], error) {
	if k < 1 {
		return nil, index.ErrInvalidK
	}
	col := queue.NewKNN[D](k)
	t.search(t.root, q, col)
	return index.ResultsFromItems(col.Results()), nil
}

// RangeQuery returns every indexed object within radius r of q.
func (t *VPTree[D]) RangeQuery(q *space.Object, r D) ([]index.Result[D], error) {
	col := queue.NewRange[D](r)
	t.search(t.root, q, col)
	return index.ResultsFromItems(col.Results()), nil
}

// Search runs the descent against a caller-supplied collector. Wrappers use
// this to drive surrogate searches.
func (t *VPTree[D]) Search(q *space.Object, col queue.Collector[D]) {
	t.search(t.root, q, col)
}

func (t *VPTree[D]) search(n *node[D], q *space.Object, col queue.Collector[D]) {
	if n.isLeaf() {
		for _, o := range n.bucket {
			col.Add(t.sp.Distance(q, o), o)
		}
		return
	}

	dq := t.sp.Distance(q, n.pivot)
	col.Add(dq, n.pivot)

	switch n.oracle.Classify(float64(dq), col.MaxDist(), float64(n.median)) {
	case pruner.VisitLeft:
		t.search(n.left, q, col)
	case pruner.VisitRight:
		t.search(n.right, q, col)
	default:
		// Descend into the subtree containing dq first; it is the more
		// likely home of close neighbors and tightens the radius early.
		if float64(dq) <= float64(n.median) {
			t.search(n.left, q, col)
			if n.oracle.Classify(float64(dq), col.MaxDist(), float64(n.median))&pruner.VisitRight != 0 {
				t.search(n.right, q, col)
			}
		} else {
			t.search(n.right, q, col)
			if n.oracle.Classify(float64(dq), col.MaxDist(), float64(n.median))&pruner.VisitLeft != 0 {
				t.search(n.left, q, col)
			}
		}
	}
}

// SetQueryTimeParams replaces the pruning oracles from "alphaLeft",
// "alphaRight", "expLeft", "expRight" and "prunerType". Keys left at their
// current values are a no-op; unknown keys are an error.
func (t *VPTree[D]) SetQueryTimeParams(p params.Params) error {
	merged := t.oracle.Params()
	for k, v := range p {
		merged[k] = v
	}

	m := params.NewManager(merged)
	oracle, err := pruner.FromParams(m)
	if err != nil {
		return index.WrapConfigError(err)
	}
	if err := m.CheckUnclaimed(); err != nil {
		return index.WrapConfigError(err)
	}

	t.SetOracle(oracle)
	return nil
}

// SetOracle installs a new shared pruning oracle at every node. Callers
// must not run queries concurrently with SetOracle.
func (t *VPTree[D]) SetOracle(oracle *pruner.Pruner) {
	t.oracle = oracle
	replaceOracles(t.root, oracle)
}

func replaceOracles[D space.Dist](n *node[D], oracle *pruner.Pruner) {
	if n == nil || n.isLeaf() {
		return
	}
	n.oracle = oracle
	replaceOracles(n.left, oracle)
	replaceOracles(n.right, oracle)
}

// Stats summarizes the tree shape.
type Stats struct {
	Objects  int
	Internal int
	Leaves   int
	MaxDepth int
}

// Stats walks the tree and reports its shape.
func (t *VPTree[D]) Stats() Stats {
	var s Stats
	s.Objects = t.size
	collectStats(t.root, 1, &s)
	return s
}

func collectStats[D space.Dist](n *node[D], depth int, s *Stats) {
	if depth > s.MaxDepth {
		s.MaxDepth = depth
	}
	if n.isLeaf() {
		s.Leaves++
		return
	}
	s.Internal++
	collectStats(n.left, depth+1, s)
	collectStats(n.right, depth+1, s)
}
