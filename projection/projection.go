// Package projection embeds objects of an arbitrary space into a surrogate
// vector space where approximate search is cheap.
//
// Real-valued projections (random dense, random sparse, PCA, FastMap)
// produce fixed-length float32 vectors searched under an Lp distance.
// Permutation projections rank a fixed pivot set by distance and are
// searched under a rank correlation distance, or binarized into packed bit
// vectors searched under Hamming distance.
package projection

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/bits-and-blooms/bitset"
	"gonum.org/v1/gonum/stat"

	"github.com/hupe1980/metrigo/space"
)

// Projection kinds accepted by New.
const (
	KindRandomDense  = "rand"
	KindRandomSparse = "randsparse"
	KindPCA          = "pca"
	KindFastMap      = "fastmap"
	KindPermutation  = "perm"
)

// Projection maps objects into a fixed-dimension float32 vector.
// Implementations are immutable after construction; Project is stable and
// safe for concurrent use.
type Projection[D space.Dist] interface {
	// Kind returns the projection kind string.
	Kind() string

	// TargetDim returns the surrogate dimensionality.
	TargetDim() int

	// Project computes the surrogate vector of o.
	Project(o *space.Object) ([]float32, error)
}

// Options configures projection construction.
type Options struct {
	// Kind selects the projection type.
	Kind string

	// TargetDim is the surrogate dimensionality. Required.
	TargetDim int

	// IntermDim, when > 0, first reduces dense sources with a random
	// projection to IntermDim before applying the main projection.
	IntermDim int

	// SampleSize caps how many objects PCA and FastMap learn from.
	// 0 means DefaultSampleSize.
	SampleSize int

	// Seed drives all random choices.
	Seed int64
}

// DefaultSampleSize caps the training sample for learned projections.
const DefaultSampleSize = 1000

// DenseSource is implemented by spaces whose objects are dense float32
// vectors. Dense-source projection kinds require it.
type DenseSource interface {
	Vector(o *space.Object) []float32
}

// New creates a projection of the given kind over data. Dense-source kinds
// (rand, randsparse, pca) require the source space, or the space wrapped by
// a *space.Counted, to implement DenseSource; fastmap and perm work with any
// distance.
func New[D space.Dist](sp space.Space[D], data []*space.Object, opts Options) (Projection[D], error) {
	if opts.TargetDim < 1 {
		return nil, fmt.Errorf("projection: projDim must be >= 1 (got %d)", opts.TargetDim)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("projection: empty dataset")
	}
	switch opts.Kind {
	case KindRandomDense, KindRandomSparse, KindPCA:
		src := any(sp)
		if c, ok := src.(*space.Counted[D]); ok {
			src = c.Space
		}
		if _, ok := src.(DenseSource); !ok {
			return nil, &NotDenseSourceError{Dim: sourceDim(data)}
		}
	}
	if opts.SampleSize == 0 {
		opts.SampleSize = DefaultSampleSize
	}

	rng := rand.New(rand.NewSource(opts.Seed))

	if opts.IntermDim > 0 && opts.Kind != KindFastMap && opts.Kind != KindPermutation {
		pre, err := newRandomDense[D](sourceDim(data), opts.IntermDim, rng)
		if err != nil {
			return nil, err
		}
		main, err := create(sp, data, opts, opts.IntermDim, pre, rng)
		if err != nil {
			return nil, err
		}
		mainVec, ok := main.(vectorProjector)
		if !ok {
			return nil, fmt.Errorf("projection: projType %q cannot follow an intermediate projection", opts.Kind)
		}
		return &composed[D]{pre: pre, main: main, mainVec: mainVec}, nil
	}

	return create(sp, data, opts, sourceDim(data), nil, rng)
}

func create[D space.Dist](sp space.Space[D], data []*space.Object, opts Options, srcDim int, pre *randomDense[D], rng *rand.Rand) (Projection[D], error) {
	switch opts.Kind {
	case KindRandomDense:
		return newRandomDense[D](srcDim, opts.TargetDim, rng)
	case KindRandomSparse:
		return newRandomSparse[D](srcDim, opts.TargetDim, rng)
	case KindPCA:
		return newPCA(sp, data, opts.TargetDim, opts.SampleSize, pre, rng)
	case KindFastMap:
		return newFastMap(sp, data, opts.TargetDim, opts.SampleSize, rng)
	case KindPermutation:
		return newPermProjection(sp, data, opts.TargetDim, rng)
	default:
		return nil, fmt.Errorf("projection: unknown projType %q", opts.Kind)
	}
}

// sourceDim infers the dense source dimensionality from the first payload.
func sourceDim(data []*space.Object) int {
	return data[0].DataLen() / 4
}

// composed applies an intermediate random projection before the main one.
type composed[D space.Dist] struct {
	pre     *randomDense[D]
	main    Projection[D]
	mainVec vectorProjector
}

func (c *composed[D]) Kind() string   { return c.main.Kind() }
func (c *composed[D]) TargetDim() int { return c.main.TargetDim() }

func (c *composed[D]) Project(o *space.Object) ([]float32, error) {
	mid, err := c.pre.Project(o)
	if err != nil {
		return nil, err
	}
	return c.mainVec.projectVector(mid)
}

// vectorProjector is satisfied by dense-source projections that can run on
// an already-decoded vector; composed uses it to chain stages.
type vectorProjector interface {
	projectVector(v []float32) ([]float32, error)
}

// denseVector decodes a dense float32 payload, rejecting payloads whose
// size is not a multiple of 4 bytes or that mismatch dim.
func denseVector(o *space.Object, dim int) ([]float32, error) {
	if o.DataLen() != dim*4 {
		return nil, fmt.Errorf("projection: object %d payload is %d bytes, want a dense vector of dim %d",
			o.ID(), o.DataLen(), dim)
	}
	return space.BytesToFloat32s(o.Data()), nil
}

// PermutationPivots draws m distinct pivots from data.
func PermutationPivots[D space.Dist](data []*space.Object, m int, rng *rand.Rand) ([]*space.Object, error) {
	if m < 1 {
		return nil, fmt.Errorf("projection: numPivot must be >= 1 (got %d)", m)
	}
	if m > len(data) {
		return nil, fmt.Errorf("projection: numPivot %d exceeds dataset size %d", m, len(data))
	}
	idx := rng.Perm(len(data))[:m]
	pivots := make([]*space.Object, m)
	for i, j := range idx {
		pivots[i] = data[j]
	}
	return pivots, nil
}

// Permutation ranks the pivot set by ascending distance from o.
// The result's i-th entry is the rank of pivot i; ties break by pivot
// position so the mapping is stable.
func Permutation[D space.Dist](sp space.Space[D], pivots []*space.Object, o *space.Object) []int32 {
	type pd struct {
		dist D
		pos  int
	}
	dists := make([]pd, len(pivots))
	for i, p := range pivots {
		dists[i] = pd{dist: sp.Distance(p, o), pos: i}
	}
	sort.SliceStable(dists, func(i, j int) bool { return dists[i].dist < dists[j].dist })

	perm := make([]int32, len(pivots))
	for rank, d := range dists {
		perm[d.pos] = int32(rank)
	}
	return perm
}

// Binarize thresholds a permutation: bit i is set iff the rank of pivot i
// is below thresh. The popcount is therefore min(thresh, len(perm)).
func Binarize(perm []int32, thresh int32) *bitset.BitSet {
	b := bitset.New(uint(len(perm)))
	for i, rank := range perm {
		if rank < thresh {
			b.Set(uint(i))
		}
	}
	return b
}

// IntrinsicDimensionality estimates mu^2 / (2 sigma^2) over sampled
// pairwise distances, the usual intrinsic-dimensionality proxy logged when
// a surrogate dataset is built.
func IntrinsicDimensionality[D space.Dist](sp space.Space[D], data []*space.Object, samples int, rng *rand.Rand) (mean, sigma, idim float64) {
	if len(data) < 2 || samples < 1 {
		return 0, 0, 0
	}
	dists := make([]float64, 0, samples)
	for range samples {
		i := rng.Intn(len(data))
		j := rng.Intn(len(data))
		if i == j {
			continue
		}
		dists = append(dists, float64(sp.Distance(data[i], data[j])))
	}
	if len(dists) < 2 {
		return 0, 0, 0
	}
	mean, std := stat.MeanStdDev(dists, nil)
	if std > 0 {
		idim = mean * mean / (2 * std * std)
	}
	return mean, std, idim
}
