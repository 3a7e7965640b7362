package space

import (
	"fmt"
	"math"
)

// Rank correlation spaces over permutation vectors. Payloads are int32 rank
// sequences of equal length. The footrule is a metric on permutations; rho,
// computed as the plain sum of squared displacements, does not obey the
// triangle inequality. The indexes rely on neither property.

// SpearmanKind selects the rank correlation statistic.
type SpearmanKind int

const (
	// SpearmanRho sums squared rank displacements.
	SpearmanRho SpearmanKind = iota
	// SpearmanFootrule sums absolute rank displacements.
	SpearmanFootrule
)

// Spearman is the space of permutation vectors under a rank correlation
// distance.
type Spearman struct {
	kind SpearmanKind
}

var _ Space[int32] = (*Spearman)(nil)

// NewSpearman creates a rank correlation space.
func NewSpearman(kind SpearmanKind) *Spearman { return &Spearman{kind: kind} }

// Name returns the space identifier.
func (s *Spearman) Name() string {
	if s.kind == SpearmanFootrule {
		return "spearman_footrule"
	}
	return "spearman_rho"
}

// Distance computes the rank correlation distance between two permutations.
func (s *Spearman) Distance(a, b *Object) int32 {
	x := BytesToInt32s(a.Data())
	y := BytesToInt32s(b.Data())

	var sum int32
	if s.kind == SpearmanFootrule {
		for i := range x {
			d := x[i] - y[i]
			if d < 0 {
				d = -d
			}
			sum += d
		}
		return sum
	}
	for i := range x {
		d := x[i] - y[i]
		sum += d * d
	}
	return sum
}

// CreateObjFromVector materializes a permutation object. Values must be
// non-negative integers.
func (s *Spearman) CreateObjFromVector(id uint32, label int32, values []float32) (*Object, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("space: empty permutation for object %d", id)
	}
	ranks := make([]int32, len(values))
	for i, v := range values {
		r := math.Trunc(float64(v))
		if r != float64(v) || r < 0 {
			return nil, fmt.Errorf("space: permutation value %v at position %d is not a non-negative integer", v, i)
		}
		ranks[i] = int32(r)
	}
	return s.CreateObjFromRanks(id, label, ranks)
}

// CreateObjFromRanks materializes a permutation object from rank values.
// The slice is copied.
func (s *Spearman) CreateObjFromRanks(id uint32, label int32, ranks []int32) (*Object, error) {
	if len(ranks) == 0 {
		return nil, fmt.Errorf("space: empty permutation for object %d", id)
	}
	r := make([]int32, len(ranks))
	copy(r, ranks)
	return NewObject(id, label, Int32sToBytes(r)), nil
}

// Ranks decodes a permutation payload.
func (s *Spearman) Ranks(o *Object) []int32 { return BytesToInt32s(o.Data()) }
