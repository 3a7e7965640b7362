package projection

import (
	"math/rand"

	"github.com/hupe1980/metrigo/space"
)

// permProjection embeds objects as the rank vector of a fixed pivot set,
// emitted as float32 so the surrogate can be searched under an Lp distance.
// The permutation wrappers use the integer form directly via Permutation.
type permProjection[D space.Dist] struct {
	sp     space.Space[D]
	pivots []*space.Object
}

func newPermProjection[D space.Dist](sp space.Space[D], data []*space.Object, numPivot int, rng *rand.Rand) (*permProjection[D], error) {
	pivots, err := PermutationPivots[D](data, numPivot, rng)
	if err != nil {
		return nil, err
	}
	return &permProjection[D]{sp: sp, pivots: pivots}, nil
}

func (p *permProjection[D]) Kind() string   { return KindPermutation }
func (p *permProjection[D]) TargetDim() int { return len(p.pivots) }

func (p *permProjection[D]) Project(o *space.Object) ([]float32, error) {
	perm := Permutation(p.sp, p.pivots, o)
	out := make([]float32, len(perm))
	for i, r := range perm {
		out[i] = float32(r)
	}
	return out, nil
}
