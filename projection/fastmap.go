package projection

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/hupe1980/metrigo/space"
)

// fastMap is the classic FastMap embedding: each axis is defined by a pivot
// pair (a, b) and the coordinate of x is
//
//	(d(a,x)² + d(a,b)² - d(b,x)²) / (2 d(a,b))
//
// computed in the residual space of the previous axes, i.e. with
// d'²(x,y) = d(x,y)² - Σ_j (x_j - y_j)² over already-assigned coordinates.
type fastMap[D space.Dist] struct {
	sp     space.Space[D]
	tgtDim int
	axes   []fastMapAxis
}

type fastMapAxis struct {
	a, b   *space.Object
	aCoord []float32 // coordinates of a along previous axes
	bCoord []float32
	dab    float64 // residual d(a, b) for this axis; > 0
}

func newFastMap[D space.Dist](sp space.Space[D], data []*space.Object, tgtDim, sampleSize int, rng *rand.Rand) (*fastMap[D], error) {
	sample := sampleObjects(data, sampleSize, rng)
	if len(sample) < 2 {
		return nil, fmt.Errorf("projection: fastmap needs at least 2 objects")
	}

	fm := &fastMap[D]{sp: sp, tgtDim: tgtDim}

	// Partial coordinates of the sample, grown one axis at a time.
	coords := make([][]float32, len(sample))
	for i := range coords {
		coords[i] = make([]float32, 0, tgtDim)
	}

	for axis := 0; axis < tgtDim; axis++ {
		// Pivot pair heuristic: random seed object, a = farthest from it,
		// b = farthest from a, all in the residual space.
		seed := rng.Intn(len(sample))
		ai := fm.farthest(sample, coords, seed)
		bi := fm.farthest(sample, coords, ai)

		dab2 := fm.residualSq(sample[ai], coords[ai], sample[bi], coords[bi])
		if dab2 <= 0 {
			// The sample is exhausted along remaining axes; pad with zeros.
			for i := range coords {
				coords[i] = append(coords[i], 0)
			}
			fm.axes = append(fm.axes, fastMapAxis{})
			continue
		}
		dab := math.Sqrt(dab2)

		ax := fastMapAxis{
			a:      sample[ai],
			b:      sample[bi],
			aCoord: append([]float32(nil), coords[ai]...),
			bCoord: append([]float32(nil), coords[bi]...),
			dab:    dab,
		}
		fm.axes = append(fm.axes, ax)

		for i, o := range sample {
			c := fm.coordinate(ax, o, coords[i])
			coords[i] = append(coords[i], c)
		}
	}
	return fm, nil
}

func (p *fastMap[D]) Kind() string   { return KindFastMap }
func (p *fastMap[D]) TargetDim() int { return p.tgtDim }

func (p *fastMap[D]) Project(o *space.Object) ([]float32, error) {
	coord := make([]float32, 0, p.tgtDim)
	for _, ax := range p.axes {
		if ax.dab == 0 {
			coord = append(coord, 0)
			continue
		}
		coord = append(coord, p.coordinate(ax, o, coord))
	}
	return coord, nil
}

// coordinate computes the FastMap coordinate of o along ax, given o's
// coordinates on the previous axes.
func (p *fastMap[D]) coordinate(ax fastMapAxis, o *space.Object, prev []float32) float32 {
	dax2 := p.residualSq(ax.a, ax.aCoord, o, prev)
	dbx2 := p.residualSq(ax.b, ax.bCoord, o, prev)
	return float32((dax2 + ax.dab*ax.dab - dbx2) / (2 * ax.dab))
}

// residualSq is the squared distance between x and y minus the contribution
// of the already-assigned coordinates. Clamped at zero: non-metric
// distances can drive the recurrence negative.
func (p *fastMap[D]) residualSq(x *space.Object, xc []float32, y *space.Object, yc []float32) float64 {
	d := float64(p.sp.Distance(x, y))
	r := d * d
	n := min(len(xc), len(yc))
	for j := range n {
		diff := float64(xc[j] - yc[j])
		r -= diff * diff
	}
	if r < 0 {
		return 0
	}
	return r
}

// farthest returns the index of the sample object with the largest residual
// distance from sample[from].
func (p *fastMap[D]) farthest(sample []*space.Object, coords [][]float32, from int) int {
	best, bestD := from, -1.0
	for i := range sample {
		if i == from {
			continue
		}
		d := p.residualSq(sample[from], coords[from], sample[i], coords[i])
		if d > bestD {
			best, bestD = i, d
		}
	}
	return best
}
