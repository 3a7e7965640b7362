package projection

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/hupe1980/metrigo/space"
)

// randomDense projects dense vectors through an i.i.d. Gaussian matrix.
type randomDense[D space.Dist] struct {
	srcDim int
	tgtDim int
	matrix *mat.Dense // tgtDim x srcDim
}

var _ vectorProjector = (*randomDense[float32])(nil)

func newRandomDense[D space.Dist](srcDim, tgtDim int, rng *rand.Rand) (*randomDense[D], error) {
	if srcDim < 1 {
		return nil, errNotDenseSource(srcDim)
	}
	vals := make([]float64, tgtDim*srcDim)
	for i := range vals {
		vals[i] = rng.NormFloat64()
	}
	return &randomDense[D]{
		srcDim: srcDim,
		tgtDim: tgtDim,
		matrix: mat.NewDense(tgtDim, srcDim, vals),
	}, nil
}

func (p *randomDense[D]) Kind() string   { return KindRandomDense }
func (p *randomDense[D]) TargetDim() int { return p.tgtDim }

func (p *randomDense[D]) Project(o *space.Object) ([]float32, error) {
	v, err := denseVector(o, p.srcDim)
	if err != nil {
		return nil, err
	}
	return p.projectVector(v)
}

func (p *randomDense[D]) projectVector(v []float32) ([]float32, error) {
	x := mat.NewVecDense(p.srcDim, toFloat64s(v))
	var y mat.VecDense
	y.MulVec(p.matrix, x)

	out := make([]float32, p.tgtDim)
	for i := range out {
		out[i] = float32(y.AtVec(i))
	}
	return out, nil
}

// randomSparse is the Achlioptas-style sparse random projection: each cell
// is sqrt(3)*{+1, -1} with probability 1/6 each, 0 otherwise. Rows store
// only their nonzero index/value pairs.
type randomSparse[D space.Dist] struct {
	srcDim int
	tgtDim int
	rows   []sparseRow
}

type sparseRow struct {
	idx []int32
	val []float32
}

var _ vectorProjector = (*randomSparse[float32])(nil)

func newRandomSparse[D space.Dist](srcDim, tgtDim int, rng *rand.Rand) (*randomSparse[D], error) {
	if srcDim < 1 {
		return nil, errNotDenseSource(srcDim)
	}
	scale := float32(math.Sqrt(3))
	rows := make([]sparseRow, tgtDim)
	for r := range rows {
		var row sparseRow
		for c := range srcDim {
			switch rng.Intn(6) {
			case 0:
				row.idx = append(row.idx, int32(c))
				row.val = append(row.val, scale)
			case 1:
				row.idx = append(row.idx, int32(c))
				row.val = append(row.val, -scale)
			}
		}
		rows[r] = row
	}
	return &randomSparse[D]{srcDim: srcDim, tgtDim: tgtDim, rows: rows}, nil
}

func (p *randomSparse[D]) Kind() string   { return KindRandomSparse }
func (p *randomSparse[D]) TargetDim() int { return p.tgtDim }

func (p *randomSparse[D]) Project(o *space.Object) ([]float32, error) {
	v, err := denseVector(o, p.srcDim)
	if err != nil {
		return nil, err
	}
	return p.projectVector(v)
}

func (p *randomSparse[D]) projectVector(v []float32) ([]float32, error) {
	out := make([]float32, p.tgtDim)
	for r, row := range p.rows {
		var sum float32
		for i, c := range row.idx {
			sum += row.val[i] * v[c]
		}
		out[r] = sum
	}
	return out, nil
}

func toFloat64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func errNotDenseSource(dim int) error {
	return &NotDenseSourceError{Dim: dim}
}

// NotDenseSourceError indicates a dense-source projection over a space
// whose payloads are not dense float32 vectors.
type NotDenseSourceError struct {
	Dim int
}

func (e *NotDenseSourceError) Error() string {
	return "projection: source space does not hold dense vectors"
}
