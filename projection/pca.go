package projection

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/hupe1980/metrigo/space"
)

// pca projects dense vectors onto the top principal components of a
// training sample: y = Vᵀ (x - mean).
type pca[D space.Dist] struct {
	srcDim     int
	tgtDim     int
	mean       []float64
	components *mat.Dense // srcDim x tgtDim
}

var _ vectorProjector = (*pca[float32])(nil)

func newPCA[D space.Dist](sp space.Space[D], data []*space.Object, tgtDim, sampleSize int, pre *randomDense[D], rng *rand.Rand) (*pca[D], error) {
	sample := sampleObjects(data, sampleSize, rng)

	// Decode (and optionally pre-project) the training sample.
	vectors := make([][]float32, len(sample))
	for i, o := range sample {
		var (
			v   []float32
			err error
		)
		if pre != nil {
			v, err = pre.Project(o)
		} else {
			v, err = denseVector(o, sourceDim(data))
		}
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}

	srcDim := len(vectors[0])
	if tgtDim > srcDim {
		return nil, fmt.Errorf("projection: projDim %d exceeds source dimensionality %d", tgtDim, srcDim)
	}
	if len(vectors) < 2 {
		return nil, fmt.Errorf("projection: pca needs at least 2 training vectors")
	}
	if tgtDim > len(vectors) {
		return nil, fmt.Errorf("projection: projDim %d exceeds pca sample size %d", tgtDim, len(vectors))
	}

	mean := make([]float64, srcDim)
	for _, v := range vectors {
		for j, x := range v {
			mean[j] += float64(x)
		}
	}
	for j := range mean {
		mean[j] /= float64(len(vectors))
	}

	centered := mat.NewDense(len(vectors), srcDim, nil)
	for i, v := range vectors {
		for j, x := range v {
			centered.Set(i, j, float64(x)-mean[j])
		}
	}

	var svd mat.SVD
	if !svd.Factorize(centered, mat.SVDThinV) {
		return nil, fmt.Errorf("projection: pca svd failed to converge")
	}
	var v mat.Dense
	svd.VTo(&v)

	components := mat.NewDense(srcDim, tgtDim, nil)
	components.Copy(v.Slice(0, srcDim, 0, tgtDim))

	return &pca[D]{
		srcDim:     srcDim,
		tgtDim:     tgtDim,
		mean:       mean,
		components: components,
	}, nil
}

func (p *pca[D]) Kind() string   { return KindPCA }
func (p *pca[D]) TargetDim() int { return p.tgtDim }

func (p *pca[D]) Project(o *space.Object) ([]float32, error) {
	v, err := denseVector(o, p.srcDim)
	if err != nil {
		return nil, err
	}
	return p.projectVector(v)
}

func (p *pca[D]) projectVector(v []float32) ([]float32, error) {
	if len(v) != p.srcDim {
		return nil, fmt.Errorf("projection: vector dim %d, want %d", len(v), p.srcDim)
	}
	centered := make([]float64, p.srcDim)
	for j, x := range v {
		centered[j] = float64(x) - p.mean[j]
	}

	var y mat.VecDense
	y.MulVec(p.components.T(), mat.NewVecDense(p.srcDim, centered))

	out := make([]float32, p.tgtDim)
	for i := range out {
		out[i] = float32(y.AtVec(i))
	}
	return out, nil
}

func sampleObjects(data []*space.Object, n int, rng *rand.Rand) []*space.Object {
	if n >= len(data) {
		return data
	}
	idx := rng.Perm(len(data))[:n]
	out := make([]*space.Object, n)
	for i, j := range idx {
		out[i] = data[j]
	}
	return out
}
