// Package testutil provides seeded random data generation and brute-force
// reference searches for tests and for the auto-tuner's ground truth.
package testutil

import (
	"math/rand"
	"sync"

	"github.com/hupe1980/metrigo/index"
	"github.com/hupe1980/metrigo/queue"
	"github.com/hupe1980/metrigo/space"
)

// RNG is a thread-safe seeded random number generator.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates an RNG with the given seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 { return r.seed }

// Reset rewinds the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewSource(r.seed))
}

// Intn returns a non-negative pseudo-random number in [0, n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0.0, 1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// NormFloat64 returns a standard-normal pseudo-random number.
func (r *RNG) NormFloat64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.NormFloat64()
}

// UniformVectors generates num vectors with values in [0, 1).
// A single backing array holds all values.
func (r *RNG) UniformVectors(num, dim int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dim)
	vectors := make([][]float32, num)
	for i := range num {
		vec := data[i*dim : (i+1)*dim]
		for j := range vec {
			vec[j] = r.rand.Float32()
		}
		vectors[i] = vec
	}
	return vectors
}

// GaussianVectors generates num vectors with i.i.d. standard-normal values.
func (r *RNG) GaussianVectors(num, dim int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dim)
	vectors := make([][]float32, num)
	for i := range num {
		vec := data[i*dim : (i+1)*dim]
		for j := range vec {
			vec[j] = float32(r.rand.NormFloat64())
		}
		vectors[i] = vec
	}
	return vectors
}

// MakeDataset materializes vectors as objects with sequential IDs.
func MakeDataset[D space.Dist](sp space.Space[D], vectors [][]float32) ([]*space.Object, error) {
	data := make([]*space.Object, len(vectors))
	for i, v := range vectors {
		o, err := sp.CreateObjFromVector(uint32(i), -1, v)
		if err != nil {
			return nil, err
		}
		data[i] = o
	}
	return data, nil
}

// BruteForceKNN is the exact k-NN reference: a linear scan through data.
func BruteForceKNN[D space.Dist](sp space.Space[D], data []*space.Object, q *space.Object, k int) []index.Result[D] {
	col := queue.NewKNN[D](k)
	for _, o := range data {
		col.Add(sp.Distance(q, o), o)
	}
	return index.ResultsFromItems(col.Results())
}

// BruteForceRange is the exact range-query reference.
func BruteForceRange[D space.Dist](sp space.Space[D], data []*space.Object, q *space.Object, r D) []index.Result[D] {
	col := queue.NewRange[D](r)
	for _, o := range data {
		col.Add(sp.Distance(q, o), o)
	}
	return index.ResultsFromItems(col.Results())
}
