// Package space defines the object model and the distance protocol consumed
// by the index implementations.
//
// A Space pairs a distance function with a way to materialize objects from
// dense vectors. Distances may be asymmetric and need not obey the triangle
// inequality; the indexes treat them as opaque scalars.
package space

import (
	"sync/atomic"
)

// Dist is the set of scalar types a distance function may return.
// Pruning arithmetic is always carried out in float64 regardless of D.
type Dist interface {
	~int32 | ~float32 | ~float64
}

// Object is an immutable data point: a dataset-unique ID, an optional label
// (negative means missing) and an opaque payload.
type Object struct {
	id    uint32
	label int32
	data  []byte
}

// NewObject creates an object. The payload is not copied; callers must not
// mutate it afterwards.
func NewObject(id uint32, label int32, data []byte) *Object {
	return &Object{id: id, label: label, data: data}
}

// ID returns the dataset-unique identifier.
func (o *Object) ID() uint32 { return o.id }

// Label returns the object label; negative values mean "no label".
func (o *Object) Label() int32 { return o.label }

// Data returns the raw payload. Callers must not mutate it.
func (o *Object) Data() []byte { return o.data }

// DataLen returns the payload size in bytes.
func (o *Object) DataLen() int { return len(o.data) }

// DistObjectPair couples an object with its distance to some reference point.
type DistObjectPair[D Dist] struct {
	Dist D
	Obj  *Object
}

// Space exposes a distance function over objects plus object construction
// from dense vectors.
type Space[D Dist] interface {
	// Name identifies the space (e.g. "l2", "bit_hamming").
	Name() string

	// Distance computes d(a, b). It may be asymmetric.
	Distance(a, b *Object) D

	// CreateObjFromVector materializes an object from a dense vector.
	CreateObjFromVector(id uint32, label int32, values []float32) (*Object, error)
}

// Counted wraps a Space and counts distance evaluations. The counter is
// atomic so concurrent queries against one index are tallied correctly.
type Counted[D Dist] struct {
	Space[D]
	n atomic.Int64
}

// WithCounter wraps s with a distance-evaluation counter.
func WithCounter[D Dist](s Space[D]) *Counted[D] {
	return &Counted[D]{Space: s}
}

// Distance computes d(a, b) and increments the counter.
func (c *Counted[D]) Distance(a, b *Object) D {
	c.n.Add(1)
	return c.Space.Distance(a, b)
}

// Count returns the number of distance evaluations since the last Reset.
func (c *Counted[D]) Count() int64 { return c.n.Load() }

// Reset zeroes the counter.
func (c *Counted[D]) Reset() { c.n.Store(0) }
