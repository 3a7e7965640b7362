// Package queue implements the per-query result collectors: a bounded k-NN
// max-heap and a fixed-radius range collector.
package queue

import (
	"math"
	"sort"

	"github.com/hupe1980/metrigo/space"
)

// Item is a collected result: an object and its distance to the query.
type Item[D space.Dist] struct {
	Dist D
	Obj  *space.Object
}

// Collector accumulates query results and exposes the current pruning
// radius. Implementations are not safe for concurrent use; each query owns
// its collector.
type Collector[D space.Dist] interface {
	// MaxDist returns the current pruning radius as float64
	// (+Inf while a k-NN collector is unfilled).
	MaxDist() float64

	// Add offers a candidate. The collector decides admission.
	Add(d D, obj *space.Object)

	// Results returns the collected items in ascending distance order.
	Results() []Item[D]
}

// KNN is a bounded max-heap of the k closest objects seen so far. The heap
// is array-backed and value-based; pushes never allocate once capacity k is
// reached.
type KNN[D space.Dist] struct {
	k     int
	items []Item[D]
}

var _ Collector[float32] = (*KNN[float32])(nil)

// NewKNN creates a collector for the k nearest neighbors. k must be > 0.
func NewKNN[D space.Dist](k int) *KNN[D] {
	return &KNN[D]{
		k:     k,
		items: make([]Item[D], 0, k),
	}
}

// Len returns the number of collected items.
func (q *KNN[D]) Len() int { return len(q.items) }

// Full reports whether k items have been collected.
func (q *KNN[D]) Full() bool { return len(q.items) == q.k }

// MaxDist returns the distance of the current k-th best item, or +Inf while
// the heap holds fewer than k items.
func (q *KNN[D]) MaxDist() float64 {
	if len(q.items) < q.k {
		return math.Inf(1)
	}
	return float64(q.items[0].Dist)
}

// Add admits obj if the heap is unfilled or d beats the current k-th best.
// Equal distances do not displace an incumbent, so tie-breaking is stable
// in insertion order.
func (q *KNN[D]) Add(d D, obj *space.Object) {
	if len(q.items) < q.k {
		q.items = append(q.items, Item[D]{Dist: d, Obj: obj})
		q.siftUp(len(q.items) - 1)
		return
	}
	if d >= q.items[0].Dist {
		return
	}
	q.items[0] = Item[D]{Dist: d, Obj: obj}
	q.siftDown(0)
}

// Results returns the collected neighbors in ascending distance order.
// The heap is left intact.
func (q *KNN[D]) Results() []Item[D] {
	out := make([]Item[D], len(q.items))
	copy(out, q.items)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Dist < out[j].Dist })
	return out
}

func (q *KNN[D]) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if q.items[i].Dist <= q.items[p].Dist {
			return
		}
		q.items[i], q.items[p] = q.items[p], q.items[i]
		i = p
	}
}

func (q *KNN[D]) siftDown(i int) {
	n := len(q.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		big := l
		if r := l + 1; r < n && q.items[r].Dist > q.items[l].Dist {
			big = r
		}
		if q.items[big].Dist <= q.items[i].Dist {
			return
		}
		q.items[i], q.items[big] = q.items[big], q.items[i]
		i = big
	}
}

// Range collects every object within a fixed radius.
type Range[D space.Dist] struct {
	radius D
	items  []Item[D]
}

var _ Collector[float32] = (*Range[float32])(nil)

// NewRange creates a collector admitting objects with d(q, x) <= radius.
func NewRange[D space.Dist](radius D) *Range[D] {
	return &Range[D]{radius: radius}
}

// MaxDist returns the fixed query radius.
func (q *Range[D]) MaxDist() float64 { return float64(q.radius) }

// Add admits obj iff d <= radius.
func (q *Range[D]) Add(d D, obj *space.Object) {
	if d <= q.radius {
		q.items = append(q.items, Item[D]{Dist: d, Obj: obj})
	}
}

// Len returns the number of collected items.
func (q *Range[D]) Len() int { return len(q.items) }

// Results returns the admitted objects in ascending distance order.
func (q *Range[D]) Results() []Item[D] {
	out := make([]Item[D], len(q.items))
	copy(out, q.items)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Dist < out[j].Dist })
	return out
}
