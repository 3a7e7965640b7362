package vptree

import (
	"fmt"

	"github.com/hupe1980/metrigo/index"
	"github.com/hupe1980/metrigo/params"
	"github.com/hupe1980/metrigo/pruner"
	"github.com/hupe1980/metrigo/space"
)

// Snapshot is a gob-friendly flattening of a built tree. It stores object
// IDs, medians and the oracle configuration, not payloads: restoring needs
// the original dataset and yields a tree with identical query behavior.
type Snapshot[D space.Dist] struct {
	BucketSize  int
	ChunkBucket bool
	Seed        int64
	Oracle      map[string]string
	Nodes       []SnapshotNode[D]
}

// SnapshotNode is one flattened node. Leaf is true for bucket nodes; Left
// and Right index into Snapshot.Nodes for internal nodes.
type SnapshotNode[D space.Dist] struct {
	Leaf    bool
	PivotID uint32
	Median  D
	Left    int32
	Right   int32
	Bucket  []uint32
}

// Snapshot flattens the tree in preorder.
func (t *VPTree[D]) Snapshot() *Snapshot[D] {
	snap := &Snapshot[D]{
		BucketSize:  t.opts.BucketSize,
		ChunkBucket: t.opts.ChunkBucket,
		Seed:        t.opts.Seed,
		Oracle:      t.oracle.Params(),
	}
	flatten(t.root, snap)
	return snap
}

func flatten[D space.Dist](n *node[D], snap *Snapshot[D]) int32 {
	at := int32(len(snap.Nodes))
	snap.Nodes = append(snap.Nodes, SnapshotNode[D]{})

	if n.isLeaf() {
		ids := make([]uint32, len(n.bucket))
		for i, o := range n.bucket {
			ids[i] = o.ID()
		}
		snap.Nodes[at] = SnapshotNode[D]{Leaf: true, Bucket: ids}
		return at
	}

	sn := SnapshotNode[D]{
		PivotID: n.pivot.ID(),
		Median:  n.median,
	}
	sn.Left = flatten(n.left, snap)
	sn.Right = flatten(n.right, snap)
	snap.Nodes[at] = sn
	return at
}

// FromSnapshot reattaches a snapshot to its dataset. Objects are looked up
// by ID; a snapshot referencing IDs absent from data is rejected.
func FromSnapshot[D space.Dist](sp space.Space[D], data []*space.Object, snap *Snapshot[D]) (*VPTree[D], error) {
	if len(data) == 0 {
		return nil, index.ErrEmptyDataset
	}
	if len(snap.Nodes) == 0 {
		return nil, fmt.Errorf("vptree: snapshot has no nodes")
	}

	oracle, err := pruner.FromParams(params.NewManager(params.Params(snap.Oracle)))
	if err != nil {
		return nil, err
	}

	byID := make(map[uint32]*space.Object, len(data))
	for _, o := range data {
		byID[o.ID()] = o
	}

	t := &VPTree[D]{
		sp: sp,
		opts: Options{
			BucketSize:  snap.BucketSize,
			ChunkBucket: snap.ChunkBucket,
			Seed:        snap.Seed,
		},
		oracle: oracle,
		size:   len(data),
	}
	t.factory = func(int, *space.Object, []space.DistObjectPair[D]) *pruner.Pruner {
		return t.oracle
	}

	t.root, err = t.restore(snap, 0, byID)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (t *VPTree[D]) restore(snap *Snapshot[D], at int32, byID map[uint32]*space.Object) (*node[D], error) {
	if at < 0 || int(at) >= len(snap.Nodes) {
		return nil, fmt.Errorf("vptree: snapshot node index %d out of range", at)
	}
	sn := snap.Nodes[at]

	if sn.Leaf {
		objs := make([]*space.Object, len(sn.Bucket))
		for i, id := range sn.Bucket {
			o, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("vptree: snapshot references unknown object %d", id)
			}
			objs[i] = o
		}
		return t.newLeaf(objs), nil
	}

	pivot, ok := byID[sn.PivotID]
	if !ok {
		return nil, fmt.Errorf("vptree: snapshot references unknown pivot %d", sn.PivotID)
	}

	n := &node[D]{
		pivot:  pivot,
		median: sn.Median,
		oracle: t.oracle,
	}
	var err error
	if n.left, err = t.restore(snap, sn.Left, byID); err != nil {
		return nil, err
	}
	if n.right, err = t.restore(snap, sn.Right, byID); err != nil {
		return nil, err
	}
	return n, nil
}
