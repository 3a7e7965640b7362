package metrigo

import (
	"encoding/gob"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/hupe1980/metrigo/index/vptree"
	"github.com/hupe1980/metrigo/space"
)

// Snapshot format: an 8-byte magic followed by a zstd-compressed gob stream
// of the flattened tree. Snapshots store structure (pivot IDs, medians,
// oracle parameters), not payloads: loading reattaches to the original
// dataset and reproduces query behavior exactly.
const snapshotMagic = "MGOVPT01"

// SaveVPTree writes a snapshot of a built VP-tree to w.
func SaveVPTree[D space.Dist](w io.Writer, t *vptree.VPTree[D]) error {
	if _, err := io.WriteString(w, snapshotMagic); err != nil {
		return fmt.Errorf("write snapshot header: %w", err)
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if err := gob.NewEncoder(zw).Encode(t.Snapshot()); err != nil {
		zw.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return zw.Close()
}

// LoadVPTree reads a snapshot from r and reattaches it to data, which must
// be the dataset the tree was built over.
func LoadVPTree[D space.Dist](r io.Reader, sp space.Space[D], data []*space.Object) (*vptree.VPTree[D], error) {
	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read snapshot header: %w", err)
	}
	if string(magic) != snapshotMagic {
		return nil, fmt.Errorf("not a vptree snapshot (bad magic %q)", magic)
	}

	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	var snap vptree.Snapshot[D]
	if err := gob.NewDecoder(zr).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return vptree.FromSnapshot(sp, data, &snap)
}
