package space

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLp(t *testing.T) {
	l2 := NewL2()

	a, err := l2.CreateObjFromVector(0, -1, []float32{0, 0})
	require.NoError(t, err)
	b, err := l2.CreateObjFromVector(1, -1, []float32{3, 4})
	require.NoError(t, err)

	t.Run("L2", func(t *testing.T) {
		assert.InDelta(t, 5.0, l2.Distance(a, b), 1e-6)
		assert.InDelta(t, 5.0, l2.Distance(b, a), 1e-6)
	})

	t.Run("L1", func(t *testing.T) {
		assert.InDelta(t, 7.0, NewL1().Distance(a, b), 1e-6)
	})

	t.Run("LInf", func(t *testing.T) {
		assert.InDelta(t, 4.0, NewLInf().Distance(a, b), 1e-6)
	})

	t.Run("ObjectAccessors", func(t *testing.T) {
		o, err := l2.CreateObjFromVector(7, 3, []float32{1, 2, 3})
		require.NoError(t, err)
		assert.Equal(t, uint32(7), o.ID())
		assert.Equal(t, int32(3), o.Label())
		assert.Equal(t, 12, o.DataLen())
		assert.Equal(t, []float32{1, 2, 3}, l2.Vector(o))
	})

	t.Run("EmptyVector", func(t *testing.T) {
		_, err := l2.CreateObjFromVector(0, -1, nil)
		assert.Error(t, err)
	})

	t.Run("UnknownName", func(t *testing.T) {
		_, err := NewLp("l7")
		assert.Error(t, err)
	})
}

func TestBitHamming(t *testing.T) {
	s := NewBitHamming()

	t.Run("Distance", func(t *testing.T) {
		a, err := s.CreateObjFromVector(0, -1, []float32{1, 0, 1, 0})
		require.NoError(t, err)
		b, err := s.CreateObjFromVector(1, -1, []float32{1, 1, 0, 0})
		require.NoError(t, err)

		assert.Equal(t, int32(2), s.Distance(a, b))
		assert.Equal(t, int32(0), s.Distance(a, a))
	})

	t.Run("FromBitSet", func(t *testing.T) {
		b := bitset.New(70)
		b.Set(0).Set(69)
		o, err := s.CreateObjFromBitSet(0, -1, b)
		require.NoError(t, err)
		assert.Equal(t, 16, o.DataLen()) // two packed words

		back := s.BitSet(o, 70)
		assert.Equal(t, uint(2), back.Count())
		assert.True(t, back.Test(69))
	})

	t.Run("RejectsNonBits", func(t *testing.T) {
		_, err := s.CreateObjFromVector(0, -1, []float32{0, 2})
		assert.Error(t, err)
	})
}

func TestSpearman(t *testing.T) {
	rho := NewSpearman(SpearmanRho)
	foot := NewSpearman(SpearmanFootrule)

	a, err := rho.CreateObjFromRanks(0, -1, []int32{0, 1, 2, 3})
	require.NoError(t, err)
	b, err := rho.CreateObjFromRanks(1, -1, []int32{3, 1, 0, 2})
	require.NoError(t, err)

	t.Run("Rho", func(t *testing.T) {
		// (0-3)^2 + 0 + (2-0)^2 + (3-2)^2 = 14
		assert.Equal(t, int32(14), rho.Distance(a, b))
	})

	t.Run("Footrule", func(t *testing.T) {
		assert.Equal(t, int32(6), foot.Distance(a, b))
	})

	t.Run("Identity", func(t *testing.T) {
		assert.Equal(t, int32(0), rho.Distance(a, a))
	})
}

func TestCounted(t *testing.T) {
	s := WithCounter[float32](NewL2())

	a, _ := s.CreateObjFromVector(0, -1, []float32{0, 0})
	b, _ := s.CreateObjFromVector(1, -1, []float32{1, 1})

	s.Distance(a, b)
	s.Distance(a, b)
	assert.Equal(t, int64(2), s.Count())

	s.Reset()
	assert.Equal(t, int64(0), s.Count())
}

func TestReadDataset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.txt")

	content := "# toy dataset\n1.0 2.0 3.0\nlabel:5 4.0,5.0,6.0\n\n7.0\t8.0\t9.0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	l2 := NewL2()
	data, err := l2.ReadDataset(path)
	require.NoError(t, err)
	require.Len(t, data, 3)

	assert.Equal(t, []float32{1, 2, 3}, l2.Vector(data[0]))
	assert.Equal(t, int32(-1), data[0].Label())

	assert.Equal(t, []float32{4, 5, 6}, l2.Vector(data[1]))
	assert.Equal(t, int32(5), data[1].Label())
	assert.Equal(t, uint32(1), data[1].ID())

	t.Run("DimensionMismatch", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.txt")
		require.NoError(t, os.WriteFile(bad, []byte("1 2\n1 2 3\n"), 0o644))
		_, err := l2.ReadDataset(bad)
		assert.Error(t, err)
	})
}
