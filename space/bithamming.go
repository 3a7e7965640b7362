package space

import (
	"fmt"
	"math/bits"

	"github.com/bits-and-blooms/bitset"
)

// BitHamming is the space of fixed-width bit vectors under Hamming distance.
// Payloads are packed 64-bit words; the distance is the popcount of the XOR.
type BitHamming struct{}

var _ Space[int32] = (*BitHamming)(nil)

// NewBitHamming creates the bit-Hamming space.
func NewBitHamming() *BitHamming { return &BitHamming{} }

// Name returns the space identifier.
func (s *BitHamming) Name() string { return "bit_hamming" }

// Distance counts differing bits between two packed bit vectors.
func (s *BitHamming) Distance(a, b *Object) int32 {
	x := BytesToUint64s(a.Data())
	y := BytesToUint64s(b.Data())

	var n int
	for i := range x {
		n += bits.OnesCount64(x[i] ^ y[i])
	}
	return int32(n)
}

// CreateObjFromVector materializes a bit vector from 0/1 values.
func (s *BitHamming) CreateObjFromVector(id uint32, label int32, values []float32) (*Object, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("space: empty bit vector for object %d", id)
	}
	b := bitset.New(uint(len(values)))
	for i, v := range values {
		switch v {
		case 0:
		case 1:
			b.Set(uint(i))
		default:
			return nil, fmt.Errorf("space: bit vector value %v at position %d is not 0 or 1", v, i)
		}
	}
	return s.CreateObjFromBitSet(id, label, b)
}

// CreateObjFromBitSet materializes an object from a bitset. The set's packed
// words become the payload; the set is not retained.
func (s *BitHamming) CreateObjFromBitSet(id uint32, label int32, b *bitset.BitSet) (*Object, error) {
	words := make([]uint64, len(b.Words()))
	copy(words, b.Words())
	if len(words) == 0 {
		return nil, fmt.Errorf("space: empty bitset for object %d", id)
	}
	return NewObject(id, label, Uint64sToBytes(words)), nil
}

// BitSet decodes a payload back into a bitset of width nbits.
func (s *BitHamming) BitSet(o *Object, nbits uint) *bitset.BitSet {
	return bitset.FromWithLength(nbits, BytesToUint64s(o.Data()))
}
