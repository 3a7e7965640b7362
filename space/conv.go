package space

import (
	"unsafe"
)

// Payload codecs. Payloads are little-endian native slices reinterpreted in
// place when alignment allows, so a leaf scan touches each byte once.

// Float32sToBytes reinterprets a float32 slice as its backing bytes.
// The result aliases v.
func Float32sToBytes(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*4)
}

// BytesToFloat32s reinterprets a payload as float32s. Falls back to a copy
// when the payload is not 4-byte aligned.
func BytesToFloat32s(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	if uintptr(unsafe.Pointer(&b[0]))%4 == 0 {
		return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
	}
	out := make([]float32, len(b)/4)
	copy(Float32sToBytes(out), b)
	return out
}

// Int32sToBytes reinterprets an int32 slice as its backing bytes.
func Int32sToBytes(v []int32) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*4)
}

// BytesToInt32s reinterprets a payload as int32s, copying if misaligned.
func BytesToInt32s(b []byte) []int32 {
	if len(b) == 0 {
		return nil
	}
	if uintptr(unsafe.Pointer(&b[0]))%4 == 0 {
		return unsafe.Slice((*int32)(unsafe.Pointer(&b[0])), len(b)/4)
	}
	out := make([]int32, len(b)/4)
	copy(Int32sToBytes(out), b)
	return out
}

// Uint64sToBytes reinterprets a uint64 slice as its backing bytes.
func Uint64sToBytes(v []uint64) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*8)
}

// BytesToUint64s reinterprets a payload as uint64s, copying if misaligned.
func BytesToUint64s(b []byte) []uint64 {
	if len(b) == 0 {
		return nil
	}
	if uintptr(unsafe.Pointer(&b[0]))%8 == 0 {
		return unsafe.Slice((*uint64)(unsafe.Pointer(&b[0])), len(b)/8)
	}
	out := make([]uint64, len(b)/8)
	copy(Uint64sToBytes(out), b)
	return out
}
