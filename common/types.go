// package common contains common types and helpers that are used throughout this core. They are not interface-wrapped structs, just plain
// helpers that express commonly used data operations.
package common

import (
	"encoding/binary"
	"math"
)

// PutFloat32 writes a float32 into dst at the given byte offset in little-endian
// order, matching the byte layout GPU buffers expect for 32-bit floats.
//
// Parameters:
//   - dst: destination byte slice, must have at least offset+4 bytes
//   - offset: byte offset to write at
//   - v: the value to write
func PutFloat32(dst []byte, offset int, v float32) {
	binary.LittleEndian.PutUint32(dst[offset:], math.Float32bits(v))
}

// PutUint32 writes a uint32 into dst at the given byte offset in little-endian order.
//
// Parameters:
//   - dst: destination byte slice, must have at least offset+4 bytes
//   - offset: byte offset to write at
//   - v: the value to write
func PutUint32(dst []byte, offset int, v uint32) {
	binary.LittleEndian.PutUint32(dst[offset:], v)
}

// Float32At reads a little-endian float32 from src at the given byte offset.
//
// Parameters:
//   - src: source byte slice, must have at least offset+4 bytes
//   - offset: byte offset to read from
//
// Returns:
//   - float32: the decoded value
func Float32At(src []byte, offset int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(src[offset:]))
}

// Uint32At reads a little-endian uint32 from src at the given byte offset.
//
// Parameters:
//   - src: source byte slice, must have at least offset+4 bytes
//   - offset: byte offset to read from
//
// Returns:
//   - uint32: the decoded value
func Uint32At(src []byte, offset int) uint32 {
	return binary.LittleEndian.Uint32(src[offset:])
}

// AlignUp rounds v up to the next multiple of align. align must be a power of two.
//
// Parameters:
//   - v: the value to align
//   - align: the alignment, a power of two
//
// Returns:
//   - int: the smallest multiple of align that is >= v
func AlignUp(v, align int) int {
	return (v + align - 1) &^ (align - 1)
}
