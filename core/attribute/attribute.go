package attribute

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/go-gl/mathgl/mgl32"
)

// Type identifies the semantic GPU type of an attribute. Packing offsets and
// alignment are derived from it, so the set is deliberately closed.
type Type int

const (
	// TypeFloat is a single 32-bit float.
	TypeFloat Type = iota

	// TypeVec2 is a pair of 32-bit floats, 8-byte aligned.
	TypeVec2

	// TypeVec4 is a quadruple of 32-bit floats, 16-byte aligned.
	TypeVec4

	// TypeUint is a single unsigned 32-bit integer.
	TypeUint
)

// Size returns the packed byte size of the type.
//
// Returns:
//   - int: the number of bytes a value of this type occupies in a GPU buffer
func (t Type) Size() int {
	switch t {
	case TypeVec2:
		return 8
	case TypeVec4:
		return 16
	default:
		return 4
	}
}

// Alignment returns the required byte alignment of the type within a packed
// attribute block. Matches the std140-style rules vertex layouts use: scalars
// align to 4, vec2 to 8, vec4 to 16.
//
// Returns:
//   - int: the byte alignment
func (t Type) Alignment() int {
	return t.Size()
}

// String returns the GLSL-style name of the type.
//
// Returns:
//   - string: "float", "vec2", "vec4", or "uint"
func (t Type) String() string {
	switch t {
	case TypeFloat:
		return "float"
	case TypeVec2:
		return "vec2"
	case TypeVec4:
		return "vec4"
	case TypeUint:
		return "uint"
	default:
		return fmt.Sprintf("attribute.Type(%d)", int(t))
	}
}

// Value is a typed attribute value. The zero Value is a TypeFloat zero.
// Values are small and copied freely; they never alias GPU memory.
type Value struct {
	typ Type
	vec [4]float32
	u   uint32
}

// Float wraps a float32 as a Value.
//
// Parameters:
//   - v: the scalar value
//
// Returns:
//   - Value: a TypeFloat value
func Float(v float32) Value {
	return Value{typ: TypeFloat, vec: [4]float32{v}}
}

// Vec2 wraps an mgl32.Vec2 as a Value.
//
// Parameters:
//   - v: the vector value
//
// Returns:
//   - Value: a TypeVec2 value
func Vec2(v mgl32.Vec2) Value {
	return Value{typ: TypeVec2, vec: [4]float32{v.X(), v.Y()}}
}

// Vec4 wraps an mgl32.Vec4 as a Value.
//
// Parameters:
//   - v: the vector value
//
// Returns:
//   - Value: a TypeVec4 value
func Vec4(v mgl32.Vec4) Value {
	return Value{typ: TypeVec4, vec: [4]float32{v.X(), v.Y(), v.Z(), v.W()}}
}

// Uint wraps a uint32 as a Value.
//
// Parameters:
//   - v: the integer value
//
// Returns:
//   - Value: a TypeUint value
func Uint(v uint32) Value {
	return Value{typ: TypeUint, u: v}
}

// Zero returns the zero value of the given type.
//
// Parameters:
//   - t: the attribute type
//
// Returns:
//   - Value: a zeroed value of type t
func Zero(t Type) Value {
	return Value{typ: t}
}

// Type returns the semantic type of the value.
func (v Value) Type() Type {
	return v.typ
}

// Float32 returns the scalar payload. Only meaningful for TypeFloat.
func (v Value) Float32() float32 {
	return v.vec[0]
}

// Vec2 returns the vector payload. Only meaningful for TypeVec2.
func (v Value) Vec2() mgl32.Vec2 {
	return mgl32.Vec2{v.vec[0], v.vec[1]}
}

// Vec4 returns the vector payload. Only meaningful for TypeVec4.
func (v Value) Vec4() mgl32.Vec4 {
	return mgl32.Vec4{v.vec[0], v.vec[1], v.vec[2], v.vec[3]}
}

// Uint32 returns the integer payload. Only meaningful for TypeUint.
func (v Value) Uint32() uint32 {
	return v.u
}

// put writes the value's packed bytes into dst at the given offset.
func (v Value) put(dst []byte, offset int) {
	switch v.typ {
	case TypeUint:
		common.PutUint32(dst, offset, v.u)
	case TypeVec2:
		common.PutFloat32(dst, offset, v.vec[0])
		common.PutFloat32(dst, offset+4, v.vec[1])
	case TypeVec4:
		common.PutFloat32(dst, offset, v.vec[0])
		common.PutFloat32(dst, offset+4, v.vec[1])
		common.PutFloat32(dst, offset+8, v.vec[2])
		common.PutFloat32(dst, offset+12, v.vec[3])
	default:
		common.PutFloat32(dst, offset, v.vec[0])
	}
}
