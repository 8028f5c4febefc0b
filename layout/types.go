// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package layout

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
)

// DataType is the type of a single buffer field.
type DataType uint8

const (
	TypeI8x4 DataType = iota
	TypeU8x4
	TypeSN8x4
	TypeUN8x4
	TypeSN10x3
	TypeUN10x3
	TypeI16
	TypeI16x2
	TypeI16x4
	TypeU16
	TypeU16x2
	TypeU16x4
	TypeSN16x2
	TypeSN16x4
	TypeUN16x2
	TypeUN16x4
	TypeI32
	TypeI32x2
	TypeI32x3
	TypeI32x4
	TypeU32
	TypeU32x2
	TypeU32x3
	TypeU32x4
	TypeF16x2
	TypeF16x4
	TypeF32
	TypeF32x2
	TypeF32x3
	TypeF32x4
	TypeMat2
	TypeMat3
	TypeMat4
	TypeIndex16
	TypeIndex32

	typeCount
)

// typeInfo describes the shape of a DataType: scalar byte width, component
// count and, for matrices, the column count.
type typeInfo struct {
	name       string
	scalar     uint32
	components uint32
	columns    uint32
	packed     bool // components share one 32-bit word (8-bit x4, 10-bit x3)
	vertex     gputypes.VertexFormat
}

var typeInfos = [typeCount]typeInfo{
	TypeI8x4:    {"i8x4", 1, 4, 1, true, gputypes.VertexFormatSint8x4},
	TypeU8x4:    {"u8x4", 1, 4, 1, true, gputypes.VertexFormatUint8x4},
	TypeSN8x4:   {"sn8x4", 1, 4, 1, true, gputypes.VertexFormatSnorm8x4},
	TypeUN8x4:   {"un8x4", 1, 4, 1, true, gputypes.VertexFormatUnorm8x4},
	TypeSN10x3:  {"sn10x3", 4, 1, 1, true, gputypes.VertexFormatUndefined},
	TypeUN10x3:  {"un10x3", 4, 1, 1, true, gputypes.VertexFormatUnorm1010102},
	TypeI16:     {"i16", 2, 1, 1, false, gputypes.VertexFormatUndefined},
	TypeI16x2:   {"i16x2", 2, 2, 1, false, gputypes.VertexFormatSint16x2},
	TypeI16x4:   {"i16x4", 2, 4, 1, false, gputypes.VertexFormatSint16x4},
	TypeU16:     {"u16", 2, 1, 1, false, gputypes.VertexFormatUndefined},
	TypeU16x2:   {"u16x2", 2, 2, 1, false, gputypes.VertexFormatUint16x2},
	TypeU16x4:   {"u16x4", 2, 4, 1, false, gputypes.VertexFormatUint16x4},
	TypeSN16x2:  {"sn16x2", 2, 2, 1, false, gputypes.VertexFormatSnorm16x2},
	TypeSN16x4:  {"sn16x4", 2, 4, 1, false, gputypes.VertexFormatSnorm16x4},
	TypeUN16x2:  {"un16x2", 2, 2, 1, false, gputypes.VertexFormatUnorm16x2},
	TypeUN16x4:  {"un16x4", 2, 4, 1, false, gputypes.VertexFormatUnorm16x4},
	TypeI32:     {"i32", 4, 1, 1, false, gputypes.VertexFormatSint32},
	TypeI32x2:   {"i32x2", 4, 2, 1, false, gputypes.VertexFormatSint32x2},
	TypeI32x3:   {"i32x3", 4, 3, 1, false, gputypes.VertexFormatSint32x3},
	TypeI32x4:   {"i32x4", 4, 4, 1, false, gputypes.VertexFormatSint32x4},
	TypeU32:     {"u32", 4, 1, 1, false, gputypes.VertexFormatUint32},
	TypeU32x2:   {"u32x2", 4, 2, 1, false, gputypes.VertexFormatUint32x2},
	TypeU32x3:   {"u32x3", 4, 3, 1, false, gputypes.VertexFormatUint32x3},
	TypeU32x4:   {"u32x4", 4, 4, 1, false, gputypes.VertexFormatUint32x4},
	TypeF16x2:   {"f16x2", 2, 2, 1, false, gputypes.VertexFormatFloat16x2},
	TypeF16x4:   {"f16x4", 2, 4, 1, false, gputypes.VertexFormatFloat16x4},
	TypeF32:     {"f32", 4, 1, 1, false, gputypes.VertexFormatFloat32},
	TypeF32x2:   {"f32x2", 4, 2, 1, false, gputypes.VertexFormatFloat32x2},
	TypeF32x3:   {"f32x3", 4, 3, 1, false, gputypes.VertexFormatFloat32x3},
	TypeF32x4:   {"f32x4", 4, 4, 1, false, gputypes.VertexFormatFloat32x4},
	TypeMat2:    {"mat2", 4, 2, 2, false, gputypes.VertexFormatUndefined},
	TypeMat3:    {"mat3", 4, 3, 3, false, gputypes.VertexFormatUndefined},
	TypeMat4:    {"mat4", 4, 4, 4, false, gputypes.VertexFormatUndefined},
	TypeIndex16: {"index16", 2, 1, 1, false, gputypes.VertexFormatUndefined},
	TypeIndex32: {"index32", 4, 1, 1, false, gputypes.VertexFormatUndefined},
}

// aliases accepted by ParseDataType in addition to the canonical names.
var typeAliases = map[string]DataType{
	"float": TypeF32, "vec2": TypeF32x2, "vec3": TypeF32x3, "vec4": TypeF32x4,
	"int": TypeI32, "ivec2": TypeI32x2, "ivec3": TypeI32x3, "ivec4": TypeI32x4,
	"uint": TypeU32, "uvec2": TypeU32x2, "uvec3": TypeU32x3, "uvec4": TypeU32x4,
	"color": TypeUN8x4, "mat2x2": TypeMat2, "mat3x3": TypeMat3, "mat4x4": TypeMat4,
}

// ParseDataType returns the DataType with the given name. Canonical names
// ("f32x3", "u32", "mat4") and GLSL-style aliases ("vec3", "uint") are accepted.
func ParseDataType(name string) (DataType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t := DataType(0); t < typeCount; t++ {
		if typeInfos[t].name == name {
			return t, nil
		}
	}
	if t, ok := typeAliases[name]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, name)
}

// String returns the canonical name of the type.
func (t DataType) String() string {
	if t < typeCount {
		return typeInfos[t].name
	}
	return fmt.Sprintf("DataType(%d)", uint8(t))
}

// Valid reports whether t is a known DataType.
func (t DataType) Valid() bool { return t < typeCount }

// Size returns the tightly packed byte size of one value of the type.
func (t DataType) Size() uint32 {
	if !t.Valid() {
		return 0
	}
	info := typeInfos[t]
	if info.packed {
		return 4
	}
	return info.scalar * info.components * info.columns
}

// Components returns the number of components per column.
func (t DataType) Components() uint32 {
	if !t.Valid() {
		return 0
	}
	return typeInfos[t].components
}

// IsMatrix reports whether t is a square float matrix.
func (t DataType) IsMatrix() bool {
	return t == TypeMat2 || t == TypeMat3 || t == TypeMat4
}

// VertexFormat returns the vertex attribute format for t, or
// gputypes.VertexFormatUndefined when t cannot be a vertex attribute.
func (t DataType) VertexFormat() gputypes.VertexFormat {
	if !t.Valid() {
		return gputypes.VertexFormatUndefined
	}
	return typeInfos[t].vertex
}

// IndexFormat returns the index buffer format for index types.
func (t DataType) IndexFormat() (gputypes.IndexFormat, bool) {
	switch t {
	case TypeIndex16, TypeU16:
		return gputypes.IndexFormatUint16, true
	case TypeIndex32, TypeU32:
		return gputypes.IndexFormatUint32, true
	default:
		return gputypes.IndexFormatUndefined, false
	}
}

// Alignment returns the base alignment of one value of t under rule.
func (t DataType) Alignment(rule Rule) uint32 {
	if !t.Valid() {
		return 1
	}
	return t.alignment(rule)
}

func (t DataType) alignment(rule Rule) uint32 {
	if rule == Packed {
		return 1
	}
	info := typeInfos[t]
	if info.packed {
		return 4
	}
	if info.columns > 1 {
		// Matrices are laid out as arrays of column vectors.
		col := vectorAlign(info.scalar, info.components)
		if rule == Std140 {
			return roundUp(col, 16)
		}
		return col
	}
	return vectorAlign(info.scalar, info.components)
}

// sizeIn returns the size of one value of t under rule, without trailing
// array padding.
func (t DataType) sizeIn(rule Rule) uint32 {
	info := typeInfos[t]
	if rule == Packed || info.columns == 1 {
		return t.Size()
	}
	colStride := roundUp(info.scalar*info.components, t.alignment(rule))
	return colStride * info.columns
}

func vectorAlign(scalar, components uint32) uint32 {
	switch components {
	case 1:
		return scalar
	case 2:
		return scalar * 2
	default:
		return scalar * 4
	}
}

func roundUp(v, align uint32) uint32 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}
