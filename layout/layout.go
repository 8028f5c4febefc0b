// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package layout describes the memory layout of GPU buffer data.
//
// A Format is an ordered list of typed fields with byte offsets, plus the
// stride of one element. Formats are either written by hand, computed with
// Compute under one of the Rule packing rules, or reported by shader
// reflection. Buffers created from a Format have an immutable size of
// length × stride.
//
// Packing rules:
//   - Packed: no padding, fields follow each other byte for byte.
//   - Std140: uniform buffer rules; arrays and structs are aligned to 16
//     bytes and array strides are rounded up to 16.
//   - Std430: storage buffer rules; natural alignment, array strides rounded
//     up to the element alignment.
package layout

import (
	"errors"
	"fmt"
)

// Layout errors.
var (
	// ErrUnknownType is returned when a type name cannot be parsed.
	ErrUnknownType = errors.New("layout: unknown data type")

	// ErrEmptyFormat is returned when a format has no fields.
	ErrEmptyFormat = errors.New("layout: format has no fields")

	// ErrUnboundedNotLast is returned when an unbounded array is not the last field.
	ErrUnboundedNotLast = errors.New("layout: unbounded array must be the last field")

	// ErrFieldOverlap is returned by Validate when two fields share bytes.
	ErrFieldOverlap = errors.New("layout: fields overlap")

	// ErrStrideTooSmall is returned by Validate when fields extend past the stride.
	ErrStrideTooSmall = errors.New("layout: stride smaller than field extent")
)

// Rule is a buffer packing rule.
type Rule uint8

const (
	Packed Rule = iota
	Std140
	Std430
)

// String returns the rule name.
func (r Rule) String() string {
	switch r {
	case Packed:
		return "packed"
	case Std140:
		return "std140"
	case Std430:
		return "std430"
	default:
		return fmt.Sprintf("Rule(%d)", uint8(r))
	}
}

// Unbounded is the Length of a runtime-sized trailing array field.
const Unbounded = ^uint32(0)

// Field is one member of a Format.
//
// A field holds either a single DataType or, when Fields is non-empty, a
// nested struct. Length 0 means a single value, a positive Length an array
// of that many values, and Unbounded a runtime-sized array.
type Field struct {
	Name   string
	Type   DataType
	Fields []Field
	Length uint32
	Offset uint32
	Stride uint32
}

// IsStruct reports whether the field is a nested struct.
func (f Field) IsStruct() bool { return len(f.Fields) > 0 }

// IsArray reports whether the field is an array (fixed or unbounded).
func (f Field) IsArray() bool { return f.Length > 0 }

// Extent returns the number of bytes the field occupies, counting array
// elements. Unbounded arrays count one element.
func (f Field) Extent() uint32 {
	if f.Length == 0 || f.Length == Unbounded {
		return f.elementSize()
	}
	return f.Stride*(f.Length-1) + f.elementSize()
}

// elementSize returns the size of one element, excluding array padding.
func (f Field) elementSize() uint32 {
	if f.IsStruct() {
		var end uint32
		for _, m := range f.Fields {
			if e := m.Offset + m.Extent(); e > end {
				end = e
			}
		}
		if f.Stride > end {
			return f.Stride
		}
		return end
	}
	if f.Type.IsMatrix() && f.Stride > f.Type.Size() {
		// Padded columns.
		return f.Stride
	}
	return f.Type.Size()
}

// PackedSize returns the sum of the tightly packed sizes of all leaves of
// the field, counting every array element.
func (f Field) PackedSize() uint32 {
	n := f.Length
	if n == 0 || n == Unbounded {
		n = 1
	}
	if !f.IsStruct() {
		return f.Type.Size() * n
	}
	var sum uint32
	for _, m := range f.Fields {
		sum += m.PackedSize()
	}
	return sum * n
}

// Format is the layout of one buffer element.
type Format struct {
	Fields []Field
	Stride uint32
	Rule   Rule
}

// Size returns the byte size of length elements.
func (f Format) Size(length uint32) uint64 {
	return uint64(length) * uint64(f.Stride)
}

// PackedSize returns the sum of the packed sizes of all fields.
func (f Format) PackedSize() uint32 {
	var sum uint32
	for _, fld := range f.Fields {
		sum += fld.PackedSize()
	}
	return sum
}

// Field returns the top-level field with the given name.
func (f Format) Field(name string) (Field, bool) {
	for _, fld := range f.Fields {
		if fld.Name == name {
			return fld, true
		}
	}
	return Field{}, false
}

// Single returns a one-field Format for values of type t.
func Single(rule Rule, t DataType) Format {
	f, _ := Compute(rule, Field{Type: t})
	return f
}

// Compute assigns offsets and strides to fields under rule and returns the
// resulting Format. Offsets and strides already present on the input fields
// are ignored.
func Compute(rule Rule, fields ...Field) (Format, error) {
	if len(fields) == 0 {
		return Format{}, ErrEmptyFormat
	}
	out, size, align, err := computeStruct(rule, fields)
	if err != nil {
		return Format{}, err
	}
	return Format{Fields: out, Stride: roundUp(size, align), Rule: rule}, nil
}

// computeStruct lays out members in order and returns them with offsets, the
// unpadded size and the struct alignment.
func computeStruct(rule Rule, fields []Field) ([]Field, uint32, uint32, error) {
	out := make([]Field, len(fields))
	var offset uint32
	maxAlign := uint32(1)
	for i, fld := range fields {
		if fld.Length == Unbounded && i != len(fields)-1 {
			return nil, 0, 0, fmt.Errorf("%w: %q", ErrUnboundedNotLast, fld.Name)
		}
		placed, align, err := computeField(rule, fld)
		if err != nil {
			return nil, 0, 0, err
		}
		offset = roundUp(offset, align)
		placed.Offset = offset
		offset += placed.Extent()
		if placed.IsArray() && placed.Length != Unbounded {
			// The array occupies whole strides.
			offset = placed.Offset + placed.Stride*placed.Length
		}
		if align > maxAlign {
			maxAlign = align
		}
		out[i] = placed
	}
	if rule == Std140 {
		maxAlign = roundUp(maxAlign, 16)
	}
	return out, offset, maxAlign, nil
}

// computeField returns the field with its stride filled in and its alignment.
func computeField(rule Rule, fld Field) (Field, uint32, error) {
	var size, align uint32
	if fld.IsStruct() {
		members, msize, malign, err := computeStruct(rule, fld.Fields)
		if err != nil {
			return Field{}, 0, err
		}
		fld.Fields = members
		align = malign
		size = roundUp(msize, malign)
	} else {
		if !fld.Type.Valid() {
			return Field{}, 0, fmt.Errorf("%w: field %q", ErrUnknownType, fld.Name)
		}
		align = fld.Type.alignment(rule)
		size = fld.Type.sizeIn(rule)
	}
	if fld.IsArray() && rule == Std140 {
		align = roundUp(align, 16)
	}
	stride := size
	if fld.IsArray() || fld.IsStruct() {
		stride = roundUp(size, align)
	}
	fld.Stride = stride
	return fld, align, nil
}

// Validate checks that the top-level fields of f do not overlap and fit
// within the stride. Unbounded arrays are checked for their first element.
func Validate(f Format) error {
	if len(f.Fields) == 0 {
		return ErrEmptyFormat
	}
	for i, a := range f.Fields {
		if a.Offset+a.Extent() > f.Stride {
			return fmt.Errorf("%w: field %q ends at %d, stride %d",
				ErrStrideTooSmall, a.Name, a.Offset+a.Extent(), f.Stride)
		}
		for _, b := range f.Fields[i+1:] {
			if a.Offset < b.Offset+b.Extent() && b.Offset < a.Offset+a.Extent() {
				return fmt.Errorf("%w: %q and %q", ErrFieldOverlap, a.Name, b.Name)
			}
		}
	}
	return nil
}
