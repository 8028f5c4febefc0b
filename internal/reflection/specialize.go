// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package reflection

import (
	"fmt"
	"math"
	"slices"
	"strconv"
)

// Specialize returns a copy of a SPIR-V module with the default values of
// its specialization constants replaced. Keys of values are constant names
// or SpecId numbers in decimal. Keys that match no constant are an error.
func Specialize(words []uint32, values map[string]float64) ([]uint32, error) {
	m, err := parseSPIRV(words)
	if err != nil {
		return nil, err
	}
	out := slices.Clone(words)
	used := make(map[string]bool, len(values))

	lookup := func(id uint32) (float64, bool) {
		if name := m.names[id]; name != "" {
			if v, ok := values[name]; ok {
				used[name] = true
				return v, true
			}
		}
		if specID, ok := m.decos[id][decSpecID]; ok {
			key := strconv.FormatUint(uint64(specID), 10)
			if v, ok := values[key]; ok {
				used[key] = true
				return v, true
			}
		}
		return 0, false
	}

	for i := 5; i < len(out); {
		count := int(out[i] >> 16)
		op := uint16(out[i])
		args := out[i+1 : i+count]
		switch op {
		case opSpecConstTrue, opSpecConstFalse:
			if v, ok := lookup(args[1]); ok {
				next := uint32(opSpecConstFalse)
				if v != 0 {
					next = opSpecConstTrue
				}
				out[i] = uint32(count)<<16 | next
			}
		case opSpecConstant:
			if v, ok := lookup(args[1]); ok {
				if err := m.encodeLiteral(args[0], args[2:], v); err != nil {
					return nil, fmt.Errorf("reflection: constant %d: %w", args[1], err)
				}
			}
		}
		i += count
	}

	for key := range values {
		if !used[key] {
			return nil, fmt.Errorf("%w: constant %q", ErrUnknownVariable, key)
		}
	}
	return out, nil
}

// encodeLiteral writes v into the literal words of a constant of type id.
func (m *spvModule) encodeLiteral(typeID uint32, lit []uint32, v float64) error {
	t, ok := m.types[typeID]
	if !ok || len(t.args) == 0 {
		return fmt.Errorf("%w: unknown constant type %d", ErrInvalidSPIRV, typeID)
	}
	width := t.args[0]
	var bits uint64
	switch {
	case t.op == opTypeFloat && width == 32:
		bits = uint64(math.Float32bits(float32(v)))
	case t.op == opTypeFloat && width == 64:
		bits = math.Float64bits(v)
	case t.op == opTypeInt && len(t.args) > 1 && t.args[1] == 1:
		bits = uint64(int64(v))
	case t.op == opTypeInt:
		bits = uint64(v)
	default:
		return fmt.Errorf("%w: constant type opcode %d", ErrInvalidSPIRV, t.op)
	}
	switch {
	case width == 64 && len(lit) >= 2:
		lit[0], lit[1] = uint32(bits), uint32(bits>>32)
	case width <= 32 && len(lit) >= 1:
		lit[0] = uint32(bits)
	default:
		return fmt.Errorf("%w: %d-bit literal in %d words", ErrInvalidSPIRV, width, len(lit))
	}
	return nil
}
