// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package reflection

import (
	"errors"
	"math"
	"testing"
)

// asm assembles a SPIR-V module from raw instructions.
func asm(insts ...[]uint32) []uint32 {
	words := []uint32{spvMagic, 0x00010300, 0, 100, 0}
	for _, in := range insts {
		words = append(words, uint32(len(in))<<16|in[0])
		words = append(words, in[1:]...)
	}
	return words
}

// specModule declares f32 constant "scale" (SpecId 7, default 1.0), i32
// constant "count" (default 4) and bool constant "fast" (default true).
func specModule() []uint32 {
	const (
		tFloat, tInt, tBool = 1, 2, 3
		scale, count, fast  = 10, 11, 12
	)
	name := func(id uint32, s string) []uint32 {
		in := []uint32{opName, id}
		var w uint32
		for i := 0; i <= len(s); i++ {
			var c byte
			if i < len(s) {
				c = s[i]
			}
			w |= uint32(c) << (8 * (i % 4))
			if i%4 == 3 || i == len(s) {
				in = append(in, w)
				w = 0
			}
		}
		return in
	}
	return asm(
		name(scale, "scale"),
		name(count, "count"),
		name(fast, "fast"),
		[]uint32{opDecorate, scale, decSpecID, 7},
		[]uint32{opTypeFloat, tFloat, 32},
		[]uint32{opTypeInt, tInt, 32, 1},
		[]uint32{opTypeBool, tBool},
		[]uint32{opSpecConstant, tFloat, scale, math.Float32bits(1)},
		[]uint32{opSpecConstant, tInt, count, 4},
		[]uint32{opSpecConstTrue, tBool, fast},
	)
}

func TestSpecialize(t *testing.T) {
	words := specModule()
	out, err := Specialize(words, map[string]float64{"7": 2.5, "count": -3, "fast": 0})
	if err != nil {
		t.Fatalf("Specialize() error = %v", err)
	}

	m, err := parseSPIRV(out)
	if err != nil {
		t.Fatalf("parseSPIRV() error = %v", err)
	}
	if len(m.specs) != 3 {
		t.Fatalf("specs = %d, want 3", len(m.specs))
	}

	var gotScale, gotCount uint32
	var fastOp uint16
	for i := 5; i < len(out); {
		n := int(out[i] >> 16)
		op := uint16(out[i])
		args := out[i+1 : i+n]
		switch {
		case op == opSpecConstant && args[1] == 10:
			gotScale = args[2]
		case op == opSpecConstant && args[1] == 11:
			gotCount = args[2]
		case (op == opSpecConstTrue || op == opSpecConstFalse) && args[1] == 12:
			fastOp = op
		}
		i += n
	}
	if got := math.Float32frombits(gotScale); got != 2.5 {
		t.Errorf("scale = %v, want 2.5", got)
	}
	if int32(gotCount) != -3 {
		t.Errorf("count = %d, want -3", int32(gotCount))
	}
	if fastOp != opSpecConstFalse {
		t.Errorf("fast opcode = %d, want %d", fastOp, opSpecConstFalse)
	}

	// The input is left untouched.
	if words[len(words)-1] != 12 || uint16(words[len(words)-3]) != opSpecConstTrue {
		t.Error("Specialize() modified its input")
	}
}

func TestSpecialize_UnknownConstant(t *testing.T) {
	_, err := Specialize(specModule(), map[string]float64{"missing": 1})
	if !errors.Is(err, ErrUnknownVariable) {
		t.Errorf("Specialize() error = %v, want ErrUnknownVariable", err)
	}
}

func TestFromSPIRV_Constants(t *testing.T) {
	p, err := FromSPIRV(specModule())
	if err != nil {
		t.Fatalf("FromSPIRV() error = %v", err)
	}
	want := []Constant{{Name: "scale", ID: 7}, {Name: "count", ID: -1}, {Name: "fast", ID: -1}}
	if len(p.Constants) != len(want) {
		t.Fatalf("Constants = %v, want %v", p.Constants, want)
	}
	for i := range want {
		if p.Constants[i] != want[i] {
			t.Errorf("Constants[%d] = %v, want %v", i, p.Constants[i], want[i])
		}
	}
}
