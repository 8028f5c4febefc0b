// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package reflection

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/layout"
)

// SPIR-V constants used by the reader.
const (
	spvMagic = 0x07230203

	opName            = 5
	opMemberName      = 6
	opEntryPoint      = 15
	opExecutionMode   = 16
	opTypeBool        = 20
	opTypeInt         = 21
	opTypeFloat       = 22
	opTypeVector      = 23
	opTypeMatrix      = 24
	opTypeImage       = 25
	opTypeSampler     = 26
	opTypeSampledImg  = 27
	opTypeArray       = 28
	opTypeRuntimeArr  = 29
	opTypeStruct      = 30
	opTypePointer     = 32
	opConstant        = 43
	opSpecConstTrue   = 48
	opSpecConstFalse  = 49
	opSpecConstant    = 50
	opVariable        = 59
	opDecorate        = 71
	opMemberDecorate  = 72
	execModeLocalSize = 17

	decSpecID        = 1
	decBlock         = 2
	decBufferBlock   = 3
	decArrayStride   = 6
	decMatrixStride  = 7
	decBuiltIn       = 11
	decNonWritable   = 24
	decLocation      = 30
	decBinding       = 33
	decDescriptorSet = 34
	decOffset        = 35

	scUniformConstant = 0
	scInput           = 1
	scUniform         = 2
	scPushConstant    = 9
	scStorageBuffer   = 12

	modelVertex    = 0
	modelFragment  = 4
	modelGLCompute = 5
)

// spvImageFormats maps SPIR-V image formats to texture formats.
var spvImageFormats = map[uint32]gputypes.TextureFormat{
	1:  gputypes.TextureFormatRGBA32Float,
	2:  gputypes.TextureFormatRGBA16Float,
	3:  gputypes.TextureFormatR32Float,
	4:  gputypes.TextureFormatRGBA8Unorm,
	5:  gputypes.TextureFormatRGBA8Snorm,
	6:  gputypes.TextureFormatRG32Float,
	7:  gputypes.TextureFormatRG16Float,
	8:  gputypes.TextureFormatRG11B10Ufloat,
	9:  gputypes.TextureFormatR16Float,
	11: gputypes.TextureFormatRGB10A2Unorm,
	13: gputypes.TextureFormatRG8Unorm,
	15: gputypes.TextureFormatR8Unorm,
	17: gputypes.TextureFormatR8Snorm,
	19: gputypes.TextureFormatRG8Snorm,
	21: gputypes.TextureFormatRGBA32Sint,
	22: gputypes.TextureFormatRGBA16Sint,
	23: gputypes.TextureFormatRGBA8Sint,
	24: gputypes.TextureFormatR32Sint,
	25: gputypes.TextureFormatRG32Sint,
	26: gputypes.TextureFormatRG16Sint,
	27: gputypes.TextureFormatRG8Sint,
	28: gputypes.TextureFormatR16Sint,
	29: gputypes.TextureFormatR8Sint,
	30: gputypes.TextureFormatRGBA32Uint,
	31: gputypes.TextureFormatRGBA16Uint,
	32: gputypes.TextureFormatRGBA8Uint,
	33: gputypes.TextureFormatR32Uint,
	34: gputypes.TextureFormatRGB10A2Uint,
	35: gputypes.TextureFormatRG32Uint,
	36: gputypes.TextureFormatRG16Uint,
	37: gputypes.TextureFormatRG8Uint,
	38: gputypes.TextureFormatR16Uint,
	39: gputypes.TextureFormatR8Uint,
}

// Words converts SPIR-V bytecode to words, detecting the byte order from
// the magic number.
func Words(code []byte) ([]uint32, error) {
	if len(code)%4 != 0 || len(code) < 20 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidSPIRV, len(code))
	}
	var order binary.ByteOrder = binary.LittleEndian
	if binary.LittleEndian.Uint32(code) != spvMagic {
		if binary.BigEndian.Uint32(code) != spvMagic {
			return nil, fmt.Errorf("%w: bad magic", ErrInvalidSPIRV)
		}
		order = binary.BigEndian
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = order.Uint32(code[i*4:])
	}
	return words, nil
}

type spvInst struct {
	op   uint16
	args []uint32
}

type spvVar struct {
	id, ptrType, storage uint32
}

type spvEntry struct {
	model uint32
	id    uint32
	name  string
	iface []uint32
}

// spvModule holds the declarations of a SPIR-V module relevant to reflection.
type spvModule struct {
	names       map[uint32]string
	memberNames map[uint32]map[uint32]string
	decos       map[uint32]map[uint32]uint32
	memberDecos map[uint32]map[uint32]map[uint32]uint32
	types       map[uint32]spvInst
	constants   map[uint32]uint32
	specs       []uint32
	vars        []spvVar
	entries     []spvEntry
	localSize   map[uint32][3]uint32
}

// FromSPIRV reflects a SPIR-V module. All resource variables are visible to
// every stage declared by the module's entry points.
func FromSPIRV(words []uint32) (*Program, error) {
	m, err := parseSPIRV(words)
	if err != nil {
		return nil, err
	}
	p := &Program{}

	for _, e := range m.entries {
		var stage Stage
		switch e.model {
		case modelVertex:
			stage = StageVertex
		case modelFragment:
			stage = StageFragment
		case modelGLCompute:
			stage = StageCompute
		default:
			continue
		}
		p.Stages |= stage
		ep := EntryPoint{Name: e.name, Stage: stage, Workgroup: m.localSize[e.id]}
		p.EntryPoints = append(p.EntryPoints, ep)
		if stage == StageCompute {
			p.Workgroup = ep.Workgroup
		}
		if stage == StageVertex {
			p.Attributes = append(p.Attributes, m.attributes(e.iface)...)
		}
	}

	for _, v := range m.vars {
		variable, ok, err := m.variable(v)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		variable.Stages = p.Stages
		if err := p.addVariable(variable); err != nil {
			return nil, err
		}
	}

	for _, id := range m.specs {
		c := Constant{Name: m.names[id], ID: -1}
		if specID, ok := m.decos[id][decSpecID]; ok {
			c.ID = int(specID)
		}
		p.Constants = append(p.Constants, c)
	}
	return p, nil
}

func parseSPIRV(words []uint32) (*spvModule, error) {
	if len(words) < 5 || words[0] != spvMagic {
		return nil, fmt.Errorf("%w: bad header", ErrInvalidSPIRV)
	}
	m := &spvModule{
		names:       make(map[uint32]string),
		memberNames: make(map[uint32]map[uint32]string),
		decos:       make(map[uint32]map[uint32]uint32),
		memberDecos: make(map[uint32]map[uint32]map[uint32]uint32),
		types:       make(map[uint32]spvInst),
		constants:   make(map[uint32]uint32),
		localSize:   make(map[uint32][3]uint32),
	}
	for i := 5; i < len(words); {
		count := int(words[i] >> 16)
		op := uint16(words[i])
		if count == 0 || i+count > len(words) {
			return nil, fmt.Errorf("%w: truncated instruction at word %d", ErrInvalidSPIRV, i)
		}
		args := words[i+1 : i+count]
		i += count
		if err := m.record(op, args); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *spvModule) record(op uint16, args []uint32) error {
	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("%w: opcode %d has %d operands", ErrInvalidSPIRV, op, len(args))
		}
		return nil
	}
	switch op {
	case opName:
		if err := need(1); err != nil {
			return err
		}
		m.names[args[0]] = spvString(args[1:])
	case opMemberName:
		if err := need(2); err != nil {
			return err
		}
		if m.memberNames[args[0]] == nil {
			m.memberNames[args[0]] = make(map[uint32]string)
		}
		m.memberNames[args[0]][args[1]] = spvString(args[2:])
	case opEntryPoint:
		if err := need(3); err != nil {
			return err
		}
		name := spvString(args[2:])
		rest := min(2+len(name)/4+1, len(args))
		m.entries = append(m.entries, spvEntry{model: args[0], id: args[1], name: name, iface: args[rest:]})
	case opExecutionMode:
		if err := need(2); err != nil {
			return err
		}
		if args[1] == execModeLocalSize && len(args) >= 5 {
			m.localSize[args[0]] = [3]uint32{args[2], args[3], args[4]}
		}
	case opTypeBool, opTypeInt, opTypeFloat, opTypeVector, opTypeMatrix, opTypeImage,
		opTypeSampler, opTypeSampledImg, opTypeArray, opTypeRuntimeArr, opTypeStruct, opTypePointer:
		if err := need(1); err != nil {
			return err
		}
		m.types[args[0]] = spvInst{op: op, args: args[1:]}
	case opConstant:
		if err := need(3); err != nil {
			return err
		}
		m.constants[args[1]] = args[2]
	case opSpecConstTrue, opSpecConstFalse, opSpecConstant:
		if err := need(2); err != nil {
			return err
		}
		m.specs = append(m.specs, args[1])
	case opVariable:
		if err := need(3); err != nil {
			return err
		}
		m.vars = append(m.vars, spvVar{ptrType: args[0], id: args[1], storage: args[2]})
	case opDecorate:
		if err := need(2); err != nil {
			return err
		}
		if m.decos[args[0]] == nil {
			m.decos[args[0]] = make(map[uint32]uint32)
		}
		var value uint32
		if len(args) > 2 {
			value = args[2]
		}
		m.decos[args[0]][args[1]] = value
	case opMemberDecorate:
		if err := need(3); err != nil {
			return err
		}
		byMember := m.memberDecos[args[0]]
		if byMember == nil {
			byMember = make(map[uint32]map[uint32]uint32)
			m.memberDecos[args[0]] = byMember
		}
		if byMember[args[1]] == nil {
			byMember[args[1]] = make(map[uint32]uint32)
		}
		var value uint32
		if len(args) > 3 {
			value = args[3]
		}
		byMember[args[1]][args[2]] = value
	}
	return nil
}

// spvString decodes a nul-terminated literal string packed into words.
func spvString(words []uint32) string {
	var b []byte
	for _, w := range words {
		for shift := 0; shift < 32; shift += 8 {
			c := byte(w >> shift)
			if c == 0 {
				return string(b)
			}
			b = append(b, c)
		}
	}
	return string(b)
}

func (m *spvModule) hasDeco(id, deco uint32) bool {
	_, ok := m.decos[id][deco]
	return ok
}

// pointee returns the type a pointer type points to.
func (m *spvModule) pointee(ptr uint32) (uint32, bool) {
	t, ok := m.types[ptr]
	if !ok || t.op != opTypePointer || len(t.args) < 2 {
		return 0, false
	}
	return t.args[1], true
}

func (m *spvModule) attributes(iface []uint32) []Attribute {
	var out []Attribute
	for _, id := range iface {
		for _, v := range m.vars {
			if v.id != id || v.storage != scInput {
				continue
			}
			loc, ok := m.decos[id][decLocation]
			if !ok || m.hasDeco(id, decBuiltIn) {
				continue
			}
			a := Attribute{Name: m.names[id], Location: loc}
			if pt, ok := m.pointee(v.ptrType); ok {
				a.Type, _ = m.dataType(pt)
			}
			out = append(out, a)
		}
	}
	return out
}

func (m *spvModule) variable(v spvVar) (Variable, bool, error) {
	t, ok := m.pointee(v.ptrType)
	if !ok {
		return Variable{}, false, nil
	}
	name := m.names[v.id]
	if name == "" {
		name = m.names[t]
	}
	out := Variable{
		Name:    name,
		Group:   m.decos[v.id][decDescriptorSet],
		Binding: m.decos[v.id][decBinding],
		Count:   1,
	}

	switch v.storage {
	case scUniform, scStorageBuffer, scPushConstant:
		rule := layout.Std430
		switch {
		case v.storage == scPushConstant:
			out.Kind = KindPushConstant
		case v.storage == scUniform && !m.hasDeco(t, decBufferBlock):
			out.Kind = KindUniformBuffer
			rule = layout.Std140
		default:
			out.Kind = KindStorageBuffer
			out.ReadOnly = m.hasDeco(v.id, decNonWritable) || m.membersNonWritable(t)
		}
		block, err := m.field(name, t, nil, rule)
		if err != nil {
			return Variable{}, false, fmt.Errorf("reflection: variable %q: %w", name, err)
		}
		out.Format, out.Length = bufferFormat(name, unwrapBlock(block), rule)
		return out, true, nil

	case scUniformConstant:
		if arr, ok := m.types[t]; ok && (arr.op == opTypeArray || arr.op == opTypeRuntimeArr) && len(arr.args) > 0 {
			t = arr.args[0]
			out.Count = 0
			if arr.op == opTypeArray && len(arr.args) > 1 {
				out.Count = m.constants[arr.args[1]]
			}
		}
		ty := m.types[t]
		if ty.op == opTypeSampledImg && len(ty.args) > 0 {
			ty = m.types[ty.args[0]]
		}
		switch ty.op {
		case opTypeSampler:
			out.Kind = KindSampler
		case opTypeImage:
			if len(ty.args) < 7 {
				return Variable{}, false, fmt.Errorf("%w: image type of %q", ErrInvalidSPIRV, name)
			}
			out.Texture = m.imageInfo(ty.args)
			if ty.args[5] == 2 {
				out.Kind = KindStorageTexture
				out.ReadOnly = m.hasDeco(v.id, decNonWritable)
				if out.ReadOnly {
					out.Texture.Access = gputypes.StorageTextureAccessReadOnly
				}
			} else {
				out.Kind = KindSampledTexture
			}
		default:
			return Variable{}, false, nil
		}
		return out, true, nil
	}
	return Variable{}, false, nil
}

// unwrapBlock strips the anonymous single-member struct compilers wrap
// around buffer variables whose type is not a block struct.
func unwrapBlock(block layout.Field) layout.Field {
	if len(block.Fields) != 1 || block.Fields[0].Name != "" {
		return block
	}
	inner := block.Fields[0]
	if !inner.IsStruct() && !inner.IsArray() {
		return block
	}
	inner.Name, inner.Offset = block.Name, 0
	return inner
}

func (m *spvModule) membersNonWritable(structID uint32) bool {
	st, ok := m.types[structID]
	if !ok || st.op != opTypeStruct || len(st.args) == 0 {
		return false
	}
	for i := range st.args {
		if _, ok := m.memberDecos[structID][uint32(i)][decNonWritable]; !ok {
			return false
		}
	}
	return true
}

// imageInfo decodes OpTypeImage operands: sampled type, dim, depth,
// arrayed, multisampled, sampled, format.
func (m *spvModule) imageInfo(args []uint32) TextureInfo {
	info := TextureInfo{Multisampled: args[4] == 1}
	arrayed := args[3] == 1
	switch args[1] {
	case 0:
		info.Dimension = gputypes.TextureViewDimension1D
	case 2:
		info.Dimension = gputypes.TextureViewDimension3D
	case 3:
		info.Dimension = gputypes.TextureViewDimensionCube
		if arrayed {
			info.Dimension = gputypes.TextureViewDimensionCubeArray
		}
	default:
		info.Dimension = gputypes.TextureViewDimension2D
		if arrayed {
			info.Dimension = gputypes.TextureViewDimension2DArray
		}
	}
	if args[5] == 2 {
		info.Format = spvImageFormats[args[6]]
		info.Access = gputypes.StorageTextureAccessWriteOnly
		return info
	}
	if args[2] == 1 {
		info.SampleType = gputypes.TextureSampleTypeDepth
		return info
	}
	info.SampleType = gputypes.TextureSampleTypeFloat
	if st, ok := m.types[args[0]]; ok && st.op == opTypeInt && len(st.args) >= 2 {
		info.SampleType = gputypes.TextureSampleTypeUint
		if st.args[1] == 1 {
			info.SampleType = gputypes.TextureSampleTypeSint
		}
	} else if info.Multisampled {
		info.SampleType = gputypes.TextureSampleTypeUnfilterableFloat
	}
	return info
}

// field converts a SPIR-V type into a layout field. member carries the
// member decorations when the type is a struct member.
func (m *spvModule) field(name string, id uint32, member map[uint32]uint32, rule layout.Rule) (layout.Field, error) {
	t, ok := m.types[id]
	if !ok {
		return layout.Field{}, fmt.Errorf("%w: undefined type %%%d", ErrInvalidSPIRV, id)
	}
	switch t.op {
	case opTypeStruct:
		f := layout.Field{Name: name}
		for i, mt := range t.args {
			idx := uint32(i)
			decos := m.memberDecos[id][idx]
			mf, err := m.field(m.memberNames[id][idx], mt, decos, rule)
			if err != nil {
				return layout.Field{}, err
			}
			mf.Offset = decos[decOffset]
			f.Fields = append(f.Fields, mf)
		}
		f.Stride = m.structStride(f.Fields, rule)
		return f, nil

	case opTypeArray, opTypeRuntimeArr:
		if len(t.args) < 1 {
			return layout.Field{}, fmt.Errorf("%w: array type %%%d", ErrInvalidSPIRV, id)
		}
		elem, err := m.field(name, t.args[0], member, rule)
		if err != nil {
			return layout.Field{}, err
		}
		length := layout.Unbounded
		if t.op == opTypeArray && len(t.args) > 1 {
			length = m.constants[t.args[1]]
		}
		stride := m.decos[id][decArrayStride]
		if elem.IsArray() {
			elem.Offset = 0
			return layout.Field{Name: name, Fields: []layout.Field{elem}, Length: length, Stride: stride}, nil
		}
		elem.Length = length
		elem.Stride = stride
		return elem, nil

	case opTypeMatrix:
		if len(t.args) < 2 {
			return layout.Field{}, fmt.Errorf("%w: matrix type %%%d", ErrInvalidSPIRV, id)
		}
		col, ok := m.dataType(t.args[0])
		if !ok {
			return layout.Field{}, fmt.Errorf("%w: matrix column %%%d", ErrUnsupportedType, t.args[0])
		}
		cols := t.args[1]
		colStride := member[decMatrixStride]
		if colStride == 0 {
			colStride = roundUp(col.Size(), col.Alignment(rule))
		}
		if col.Components() == cols && col >= layout.TypeF32x2 && col <= layout.TypeF32x4 {
			mat := layout.TypeMat2 + layout.DataType(cols-2)
			return layout.Field{Name: name, Type: mat, Stride: colStride * cols}, nil
		}
		return layout.Field{Name: name, Type: col, Length: cols, Stride: colStride}, nil

	default:
		dt, ok := m.dataType(id)
		if !ok {
			return layout.Field{}, fmt.Errorf("%w: opcode %d", ErrUnsupportedType, t.op)
		}
		return layout.Field{Name: name, Type: dt, Stride: dt.Size()}, nil
	}
}

// structStride rounds the extent of fields up to the struct alignment,
// since SPIR-V does not record struct sizes.
func (m *spvModule) structStride(fields []layout.Field, rule layout.Rule) uint32 {
	align := fieldsAlign(fields, rule)
	return roundUp(structExtent(fields), align)
}

func fieldsAlign(fields []layout.Field, rule layout.Rule) uint32 {
	align := uint32(1)
	for _, f := range fields {
		a := f.Type.Alignment(rule)
		if f.IsStruct() {
			a = fieldsAlign(f.Fields, rule)
		}
		align = max(align, a)
	}
	if rule == layout.Std140 {
		align = roundUp(align, 16)
	}
	return align
}

func (m *spvModule) dataType(id uint32) (layout.DataType, bool) {
	t, ok := m.types[id]
	if !ok {
		return 0, false
	}
	switch t.op {
	case opTypeInt, opTypeFloat:
		return spvScalar(t, 1)
	case opTypeVector:
		if len(t.args) < 2 {
			return 0, false
		}
		return spvScalar(m.types[t.args[0]], t.args[1])
	}
	return 0, false
}

func spvScalar(t spvInst, n uint32) (layout.DataType, bool) {
	if len(t.args) < 1 || n < 1 || n > 4 {
		return 0, false
	}
	width := t.args[0]
	switch {
	case t.op == opTypeFloat && width == 32:
		return layout.TypeF32 + layout.DataType(n-1), true
	case t.op == opTypeFloat && width == 16 && n == 2:
		return layout.TypeF16x2, true
	case t.op == opTypeFloat && width == 16 && n == 4:
		return layout.TypeF16x4, true
	case t.op == opTypeInt && width == 32 && len(t.args) > 1 && t.args[1] == 1:
		return layout.TypeI32 + layout.DataType(n-1), true
	case t.op == opTypeInt && width == 32:
		return layout.TypeU32 + layout.DataType(n-1), true
	}
	return 0, false
}

func roundUp(v, align uint32) uint32 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}
