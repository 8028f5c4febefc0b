// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package reflection extracts the resource interface of a shader program:
// named buffer, texture and sampler variables with their binding slots and
// buffer layouts, vertex attributes, stages and workgroup sizes.
//
// Programs are produced from WGSL source through the naga IR (FromWGSL) or
// from SPIR-V bytecode (FromSPIRV). Per-stage programs are combined with
// Merge, which deduplicates variables shared between stages.
package reflection

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/layout"
)

// Reflection errors.
var (
	// ErrUnknownVariable is returned when a variable name is not declared by the program.
	ErrUnknownVariable = errors.New("reflection: unknown variable")

	// ErrNotBuffer is returned by BufferFormat for non-buffer variables.
	ErrNotBuffer = errors.New("reflection: variable is not a buffer")

	// ErrConflictingBinding is returned when two stages declare the same name
	// with a different kind or slot.
	ErrConflictingBinding = errors.New("reflection: conflicting declarations")

	// ErrInvalidSPIRV is returned for malformed SPIR-V bytecode.
	ErrInvalidSPIRV = errors.New("reflection: invalid SPIR-V")

	// ErrUnsupportedType is returned for types that cannot appear in a buffer layout.
	ErrUnsupportedType = errors.New("reflection: unsupported type")
)

// Kind is the category of resource a variable binds.
type Kind uint8

const (
	KindUniformBuffer Kind = iota + 1
	KindStorageBuffer
	KindSampledTexture
	KindStorageTexture
	KindSampler
	KindPushConstant
)

var kindNames = [...]string{
	KindUniformBuffer:  "uniform buffer",
	KindStorageBuffer:  "storage buffer",
	KindSampledTexture: "sampled texture",
	KindStorageTexture: "storage texture",
	KindSampler:        "sampler",
	KindPushConstant:   "push constant",
}

// String returns the kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// IsBuffer reports whether the kind binds a buffer.
func (k Kind) IsBuffer() bool {
	return k == KindUniformBuffer || k == KindStorageBuffer || k == KindPushConstant
}

// IsTexture reports whether the kind binds a texture.
func (k Kind) IsTexture() bool {
	return k == KindSampledTexture || k == KindStorageTexture
}

// Stage is a bit set of shader stages.
type Stage uint8

const (
	StageVertex Stage = 1 << iota
	StageFragment
	StageCompute
)

// String returns a readable stage list.
func (s Stage) String() string {
	var out string
	add := func(name string) {
		if out != "" {
			out += "|"
		}
		out += name
	}
	if s&StageVertex != 0 {
		add("vertex")
	}
	if s&StageFragment != 0 {
		add("fragment")
	}
	if s&StageCompute != 0 {
		add("compute")
	}
	if out == "" {
		return "none"
	}
	return out
}

// ShaderStages converts the set to gputypes stage flags.
func (s Stage) ShaderStages() gputypes.ShaderStages {
	var out gputypes.ShaderStages
	if s&StageVertex != 0 {
		out |= gputypes.ShaderStageVertex
	}
	if s&StageFragment != 0 {
		out |= gputypes.ShaderStageFragment
	}
	if s&StageCompute != 0 {
		out |= gputypes.ShaderStageCompute
	}
	return out
}

// TextureInfo describes a texture variable.
type TextureInfo struct {
	Dimension    gputypes.TextureViewDimension
	SampleType   gputypes.TextureSampleType
	Multisampled bool
	Format       gputypes.TextureFormat // storage textures only
	Access       gputypes.StorageTextureAccess
}

// Variable is a resource declared by the program.
type Variable struct {
	Name    string
	Kind    Kind
	Group   uint32
	Binding uint32
	Stages  Stage

	// Buffers: element format and element count (0 for runtime-sized).
	Format   layout.Format
	Length   uint32
	ReadOnly bool

	Texture    TextureInfo
	Comparison bool   // comparison sampler
	Count      uint32 // binding array size, 1 for plain bindings
}

// Attribute is a vertex shader input.
type Attribute struct {
	Name     string
	Location uint32
	Type     layout.DataType
}

// Constant is a specialization (override) constant.
type Constant struct {
	Name string
	ID   int // -1 when the constant has no numeric ID
}

// EntryPoint is a named stage entry.
type EntryPoint struct {
	Name      string
	Stage     Stage
	Workgroup [3]uint32
}

// Program is the reflected interface of one or more shader stages.
type Program struct {
	Stages      Stage
	EntryPoints []EntryPoint
	Variables   []Variable
	Attributes  []Attribute
	Constants   []Constant
	Workgroup   [3]uint32
}

// Variable returns the variable with the given name.
func (p *Program) Variable(name string) (*Variable, bool) {
	for i := range p.Variables {
		if p.Variables[i].Name == name {
			return &p.Variables[i], true
		}
	}
	return nil, false
}

// HasVariable reports whether the program declares a variable named name.
func (p *Program) HasVariable(name string) bool {
	_, ok := p.Variable(name)
	return ok
}

// HasAttribute reports whether the vertex stage has an input named name.
func (p *Program) HasAttribute(name string) bool {
	for _, a := range p.Attributes {
		if a.Name == name {
			return true
		}
	}
	return false
}

// HasLocation reports whether the vertex stage has an input at location.
func (p *Program) HasLocation(location uint32) bool {
	for _, a := range p.Attributes {
		if a.Location == location {
			return true
		}
	}
	return false
}

// HasStage reports whether the program contains stage.
func (p *Program) HasStage(stage Stage) bool { return p.Stages&stage == stage && stage != 0 }

// IsCompute reports whether the program is a compute program.
func (p *Program) IsCompute() bool { return p.Stages&StageCompute != 0 }

// EntryPoint returns the name of the entry point for stage.
func (p *Program) EntryPoint(stage Stage) (string, bool) {
	for _, ep := range p.EntryPoints {
		if ep.Stage == stage {
			return ep.Name, true
		}
	}
	return "", false
}

// BufferFormat returns the element format and element count of a buffer
// variable, so that callers can allocate a matching buffer.
func (p *Program) BufferFormat(name string) (layout.Format, uint32, error) {
	v, ok := p.Variable(name)
	if !ok {
		return layout.Format{}, 0, fmt.Errorf("%w: %q", ErrUnknownVariable, name)
	}
	if !v.Kind.IsBuffer() {
		return layout.Format{}, 0, fmt.Errorf("%w: %q is a %s", ErrNotBuffer, name, v.Kind)
	}
	return v.Format, v.Length, nil
}

// Groups returns the number of bind groups the program uses.
func (p *Program) Groups() uint32 {
	var n uint32
	for _, v := range p.Variables {
		if v.Kind == KindPushConstant {
			continue
		}
		if v.Group+1 > n {
			n = v.Group + 1
		}
	}
	return n
}

// GroupVariables returns the variables of group, ordered by binding.
func (p *Program) GroupVariables(group uint32) []Variable {
	var out []Variable
	for _, v := range p.Variables {
		if v.Kind != KindPushConstant && v.Group == group {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Binding < out[j].Binding })
	return out
}

// Merge combines per-stage programs. Variables with the same name and kind
// are merged into one slot with the union of their stages; a name reused
// with another kind or another slot is an error.
func Merge(programs ...*Program) (*Program, error) {
	out := &Program{}
	for _, p := range programs {
		if p == nil {
			continue
		}
		out.Stages |= p.Stages
		out.EntryPoints = append(out.EntryPoints, p.EntryPoints...)
		if p.IsCompute() {
			out.Workgroup = p.Workgroup
		}
		for _, v := range p.Variables {
			if err := out.addVariable(v); err != nil {
				return nil, err
			}
		}
		if p.Stages&StageVertex != 0 {
			out.Attributes = append(out.Attributes, p.Attributes...)
		}
		for _, c := range p.Constants {
			if !out.hasConstant(c.Name) {
				out.Constants = append(out.Constants, c)
			}
		}
	}
	return out, nil
}

// addVariable inserts v, deduplicating against an existing declaration.
func (p *Program) addVariable(v Variable) error {
	existing, ok := p.Variable(v.Name)
	if !ok {
		p.Variables = append(p.Variables, v)
		return nil
	}
	if existing.Kind != v.Kind {
		return fmt.Errorf("%w: %q is a %s and a %s", ErrConflictingBinding, v.Name, existing.Kind, v.Kind)
	}
	if v.Kind != KindPushConstant && (existing.Group != v.Group || existing.Binding != v.Binding) {
		return fmt.Errorf("%w: %q bound at (%d,%d) and (%d,%d)", ErrConflictingBinding,
			v.Name, existing.Group, existing.Binding, v.Group, v.Binding)
	}
	existing.Stages |= v.Stages
	return nil
}

func (p *Program) hasConstant(name string) bool {
	for _, c := range p.Constants {
		if c.Name == name {
			return true
		}
	}
	return false
}

// bufferFormat converts the layout tree of a buffer block into a Format,
// unwrapping blocks with exactly one member: a lone array member yields its
// element layout and length, any other lone member yields itself. A block
// that is itself an array yields its element layout and length.
func bufferFormat(name string, block layout.Field, rule layout.Rule) (layout.Format, uint32) {
	if block.IsArray() {
		return unwrap(withName(block, name), block.Stride, rule)
	}
	root := block
	if !block.IsStruct() {
		root = layout.Field{Fields: []layout.Field{withName(block, name)}, Stride: block.Extent()}
	}
	if len(root.Fields) == 1 {
		return unwrap(root.Fields[0], root.Stride, rule)
	}
	stride := root.Stride
	if stride == 0 {
		stride = structExtent(root.Fields)
	}
	return layout.Format{Fields: root.Fields, Stride: stride, Rule: rule}, 1
}

func unwrap(m layout.Field, blockStride uint32, rule layout.Rule) (layout.Format, uint32) {
	if !m.IsArray() {
		m.Offset = 0
		return layout.Format{Fields: []layout.Field{m}, Stride: max(blockStride, m.Extent()), Rule: rule}, 1
	}
	length := m.Length
	if length == layout.Unbounded {
		length = 0
	}
	if m.IsStruct() {
		return layout.Format{Fields: m.Fields, Stride: m.Stride, Rule: rule}, length
	}
	elem := layout.Field{Name: m.Name, Type: m.Type}
	return layout.Format{Fields: []layout.Field{elem}, Stride: m.Stride, Rule: rule}, length
}

func withName(f layout.Field, name string) layout.Field {
	if f.Name == "" {
		f.Name = name
	}
	return f
}

func structExtent(fields []layout.Field) uint32 {
	var end uint32
	for _, f := range fields {
		e := f.Offset + f.Extent()
		if f.IsArray() && f.Length != layout.Unbounded {
			e = f.Offset + f.Stride*f.Length
		}
		if e > end {
			end = e
		}
	}
	return end
}
