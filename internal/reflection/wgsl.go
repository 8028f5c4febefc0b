// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package reflection

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"

	"github.com/gogpu/gfx/layout"
)

// FromWGSL parses and lowers WGSL source with naga and reflects the
// resulting module. The lowered module is returned as well so callers can
// specialize it later (override constants) without parsing again.
func FromWGSL(source string) (*Program, *ir.Module, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, nil, fmt.Errorf("reflection: parse wgsl: %w", err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, nil, fmt.Errorf("reflection: lower wgsl: %w", err)
	}
	p, err := FromModule(module)
	if err != nil {
		return nil, nil, err
	}
	return p, module, nil
}

// FromModule reflects a naga IR module. Every resource variable is visible
// to every stage of the module.
func FromModule(module *ir.Module) (*Program, error) {
	r := irReader{module: module}
	p := &Program{}

	for _, ep := range module.EntryPoints {
		stage, ok := irStage(ep.Stage)
		if !ok {
			continue
		}
		p.Stages |= stage
		p.EntryPoints = append(p.EntryPoints, EntryPoint{Name: ep.Name, Stage: stage, Workgroup: ep.Workgroup})
		if stage == StageCompute {
			p.Workgroup = ep.Workgroup
		}
		if stage == StageVertex {
			for _, arg := range ep.Function.Arguments {
				p.Attributes = append(p.Attributes, r.attributes(arg.Name, arg.Type, arg.Binding)...)
			}
		}
	}

	for _, gv := range module.GlobalVariables {
		v, ok, err := r.variable(gv)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		v.Stages = p.Stages
		if err := p.addVariable(v); err != nil {
			return nil, err
		}
	}

	for _, o := range module.Overrides {
		c := Constant{Name: o.Name, ID: -1}
		if o.ID != nil {
			c.ID = int(*o.ID)
		}
		p.Constants = append(p.Constants, c)
	}
	return p, nil
}

func irStage(s ir.ShaderStage) (Stage, bool) {
	switch s {
	case ir.StageVertex:
		return StageVertex, true
	case ir.StageFragment:
		return StageFragment, true
	case ir.StageCompute:
		return StageCompute, true
	default:
		return 0, false
	}
}

// irReader converts naga IR types into reflection data.
type irReader struct {
	module *ir.Module
}

func (r irReader) inner(h ir.TypeHandle) ir.TypeInner {
	if int(h) >= len(r.module.Types) {
		return nil
	}
	return r.module.Types[h].Inner
}

// attributes returns the vertex inputs carried by one entry point argument.
// Struct arguments contribute one attribute per located member.
func (r irReader) attributes(name string, h ir.TypeHandle, binding *ir.Binding) []Attribute {
	if binding != nil {
		loc, ok := (*binding).(ir.LocationBinding)
		if !ok {
			return nil
		}
		t, _ := r.dataType(h)
		return []Attribute{{Name: name, Location: loc.Location, Type: t}}
	}
	st, ok := r.inner(h).(ir.StructType)
	if !ok {
		return nil
	}
	var out []Attribute
	for _, m := range st.Members {
		out = append(out, r.attributes(m.Name, m.Type, m.Binding)...)
	}
	return out
}

// variable converts a global variable; ok is false for globals that are not
// resources (private, workgroup).
func (r irReader) variable(gv ir.GlobalVariable) (Variable, bool, error) {
	v := Variable{Name: gv.Name, Count: 1}
	if gv.Binding != nil {
		v.Group, v.Binding = gv.Binding.Group, gv.Binding.Binding
	}

	switch gv.Space {
	case ir.SpaceUniform, ir.SpaceStorage, ir.SpacePushConstant:
		rule := layout.Std430
		switch gv.Space {
		case ir.SpaceUniform:
			v.Kind = KindUniformBuffer
			rule = layout.Std140
		case ir.SpaceStorage:
			v.Kind = KindStorageBuffer
			v.ReadOnly = gv.Access == ir.StorageRead
		default:
			v.Kind = KindPushConstant
		}
		block, err := r.field(gv.Name, gv.Type)
		if err != nil {
			return Variable{}, false, fmt.Errorf("reflection: variable %q: %w", gv.Name, err)
		}
		v.Format, v.Length = bufferFormat(gv.Name, block, rule)
		return v, true, nil

	case ir.SpaceHandle:
		h := gv.Type
		if ba, ok := r.inner(h).(ir.BindingArrayType); ok {
			h = ba.Base
			v.Count = 0
			if ba.Size != nil {
				v.Count = *ba.Size
			}
		}
		switch t := r.inner(h).(type) {
		case ir.SamplerType:
			v.Kind = KindSampler
			v.Comparison = t.Comparison
		case ir.ImageType:
			v.Texture = imageInfo(t)
			if t.Class == ir.ImageClassStorage {
				v.Kind = KindStorageTexture
				v.ReadOnly = t.StorageAccess == ir.StorageAccessRead
			} else {
				v.Kind = KindSampledTexture
			}
		default:
			return Variable{}, false, nil
		}
		return v, true, nil
	}
	return Variable{}, false, nil
}

func imageInfo(t ir.ImageType) TextureInfo {
	info := TextureInfo{Multisampled: t.Multisampled}
	switch t.Dim {
	case ir.Dim1D:
		info.Dimension = gputypes.TextureViewDimension1D
	case ir.Dim3D:
		info.Dimension = gputypes.TextureViewDimension3D
	case ir.DimCube:
		info.Dimension = gputypes.TextureViewDimensionCube
		if t.Arrayed {
			info.Dimension = gputypes.TextureViewDimensionCubeArray
		}
	default:
		info.Dimension = gputypes.TextureViewDimension2D
		if t.Arrayed {
			info.Dimension = gputypes.TextureViewDimension2DArray
		}
	}
	switch t.Class {
	case ir.ImageClassDepth:
		info.SampleType = gputypes.TextureSampleTypeDepth
	case ir.ImageClassStorage:
		info.Format = storageFormats[t.StorageFormat]
		switch t.StorageAccess {
		case ir.StorageAccessRead:
			info.Access = gputypes.StorageTextureAccessReadOnly
		case ir.StorageAccessWrite:
			info.Access = gputypes.StorageTextureAccessWriteOnly
		default:
			info.Access = gputypes.StorageTextureAccessReadWrite
		}
	default:
		info.SampleType = sampleType(t.SampledKind)
		if t.Multisampled && info.SampleType == gputypes.TextureSampleTypeFloat {
			info.SampleType = gputypes.TextureSampleTypeUnfilterableFloat
		}
	}
	return info
}

func sampleType(k ir.ScalarKind) gputypes.TextureSampleType {
	switch k {
	case ir.ScalarSint:
		return gputypes.TextureSampleTypeSint
	case ir.ScalarUint:
		return gputypes.TextureSampleTypeUint
	default:
		return gputypes.TextureSampleTypeFloat
	}
}

var storageFormats = map[ir.StorageFormat]gputypes.TextureFormat{
	ir.StorageFormatR8Unorm:       gputypes.TextureFormatR8Unorm,
	ir.StorageFormatR8Snorm:       gputypes.TextureFormatR8Snorm,
	ir.StorageFormatR8Uint:        gputypes.TextureFormatR8Uint,
	ir.StorageFormatR8Sint:        gputypes.TextureFormatR8Sint,
	ir.StorageFormatR16Uint:       gputypes.TextureFormatR16Uint,
	ir.StorageFormatR16Sint:       gputypes.TextureFormatR16Sint,
	ir.StorageFormatR16Float:      gputypes.TextureFormatR16Float,
	ir.StorageFormatRg8Unorm:      gputypes.TextureFormatRG8Unorm,
	ir.StorageFormatRg8Snorm:      gputypes.TextureFormatRG8Snorm,
	ir.StorageFormatRg8Uint:       gputypes.TextureFormatRG8Uint,
	ir.StorageFormatRg8Sint:       gputypes.TextureFormatRG8Sint,
	ir.StorageFormatR32Uint:       gputypes.TextureFormatR32Uint,
	ir.StorageFormatR32Sint:       gputypes.TextureFormatR32Sint,
	ir.StorageFormatR32Float:      gputypes.TextureFormatR32Float,
	ir.StorageFormatRg16Uint:      gputypes.TextureFormatRG16Uint,
	ir.StorageFormatRg16Sint:      gputypes.TextureFormatRG16Sint,
	ir.StorageFormatRg16Float:     gputypes.TextureFormatRG16Float,
	ir.StorageFormatRgba8Unorm:    gputypes.TextureFormatRGBA8Unorm,
	ir.StorageFormatRgba8Snorm:    gputypes.TextureFormatRGBA8Snorm,
	ir.StorageFormatRgba8Uint:     gputypes.TextureFormatRGBA8Uint,
	ir.StorageFormatRgba8Sint:     gputypes.TextureFormatRGBA8Sint,
	ir.StorageFormatBgra8Unorm:    gputypes.TextureFormatBGRA8Unorm,
	ir.StorageFormatRgb10a2Uint:   gputypes.TextureFormatRGB10A2Uint,
	ir.StorageFormatRgb10a2Unorm:  gputypes.TextureFormatRGB10A2Unorm,
	ir.StorageFormatRg11b10Ufloat: gputypes.TextureFormatRG11B10Ufloat,
	ir.StorageFormatRg32Uint:      gputypes.TextureFormatRG32Uint,
	ir.StorageFormatRg32Sint:      gputypes.TextureFormatRG32Sint,
	ir.StorageFormatRg32Float:     gputypes.TextureFormatRG32Float,
	ir.StorageFormatRgba16Uint:    gputypes.TextureFormatRGBA16Uint,
	ir.StorageFormatRgba16Sint:    gputypes.TextureFormatRGBA16Sint,
	ir.StorageFormatRgba16Float:   gputypes.TextureFormatRGBA16Float,
	ir.StorageFormatRgba32Uint:    gputypes.TextureFormatRGBA32Uint,
	ir.StorageFormatRgba32Sint:    gputypes.TextureFormatRGBA32Sint,
	ir.StorageFormatRgba32Float:   gputypes.TextureFormatRGBA32Float,
}

// field converts a host-shareable IR type into a layout field named name.
// Offsets and strides are the ones computed by naga during lowering.
func (r irReader) field(name string, h ir.TypeHandle) (layout.Field, error) {
	switch t := r.inner(h).(type) {
	case ir.StructType:
		f := layout.Field{Name: name, Stride: t.Span}
		for _, m := range t.Members {
			mf, err := r.field(m.Name, m.Type)
			if err != nil {
				return layout.Field{}, err
			}
			mf.Offset = m.Offset
			f.Fields = append(f.Fields, mf)
		}
		return f, nil

	case ir.ArrayType:
		elem, err := r.field(name, t.Base)
		if err != nil {
			return layout.Field{}, err
		}
		length := layout.Unbounded
		if t.Size.Constant != nil {
			length = *t.Size.Constant
		}
		if elem.IsArray() {
			// Arrays of arrays nest the inner array in an anonymous struct.
			elem.Offset = 0
			return layout.Field{Name: name, Fields: []layout.Field{elem}, Length: length, Stride: t.Stride}, nil
		}
		elem.Length = length
		elem.Stride = t.Stride
		return elem, nil

	case ir.MatrixType:
		if t.Columns == t.Rows && t.Scalar.Kind == ir.ScalarFloat && t.Scalar.Width == 4 {
			dt := map[ir.VectorSize]layout.DataType{ir.Vec2: layout.TypeMat2, ir.Vec3: layout.TypeMat3, ir.Vec4: layout.TypeMat4}[t.Columns]
			return layout.Field{Name: name, Type: dt, Stride: ir.TypeSize(r.module, h)}, nil
		}
		col, ok := vectorType(t.Scalar, t.Rows)
		if !ok {
			return layout.Field{}, fmt.Errorf("%w: matrix of %v", ErrUnsupportedType, t.Scalar.Kind)
		}
		colStride := ir.TypeSize(r.module, h) / uint32(t.Columns)
		return layout.Field{Name: name, Type: col, Length: uint32(t.Columns), Stride: colStride}, nil

	default:
		dt, ok := r.dataType(h)
		if !ok {
			return layout.Field{}, fmt.Errorf("%w: %T", ErrUnsupportedType, t)
		}
		return layout.Field{Name: name, Type: dt, Stride: dt.Size()}, nil
	}
}

// dataType maps scalar, vector and atomic types to a DataType.
func (r irReader) dataType(h ir.TypeHandle) (layout.DataType, bool) {
	switch t := r.inner(h).(type) {
	case ir.ScalarType:
		return vectorType(t, 1)
	case ir.AtomicType:
		return vectorType(t.Scalar, 1)
	case ir.VectorType:
		return vectorType(t.Scalar, t.Size)
	default:
		return 0, false
	}
}

func vectorType(s ir.ScalarType, size ir.VectorSize) (layout.DataType, bool) {
	if s.Width == 2 && s.Kind == ir.ScalarFloat {
		switch size {
		case ir.Vec2:
			return layout.TypeF16x2, true
		case ir.Vec4:
			return layout.TypeF16x4, true
		}
		return 0, false
	}
	if s.Width != 4 || size < 1 || size > 4 {
		return 0, false
	}
	var base layout.DataType
	switch s.Kind {
	case ir.ScalarFloat:
		base = layout.TypeF32
	case ir.ScalarSint:
		base = layout.TypeI32
	case ir.ScalarUint:
		base = layout.TypeU32
	default:
		return 0, false
	}
	return base + layout.DataType(size-1), true
}
