package gfx

import (
	"fmt"
	"maps"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/internal/reflection"
	"github.com/gogpu/gfx/internal/restable"
)

// DrawRange is the geometry of one draw. A DrawRange without vertices is
// a procedural draw whose shader generates positions from the vertex index.
type DrawRange struct {
	Vertices *Buffer
	Indices  *Buffer // optional
	Topology gputypes.PrimitiveTopology

	// Start and Count select vertices, or indices for indexed draws. A zero
	// Count draws to the end of the buffer.
	Start      uint32
	Count      uint32
	BaseVertex int32

	Material *Material // optional
}

// DrawRange implements Drawable.
func (r DrawRange) DrawRange() DrawRange { return r }

// Drawable is anything a render pass can draw.
type Drawable interface {
	DrawRange() DrawRange
}

// Mesh is a vertex buffer with an optional index buffer and material.
type Mesh struct {
	Vertices *Buffer
	Indices  *Buffer
	Topology gputypes.PrimitiveTopology
	Material *Material

	Start, Count uint32
}

// DrawRange implements Drawable.
func (m *Mesh) DrawRange() DrawRange {
	return DrawRange{
		Vertices: m.Vertices,
		Indices:  m.Indices,
		Topology: m.Topology,
		Start:    m.Start,
		Count:    m.Count,
		Material: m.Material,
	}
}

// Material is a set of textures and a color shared by draws. Textures are
// bound to shader variables of the same name that nothing was sent to.
// Color multiplies the pass color.
type Material struct {
	Label    string
	Color    mgl32.Vec4
	Textures map[string]*Texture
}

// NewMaterial returns a white material without textures.
func NewMaterial(label string) *Material {
	return &Material{Label: label, Color: mgl32.Vec4{1, 1, 1, 1}, Textures: make(map[string]*Texture)}
}

// Clone returns a copy of m that can be changed independently.
func (m *Material) Clone() *Material {
	c := *m
	c.Textures = maps.Clone(m.Textures)
	return &c
}

// checkBuffers checks the usages and index stride of the range's buffers.
func (r *DrawRange) checkBuffers(table *restable.Table) error {
	if r.Vertices != nil {
		if err := table.CheckUsage(r.Vertices.id, restable.UsageVertex); err != nil {
			return err
		}
	}
	if r.Indices != nil {
		if err := table.CheckUsage(r.Indices.id, restable.UsageIndex); err != nil {
			return err
		}
		if s := r.Indices.format.Stride; s != 2 && s != 4 {
			return fmt.Errorf("%w: index buffer %q has a %d byte stride", ErrInvalidArgument, r.Indices.label, s)
		}
	}
	return nil
}

// resolve fills defaulted range fields and checks buffer usages.
func (r *DrawRange) resolve(table *restable.Table) error {
	if err := r.checkBuffers(table); err != nil {
		return err
	}
	var limit uint32
	switch {
	case r.Indices != nil:
		limit = r.Indices.length
	case r.Vertices != nil:
		limit = r.Vertices.length
	default:
		if r.Count == 0 {
			return fmt.Errorf("%w: procedural draw needs a vertex count", ErrInvalidArgument)
		}
		return nil
	}
	if r.Count == 0 {
		if r.Start > limit {
			return fmt.Errorf("%w: draw start %d of %d", ErrOutOfRange, r.Start, limit)
		}
		r.Count = limit - r.Start
	}
	if uint64(r.Start)+uint64(r.Count) > uint64(limit) {
		return fmt.Errorf("%w: draw range [%d, %d) of %d", ErrOutOfRange, r.Start, r.Start+r.Count, limit)
	}
	return nil
}

// vertexLayout maps the fields of a vertex buffer to the inputs of a
// shader. Fields are matched by name, or by position when the field is
// unnamed.
func vertexLayout(p *reflection.Program, vertices *Buffer) ([]gputypes.VertexBufferLayout, error) {
	if len(p.Attributes) == 0 {
		return nil, nil
	}
	if vertices == nil {
		return nil, fmt.Errorf("%w: shader reads %q but the draw has no vertices", ErrMissingAttribute, p.Attributes[0].Name)
	}
	f := vertices.format
	attrs := make([]gputypes.VertexAttribute, 0, len(p.Attributes))
	for _, a := range p.Attributes {
		field, ok := f.Field(a.Name)
		if !ok && int(a.Location) < len(f.Fields) && f.Fields[a.Location].Name == "" {
			field, ok = f.Fields[a.Location], true
		}
		if !ok {
			return nil, fmt.Errorf("%w: %q (location %d) in buffer %q", ErrMissingAttribute, a.Name, a.Location, vertices.label)
		}
		vf := field.Type.VertexFormat()
		if vf == gputypes.VertexFormatUndefined || field.IsArray() || field.IsStruct() {
			return nil, fmt.Errorf("%w: field %q of type %s is not a vertex format", ErrMissingAttribute, field.Name, field.Type)
		}
		attrs = append(attrs, gputypes.VertexAttribute{
			Format:         vf,
			Offset:         uint64(field.Offset),
			ShaderLocation: a.Location,
		})
	}
	return []gputypes.VertexBufferLayout{{
		ArrayStride: uint64(f.Stride),
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes:  attrs,
	}}, nil
}
