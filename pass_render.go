package gfx

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/internal/restable"
	"github.com/gogpu/gfx/recording"
)

// Indirect argument sizes in bytes.
const (
	drawIndirectSize        = 16 // vertex count, instance count, first vertex, first instance
	drawIndexedIndirectSize = 20 // index count, instance count, first index, base vertex, first instance
	dispatchIndirectSize    = 12 // x, y, z
)

// Draw records a draw of geometry with the current shader, render state,
// bindings and model transform, multiplied by transform. instances of 0
// draws one instance.
//
// The draw captures a snapshot of the state: later changes to the pass do
// not affect it.
func (p *Pass) Draw(geometry Drawable, transform mgl32.Mat4, instances uint32) error {
	if err := p.checkRecord("draw", PassRender); err != nil {
		return err
	}
	if geometry == nil {
		return fmt.Errorf("%w: nil geometry", ErrInvalidArgument)
	}
	r := geometry.DrawRange()
	if err := r.resolve(p.device.table); err != nil {
		return err
	}
	cmd, err := p.drawCommand(&r, transform)
	if err != nil {
		return err
	}
	cmd.Start, cmd.Count, cmd.BaseVertex = r.Start, r.Count, r.BaseVertex
	cmd.Instances = max(instances, 1)
	return p.record(cmd, cmd.Vertices, cmd.Indices)
}

// Mesh draws count vertices from start, or count indices when indices is
// not nil. A count of 0 draws to the end of the buffer.
func (p *Pass) Mesh(vertices, indices *Buffer, transform mgl32.Mat4, start, count, instances uint32) error {
	return p.Draw(&Mesh{Vertices: vertices, Indices: indices, Start: start, Count: count}, transform, instances)
}

// DrawIndirect records drawCount draws of geometry whose counts are read
// from buf at offset when the pass executes. Arguments are tightly packed
// and 20 bytes per draw when geometry is indexed, otherwise 16. The range
// of geometry is ignored.
func (p *Pass) DrawIndirect(geometry Drawable, buf *Buffer, offset uint64, drawCount uint32) error {
	if err := p.checkRecord("draw indirect", PassRender); err != nil {
		return err
	}
	if geometry == nil || buf == nil {
		return fmt.Errorf("%w: nil geometry or argument buffer", ErrInvalidArgument)
	}
	if err := p.device.table.CheckUsage(buf.id, restable.UsageIndirect); err != nil {
		return err
	}
	r := geometry.DrawRange()
	stride := uint64(drawIndirectSize)
	if r.Indices != nil {
		stride = drawIndexedIndirectSize
	}
	if offset%4 != 0 {
		return fmt.Errorf("%w: indirect offset %d is not a multiple of 4", ErrInvalidArgument, offset)
	}
	drawCount = max(drawCount, 1)
	if _, err := buf.checkRange(offset, stride*uint64(drawCount)); err != nil {
		return err
	}
	if err := r.checkBuffers(p.device.table); err != nil {
		return err
	}
	cmd, err := p.drawCommand(&r, mgl32.Ident4())
	if err != nil {
		return err
	}
	cmd.Indirect, cmd.IndirectOffset, cmd.DrawCount = buf, offset, drawCount
	return p.record(cmd, cmd.Vertices, cmd.Indices, buf)
}

// drawCommand builds the parts of a draw shared by direct and indirect draws.
func (p *Pass) drawCommand(r *DrawRange, transform mgl32.Mat4) (recording.DrawCommand, error) {
	var cmd recording.DrawCommand
	if !p.hasCanvas {
		return cmd, ErrNoCanvas
	}
	if p.shader == nil {
		return cmd, ErrNoShader
	}
	if _, err := vertexLayout(p.shader.program, r.Vertices); err != nil {
		return cmd, err
	}
	if r.Topology > gputypes.PrimitiveTopologyTriangleStrip {
		return cmd, fmt.Errorf("%w: topology %d", ErrInvalidArgument, r.Topology)
	}

	material := r.Material
	if material == nil {
		material = p.material
	}
	bindings, err := p.resolveBindings(material)
	if err != nil {
		return cmd, err
	}

	state := p.state
	state.Pipeline.Shader = p.shader
	state.Pipeline.Topology = r.Topology
	cmd.State = p.list.Pool().AddState(state)
	cmd.Bindings = bindings

	// Typed nil pointers must not reach the interface fields.
	if r.Vertices != nil {
		cmd.Vertices = r.Vertices
	}
	if r.Indices != nil {
		cmd.Indices = r.Indices
		cmd.IndexFormat = r.Indices.indexFormat()
	}
	cmd.Transform = p.transform.Mul4(transform)
	cmd.Color = p.color
	if material != nil {
		cmd.Color = mgl32.Vec4{
			cmd.Color[0] * material.Color[0],
			cmd.Color[1] * material.Color[1],
			cmd.Color[2] * material.Color[2],
			cmd.Color[3] * material.Color[3],
		}
	}
	return cmd, nil
}

// BeginTally starts counting the samples of subsequent draws that pass the
// depth and stencil tests and returns the tally index. At most MaxTallies
// tallies are recorded between resets and only one may be active.
func (p *Pass) BeginTally() (uint32, error) {
	if err := p.checkRecord("begin tally", PassRender); err != nil {
		return 0, err
	}
	if p.tally.active {
		return 0, ErrTallyActive
	}
	if p.tally.count == MaxTallies {
		return 0, fmt.Errorf("%w: %d tallies", ErrTallyLimit, MaxTallies)
	}
	p.tally.active = true
	p.tally.index = p.tally.count
	p.tally.count++
	p.list.Append(recording.BeginTallyCommand{Index: p.tally.index})
	p.dirty = true
	return p.tally.index, nil
}

// FinishTally stops the active tally and returns its index.
func (p *Pass) FinishTally() (uint32, error) {
	if err := p.checkRecord("finish tally", PassRender); err != nil {
		return 0, err
	}
	if !p.tally.active {
		return 0, ErrNoTallyActive
	}
	p.tally.active = false
	p.list.Append(recording.FinishTallyCommand{Index: p.tally.index})
	return p.tally.index, nil
}

// TallyCount returns the number of tallies recorded since the last reset.
func (p *Pass) TallyCount() uint32 { return p.tally.count }

// SetTallyBuffer sets where tally results are written when the pass is
// submitted: one uint32 per tally starting at offset. nil stops writing
// results.
func (p *Pass) SetTallyBuffer(buf *Buffer, offset uint64) error {
	if p.typ != PassRender {
		return fmt.Errorf("%w: tally buffer on a %s pass", ErrWrongPassType, p.typ)
	}
	if buf != nil {
		if err := p.device.table.CheckUsage(buf.id, restable.UsageTransfer); err != nil {
			return err
		}
		if offset%4 != 0 {
			return fmt.Errorf("%w: tally offset %d is not a multiple of 4", ErrInvalidArgument, offset)
		}
		if err := p.device.table.Hold(buf.id); err != nil {
			return err
		}
	}
	if p.tally.buffer != nil {
		p.device.table.Drop(p.tally.buffer.id)
	}
	p.tally.buffer, p.tally.offset = buf, offset
	return nil
}
