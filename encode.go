package gfx

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gfx/internal/pipeline"
	"github.com/gogpu/gfx/internal/reflection"
	"github.com/gogpu/gfx/recording"
)

// drawBlockSize is the size of the draw uniform block: the model transform
// followed by the draw color.
const drawBlockSize = 64 + 16

// uniformArena is the buffer holding the camera and draw blocks of one
// submission. Blocks are written into data while encoding and uploaded
// before the command buffer is submitted.
type uniformArena struct {
	buf   hal.Buffer
	data  []byte
	next  uint64
	align uint64
}

func (a *uniformArena) stride(size uint64) uint64 {
	return alignTo(size, a.align)
}

// uniformAlign is the alignment of dynamic uniform offsets on the device.
func (d *Device) uniformAlign() uint64 {
	return max(uint64(d.limits.MinUniformBufferOffsetAlignment), 16)
}

func alignTo(n, align uint64) uint64 { return (n + align - 1) &^ (align - 1) }

// alloc reserves size bytes and returns their offset.
func (a *uniformArena) alloc(size uint64) (uint64, error) {
	off := a.next
	if off+size > uint64(len(a.data)) {
		return 0, fmt.Errorf("gfx: uniform arena of %d bytes exhausted", len(a.data))
	}
	a.next += a.stride(size)
	return off, nil
}

// frameEncoder encodes the passes of one submission into one command
// encoder.
type frameEncoder struct {
	d        *Device
	enc      hal.CommandEncoder
	uniforms uniformArena
	groups   map[string]hal.BindGroup
	cleanup  []func()
}

func newFrameEncoder(d *Device, uniformSize uint64) (*frameEncoder, error) {
	enc, err := d.raw.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: d.objectLabel("encoder", "submit")})
	if err != nil {
		return nil, fmt.Errorf("gfx: create command encoder: %w", err)
	}
	f := &frameEncoder{d: d, enc: enc, groups: make(map[string]hal.BindGroup)}
	f.cleanup = append(f.cleanup, enc.Destroy)
	if err := enc.BeginEncoding(d.objectLabel("encoder", "submit")); err != nil {
		f.release()
		return nil, fmt.Errorf("gfx: begin encoding: %w", err)
	}

	f.uniforms.align = d.uniformAlign()
	size := max(uniformSize, cameraBlockSize)
	buf, err := d.raw.CreateBuffer(&hal.BufferDescriptor{
		Label: d.objectLabel("buffer", "frame_uniforms"),
		Size:  size,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		enc.DiscardEncoding()
		f.release()
		return nil, fmt.Errorf("gfx: create frame uniforms: %w", err)
	}
	f.uniforms.buf = buf
	f.uniforms.data = make([]byte, size)
	f.cleanup = append(f.cleanup, func() { d.raw.DestroyBuffer(buf) })
	return f, nil
}

// release runs the cleanup of a frame that was never submitted.
func (f *frameEncoder) release() {
	for _, fn := range f.cleanup {
		fn()
	}
	f.cleanup = nil
}

// finish uploads the uniform blocks and ends encoding.
func (f *frameEncoder) finish() (hal.CommandBuffer, error) {
	if f.uniforms.next > 0 {
		if err := f.d.queue.WriteBuffer(f.uniforms.buf, 0, f.uniforms.data[:f.uniforms.next]); err != nil {
			f.enc.DiscardEncoding()
			return nil, fmt.Errorf("gfx: write frame uniforms: %w", err)
		}
	}
	cmd, err := f.enc.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("gfx: end encoding: %w", err)
	}
	return cmd, nil
}

// encodePass plays a pass back into the command encoder. Render passes are
// played back once per view.
func (f *frameEncoder) encodePass(p *Pass, views int) error {
	e := &passEncoder{f: f, p: p}
	if p.typ != PassRender {
		return p.list.Playback(e)
	}

	t := &p.target
	aspect := float32(t.width) / float32(max(t.height, 1))
	cameraStride := f.uniforms.stride(cameraBlockSize)
	base, err := f.uniforms.alloc(cameraStride * uint64(views))
	if err != nil {
		return err
	}
	for v := range views {
		off := base + uint64(v)*cameraStride
		p.camera.appendBlock(f.uniforms.data[off:off], v, aspect)
	}
	e.cameraBase, e.cameraStride = base, cameraStride

	for v := range views {
		e.view, e.ordinal = v, 0
		if err := p.list.Playback(e); err != nil {
			return fmt.Errorf("view %d: %w", v, err)
		}
	}

	if p.canvas.Mipmaps {
		for _, tex := range p.canvas.Colors {
			if tex.mips > 1 && mipmappable(tex.format) {
				if err := f.mipmap(tex, 0, tex.mips-1); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// passEncoder translates the commands of one pass into hal calls. It
// implements recording.Backend.
type passEncoder struct {
	f *frameEncoder
	p *Pass

	render  hal.RenderPassEncoder
	compute hal.ComputePassEncoder

	view         int
	cameraBase   uint64
	cameraStride uint64
	ordinal      int      // draw or dispatch index within a playback
	drawOffsets  []uint64 // written during the first playback
}

var _ recording.Backend = (*passEncoder)(nil)

// Begin implements recording.Backend.
func (e *passEncoder) Begin() error {
	switch e.p.typ {
	case PassRender:
		return e.beginRender()
	case PassCompute:
		e.compute = e.f.enc.BeginComputePass(&hal.ComputePassDescriptor{Label: e.p.label})
	}
	return nil
}

// End implements recording.Backend.
func (e *passEncoder) End() error {
	if e.render != nil {
		e.render.End()
		e.render = nil
	}
	if e.compute != nil {
		e.compute.End()
		e.compute = nil
	}
	return nil
}

func (e *passEncoder) beginRender() error {
	p := e.p
	t := &p.target
	layer := uint32(e.view) //nolint:gosec // G115: at most MaxViews
	desc := &hal.RenderPassDescriptor{Label: p.label}

	for i, tex := range p.canvas.Colors {
		view, err := tex.attachment(layer, 0)
		if err != nil {
			return fmt.Errorf("gfx: color %d view: %w", i, err)
		}
		c := p.clear.Colors[i]
		att := hal.RenderPassColorAttachment{
			View:       view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: float64(c[0]), G: float64(c[1]), B: float64(c[2]), A: float64(c[3])},
		}
		if p.clear.KeepColor[i] {
			att.LoadOp = gputypes.LoadOpLoad
		}
		if len(t.msaa) > i {
			ms, err := t.msaa[i].attachment(layer, 0)
			if err != nil {
				return fmt.Errorf("gfx: multisampled color %d view: %w", i, err)
			}
			att.View, att.ResolveTarget = ms, view
		}
		desc.ColorAttachments = append(desc.ColorAttachments, att)
	}

	if t.depth != nil {
		view, err := t.depth.attachment(layer, 0)
		if err != nil {
			return fmt.Errorf("gfx: depth view: %w", err)
		}
		ds := &hal.RenderPassDepthStencilAttachment{View: view}
		if t.depthFormat.HasDepth() {
			ds.DepthLoadOp, ds.DepthStoreOp = gputypes.LoadOpClear, gputypes.StoreOpStore
			ds.DepthClearValue = p.clear.Depth
			if p.clear.KeepDepth {
				ds.DepthLoadOp = gputypes.LoadOpLoad
			}
		}
		if t.depthFormat.HasStencil() {
			ds.StencilLoadOp, ds.StencilStoreOp = gputypes.LoadOpClear, gputypes.StoreOpStore
			ds.StencilClearValue = p.clear.Stencil
			if p.clear.KeepStencil {
				ds.StencilLoadOp = gputypes.LoadOpLoad
			}
		}
		desc.DepthStencilAttachment = ds
	}
	e.render = e.f.enc.BeginRenderPass(desc)
	return nil
}

// drawOffset returns the offset of the draw block of the current draw,
// writing it during the first playback.
func (e *passEncoder) drawOffset(write func(dst []byte) []byte) (uint64, error) {
	i := e.ordinal
	e.ordinal++
	if i < len(e.drawOffsets) {
		return e.drawOffsets[i], nil
	}
	off, err := e.f.uniforms.alloc(drawBlockSize)
	if err != nil {
		return 0, err
	}
	write(e.f.uniforms.data[off:off])
	e.drawOffsets = append(e.drawOffsets, off)
	return off, nil
}

// Draw implements recording.Backend.
func (e *passEncoder) Draw(cmd recording.DrawCommand, state recording.State, bindings []recording.Binding) error {
	s, ok := state.Pipeline.Shader.(*Shader)
	if !ok {
		return fmt.Errorf("%w: draw without a shader", ErrNoShader)
	}
	drawOff, err := e.drawOffset(func(dst []byte) []byte {
		return appendVec4(appendMat4(dst, cmd.Transform), cmd.Color)
	})
	if err != nil {
		return err
	}

	var vertices *Buffer
	if cmd.Vertices != nil {
		vertices = cmd.Vertices.(*Buffer)
	}
	buffers, err := vertexLayout(s.program, vertices)
	if err != nil {
		return err
	}
	t := &e.p.target
	desc := &pipeline.RenderDescriptor{
		Label:          s.label,
		Shader:         uint64(s.id),
		Module:         s.moduleFor(reflection.StageVertex),
		FragmentModule: s.moduleFor(reflection.StageFragment),
		Layout:         s.layout,
		VertexEntry:    s.entry(reflection.StageVertex),
		FragmentEntry:  s.entry(reflection.StageFragment),
		Buffers:        buffers,
		State:          state.Pipeline,
		ColorFormats:   t.colorFormats,
		DepthFormat:    t.depthFormat,
		SampleCount:    t.samples,
	}
	if cmd.Indices != nil && (state.Pipeline.Topology == gputypes.PrimitiveTopologyLineStrip ||
		state.Pipeline.Topology == gputypes.PrimitiveTopologyTriangleStrip) {
		desc.StripIndexFormat = cmd.IndexFormat
	}
	rp, err := e.f.d.pipelines.Render(desc)
	if err != nil {
		return err
	}

	r := e.render
	r.SetPipeline(rp)
	if err := e.bindGroups(s, bindings, drawOff, r.SetBindGroup); err != nil {
		return err
	}

	if v := state.Viewport; v.IsZero() {
		r.SetViewport(0, 0, float32(t.width), float32(t.height), 0, 1)
	} else {
		r.SetViewport(v.X, v.Y, v.Width, v.Height, v.MinDepth, v.MaxDepth)
	}
	if sc := state.Scissor; sc.IsZero() {
		r.SetScissorRect(0, 0, t.width, t.height)
	} else {
		r.SetScissorRect(sc.X, sc.Y, sc.Width, sc.Height)
	}
	if t.depthFormat.HasStencil() {
		r.SetStencilReference(state.StencilReference)
	}

	if vertices != nil {
		r.SetVertexBuffer(0, vertices.raw, 0)
	}
	if cmd.Indices != nil {
		r.SetIndexBuffer(cmd.Indices.(*Buffer).raw, cmd.IndexFormat, 0)
	}

	if cmd.Indirect != nil {
		args := cmd.Indirect.(*Buffer)
		stride := uint64(drawIndirectSize)
		if cmd.Indices != nil {
			stride = drawIndexedIndirectSize
		}
		for i := range uint64(cmd.DrawCount) {
			if cmd.Indices != nil {
				r.DrawIndexedIndirect(args.raw, cmd.IndirectOffset+i*stride)
			} else {
				r.DrawIndirect(args.raw, cmd.IndirectOffset+i*stride)
			}
		}
		return nil
	}
	if cmd.Indices != nil {
		r.DrawIndexed(cmd.Count, cmd.Instances, cmd.Start, cmd.BaseVertex, 0)
		return nil
	}
	first := cmd.Start
	if cmd.BaseVertex > 0 {
		first += uint32(cmd.BaseVertex) //nolint:gosec // G115: positive
	}
	r.Draw(cmd.Count, cmd.Instances, first, 0)
	return nil
}

// BeginTally implements recording.Backend. The device layer has no
// occlusion queries; tallies resolve to zero at submission.
func (e *passEncoder) BeginTally(uint32) error { return nil }

// FinishTally implements recording.Backend.
func (e *passEncoder) FinishTally(uint32) error { return nil }

// Dispatch implements recording.Backend.
func (e *passEncoder) Dispatch(cmd recording.DispatchCommand, state recording.PipelineState, bindings []recording.Binding) error {
	s, ok := state.Shader.(*Shader)
	if !ok {
		return fmt.Errorf("%w: dispatch without a shader", ErrNoShader)
	}
	drawOff, err := e.drawOffset(func(dst []byte) []byte {
		return appendVec4(appendMat4(dst, mgl32.Ident4()), mgl32.Vec4{1, 1, 1, 1})
	})
	if err != nil {
		return err
	}
	cp, err := e.f.d.pipelines.Compute(&pipeline.ComputeDescriptor{
		Label:      s.label,
		Shader:     uint64(s.id),
		Module:     s.moduleFor(reflection.StageCompute),
		Layout:     s.layout,
		EntryPoint: s.entry(reflection.StageCompute),
	})
	if err != nil {
		return err
	}
	c := e.compute
	c.SetPipeline(cp)
	if err := e.bindGroups(s, bindings, drawOff, c.SetBindGroup); err != nil {
		return err
	}
	if cmd.Indirect != nil {
		c.DispatchIndirect(cmd.Indirect.(*Buffer).raw, cmd.IndirectOffset)
		return nil
	}
	c.Dispatch(cmd.X, cmd.Y, cmd.Z)
	return nil
}

// Barrier implements recording.Backend. Compute passes are synchronized
// with each other, so a barrier starts a new one.
func (e *passEncoder) Barrier() error {
	if e.compute != nil {
		e.compute.End()
	}
	e.compute = e.f.enc.BeginComputePass(&hal.ComputePassDescriptor{Label: e.p.label})
	return nil
}

// bindGroups sets every bind group of s from bindings.
func (e *passEncoder) bindGroups(s *Shader, bindings []recording.Binding, drawOff uint64,
	set func(index uint32, group hal.BindGroup, offsets []uint32),
) error {
	for g := range s.groups {
		group := uint32(g) //nolint:gosec // G115: bounded by the device group limit
		var (
			entries []gputypes.BindGroupEntry
			offsets []uint32
			key     strings.Builder
		)
		key.WriteString(strconv.FormatUint(uint64(s.id), 10))
		key.WriteByte('/')
		key.WriteString(strconv.FormatUint(uint64(group), 10))
		for _, b := range bindings {
			if b.Group != group {
				continue
			}
			res, err := e.bindingResource(s, b)
			if err != nil {
				return err
			}
			entries = append(entries, gputypes.BindGroupEntry{Binding: b.Slot, Resource: res})
			switch b.Builtin {
			case recording.BuiltinCamera:
				offsets = append(offsets, uint32(e.cameraBase+uint64(e.view)*e.cameraStride)) //nolint:gosec // G115: within the arena
				key.WriteString(" c")
			case recording.BuiltinDraw:
				offsets = append(offsets, uint32(drawOff)) //nolint:gosec // G115: within the arena
				key.WriteString(" d")
			default:
				fmt.Fprintf(&key, " %d:%d+%d", b.Resource.ResourceID(), b.Offset, b.Size)
				if t, ok := b.Resource.(*Texture); ok {
					fmt.Fprintf(&key, "@%d.%d", t.baseLayer, t.baseMip)
				}
			}
			key.WriteString("#" + strconv.FormatUint(uint64(b.Slot), 10))
		}
		bg, err := e.f.bindGroup(key.String(), s.groups[g], entries)
		if err != nil {
			return err
		}
		set(group, bg, offsets)
	}
	return nil
}

func (e *passEncoder) bindingResource(s *Shader, b recording.Binding) (gputypes.BindingResource, error) {
	switch b.Builtin {
	case recording.BuiltinCamera:
		return gputypes.BufferBinding{
			Buffer: e.f.uniforms.buf.NativeHandle(),
			Size:   builtinSize(s.program, b, cameraBlockSize),
		}, nil
	case recording.BuiltinDraw:
		return gputypes.BufferBinding{
			Buffer: e.f.uniforms.buf.NativeHandle(),
			Size:   builtinSize(s.program, b, drawBlockSize),
		}, nil
	}
	switch r := b.Resource.(type) {
	case *Buffer:
		size := b.Size
		if size == 0 {
			size = r.size - b.Offset
		}
		return gputypes.BufferBinding{Buffer: r.raw.NativeHandle(), Offset: b.Offset, Size: size}, nil
	case *Texture:
		if b.Kind == recording.BindStorageTexture {
			view, err := r.storageView()
			if err != nil {
				return nil, fmt.Errorf("gfx: storage view of %q: %w", r.label, err)
			}
			return gputypes.TextureViewBinding{TextureView: view.NativeHandle()}, nil
		}
		return gputypes.TextureViewBinding{TextureView: r.view.NativeHandle()}, nil
	case *Sampler:
		return gputypes.SamplerBinding{Sampler: r.raw.NativeHandle()}, nil
	}
	return nil, fmt.Errorf("%w: %s has no resource", ErrUnboundVariable, b)
}

// builtinSize returns the bound size of a builtin block: the size the
// shader declares, at most the size the encoder writes.
func builtinSize(p *reflection.Program, b recording.Binding, written uint64) uint64 {
	for _, v := range p.Variables {
		if v.Group == b.Group && v.Binding == b.Slot && v.Format.Stride > 0 {
			return min(uint64(v.Format.Stride), written)
		}
	}
	return written
}

// bindGroup returns the bind group cached under key for this submission or
// creates it.
func (f *frameEncoder) bindGroup(key string, layout hal.BindGroupLayout, entries []gputypes.BindGroupEntry) (hal.BindGroup, error) {
	if bg, ok := f.groups[key]; ok {
		return bg, nil
	}
	bg, err := f.d.raw.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   f.d.objectLabel("bind_group", key),
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("gfx: create bind group: %w", err)
	}
	f.groups[key] = bg
	f.cleanup = append(f.cleanup, func() { f.d.raw.DestroyBindGroup(bg) })
	return bg, nil
}

// --------------------------------------------------------------------------
// Transfer
// --------------------------------------------------------------------------

// restingUsage is the usage a texture is in outside of copies.
func restingUsage(t *Texture) gputypes.TextureUsage {
	switch {
	case t.usage&TextureRender != 0:
		return gputypes.TextureUsageRenderAttachment
	case t.usage&TextureSample != 0:
		return gputypes.TextureUsageTextureBinding
	case t.usage&TextureStorage != 0:
		return gputypes.TextureUsageStorageBinding
	default:
		return gputypes.TextureUsageCopyDst
	}
}

// transition moves the range of r between its resting usage and a copy
// usage. toCopy selects the direction.
func (f *frameEncoder) transition(r recording.TextureRegion, copyUsage gputypes.TextureUsage, toCopy bool) {
	t := r.Texture.(*Texture)
	rest := restingUsage(t)
	if rest == copyUsage {
		return
	}
	usage := hal.TextureUsageTransition{OldUsage: rest, NewUsage: copyUsage}
	if !toCopy {
		usage.OldUsage, usage.NewUsage = copyUsage, rest
	}
	rng := hal.TextureRange{
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    t.baseMip + r.Mip,
		MipLevelCount:   1,
		BaseArrayLayer:  t.baseLayer + r.Layer,
		ArrayLayerCount: r.Layers,
	}
	if t.typ == Texture3D {
		rng.BaseArrayLayer, rng.ArrayLayerCount = 0, 1
	}
	f.enc.TransitionTextures([]hal.TextureBarrier{{Texture: t.raw, Range: rng, Usage: usage}})
}

// imageCopy returns the hal origin of a region.
func imageCopy(r recording.TextureRegion) (hal.ImageCopyTexture, hal.Extent3D) {
	t := r.Texture.(*Texture)
	z := t.baseLayer + r.Layer
	if t.typ == Texture3D {
		z = r.Layer
	}
	return hal.ImageCopyTexture{
			Texture:  t.raw,
			MipLevel: t.baseMip + r.Mip,
			Origin:   hal.Origin3D{X: r.X, Y: r.Y, Z: z},
			Aspect:   gputypes.TextureAspectAll,
		},
		hal.Extent3D{Width: r.Width, Height: r.Height, DepthOrArrayLayers: r.Layers}
}

// ClearBuffer implements recording.Backend.
func (e *passEncoder) ClearBuffer(cmd recording.ClearBufferCommand) error {
	e.f.enc.ClearBuffer(cmd.Buffer.(*Buffer).raw, cmd.Offset, cmd.Size)
	return nil
}

// ClearTexture implements recording.Backend. Each layer and mip is cleared
// by a render pass that does nothing but clear.
func (e *passEncoder) ClearTexture(cmd recording.ClearTextureCommand) error {
	t := cmd.Texture.(*Texture)
	color := gputypes.Color{R: cmd.Color[0], G: cmd.Color[1], B: cmd.Color[2], A: cmd.Color[3]}
	for mip := cmd.Mip; mip < cmd.Mip+cmd.MipCount; mip++ {
		for layer := cmd.Layer; layer < cmd.Layer+cmd.LayerCount; layer++ {
			view, err := t.attachment(layer, mip)
			if err != nil {
				return fmt.Errorf("gfx: clear view of %q: %w", t.label, err)
			}
			rp := e.f.enc.BeginRenderPass(&hal.RenderPassDescriptor{
				Label: e.p.label,
				ColorAttachments: []hal.RenderPassColorAttachment{{
					View:       view,
					LoadOp:     gputypes.LoadOpClear,
					StoreOp:    gputypes.StoreOpStore,
					ClearValue: color,
				}},
			})
			rp.End()
		}
	}
	return nil
}

// CopyBuffer implements recording.Backend.
func (e *passEncoder) CopyBuffer(cmd recording.CopyBufferCommand) error {
	e.f.enc.CopyBufferToBuffer(cmd.Src.(*Buffer).raw, cmd.Dst.(*Buffer).raw, []hal.BufferCopy{{
		SrcOffset: cmd.SrcOff,
		DstOffset: cmd.DstOff,
		Size:      cmd.Size,
	}})
	return nil
}

// CopyBufferToTexture implements recording.Backend.
func (e *passEncoder) CopyBufferToTexture(cmd recording.CopyBufferToTextureCommand) error {
	base, size := imageCopy(cmd.Dst)
	e.f.transition(cmd.Dst, gputypes.TextureUsageCopyDst, true)
	e.f.enc.CopyBufferToTexture(cmd.Src.(*Buffer).raw, base.Texture, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: cmd.SrcOff, BytesPerRow: cmd.BytesPerRow, RowsPerImage: cmd.Dst.Height},
		TextureBase:  base,
		Size:         size,
	}})
	e.f.transition(cmd.Dst, gputypes.TextureUsageCopyDst, false)
	return nil
}

// CopyTextureToBuffer implements recording.Backend.
func (e *passEncoder) CopyTextureToBuffer(cmd recording.CopyTextureToBufferCommand) error {
	base, size := imageCopy(cmd.Src)
	e.f.transition(cmd.Src, gputypes.TextureUsageCopySrc, true)
	e.f.enc.CopyTextureToBuffer(base.Texture, cmd.Dst.(*Buffer).raw, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: cmd.DstOff, BytesPerRow: cmd.BytesPerRow, RowsPerImage: cmd.Src.Height},
		TextureBase:  base,
		Size:         size,
	}})
	e.f.transition(cmd.Src, gputypes.TextureUsageCopySrc, false)
	return nil
}

// CopyTexture implements recording.Backend.
func (e *passEncoder) CopyTexture(cmd recording.CopyTextureCommand) error {
	src, size := imageCopy(cmd.Src)
	dst, _ := imageCopy(cmd.Dst)
	e.f.transition(cmd.Src, gputypes.TextureUsageCopySrc, true)
	e.f.transition(cmd.Dst, gputypes.TextureUsageCopyDst, true)
	e.f.enc.CopyTextureToTexture(src.Texture, dst.Texture, []hal.TextureCopy{{SrcBase: src, DstBase: dst, Size: size}})
	e.f.transition(cmd.Dst, gputypes.TextureUsageCopyDst, false)
	e.f.transition(cmd.Src, gputypes.TextureUsageCopySrc, false)
	return nil
}

// Blit implements recording.Backend.
func (e *passEncoder) Blit(cmd recording.BlitCommand) error {
	return e.f.blit(cmd.Src, cmd.Dst, cmd.Filter)
}

// Mipmap implements recording.Backend.
func (e *passEncoder) Mipmap(cmd recording.MipmapCommand) error {
	return e.f.mipmap(cmd.Texture.(*Texture), cmd.Base, cmd.Count)
}
