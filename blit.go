package gfx

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gfx/internal/pipeline"
	"github.com/gogpu/gfx/internal/reflection"
	"github.com/gogpu/gfx/recording"
)

// blitWGSL draws a fullscreen triangle sampling a rectangle of the source.
// params.rect holds the source offset in xy and its extent in zw, both in
// normalized coordinates.
const blitWGSL = `
struct Params {
    rect: vec4<f32>,
}

@group(0) @binding(0) var src: texture_2d<f32>;
@group(0) @binding(1) var src_sampler: sampler;
@group(0) @binding(2) var<uniform> params: Params;

struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@vertex
fn vs_main(@builtin(vertex_index) index: u32) -> VertexOutput {
    let corner = vec2<f32>(f32((index << 1u) & 2u), f32(index & 2u));
    var out: VertexOutput;
    out.position = vec4<f32>(corner.x * 2.0 - 1.0, 1.0 - corner.y * 2.0, 0.0, 1.0);
    out.uv = params.rect.xy + corner * params.rect.zw;
    return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    return textureSampleLevel(src, src_sampler, in.uv, 0.0);
}
`

const blitParamsSize = 16

// blitter copies between textures by drawing. It serves Blit, Mipmap and
// canvas mipmaps.
type blitter struct {
	shader   *Shader
	samplers [2]*Sampler // nearest, linear
}

// blitter returns the device blitter, creating it on first use. Callers
// hold submitMu.
func (d *Device) blitter() (*blitter, error) {
	if d.blit != nil {
		return d.blit, nil
	}
	s, err := d.NewShader(blitWGSL, ShaderOptions{Label: "blit"})
	if err != nil {
		return nil, fmt.Errorf("gfx: create blit shader: %w", err)
	}
	b := &blitter{shader: s}
	for i, nearest := range [...]bool{true, false} {
		b.samplers[i], err = d.NewSampler(SamplerOptions{
			Label:        "blit",
			Nearest:      nearest,
			AddressModeU: gputypes.AddressModeClampToEdge,
			AddressModeV: gputypes.AddressModeClampToEdge,
		})
		if err != nil {
			b.destroy()
			return nil, fmt.Errorf("gfx: create blit sampler: %w", err)
		}
	}
	d.blit = b
	return b, nil
}

func (b *blitter) destroy() {
	if b.shader != nil {
		b.shader.Release()
	}
	for _, s := range b.samplers {
		if s != nil {
			s.Release()
		}
	}
}

// blit draws src into dst layer by layer.
func (f *frameEncoder) blit(src, dst recording.TextureRegion, filter gputypes.FilterMode) error {
	b, err := f.d.blitter()
	if err != nil {
		return err
	}
	s, d := src.Texture.(*Texture), dst.Texture.(*Texture)
	sampler := b.samplers[1]
	if filter == gputypes.FilterModeNearest {
		sampler = b.samplers[0]
	}
	rp, err := f.d.pipelines.Render(&pipeline.RenderDescriptor{
		Label:         "blit",
		Shader:        uint64(b.shader.id),
		Module:        b.shader.moduleFor(reflection.StageVertex),
		Layout:        b.shader.layout,
		VertexEntry:   b.shader.entry(reflection.StageVertex),
		FragmentEntry: b.shader.entry(reflection.StageFragment),
		State:         blitState(),
		ColorFormats:  []gputypes.TextureFormat{d.format},
		SampleCount:   1,
	})
	if err != nil {
		return err
	}

	sw, sh, _ := s.mipSize(src.Mip)
	params := make([]byte, 0, blitParamsSize)
	for _, v := range [...]float32{
		float32(src.X) / float32(sw), float32(src.Y) / float32(sh),
		float32(src.Width) / float32(sw), float32(src.Height) / float32(sh),
	} {
		params = binary.LittleEndian.AppendUint32(params, math.Float32bits(v))
	}
	paramsBuf, err := f.d.raw.CreateBuffer(&hal.BufferDescriptor{
		Label: f.d.objectLabel("buffer", "blit_params"),
		Size:  blitParamsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("gfx: create blit params: %w", err)
	}
	f.cleanup = append(f.cleanup, func() { f.d.raw.DestroyBuffer(paramsBuf) })
	if err := f.d.queue.WriteBuffer(paramsBuf, 0, params); err != nil {
		return fmt.Errorf("gfx: write blit params: %w", err)
	}

	for i := range src.Layers {
		srcView, err := s.attachment(src.Layer+i, src.Mip)
		if err != nil {
			return fmt.Errorf("gfx: blit source view: %w", err)
		}
		dstView, err := d.attachment(dst.Layer+i, dst.Mip)
		if err != nil {
			return fmt.Errorf("gfx: blit target view: %w", err)
		}
		bg, err := f.d.raw.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:  f.d.objectLabel("bind_group", "blit"),
			Layout: b.shader.groups[0],
			Entries: []gputypes.BindGroupEntry{
				{Binding: 0, Resource: gputypes.TextureViewBinding{TextureView: srcView.NativeHandle()}},
				{Binding: 1, Resource: gputypes.SamplerBinding{Sampler: sampler.raw.NativeHandle()}},
				{Binding: 2, Resource: gputypes.BufferBinding{Buffer: paramsBuf.NativeHandle(), Size: blitParamsSize}},
			},
		})
		if err != nil {
			return fmt.Errorf("gfx: create blit bind group: %w", err)
		}
		f.cleanup = append(f.cleanup, func() { f.d.raw.DestroyBindGroup(bg) })

		pass := f.enc.BeginRenderPass(&hal.RenderPassDescriptor{
			Label: "blit",
			ColorAttachments: []hal.RenderPassColorAttachment{{
				View:    dstView,
				LoadOp:  gputypes.LoadOpLoad,
				StoreOp: gputypes.StoreOpStore,
			}},
		})
		pass.SetPipeline(rp)
		pass.SetBindGroup(0, bg, nil)
		pass.SetViewport(float32(dst.X), float32(dst.Y), float32(dst.Width), float32(dst.Height), 0, 1)
		pass.SetScissorRect(dst.X, dst.Y, dst.Width, dst.Height)
		pass.Draw(3, 1, 0, 0)
		pass.End()
	}
	return nil
}

// mipmap regenerates count levels below base, each from the one above it.
func (f *frameEncoder) mipmap(t *Texture, base, count uint32) error {
	for mip := base + 1; mip <= base+count; mip++ {
		sw, sh, _ := t.mipSize(mip - 1)
		dw, dh, _ := t.mipSize(mip)
		err := f.blit(
			recording.TextureRegion{Texture: t, Mip: mip - 1, Width: sw, Height: sh, Layers: t.layers},
			recording.TextureRegion{Texture: t, Mip: mip, Width: dw, Height: dh, Layers: t.layers},
			gputypes.FilterModeLinear,
		)
		if err != nil {
			return fmt.Errorf("gfx: mip %d of %q: %w", mip, t.label, err)
		}
	}
	return nil
}

func blitState() recording.PipelineState {
	var s recording.PipelineState
	s.Topology = gputypes.PrimitiveTopologyTriangleList
	s.CullMode = gputypes.CullModeNone
	s.FrontFace = gputypes.FrontFaceCCW
	s.ColorWrite[0] = gputypes.ColorWriteMaskAll
	return s
}
