package gfx

import (
	"testing"

	"github.com/gogpu/gputypes"
	_ "github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/gfx/layout"
)

const unlitShader = `
struct Camera {
    view: mat4x4<f32>,
    projection: mat4x4<f32>,
    view_projection: mat4x4<f32>,
    inverse_projection: mat4x4<f32>,
}

struct Draw {
    transform: mat4x4<f32>,
    color: vec4<f32>,
}

@group(0) @binding(0) var<uniform> camera: Camera;
@group(0) @binding(1) var<uniform> draw: Draw;
@group(1) @binding(0) var albedo: texture_2d<f32>;
@group(1) @binding(1) var albedo_sampler: sampler;

struct VertexOut {
    @builtin(position) clip: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@vertex
fn vs_main(@location(0) position: vec3<f32>, @location(1) uv: vec2<f32>) -> VertexOut {
    var out: VertexOut;
    out.clip = camera.view_projection * draw.transform * vec4<f32>(position, 1.0);
    out.uv = uv;
    return out;
}

@fragment
fn fs_main(in: VertexOut) -> @location(0) vec4<f32> {
    return textureSample(albedo, albedo_sampler, in.uv) * draw.color;
}
`

// fillShader declares a buffer where unlitShader declares a texture.
const fillShader = `
struct Fill {
    color: vec4<f32>,
}

@group(1) @binding(0) var<uniform> albedo: Fill;

@vertex
fn vs_main(@location(0) position: vec3<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(position, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return albedo.color;
}
`

const proceduralShader = `
@vertex
fn vs_main(@builtin(vertex_index) index: u32) -> @builtin(position) vec4<f32> {
    let corner = vec2<f32>(f32((index << 1u) & 2u), f32(index & 2u));
    return vec4<f32>(corner * 2.0 - 1.0, 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0);
}
`

const numbersShader = `
struct Numbers {
    values: array<u32>,
}

@group(0) @binding(0) var<storage, read_write> numbers: Numbers;

@compute @workgroup_size(64, 1, 1)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    numbers.values[id.x] = numbers.values[id.x] * 2u;
}
`

func newTestDevice(t *testing.T) *Device {
	t.Helper()
	d, err := Open(WithBackend(gputypes.BackendEmpty), WithLabel("test"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return d
}

func newTestShader(t *testing.T, d *Device, source string) *Shader {
	t.Helper()
	s, err := d.NewShader(source, ShaderOptions{Label: "test"})
	if err != nil {
		t.Fatalf("NewShader() error = %v", err)
	}
	return s
}

func vertexFormat(t *testing.T) layout.Format {
	t.Helper()
	f, err := layout.Compute(layout.Packed,
		layout.Field{Name: "position", Type: layout.TypeF32x3},
		layout.Field{Name: "uv", Type: layout.TypeF32x2},
	)
	if err != nil {
		t.Fatalf("layout.Compute() error = %v", err)
	}
	return f
}

func newVertices(t *testing.T, d *Device, n uint32) *Buffer {
	t.Helper()
	b, err := d.NewBuffer(BufferOptions{Label: "vertices", Format: vertexFormat(t), Length: n, Usage: BufferVertex | BufferTransfer})
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}
	return b
}

func newTarget(t *testing.T, d *Device, size, layers uint32) *Texture {
	t.Helper()
	typ := Texture2D
	if layers > 1 {
		typ = TextureArray
	}
	tex, err := d.NewTexture(TextureOptions{
		Label:  "target",
		Type:   typ,
		Width:  size,
		Height: size,
		Layers: layers,
		Usage:  TextureRender | TextureSample | TextureTransfer,
	})
	if err != nil {
		t.Fatalf("NewTexture() error = %v", err)
	}
	return tex
}

// newRenderPass returns a render pass drawing into a new target with the
// unlit shader active.
func newRenderPass(t *testing.T, d *Device, layers uint32) *Pass {
	t.Helper()
	p, err := d.NewPass(PassOptions{
		Label:  "render",
		Type:   PassRender,
		Canvas: &Canvas{Colors: []*Texture{newTarget(t, d, 64, layers)}},
	})
	if err != nil {
		t.Fatalf("NewPass() error = %v", err)
	}
	if err := p.SetShader(newTestShader(t, d, unlitShader)); err != nil {
		t.Fatalf("SetShader() error = %v", err)
	}
	return p
}

func newTransferPass(t *testing.T, d *Device) *Pass {
	t.Helper()
	p, err := d.NewPass(PassOptions{Label: "transfer", Type: PassTransfer})
	if err != nil {
		t.Fatalf("NewPass() error = %v", err)
	}
	return p
}
