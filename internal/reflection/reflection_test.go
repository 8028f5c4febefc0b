// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package reflection

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/layout"
)

const litShader = `
struct Camera {
    view_proj: mat4x4<f32>,
    position: vec4<f32>,
}

struct Light {
    color: vec3<f32>,
    range: f32,
}

struct Lights {
    lights: array<Light, 4>,
}

@group(0) @binding(0) var<uniform> camera: Camera;
@group(0) @binding(1) var<uniform> lights: Lights;
@group(1) @binding(0) var albedo: texture_2d<f32>;
@group(1) @binding(1) var albedo_sampler: sampler;
@group(1) @binding(2) var shadow: texture_depth_2d;
@group(1) @binding(3) var shadow_sampler: sampler_comparison;

struct VertexIn {
    @location(0) position: vec3<f32>,
    @location(1) uv: vec2<f32>,
}

struct VertexOut {
    @builtin(position) clip: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@vertex
fn vs_main(input: VertexIn, @location(2) tint: vec4<f32>) -> VertexOut {
    var out: VertexOut;
    out.clip = camera.view_proj * vec4<f32>(input.position, 1.0);
    out.uv = input.uv;
    return out;
}

@fragment
fn fs_main(frag: VertexOut) -> @location(0) vec4<f32> {
    let c = textureSample(albedo, albedo_sampler, frag.uv);
    let s = textureSampleCompare(shadow, shadow_sampler, frag.uv, 0.5);
    return vec4<f32>(c.rgb * lights.lights[0].color * s, c.a);
}
`

const computeShader = `
struct Numbers {
    numbers: array<u32, 64>,
}

struct Particle {
    position: vec3<f32>,
    mass: f32,
}

@group(0) @binding(0) var<storage, read_write> numbers: Numbers;
@group(0) @binding(1) var<storage, read> particles: array<Particle>;
@group(0) @binding(2) var output: texture_storage_2d<rgba8unorm, write>;

override scale: f32 = 1.0;
@id(7) override bias: f32 = 0.0;

@compute @workgroup_size(8, 4, 1)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    numbers.numbers[id.x] = numbers.numbers[id.x] * u32(scale + bias);
    textureStore(output, vec2<i32>(id.xy), vec4<f32>(particles[id.x].position, 1.0));
}
`

func mustWGSL(t *testing.T, src string) *Program {
	t.Helper()
	p, _, err := FromWGSL(src)
	if err != nil {
		t.Fatalf("FromWGSL() error = %v", err)
	}
	return p
}

func TestFromWGSL_Graphics(t *testing.T) {
	p := mustWGSL(t, litShader)

	if !p.HasStage(StageVertex) || !p.HasStage(StageFragment) {
		t.Errorf("Stages = %v, want vertex|fragment", p.Stages)
	}
	if p.IsCompute() {
		t.Error("IsCompute() = true for a graphics program")
	}
	if name, ok := p.EntryPoint(StageFragment); !ok || name != "fs_main" {
		t.Errorf("EntryPoint(fragment) = %q, %v", name, ok)
	}

	tests := []struct {
		name    string
		kind    Kind
		group   uint32
		binding uint32
	}{
		{"camera", KindUniformBuffer, 0, 0},
		{"lights", KindUniformBuffer, 0, 1},
		{"albedo", KindSampledTexture, 1, 0},
		{"albedo_sampler", KindSampler, 1, 1},
		{"shadow", KindSampledTexture, 1, 2},
		{"shadow_sampler", KindSampler, 1, 3},
	}
	for _, tt := range tests {
		v, ok := p.Variable(tt.name)
		if !ok {
			t.Errorf("Variable(%q) not found", tt.name)
			continue
		}
		if v.Kind != tt.kind || v.Group != tt.group || v.Binding != tt.binding {
			t.Errorf("%s = %s at (%d,%d), want %s at (%d,%d)",
				tt.name, v.Kind, v.Group, v.Binding, tt.kind, tt.group, tt.binding)
		}
		if v.Stages != StageVertex|StageFragment {
			t.Errorf("%s.Stages = %v, want vertex|fragment", tt.name, v.Stages)
		}
	}

	shadow, _ := p.Variable("shadow")
	if shadow.Texture.SampleType != gputypes.TextureSampleTypeDepth {
		t.Errorf("shadow.SampleType = %v, want depth", shadow.Texture.SampleType)
	}
	cmp, _ := p.Variable("shadow_sampler")
	if !cmp.Comparison {
		t.Error("shadow_sampler.Comparison = false")
	}
	if p.Groups() != 2 {
		t.Errorf("Groups() = %d, want 2", p.Groups())
	}
	if got := p.GroupVariables(1); len(got) != 4 || got[0].Name != "albedo" || got[3].Name != "shadow_sampler" {
		t.Errorf("GroupVariables(1) = %v", got)
	}
}

func TestFromWGSL_Attributes(t *testing.T) {
	p := mustWGSL(t, litShader)

	want := map[string]struct {
		loc uint32
		typ layout.DataType
	}{
		"position": {0, layout.TypeF32x3},
		"uv":       {1, layout.TypeF32x2},
		"tint":     {2, layout.TypeF32x4},
	}
	if len(p.Attributes) != len(want) {
		t.Fatalf("len(Attributes) = %d, want %d: %v", len(p.Attributes), len(want), p.Attributes)
	}
	for _, a := range p.Attributes {
		w, ok := want[a.Name]
		if !ok {
			t.Errorf("unexpected attribute %q", a.Name)
			continue
		}
		if a.Location != w.loc || a.Type != w.typ {
			t.Errorf("%s = (%d, %s), want (%d, %s)", a.Name, a.Location, a.Type, w.loc, w.typ)
		}
	}
	if !p.HasAttribute("uv") || p.HasAttribute("clip") {
		t.Error("HasAttribute mismatch")
	}
	if !p.HasLocation(2) || p.HasLocation(3) {
		t.Error("HasLocation mismatch")
	}
}

func TestFromWGSL_BufferFormats(t *testing.T) {
	p := mustWGSL(t, litShader)

	// Multi-member block stays a struct of one element.
	f, n, err := p.BufferFormat("camera")
	if err != nil {
		t.Fatalf("BufferFormat(camera) error = %v", err)
	}
	if n != 1 || f.Stride != 80 || len(f.Fields) != 2 {
		t.Errorf("camera = %d fields, stride %d, length %d; want 2, 80, 1", len(f.Fields), f.Stride, n)
	}
	if pos, ok := f.Field("position"); !ok || pos.Offset != 64 || pos.Type != layout.TypeF32x4 {
		t.Errorf("camera.position = %+v", pos)
	}
	if f.Rule != layout.Std140 {
		t.Errorf("camera.Rule = %v, want std140", f.Rule)
	}

	// A lone array member unwraps to its element.
	f, n, err = p.BufferFormat("lights")
	if err != nil {
		t.Fatalf("BufferFormat(lights) error = %v", err)
	}
	if n != 4 || f.Stride != 16 {
		t.Errorf("lights length %d stride %d, want 4, 16", n, f.Stride)
	}
	if r, ok := f.Field("range"); !ok || r.Offset != 12 {
		t.Errorf("lights.range = %+v", r)
	}

	if _, _, err := p.BufferFormat("albedo"); !errors.Is(err, ErrNotBuffer) {
		t.Errorf("BufferFormat(albedo) error = %v, want ErrNotBuffer", err)
	}
	if _, _, err := p.BufferFormat("missing"); !errors.Is(err, ErrUnknownVariable) {
		t.Errorf("BufferFormat(missing) error = %v, want ErrUnknownVariable", err)
	}
}

func TestFromWGSL_Compute(t *testing.T) {
	p := mustWGSL(t, computeShader)

	if !p.IsCompute() {
		t.Fatal("IsCompute() = false")
	}
	if p.Workgroup != [3]uint32{8, 4, 1} {
		t.Errorf("Workgroup = %v, want [8 4 1]", p.Workgroup)
	}
	if len(p.Attributes) != 0 {
		t.Errorf("compute program has attributes: %v", p.Attributes)
	}

	f, n, err := p.BufferFormat("numbers")
	if err != nil {
		t.Fatalf("BufferFormat(numbers) error = %v", err)
	}
	if n != 64 || f.Stride != 4 || len(f.Fields) != 1 || f.Fields[0].Type != layout.TypeU32 {
		t.Errorf("numbers = %+v length %d, want u32 stride 4 length 64", f, n)
	}

	particles, _ := p.Variable("particles")
	if particles.Kind != KindStorageBuffer || !particles.ReadOnly {
		t.Errorf("particles = %s readonly=%v", particles.Kind, particles.ReadOnly)
	}
	if particles.Length != 0 {
		t.Errorf("particles.Length = %d, want 0 for runtime-sized", particles.Length)
	}
	want, err := layout.Compute(layout.Std430,
		layout.Field{Name: "position", Type: layout.TypeF32x3},
		layout.Field{Name: "mass", Type: layout.TypeF32})
	if err != nil {
		t.Fatal(err)
	}
	if particles.Format.Stride != want.Stride {
		t.Errorf("particles stride = %d, computed %d", particles.Format.Stride, want.Stride)
	}
	if len(particles.Format.Fields) != 2 || particles.Format.Fields[1].Offset != 12 {
		t.Errorf("particles fields = %+v, want position and mass at 12", particles.Format.Fields)
	}

	out, _ := p.Variable("output")
	if out.Kind != KindStorageTexture || out.Texture.Format != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("output = %s %v", out.Kind, out.Texture.Format)
	}

	if len(p.Constants) != 2 {
		t.Fatalf("Constants = %v, want 2", p.Constants)
	}
	for _, c := range p.Constants {
		switch c.Name {
		case "scale":
			if c.ID != -1 {
				t.Errorf("scale.ID = %d, want -1", c.ID)
			}
		case "bias":
			if c.ID != 7 {
				t.Errorf("bias.ID = %d, want 7", c.ID)
			}
		default:
			t.Errorf("unexpected constant %q", c.Name)
		}
	}
}

const arrayBlockShader = `
struct Item {
    value: vec4<f32>,
}

struct Pair {
    a: u32,
    b: u32,
}

@group(0) @binding(0) var<storage, read> items: array<Item, 8>;
@group(0) @binding(1) var<storage, read_write> pairs: array<Pair>;
@group(0) @binding(2) var<storage, read_write> counts: array<u32, 16>;

@compute @workgroup_size(1)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    pairs[id.x].a = u32(items[id.x].value.x) + counts[id.x];
}
`

func TestFromWGSL_ArrayBlocks(t *testing.T) {
	p := mustWGSL(t, arrayBlockShader)

	tests := []struct {
		name   string
		fields int
		stride uint32
		length uint32
	}{
		{"items", 1, 16, 8},
		{"pairs", 2, 8, 0},
		{"counts", 1, 4, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, n, err := p.BufferFormat(tt.name)
			if err != nil {
				t.Fatalf("BufferFormat(%s) error = %v", tt.name, err)
			}
			if len(f.Fields) != tt.fields || f.Stride != tt.stride || n != tt.length {
				t.Errorf("BufferFormat(%s) = %d fields stride %d length %d, want %d, %d, %d",
					tt.name, len(f.Fields), f.Stride, n, tt.fields, tt.stride, tt.length)
			}
		})
	}

	f, _, _ := p.BufferFormat("items")
	if f.Fields[0].Name != "value" || f.Fields[0].Type != layout.TypeF32x4 {
		t.Errorf("items field = %+v, want value vec4<f32>", f.Fields[0])
	}
}

func TestFromWGSL_Invalid(t *testing.T) {
	if _, _, err := FromWGSL("fn broken( {"); err == nil {
		t.Error("FromWGSL(invalid) error = nil")
	}
}

func TestMerge(t *testing.T) {
	vs := &Program{
		Stages:     StageVertex,
		Variables:  []Variable{{Name: "camera", Kind: KindUniformBuffer, Stages: StageVertex}},
		Attributes: []Attribute{{Name: "position", Location: 0, Type: layout.TypeF32x3}},
	}
	fs := &Program{
		Stages: StageFragment,
		Variables: []Variable{
			{Name: "camera", Kind: KindUniformBuffer, Stages: StageFragment},
			{Name: "tex", Kind: KindSampledTexture, Binding: 1, Stages: StageFragment},
		},
	}

	p, err := Merge(vs, fs)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(p.Variables) != 2 {
		t.Errorf("len(Variables) = %d, want 2", len(p.Variables))
	}
	cam, _ := p.Variable("camera")
	if cam.Stages != StageVertex|StageFragment {
		t.Errorf("camera.Stages = %v, want vertex|fragment", cam.Stages)
	}
	if len(p.Attributes) != 1 {
		t.Errorf("len(Attributes) = %d, want 1", len(p.Attributes))
	}
}

func TestMerge_Conflicts(t *testing.T) {
	tests := []struct {
		name string
		a, b Variable
	}{
		{
			name: "kind",
			a:    Variable{Name: "x", Kind: KindUniformBuffer},
			b:    Variable{Name: "x", Kind: KindStorageBuffer},
		},
		{
			name: "slot",
			a:    Variable{Name: "x", Kind: KindSampler, Binding: 1},
			b:    Variable{Name: "x", Kind: KindSampler, Binding: 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Merge(
				&Program{Stages: StageVertex, Variables: []Variable{tt.a}},
				&Program{Stages: StageFragment, Variables: []Variable{tt.b}},
			)
			if !errors.Is(err, ErrConflictingBinding) {
				t.Errorf("Merge() error = %v, want ErrConflictingBinding", err)
			}
		})
	}
}

func TestKind_String(t *testing.T) {
	if KindStorageTexture.String() != "storage texture" {
		t.Errorf("KindStorageTexture.String() = %q", KindStorageTexture.String())
	}
	if Kind(99).String() != "Kind(99)" {
		t.Errorf("Kind(99).String() = %q", Kind(99).String())
	}
	if !KindPushConstant.IsBuffer() || KindSampler.IsBuffer() {
		t.Error("IsBuffer mismatch")
	}
}

func TestStage_ShaderStages(t *testing.T) {
	s := (StageVertex | StageFragment).ShaderStages()
	if s != gputypes.ShaderStageVertex|gputypes.ShaderStageFragment {
		t.Errorf("ShaderStages() = %v", s)
	}
	if Stage(0).String() != "none" {
		t.Errorf("Stage(0).String() = %q", Stage(0).String())
	}
}
