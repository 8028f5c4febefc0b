package gfx

import (
	"errors"
	"testing"

	"github.com/gogpu/gfx/layout"
)

const scaledShader = `
override scale: f32 = 1.0;

@vertex
fn vs_main(@location(0) position: vec3<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(position * scale, 1.0);
}
`

func TestNewShader_Reflection(t *testing.T) {
	d := newTestDevice(t)
	s := newTestShader(t, d, unlitShader)

	if s.Type() != ShaderGraphics || !s.HasStage(StageVertex) || !s.HasStage(StageFragment) {
		t.Errorf("unlit shader type %v, want graphics with vertex and fragment stages", s.Type())
	}
	for _, name := range []string{"camera", "draw", "albedo", "albedo_sampler"} {
		if !s.HasVariable(name) {
			t.Errorf("HasVariable(%q) = false", name)
		}
	}
	if !s.HasAttribute("uv") || !s.HasLocation(1) || s.HasLocation(2) {
		t.Error("vertex inputs not reflected")
	}

	c := newTestShader(t, d, numbersShader)
	if c.Type() != ShaderCompute {
		t.Errorf("Type() = %v, want compute", c.Type())
	}
	if got := c.WorkgroupSize(); got != [3]uint32{64, 1, 1} {
		t.Errorf("WorkgroupSize() = %v, want [64 1 1]", got)
	}
}

func TestShader_BufferFormat(t *testing.T) {
	d := newTestDevice(t)
	c := newTestShader(t, d, numbersShader)

	// A struct wrapping a single runtime array describes its elements.
	f, n, err := c.BufferFormat("numbers")
	if err != nil {
		t.Fatalf("BufferFormat() error = %v", err)
	}
	if f.Stride != 4 || n != 0 {
		t.Errorf("BufferFormat(numbers) stride %d length %d, want 4, 0", f.Stride, n)
	}
	if len(f.Fields) != 1 || f.Fields[0].Type != layout.TypeU32 {
		t.Errorf("BufferFormat(numbers) fields = %+v, want one u32", f.Fields)
	}

	s := newTestShader(t, d, unlitShader)
	if _, _, err := s.BufferFormat("albedo"); !errors.Is(err, ErrNotBuffer) {
		t.Errorf("BufferFormat(texture) = %v, want ErrNotBuffer", err)
	}
	if _, _, err := s.BufferFormat("missing"); !errors.Is(err, ErrUnknownVariable) {
		t.Errorf("BufferFormat(missing) = %v, want ErrUnknownVariable", err)
	}
	f, _, err = s.BufferFormat("draw")
	if err != nil {
		t.Fatal(err)
	}
	if f.Stride != drawBlockSize {
		t.Errorf("draw block stride = %d, want %d", f.Stride, drawBlockSize)
	}
}

func TestNewShader_Invalid(t *testing.T) {
	d := newTestDevice(t)
	tests := []struct {
		name   string
		source string
		want   error
	}{
		{"fragment only", "@fragment fn fs_main() -> @location(0) vec4<f32> { return vec4<f32>(1.0); }", ErrShaderType},
		{"syntax", "fn broken(", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.NewShader(tt.source, ShaderOptions{Label: tt.name})
			if err == nil {
				t.Fatal("NewShader() error = nil")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("NewShader() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestShader_Constants(t *testing.T) {
	d := newTestDevice(t)
	if _, err := d.NewShader(scaledShader, ShaderOptions{Constants: map[string]float64{"missing": 1}}); !errors.Is(err, ErrUnknownVariable) {
		t.Errorf("NewShader(unknown constant) = %v, want ErrUnknownVariable", err)
	}
	s, err := d.NewShader(scaledShader, ShaderOptions{Label: "scaled", Constants: map[string]float64{"scale": 2}})
	if err != nil {
		t.Fatalf("NewShader() error = %v", err)
	}
	c, err := s.Clone(map[string]float64{"scale": 3})
	if err != nil {
		t.Fatalf("Clone() error = %v", err)
	}
	if got := c.Constants()["scale"]; got != 3 {
		t.Errorf("clone scale = %g, want 3", got)
	}
	if got := s.Constants()["scale"]; got != 2 {
		t.Errorf("original scale = %g after Clone, want 2", got)
	}
	if c.ResourceID() == s.ResourceID() {
		t.Error("clone shares the original's resource")
	}

	// Same overrides reuse the compiled code.
	before := d.specialized.Stats()
	if _, err := s.Clone(nil); err != nil {
		t.Fatal(err)
	}
	if after := d.specialized.Stats(); after.Hits != before.Hits+1 || after.Len != before.Len {
		t.Errorf("specialized cache %+v after cloning with equal constants, was %+v", after, before)
	}

	s.Release()
	if _, err := s.Clone(nil); !errors.Is(err, ErrReleased) {
		t.Errorf("Clone() of released shader = %v, want ErrReleased", err)
	}
}
