package gfx

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

// depthAt projects a point on the view axis at distance z and returns its
// normalized depth.
func depthAt(m mgl32.Mat4, z float32) float32 {
	clip := m.Mul4x1(mgl32.Vec4{0, 0, -z, 1})
	return clip.Z() / clip.W()
}

func TestPerspective_ReversedDepth(t *testing.T) {
	fov := SymmetricFieldOfView(math.Pi/2, 1)
	tests := []struct {
		name      string
		near, far float32
		z         float32
		want      float32
	}{
		{"near plane", 0.1, 100, 0.1, 1},
		{"far plane", 0.1, 100, 100, 0},
		{"infinite near", 0.1, 0, 0.1, 1},
		{"infinite distant", 0.1, 0, 1e6, 1e-7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Perspective(fov, tt.near, tt.far)
			if got := depthAt(m, tt.z); math.Abs(float64(got-tt.want)) > 1e-5 {
				t.Errorf("depth at %g = %g, want %g", tt.z, got, tt.want)
			}
		})
	}
}

func TestPerspective_Asymmetric(t *testing.T) {
	fov := FieldOfView{Left: -0.5, Right: 0.3, Up: 0.4, Down: -0.4}
	m := Perspective(fov, 1, 0)
	// A point on the right edge of the frustum lands on x = 1.
	x := float32(math.Tan(0.3))
	clip := m.Mul4x1(mgl32.Vec4{x, 0, -1, 1})
	if got := clip.X() / clip.W(); math.Abs(float64(got-1)) > 1e-5 {
		t.Errorf("right edge x = %g, want 1", got)
	}
}

func TestSymmetricFieldOfView(t *testing.T) {
	fov := SymmetricFieldOfView(math.Pi/2, 2)
	if fov.Up != math.Pi/4 || fov.Down != -math.Pi/4 {
		t.Errorf("vertical half-angles %g, %g, want ±π/4", fov.Up, fov.Down)
	}
	if got := math.Tan(float64(fov.Right)); math.Abs(got-2) > 1e-5 {
		t.Errorf("tan(Right) = %g, want 2", got)
	}
	if fov.Left != -fov.Right {
		t.Errorf("Left = %g, want %g", fov.Left, -fov.Right)
	}
}

func TestCamera_Views(t *testing.T) {
	var c Camera
	if c.ViewCount() != 0 {
		t.Errorf("ViewCount() = %d, want 0", c.ViewCount())
	}
	view, proj := c.View(0, 1)
	if !view.ApproxEqual(mgl32.Ident4()) {
		t.Errorf("default view = %v, want identity", view)
	}
	want := Perspective(SymmetricFieldOfView(defaultFieldOfView, 1), defaultNear, 0)
	if !proj.ApproxEqual(want) {
		t.Errorf("default projection = %v, want %v", proj, want)
	}

	if err := c.SetViewPose(1, mgl32.Vec3{1, 2, 3}, mgl32.QuatIdent()); err != nil {
		t.Fatal(err)
	}
	if c.ViewCount() != 2 {
		t.Errorf("ViewCount() = %d after setting view 1, want 2", c.ViewCount())
	}
	view, _ = c.View(1, 1)
	if want := mgl32.Translate3D(-1, -2, -3); !view.ApproxEqual(want) {
		t.Errorf("View(1) = %v, want %v", view, want)
	}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"view out of range", c.SetViewMatrix(MaxViews, mgl32.Ident4()), ErrOutOfRange},
		{"negative view", c.SetProjectionMatrix(-1, mgl32.Ident4()), ErrOutOfRange},
		{"zero near", c.SetProjection(0, SymmetricFieldOfView(1, 1), 0, 10), ErrInvalidArgument},
		{"far before near", c.SetProjection(0, SymmetricFieldOfView(1, 1), 1, 0.5), ErrInvalidArgument},
		{"empty fov", c.SetProjection(0, FieldOfView{}, 0.1, 0), ErrInvalidArgument},
		{"valid", c.SetProjection(0, SymmetricFieldOfView(1, 1), 0.1, 0), nil},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.want) {
			t.Errorf("%s: error = %v, want %v", tt.name, tt.err, tt.want)
		}
	}
	if c.ViewCount() != 2 {
		t.Errorf("ViewCount() = %d after failed setters, want 2", c.ViewCount())
	}
}

func TestCamera_Block(t *testing.T) {
	var c Camera
	block := c.appendBlock(nil, 0, 1.5)
	if len(block) != cameraBlockSize {
		t.Errorf("camera block is %d bytes, want %d", len(block), cameraBlockSize)
	}
}
