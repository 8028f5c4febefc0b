package gfx

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxViews is the number of views a render pass can broadcast to.
const MaxViews = 6

// cameraBlockSize is the size of one view's camera uniform block: view,
// projection, view-projection and inverse projection matrices.
const cameraBlockSize = 4 * 64

// Default projection for views whose projection was never set.
const (
	defaultFieldOfView = 0.4 * math.Pi // vertical
	defaultNear        = 0.01
)

// FieldOfView holds the four half-angles of an asymmetric frustum in
// radians. Left and Down are negative for a frustum centered on the view
// axis, as XR runtimes report them.
type FieldOfView struct {
	Left, Right, Up, Down float32
}

// SymmetricFieldOfView returns a frustum with the given vertical angle and
// width-to-height aspect ratio.
func SymmetricFieldOfView(vertical, aspect float32) FieldOfView {
	tanUp := float32(math.Tan(float64(vertical) / 2))
	tanRight := tanUp * aspect
	right := float32(math.Atan(float64(tanRight)))
	return FieldOfView{Left: -right, Right: right, Up: vertical / 2, Down: -vertical / 2}
}

// Perspective returns a right-handed projection with reversed depth: near
// maps to depth 1 and far to depth 0. far == 0 places the far plane at
// infinity.
func Perspective(fov FieldOfView, near, far float32) mgl32.Mat4 {
	tanL := float32(math.Tan(float64(fov.Left)))
	tanR := float32(math.Tan(float64(fov.Right)))
	tanU := float32(math.Tan(float64(fov.Up)))
	tanD := float32(math.Tan(float64(fov.Down)))
	w, h := tanR-tanL, tanU-tanD

	var m mgl32.Mat4
	m[0] = 2 / w
	m[5] = 2 / h
	m[8] = (tanR + tanL) / w
	m[9] = (tanU + tanD) / h
	m[11] = -1
	if far == 0 {
		m[10] = 0
		m[14] = near
	} else {
		m[10] = near / (far - near)
		m[14] = near * far / (far - near)
	}
	return m
}

type cameraView struct {
	view       mgl32.Mat4
	projection mgl32.Mat4
	viewSet    bool
	projSet    bool
}

// Camera holds the view poses and projections of a render pass. Every
// draw recorded into the pass is drawn once per view, each view into the
// matching layer of the canvas.
//
// The number of views follows the canvas layer count. Setting a view
// beyond the canvas layers is allowed while recording and reported when the
// pass is submitted.
type Camera struct {
	views [MaxViews]cameraView
	count int // highest configured view + 1
}

func (c *Camera) at(view int) (*cameraView, error) {
	if view < 0 || view >= MaxViews {
		return nil, fmt.Errorf("%w: view %d of %d", ErrOutOfRange, view, MaxViews)
	}
	c.count = max(c.count, view+1)
	return &c.views[view], nil
}

// SetViewPose places view at position looking along orientation.
func (c *Camera) SetViewPose(view int, position mgl32.Vec3, orientation mgl32.Quat) error {
	v, err := c.at(view)
	if err != nil {
		return err
	}
	inv := orientation.Normalize().Conjugate().Mat4()
	v.view = inv.Mul4(mgl32.Translate3D(-position.X(), -position.Y(), -position.Z()))
	v.viewSet = true
	return nil
}

// SetViewMatrix sets the world-to-view matrix of view.
func (c *Camera) SetViewMatrix(view int, m mgl32.Mat4) error {
	v, err := c.at(view)
	if err != nil {
		return err
	}
	v.view, v.viewSet = m, true
	return nil
}

// SetProjection sets a perspective projection for view. far == 0 means an
// infinite far plane.
func (c *Camera) SetProjection(view int, fov FieldOfView, near, far float32) error {
	if near <= 0 || (far != 0 && far <= near) {
		return fmt.Errorf("%w: clip planes near %g far %g", ErrInvalidArgument, near, far)
	}
	if fov.Right <= fov.Left || fov.Up <= fov.Down {
		return fmt.Errorf("%w: empty field of view %+v", ErrInvalidArgument, fov)
	}
	v, err := c.at(view)
	if err != nil {
		return err
	}
	v.projection, v.projSet = Perspective(fov, near, far), true
	return nil
}

// SetProjectionMatrix sets the projection matrix of view.
func (c *Camera) SetProjectionMatrix(view int, m mgl32.Mat4) error {
	v, err := c.at(view)
	if err != nil {
		return err
	}
	v.projection, v.projSet = m, true
	return nil
}

// ViewCount returns the number of views configured through setters.
func (c *Camera) ViewCount() int { return c.count }

// View returns the view and projection matrices of a view. Unset matrices
// are reported as the defaults used for a canvas of the given aspect ratio.
func (c *Camera) View(view int, aspect float32) (mgl32.Mat4, mgl32.Mat4) {
	if view < 0 || view >= MaxViews {
		return mgl32.Ident4(), mgl32.Ident4()
	}
	v := c.views[view]
	if !v.viewSet {
		v.view = mgl32.Ident4()
	}
	if !v.projSet {
		v.projection = Perspective(SymmetricFieldOfView(defaultFieldOfView, aspect), defaultNear, 0)
	}
	return v.view, v.projection
}

// appendBlock appends the camera uniform block of view.
func (c *Camera) appendBlock(dst []byte, view int, aspect float32) []byte {
	v, p := c.View(view, aspect)
	for _, m := range [...]mgl32.Mat4{v, p, p.Mul4(v), p.Inv()} {
		dst = appendMat4(dst, m)
	}
	return dst
}

func appendMat4(dst []byte, m mgl32.Mat4) []byte {
	for _, f := range m {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
	}
	return dst
}

func appendVec4(dst []byte, v mgl32.Vec4) []byte {
	for _, f := range v {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
	}
	return dst
}
