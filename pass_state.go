package gfx

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/recording"
)

// Render state types shared with recording.
type (
	BlendMode      = recording.BlendMode
	BlendAlphaMode = recording.BlendAlphaMode
	StencilAction  = recording.StencilAction
	Viewport       = recording.Viewport
	Scissor        = recording.Scissor
)

const (
	BlendNone     = recording.BlendNone
	BlendAlpha    = recording.BlendAlpha
	BlendAdd      = recording.BlendAdd
	BlendSubtract = recording.BlendSubtract
	BlendMultiply = recording.BlendMultiply
	BlendLighten  = recording.BlendLighten
	BlendDarken   = recording.BlendDarken
	BlendScreen   = recording.BlendScreen

	AlphaMultiply      = recording.AlphaMultiply
	AlphaPremultiplied = recording.AlphaPremultiplied

	StencilKeep          = recording.StencilKeep
	StencilZero          = recording.StencilZero
	StencilReplace       = recording.StencilReplace
	StencilInvert        = recording.StencilInvert
	StencilIncrement     = recording.StencilIncrement
	StencilDecrement     = recording.StencilDecrement
	StencilIncrementWrap = recording.StencilIncrementWrap
	StencilDecrementWrap = recording.StencilDecrementWrap
)

// AllTargets applies a per-target setter to every color target.
const AllTargets = -1

// StackType selects the stack Push and Pop operate on.
type StackType uint8

const (
	// StackTransform saves the model transform.
	StackTransform StackType = iota
	// StackState saves render state, the pass color and the material.
	StackState
)

// String returns the string representation of a StackType.
func (s StackType) String() string {
	switch s {
	case StackTransform:
		return "transform"
	case StackState:
		return "state"
	default:
		return "unknown"
	}
}

// Push saves the top of a stack. The transform stack holds 16 entries and
// the state stack 4.
func (p *Pass) Push(stack StackType) error {
	switch stack {
	case StackTransform:
		if p.transformDepth == len(p.transforms) {
			return &StackError{Stack: stack, Overflow: true, Depth: p.transformDepth}
		}
		p.transforms[p.transformDepth] = p.transform
		p.transformDepth++
	case StackState:
		if p.stateDepth == len(p.states) {
			return &StackError{Stack: stack, Overflow: true, Depth: p.stateDepth}
		}
		p.states[p.stateDepth] = savedState{state: p.state, color: p.color, material: p.material}
		p.stateDepth++
	default:
		return fmt.Errorf("%w: stack %d", ErrInvalidArgument, stack)
	}
	return nil
}

// Pop restores what the matching Push saved. The active shader is not part
// of the saved state.
func (p *Pass) Pop(stack StackType) error {
	switch stack {
	case StackTransform:
		if p.transformDepth == 0 {
			return &StackError{Stack: stack}
		}
		p.transformDepth--
		p.transform = p.transforms[p.transformDepth]
	case StackState:
		if p.stateDepth == 0 {
			return &StackError{Stack: stack}
		}
		p.stateDepth--
		saved := p.states[p.stateDepth]
		shader := p.state.Pipeline.Shader
		p.state, p.color, p.material = saved.state, saved.color, saved.material
		p.state.Pipeline.Shader = shader
	default:
		return fmt.Errorf("%w: stack %d", ErrInvalidArgument, stack)
	}
	return nil
}

// Origin resets the model transform to identity.
func (p *Pass) Origin() { p.transform = mgl32.Ident4() }

// Translate moves subsequent draws by (x, y, z).
func (p *Pass) Translate(x, y, z float32) {
	p.transform = p.transform.Mul4(mgl32.Translate3D(x, y, z))
}

// Rotate turns subsequent draws by angle radians around axis.
func (p *Pass) Rotate(angle float32, axis mgl32.Vec3) {
	if axis.Len() == 0 {
		return
	}
	p.transform = p.transform.Mul4(mgl32.HomogRotate3D(angle, axis.Normalize()))
}

// Scale scales subsequent draws.
func (p *Pass) Scale(x, y, z float32) {
	p.transform = p.transform.Mul4(mgl32.Scale3D(x, y, z))
}

// Transform multiplies the model transform by m.
func (p *Pass) Transform(m mgl32.Mat4) { p.transform = p.transform.Mul4(m) }

// ModelTransform returns the current model transform.
func (p *Pass) ModelTransform() mgl32.Mat4 { return p.transform }

// SetColor sets the color multiplied into every draw.
func (p *Pass) SetColor(c mgl32.Vec4) { p.color = c }

// Color returns the pass color.
func (p *Pass) Color() mgl32.Vec4 { return p.color }

// State returns the render state that the next draw captures.
func (p *Pass) State() recording.State { return p.state }

func forTargets(target int, fn func(i int)) error {
	if target == AllTargets {
		for i := range recording.MaxColorTargets {
			fn(i)
		}
		return nil
	}
	if target < 0 || target >= recording.MaxColorTargets {
		return fmt.Errorf("%w: color target %d", ErrOutOfRange, target)
	}
	fn(target)
	return nil
}

// SetBlendMode sets how draws combine with color target (or AllTargets).
func (p *Pass) SetBlendMode(target int, mode BlendMode, alpha BlendAlphaMode) error {
	if mode > BlendScreen || alpha > AlphaPremultiplied {
		return fmt.Errorf("%w: blend mode %d alpha %d", ErrInvalidArgument, mode, alpha)
	}
	return forTargets(target, func(i int) {
		p.state.Pipeline.Blend[i] = mode
		p.state.Pipeline.AlphaMode[i] = alpha
	})
}

// SetColorWrite sets which channels of color target (or AllTargets) draws
// write.
func (p *Pass) SetColorWrite(target int, mask gputypes.ColorWriteMask) error {
	return forTargets(target, func(i int) { p.state.Pipeline.ColorWrite[i] = mask })
}

// SetDepthTest sets the depth comparison. CompareFunctionUndefined disables
// the test. Depth is reversed: nearer fragments have greater depth.
func (p *Pass) SetDepthTest(compare gputypes.CompareFunction) {
	p.state.Pipeline.DepthCompare = compare
}

// SetDepthWrite enables or disables depth writes.
func (p *Pass) SetDepthWrite(enabled bool) { p.state.Pipeline.DepthWrite = enabled }

// SetDepthOffset sets the constant and slope-scaled depth bias.
func (p *Pass) SetDepthOffset(constant int32, slope float32) {
	p.state.Pipeline.DepthBias = constant
	p.state.Pipeline.DepthSlope = slope
}

// SetDepthClamp clamps depth instead of clipping at the near and far planes.
func (p *Pass) SetDepthClamp(enabled bool) { p.state.Pipeline.DepthClamp = enabled }

// SetCullMode sets which faces are culled.
func (p *Pass) SetCullMode(mode gputypes.CullMode) { p.state.Pipeline.CullMode = mode }

// SetWinding sets the front face winding.
func (p *Pass) SetWinding(face gputypes.FrontFace) { p.state.Pipeline.FrontFace = face }

// SetStencilTest sets the stencil comparison against reference, reading
// the bits in readMask.
func (p *Pass) SetStencilTest(compare gputypes.CompareFunction, reference, readMask uint32) {
	p.state.Pipeline.StencilCompare = compare
	p.state.Pipeline.StencilReadMask = readMask
	p.state.StencilReference = reference
}

// SetStencilWrite sets the stencil actions for failed stencil tests,
// failed depth tests and passing fragments, writing the bits in writeMask.
// Replace writes reference.
func (p *Pass) SetStencilWrite(fail, depthFail, pass StencilAction, reference, writeMask uint32) error {
	for _, a := range [...]StencilAction{fail, depthFail, pass} {
		if a > StencilDecrementWrap {
			return fmt.Errorf("%w: stencil action %d", ErrInvalidArgument, a)
		}
	}
	ps := &p.state.Pipeline
	ps.StencilFail, ps.StencilDepthFail, ps.StencilPass = fail, depthFail, pass
	ps.StencilWriteMask = writeMask
	p.state.StencilReference = reference
	return nil
}

// SetViewport restricts draws to v. A zero Viewport covers the canvas.
func (p *Pass) SetViewport(v Viewport) error {
	if !v.IsZero() && (v.Width <= 0 || v.Height <= 0 || v.MinDepth < 0 || v.MaxDepth > 1 || v.MinDepth > v.MaxDepth) {
		return fmt.Errorf("%w: viewport %+v", ErrInvalidArgument, v)
	}
	p.state.Viewport = v
	return nil
}

// SetScissor clips draws to s. A zero Scissor covers the canvas.
func (p *Pass) SetScissor(s Scissor) error {
	if !s.IsZero() && (s.Width == 0 || s.Height == 0) {
		return fmt.Errorf("%w: empty scissor %+v", ErrInvalidArgument, s)
	}
	if p.hasCanvas && (uint64(s.X)+uint64(s.Width) > uint64(p.target.width) ||
		uint64(s.Y)+uint64(s.Height) > uint64(p.target.height)) {
		return fmt.Errorf("%w: scissor %+v outside %dx%d canvas", ErrOutOfRange, s, p.target.width, p.target.height)
	}
	p.state.Scissor = s
	return nil
}

// SetAlphaToCoverage derives multisample coverage from fragment alpha.
func (p *Pass) SetAlphaToCoverage(enabled bool) { p.state.Pipeline.AlphaToCoverage = enabled }

// SetWireframe draws triangle outlines. Line polygon mode is not exposed
// by the device layer, so enabling it fails with ErrUnsupported.
func (p *Pass) SetWireframe(enabled bool) error {
	if enabled {
		return fmt.Errorf("%w: wireframe", ErrUnsupported)
	}
	return nil
}
