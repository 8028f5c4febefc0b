package recording

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// MaxColorTargets is the maximum number of color attachments a canvas may
// have.
const MaxColorTargets = 4

// BlendMode selects how draws combine with the canvas.
type BlendMode uint8

const (
	BlendNone BlendMode = iota // overwrite
	BlendAlpha
	BlendAdd
	BlendSubtract
	BlendMultiply
	BlendLighten
	BlendDarken
	BlendScreen
)

var blendModeNames = [...]string{
	BlendNone:     "none",
	BlendAlpha:    "alpha",
	BlendAdd:      "add",
	BlendSubtract: "subtract",
	BlendMultiply: "multiply",
	BlendLighten:  "lighten",
	BlendDarken:   "darken",
	BlendScreen:   "screen",
}

// String returns the string representation of a BlendMode.
func (m BlendMode) String() string {
	if int(m) < len(blendModeNames) {
		return blendModeNames[m]
	}
	return "unknown"
}

// BlendAlphaMode states whether shader output is already premultiplied.
type BlendAlphaMode uint8

const (
	AlphaMultiply BlendAlphaMode = iota
	AlphaPremultiplied
)

// StencilAction is applied to the stencil buffer when a test resolves.
// The values follow hal.StencilOperation.
type StencilAction uint8

const (
	StencilKeep StencilAction = iota
	StencilZero
	StencilReplace
	StencilInvert
	StencilIncrement
	StencilDecrement
	StencilIncrementWrap
	StencilDecrementWrap
)

// Viewport is a floating point viewport. A zero Viewport covers the canvas.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// IsZero reports whether the viewport is unset.
func (v Viewport) IsZero() bool { return v == Viewport{} }

// Scissor is a pixel rectangle. A zero Scissor covers the canvas.
type Scissor struct {
	X, Y, Width, Height uint32
}

// IsZero reports whether the scissor is unset.
func (s Scissor) IsZero() bool { return s == Scissor{} }

// PipelineState is everything that selects a pipeline object. It is
// comparable so it can key caches directly.
type PipelineState struct {
	Shader   Resource
	Topology gputypes.PrimitiveTopology

	CullMode  gputypes.CullMode
	FrontFace gputypes.FrontFace

	DepthCompare gputypes.CompareFunction // Undefined disables the depth test
	DepthWrite   bool
	DepthBias    int32
	DepthSlope   float32
	DepthClamp   bool

	StencilCompare   gputypes.CompareFunction
	StencilFail      StencilAction
	StencilDepthFail StencilAction
	StencilPass      StencilAction
	StencilReadMask  uint32
	StencilWriteMask uint32

	Blend           [MaxColorTargets]BlendMode
	AlphaMode       [MaxColorTargets]BlendAlphaMode
	ColorWrite      [MaxColorTargets]gputypes.ColorWriteMask
	AlphaToCoverage bool
}

// UsesStencil reports whether the state reads or writes the stencil buffer.
func (p PipelineState) UsesStencil() bool {
	return (p.StencilCompare != gputypes.CompareFunctionUndefined &&
		p.StencilCompare != gputypes.CompareFunctionAlways) ||
		p.StencilFail != StencilKeep || p.StencilDepthFail != StencilKeep || p.StencilPass != StencilKeep
}

// State is the render state captured by a draw. Viewport, scissor and the
// stencil reference are dynamic and do not affect pipeline selection.
type State struct {
	Pipeline         PipelineState
	Viewport         Viewport
	Scissor          Scissor
	StencilReference uint32
}

// DefaultState returns the state of a freshly created or reset pass:
// triangle lists, no culling, counter-clockwise winding, depth
// test greater-equal with writes on, alpha blending on every target and all
// color channels written.
func DefaultState() State {
	var s State
	p := &s.Pipeline
	p.Topology = gputypes.PrimitiveTopologyTriangleList
	p.CullMode = gputypes.CullModeNone
	p.FrontFace = gputypes.FrontFaceCCW
	p.DepthCompare = gputypes.CompareFunctionGreaterEqual
	p.DepthWrite = true
	p.StencilCompare = gputypes.CompareFunctionAlways
	p.StencilReadMask = 0xff
	p.StencilWriteMask = 0xff
	for i := range p.Blend {
		p.Blend[i] = BlendAlpha
		p.ColorWrite[i] = gputypes.ColorWriteMaskAll
	}
	return s
}

// BindingKind is the category of a bound resource.
type BindingKind uint8

const (
	BindUniformBuffer BindingKind = iota
	BindStorageBuffer
	BindSampledTexture
	BindStorageTexture
	BindSampler
)

var bindingKindNames = [...]string{
	BindUniformBuffer:  "uniform buffer",
	BindStorageBuffer:  "storage buffer",
	BindSampledTexture: "sampled texture",
	BindStorageTexture: "storage texture",
	BindSampler:        "sampler",
}

// String returns the string representation of a BindingKind.
func (k BindingKind) String() string {
	if int(k) < len(bindingKindNames) {
		return bindingKindNames[k]
	}
	return "unknown"
}

// IsBuffer reports whether the kind binds a buffer range.
func (k BindingKind) IsBuffer() bool { return k == BindUniformBuffer || k == BindStorageBuffer }

// Builtin marks bindings the encoder fills itself.
type Builtin uint8

const (
	BuiltinNone   Builtin = iota
	BuiltinCamera         // per-view camera block
	BuiltinDraw           // per-draw transform and color
)

// Binding attaches a resource to one shader binding slot.
type Binding struct {
	Group   uint32
	Slot    uint32
	Kind    BindingKind
	Builtin Builtin

	// Resource is nil for builtins.
	Resource Resource
	Offset   uint64
	Size     uint64 // 0 binds to the end of the buffer
}

// String returns a short description used by traces and errors.
func (b Binding) String() string {
	switch {
	case b.Builtin == BuiltinCamera:
		return fmt.Sprintf("@%d.%d camera", b.Group, b.Slot)
	case b.Builtin == BuiltinDraw:
		return fmt.Sprintf("@%d.%d draw", b.Group, b.Slot)
	case b.Resource == nil:
		return fmt.Sprintf("@%d.%d %s <nil>", b.Group, b.Slot, b.Kind)
	case b.Kind.IsBuffer():
		return fmt.Sprintf("@%d.%d %s #%d [%d+%d]", b.Group, b.Slot, b.Kind, b.Resource.ResourceID(), b.Offset, b.Size)
	default:
		return fmt.Sprintf("@%d.%d %s #%d", b.Group, b.Slot, b.Kind, b.Resource.ResourceID())
	}
}
