package gfx

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/internal/binding"
	"github.com/gogpu/gfx/internal/reflection"
	"github.com/gogpu/gfx/internal/restable"
	"github.com/gogpu/gfx/recording"
)

// PassType fixes which operations a pass accepts.
type PassType uint8

const (
	PassRender   PassType = iota // draws into a canvas
	PassCompute                  // dispatches compute shaders
	PassTransfer                 // clears, copies, blits and readbacks
)

var passTypeNames = [...]string{
	PassRender:   "render",
	PassCompute:  "compute",
	PassTransfer: "transfer",
}

// String returns the string representation of a PassType.
func (t PassType) String() string {
	if int(t) < len(passTypeNames) {
		return passTypeNames[t]
	}
	return "unknown"
}

const (
	// MaxTallies is the number of tallies one pass can record.
	MaxTallies = 256

	transformStackDepth = 16
	stateStackDepth     = 4
)

// PassOptions configures NewPass.
type PassOptions struct {
	Label string
	Type  PassType

	// Canvas is applied with SetCanvas when set.
	Canvas *Canvas
}

// PassStats counts the commands recorded into a pass.
type PassStats = recording.Stats

// Pass records GPU work to be submitted as a unit.
//
// A Pass must be recorded from one goroutine at a time. Different passes
// may be recorded concurrently. Recording calls validate eagerly: a call
// that returns an error records nothing.
type Pass struct {
	device *Device
	typ    PassType
	label  string

	list     *recording.List
	bindings *binding.Cache
	shader   *Shader
	material *Material

	state     recording.State
	transform mgl32.Mat4
	color     mgl32.Vec4

	transforms     [transformStackDepth]mgl32.Mat4
	transformDepth int
	states         [stateStackDepth]savedState
	stateDepth     int

	canvas    Canvas
	target    renderTarget
	hasCanvas bool
	clear     ClearValues
	camera    Camera

	tally tallyState

	held      []restable.ID
	readbacks []*Readback
	dirty     bool
	submitted bool
}

type savedState struct {
	state    recording.State
	color    mgl32.Vec4
	material *Material
}

type tallyState struct {
	active bool
	index  uint32
	count  uint32
	buffer *Buffer
	offset uint64
}

// NewPass creates an empty pass.
func (d *Device) NewPass(opts PassOptions) (*Pass, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if opts.Type > PassTransfer {
		return nil, fmt.Errorf("%w: pass type %d", ErrInvalidArgument, opts.Type)
	}
	p := &Pass{
		device:   d,
		typ:      opts.Type,
		label:    opts.Label,
		list:     recording.NewList(),
		bindings: binding.New(),
	}
	p.restoreDefaults()
	if opts.Canvas != nil {
		if err := p.SetCanvas(*opts.Canvas); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Type returns the pass type.
func (p *Pass) Type() PassType { return p.typ }

// Label returns the label the pass was created with.
func (p *Pass) Label() string { return p.label }

// Camera returns the camera of the pass.
func (p *Pass) Camera() *Camera { return &p.camera }

// IsDirty reports whether anything was recorded since the last Reset.
// Submitting a pass that is not dirty does nothing.
func (p *Pass) IsDirty() bool { return p.dirty }

// Stats counts the recorded commands.
func (p *Pass) Stats() PassStats { return p.list.Stats() }

// Reset discards recorded commands, tallies, bindings, the shader and the
// transform and state stacks, and restores default render state. The
// canvas, clear values, camera and tally buffer are kept.
func (p *Pass) Reset() {
	p.list.Reset()
	p.bindings.Reset()
	p.shader = nil
	p.material = nil
	p.restoreDefaults()
	p.transformDepth = 0
	p.stateDepth = 0
	p.tally.active, p.tally.index, p.tally.count = false, 0, 0
	p.dropHeld()
	p.readbacks = nil
	p.dirty = false
	p.submitted = false
}

// Release resets the pass and releases the textures it created for its
// canvas. The pass must not be used afterwards.
func (p *Pass) Release() {
	p.Reset()
	p.releaseTarget()
	if p.tally.buffer != nil {
		p.device.table.Drop(p.tally.buffer.id)
		p.tally.buffer = nil
	}
}

func (p *Pass) restoreDefaults() {
	p.state = recording.DefaultState()
	p.transform = mgl32.Ident4()
	p.color = mgl32.Vec4{1, 1, 1, 1}
}

// checkRecord validates that op may be recorded now.
func (p *Pass) checkRecord(op string, want PassType) error {
	if p.submitted {
		return fmt.Errorf("%w: %s", ErrPassSubmitted, op)
	}
	if p.typ != want {
		return fmt.Errorf("%w: %s in a %s pass", ErrWrongPassType, op, p.typ)
	}
	return nil
}

// hold keeps resources alive until the pass is reset.
func (p *Pass) hold(resources ...recording.Resource) error {
	for _, r := range resources {
		if r == nil {
			continue
		}
		id := restable.ID(r.ResourceID())
		if err := p.device.table.Hold(id); err != nil {
			return err
		}
		p.held = append(p.held, id)
	}
	return nil
}

func (p *Pass) dropHeld() {
	for _, id := range p.held {
		p.device.table.Drop(id)
	}
	p.held = p.held[:0]
}

// record appends cmd after holding the resources it references.
func (p *Pass) record(cmd recording.Command, resources ...recording.Resource) error {
	if err := p.hold(resources...); err != nil {
		return err
	}
	p.list.Append(cmd)
	p.dirty = true
	return nil
}

// --------------------------------------------------------------------------
// Canvas
// --------------------------------------------------------------------------

// Canvas is the set of textures a render pass draws into. All textures
// must have the same size, layer count and sample count; the layer count is
// the number of views.
type Canvas struct {
	Colors []*Texture
	Depth  *Texture

	// DepthFormat creates a depth buffer owned by the pass when Depth is nil.
	DepthFormat gputypes.TextureFormat

	// Samples above the sample count of the textures renders into
	// multisampled textures owned by the pass and resolves into Colors.
	Samples uint32

	// Mipmaps regenerates the mip chains of Colors after the pass.
	Mipmaps bool
}

// ClearValues says how each canvas attachment starts. Attachments are
// cleared unless their Keep flag is set.
type ClearValues struct {
	Colors      [recording.MaxColorTargets]mgl32.Vec4
	KeepColor   [recording.MaxColorTargets]bool
	Depth       float32 // 0 is the far plane with reversed depth
	Stencil     uint32
	KeepDepth   bool
	KeepStencil bool
}

// renderTarget is a validated canvas.
type renderTarget struct {
	width, height uint32
	layers        uint32
	samples       uint32
	colorFormats  []gputypes.TextureFormat
	depthFormat   gputypes.TextureFormat

	msaa      []*Texture // render targets resolved into the canvas colors
	depth     *Texture
	transient []*Texture // owned by the pass
}

// SetCanvas validates and sets the textures the pass draws into. Textures
// created for multisampling or depth are owned by the pass.
func (p *Pass) SetCanvas(c Canvas) error {
	if p.typ != PassRender {
		return fmt.Errorf("%w: canvas on a %s pass", ErrWrongPassType, p.typ)
	}
	t, err := p.validateCanvas(&c)
	if err != nil {
		return err
	}
	if err := p.createTransient(&c, &t); err != nil {
		return err
	}
	var held []recording.Resource
	for _, tex := range c.Colors {
		held = append(held, tex)
	}
	if c.Depth != nil {
		held = append(held, c.Depth)
	}
	for i, r := range held {
		if err := p.device.table.Hold(restable.ID(r.ResourceID())); err != nil {
			for _, r := range held[:i] {
				p.device.table.Drop(restable.ID(r.ResourceID()))
			}
			for _, tex := range t.transient {
				tex.Release()
			}
			return err
		}
	}

	p.releaseTarget()
	p.canvas, p.target, p.hasCanvas = c, t, true
	p.canvas.Colors = append([]*Texture(nil), c.Colors...)
	return nil
}

// Canvas returns the canvas set by SetCanvas.
func (p *Pass) Canvas() (Canvas, bool) { return p.canvas, p.hasCanvas }

func (p *Pass) validateCanvas(c *Canvas) (renderTarget, error) {
	var t renderTarget
	lim := p.device.limits
	maxColors := recording.MaxColorTargets
	if lim.MaxColorAttachments > 0 {
		maxColors = min(maxColors, int(lim.MaxColorAttachments))
	}
	if len(c.Colors) > maxColors {
		return t, fmt.Errorf("%w: %d color targets, at most %d", ErrOutOfRange, len(c.Colors), maxColors)
	}
	if len(c.Colors) == 0 && c.Depth == nil {
		return t, fmt.Errorf("%w: canvas has no textures", ErrInvalidArgument)
	}

	first := true
	check := func(tex *Texture, what string) error {
		if tex == nil {
			return fmt.Errorf("%w: nil %s texture", ErrInvalidArgument, what)
		}
		if err := p.device.table.CheckUsage(tex.id, restable.UsageRender); err != nil {
			return err
		}
		if tex.typ == Texture3D {
			return fmt.Errorf("%w: 3d %s texture %q", ErrCanvasMismatch, what, tex.label)
		}
		if first {
			t.width, t.height, t.layers = tex.width, tex.height, tex.layers
			first = false
			return nil
		}
		if tex.width != t.width || tex.height != t.height || tex.layers != t.layers {
			return fmt.Errorf("%w: %s texture %q is %dx%d with %d layers, want %dx%d with %d",
				ErrCanvasMismatch, what, tex.label, tex.width, tex.height, tex.layers,
				t.width, t.height, t.layers)
		}
		return nil
	}

	colorSamples := uint32(0)
	for i, tex := range c.Colors {
		if err := check(tex, fmt.Sprintf("color %d", i)); err != nil {
			return t, err
		}
		if tex.format.IsDepthStencil() {
			return t, fmt.Errorf("%w: color %d has depth format %v", ErrCanvasMismatch, i, tex.format)
		}
		if colorSamples != 0 && tex.samples != colorSamples {
			return t, fmt.Errorf("%w: color %d has %d samples, want %d", ErrCanvasMismatch, i, tex.samples, colorSamples)
		}
		colorSamples = tex.samples
		t.colorFormats = append(t.colorFormats, tex.format)
	}

	switch {
	case c.Samples == 0 && colorSamples != 0:
		c.Samples = colorSamples
	case c.Samples == 0 && c.Depth != nil:
		c.Samples = c.Depth.samples
	case c.Samples == 0:
		c.Samples = 1
	}
	if c.Samples != 1 && c.Samples != 4 {
		return t, fmt.Errorf("%w: %d canvas samples (1 or 4)", ErrInvalidArgument, c.Samples)
	}
	if colorSamples > 1 && c.Samples != colorSamples {
		return t, fmt.Errorf("%w: %d canvas samples for %d-sample textures", ErrCanvasMismatch, c.Samples, colorSamples)
	}

	if c.Depth != nil {
		if err := check(c.Depth, "depth"); err != nil {
			return t, err
		}
		if !c.Depth.format.IsDepthStencil() {
			return t, fmt.Errorf("%w: depth texture %q has color format %v", ErrCanvasMismatch, c.Depth.label, c.Depth.format)
		}
		if c.Depth.samples != c.Samples {
			return t, fmt.Errorf("%w: depth texture has %d samples, canvas %d", ErrCanvasMismatch, c.Depth.samples, c.Samples)
		}
		t.depthFormat = c.Depth.format
		t.depth = c.Depth
	} else if c.DepthFormat != gputypes.TextureFormatUndefined {
		if !c.DepthFormat.IsDepthStencil() {
			return t, fmt.Errorf("%w: depth format %v", ErrInvalidArgument, c.DepthFormat)
		}
		t.depthFormat = c.DepthFormat
	}
	if t.layers > MaxViews {
		return t, fmt.Errorf("%w: %d canvas layers, at most %d views", ErrOutOfRange, t.layers, MaxViews)
	}
	t.samples = c.Samples
	return t, nil
}

func (p *Pass) createTransient(c *Canvas, t *renderTarget) error {
	d := p.device
	typ := TextureArray
	if t.layers == 1 {
		typ = Texture2D
	}
	newTarget := func(label string, format gputypes.TextureFormat) (*Texture, error) {
		tex, err := d.NewTexture(TextureOptions{
			Label:   p.label + "_" + label,
			Type:    typ,
			Format:  format,
			Width:   t.width,
			Height:  t.height,
			Layers:  t.layers,
			Samples: t.samples,
			Usage:   TextureRender,
		})
		if err != nil {
			return nil, err
		}
		t.transient = append(t.transient, tex)
		return tex, nil
	}
	fail := func(err error) error {
		for _, tex := range t.transient {
			tex.Release()
		}
		t.transient = nil
		return err
	}

	if len(c.Colors) > 0 && t.samples > c.Colors[0].samples {
		for i, tex := range c.Colors {
			ms, err := newTarget(fmt.Sprintf("msaa%d", i), tex.format)
			if err != nil {
				return fail(err)
			}
			t.msaa = append(t.msaa, ms)
		}
	}
	if t.depth == nil && t.depthFormat != gputypes.TextureFormatUndefined {
		depth, err := newTarget("depth", t.depthFormat)
		if err != nil {
			return fail(err)
		}
		t.depth = depth
	}
	return nil
}

func (p *Pass) releaseTarget() {
	if !p.hasCanvas {
		return
	}
	for _, tex := range p.canvas.Colors {
		p.device.table.Drop(tex.id)
	}
	if p.canvas.Depth != nil {
		p.device.table.Drop(p.canvas.Depth.id)
	}
	for _, tex := range p.target.transient {
		tex.Release()
	}
	p.canvas, p.target, p.hasCanvas = Canvas{}, renderTarget{}, false
}

// SetClear sets how canvas attachments start.
func (p *Pass) SetClear(c ClearValues) { p.clear = c }

// Clear returns the clear values.
func (p *Pass) Clear() ClearValues { return p.clear }

// --------------------------------------------------------------------------
// Shader and bindings
// --------------------------------------------------------------------------

// SetShader makes s the active shader. Render passes take graphics shaders
// and compute passes compute shaders. Resources sent to variables that the
// new shader declares with another kind are reset: textures to a white
// texture, samplers to a linear sampler and buffers to nothing. nil clears
// the shader.
func (p *Pass) SetShader(s *Shader) error {
	if p.submitted {
		return fmt.Errorf("%w: set shader", ErrPassSubmitted)
	}
	if s == nil {
		p.shader = nil
		p.state.Pipeline.Shader = nil
		return nil
	}
	switch {
	case p.typ == PassTransfer:
		return fmt.Errorf("%w: shader in a transfer pass", ErrWrongPassType)
	case p.typ == PassRender && s.typ != ShaderGraphics,
		p.typ == PassCompute && s.typ != ShaderCompute:
		return fmt.Errorf("%w: %s shader %q in a %s pass", ErrShaderType, s.typ, s.label, p.typ)
	}
	if err := p.device.table.CheckUsage(s.id, 0); err != nil {
		return err
	}
	p.shader = s
	p.state.Pipeline.Shader = s
	if reset := p.bindings.SetProgram(s.program); len(reset) > 0 {
		Logger().Debug("gfx: bindings reset by shader switch", "pass", p.label, "shader", s.label, "variables", reset)
	}
	return nil
}

// Shader returns the active shader.
func (p *Pass) Shader() *Shader { return p.shader }

// Send binds a *Buffer, *Texture or *Sampler to the shader variable name.
// Buffers are bound whole; use SendBuffer for a range.
func (p *Pass) Send(name string, resource recording.Resource) error {
	switch r := resource.(type) {
	case *Buffer:
		return p.SendBuffer(name, r, 0, 0)
	case *Texture:
		if r == nil {
			break
		}
		return p.send(name, binding.ClassTexture, r, 0, 0)
	case *Sampler:
		if r == nil {
			break
		}
		return p.send(name, binding.ClassSampler, r, 0, 0)
	}
	return fmt.Errorf("%w: cannot send %T to %q", ErrInvalidArgument, resource, name)
}

// SendBuffer binds size bytes of buf at offset to the shader variable
// name. A size of 0 binds to the end of the buffer.
func (p *Pass) SendBuffer(name string, buf *Buffer, offset, size uint64) error {
	if buf == nil {
		return fmt.Errorf("%w: nil buffer for %q", ErrInvalidArgument, name)
	}
	if _, err := buf.checkRange(offset, size); err != nil {
		return err
	}
	return p.send(name, binding.ClassBuffer, buf, offset, size)
}

func (p *Pass) send(name string, class binding.Class, res recording.Resource, offset, size uint64) error {
	if p.submitted {
		return fmt.Errorf("%w: send %q", ErrPassSubmitted, name)
	}
	if p.typ == PassTransfer {
		return fmt.Errorf("%w: send in a transfer pass", ErrWrongPassType)
	}
	if err := p.device.table.CheckUsage(restable.ID(res.ResourceID()), 0); err != nil {
		return err
	}
	return p.bindings.Send(name, class, res, offset, size)
}

// SetMaterial sets the material used by draws whose geometry has none.
// nil clears it.
func (p *Pass) SetMaterial(m *Material) { p.material = m }

// resolveBindings snapshots the bindings of the active shader, checks them
// and holds their resources.
func (p *Pass) resolveBindings(material *Material) (recording.BindingsRef, error) {
	white, sampler, err := p.device.defaults()
	if err != nil {
		return 0, err
	}
	set, err := p.bindings.Resolve(binding.Defaults{Texture: white, Sampler: sampler})
	if err != nil {
		return 0, err
	}
	prog := p.shader.program

	if material != nil {
		for name, tex := range material.Textures {
			v, ok := prog.Variable(name)
			if !ok || tex == nil || v.Kind != reflection.KindSampledTexture || p.bindings.Bound(name) {
				continue
			}
			for i := range set {
				if set[i].Group == v.Group && set[i].Slot == v.Binding {
					set[i].Resource = tex
				}
			}
		}
	}

	resources := make([]recording.Resource, 0, len(set))
	for _, b := range set {
		if b.Resource == nil {
			continue
		}
		if err := p.checkBinding(prog, b); err != nil {
			return 0, err
		}
		resources = append(resources, b.Resource)
	}
	if err := p.hold(resources...); err != nil {
		return 0, err
	}
	return p.list.Pool().AddBindings(set), nil
}

func (p *Pass) checkBinding(prog *reflection.Program, b recording.Binding) error {
	table := p.device.table
	lim := p.device.limits
	switch r := b.Resource.(type) {
	case *Buffer:
		required, align := restable.UsageUniform, lim.MinUniformBufferOffsetAlignment
		if b.Kind == recording.BindStorageBuffer {
			required, align = restable.UsageStorage, lim.MinStorageBufferOffsetAlignment
		}
		if err := table.CheckUsage(r.id, required); err != nil {
			return err
		}
		if align > 0 && b.Offset%uint64(align) != 0 {
			return fmt.Errorf("%w: buffer offset %d is not a multiple of %d", ErrInvalidArgument, b.Offset, align)
		}
	case *Texture:
		required := restable.UsageSample
		if b.Kind == recording.BindStorageTexture {
			required = restable.UsageStorage
		}
		if err := table.CheckUsage(r.id, required); err != nil {
			return err
		}
		for _, v := range prog.Variables {
			if v.Group != b.Group || v.Binding != b.Slot {
				continue
			}
			if v.Texture.Multisampled != (r.samples > 1) {
				return fmt.Errorf("%w: texture %q has %d samples for variable %q", ErrUsage, r.label, r.samples, v.Name)
			}
		}
	case *Sampler:
		if err := table.CheckUsage(r.id, 0); err != nil {
			return err
		}
	}
	return nil
}
