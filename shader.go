package gfx

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gfx/internal/binding"
	"github.com/gogpu/gfx/internal/reflection"
	"github.com/gogpu/gfx/internal/restable"
	"github.com/gogpu/gfx/layout"
)

// ShaderType says whether a shader draws or dispatches.
type ShaderType uint8

const (
	ShaderGraphics ShaderType = iota
	ShaderCompute
)

// String returns "graphics" or "compute".
func (t ShaderType) String() string {
	if t == ShaderCompute {
		return "compute"
	}
	return "graphics"
}

// ShaderStage is a set of shader stages.
type ShaderStage = reflection.Stage

const (
	StageVertex   = reflection.StageVertex
	StageFragment = reflection.StageFragment
	StageCompute  = reflection.StageCompute
)

// ShaderOptions configures shader creation.
type ShaderOptions struct {
	Label string

	// Constants overrides WGSL override declarations or SPIR-V
	// specialization constants, by name or by numeric ID.
	Constants map[string]float64
}

// Shader is an immutable shader program with its reflected interface.
type Shader struct {
	device  *Device
	id      restable.ID
	label   string
	typ     ShaderType
	program *reflection.Program

	// Sources kept for Clone.
	module *ir.Module
	stages [3][]uint32 // SPIR-V words by stageIndex

	constants map[string]float64
	modules   [3]hal.ShaderModule
	groups    []hal.BindGroupLayout
	layout    hal.PipelineLayout
}

func stageIndex(s reflection.Stage) int {
	switch s {
	case reflection.StageFragment:
		return 1
	case reflection.StageCompute:
		return 2
	default:
		return 0
	}
}

// NewShader creates a shader from WGSL source holding either a vertex
// entry point with an optional fragment entry point, or a compute entry
// point.
func (d *Device) NewShader(source string, opts ShaderOptions) (*Shader, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	program, module, err := reflection.FromWGSL(source)
	if err != nil {
		return nil, fmt.Errorf("gfx: shader %q: %w", opts.Label, err)
	}
	s := &Shader{device: d, label: opts.Label, program: program, module: module}
	if err := s.classify(); err != nil {
		return nil, err
	}
	if err := s.build(source, opts.Constants); err != nil {
		return nil, err
	}
	return s, nil
}

// NewShaderSPIRV creates a shader from one SPIR-V module per stage:
// vertex and optional fragment, or compute.
func (d *Device) NewShaderSPIRV(opts ShaderOptions, stages ...[]byte) (*Shader, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w: shader %q has no stages", ErrInvalidArgument, opts.Label)
	}
	s := &Shader{device: d, label: opts.Label}
	programs := make([]*reflection.Program, 0, len(stages))
	for i, code := range stages {
		words, err := reflection.Words(code)
		if err != nil {
			return nil, fmt.Errorf("gfx: shader %q stage %d: %w", opts.Label, i, err)
		}
		p, err := reflection.FromSPIRV(words)
		if err != nil {
			return nil, fmt.Errorf("gfx: shader %q stage %d: %w", opts.Label, i, err)
		}
		if len(p.EntryPoints) != 1 {
			return nil, fmt.Errorf("%w: SPIR-V stage %d has %d entry points", ErrInvalidArgument, i, len(p.EntryPoints))
		}
		idx := stageIndex(p.EntryPoints[0].Stage)
		if s.stages[idx] != nil {
			return nil, fmt.Errorf("%w: two %s stages", ErrInvalidArgument, p.EntryPoints[0].Stage)
		}
		s.stages[idx] = words
		programs = append(programs, p)
	}
	program, err := reflection.Merge(programs...)
	if err != nil {
		return nil, fmt.Errorf("gfx: shader %q: %w", opts.Label, err)
	}
	s.program = program
	if err := s.classify(); err != nil {
		return nil, err
	}
	if err := s.build("", opts.Constants); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Shader) classify() error {
	p := s.program
	switch {
	case p.HasStage(reflection.StageCompute) && p.Stages != reflection.StageCompute:
		return fmt.Errorf("%w: shader %q mixes compute and graphics stages", ErrShaderType, s.label)
	case p.HasStage(reflection.StageCompute):
		s.typ = ShaderCompute
	case p.HasStage(reflection.StageVertex):
		s.typ = ShaderGraphics
	default:
		return fmt.Errorf("%w: shader %q has no vertex or compute entry point", ErrShaderType, s.label)
	}
	return nil
}

// build creates the hal modules and layouts and registers the shader.
func (s *Shader) build(source string, constants map[string]float64) error {
	d := s.device
	s.constants = maps.Clone(constants)
	if err := s.checkConstants(); err != nil {
		return err
	}
	if err := s.createModules(source); err != nil {
		s.destroy()
		return err
	}
	if err := s.createLayouts(); err != nil {
		s.destroy()
		return err
	}
	id, err := d.table.Register(restable.KindShader, 0, s.label, 0, func() {
		d.pipelines.Evict(uint64(s.id))
		s.destroy()
	})
	if err != nil {
		s.destroy()
		return err
	}
	s.id = id
	return nil
}

func (s *Shader) checkConstants() error {
	for key := range s.constants {
		found := false
		for _, c := range s.program.Constants {
			if c.Name == key || (c.ID >= 0 && strconv.Itoa(c.ID) == key) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: shader %q has no constant %q", ErrUnknownVariable, s.label, key)
		}
	}
	return nil
}

func (s *Shader) createModules(source string) error {
	d := s.device
	create := func(idx int, src hal.ShaderSource) error {
		m, err := d.raw.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  d.objectLabel("shader", s.label),
			Source: src,
		})
		if err != nil {
			return fmt.Errorf("gfx: create shader module %q: %w", s.label, err)
		}
		s.modules[idx] = m
		return nil
	}

	if s.module == nil {
		for idx, words := range s.stages {
			if words == nil {
				continue
			}
			if len(s.constants) > 0 {
				specialized, err := d.specialized.GetOrCreate(s.specializationKey(idx), func() ([]uint32, error) {
					return reflection.Specialize(words, s.constants)
				})
				if err != nil {
					return fmt.Errorf("gfx: shader %q: %w", s.label, err)
				}
				words = specialized
			}
			if err := create(idx, hal.ShaderSource{SPIRV: words}); err != nil {
				return err
			}
		}
		return nil
	}

	src := hal.ShaderSource{WGSL: source}
	if len(s.constants) > 0 {
		words, err := d.specialized.GetOrCreate(s.specializationKey(0), s.specializeWGSL)
		if err != nil {
			return err
		}
		src = hal.ShaderSource{SPIRV: words}
	}
	if err := create(0, src); err != nil {
		return err
	}
	s.modules[1], s.modules[2] = s.modules[0], s.modules[0]
	return nil
}

// specializedLimit bounds the SPIR-V kept for shaders built with constant
// overrides.
const specializedLimit = 64

// specializationKey identifies SPIR-V compiled for one stage of a program
// with a set of constant overrides. Clones share their program.
type specializationKey struct {
	program   *reflection.Program
	stage     int
	constants string
}

func (s *Shader) specializationKey(stage int) specializationKey {
	keys := slices.Sorted(maps.Keys(s.constants))
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v;", k, s.constants[k])
	}
	return specializationKey{program: s.program, stage: stage, constants: b.String()}
}

// specializeWGSL resolves override declarations in a copy of the IR module
// and compiles the result to SPIR-V.
func (s *Shader) specializeWGSL() ([]uint32, error) {
	module := ir.CloneModuleForOverrides(s.module)
	if err := ir.ProcessOverrides(module, ir.PipelineConstants(s.constants)); err != nil {
		return nil, fmt.Errorf("gfx: shader %q: process overrides: %w", s.label, err)
	}
	code, err := naga.GenerateSPIRV(module, spirv.Options{
		Version: spirv.Version1_3,
		Debug:   s.device.shaderDebug,
	})
	if err != nil {
		return nil, fmt.Errorf("gfx: shader %q: generate spir-v: %w", s.label, err)
	}
	return reflection.Words(code)
}

// isDynamic reports whether a variable is bound with a dynamic offset.
// Builtin uniform blocks are, so per-draw and per-view data can share one
// buffer.
func isDynamic(v reflection.Variable) bool {
	return v.Kind == reflection.KindUniformBuffer &&
		(v.Name == binding.CameraVariable || v.Name == binding.DrawVariable)
}

func layoutEntry(v reflection.Variable) gputypes.BindGroupLayoutEntry {
	e := gputypes.BindGroupLayoutEntry{
		Binding:    v.Binding,
		Visibility: v.Stages.ShaderStages(),
	}
	switch v.Kind {
	case reflection.KindUniformBuffer:
		e.Buffer = &gputypes.BufferBindingLayout{
			Type:             gputypes.BufferBindingTypeUniform,
			HasDynamicOffset: isDynamic(v),
		}
	case reflection.KindStorageBuffer:
		typ := gputypes.BufferBindingTypeStorage
		if v.ReadOnly {
			typ = gputypes.BufferBindingTypeReadOnlyStorage
		}
		e.Buffer = &gputypes.BufferBindingLayout{Type: typ}
	case reflection.KindSampledTexture:
		e.Texture = &gputypes.TextureBindingLayout{
			SampleType:    v.Texture.SampleType,
			ViewDimension: v.Texture.Dimension,
			Multisampled:  v.Texture.Multisampled,
		}
	case reflection.KindStorageTexture:
		e.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        v.Texture.Access,
			Format:        v.Texture.Format,
			ViewDimension: v.Texture.Dimension,
		}
	case reflection.KindSampler:
		typ := gputypes.SamplerBindingTypeFiltering
		if v.Comparison {
			typ = gputypes.SamplerBindingTypeComparison
		}
		e.Sampler = &gputypes.SamplerBindingLayout{Type: typ}
	}
	return e
}

func (s *Shader) createLayouts() error {
	d := s.device
	n := s.program.Groups()
	s.groups = make([]hal.BindGroupLayout, 0, n)
	for g := range n {
		vars := s.program.GroupVariables(g)
		entries := make([]gputypes.BindGroupLayoutEntry, 0, len(vars))
		for _, v := range vars {
			entries = append(entries, layoutEntry(v))
		}
		bgl, err := d.raw.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s_group%d", d.objectLabel("shader", s.label), g),
			Entries: entries,
		})
		if err != nil {
			return fmt.Errorf("gfx: create bind group layout %d of %q: %w", g, s.label, err)
		}
		s.groups = append(s.groups, bgl)
	}

	var ranges []hal.PushConstantRange
	for _, v := range s.program.Variables {
		if v.Kind == reflection.KindPushConstant {
			ranges = append(ranges, hal.PushConstantRange{
				Stages: v.Stages.ShaderStages(),
				Range:  hal.Range{Start: 0, End: v.Format.Stride},
			})
		}
	}
	pl, err := d.raw.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:              d.objectLabel("shader", s.label) + "_layout",
		BindGroupLayouts:   s.groups,
		PushConstantRanges: ranges,
	})
	if err != nil {
		return fmt.Errorf("gfx: create pipeline layout of %q: %w", s.label, err)
	}
	s.layout = pl
	return nil
}

// destroy releases the hal objects. Called once, by the resource table.
func (s *Shader) destroy() {
	d := s.device.raw
	if s.layout != nil {
		d.DestroyPipelineLayout(s.layout)
		s.layout = nil
	}
	for _, bgl := range s.groups {
		d.DestroyBindGroupLayout(bgl)
	}
	s.groups = nil
	var last hal.ShaderModule
	for i, m := range s.modules {
		// WGSL shaders share one module between stages.
		if m != nil && (i == 0 || m != last) {
			d.DestroyShaderModule(m)
		}
		last = m
		s.modules[i] = nil
	}
}

// Clone returns a shader sharing this shader's interface with different
// constant overrides. Overrides not given keep the values of s.
func (s *Shader) Clone(constants map[string]float64) (*Shader, error) {
	if err := s.device.table.CheckUsage(s.id, 0); err != nil {
		return nil, err
	}
	merged := maps.Clone(s.constants)
	if merged == nil {
		merged = make(map[string]float64, len(constants))
	}
	maps.Copy(merged, constants)
	c := &Shader{
		device:  s.device,
		label:   s.label,
		typ:     s.typ,
		program: s.program,
		module:  s.module,
		stages:  s.stages,
	}
	if err := c.build("", merged); err != nil {
		return nil, err
	}
	return c, nil
}

// ResourceID implements recording.Resource.
func (s *Shader) ResourceID() uint64 { return uint64(s.id) }

// Label returns the label the shader was created with.
func (s *Shader) Label() string { return s.label }

// Type returns whether the shader is a graphics or compute shader.
func (s *Shader) Type() ShaderType { return s.typ }

// HasStage reports whether the shader has an entry point for stage.
func (s *Shader) HasStage(stage ShaderStage) bool { return s.program.HasStage(stage) }

// HasVariable reports whether the shader declares a resource named name.
func (s *Shader) HasVariable(name string) bool { return s.program.HasVariable(name) }

// HasAttribute reports whether the vertex stage has an input named name.
func (s *Shader) HasAttribute(name string) bool { return s.program.HasAttribute(name) }

// HasLocation reports whether the vertex stage has an input at location.
func (s *Shader) HasLocation(location uint32) bool { return s.program.HasLocation(location) }

// BufferFormat returns the element format and element count of a buffer
// variable, suitable for NewBuffer.
func (s *Shader) BufferFormat(name string) (layout.Format, uint32, error) {
	return s.program.BufferFormat(name)
}

// WorkgroupSize returns the workgroup size of a compute shader.
func (s *Shader) WorkgroupSize() [3]uint32 { return s.program.Workgroup }

// Constants returns the override values the shader was built with.
func (s *Shader) Constants() map[string]float64 { return maps.Clone(s.constants) }

// Release marks the shader for destruction once it is no longer in use.
// Its pipelines are evicted from the device cache at that point.
func (s *Shader) Release() { s.device.table.Release(s.id) }

func (s *Shader) entry(stage reflection.Stage) string {
	name, _ := s.program.EntryPoint(stage)
	return name
}

func (s *Shader) moduleFor(stage reflection.Stage) hal.ShaderModule {
	return s.modules[stageIndex(stage)]
}
