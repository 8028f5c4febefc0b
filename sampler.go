package gfx

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gfx/internal/restable"
)

// SamplerOptions configures NewSampler. The zero value is a linear,
// repeating sampler.
type SamplerOptions struct {
	Label string

	Nearest      bool // nearest filtering for minification and magnification
	NearestMip   bool // nearest filtering between mip levels
	AddressModeU gputypes.AddressMode
	AddressModeV gputypes.AddressMode
	AddressModeW gputypes.AddressMode

	// Compare makes a comparison sampler for depth textures.
	Compare gputypes.CompareFunction

	Anisotropy uint16 // 0 or 1 disables anisotropic filtering

	LodMin, LodMax float32 // LodMax 0 means no clamp
}

// Sampler is an immutable texture sampler.
type Sampler struct {
	device *Device
	raw    hal.Sampler
	id     restable.ID
	label  string
	opts   SamplerOptions
}

// NewSampler creates a sampler.
func (d *Device) NewSampler(opts SamplerOptions) (*Sampler, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if opts.LodMax != 0 && opts.LodMax < opts.LodMin {
		return nil, fmt.Errorf("%w: sampler lod range [%g, %g]", ErrInvalidArgument, opts.LodMin, opts.LodMax)
	}
	for _, m := range []*gputypes.AddressMode{&opts.AddressModeU, &opts.AddressModeV, &opts.AddressModeW} {
		if *m == gputypes.AddressModeUndefined {
			*m = gputypes.AddressModeRepeat
		}
	}

	filter, mip := gputypes.FilterModeLinear, gputypes.FilterModeLinear
	if opts.Nearest {
		filter = gputypes.FilterModeNearest
	}
	if opts.NearestMip {
		mip = gputypes.FilterModeNearest
	}
	lodMax := opts.LodMax
	if lodMax == 0 {
		lodMax = 32
	}
	anisotropy := max(opts.Anisotropy, 1)
	if filter == gputypes.FilterModeNearest {
		// Anisotropic filtering requires linear filtering.
		anisotropy = 1
	}

	raw, err := d.raw.CreateSampler(&hal.SamplerDescriptor{
		Label:        d.objectLabel("sampler", opts.Label),
		AddressModeU: opts.AddressModeU,
		AddressModeV: opts.AddressModeV,
		AddressModeW: opts.AddressModeW,
		MagFilter:    filter,
		MinFilter:    filter,
		MipmapFilter: mip,
		LodMinClamp:  opts.LodMin,
		LodMaxClamp:  lodMax,
		Compare:      opts.Compare,
		Anisotropy:   anisotropy,
	})
	if err != nil {
		return nil, fmt.Errorf("gfx: create sampler %q: %w", opts.Label, err)
	}
	id, err := d.table.Register(restable.KindSampler, 0, opts.Label, 0, func() {
		d.raw.DestroySampler(raw)
	})
	if err != nil {
		d.raw.DestroySampler(raw)
		return nil, err
	}
	return &Sampler{device: d, raw: raw, id: id, label: opts.Label, opts: opts}, nil
}

// ResourceID implements recording.Resource.
func (s *Sampler) ResourceID() uint64 { return uint64(s.id) }

// Label returns the label the sampler was created with.
func (s *Sampler) Label() string { return s.label }

// Options returns the options the sampler was created with, defaults
// filled in.
func (s *Sampler) Options() SamplerOptions { return s.opts }

// IsComparison reports whether the sampler compares depth values.
func (s *Sampler) IsComparison() bool {
	return s.opts.Compare != gputypes.CompareFunctionUndefined
}

// Release marks the sampler for destruction once it is no longer in use.
func (s *Sampler) Release() { s.device.table.Release(s.id) }
