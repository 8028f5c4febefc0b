package gfx

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gfx/internal/cache"
	"github.com/gogpu/gfx/internal/pipeline"
	"github.com/gogpu/gfx/internal/restable"
)

// Device owns a hal device and queue, the resources created on them and the
// submission timeline.
//
// Resource creation is safe for concurrent use. Submit and Wait serialize
// on the device.
type Device struct {
	raw      hal.Device
	queue    hal.Queue
	adapter  hal.Adapter  // nil for wrapped devices
	instance hal.Instance // nil for wrapped devices
	info     gputypes.AdapterInfo
	limits   gputypes.Limits
	owned    bool

	label        string
	shaderDebug  bool
	directCopies bool // queue has no command buffer copies; read mapped memory

	table       *restable.Table
	pipelines   *pipeline.Cache
	specialized *cache.Cache[specializationKey, []uint32]

	defaultsMu sync.Mutex
	white      *Texture
	sampler    *Sampler

	submitMu  sync.Mutex
	blit      *blitter
	inflight  []frame
	last      uint64 // index of the most recent submission
	completed uint64 // highest submission index retired

	submissions atomic.Uint64
	skipped     atomic.Uint64
	asyncErrors atomic.Uint64
	tallyWarned atomic.Bool
	errMu       sync.Mutex
	lastErr     error
	closed      atomic.Bool
}

// frame is one submission whose cleanup waits for the GPU.
type frame struct {
	index   uint64
	cmd     hal.CommandBuffer
	cleanup []func()
}

// DeviceStats is a snapshot of device activity.
type DeviceStats struct {
	Resources      restable.Stats
	Pipelines      int
	PipelineHits   uint64
	PipelineMisses uint64
	Submissions    uint64
	SkippedPasses  uint64
	AsyncErrors    uint64
	InFlight       int
}

// String returns a human-readable summary.
func (s DeviceStats) String() string {
	return fmt.Sprintf("Device[%d submissions, %d in flight, %d skipped passes, %d async errors, %d pipelines, %s]",
		s.Submissions, s.InFlight, s.SkippedPasses, s.AsyncErrors, s.Pipelines, s.Resources)
}

// Open creates a device on a registered hal backend. Backends register
// themselves when their package is imported; importing
// github.com/gogpu/wgpu/hal/noop gives a device that records and submits
// without a GPU.
func Open(opts ...DeviceOption) (*Device, error) {
	o := defaultDeviceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger != nil {
		SetLogger(o.logger)
	}

	backend, err := selectBackend(o)
	if err != nil {
		return nil, err
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{})
	if err != nil {
		return nil, fmt.Errorf("gfx: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: backend %v", ErrNoAdapter, backend.Variant())
	}
	exposed := adapters[0]

	limits := exposed.Capabilities.Limits
	if o.limits != nil {
		limits = *o.limits
	}
	opened, err := exposed.Adapter.Open(0, limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("gfx: open adapter %q: %w", exposed.Info.Name, err)
	}

	d, err := newDevice(opened.Device, opened.Queue, limits, o)
	if err != nil {
		opened.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	d.adapter = exposed.Adapter
	d.instance = instance
	d.info = exposed.Info
	d.owned = true

	Logger().Info("gfx: device opened",
		"adapter", exposed.Info.Name,
		"backend", exposed.Info.Backend,
		"direct_copies", d.directCopies)
	return d, nil
}

// selectBackend returns the requested backend, or the first registered one
// that is not noop.
func selectBackend(o deviceOptions) (hal.Backend, error) {
	if !o.anyBackend {
		b, ok := hal.GetBackend(o.backend)
		if !ok {
			return nil, fmt.Errorf("%w: backend %v is not registered", ErrNoAdapter, o.backend)
		}
		return b, nil
	}
	variants := hal.AvailableBackends()
	slices.Sort(variants)
	for _, v := range variants {
		if v == gputypes.BackendEmpty {
			continue
		}
		if b, ok := hal.GetBackend(v); ok {
			return b, nil
		}
	}
	if b, ok := hal.GetBackend(gputypes.BackendEmpty); ok {
		return b, nil
	}
	return nil, fmt.Errorf("%w: no hal backend registered", ErrNoAdapter)
}

// NewDevice wraps a hal device and queue owned by the caller. Close
// destroys the resources created through the Device but not the hal device.
func NewDevice(device hal.Device, queue hal.Queue, limits gputypes.Limits, opts ...DeviceOption) (*Device, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("%w: nil hal device or queue", ErrInvalidArgument)
	}
	o := defaultDeviceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger != nil {
		SetLogger(o.logger)
	}
	if o.limits != nil {
		limits = *o.limits
	}
	return newDevice(device, queue, limits, o)
}

// halProvider is implemented by hosts that expose their hal objects
// directly rather than through gpucontext.DeviceProvider.Device.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// limitsProvider is implemented by hosts that know their device limits.
type limitsProvider interface {
	Limits() gputypes.Limits
}

// FromProvider wraps the device of a host application, such as a windowing
// library that already opened the GPU.
func FromProvider(provider gpucontext.DeviceProvider, opts ...DeviceOption) (*Device, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: nil device provider", ErrInvalidArgument)
	}
	device, _ := provider.Device().(hal.Device)
	queue, _ := provider.Queue().(hal.Queue)
	if device == nil || queue == nil {
		if hp, ok := provider.(halProvider); ok {
			device, _ = hp.HalDevice().(hal.Device)
			queue, _ = hp.HalQueue().(hal.Queue)
		}
	}
	if device == nil || queue == nil {
		return nil, fmt.Errorf("%w: provider does not expose a hal device", ErrUnsupported)
	}

	limits := gputypes.DefaultLimits()
	if lp, ok := provider.(limitsProvider); ok {
		limits = lp.Limits()
	}
	d, err := NewDevice(device, queue, limits, opts...)
	if err != nil {
		return nil, err
	}
	d.info = gputypes.AdapterInfo{Name: provider.AdapterInfo().Name}
	if adapter, ok := provider.Adapter().(hal.Adapter); ok {
		d.adapter = adapter
	}
	return d, nil
}

func newDevice(device hal.Device, queue hal.Queue, limits gputypes.Limits, o deviceOptions) (*Device, error) {
	pipelines, err := pipeline.New(device)
	if err != nil {
		return nil, err
	}
	return &Device{
		raw:          device,
		queue:        queue,
		limits:       limits,
		label:        o.label,
		shaderDebug:  o.shaderDebug,
		directCopies: !queue.SupportsCommandBufferCopies(),
		table:        restable.New(),
		pipelines:    pipelines,
		specialized:  cache.New[specializationKey, []uint32](specializedLimit),
	}, nil
}

// Limits returns the limits the device was opened with.
func (d *Device) Limits() gputypes.Limits { return d.limits }

// AdapterInfo describes the adapter behind the device. It is zero for
// wrapped devices whose host did not report one.
func (d *Device) AdapterInfo() gputypes.AdapterInfo { return d.info }

// IsFormatSupported reports whether textures of format can be created with
// usage. Wrapped devices have no adapter to ask and report true for every
// defined format.
func (d *Device) IsFormatSupported(format gputypes.TextureFormat, usage TextureUsage) bool {
	if format == gputypes.TextureFormatUndefined {
		return false
	}
	if d.adapter == nil {
		return true
	}
	caps := d.adapter.TextureFormatCapabilities(format).Flags
	var need hal.TextureFormatCapabilityFlags
	if usage&TextureSample != 0 {
		need |= hal.TextureFormatCapabilitySampled
	}
	if usage&TextureRender != 0 {
		need |= hal.TextureFormatCapabilityRenderAttachment
	}
	if usage&TextureStorage != 0 {
		need |= hal.TextureFormatCapabilityStorage
	}
	return caps&need == need
}

// Stats returns a snapshot of device activity.
func (d *Device) Stats() DeviceStats {
	hits, misses := d.pipelines.Stats()
	d.submitMu.Lock()
	inflight := len(d.inflight)
	d.submitMu.Unlock()
	return DeviceStats{
		Resources:      d.table.Stats(),
		Pipelines:      d.pipelines.Size(),
		PipelineHits:   hits,
		PipelineMisses: misses,
		Submissions:    d.submissions.Load(),
		SkippedPasses:  d.skipped.Load(),
		AsyncErrors:    d.asyncErrors.Load(),
		InFlight:       inflight,
	}
}

// Err returns the most recent error that Submit logged instead of
// returning, or nil.
func (d *Device) Err() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.lastErr
}

// reportAsync logs and records an error that is not returned to a caller.
func (d *Device) reportAsync(msg string, err error, args ...any) {
	d.asyncErrors.Add(1)
	d.errMu.Lock()
	d.lastErr = err
	d.errMu.Unlock()
	Logger().Error(msg, append(args, "err", err)...)
}

// Close waits for the GPU, destroys every resource created through the
// device and, for devices created by Open, the hal device itself. Closing
// twice is a no-op.
func (d *Device) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	var errs []error
	if err := d.raw.WaitIdle(); err != nil {
		errs = append(errs, fmt.Errorf("gfx: wait idle: %w", err))
	}
	d.retire(^uint64(0))
	if d.blit != nil {
		d.blit.destroy()
		d.blit = nil
	}
	d.pipelines.DestroyAll()
	n := d.table.DestroyAll()

	if d.owned {
		d.raw.Destroy()
		if d.adapter != nil {
			d.adapter.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	Logger().Info("gfx: device closed", "label", d.label, "destroyed", n)
	return errors.Join(errs...)
}

func (d *Device) checkOpen() error {
	if d.closed.Load() {
		return ErrDeviceClosed
	}
	return nil
}

// objectLabel prefixes a GPU object label with the device label.
func (d *Device) objectLabel(kind, label string) string {
	if label == "" {
		return d.label + "_" + kind
	}
	return d.label + "_" + label
}

// defaults returns the white texture and linear sampler that reset binding
// slots fall back to, creating them on first use.
func (d *Device) defaults() (*Texture, *Sampler, error) {
	d.defaultsMu.Lock()
	defer d.defaultsMu.Unlock()
	if d.white != nil {
		return d.white, d.sampler, nil
	}
	white, err := d.NewTexture(TextureOptions{
		Label:  "default_white",
		Width:  1,
		Height: 1,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  TextureSample | TextureTransfer,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("gfx: create default texture: %w", err)
	}
	if err := white.writeRaw(0, 0, 0, 0, 1, 1, []byte{0xff, 0xff, 0xff, 0xff}); err != nil {
		white.Release()
		return nil, nil, fmt.Errorf("gfx: fill default texture: %w", err)
	}
	sampler, err := d.NewSampler(SamplerOptions{Label: "default_linear"})
	if err != nil {
		white.Release()
		return nil, nil, fmt.Errorf("gfx: create default sampler: %w", err)
	}
	d.white, d.sampler = white, sampler
	return white, sampler, nil
}
