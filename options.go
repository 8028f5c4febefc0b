package gfx

import (
	"log/slog"

	"github.com/gogpu/gputypes"
)

// DeviceOption configures a Device during creation.
//
// Example:
//
//	// First registered backend, adapter limits
//	dev, err := gfx.Open()
//
//	// Vulkan with logging and debug names in generated SPIR-V
//	dev, err := gfx.Open(
//	    gfx.WithBackend(gputypes.BackendVulkan),
//	    gfx.WithLogger(slog.Default()),
//	    gfx.WithShaderDebug(true),
//	)
type DeviceOption func(*deviceOptions)

// deviceOptions holds optional configuration for Device creation.
type deviceOptions struct {
	backend     gputypes.Backend
	anyBackend  bool
	limits      *gputypes.Limits
	logger      *slog.Logger
	shaderDebug bool
	label       string
}

// defaultDeviceOptions returns the default device options.
func defaultDeviceOptions() deviceOptions {
	return deviceOptions{
		anyBackend: true,
		label:      "gfx",
	}
}

// WithBackend selects the hal backend Open uses. Without it Open picks the
// first registered backend that is not the noop backend, falling back to
// noop when nothing else is linked in.
func WithBackend(b gputypes.Backend) DeviceOption {
	return func(o *deviceOptions) {
		o.backend = b
		o.anyBackend = false
	}
}

// WithLimits requests device limits. Without it the adapter's limits are
// used.
func WithLimits(limits gputypes.Limits) DeviceOption {
	return func(o *deviceOptions) {
		o.limits = &limits
	}
}

// WithLogger is shorthand for calling SetLogger before opening the device.
func WithLogger(l *slog.Logger) DeviceOption {
	return func(o *deviceOptions) {
		o.logger = l
	}
}

// WithShaderDebug keeps debug names in SPIR-V generated for specialized
// shaders.
func WithShaderDebug(enabled bool) DeviceOption {
	return func(o *deviceOptions) {
		o.shaderDebug = enabled
	}
}

// WithLabel sets the label prefix used for GPU objects created by the device.
func WithLabel(label string) DeviceOption {
	return func(o *deviceOptions) {
		o.label = label
	}
}
