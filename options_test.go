package gfx

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestDefaultDeviceOptions(t *testing.T) {
	o := defaultDeviceOptions()
	if !o.anyBackend || o.label != "gfx" || o.limits != nil || o.logger != nil || o.shaderDebug {
		t.Errorf("defaultDeviceOptions() = %+v", o)
	}
}

func TestDeviceOptions(t *testing.T) {
	limits := gputypes.DefaultLimits()
	limits.MaxBufferSize = 1024

	o := defaultDeviceOptions()
	for _, opt := range []DeviceOption{
		WithBackend(gputypes.BackendVulkan),
		WithLimits(limits),
		WithShaderDebug(true),
		WithLabel("scene"),
	} {
		opt(&o)
	}
	if o.anyBackend || o.backend != gputypes.BackendVulkan {
		t.Errorf("backend = %v (any %v), want vulkan", o.backend, o.anyBackend)
	}
	if o.limits == nil || o.limits.MaxBufferSize != 1024 {
		t.Errorf("limits = %+v, want MaxBufferSize 1024", o.limits)
	}
	if !o.shaderDebug || o.label != "scene" {
		t.Errorf("shaderDebug %v label %q", o.shaderDebug, o.label)
	}
}

func TestOpen_WithLimits(t *testing.T) {
	limits := gputypes.DefaultLimits()
	limits.MaxBufferSize = 1024
	d, err := Open(WithBackend(gputypes.BackendEmpty), WithLimits(limits), WithLabel("limited"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()

	if got := d.Limits().MaxBufferSize; got != 1024 {
		t.Errorf("Limits().MaxBufferSize = %d, want 1024", got)
	}
	if _, err := d.NewBuffer(BufferOptions{Length: 2048}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("NewBuffer(over limit) = %v, want ErrOutOfRange", err)
	}
	if got := d.objectLabel("buffer", ""); !strings.HasPrefix(got, "limited_") {
		t.Errorf("objectLabel() = %q, want the device label prefix", got)
	}
}

func TestOpen_UnregisteredBackend(t *testing.T) {
	if _, err := Open(WithBackend(gputypes.BackendDX12)); !errors.Is(err, ErrNoAdapter) {
		t.Errorf("Open(dx12) = %v, want ErrNoAdapter", err)
	}
}

func TestOpen_AnyBackend(t *testing.T) {
	// Only noop is linked into the tests.
	d, err := Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()
	if got := d.AdapterInfo().Backend; got != gputypes.BackendEmpty {
		t.Errorf("AdapterInfo().Backend = %v, want empty", got)
	}
}

func TestNewDevice_Nil(t *testing.T) {
	if _, err := NewDevice(nil, nil, gputypes.DefaultLimits()); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("NewDevice(nil) = %v, want ErrInvalidArgument", err)
	}
}
