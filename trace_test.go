package gfx

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/gfx/recording"
	"github.com/gogpu/gfx/recording/backends/trace"
)

// plainBackend hides the output methods of the backend it wraps.
type plainBackend struct{ recording.Backend }

func TestPass_Trace(t *testing.T) {
	d := newTestDevice(t)
	p := newRenderPass(t, d, 1)
	if err := p.Mesh(newVertices(t, d, 3), nil, mgl32.Ident4(), 0, 0, 1); err != nil {
		t.Fatalf("Mesh() error = %v", err)
	}

	var buf bytes.Buffer
	if err := p.Trace(&buf); err != nil {
		t.Fatalf("Trace() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 || lines[0] != "begin" || lines[2] != "end" {
		t.Fatalf("Trace() = %q, want begin, one draw, end", buf.String())
	}
	if !strings.Contains(lines[1], "draw 0..3") {
		t.Errorf("draw line = %q, want draw 0..3", lines[1])
	}

	var dumped bytes.Buffer
	if err := p.Dump("trace", &dumped); err != nil {
		t.Fatalf("Dump(trace) error = %v", err)
	}
	if dumped.String() != buf.String() {
		t.Errorf("Dump(trace) = %q, want the Trace output %q", dumped.String(), buf.String())
	}
}

func TestPass_DumpFile(t *testing.T) {
	d := newTestDevice(t)
	p := newTransferPass(t, d)
	b := newVertices(t, d, 4)
	if err := p.ClearBuffer(b, 0, 0); err != nil {
		t.Fatalf("ClearBuffer() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "pass.trace")
	if err := p.DumpFile("trace", path); err != nil {
		t.Fatalf("DumpFile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "clear buffer") {
		t.Errorf("dump file = %q, want a clear buffer line", data)
	}
}

func TestPass_DumpBackends(t *testing.T) {
	recording.Register("plain", func() recording.Backend { return plainBackend{trace.NewBackend()} })
	t.Cleanup(func() { recording.Unregister("plain") })

	d := newTestDevice(t)
	p := newTransferPass(t, d)

	tests := []struct {
		name    string
		backend string
		want    error
	}{
		{"unregistered", "vulkan", ErrInvalidArgument},
		{"no text output", "plain", ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := p.Dump(tt.backend, &bytes.Buffer{}); !errors.Is(err, tt.want) {
				t.Errorf("Dump(%q) = %v, want %v", tt.backend, err, tt.want)
			}
		})
	}
	if err := p.DumpFile("plain", filepath.Join(t.TempDir(), "x")); !errors.Is(err, ErrUnsupported) {
		t.Errorf("DumpFile(plain) = %v, want ErrUnsupported", err)
	}
}
