package gfx

import (
	"errors"
	"testing"

	"github.com/gogpu/gfx/recording"
)

func newComputePass(t *testing.T, d *Device) (*Pass, *Buffer) {
	t.Helper()
	p, err := d.NewPass(PassOptions{Label: "compute", Type: PassCompute})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.SetShader(newTestShader(t, d, numbersShader)); err != nil {
		t.Fatalf("SetShader() error = %v", err)
	}
	numbers, err := d.NewBuffer(BufferOptions{Label: "numbers", Length: 256, Usage: BufferStorage | BufferTransfer})
	if err != nil {
		t.Fatal(err)
	}
	return p, numbers
}

func TestPass_Compute(t *testing.T) {
	d := newTestDevice(t)
	p, numbers := newComputePass(t, d)

	if err := p.Compute(1, 1, 1); !errors.Is(err, ErrUnboundVariable) {
		t.Errorf("Compute() with unbound storage = %v, want ErrUnboundVariable", err)
	}
	if err := p.Send("numbers", numbers); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	maxGroups := d.Limits().MaxComputeWorkgroupsPerDimension
	tests := []struct {
		name    string
		x, y, z uint32
		want    error
	}{
		{"single", 1, 1, 1, nil},
		{"zero", 0, 1, 1, ErrInvalidArgument},
		{"limit", maxGroups, 1, 1, nil},
		{"over limit", 1, maxGroups + 1, 1, ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := p.Compute(tt.x, tt.y, tt.z); !errors.Is(err, tt.want) {
				t.Errorf("Compute(%d, %d, %d) = %v, want %v", tt.x, tt.y, tt.z, err, tt.want)
			}
		})
	}
	if got := p.Stats().Dispatches; got != 2 {
		t.Errorf("Dispatches = %d, want 2", got)
	}

	cmd := p.list.Last().(recording.DispatchCommand)
	set := p.list.Pool().Bindings(cmd.Bindings)
	if len(set) != 1 || set[0].Resource != numbers || set[0].Kind != recording.BindStorageBuffer {
		t.Errorf("dispatch bindings = %v, want numbers as a storage buffer", set)
	}
}

func TestPass_ComputeWrongUsage(t *testing.T) {
	d := newTestDevice(t)
	p, _ := newComputePass(t, d)
	vertices := newVertices(t, d, 4)
	if err := p.Send("numbers", vertices); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := p.Compute(1, 1, 1); !errors.Is(err, ErrUsage) {
		t.Errorf("Compute() with a vertex buffer = %v, want ErrUsage", err)
	}
	if p.IsDirty() {
		t.Error("failed dispatch marked the pass dirty")
	}
}

func TestPass_ComputeNoShader(t *testing.T) {
	d := newTestDevice(t)
	p, err := d.NewPass(PassOptions{Type: PassCompute})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Compute(1, 1, 1); !errors.Is(err, ErrNoShader) {
		t.Errorf("Compute() without shader = %v, want ErrNoShader", err)
	}
	if err := p.SetShader(newTestShader(t, d, unlitShader)); !errors.Is(err, ErrShaderType) {
		t.Errorf("SetShader(graphics) = %v, want ErrShaderType", err)
	}
}

func TestPass_ComputeIndirect(t *testing.T) {
	d := newTestDevice(t)
	p, numbers := newComputePass(t, d)
	if err := p.Send("numbers", numbers); err != nil {
		t.Fatal(err)
	}
	args, err := d.NewBuffer(BufferOptions{Label: "args", Length: 16, Usage: BufferIndirect | BufferTransfer})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		buf    *Buffer
		offset uint64
		want   error
	}{
		{"start", args, 0, nil},
		{"last fit", args, 4, nil},
		{"past end", args, 8, ErrOutOfRange},
		{"unaligned", args, 2, ErrInvalidArgument},
		{"not indirect", numbers, 0, ErrUsage},
		{"nil", nil, 0, ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := p.ComputeIndirect(tt.buf, tt.offset); !errors.Is(err, tt.want) {
				t.Errorf("ComputeIndirect(%d) = %v, want %v", tt.offset, err, tt.want)
			}
		})
	}
	cmd := p.list.Last().(recording.DispatchCommand)
	if cmd.Indirect != args || cmd.IndirectOffset != 4 {
		t.Errorf("last dispatch reads %v at %d, want args at 4", cmd.Indirect, cmd.IndirectOffset)
	}
}

func TestPass_BarrierTrimming(t *testing.T) {
	d := newTestDevice(t)

	tests := []struct {
		name string
		ops  string // d = dispatch, b = barrier
		want int
	}{
		{"leading", "bbd", 0},
		{"trailing", "dbb", 0},
		{"between", "dbd", 1},
		{"repeated", "dbbbd", 1},
		{"two", "dbdbd", 2},
		{"none", "dd", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, numbers := newComputePass(t, d)
			if err := p.Send("numbers", numbers); err != nil {
				t.Fatal(err)
			}
			for _, op := range tt.ops {
				var err error
				if op == 'd' {
					err = p.Compute(4, 1, 1)
				} else {
					err = p.Barrier()
				}
				if err != nil {
					t.Fatal(err)
				}
			}
			if got := p.Stats().Barriers; got != tt.want {
				t.Errorf("Barriers for %q = %d, want %d", tt.ops, got, tt.want)
			}
		})
	}
}

func TestPass_ComputeSubmit(t *testing.T) {
	d := newTestDevice(t)
	p, numbers := newComputePass(t, d)
	if err := p.Send("numbers", numbers); err != nil {
		t.Fatal(err)
	}
	if err := p.Compute(4, 1, 1); err != nil {
		t.Fatal(err)
	}
	if err := p.Barrier(); err != nil {
		t.Fatal(err)
	}
	if err := p.Compute(4, 1, 1); err != nil {
		t.Fatal(err)
	}
	d.Submit(p)
	if err := d.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if err := d.Err(); err != nil {
		t.Errorf("Err() = %v after a compute submission", err)
	}
	if s := d.Stats(); s.Submissions != 1 || s.SkippedPasses != 0 {
		t.Errorf("Stats() = %+v, want 1 submission and no skipped passes", s)
	}
}
