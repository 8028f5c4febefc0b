package gfx

import (
	"bytes"
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/gfx/layout"
)

func TestBuffer_SetGetData(t *testing.T) {
	d := newTestDevice(t)
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	b, err := d.NewBuffer(BufferOptions{Label: "data", Data: data})
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}
	if b.Size() != 12 || b.Length() != 12 || b.Stride() != 1 {
		t.Errorf("buffer size %d length %d stride %d, want 12, 12, 1", b.Size(), b.Length(), b.Stride())
	}

	got, err := b.GetData(0, 0)
	if err != nil {
		t.Fatalf("GetData() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("GetData() = %v, want %v", got, data)
	}

	// Unaligned ranges are read through an aligned copy.
	got, err = b.GetData(3, 6)
	if err != nil {
		t.Fatalf("GetData(3, 6) error = %v", err)
	}
	if !bytes.Equal(got, data[3:9]) {
		t.Errorf("GetData(3, 6) = %v, want %v", got, data[3:9])
	}

	if err := b.SetData(4, []byte{0xaa, 0xbb, 0xcc, 0xdd}); err != nil {
		t.Fatalf("SetData() error = %v", err)
	}
	got, _ = b.GetData(4, 4)
	if !bytes.Equal(got, []byte{0xaa, 0xbb, 0xcc, 0xdd}) {
		t.Errorf("GetData after SetData = %v", got)
	}
}

func TestBuffer_SetDataErrors(t *testing.T) {
	d := newTestDevice(t)
	b, err := d.NewBuffer(BufferOptions{Label: "data", Length: 10})
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}
	tests := []struct {
		name   string
		offset uint64
		data   []byte
		want   error
	}{
		{"past end", 8, make([]byte, 4), ErrOutOfRange},
		{"unaligned offset", 2, make([]byte, 4), ErrInvalidArgument},
		{"unaligned length", 0, make([]byte, 3), ErrInvalidArgument},
		{"tail", 8, make([]byte, 2), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := b.SetData(tt.offset, tt.data); !errors.Is(err, tt.want) {
				t.Errorf("SetData(%d, %d bytes) = %v, want %v", tt.offset, len(tt.data), err, tt.want)
			}
		})
	}
}

func TestNewBuffer_Format(t *testing.T) {
	d := newTestDevice(t)
	f := vertexFormat(t)
	b, err := d.NewBuffer(BufferOptions{Format: f, Length: 3})
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}
	if b.Stride() != 20 || b.Size() != 60 {
		t.Errorf("stride %d size %d, want 20, 60", b.Stride(), b.Size())
	}
	if b.Usage() != BufferDefault {
		t.Errorf("Usage() = %v, want %v", b.Usage(), BufferDefault)
	}

	tests := []struct {
		name string
		opts BufferOptions
		want error
	}{
		{"zero size", BufferOptions{}, ErrInvalidArgument},
		{"zero stride", BufferOptions{Format: layout.Format{Fields: f.Fields}, Length: 1}, ErrInvalidArgument},
		{"data too large", BufferOptions{Length: 2, Data: make([]byte, 3)}, ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.NewBuffer(tt.opts); !errors.Is(err, tt.want) {
				t.Errorf("NewBuffer() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBuffer_IndexFormat(t *testing.T) {
	d := newTestDevice(t)
	for _, tt := range []struct {
		typ    layout.DataType
		stride uint32
	}{
		{layout.TypeIndex16, 2},
		{layout.TypeIndex32, 4},
	} {
		b, err := d.NewBuffer(BufferOptions{Format: layout.Single(layout.Packed, tt.typ), Length: 6, Usage: BufferIndex})
		if err != nil {
			t.Fatalf("NewBuffer(%s) error = %v", tt.typ, err)
		}
		if b.Stride() != tt.stride {
			t.Errorf("%s stride = %d, want %d", tt.typ, b.Stride(), tt.stride)
		}
	}
}

func TestBuffer_ReleaseDeferred(t *testing.T) {
	d := newTestDevice(t)
	b := newVertices(t, d, 3)
	p := newRenderPass(t, d, 1)
	if err := p.Mesh(b, nil, mgl32.Ident4(), 0, 0, 1); err != nil {
		t.Fatalf("Mesh() error = %v", err)
	}

	b.Release()
	if got := d.Stats().Resources.Pending; got != 1 {
		t.Errorf("Pending after Release = %d, want 1 while a pass holds the buffer", got)
	}
	if err := b.SetData(0, make([]byte, 4)); !errors.Is(err, ErrReleased) {
		t.Errorf("SetData() after Release = %v, want ErrReleased", err)
	}

	d.Submit(p)
	p.Reset()
	if got := d.Stats().Resources.Pending; got != 1 {
		t.Errorf("Pending after Reset = %d, want 1 until the submission completes", got)
	}
	if err := d.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if got := d.Stats().Resources.Pending; got != 0 {
		t.Errorf("Pending after Wait = %d, want 0", got)
	}
	if err := b.SetData(0, make([]byte, 4)); !errors.Is(err, ErrReleased) {
		t.Errorf("SetData() after destruction = %v, want ErrReleased", err)
	}
}

func TestBuffer_UseAfterIdleRelease(t *testing.T) {
	d := newTestDevice(t)
	b := newVertices(t, d, 3)
	b.Release()
	if got := d.Stats().Resources.Pending; got != 0 {
		t.Errorf("Pending after releasing an idle buffer = %d, want 0", got)
	}
	if err := b.SetData(0, make([]byte, 4)); !errors.Is(err, ErrReleased) {
		t.Errorf("SetData() = %v, want ErrReleased", err)
	}
	p := newRenderPass(t, d, 1)
	if err := p.Mesh(b, nil, mgl32.Ident4(), 0, 0, 1); !errors.Is(err, ErrReleased) {
		t.Errorf("Mesh() = %v, want ErrReleased", err)
	}
}
