// Package trace provides a text backend for the recording system.
// It writes one line per executed command, which makes command lists easy
// to diff in tests and to inspect when debugging a frame.
//
// Resources are printed by ID; states are printed as the fields that differ
// from recording.DefaultState, so an unmodified pass prints no state at all.
//
// # Example
//
//	// Import to register the backend
//	import _ "github.com/gogpu/gfx/recording/backends/trace"
//
//	backend, _ := recording.NewBackend("trace")
//	list.Playback(backend)
//	backend.(recording.WriterBackend).WriteTo(os.Stdout)
package trace

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gogpu/gfx/recording"
)

func init() {
	recording.Register("trace", func() recording.Backend {
		return NewBackend()
	})
}

// Backend writes a text line per command.
// It implements recording.Backend, recording.WriterBackend and
// recording.FileBackend.
type Backend struct {
	buf    bytes.Buffer
	depth  int
	lines  int
	active bool
}

// Ensure Backend implements all required interfaces.
var (
	_ recording.Backend       = (*Backend)(nil)
	_ recording.WriterBackend = (*Backend)(nil)
	_ recording.FileBackend   = (*Backend)(nil)
)

// NewBackend creates a new trace backend.
func NewBackend() *Backend {
	return &Backend{}
}

// Begin implements recording.Backend. Consecutive playbacks into one backend
// append to the same trace.
func (b *Backend) Begin() error {
	if b.active {
		return fmt.Errorf("trace: Begin called twice")
	}
	b.active = true
	b.printf("begin")
	b.depth++
	return nil
}

// End implements recording.Backend.
func (b *Backend) End() error {
	if !b.active {
		return fmt.Errorf("trace: End without Begin")
	}
	b.active = false
	b.depth--
	b.printf("end")
	return nil
}

// Draw implements recording.Backend.
func (b *Backend) Draw(cmd recording.DrawCommand, state recording.State, bindings []recording.Binding) error {
	var sb strings.Builder
	switch {
	case cmd.IsIndirect():
		fmt.Fprintf(&sb, "draw indirect %s+%d x%d", id(cmd.Indirect), cmd.IndirectOffset, cmd.DrawCount)
	case cmd.IsIndexed():
		fmt.Fprintf(&sb, "draw indexed %d..%d base %d", cmd.Start, cmd.Start+cmd.Count, cmd.BaseVertex)
	default:
		fmt.Fprintf(&sb, "draw %d..%d", cmd.Start, cmd.Start+cmd.Count)
	}
	if cmd.Instances > 1 {
		fmt.Fprintf(&sb, " instances %d", cmd.Instances)
	}
	if cmd.Vertices != nil {
		fmt.Fprintf(&sb, " vb %s", id(cmd.Vertices))
	}
	if cmd.Indices != nil {
		fmt.Fprintf(&sb, " ib %s", id(cmd.Indices))
	}
	if d := stateDiff(state); d != "" {
		sb.WriteString(" " + d)
	}
	b.printf("%s%s", sb.String(), bindingList(bindings))
	return nil
}

// BeginTally implements recording.Backend.
func (b *Backend) BeginTally(index uint32) error {
	b.printf("tally %d begin", index)
	return nil
}

// FinishTally implements recording.Backend.
func (b *Backend) FinishTally(index uint32) error {
	b.printf("tally %d finish", index)
	return nil
}

// Dispatch implements recording.Backend.
func (b *Backend) Dispatch(cmd recording.DispatchCommand, state recording.PipelineState, bindings []recording.Binding) error {
	shader := id(state.Shader)
	if cmd.Indirect != nil {
		b.printf("dispatch indirect %s+%d shader %s%s", id(cmd.Indirect), cmd.IndirectOffset, shader, bindingList(bindings))
		return nil
	}
	b.printf("dispatch %dx%dx%d shader %s%s", cmd.X, cmd.Y, cmd.Z, shader, bindingList(bindings))
	return nil
}

// Barrier implements recording.Backend.
func (b *Backend) Barrier() error {
	b.printf("barrier")
	return nil
}

// ClearBuffer implements recording.Backend.
func (b *Backend) ClearBuffer(cmd recording.ClearBufferCommand) error {
	b.printf("clear buffer %s [%d+%d]", id(cmd.Buffer), cmd.Offset, cmd.Size)
	return nil
}

// ClearTexture implements recording.Backend.
func (b *Backend) ClearTexture(cmd recording.ClearTextureCommand) error {
	b.printf("clear texture %s layers %d+%d mips %d+%d color %v",
		id(cmd.Texture), cmd.Layer, cmd.LayerCount, cmd.Mip, cmd.MipCount, cmd.Color)
	return nil
}

// CopyBuffer implements recording.Backend.
func (b *Backend) CopyBuffer(cmd recording.CopyBufferCommand) error {
	b.printf("copy buffer %s+%d -> %s+%d size %d", id(cmd.Src), cmd.SrcOff, id(cmd.Dst), cmd.DstOff, cmd.Size)
	return nil
}

// CopyBufferToTexture implements recording.Backend.
func (b *Backend) CopyBufferToTexture(cmd recording.CopyBufferToTextureCommand) error {
	b.printf("copy buffer %s+%d -> %s", id(cmd.Src), cmd.SrcOff, region(cmd.Dst))
	return nil
}

// CopyTextureToBuffer implements recording.Backend.
func (b *Backend) CopyTextureToBuffer(cmd recording.CopyTextureToBufferCommand) error {
	b.printf("copy %s -> buffer %s+%d", region(cmd.Src), id(cmd.Dst), cmd.DstOff)
	return nil
}

// CopyTexture implements recording.Backend.
func (b *Backend) CopyTexture(cmd recording.CopyTextureCommand) error {
	b.printf("copy %s -> %s", region(cmd.Src), region(cmd.Dst))
	return nil
}

// Blit implements recording.Backend.
func (b *Backend) Blit(cmd recording.BlitCommand) error {
	b.printf("blit %s -> %s filter %d", region(cmd.Src), region(cmd.Dst), cmd.Filter)
	return nil
}

// Mipmap implements recording.Backend.
func (b *Backend) Mipmap(cmd recording.MipmapCommand) error {
	b.printf("mipmap %s mips %d+%d", id(cmd.Texture), cmd.Base, cmd.Count)
	return nil
}

// WriteTo writes the trace to the given writer.
func (b *Backend) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(b.buf.Bytes())
	return int64(n), err
}

// SaveToFile writes the trace to a file.
func (b *Backend) SaveToFile(path string) error {
	return os.WriteFile(path, b.buf.Bytes(), 0o600)
}

// String returns the trace written so far.
func (b *Backend) String() string {
	return b.buf.String()
}

// Lines returns the number of lines written.
func (b *Backend) Lines() int {
	return b.lines
}

func (b *Backend) printf(format string, args ...any) {
	b.buf.WriteString(strings.Repeat("  ", b.depth))
	fmt.Fprintf(&b.buf, format, args...)
	b.buf.WriteByte('\n')
	b.lines++
}

func id(r recording.Resource) string {
	if r == nil {
		return "<nil>"
	}
	return fmt.Sprintf("#%d", r.ResourceID())
}

func region(r recording.TextureRegion) string {
	return fmt.Sprintf("texture %s mip %d layer %d (%d,%d,%d) %dx%dx%d",
		id(r.Texture), r.Mip, r.Layer, r.X, r.Y, r.Z, r.Width, r.Height, r.Layers)
}

func bindingList(bindings []recording.Binding) string {
	if len(bindings) == 0 {
		return ""
	}
	parts := make([]string, len(bindings))
	for i, bnd := range bindings {
		parts[i] = bnd.String()
	}
	return " {" + strings.Join(parts, ", ") + "}"
}

// stateDiff lists the fields of s that differ from the default state.
func stateDiff(s recording.State) string {
	def := recording.DefaultState()
	p, d := s.Pipeline, def.Pipeline
	var parts []string
	add := func(format string, args ...any) {
		parts = append(parts, fmt.Sprintf(format, args...))
	}
	if p.Shader != nil {
		add("shader %s", id(p.Shader))
	}
	if p.Topology != d.Topology {
		add("topology %d", p.Topology)
	}
	if p.CullMode != d.CullMode {
		add("cull %d", p.CullMode)
	}
	if p.FrontFace != d.FrontFace {
		add("winding %d", p.FrontFace)
	}
	if p.DepthCompare != d.DepthCompare || p.DepthWrite != d.DepthWrite {
		add("depth %d write %t", p.DepthCompare, p.DepthWrite)
	}
	if p.DepthBias != 0 || p.DepthSlope != 0 {
		add("offset %d/%g", p.DepthBias, p.DepthSlope)
	}
	if p.DepthClamp {
		add("clamp")
	}
	if p.UsesStencil() {
		add("stencil %d ref %d", p.StencilCompare, s.StencilReference)
	}
	if p.Blend != d.Blend {
		add("blend %v", p.Blend)
	}
	if p.ColorWrite != d.ColorWrite {
		add("mask %v", p.ColorWrite)
	}
	if p.AlphaToCoverage {
		add("a2c")
	}
	if !s.Viewport.IsZero() {
		add("viewport %v", s.Viewport)
	}
	if !s.Scissor.IsZero() {
		add("scissor %v", s.Scissor)
	}
	return strings.Join(parts, " ")
}
