package gfx

import (
	"fmt"
	"io"

	"github.com/gogpu/gfx/recording"
	_ "github.com/gogpu/gfx/recording/backends/trace" // registers "trace"
)

// Dump plays the commands recorded into the pass back into the recording
// backend registered as backend and writes its output to w. Render passes
// are played back once, not once per view.
func (p *Pass) Dump(backend string, w io.Writer) error {
	b, err := p.playback(backend)
	if err != nil {
		return err
	}
	wb, ok := b.(recording.WriterBackend)
	if !ok {
		return fmt.Errorf("%w: backend %q has no text output", ErrUnsupported, backend)
	}
	if _, err := wb.WriteTo(w); err != nil {
		return fmt.Errorf("gfx: dump %q: %w", p.label, err)
	}
	return nil
}

// DumpFile is Dump into a file created by the backend.
func (p *Pass) DumpFile(backend, path string) error {
	b, err := p.playback(backend)
	if err != nil {
		return err
	}
	fb, ok := b.(recording.FileBackend)
	if !ok {
		return fmt.Errorf("%w: backend %q cannot save files", ErrUnsupported, backend)
	}
	if err := fb.SaveToFile(path); err != nil {
		return fmt.Errorf("gfx: dump %q: %w", p.label, err)
	}
	return nil
}

// Trace writes the commands recorded into the pass, one per line.
func (p *Pass) Trace(w io.Writer) error { return p.Dump("trace", w) }

func (p *Pass) playback(backend string) (recording.Backend, error) {
	b, err := recording.NewBackend(backend)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if err := p.list.Playback(b); err != nil {
		return nil, fmt.Errorf("gfx: dump %q: %w", p.label, err)
	}
	return b, nil
}
