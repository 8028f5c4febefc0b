package gfx

import (
	"context"
	"fmt"
	"runtime"

	"github.com/gogpu/wgpu/hal"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/gfx/internal/restable"
	"github.com/gogpu/gfx/recording"
)

// plan is the validated work of one pass in a submission.
type plan struct {
	pass     *Pass
	views    int    // render passes: canvas layers
	uniforms uint64 // bytes of frame uniforms the pass needs
	tallies  uint32 // tally results to write
	skip     bool
	err      error
}

// Submit encodes passes in order into one command buffer and submits it.
// Passes with nothing recorded are skipped, except render passes with a
// canvas, which still clear it.
//
// Submit always returns true. Passes that fail validation are skipped and
// encoding or GPU failures drop the whole submission; both are logged and
// reported through Err and Stats rather than returned. Readbacks recorded
// in a dropped pass complete with the error.
//
// Submitted passes are read-only until Reset and may be submitted again.
func (d *Device) Submit(passes ...*Pass) bool {
	if d.closed.Load() {
		d.reportAsync("gfx: submit", ErrDeviceClosed)
		return true
	}
	d.submitMu.Lock()
	defer d.submitMu.Unlock()
	d.retire(d.queue.PollCompleted())

	plans := d.plan(passes)
	work := plans[:0]
	for _, pl := range plans {
		switch {
		case pl.skip:
		case pl.err != nil:
			d.skipped.Add(1)
			d.reportAsync("gfx: pass skipped", pl.err, "pass", pl.pass.label, "type", pl.pass.typ)
			pl.pass.failReadbacks(pl.err)
		default:
			work = append(work, pl)
		}
	}
	if len(work) == 0 {
		return true
	}

	if err := d.encodeAndSubmit(work); err != nil {
		d.reportAsync("gfx: submission dropped", err, "passes", len(work))
		for _, pl := range work {
			pl.pass.failReadbacks(err)
		}
	}
	return true
}

// plan validates every pass concurrently. Passes are only read.
func (d *Device) plan(passes []*Pass) []plan {
	plans := make([]plan, len(passes))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range passes {
		g.Go(func() error {
			plans[i] = d.planPass(p)
			return nil
		})
	}
	_ = g.Wait()
	return plans
}

func (d *Device) planPass(p *Pass) plan {
	pl := plan{pass: p}
	if p == nil {
		pl.skip = true
		return pl
	}
	if p.device != d {
		pl.err = fmt.Errorf("%w: pass %q belongs to another device", ErrInvalidArgument, p.label)
		return pl
	}
	if !p.dirty && (p.typ != PassRender || !p.hasCanvas) {
		pl.skip = true
		return pl
	}

	align := d.uniformAlign()
	stats := p.list.Stats()
	pl.uniforms = uint64(stats.Draws+stats.Dispatches) * alignTo(drawBlockSize, align)
	if p.typ != PassRender {
		return pl
	}

	if !p.hasCanvas {
		pl.err = fmt.Errorf("%w: %q", ErrNoCanvas, p.label)
		return pl
	}
	pl.views = int(max(p.target.layers, 1))
	if n := p.camera.ViewCount(); n > pl.views {
		pl.err = fmt.Errorf("%w: %d views for %d layers in %q", ErrViewCountMismatch, n, pl.views, p.label)
		return pl
	}
	pl.uniforms += uint64(pl.views) * alignTo(cameraBlockSize, align)

	if p.tally.buffer != nil && p.tally.count > 0 {
		if _, err := p.tally.buffer.checkRange(p.tally.offset, uint64(p.tally.count)*4); err != nil {
			pl.err = fmt.Errorf("gfx: tally buffer of %q: %w", p.label, err)
			return pl
		}
		pl.tallies = p.tally.count
	}
	return pl
}

// encodeAndSubmit records work into one command buffer, submits it and
// schedules its cleanup. Callers hold submitMu.
func (d *Device) encodeAndSubmit(work []plan) error {
	var size uint64
	for _, pl := range work {
		size += pl.uniforms
	}
	f, err := newFrameEncoder(d, size)
	if err != nil {
		return err
	}
	for _, pl := range work {
		if err := f.encodePass(pl.pass, pl.views); err != nil {
			f.enc.DiscardEncoding()
			f.release()
			return fmt.Errorf("gfx: encode pass %q: %w", pl.pass.label, err)
		}
		if pl.tallies > 0 {
			d.resolveTallies(f, pl.pass)
		}
	}
	cmd, err := f.finish()
	if err != nil {
		f.release()
		return err
	}
	index, err := d.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		d.raw.FreeCommandBuffer(cmd)
		f.release()
		return fmt.Errorf("gfx: queue submit: %w", err)
	}

	var collect []func()
	for _, pl := range work {
		p := pl.pass
		p.referenced(func(id restable.ID) { d.table.Reference(id, index) })
		p.submitted = true
		for _, r := range p.readbacks {
			if r.source != nil {
				r.readDirect()
				continue
			}
			collect = append(collect, r.collect)
		}
	}

	cleanup := append(collect, func() { d.raw.FreeCommandBuffer(cmd) })
	d.inflight = append(d.inflight, frame{index: index, cmd: cmd, cleanup: append(cleanup, f.cleanup...)})
	d.last = index
	d.submissions.Add(1)
	Logger().Debug("gfx: submitted", "index", index, "passes", len(work), "uniforms", f.uniforms.next)
	return nil
}

// resolveTallies writes the tally results of p into its tally buffer. The
// hal layer has no occlusion queries, so every tally reads as zero.
func (d *Device) resolveTallies(f *frameEncoder, p *Pass) {
	if d.tallyWarned.CompareAndSwap(false, true) {
		Logger().Warn("gfx: occlusion queries unavailable, tallies read as zero", "pass", p.label)
	}
	f.enc.ClearBuffer(p.tally.buffer.raw, p.tally.offset, uint64(p.tally.count)*4)
}

// referenced calls fn for every resource a submission of p reads or writes.
func (p *Pass) referenced(fn func(restable.ID)) {
	p.list.Resources(func(r recording.Resource) { fn(restable.ID(r.ResourceID())) })
	for _, id := range p.held {
		fn(id)
	}
	for _, tex := range p.canvas.Colors {
		fn(tex.id)
	}
	if p.target.depth != nil {
		fn(p.target.depth.id)
	}
	for _, tex := range p.target.transient {
		fn(tex.id)
	}
	if p.tally.buffer != nil {
		fn(p.tally.buffer.id)
	}
}

func (p *Pass) failReadbacks(err error) {
	for _, r := range p.readbacks {
		r.fail(err)
	}
}

// retire runs the cleanup of every frame up to completed and destroys the
// released resources that became idle. Callers hold submitMu.
func (d *Device) retire(completed uint64) {
	n := 0
	for _, f := range d.inflight {
		if f.index > completed {
			break
		}
		for _, fn := range f.cleanup {
			fn()
		}
		n++
	}
	if n > 0 {
		clear(d.inflight[:n])
		d.inflight = d.inflight[n:]
	}
	if completed > d.completed {
		d.completed = completed
	}
	if destroyed := d.table.Collect(completed); destroyed > 0 {
		Logger().Debug("gfx: destroyed released resources", "count", destroyed, "completed", completed)
	}
}

// Wait blocks until the GPU has finished every submission, then destroys
// the resources released meanwhile.
func (d *Device) Wait() error {
	return d.WaitContext(context.Background())
}

// WaitContext is Wait with cancellation.
func (d *Device) WaitContext(ctx context.Context) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	d.submitMu.Lock()
	target := d.last
	d.submitMu.Unlock()
	return d.pollUntil(ctx, func() bool {
		d.submitMu.Lock()
		defer d.submitMu.Unlock()
		return d.completed >= target
	})
}
