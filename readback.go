package gfx

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gfx/internal/restable"
	"github.com/gogpu/gfx/layout"
	"github.com/gogpu/gfx/recording"
)

// Readback receives the contents of a buffer or texture region once the
// pass that recorded it has been submitted and the GPU has finished it.
//
// Dropping a Readback without reading it is fine: its staging memory is
// released when the submission retires.
type Readback struct {
	device  *Device
	staging *Buffer
	size    uint64

	// source is read directly after submission on devices whose queue
	// cannot copy through command buffers.
	source *Buffer
	offset uint64

	// Texture readbacks only.
	format gputypes.TextureFormat
	width  uint32
	height uint32
	layers uint32
	texel  uint32
	pitch  uint32

	mu   sync.Mutex
	done bool
	data []byte
	err  error
}

// ReadBuffer records a copy of size bytes of buf at offset for reading
// back. A size of 0 reads to the end. Offset and size must be multiples
// of 4.
func (p *Pass) ReadBuffer(buf *Buffer, offset, size uint64) (*Readback, error) {
	if err := p.checkRecord("read buffer", PassTransfer); err != nil {
		return nil, err
	}
	if err := p.transferBuffer(buf); err != nil {
		return nil, err
	}
	size, err := buf.checkRange(offset, size)
	if err != nil {
		return nil, err
	}
	if size == 0 || offset%4 != 0 || size%4 != 0 {
		return nil, fmt.Errorf("%w: buffer read [%d, %d) is empty or not 4-byte aligned", ErrInvalidArgument, offset, offset+size)
	}
	return p.readBuffer(buf, offset, size)
}

func (p *Pass) readBuffer(buf *Buffer, offset, size uint64) (*Readback, error) {
	staging, err := p.device.newStaging(buf.label+"_readback", size)
	if err != nil {
		return nil, err
	}
	defer staging.Release()
	r := &Readback{device: p.device, staging: staging, size: size}
	if p.device.directCopies {
		r.source, r.offset = buf, offset
	}
	cmd := recording.CopyBufferCommand{Src: buf, Dst: staging, SrcOff: offset, Size: size}
	if err := p.record(cmd, buf, staging); err != nil {
		return nil, err
	}
	p.readbacks = append(p.readbacks, r)
	return r, nil
}

// ReadTexture records a copy of region of tex for reading back. Data
// returns the texels row by row without padding, layer after layer.
func (p *Pass) ReadTexture(tex *Texture, region Region) (*Readback, error) {
	if err := p.checkRecord("read texture", PassTransfer); err != nil {
		return nil, err
	}
	if err := p.transferTexture(tex); err != nil {
		return nil, err
	}
	texel, ok := texelSize(tex.format)
	if !ok || tex.samples > 1 {
		return nil, fmt.Errorf("%w: reading %v texture %q", ErrUnsupported, tex.format, tex.label)
	}
	rr, err := region.resolve(tex)
	if err != nil {
		return nil, err
	}
	pitch := rowPitch(rr.Width, texel)
	size := uint64(pitch) * uint64(rr.Height) * uint64(rr.Layers)
	staging, err := p.device.newStaging(tex.label+"_readback", size)
	if err != nil {
		return nil, err
	}
	defer staging.Release()
	r := &Readback{
		device:  p.device,
		staging: staging,
		size:    size,
		format:  tex.format,
		width:   rr.Width,
		height:  rr.Height,
		layers:  rr.Layers,
		texel:   texel,
		pitch:   pitch,
	}
	cmd := recording.CopyTextureToBufferCommand{Src: rr, Dst: staging, BytesPerRow: pitch}
	if err := p.record(cmd, tex, staging); err != nil {
		return nil, err
	}
	p.readbacks = append(p.readbacks, r)
	return r, nil
}

// newStaging creates a mappable buffer that copies are read back through.
func (d *Device) newStaging(label string, size uint64) (*Buffer, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	raw, err := d.raw.CreateBuffer(&hal.BufferDescriptor{
		Label: d.objectLabel("buffer", label),
		Size:  align4(size),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("gfx: create staging buffer %q: %w", label, err)
	}
	id, err := d.table.Register(restable.KindBuffer, restable.UsageTransfer, label, size, func() {
		d.raw.DestroyBuffer(raw)
	})
	if err != nil {
		d.raw.DestroyBuffer(raw)
		return nil, err
	}
	return &Buffer{
		device: d,
		raw:    raw,
		id:     id,
		label:  label,
		format: layout.Format{Stride: 1},
		length: uint32(min(size, uint64(^uint32(0)))), //nolint:gosec // G115: clamped
		size:   size,
		usage:  BufferTransfer,
	}, nil
}

// IsComplete reports whether the data is available. It polls the device
// and does not block.
func (r *Readback) IsComplete() bool {
	if r.isDone() {
		return true
	}
	r.device.poll()
	return r.isDone()
}

// Wait blocks until the data is available or ctx is done. It returns the
// error the readback completed with.
func (r *Readback) Wait(ctx context.Context) error {
	err := r.device.pollUntil(ctx, r.isDone)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Data returns the bytes read back. It returns ErrReadbackPending until
// the readback is complete.
func (r *Readback) Data() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.done {
		return nil, ErrReadbackPending
	}
	return r.data, r.err
}

// Image returns a texture readback of one layer of an 8-bit RGBA or BGRA
// texture as an image.
func (r *Readback) Image() (*image.RGBA, error) {
	data, err := r.Data()
	if err != nil {
		return nil, err
	}
	var bgra bool
	switch r.format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb:
	case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		bgra = true
	default:
		return nil, fmt.Errorf("%w: image of %v readback", ErrUnsupported, r.format)
	}
	if r.layers != 1 {
		return nil, fmt.Errorf("%w: image of %d layers", ErrUnsupported, r.layers)
	}
	img := image.NewRGBA(image.Rect(0, 0, int(r.width), int(r.height)))
	copy(img.Pix, data)
	if bgra {
		for i := 0; i+3 < len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+2] = img.Pix[i+2], img.Pix[i]
		}
	}
	return img, nil
}

func (r *Readback) isDone() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

func (r *Readback) complete(data []byte, err error) {
	r.mu.Lock()
	r.data, r.err, r.done = data, err, true
	r.mu.Unlock()
}

// fail completes the readback with the error that stopped its submission.
func (r *Readback) fail(err error) { r.complete(nil, err) }

// readDirect reads the source buffer right after submission.
func (r *Readback) readDirect() {
	r.complete(mapRead(r.device.raw, r.source.raw, r.offset, r.size))
}

// collect copies the staging buffer out once the submission has retired.
func (r *Readback) collect() {
	raw, err := mapRead(r.device.raw, r.staging.raw, 0, align4(r.size))
	if err != nil {
		r.fail(err)
		return
	}
	if r.pitch == 0 {
		r.complete(raw[:r.size], nil)
		return
	}
	row := r.width * r.texel
	rows := r.height * r.layers
	packed := make([]byte, 0, uint64(row)*uint64(rows))
	for i := range rows {
		start := uint64(i) * uint64(r.pitch)
		packed = append(packed, raw[start:start+uint64(row)]...)
	}
	r.complete(packed, nil)
}

// readBufferNow reads a buffer range through a one-off transfer pass and
// waits for it. offset and size need no alignment.
func (d *Device) readBufferNow(b *Buffer, offset, size uint64) ([]byte, error) {
	p, err := d.NewPass(PassOptions{Label: b.label + "_read", Type: PassTransfer})
	if err != nil {
		return nil, err
	}
	defer p.Release()

	start := offset &^ 3
	end := min(align4(offset+size), align4(b.size))
	r, err := p.readBuffer(b, start, end-start)
	if err != nil {
		return nil, err
	}
	d.Submit(p)
	if err := r.Wait(context.Background()); err != nil {
		return nil, err
	}
	data, err := r.Data()
	if err != nil {
		return nil, err
	}
	return data[offset-start : offset-start+size], nil
}

// Polling backoff for Wait and Readback.Wait.
const (
	pollMin = 50 * time.Microsecond
	pollMax = 5 * time.Millisecond
)

// poll retires every submission the queue reports complete.
func (d *Device) poll() {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()
	if d.closed.Load() {
		return
	}
	d.retire(d.queue.PollCompleted())
}

// pollUntil polls with exponential backoff until done reports true.
func (d *Device) pollUntil(ctx context.Context, done func() bool) error {
	backoff := pollMin
	for {
		d.poll()
		if done() {
			return nil
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, pollMax)
	}
}
