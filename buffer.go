package gfx

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gfx/internal/restable"
	"github.com/gogpu/gfx/layout"
)

// BufferUsage is a set of ways a buffer may be used. It is fixed when the
// buffer is created.
type BufferUsage uint32

const (
	BufferVertex   = BufferUsage(restable.UsageVertex)
	BufferIndex    = BufferUsage(restable.UsageIndex)
	BufferUniform  = BufferUsage(restable.UsageUniform)
	BufferStorage  = BufferUsage(restable.UsageStorage)
	BufferIndirect = BufferUsage(restable.UsageIndirect)
	BufferTransfer = BufferUsage(restable.UsageTransfer)

	// BufferDefault is used when BufferOptions.Usage is zero.
	BufferDefault = BufferVertex | BufferIndex | BufferUniform | BufferStorage | BufferTransfer
)

// String returns the flags joined by '|'.
func (u BufferUsage) String() string { return restable.Usage(u).String() }

func (u BufferUsage) hal() gputypes.BufferUsage {
	// Writes go through the queue and reads through a copy, so every buffer
	// is a copy source and destination.
	out := gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	if u&BufferVertex != 0 {
		out |= gputypes.BufferUsageVertex
	}
	if u&BufferIndex != 0 {
		out |= gputypes.BufferUsageIndex
	}
	if u&BufferUniform != 0 {
		out |= gputypes.BufferUsageUniform
	}
	if u&BufferStorage != 0 {
		out |= gputypes.BufferUsageStorage
	}
	if u&BufferIndirect != 0 {
		out |= gputypes.BufferUsageIndirect
	}
	return out
}

// BufferOptions configures NewBuffer.
type BufferOptions struct {
	Label string

	// Format is the layout of one element. A zero Format makes a raw byte
	// buffer with a stride of 1.
	Format layout.Format

	// Length is the number of elements. It may be 0 when Data is set, in
	// which case it is derived from the data size.
	Length uint32

	Usage BufferUsage

	// Data is uploaded after creation.
	Data []byte
}

// Buffer is a fixed-size GPU buffer with a fixed element format.
type Buffer struct {
	device *Device
	raw    hal.Buffer
	id     restable.ID
	label  string
	format layout.Format
	length uint32
	size   uint64
	usage  BufferUsage
}

// NewBuffer creates a buffer. Its size is Length times the format stride.
func (d *Device) NewBuffer(opts BufferOptions) (*Buffer, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	format := opts.Format
	if len(format.Fields) == 0 {
		format = layout.Format{Stride: 1}
	}
	if format.Stride == 0 {
		return nil, fmt.Errorf("%w: buffer format has zero stride", ErrInvalidArgument)
	}
	length := opts.Length
	if length == 0 && len(opts.Data) > 0 {
		//nolint:gosec // G115: data larger than 4G elements fails the size limit below
		length = uint32((uint64(len(opts.Data)) + uint64(format.Stride) - 1) / uint64(format.Stride))
	}
	size := format.Size(length)
	if size == 0 {
		return nil, fmt.Errorf("%w: buffer %q has zero size", ErrInvalidArgument, opts.Label)
	}
	if limit := d.limits.MaxBufferSize; limit > 0 && size > limit {
		return nil, fmt.Errorf("%w: buffer size %d exceeds device limit %d", ErrOutOfRange, size, limit)
	}
	if uint64(len(opts.Data)) > size {
		return nil, fmt.Errorf("%w: %d bytes of data for a %d byte buffer", ErrOutOfRange, len(opts.Data), size)
	}
	usage := opts.Usage
	if usage == 0 {
		usage = BufferDefault
	}

	raw, err := d.raw.CreateBuffer(&hal.BufferDescriptor{
		Label: d.objectLabel("buffer", opts.Label),
		Size:  align4(size),
		Usage: usage.hal(),
	})
	if err != nil {
		return nil, fmt.Errorf("gfx: create buffer %q: %w", opts.Label, err)
	}
	id, err := d.table.Register(restable.KindBuffer, restable.Usage(usage), opts.Label, size, func() {
		d.raw.DestroyBuffer(raw)
	})
	if err != nil {
		d.raw.DestroyBuffer(raw)
		return nil, err
	}
	b := &Buffer{
		device: d,
		raw:    raw,
		id:     id,
		label:  opts.Label,
		format: format,
		length: length,
		size:   size,
		usage:  usage,
	}
	if len(opts.Data) > 0 {
		if err := b.SetData(0, opts.Data); err != nil {
			b.Release()
			return nil, err
		}
	}
	return b, nil
}

// ResourceID implements recording.Resource.
func (b *Buffer) ResourceID() uint64 { return uint64(b.id) }

// Label returns the label the buffer was created with.
func (b *Buffer) Label() string { return b.label }

// Format returns the element format.
func (b *Buffer) Format() layout.Format { return b.format }

// Length returns the number of elements.
func (b *Buffer) Length() uint32 { return b.length }

// Stride returns the size of one element in bytes.
func (b *Buffer) Stride() uint32 { return b.format.Stride }

// Size returns the buffer size in bytes, Length times Stride.
func (b *Buffer) Size() uint64 { return b.size }

// Usage returns the usage flags.
func (b *Buffer) Usage() BufferUsage { return b.usage }

// indexFormat returns the index format of an index buffer.
func (b *Buffer) indexFormat() gputypes.IndexFormat {
	if len(b.format.Fields) == 1 {
		if f, ok := b.format.Fields[0].Type.IndexFormat(); ok {
			return f
		}
	}
	if b.format.Stride == 2 {
		return gputypes.IndexFormatUint16
	}
	return gputypes.IndexFormatUint32
}

// checkRange validates a byte range. A size of 0 extends to the end.
func (b *Buffer) checkRange(offset, size uint64) (uint64, error) {
	if offset > b.size {
		return 0, fmt.Errorf("%w: offset %d past buffer %q of %d bytes", ErrOutOfRange, offset, b.label, b.size)
	}
	if size == 0 {
		size = b.size - offset
	}
	if size > b.size-offset {
		return 0, fmt.Errorf("%w: range [%d, %d) past buffer %q of %d bytes", ErrOutOfRange, offset, offset+size, b.label, b.size)
	}
	return size, nil
}

// SetData writes data at offset through the queue. The offset must be a
// multiple of 4; so must the length, unless the write ends at the end of
// the buffer.
func (b *Buffer) SetData(offset uint64, data []byte) error {
	if err := b.device.table.CheckUsage(b.id, 0); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if _, err := b.checkRange(offset, uint64(len(data))); err != nil {
		return err
	}
	end := offset + uint64(len(data))
	if offset%4 != 0 || (end%4 != 0 && end != b.size) {
		return fmt.Errorf("%w: buffer write [%d, %d) is not 4-byte aligned", ErrInvalidArgument, offset, end)
	}
	if end%4 != 0 {
		padded := make([]byte, align4(uint64(len(data))))
		copy(padded, data)
		data = padded
	}
	if err := b.device.queue.WriteBuffer(b.raw, offset, data); err != nil {
		return fmt.Errorf("gfx: write buffer %q: %w", b.label, err)
	}
	return nil
}

// GetData reads size bytes at offset, blocking until every submission that
// wrote to the buffer has completed. A size of 0 reads to the end.
func (b *Buffer) GetData(offset, size uint64) ([]byte, error) {
	if err := b.device.table.CheckUsage(b.id, 0); err != nil {
		return nil, err
	}
	size, err := b.checkRange(offset, size)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return []byte{}, nil
	}
	return b.device.readBufferNow(b, offset, size)
}

// Release marks the buffer for destruction once the GPU no longer uses it
// and no recorded pass references it.
func (b *Buffer) Release() { b.device.table.Release(b.id) }

// mapRead copies size bytes at offset out of a mappable hal buffer.
func mapRead(device hal.Device, buf hal.Buffer, offset, size uint64) ([]byte, error) {
	mapping, err := device.MapBuffer(buf, offset, size)
	if err != nil {
		return nil, fmt.Errorf("gfx: map buffer: %w", err)
	}
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(mapping.Ptr), size)) //nolint:gosec // mapping covers size bytes
	if err := device.UnmapBuffer(buf); err != nil {
		return nil, fmt.Errorf("gfx: unmap buffer: %w", err)
	}
	return out, nil
}

func align4(n uint64) uint64 { return (n + 3) &^ 3 }
