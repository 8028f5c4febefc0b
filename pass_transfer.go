package gfx

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/internal/restable"
	"github.com/gogpu/gfx/recording"
)

// copyRowAlignment is the alignment of rows in buffers that texture copies
// read from or write to.
const copyRowAlignment = 256

// Region is a box of texels in one mip level of a texture. A zero Width or
// Height extends to the edge of the mip level and a zero Layers means one.
// Layer is the z offset and Layers the depth for 3D textures.
type Region struct {
	X, Y          uint32
	Layer         uint32
	Mip           uint32
	Width, Height uint32
	Layers        uint32
}

// resolve fills defaulted fields and checks r against t.
func (r Region) resolve(t *Texture) (recording.TextureRegion, error) {
	if r.Mip >= t.mips {
		return recording.TextureRegion{}, fmt.Errorf("%w: mip %d of %d", ErrOutOfRange, r.Mip, t.mips)
	}
	w, h, _ := t.mipSize(r.Mip)
	if r.Width == 0 && r.X < w {
		r.Width = w - r.X
	}
	if r.Height == 0 && r.Y < h {
		r.Height = h - r.Y
	}
	r.Layers = max(r.Layers, 1)
	if err := t.checkRegion(r.X, r.Y, r.Layer, r.Mip, r.Width, r.Height, r.Layers); err != nil {
		return recording.TextureRegion{}, err
	}
	if r.Width == 0 || r.Height == 0 {
		return recording.TextureRegion{}, fmt.Errorf("%w: empty region in %q", ErrOutOfRange, t.label)
	}
	return recording.TextureRegion{
		Texture: t,
		Mip:     r.Mip,
		Layer:   r.Layer,
		X:       r.X,
		Y:       r.Y,
		Width:   r.Width,
		Height:  r.Height,
		Layers:  r.Layers,
	}, nil
}

// rowPitch returns the bytes between rows of a buffer copy of width texels.
func rowPitch(width, texel uint32) uint32 {
	return (width*texel + copyRowAlignment - 1) &^ (copyRowAlignment - 1)
}

// copyFootprint returns the bytes a buffer copy of region spans.
func copyFootprint(region recording.TextureRegion, texel uint32) (pitch uint32, size uint64) {
	pitch = rowPitch(region.Width, texel)
	rows := uint64(region.Height) * uint64(region.Layers)
	return pitch, (rows-1)*uint64(pitch) + uint64(region.Width)*uint64(texel)
}

func (p *Pass) transferTexture(t *Texture) error {
	if t == nil {
		return fmt.Errorf("%w: nil texture", ErrInvalidArgument)
	}
	return p.device.table.CheckUsage(t.id, restable.UsageTransfer)
}

func (p *Pass) transferBuffer(b *Buffer) error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidArgument)
	}
	return p.device.table.CheckUsage(b.id, restable.UsageTransfer)
}

// ClearBuffer zeroes size bytes of buf at offset. A size of 0 clears to the
// end. Offset and size must be multiples of 4.
func (p *Pass) ClearBuffer(buf *Buffer, offset, size uint64) error {
	if err := p.checkRecord("clear buffer", PassTransfer); err != nil {
		return err
	}
	if err := p.transferBuffer(buf); err != nil {
		return err
	}
	size, err := buf.checkRange(offset, size)
	if err != nil {
		return err
	}
	if offset%4 != 0 || size%4 != 0 {
		return fmt.Errorf("%w: clear [%d, %d) is not 4-byte aligned", ErrInvalidArgument, offset, offset+size)
	}
	return p.record(recording.ClearBufferCommand{Buffer: buf, Offset: offset, Size: size}, buf)
}

// ClearTexture fills layerCount layers and mipCount mips of tex with color.
// Counts of 0 extend to the last layer or mip.
func (p *Pass) ClearTexture(tex *Texture, color mgl32.Vec4, layer, layerCount, mip, mipCount uint32) error {
	if err := p.checkRecord("clear texture", PassTransfer); err != nil {
		return err
	}
	if err := p.transferTexture(tex); err != nil {
		return err
	}
	if tex.typ == Texture3D || tex.samples > 1 || tex.format.IsDepthStencil() {
		return fmt.Errorf("%w: clearing %s %v texture %q", ErrUnsupported, tex.typ, tex.format, tex.label)
	}
	if _, ok := texelSize(tex.format); !ok {
		return fmt.Errorf("%w: clearing %v texture %q", ErrUnsupported, tex.format, tex.label)
	}
	if layer >= tex.layers || mip >= tex.mips {
		return fmt.Errorf("%w: layer %d mip %d of %q", ErrOutOfRange, layer, mip, tex.label)
	}
	if layerCount == 0 {
		layerCount = tex.layers - layer
	}
	if mipCount == 0 {
		mipCount = tex.mips - mip
	}
	if uint64(layer)+uint64(layerCount) > uint64(tex.layers) || uint64(mip)+uint64(mipCount) > uint64(tex.mips) {
		return fmt.Errorf("%w: clear of %d layers %d mips from %d/%d in %q", ErrOutOfRange, layerCount, mipCount, layer, mip, tex.label)
	}
	return p.record(recording.ClearTextureCommand{
		Texture:    tex,
		Color:      [4]float64{float64(color[0]), float64(color[1]), float64(color[2]), float64(color[3])},
		Layer:      layer,
		LayerCount: layerCount,
		Mip:        mip,
		MipCount:   mipCount,
	}, tex)
}

// CopyBuffer copies size bytes from src at srcOffset to dst at dstOffset.
// Offsets and size must be multiples of 4. Copies within one buffer must
// not overlap.
func (p *Pass) CopyBuffer(src, dst *Buffer, srcOffset, dstOffset, size uint64) error {
	if err := p.checkRecord("copy buffer", PassTransfer); err != nil {
		return err
	}
	if err := p.transferBuffer(src); err != nil {
		return err
	}
	if err := p.transferBuffer(dst); err != nil {
		return err
	}
	if size == 0 {
		return fmt.Errorf("%w: empty buffer copy", ErrInvalidArgument)
	}
	if _, err := src.checkRange(srcOffset, size); err != nil {
		return err
	}
	if _, err := dst.checkRange(dstOffset, size); err != nil {
		return err
	}
	if srcOffset%4 != 0 || dstOffset%4 != 0 || size%4 != 0 {
		return fmt.Errorf("%w: buffer copy is not 4-byte aligned", ErrInvalidArgument)
	}
	if src.id == dst.id && srcOffset < dstOffset+size && dstOffset < srcOffset+size {
		return fmt.Errorf("%w: overlapping copy within %q", ErrInvalidArgument, src.label)
	}
	return p.record(recording.CopyBufferCommand{
		Src: src, Dst: dst, SrcOff: srcOffset, DstOff: dstOffset, Size: size,
	}, src, dst)
}

// CopyBufferToTexture uploads region of dst from src at offset. Rows in
// src start at multiples of 256 bytes.
func (p *Pass) CopyBufferToTexture(src *Buffer, offset uint64, dst *Texture, region Region) error {
	if err := p.checkRecord("copy buffer to texture", PassTransfer); err != nil {
		return err
	}
	if err := p.transferBuffer(src); err != nil {
		return err
	}
	if err := p.transferTexture(dst); err != nil {
		return err
	}
	r, pitch, err := p.bufferCopyRegion(src, offset, dst, region)
	if err != nil {
		return err
	}
	return p.record(recording.CopyBufferToTextureCommand{Src: src, SrcOff: offset, BytesPerRow: pitch, Dst: r}, src, dst)
}

// CopyTextureToBuffer downloads region of src into dst at offset. Rows in
// dst start at multiples of 256 bytes.
func (p *Pass) CopyTextureToBuffer(src *Texture, region Region, dst *Buffer, offset uint64) error {
	if err := p.checkRecord("copy texture to buffer", PassTransfer); err != nil {
		return err
	}
	if err := p.transferTexture(src); err != nil {
		return err
	}
	if err := p.transferBuffer(dst); err != nil {
		return err
	}
	r, pitch, err := p.bufferCopyRegion(dst, offset, src, region)
	if err != nil {
		return err
	}
	return p.record(recording.CopyTextureToBufferCommand{Src: r, Dst: dst, DstOff: offset, BytesPerRow: pitch}, src, dst)
}

func (p *Pass) bufferCopyRegion(buf *Buffer, offset uint64, tex *Texture, region Region) (recording.TextureRegion, uint32, error) {
	texel, ok := texelSize(tex.format)
	if !ok || tex.samples > 1 {
		return recording.TextureRegion{}, 0, fmt.Errorf("%w: buffer copies of %v texture %q", ErrUnsupported, tex.format, tex.label)
	}
	r, err := region.resolve(tex)
	if err != nil {
		return r, 0, err
	}
	if offset%uint64(max(texel, 4)) != 0 {
		return r, 0, fmt.Errorf("%w: buffer offset %d for %d-byte texels", ErrInvalidArgument, offset, texel)
	}
	pitch, size := copyFootprint(r, texel)
	if _, err := buf.checkRange(offset, size); err != nil {
		return r, 0, err
	}
	return r, pitch, nil
}

// CopyTexture copies srcRegion of src into dst at dstRegion. Both regions
// must have the same size, and the textures the same format and sample
// count.
func (p *Pass) CopyTexture(src *Texture, srcRegion Region, dst *Texture, dstRegion Region) error {
	if err := p.checkRecord("copy texture", PassTransfer); err != nil {
		return err
	}
	if err := p.transferTexture(src); err != nil {
		return err
	}
	if err := p.transferTexture(dst); err != nil {
		return err
	}
	if src.format != dst.format || src.samples != dst.samples {
		return fmt.Errorf("%w: copy from %v to %v texture", ErrInvalidArgument, src.format, dst.format)
	}
	s, err := srcRegion.resolve(src)
	if err != nil {
		return err
	}
	if dstRegion.Width == 0 && dstRegion.Height == 0 && dstRegion.Layers == 0 {
		dstRegion.Width, dstRegion.Height, dstRegion.Layers = s.Width, s.Height, s.Layers
	}
	d, err := dstRegion.resolve(dst)
	if err != nil {
		return err
	}
	if s.Width != d.Width || s.Height != d.Height || s.Layers != d.Layers {
		return fmt.Errorf("%w: copy of %dx%dx%d into %dx%dx%d", ErrInvalidArgument, s.Width, s.Height, s.Layers, d.Width, d.Height, d.Layers)
	}
	if src.root == dst.root && s.Mip+src.baseMip == d.Mip+dst.baseMip &&
		s.Layer+src.baseLayer < d.Layer+dst.baseLayer+d.Layers && d.Layer+dst.baseLayer < s.Layer+src.baseLayer+s.Layers {
		return fmt.Errorf("%w: copy between overlapping layers of %q", ErrInvalidArgument, src.label)
	}
	return p.record(recording.CopyTextureCommand{Src: s, Dst: d}, src, dst)
}

// Blit copies srcRegion of src into dstRegion of dst, scaling with filter.
// Both textures need a filterable color format and a single sample; 3D
// textures cannot be blitted.
func (p *Pass) Blit(src *Texture, srcRegion Region, dst *Texture, dstRegion Region, filter gputypes.FilterMode) error {
	if err := p.checkRecord("blit", PassTransfer); err != nil {
		return err
	}
	if err := p.transferTexture(src); err != nil {
		return err
	}
	if err := p.transferTexture(dst); err != nil {
		return err
	}
	for _, t := range [...]*Texture{src, dst} {
		if !mipmappable(t.format) || t.samples > 1 || t.typ == Texture3D {
			return fmt.Errorf("%w: blit with %s %v texture %q", ErrUnsupported, t.typ, t.format, t.label)
		}
	}
	s, err := srcRegion.resolve(src)
	if err != nil {
		return err
	}
	d, err := dstRegion.resolve(dst)
	if err != nil {
		return err
	}
	if s.Layers != d.Layers {
		return fmt.Errorf("%w: blit of %d layers into %d", ErrInvalidArgument, s.Layers, d.Layers)
	}
	if src.root == dst.root && s.Mip+src.baseMip == d.Mip+dst.baseMip {
		return fmt.Errorf("%w: blit within one mip of %q", ErrInvalidArgument, src.label)
	}
	return p.record(recording.BlitCommand{Src: s, Dst: d, Filter: filter}, src, dst)
}

// Mipmap regenerates count mip levels below base from level base. A count
// of 0 regenerates every level below base.
func (p *Pass) Mipmap(tex *Texture, base, count uint32) error {
	if err := p.checkRecord("mipmap", PassTransfer); err != nil {
		return err
	}
	if err := p.transferTexture(tex); err != nil {
		return err
	}
	if !mipmappable(tex.format) || tex.samples > 1 || tex.typ == Texture3D {
		return fmt.Errorf("%w: mipmaps of %s %v texture %q", ErrUnsupported, tex.typ, tex.format, tex.label)
	}
	if base >= tex.mips {
		return fmt.Errorf("%w: base mip %d of %d", ErrOutOfRange, base, tex.mips)
	}
	if count == 0 {
		count = tex.mips - base - 1
	}
	if uint64(base)+uint64(count) >= uint64(tex.mips) {
		return fmt.Errorf("%w: %d mips below %d of %d", ErrOutOfRange, count, base, tex.mips)
	}
	if count == 0 {
		return nil
	}
	return p.record(recording.MipmapCommand{Texture: tex, Base: base, Count: count}, tex)
}
