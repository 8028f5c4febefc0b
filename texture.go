package gfx

import (
	"fmt"
	"image"
	"math/bits"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/image/draw"

	"github.com/gogpu/gfx/internal/restable"
)

// TextureType is the shape of a texture.
type TextureType uint8

const (
	Texture2D TextureType = iota
	Texture3D
	TextureCube
	TextureArray
)

var textureTypeNames = [...]string{
	Texture2D:    "2d",
	Texture3D:    "3d",
	TextureCube:  "cube",
	TextureArray: "array",
}

// String returns the string representation of a TextureType.
func (t TextureType) String() string {
	if int(t) < len(textureTypeNames) {
		return textureTypeNames[t]
	}
	return "unknown"
}

// TextureUsage is a set of ways a texture may be used.
type TextureUsage uint32

const (
	TextureSample   = TextureUsage(restable.UsageSample)
	TextureRender   = TextureUsage(restable.UsageRender)
	TextureStorage  = TextureUsage(restable.UsageStorage)
	TextureTransfer = TextureUsage(restable.UsageTransfer)
)

// String returns the flags joined by '|'.
func (u TextureUsage) String() string { return restable.Usage(u).String() }

func (u TextureUsage) hal() gputypes.TextureUsage {
	var out gputypes.TextureUsage
	if u&TextureSample != 0 {
		out |= gputypes.TextureUsageTextureBinding
	}
	if u&TextureRender != 0 {
		out |= gputypes.TextureUsageRenderAttachment
	}
	if u&TextureStorage != 0 {
		out |= gputypes.TextureUsageStorageBinding
	}
	if u&TextureTransfer != 0 {
		out |= gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
	}
	return out
}

// TextureOptions configures NewTexture.
type TextureOptions struct {
	Label  string
	Type   TextureType
	Format gputypes.TextureFormat // Undefined means RGBA8Unorm

	Width, Height uint32

	// Layers is the array layer count, the depth of 3D textures or a
	// multiple of 6 for cubes. 0 means 1, or 6 for cubes.
	Layers uint32

	// Mipmaps is the mip level count; 0 means 1. MipLevels gives the
	// length of a full chain.
	Mipmaps uint32

	Samples uint32 // 0 means 1
	Usage   TextureUsage
}

// MipLevels returns the number of levels in a full mip chain.
func MipLevels(width, height, depth uint32) uint32 {
	return uint32(bits.Len32(max(width, height, depth, 1))) //nolint:gosec // G115: at most 32
}

// Texture is a GPU image, or a view aliasing a range of another texture's
// layers and mips. Views share the resource table entry of the texture they
// were made from and are destroyed with it.
type Texture struct {
	device *Device
	root   *Texture
	raw    hal.Texture
	view   hal.TextureView
	id     restable.ID
	label  string

	typ     TextureType
	format  gputypes.TextureFormat
	width   uint32
	height  uint32
	layers  uint32
	mips    uint32
	samples uint32
	usage   TextureUsage

	baseLayer uint32
	baseMip   uint32

	views *viewCache
}

type viewKey struct {
	layer, layers uint32
	mip, mips     uint32
	dim           gputypes.TextureViewDimension
}

// viewCache holds the hal views of one texture and all of its views.
type viewCache struct {
	mu    sync.Mutex
	views map[viewKey]hal.TextureView
}

func (c *viewCache) get(d *Device, raw hal.Texture, format gputypes.TextureFormat, k viewKey) (hal.TextureView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.views[k]; ok {
		return v, nil
	}
	v, err := d.raw.CreateTextureView(raw, &hal.TextureViewDescriptor{
		Format:          format,
		Dimension:       k.dim,
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    k.mip,
		MipLevelCount:   k.mips,
		BaseArrayLayer:  k.layer,
		ArrayLayerCount: k.layers,
	})
	if err != nil {
		return nil, err
	}
	c.views[k] = v
	return v, nil
}

func (c *viewCache) destroy(d hal.Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range c.views {
		d.DestroyTextureView(v)
		delete(c.views, k)
	}
}

func viewDimension(t TextureType, layers uint32) gputypes.TextureViewDimension {
	switch t {
	case Texture3D:
		return gputypes.TextureViewDimension3D
	case TextureCube:
		if layers > 6 {
			return gputypes.TextureViewDimensionCubeArray
		}
		return gputypes.TextureViewDimensionCube
	case TextureArray:
		return gputypes.TextureViewDimension2DArray
	default:
		return gputypes.TextureViewDimension2D
	}
}

func (d *Device) validateTexture(o *TextureOptions) error {
	if o.Format == gputypes.TextureFormatUndefined {
		o.Format = gputypes.TextureFormatRGBA8Unorm
	}
	if o.Layers == 0 {
		o.Layers = 1
		if o.Type == TextureCube {
			o.Layers = 6
		}
	}
	if o.Mipmaps == 0 {
		o.Mipmaps = 1
	}
	if o.Samples == 0 {
		o.Samples = 1
	}
	if o.Usage == 0 {
		o.Usage = TextureSample
	}

	lim := d.limits
	switch {
	case o.Width == 0 || o.Height == 0:
		return fmt.Errorf("%w: texture %q has zero size", ErrInvalidArgument, o.Label)
	case o.Type == Texture3D && max(o.Width, o.Height, o.Layers) > lim.MaxTextureDimension3D:
		return fmt.Errorf("%w: 3d texture %dx%dx%d exceeds %d", ErrOutOfRange, o.Width, o.Height, o.Layers, lim.MaxTextureDimension3D)
	case o.Type != Texture3D && max(o.Width, o.Height) > lim.MaxTextureDimension2D:
		return fmt.Errorf("%w: texture %dx%d exceeds %d", ErrOutOfRange, o.Width, o.Height, lim.MaxTextureDimension2D)
	case o.Type != Texture3D && o.Layers > lim.MaxTextureArrayLayers:
		return fmt.Errorf("%w: %d layers exceed %d", ErrOutOfRange, o.Layers, lim.MaxTextureArrayLayers)
	case o.Type == Texture2D && o.Layers != 1:
		return fmt.Errorf("%w: 2d texture with %d layers", ErrInvalidArgument, o.Layers)
	case o.Type == TextureCube && (o.Width != o.Height || o.Layers%6 != 0):
		return fmt.Errorf("%w: cube texture must be square with a multiple of 6 layers", ErrInvalidArgument)
	case o.Mipmaps > MipLevels(o.Width, o.Height, depthOf(o.Type, o.Layers)):
		return fmt.Errorf("%w: %d mipmaps for a %dx%d texture", ErrOutOfRange, o.Mipmaps, o.Width, o.Height)
	case o.Samples != 1 && o.Samples != 4:
		return fmt.Errorf("%w: %d samples (1 or 4)", ErrInvalidArgument, o.Samples)
	case o.Samples > 1 && (o.Type == Texture3D || o.Mipmaps > 1 || o.Usage&TextureStorage != 0):
		return fmt.Errorf("%w: multisampled textures must be single-mip 2d without storage", ErrInvalidArgument)
	}
	if !d.IsFormatSupported(o.Format, o.Usage) {
		return fmt.Errorf("%w: format %v with %s usage", ErrUnsupported, o.Format, o.Usage)
	}
	return nil
}

func depthOf(t TextureType, layers uint32) uint32 {
	if t == Texture3D {
		return layers
	}
	return 1
}

// NewTexture creates a texture.
func (d *Device) NewTexture(opts TextureOptions) (*Texture, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if err := d.validateTexture(&opts); err != nil {
		return nil, err
	}

	usage := opts.Usage.hal()
	transfer := opts.Usage&TextureTransfer != 0 && opts.Type != Texture3D
	switch {
	case (opts.Mipmaps > 1 || transfer) && mipmappable(opts.Format):
		// Mip chains and blits are drawn with the blit pipeline.
		usage |= gputypes.TextureUsageTextureBinding | gputypes.TextureUsageRenderAttachment
	case transfer && opts.Samples == 1:
		if _, ok := texelSize(opts.Format); ok {
			// Clears are render passes that only load-clear.
			usage |= gputypes.TextureUsageRenderAttachment
		}
	}
	dimension := gputypes.TextureDimension2D
	if opts.Type == Texture3D {
		dimension = gputypes.TextureDimension3D
	}
	raw, err := d.raw.CreateTexture(&hal.TextureDescriptor{
		Label:         d.objectLabel("texture", opts.Label),
		Size:          hal.Extent3D{Width: opts.Width, Height: opts.Height, DepthOrArrayLayers: opts.Layers},
		MipLevelCount: opts.Mipmaps,
		SampleCount:   opts.Samples,
		Dimension:     dimension,
		Format:        opts.Format,
		Usage:         usage,
	})
	if err != nil {
		return nil, fmt.Errorf("gfx: create texture %q: %w", opts.Label, err)
	}

	t := &Texture{
		device:  d,
		raw:     raw,
		label:   opts.Label,
		typ:     opts.Type,
		format:  opts.Format,
		width:   opts.Width,
		height:  opts.Height,
		layers:  opts.Layers,
		mips:    opts.Mipmaps,
		samples: opts.Samples,
		usage:   opts.Usage,
		views:   &viewCache{views: make(map[viewKey]hal.TextureView)},
	}
	t.root = t
	t.view, err = t.views.get(d, raw, t.format, t.fullKey())
	if err != nil {
		d.raw.DestroyTexture(raw)
		return nil, fmt.Errorf("gfx: create texture view %q: %w", opts.Label, err)
	}

	views := t.views
	size := textureSize(opts)
	t.id, err = d.table.Register(restable.KindTexture, restable.Usage(opts.Usage), opts.Label, size, func() {
		views.destroy(d.raw)
		d.raw.DestroyTexture(raw)
	})
	if err != nil {
		views.destroy(d.raw)
		d.raw.DestroyTexture(raw)
		return nil, err
	}
	return t, nil
}

// NewTextureFromImage creates a 2D RGBA8 texture holding img. Width,
// Height, Type, Layers and Format in opts are taken from the image.
func (d *Device) NewTextureFromImage(img image.Image, opts TextureOptions) (*Texture, error) {
	b := img.Bounds()
	//nolint:gosec // G115: image bounds are non-negative
	opts.Width, opts.Height = uint32(b.Dx()), uint32(b.Dy())
	opts.Type, opts.Layers = Texture2D, 1
	if opts.Format != gputypes.TextureFormatRGBA8UnormSrgb {
		opts.Format = gputypes.TextureFormatRGBA8Unorm
	}
	opts.Usage |= TextureTransfer
	t, err := d.NewTexture(opts)
	if err != nil {
		return nil, err
	}
	if err := t.SetPixels(img, 0, 0, 0, 0); err != nil {
		t.Release()
		return nil, err
	}
	return t, nil
}

func textureSize(o TextureOptions) uint64 {
	bpp, ok := texelSize(o.Format)
	if !ok {
		bpp = 1
	}
	var size uint64
	for m := range o.Mipmaps {
		w, h := max(o.Width>>m, 1), max(o.Height>>m, 1)
		size += uint64(w) * uint64(h) * uint64(bpp)
	}
	return size * uint64(o.Layers) * uint64(o.Samples)
}

func (t *Texture) fullKey() viewKey {
	return viewKey{
		layer:  t.baseLayer,
		layers: t.layers,
		mip:    t.baseMip,
		mips:   t.mips,
		dim:    viewDimension(t.typ, t.layers),
	}
}

// ResourceID implements recording.Resource. Views report the ID of the
// texture they alias.
func (t *Texture) ResourceID() uint64 { return uint64(t.id) }

// Label returns the label the texture was created with.
func (t *Texture) Label() string { return t.label }

// Type returns the texture type.
func (t *Texture) Type() TextureType { return t.typ }

// Format returns the texel format.
func (t *Texture) Format() gputypes.TextureFormat { return t.format }

// Width returns the width of mip level 0 of the texture or view.
func (t *Texture) Width() uint32 { return t.width }

// Height returns the height of mip level 0 of the texture or view.
func (t *Texture) Height() uint32 { return t.height }

// Layers returns the layer count, or the depth of 3D textures.
func (t *Texture) Layers() uint32 { return t.layers }

// Mipmaps returns the mip level count.
func (t *Texture) Mipmaps() uint32 { return t.mips }

// Samples returns the sample count.
func (t *Texture) Samples() uint32 { return t.samples }

// Usage returns the usage flags of the texture, or of the texture a view
// aliases.
func (t *Texture) Usage() TextureUsage { return t.usage }

// IsView reports whether t aliases another texture.
func (t *Texture) IsView() bool { return t.root != t }

// Parent returns the texture a view was made from, or nil.
func (t *Texture) Parent() *Texture {
	if t.IsView() {
		return t.root
	}
	return nil
}

// mipSize returns the size of mip level m of the texture or view.
func (t *Texture) mipSize(m uint32) (w, h, d uint32) {
	d = 1
	if t.typ == Texture3D {
		d = max(t.layers>>m, 1)
	}
	return max(t.width>>m, 1), max(t.height>>m, 1), d
}

// attachment returns a single-layer, single-mip 2D view for rendering.
func (t *Texture) attachment(layer, mip uint32) (hal.TextureView, error) {
	return t.views.get(t.device, t.raw, t.format, viewKey{
		layer:  t.baseLayer + layer,
		layers: 1,
		mip:    t.baseMip + mip,
		mips:   1,
		dim:    gputypes.TextureViewDimension2D,
	})
}

// storageView returns a view of the first mip, as storage bindings require.
func (t *Texture) storageView() (hal.TextureView, error) {
	if t.mips == 1 {
		return t.view, nil
	}
	k := t.fullKey()
	k.mips = 1
	return t.views.get(t.device, t.raw, t.format, k)
}

// TextureViewOptions configures NewView. Layer and Mip are relative to the
// texture the view is made from.
type TextureViewOptions struct {
	Label      string
	Type       TextureType
	Layer      uint32
	LayerCount uint32 // 0 means 1 for 2d, 6 for cube, else the remaining layers
	Mip        uint32
	MipCount   uint32 // 0 means the remaining mips
}

// NewView returns a texture aliasing a range of t's layers and mips.
func (t *Texture) NewView(opts TextureViewOptions) (*Texture, error) {
	if err := t.device.table.CheckUsage(t.id, 0); err != nil {
		return nil, err
	}
	if t.typ == Texture3D && opts.Type != Texture3D {
		return nil, fmt.Errorf("%w: views of 3d textures must be 3d", ErrInvalidArgument)
	}
	if opts.Layer >= t.layers || opts.Mip >= t.mips {
		return nil, fmt.Errorf("%w: view layer %d mip %d of %d layers %d mips", ErrOutOfRange, opts.Layer, opts.Mip, t.layers, t.mips)
	}
	layers := opts.LayerCount
	if layers == 0 {
		switch opts.Type {
		case Texture2D:
			layers = 1
		case TextureCube:
			layers = 6
		default:
			layers = t.layers - opts.Layer
		}
	}
	mips := opts.MipCount
	if mips == 0 {
		mips = t.mips - opts.Mip
	}
	if opts.Layer+layers > t.layers || opts.Mip+mips > t.mips {
		return nil, fmt.Errorf("%w: view range exceeds texture", ErrOutOfRange)
	}
	switch opts.Type {
	case Texture2D:
		if layers != 1 {
			return nil, fmt.Errorf("%w: 2d view of %d layers", ErrInvalidArgument, layers)
		}
	case TextureCube:
		if layers%6 != 0 || t.width != t.height {
			return nil, fmt.Errorf("%w: cube view needs square layers in multiples of 6", ErrInvalidArgument)
		}
	}

	w, h, _ := t.mipSize(opts.Mip)
	v := &Texture{
		device:    t.device,
		root:      t.root,
		raw:       t.raw,
		id:        t.id,
		label:     opts.Label,
		typ:       opts.Type,
		format:    t.format,
		width:     w,
		height:    h,
		layers:    layers,
		mips:      mips,
		samples:   t.samples,
		usage:     t.usage,
		baseLayer: t.baseLayer + opts.Layer,
		baseMip:   t.baseMip + opts.Mip,
		views:     t.views,
	}
	if v.label == "" {
		v.label = t.label
	}
	view, err := v.views.get(t.device, t.raw, t.format, v.fullKey())
	if err != nil {
		return nil, fmt.Errorf("gfx: create texture view %q: %w", v.label, err)
	}
	v.view = view
	return v, nil
}

// checkRegion validates a box in mip level mip of the texture or view.
func (t *Texture) checkRegion(x, y, layer, mip, w, h, layers uint32) error {
	if mip >= t.mips {
		return fmt.Errorf("%w: mip %d of %d", ErrOutOfRange, mip, t.mips)
	}
	mw, mh, md := t.mipSize(mip)
	if t.typ != Texture3D {
		md = t.layers
	}
	if uint64(x)+uint64(w) > uint64(mw) || uint64(y)+uint64(h) > uint64(mh) ||
		uint64(layer)+uint64(layers) > uint64(md) {
		return fmt.Errorf("%w: region %dx%dx%d at (%d, %d, %d) in mip %d of %q (%dx%dx%d)",
			ErrOutOfRange, w, h, layers, x, y, layer, mip, t.label, mw, mh, md)
	}
	return nil
}

// SetPixels uploads img into one layer and mip of the texture with its
// top-left corner at (x, y). The texture needs TextureTransfer usage and an
// 8-bit RGBA or BGRA format.
func (t *Texture) SetPixels(img image.Image, x, y, layer, mip uint32) error {
	if err := t.device.table.CheckUsage(t.id, restable.UsageTransfer); err != nil {
		return err
	}
	b := img.Bounds()
	//nolint:gosec // G115: image bounds are non-negative
	w, h := uint32(b.Dx()), uint32(b.Dy())
	if err := t.checkRegion(x, y, layer, mip, w, h, 1); err != nil {
		return err
	}

	var bgra bool
	switch t.format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb:
	case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		bgra = true
	default:
		return fmt.Errorf("%w: SetPixels into %v texture", ErrUnsupported, t.format)
	}

	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != b.Dx()*4 || bgra {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Copy(rgba, image.Point{}, img, b, draw.Src, nil)
	}
	if bgra {
		for i := 0; i+3 < len(rgba.Pix); i += 4 {
			rgba.Pix[i], rgba.Pix[i+2] = rgba.Pix[i+2], rgba.Pix[i]
		}
	}
	return t.writeRaw(x, y, layer, mip, w, h, rgba.Pix)
}

// writeRaw uploads tightly packed texels through the queue.
func (t *Texture) writeRaw(x, y, layer, mip, w, h uint32, data []byte) error {
	bpp, ok := texelSize(t.format)
	if !ok {
		return fmt.Errorf("%w: upload into %v texture", ErrUnsupported, t.format)
	}
	z := t.baseLayer + layer
	if t.typ == Texture3D {
		z = layer
	}
	err := t.device.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  t.raw,
			MipLevel: t.baseMip + mip,
			Origin:   hal.Origin3D{X: x, Y: y, Z: z},
			Aspect:   gputypes.TextureAspectAll,
		},
		data,
		&hal.ImageDataLayout{BytesPerRow: w * bpp, RowsPerImage: h},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
	if err != nil {
		return fmt.Errorf("gfx: write texture %q: %w", t.label, err)
	}
	return nil
}

// Release marks the texture for destruction once the GPU no longer uses it
// and no recorded pass references it. Releasing a view does nothing; views
// live as long as the texture they alias.
func (t *Texture) Release() {
	if t.IsView() {
		return
	}
	t.device.table.Release(t.id)
}

// texelSize returns the bytes per texel of uncompressed formats.
func texelSize(f gputypes.TextureFormat) (uint32, bool) {
	switch f {
	case gputypes.TextureFormatR8Unorm, gputypes.TextureFormatR8Snorm,
		gputypes.TextureFormatR8Uint, gputypes.TextureFormatR8Sint,
		gputypes.TextureFormatStencil8:
		return 1, true
	case gputypes.TextureFormatR16Unorm, gputypes.TextureFormatR16Snorm,
		gputypes.TextureFormatR16Uint, gputypes.TextureFormatR16Sint,
		gputypes.TextureFormatR16Float, gputypes.TextureFormatRG8Unorm,
		gputypes.TextureFormatRG8Snorm, gputypes.TextureFormatRG8Uint,
		gputypes.TextureFormatRG8Sint, gputypes.TextureFormatDepth16Unorm:
		return 2, true
	case gputypes.TextureFormatR32Float, gputypes.TextureFormatR32Uint,
		gputypes.TextureFormatR32Sint, gputypes.TextureFormatRG16Unorm,
		gputypes.TextureFormatRG16Snorm, gputypes.TextureFormatRG16Uint,
		gputypes.TextureFormatRG16Sint, gputypes.TextureFormatRG16Float,
		gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatRGBA8Snorm, gputypes.TextureFormatRGBA8Uint,
		gputypes.TextureFormatRGBA8Sint, gputypes.TextureFormatBGRA8Unorm,
		gputypes.TextureFormatBGRA8UnormSrgb, gputypes.TextureFormatRGB10A2Uint,
		gputypes.TextureFormatRGB10A2Unorm, gputypes.TextureFormatRG11B10Ufloat,
		gputypes.TextureFormatRGB9E5Ufloat, gputypes.TextureFormatDepth32Float:
		return 4, true
	case gputypes.TextureFormatRG32Float, gputypes.TextureFormatRG32Uint,
		gputypes.TextureFormatRG32Sint, gputypes.TextureFormatRGBA16Unorm,
		gputypes.TextureFormatRGBA16Snorm, gputypes.TextureFormatRGBA16Uint,
		gputypes.TextureFormatRGBA16Sint, gputypes.TextureFormatRGBA16Float:
		return 8, true
	case gputypes.TextureFormatRGBA32Float, gputypes.TextureFormatRGBA32Uint,
		gputypes.TextureFormatRGBA32Sint:
		return 16, true
	default:
		return 0, false
	}
}

// mipmappable reports whether mips of f can be generated by rendering.
func mipmappable(f gputypes.TextureFormat) bool {
	_, ok := texelSize(f)
	return ok && !f.IsDepthStencil() && !isIntegerFormat(f)
}

func isIntegerFormat(f gputypes.TextureFormat) bool {
	switch f {
	case gputypes.TextureFormatR8Uint, gputypes.TextureFormatR8Sint,
		gputypes.TextureFormatR16Uint, gputypes.TextureFormatR16Sint,
		gputypes.TextureFormatRG8Uint, gputypes.TextureFormatRG8Sint,
		gputypes.TextureFormatR32Uint, gputypes.TextureFormatR32Sint,
		gputypes.TextureFormatRG16Uint, gputypes.TextureFormatRG16Sint,
		gputypes.TextureFormatRGBA8Uint, gputypes.TextureFormatRGBA8Sint,
		gputypes.TextureFormatRGB10A2Uint, gputypes.TextureFormatRG32Uint,
		gputypes.TextureFormatRG32Sint, gputypes.TextureFormatRGBA16Uint,
		gputypes.TextureFormatRGBA16Sint, gputypes.TextureFormatRGBA32Uint,
		gputypes.TextureFormatRGBA32Sint:
		return true
	default:
		return false
	}
}
