package gfx

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestNewTexture_Defaults(t *testing.T) {
	d := newTestDevice(t)
	tex, err := d.NewTexture(TextureOptions{Width: 4, Height: 2})
	if err != nil {
		t.Fatalf("NewTexture() error = %v", err)
	}
	if tex.Format() != gputypes.TextureFormatRGBA8Unorm || tex.Layers() != 1 || tex.Mipmaps() != 1 ||
		tex.Samples() != 1 || tex.Usage() != TextureSample {
		t.Errorf("defaults: format %v layers %d mips %d samples %d usage %v",
			tex.Format(), tex.Layers(), tex.Mipmaps(), tex.Samples(), tex.Usage())
	}
	cube, err := d.NewTexture(TextureOptions{Type: TextureCube, Width: 8, Height: 8})
	if err != nil {
		t.Fatalf("NewTexture(cube) error = %v", err)
	}
	if cube.Layers() != 6 {
		t.Errorf("cube Layers() = %d, want 6", cube.Layers())
	}
}

func TestNewTexture_Invalid(t *testing.T) {
	d := newTestDevice(t)
	maxDim := d.Limits().MaxTextureDimension2D
	tests := []struct {
		name string
		opts TextureOptions
		want error
	}{
		{"zero size", TextureOptions{Width: 0, Height: 4}, ErrInvalidArgument},
		{"too large", TextureOptions{Width: maxDim + 1, Height: 1}, ErrOutOfRange},
		{"2d layers", TextureOptions{Width: 4, Height: 4, Layers: 2}, ErrInvalidArgument},
		{"cube not square", TextureOptions{Type: TextureCube, Width: 4, Height: 8}, ErrInvalidArgument},
		{"cube layers", TextureOptions{Type: TextureCube, Width: 4, Height: 4, Layers: 7}, ErrInvalidArgument},
		{"too many mips", TextureOptions{Width: 4, Height: 4, Mipmaps: 4}, ErrOutOfRange},
		{"samples", TextureOptions{Width: 4, Height: 4, Samples: 2}, ErrInvalidArgument},
		{"multisampled mips", TextureOptions{Width: 4, Height: 4, Samples: 4, Mipmaps: 2}, ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.NewTexture(tt.opts); !errors.Is(err, tt.want) {
				t.Errorf("NewTexture(%+v) = %v, want %v", tt.opts, err, tt.want)
			}
		})
	}
}

func TestMipLevels(t *testing.T) {
	tests := []struct {
		w, h, d, want uint32
	}{
		{1, 1, 1, 1},
		{2, 1, 1, 2},
		{256, 256, 1, 9},
		{300, 20, 1, 9},
		{4, 4, 16, 5},
	}
	for _, tt := range tests {
		if got := MipLevels(tt.w, tt.h, tt.d); got != tt.want {
			t.Errorf("MipLevels(%d, %d, %d) = %d, want %d", tt.w, tt.h, tt.d, got, tt.want)
		}
	}
}

func TestTexture_NewView(t *testing.T) {
	d := newTestDevice(t)
	tex, err := d.NewTexture(TextureOptions{Type: TextureArray, Width: 16, Height: 16, Layers: 4, Mipmaps: 3})
	if err != nil {
		t.Fatal(err)
	}

	v, err := tex.NewView(TextureViewOptions{Type: Texture2D, Layer: 2, Mip: 1, MipCount: 1})
	if err != nil {
		t.Fatalf("NewView() error = %v", err)
	}
	if !v.IsView() || v.Parent() != tex {
		t.Error("view does not report its parent")
	}
	if v.Width() != 8 || v.Height() != 8 || v.Layers() != 1 || v.Mipmaps() != 1 {
		t.Errorf("view is %dx%d with %d layers %d mips, want 8x8, 1, 1", v.Width(), v.Height(), v.Layers(), v.Mipmaps())
	}
	if v.ResourceID() != tex.ResourceID() {
		t.Error("view does not share the texture's resource")
	}

	tests := []struct {
		name string
		opts TextureViewOptions
		want error
	}{
		{"layer out of range", TextureViewOptions{Type: TextureArray, Layer: 4}, ErrOutOfRange},
		{"mips out of range", TextureViewOptions{Type: TextureArray, Mip: 1, MipCount: 3}, ErrOutOfRange},
		{"2d of many layers", TextureViewOptions{Type: Texture2D, LayerCount: 2}, ErrInvalidArgument},
		{"cube of 4 layers", TextureViewOptions{Type: TextureCube, LayerCount: 4}, ErrInvalidArgument},
		{"cube past the last layer", TextureViewOptions{Type: TextureCube}, ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tex.NewView(tt.opts); !errors.Is(err, tt.want) {
				t.Errorf("NewView(%+v) = %v, want %v", tt.opts, err, tt.want)
			}
		})
	}

	tex.Release()
	if _, err := tex.NewView(TextureViewOptions{Type: TextureArray}); !errors.Is(err, ErrReleased) {
		t.Errorf("NewView() of released texture = %v, want ErrReleased", err)
	}
}

func TestTexture_NewViewOfStereoLayer(t *testing.T) {
	d := newTestDevice(t)
	tex, err := d.NewTexture(TextureOptions{Type: TextureArray, Width: 8, Height: 8, Layers: 2, Usage: TextureRender | TextureSample})
	if err != nil {
		t.Fatal(err)
	}
	for layer := range uint32(2) {
		v, err := tex.NewView(TextureViewOptions{Type: Texture2D, Layer: layer})
		if err != nil {
			t.Fatalf("NewView(layer %d) error = %v", layer, err)
		}
		if v.Layers() != 1 {
			t.Errorf("NewView(layer %d).Layers() = %d, want 1", layer, v.Layers())
		}
	}

	cube, err := d.NewTexture(TextureOptions{Type: TextureArray, Width: 4, Height: 4, Layers: 12})
	if err != nil {
		t.Fatal(err)
	}
	v, err := cube.NewView(TextureViewOptions{Type: TextureCube, Layer: 6})
	if err != nil {
		t.Fatalf("NewView(cube at layer 6) error = %v", err)
	}
	if v.Layers() != 6 {
		t.Errorf("NewView(cube).Layers() = %d, want 6", v.Layers())
	}
}

func TestTexture_SetPixels(t *testing.T) {
	d := newTestDevice(t)
	tex, err := d.NewTexture(TextureOptions{Width: 4, Height: 4, Usage: TextureSample | TextureTransfer})
	if err != nil {
		t.Fatal(err)
	}
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})

	if err := tex.SetPixels(img, 2, 2, 0, 0); err != nil {
		t.Errorf("SetPixels() error = %v", err)
	}
	if err := tex.SetPixels(img, 3, 0, 0, 0); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("SetPixels(past edge) = %v, want ErrOutOfRange", err)
	}

	sampleOnly, err := d.NewTexture(TextureOptions{Width: 4, Height: 4})
	if err != nil {
		t.Fatal(err)
	}
	if err := sampleOnly.SetPixels(img, 0, 0, 0, 0); !errors.Is(err, ErrUsage) {
		t.Errorf("SetPixels() without transfer usage = %v, want ErrUsage", err)
	}
}

func TestNewTextureFromImage(t *testing.T) {
	d := newTestDevice(t)
	img := image.NewRGBA(image.Rect(0, 0, 5, 3))
	tex, err := d.NewTextureFromImage(img, TextureOptions{Label: "image"})
	if err != nil {
		t.Fatalf("NewTextureFromImage() error = %v", err)
	}
	if tex.Width() != 5 || tex.Height() != 3 {
		t.Errorf("texture is %dx%d, want 5x3", tex.Width(), tex.Height())
	}
}

func TestNewSampler(t *testing.T) {
	d := newTestDevice(t)
	tests := []struct {
		name string
		opts SamplerOptions
		want error
	}{
		{"zero", SamplerOptions{}, nil},
		{"nearest clamped", SamplerOptions{Nearest: true, NearestMip: true, AddressModeU: gputypes.AddressModeClampToEdge}, nil},
		{"comparison", SamplerOptions{Compare: gputypes.CompareFunctionLess}, nil},
		{"lod range", SamplerOptions{LodMin: 1, LodMax: 4}, nil},
		{"inverted lod", SamplerOptions{LodMin: 4, LodMax: 1}, ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := d.NewSampler(tt.opts)
			if !errors.Is(err, tt.want) {
				t.Fatalf("NewSampler(%+v) = %v, want %v", tt.opts, err, tt.want)
			}
			if err == nil {
				s.Release()
			}
		})
	}
}
