// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"testing"

	"github.com/gogpu/gfx/recording"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

func TestBlendState(t *testing.T) {
	tests := []struct {
		mode  recording.BlendMode
		alpha recording.BlendAlphaMode
		src   gputypes.BlendFactor
		dst   gputypes.BlendFactor
		op    gputypes.BlendOperation
	}{
		{recording.BlendAlpha, recording.AlphaMultiply, gputypes.BlendFactorSrcAlpha, gputypes.BlendFactorOneMinusSrcAlpha, gputypes.BlendOperationAdd},
		{recording.BlendAlpha, recording.AlphaPremultiplied, gputypes.BlendFactorOne, gputypes.BlendFactorOneMinusSrcAlpha, gputypes.BlendOperationAdd},
		{recording.BlendAdd, recording.AlphaMultiply, gputypes.BlendFactorSrcAlpha, gputypes.BlendFactorOne, gputypes.BlendOperationAdd},
		{recording.BlendSubtract, recording.AlphaPremultiplied, gputypes.BlendFactorOne, gputypes.BlendFactorOne, gputypes.BlendOperationReverseSubtract},
		{recording.BlendMultiply, recording.AlphaMultiply, gputypes.BlendFactorDst, gputypes.BlendFactorZero, gputypes.BlendOperationAdd},
		{recording.BlendLighten, recording.AlphaMultiply, gputypes.BlendFactorOne, gputypes.BlendFactorOne, gputypes.BlendOperationMax},
		{recording.BlendDarken, recording.AlphaMultiply, gputypes.BlendFactorOne, gputypes.BlendFactorOne, gputypes.BlendOperationMin},
		{recording.BlendScreen, recording.AlphaMultiply, gputypes.BlendFactorSrcAlpha, gputypes.BlendFactorOneMinusSrc, gputypes.BlendOperationAdd},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			b := BlendState(tt.mode, tt.alpha)
			if b == nil {
				t.Fatalf("BlendState(%v) = nil", tt.mode)
			}
			got := b.Color
			if got.SrcFactor != tt.src || got.DstFactor != tt.dst || got.Operation != tt.op {
				t.Errorf("BlendState(%v, %v).Color = %+v, want {%v %v %v}", tt.mode, tt.alpha, got, tt.src, tt.dst, tt.op)
			}
		})
	}
	if b := BlendState(recording.BlendNone, recording.AlphaMultiply); b != nil {
		t.Errorf("BlendState(none) = %+v, want nil", b)
	}
}

func TestRenderPipelineDescriptor(t *testing.T) {
	state := recording.DefaultState().Pipeline
	state.Blend[1] = recording.BlendNone
	state.StencilCompare = gputypes.CompareFunctionEqual
	state.StencilPass = recording.StencilIncrementWrap
	state.DepthClamp = true

	desc := &RenderDescriptor{
		VertexEntry:   "vs_main",
		FragmentEntry: "fs_main",
		State:         state,
		ColorFormats: []gputypes.TextureFormat{
			gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8Unorm,
		},
		DepthFormat: gputypes.TextureFormatDepth24PlusStencil8,
	}
	got := renderPipelineDescriptor(desc)

	if got.Multisample.Count != 1 {
		t.Errorf("Multisample.Count = %d, want 1", got.Multisample.Count)
	}
	if !got.Primitive.UnclippedDepth {
		t.Error("Primitive.UnclippedDepth = false, want true")
	}
	if got.Primitive.StripIndexFormat != nil {
		t.Error("Primitive.StripIndexFormat set for a list topology")
	}
	if got.Fragment == nil || len(got.Fragment.Targets) != 2 {
		t.Fatalf("Fragment targets = %+v, want 2", got.Fragment)
	}
	if got.Fragment.Targets[0].Blend == nil || got.Fragment.Targets[1].Blend != nil {
		t.Errorf("target blends = %v, %v, want alpha, nil", got.Fragment.Targets[0].Blend, got.Fragment.Targets[1].Blend)
	}
	ds := got.DepthStencil
	if ds == nil {
		t.Fatal("DepthStencil = nil")
	}
	if ds.DepthCompare != gputypes.CompareFunctionGreaterEqual || !ds.DepthWriteEnabled {
		t.Errorf("depth = %v write %v, want GreaterEqual write true", ds.DepthCompare, ds.DepthWriteEnabled)
	}
	if ds.StencilFront.PassOp != hal.StencilOperationIncrementWrap || ds.StencilBack != ds.StencilFront {
		t.Errorf("stencil faces = %+v / %+v", ds.StencilFront, ds.StencilBack)
	}

	desc.DepthFormat = gputypes.TextureFormatUndefined
	desc.FragmentEntry = ""
	got = renderPipelineDescriptor(desc)
	if got.DepthStencil != nil || got.Fragment != nil {
		t.Errorf("depth-less vertex-only descriptor = %+v, %+v, want nil, nil", got.DepthStencil, got.Fragment)
	}
}

func TestDepthStencil_TestDisabled(t *testing.T) {
	desc := &RenderDescriptor{DepthFormat: gputypes.TextureFormatDepth32Float}
	desc.State.DepthWrite = true
	ds := depthStencil(desc)
	if ds.DepthCompare != gputypes.CompareFunctionAlways || ds.DepthWriteEnabled {
		t.Errorf("depthStencil() = %v write %v, want Always write false", ds.DepthCompare, ds.DepthWriteEnabled)
	}
	if ds.StencilFront.Compare != gputypes.CompareFunctionAlways {
		t.Errorf("StencilFront.Compare = %v, want Always", ds.StencilFront.Compare)
	}
}
