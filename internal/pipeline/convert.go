// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"github.com/gogpu/gfx/recording"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// BlendState returns the fixed-function blend for a blend mode, or nil for
// BlendNone. With AlphaMultiply the source color is scaled by source alpha;
// premultiplied output is used as is.
func BlendState(mode recording.BlendMode, alpha recording.BlendAlphaMode) *gputypes.BlendState {
	src := gputypes.BlendFactorSrcAlpha
	if alpha == recording.AlphaPremultiplied {
		src = gputypes.BlendFactorOne
	}
	comp := func(s, d gputypes.BlendFactor, op gputypes.BlendOperation) gputypes.BlendComponent {
		return gputypes.BlendComponent{SrcFactor: s, DstFactor: d, Operation: op}
	}

	var b gputypes.BlendState
	switch mode {
	case recording.BlendAlpha:
		b.Color = comp(src, gputypes.BlendFactorOneMinusSrcAlpha, gputypes.BlendOperationAdd)
		b.Alpha = comp(gputypes.BlendFactorOne, gputypes.BlendFactorOneMinusSrcAlpha, gputypes.BlendOperationAdd)
	case recording.BlendAdd:
		b.Color = comp(src, gputypes.BlendFactorOne, gputypes.BlendOperationAdd)
		b.Alpha = comp(gputypes.BlendFactorZero, gputypes.BlendFactorOne, gputypes.BlendOperationAdd)
	case recording.BlendSubtract:
		b.Color = comp(src, gputypes.BlendFactorOne, gputypes.BlendOperationReverseSubtract)
		b.Alpha = comp(gputypes.BlendFactorZero, gputypes.BlendFactorOne, gputypes.BlendOperationReverseSubtract)
	case recording.BlendMultiply:
		b.Color = comp(gputypes.BlendFactorDst, gputypes.BlendFactorZero, gputypes.BlendOperationAdd)
		b.Alpha = comp(gputypes.BlendFactorDstAlpha, gputypes.BlendFactorZero, gputypes.BlendOperationAdd)
	case recording.BlendLighten:
		b.Color = comp(gputypes.BlendFactorOne, gputypes.BlendFactorOne, gputypes.BlendOperationMax)
		b.Alpha = comp(gputypes.BlendFactorOne, gputypes.BlendFactorOne, gputypes.BlendOperationMax)
	case recording.BlendDarken:
		b.Color = comp(gputypes.BlendFactorOne, gputypes.BlendFactorOne, gputypes.BlendOperationMin)
		b.Alpha = comp(gputypes.BlendFactorOne, gputypes.BlendFactorOne, gputypes.BlendOperationMin)
	case recording.BlendScreen:
		b.Color = comp(src, gputypes.BlendFactorOneMinusSrc, gputypes.BlendOperationAdd)
		b.Alpha = comp(gputypes.BlendFactorOne, gputypes.BlendFactorOneMinusSrcAlpha, gputypes.BlendOperationAdd)
	default:
		return nil
	}
	return &b
}

func stencilFace(s *recording.PipelineState) hal.StencilFaceState {
	cmp := s.StencilCompare
	if cmp == gputypes.CompareFunctionUndefined {
		cmp = gputypes.CompareFunctionAlways
	}
	return hal.StencilFaceState{
		Compare:     cmp,
		FailOp:      hal.StencilOperation(s.StencilFail),
		DepthFailOp: hal.StencilOperation(s.StencilDepthFail),
		PassOp:      hal.StencilOperation(s.StencilPass),
	}
}

func depthStencil(desc *RenderDescriptor) *hal.DepthStencilState {
	if desc.DepthFormat == gputypes.TextureFormatUndefined {
		return nil
	}
	s := &desc.State
	ds := &hal.DepthStencilState{
		Format:              desc.DepthFormat,
		DepthWriteEnabled:   s.DepthWrite,
		DepthCompare:        s.DepthCompare,
		StencilReadMask:     s.StencilReadMask,
		StencilWriteMask:    s.StencilWriteMask,
		DepthBias:           s.DepthBias,
		DepthBiasSlopeScale: s.DepthSlope,
	}
	if ds.DepthCompare == gputypes.CompareFunctionUndefined {
		ds.DepthCompare = gputypes.CompareFunctionAlways
		ds.DepthWriteEnabled = false
	}
	ds.StencilFront = stencilFace(s)
	ds.StencilBack = ds.StencilFront
	return ds
}

func renderPipelineDescriptor(desc *RenderDescriptor) *hal.RenderPipelineDescriptor {
	s := &desc.State
	samples := desc.SampleCount
	if samples == 0 {
		samples = 1
	}

	out := &hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: desc.Layout,
		Vertex: hal.VertexState{
			Module:     desc.Module,
			EntryPoint: desc.VertexEntry,
			Buffers:    desc.Buffers,
		},
		Primitive: gputypes.PrimitiveState{
			Topology:       s.Topology,
			FrontFace:      s.FrontFace,
			CullMode:       s.CullMode,
			UnclippedDepth: s.DepthClamp,
		},
		DepthStencil: depthStencil(desc),
		Multisample: gputypes.MultisampleState{
			Count:                  samples,
			Mask:                   0xFFFFFFFF,
			AlphaToCoverageEnabled: s.AlphaToCoverage && samples > 1,
		},
	}
	if desc.StripIndexFormat != gputypes.IndexFormatUndefined {
		f := desc.StripIndexFormat
		out.Primitive.StripIndexFormat = &f
	}

	if desc.FragmentEntry != "" {
		targets := make([]gputypes.ColorTargetState, len(desc.ColorFormats))
		for i, f := range desc.ColorFormats {
			targets[i] = gputypes.ColorTargetState{Format: f, WriteMask: gputypes.ColorWriteMaskAll}
			if i < recording.MaxColorTargets {
				targets[i].Blend = BlendState(s.Blend[i], s.AlphaMode[i])
				targets[i].WriteMask = s.ColorWrite[i]
			}
		}
		module := desc.FragmentModule
		if module == nil {
			module = desc.Module
		}
		out.Fragment = &hal.FragmentState{
			Module:     module,
			EntryPoint: desc.FragmentEntry,
			Targets:    targets,
		}
	}
	return out
}
