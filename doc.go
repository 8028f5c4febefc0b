// Package gfx records GPU work into passes and submits it to a wgpu hal
// device.
//
// # Overview
//
// A Pass batches render, compute or transfer work. Recording calls
// validate their arguments against the resources, the active shader and
// the device limits and either record a command or return an error; a
// failed call records nothing. Submit hands any number of passes to the
// GPU queue in the order given.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/gfx"
//		_ "github.com/gogpu/wgpu/hal/noop" // or a real backend
//	)
//
//	dev, err := gfx.Open()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
//	shader, _ := dev.NewShader(source, gfx.ShaderOptions{Label: "unlit"})
//	target, _ := dev.NewTexture(gfx.TextureOptions{
//		Width: 512, Height: 512,
//		Format: gputypes.TextureFormatRGBA8Unorm,
//		Usage:  gfx.TextureRender | gfx.TextureTransfer,
//	})
//
//	pass, _ := dev.NewPass(gfx.PassOptions{Label: "main", Type: gfx.PassRender})
//	_ = pass.SetCanvas(gfx.Canvas{Colors: []*gfx.Texture{target}})
//	_ = pass.SetShader(shader)
//	_ = pass.Mesh(vertices, indices, mgl32.Ident4(), 0, 0, 1)
//	dev.Submit(pass)
//
// # Resources
//
// Buffers, textures, samplers and shaders are registered in a per-device
// resource table. Release marks a resource for destruction; it is
// destroyed once no recorded pass holds it and every submission that used
// it has completed.
//
// # Bindings
//
// Shader variables are discovered by reflecting the shader source. Send
// binds a resource to a variable by name; the binding survives switching
// to another shader that declares a compatible variable at the same slot.
// Sampled textures and samplers left unbound fall back to a white texture
// and a linear sampler.
//
// # Multiview
//
// A render pass draws every view of its camera. The number of views is
// the layer count of the canvas: draws are encoded once per layer, each
// with that view's camera block.
//
// # Errors
//
// Recording errors are returned synchronously. Failures during Submit
// (encoding, device loss, out of memory) are logged through Logger and
// kept for Device.Err; Submit itself always returns true.
package gfx
