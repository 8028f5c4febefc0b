package recording

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
)

// CommandType identifies the type of a command.
type CommandType uint8

const (
	// Render commands
	CmdDraw        CommandType = iota // Draw a mesh or procedural geometry
	CmdBeginTally                     // Start an occlusion tally
	CmdFinishTally                    // Finish the active tally

	// Compute commands
	CmdDispatch // Dispatch compute workgroups
	CmdBarrier  // Order prior dispatches before later ones

	// Transfer commands
	CmdClearBuffer         // Fill a buffer range with zeros
	CmdClearTexture        // Fill texture layers/mips with a color
	CmdCopyBuffer          // Buffer to buffer copy
	CmdCopyBufferToTexture // Buffer to texture upload
	CmdCopyTextureToBuffer // Texture to buffer download
	CmdCopyTexture         // Texture to texture copy
	CmdBlit                // Scaled, filtered texture copy
	CmdMipmap              // Regenerate a mip chain
)

var commandTypeNames = [...]string{
	CmdDraw:                "Draw",
	CmdBeginTally:          "BeginTally",
	CmdFinishTally:         "FinishTally",
	CmdDispatch:            "Dispatch",
	CmdBarrier:             "Barrier",
	CmdClearBuffer:         "ClearBuffer",
	CmdClearTexture:        "ClearTexture",
	CmdCopyBuffer:          "CopyBuffer",
	CmdCopyBufferToTexture: "CopyBufferToTexture",
	CmdCopyTextureToBuffer: "CopyTextureToBuffer",
	CmdCopyTexture:         "CopyTexture",
	CmdBlit:                "Blit",
	CmdMipmap:              "Mipmap",
}

// String returns the string representation of a CommandType.
func (c CommandType) String() string {
	if int(c) < len(commandTypeNames) {
		return commandTypeNames[c]
	}
	return "Unknown"
}

// IsTransfer reports whether the command belongs to a transfer pass.
func (c CommandType) IsTransfer() bool { return c >= CmdClearBuffer && c <= CmdMipmap }

// Command is the interface implemented by all command types.
type Command interface {
	// Type returns the CommandType for this command.
	Type() CommandType
}

// Resource is a GPU object referenced by commands. Commands only carry the
// handle; backends resolve it to their native object.
type Resource interface {
	ResourceID() uint64
}

// --------------------------------------------------------------------------
// Reference Types
// --------------------------------------------------------------------------

// StateRef is a reference to a pipeline state in the pool.
type StateRef uint32

// BindingsRef is a reference to a binding set in the pool.
type BindingsRef uint32

// InvalidRef is the sentinel value for an invalid reference.
const InvalidRef = ^uint32(0)

// IsValid returns true if the reference points to a pooled state.
func (r StateRef) IsValid() bool {
	return uint32(r) != InvalidRef
}

// IsValid returns true if the reference points to a pooled binding set.
func (r BindingsRef) IsValid() bool {
	return uint32(r) != InvalidRef
}

// --------------------------------------------------------------------------
// Render Commands
// --------------------------------------------------------------------------

// DrawCommand draws geometry with the state and bindings captured when it
// was recorded.
type DrawCommand struct {
	State    StateRef
	Bindings BindingsRef

	// Vertices is nil for procedural draws (vertex_index driven shaders).
	Vertices    Resource
	Indices     Resource
	IndexFormat gputypes.IndexFormat

	Start      uint32 // first vertex or index
	Count      uint32
	Instances  uint32
	BaseVertex int32

	// Indirect draws read their arguments from a buffer.
	Indirect       Resource
	IndirectOffset uint64
	DrawCount      uint32

	Transform mgl32.Mat4
	Color     mgl32.Vec4
}

// Type implements Command.
func (DrawCommand) Type() CommandType { return CmdDraw }

// IsIndexed reports whether the draw reads an index buffer.
func (c DrawCommand) IsIndexed() bool { return c.Indices != nil }

// IsIndirect reports whether the draw reads its arguments from a buffer.
func (c DrawCommand) IsIndirect() bool { return c.Indirect != nil }

// BeginTallyCommand starts counting samples that pass depth and stencil tests.
type BeginTallyCommand struct {
	Index uint32
}

// Type implements Command.
func (BeginTallyCommand) Type() CommandType { return CmdBeginTally }

// FinishTallyCommand stops the active tally.
type FinishTallyCommand struct {
	Index uint32
}

// Type implements Command.
func (FinishTallyCommand) Type() CommandType { return CmdFinishTally }

// --------------------------------------------------------------------------
// Compute Commands
// --------------------------------------------------------------------------

// DispatchCommand runs a compute shader over a grid of workgroups.
type DispatchCommand struct {
	State    StateRef
	Bindings BindingsRef
	X, Y, Z  uint32

	Indirect       Resource
	IndirectOffset uint64
}

// Type implements Command.
func (DispatchCommand) Type() CommandType { return CmdDispatch }

// BarrierCommand makes the results of every prior dispatch visible to every
// later dispatch.
type BarrierCommand struct{}

// Type implements Command.
func (BarrierCommand) Type() CommandType { return CmdBarrier }

// --------------------------------------------------------------------------
// Transfer Commands
// --------------------------------------------------------------------------

// TextureRegion addresses a box of texels in one mip level of a range of
// array layers.
type TextureRegion struct {
	Texture Resource
	Mip     uint32
	Layer   uint32
	X, Y, Z uint32

	Width, Height uint32
	Layers        uint32 // array layers, or depth for 3D textures
}

// ClearBufferCommand zeroes a byte range.
type ClearBufferCommand struct {
	Buffer Resource
	Offset uint64
	Size   uint64
}

// Type implements Command.
func (ClearBufferCommand) Type() CommandType { return CmdClearBuffer }

// ClearTextureCommand fills layers and mips of a texture with a color.
type ClearTextureCommand struct {
	Texture    Resource
	Color      [4]float64
	Layer      uint32
	LayerCount uint32
	Mip        uint32
	MipCount   uint32
}

// Type implements Command.
func (ClearTextureCommand) Type() CommandType { return CmdClearTexture }

// CopyBufferCommand copies bytes between buffers.
type CopyBufferCommand struct {
	Src, Dst       Resource
	SrcOff, DstOff uint64
	Size           uint64
}

// Type implements Command.
func (CopyBufferCommand) Type() CommandType { return CmdCopyBuffer }

// CopyBufferToTextureCommand uploads tightly packed rows from a buffer.
type CopyBufferToTextureCommand struct {
	Src         Resource
	SrcOff      uint64
	BytesPerRow uint32
	Dst         TextureRegion
}

// Type implements Command.
func (CopyBufferToTextureCommand) Type() CommandType { return CmdCopyBufferToTexture }

// CopyTextureToBufferCommand downloads texels into tightly packed rows.
type CopyTextureToBufferCommand struct {
	Src         TextureRegion
	Dst         Resource
	DstOff      uint64
	BytesPerRow uint32
}

// Type implements Command.
func (CopyTextureToBufferCommand) Type() CommandType { return CmdCopyTextureToBuffer }

// CopyTextureCommand copies texels between same-sized regions.
type CopyTextureCommand struct {
	Src, Dst TextureRegion
}

// Type implements Command.
func (CopyTextureCommand) Type() CommandType { return CmdCopyTexture }

// BlitCommand copies with scaling and filtering between regions.
type BlitCommand struct {
	Src, Dst TextureRegion
	Filter   gputypes.FilterMode
}

// Type implements Command.
func (BlitCommand) Type() CommandType { return CmdBlit }

// MipmapCommand regenerates Count mip levels below Base by successive
// downsampling.
type MipmapCommand struct {
	Texture Resource
	Base    uint32
	Count   uint32
}

// Type implements Command.
func (MipmapCommand) Type() CommandType { return CmdMipmap }
