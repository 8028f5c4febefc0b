package recording

import "testing"

// res is a minimal Resource used by tests.
type res uint64

func (r res) ResourceID() uint64 { return uint64(r) }

func TestCommandType_String(t *testing.T) {
	tests := []struct {
		typ  CommandType
		want string
	}{
		{CmdDraw, "Draw"},
		{CmdBeginTally, "BeginTally"},
		{CmdDispatch, "Dispatch"},
		{CmdBarrier, "Barrier"},
		{CmdCopyBufferToTexture, "CopyBufferToTexture"},
		{CmdMipmap, "Mipmap"},
		{CommandType(200), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("CommandType(%d).String() = %q, want %q", tt.typ, got, tt.want)
		}
	}
}

func TestCommand_Type(t *testing.T) {
	tests := []struct {
		cmd      Command
		want     CommandType
		transfer bool
	}{
		{DrawCommand{}, CmdDraw, false},
		{BeginTallyCommand{}, CmdBeginTally, false},
		{FinishTallyCommand{}, CmdFinishTally, false},
		{DispatchCommand{}, CmdDispatch, false},
		{BarrierCommand{}, CmdBarrier, false},
		{ClearBufferCommand{}, CmdClearBuffer, true},
		{ClearTextureCommand{}, CmdClearTexture, true},
		{CopyBufferCommand{}, CmdCopyBuffer, true},
		{CopyBufferToTextureCommand{}, CmdCopyBufferToTexture, true},
		{CopyTextureToBufferCommand{}, CmdCopyTextureToBuffer, true},
		{CopyTextureCommand{}, CmdCopyTexture, true},
		{BlitCommand{}, CmdBlit, true},
		{MipmapCommand{}, CmdMipmap, true},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			if got := tt.cmd.Type(); got != tt.want {
				t.Errorf("Type() = %v, want %v", got, tt.want)
			}
			if got := tt.cmd.Type().IsTransfer(); got != tt.transfer {
				t.Errorf("IsTransfer() = %v, want %v", got, tt.transfer)
			}
		})
	}
}

func TestDrawCommand_Kinds(t *testing.T) {
	plain := DrawCommand{Count: 3}
	if plain.IsIndexed() || plain.IsIndirect() {
		t.Error("procedural draw reported as indexed or indirect")
	}
	indexed := DrawCommand{Vertices: res(1), Indices: res(2), Count: 6}
	if !indexed.IsIndexed() {
		t.Error("IsIndexed() = false with an index buffer")
	}
	indirect := DrawCommand{Indirect: res(3), DrawCount: 2}
	if !indirect.IsIndirect() {
		t.Error("IsIndirect() = false with an indirect buffer")
	}
}

func TestRef_IsValid(t *testing.T) {
	if StateRef(InvalidRef).IsValid() {
		t.Error("StateRef(InvalidRef).IsValid() = true")
	}
	if !StateRef(0).IsValid() {
		t.Error("StateRef(0).IsValid() = false")
	}
	if BindingsRef(InvalidRef).IsValid() {
		t.Error("BindingsRef(InvalidRef).IsValid() = true")
	}
}

func TestDefaultState(t *testing.T) {
	s := DefaultState()
	if s.Pipeline.UsesStencil() {
		t.Error("default state uses stencil")
	}
	if !s.Viewport.IsZero() || !s.Scissor.IsZero() {
		t.Error("default viewport or scissor is not full-canvas")
	}
	for i, b := range s.Pipeline.Blend {
		if b != BlendAlpha {
			t.Errorf("Blend[%d] = %v, want alpha", i, b)
		}
	}
	if s != DefaultState() {
		t.Error("DefaultState() is not deterministic")
	}

	s.Pipeline.StencilPass = StencilReplace
	if !s.Pipeline.UsesStencil() {
		t.Error("UsesStencil() = false with a replace action")
	}
}

func TestBinding_String(t *testing.T) {
	tests := []struct {
		b    Binding
		want string
	}{
		{Binding{Group: 0, Slot: 1, Builtin: BuiltinCamera}, "@0.1 camera"},
		{Binding{Group: 1, Slot: 0, Kind: BindSampledTexture, Resource: res(7)}, "@1.0 sampled texture #7"},
		{Binding{Group: 2, Slot: 3, Kind: BindStorageBuffer, Resource: res(4), Offset: 256, Size: 64}, "@2.3 storage buffer #4 [256+64]"},
		{Binding{Kind: BindUniformBuffer}, "@0.0 uniform buffer <nil>"},
	}
	for _, tt := range tests {
		if got := tt.b.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
