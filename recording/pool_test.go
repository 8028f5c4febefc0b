package recording

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestPool_AddState(t *testing.T) {
	p := NewPool()
	a := DefaultState()
	b := DefaultState()
	b.Pipeline.CullMode = gputypes.CullModeBack

	ra := p.AddState(a)
	rb := p.AddState(b)
	if ra == rb {
		t.Fatal("different states share a reference")
	}
	if again := p.AddState(DefaultState()); again != ra {
		t.Errorf("AddState(equal) = %d, want %d", again, ra)
	}
	if p.StateCount() != 2 {
		t.Errorf("StateCount() = %d, want 2", p.StateCount())
	}
	if got := p.State(rb); got != b {
		t.Errorf("State(%d) = %+v, want %+v", rb, got, b)
	}
	if got := p.State(StateRef(InvalidRef)); got != (State{}) {
		t.Errorf("State(InvalidRef) = %+v, want zero", got)
	}
}

func TestPool_AddState_Shader(t *testing.T) {
	p := NewPool()
	a := DefaultState()
	a.Pipeline.Shader = res(1)
	b := a
	b.Pipeline.Shader = res(2)
	if p.AddState(a) == p.AddState(b) {
		t.Error("states with different shaders share a reference")
	}
}

func TestPool_AddBindings(t *testing.T) {
	p := NewPool()
	set := []Binding{{Slot: 0, Kind: BindUniformBuffer, Resource: res(1)}}

	r1 := p.AddBindings(set)
	set[0].Resource = res(9) // the pool must hold its own copy
	if got := p.Bindings(r1)[0].Resource; got != res(1) {
		t.Errorf("pooled binding changed with caller slice: %v", got)
	}

	r2 := p.AddBindings([]Binding{{Slot: 0, Kind: BindUniformBuffer, Resource: res(1)}})
	if r2 != r1 {
		t.Errorf("AddBindings(equal to last) = %d, want %d", r2, r1)
	}
	r3 := p.AddBindings(set)
	if r3 == r1 || p.BindingsCount() != 2 {
		t.Errorf("AddBindings(different) = %d, count %d", r3, p.BindingsCount())
	}
	if p.Bindings(BindingsRef(InvalidRef)) != nil {
		t.Error("Bindings(InvalidRef) != nil")
	}
}

func TestPool_Resources(t *testing.T) {
	p := NewPool()
	s := DefaultState()
	s.Pipeline.Shader = res(5)
	p.AddState(s)
	p.AddBindings([]Binding{{Resource: res(6)}, {Builtin: BuiltinCamera}})

	var got []uint64
	p.Resources(func(r Resource) { got = append(got, r.ResourceID()) })
	if len(got) != 2 || got[0] != 5 || got[1] != 6 {
		t.Errorf("Resources() = %v, want [5 6]", got)
	}
}

func TestPool_Clear(t *testing.T) {
	p := NewPool()
	p.AddState(DefaultState())
	p.AddBindings([]Binding{{}})
	p.Clear()
	if p.StateCount() != 0 || p.BindingsCount() != 0 {
		t.Errorf("after Clear: %d states, %d binding sets", p.StateCount(), p.BindingsCount())
	}
	if ref := p.AddState(DefaultState()); ref != 0 {
		t.Errorf("AddState after Clear = %d, want 0", ref)
	}
}
