package recording

import "slices"

// Pool stores the render states and binding sets referenced by commands.
// Draws recorded with unchanged state share one pooled entry, so a List of
// many draws holds only as many states as there were state changes.
//
// Pool is not safe for concurrent use.
type Pool struct {
	states     []State
	stateIndex map[State]StateRef
	bindings   [][]Binding
}

// NewPool creates an empty pool with pre-allocated capacity.
func NewPool() *Pool {
	return &Pool{
		states:     make([]State, 0, 16),
		stateIndex: make(map[State]StateRef, 16),
		bindings:   make([][]Binding, 0, 32),
	}
}

// AddState interns s and returns its reference.
func (p *Pool) AddState(s State) StateRef {
	if ref, ok := p.stateIndex[s]; ok {
		return ref
	}
	p.states = append(p.states, s)
	// #nosec G115 -- pool size is bounded by recorded commands, well under uint32 max
	ref := StateRef(uint32(len(p.states) - 1))
	p.stateIndex[s] = ref
	return ref
}

// State returns the state for ref, or the zero State if ref is invalid.
func (p *Pool) State(ref StateRef) State {
	if int(ref) >= len(p.states) {
		return State{}
	}
	return p.states[ref]
}

// StateCount returns the number of distinct states in the pool.
func (p *Pool) StateCount() int {
	return len(p.states)
}

// AddBindings stores a copy of set and returns its reference. A set equal to
// the most recently added one reuses that entry.
func (p *Pool) AddBindings(set []Binding) BindingsRef {
	if n := len(p.bindings); n > 0 && slices.Equal(p.bindings[n-1], set) {
		// #nosec G115 -- pool size is bounded by recorded commands, well under uint32 max
		return BindingsRef(uint32(n - 1))
	}
	p.bindings = append(p.bindings, slices.Clone(set))
	// #nosec G115 -- pool size is bounded by recorded commands, well under uint32 max
	return BindingsRef(uint32(len(p.bindings) - 1))
}

// Bindings returns the binding set for ref, or nil if ref is invalid.
// The returned slice must not be modified.
func (p *Pool) Bindings(ref BindingsRef) []Binding {
	if int(ref) >= len(p.bindings) {
		return nil
	}
	return p.bindings[ref]
}

// BindingsCount returns the number of binding sets in the pool.
func (p *Pool) BindingsCount() int {
	return len(p.bindings)
}

// Resources calls fn for every resource referenced by a pooled state or
// binding set. A resource may be reported more than once.
func (p *Pool) Resources(fn func(Resource)) {
	for i := range p.states {
		if r := p.states[i].Pipeline.Shader; r != nil {
			fn(r)
		}
	}
	for _, set := range p.bindings {
		for i := range set {
			if set[i].Resource != nil {
				fn(set[i].Resource)
			}
		}
	}
}

// Clear removes all entries from the pool.
// This does not release the underlying memory; use NewPool for that.
func (p *Pool) Clear() {
	p.states = p.states[:0]
	clear(p.stateIndex)
	p.bindings = p.bindings[:0]
}
