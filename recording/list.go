package recording

import (
	"fmt"
	"strings"
)

// List is an ordered command list together with the pool its commands
// reference. Commands are appended in record order and replayed in the same
// order by Playback.
//
// List is not safe for concurrent use.
type List struct {
	commands []Command
	pool     *Pool
}

// NewList creates an empty list.
func NewList() *List {
	return &List{
		commands: make([]Command, 0, 64),
		pool:     NewPool(),
	}
}

// Pool returns the list's state pool.
func (l *List) Pool() *Pool {
	return l.pool
}

// Append adds a command to the end of the list.
func (l *List) Append(cmd Command) {
	l.commands = append(l.commands, cmd)
}

// Len returns the number of recorded commands.
func (l *List) Len() int {
	return len(l.commands)
}

// Commands returns the recorded commands. The slice must not be modified.
func (l *List) Commands() []Command {
	return l.commands
}

// Last returns the most recent command, or nil for an empty list.
func (l *List) Last() Command {
	if len(l.commands) == 0 {
		return nil
	}
	return l.commands[len(l.commands)-1]
}

// Reset removes every command and pooled entry, keeping allocated memory.
func (l *List) Reset() {
	clear(l.commands)
	l.commands = l.commands[:0]
	l.pool.Clear()
}

// Resources calls fn for every resource the list references, through its
// commands or its pool. A resource may be reported more than once.
func (l *List) Resources(fn func(Resource)) {
	for _, cmd := range l.commands {
		commandResources(cmd, fn)
	}
	l.pool.Resources(fn)
}

// Playback replays the list to the given backend.
//
// Barriers are only forwarded when they separate two dispatches: a barrier
// before the first dispatch or after the last is dropped, and consecutive
// barriers collapse into one.
func (l *List) Playback(backend Backend) error {
	if err := backend.Begin(); err != nil {
		return err
	}

	var dispatched, pending bool
	for i, cmd := range l.commands {
		var err error
		switch c := cmd.(type) {
		case DrawCommand:
			err = backend.Draw(c, l.pool.State(c.State), l.pool.Bindings(c.Bindings))
		case BeginTallyCommand:
			err = backend.BeginTally(c.Index)
		case FinishTallyCommand:
			err = backend.FinishTally(c.Index)
		case DispatchCommand:
			if pending {
				if err = backend.Barrier(); err != nil {
					break
				}
				pending = false
			}
			dispatched = true
			err = backend.Dispatch(c, l.pool.State(c.State).Pipeline, l.pool.Bindings(c.Bindings))
		case BarrierCommand:
			if dispatched {
				pending, dispatched = true, false
			}
		case ClearBufferCommand:
			err = backend.ClearBuffer(c)
		case ClearTextureCommand:
			err = backend.ClearTexture(c)
		case CopyBufferCommand:
			err = backend.CopyBuffer(c)
		case CopyBufferToTextureCommand:
			err = backend.CopyBufferToTexture(c)
		case CopyTextureToBufferCommand:
			err = backend.CopyTextureToBuffer(c)
		case CopyTextureCommand:
			err = backend.CopyTexture(c)
		case BlitCommand:
			err = backend.Blit(c)
		case MipmapCommand:
			err = backend.Mipmap(c)
		}
		if err != nil {
			return fmt.Errorf("recording: command %d (%s): %w", i, cmd.Type(), err)
		}
	}

	return backend.End()
}

// Stats summarizes a list.
type Stats struct {
	Draws            int
	Dispatches       int
	Barriers         int // barriers that will reach the backend
	Transfers        int
	Tallies          int
	PipelineSwitches int // changes of pipeline state between consecutive draws or dispatches
	States           int
	BindingSets      int
}

// String returns a human-readable summary.
func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "List[%d draws, %d dispatches, %d barriers, %d transfers",
		s.Draws, s.Dispatches, s.Barriers, s.Transfers)
	if s.Tallies > 0 {
		fmt.Fprintf(&b, ", %d tallies", s.Tallies)
	}
	fmt.Fprintf(&b, ", %d pipeline switches]", s.PipelineSwitches)
	return b.String()
}

// Stats counts the list's commands.
func (l *List) Stats() Stats {
	s := Stats{States: l.pool.StateCount(), BindingSets: l.pool.BindingsCount()}
	prev := StateRef(InvalidRef)
	var dispatched, pending bool
	switchTo := func(ref StateRef) {
		if !prev.IsValid() || l.pool.State(prev).Pipeline != l.pool.State(ref).Pipeline {
			s.PipelineSwitches++
		}
		prev = ref
	}
	for _, cmd := range l.commands {
		switch c := cmd.(type) {
		case DrawCommand:
			s.Draws++
			switchTo(c.State)
		case DispatchCommand:
			if pending {
				s.Barriers++
				pending = false
			}
			dispatched = true
			s.Dispatches++
			switchTo(c.State)
		case BarrierCommand:
			if dispatched {
				pending, dispatched = true, false
			}
		case BeginTallyCommand:
			s.Tallies++
		default:
			if cmd.Type().IsTransfer() {
				s.Transfers++
			}
		}
	}
	return s
}

func commandResources(cmd Command, fn func(Resource)) {
	visit := func(rs ...Resource) {
		for _, r := range rs {
			if r != nil {
				fn(r)
			}
		}
	}
	switch c := cmd.(type) {
	case DrawCommand:
		visit(c.Vertices, c.Indices, c.Indirect)
	case DispatchCommand:
		visit(c.Indirect)
	case ClearBufferCommand:
		visit(c.Buffer)
	case ClearTextureCommand:
		visit(c.Texture)
	case CopyBufferCommand:
		visit(c.Src, c.Dst)
	case CopyBufferToTextureCommand:
		visit(c.Src, c.Dst.Texture)
	case CopyTextureToBufferCommand:
		visit(c.Src.Texture, c.Dst)
	case CopyTextureCommand:
		visit(c.Src.Texture, c.Dst.Texture)
	case BlitCommand:
		visit(c.Src.Texture, c.Dst.Texture)
	case MipmapCommand:
		visit(c.Texture)
	}
}
