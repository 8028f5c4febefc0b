// Package recording provides the GPU command vocabulary recorded by gfx
// passes and a playback mechanism that replays it into a backend.
//
// # Architecture
//
// The system follows a Command Pattern with three main components:
//
//   - Command: typed structs for draws, dispatches, barriers, tallies and
//     transfer operations
//   - List: an ordered command list plus a Pool of interned render states
//     and binding sets
//   - Backend: executes commands on a specific target
//
// A draw does not reference mutable pass state. Everything it depends on
// (pipeline state, viewport, scissor, resolved bindings, transform and
// color) is captured when the draw is recorded, so later state changes never
// affect it.
//
// # Playback
//
//	list := recording.NewList()
//	ref := list.Pool().AddState(recording.DefaultState())
//	list.Append(recording.DrawCommand{State: ref, Count: 3, Instances: 1})
//
//	backend, _ := recording.NewBackend("trace")
//	if err := list.Playback(backend); err != nil {
//	    // the failing command index is part of the error
//	}
//	backend.(recording.WriterBackend).WriteTo(os.Stdout)
//
// Multiview rendering plays the same list once per view; the backend
// selects the target layer and camera between playbacks.
//
// # Barriers
//
// Dispatches in one list are unordered unless separated by a BarrierCommand.
// Playback forwards a barrier only when it separates two dispatches.
//
// # Backend Registration
//
// Backends that need no constructor arguments register using the
// database/sql driver pattern. Import a backend package with a blank
// identifier to automatically register it:
//
//	import _ "github.com/gogpu/gfx/recording/backends/trace"
//
// # Thread Safety
//
// List and Pool are NOT safe for concurrent use. The registry is.
package recording
