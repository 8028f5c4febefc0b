package recording

import "io"

// Backend is the interface that all playback backends must implement.
// Backends receive commands with their state and bindings already resolved
// from the pool and translate them to their output: hal command encoders,
// text traces, test spies.
//
// Backends that can be constructed without arguments register a factory
// with Register in their init() functions and are created via NewBackend.
//
// # Implementation Contract
//
// Each backend must:
//  1. Handle all Backend methods (even if no-op for some)
//  2. Treat the state and binding slices as read-only
//  3. Return an error rather than panic on commands it cannot execute
//
// # Example Backend Registration
//
//	func init() {
//	    recording.Register("trace", func() recording.Backend {
//	        return trace.NewBackend()
//	    })
//	}
type Backend interface {
	// Lifecycle methods

	// Begin prepares the backend for one playback of a list.
	Begin() error

	// End finishes the playback. Output is only complete after End.
	End() error

	// Render methods

	// Draw draws with the render state and bindings captured at record time.
	Draw(cmd DrawCommand, state State, bindings []Binding) error

	// BeginTally starts occlusion query index.
	BeginTally(index uint32) error

	// FinishTally ends occlusion query index.
	FinishTally(index uint32) error

	// Compute methods

	// Dispatch runs a compute shader with the captured pipeline state.
	Dispatch(cmd DispatchCommand, state PipelineState, bindings []Binding) error

	// Barrier makes all prior dispatches visible to all later ones.
	Barrier() error

	// Transfer methods

	ClearBuffer(cmd ClearBufferCommand) error
	ClearTexture(cmd ClearTextureCommand) error
	CopyBuffer(cmd CopyBufferCommand) error
	CopyBufferToTexture(cmd CopyBufferToTextureCommand) error
	CopyTextureToBuffer(cmd CopyTextureToBufferCommand) error
	CopyTexture(cmd CopyTextureCommand) error
	Blit(cmd BlitCommand) error
	Mipmap(cmd MipmapCommand) error
}

// WriterBackend extends Backend with the ability to write output to an io.Writer.
type WriterBackend interface {
	Backend

	// WriteTo writes the output to the given writer.
	// This should only be called after End().
	WriteTo(w io.Writer) (int64, error)
}

// FileBackend extends Backend with the ability to save output directly to a file.
type FileBackend interface {
	Backend

	// SaveToFile saves the output to a file at the given path.
	// This should only be called after End().
	SaveToFile(path string) error
}
