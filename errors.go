package gfx

import (
	"errors"
	"fmt"

	"github.com/gogpu/gfx/internal/binding"
	"github.com/gogpu/gfx/internal/reflection"
	"github.com/gogpu/gfx/internal/restable"
)

// Validation errors. Every failing recording call returns one of these
// (possibly wrapped) and records nothing.
var (
	// ErrWrongPassType is returned for an operation the pass type does not allow.
	ErrWrongPassType = errors.New("gfx: operation not allowed for pass type")

	// ErrPassSubmitted is returned when recording into a submitted pass before Reset.
	ErrPassSubmitted = errors.New("gfx: pass was submitted and must be reset")

	// ErrNoCanvas is returned when drawing into a render pass without a canvas.
	ErrNoCanvas = errors.New("gfx: render pass has no canvas")

	// ErrCanvasMismatch is returned when canvas textures disagree on size,
	// layer count or sample count.
	ErrCanvasMismatch = errors.New("gfx: canvas textures do not match")

	// ErrNoShader is returned when drawing or dispatching without a shader.
	ErrNoShader = errors.New("gfx: no shader is active")

	// ErrShaderType is returned when a compute shader is used for drawing or
	// a graphics shader for dispatching.
	ErrShaderType = errors.New("gfx: shader type does not match pass")

	// ErrMissingAttribute is returned when a vertex buffer has no field for a
	// shader input.
	ErrMissingAttribute = errors.New("gfx: vertex buffer lacks shader attribute")

	// ErrUnsupported is returned for features the device cannot provide.
	ErrUnsupported = errors.New("gfx: unsupported")

	// ErrTallyActive is returned by BeginTally while a tally is open.
	ErrTallyActive = errors.New("gfx: tally already active")

	// ErrNoTallyActive is returned by FinishTally without an open tally.
	ErrNoTallyActive = errors.New("gfx: no tally active")

	// ErrTallyLimit is returned when a pass runs out of tally slots.
	ErrTallyLimit = errors.New("gfx: too many tallies")

	// ErrOutOfRange is returned for regions outside a buffer or texture and
	// for dispatch sizes over the device limits.
	ErrOutOfRange = errors.New("gfx: out of range")

	// ErrViewCountMismatch is reported at submission when the camera has
	// more views configured than the canvas has layers.
	ErrViewCountMismatch = errors.New("gfx: camera views exceed canvas layers")

	// ErrStackOverflow is matched by a *StackError on Push.
	ErrStackOverflow = errors.New("gfx: stack overflow")

	// ErrStackUnderflow is matched by a *StackError on Pop.
	ErrStackUnderflow = errors.New("gfx: stack underflow")

	// ErrDeviceClosed is returned when creating resources on a closed device.
	ErrDeviceClosed = errors.New("gfx: device closed")

	// ErrNoAdapter is returned by Open when the backend exposes no adapter.
	ErrNoAdapter = errors.New("gfx: no GPU adapter")

	// ErrReadbackPending is returned by Readback.Data before the submission
	// that fills it has completed.
	ErrReadbackPending = errors.New("gfx: readback not complete")

	// ErrInvalidArgument is returned for malformed options.
	ErrInvalidArgument = errors.New("gfx: invalid argument")
)

// Errors shared with the internal packages.
var (
	ErrUsage            = restable.ErrUsage
	ErrReleased         = restable.ErrReleased
	ErrTypeMismatch     = binding.ErrTypeMismatch
	ErrUnboundVariable  = binding.ErrUnboundVariable
	ErrUnknownVariable  = reflection.ErrUnknownVariable
	ErrNotBuffer        = reflection.ErrNotBuffer
	ErrConflictingBinds = reflection.ErrConflictingBinding
)

// UsageError reports a resource used in a way its usage flags do not allow.
type UsageError = restable.UsageError

// TypeMismatchError reports a resource sent to a shader variable of another
// kind.
type TypeMismatchError = binding.TypeMismatchError

// StackError reports a Push past the stack capacity or a Pop with nothing
// pushed.
type StackError struct {
	Stack    StackType
	Overflow bool
	Depth    int
}

func (e *StackError) Error() string {
	if e.Overflow {
		return fmt.Sprintf("gfx: %s stack overflow (depth %d)", e.Stack, e.Depth)
	}
	return fmt.Sprintf("gfx: %s stack underflow", e.Stack)
}

// Is makes errors.Is match ErrStackOverflow or ErrStackUnderflow.
func (e *StackError) Is(target error) bool {
	if e.Overflow {
		return target == ErrStackOverflow
	}
	return target == ErrStackUnderflow
}
