package gfx

import (
	"fmt"

	"github.com/gogpu/gfx/internal/restable"
	"github.com/gogpu/gfx/recording"
)

// Compute records a dispatch of x*y*z workgroups of the active compute
// shader. Dispatches recorded without a Barrier between them may run
// concurrently.
func (p *Pass) Compute(x, y, z uint32) error {
	if err := p.checkRecord("compute", PassCompute); err != nil {
		return err
	}
	lim := p.device.limits
	if x == 0 || y == 0 || z == 0 {
		return fmt.Errorf("%w: dispatch %dx%dx%d", ErrInvalidArgument, x, y, z)
	}
	if n := lim.MaxComputeWorkgroupsPerDimension; n > 0 && max(x, y, z) > n {
		return fmt.Errorf("%w: dispatch %dx%dx%d exceeds %d workgroups per dimension", ErrOutOfRange, x, y, z, n)
	}
	cmd, err := p.dispatchCommand()
	if err != nil {
		return err
	}
	cmd.X, cmd.Y, cmd.Z = x, y, z
	return p.record(cmd)
}

// ComputeIndirect records a dispatch whose workgroup counts are read from
// three uint32 values in buf at offset when the pass executes.
func (p *Pass) ComputeIndirect(buf *Buffer, offset uint64) error {
	if err := p.checkRecord("compute indirect", PassCompute); err != nil {
		return err
	}
	if buf == nil {
		return fmt.Errorf("%w: nil argument buffer", ErrInvalidArgument)
	}
	if err := p.device.table.CheckUsage(buf.id, restable.UsageIndirect); err != nil {
		return err
	}
	if offset%4 != 0 {
		return fmt.Errorf("%w: indirect offset %d is not a multiple of 4", ErrInvalidArgument, offset)
	}
	if _, err := buf.checkRange(offset, dispatchIndirectSize); err != nil {
		return err
	}
	cmd, err := p.dispatchCommand()
	if err != nil {
		return err
	}
	cmd.Indirect, cmd.IndirectOffset = buf, offset
	return p.record(cmd, buf)
}

func (p *Pass) dispatchCommand() (recording.DispatchCommand, error) {
	var cmd recording.DispatchCommand
	if p.shader == nil {
		return cmd, ErrNoShader
	}
	if err := p.checkWorkgroup(p.shader.program.Workgroup); err != nil {
		return cmd, err
	}
	bindings, err := p.resolveBindings(p.material)
	if err != nil {
		return cmd, err
	}
	var state recording.State
	state.Pipeline.Shader = p.shader
	cmd.State = p.list.Pool().AddState(state)
	cmd.Bindings = bindings
	return cmd, nil
}

func (p *Pass) checkWorkgroup(size [3]uint32) error {
	lim := p.device.limits
	for i, n := range [...]uint32{lim.MaxComputeWorkgroupSizeX, lim.MaxComputeWorkgroupSizeY, lim.MaxComputeWorkgroupSizeZ} {
		if n > 0 && size[i] > n {
			return fmt.Errorf("%w: workgroup size %v exceeds %d in dimension %d", ErrOutOfRange, size, n, i)
		}
	}
	volume := uint64(size[0]) * uint64(size[1]) * uint64(size[2])
	if n := lim.MaxComputeInvocationsPerWorkgroup; n > 0 && volume > uint64(n) {
		return fmt.Errorf("%w: workgroup of %d invocations exceeds %d", ErrOutOfRange, volume, n)
	}
	return nil
}

// Barrier makes the writes of every dispatch recorded before it visible to
// every dispatch recorded after it. Barriers with no dispatch on one side
// are dropped.
func (p *Pass) Barrier() error {
	if err := p.checkRecord("barrier", PassCompute); err != nil {
		return err
	}
	p.list.Append(recording.BarrierCommand{})
	return nil
}
