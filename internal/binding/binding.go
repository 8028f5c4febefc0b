// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package binding keeps the resource sent to each named shader variable and
// resolves those names into binding slots for the active shader.
//
// Sends are kept by variable name, not by slot, so they survive a shader
// switch when the new shader declares the same name with the same category
// of resource. Any other declaration resets the slot: textures fall back to
// a default white texture, samplers to a default sampler, and buffers become
// unbound.
package binding

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/gfx/internal/reflection"
	"github.com/gogpu/gfx/recording"
)

var (
	// ErrTypeMismatch is matched by every *TypeMismatchError.
	ErrTypeMismatch = errors.New("gfx: resource does not match shader variable")

	// ErrUnboundVariable is returned by Resolve for a buffer variable that
	// nothing was sent to.
	ErrUnboundVariable = errors.New("gfx: shader variable has no resource")
)

// Names of the uniform blocks the encoder fills itself when nothing was sent.
const (
	CameraVariable = "camera"
	DrawVariable   = "draw"
)

// Class is the category of a resource as seen by Send, before a shader
// decides between uniform and storage or sampled and storage.
type Class uint8

const (
	ClassBuffer Class = iota + 1
	ClassTexture
	ClassSampler
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassBuffer:
		return "buffer"
	case ClassTexture:
		return "texture"
	case ClassSampler:
		return "sampler"
	default:
		return fmt.Sprintf("Class(%d)", uint8(c))
	}
}

// TypeMismatchError reports a resource sent to a variable of another kind.
type TypeMismatchError struct {
	Variable string
	Want     reflection.Kind
	Got      Class
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("gfx: cannot send a %s to %s variable %q", e.Got, e.Want, e.Variable)
}

// Is makes errors.Is(err, ErrTypeMismatch) match.
func (e *TypeMismatchError) Is(target error) bool { return target == ErrTypeMismatch }

// Kind maps a reflected variable kind to the binding kind it is encoded as.
func Kind(k reflection.Kind) (recording.BindingKind, bool) {
	switch k {
	case reflection.KindUniformBuffer:
		return recording.BindUniformBuffer, true
	case reflection.KindStorageBuffer:
		return recording.BindStorageBuffer, true
	case reflection.KindSampledTexture:
		return recording.BindSampledTexture, true
	case reflection.KindStorageTexture:
		return recording.BindStorageTexture, true
	case reflection.KindSampler:
		return recording.BindSampler, true
	default:
		return 0, false
	}
}

func classOf(k reflection.Kind) Class {
	switch {
	case k.IsBuffer():
		return ClassBuffer
	case k.IsTexture():
		return ClassTexture
	case k == reflection.KindSampler:
		return ClassSampler
	default:
		return 0
	}
}

// Defaults supplies the resources reset slots fall back to.
type Defaults struct {
	Texture recording.Resource // 1x1 white
	Sampler recording.Resource // linear filtering, repeat wrapping
}

type slot struct {
	class  Class
	kind   reflection.Kind // 0 until checked against a program
	res    recording.Resource
	offset uint64
	size   uint64
}

// Cache is the binding cache of one pass.
//
// Cache is not safe for concurrent use.
type Cache struct {
	slots   map[string]slot
	program *reflection.Program
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{slots: make(map[string]slot)}
}

// Program returns the active program, or nil before the first SetProgram.
func (c *Cache) Program() *reflection.Program {
	return c.program
}

// Send binds res to the variable name. offset and size select a buffer
// range; a size of 0 extends to the end of the buffer.
//
// With a program active the name must be declared and res must be of a
// matching class. Without one the send is kept and checked by the next
// SetProgram.
func (c *Cache) Send(name string, class Class, res recording.Resource, offset, size uint64) error {
	s := slot{class: class, res: res, offset: offset, size: size}
	if c.program != nil {
		v, ok := c.program.Variable(name)
		if !ok {
			return fmt.Errorf("%w: %q", reflection.ErrUnknownVariable, name)
		}
		if classOf(v.Kind) != class {
			return &TypeMismatchError{Variable: name, Want: v.Kind, Got: class}
		}
		s.kind = v.Kind
	}
	c.slots[name] = s
	return nil
}

// Bound reports whether a resource is currently sent to name.
func (c *Cache) Bound(name string) bool {
	s, ok := c.slots[name]
	return ok && s.res != nil
}

// SetProgram makes p the active program. Slots whose variable changed
// category are reset and their names returned.
func (c *Cache) SetProgram(p *reflection.Program) []string {
	c.program = p
	var reset []string
	for name, s := range c.slots {
		v, ok := p.Variable(name)
		if !ok || v.Kind == s.kind {
			continue
		}
		if s.kind == 0 && s.res != nil && classOf(v.Kind) == s.class {
			s.kind = v.Kind
			c.slots[name] = s
			continue
		}
		reset = append(reset, name)
		if v.Kind.IsBuffer() {
			delete(c.slots, name)
			continue
		}
		// A nil resource resolves to the default for the kind.
		c.slots[name] = slot{class: classOf(v.Kind), kind: v.Kind}
	}
	slices.Sort(reset)
	return reset
}

// Resolve returns the binding set of the active program ordered by group
// and slot. Textures and samplers nothing was sent to use defaults; uniform
// blocks named CameraVariable or DrawVariable are marked as builtins.
func (c *Cache) Resolve(defaults Defaults) ([]recording.Binding, error) {
	if c.program == nil {
		return nil, nil
	}
	out := make([]recording.Binding, 0, len(c.program.Variables))
	for _, v := range c.program.Variables {
		kind, ok := Kind(v.Kind)
		if !ok {
			continue
		}
		b := recording.Binding{Group: v.Group, Slot: v.Binding, Kind: kind}
		s, sent := c.slots[v.Name]
		switch {
		case sent && s.res != nil:
			b.Resource, b.Offset, b.Size = s.res, s.offset, s.size
		case v.Kind == reflection.KindUniformBuffer && v.Name == CameraVariable:
			b.Builtin = recording.BuiltinCamera
		case v.Kind == reflection.KindUniformBuffer && v.Name == DrawVariable:
			b.Builtin = recording.BuiltinDraw
		case v.Kind == reflection.KindSampledTexture:
			b.Resource = defaults.Texture
		case v.Kind == reflection.KindSampler:
			b.Resource = defaults.Sampler
		default:
			return nil, fmt.Errorf("%w: %s %q", ErrUnboundVariable, v.Kind, v.Name)
		}
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b recording.Binding) int {
		if a.Group != b.Group {
			return cmp.Compare(a.Group, b.Group)
		}
		return cmp.Compare(a.Slot, b.Slot)
	})
	return out, nil
}

// Reset clears every slot and the active program.
func (c *Cache) Reset() {
	clear(c.slots)
	c.program = nil
}

// Len returns the number of slots with a sent resource.
func (c *Cache) Len() int {
	n := 0
	for _, s := range c.slots {
		if s.res != nil {
			n++
		}
	}
	return n
}
