// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package restable tracks live GPU resources: the usage flags each buffer,
// texture and sampler was created with, and when it is safe to destroy them.
//
// Destruction is deferred. A released resource is destroyed only when no
// recorded pass still holds it and the GPU has completed every submission
// that referenced it.
//
// Table is safe for concurrent use.
package restable

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Table errors.
var (
	// ErrUsage is matched by every *UsageError.
	ErrUsage = errors.New("gfx: resource lacks required usage")

	// ErrReleased is returned when a released resource is used.
	ErrReleased = errors.New("gfx: resource was released")

	// ErrUnknown is returned for IDs the table never issued.
	ErrUnknown = errors.New("gfx: unknown resource")

	// ErrClosed is returned when registering into a closed table.
	ErrClosed = errors.New("gfx: resource table closed")
)

// ID identifies a registered resource. The zero ID is never issued.
type ID uint64

// Kind is the resource category.
type Kind uint8

const (
	KindBuffer Kind = iota + 1
	KindTexture
	KindSampler
	KindShader
	KindQuerySet
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindBuffer:
		return "buffer"
	case KindTexture:
		return "texture"
	case KindSampler:
		return "sampler"
	case KindShader:
		return "shader"
	case KindQuerySet:
		return "query set"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Usage is a set of usage flags. Buffer and texture flags share one space so
// that a single check covers both; storage and transfer apply to either.
type Usage uint32

const (
	UsageVertex Usage = 1 << iota
	UsageIndex
	UsageUniform
	UsageStorage
	UsageIndirect
	UsageTransfer
	UsageSample
	UsageRender
)

var usageNames = []struct {
	u    Usage
	name string
}{
	{UsageVertex, "vertex"},
	{UsageIndex, "index"},
	{UsageUniform, "uniform"},
	{UsageStorage, "storage"},
	{UsageIndirect, "indirect"},
	{UsageTransfer, "transfer"},
	{UsageSample, "sample"},
	{UsageRender, "render"},
}

// String returns the flags joined by '|', or "none".
func (u Usage) String() string {
	var parts []string
	for _, n := range usageNames {
		if u&n.u != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// UsageError reports an operation that needs a usage flag the resource was
// not created with.
type UsageError struct {
	Kind     Kind
	Label    string
	Required Usage
	Actual   Usage
}

func (e *UsageError) Error() string {
	name := e.Kind.String()
	if e.Label != "" {
		name += fmt.Sprintf(" %q", e.Label)
	}
	return fmt.Sprintf("gfx: %s needs %s usage, created with %s", name, e.Required&^e.Actual, e.Actual)
}

// Is makes errors.Is(err, ErrUsage) match.
func (e *UsageError) Is(target error) bool { return target == ErrUsage }

// Stats is a snapshot of table occupancy.
type Stats struct {
	Live      int    // registered and not released
	Pending   int    // released, waiting for the GPU
	Destroyed uint64 // total destroy callbacks run
	Bytes     uint64 // size of live and pending resources
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Resources[%d live, %d pending, %d destroyed, %d KB]",
		s.Live, s.Pending, s.Destroyed, s.Bytes/1024)
}

type entry struct {
	kind     Kind
	usage    Usage
	label    string
	size     uint64
	destroy  func()
	released bool
	holds    int    // recorded passes still referencing the entry
	lastUse  uint64 // last submission index that referenced the entry
}

func (e *entry) idle(completed uint64) bool {
	return e.holds == 0 && e.lastUse <= completed
}

// Table is the resource table of one device.
type Table struct {
	mu        sync.Mutex
	next      ID
	entries   map[ID]*entry
	completed uint64
	destroyed uint64
	closed    bool
}

// New returns an empty table.
func New() *Table {
	return &Table{entries: make(map[ID]*entry)}
}

// Register adds a resource and returns its ID. destroy is run exactly once,
// when the resource is released and idle or when the table is destroyed.
func (t *Table) Register(kind Kind, usage Usage, label string, size uint64, destroy func()) (ID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrClosed
	}
	t.next++
	t.entries[t.next] = &entry{kind: kind, usage: usage, label: label, size: size, destroy: destroy}
	return t.next, nil
}

// CheckUsage reports whether the resource has every flag in required.
func (t *Table) CheckUsage(id ID, required Usage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.liveLocked(id)
	if err != nil {
		return err
	}
	if e.usage&required != required {
		return &UsageError{Kind: e.kind, Label: e.label, Required: required, Actual: e.usage}
	}
	return nil
}

// Usage returns the flags the resource was registered with.
func (t *Table) Usage(id ID) (Usage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return 0, false
	}
	return e.usage, true
}

// Hold records that a pass references the resource. Every Hold is paired
// with a Drop once the pass is reset or discarded.
func (t *Table) Hold(id ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.liveLocked(id)
	if err != nil {
		return err
	}
	e.holds++
	return nil
}

// Drop undoes one Hold and destroys the resource if it was released and is
// now idle.
func (t *Table) Drop(id ID) {
	t.mu.Lock()
	e, ok := t.entries[id]
	if !ok || e.holds == 0 {
		t.mu.Unlock()
		return
	}
	e.holds--
	destroy := t.reapLocked(id, e)
	t.mu.Unlock()
	run(destroy)
}

// Reference stamps the resource with the index of a submission using it.
func (t *Table) Reference(id ID, submission uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[id]; ok && submission > e.lastUse {
		e.lastUse = submission
	}
}

// Release marks the resource released. It is destroyed immediately when
// idle, otherwise by a later Drop or Collect. Releasing twice is a no-op.
func (t *Table) Release(id ID) {
	t.mu.Lock()
	e, ok := t.entries[id]
	if !ok || e.released {
		t.mu.Unlock()
		return
	}
	e.released = true
	destroy := t.reapLocked(id, e)
	t.mu.Unlock()
	run(destroy)
}

// Collect records that the GPU completed every submission up to completed
// and destroys released resources that became idle. It returns the number
// of resources destroyed.
func (t *Table) Collect(completed uint64) int {
	t.mu.Lock()
	if completed > t.completed {
		t.completed = completed
	}
	var fns []func()
	for id, e := range t.entries {
		if !e.released {
			continue
		}
		if fn := t.reapLocked(id, e); fn != nil {
			fns = append(fns, fn)
		}
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// DestroyAll destroys every resource regardless of state and closes the
// table. Called when the device is closed after the GPU is idle.
func (t *Table) DestroyAll() int {
	t.mu.Lock()
	fns := make([]func(), 0, len(t.entries))
	for id, e := range t.entries {
		if e.destroy != nil {
			fns = append(fns, e.destroy)
		}
		delete(t.entries, id)
	}
	t.destroyed += uint64(len(fns))
	t.closed = true
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// Stats returns a snapshot of the table.
func (t *Table) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Stats{Destroyed: t.destroyed}
	for _, e := range t.entries {
		if e.released {
			s.Pending++
		} else {
			s.Live++
		}
		s.Bytes += e.size
	}
	return s
}

func (t *Table) liveLocked(id ID) (*entry, error) {
	e, ok := t.entries[id]
	if !ok {
		// IDs are issued in sequence and only leave the map once released
		// and destroyed.
		if id != 0 && id <= t.next {
			return nil, fmt.Errorf("%w: id %d was destroyed", ErrReleased, id)
		}
		return nil, fmt.Errorf("%w: id %d", ErrUnknown, id)
	}
	if e.released {
		return nil, fmt.Errorf("%w: %s %q", ErrReleased, e.kind, e.label)
	}
	return e, nil
}

// reapLocked removes a released idle entry and returns its destroy func.
func (t *Table) reapLocked(id ID, e *entry) func() {
	if !e.released || !e.idle(t.completed) {
		return nil
	}
	delete(t.entries, id)
	t.destroyed++
	if e.destroy == nil {
		return func() {}
	}
	return e.destroy
}

func run(fn func()) {
	if fn != nil {
		fn()
	}
}
