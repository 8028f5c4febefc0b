// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package pipeline caches the hal render and compute pipelines a device
// builds from recorded pipeline state.
package pipeline

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/fnv"
	"maps"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gfx/recording"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Pipeline cache errors.
var (
	// ErrNilDevice is returned when creating a cache without a device.
	ErrNilDevice = errors.New("pipeline: hal device is nil")

	// ErrNilDescriptor is returned when getting a pipeline with a nil descriptor.
	ErrNilDescriptor = errors.New("pipeline: descriptor is nil")

	// ErrNilShader is returned when a descriptor has no shader module.
	ErrNilShader = errors.New("pipeline: shader module is nil")
)

// RenderDescriptor is everything a render pipeline is built from.
type RenderDescriptor struct {
	Label string

	// Shader identifies the owning shader. Pipelines are evicted per shader.
	Shader uint64
	Module hal.ShaderModule
	Layout hal.PipelineLayout

	// FragmentModule defaults to Module.
	FragmentModule hal.ShaderModule

	VertexEntry   string
	FragmentEntry string
	Buffers       []gputypes.VertexBufferLayout

	// State.Shader is ignored; Shader keys the module.
	State recording.PipelineState

	ColorFormats []gputypes.TextureFormat
	DepthFormat  gputypes.TextureFormat // Undefined for no depth attachment
	SampleCount  uint32

	// StripIndexFormat is set for indexed draws of strip topologies.
	StripIndexFormat gputypes.IndexFormat
}

// ComputeDescriptor is everything a compute pipeline is built from.
type ComputeDescriptor struct {
	Label string

	Shader     uint64
	Module     hal.ShaderModule
	Layout     hal.PipelineLayout
	EntryPoint string

	// Constants overrides pipeline-overridable constants by name.
	Constants map[string]float64
}

type renderEntry struct {
	shader   uint64
	pipeline hal.RenderPipeline
}

type computeEntry struct {
	shader   uint64
	pipeline hal.ComputePipeline
}

// Cache caches compiled render and compute pipelines.
//
// Pipeline creation is expensive because it involves shader compilation and
// validation. Pipelines are indexed by an FNV-1a hash of their descriptor.
//
// Cache is safe for concurrent use. It uses RWMutex with double-check
// locking for efficient reads and safe writes.
type Cache struct {
	device hal.Device

	mu      sync.RWMutex
	render  map[uint64]renderEntry
	compute map[uint64]computeEntry

	// hits and misses are read without the lock.
	hits   uint64
	misses uint64
}

// New creates an empty cache that builds pipelines on device.
func New(device hal.Device) (*Cache, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	return &Cache{
		device:  device,
		render:  make(map[uint64]renderEntry),
		compute: make(map[uint64]computeEntry),
	}, nil
}

// Render returns a cached render pipeline for desc or creates one.
//
// Lookup uses double-check locking:
//  1. Fast path: RLock, check cache, return if found
//  2. Slow path: Lock, double-check, create if needed
//
//nolint:dupl // same double-check locking for render and compute pipelines
func (c *Cache) Render(desc *RenderDescriptor) (hal.RenderPipeline, error) {
	if desc == nil {
		return nil, ErrNilDescriptor
	}
	if desc.Module == nil {
		return nil, ErrNilShader
	}

	key := HashRender(desc)

	c.mu.RLock()
	if e, ok := c.render[key]; ok {
		c.mu.RUnlock()
		atomic.AddUint64(&c.hits, 1)
		return e.pipeline, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.render[key]; ok {
		atomic.AddUint64(&c.hits, 1)
		return e.pipeline, nil
	}

	p, err := c.device.CreateRenderPipeline(renderPipelineDescriptor(desc))
	if err != nil {
		return nil, fmt.Errorf("pipeline: create render pipeline %q: %w", desc.Label, err)
	}
	c.render[key] = renderEntry{shader: desc.Shader, pipeline: p}
	atomic.AddUint64(&c.misses, 1)

	slogger().Debug("pipeline: render pipeline created",
		"label", desc.Label, "shader", desc.Shader, "targets", len(desc.ColorFormats),
		"depth", desc.DepthFormat, "samples", desc.SampleCount)
	return p, nil
}

// Compute returns a cached compute pipeline for desc or creates one.
//
//nolint:dupl // same double-check locking for render and compute pipelines
func (c *Cache) Compute(desc *ComputeDescriptor) (hal.ComputePipeline, error) {
	if desc == nil {
		return nil, ErrNilDescriptor
	}
	if desc.Module == nil {
		return nil, ErrNilShader
	}

	key := HashCompute(desc)

	c.mu.RLock()
	if e, ok := c.compute[key]; ok {
		c.mu.RUnlock()
		atomic.AddUint64(&c.hits, 1)
		return e.pipeline, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.compute[key]; ok {
		atomic.AddUint64(&c.hits, 1)
		return e.pipeline, nil
	}

	p, err := c.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: desc.Layout,
		Compute: hal.ComputeState{
			Module:     desc.Module,
			EntryPoint: desc.EntryPoint,
			Constants:  desc.Constants,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: create compute pipeline %q: %w", desc.Label, err)
	}
	c.compute[key] = computeEntry{shader: desc.Shader, pipeline: p}
	atomic.AddUint64(&c.misses, 1)

	slogger().Debug("pipeline: compute pipeline created", "label", desc.Label, "shader", desc.Shader)
	return p, nil
}

// Stats returns the number of cache hits and misses.
// These values are read atomically and may not be perfectly synchronized.
func (c *Cache) Stats() (hits, misses uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses)
}

// HitRate returns the hit rate between 0 and 1, or 0 before any lookup.
func (c *Cache) HitRate() float64 {
	hits, misses := c.Stats()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

// Size returns the total number of cached pipelines.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.render) + len(c.compute)
}

// Evict destroys every pipeline built from shader and returns how many were
// removed.
func (c *Cache) Evict(shader uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, e := range c.render {
		if e.shader == shader {
			c.device.DestroyRenderPipeline(e.pipeline)
			delete(c.render, key)
			n++
		}
	}
	for key, e := range c.compute {
		if e.shader == shader {
			c.device.DestroyComputePipeline(e.pipeline)
			delete(c.compute, key)
			n++
		}
	}
	if n > 0 {
		slogger().Debug("pipeline: evicted", "shader", shader, "count", n)
	}
	return n
}

// DestroyAll destroys all cached pipelines and resets statistics.
// The cache stays usable afterwards.
func (c *Cache) DestroyAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.render {
		c.device.DestroyRenderPipeline(e.pipeline)
	}
	for _, e := range c.compute {
		c.device.DestroyComputePipeline(e.pipeline)
	}
	clear(c.render)
	clear(c.compute)
	atomic.StoreUint64(&c.hits, 0)
	atomic.StoreUint64(&c.misses, 0)
}

// HashRender computes an FNV-1a hash over every field of desc that changes
// the pipeline object. Labels, layouts and modules are covered by Shader.
func HashRender(desc *RenderDescriptor) uint64 {
	h := fnv.New64a()

	hashWriteUint64(h, desc.Shader)
	hashWriteString(h, desc.VertexEntry)
	hashWriteString(h, desc.FragmentEntry)

	//nolint:gosec // G115: vertex buffer count is bounded by GPU limits (< 16)
	hashWriteUint32(h, uint32(len(desc.Buffers)))
	for i := range desc.Buffers {
		b := &desc.Buffers[i]
		hashWriteUint64(h, b.ArrayStride)
		hashWriteUint32(h, uint32(b.StepMode))
		//nolint:gosec // G115: attribute count is bounded by GPU limits (< 32)
		hashWriteUint32(h, uint32(len(b.Attributes)))
		for j := range b.Attributes {
			a := &b.Attributes[j]
			hashWriteUint32(h, a.ShaderLocation)
			hashWriteUint32(h, uint32(a.Format))
			hashWriteUint64(h, a.Offset)
		}
	}

	s := &desc.State
	hashWriteUint32(h, uint32(s.Topology))
	hashWriteUint32(h, uint32(s.CullMode))
	hashWriteUint32(h, uint32(s.FrontFace))
	hashWriteUint32(h, uint32(s.DepthCompare))
	hashWriteBool(h, s.DepthWrite)
	hashWriteUint32(h, uint32(s.DepthBias)) //nolint:gosec // bit pattern only
	hashWriteUint32(h, math.Float32bits(s.DepthSlope))
	hashWriteBool(h, s.DepthClamp)
	hashWriteUint32(h, uint32(s.StencilCompare))
	hashWriteUint32(h, uint32(s.StencilFail)<<16|uint32(s.StencilDepthFail)<<8|uint32(s.StencilPass))
	hashWriteUint32(h, s.StencilReadMask)
	hashWriteUint32(h, s.StencilWriteMask)
	hashWriteBool(h, s.AlphaToCoverage)

	//nolint:gosec // G115: at most recording.MaxColorTargets
	hashWriteUint32(h, uint32(len(desc.ColorFormats)))
	for i, f := range desc.ColorFormats {
		hashWriteUint32(h, uint32(f))
		if i < recording.MaxColorTargets {
			hashWriteUint32(h, uint32(s.Blend[i]))
			hashWriteUint32(h, uint32(s.AlphaMode[i]))
			hashWriteUint32(h, uint32(s.ColorWrite[i]))
		}
	}
	hashWriteUint32(h, uint32(desc.DepthFormat))
	hashWriteUint32(h, desc.SampleCount)
	hashWriteUint32(h, uint32(desc.StripIndexFormat))

	return h.Sum64()
}

// HashCompute computes an FNV-1a hash for a compute pipeline descriptor.
func HashCompute(desc *ComputeDescriptor) uint64 {
	h := fnv.New64a()

	hashWriteUint64(h, desc.Shader)
	hashWriteString(h, desc.EntryPoint)
	for _, name := range slices.Sorted(maps.Keys(desc.Constants)) {
		hashWriteString(h, name)
		hashWriteUint64(h, math.Float64bits(desc.Constants[name]))
	}

	return h.Sum64()
}

// hashWriteUint32 writes a uint32 to the hash.
func hashWriteUint32(h hash.Hash64, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, _ = h.Write(buf[:])
}

// hashWriteUint64 writes a uint64 to the hash.
func hashWriteUint64(h hash.Hash64, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = h.Write(buf[:])
}

// hashWriteString writes a length-prefixed string to the hash.
//
//nolint:gosec // G115: entry point and constant names are short
func hashWriteString(h hash.Hash64, s string) {
	hashWriteUint32(h, uint32(len(s)))
	_, _ = h.Write([]byte(s))
}

// hashWriteBool writes a bool to the hash.
func hashWriteBool(h hash.Hash64, v bool) {
	if v {
		_, _ = h.Write([]byte{1})
	} else {
		_, _ = h.Write([]byte{0})
	}
}
