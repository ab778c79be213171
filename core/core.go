// package core ties the object pool, diff tracker, command generator, batcher,
// frame synchronizer, and GPU resource layer together behind a single
// retained-scene interface. Callers mutate objects between frames; each
// BeginFrame/EndFrame pair flushes exactly the state that changed.
package core

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/core/attribute"
	"github.com/Carmen-Shannon/oxy-core/core/batch"
	"github.com/Carmen-Shannon/oxy-core/core/command"
	"github.com/Carmen-Shannon/oxy-core/core/diff"
	"github.com/Carmen-Shannon/oxy-core/core/frame"
	"github.com/Carmen-Shannon/oxy-core/core/gpu"
	"github.com/Carmen-Shannon/oxy-core/core/object_pool"
	"github.com/Carmen-Shannon/oxy-core/core/profiler"
)

// Core is the retained scene. All mutation and frame methods must be called
// from one producer thread; completion signaling from the GPU layer is the
// only cross-thread traffic and the Core absorbs it internally.
type Core interface {
	// RegisterPipeline declares a pipeline key with its instance attribute
	// layout. Must be called before inserting objects for that key.
	//
	// Parameters:
	//   - key: the pipeline key
	//   - specs: instance attribute declarations in layout order
	//   - options: pipeline options, e.g. a uniform block
	//
	// Returns:
	//   - error: if the key is already registered or the layout is invalid
	RegisterPipeline(key string, specs []attribute.Spec, options ...PipelineOption) error

	// Insert adds an object to the scene on the given pipeline. Attributes
	// missing from values default to zero. The handle is valid immediately;
	// the object reaches the GPU on the next flush as a single New command
	// carrying its values as of that flush.
	//
	// Parameters:
	//   - pipeline: a registered pipeline key
	//   - values: initial attribute values by name, may be nil
	//
	// Returns:
	//   - object_pool.Handle: the new object's stable identifier
	//   - error: unknown pipeline or attribute, type mismatch, or
	//     common.ErrCapacityExceeded (wrapped)
	Insert(pipeline string, values map[string]attribute.Value) (object_pool.Handle, error)

	// Remove deletes an object. The handle is invalid immediately. If the
	// object was never flushed, nothing reaches the GPU; otherwise the next
	// flush emits a Delete and the slot is reused only after the frame
	// carrying the Delete retires.
	//
	// Parameters:
	//   - handle: the object to remove
	//
	// Returns:
	//   - error: common.ErrInvalidHandle (wrapped)
	Remove(handle object_pool.Handle) error

	// SetAttribute updates one attribute. Repeated updates between flushes
	// coalesce: only the final value is uploaded.
	//
	// Parameters:
	//   - handle: the object to mutate
	//   - name: the attribute name
	//   - v: the new value
	//
	// Returns:
	//   - error: common.ErrInvalidHandle or common.ErrTypeMismatch (wrapped)
	SetAttribute(handle object_pool.Handle, name string, v attribute.Value) error

	// SetPipeline moves an object to another registered pipeline with a
	// layout-compatible attribute schema. The object keeps its slot and is
	// re-emitted as a New command targeting the new pipeline's buffer.
	//
	// Parameters:
	//   - handle: the object to reassign
	//   - pipeline: the new pipeline key
	//
	// Returns:
	//   - error: unknown pipeline, common.ErrInvalidHandle, or
	//     common.ErrTypeMismatch (wrapped) for incompatible layouts
	SetPipeline(handle object_pool.Handle, pipeline string) error

	// SetUniform updates one member of a pipeline's uniform block.
	//
	// Parameters:
	//   - pipeline: a registered pipeline key with a uniform block
	//   - name: the member name
	//   - v: the new value
	//
	// Returns:
	//   - error: unknown pipeline or member, or common.ErrTypeMismatch (wrapped)
	SetUniform(pipeline string, name string, v attribute.Value) error

	// BeginFrame acquires the next frame slot, blocking until one retires if
	// all are in flight, then drains every pending change into this frame's
	// command stream. Slots freed by retired Deletes become reusable here,
	// before draining.
	//
	// Returns:
	//   - error: common.ErrResourceRecreationRequired (wrapped) if a resize or
	//     device loss is pending, common.ErrSynchronizationTimeout (wrapped)
	//     if no slot retires in time
	BeginFrame() error

	// EndFrame submits the current frame's command stream to the resource
	// layer and releases the recording slot.
	//
	// Returns:
	//   - error: if no frame is in progress or the layer rejected the stream
	EndFrame() error

	// PendingCommands returns the command stream drained by the current
	// BeginFrame, in execution order. Valid between BeginFrame and EndFrame.
	//
	// Returns:
	//   - []command.Command: the current frame's commands
	PendingCommands() []command.Command

	// Batches returns the current instanced draw groups across all pipelines,
	// ordered by starting slot.
	Batches() []batch.Batch

	// BatchesFor returns the draw groups of one pipeline, ordered by starting slot.
	//
	// Parameters:
	//   - pipeline: the pipeline key
	//
	// Returns:
	//   - []batch.Batch: the pipeline's batches, nil if it has none
	BatchesFor(pipeline string) []batch.Batch

	// Len returns the number of live objects.
	Len() int

	// InvalidateResources flags that device resources must be recreated before
	// the next frame. Safe to call from window callbacks; the next BeginFrame
	// fails with common.ErrResourceRecreationRequired until Recreate runs.
	InvalidateResources()

	// Recreate waits out all in-flight frames, drops every GPU buffer, and
	// marks the entire scene for re-upload. Object handles, slots, and batches
	// survive; the next flush re-emits every live object as New.
	//
	// Returns:
	//   - error: common.ErrSynchronizationTimeout (wrapped) if in-flight
	//     frames do not retire in time
	Recreate() error

	// Shutdown waits out all in-flight frames and releases the resource layer.
	// The core is unusable afterwards.
	//
	// Returns:
	//   - error: common.ErrSynchronizationTimeout (wrapped) if in-flight
	//     frames do not retire in time; resources are released regardless
	Shutdown() error
}

// pipelineEntry is one registered pipeline: its instance layout and optional
// uniform block.
type pipelineEntry struct {
	schema  *attribute.Schema
	uniform *attribute.UniformBlock
}

type sceneCore struct {
	pool    object_pool.Pool
	tracker *diff.Tracker
	gen     command.Generator
	batcher batch.Batcher
	sync    frame.Synchronizer
	layer   gpu.ResourceLayer
	prof    *profiler.Profiler

	pipelines map[string]*pipelineEntry

	// uniformOrder fixes the drain order of uniform blocks to registration
	// order so command streams are deterministic.
	uniformOrder []string

	// retiredThrough is written by the completion path and read by the
	// producer thread; it is the only cross-thread state the core holds.
	retiredThrough atomic.Uint64

	needsRecreate atomic.Bool

	// slot and frameCommands are the recording state between BeginFrame and
	// EndFrame. Producer thread only.
	slot          *frame.Slot
	frameCommands []command.Command

	drainTimeout time.Duration
}

var _ Core = &sceneCore{}

// NewCore creates a Core over the given resource layer with the specified
// options. Panics if layer is nil. Defaults: 2 frames in flight, unbounded
// pool, 5 second synchronization timeouts.
//
// Parameters:
//   - layer: the GPU resource layer commands are executed against
//   - options: functional options to configure the core
//
// Returns:
//   - Core: the new core, ready for pipeline registration
func NewCore(layer gpu.ResourceLayer, options ...CoreBuilderOption) Core {
	if layer == nil {
		panic("core: NewCore requires a non-nil ResourceLayer")
	}

	cfg := &coreConfig{
		framesInFlight: 2,
		timeout:        5 * time.Second,
	}
	for _, opt := range options {
		opt(cfg)
	}

	c := &sceneCore{
		pool:         object_pool.NewPool(object_pool.WithCapacity(cfg.poolCapacity)),
		tracker:      diff.NewTracker(),
		batcher:      batch.NewBatcher(),
		layer:        layer,
		pipelines:    make(map[string]*pipelineEntry),
		drainTimeout: common.Coalesce(cfg.drainTimeout, cfg.timeout),
	}
	if cfg.profile {
		c.prof = profiler.NewProfiler()
	}

	var genOpts []command.GeneratorBuilderOption
	if cfg.packWorkers > 0 {
		genOpts = append(genOpts, command.WithPackWorkers(cfg.packWorkers))
	}
	c.gen = command.NewGenerator(c.pool, c.tracker, genOpts...)

	c.sync = frame.NewSynchronizer(
		frame.WithSlotCount(cfg.framesInFlight),
		frame.WithBeginFrameTimeout(cfg.timeout),
		frame.WithRetireCallback(func(retiredThrough uint64) {
			c.retiredThrough.Store(retiredThrough)
		}),
	)

	// Completion tokens arrive on the layer's goroutine; the synchronizer
	// absorbs them and the producer observes only the watermark.
	layer.SignalOnComplete(func(token frame.Token) {
		if err := c.sync.OnComplete(token); err != nil {
			log.Printf("core: stray completion token %d: %v", token, err)
		}
	})

	if cfg.window != nil {
		cfg.window.SetResizeCallback(func(width, height int) {
			log.Printf("core: resize to %dx%d, scheduling resource recreation", width, height)
			c.InvalidateResources()
		})
	}

	return c
}

func (c *sceneCore) RegisterPipeline(key string, specs []attribute.Spec, options ...PipelineOption) error {
	if _, exists := c.pipelines[key]; exists {
		return fmt.Errorf("pipeline %q is already registered", key)
	}
	schema, err := attribute.NewSchema(specs...)
	if err != nil {
		return fmt.Errorf("register pipeline %q: %w", key, err)
	}

	entry := &pipelineEntry{schema: schema}
	for _, opt := range options {
		if err := opt(key, entry); err != nil {
			return fmt.Errorf("register pipeline %q: %w", key, err)
		}
	}

	c.pipelines[key] = entry
	if entry.uniform != nil {
		c.uniformOrder = append(c.uniformOrder, key)
	}
	return nil
}

func (c *sceneCore) Insert(pipeline string, values map[string]attribute.Value) (object_pool.Handle, error) {
	entry, ok := c.pipelines[pipeline]
	if !ok {
		return object_pool.NilHandle, fmt.Errorf("insert: pipeline %q is not registered", pipeline)
	}

	positional, err := c.resolveValues(entry.schema, pipeline, values)
	if err != nil {
		return object_pool.NilHandle, err
	}

	// Retired slots become reusable before allocation so a full-looking pool
	// whose deletes have retired does not reject the insert.
	c.reclaimRetired()

	handle, err := c.pool.Insert(pipeline, entry.schema, positional)
	if err != nil {
		return object_pool.NilHandle, err
	}
	slot, _ := c.pool.SlotOf(handle)
	c.batcher.SlotChanged(slot, pipeline, true)
	return handle, nil
}

// resolveValues converts a by-name value map to declaration order, zero-filling
// omitted members and rejecting unknown names.
func (c *sceneCore) resolveValues(schema *attribute.Schema, pipeline string, values map[string]attribute.Value) ([]attribute.Value, error) {
	for name := range values {
		if _, ok := schema.Member(name); !ok {
			return nil, fmt.Errorf("pipeline %q has no attribute %q: %w", pipeline, name, common.ErrTypeMismatch)
		}
	}
	positional := schema.ZeroValues()
	for _, m := range schema.Members() {
		if v, ok := values[m.Name]; ok {
			positional[m.Index] = v
		}
	}
	return positional, nil
}

func (c *sceneCore) Remove(handle object_pool.Handle) error {
	slot, _, err := c.pool.Remove(handle)
	if err != nil {
		return err
	}
	c.tracker.Forget(handle)
	c.batcher.SlotChanged(slot, "", false)
	return nil
}

func (c *sceneCore) SetAttribute(handle object_pool.Handle, name string, v attribute.Value) error {
	memberIndex, err := c.pool.SetAttribute(handle, name, v)
	if err != nil {
		return err
	}
	c.tracker.Mark(handle, memberIndex)
	return nil
}

func (c *sceneCore) SetPipeline(handle object_pool.Handle, pipeline string) error {
	entry, ok := c.pipelines[pipeline]
	if !ok {
		return fmt.Errorf("set pipeline: %q is not registered", pipeline)
	}
	slot, err := c.pool.SetPipeline(handle, pipeline, entry.schema)
	if err != nil {
		return err
	}
	// The object re-uploads in full as New; per-member bits are moot.
	c.tracker.Forget(handle)
	c.batcher.SlotChanged(slot, pipeline, true)
	return nil
}

func (c *sceneCore) SetUniform(pipeline string, name string, v attribute.Value) error {
	entry, ok := c.pipelines[pipeline]
	if !ok {
		return fmt.Errorf("set uniform: pipeline %q is not registered", pipeline)
	}
	if entry.uniform == nil {
		return fmt.Errorf("set uniform: pipeline %q has no uniform block", pipeline)
	}
	return entry.uniform.Set(name, v)
}

func (c *sceneCore) BeginFrame() error {
	if c.needsRecreate.Load() {
		return fmt.Errorf("begin frame: %w", common.ErrResourceRecreationRequired)
	}
	if c.slot != nil {
		return fmt.Errorf("begin frame: frame %d is still recording", c.slot.Generation())
	}

	c.reclaimRetired()

	slot, err := c.sync.BeginFrame()
	if err != nil {
		return err
	}

	dirty := c.tracker.Len()
	uniforms := make([]*attribute.UniformBlock, 0, len(c.uniformOrder))
	for _, key := range c.uniformOrder {
		uniforms = append(uniforms, c.pipelines[key].uniform)
	}

	c.frameCommands = c.gen.Generate(slot.Generation(), uniforms)
	c.slot = slot

	if c.prof != nil {
		c.prof.Tick(len(c.frameCommands), dirty)
	}
	return nil
}

func (c *sceneCore) EndFrame() error {
	if c.slot == nil {
		return fmt.Errorf("end frame: no frame in progress")
	}
	token, err := c.sync.EndFrame(c.slot)
	if err != nil {
		return err
	}
	cmds := c.frameCommands
	c.slot = nil
	c.frameCommands = nil

	if err := c.layer.Execute(cmds, token); err != nil {
		return fmt.Errorf("end frame: %w", err)
	}
	return nil
}

func (c *sceneCore) PendingCommands() []command.Command {
	return c.frameCommands
}

func (c *sceneCore) Batches() []batch.Batch {
	return c.batcher.Batches()
}

func (c *sceneCore) BatchesFor(pipeline string) []batch.Batch {
	return c.batcher.BatchesFor(pipeline)
}

func (c *sceneCore) Len() int {
	return c.pool.Len()
}

func (c *sceneCore) InvalidateResources() {
	c.needsRecreate.Store(true)
}

func (c *sceneCore) Recreate() error {
	if err := c.sync.Drain(c.drainTimeout); err != nil {
		return fmt.Errorf("recreate: %w", err)
	}
	if err := c.layer.Invalidate(); err != nil {
		return fmt.Errorf("recreate: %w", err)
	}

	// Every buffer copy is gone: reset the scene to never-flushed so the next
	// flush re-emits all live objects and uniform blocks in full.
	c.pool.MarkAllNew()
	for _, key := range c.uniformOrder {
		c.pipelines[key].uniform.MarkAllDirty()
	}
	c.retiredThrough.Store(c.sync.RetiredThrough())
	c.needsRecreate.Store(false)
	log.Printf("core: recreated device resources, %d object(s) queued for re-upload", c.pool.Len())
	return nil
}

func (c *sceneCore) Shutdown() error {
	err := c.sync.Drain(c.drainTimeout)
	c.layer.Release()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// reclaimRetired frees pool slots whose Delete-carrying frames have retired.
// Runs on the producer thread so the pool stays single-threaded; the watermark
// is the only thing the completion path touches.
func (c *sceneCore) reclaimRetired() {
	c.pool.Reclaim(c.retiredThrough.Load())
}
