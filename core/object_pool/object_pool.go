package object_pool

import (
	"fmt"
	"sort"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/core/attribute"
)

// SlotState describes the lifecycle of one pool slot.
type SlotState int

const (
	// SlotFree means the slot holds no object and may be handed to Insert.
	SlotFree SlotState = iota

	// SlotOccupied means the slot holds a live object.
	SlotOccupied

	// SlotPendingRetire means the slot's object was removed but its last
	// written GPU data may still be referenced by an in-flight frame. The
	// slot may not be reused until the frame synchronizer confirms the
	// removal's flush generation has retired.
	SlotPendingRetire
)

// OccupiedSlot is one entry of a pool snapshot: the slot index, the object's
// handle, and the object itself, in slot order.
type OccupiedSlot struct {
	Slot   int
	Handle Handle
	Object *DrawObject
}

// Removal records a removed object awaiting slot reclamation. FlushGeneration
// is zero until the removal has been drained into a Delete command, after
// which it holds the generation of the frame that carried the Delete.
type Removal struct {
	Handle          Handle
	Slot            int
	Pipeline        string
	Stride          int
	FlushGeneration uint64
}

// Pool is the ordered collection of drawable objects. Slot order is insertion
// order among currently occupied slots and determines buffer offsets for
// batched draws, so it is part of the contract, not an implementation detail.
//
// Pool is not safe for concurrent use. The Core serializes all access on the
// producer thread; slot reclamation triggered by the completion path is
// deferred onto that thread as well.
type Pool interface {
	// Insert allocates the lowest free slot (or appends) for a new object on
	// the given pipeline and returns its handle, valid immediately.
	//
	// Parameters:
	//   - pipeline: the pipeline key the object is assigned to
	//   - schema: the pipeline's attribute layout
	//   - values: initial values in schema declaration order
	//
	// Returns:
	//   - Handle: the new object's stable identifier
	//   - error: common.ErrCapacityExceeded (wrapped) if a hard slot limit is
	//     configured and exhausted, common.ErrTypeMismatch (wrapped) if values
	//     disagree with the schema
	Insert(pipeline string, schema *attribute.Schema, values []attribute.Value) (Handle, error)

	// Remove marks the object's slot for deletion. The handle is invalid from
	// this point on. If the object has never been flushed the slot is
	// reclaimed immediately and canceled is true: no Delete command is owed.
	// Otherwise the slot moves to SlotPendingRetire until the frame
	// synchronizer confirms no in-flight frame references its data.
	//
	// Parameters:
	//   - handle: the object to remove
	//
	// Returns:
	//   - slot: the slot index the object occupied
	//   - canceled: true if the object was never flushed and no Delete is owed
	//   - error: common.ErrInvalidHandle (wrapped) for unknown or removed handles
	Remove(handle Handle) (slot int, canceled bool, err error)

	// SetAttribute updates one attribute value. Does not touch the GPU; the
	// caller is responsible for marking the member dirty in the diff tracker
	// using the returned member index.
	//
	// Parameters:
	//   - handle: the object to mutate
	//   - name: the attribute name
	//   - v: the new value
	//
	// Returns:
	//   - int: the schema member index of the updated attribute
	//   - error: common.ErrInvalidHandle or common.ErrTypeMismatch (wrapped);
	//     on error the prior value is untouched
	SetAttribute(handle Handle, name string, v attribute.Value) (int, error)

	// SetPipeline reassigns the object to another pipeline whose schema must
	// be layout-compatible with the current one. The object is marked new so
	// its next flush emits a full New command targeting the new pipeline.
	//
	// Parameters:
	//   - handle: the object to reassign
	//   - pipeline: the new pipeline key
	//   - schema: the new pipeline's attribute layout
	//
	// Returns:
	//   - int: the object's slot index (unchanged by reassignment)
	//   - error: common.ErrInvalidHandle or common.ErrTypeMismatch (wrapped)
	SetPipeline(handle Handle, pipeline string, schema *attribute.Schema) (int, error)

	// Get returns the object for a live handle.
	//
	// Parameters:
	//   - handle: the object's identifier
	//
	// Returns:
	//   - *DrawObject: the object
	//   - error: common.ErrInvalidHandle (wrapped) for unknown or removed handles
	Get(handle Handle) (*DrawObject, error)

	// SlotOf returns the slot index a live handle maps to.
	//
	// Parameters:
	//   - handle: the object's identifier
	//
	// Returns:
	//   - int: the slot index
	//   - error: common.ErrInvalidHandle (wrapped)
	SlotOf(handle Handle) (int, error)

	// Occupied returns a snapshot of all occupied slots in slot order. The
	// snapshot reflects pool state at call time and is not a live view.
	Occupied() []OccupiedSlot

	// Len returns the number of live objects.
	Len() int

	// Capacity returns the configured hard slot limit, or 0 if unbounded.
	Capacity() int

	// MarkFlushed records that the object's current state has been handed to
	// the GPU layer: clears the new flag and latches everFlushed.
	//
	// Parameters:
	//   - handle: the flushed object
	MarkFlushed(handle Handle)

	// TakePendingRemovals stamps every removal not yet drained with the given
	// flush generation and returns them oldest-first. The returned removals
	// stay pending retirement until Reclaim confirms their generation.
	//
	// Parameters:
	//   - flushGen: the generation of the frame carrying the Delete commands
	//
	// Returns:
	//   - []Removal: removals owed a Delete command this flush, oldest first
	TakePendingRemovals(flushGen uint64) []Removal

	// Reclaim frees every pending-retire slot whose removal was flushed at or
	// before retiredThrough, making the slots available to Insert again.
	//
	// Parameters:
	//   - retiredThrough: the highest generation confirmed fully retired
	//
	// Returns:
	//   - []int: the freed slot indices
	Reclaim(retiredThrough uint64) []int

	// MarkAllNew resets every occupied object to never-flushed and drops all
	// pending removals, freeing their slots. Only valid after the frame
	// synchronizer has drained: it exists for the device-resource recreation
	// path, where every buffer copy is gone and a full re-upload follows.
	MarkAllNew()
}

type slot struct {
	state  SlotState
	handle Handle
	obj    *DrawObject
}

type pool struct {
	slots    []slot
	index    map[Handle]int
	free     []int // sorted ascending, lowest reused first
	capacity int

	// pendingRemovals holds removals not yet drained into Delete commands;
	// awaitingRetire holds drained removals gated on generation retirement.
	// Both are oldest-first.
	pendingRemovals []Removal
	awaitingRetire  []Removal
}

var _ Pool = &pool{}

// NewPool creates an empty pool with the specified options.
//
// Parameters:
//   - options: functional options to configure the pool
//
// Returns:
//   - Pool: the new pool
func NewPool(options ...PoolBuilderOption) Pool {
	p := &pool{
		index: make(map[Handle]int, 64),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *pool) Insert(pipeline string, schema *attribute.Schema, values []attribute.Value) (Handle, error) {
	if len(values) != schema.Len() {
		return NilHandle, fmt.Errorf("pipeline %q expects %d attributes, got %d: %w",
			pipeline, schema.Len(), len(values), common.ErrTypeMismatch)
	}
	for i, m := range schema.Members() {
		if values[i].Type() != m.Type {
			return NilHandle, fmt.Errorf("attribute %q is %s, got %s: %w",
				m.Name, m.Type, values[i].Type(), common.ErrTypeMismatch)
		}
	}

	idx, err := p.allocateSlot()
	if err != nil {
		return NilHandle, err
	}

	obj := &DrawObject{
		handle:   nextHandle(),
		pipeline: pipeline,
		schema:   schema,
		values:   append([]attribute.Value(nil), values...),
		isNew:    true,
	}
	p.slots[idx] = slot{state: SlotOccupied, handle: obj.handle, obj: obj}
	p.index[obj.handle] = idx
	return obj.handle, nil
}

// allocateSlot pops the lowest free slot or appends a new one, honoring the
// configured capacity. Pending-retire slots count against capacity because
// their data still occupies buffer space.
func (p *pool) allocateSlot() (int, error) {
	if len(p.free) > 0 {
		idx := p.free[0]
		p.free = p.free[1:]
		return idx, nil
	}
	if p.capacity > 0 && len(p.slots) >= p.capacity {
		return 0, fmt.Errorf("all %d slots in use: %w", p.capacity, common.ErrCapacityExceeded)
	}
	p.slots = append(p.slots, slot{})
	return len(p.slots) - 1, nil
}

func (p *pool) Remove(handle Handle) (int, bool, error) {
	idx, ok := p.index[handle]
	if !ok {
		return 0, false, fmt.Errorf("remove %d: %w", handle, common.ErrInvalidHandle)
	}
	obj := p.slots[idx].obj
	delete(p.index, handle)

	if !obj.everFlushed {
		// Never reached the GPU: no in-flight frame can reference it, so the
		// slot is reusable immediately and no Delete command is owed.
		p.slots[idx] = slot{}
		p.releaseSlot(idx)
		return idx, true, nil
	}

	p.slots[idx].state = SlotPendingRetire
	p.pendingRemovals = append(p.pendingRemovals, Removal{
		Handle:   handle,
		Slot:     idx,
		Pipeline: obj.pipeline,
		Stride:   obj.schema.Stride(),
	})
	return idx, false, nil
}

func (p *pool) SetAttribute(handle Handle, name string, v attribute.Value) (int, error) {
	obj, err := p.Get(handle)
	if err != nil {
		return 0, err
	}
	m, ok := obj.schema.Member(name)
	if !ok {
		return 0, fmt.Errorf("pipeline %q has no attribute %q: %w", obj.pipeline, name, common.ErrTypeMismatch)
	}
	if v.Type() != m.Type {
		return 0, fmt.Errorf("attribute %q is %s, got %s: %w", name, m.Type, v.Type(), common.ErrTypeMismatch)
	}
	obj.values[m.Index] = v
	return m.Index, nil
}

func (p *pool) SetPipeline(handle Handle, pipeline string, schema *attribute.Schema) (int, error) {
	idx, ok := p.index[handle]
	if !ok {
		return 0, fmt.Errorf("set pipeline %d: %w", handle, common.ErrInvalidHandle)
	}
	obj := p.slots[idx].obj
	if !obj.schema.Compatible(schema) {
		return 0, fmt.Errorf("pipeline %q layout is incompatible with %q: %w",
			pipeline, obj.pipeline, common.ErrTypeMismatch)
	}
	obj.pipeline = pipeline
	obj.schema = schema
	obj.isNew = true
	return idx, nil
}

func (p *pool) Get(handle Handle) (*DrawObject, error) {
	idx, ok := p.index[handle]
	if !ok {
		return nil, fmt.Errorf("object %d: %w", handle, common.ErrInvalidHandle)
	}
	return p.slots[idx].obj, nil
}

func (p *pool) SlotOf(handle Handle) (int, error) {
	idx, ok := p.index[handle]
	if !ok {
		return 0, fmt.Errorf("object %d: %w", handle, common.ErrInvalidHandle)
	}
	return idx, nil
}

func (p *pool) Occupied() []OccupiedSlot {
	out := make([]OccupiedSlot, 0, len(p.index))
	for i := range p.slots {
		if p.slots[i].state == SlotOccupied {
			out = append(out, OccupiedSlot{Slot: i, Handle: p.slots[i].handle, Object: p.slots[i].obj})
		}
	}
	return out
}

func (p *pool) Len() int {
	return len(p.index)
}

func (p *pool) Capacity() int {
	return p.capacity
}

func (p *pool) MarkFlushed(handle Handle) {
	if idx, ok := p.index[handle]; ok {
		p.slots[idx].obj.isNew = false
		p.slots[idx].obj.everFlushed = true
	}
}

func (p *pool) TakePendingRemovals(flushGen uint64) []Removal {
	if len(p.pendingRemovals) == 0 {
		return nil
	}
	taken := p.pendingRemovals
	p.pendingRemovals = nil
	for i := range taken {
		taken[i].FlushGeneration = flushGen
	}
	p.awaitingRetire = append(p.awaitingRetire, taken...)
	return taken
}

func (p *pool) Reclaim(retiredThrough uint64) []int {
	if len(p.awaitingRetire) == 0 {
		return nil
	}
	var freed []int
	remaining := p.awaitingRetire[:0]
	for _, r := range p.awaitingRetire {
		if r.FlushGeneration <= retiredThrough {
			p.slots[r.Slot] = slot{}
			p.releaseSlot(r.Slot)
			freed = append(freed, r.Slot)
		} else {
			remaining = append(remaining, r)
		}
	}
	p.awaitingRetire = remaining
	return freed
}

func (p *pool) MarkAllNew() {
	for i := range p.slots {
		switch p.slots[i].state {
		case SlotOccupied:
			p.slots[i].obj.isNew = true
			p.slots[i].obj.everFlushed = false
		case SlotPendingRetire:
			p.slots[i] = slot{}
			p.releaseSlot(i)
		}
	}
	p.pendingRemovals = nil
	p.awaitingRetire = nil
}

// releaseSlot returns a slot index to the free list keeping it sorted, so the
// lowest index is always reused first.
func (p *pool) releaseSlot(idx int) {
	at := sort.SearchInts(p.free, idx)
	p.free = append(p.free, 0)
	copy(p.free[at+1:], p.free[at:])
	p.free[at] = idx
}
