// package frame manages the ring of in-flight frame slots and gates when GPU
// buffer regions may be safely overwritten, replacing any device-wide idle
// wait with per-slot completion tokens.
package frame

import (
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-core/common"
)

// SlotState is the lifecycle state of one frame slot.
type SlotState int

const (
	// SlotIdle means the slot's resources are not referenced by any pending
	// CPU recording or GPU execution and may be granted to BeginFrame.
	SlotIdle SlotState = iota

	// SlotRecording means the producer thread owns the slot and may write its
	// buffer regions. At most one slot is Recording at any time.
	SlotRecording

	// SlotSubmitted means the slot's commands were handed to the execution
	// layer and its buffer regions may only be read by the GPU until the
	// completion token fires.
	SlotSubmitted
)

// String returns the state name.
func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "Idle"
	case SlotRecording:
		return "Recording"
	case SlotSubmitted:
		return "Submitted"
	default:
		return fmt.Sprintf("frame.SlotState(%d)", int(s))
	}
}

// Token is the completion token of one submitted frame. It carries the
// frame's generation; the execution layer hands it back via OnComplete when
// the GPU has finished reading the slot's resources.
type Token uint64

// Slot is a granted frame slot bound to one generation. It is returned by
// BeginFrame and must be passed back to EndFrame unchanged.
type Slot struct {
	index      int
	generation uint64
}

// Index returns the ring index of the slot.
func (s *Slot) Index() int {
	return s.index
}

// Generation returns the monotonically increasing generation the slot is
// bound to for this frame.
func (s *Slot) Generation() uint64 {
	return s.generation
}

// Synchronizer drives the per-slot Idle -> Recording -> Submitted -> Idle
// state machine for N in-flight frames. BeginFrame is the only blocking
// point in the core: it suspends the producer until a slot retires, giving
// N-deep backpressure without ever waiting for the whole device to idle.
//
// Slot completion state is the only data shared between the producer thread
// and the completion path; it is protected here so callers need no locking.
type Synchronizer interface {
	// BeginFrame blocks until a slot is Idle, moves it to Recording, and
	// binds it to the next generation. Only one slot may be Recording at a
	// time; a second concurrent call fails rather than corrupting state.
	//
	// Returns:
	//   - *Slot: the granted slot
	//   - error: common.ErrSynchronizationTimeout (wrapped) if no slot
	//     retired within the configured bound
	BeginFrame() (*Slot, error)

	// EndFrame transitions the slot from Recording to Submitted and returns
	// the completion token the execution layer must hand back when the GPU
	// finishes the frame.
	//
	// Parameters:
	//   - slot: the slot returned by the matching BeginFrame
	//
	// Returns:
	//   - Token: the slot's completion token
	//   - error: if the slot is not the one currently Recording
	EndFrame(slot *Slot) (Token, error)

	// OnComplete transitions the submitted slot owning the token back to
	// Idle, advances the retired-through watermark, and fires the retire
	// callback. Safe to call from any goroutine; this is the completion
	// path's entry point.
	//
	// Parameters:
	//   - token: the completion token handed out by EndFrame
	//
	// Returns:
	//   - error: if the token does not match any submitted slot
	OnComplete(token Token) error

	// RetiredThrough returns the highest generation g such that every
	// generation <= g has fully retired. Pool slot reclamation is gated on it.
	RetiredThrough() uint64

	// InFlight returns the number of slots currently Recording or Submitted.
	InFlight() int

	// SlotCount returns the configured number of frame slots.
	SlotCount() int

	// Drain blocks until every slot is Idle. Used at shutdown and before
	// device resource recreation; frames already begun are never cancelled,
	// they are waited out.
	//
	// Parameters:
	//   - timeout: the longest time to wait
	//
	// Returns:
	//   - error: common.ErrSynchronizationTimeout (wrapped) if slots remain
	//     in flight past the timeout
	Drain(timeout time.Duration) error

	// SetRetireCallback registers the function invoked (outside the internal
	// lock) each time the retired-through watermark may have advanced.
	//
	// Parameters:
	//   - fn: callback receiving the current retired-through generation
	SetRetireCallback(fn func(retiredThrough uint64))
}

type slotRecord struct {
	state      SlotState
	generation uint64
}

type synchronizer struct {
	mu       *sync.Mutex
	slots    []slotRecord
	idle     chan int
	nextGen  uint64
	retired  uint64
	rec      int // index of the Recording slot, -1 if none
	timeout  time.Duration
	onRetire func(uint64)
}

var _ Synchronizer = &synchronizer{}

// NewSynchronizer creates a Synchronizer with the specified options.
// Defaults: 2 frame slots, 5 second BeginFrame timeout.
//
// Parameters:
//   - options: functional options to configure the synchronizer
//
// Returns:
//   - Synchronizer: the new synchronizer with all slots Idle
func NewSynchronizer(options ...SynchronizerBuilderOption) Synchronizer {
	s := &synchronizer{
		mu:      &sync.Mutex{},
		nextGen: 1,
		rec:     -1,
		timeout: 5 * time.Second,
	}
	cfg := &synchronizerConfig{slotCount: 2}
	for _, opt := range options {
		opt(s, cfg)
	}

	s.slots = make([]slotRecord, cfg.slotCount)
	s.idle = make(chan int, cfg.slotCount)
	for i := 0; i < cfg.slotCount; i++ {
		s.idle <- i
	}
	return s
}

func (s *synchronizer) BeginFrame() (*Slot, error) {
	var idx int
	select {
	case idx = <-s.idle:
	case <-time.After(s.timeout):
		return nil, fmt.Errorf("no frame slot became idle within %v: %w", s.timeout, common.ErrSynchronizationTimeout)
	}

	s.mu.Lock()
	if s.rec != -1 {
		rec := s.rec
		s.mu.Unlock()
		s.idle <- idx
		return nil, fmt.Errorf("slot %d is already recording; frames cannot nest", rec)
	}
	gen := s.nextGen
	s.nextGen++
	s.slots[idx] = slotRecord{state: SlotRecording, generation: gen}
	s.rec = idx
	s.mu.Unlock()

	return &Slot{index: idx, generation: gen}, nil
}

func (s *synchronizer) EndFrame(slot *Slot) (Token, error) {
	if slot == nil {
		return 0, fmt.Errorf("end frame: nil slot")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if slot.index < 0 || slot.index >= len(s.slots) {
		return 0, fmt.Errorf("end frame: slot index %d out of range", slot.index)
	}
	rec := s.slots[slot.index]
	if rec.state != SlotRecording || rec.generation != slot.generation {
		return 0, fmt.Errorf("end frame: slot %d is %s at generation %d, not recording generation %d",
			slot.index, rec.state, rec.generation, slot.generation)
	}
	s.slots[slot.index].state = SlotSubmitted
	s.rec = -1
	return Token(slot.generation), nil
}

func (s *synchronizer) OnComplete(token Token) error {
	s.mu.Lock()
	idx := -1
	for i := range s.slots {
		if s.slots[i].state == SlotSubmitted && s.slots[i].generation == uint64(token) {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.mu.Unlock()
		return fmt.Errorf("completion token %d does not match any submitted slot", token)
	}
	s.slots[idx].state = SlotIdle
	s.recomputeRetired()
	retired := s.retired
	cb := s.onRetire
	s.mu.Unlock()

	s.idle <- idx
	if cb != nil {
		cb(retired)
	}
	return nil
}

// recomputeRetired advances the watermark to the generation just below the
// oldest still in flight. Must be called with the lock held.
func (s *synchronizer) recomputeRetired() {
	retired := s.nextGen - 1
	for i := range s.slots {
		if s.slots[i].state != SlotIdle && s.slots[i].generation-1 < retired {
			retired = s.slots[i].generation - 1
		}
	}
	s.retired = retired
}

func (s *synchronizer) RetiredThrough() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retired
}

func (s *synchronizer) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.slots {
		if s.slots[i].state != SlotIdle {
			n++
		}
	}
	return n
}

func (s *synchronizer) SlotCount() int {
	return len(s.slots)
}

func (s *synchronizer) Drain(timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	collected := make([]int, 0, len(s.slots))
	for len(collected) < len(s.slots) {
		select {
		case idx := <-s.idle:
			collected = append(collected, idx)
		case <-deadline.C:
			for _, idx := range collected {
				s.idle <- idx
			}
			return fmt.Errorf("%d slot(s) still in flight after %v: %w",
				len(s.slots)-len(collected), timeout, common.ErrSynchronizationTimeout)
		}
	}
	for _, idx := range collected {
		s.idle <- idx
	}
	return nil
}

func (s *synchronizer) SetRetireCallback(fn func(retiredThrough uint64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRetire = fn
}
