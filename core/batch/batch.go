// package batch groups occupied pool slots into contiguous same-pipeline runs
// drawable via a single instanced call each.
package batch

import "sort"

// Batch is one instanced draw group: a contiguous run of slot indices whose
// objects share a pipeline (and therefore a packed attribute layout). The
// run's buffer range is Start*stride .. (Start+Count)*stride within the
// pipeline's instance buffer.
type Batch struct {
	// Pipeline is the key of the pipeline the run is drawn with.
	Pipeline string

	// Start is the first slot index of the run.
	Start int

	// Count is the number of consecutive occupied slots in the run.
	Count int
}

// Batcher maintains the batch list incrementally: each insert, removal, or
// pipeline reassignment revises only the batches touching the changed slot's
// neighborhood, so recomputation cost tracks the number of changed objects
// rather than scene size. Batches for pipelines the change cannot touch are
// carried over structurally unchanged.
//
// Batcher is not safe for concurrent use; the Core confines it to the
// producer thread.
type Batcher interface {
	// SlotChanged records that a slot's membership changed: occupied with the
	// given pipeline after an insert or reassignment, or vacated after a
	// removal. A no-op if the slot already has exactly that state.
	//
	// Parameters:
	//   - slot: the changed slot index
	//   - pipeline: the pipeline key now occupying the slot (ignored when occupied is false)
	//   - occupied: whether the slot now holds a drawable object
	SlotChanged(slot int, pipeline string, occupied bool)

	// Batches returns a copy of the current batch list ordered by Start.
	Batches() []Batch

	// BatchesFor returns a copy of the batches for one pipeline, ordered by Start.
	//
	// Parameters:
	//   - pipeline: the pipeline key to filter by
	//
	// Returns:
	//   - []Batch: the pipeline's batches, nil if it has none
	BatchesFor(pipeline string) []Batch

	// Len returns the number of batches.
	Len() int
}

type slotInfo struct {
	occupied bool
	pipeline string
}

type batcher struct {
	slots   []slotInfo
	batches []Batch // sorted by Start, non-overlapping
}

var _ Batcher = &batcher{}

// NewBatcher creates an empty batcher.
//
// Returns:
//   - Batcher: the new batcher
func NewBatcher() Batcher {
	return &batcher{}
}

func (b *batcher) SlotChanged(slot int, pipeline string, occupied bool) {
	for len(b.slots) <= slot {
		b.slots = append(b.slots, slotInfo{})
	}
	cur := b.slots[slot]
	if cur.occupied == occupied && (!occupied || cur.pipeline == pipeline) {
		return
	}
	if !occupied {
		pipeline = ""
	}
	b.slots[slot] = slotInfo{occupied: occupied, pipeline: pipeline}

	// A change at slot i can only revise runs touching i-1, i, or i+1: a run
	// may split at i, or the runs ending at i-1 and starting at i+1 may merge
	// through i. Everything else keeps its boundaries.
	lo, hi := slot, slot+1
	first, last := -1, -1
	for _, s := range [3]int{slot - 1, slot, slot + 1} {
		if s < 0 {
			continue
		}
		if j := b.batchAt(s); j >= 0 {
			if first == -1 || j < first {
				first = j
			}
			if j > last {
				last = j
			}
		}
	}

	insertAt := 0
	if first != -1 {
		if b.batches[first].Start < lo {
			lo = b.batches[first].Start
		}
		if end := b.batches[last].Start + b.batches[last].Count; end > hi {
			hi = end
		}
		insertAt = first
	} else {
		insertAt = sort.Search(len(b.batches), func(j int) bool {
			return b.batches[j].Start > slot
		})
		first, last = insertAt, insertAt-1
	}

	rebuilt := b.scanRuns(lo, hi)

	out := make([]Batch, 0, len(b.batches)-(last-first+1)+len(rebuilt))
	out = append(out, b.batches[:first]...)
	out = append(out, rebuilt...)
	out = append(out, b.batches[last+1:]...)
	b.batches = out
}

// batchAt returns the index of the batch covering the slot, or -1.
func (b *batcher) batchAt(slot int) int {
	j := sort.Search(len(b.batches), func(i int) bool {
		return b.batches[i].Start+b.batches[i].Count > slot
	})
	if j < len(b.batches) && b.batches[j].Start <= slot {
		return j
	}
	return -1
}

// scanRuns rebuilds the maximal same-pipeline runs within [lo, hi).
func (b *batcher) scanRuns(lo, hi int) []Batch {
	if hi > len(b.slots) {
		hi = len(b.slots)
	}
	var runs []Batch
	runStart := -1
	runPipe := ""
	for s := lo; s < hi; s++ {
		si := b.slots[s]
		switch {
		case si.occupied && runStart == -1:
			runStart, runPipe = s, si.pipeline
		case si.occupied && si.pipeline != runPipe:
			runs = append(runs, Batch{Pipeline: runPipe, Start: runStart, Count: s - runStart})
			runStart, runPipe = s, si.pipeline
		case !si.occupied && runStart != -1:
			runs = append(runs, Batch{Pipeline: runPipe, Start: runStart, Count: s - runStart})
			runStart = -1
		}
	}
	if runStart != -1 {
		runs = append(runs, Batch{Pipeline: runPipe, Start: runStart, Count: hi - runStart})
	}
	return runs
}

func (b *batcher) Batches() []Batch {
	return append([]Batch(nil), b.batches...)
}

func (b *batcher) BatchesFor(pipeline string) []Batch {
	var out []Batch
	for _, bt := range b.batches {
		if bt.Pipeline == pipeline {
			out = append(out, bt)
		}
	}
	return out
}

func (b *batcher) Len() int {
	return len(b.batches)
}
