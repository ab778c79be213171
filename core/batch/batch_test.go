package batch

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContiguousSamePipelineSlotsFormOneBatch(t *testing.T) {
	b := NewBatcher()
	for slot := 0; slot < 3; slot++ {
		b.SlotChanged(slot, "circle", true)
	}

	require.Equal(t, []Batch{{Pipeline: "circle", Start: 0, Count: 3}}, b.Batches())
}

func TestPipelineBoundarySplitsBatches(t *testing.T) {
	b := NewBatcher()
	b.SlotChanged(0, "circle", true)
	b.SlotChanged(1, "circle", true)
	b.SlotChanged(2, "quad", true)
	b.SlotChanged(3, "quad", true)

	require.Equal(t, []Batch{
		{Pipeline: "circle", Start: 0, Count: 2},
		{Pipeline: "quad", Start: 2, Count: 2},
	}, b.Batches())

	require.Equal(t, []Batch{{Pipeline: "quad", Start: 2, Count: 2}}, b.BatchesFor("quad"))
	require.Nil(t, b.BatchesFor("triangle"))
}

func TestVacatedSlotSplitsRun(t *testing.T) {
	b := NewBatcher()
	for slot := 0; slot < 5; slot++ {
		b.SlotChanged(slot, "circle", true)
	}

	b.SlotChanged(2, "", false)
	require.Equal(t, []Batch{
		{Pipeline: "circle", Start: 0, Count: 2},
		{Pipeline: "circle", Start: 3, Count: 2},
	}, b.Batches())

	// Reoccupying merges the runs back through the gap.
	b.SlotChanged(2, "circle", true)
	require.Equal(t, []Batch{{Pipeline: "circle", Start: 0, Count: 5}}, b.Batches())
}

func TestReassignmentSplitsAndMerges(t *testing.T) {
	b := NewBatcher()
	for slot := 0; slot < 3; slot++ {
		b.SlotChanged(slot, "circle", true)
	}

	// Middle object moves to another pipeline: one batch becomes three.
	b.SlotChanged(1, "circle_highlight", true)
	require.Equal(t, []Batch{
		{Pipeline: "circle", Start: 0, Count: 1},
		{Pipeline: "circle_highlight", Start: 1, Count: 1},
		{Pipeline: "circle", Start: 2, Count: 1},
	}, b.Batches())

	b.SlotChanged(1, "circle", true)
	require.Equal(t, []Batch{{Pipeline: "circle", Start: 0, Count: 3}}, b.Batches())
}

func TestUntouchedBatchesSurviveStructurally(t *testing.T) {
	b := NewBatcher()
	// circle [0,3) quad [3,6) circle [6,9)
	for slot := 0; slot < 3; slot++ {
		b.SlotChanged(slot, "circle", true)
	}
	for slot := 3; slot < 6; slot++ {
		b.SlotChanged(slot, "quad", true)
	}
	for slot := 6; slot < 9; slot++ {
		b.SlotChanged(slot, "circle", true)
	}
	before := b.Batches()
	require.Len(t, before, 3)

	// A change inside the last run must not touch the first two batches.
	b.SlotChanged(7, "", false)
	after := b.Batches()
	require.Equal(t, before[0], after[0])
	require.Equal(t, before[1], after[1])
	require.Equal(t, []Batch{
		{Pipeline: "circle", Start: 0, Count: 3},
		{Pipeline: "quad", Start: 3, Count: 3},
		{Pipeline: "circle", Start: 6, Count: 1},
		{Pipeline: "circle", Start: 8, Count: 1},
	}, after)
}

func TestNoOpChangeKeepsBatches(t *testing.T) {
	b := NewBatcher()
	b.SlotChanged(0, "circle", true)
	b.SlotChanged(1, "circle", true)
	before := b.Batches()

	b.SlotChanged(0, "circle", true)
	b.SlotChanged(5, "", false)
	require.Equal(t, before, b.Batches())
}

// TestIncrementalMatchesFullRebuild drives random slot changes through the
// incremental batcher and cross-checks against a naive full scan.
func TestIncrementalMatchesFullRebuild(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pipelines := []string{"circle", "quad", "triangle"}
	const slots = 32

	b := NewBatcher()
	occupied := make([]string, slots)

	naive := func() []Batch {
		var out []Batch
		start, pipe := -1, ""
		for s := 0; s < slots; s++ {
			switch {
			case occupied[s] != "" && start == -1:
				start, pipe = s, occupied[s]
			case occupied[s] != "" && occupied[s] != pipe:
				out = append(out, Batch{Pipeline: pipe, Start: start, Count: s - start})
				start, pipe = s, occupied[s]
			case occupied[s] == "" && start != -1:
				out = append(out, Batch{Pipeline: pipe, Start: start, Count: s - start})
				start = -1
			}
		}
		if start != -1 {
			out = append(out, Batch{Pipeline: pipe, Start: start, Count: slots - start})
		}
		return out
	}

	for step := 0; step < 2000; step++ {
		slot := rng.Intn(slots)
		if rng.Intn(3) == 0 {
			occupied[slot] = ""
			b.SlotChanged(slot, "", false)
		} else {
			pipe := pipelines[rng.Intn(len(pipelines))]
			occupied[slot] = pipe
			b.SlotChanged(slot, pipe, true)
		}

		want := naive()
		got := b.Batches()
		if len(want) == 0 {
			require.Empty(t, got, "step %d", step)
		} else {
			require.Equal(t, want, got, "step %d", step)
		}
		require.Equal(t, len(want), b.Len())
	}
}
