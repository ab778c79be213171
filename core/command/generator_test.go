package command

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/core/attribute"
	"github.com/Carmen-Shannon/oxy-core/core/diff"
	"github.com/Carmen-Shannon/oxy-core/core/object_pool"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func circleSchema(t *testing.T) *attribute.Schema {
	t.Helper()
	s, err := attribute.NewSchema(
		attribute.Spec{Name: "position", Type: attribute.TypeVec2}, // offset 0
		attribute.Spec{Name: "radius", Type: attribute.TypeFloat},  // offset 8
		attribute.Spec{Name: "depth", Type: attribute.TypeFloat},   // offset 12
	)
	require.NoError(t, err)
	return s
}

func newCircle(t *testing.T, pool object_pool.Pool, schema *attribute.Schema, x, y, r float32) object_pool.Handle {
	t.Helper()
	h, err := pool.Insert("circle", schema, []attribute.Value{
		attribute.Vec2(mgl32.Vec2{x, y}),
		attribute.Float(r),
		attribute.Float(0),
	})
	require.NoError(t, err)
	return h
}

func TestInsertYieldsSingleNewWithFinalValues(t *testing.T) {
	pool := object_pool.NewPool()
	tracker := diff.NewTracker()
	gen := NewGenerator(pool, tracker, WithPackWorkers(1))
	schema := circleSchema(t)

	h := newCircle(t, pool, schema, 1, 2, 3)

	// Mutations before the first flush fold into the New command.
	idx, err := pool.SetAttribute(h, "radius", attribute.Float(9))
	require.NoError(t, err)
	tracker.Mark(h, idx)

	cmds := gen.Generate(1, nil)
	require.Len(t, cmds, 1)
	cmd := cmds[0]
	require.Equal(t, OpNew, cmd.Op)
	require.Equal(t, TargetObject, cmd.Target)
	require.Equal(t, h, cmd.Handle)
	require.Equal(t, "circle", cmd.Pipeline)
	require.Equal(t, 0, cmd.Slot)
	require.Equal(t, schema.Stride(), cmd.Stride)
	require.Equal(t, uint64(0), cmd.BufferOffset)
	require.Len(t, cmd.Data, schema.Stride())
	require.Equal(t, float32(9), common.Float32At(cmd.Data, 8))
	require.Nil(t, cmd.Fields)

	// Nothing changed since: the next flush is empty.
	require.Empty(t, gen.Generate(2, nil))
}

func TestUpdateCarriesMergedSpanAndFieldNames(t *testing.T) {
	pool := object_pool.NewPool()
	tracker := diff.NewTracker()
	gen := NewGenerator(pool, tracker, WithPackWorkers(1))
	schema := circleSchema(t)

	h := newCircle(t, pool, schema, 0, 0, 1)
	gen.Generate(1, nil)

	idx, err := pool.SetAttribute(h, "position", attribute.Vec2(mgl32.Vec2{5, 6}))
	require.NoError(t, err)
	tracker.Mark(h, idx)
	idx, err = pool.SetAttribute(h, "depth", attribute.Float(0.5))
	require.NoError(t, err)
	tracker.Mark(h, idx)

	cmds := gen.Generate(2, nil)
	require.Len(t, cmds, 1)
	cmd := cmds[0]
	require.Equal(t, OpUpdate, cmd.Op)
	require.Equal(t, []string{"position", "depth"}, cmd.Fields)

	// position (0..8) and depth (12..16) merge into one span covering the
	// clean radius member too.
	require.Equal(t, uint64(0), cmd.BufferOffset)
	require.Len(t, cmd.Data, 16)
	require.Equal(t, float32(5), common.Float32At(cmd.Data, 0))
	require.Equal(t, float32(1), common.Float32At(cmd.Data, 8), "clean member inside the span repacks identically")
	require.Equal(t, float32(0.5), common.Float32At(cmd.Data, 12))
}

func TestUpdateOffsetAccountsForSlot(t *testing.T) {
	pool := object_pool.NewPool()
	tracker := diff.NewTracker()
	gen := NewGenerator(pool, tracker, WithPackWorkers(1))
	schema := circleSchema(t)

	newCircle(t, pool, schema, 0, 0, 1)
	h := newCircle(t, pool, schema, 1, 1, 1)
	gen.Generate(1, nil)

	idx, err := pool.SetAttribute(h, "radius", attribute.Float(2))
	require.NoError(t, err)
	tracker.Mark(h, idx)

	cmds := gen.Generate(2, nil)
	require.Len(t, cmds, 1)
	require.Equal(t, 1, cmds[0].Slot)
	require.Equal(t, uint64(1*schema.Stride()+8), cmds[0].BufferOffset)
}

func TestDeletePrecedesNewOnSlotReuse(t *testing.T) {
	pool := object_pool.NewPool()
	tracker := diff.NewTracker()
	gen := NewGenerator(pool, tracker, WithPackWorkers(1))
	schema := circleSchema(t)

	h := newCircle(t, pool, schema, 0, 0, 1)
	gen.Generate(1, nil)

	_, _, err := pool.Remove(h)
	require.NoError(t, err)
	tracker.Forget(h)

	// Retirement of generation 2's delete frees the slot for reuse.
	cmds := gen.Generate(2, nil)
	require.Len(t, cmds, 1)
	require.Equal(t, OpDelete, cmds[0].Op)
	require.Equal(t, 0, cmds[0].Slot)
	require.Equal(t, h, cmds[0].Handle)
	pool.Reclaim(2)

	h2 := newCircle(t, pool, schema, 9, 9, 9)
	slot, err := pool.SlotOf(h2)
	require.NoError(t, err)
	require.Equal(t, 0, slot)

	cmds = gen.Generate(3, nil)
	require.Len(t, cmds, 1)
	require.Equal(t, OpNew, cmds[0].Op)
	require.Equal(t, 0, cmds[0].Slot)
}

func TestFlushOrderDeletesUpdatesNews(t *testing.T) {
	pool := object_pool.NewPool()
	tracker := diff.NewTracker()
	gen := NewGenerator(pool, tracker, WithPackWorkers(1))
	schema := circleSchema(t)

	hRemoved := newCircle(t, pool, schema, 0, 0, 1)
	hUpdated := newCircle(t, pool, schema, 1, 1, 1)
	gen.Generate(1, nil)

	_, _, err := pool.Remove(hRemoved)
	require.NoError(t, err)
	tracker.Forget(hRemoved)

	idx, err := pool.SetAttribute(hUpdated, "radius", attribute.Float(7))
	require.NoError(t, err)
	tracker.Mark(hUpdated, idx)

	hNew := newCircle(t, pool, schema, 2, 2, 2)

	cmds := gen.Generate(2, nil)
	require.Len(t, cmds, 3)
	require.Equal(t, OpDelete, cmds[0].Op)
	require.Equal(t, hRemoved, cmds[0].Handle)
	require.Equal(t, OpUpdate, cmds[1].Op)
	require.Equal(t, hUpdated, cmds[1].Handle)
	require.Equal(t, OpNew, cmds[2].Op)
	require.Equal(t, hNew, cmds[2].Handle)
}

func TestNeverFlushedRemovalEmitsNothing(t *testing.T) {
	pool := object_pool.NewPool()
	tracker := diff.NewTracker()
	gen := NewGenerator(pool, tracker, WithPackWorkers(1))
	schema := circleSchema(t)

	h := newCircle(t, pool, schema, 0, 0, 1)
	idx, err := pool.SetAttribute(h, "radius", attribute.Float(2))
	require.NoError(t, err)
	tracker.Mark(h, idx)

	_, canceled, err := pool.Remove(h)
	require.NoError(t, err)
	require.True(t, canceled)
	tracker.Forget(h)

	require.Empty(t, gen.Generate(1, nil))
}

func TestPipelineReassignmentEmitsNewInNewPipeline(t *testing.T) {
	pool := object_pool.NewPool()
	tracker := diff.NewTracker()
	gen := NewGenerator(pool, tracker, WithPackWorkers(1))
	schema := circleSchema(t)

	h := newCircle(t, pool, schema, 0, 0, 1)
	gen.Generate(1, nil)

	_, err := pool.SetPipeline(h, "circle_highlight", schema)
	require.NoError(t, err)
	tracker.Forget(h)

	cmds := gen.Generate(2, nil)
	require.Len(t, cmds, 1)
	require.Equal(t, OpNew, cmds[0].Op)
	require.Equal(t, "circle_highlight", cmds[0].Pipeline)
	require.Len(t, cmds[0].Data, schema.Stride())
}

func TestUniformCommandsFollowObjectCommands(t *testing.T) {
	pool := object_pool.NewPool()
	tracker := diff.NewTracker()
	gen := NewGenerator(pool, tracker, WithPackWorkers(1))
	schema := circleSchema(t)

	uniformSchema, err := attribute.NewSchema(
		attribute.Spec{Name: "resolution", Type: attribute.TypeVec2},
		attribute.Spec{Name: "time", Type: attribute.TypeFloat},
	)
	require.NoError(t, err)
	u := attribute.NewUniformBlock("circle", uniformSchema)

	newCircle(t, pool, schema, 0, 0, 1)

	cmds := gen.Generate(1, []*attribute.UniformBlock{u})
	require.Len(t, cmds, 2)
	require.Equal(t, TargetObject, cmds[0].Target)
	require.Equal(t, TargetUniform, cmds[1].Target)
	require.Equal(t, OpNew, cmds[1].Op)
	require.Equal(t, -1, cmds[1].Slot)
	require.Len(t, cmds[1].Data, uniformSchema.Stride())

	// Clean block emits nothing.
	require.Empty(t, gen.Generate(2, []*attribute.UniformBlock{u}))

	require.NoError(t, u.Set("time", attribute.Float(3)))
	cmds = gen.Generate(3, []*attribute.UniformBlock{u})
	require.Len(t, cmds, 1)
	require.Equal(t, OpUpdate, cmds[0].Op)
	require.Equal(t, TargetUniform, cmds[0].Target)
	require.Equal(t, []string{"time"}, cmds[0].Fields)
	require.Equal(t, uint64(8), cmds[0].BufferOffset)
	require.Equal(t, float32(3), common.Float32At(cmds[0].Data, 0))
}

func TestParallelPackMatchesInline(t *testing.T) {
	schema := circleSchema(t)

	run := func(workers int) []Command {
		pool := object_pool.NewPool()
		tracker := diff.NewTracker()
		gen := NewGenerator(pool, tracker, WithPackWorkers(workers))
		for i := 0; i < 64; i++ {
			newCircle(t, pool, schema, float32(i), float32(i), 1)
		}
		return gen.Generate(1, nil)
	}

	inline := run(1)
	parallel := run(4)
	require.Len(t, parallel, 64)
	for i := range inline {
		require.Equal(t, inline[i].Op, parallel[i].Op)
		require.Equal(t, inline[i].Slot, parallel[i].Slot)
		require.Equal(t, inline[i].BufferOffset, parallel[i].BufferOffset)
		require.Equal(t, inline[i].Data, parallel[i].Data)
	}
}
