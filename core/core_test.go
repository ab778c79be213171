package core

import (
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/core/attribute"
	"github.com/Carmen-Shannon/oxy-core/core/batch"
	"github.com/Carmen-Shannon/oxy-core/core/command"
	"github.com/Carmen-Shannon/oxy-core/core/frame"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

// stubLayer records executed command streams in place of a device. In manual
// mode tokens queue up until Complete is called, modeling frames the GPU has
// not finished; otherwise every frame completes as soon as it is executed.
type stubLayer struct {
	executed    [][]command.Command
	onComplete  func(frame.Token)
	pending     []frame.Token
	manual      bool
	invalidated int
	released    bool
}

func (l *stubLayer) Execute(cmds []command.Command, token frame.Token) error {
	l.executed = append(l.executed, append([]command.Command(nil), cmds...))
	if l.manual {
		l.pending = append(l.pending, token)
		return nil
	}
	l.onComplete(token)
	return nil
}

func (l *stubLayer) SignalOnComplete(fn func(token frame.Token)) {
	l.onComplete = fn
}

func (l *stubLayer) Invalidate() error {
	l.invalidated++
	return nil
}

func (l *stubLayer) Release() {
	l.released = true
}

// Complete fires the oldest n pending completions.
func (l *stubLayer) Complete(n int) {
	for i := 0; i < n && len(l.pending) > 0; i++ {
		token := l.pending[0]
		l.pending = l.pending[1:]
		l.onComplete(token)
	}
}

func (l *stubLayer) lastCommands() []command.Command {
	if len(l.executed) == 0 {
		return nil
	}
	return l.executed[len(l.executed)-1]
}

func newTestCore(t *testing.T, layer *stubLayer, options ...CoreBuilderOption) Core {
	t.Helper()
	opts := append([]CoreBuilderOption{WithPackWorkers(1)}, options...)
	c := NewCore(layer, opts...)
	require.NoError(t, c.RegisterPipeline("circle",
		[]attribute.Spec{
			{Name: "position", Type: attribute.TypeVec2},
			{Name: "radius", Type: attribute.TypeFloat},
		},
		WithUniformBlock(
			attribute.Spec{Name: "resolution", Type: attribute.TypeVec2},
		),
	))
	return c
}

func flush(t *testing.T, c Core) []command.Command {
	t.Helper()
	require.NoError(t, c.BeginFrame())
	cmds := c.PendingCommands()
	require.NoError(t, c.EndFrame())
	return cmds
}

func TestFlushLifecycle(t *testing.T) {
	layer := &stubLayer{}
	c := newTestCore(t, layer)

	h0, err := c.Insert("circle", map[string]attribute.Value{
		"position": attribute.Vec2(mgl32.Vec2{1, 2}),
		"radius":   attribute.Float(3),
	})
	require.NoError(t, err)
	_, err = c.Insert("circle", nil)
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	cmds := flush(t, c)
	require.Len(t, cmds, 3)
	require.Equal(t, command.OpNew, cmds[0].Op)
	require.Equal(t, command.OpNew, cmds[1].Op)
	require.Equal(t, command.TargetUniform, cmds[2].Target)
	require.Equal(t, command.OpNew, cmds[2].Op)
	require.Equal(t, cmds, layer.lastCommands())

	// A quiet frame flushes nothing.
	require.Empty(t, flush(t, c))

	// One attribute update produces exactly one Update command.
	require.NoError(t, c.SetAttribute(h0, "radius", attribute.Float(5)))
	cmds = flush(t, c)
	require.Len(t, cmds, 1)
	require.Equal(t, command.OpUpdate, cmds[0].Op)
	require.Equal(t, []string{"radius"}, cmds[0].Fields)
}

func TestInsertValidation(t *testing.T) {
	layer := &stubLayer{}
	c := newTestCore(t, layer)

	_, err := c.Insert("unknown", nil)
	require.Error(t, err)

	_, err = c.Insert("circle", map[string]attribute.Value{"missing": attribute.Float(1)})
	require.ErrorIs(t, err, common.ErrTypeMismatch)
}

func TestRemovedSlotReusedOnlyAfterRetirement(t *testing.T) {
	layer := &stubLayer{manual: true}
	c := newTestCore(t, layer, WithFramesInFlight(3))

	hA, err := c.Insert("circle", nil)
	require.NoError(t, err)
	flush(t, c)
	layer.Complete(1)

	require.NoError(t, c.Remove(hA))
	hB, err := c.Insert("circle", nil)
	require.NoError(t, err)

	// Slot 0 awaits retirement, so B lands in slot 1 and the flush carries
	// the Delete before the New.
	cmds := flush(t, c)
	require.Len(t, cmds, 2)
	require.Equal(t, command.OpDelete, cmds[0].Op)
	require.Equal(t, hA, cmds[0].Handle)
	require.Equal(t, 0, cmds[0].Slot)
	require.Equal(t, command.OpNew, cmds[1].Op)
	require.Equal(t, hB, cmds[1].Handle)
	require.Equal(t, 1, cmds[1].Slot)

	// The Delete's frame is still in flight: slot 0 stays out of reach.
	hC, err := c.Insert("circle", nil)
	require.NoError(t, err)
	cmds = flush(t, c)
	require.Len(t, cmds, 1)
	require.Equal(t, 2, cmds[0].Slot)

	// Once the Delete's frame retires, the next frame reclaims slot 0.
	layer.Complete(2)
	hD, err := c.Insert("circle", nil)
	require.NoError(t, err)
	cmds = flush(t, c)
	require.Len(t, cmds, 1)
	require.Equal(t, command.OpNew, cmds[0].Op)
	require.Equal(t, hD, cmds[0].Handle)
	require.Equal(t, 0, cmds[0].Slot)

	_ = hC
	layer.Complete(1)
}

func TestRemoveBeforeFirstFlushEmitsNothing(t *testing.T) {
	layer := &stubLayer{}
	c := newTestCore(t, layer)

	h, err := c.Insert("circle", map[string]attribute.Value{"radius": attribute.Float(1)})
	require.NoError(t, err)
	require.NoError(t, c.SetAttribute(h, "radius", attribute.Float(2)))
	require.NoError(t, c.Remove(h))

	cmds := flush(t, c)
	for _, cmd := range cmds {
		require.NotEqual(t, h, cmd.Handle, "a never-flushed object must not reach the GPU")
	}
}

func TestBeginFrameBackpressure(t *testing.T) {
	layer := &stubLayer{manual: true}
	c := newTestCore(t, layer,
		WithFramesInFlight(2),
		WithSynchronizationTimeout(50*time.Millisecond),
		WithDrainTimeout(time.Second),
	)

	flush(t, c)
	flush(t, c)

	err := c.BeginFrame()
	require.ErrorIs(t, err, common.ErrSynchronizationTimeout)

	layer.Complete(1)
	require.NoError(t, c.BeginFrame())
	require.NoError(t, c.EndFrame())
	layer.Complete(2)
}

func TestBatchesSplitOnReassignment(t *testing.T) {
	layer := &stubLayer{}
	c := newTestCore(t, layer)
	require.NoError(t, c.RegisterPipeline("circle_highlight",
		[]attribute.Spec{
			{Name: "position", Type: attribute.TypeVec2},
			{Name: "radius", Type: attribute.TypeFloat},
		},
	))

	h0, err := c.Insert("circle", nil)
	require.NoError(t, err)
	h1, err := c.Insert("circle", nil)
	require.NoError(t, err)
	h2, err := c.Insert("circle", nil)
	require.NoError(t, err)
	_ = h0
	_ = h2

	require.Equal(t, []batch.Batch{{Pipeline: "circle", Start: 0, Count: 3}}, c.Batches())

	flush(t, c)

	require.NoError(t, c.SetPipeline(h1, "circle_highlight"))
	require.Equal(t, []batch.Batch{
		{Pipeline: "circle", Start: 0, Count: 1},
		{Pipeline: "circle_highlight", Start: 1, Count: 1},
		{Pipeline: "circle", Start: 2, Count: 1},
	}, c.Batches())

	// The reassigned object re-uploads in full into the new pipeline's buffer.
	cmds := flush(t, c)
	require.Len(t, cmds, 1)
	require.Equal(t, command.OpNew, cmds[0].Op)
	require.Equal(t, "circle_highlight", cmds[0].Pipeline)
	require.Equal(t, 1, cmds[0].Slot)

	require.Equal(t, []batch.Batch{{Pipeline: "circle_highlight", Start: 1, Count: 1}},
		c.BatchesFor("circle_highlight"))
}

func TestSetPipelineRejectsIncompatibleLayout(t *testing.T) {
	layer := &stubLayer{}
	c := newTestCore(t, layer)
	require.NoError(t, c.RegisterPipeline("quad",
		[]attribute.Spec{{Name: "corner", Type: attribute.TypeVec4}},
	))

	h, err := c.Insert("circle", nil)
	require.NoError(t, err)
	require.ErrorIs(t, c.SetPipeline(h, "quad"), common.ErrTypeMismatch)
	require.Error(t, c.SetPipeline(h, "unregistered"))
}

func TestUniformUpdatesFlowThroughFlush(t *testing.T) {
	layer := &stubLayer{}
	c := newTestCore(t, layer)

	flush(t, c) // drains the initial uniform New

	require.NoError(t, c.SetUniform("circle", "resolution", attribute.Vec2(mgl32.Vec2{800, 600})))
	cmds := flush(t, c)
	require.Len(t, cmds, 1)
	require.Equal(t, command.TargetUniform, cmds[0].Target)
	require.Equal(t, command.OpUpdate, cmds[0].Op)
	require.Equal(t, []string{"resolution"}, cmds[0].Fields)

	require.Error(t, c.SetUniform("circle", "missing", attribute.Float(0)))
	require.Error(t, c.SetUniform("unknown", "resolution", attribute.Float(0)))

	// circle_plain has no uniform block.
	require.NoError(t, c.RegisterPipeline("circle_plain",
		[]attribute.Spec{{Name: "radius", Type: attribute.TypeFloat}},
	))
	require.Error(t, c.SetUniform("circle_plain", "resolution", attribute.Float(0)))
}

func TestRecreateReuploadsWholeScene(t *testing.T) {
	layer := &stubLayer{}
	c := newTestCore(t, layer)

	_, err := c.Insert("circle", nil)
	require.NoError(t, err)
	_, err = c.Insert("circle", nil)
	require.NoError(t, err)
	flush(t, c)
	require.Empty(t, flush(t, c))

	c.InvalidateResources()
	err = c.BeginFrame()
	require.ErrorIs(t, err, common.ErrResourceRecreationRequired)

	require.NoError(t, c.Recreate())
	require.Equal(t, 1, layer.invalidated)

	// Handles, slots, and batches survive; every live object and uniform
	// block re-uploads in full.
	require.Equal(t, []batch.Batch{{Pipeline: "circle", Start: 0, Count: 2}}, c.Batches())
	cmds := flush(t, c)
	require.Len(t, cmds, 3)
	for _, cmd := range cmds {
		require.Equal(t, command.OpNew, cmd.Op)
	}
}

func TestShutdownDrainsAndReleases(t *testing.T) {
	layer := &stubLayer{}
	c := newTestCore(t, layer)

	_, err := c.Insert("circle", nil)
	require.NoError(t, err)
	flush(t, c)

	require.NoError(t, c.Shutdown())
	require.True(t, layer.released)
}

func TestEndFrameWithoutBeginFails(t *testing.T) {
	layer := &stubLayer{}
	c := newTestCore(t, layer)
	require.Error(t, c.EndFrame())
}

func TestDuplicatePipelineRegistration(t *testing.T) {
	layer := &stubLayer{}
	c := newTestCore(t, layer)
	err := c.RegisterPipeline("circle", []attribute.Spec{{Name: "radius", Type: attribute.TypeFloat}})
	require.Error(t, err)
}
