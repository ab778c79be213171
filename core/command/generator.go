package command

import (
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-core/core/attribute"
	"github.com/Carmen-Shannon/oxy-core/core/diff"
	"github.com/Carmen-Shannon/oxy-core/core/object_pool"
)

// minParallelPack is the job count below which packing runs inline; the
// worker pool only pays off once a flush touches a few dozen objects.
const minParallelPack = 16

// Generator drains pool mutations and dirty attribute state into an ordered
// command stream once per frame. Ordering within one flush is fixed: Deletes
// pending reclamation oldest-first, then Updates for occupied dirty objects,
// then News for queued insertions, then uniform block commands. A Delete
// freeing a slot therefore always precedes a New reusing that slot index.
//
// Generator is not safe for concurrent use; the Core drives it from the
// producer thread only.
type Generator interface {
	// Generate produces the command stream for one flush, stamping drained
	// removals with the given flush generation and clearing all dirty state
	// it consumes. A newly inserted object that was also mutated before this
	// flush yields exactly one New command with final values.
	//
	// Parameters:
	//   - flushGen: the generation of the frame slot granted for this flush
	//   - uniforms: the uniform blocks to drain after object commands
	//
	// Returns:
	//   - []Command: the ordered command stream, empty if nothing changed
	Generate(flushGen uint64, uniforms []*attribute.UniformBlock) []Command
}

type generator struct {
	pool    object_pool.Pool
	tracker *diff.Tracker

	// packPool fans per-object byte packing out across a bounded set of
	// reusable goroutines. Workers persist across frames; a WaitGroup
	// provides the per-flush barrier.
	packPool    worker.DynamicWorkerPool
	packWorkers int
}

var _ Generator = &generator{}

// NewGenerator creates a Generator over the given pool and tracker.
// Panics if either is nil.
//
// Parameters:
//   - pool: the object pool to drain
//   - tracker: the dirty-state tracker to drain
//   - options: functional options to further configure the generator
//
// Returns:
//   - Generator: the new generator
func NewGenerator(pool object_pool.Pool, tracker *diff.Tracker, options ...GeneratorBuilderOption) Generator {
	if pool == nil {
		panic("command: NewGenerator requires a non-nil Pool")
	}
	if tracker == nil {
		panic("command: NewGenerator requires a non-nil Tracker")
	}

	g := &generator{
		pool:        pool,
		tracker:     tracker,
		packWorkers: max(runtime.NumCPU()-1, 1),
	}
	for _, opt := range options {
		opt(g)
	}

	// Queue size of 256 accommodates typical per-flush job counts with headroom.
	g.packPool = worker.NewDynamicWorkerPool(g.packWorkers, 256, 1*time.Second)
	return g
}

// packJob is one object's pending pack, resolved into a command at cmds[out].
type packJob struct {
	obj   *object_pool.DrawObject
	slot  int
	dirty uint64
	isNew bool
	out   int
}

func (g *generator) Generate(flushGen uint64, uniforms []*attribute.UniformBlock) []Command {
	cmds := g.deleteCommands(flushGen)

	// Partition the snapshot into updates and news, draining dirty bits on
	// this thread (the tracker is producer-confined). Packing below only
	// reads object values, which nothing mutates during a flush.
	var updates, news []packJob
	for _, occ := range g.pool.Occupied() {
		bits := g.tracker.Drain(occ.Handle)
		if occ.Object.IsNew() {
			news = append(news, packJob{obj: occ.Object, slot: occ.Slot, isNew: true})
		} else if bits != 0 {
			updates = append(updates, packJob{obj: occ.Object, slot: occ.Slot, dirty: bits})
		}
	}

	base := len(cmds)
	jobs := make([]packJob, 0, len(updates)+len(news))
	for i := range updates {
		updates[i].out = base + i
		jobs = append(jobs, updates[i])
	}
	for i := range news {
		news[i].out = base + len(updates) + i
		jobs = append(jobs, news[i])
	}

	cmds = append(cmds, make([]Command, len(jobs))...)
	g.packAll(jobs, cmds)

	for _, job := range jobs {
		g.pool.MarkFlushed(job.obj.Handle())
	}

	return g.appendUniformCommands(cmds, uniforms)
}

// deleteCommands drains removals owed a Delete this flush, oldest first.
func (g *generator) deleteCommands(flushGen uint64) []Command {
	removals := g.pool.TakePendingRemovals(flushGen)
	if len(removals) == 0 {
		return nil
	}
	cmds := make([]Command, 0, len(removals))
	for _, r := range removals {
		cmds = append(cmds, Command{
			Op:           OpDelete,
			Target:       TargetObject,
			Handle:       r.Handle,
			Pipeline:     r.Pipeline,
			Slot:         r.Slot,
			Stride:       r.Stride,
			BufferOffset: uint64(r.Slot * r.Stride),
		})
	}
	return cmds
}

// packAll resolves every job into its command, fanning out on the worker pool
// when the flush is large enough to amortize the handoff.
func (g *generator) packAll(jobs []packJob, cmds []Command) {
	if len(jobs) < minParallelPack || g.packWorkers <= 1 {
		for _, job := range jobs {
			cmds[job.out] = g.packOne(job)
		}
		return
	}

	var wg sync.WaitGroup
	taskID := 0
	for _, job := range jobs {
		wg.Add(1)
		jobCap := job // capture for closure
		id := taskID
		taskID++
		g.packPool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				cmds[jobCap.out] = g.packOne(jobCap)
				return nil, nil
			},
		})
	}
	wg.Wait()
}

// packOne packs a single object into its New or Update command.
func (g *generator) packOne(job packJob) Command {
	schema := job.obj.Schema()
	stride := schema.Stride()

	if job.isNew {
		return Command{
			Op:           OpNew,
			Target:       TargetObject,
			Handle:       job.obj.Handle(),
			Pipeline:     job.obj.Pipeline(),
			Slot:         job.slot,
			Stride:       stride,
			BufferOffset: uint64(job.slot * stride),
			Data:         schema.Pack(job.obj.Values()),
		}
	}

	data, spanOffset := schema.PackSpan(job.obj.Values(), job.dirty)
	return Command{
		Op:           OpUpdate,
		Target:       TargetObject,
		Handle:       job.obj.Handle(),
		Pipeline:     job.obj.Pipeline(),
		Slot:         job.slot,
		Stride:       stride,
		BufferOffset: uint64(job.slot*stride + spanOffset),
		Data:         data,
		Fields:       schema.DirtyNames(job.dirty),
	}
}

// appendUniformCommands drains dirty uniform blocks: full block on first
// flush, merged span afterwards.
func (g *generator) appendUniformCommands(cmds []Command, uniforms []*attribute.UniformBlock) []Command {
	for _, u := range uniforms {
		if u == nil {
			continue
		}
		schema := u.Schema()
		switch {
		case u.IsNew():
			cmds = append(cmds, Command{
				Op:       OpNew,
				Target:   TargetUniform,
				Pipeline: u.Pipeline(),
				Slot:     -1,
				Stride:   schema.Stride(),
				Data:     schema.Pack(u.Values()),
			})
		case u.Dirty() != 0:
			data, spanOffset := schema.PackSpan(u.Values(), u.Dirty())
			cmds = append(cmds, Command{
				Op:           OpUpdate,
				Target:       TargetUniform,
				Pipeline:     u.Pipeline(),
				Slot:         -1,
				Stride:       schema.Stride(),
				BufferOffset: uint64(spanOffset),
				Data:         data,
				Fields:       schema.DirtyNames(u.Dirty()),
			})
		default:
			continue
		}
		u.MarkFlushed()
	}
	return cmds
}
