package gpu

import (
	"fmt"
	"log"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/core/command"
	"github.com/Carmen-Shannon/oxy-core/core/frame"
	"github.com/cogentcore/webgpu/wgpu"
)

// uniformAlign is the minimum uniform buffer size granularity.
const uniformAlign = 16

// WGPUResourceLayer is the wgpu-backed ResourceLayer. It additionally exposes
// the live device objects and per-pipeline buffers so a render pass can bind
// them directly.
type WGPUResourceLayer interface {
	ResourceLayer

	// Device returns the wgpu device.
	Device() *wgpu.Device

	// Queue returns the wgpu queue.
	Queue() *wgpu.Queue

	// InstanceBuffer returns the pipeline's instance attribute buffer, or nil
	// if no object of that pipeline has been uploaded yet.
	//
	// Parameters:
	//   - pipeline: the pipeline key
	//
	// Returns:
	//   - *wgpu.Buffer: the instance buffer or nil
	InstanceBuffer(pipeline string) *wgpu.Buffer

	// UniformBuffer returns the pipeline's uniform block buffer, or nil if
	// the pipeline has no uniform block uploaded yet.
	//
	// Parameters:
	//   - pipeline: the pipeline key
	//
	// Returns:
	//   - *wgpu.Buffer: the uniform buffer or nil
	UniformBuffer(pipeline string) *wgpu.Buffer
}

// instanceBuffer tracks one pipeline's attribute buffer and its byte capacity.
type instanceBuffer struct {
	buf  *wgpu.Buffer
	size uint64
}

type wgpuResourceLayer struct {
	mu       *sync.Mutex
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	surface  *wgpu.Surface

	instanceBuffers map[string]*instanceBuffer
	uniformBuffers  map[string]*wgpu.Buffer

	// initialInstances sizes a pipeline's first buffer allocation, in
	// instances of that pipeline's stride.
	initialInstances int

	onComplete func(frame.Token)

	// pending carries submitted tokens to the completion goroutine in
	// submission order; the device finishes submissions in the same order.
	pending  chan frame.Token
	stop     chan struct{}
	pumpDone chan struct{}
}

var _ WGPUResourceLayer = &wgpuResourceLayer{}

// NewWGPUResourceLayer creates a ResourceLayer on a fresh wgpu device.
// Locks the calling goroutine to its OS thread; call it from the thread that
// owns the window when a surface descriptor is supplied. Panics if the
// adapter or device cannot be acquired, matching how unrecoverable device
// setup is handled elsewhere.
//
// Parameters:
//   - options: functional options to configure the layer
//
// Returns:
//   - WGPUResourceLayer: the new layer with its completion goroutine running
func NewWGPUResourceLayer(options ...WGPULayerBuilderOption) WGPUResourceLayer {
	runtime.LockOSThread()
	l := &wgpuResourceLayer{
		mu:               &sync.Mutex{},
		instance:         wgpu.CreateInstance(nil),
		instanceBuffers:  make(map[string]*instanceBuffer),
		uniformBuffers:   make(map[string]*wgpu.Buffer),
		initialInstances: 64,
		pending:          make(chan frame.Token, 64),
		stop:             make(chan struct{}),
		pumpDone:         make(chan struct{}),
	}
	cfg := &wgpuLayerConfig{}
	for _, opt := range options {
		opt(l, cfg)
	}

	if cfg.surfaceDescriptor != nil {
		l.surface = l.instance.CreateSurface(cfg.surfaceDescriptor)
	}

	a, err := l.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: cfg.forceFallbackAdapter,
		CompatibleSurface:    l.surface,
	})
	if err != nil {
		panic(err)
	}
	l.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Scene Device",
	})
	if err != nil {
		panic(err)
	}
	l.device = d
	l.queue = d.GetQueue()

	go l.pump()
	return l
}

// pump waits the device out one submission at a time and fires the completion
// callback with the matching token. Runs until Release.
func (l *wgpuResourceLayer) pump() {
	defer close(l.pumpDone)
	for {
		select {
		case token := <-l.pending:
			l.device.Poll(true, nil)
			l.mu.Lock()
			cb := l.onComplete
			l.mu.Unlock()
			if cb != nil {
				cb(token)
			}
		case <-l.stop:
			return
		}
	}
}

func (l *wgpuResourceLayer) Execute(cmds []command.Command, token frame.Token) error {
	l.mu.Lock()

	for i := range cmds {
		var err error
		switch cmds[i].Target {
		case command.TargetObject:
			err = l.executeObject(&cmds[i])
		case command.TargetUniform:
			err = l.executeUniform(&cmds[i])
		}
		if err != nil {
			l.mu.Unlock()
			return fmt.Errorf("execute %s for pipeline %q: %w", cmds[i].Op, cmds[i].Pipeline, err)
		}
	}

	// An empty submission marks the frame's position in the queue so the
	// completion goroutine can wait it out; queued buffer writes flush with it.
	encoder, err := l.device.CreateCommandEncoder(nil)
	if err != nil {
		l.mu.Unlock()
		return fmt.Errorf("create frame encoder: %w", err)
	}
	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		encoder.Release()
		l.mu.Unlock()
		return fmt.Errorf("finish frame encoder: %w", err)
	}
	l.queue.Submit(commandBuffer)
	commandBuffer.Release()
	encoder.Release()
	l.mu.Unlock()

	l.pending <- token
	return nil
}

// executeObject applies one instance-buffer command. Must hold the lock.
func (l *wgpuResourceLayer) executeObject(cmd *command.Command) error {
	switch cmd.Op {
	case command.OpNew, command.OpUpdate:
		ib, err := l.ensureInstanceBuffer(cmd.Pipeline, cmd.Stride, cmd.BufferOffset+uint64(len(cmd.Data)))
		if err != nil {
			return err
		}
		l.queue.WriteBuffer(ib.buf, cmd.BufferOffset, cmd.Data)
	case command.OpDelete:
		// The slot's bytes stay in place; the region is simply no longer
		// covered by any batch until a New reuses the slot.
	}
	return nil
}

// executeUniform applies one uniform-block command. Must hold the lock.
func (l *wgpuResourceLayer) executeUniform(cmd *command.Command) error {
	buf, ok := l.uniformBuffers[cmd.Pipeline]
	if !ok {
		size := uint64(common.AlignUp(cmd.Stride, uniformAlign))
		created, err := l.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label:            cmd.Pipeline + " Uniform Buffer",
			Size:             size,
			Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
			MappedAtCreation: false,
		})
		if err != nil {
			return err
		}
		log.Printf("gpu: created uniform buffer for pipeline %q (%d bytes)", cmd.Pipeline, size)
		l.uniformBuffers[cmd.Pipeline] = created
		buf = created
	}
	l.queue.WriteBuffer(buf, cmd.BufferOffset, cmd.Data)
	return nil
}

// ensureInstanceBuffer returns the pipeline's instance buffer, creating or
// growing it so that at least need bytes are addressable. Growth doubles the
// capacity and copies the live contents on the device. Must hold the lock.
func (l *wgpuResourceLayer) ensureInstanceBuffer(pipeline string, stride int, need uint64) (*instanceBuffer, error) {
	ib, ok := l.instanceBuffers[pipeline]
	if !ok {
		size := uint64(l.initialInstances * stride)
		if size < need {
			instances := (need + uint64(stride) - 1) / uint64(stride)
			size = instances * uint64(stride)
		}
		buf, err := l.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label:            pipeline + " Instance Buffer",
			Size:             size,
			Usage:            wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
			MappedAtCreation: false,
		})
		if err != nil {
			return nil, err
		}
		log.Printf("gpu: created instance buffer for pipeline %q (%d bytes)", pipeline, size)
		ib = &instanceBuffer{buf: buf, size: size}
		l.instanceBuffers[pipeline] = ib
		return ib, nil
	}

	if need <= ib.size {
		return ib, nil
	}

	size := ib.size * 2
	for size < need {
		size *= 2
	}
	grown, err := l.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            pipeline + " Instance Buffer",
		Size:             size,
		Usage:            wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, err
	}

	encoder, err := l.device.CreateCommandEncoder(nil)
	if err != nil {
		grown.Release()
		return nil, err
	}
	encoder.CopyBufferToBuffer(ib.buf, 0, grown, 0, ib.size)
	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		encoder.Release()
		grown.Release()
		return nil, err
	}
	l.queue.Submit(commandBuffer)
	commandBuffer.Release()
	encoder.Release()

	log.Printf("gpu: grew instance buffer for pipeline %q (%d -> %d bytes)", pipeline, ib.size, size)
	ib.buf.Release()
	ib.buf = grown
	ib.size = size
	return ib, nil
}

func (l *wgpuResourceLayer) SignalOnComplete(fn func(token frame.Token)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onComplete = fn
}

func (l *wgpuResourceLayer) Invalidate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for pipeline, ib := range l.instanceBuffers {
		ib.buf.Release()
		delete(l.instanceBuffers, pipeline)
	}
	for pipeline, buf := range l.uniformBuffers {
		buf.Release()
		delete(l.uniformBuffers, pipeline)
	}
	log.Printf("gpu: invalidated all pipeline buffers")
	return nil
}

func (l *wgpuResourceLayer) Release() {
	close(l.stop)
	<-l.pumpDone

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ib := range l.instanceBuffers {
		ib.buf.Release()
	}
	for _, buf := range l.uniformBuffers {
		buf.Release()
	}
	l.instanceBuffers = nil
	l.uniformBuffers = nil

	if l.device != nil {
		l.device.Release()
	}
	if l.adapter != nil {
		l.adapter.Release()
	}
	if l.surface != nil {
		l.surface.Release()
	}
	if l.instance != nil {
		l.instance.Release()
	}
}

func (l *wgpuResourceLayer) Device() *wgpu.Device {
	return l.device
}

func (l *wgpuResourceLayer) Queue() *wgpu.Queue {
	return l.queue
}

func (l *wgpuResourceLayer) InstanceBuffer(pipeline string) *wgpu.Buffer {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ib, ok := l.instanceBuffers[pipeline]; ok {
		return ib.buf
	}
	return nil
}

func (l *wgpuResourceLayer) UniformBuffer(pipeline string) *wgpu.Buffer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.uniformBuffers[pipeline]
}
