package soft

import (
	"fmt"
	"sync"

	"github.com/italicsjenga/portability/driver"
)

// Device is the opened soft adapter. Resource creation is bookkeeping only;
// the interesting work happens in the encoder and queue.
type Device struct {
	mu    sync.Mutex
	heaps []driver.Heap
	queue *Queue
}

func (d *Device) Caps() driver.Caps {
	return driver.Caps{
		Graphics:     false,
		Compute:      true,
		Transfer:     true,
		Events:       true,
		FineBarriers: true,
	}
}

func (d *Device) Queue() driver.Queue { return d.queue }

func (d *Device) Allocate(heap int, size uint64) (driver.Memory, error) {
	if heap < 0 || heap >= len(d.heaps) {
		return nil, fmt.Errorf("soft: heap index %d out of range", heap)
	}
	if size > d.heaps[heap].Size {
		return nil, fmt.Errorf("soft: allocation of %d exceeds heap size", size)
	}
	return &Memory{data: make([]byte, size)}, nil
}

func (d *Device) CreateBuffer(size uint64, usage driver.BufferUsage) (driver.Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("soft: zero-size buffer")
	}
	return &Buffer{size: size, usage: usage}, nil
}

func (d *Device) CreateImage(desc driver.ImageDesc) (driver.Image, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("soft: zero-extent image")
	}
	depth := desc.Depth
	if depth == 0 {
		depth = 1
	}
	layers := desc.ArrayLayers
	if layers == 0 {
		layers = 1
	}
	// Emulated images store four bytes per texel regardless of format.
	size := uint64(desc.Width) * uint64(desc.Height) * uint64(depth) * uint64(layers) * 4
	return &Image{desc: desc, size: size}, nil
}

func (d *Device) CreateShader(code []byte) (driver.Shader, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("soft: empty shader module")
	}
	dup := make([]byte, len(code))
	copy(dup, code)
	return &Shader{code: dup}, nil
}

func (d *Device) CreatePipeline(desc driver.PipelineDesc) (driver.Pipeline, error) {
	if !desc.Compute {
		return nil, errUnsupported("graphics pipelines")
	}
	return &Pipeline{desc: desc}, nil
}

func (d *Device) CreateFence(signaled bool) (driver.Fence, error) {
	return newFence(signaled), nil
}

func (d *Device) CreateSemaphore() (driver.Semaphore, error) {
	return &Semaphore{}, nil
}

func (d *Device) CreateEvent() (driver.Event, error) {
	return &Event{}, nil
}

func (d *Device) NewEncoder() (driver.Encoder, error) {
	return &Encoder{}, nil
}

// WaitIdle is trivial: submissions execute before Submit returns.
func (d *Device) WaitIdle() error { return nil }

func (d *Device) Close() error { return nil }

// Buffer is a sized claim over a Memory range; data lives in the bound
// memory, matching how the translated API separates resources from
// allocations.
type Buffer struct {
	size   uint64
	usage  driver.BufferUsage
	mem    *Memory
	offset uint64
}

func (b *Buffer) Requirements() driver.MemoryRequirements {
	return driver.MemoryRequirements{
		Size:      b.size,
		Alignment: 16,
		HeapMask:  0x7, // any emulated heap can back any resource
	}
}

func (b *Buffer) Bind(mem driver.Memory, offset uint64) error {
	m, ok := mem.(*Memory)
	if !ok {
		return fmt.Errorf("soft: foreign memory object")
	}
	if offset+b.size > uint64(len(m.data)) {
		return fmt.Errorf("soft: bind range exceeds allocation")
	}
	b.mem = m
	b.offset = offset
	return nil
}

func (b *Buffer) Destroy() { b.mem = nil }

// bytes returns the bound backing range.
func (b *Buffer) bytes() []byte {
	if b.mem == nil {
		return nil
	}
	return b.mem.data[b.offset : b.offset+b.size]
}

type Image struct {
	desc   driver.ImageDesc
	size   uint64
	mem    *Memory
	offset uint64
}

func (i *Image) Requirements() driver.MemoryRequirements {
	return driver.MemoryRequirements{Size: i.size, Alignment: 16, HeapMask: 0x7}
}

func (i *Image) Bind(mem driver.Memory, offset uint64) error {
	m, ok := mem.(*Memory)
	if !ok {
		return fmt.Errorf("soft: foreign memory object")
	}
	if offset+i.size > uint64(len(m.data)) {
		return fmt.Errorf("soft: bind range exceeds allocation")
	}
	i.mem = m
	i.offset = offset
	return nil
}

func (i *Image) Destroy() { i.mem = nil }

func (i *Image) bytes() []byte {
	if i.mem == nil {
		return nil
	}
	return i.mem.data[i.offset : i.offset+i.size]
}

type Shader struct {
	code []byte
}

func (s *Shader) Destroy() { s.code = nil }

type Pipeline struct {
	desc driver.PipelineDesc
}

func (p *Pipeline) Destroy() {}
