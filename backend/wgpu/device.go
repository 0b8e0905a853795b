package wgpu

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/italicsjenga/portability/driver"
)

const fenceTimeout = 5 * time.Second

// spirvMagic is the first word of a SPIR-V module, little-endian.
const spirvMagic = 0x07230203

const hostHeapIndex = 1

// Device wraps one opened HAL device.
type Device struct {
	handle hal.Device
	queue  *Queue
}

// Caps: the HAL tracks hazards itself, so fine-grained transitions are
// declined and the frontend collapses barriers to no-ops here. Events have
// no HAL equivalent.
func (d *Device) Caps() driver.Caps {
	return driver.Caps{
		Graphics:     false,
		Compute:      true,
		Transfer:     true,
		Events:       false,
		FineBarriers: false,
	}
}

func (d *Device) Queue() driver.Queue { return d.queue }

// Allocate returns an emulated allocation. The HAL places buffer storage
// itself, so host-heap memory carries a shadow that flush/invalidate
// reconcile with the bound buffers.
func (d *Device) Allocate(heap int, size uint64) (driver.Memory, error) {
	m := &Memory{device: d, size: size}
	if heap == hostHeapIndex {
		m.data = make([]byte, size)
	}
	return m, nil
}

func (d *Device) CreateBuffer(size uint64, usage driver.BufferUsage) (driver.Buffer, error) {
	desc := &hal.BufferDescriptor{
		Size:  size,
		Usage: bufferUsage(usage),
	}
	buf, err := d.handle.CreateBuffer(desc)
	if err != nil {
		return nil, fmt.Errorf("wgpu: create buffer: %w", err)
	}
	return &Buffer{device: d, handle: buf, size: size}, nil
}

func (d *Device) CreateImage(desc driver.ImageDesc) (driver.Image, error) {
	depth := desc.Depth
	if depth == 0 {
		depth = 1
	}
	mips := desc.MipLevels
	if mips == 0 {
		mips = 1
	}
	layers := desc.ArrayLayers
	if layers == 0 {
		layers = 1
	}
	if depth > 1 && layers > 1 {
		return nil, fmt.Errorf("wgpu: 3d array textures not supported")
	}

	var usage gputypes.TextureUsage
	if desc.TransferSrc {
		usage |= gputypes.TextureUsageCopySrc
	}
	if desc.TransferDst {
		usage |= gputypes.TextureUsageCopyDst
	}
	if desc.Sampled {
		usage |= gputypes.TextureUsageTextureBinding
	}
	if desc.RenderTarget {
		usage |= gputypes.TextureUsageRenderAttachment
	}

	tex, err := d.handle.CreateTexture(&hal.TextureDescriptor{
		Size: hal.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: depth * layers,
		},
		MipLevelCount: mips,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        textureFormat(desc.Format),
		Usage:         usage,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create texture: %w", err)
	}
	return &Image{
		device: d,
		handle: tex,
		width:  desc.Width,
		height: desc.Height,
		format: desc.Format,
	}, nil
}

// CreateShader takes SPIR-V words or, when the magic is absent, WGSL text
// compiled through naga.
func (d *Device) CreateShader(code []byte) (driver.Shader, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("wgpu: empty shader")
	}
	if len(code) < 4 || binary.LittleEndian.Uint32(code) != spirvMagic {
		compiled, err := naga.Compile(string(code))
		if err != nil {
			return nil, fmt.Errorf("wgpu: wgsl compile: %w", err)
		}
		code = compiled
	}
	if len(code)%4 != 0 {
		return nil, fmt.Errorf("wgpu: shader code not word-aligned")
	}

	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	module, err := d.handle.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Source: hal.ShaderSource{SPIRV: words},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create shader module: %w", err)
	}
	return &Shader{device: d, handle: module}, nil
}

// CreatePipeline builds one bind group layout per set from the slot list,
// then the pipeline layout and compute pipeline.
func (d *Device) CreatePipeline(desc driver.PipelineDesc) (driver.Pipeline, error) {
	if !desc.Compute {
		return nil, fmt.Errorf("wgpu: graphics pipelines not supported")
	}
	if len(desc.Shaders) != 1 {
		return nil, fmt.Errorf("wgpu: compute pipeline needs one shader")
	}
	if desc.PushSize > 0 {
		return nil, fmt.Errorf("wgpu: push constants not supported")
	}
	shader, ok := desc.Shaders[0].(*Shader)
	if !ok {
		return nil, fmt.Errorf("wgpu: foreign shader object")
	}

	bindLayouts, err := d.buildBindLayouts(desc.Layout)
	if err != nil {
		return nil, err
	}

	layout, err := d.handle.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		BindGroupLayouts: bindLayouts,
	})
	if err != nil {
		destroyBindLayouts(d, bindLayouts)
		return nil, fmt.Errorf("wgpu: create pipeline layout: %w", err)
	}

	pipeline, err := d.handle.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Layout:  layout,
		Compute: hal.ComputeState{Module: shader.handle, EntryPoint: "main"},
	})
	if err != nil {
		d.handle.DestroyPipelineLayout(layout)
		destroyBindLayouts(d, bindLayouts)
		return nil, fmt.Errorf("wgpu: create compute pipeline: %w", err)
	}

	return &Pipeline{
		device:      d,
		handle:      pipeline,
		layout:      layout,
		bindLayouts: bindLayouts,
	}, nil
}

func (d *Device) buildBindLayouts(slots []driver.BindingSlot) ([]hal.BindGroupLayout, error) {
	var maxSet uint32
	for _, s := range slots {
		if s.Set+1 > maxSet {
			maxSet = s.Set + 1
		}
	}

	out := make([]hal.BindGroupLayout, maxSet)
	for set := uint32(0); set < maxSet; set++ {
		var entries []gputypes.BindGroupLayoutEntry
		for _, s := range slots {
			if s.Set != set {
				continue
			}
			entries = append(entries, layoutEntry(s))
		}
		layout, err := d.handle.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Entries: entries,
		})
		if err != nil {
			destroyBindLayouts(d, out[:set])
			return nil, fmt.Errorf("wgpu: create bind group layout: %w", err)
		}
		out[set] = layout
	}
	return out, nil
}

func layoutEntry(s driver.BindingSlot) gputypes.BindGroupLayoutEntry {
	entry := gputypes.BindGroupLayoutEntry{
		Binding:    s.Binding,
		Visibility: gputypes.ShaderStageCompute,
	}
	switch s.Kind {
	case driver.BindStorageBuffer:
		entry.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
	case driver.BindStorageImage:
		entry.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessReadWrite,
			Format:        gputypes.TextureFormatRGBA8Unorm,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case driver.BindSampledImage:
		entry.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	default:
		entry.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
	}
	return entry
}

func destroyBindLayouts(d *Device, layouts []hal.BindGroupLayout) {
	for _, l := range layouts {
		if l != nil {
			d.handle.DestroyBindGroupLayout(l)
		}
	}
}

func (d *Device) CreateFence(signaled bool) (driver.Fence, error) {
	f, err := d.handle.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("wgpu: create fence: %w", err)
	}
	return &Fence{device: d, handle: f, initial: signaled}, nil
}

func (d *Device) CreateSemaphore() (driver.Semaphore, error) {
	// The HAL queue is single and in-order; nothing to wait on.
	return &Semaphore{}, nil
}

func (d *Device) CreateEvent() (driver.Event, error) {
	return nil, fmt.Errorf("wgpu: events not supported")
}

func (d *Device) NewEncoder() (driver.Encoder, error) {
	enc, err := d.handle.CreateCommandEncoder(&hal.CommandEncoderDescriptor{})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	return &Encoder{device: d, enc: enc}, nil
}

// WaitIdle round-trips an empty submission through a fence.
func (d *Device) WaitIdle() error {
	f, err := d.handle.CreateFence()
	if err != nil {
		return fmt.Errorf("wgpu: wait idle: %w", err)
	}
	defer d.handle.DestroyFence(f)
	if err := d.queue.handle.Submit(nil, f, 1); err != nil {
		return fmt.Errorf("wgpu: wait idle submit: %w", err)
	}
	if _, err := d.handle.Wait(f, 1, fenceTimeout); err != nil {
		return fmt.Errorf("wgpu: wait idle: %w", err)
	}
	return nil
}

func (d *Device) Close() error {
	d.handle.Destroy()
	return nil
}

// memBinding records one buffer bound into an emulated allocation.
type memBinding struct {
	buffer *Buffer
	offset uint64
}

// Memory is an emulated allocation. On the host heap it holds a shadow
// slice; Flush pushes dirty ranges into bound buffers through the queue and
// Invalidate pulls them back.
type Memory struct {
	mu       sync.Mutex
	device   *Device
	size     uint64
	data     []byte
	bindings []memBinding
}

func (m *Memory) Map(offset, size uint64) ([]byte, error) {
	if m.data == nil {
		return nil, fmt.Errorf("wgpu: memory not host-visible")
	}
	if offset+size > m.size {
		return nil, fmt.Errorf("wgpu: map out of range")
	}
	return m.data[offset : offset+size], nil
}

func (m *Memory) Unmap() {}

func (m *Memory) Flush(offset, size uint64) error {
	if m.data == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bindings {
		lo, hi, bufLo := overlap(offset, size, b.offset, b.buffer.size)
		if hi <= lo {
			continue
		}
		m.device.queue.handle.WriteBuffer(b.buffer.handle, bufLo, m.data[lo:hi])
	}
	return nil
}

func (m *Memory) Invalidate(offset, size uint64) error {
	if m.data == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bindings {
		lo, hi, bufLo := overlap(offset, size, b.offset, b.buffer.size)
		if hi <= lo {
			continue
		}
		if err := m.device.queue.handle.ReadBuffer(b.buffer.handle, bufLo, m.data[lo:hi]); err != nil {
			return fmt.Errorf("wgpu: invalidate: %w", err)
		}
	}
	return nil
}

func (m *Memory) Free() {
	m.mu.Lock()
	m.bindings = nil
	m.data = nil
	m.mu.Unlock()
}

func (m *Memory) bind(b *Buffer, offset uint64) {
	m.mu.Lock()
	m.bindings = append(m.bindings, memBinding{buffer: b, offset: offset})
	m.mu.Unlock()
}

// overlap intersects a flush range with one binding's span. Returned lo/hi
// index the memory shadow; bufLo is the matching buffer offset.
func overlap(flushOff, flushSize, bindOff, bufSize uint64) (lo, hi, bufLo uint64) {
	lo = flushOff
	if bindOff > lo {
		lo = bindOff
	}
	hi = flushOff + flushSize
	if end := bindOff + bufSize; end < hi {
		hi = end
	}
	if hi <= lo {
		return 0, 0, 0
	}
	return lo, hi, lo - bindOff
}

type Buffer struct {
	device *Device
	handle hal.Buffer
	size   uint64
	mem    *Memory
	memOff uint64
}

// Requirements: the HAL owns placement, so any heap serves and alignment
// is the usual uniform-offset granularity.
func (b *Buffer) Requirements() driver.MemoryRequirements {
	return driver.MemoryRequirements{
		Size:      b.size,
		Alignment: 256,
		HeapMask:  (1 << 0) | (1 << hostHeapIndex),
	}
}

// Bind records the association. A host-shadowed allocation seeds the
// buffer with whatever the shadow already holds.
func (b *Buffer) Bind(mem driver.Memory, offset uint64) error {
	m, ok := mem.(*Memory)
	if !ok {
		return fmt.Errorf("wgpu: foreign memory object")
	}
	b.mem = m
	b.memOff = offset
	if m.data != nil {
		m.bind(b, offset)
		b.device.queue.handle.WriteBuffer(b.handle, 0, m.data[offset:offset+b.size])
	}
	return nil
}

func (b *Buffer) Destroy() {
	b.device.handle.DestroyBuffer(b.handle)
}

type Image struct {
	device *Device
	handle hal.Texture
	width  uint32
	height uint32
	format uint32
}

func (i *Image) Requirements() driver.MemoryRequirements {
	return driver.MemoryRequirements{
		Size:      uint64(i.width) * uint64(i.height) * 4,
		Alignment: 256,
		HeapMask:  1 << 0,
	}
}

// Bind is a no-op: HAL textures carry their own storage.
func (i *Image) Bind(mem driver.Memory, offset uint64) error {
	if _, ok := mem.(*Memory); !ok {
		return fmt.Errorf("wgpu: foreign memory object")
	}
	return nil
}

func (i *Image) Destroy() {
	i.device.handle.DestroyTexture(i.handle)
}

type Shader struct {
	device *Device
	handle hal.ShaderModule
}

func (s *Shader) Destroy() {
	s.device.handle.DestroyShaderModule(s.handle)
}

// Pipeline owns its layout objects; they die with it.
type Pipeline struct {
	device      *Device
	handle      hal.ComputePipeline
	layout      hal.PipelineLayout
	bindLayouts []hal.BindGroupLayout
}

func (p *Pipeline) Destroy() {
	p.device.handle.DestroyComputePipeline(p.handle)
	p.device.handle.DestroyPipelineLayout(p.layout)
	destroyBindLayouts(p.device, p.bindLayouts)
}

// Fence adapts the HAL's value-based fence to binary semantics: each
// submission bumps the target value, Reset moves the observed baseline up
// so the fence reads unsignaled again.
type Fence struct {
	mu       sync.Mutex
	device   *Device
	handle   hal.Fence
	target   uint64
	baseline uint64
	initial  bool
}

func (f *Fence) Signaled() (bool, error) {
	f.mu.Lock()
	target, baseline, initial := f.target, f.baseline, f.initial
	f.mu.Unlock()
	if target == baseline {
		return initial, nil
	}
	return f.device.handle.Wait(f.handle, target, 0)
}

func (f *Fence) Wait(timeout time.Duration) (bool, error) {
	f.mu.Lock()
	target, baseline, initial := f.target, f.baseline, f.initial
	f.mu.Unlock()
	if target == baseline {
		if initial {
			return true, nil
		}
		if timeout == 0 {
			return false, nil
		}
		// Nothing was ever submitted against it; the value can't arrive.
		time.Sleep(timeout)
		return false, nil
	}
	if timeout < 0 {
		timeout = fenceTimeout
	}
	return f.device.handle.Wait(f.handle, target, timeout)
}

func (f *Fence) Reset() error {
	f.mu.Lock()
	f.baseline = f.target
	f.initial = false
	f.mu.Unlock()
	return nil
}

func (f *Fence) Destroy() {
	f.device.handle.DestroyFence(f.handle)
}

// nextValue reserves the value a submission will signal.
func (f *Fence) nextValue() uint64 {
	f.mu.Lock()
	f.target++
	v := f.target
	f.mu.Unlock()
	return v
}

// Semaphore is a placeholder: the single HAL queue executes in order, so
// intra-queue waits are already satisfied.
type Semaphore struct{}

func (s *Semaphore) Destroy() {}

func bufferUsage(u driver.BufferUsage) gputypes.BufferUsage {
	var f gputypes.BufferUsage
	if u&driver.BufferUsageTransferSrc != 0 {
		f |= gputypes.BufferUsageCopySrc
	}
	if u&driver.BufferUsageTransferDst != 0 {
		f |= gputypes.BufferUsageCopyDst
	}
	if u&driver.BufferUsageUniform != 0 {
		f |= gputypes.BufferUsageUniform
	}
	if u&driver.BufferUsageStorage != 0 {
		f |= gputypes.BufferUsageStorage
	}
	if u&driver.BufferUsageIndex != 0 {
		f |= gputypes.BufferUsageIndex
	}
	if u&driver.BufferUsageVertex != 0 {
		f |= gputypes.BufferUsageVertex
	}
	if u&driver.BufferUsageIndirect != 0 {
		f |= gputypes.BufferUsageIndirect
	}
	// Readback and seeding go through the queue either way.
	f |= gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	return f
}

func textureFormat(format uint32) gputypes.TextureFormat {
	switch format {
	case 37: // R8G8B8A8Unorm
		return gputypes.TextureFormatRGBA8Unorm
	case 43: // R8G8B8A8Srgb
		return gputypes.TextureFormatRGBA8UnormSrgb
	case 44: // B8G8R8A8Unorm
		return gputypes.TextureFormatBGRA8Unorm
	case 50: // B8G8R8A8Srgb
		return gputypes.TextureFormatBGRA8UnormSrgb
	case 100: // R32Sfloat
		return gputypes.TextureFormatR32Float
	case 103: // R32G32Sfloat
		return gputypes.TextureFormatRG32Float
	case 109: // R32G32B32A32Sfloat
		return gputypes.TextureFormatRGBA32Float
	}
	return gputypes.TextureFormatRGBA8Unorm
}
