package vulkan

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/italicsjenga/portability/driver"
)

// Device is an opened Vulkan logical device with one queue, one command
// pool for encoders and one descriptor pool for transient sets.
type Device struct {
	mu       sync.Mutex
	handle   vk.Device
	family   uint32
	queue    *Queue
	cmdPool  vk.CommandPool
	descPool vk.DescriptorPool
}

func (d *Device) Caps() driver.Caps {
	// Graphics stays off until the raster encoder lands; everything
	// advertised here is complete.
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
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: uint32(heap),
	}
	var deviceMemory vk.DeviceMemory
	if err := vk.Error(vk.AllocateMemory(d.handle, &allocateInfo, nil, &deviceMemory)); err != nil {
		return nil, fmt.Errorf("vulkan: allocate: %w", err)
	}
	return &Memory{device: d, handle: deviceMemory, size: size}, nil
}

func (d *Device) CreateBuffer(size uint64, usage driver.BufferUsage) (driver.Buffer, error) {
	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       bufferUsage(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := vk.Error(vk.CreateBuffer(d.handle, &bufferCreateInfo, nil, &buffer)); err != nil {
		return nil, fmt.Errorf("vulkan: create buffer: %w", err)
	}
	return &Buffer{device: d, handle: buffer, size: size}, nil
}

func (d *Device) CreateImage(desc driver.ImageDesc) (driver.Image, error) {
	mips := desc.MipLevels
	if mips == 0 {
		mips = 1
	}
	layers := desc.ArrayLayers
	if layers == 0 {
		layers = 1
	}
	depth := desc.Depth
	if depth == 0 {
		depth = 1
	}
	imageType := vk.ImageType2d
	if depth > 1 {
		imageType = vk.ImageType3d
	}

	var usage vk.ImageUsageFlags
	if desc.TransferSrc {
		usage |= vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit)
	}
	if desc.TransferDst {
		usage |= vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)
	}
	if desc.Sampled {
		usage |= vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	}
	if desc.RenderTarget {
		usage |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     imageType,
		Format:        vk.Format(desc.Format),
		Extent:        vk.Extent3D{Width: desc.Width, Height: desc.Height, Depth: depth},
		MipLevels:     mips,
		ArrayLayers:   layers,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var image vk.Image
	if err := vk.Error(vk.CreateImage(d.handle, &imageCreateInfo, nil, &image)); err != nil {
		return nil, fmt.Errorf("vulkan: create image: %w", err)
	}
	return &Image{device: d, handle: image, mips: mips, layers: layers}, nil
}

func (d *Device) CreateShader(code []byte) (driver.Shader, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("vulkan: shader code must be non-empty words")
	}
	var module vk.ShaderModule
	err := vk.Error(vk.CreateShaderModule(d.handle, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    sliceUint32(code),
	}, nil, &module))
	if err != nil {
		return nil, fmt.Errorf("vulkan: create shader module: %w", err)
	}
	return &Shader{device: d, handle: module}, nil
}

// CreatePipeline builds the descriptor set layouts and pipeline layout
// from the flattened slot list, then the compute pipeline itself.
func (d *Device) CreatePipeline(desc driver.PipelineDesc) (driver.Pipeline, error) {
	if !desc.Compute {
		return nil, fmt.Errorf("vulkan: graphics pipelines not supported")
	}
	if len(desc.Shaders) != 1 {
		return nil, fmt.Errorf("vulkan: compute pipeline needs one shader")
	}
	shader, ok := desc.Shaders[0].(*Shader)
	if !ok {
		return nil, fmt.Errorf("vulkan: foreign shader object")
	}

	setLayouts, err := d.buildSetLayouts(desc.Layout)
	if err != nil {
		return nil, err
	}

	layoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	if desc.PushSize > 0 {
		layoutCreateInfo.PushConstantRangeCount = 1
		layoutCreateInfo.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageComputeBit),
			Offset:     0,
			Size:       desc.PushSize,
		}}
	}
	var layout vk.PipelineLayout
	if err := vk.Error(vk.CreatePipelineLayout(d.handle, &layoutCreateInfo, nil, &layout)); err != nil {
		destroySetLayouts(d, setLayouts)
		return nil, fmt.Errorf("vulkan: create pipeline layout: %w", err)
	}

	pipelineCreateInfo := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: shader.handle,
			PName:  safeString("main"),
		},
		Layout: layout,
	}
	pipelines := make([]vk.Pipeline, 1)
	err = vk.Error(vk.CreateComputePipelines(
		d.handle, vk.NullPipelineCache,
		1, []vk.ComputePipelineCreateInfo{pipelineCreateInfo},
		nil, pipelines))
	if err != nil {
		vk.DestroyPipelineLayout(d.handle, layout, nil)
		destroySetLayouts(d, setLayouts)
		return nil, fmt.Errorf("vulkan: create compute pipeline: %w", err)
	}

	return &Pipeline{
		device:     d,
		handle:     pipelines[0],
		layout:     layout,
		setLayouts: setLayouts,
		slots:      desc.Layout,
	}, nil
}

// buildSetLayouts groups the slot list by set index into one
// vk.DescriptorSetLayout per set, contiguous from zero.
func (d *Device) buildSetLayouts(slots []driver.BindingSlot) ([]vk.DescriptorSetLayout, error) {
	var maxSet uint32
	for _, s := range slots {
		if s.Set+1 > maxSet {
			maxSet = s.Set + 1
		}
	}

	out := make([]vk.DescriptorSetLayout, maxSet)
	for set := uint32(0); set < maxSet; set++ {
		var bindings []vk.DescriptorSetLayoutBinding
		for _, s := range slots {
			if s.Set != set {
				continue
			}
			count := s.Count
			if count == 0 {
				count = 1
			}
			bindings = append(bindings, vk.DescriptorSetLayoutBinding{
				Binding:         s.Binding,
				DescriptorType:  descriptorType(s.Kind),
				DescriptorCount: count,
				StageFlags:      vk.ShaderStageFlags(vk.ShaderStageComputeBit),
			})
		}
		createInfo := vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: uint32(len(bindings)),
			PBindings:    bindings,
		}
		if err := vk.Error(vk.CreateDescriptorSetLayout(d.handle, &createInfo, nil, &out[set])); err != nil {
			destroySetLayouts(d, out[:set])
			return nil, fmt.Errorf("vulkan: create set layout: %w", err)
		}
	}
	return out, nil
}

func destroySetLayouts(d *Device, layouts []vk.DescriptorSetLayout) {
	for _, l := range layouts {
		vk.DestroyDescriptorSetLayout(d.handle, l, nil)
	}
}

func descriptorType(k driver.BindingKind) vk.DescriptorType {
	switch k {
	case driver.BindStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	case driver.BindSampledImage:
		return vk.DescriptorTypeSampledImage
	case driver.BindStorageImage:
		return vk.DescriptorTypeStorageImage
	}
	return vk.DescriptorTypeUniformBuffer
}

func (d *Device) CreateFence(signaled bool) (driver.Fence, error) {
	fenceCreateInfo := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := vk.Error(vk.CreateFence(d.handle, &fenceCreateInfo, nil, &fence)); err != nil {
		return nil, fmt.Errorf("vulkan: create fence: %w", err)
	}
	return &Fence{device: d, handle: fence}, nil
}

func (d *Device) CreateSemaphore() (driver.Semaphore, error) {
	createInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	var sem vk.Semaphore
	if err := vk.Error(vk.CreateSemaphore(d.handle, &createInfo, nil, &sem)); err != nil {
		return nil, fmt.Errorf("vulkan: create semaphore: %w", err)
	}
	return &Semaphore{device: d, handle: sem}, nil
}

func (d *Device) CreateEvent() (driver.Event, error) {
	createInfo := vk.EventCreateInfo{SType: vk.StructureTypeEventCreateInfo}
	var event vk.Event
	if err := vk.Error(vk.CreateEvent(d.handle, &createInfo, nil, &event)); err != nil {
		return nil, fmt.Errorf("vulkan: create event: %w", err)
	}
	return &Event{device: d, handle: event}, nil
}

func (d *Device) NewEncoder() (driver.Encoder, error) {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.cmdPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cmdBuffers := make([]vk.CommandBuffer, 1)
	d.mu.Lock()
	err := vk.Error(vk.AllocateCommandBuffers(d.handle, &allocateInfo, cmdBuffers))
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("vulkan: allocate command buffer: %w", err)
	}
	return &Encoder{device: d, cb: cmdBuffers[0]}, nil
}

func (d *Device) WaitIdle() error {
	return vk.Error(vk.DeviceWaitIdle(d.handle))
}

func (d *Device) Close() error {
	vk.DestroyDescriptorPool(d.handle, d.descPool, nil)
	vk.DestroyCommandPool(d.handle, d.cmdPool, nil)
	vk.DestroyDevice(d.handle, nil)
	return nil
}

// Memory wraps one vk.DeviceMemory. Map keeps the native pointer and
// returns a byte view over it.
type Memory struct {
	device *Device
	handle vk.DeviceMemory
	size   uint64
}

func (m *Memory) Map(offset, size uint64) ([]byte, error) {
	var ptr unsafe.Pointer
	err := vk.Error(vk.MapMemory(m.device.handle, m.handle, vk.DeviceSize(offset), vk.DeviceSize(size), 0, &ptr))
	if err != nil {
		return nil, fmt.Errorf("vulkan: map: %w", err)
	}
	return toBytes(ptr, int(size)), nil
}

func (m *Memory) Unmap() {
	vk.UnmapMemory(m.device.handle, m.handle)
}

func (m *Memory) Flush(offset, size uint64) error {
	r := vk.MappedMemoryRange{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: m.handle,
		Offset: vk.DeviceSize(offset),
		Size:   vk.DeviceSize(size),
	}
	return vk.Error(vk.FlushMappedMemoryRanges(m.device.handle, 1, []vk.MappedMemoryRange{r}))
}

func (m *Memory) Invalidate(offset, size uint64) error {
	r := vk.MappedMemoryRange{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: m.handle,
		Offset: vk.DeviceSize(offset),
		Size:   vk.DeviceSize(size),
	}
	return vk.Error(vk.InvalidateMappedMemoryRanges(m.device.handle, 1, []vk.MappedMemoryRange{r}))
}

func (m *Memory) Free() {
	vk.FreeMemory(m.device.handle, m.handle, nil)
}

type Buffer struct {
	device *Device
	handle vk.Buffer
	size   uint64
}

func (b *Buffer) Requirements() driver.MemoryRequirements {
	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.device.handle, b.handle, &reqs)
	reqs.Deref()
	return driver.MemoryRequirements{
		Size:      uint64(reqs.Size),
		Alignment: uint64(reqs.Alignment),
		HeapMask:  reqs.MemoryTypeBits,
	}
}

func (b *Buffer) Bind(mem driver.Memory, offset uint64) error {
	m, ok := mem.(*Memory)
	if !ok {
		return fmt.Errorf("vulkan: foreign memory object")
	}
	return vk.Error(vk.BindBufferMemory(b.device.handle, b.handle, m.handle, vk.DeviceSize(offset)))
}

func (b *Buffer) Destroy() {
	vk.DestroyBuffer(b.device.handle, b.handle, nil)
}

type Image struct {
	device *Device
	handle vk.Image
	mips   uint32
	layers uint32
}

func (i *Image) Requirements() driver.MemoryRequirements {
	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(i.device.handle, i.handle, &reqs)
	reqs.Deref()
	return driver.MemoryRequirements{
		Size:      uint64(reqs.Size),
		Alignment: uint64(reqs.Alignment),
		HeapMask:  reqs.MemoryTypeBits,
	}
}

func (i *Image) Bind(mem driver.Memory, offset uint64) error {
	m, ok := mem.(*Memory)
	if !ok {
		return fmt.Errorf("vulkan: foreign memory object")
	}
	return vk.Error(vk.BindImageMemory(i.device.handle, i.handle, m.handle, vk.DeviceSize(offset)))
}

func (i *Image) Destroy() {
	vk.DestroyImage(i.device.handle, i.handle, nil)
}

type Shader struct {
	device *Device
	handle vk.ShaderModule
}

func (s *Shader) Destroy() {
	vk.DestroyShaderModule(s.device.handle, s.handle, nil)
}

// Pipeline owns its layout objects; they die with it.
type Pipeline struct {
	device     *Device
	handle     vk.Pipeline
	layout     vk.PipelineLayout
	setLayouts []vk.DescriptorSetLayout
	slots      []driver.BindingSlot
}

func (p *Pipeline) Destroy() {
	vk.DestroyPipeline(p.device.handle, p.handle, nil)
	vk.DestroyPipelineLayout(p.device.handle, p.layout, nil)
	destroySetLayouts(p.device, p.setLayouts)
}

type Fence struct {
	device *Device
	handle vk.Fence
}

func (f *Fence) Signaled() (bool, error) {
	switch vk.GetFenceStatus(f.device.handle, f.handle) {
	case vk.Success:
		return true, nil
	case vk.NotReady:
		return false, nil
	}
	return false, fmt.Errorf("vulkan: fence status lost")
}

func (f *Fence) Wait(timeout time.Duration) (bool, error) {
	var ns uint64
	switch {
	case timeout < 0:
		ns = ^uint64(0)
	default:
		ns = uint64(timeout.Nanoseconds())
	}
	r := vk.WaitForFences(f.device.handle, 1, []vk.Fence{f.handle}, vk.True, ns)
	switch r {
	case vk.Success:
		return true, nil
	case vk.Timeout:
		return false, nil
	}
	return false, vk.Error(r)
}

func (f *Fence) Reset() error {
	return vk.Error(vk.ResetFences(f.device.handle, 1, []vk.Fence{f.handle}))
}

func (f *Fence) Destroy() {
	vk.DestroyFence(f.device.handle, f.handle, nil)
}

type Semaphore struct {
	device *Device
	handle vk.Semaphore
}

func (s *Semaphore) Destroy() {
	vk.DestroySemaphore(s.device.handle, s.handle, nil)
}

type Event struct {
	device *Device
	handle vk.Event
}

func (e *Event) Set() error {
	return vk.Error(vk.SetEvent(e.device.handle, e.handle))
}

func (e *Event) Reset() error {
	return vk.Error(vk.ResetEvent(e.device.handle, e.handle))
}

func (e *Event) Signaled() bool {
	return vk.GetEventStatus(e.device.handle, e.handle) == vk.EventSet
}

func (e *Event) Destroy() {
	vk.DestroyEvent(e.device.handle, e.handle, nil)
}

func bufferUsage(u driver.BufferUsage) vk.BufferUsageFlags {
	var f vk.BufferUsageFlags
	if u&driver.BufferUsageTransferSrc != 0 {
		f |= vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
	}
	if u&driver.BufferUsageTransferDst != 0 {
		f |= vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	}
	if u&driver.BufferUsageUniform != 0 {
		f |= vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}
	if u&driver.BufferUsageStorage != 0 {
		f |= vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)
	}
	if u&driver.BufferUsageIndex != 0 {
		f |= vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	}
	if u&driver.BufferUsageVertex != 0 {
		f |= vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	}
	if u&driver.BufferUsageIndirect != 0 {
		f |= vk.BufferUsageFlags(vk.BufferUsageIndirectBufferBit)
	}
	return f
}

func sliceUint32(data []byte) []uint32 {
	const m = 0x7fffffff
	return (*[m / 4]uint32)(unsafe.Pointer((*sliceHeader)(unsafe.Pointer(&data)).Data))[:len(data)/4]
}

type sliceHeader struct {
	Data uintptr
	Len  int
	Cap  int
}

func toBytes(ptr unsafe.Pointer, lenInBytes int) []byte {
	const m = 0x7fffffff
	return (*[m]byte)(ptr)[:lenInBytes]
}
