// Package driver defines the hardware-abstraction interface the translation
// layer encodes into. Each compiled-in backend (soft, vulkan, wgpu, ...)
// provides one Driver implementation and registers it by name.
//
// The interface is deliberately narrower than the translated API: the
// frontend owns all stateful bookkeeping (handles, command-buffer state,
// memory claims, descriptor contents) and only reaches down here for things
// that must touch the native API.
package driver

import "time"

// DeviceType classifies an adapter the way the target API reports physical
// devices.
type DeviceType int

const (
	DeviceTypeOther DeviceType = iota
	DeviceTypeIntegratedGPU
	DeviceTypeDiscreteGPU
	DeviceTypeVirtualGPU
	DeviceTypeCPU
)

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeIntegratedGPU:
		return "IntegratedGPU"
	case DeviceTypeDiscreteGPU:
		return "DiscreteGPU"
	case DeviceTypeVirtualGPU:
		return "VirtualGPU"
	case DeviceTypeCPU:
		return "CPU"
	}
	return "Other"
}

// MemoryFlags describe what a native heap can do, in the target API's
// memory-property vocabulary. The frontend derives its emulated memory-type
// table from these.
type MemoryFlags uint32

const (
	MemDeviceLocal MemoryFlags = 1 << iota
	MemHostVisible
	MemHostCoherent
	MemHostCached
	MemLazilyAllocated
)

// Heap is one native memory heap exposed by an adapter.
type Heap struct {
	Size  uint64
	Flags MemoryFlags
}

// Limits carries the subset of adapter limits the frontend reports and
// enforces.
type Limits struct {
	MaxBufferSize        uint64
	MaxImageDimension2D  uint32
	MaxBoundDescriptors  uint32
	MaxPushConstantsSize uint32
	NonCoherentAtomSize  uint64
}

// AdapterInfo identifies an adapter for enumeration. Extensions lists the
// target-API extension names the backend fully implements for devices
// opened from this adapter; introspection reports exactly this list, never
// more.
type AdapterInfo struct {
	Name       string
	VendorID   uint32
	DeviceID   uint32
	Type       DeviceType
	Limits     Limits
	Extensions []string
}

// Caps is the capability set a device reports. The frontend branches on
// these before attempting an operation, so a backend that cannot do
// something fails predictably at the API boundary instead of mid-encode.
type Caps struct {
	Graphics     bool
	Compute      bool
	Transfer     bool
	Events       bool
	FineBarriers bool // per-resource state transitions; false forces conservative global barriers
}

// Driver is the root of one backend: it enumerates adapters and owns
// whatever global state the native API needs.
type Driver interface {
	Name() string
	Adapters() []Adapter
	Close() error
}

// Adapter is one enumerable physical device.
type Adapter interface {
	Info() AdapterInfo
	Heaps() []Heap
	Open() (Device, error)
}

// MemoryRequirements mirrors the target API's resource memory queries.
// HeapMask has bit i set when native heap i can back the resource.
type MemoryRequirements struct {
	Size      uint64
	Alignment uint64
	HeapMask  uint32
}

// Device is an opened adapter. All object creation goes through it; objects
// are destroyed through their own Destroy methods.
type Device interface {
	Caps() Caps
	Queue() Queue

	Allocate(heap int, size uint64) (Memory, error)
	CreateBuffer(size uint64, usage BufferUsage) (Buffer, error)
	CreateImage(desc ImageDesc) (Image, error)
	CreateShader(code []byte) (Shader, error)
	CreatePipeline(desc PipelineDesc) (Pipeline, error)
	CreateFence(signaled bool) (Fence, error)
	CreateSemaphore() (Semaphore, error)
	CreateEvent() (Event, error)
	NewEncoder() (Encoder, error)

	WaitIdle() error
	Close() error
}

// Memory is a native allocation. Map is only valid on host-visible heaps;
// Flush/Invalidate are required on non-coherent heaps and no-ops elsewhere.
type Memory interface {
	Map(offset, size uint64) ([]byte, error)
	Unmap()
	Flush(offset, size uint64) error
	Invalidate(offset, size uint64) error
	Free()
}

type Buffer interface {
	Requirements() MemoryRequirements
	Bind(mem Memory, offset uint64) error
	Destroy()
}

type Image interface {
	Requirements() MemoryRequirements
	Bind(mem Memory, offset uint64) error
	Destroy()
}

type Shader interface{ Destroy() }

type Pipeline interface{ Destroy() }

// Fence is a host-waitable completion token. Wait returns false when the
// timeout elapses first; a zero timeout polls.
type Fence interface {
	Signaled() (bool, error)
	Wait(timeout time.Duration) (bool, error)
	Reset() error
	Destroy()
}

type Semaphore interface{ Destroy() }

// Event is a binary signal settable from host or device.
type Event interface {
	Set() error
	Reset() error
	Signaled() bool
	Destroy()
}

// CommandList is a finished, submittable encoding.
type CommandList interface{ Destroy() }

// Queue serializes submitted lists onto one execution timeline. Submission
// order is preserved exactly as given.
type Queue interface {
	Submit(lists []CommandList, waits, signals []Semaphore, fence Fence) error
	WaitIdle() error
}

// BufferUsage is the union of usages declared at buffer creation.
type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndex
	BufferUsageVertex
	BufferUsageIndirect
)

// ImageDesc is the creation shape of an image.
type ImageDesc struct {
	Width, Height, Depth uint32
	MipLevels            uint32
	ArrayLayers          uint32
	Format               uint32 // target-API format value, passed through
	RenderTarget         bool
	Sampled              bool
	TransferSrc          bool
	TransferDst          bool
}

// BindingKind classifies a descriptor slot coarsely enough for backends
// to build their native layout objects.
type BindingKind uint32

const (
	BindUniformBuffer BindingKind = iota
	BindStorageBuffer
	BindSampledImage
	BindStorageImage
)

// BindingSlot is one descriptor slot of a pipeline's layout.
type BindingSlot struct {
	Set     uint32
	Binding uint32
	Kind    BindingKind
	Count   uint32
}

// PipelineDesc carries pre-translated pipeline state. Shader modules have
// already been through the external compiler by the time they arrive here.
type PipelineDesc struct {
	Compute  bool
	Shaders  []Shader
	PushSize uint32
	Layout   []BindingSlot
}

// ResourceState is the backend-facing resource state vocabulary barriers
// decompose into.
type ResourceState uint32

const (
	StateUndefined ResourceState = iota
	StateGeneral
	StateTransferSrc
	StateTransferDst
	StateShaderRead
	StateShaderWrite
	StateColorTarget
	StateDepthTarget
	StateHostRead
	StateHostWrite
	StatePresent
)

// Transition moves one resource (or, with both nil, everything) from one
// state to another. Backends with coarser granularity may widen it.
type Transition struct {
	Buffer Buffer
	Image  Image
	Before ResourceState
	After  ResourceState
}

type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

type BufferImageCopy struct {
	BufferOffset uint64
	RowLength    uint32
	ImageHeight  uint32
	Width        uint32
	Height       uint32
	Depth        uint32
}

// Binding is one descriptor binding flattened for the backend.
type Binding struct {
	Binding uint32
	Buffer  Buffer
	Offset  uint64
	Range   uint64
	Image   Image
}

// Encoder records backend commands. The frontend replays its deferred
// command list into an encoder at submission time.
type Encoder interface {
	Begin() error

	CopyBuffer(src, dst Buffer, regions []BufferCopy)
	CopyBufferToImage(src Buffer, dst Image, regions []BufferImageCopy)
	CopyImageToBuffer(src Image, dst Buffer, regions []BufferImageCopy)
	FillBuffer(dst Buffer, offset, size uint64, value uint32)
	UpdateBuffer(dst Buffer, offset uint64, data []byte)

	Transition(transitions []Transition)
	SetEvent(e Event)
	ResetEvent(e Event)
	WaitEvents(events []Event)

	BindPipeline(p Pipeline)
	BindDescriptors(set uint32, bindings []Binding)
	Dispatch(x, y, z uint32)

	End() (CommandList, error)
}
