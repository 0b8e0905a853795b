package portability

// Handle is the opaque fixed-width identifier the translated API hands to
// callers. The low 32 bits index a registry slot, the high 32 bits carry the
// slot's generation so a handle kept across destruction is detectable
// instead of silently aliasing whatever reused the slot.
type Handle uint64

// NullHandle is never valid; generation counters start at one so the zero
// value cannot collide with a live handle.
const NullHandle Handle = 0

func makeHandle(slot, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(slot))
}

func (h Handle) slot() uint32 {
	return uint32(h)
}

func (h Handle) generation() uint32 {
	return uint32(h >> 32)
}

// IsNull reports whether the handle is the null handle.
func (h Handle) IsNull() bool {
	return h == NullHandle
}

// ObjectKind identifies which entity type a registry slot holds. Lookups
// check the kind as well as the generation, so a stale handle of one type
// can never resolve to a recycled object of another.
type ObjectKind uint8

const (
	KindInstance ObjectKind = iota + 1
	KindPhysicalDevice
	KindDevice
	KindQueue
	KindCommandPool
	KindCommandBuffer
	KindDeviceMemory
	KindBuffer
	KindImage
	KindDescriptorSetLayout
	KindDescriptorPool
	KindDescriptorSet
	KindRenderPass
	KindPipelineLayout
	KindPipeline
	KindPipelineCache
	KindFence
	KindSemaphore
	KindEvent
)

func (k ObjectKind) String() string {
	switch k {
	case KindInstance:
		return "Instance"
	case KindPhysicalDevice:
		return "PhysicalDevice"
	case KindDevice:
		return "Device"
	case KindQueue:
		return "Queue"
	case KindCommandPool:
		return "CommandPool"
	case KindCommandBuffer:
		return "CommandBuffer"
	case KindDeviceMemory:
		return "DeviceMemory"
	case KindBuffer:
		return "Buffer"
	case KindImage:
		return "Image"
	case KindDescriptorSetLayout:
		return "DescriptorSetLayout"
	case KindDescriptorPool:
		return "DescriptorPool"
	case KindDescriptorSet:
		return "DescriptorSet"
	case KindRenderPass:
		return "RenderPass"
	case KindPipelineLayout:
		return "PipelineLayout"
	case KindPipeline:
		return "Pipeline"
	case KindPipelineCache:
		return "PipelineCache"
	case KindFence:
		return "Fence"
	case KindSemaphore:
		return "Semaphore"
	case KindEvent:
		return "Event"
	}
	return "Unknown"
}

// Typed handles for every entity of the translated API. They are plain
// Handle values underneath; the type only keeps call sites honest. All
// state lives in the registry, never in the handle.
type (
	Instance            Handle
	PhysicalDevice      Handle
	Device              Handle
	Queue               Handle
	CommandPool         Handle
	CommandBuffer       Handle
	DeviceMemory        Handle
	Buffer              Handle
	Image               Handle
	DescriptorSetLayout Handle
	DescriptorPool      Handle
	DescriptorSet       Handle
	RenderPass          Handle
	PipelineLayout      Handle
	Pipeline            Handle
	PipelineCache       Handle
	Fence               Handle
	Semaphore           Handle
	Event               Handle
)
