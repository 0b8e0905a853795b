package portability

// Flag and enumeration types of the translated API. Values match the target
// API's enumeration so handles and flags can cross the ABI boundary
// untranslated.

// MemoryPropertyFlags describe a memory type in the emulated table.
type MemoryPropertyFlags uint32

const (
	MemoryPropertyDeviceLocal MemoryPropertyFlags = 1 << iota
	MemoryPropertyHostVisible
	MemoryPropertyHostCoherent
	MemoryPropertyHostCached
	MemoryPropertyLazilyAllocated
)

// BufferUsageFlags declare how a buffer will be used.
type BufferUsageFlags uint32

const (
	BufferUsageTransferSrc BufferUsageFlags = 1 << iota
	BufferUsageTransferDst
	BufferUsageUniformTexel
	BufferUsageStorageTexel
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndex
	BufferUsageVertex
	BufferUsageIndirect
)

// ImageUsageFlags declare how an image will be used.
type ImageUsageFlags uint32

const (
	ImageUsageTransferSrc ImageUsageFlags = 1 << iota
	ImageUsageTransferDst
	ImageUsageSampled
	ImageUsageStorage
	ImageUsageColorAttachment
	ImageUsageDepthStencilAttachment
	ImageUsageTransientAttachment
	ImageUsageInputAttachment
)

// Format is the target API's format enumeration, passed through opaquely.
// Only the handful the layer inspects get named constants.
type Format uint32

const (
	FormatUndefined      Format = 0
	FormatR8G8B8A8Unorm  Format = 37
	FormatB8G8R8A8Unorm  Format = 44
	FormatD32Sfloat      Format = 126
	FormatD24UnormS8Uint Format = 129
)

// ImageLayout is the per-use image layout of the target API; the render
// pass and barrier translators map these onto backend resource states.
type ImageLayout uint32

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutGeneral
	ImageLayoutColorAttachment
	ImageLayoutDepthStencilAttachment
	ImageLayoutDepthStencilReadOnly
	ImageLayoutShaderReadOnly
	ImageLayoutTransferSrc
	ImageLayoutTransferDst
	ImageLayoutPreinitialized
)

// ImageLayoutPresent matches the presentation layout extension value.
const ImageLayoutPresent ImageLayout = 1000001002

// PipelineStageFlags identify pipeline stages in barrier scopes.
type PipelineStageFlags uint32

const (
	PipelineStageTopOfPipe PipelineStageFlags = 1 << iota
	PipelineStageDrawIndirect
	PipelineStageVertexInput
	PipelineStageVertexShader
	PipelineStageTessellationControl
	PipelineStageTessellationEvaluation
	PipelineStageGeometryShader
	PipelineStageFragmentShader
	PipelineStageEarlyFragmentTests
	PipelineStageLateFragmentTests
	PipelineStageColorAttachmentOutput
	PipelineStageComputeShader
	PipelineStageTransfer
	PipelineStageBottomOfPipe
	PipelineStageHost
	PipelineStageAllGraphics
	PipelineStageAllCommands
)

// AccessFlags identify memory access kinds in barrier scopes.
type AccessFlags uint32

const (
	AccessIndirectCommandRead AccessFlags = 1 << iota
	AccessIndexRead
	AccessVertexAttributeRead
	AccessUniformRead
	AccessInputAttachmentRead
	AccessShaderRead
	AccessShaderWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilAttachmentRead
	AccessDepthStencilAttachmentWrite
	AccessTransferRead
	AccessTransferWrite
	AccessHostRead
	AccessHostWrite
	AccessMemoryRead
	AccessMemoryWrite
)

// DescriptorType enumerates descriptor bindings.
type DescriptorType uint32

const (
	DescriptorTypeSampler DescriptorType = iota
	DescriptorTypeCombinedImageSampler
	DescriptorTypeSampledImage
	DescriptorTypeStorageImage
	DescriptorTypeUniformTexelBuffer
	DescriptorTypeStorageTexelBuffer
	DescriptorTypeUniformBuffer
	DescriptorTypeStorageBuffer
	DescriptorTypeUniformBufferDynamic
	DescriptorTypeStorageBufferDynamic
	DescriptorTypeInputAttachment
)

// ShaderStageFlags identify shader stages.
type ShaderStageFlags uint32

const (
	ShaderStageVertex   ShaderStageFlags = 1 << 0
	ShaderStageFragment ShaderStageFlags = 1 << 4
	ShaderStageCompute  ShaderStageFlags = 1 << 5
	ShaderStageAll      ShaderStageFlags = 0x7FFFFFFF
)

// AttachmentLoadOp / AttachmentStoreOp control render pass attachment
// handling at subpass boundaries.
type AttachmentLoadOp uint32

const (
	LoadOpLoad AttachmentLoadOp = iota
	LoadOpClear
	LoadOpDontCare
)

type AttachmentStoreOp uint32

const (
	StoreOpStore AttachmentStoreOp = iota
	StoreOpDontCare
)

// SubpassExternal marks a dependency edge to outside the render pass.
const SubpassExternal = ^uint32(0)

// QueueFlags describe a queue family's capabilities.
type QueueFlags uint32

const (
	QueueGraphics QueueFlags = 1 << iota
	QueueCompute
	QueueTransfer
)

// BufferCopy, BufferImageCopy and Extent3D are the transfer command region
// descriptions.
type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

type Extent3D struct {
	Width  uint32
	Height uint32
	Depth  uint32
}

type BufferImageCopy struct {
	BufferOffset      uint64
	BufferRowLength   uint32
	BufferImageHeight uint32
	ImageExtent       Extent3D
}

// WholeSize as a size selects the remainder of a range, as in the target
// API.
const WholeSize = ^uint64(0)
