package portability

import "github.com/italicsjenga/portability/driver"

// The target API expresses synchronization as stage and access scopes plus
// image layout transitions. Backends speak per-resource states instead, so
// every barrier decomposes into a deterministic transition list here. The
// mapping is pure: the same barrier always yields the same transitions.

// MemoryBarrier is a global memory dependency.
type MemoryBarrier struct {
	SrcAccessMask AccessFlags
	DstAccessMask AccessFlags
}

// BufferMemoryBarrier scopes a dependency to a buffer range.
type BufferMemoryBarrier struct {
	SrcAccessMask AccessFlags
	DstAccessMask AccessFlags
	Buffer        Buffer
	Offset        uint64
	Size          uint64
}

// ImageMemoryBarrier scopes a dependency to an image and carries its
// layout transition.
type ImageMemoryBarrier struct {
	SrcAccessMask AccessFlags
	DstAccessMask AccessFlags
	OldLayout     ImageLayout
	NewLayout     ImageLayout
	Image         Image
}

// layoutToState maps an image layout onto the backend state vocabulary.
func layoutToState(l ImageLayout) driver.ResourceState {
	switch l {
	case ImageLayoutUndefined:
		return driver.StateUndefined
	case ImageLayoutPreinitialized:
		return driver.StateHostWrite
	case ImageLayoutColorAttachment:
		return driver.StateColorTarget
	case ImageLayoutDepthStencilAttachment, ImageLayoutDepthStencilReadOnly:
		return driver.StateDepthTarget
	case ImageLayoutShaderReadOnly:
		return driver.StateShaderRead
	case ImageLayoutTransferSrc:
		return driver.StateTransferSrc
	case ImageLayoutTransferDst:
		return driver.StateTransferDst
	case ImageLayoutPresent:
		return driver.StatePresent
	}
	return driver.StateGeneral
}

// accessToState picks the dominant state implied by an access mask. Writes
// dominate reads; transfer beats shader beats attachment when several bits
// are set, which keeps the choice stable for mixed masks.
func accessToState(a AccessFlags) driver.ResourceState {
	switch {
	case a&AccessTransferWrite != 0:
		return driver.StateTransferDst
	case a&AccessTransferRead != 0:
		return driver.StateTransferSrc
	case a&AccessShaderWrite != 0:
		return driver.StateShaderWrite
	case a&(AccessShaderRead|AccessUniformRead|AccessInputAttachmentRead) != 0:
		return driver.StateShaderRead
	case a&(AccessColorAttachmentRead|AccessColorAttachmentWrite) != 0:
		return driver.StateColorTarget
	case a&(AccessDepthStencilAttachmentRead|AccessDepthStencilAttachmentWrite) != 0:
		return driver.StateDepthTarget
	case a&AccessHostWrite != 0:
		return driver.StateHostWrite
	case a&AccessHostRead != 0:
		return driver.StateHostRead
	case a&(AccessIndexRead|AccessVertexAttributeRead|AccessIndirectCommandRead) != 0:
		return driver.StateShaderRead
	}
	return driver.StateGeneral
}

// decomposeBarriers translates one pipeline barrier into backend
// transitions. On coarse backends (no FineBarriers) everything collapses
// into a single global transition, which is always legal because it only
// over-synchronizes.
func decomposeBarriers(
	caps driver.Caps,
	srcStage, dstStage PipelineStageFlags,
	memory []MemoryBarrier,
	buffers []BufferMemoryBarrier,
	images []ImageMemoryBarrier,
	bufObjs []*bufferObject,
	imgObjs []*imageObject,
) []driver.Transition {
	if !caps.FineBarriers {
		return []driver.Transition{{Before: driver.StateGeneral, After: driver.StateGeneral}}
	}

	var out []driver.Transition
	for range memory {
		out = append(out, driver.Transition{Before: driver.StateGeneral, After: driver.StateGeneral})
	}
	for i, b := range buffers {
		out = append(out, driver.Transition{
			Buffer: bufObjs[i].buf,
			Before: accessToState(b.SrcAccessMask),
			After:  accessToState(b.DstAccessMask),
		})
	}
	for i, ib := range images {
		out = append(out, driver.Transition{
			Image:  imgObjs[i].img,
			Before: layoutToState(ib.OldLayout),
			After:  layoutToState(ib.NewLayout),
		})
	}
	return out
}
