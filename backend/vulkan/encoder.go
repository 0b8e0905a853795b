package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/italicsjenga/portability/driver"
)

var queueFamilyIgnored = ^uint32(0)

// Encoder records into a primary command buffer allocated from the
// device's pool. Descriptor sets are allocated transiently per BindDescriptors
// and returned to the pool when the finished list is destroyed.
type Encoder struct {
	device   *Device
	cb       vk.CommandBuffer
	pipeline *Pipeline
	sets     []vk.DescriptorSet
	err      error
}

func (e *Encoder) Begin() error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	return vk.Error(vk.BeginCommandBuffer(e.cb, &beginInfo))
}

func (e *Encoder) CopyBuffer(src, dst driver.Buffer, regions []driver.BufferCopy) {
	s := src.(*Buffer)
	d := dst.(*Buffer)
	rs := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		rs[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(e.cb, s.handle, d.handle, uint32(len(rs)), rs)
}

func (e *Encoder) CopyBufferToImage(src driver.Buffer, dst driver.Image, regions []driver.BufferImageCopy) {
	s := src.(*Buffer)
	d := dst.(*Image)
	vk.CmdCopyBufferToImage(e.cb, s.handle, d.handle, vk.ImageLayoutTransferDstOptimal,
		uint32(len(regions)), imageCopies(regions))
}

func (e *Encoder) CopyImageToBuffer(src driver.Image, dst driver.Buffer, regions []driver.BufferImageCopy) {
	s := src.(*Image)
	d := dst.(*Buffer)
	vk.CmdCopyImageToBuffer(e.cb, s.handle, vk.ImageLayoutTransferSrcOptimal, d.handle,
		uint32(len(regions)), imageCopies(regions))
}

func imageCopies(regions []driver.BufferImageCopy) []vk.BufferImageCopy {
	rs := make([]vk.BufferImageCopy, len(regions))
	for i, r := range regions {
		depth := r.Depth
		if depth == 0 {
			depth = 1
		}
		rs[i] = vk.BufferImageCopy{
			BufferOffset:      vk.DeviceSize(r.BufferOffset),
			BufferRowLength:   r.RowLength,
			BufferImageHeight: r.ImageHeight,
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LayerCount: 1,
			},
			ImageExtent: vk.Extent3D{Width: r.Width, Height: r.Height, Depth: depth},
		}
	}
	return rs
}

func (e *Encoder) FillBuffer(dst driver.Buffer, offset, size uint64, value uint32) {
	d := dst.(*Buffer)
	vk.CmdFillBuffer(e.cb, d.handle, vk.DeviceSize(offset), vk.DeviceSize(size), value)
}

func (e *Encoder) UpdateBuffer(dst driver.Buffer, offset uint64, data []byte) {
	d := dst.(*Buffer)
	vk.CmdUpdateBuffer(e.cb, d.handle, vk.DeviceSize(offset), vk.DeviceSize(len(data)),
		unsafe.Pointer(&data[0]))
}

// Transition issues one pipeline barrier covering the batch. Buffer
// transitions become buffer barriers over the whole buffer; image
// transitions carry their layout change; a transition with neither
// resource is a global memory barrier.
func (e *Encoder) Transition(transitions []driver.Transition) {
	var memBarriers []vk.MemoryBarrier
	var bufBarriers []vk.BufferMemoryBarrier
	var imgBarriers []vk.ImageMemoryBarrier

	for _, t := range transitions {
		switch {
		case t.Image != nil:
			img := t.Image.(*Image)
			imgBarriers = append(imgBarriers, vk.ImageMemoryBarrier{
				SType:               vk.StructureTypeImageMemoryBarrier,
				SrcAccessMask:       stateAccess(t.Before),
				DstAccessMask:       stateAccess(t.After),
				OldLayout:           stateLayout(t.Before),
				NewLayout:           stateLayout(t.After),
				SrcQueueFamilyIndex: queueFamilyIgnored,
				DstQueueFamilyIndex: queueFamilyIgnored,
				Image:               img.handle,
				SubresourceRange: vk.ImageSubresourceRange{
					AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
					LevelCount: img.mips,
					LayerCount: img.layers,
				},
			})
		case t.Buffer != nil:
			buf := t.Buffer.(*Buffer)
			bufBarriers = append(bufBarriers, vk.BufferMemoryBarrier{
				SType:               vk.StructureTypeBufferMemoryBarrier,
				SrcAccessMask:       stateAccess(t.Before),
				DstAccessMask:       stateAccess(t.After),
				SrcQueueFamilyIndex: queueFamilyIgnored,
				DstQueueFamilyIndex: queueFamilyIgnored,
				Buffer:              buf.handle,
				Size:                vk.DeviceSize(buf.size),
			})
		default:
			memBarriers = append(memBarriers, vk.MemoryBarrier{
				SType:         vk.StructureTypeMemoryBarrier,
				SrcAccessMask: stateAccess(t.Before),
				DstAccessMask: stateAccess(t.After),
			})
		}
	}

	vk.CmdPipelineBarrier(e.cb,
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		0,
		uint32(len(memBarriers)), memBarriers,
		uint32(len(bufBarriers)), bufBarriers,
		uint32(len(imgBarriers)), imgBarriers)
}

func (e *Encoder) SetEvent(ev driver.Event) {
	vk.CmdSetEvent(e.cb, ev.(*Event).handle, vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit))
}

func (e *Encoder) ResetEvent(ev driver.Event) {
	vk.CmdResetEvent(e.cb, ev.(*Event).handle, vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit))
}

func (e *Encoder) WaitEvents(events []driver.Event) {
	evs := make([]vk.Event, len(events))
	for i, ev := range events {
		evs[i] = ev.(*Event).handle
	}
	vk.CmdWaitEvents(e.cb, uint32(len(evs)), evs,
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		0, nil, 0, nil, 0, nil)
}

func (e *Encoder) BindPipeline(p driver.Pipeline) {
	pipe := p.(*Pipeline)
	e.pipeline = pipe
	vk.CmdBindPipeline(e.cb, vk.PipelineBindPointCompute, pipe.handle)
}

// BindDescriptors allocates a transient set matching the bound pipeline's
// layout for the given set index, writes the bindings and binds it.
func (e *Encoder) BindDescriptors(set uint32, bindings []driver.Binding) {
	if e.pipeline == nil || int(set) >= len(e.pipeline.setLayouts) {
		e.err = fmt.Errorf("vulkan: descriptor bind without matching pipeline layout")
		return
	}

	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     e.device.descPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{e.pipeline.setLayouts[set]},
	}
	sets := make([]vk.DescriptorSet, 1)
	e.device.mu.Lock()
	err := vk.Error(vk.AllocateDescriptorSets(e.device.handle, &allocateInfo, &sets[0]))
	e.device.mu.Unlock()
	if err != nil {
		e.err = fmt.Errorf("vulkan: allocate descriptor set: %w", err)
		return
	}
	e.sets = append(e.sets, sets[0])

	var writes []vk.WriteDescriptorSet
	for _, b := range bindings {
		kind := e.pipeline.slotKind(set, b.Binding)
		w := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          sets[0],
			DstBinding:      b.Binding,
			DescriptorCount: 1,
			DescriptorType:  descriptorType(kind),
		}
		if b.Buffer == nil {
			// Image descriptors need a view object; compute paths in
			// this backend are buffer-based until views are plumbed.
			continue
		}
		buf := b.Buffer.(*Buffer)
		w.PBufferInfo = []vk.DescriptorBufferInfo{{
			Buffer: buf.handle,
			Offset: vk.DeviceSize(b.Offset),
			Range:  vk.DeviceSize(b.Range),
		}}
		writes = append(writes, w)
	}
	if len(writes) > 0 {
		vk.UpdateDescriptorSets(e.device.handle, uint32(len(writes)), writes, 0, nil)
	}

	vk.CmdBindDescriptorSets(e.cb, vk.PipelineBindPointCompute,
		e.pipeline.layout, set, 1, sets, 0, nil)
}

func (p *Pipeline) slotKind(set, binding uint32) driver.BindingKind {
	for _, s := range p.slots {
		if s.Set == set && s.Binding == binding {
			return s.Kind
		}
	}
	return driver.BindUniformBuffer
}

func (e *Encoder) Dispatch(x, y, z uint32) {
	vk.CmdDispatch(e.cb, x, y, z)
}

func (e *Encoder) End() (driver.CommandList, error) {
	if e.err != nil {
		e.release()
		return nil, e.err
	}
	if err := vk.Error(vk.EndCommandBuffer(e.cb)); err != nil {
		e.release()
		return nil, fmt.Errorf("vulkan: end command buffer: %w", err)
	}
	list := &CommandList{device: e.device, cb: e.cb, sets: e.sets}
	e.sets = nil
	return list, nil
}

func (e *Encoder) release() {
	e.device.mu.Lock()
	vk.FreeCommandBuffers(e.device.handle, e.device.cmdPool, 1, []vk.CommandBuffer{e.cb})
	if len(e.sets) > 0 {
		vk.FreeDescriptorSets(e.device.handle, e.device.descPool, uint32(len(e.sets)), e.sets)
	}
	e.device.mu.Unlock()
}

// CommandList is a finished primary command buffer plus the transient
// descriptor sets it references.
type CommandList struct {
	device *Device
	cb     vk.CommandBuffer
	sets   []vk.DescriptorSet
}

func (c *CommandList) Destroy() {
	c.device.mu.Lock()
	vk.FreeCommandBuffers(c.device.handle, c.device.cmdPool, 1, []vk.CommandBuffer{c.cb})
	if len(c.sets) > 0 {
		vk.FreeDescriptorSets(c.device.handle, c.device.descPool, uint32(len(c.sets)), c.sets)
	}
	c.device.mu.Unlock()
	c.sets = nil
}

// Queue wraps the device queue.
type Queue struct {
	device *Device
	handle vk.Queue
}

func (q *Queue) Submit(lists []driver.CommandList, waits, signals []driver.Semaphore, fence driver.Fence) error {
	cbs := make([]vk.CommandBuffer, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return fmt.Errorf("vulkan: foreign command list")
		}
		cbs = append(cbs, cl.cb)
	}

	waitSems := make([]vk.Semaphore, 0, len(waits))
	waitStages := make([]vk.PipelineStageFlags, 0, len(waits))
	for _, w := range waits {
		waitSems = append(waitSems, w.(*Semaphore).handle)
		waitStages = append(waitStages, vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit))
	}
	signalSems := make([]vk.Semaphore, 0, len(signals))
	for _, s := range signals {
		signalSems = append(signalSems, s.(*Semaphore).handle)
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		CommandBufferCount:   uint32(len(cbs)),
		PCommandBuffers:      cbs,
		WaitSemaphoreCount:   uint32(len(waitSems)),
		PWaitSemaphores:      waitSems,
		PWaitDstStageMask:    waitStages,
		SignalSemaphoreCount: uint32(len(signalSems)),
		PSignalSemaphores:    signalSems,
	}

	vkFence := vk.NullFence
	if fence != nil {
		vkFence = fence.(*Fence).handle
	}
	return vk.Error(vk.QueueSubmit(q.handle, 1, []vk.SubmitInfo{submitInfo}, vkFence))
}

func (q *Queue) WaitIdle() error {
	return vk.Error(vk.QueueWaitIdle(q.handle))
}

// stateLayout and stateAccess map the abstract resource states onto
// Vulkan layouts and access masks.
func stateLayout(s driver.ResourceState) vk.ImageLayout {
	switch s {
	case driver.StateUndefined:
		return vk.ImageLayoutUndefined
	case driver.StateTransferSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case driver.StateTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case driver.StateShaderRead:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case driver.StateColorTarget:
		return vk.ImageLayoutColorAttachmentOptimal
	case driver.StateDepthTarget:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case driver.StateHostWrite, driver.StateHostRead:
		return vk.ImageLayoutGeneral
	case driver.StatePresent:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutGeneral
}

func stateAccess(s driver.ResourceState) vk.AccessFlags {
	switch s {
	case driver.StateTransferSrc:
		return vk.AccessFlags(vk.AccessTransferReadBit)
	case driver.StateTransferDst:
		return vk.AccessFlags(vk.AccessTransferWriteBit)
	case driver.StateShaderRead:
		return vk.AccessFlags(vk.AccessShaderReadBit)
	case driver.StateShaderWrite:
		return vk.AccessFlags(vk.AccessShaderWriteBit)
	case driver.StateColorTarget:
		return vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit)
	case driver.StateDepthTarget:
		return vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit)
	case driver.StateHostRead:
		return vk.AccessFlags(vk.AccessHostReadBit)
	case driver.StateHostWrite:
		return vk.AccessFlags(vk.AccessHostWriteBit)
	case driver.StateUndefined:
		return 0
	}
	return vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit)
}
