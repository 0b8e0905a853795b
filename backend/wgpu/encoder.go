package wgpu

import (
	"fmt"
	"sort"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/italicsjenga/portability/driver"
)

// Encoder records into a HAL command encoder. Uploads (UpdateBuffer,
// FillBuffer, buffer-to-texture) go through the queue write path at encode
// time, which lands before the encoded work is submitted.
type Encoder struct {
	device     *Device
	enc        hal.CommandEncoder
	pipeline   *Pipeline
	bindGroups map[uint32]hal.BindGroup
	owned      []hal.BindGroup
	err        error
}

func (e *Encoder) Begin() error {
	if err := e.enc.BeginEncoding(""); err != nil {
		return fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	return nil
}

func (e *Encoder) CopyBuffer(src, dst driver.Buffer, regions []driver.BufferCopy) {
	s := src.(*Buffer)
	d := dst.(*Buffer)
	rs := make([]hal.BufferCopy, len(regions))
	for i, r := range regions {
		rs[i] = hal.BufferCopy{
			SrcOffset: r.SrcOffset,
			DstOffset: r.DstOffset,
			Size:      r.Size,
		}
	}
	e.enc.CopyBufferToBuffer(s.handle, d.handle, rs)
}

func (e *Encoder) CopyBufferToImage(src driver.Buffer, dst driver.Image, regions []driver.BufferImageCopy) {
	s := src.(*Buffer)
	d := dst.(*Image)
	if s.mem == nil || s.mem.data == nil {
		e.fail(fmt.Errorf("wgpu: buffer-to-image copy needs a host-visible source"))
		return
	}
	for _, r := range regions {
		rowBytes := uint64(r.Width) * 4
		if r.RowLength != 0 {
			rowBytes = uint64(r.RowLength) * 4
		}
		rows := r.Height
		if r.ImageHeight != 0 {
			rows = r.ImageHeight
		}
		depth := r.Depth
		if depth == 0 {
			depth = 1
		}
		start := s.memOff + r.BufferOffset
		end := start + rowBytes*uint64(rows)*uint64(depth)
		if end > uint64(len(s.mem.data)) {
			e.fail(fmt.Errorf("wgpu: buffer-to-image copy out of range"))
			return
		}
		e.device.queue.handle.WriteTexture(
			&hal.ImageCopyTexture{
				Texture: d.handle,
				Aspect:  gputypes.TextureAspectAll,
			},
			s.mem.data[start:end],
			&hal.ImageDataLayout{
				BytesPerRow:  uint32(rowBytes),
				RowsPerImage: rows,
			},
			&hal.Extent3D{Width: r.Width, Height: r.Height, DepthOrArrayLayers: depth},
		)
	}
}

func (e *Encoder) CopyImageToBuffer(src driver.Image, dst driver.Buffer, regions []driver.BufferImageCopy) {
	// The HAL has no texture readback path yet.
	e.fail(fmt.Errorf("wgpu: image-to-buffer copies not supported"))
}

func (e *Encoder) FillBuffer(dst driver.Buffer, offset, size uint64, value uint32) {
	d := dst.(*Buffer)
	data := make([]byte, size)
	for i := uint64(0); i+3 < size; i += 4 {
		data[i] = byte(value)
		data[i+1] = byte(value >> 8)
		data[i+2] = byte(value >> 16)
		data[i+3] = byte(value >> 24)
	}
	e.device.queue.handle.WriteBuffer(d.handle, offset, data)
}

func (e *Encoder) UpdateBuffer(dst driver.Buffer, offset uint64, data []byte) {
	d := dst.(*Buffer)
	e.device.queue.handle.WriteBuffer(d.handle, offset, data)
}

// Transition is a no-op: the HAL inserts its own hazard barriers, which is
// why the device declines FineBarriers.
func (e *Encoder) Transition(transitions []driver.Transition) {}

func (e *Encoder) SetEvent(ev driver.Event) {
	e.fail(fmt.Errorf("wgpu: events not supported"))
}

func (e *Encoder) ResetEvent(ev driver.Event) {
	e.fail(fmt.Errorf("wgpu: events not supported"))
}

func (e *Encoder) WaitEvents(events []driver.Event) {
	e.fail(fmt.Errorf("wgpu: events not supported"))
}

func (e *Encoder) BindPipeline(p driver.Pipeline) {
	e.pipeline = p.(*Pipeline)
	e.bindGroups = nil
}

// BindDescriptors builds a bind group against the pipeline's layout for
// the set; it is attached when the next dispatch opens its pass.
func (e *Encoder) BindDescriptors(set uint32, bindings []driver.Binding) {
	if e.pipeline == nil || int(set) >= len(e.pipeline.bindLayouts) {
		e.fail(fmt.Errorf("wgpu: descriptor bind without matching pipeline layout"))
		return
	}

	entries := make([]gputypes.BindGroupEntry, 0, len(bindings))
	for _, b := range bindings {
		if b.Buffer == nil {
			// Texture bindings need view plumbing the compute path
			// does not have yet.
			continue
		}
		buf := b.Buffer.(*Buffer)
		entries = append(entries, gputypes.BindGroupEntry{
			Binding: b.Binding,
			Resource: gputypes.BufferBinding{
				Buffer: buf.handle.NativeHandle(),
				Offset: b.Offset,
				Size:   b.Range,
			},
		})
	}

	group, err := e.device.handle.CreateBindGroup(&hal.BindGroupDescriptor{
		Layout:  e.pipeline.bindLayouts[set],
		Entries: entries,
	})
	if err != nil {
		e.fail(fmt.Errorf("wgpu: create bind group: %w", err))
		return
	}
	if e.bindGroups == nil {
		e.bindGroups = make(map[uint32]hal.BindGroup)
	}
	e.bindGroups[set] = group
	e.owned = append(e.owned, group)
}

// Dispatch opens a short compute pass carrying the current pipeline and
// bind groups.
func (e *Encoder) Dispatch(x, y, z uint32) {
	if e.pipeline == nil {
		e.fail(fmt.Errorf("wgpu: dispatch without pipeline"))
		return
	}
	pass := e.enc.BeginComputePass(&hal.ComputePassDescriptor{})
	pass.SetPipeline(e.pipeline.handle)

	sets := make([]uint32, 0, len(e.bindGroups))
	for set := range e.bindGroups {
		sets = append(sets, set)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i] < sets[j] })
	for _, set := range sets {
		pass.SetBindGroup(set, e.bindGroups[set], nil)
	}

	pass.Dispatch(x, y, z)
	pass.End()
}

func (e *Encoder) End() (driver.CommandList, error) {
	if e.err != nil {
		e.release()
		return nil, e.err
	}
	cmdBuf, err := e.enc.EndEncoding()
	if err != nil {
		e.release()
		return nil, fmt.Errorf("wgpu: end encoding: %w", err)
	}
	list := &CommandList{device: e.device, cmdBuf: cmdBuf, groups: e.owned}
	e.owned = nil
	return list, nil
}

func (e *Encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *Encoder) release() {
	for _, g := range e.owned {
		e.device.handle.DestroyBindGroup(g)
	}
	e.owned = nil
}

// CommandList is a finished HAL command buffer plus the bind groups it
// references.
type CommandList struct {
	device *Device
	cmdBuf hal.CommandBuffer
	groups []hal.BindGroup
}

func (c *CommandList) Destroy() {
	c.cmdBuf.Destroy()
	for _, g := range c.groups {
		c.device.handle.DestroyBindGroup(g)
	}
	c.groups = nil
}

// Queue wraps the HAL queue. Semaphores are accepted and ignored: the
// queue is single and executes submissions in order.
type Queue struct {
	device *Device
	handle hal.Queue
}

func (q *Queue) Submit(lists []driver.CommandList, waits, signals []driver.Semaphore, fence driver.Fence) error {
	cbs := make([]hal.CommandBuffer, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return fmt.Errorf("wgpu: foreign command list")
		}
		cbs = append(cbs, cl.cmdBuf)
	}

	var halFence hal.Fence
	var value uint64
	if fence != nil {
		f, ok := fence.(*Fence)
		if !ok {
			return fmt.Errorf("wgpu: foreign fence")
		}
		halFence = f.handle
		value = f.nextValue()
	}
	if err := q.handle.Submit(cbs, halFence, value); err != nil {
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	return nil
}

func (q *Queue) WaitIdle() error {
	return q.device.WaitIdle()
}
