package portability

import (
	"sync"

	"github.com/italicsjenga/portability/driver"
)

// cbState is the recording lifecycle of a command buffer. Every transition
// the target API leaves undefined is a defined ErrorValidationFailed here,
// with the buffer moving to cbInvalid so later calls keep failing instead
// of corrupting the recording.
type cbState int

const (
	cbInitial cbState = iota
	cbRecording
	cbExecutable
	cbPending
	cbInvalid
)

func (s cbState) String() string {
	switch s {
	case cbInitial:
		return "Initial"
	case cbRecording:
		return "Recording"
	case cbExecutable:
		return "Executable"
	case cbPending:
		return "Pending"
	}
	return "Invalid"
}

// CommandBufferBeginInfo mirrors the target API's begin parameters.
type CommandBufferBeginInfo struct {
	OneTimeSubmit bool
}

// RenderPassBeginInfo opens a render pass instance over concrete
// attachments. The layer has no separate framebuffer object; attachments
// bind directly here, in render pass attachment order.
type RenderPassBeginInfo struct {
	RenderPass  RenderPass
	Attachments []Image
	ClearColors [][4]float32
	ClearDepth  float32
}

type commandBufferObject struct {
	mu      sync.Mutex
	device  Device
	pool    CommandPool
	state   cbState
	oneTime bool

	commands []command

	// refs are the handles the recording uses; they are pinned in the
	// registry while the submission is in flight.
	refs map[Handle]struct{}

	// watched resources for unhooking on reset.
	buffers []*bufferObject
	images  []*imageObject

	// render pass scope tracking during recording.
	inRenderPass  bool
	subpass       int
	activeRP      *renderPassState
	activeTargets []driver.Image
	boundPipeline bool
	boundCompute  bool
}

// Begin moves the buffer to Recording. Beginning an Executable or Invalid
// buffer implicitly resets it; beginning a Recording or Pending buffer is
// an error.
func (cb CommandBuffer) Begin(info *CommandBufferBeginInfo) error {
	obj, err := resolve[*commandBufferObject](Handle(cb), KindCommandBuffer)
	if err != nil {
		return err
	}
	if _, err := deviceFor(obj.device); err != nil {
		return err
	}

	obj.mu.Lock()
	defer obj.mu.Unlock()
	switch obj.state {
	case cbRecording, cbPending:
		Logger().Warn("begin in wrong state", "state", obj.state)
		return Error(ErrorValidationFailed)
	}
	obj.resetLocked()
	obj.state = cbRecording
	if info != nil {
		obj.oneTime = info.OneTimeSubmit
	}
	return nil
}

// End moves Recording to Executable. Ending inside an open render pass
// invalidates the buffer.
func (cb CommandBuffer) End() error {
	obj, err := resolve[*commandBufferObject](Handle(cb), KindCommandBuffer)
	if err != nil {
		return err
	}

	obj.mu.Lock()
	defer obj.mu.Unlock()
	if obj.state != cbRecording || obj.inRenderPass {
		obj.poisonLocked("end")
		return Error(ErrorValidationFailed)
	}
	obj.state = cbExecutable
	return nil
}

// Reset returns the buffer to Initial, discarding the recording. Pending
// buffers cannot be reset.
func (cb CommandBuffer) Reset() error {
	obj, err := resolve[*commandBufferObject](Handle(cb), KindCommandBuffer)
	if err != nil {
		return err
	}

	obj.mu.Lock()
	defer obj.mu.Unlock()
	if obj.state == cbPending {
		return Error(ErrorValidationFailed)
	}
	obj.resetLocked()
	return nil
}

// State reports the lifecycle state, mostly for tests and diagnostics.
func (cb CommandBuffer) State() (string, error) {
	obj, err := resolve[*commandBufferObject](Handle(cb), KindCommandBuffer)
	if err != nil {
		return "", err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	return obj.state.String(), nil
}

func (o *commandBufferObject) resetLocked() {
	for _, b := range o.buffers {
		b.unwatch(o)
	}
	for _, i := range o.images {
		i.unwatch(o)
	}
	o.buffers = nil
	o.images = nil
	o.commands = nil
	o.refs = make(map[Handle]struct{})
	o.state = cbInitial
	o.oneTime = false
	o.inRenderPass = false
	o.subpass = 0
	o.activeRP = nil
	o.activeTargets = nil
	o.boundPipeline = false
	o.boundCompute = false
}

func (o *commandBufferObject) poisonLocked(op string) {
	if o.state != cbPending {
		Logger().Warn("recording invalidated", "op", op, "state", o.state)
		o.state = cbInvalid
	}
}

// invalidate is called when a referenced resource dies under an
// unsubmitted recording.
func (o *commandBufferObject) invalidate() {
	o.mu.Lock()
	if o.state == cbRecording || o.state == cbExecutable {
		o.state = cbInvalid
	}
	o.mu.Unlock()
}

// retire is called when the submission referencing this buffer completes.
func (o *commandBufferObject) retire() {
	o.mu.Lock()
	if o.state == cbPending {
		if o.oneTime {
			o.state = cbInvalid
		} else {
			o.state = cbExecutable
		}
	}
	o.mu.Unlock()
}

// replay encodes the recording into a backend encoder.
func (o *commandBufferObject) replay(ctx *replayContext) error {
	o.mu.Lock()
	cmds := o.commands
	o.mu.Unlock()
	for _, c := range cmds {
		if err := c.encode(ctx); err != nil {
			return err
		}
	}
	return nil
}

// recording resolves the buffer and checks it is in Recording state; any
// other state poisons the buffer per the defined-misuse rule.
func (cb CommandBuffer) recording() (*commandBufferObject, error) {
	obj, err := resolve[*commandBufferObject](Handle(cb), KindCommandBuffer)
	if err != nil {
		return nil, err
	}
	obj.mu.Lock()
	if obj.state != cbRecording {
		obj.poisonLocked("record")
		obj.mu.Unlock()
		return nil, Error(ErrorValidationFailed)
	}
	obj.mu.Unlock()
	return obj, nil
}

func (o *commandBufferObject) record(c command, refs ...Handle) {
	o.mu.Lock()
	if o.state != cbRecording {
		o.mu.Unlock()
		return
	}
	o.commands = append(o.commands, c)
	for _, h := range refs {
		o.refs[h] = struct{}{}
	}
	o.mu.Unlock()
}

func (o *commandBufferObject) useBuffer(h Buffer) (*bufferObject, error) {
	bo, err := resolve[*bufferObject](Handle(h), KindBuffer)
	if err != nil {
		o.mu.Lock()
		o.poisonLocked("resolve buffer")
		o.mu.Unlock()
		return nil, err
	}
	bo.watch(o)
	o.mu.Lock()
	o.buffers = append(o.buffers, bo)
	o.mu.Unlock()
	return bo, nil
}

func (o *commandBufferObject) useImage(h Image) (*imageObject, error) {
	io, err := resolve[*imageObject](Handle(h), KindImage)
	if err != nil {
		o.mu.Lock()
		o.poisonLocked("resolve image")
		o.mu.Unlock()
		return nil, err
	}
	io.watch(o)
	o.mu.Lock()
	o.images = append(o.images, io)
	o.mu.Unlock()
	return io, nil
}

// requireOutsideRenderPass poisons the buffer when a command that is only
// valid outside a render pass instance is recorded inside one.
func (o *commandBufferObject) requireOutsideRenderPass() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inRenderPass {
		o.poisonLocked("outside-pass command inside pass")
		return Error(ErrorValidationFailed)
	}
	return nil
}

func (o *commandBufferObject) requireInsideRenderPass() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.inRenderPass {
		o.poisonLocked("inside-pass command outside pass")
		return Error(ErrorValidationFailed)
	}
	return nil
}

// CmdCopyBuffer records a buffer-to-buffer copy.
func (cb CommandBuffer) CmdCopyBuffer(src, dst Buffer, regions []BufferCopy) error {
	obj, err := cb.recording()
	if err != nil {
		return err
	}
	if err := obj.requireOutsideRenderPass(); err != nil {
		return err
	}
	so, err := obj.useBuffer(src)
	if err != nil {
		return err
	}
	do, err := obj.useBuffer(dst)
	if err != nil {
		return err
	}
	for _, r := range regions {
		// compare without adding so huge offsets cannot wrap
		if r.SrcOffset > so.size || r.Size > so.size-r.SrcOffset ||
			r.DstOffset > do.size || r.Size > do.size-r.DstOffset {
			obj.mu.Lock()
			obj.poisonLocked("copy out of range")
			obj.mu.Unlock()
			return Error(ErrorValidationFailed)
		}
	}
	obj.record(&cmdCopyBuffer{src: so.buf, dst: do.buf, regions: copyRegionsToDriver(regions)},
		Handle(src), Handle(dst))
	return nil
}

// CmdCopyBufferToImage records a buffer-to-image upload.
func (cb CommandBuffer) CmdCopyBufferToImage(src Buffer, dst Image, regions []BufferImageCopy) error {
	obj, err := cb.recording()
	if err != nil {
		return err
	}
	if err := obj.requireOutsideRenderPass(); err != nil {
		return err
	}
	so, err := obj.useBuffer(src)
	if err != nil {
		return err
	}
	do, err := obj.useImage(dst)
	if err != nil {
		return err
	}
	obj.record(&cmdCopyBufferToImage{src: so.buf, dst: do.img, regions: imageRegionsToDriver(regions)},
		Handle(src), Handle(dst))
	return nil
}

// CmdCopyImageToBuffer records an image readback.
func (cb CommandBuffer) CmdCopyImageToBuffer(src Image, dst Buffer, regions []BufferImageCopy) error {
	obj, err := cb.recording()
	if err != nil {
		return err
	}
	if err := obj.requireOutsideRenderPass(); err != nil {
		return err
	}
	so, err := obj.useImage(src)
	if err != nil {
		return err
	}
	do, err := obj.useBuffer(dst)
	if err != nil {
		return err
	}
	obj.record(&cmdCopyImageToBuffer{src: so.img, dst: do.buf, regions: imageRegionsToDriver(regions)},
		Handle(src), Handle(dst))
	return nil
}

// CmdFillBuffer records a fill with a repeated 32-bit word. Size may be
// WholeSize; offset and an explicit size must be multiples of four.
func (cb CommandBuffer) CmdFillBuffer(dst Buffer, offset, size uint64, value uint32) error {
	obj, err := cb.recording()
	if err != nil {
		return err
	}
	if err := obj.requireOutsideRenderPass(); err != nil {
		return err
	}
	do, err := obj.useBuffer(dst)
	if err != nil {
		return err
	}
	if size == WholeSize {
		if offset > do.size {
			obj.mu.Lock()
			obj.poisonLocked("fill out of range")
			obj.mu.Unlock()
			return Error(ErrorValidationFailed)
		}
		size = do.size - offset
	}
	if offset%4 != 0 || size%4 != 0 || offset > do.size || size > do.size-offset {
		obj.mu.Lock()
		obj.poisonLocked("fill out of range")
		obj.mu.Unlock()
		return Error(ErrorValidationFailed)
	}
	obj.record(&cmdFillBuffer{dst: do.buf, offset: offset, size: size, value: value}, Handle(dst))
	return nil
}

// CmdUpdateBuffer records an inline write of up to 64 KiB, with the data
// captured at record time as in the target API.
func (cb CommandBuffer) CmdUpdateBuffer(dst Buffer, offset uint64, data []byte) error {
	obj, err := cb.recording()
	if err != nil {
		return err
	}
	if err := obj.requireOutsideRenderPass(); err != nil {
		return err
	}
	do, err := obj.useBuffer(dst)
	if err != nil {
		return err
	}
	if len(data) == 0 || len(data) > 65536 || offset > do.size || uint64(len(data)) > do.size-offset {
		obj.mu.Lock()
		obj.poisonLocked("update out of range")
		obj.mu.Unlock()
		return Error(ErrorValidationFailed)
	}
	captured := append([]byte(nil), data...)
	obj.record(&cmdUpdateBuffer{dst: do.buf, offset: offset, data: captured}, Handle(dst))
	return nil
}

// CmdPipelineBarrier records a synchronization and layout-transition point.
// The barrier translator decomposes the target API's stage and access
// scopes into backend resource-state transitions.
func (cb CommandBuffer) CmdPipelineBarrier(
	srcStage, dstStage PipelineStageFlags,
	memory []MemoryBarrier,
	buffers []BufferMemoryBarrier,
	images []ImageMemoryBarrier,
) error {
	obj, err := cb.recording()
	if err != nil {
		return err
	}

	dev, err := deviceFor(obj.device)
	if err != nil {
		return err
	}

	var refs []Handle
	var bufObjs []*bufferObject
	var imgObjs []*imageObject
	for _, bb := range buffers {
		bo, err := obj.useBuffer(bb.Buffer)
		if err != nil {
			return err
		}
		bufObjs = append(bufObjs, bo)
		refs = append(refs, Handle(bb.Buffer))
	}
	for _, ib := range images {
		io, err := obj.useImage(ib.Image)
		if err != nil {
			return err
		}
		imgObjs = append(imgObjs, io)
		refs = append(refs, Handle(ib.Image))
	}

	transitions := decomposeBarriers(dev.caps, srcStage, dstStage, memory, buffers, images, bufObjs, imgObjs)
	obj.record(&cmdBarrier{transitions: transitions}, refs...)
	return nil
}

// CmdSetEvent, CmdResetEvent and CmdWaitEvents record device-side event
// operations.
func (cb CommandBuffer) CmdSetEvent(e Event, stage PipelineStageFlags) error {
	obj, err := cb.recording()
	if err != nil {
		return err
	}
	eo, err := resolve[*eventObject](Handle(e), KindEvent)
	if err != nil {
		return err
	}
	obj.record(&cmdSetEvent{e: eo.e}, Handle(e))
	return nil
}

func (cb CommandBuffer) CmdResetEvent(e Event, stage PipelineStageFlags) error {
	obj, err := cb.recording()
	if err != nil {
		return err
	}
	eo, err := resolve[*eventObject](Handle(e), KindEvent)
	if err != nil {
		return err
	}
	obj.record(&cmdResetEvent{e: eo.e}, Handle(e))
	return nil
}

func (cb CommandBuffer) CmdWaitEvents(events []Event, srcStage, dstStage PipelineStageFlags) error {
	obj, err := cb.recording()
	if err != nil {
		return err
	}
	var des []driver.Event
	var refs []Handle
	for _, e := range events {
		eo, err := resolve[*eventObject](Handle(e), KindEvent)
		if err != nil {
			return err
		}
		des = append(des, eo.e)
		refs = append(refs, Handle(e))
	}
	obj.record(&cmdWaitEvents{events: des}, refs...)
	return nil
}

// CmdBindPipeline records a pipeline bind.
func (cb CommandBuffer) CmdBindPipeline(p Pipeline) error {
	obj, err := cb.recording()
	if err != nil {
		return err
	}
	po, err := resolve[*pipelineObject](Handle(p), KindPipeline)
	if err != nil {
		return err
	}
	obj.mu.Lock()
	obj.boundPipeline = true
	obj.boundCompute = po.compute
	obj.mu.Unlock()
	obj.record(&cmdBindPipeline{p: po.p, compute: po.compute}, Handle(p))
	return nil
}

// CmdBindDescriptorSets records descriptor bindings. Set contents are
// flattened at record time; later writes to the set do not affect this
// recording.
func (cb CommandBuffer) CmdBindDescriptorSets(layout PipelineLayout, firstSet uint32, sets []DescriptorSet) error {
	obj, err := cb.recording()
	if err != nil {
		return err
	}
	if _, err := resolve[*pipelineLayoutObject](Handle(layout), KindPipelineLayout); err != nil {
		return err
	}
	for i, s := range sets {
		so, err := resolve[*descriptorSetObject](Handle(s), KindDescriptorSet)
		if err != nil {
			return err
		}
		bindings, refs, berr := so.flatten(obj)
		if berr != nil {
			return berr
		}
		refs = append(refs, Handle(s), Handle(layout))
		obj.record(&cmdBindDescriptors{set: firstSet + uint32(i), bindings: bindings}, refs...)
	}
	return nil
}

// CmdDispatch records a compute dispatch. Only valid outside a render
// pass with a compute pipeline bound.
func (cb CommandBuffer) CmdDispatch(x, y, z uint32) error {
	obj, err := cb.recording()
	if err != nil {
		return err
	}
	if err := obj.requireOutsideRenderPass(); err != nil {
		return err
	}
	obj.mu.Lock()
	if !obj.boundPipeline || !obj.boundCompute {
		obj.poisonLocked("dispatch without compute pipeline")
		obj.mu.Unlock()
		return Error(ErrorValidationFailed)
	}
	obj.mu.Unlock()
	obj.record(&cmdDispatch{x: x, y: y, z: z})
	return nil
}

// CmdBeginRenderPass opens a render pass instance. Entry transitions were
// precomputed at render pass creation and are materialized here against
// the concrete attachments.
func (cb CommandBuffer) CmdBeginRenderPass(info *RenderPassBeginInfo) error {
	obj, err := cb.recording()
	if err != nil {
		return err
	}
	if err := obj.requireOutsideRenderPass(); err != nil {
		return err
	}
	if info == nil {
		return Error(ErrorValidationFailed)
	}
	rpo, err := resolve[*renderPassObject](Handle(info.RenderPass), KindRenderPass)
	if err != nil {
		return err
	}
	rp := rpo.state
	if len(info.Attachments) != len(rp.attachments) {
		obj.mu.Lock()
		obj.poisonLocked("attachment count mismatch")
		obj.mu.Unlock()
		return Error(ErrorValidationFailed)
	}

	images := make([]driver.Image, len(info.Attachments))
	refs := []Handle{Handle(info.RenderPass)}
	for i, a := range info.Attachments {
		io, err := obj.useImage(a)
		if err != nil {
			return err
		}
		images[i] = io.img
		refs = append(refs, Handle(a))
	}

	targets := make([]driver.RenderTarget, len(images))
	for i, att := range rp.attachments {
		t := driver.RenderTarget{
			Image: images[i],
			Depth: formatIsDepth(att.Format),
			Clear: att.LoadOp == LoadOpClear,
			Store: att.StoreOp == StoreOpStore,
		}
		if i < len(info.ClearColors) {
			t.ClearColor = info.ClearColors[i]
		}
		t.ClearDepth = info.ClearDepth
		targets[i] = t
	}

	obj.mu.Lock()
	obj.inRenderPass = true
	obj.subpass = 0
	obj.activeRP = rp
	obj.activeTargets = images
	obj.mu.Unlock()

	obj.record(&cmdBeginRenderPass{
		transitions: rp.materialize(images),
		targets:     targets,
	}, refs...)
	return nil
}

// CmdNextSubpass advances to the next subpass, applying that subpass's
// precomputed transitions.
func (cb CommandBuffer) CmdNextSubpass() error {
	obj, err := cb.recording()
	if err != nil {
		return err
	}
	if err := obj.requireInsideRenderPass(); err != nil {
		return err
	}

	obj.mu.Lock()
	rp := obj.activeRP
	images := obj.activeTargets
	next := obj.subpass + 1
	if next >= len(rp.perSubpass) {
		obj.poisonLocked("subpass overrun")
		obj.mu.Unlock()
		return Error(ErrorValidationFailed)
	}
	obj.subpass = next
	obj.mu.Unlock()

	obj.record(&cmdNextSubpass{transitions: materializeTransitions(rp.perSubpass[next], images)})
	return nil
}

// CmdEndRenderPass closes the instance, applying the final-layout
// transitions.
func (cb CommandBuffer) CmdEndRenderPass() error {
	obj, err := cb.recording()
	if err != nil {
		return err
	}
	if err := obj.requireInsideRenderPass(); err != nil {
		return err
	}

	obj.mu.Lock()
	if obj.subpass != len(obj.activeRP.perSubpass)-1 {
		obj.poisonLocked("end before last subpass")
		obj.mu.Unlock()
		return Error(ErrorValidationFailed)
	}
	rp := obj.activeRP
	images := obj.activeTargets
	obj.inRenderPass = false
	obj.activeRP = nil
	obj.activeTargets = nil
	obj.mu.Unlock()

	obj.record(&cmdEndRenderPass{final: materializeTransitions(rp.final, images)})
	return nil
}

// CmdBindVertexBuffers records vertex buffer bindings.
func (cb CommandBuffer) CmdBindVertexBuffers(first uint32, buffers []Buffer, offsets []uint64) error {
	obj, err := cb.recording()
	if err != nil {
		return err
	}
	if len(buffers) != len(offsets) {
		return Error(ErrorValidationFailed)
	}
	var dbs []driver.Buffer
	var refs []Handle
	for _, b := range buffers {
		bo, err := obj.useBuffer(b)
		if err != nil {
			return err
		}
		dbs = append(dbs, bo.buf)
		refs = append(refs, Handle(b))
	}
	obj.record(&cmdBindVertexBuffers{first: first, buffers: dbs, offsets: offsets}, refs...)
	return nil
}

// CmdBindIndexBuffer records the index buffer binding.
func (cb CommandBuffer) CmdBindIndexBuffer(b Buffer, offset uint64, format driver.IndexFormat) error {
	obj, err := cb.recording()
	if err != nil {
		return err
	}
	bo, err := obj.useBuffer(b)
	if err != nil {
		return err
	}
	obj.record(&cmdBindIndexBuffer{buf: bo.buf, offset: offset, format: format}, Handle(b))
	return nil
}

// CmdSetViewport and CmdSetScissor record dynamic state.
func (cb CommandBuffer) CmdSetViewport(x, y, width, height, minDepth, maxDepth float32) error {
	obj, err := cb.recording()
	if err != nil {
		return err
	}
	obj.record(&cmdSetViewport{x: x, y: y, width: width, height: height, minDepth: minDepth, maxDepth: maxDepth})
	return nil
}

func (cb CommandBuffer) CmdSetScissor(x, y, width, height uint32) error {
	obj, err := cb.recording()
	if err != nil {
		return err
	}
	obj.record(&cmdSetScissor{x: x, y: y, width: width, height: height})
	return nil
}

// CmdDraw records a non-indexed draw. Only valid inside a render pass with
// a graphics pipeline bound.
func (cb CommandBuffer) CmdDraw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error {
	obj, err := cb.recording()
	if err != nil {
		return err
	}
	if err := obj.requireInsideRenderPass(); err != nil {
		return err
	}
	obj.mu.Lock()
	if !obj.boundPipeline || obj.boundCompute {
		obj.poisonLocked("draw without graphics pipeline")
		obj.mu.Unlock()
		return Error(ErrorValidationFailed)
	}
	obj.mu.Unlock()
	obj.record(&cmdDraw{vertexCount: vertexCount, instanceCount: instanceCount, firstVertex: firstVertex, firstInstance: firstInstance})
	return nil
}

// CmdDrawIndexed records an indexed draw.
func (cb CommandBuffer) CmdDrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) error {
	obj, err := cb.recording()
	if err != nil {
		return err
	}
	if err := obj.requireInsideRenderPass(); err != nil {
		return err
	}
	obj.mu.Lock()
	if !obj.boundPipeline || obj.boundCompute {
		obj.poisonLocked("draw without graphics pipeline")
		obj.mu.Unlock()
		return Error(ErrorValidationFailed)
	}
	obj.mu.Unlock()
	obj.record(&cmdDrawIndexed{indexCount: indexCount, instanceCount: instanceCount, firstIndex: firstIndex, vertexOffset: vertexOffset, firstInstance: firstInstance})
	return nil
}

func copyRegionsToDriver(regions []BufferCopy) []driver.BufferCopy {
	out := make([]driver.BufferCopy, len(regions))
	for i, r := range regions {
		out[i] = driver.BufferCopy{SrcOffset: r.SrcOffset, DstOffset: r.DstOffset, Size: r.Size}
	}
	return out
}

func imageRegionsToDriver(regions []BufferImageCopy) []driver.BufferImageCopy {
	out := make([]driver.BufferImageCopy, len(regions))
	for i, r := range regions {
		out[i] = driver.BufferImageCopy{
			BufferOffset: r.BufferOffset,
			RowLength:    r.BufferRowLength,
			ImageHeight:  r.BufferImageHeight,
			Width:        r.ImageExtent.Width,
			Height:       r.ImageExtent.Height,
			Depth:        r.ImageExtent.Depth,
		}
	}
	return out
}

func formatIsDepth(f Format) bool {
	return f == FormatD32Sfloat || f == FormatD24UnormS8Uint
}
