package portability

import (
	"github.com/italicsjenga/portability/driver"
)

// Recorded commands hold backend objects resolved at record time. Handles
// were checked when the command was recorded; the watcher mechanism on
// resources invalidates the recording if anything it references dies before
// submission, so replay never sees a dangling object.

type replayContext struct {
	enc  driver.Encoder
	caps driver.Caps

	// genc is non-nil when the encoder implements the raster extension.
	genc driver.GraphicsEncoder
}

type command interface {
	encode(ctx *replayContext) error
}

type cmdCopyBuffer struct {
	src, dst driver.Buffer
	regions  []driver.BufferCopy
}

func (c *cmdCopyBuffer) encode(ctx *replayContext) error {
	ctx.enc.CopyBuffer(c.src, c.dst, c.regions)
	return nil
}

type cmdCopyBufferToImage struct {
	src     driver.Buffer
	dst     driver.Image
	regions []driver.BufferImageCopy
}

func (c *cmdCopyBufferToImage) encode(ctx *replayContext) error {
	ctx.enc.CopyBufferToImage(c.src, c.dst, c.regions)
	return nil
}

type cmdCopyImageToBuffer struct {
	src     driver.Image
	dst     driver.Buffer
	regions []driver.BufferImageCopy
}

func (c *cmdCopyImageToBuffer) encode(ctx *replayContext) error {
	ctx.enc.CopyImageToBuffer(c.src, c.dst, c.regions)
	return nil
}

type cmdFillBuffer struct {
	dst    driver.Buffer
	offset uint64
	size   uint64
	value  uint32
}

func (c *cmdFillBuffer) encode(ctx *replayContext) error {
	ctx.enc.FillBuffer(c.dst, c.offset, c.size, c.value)
	return nil
}

type cmdUpdateBuffer struct {
	dst    driver.Buffer
	offset uint64
	data   []byte
}

func (c *cmdUpdateBuffer) encode(ctx *replayContext) error {
	ctx.enc.UpdateBuffer(c.dst, c.offset, c.data)
	return nil
}

type cmdBarrier struct {
	transitions []driver.Transition
}

func (c *cmdBarrier) encode(ctx *replayContext) error {
	ctx.enc.Transition(c.transitions)
	return nil
}

type cmdSetEvent struct{ e driver.Event }

func (c *cmdSetEvent) encode(ctx *replayContext) error {
	if !ctx.caps.Events {
		return Error(ErrorFeatureNotPresent)
	}
	ctx.enc.SetEvent(c.e)
	return nil
}

type cmdResetEvent struct{ e driver.Event }

func (c *cmdResetEvent) encode(ctx *replayContext) error {
	if !ctx.caps.Events {
		return Error(ErrorFeatureNotPresent)
	}
	ctx.enc.ResetEvent(c.e)
	return nil
}

type cmdWaitEvents struct{ events []driver.Event }

func (c *cmdWaitEvents) encode(ctx *replayContext) error {
	if !ctx.caps.Events {
		return Error(ErrorFeatureNotPresent)
	}
	ctx.enc.WaitEvents(c.events)
	return nil
}

type cmdBindPipeline struct {
	p       driver.Pipeline
	compute bool
}

func (c *cmdBindPipeline) encode(ctx *replayContext) error {
	ctx.enc.BindPipeline(c.p)
	return nil
}

type cmdBindDescriptors struct {
	set      uint32
	bindings []driver.Binding
}

func (c *cmdBindDescriptors) encode(ctx *replayContext) error {
	ctx.enc.BindDescriptors(c.set, c.bindings)
	return nil
}

type cmdDispatch struct{ x, y, z uint32 }

func (c *cmdDispatch) encode(ctx *replayContext) error {
	if !ctx.caps.Compute {
		return Error(ErrorFeatureNotPresent)
	}
	ctx.enc.Dispatch(c.x, c.y, c.z)
	return nil
}

// Graphics commands replay through the encoder's raster extension; without
// it the submission fails with ErrorFeatureNotPresent before any work
// reaches the backend.

func (ctx *replayContext) graphics() (driver.GraphicsEncoder, error) {
	if !ctx.caps.Graphics || ctx.genc == nil {
		return nil, Error(ErrorFeatureNotPresent)
	}
	return ctx.genc, nil
}

type cmdBeginRenderPass struct {
	// transitions precomputed per subpass at render pass creation; index 0
	// applies on entry, the rest on each NextSubpass, and final on exit.
	transitions [][]driver.Transition
	final       []driver.Transition
	targets     []driver.RenderTarget
}

func (c *cmdBeginRenderPass) encode(ctx *replayContext) error {
	g, err := ctx.graphics()
	if err != nil {
		return err
	}
	if len(c.transitions) > 0 && len(c.transitions[0]) > 0 {
		g.Transition(c.transitions[0])
	}
	g.BeginRenderPass(c.targets)
	return nil
}

type cmdNextSubpass struct {
	transitions []driver.Transition
}

func (c *cmdNextSubpass) encode(ctx *replayContext) error {
	g, err := ctx.graphics()
	if err != nil {
		return err
	}
	if len(c.transitions) > 0 {
		g.Transition(c.transitions)
	}
	g.NextSubpass()
	return nil
}

type cmdEndRenderPass struct {
	final []driver.Transition
}

func (c *cmdEndRenderPass) encode(ctx *replayContext) error {
	g, err := ctx.graphics()
	if err != nil {
		return err
	}
	g.EndRenderPass()
	if len(c.final) > 0 {
		g.Transition(c.final)
	}
	return nil
}

type cmdBindVertexBuffers struct {
	first   uint32
	buffers []driver.Buffer
	offsets []uint64
}

func (c *cmdBindVertexBuffers) encode(ctx *replayContext) error {
	g, err := ctx.graphics()
	if err != nil {
		return err
	}
	g.BindVertexBuffers(c.first, c.buffers, c.offsets)
	return nil
}

type cmdBindIndexBuffer struct {
	buf    driver.Buffer
	offset uint64
	format driver.IndexFormat
}

func (c *cmdBindIndexBuffer) encode(ctx *replayContext) error {
	g, err := ctx.graphics()
	if err != nil {
		return err
	}
	g.BindIndexBuffer(c.buf, c.offset, c.format)
	return nil
}

type cmdSetViewport struct {
	x, y, width, height, minDepth, maxDepth float32
}

func (c *cmdSetViewport) encode(ctx *replayContext) error {
	g, err := ctx.graphics()
	if err != nil {
		return err
	}
	g.SetViewport(c.x, c.y, c.width, c.height, c.minDepth, c.maxDepth)
	return nil
}

type cmdSetScissor struct {
	x, y, width, height uint32
}

func (c *cmdSetScissor) encode(ctx *replayContext) error {
	g, err := ctx.graphics()
	if err != nil {
		return err
	}
	g.SetScissor(c.x, c.y, c.width, c.height)
	return nil
}

type cmdDraw struct {
	vertexCount, instanceCount, firstVertex, firstInstance uint32
}

func (c *cmdDraw) encode(ctx *replayContext) error {
	g, err := ctx.graphics()
	if err != nil {
		return err
	}
	g.Draw(c.vertexCount, c.instanceCount, c.firstVertex, c.firstInstance)
	return nil
}

type cmdDrawIndexed struct {
	indexCount, instanceCount, firstIndex uint32
	vertexOffset                          int32
	firstInstance                         uint32
}

func (c *cmdDrawIndexed) encode(ctx *replayContext) error {
	g, err := ctx.graphics()
	if err != nil {
		return err
	}
	g.DrawIndexed(c.indexCount, c.instanceCount, c.firstIndex, c.vertexOffset, c.firstInstance)
	return nil
}
