package portability

import "testing"

func newTestCommandBuffer(t *testing.T, dev Device) CommandBuffer {
	t.Helper()
	pool, err := dev.CreateCommandPool(&CommandPoolCreateInfo{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pool.Destroy() })
	cbs, err := pool.AllocateCommandBuffers(1)
	if err != nil {
		t.Fatal(err)
	}
	return cbs[0]
}

func wantState(t *testing.T, cb CommandBuffer, want string) {
	t.Helper()
	state, err := cb.State()
	if err != nil {
		t.Fatal(err)
	}
	if state != want {
		t.Errorf("state %s, want %s", state, want)
	}
}

func TestCommandBufferLifecycle(t *testing.T) {
	_, dev := newTestDevice(t)
	cb := newTestCommandBuffer(t, dev)
	wantState(t, cb, "Initial")

	if err := cb.Begin(nil); err != nil {
		t.Fatal(err)
	}
	wantState(t, cb, "Recording")

	if err := cb.Begin(nil); AsResult(err) != ErrorValidationFailed {
		t.Errorf("begin while recording: %v", err)
	}

	if err := cb.End(); err != nil {
		t.Fatal(err)
	}
	wantState(t, cb, "Executable")

	// ending an executable buffer poisons it
	if err := cb.End(); AsResult(err) != ErrorValidationFailed {
		t.Errorf("double end: %v", err)
	}
	wantState(t, cb, "Invalid")

	// begin implicitly resets an invalid buffer
	if err := cb.Begin(nil); err != nil {
		t.Fatal(err)
	}
	wantState(t, cb, "Recording")

	if err := cb.Reset(); err != nil {
		t.Fatal(err)
	}
	wantState(t, cb, "Initial")
}

func TestRecordOutsideRecordingPoisons(t *testing.T) {
	phys, dev := newTestDevice(t)
	cb := newTestCommandBuffer(t, dev)

	buf, mem := newBoundBuffer(t, phys, dev, 64, BufferUsageTransferDst,
		MemoryPropertyHostVisible)
	defer mem.Free()
	defer buf.Destroy()

	if err := cb.CmdFillBuffer(buf, 0, WholeSize, 0); AsResult(err) != ErrorValidationFailed {
		t.Errorf("record in Initial: %v", err)
	}
	wantState(t, cb, "Invalid")
}

func TestCopyRangeValidated(t *testing.T) {
	phys, dev := newTestDevice(t)
	cb := newTestCommandBuffer(t, dev)

	src, srcMem := newBoundBuffer(t, phys, dev, 64, BufferUsageTransferSrc,
		MemoryPropertyHostVisible)
	dst, dstMem := newBoundBuffer(t, phys, dev, 64, BufferUsageTransferDst,
		MemoryPropertyHostVisible)
	defer srcMem.Free()
	defer dstMem.Free()
	defer src.Destroy()
	defer dst.Destroy()

	if err := cb.Begin(nil); err != nil {
		t.Fatal(err)
	}
	err := cb.CmdCopyBuffer(src, dst, []BufferCopy{{SrcOffset: 32, DstOffset: 0, Size: 64}})
	if AsResult(err) != ErrorValidationFailed {
		t.Errorf("out-of-range copy: %v", err)
	}
	wantState(t, cb, "Invalid")
}

func TestFillBufferValidation(t *testing.T) {
	phys, dev := newTestDevice(t)

	buf, mem := newBoundBuffer(t, phys, dev, 64, BufferUsageTransferDst,
		MemoryPropertyHostVisible)
	defer mem.Free()
	defer buf.Destroy()

	cb := newTestCommandBuffer(t, dev)
	if err := cb.Begin(nil); err != nil {
		t.Fatal(err)
	}
	if err := cb.CmdFillBuffer(buf, 2, 8, 0); AsResult(err) != ErrorValidationFailed {
		t.Errorf("unaligned fill offset: %v", err)
	}

	cb2 := newTestCommandBuffer(t, dev)
	if err := cb2.Begin(nil); err != nil {
		t.Fatal(err)
	}
	if err := cb2.CmdFillBuffer(buf, 0, WholeSize, 0xDEADBEEF); err != nil {
		t.Errorf("whole-size fill: %v", err)
	}
}

func TestUpdateBufferLimits(t *testing.T) {
	phys, dev := newTestDevice(t)

	buf, mem := newBoundBuffer(t, phys, dev, 128<<10, BufferUsageTransferDst,
		MemoryPropertyHostVisible)
	defer mem.Free()
	defer buf.Destroy()

	cb := newTestCommandBuffer(t, dev)
	if err := cb.Begin(nil); err != nil {
		t.Fatal(err)
	}
	if err := cb.CmdUpdateBuffer(buf, 0, make([]byte, 65536)); err != nil {
		t.Errorf("64 KiB update: %v", err)
	}
	if err := cb.CmdUpdateBuffer(buf, 0, make([]byte, 65537)); AsResult(err) != ErrorValidationFailed {
		t.Errorf("oversized update: %v", err)
	}
}

func TestUpdateBufferCapturesData(t *testing.T) {
	phys, dev := newTestDevice(t)

	buf, mem := newBoundBuffer(t, phys, dev, 16, BufferUsageTransferDst,
		MemoryPropertyHostVisible|MemoryPropertyHostCoherent)
	defer mem.Free()
	defer buf.Destroy()

	payload := []byte{1, 2, 3, 4}
	cb := newTestCommandBuffer(t, dev)
	if err := cb.Begin(nil); err != nil {
		t.Fatal(err)
	}
	if err := cb.CmdUpdateBuffer(buf, 0, payload); err != nil {
		t.Fatal(err)
	}
	if err := cb.End(); err != nil {
		t.Fatal(err)
	}

	// mutating the caller's slice after recording must not change what
	// lands in the buffer
	payload[0] = 99

	queue, err := dev.GetQueue()
	if err != nil {
		t.Fatal(err)
	}
	if err := queue.Submit([]SubmitInfo{{CommandBuffers: []CommandBuffer{cb}}}, 0); err != nil {
		t.Fatal(err)
	}
	if err := queue.WaitIdle(); err != nil {
		t.Fatal(err)
	}

	data, err := mem.Map(0, 4)
	if err != nil {
		t.Fatal(err)
	}
	if data[0] != 1 {
		t.Errorf("buffer starts with %d, want the captured 1", data[0])
	}
	mem.Unmap()
}

func TestDispatchRequiresComputePipeline(t *testing.T) {
	_, dev := newTestDevice(t)
	cb := newTestCommandBuffer(t, dev)

	if err := cb.Begin(nil); err != nil {
		t.Fatal(err)
	}
	if err := cb.CmdDispatch(1, 1, 1); AsResult(err) != ErrorValidationFailed {
		t.Errorf("dispatch without pipeline: %v", err)
	}
	wantState(t, cb, "Invalid")
}

func TestRenderPassScopeErrors(t *testing.T) {
	_, dev := newTestDevice(t)
	cb := newTestCommandBuffer(t, dev)

	if err := cb.Begin(nil); err != nil {
		t.Fatal(err)
	}
	if err := cb.CmdEndRenderPass(); AsResult(err) != ErrorValidationFailed {
		t.Errorf("end pass outside pass: %v", err)
	}
	wantState(t, cb, "Invalid")
}

func TestEndInsideRenderPassPoisons(t *testing.T) {
	_, dev := newTestDevice(t)

	rp, err := dev.CreateRenderPass(&RenderPassCreateInfo{
		Attachments: []AttachmentDescription{{
			Format:        FormatR8G8B8A8Unorm,
			LoadOp:        LoadOpClear,
			StoreOp:       StoreOpStore,
			InitialLayout: ImageLayoutUndefined,
			FinalLayout:   ImageLayoutShaderReadOnly,
		}},
		Subpasses: []SubpassDescription{{ColorAttachments: []uint32{0}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer rp.Destroy()

	img, err := dev.CreateImage(&ImageCreateInfo{
		Extent: Extent3D{Width: 4, Height: 4},
		Format: FormatR8G8B8A8Unorm,
		Usage:  ImageUsageColorAttachment,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer img.Destroy()

	cb := newTestCommandBuffer(t, dev)
	if err := cb.Begin(nil); err != nil {
		t.Fatal(err)
	}
	if err := cb.CmdBeginRenderPass(&RenderPassBeginInfo{
		RenderPass:  rp,
		Attachments: []Image{img},
	}); err != nil {
		t.Fatal(err)
	}
	if err := cb.End(); AsResult(err) != ErrorValidationFailed {
		t.Errorf("end inside pass: %v", err)
	}
	wantState(t, cb, "Invalid")
}

func TestDestroyedResourceInvalidatesRecording(t *testing.T) {
	phys, dev := newTestDevice(t)

	buf, mem := newBoundBuffer(t, phys, dev, 64, BufferUsageTransferDst,
		MemoryPropertyHostVisible)
	defer mem.Free()

	cb := newTestCommandBuffer(t, dev)
	if err := cb.Begin(nil); err != nil {
		t.Fatal(err)
	}
	if err := cb.CmdFillBuffer(buf, 0, WholeSize, 0); err != nil {
		t.Fatal(err)
	}
	if err := cb.End(); err != nil {
		t.Fatal(err)
	}
	wantState(t, cb, "Executable")

	// the recording references the buffer; destroying it goes stale
	if err := buf.Destroy(); err != nil {
		t.Fatal(err)
	}
	wantState(t, cb, "Invalid")

	queue, _ := dev.GetQueue()
	err := queue.Submit([]SubmitInfo{{CommandBuffers: []CommandBuffer{cb}}}, 0)
	if AsResult(err) != ErrorValidationFailed {
		t.Errorf("submit of invalidated buffer: %v", err)
	}
}

func TestCommandPoolReset(t *testing.T) {
	phys, dev := newTestDevice(t)

	pool, err := dev.CreateCommandPool(&CommandPoolCreateInfo{})
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Destroy()
	cbs, err := pool.AllocateCommandBuffers(2)
	if err != nil {
		t.Fatal(err)
	}

	buf, mem := newBoundBuffer(t, phys, dev, 64, BufferUsageTransferDst,
		MemoryPropertyHostVisible)
	defer mem.Free()
	defer buf.Destroy()

	for _, cb := range cbs {
		if err := cb.Begin(nil); err != nil {
			t.Fatal(err)
		}
		if err := cb.CmdFillBuffer(buf, 0, WholeSize, 1); err != nil {
			t.Fatal(err)
		}
		if err := cb.End(); err != nil {
			t.Fatal(err)
		}
	}

	queue, _ := dev.GetQueue()
	if err := queue.Submit([]SubmitInfo{{CommandBuffers: cbs[:1]}}, 0); err != nil {
		t.Fatal(err)
	}
	// the submission has not been reaped yet, so the buffer is Pending and
	// the pool refuses to reset
	wantState(t, cbs[0], "Pending")
	if err := pool.Reset(); AsResult(err) != ErrorValidationFailed {
		t.Errorf("reset with pending buffer: %v", err)
	}

	if err := queue.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	wantState(t, cbs[0], "Executable")
	if err := pool.Reset(); err != nil {
		t.Fatal(err)
	}
	wantState(t, cbs[0], "Initial")
	wantState(t, cbs[1], "Initial")
}

func TestFreeCommandBuffers(t *testing.T) {
	_, dev := newTestDevice(t)

	pool, err := dev.CreateCommandPool(&CommandPoolCreateInfo{})
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Destroy()
	cbs, err := pool.AllocateCommandBuffers(1)
	if err != nil {
		t.Fatal(err)
	}
	if err := pool.FreeCommandBuffers(cbs); err != nil {
		t.Fatal(err)
	}
	if _, err := cbs[0].State(); AsResult(err) != ErrorInvalidExternalHandle {
		t.Errorf("freed buffer resolved: %v", err)
	}
	if err := pool.FreeCommandBuffers(cbs); AsResult(err) != ErrorValidationFailed {
		t.Errorf("double free: %v", err)
	}
}

func TestRecordRangeOverflowPoisons(t *testing.T) {
	phys, dev := newTestDevice(t)

	buf, mem := newBoundBuffer(t, phys, dev, 64, BufferUsageTransferSrc|BufferUsageTransferDst,
		MemoryPropertyHostVisible)
	defer mem.Free()
	defer buf.Destroy()

	cb := newTestCommandBuffer(t, dev)

	// transfer commands reject ranges whose end wraps past zero; begin
	// resets the poisoned buffer between cases
	if err := cb.Begin(nil); err != nil {
		t.Fatal(err)
	}
	if err := cb.CmdUpdateBuffer(buf, ^uint64(0)-7, make([]byte, 8)); AsResult(err) != ErrorValidationFailed {
		t.Errorf("wrapping update: %v", err)
	}
	wantState(t, cb, "Invalid")

	if err := cb.Begin(nil); err != nil {
		t.Fatal(err)
	}
	if err := cb.CmdFillBuffer(buf, ^uint64(0)-3, 8, 0); AsResult(err) != ErrorValidationFailed {
		t.Errorf("wrapping fill: %v", err)
	}
	wantState(t, cb, "Invalid")

	if err := cb.Begin(nil); err != nil {
		t.Fatal(err)
	}
	if err := cb.CmdFillBuffer(buf, ^uint64(0)-3, WholeSize, 0); AsResult(err) != ErrorValidationFailed {
		t.Errorf("whole-size fill past the end: %v", err)
	}
	wantState(t, cb, "Invalid")

	if err := cb.Begin(nil); err != nil {
		t.Fatal(err)
	}
	err := cb.CmdCopyBuffer(buf, buf, []BufferCopy{{SrcOffset: ^uint64(0) - 3, Size: 4}})
	if AsResult(err) != ErrorValidationFailed {
		t.Errorf("wrapping copy: %v", err)
	}
	wantState(t, cb, "Invalid")
}
