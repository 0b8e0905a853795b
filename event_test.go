package portability

import "testing"

func TestEventHostSignaling(t *testing.T) {
	_, dev := newTestDevice(t)

	ev, err := dev.CreateEvent()
	if err != nil {
		t.Fatal(err)
	}
	defer ev.Destroy()

	res, err := ev.Status()
	if err != nil || res != EventReset {
		t.Errorf("fresh event got (%v, %v), want EventReset", res, err)
	}
	if err := ev.Set(); err != nil {
		t.Fatal(err)
	}
	res, _ = ev.Status()
	if res != EventSet {
		t.Errorf("after set got %v", res)
	}
	if err := ev.Reset(); err != nil {
		t.Fatal(err)
	}
	res, _ = ev.Status()
	if res != EventReset {
		t.Errorf("after reset got %v", res)
	}
}

func TestEventDeviceSignaling(t *testing.T) {
	_, dev := newTestDevice(t)
	queue, _ := dev.GetQueue()

	ev, err := dev.CreateEvent()
	if err != nil {
		t.Fatal(err)
	}
	defer ev.Destroy()

	cb := newTestCommandBuffer(t, dev)
	if err := cb.Begin(nil); err != nil {
		t.Fatal(err)
	}
	if err := cb.CmdSetEvent(ev, PipelineStageTransfer); err != nil {
		t.Fatal(err)
	}
	if err := cb.End(); err != nil {
		t.Fatal(err)
	}
	if err := queue.Submit([]SubmitInfo{{CommandBuffers: []CommandBuffer{cb}}}, 0); err != nil {
		t.Fatal(err)
	}
	if err := queue.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	res, err := ev.Status()
	if err != nil || res != EventSet {
		t.Errorf("after device set got (%v, %v)", res, err)
	}

	if err := cb.Begin(nil); err != nil {
		t.Fatal(err)
	}
	if err := cb.CmdWaitEvents([]Event{ev}, PipelineStageTransfer, PipelineStageTransfer); err != nil {
		t.Fatal(err)
	}
	if err := cb.CmdResetEvent(ev, PipelineStageTransfer); err != nil {
		t.Fatal(err)
	}
	if err := cb.End(); err != nil {
		t.Fatal(err)
	}
	if err := queue.Submit([]SubmitInfo{{CommandBuffers: []CommandBuffer{cb}}}, 0); err != nil {
		t.Fatal(err)
	}
	if err := queue.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	res, _ = ev.Status()
	if res != EventReset {
		t.Errorf("after device reset got %v", res)
	}
}

func TestEventStaleHandle(t *testing.T) {
	_, dev := newTestDevice(t)

	ev, err := dev.CreateEvent()
	if err != nil {
		t.Fatal(err)
	}
	ev.Destroy()
	if err := ev.Set(); AsResult(err) != ErrorInvalidExternalHandle {
		t.Errorf("set on destroyed event: %v", err)
	}
}
