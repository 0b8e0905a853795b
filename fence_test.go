package portability

import (
	"testing"
	"time"
)

func TestFenceCreatedSignaled(t *testing.T) {
	_, dev := newTestDevice(t)

	fence, err := dev.CreateFence(true)
	if err != nil {
		t.Fatal(err)
	}
	defer fence.Destroy()

	res, err := fence.Status()
	if err != nil || res != Success {
		t.Errorf("status got (%v, %v), want Success", res, err)
	}
	res, err = fence.Wait(0)
	if err != nil || res != Success {
		t.Errorf("wait got (%v, %v), want Success", res, err)
	}
}

func TestFenceTimeoutIsNotAnError(t *testing.T) {
	_, dev := newTestDevice(t)

	fence, err := dev.CreateFence(false)
	if err != nil {
		t.Fatal(err)
	}
	defer fence.Destroy()

	res, err := fence.Status()
	if err != nil || res != NotReady {
		t.Errorf("status got (%v, %v), want NotReady", res, err)
	}

	// a zero timeout polls; elapsing reports Timeout with a nil error
	res, err = fence.Wait(0)
	if err != nil || res != Timeout {
		t.Errorf("poll got (%v, %v), want Timeout", res, err)
	}
	res, err = fence.Wait(time.Millisecond)
	if err != nil || res != Timeout {
		t.Errorf("short wait got (%v, %v), want Timeout", res, err)
	}
}

func TestFenceReset(t *testing.T) {
	_, dev := newTestDevice(t)

	fence, err := dev.CreateFence(true)
	if err != nil {
		t.Fatal(err)
	}
	defer fence.Destroy()

	if err := fence.Reset(); err != nil {
		t.Fatal(err)
	}
	res, err := fence.Status()
	if err != nil || res != NotReady {
		t.Errorf("status after reset got (%v, %v)", res, err)
	}

	// resetting an unsignaled fence is a no-op
	if err := fence.Reset(); err != nil {
		t.Errorf("reset of unsignaled: %v", err)
	}
}

func TestFenceReusableAcrossSubmits(t *testing.T) {
	phys, dev := newTestDevice(t)
	queue, _ := dev.GetQueue()

	buf, mem := newBoundBuffer(t, phys, dev, 64, BufferUsageTransferDst,
		MemoryPropertyHostVisible)
	defer mem.Free()
	defer buf.Destroy()

	fence, err := dev.CreateFence(false)
	if err != nil {
		t.Fatal(err)
	}
	defer fence.Destroy()

	cb := newTestCommandBuffer(t, dev)
	for round := 0; round < 3; round++ {
		if err := cb.Begin(nil); err != nil {
			t.Fatal(err)
		}
		if err := cb.CmdFillBuffer(buf, 0, WholeSize, uint32(round)); err != nil {
			t.Fatal(err)
		}
		if err := cb.End(); err != nil {
			t.Fatal(err)
		}
		if err := queue.Submit([]SubmitInfo{{CommandBuffers: []CommandBuffer{cb}}}, fence); err != nil {
			t.Fatal(err)
		}
		res, err := fence.Wait(time.Second)
		if err != nil || res != Success {
			t.Fatalf("round %d wait got (%v, %v)", round, res, err)
		}
		if err := fence.Reset(); err != nil {
			t.Fatal(err)
		}
	}
}
