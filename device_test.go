package portability

import (
	"errors"
	"testing"
)

func TestDeviceLostIsSticky(t *testing.T) {
	phys, dev := newTestDevice(t)

	buf, mem := newBoundBuffer(t, phys, dev, 256, BufferUsageTransferDst,
		MemoryPropertyHostVisible|MemoryPropertyHostCoherent)
	fence, err := dev.CreateFence(false)
	if err != nil {
		t.Fatal(err)
	}
	queue, err := dev.GetQueue()
	if err != nil {
		t.Fatal(err)
	}

	obj, err := resolve[*deviceObject](Handle(dev), KindDevice)
	if err != nil {
		t.Fatal(err)
	}
	obj.markLost(errors.New("backend reset"))

	// every descendant surface reports the loss from now on
	if _, err := dev.CreateBuffer(&BufferCreateInfo{Size: 64, Usage: BufferUsageTransferSrc}); AsResult(err) != ErrorDeviceLost {
		t.Errorf("CreateBuffer: %v", err)
	}
	if _, err := mem.Map(0, WholeSize); AsResult(err) != ErrorDeviceLost {
		t.Errorf("Map: %v", err)
	}
	if _, err := fence.Status(); AsResult(err) != ErrorDeviceLost {
		t.Errorf("fence status: %v", err)
	}
	if err := queue.Submit(nil, fence); AsResult(err) != ErrorDeviceLost {
		t.Errorf("Submit: %v", err)
	}
	if err := dev.WaitIdle(); AsResult(err) != ErrorDeviceLost {
		t.Errorf("WaitIdle: %v", err)
	}

	if err := buf.BindMemory(mem, 0); AsResult(err) != ErrorDeviceLost {
		t.Errorf("rebind: %v", err)
	}

	// loss does not clear
	if _, err := dev.CreateBuffer(&BufferCreateInfo{Size: 64, Usage: BufferUsageTransferSrc}); AsResult(err) != ErrorDeviceLost {
		t.Errorf("second CreateBuffer: %v", err)
	}
}
