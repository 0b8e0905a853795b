package portability

import "sync"

// CommandPoolCreateInfo mirrors the target API. The layer has one queue
// family per device, so the family index only gets validated.
type CommandPoolCreateInfo struct {
	QueueFamilyIndex uint32
}

type commandPoolObject struct {
	mu      sync.Mutex
	device  Device
	buffers map[CommandBuffer]*commandBufferObject
}

// CreateCommandPool creates a pool. Command buffers allocate from it and
// die with it.
func (d Device) CreateCommandPool(info *CommandPoolCreateInfo) (CommandPool, error) {
	obj, err := deviceFor(d)
	if err != nil {
		return 0, err
	}
	if info != nil && info.QueueFamilyIndex != 0 {
		return 0, Error(ErrorValidationFailed)
	}

	po := &commandPoolObject{
		device:  d,
		buffers: make(map[CommandBuffer]*commandBufferObject),
	}
	return CommandPool(obj.reg.allocate(KindCommandPool, po)), nil
}

// AllocateCommandBuffers returns count fresh buffers in Initial state.
func (p CommandPool) AllocateCommandBuffers(count int) ([]CommandBuffer, error) {
	po, err := resolve[*commandPoolObject](Handle(p), KindCommandPool)
	if err != nil {
		return nil, err
	}
	dev, err := deviceFor(po.device)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, Error(ErrorValidationFailed)
	}

	out := make([]CommandBuffer, 0, count)
	po.mu.Lock()
	defer po.mu.Unlock()
	for i := 0; i < count; i++ {
		cbo := &commandBufferObject{
			device: po.device,
			pool:   p,
			refs:   make(map[Handle]struct{}),
		}
		h := CommandBuffer(dev.reg.allocate(KindCommandBuffer, cbo))
		po.buffers[h] = cbo
		out = append(out, h)
	}
	return out, nil
}

// FreeCommandBuffers returns buffers to the pool. Freeing a Pending buffer
// is a caller error; the handles die immediately either way, with backend
// work protected by the submission's own references.
func (p CommandPool) FreeCommandBuffers(buffers []CommandBuffer) error {
	po, err := resolve[*commandPoolObject](Handle(p), KindCommandPool)
	if err != nil {
		return err
	}
	reg := currentRegistry()
	if reg == nil {
		return Error(ErrorInitializationFailed)
	}

	po.mu.Lock()
	defer po.mu.Unlock()
	for _, h := range buffers {
		cbo, ok := po.buffers[h]
		if !ok {
			return Error(ErrorValidationFailed)
		}
		cbo.mu.Lock()
		cbo.resetLocked()
		cbo.mu.Unlock()
		delete(po.buffers, h)
		reg.destroy(Handle(h), KindCommandBuffer, nil)
	}
	return nil
}

// Reset returns every buffer in the pool to Initial state.
func (p CommandPool) Reset() error {
	po, err := resolve[*commandPoolObject](Handle(p), KindCommandPool)
	if err != nil {
		return err
	}

	po.mu.Lock()
	defer po.mu.Unlock()
	for _, cbo := range po.buffers {
		cbo.mu.Lock()
		if cbo.state == cbPending {
			cbo.mu.Unlock()
			return Error(ErrorValidationFailed)
		}
		cbo.resetLocked()
		cbo.mu.Unlock()
	}
	return nil
}

// Destroy frees the pool and every buffer allocated from it.
func (p CommandPool) Destroy() error {
	po, err := resolve[*commandPoolObject](Handle(p), KindCommandPool)
	if err != nil {
		return err
	}
	reg := currentRegistry()
	if reg == nil {
		return Error(ErrorInitializationFailed)
	}

	po.mu.Lock()
	for h, cbo := range po.buffers {
		cbo.mu.Lock()
		cbo.resetLocked()
		cbo.mu.Unlock()
		reg.destroy(Handle(h), KindCommandBuffer, nil)
	}
	po.buffers = nil
	po.mu.Unlock()

	reg.destroy(Handle(p), KindCommandPool, nil)
	return nil
}
