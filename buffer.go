package portability

import (
	"sync"

	"github.com/italicsjenga/portability/driver"
)

// BufferCreateFlags modify buffer creation.
type BufferCreateFlags uint32

// BufferCreateAlias lets the buffer share memory ranges with other
// resources that also carry the flag. Without it, overlapping binds are
// rejected.
const BufferCreateAlias BufferCreateFlags = 1 << 0

// BufferCreateInfo mirrors the target API's buffer creation parameters.
type BufferCreateInfo struct {
	Size  uint64
	Usage BufferUsageFlags
	Flags BufferCreateFlags
}

// MemoryRequirements is the public shape of a resource memory query.
// MemoryTypeBits has bit i set when table index i can back the resource.
type MemoryRequirements struct {
	Size           uint64
	Alignment      uint64
	MemoryTypeBits uint32
}

type bufferObject struct {
	mu     sync.Mutex
	device Device
	buf    driver.Buffer
	size   uint64
	usage  BufferUsageFlags
	alias  bool

	mem       DeviceMemory
	memOffset uint64
	bound     bool

	// watchers are command buffers that recorded a reference to this
	// buffer. Destroying the buffer invalidates them, matching the target
	// API's rule that recorded-but-unsubmitted references go stale.
	watchers map[*commandBufferObject]struct{}
}

// CreateBuffer creates an unbound buffer. Memory comes later via
// BindMemory, as in the target API's two-step resource model.
func (d Device) CreateBuffer(info *BufferCreateInfo) (Buffer, error) {
	obj, err := deviceFor(d)
	if err != nil {
		return 0, err
	}
	if info == nil || info.Size == 0 {
		return 0, Error(ErrorValidationFailed)
	}
	if obj.limits.MaxBufferSize != 0 && info.Size > obj.limits.MaxBufferSize {
		return 0, Error(ErrorOutOfDeviceMemory)
	}

	buf, err := obj.dev.CreateBuffer(info.Size, bufferUsageToDriver(info.Usage))
	if err != nil {
		Logger().Warn("buffer creation failed", "size", info.Size, "err", err)
		return 0, Error(ErrorOutOfDeviceMemory)
	}

	bo := &bufferObject{
		device:   d,
		buf:      buf,
		size:     info.Size,
		usage:    info.Usage,
		alias:    info.Flags&BufferCreateAlias != 0,
		watchers: make(map[*commandBufferObject]struct{}),
	}
	return Buffer(obj.reg.allocate(KindBuffer, bo)), nil
}

// MemoryRequirements reports size, alignment and the compatible memory
// types. Heap mask bits from the backend translate one-to-one into type
// bits because the emulated table derives one type per heap.
func (b Buffer) MemoryRequirements() (MemoryRequirements, error) {
	bo, err := resolve[*bufferObject](Handle(b), KindBuffer)
	if err != nil {
		return MemoryRequirements{}, err
	}
	req := bo.buf.Requirements()
	return MemoryRequirements{
		Size:           req.Size,
		Alignment:      req.Alignment,
		MemoryTypeBits: req.HeapMask,
	}, nil
}

// BindMemory attaches memory to the buffer. Binding is one-shot; offset
// must honor the reported alignment and the claimed range must not overlap
// another resource's claim on the same allocation.
func (b Buffer) BindMemory(mem DeviceMemory, offset uint64) error {
	bo, err := resolve[*bufferObject](Handle(b), KindBuffer)
	if err != nil {
		return err
	}
	mo, err := resolve[*deviceMemoryObject](Handle(mem), KindDeviceMemory)
	if err != nil {
		return err
	}
	if _, err := deviceFor(bo.device); err != nil {
		return err
	}

	req := bo.buf.Requirements()
	if offset%req.Alignment != 0 {
		return Error(ErrorValidationFailed)
	}
	if mo.heap < 32 && req.HeapMask&(1<<mo.heap) == 0 {
		return Error(ErrorValidationFailed)
	}

	bo.mu.Lock()
	defer bo.mu.Unlock()
	if bo.bound {
		return Error(ErrorValidationFailed)
	}
	if err := mo.claim(offset, req.Size, Handle(b), bo.alias); err != nil {
		return err
	}
	if err := bo.buf.Bind(mo.mem, mo.base+offset); err != nil {
		mo.unclaim(Handle(b))
		Logger().Warn("buffer bind failed", "err", err)
		return Error(ErrorOutOfDeviceMemory)
	}
	bo.mem = mem
	bo.memOffset = offset
	bo.bound = true
	return nil
}

// Destroy releases the buffer. Command buffers that recorded it and were
// not yet submitted become invalid; in-flight submissions keep the backend
// object alive until they complete.
func (b Buffer) Destroy() error {
	bo, err := resolve[*bufferObject](Handle(b), KindBuffer)
	if err != nil {
		return err
	}
	reg := currentRegistry()
	if reg == nil {
		return Error(ErrorInitializationFailed)
	}

	bo.mu.Lock()
	watchers := bo.watchers
	bo.watchers = nil
	bo.mu.Unlock()
	for cb := range watchers {
		cb.invalidate()
	}

	if bo.bound {
		if mo, merr := resolve[*deviceMemoryObject](Handle(bo.mem), KindDeviceMemory); merr == nil {
			mo.unclaim(Handle(b))
		}
	}

	reg.destroy(Handle(b), KindBuffer, func() {
		bo.buf.Destroy()
	})
	return nil
}

func (bo *bufferObject) watch(cb *commandBufferObject) {
	bo.mu.Lock()
	if bo.watchers != nil {
		bo.watchers[cb] = struct{}{}
	}
	bo.mu.Unlock()
}

func (bo *bufferObject) unwatch(cb *commandBufferObject) {
	bo.mu.Lock()
	if bo.watchers != nil {
		delete(bo.watchers, cb)
	}
	bo.mu.Unlock()
}

func bufferUsageToDriver(u BufferUsageFlags) driver.BufferUsage {
	var d driver.BufferUsage
	if u&BufferUsageTransferSrc != 0 {
		d |= driver.BufferUsageTransferSrc
	}
	if u&BufferUsageTransferDst != 0 {
		d |= driver.BufferUsageTransferDst
	}
	if u&(BufferUsageUniform|BufferUsageUniformTexel) != 0 {
		d |= driver.BufferUsageUniform
	}
	if u&(BufferUsageStorage|BufferUsageStorageTexel) != 0 {
		d |= driver.BufferUsageStorage
	}
	if u&BufferUsageIndex != 0 {
		d |= driver.BufferUsageIndex
	}
	if u&BufferUsageVertex != 0 {
		d |= driver.BufferUsageVertex
	}
	if u&BufferUsageIndirect != 0 {
		d |= driver.BufferUsageIndirect
	}
	return d
}
