package portability

import (
	"sync"

	"github.com/italicsjenga/portability/driver"
)

// Allocations at or under subAllocThreshold are packed into shared native
// blocks instead of getting a dedicated backend allocation. Native APIs cap
// the total allocation count well below what applications ask for, so the
// packing is part of the emulation, not an optimization knob.
const (
	subAllocThreshold = 64 << 10
	memBlockSize      = 4 << 20
	subAllocAlign     = 256
)

// memBlock is one shared native allocation carved up by a RangeAllocator.
type memBlock struct {
	mem   driver.Memory
	alloc *RangeAllocator
}

// MemoryAllocateInfo mirrors the target API's allocation parameters. The
// type index refers to the emulated table from MemoryProperties.
type MemoryAllocateInfo struct {
	AllocationSize  uint64
	MemoryTypeIndex uint32
}

type deviceMemoryObject struct {
	mu     sync.Mutex
	device Device
	mem    driver.Memory
	base   uint64 // offset into mem; nonzero when packed into a shared block
	size   uint64
	props  MemoryPropertyFlags
	heap   uint32
	block  *memBlock // nil for dedicated allocations

	mapped    bool
	mapOffset uint64

	// claims are the bound resource ranges. Overlap is rejected at bind
	// time unless both resources were created with the alias flag; the
	// target API leaves unrequested aliasing undefined and the layer
	// turns that into a defined failure.
	claims []memClaim
}

type memClaim struct {
	offset uint64
	size   uint64
	owner  Handle
	alias  bool
}

// AllocateMemory reserves device memory of the given type. Small requests
// share native blocks; the returned handle behaves as a dedicated
// allocation either way.
func (d Device) AllocateMemory(info *MemoryAllocateInfo) (DeviceMemory, error) {
	obj, err := deviceFor(d)
	if err != nil {
		return 0, err
	}
	if info == nil || info.AllocationSize == 0 {
		return 0, Error(ErrorValidationFailed)
	}
	if int(info.MemoryTypeIndex) >= len(obj.memProps.Types) {
		return 0, Error(ErrorValidationFailed)
	}

	t := obj.memProps.Types[info.MemoryTypeIndex]
	heap := t.HeapIndex
	if info.AllocationSize > obj.memProps.Heaps[heap].Size {
		return 0, Error(ErrorOutOfDeviceMemory)
	}

	mo := &deviceMemoryObject{
		device: d,
		size:   info.AllocationSize,
		props:  t.PropertyFlags,
		heap:   heap,
	}

	if info.AllocationSize <= subAllocThreshold {
		block, off, err := obj.subAllocate(heap, info.AllocationSize)
		if err != nil {
			return 0, err
		}
		mo.mem = block.mem
		mo.base = off
		mo.block = block
	} else {
		mem, err := obj.dev.Allocate(int(heap), info.AllocationSize)
		if err != nil {
			Logger().Warn("allocation failed", "heap", heap, "size", info.AllocationSize, "err", err)
			return 0, Error(ErrorOutOfDeviceMemory)
		}
		mo.mem = mem
	}

	return DeviceMemory(obj.reg.allocate(KindDeviceMemory, mo)), nil
}

// subAllocate finds or grows a block on the heap and reserves a range.
func (o *deviceObject) subAllocate(heap uint32, size uint64) (*memBlock, uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, b := range o.pools[heap] {
		if off, ok := b.alloc.Allocate(size); ok {
			return b, off, nil
		}
	}

	mem, err := o.dev.Allocate(int(heap), memBlockSize)
	if err != nil {
		Logger().Warn("block allocation failed", "heap", heap, "err", err)
		return nil, 0, Error(ErrorOutOfDeviceMemory)
	}
	b := &memBlock{mem: mem, alloc: NewRangeAllocator(memBlockSize, subAllocAlign)}
	o.pools[heap] = append(o.pools[heap], b)

	off, ok := b.alloc.Allocate(size)
	if !ok {
		return nil, 0, Error(ErrorOutOfDeviceMemory)
	}
	return b, off, nil
}

// Map exposes a host-visible range. Size may be WholeSize. Mapping a
// non-host-visible type or double-mapping fails with ErrorMemoryMapFailed.
func (m DeviceMemory) Map(offset, size uint64) ([]byte, error) {
	mo, err := resolve[*deviceMemoryObject](Handle(m), KindDeviceMemory)
	if err != nil {
		return nil, err
	}
	if _, err := deviceFor(mo.device); err != nil {
		return nil, err
	}
	if mo.props&MemoryPropertyHostVisible == 0 {
		return nil, Error(ErrorMemoryMapFailed)
	}
	if size == WholeSize {
		if offset > mo.size {
			return nil, Error(ErrorMemoryMapFailed)
		}
		size = mo.size - offset
	}
	// offset+size may wrap; compare without adding
	if offset > mo.size || size > mo.size-offset {
		return nil, Error(ErrorMemoryMapFailed)
	}

	mo.mu.Lock()
	defer mo.mu.Unlock()
	if mo.mapped {
		return nil, Error(ErrorMemoryMapFailed)
	}

	data, err := mo.mem.Map(mo.base+offset, size)
	if err != nil {
		Logger().Warn("map failed", "err", err)
		return nil, Error(ErrorMemoryMapFailed)
	}
	mo.mapped = true
	mo.mapOffset = offset
	return data, nil
}

// Unmap releases the active mapping. Unmapping an unmapped allocation is a
// caller error and reported as one.
func (m DeviceMemory) Unmap() error {
	mo, err := resolve[*deviceMemoryObject](Handle(m), KindDeviceMemory)
	if err != nil {
		return err
	}

	mo.mu.Lock()
	defer mo.mu.Unlock()
	if !mo.mapped {
		return Error(ErrorValidationFailed)
	}
	mo.mem.Unmap()
	mo.mapped = false
	return nil
}

// Flush makes host writes in the range visible to the device. A no-op on
// coherent types, required on cached-only types, exactly as the target API
// specifies.
func (m DeviceMemory) Flush(offset, size uint64) error {
	return m.coherencyOp(offset, size, true)
}

// Invalidate makes device writes in the range visible to the host.
func (m DeviceMemory) Invalidate(offset, size uint64) error {
	return m.coherencyOp(offset, size, false)
}

func (m DeviceMemory) coherencyOp(offset, size uint64, flush bool) error {
	mo, err := resolve[*deviceMemoryObject](Handle(m), KindDeviceMemory)
	if err != nil {
		return err
	}
	if mo.props&MemoryPropertyHostVisible == 0 {
		return Error(ErrorValidationFailed)
	}
	if size == WholeSize {
		if offset > mo.size {
			return Error(ErrorValidationFailed)
		}
		size = mo.size - offset
	}
	if offset > mo.size || size > mo.size-offset {
		return Error(ErrorValidationFailed)
	}
	if mo.props&MemoryPropertyHostCoherent != 0 {
		return nil
	}
	if flush {
		err = mo.mem.Flush(mo.base+offset, size)
	} else {
		err = mo.mem.Invalidate(mo.base+offset, size)
	}
	if err != nil {
		return Error(ErrorMemoryMapFailed)
	}
	return nil
}

// Free releases the allocation. Resources still bound keep their claims
// until destroyed, but binding after Free is impossible since the handle
// stops resolving immediately.
func (m DeviceMemory) Free() error {
	mo, err := resolve[*deviceMemoryObject](Handle(m), KindDeviceMemory)
	if err != nil {
		return err
	}
	reg := currentRegistry()
	if reg == nil {
		return Error(ErrorInitializationFailed)
	}

	reg.destroy(Handle(m), KindDeviceMemory, func() {
		mo.mu.Lock()
		if mo.mapped {
			mo.mem.Unmap()
			mo.mapped = false
		}
		mo.mu.Unlock()
		if mo.block != nil {
			mo.block.alloc.Free(mo.base, mo.size)
		} else {
			mo.mem.Free()
		}
	})
	return nil
}

// claim reserves [offset, offset+size) for a binding resource. Overlapping
// claims are admitted only when both sides requested aliasing.
func (mo *deviceMemoryObject) claim(offset, size uint64, owner Handle, alias bool) error {
	if offset > mo.size || size > mo.size-offset {
		return Error(ErrorValidationFailed)
	}
	mo.mu.Lock()
	defer mo.mu.Unlock()
	for _, c := range mo.claims {
		if offset < c.offset+c.size && c.offset < offset+size {
			if alias && c.alias {
				continue
			}
			return Error(ErrorValidationFailed)
		}
	}
	mo.claims = append(mo.claims, memClaim{offset: offset, size: size, owner: owner, alias: alias})
	return nil
}

func (mo *deviceMemoryObject) unclaim(owner Handle) {
	mo.mu.Lock()
	defer mo.mu.Unlock()
	for i, c := range mo.claims {
		if c.owner == owner {
			mo.claims = append(mo.claims[:i], mo.claims[i+1:]...)
			return
		}
	}
}
