package portability

import (
	"bytes"
	"testing"
)

func TestMemoryMapRoundTrip(t *testing.T) {
	phys, dev := newTestDevice(t)

	typeIndex, err := phys.FindMemoryType(0x7, MemoryPropertyHostVisible|MemoryPropertyHostCoherent)
	if err != nil {
		t.Fatal(err)
	}
	mem, err := dev.AllocateMemory(&MemoryAllocateInfo{AllocationSize: 1024, MemoryTypeIndex: typeIndex})
	if err != nil {
		t.Fatal(err)
	}
	defer mem.Free()

	data, err := mem.Map(0, WholeSize)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 1024 {
		t.Fatalf("mapped %d bytes, want 1024", len(data))
	}
	for i := range data {
		data[i] = byte(i)
	}
	if err := mem.Unmap(); err != nil {
		t.Fatal(err)
	}

	// writes survive an unmap/remap cycle
	data, err = mem.Map(16, 16)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31}
	if !bytes.Equal(data, want) {
		t.Errorf("remapped range %v, want %v", data, want)
	}
	mem.Unmap()
}

func TestMemoryMapErrors(t *testing.T) {
	phys, dev := newTestDevice(t)

	hostType, _ := phys.FindMemoryType(0x7, MemoryPropertyHostVisible)
	mem, err := dev.AllocateMemory(&MemoryAllocateInfo{AllocationSize: 256, MemoryTypeIndex: hostType})
	if err != nil {
		t.Fatal(err)
	}
	defer mem.Free()

	if _, err := mem.Map(0, 512); AsResult(err) != ErrorMemoryMapFailed {
		t.Errorf("out-of-range map: %v", err)
	}
	if _, err := mem.Map(0, 256); err != nil {
		t.Fatal(err)
	}
	if _, err := mem.Map(0, 16); AsResult(err) != ErrorMemoryMapFailed {
		t.Errorf("double map: %v", err)
	}
	mem.Unmap()
	if err := mem.Unmap(); AsResult(err) != ErrorValidationFailed {
		t.Errorf("unmap of unmapped: %v", err)
	}

	// device-local memory has no host window
	devType, _ := phys.FindMemoryType(0x7, MemoryPropertyDeviceLocal)
	local, err := dev.AllocateMemory(&MemoryAllocateInfo{AllocationSize: 256, MemoryTypeIndex: devType})
	if err != nil {
		t.Fatal(err)
	}
	defer local.Free()
	if _, err := local.Map(0, WholeSize); AsResult(err) != ErrorMemoryMapFailed {
		t.Errorf("map of device-local: %v", err)
	}
}

func TestMemoryAllocateErrors(t *testing.T) {
	phys, dev := newTestDevice(t)

	if _, err := dev.AllocateMemory(nil); AsResult(err) != ErrorValidationFailed {
		t.Errorf("nil info: %v", err)
	}
	if _, err := dev.AllocateMemory(&MemoryAllocateInfo{AllocationSize: 0}); AsResult(err) != ErrorValidationFailed {
		t.Errorf("zero size: %v", err)
	}
	if _, err := dev.AllocateMemory(&MemoryAllocateInfo{AllocationSize: 64, MemoryTypeIndex: 99}); AsResult(err) != ErrorValidationFailed {
		t.Errorf("bad type index: %v", err)
	}

	props, _ := phys.MemoryProperties()
	huge := props.Heaps[0].Size + 1
	if _, err := dev.AllocateMemory(&MemoryAllocateInfo{AllocationSize: huge}); AsResult(err) != ErrorOutOfDeviceMemory {
		t.Errorf("over-heap allocation: %v", err)
	}
}

func TestFlushInvalidateCoherent(t *testing.T) {
	phys, dev := newTestDevice(t)

	coherent, _ := phys.FindMemoryType(0x7, MemoryPropertyHostVisible|MemoryPropertyHostCoherent)
	mem, err := dev.AllocateMemory(&MemoryAllocateInfo{AllocationSize: 256, MemoryTypeIndex: coherent})
	if err != nil {
		t.Fatal(err)
	}
	defer mem.Free()

	if err := mem.Flush(0, WholeSize); err != nil {
		t.Errorf("flush on coherent: %v", err)
	}
	if err := mem.Invalidate(0, WholeSize); err != nil {
		t.Errorf("invalidate on coherent: %v", err)
	}
	if err := mem.Flush(0, 512); AsResult(err) != ErrorValidationFailed {
		t.Errorf("out-of-range flush: %v", err)
	}

	local, _ := phys.FindMemoryType(0x7, MemoryPropertyDeviceLocal)
	dm, err := dev.AllocateMemory(&MemoryAllocateInfo{AllocationSize: 256, MemoryTypeIndex: local})
	if err != nil {
		t.Fatal(err)
	}
	defer dm.Free()
	if err := dm.Flush(0, WholeSize); AsResult(err) != ErrorValidationFailed {
		t.Errorf("flush on non-host-visible: %v", err)
	}
}

func TestBindOverlapRejected(t *testing.T) {
	phys, dev := newTestDevice(t)

	hostType, _ := phys.FindMemoryType(0x7, MemoryPropertyHostVisible)
	mem, err := dev.AllocateMemory(&MemoryAllocateInfo{AllocationSize: 4096, MemoryTypeIndex: hostType})
	if err != nil {
		t.Fatal(err)
	}
	defer mem.Free()

	a, err := dev.CreateBuffer(&BufferCreateInfo{Size: 256, Usage: BufferUsageTransferSrc})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Destroy()
	b, err := dev.CreateBuffer(&BufferCreateInfo{Size: 256, Usage: BufferUsageTransferSrc})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Destroy()

	if err := a.BindMemory(mem, 0); err != nil {
		t.Fatal(err)
	}
	if err := b.BindMemory(mem, 128); AsResult(err) != ErrorValidationFailed {
		t.Errorf("overlapping bind: %v", err)
	}
	if err := b.BindMemory(mem, 256); err != nil {
		t.Errorf("adjacent bind: %v", err)
	}
	if err := b.BindMemory(mem, 512); AsResult(err) != ErrorValidationFailed {
		t.Errorf("rebind: %v", err)
	}
}

func TestBindAlignmentChecked(t *testing.T) {
	phys, dev := newTestDevice(t)

	hostType, _ := phys.FindMemoryType(0x7, MemoryPropertyHostVisible)
	mem, err := dev.AllocateMemory(&MemoryAllocateInfo{AllocationSize: 1024, MemoryTypeIndex: hostType})
	if err != nil {
		t.Fatal(err)
	}
	defer mem.Free()

	buf, err := dev.CreateBuffer(&BufferCreateInfo{Size: 64, Usage: BufferUsageTransferSrc})
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Destroy()

	reqs, _ := buf.MemoryRequirements()
	if reqs.Alignment == 0 {
		t.Fatal("zero alignment reported")
	}
	if err := buf.BindMemory(mem, reqs.Alignment/2); AsResult(err) != ErrorValidationFailed {
		t.Errorf("misaligned bind: %v", err)
	}
}

func TestSubAllocationSharesBlocks(t *testing.T) {
	phys, dev := newTestDevice(t)

	hostType, _ := phys.FindMemoryType(0x7, MemoryPropertyHostVisible)

	// two small allocations land in the same native block but must behave
	// as independent allocations
	m1, err := dev.AllocateMemory(&MemoryAllocateInfo{AllocationSize: 4096, MemoryTypeIndex: hostType})
	if err != nil {
		t.Fatal(err)
	}
	m2, err := dev.AllocateMemory(&MemoryAllocateInfo{AllocationSize: 4096, MemoryTypeIndex: hostType})
	if err != nil {
		t.Fatal(err)
	}

	d1, err := m1.Map(0, WholeSize)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := m2.Map(0, WholeSize)
	if err != nil {
		t.Fatal(err)
	}
	for i := range d1 {
		d1[i] = 0xAA
	}
	for _, v := range d2 {
		if v == 0xAA {
			t.Fatal("allocations share bytes")
		}
	}
	m1.Unmap()
	m2.Unmap()
	m1.Free()
	m2.Free()
}

func TestMemoryRangeOverflowRejected(t *testing.T) {
	phys, dev := newTestDevice(t)

	buf, mem := newBoundBuffer(t, phys, dev, 256, BufferUsageTransferDst,
		MemoryPropertyHostVisible|MemoryPropertyHostCoherent)
	defer mem.Free()
	defer buf.Destroy()

	// a range whose end wraps past zero must fail, not panic
	if _, err := mem.Map(^uint64(0)-1, 4); AsResult(err) != ErrorMemoryMapFailed {
		t.Errorf("wrapping map: %v", err)
	}
	if err := mem.Flush(^uint64(0)-1, 4); AsResult(err) != ErrorValidationFailed {
		t.Errorf("wrapping flush: %v", err)
	}
	if err := mem.Invalidate(^uint64(0)-3, 8); AsResult(err) != ErrorValidationFailed {
		t.Errorf("wrapping invalidate: %v", err)
	}

	spare, err := dev.CreateBuffer(&BufferCreateInfo{Size: 64, Usage: BufferUsageTransferSrc})
	if err != nil {
		t.Fatal(err)
	}
	defer spare.Destroy()
	reqs, err := spare.MemoryRequirements()
	if err != nil {
		t.Fatal(err)
	}
	// aligned, but the claimed range wraps when the size is added
	off := ^uint64(0) - reqs.Alignment + 1
	if err := spare.BindMemory(mem, off); AsResult(err) != ErrorValidationFailed {
		t.Errorf("wrapping bind: %v", err)
	}
}

func TestAliasedBindingsShareRanges(t *testing.T) {
	phys, dev := newTestDevice(t)

	mk := func(flags BufferCreateFlags) Buffer {
		buf, err := dev.CreateBuffer(&BufferCreateInfo{Size: 256, Usage: BufferUsageStorage, Flags: flags})
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { buf.Destroy() })
		return buf
	}
	a := mk(BufferCreateAlias)
	b := mk(BufferCreateAlias)
	plain := mk(0)

	reqs, err := a.MemoryRequirements()
	if err != nil {
		t.Fatal(err)
	}
	typeIndex, err := phys.FindMemoryType(reqs.MemoryTypeBits, MemoryPropertyHostVisible)
	if err != nil {
		t.Fatal(err)
	}
	mem, err := dev.AllocateMemory(&MemoryAllocateInfo{
		AllocationSize:  1024,
		MemoryTypeIndex: typeIndex,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer mem.Free()

	if err := a.BindMemory(mem, 0); err != nil {
		t.Fatal(err)
	}
	// both resources opted in, so the overlapping claim is admitted
	if err := b.BindMemory(mem, 0); err != nil {
		t.Errorf("aliased overlap rejected: %v", err)
	}
	// a resource without the flag cannot join the aliased range
	if err := plain.BindMemory(mem, 0); AsResult(err) != ErrorValidationFailed {
		t.Errorf("non-aliased overlap admitted: %v", err)
	}
}
