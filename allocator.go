package portability

import "fmt"

// RangeAllocator manages sub-ranges of a fixed span with a first-fit free
// list. The memory layer uses it to pack small device allocations into
// shared native blocks; offsets it returns are always multiples of Align.
type RangeAllocator struct {
	Size  uint64
	Align uint64

	// free spans, sorted by offset, coalesced on Free.
	spans []span
}

type span struct {
	off  uint64
	size uint64
}

func NewRangeAllocator(size, align uint64) *RangeAllocator {
	if align == 0 {
		align = 1
	}
	var a RangeAllocator
	a.Size = size
	a.Align = align
	a.spans = []span{{off: 0, size: size}}
	return &a
}

// Allocate reserves an aligned range of at least size bytes and returns its
// offset. ok is false when no free span fits.
func (a *RangeAllocator) Allocate(size uint64) (offset uint64, ok bool) {
	if size == 0 {
		return 0, false
	}
	size = alignUp(size, a.Align)

	for i, s := range a.spans {
		if s.size < size {
			continue
		}
		offset = s.off
		if s.size == size {
			a.spans = append(a.spans[:i], a.spans[i+1:]...)
		} else {
			a.spans[i].off += size
			a.spans[i].size -= size
		}
		return offset, true
	}
	return 0, false
}

// Free returns a range obtained from Allocate. Adjacent free spans merge so
// fragmentation stays bounded by the live allocation pattern.
func (a *RangeAllocator) Free(offset, size uint64) {
	size = alignUp(size, a.Align)

	i := 0
	for i < len(a.spans) && a.spans[i].off < offset {
		i++
	}
	a.spans = append(a.spans, span{})
	copy(a.spans[i+1:], a.spans[i:])
	a.spans[i] = span{off: offset, size: size}

	// merge with successor, then predecessor
	if i+1 < len(a.spans) && a.spans[i].off+a.spans[i].size == a.spans[i+1].off {
		a.spans[i].size += a.spans[i+1].size
		a.spans = append(a.spans[:i+1], a.spans[i+2:]...)
	}
	if i > 0 && a.spans[i-1].off+a.spans[i-1].size == a.spans[i].off {
		a.spans[i-1].size += a.spans[i].size
		a.spans = append(a.spans[:i], a.spans[i+1:]...)
	}
}

// FreeSpace reports the total unreserved bytes.
func (a *RangeAllocator) FreeSpace() uint64 {
	var total uint64
	for _, s := range a.spans {
		total += s.size
	}
	return total
}

func (a *RangeAllocator) String() string {
	return fmt.Sprintf("RangeAllocator{size %d, align %d, free %d in %d spans}",
		a.Size, a.Align, a.FreeSpace(), len(a.spans))
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
