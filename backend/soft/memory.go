package soft

import (
	"fmt"
	"sync/atomic"
)

// Memory is an emulated device allocation backed by host RAM. Host-visible
// mapping hands out a subslice of the backing store, so mapped writes are
// trivially coherent; Flush and Invalidate exist to satisfy the contract on
// the emulated non-coherent heap and are no-ops.
type Memory struct {
	data     []byte
	mapCount int32
}

func (m *Memory) Map(offset, size uint64) ([]byte, error) {
	if offset+size > uint64(len(m.data)) {
		return nil, fmt.Errorf("soft: map range exceeds allocation")
	}
	atomic.AddInt32(&m.mapCount, 1)
	return m.data[offset : offset+size], nil
}

func (m *Memory) Unmap() {
	atomic.AddInt32(&m.mapCount, -1)
}

func (m *Memory) Flush(offset, size uint64) error {
	if offset+size > uint64(len(m.data)) {
		return fmt.Errorf("soft: flush range exceeds allocation")
	}
	return nil
}

func (m *Memory) Invalidate(offset, size uint64) error {
	if offset+size > uint64(len(m.data)) {
		return fmt.Errorf("soft: invalidate range exceeds allocation")
	}
	return nil
}

func (m *Memory) Free() {
	m.data = nil
}
