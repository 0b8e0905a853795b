package soft

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/italicsjenga/portability/driver"
)

// Encoder records commands as closures over the target resources and
// executes them when the finished list is submitted. Transfers operate on
// the byte ranges of the bound emulated memory; barriers and state
// transitions have nothing to do on a host-coherent CPU backend and record
// nothing.
type Encoder struct {
	recording bool
	ops       []func()
}

func (e *Encoder) Begin() error {
	if e.recording {
		return fmt.Errorf("soft: encoder already recording")
	}
	e.recording = true
	e.ops = e.ops[:0]
	return nil
}

func (e *Encoder) CopyBuffer(src, dst driver.Buffer, regions []driver.BufferCopy) {
	s := src.(*Buffer)
	d := dst.(*Buffer)
	rs := append([]driver.BufferCopy(nil), regions...)
	e.ops = append(e.ops, func() {
		sb := s.bytes()
		db := d.bytes()
		if sb == nil || db == nil {
			return
		}
		for _, r := range rs {
			copy(db[r.DstOffset:r.DstOffset+r.Size], sb[r.SrcOffset:r.SrcOffset+r.Size])
		}
	})
}

func (e *Encoder) CopyBufferToImage(src driver.Buffer, dst driver.Image, regions []driver.BufferImageCopy) {
	s := src.(*Buffer)
	d := dst.(*Image)
	rs := append([]driver.BufferImageCopy(nil), regions...)
	e.ops = append(e.ops, func() {
		sb := s.bytes()
		db := d.bytes()
		if sb == nil || db == nil {
			return
		}
		for _, r := range rs {
			n := uint64(r.Width) * uint64(r.Height) * uint64(max32(r.Depth, 1)) * 4
			if n > uint64(len(db)) {
				n = uint64(len(db))
			}
			copy(db[:n], sb[r.BufferOffset:r.BufferOffset+n])
		}
	})
}

func (e *Encoder) CopyImageToBuffer(src driver.Image, dst driver.Buffer, regions []driver.BufferImageCopy) {
	s := src.(*Image)
	d := dst.(*Buffer)
	rs := append([]driver.BufferImageCopy(nil), regions...)
	e.ops = append(e.ops, func() {
		sb := s.bytes()
		db := d.bytes()
		if sb == nil || db == nil {
			return
		}
		for _, r := range rs {
			n := uint64(r.Width) * uint64(r.Height) * uint64(max32(r.Depth, 1)) * 4
			if n > uint64(len(sb)) {
				n = uint64(len(sb))
			}
			copy(db[r.BufferOffset:r.BufferOffset+n], sb[:n])
		}
	})
}

func (e *Encoder) FillBuffer(dst driver.Buffer, offset, size uint64, value uint32) {
	d := dst.(*Buffer)
	e.ops = append(e.ops, func() {
		db := d.bytes()
		if db == nil {
			return
		}
		var word [4]byte
		binary.LittleEndian.PutUint32(word[:], value)
		for i := offset; i+4 <= offset+size && i+4 <= uint64(len(db)); i += 4 {
			copy(db[i:i+4], word[:])
		}
	})
}

func (e *Encoder) UpdateBuffer(dst driver.Buffer, offset uint64, data []byte) {
	d := dst.(*Buffer)
	dup := append([]byte(nil), data...)
	e.ops = append(e.ops, func() {
		db := d.bytes()
		if db == nil {
			return
		}
		copy(db[offset:], dup)
	})
}

// Transition is a no-op: emulated memory has a single coherent state.
func (e *Encoder) Transition(transitions []driver.Transition) {}

func (e *Encoder) SetEvent(ev driver.Event) {
	v := ev.(*Event)
	e.ops = append(e.ops, func() { v.state.Store(true) })
}

func (e *Encoder) ResetEvent(ev driver.Event) {
	v := ev.(*Event)
	e.ops = append(e.ops, func() { v.state.Store(false) })
}

// WaitEvents polls until every event is set. Execution is synchronous, so a
// host thread is expected to set the event; the poll interval keeps the
// busy loop cheap.
func (e *Encoder) WaitEvents(events []driver.Event) {
	evs := make([]*Event, len(events))
	for i, ev := range events {
		evs[i] = ev.(*Event)
	}
	e.ops = append(e.ops, func() {
		for _, ev := range evs {
			for !ev.state.Load() {
				time.Sleep(50 * time.Microsecond)
			}
		}
	})
}

func (e *Encoder) BindPipeline(p driver.Pipeline) {}

func (e *Encoder) BindDescriptors(set uint32, bindings []driver.Binding) {}

// Dispatch is accepted and ignored; compute execution is not emulated.
func (e *Encoder) Dispatch(x, y, z uint32) {}

func (e *Encoder) End() (driver.CommandList, error) {
	if !e.recording {
		return nil, fmt.Errorf("soft: encoder not recording")
	}
	e.recording = false
	list := &CommandList{ops: e.ops}
	e.ops = nil
	return list, nil
}

// CommandList is a finished encoding: the ordered closures to run.
type CommandList struct {
	ops []func()
}

func (c *CommandList) Destroy() { c.ops = nil }

// Queue executes submissions synchronously, in submission order, then
// signals the fence. That satisfies the frontend's contract (Submit returns
// once the backend accepted the work) with completion following immediately.
type Queue struct {
	device *Device
}

func (q *Queue) Submit(lists []driver.CommandList, waits, signals []driver.Semaphore, fence driver.Fence) error {
	for _, w := range waits {
		if s, ok := w.(*Semaphore); ok {
			// Consume the signal from the prior submission. Waiting on a
			// never-signaled semaphore is a caller-contract violation; the
			// synchronous queue has nothing to block on.
			s.signaled.Store(false)
		}
	}

	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return fmt.Errorf("soft: foreign command list")
		}
		for _, op := range cl.ops {
			op()
		}
	}

	for _, sig := range signals {
		if s, ok := sig.(*Semaphore); ok {
			s.signaled.Store(true)
		}
	}
	if fence != nil {
		if f, ok := fence.(*Fence); ok {
			f.signal()
		}
	}
	return nil
}

func (q *Queue) WaitIdle() error { return nil }

func max32(v, floor uint32) uint32 {
	if v < floor {
		return floor
	}
	return v
}
