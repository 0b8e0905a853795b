package soft

import (
	"sync"
	"sync/atomic"
	"time"
)

// Fence is a host-waitable completion token. The signal channel is closed
// when the fence signals so any number of waiters wake at once; Reset swaps
// in a fresh channel.
type Fence struct {
	mu       sync.Mutex
	signaled bool
	ch       chan struct{}
}

func newFence(signaled bool) *Fence {
	f := &Fence{signaled: signaled, ch: make(chan struct{})}
	if signaled {
		close(f.ch)
	}
	return f
}

func (f *Fence) signal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.signaled {
		f.signaled = true
		close(f.ch)
	}
}

func (f *Fence) Signaled() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signaled, nil
}

// Wait blocks up to timeout. Zero polls, negative blocks indefinitely.
func (f *Fence) Wait(timeout time.Duration) (bool, error) {
	f.mu.Lock()
	signaled := f.signaled
	ch := f.ch
	f.mu.Unlock()

	if signaled {
		return true, nil
	}
	if timeout == 0 {
		return false, nil
	}
	if timeout < 0 {
		<-ch
		return true, nil
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return true, nil
	case <-t.C:
		return false, nil
	}
}

func (f *Fence) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signaled {
		f.signaled = false
		f.ch = make(chan struct{})
	}
	return nil
}

func (f *Fence) Destroy() {}

// Semaphore orders queue submissions. Execution is synchronous in this
// backend, so a semaphore only needs to remember whether its signal
// happened; each wait consumes one signal.
type Semaphore struct {
	signaled atomic.Bool
}

func (s *Semaphore) Destroy() {}

// Event is a binary signal settable from host or encoded commands.
type Event struct {
	state atomic.Bool
}

func (e *Event) Set() error {
	e.state.Store(true)
	return nil
}

func (e *Event) Reset() error {
	e.state.Store(false)
	return nil
}

func (e *Event) Signaled() bool {
	return e.state.Load()
}

func (e *Event) Destroy() {}
