package portability

import (
	"sync"

	"github.com/italicsjenga/portability/driver"
)

// SubmitInfo is one batch of a queue submission.
type SubmitInfo struct {
	WaitSemaphores   []Semaphore
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
}

// submission tracks one driver-level submit until its fence signals.
// Completion is confirmed lazily: reap runs from Submit, WaitIdle and
// fence waits, never from a background goroutine.
type submission struct {
	fence    driver.Fence
	ownFence bool
	lists    []driver.CommandList
	cbs      []*commandBufferObject
	refs     []Handle
}

type queueObject struct {
	mu      sync.Mutex
	device  Device
	q       driver.Queue
	pending []*submission
}

// Submit validates every batch, encodes the recordings into backend
// command lists and hands them to the driver queue in order. Validation
// and encoding failures reject the whole call before anything is
// submitted; there is no partial submission.
func (q Queue) Submit(infos []SubmitInfo, fence Fence) error {
	qo, err := resolve[*queueObject](Handle(q), KindQueue)
	if err != nil {
		return err
	}
	dev, err := deviceFor(qo.device)
	if err != nil {
		return err
	}

	qo.reap(dev)

	// Phase one: resolve and validate everything before touching the
	// backend.
	type batch struct {
		cbs     []*commandBufferObject
		waits   []driver.Semaphore
		signals []driver.Semaphore
		refs    []Handle
	}
	batches := make([]batch, 0, len(infos))
	for _, info := range infos {
		var b batch
		for _, h := range info.CommandBuffers {
			cbo, err := resolve[*commandBufferObject](Handle(h), KindCommandBuffer)
			if err != nil {
				return err
			}
			cbo.mu.Lock()
			ok := cbo.state == cbExecutable
			cbo.mu.Unlock()
			if !ok {
				Logger().Warn("submit of non-executable buffer")
				return Error(ErrorValidationFailed)
			}
			b.cbs = append(b.cbs, cbo)
			b.refs = append(b.refs, Handle(h))
			cbo.mu.Lock()
			for r := range cbo.refs {
				b.refs = append(b.refs, r)
			}
			bufs := append([]*bufferObject(nil), cbo.buffers...)
			imgs := append([]*imageObject(nil), cbo.images...)
			cbo.mu.Unlock()
			// Pin the memory behind every referenced resource too, so a
			// Free while the submission is pending defers the backing
			// release instead of returning the range for reuse.
			for _, bo := range bufs {
				bo.mu.Lock()
				if bo.bound {
					b.refs = append(b.refs, Handle(bo.mem))
				}
				bo.mu.Unlock()
			}
			for _, io := range imgs {
				io.mu.Lock()
				if io.bound {
					b.refs = append(b.refs, Handle(io.mem))
				}
				io.mu.Unlock()
			}
		}
		for _, s := range info.WaitSemaphores {
			so, err := resolve[*semaphoreObject](Handle(s), KindSemaphore)
			if err != nil {
				return err
			}
			b.waits = append(b.waits, so.s)
			b.refs = append(b.refs, Handle(s))
		}
		for _, s := range info.SignalSemaphores {
			so, err := resolve[*semaphoreObject](Handle(s), KindSemaphore)
			if err != nil {
				return err
			}
			b.signals = append(b.signals, so.s)
			b.refs = append(b.refs, Handle(s))
		}
		batches = append(batches, b)
	}

	var dfence driver.Fence
	ownFence := false
	if Handle(fence) != NullHandle {
		fo, err := resolve[*fenceObject](Handle(fence), KindFence)
		if err != nil {
			return err
		}
		dfence = fo.f
	} else {
		f, err := dev.dev.CreateFence(false)
		if err != nil {
			dev.markLost(err)
			return Error(ErrorDeviceLost)
		}
		dfence = f
		ownFence = true
	}

	// Phase two: encode every batch before anything reaches the driver
	// queue. A replay failure in any batch rejects the whole call with no
	// partial submission; earlier batches' lists are destroyed, not run.
	sub := &submission{fence: dfence, ownFence: ownFence}
	allLists := make([][]driver.CommandList, len(batches))
	abort := func() {
		for _, ls := range allLists {
			for _, l := range ls {
				l.Destroy()
			}
		}
		if ownFence {
			dfence.Destroy()
		}
	}
	for bi, b := range batches {
		for _, cbo := range b.cbs {
			enc, err := dev.dev.NewEncoder()
			if err != nil {
				abort()
				dev.markLost(err)
				return Error(ErrorDeviceLost)
			}
			ctx := &replayContext{enc: enc, caps: dev.caps}
			if g, ok := enc.(driver.GraphicsEncoder); ok {
				ctx.genc = g
			}
			if err := enc.Begin(); err != nil {
				abort()
				dev.markLost(err)
				return Error(ErrorDeviceLost)
			}
			if err := cbo.replay(ctx); err != nil {
				abort()
				return err
			}
			list, err := enc.End()
			if err != nil {
				abort()
				dev.markLost(err)
				return Error(ErrorDeviceLost)
			}
			allLists[bi] = append(allLists[bi], list)
		}
	}

	// Phase three: hand the batches over in order. The fence attaches to
	// the last batch so it signals when everything submitted here has
	// completed.
	for bi, b := range batches {
		var f driver.Fence
		if bi == len(batches)-1 {
			f = dfence
		}
		if err := qo.q.Submit(allLists[bi], b.waits, b.signals, f); err != nil {
			dev.markLost(err)
			return Error(ErrorDeviceLost)
		}

		sub.lists = append(sub.lists, allLists[bi]...)
		sub.cbs = append(sub.cbs, b.cbs...)
		sub.refs = append(sub.refs, b.refs...)
	}
	if len(batches) == 0 {
		// Fence-only submission still signals after prior work.
		if err := qo.q.Submit(nil, nil, nil, dfence); err != nil {
			dev.markLost(err)
			return Error(ErrorDeviceLost)
		}
	}

	for _, r := range sub.refs {
		dev.reg.addRef(r)
	}
	for _, cbo := range sub.cbs {
		cbo.mu.Lock()
		cbo.state = cbPending
		cbo.mu.Unlock()
	}

	qo.mu.Lock()
	qo.pending = append(qo.pending, sub)
	qo.mu.Unlock()
	return nil
}

// WaitIdle drains the queue and confirms all completions.
func (q Queue) WaitIdle() error {
	qo, err := resolve[*queueObject](Handle(q), KindQueue)
	if err != nil {
		return err
	}
	dev, err := deviceFor(qo.device)
	if err != nil {
		return err
	}
	if err := qo.q.WaitIdle(); err != nil {
		dev.markLost(err)
		return Error(ErrorDeviceLost)
	}
	qo.reap(dev)
	return nil
}

// reap confirms completed submissions in order. A signaled fence retires
// the submission's command buffers, drops its registry references (running
// deferred destroys) and frees internal fences and lists. Submissions
// complete in submit order, so the scan stops at the first unsignaled
// fence.
func (qo *queueObject) reap(dev *deviceObject) {
	qo.mu.Lock()
	defer qo.mu.Unlock()

	done := 0
	for _, sub := range qo.pending {
		signaled, err := sub.fence.Signaled()
		if err != nil {
			dev.markLost(err)
			break
		}
		if !signaled {
			break
		}

		for _, cbo := range sub.cbs {
			cbo.retire()
		}
		for _, r := range sub.refs {
			dev.reg.releaseRef(r)
		}
		for _, l := range sub.lists {
			l.Destroy()
		}
		if sub.ownFence {
			sub.fence.Destroy()
		}
		done++
	}
	qo.pending = qo.pending[done:]
}
