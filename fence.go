package portability

import (
	"time"

	"github.com/italicsjenga/portability/driver"
)

type fenceObject struct {
	device Device
	f      driver.Fence
}

// CreateFence creates a fence, optionally already signaled.
func (d Device) CreateFence(signaled bool) (Fence, error) {
	obj, err := deviceFor(d)
	if err != nil {
		return 0, err
	}
	f, err := obj.dev.CreateFence(signaled)
	if err != nil {
		obj.markLost(err)
		return 0, Error(ErrorDeviceLost)
	}
	return Fence(obj.reg.allocate(KindFence, &fenceObject{device: d, f: f})), nil
}

// Status polls the fence without blocking. Success means signaled,
// NotReady means not yet.
func (f Fence) Status() (Result, error) {
	fo, err := resolve[*fenceObject](Handle(f), KindFence)
	if err != nil {
		return ErrorUnknown, err
	}
	dev, err := deviceFor(fo.device)
	if err != nil {
		return AsResult(err), err
	}

	signaled, serr := fo.f.Signaled()
	if serr != nil {
		dev.markLost(serr)
		return ErrorDeviceLost, Error(ErrorDeviceLost)
	}
	if signaled {
		fo.reapQueue(dev)
		return Success, nil
	}
	return NotReady, nil
}

// Wait blocks until the fence signals or the timeout elapses. A zero
// timeout polls; a negative timeout waits forever. Timeout returns the
// Timeout result with a nil error, matching the target API where elapsing
// is not a failure.
func (f Fence) Wait(timeout time.Duration) (Result, error) {
	fo, err := resolve[*fenceObject](Handle(f), KindFence)
	if err != nil {
		return ErrorUnknown, err
	}
	dev, err := deviceFor(fo.device)
	if err != nil {
		return AsResult(err), err
	}

	signaled, werr := fo.f.Wait(timeout)
	if werr != nil {
		dev.markLost(werr)
		return ErrorDeviceLost, Error(ErrorDeviceLost)
	}
	if !signaled {
		return Timeout, nil
	}
	fo.reapQueue(dev)
	return Success, nil
}

// Reset returns the fence to the unsignaled state. Resetting a fence that
// is attached to an in-flight submission is a caller error the backend may
// reject.
func (f Fence) Reset() error {
	fo, err := resolve[*fenceObject](Handle(f), KindFence)
	if err != nil {
		return err
	}
	if _, err := deviceFor(fo.device); err != nil {
		return err
	}
	if err := fo.f.Reset(); err != nil {
		return Error(ErrorValidationFailed)
	}
	return nil
}

// Destroy releases the fence. In-flight submissions keep the backend
// object alive through their own reference.
func (f Fence) Destroy() error {
	fo, err := resolve[*fenceObject](Handle(f), KindFence)
	if err != nil {
		return err
	}
	reg := currentRegistry()
	if reg == nil {
		return Error(ErrorInitializationFailed)
	}
	reg.destroy(Handle(f), KindFence, func() {
		fo.f.Destroy()
	})
	return nil
}

// reapQueue gives the queue a chance to confirm completions whenever a
// fence observation proves progress.
func (fo *fenceObject) reapQueue(dev *deviceObject) {
	if qo, err := resolve[*queueObject](Handle(dev.queue), KindQueue); err == nil {
		qo.reap(dev)
	}
}
