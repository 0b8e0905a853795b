package portability

import "github.com/italicsjenga/portability/driver"

// Semaphores order work between submissions on the device timeline; they
// are never observable from the host.
type semaphoreObject struct {
	device Device
	s      driver.Semaphore
}

func (d Device) CreateSemaphore() (Semaphore, error) {
	obj, err := deviceFor(d)
	if err != nil {
		return 0, err
	}
	s, err := obj.dev.CreateSemaphore()
	if err != nil {
		obj.markLost(err)
		return 0, Error(ErrorDeviceLost)
	}
	return Semaphore(obj.reg.allocate(KindSemaphore, &semaphoreObject{device: d, s: s})), nil
}

func (s Semaphore) Destroy() error {
	so, err := resolve[*semaphoreObject](Handle(s), KindSemaphore)
	if err != nil {
		return err
	}
	reg := currentRegistry()
	if reg == nil {
		return Error(ErrorInitializationFailed)
	}
	reg.destroy(Handle(s), KindSemaphore, func() {
		so.s.Destroy()
	})
	return nil
}
