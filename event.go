package portability

import "github.com/italicsjenga/portability/driver"

// Events are binary signals settable from both host and device. Backends
// without event support refuse creation up front.
type eventObject struct {
	device Device
	e      driver.Event
}

func (d Device) CreateEvent() (Event, error) {
	obj, err := deviceFor(d)
	if err != nil {
		return 0, err
	}
	if !obj.caps.Events {
		return 0, Error(ErrorFeatureNotPresent)
	}
	e, err := obj.dev.CreateEvent()
	if err != nil {
		obj.markLost(err)
		return 0, Error(ErrorDeviceLost)
	}
	return Event(obj.reg.allocate(KindEvent, &eventObject{device: d, e: e})), nil
}

// Set signals the event from the host.
func (e Event) Set() error {
	eo, err := resolve[*eventObject](Handle(e), KindEvent)
	if err != nil {
		return err
	}
	if _, err := deviceFor(eo.device); err != nil {
		return err
	}
	if err := eo.e.Set(); err != nil {
		return Error(ErrorUnknown)
	}
	return nil
}

// Reset unsignals the event from the host.
func (e Event) Reset() error {
	eo, err := resolve[*eventObject](Handle(e), KindEvent)
	if err != nil {
		return err
	}
	if _, err := deviceFor(eo.device); err != nil {
		return err
	}
	if err := eo.e.Reset(); err != nil {
		return Error(ErrorUnknown)
	}
	return nil
}

// Status reports EventSet or EventReset.
func (e Event) Status() (Result, error) {
	eo, err := resolve[*eventObject](Handle(e), KindEvent)
	if err != nil {
		return ErrorUnknown, err
	}
	if _, err := deviceFor(eo.device); err != nil {
		return AsResult(err), err
	}
	if eo.e.Signaled() {
		return EventSet, nil
	}
	return EventReset, nil
}

func (e Event) Destroy() error {
	eo, err := resolve[*eventObject](Handle(e), KindEvent)
	if err != nil {
		return err
	}
	reg := currentRegistry()
	if reg == nil {
		return Error(ErrorInitializationFailed)
	}
	reg.destroy(Handle(e), KindEvent, func() {
		eo.e.Destroy()
	})
	return nil
}
