package portability

import (
	"sync"
	"sync/atomic"

	"github.com/italicsjenga/portability/driver"
)

// DeviceCreateInfo mirrors the target API's logical-device creation
// parameters. Queue construction is implicit: every backend exposes one
// execution timeline per device.
type DeviceCreateInfo struct {
	EnabledExtensions []string
}

type deviceObject struct {
	mu       sync.Mutex
	reg      *registry
	physical PhysicalDevice
	dev      driver.Device
	caps     driver.Caps
	limits   driver.Limits
	memProps MemoryProperties
	queue    Queue

	// lost is sticky: once a backend reports device loss every subsequent
	// call on this device and its descendants short-circuits.
	lost atomic.Bool

	// stateCache deduplicates immutable state objects (set layouts,
	// pipeline layouts, render passes, pipelines) by creation-parameter
	// digest. Values are the shared internal state structs; handles stay
	// distinct per creation.
	stateCache map[string]any

	// pools holds the shared native blocks small allocations are packed
	// into, keyed by heap index. Guarded by mu.
	pools map[uint32][]*memBlock
}

// CreateDevice opens the adapter and binds the resulting backend device to
// a fresh Device handle. Backend selection happened at instance creation;
// from here on every call against this device routes to the same driver
// without further dispatch decisions.
func (p PhysicalDevice) CreateDevice(info *DeviceCreateInfo) (Device, error) {
	pd, err := resolve[*physicalDeviceObject](Handle(p), KindPhysicalDevice)
	if err != nil {
		return 0, err
	}
	if info == nil {
		info = &DeviceCreateInfo{}
	}

	for _, ext := range info.EnabledExtensions {
		if !containsString(pd.info.Extensions, ext) {
			return 0, Error(ErrorExtensionNotPresent)
		}
	}

	dev, err := pd.adapter.Open()
	if err != nil {
		Logger().Warn("adapter open failed", "adapter", pd.info.Name, "err", err)
		return 0, Error(ErrorInitializationFailed)
	}

	reg := currentRegistry()
	if reg == nil {
		dev.Close()
		return 0, Error(ErrorInitializationFailed)
	}

	obj := &deviceObject{
		reg:        reg,
		physical:   p,
		dev:        dev,
		caps:       dev.Caps(),
		limits:     pd.info.Limits,
		memProps:   pd.memTable,
		stateCache: make(map[string]any),
		pools:      make(map[uint32][]*memBlock),
	}
	h := Device(reg.allocate(KindDevice, obj))

	q := &queueObject{device: h, q: dev.Queue()}
	obj.queue = Queue(reg.allocate(KindQueue, q))

	Logger().Info("device created", "adapter", pd.info.Name)
	return h, nil
}

// deviceFor resolves a device handle and enforces the sticky lost state.
func deviceFor(d Device) (*deviceObject, error) {
	obj, err := resolve[*deviceObject](Handle(d), KindDevice)
	if err != nil {
		return nil, err
	}
	if obj.lost.Load() {
		return nil, Error(ErrorDeviceLost)
	}
	return obj, nil
}

// markLost records device loss. All further calls on this device and its
// descendant handles return ErrorDeviceLost; in-flight work is abandoned,
// which is the only abandonment mechanism the target API has.
func (o *deviceObject) markLost(cause error) {
	if o.lost.CompareAndSwap(false, true) {
		Logger().Warn("device lost", "err", cause)
	}
}

// GetQueue returns the device's queue handle.
func (d Device) GetQueue() (Queue, error) {
	obj, err := deviceFor(d)
	if err != nil {
		return 0, err
	}
	return obj.queue, nil
}

// Caps reports the backend capability set so callers can branch before
// attempting operations the backend does not implement.
func (d Device) Caps() (driver.Caps, error) {
	obj, err := deviceFor(d)
	if err != nil {
		return driver.Caps{}, err
	}
	return obj.caps, nil
}

// WaitIdle blocks until all submitted work completes, then confirms the
// completions (retiring pending command buffers and deferred destroys).
func (d Device) WaitIdle() error {
	obj, err := deviceFor(d)
	if err != nil {
		return err
	}
	if err := obj.dev.WaitIdle(); err != nil {
		obj.markLost(err)
		return Error(ErrorDeviceLost)
	}
	if q, qerr := resolve[*queueObject](Handle(obj.queue), KindQueue); qerr == nil {
		q.reap(obj)
	}
	return nil
}

// Destroy releases the logical device. The caller must have destroyed the
// device's children and drained its queue, per the target API's ownership
// rules; the queue handle is reclaimed here since queues are never
// destroyed individually.
func (d Device) Destroy() error {
	obj, err := resolve[*deviceObject](Handle(d), KindDevice)
	if err != nil {
		return err
	}

	obj.reg.destroy(Handle(obj.queue), KindQueue, nil)
	obj.reg.destroy(Handle(d), KindDevice, func() {
		obj.mu.Lock()
		for _, blocks := range obj.pools {
			for _, b := range blocks {
				b.mem.Free()
			}
		}
		obj.pools = nil
		obj.mu.Unlock()
		if err := obj.dev.Close(); err != nil {
			Logger().Warn("device close failed", "err", err)
		}
	})
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
