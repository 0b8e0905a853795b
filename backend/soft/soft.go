// Package soft is the pure-Go reference backend. It emulates device memory
// in host RAM and executes the transfer command family synchronously at
// submit time, which makes it the hermetic vehicle for the layer's test
// suite and a last-resort fallback when no native API is present.
//
// Graphics execution is not implemented; the backend reports that through
// its capability set. Compute pipelines are accepted and dispatches are
// ignored.
package soft

import (
	"fmt"

	"github.com/italicsjenga/portability/driver"
)

// BackendName is the name this backend registers under.
const BackendName = "soft"

const heapSize = 256 << 20

func init() {
	driver.Register(BackendName, func() (driver.Driver, error) {
		return New(), nil
	})
}

// Driver implements driver.Driver with a single CPU adapter.
type Driver struct {
	adapter *Adapter
}

// New returns a fresh soft driver.
func New() *Driver {
	return &Driver{adapter: &Adapter{}}
}

func (d *Driver) Name() string { return BackendName }

func (d *Driver) Adapters() []driver.Adapter {
	return []driver.Adapter{d.adapter}
}

func (d *Driver) Close() error { return nil }

// Adapter is the single emulated physical device.
type Adapter struct{}

func (a *Adapter) Info() driver.AdapterInfo {
	return driver.AdapterInfo{
		Name:     "portability soft renderer",
		VendorID: 0x10005,
		DeviceID: 0x0001,
		Type:     driver.DeviceTypeCPU,
		Limits: driver.Limits{
			MaxBufferSize:        heapSize,
			MaxImageDimension2D:  16384,
			MaxBoundDescriptors:  8,
			MaxPushConstantsSize: 256,
			NonCoherentAtomSize:  64,
		},
	}
}

// Heaps exposes three emulated heaps: a device-local one, a coherent
// host-visible one, and a cached non-coherent one so the frontend's flush
// paths get exercised.
func (a *Adapter) Heaps() []driver.Heap {
	return []driver.Heap{
		{Size: heapSize, Flags: driver.MemDeviceLocal},
		{Size: heapSize, Flags: driver.MemHostVisible | driver.MemHostCoherent},
		{Size: heapSize, Flags: driver.MemHostVisible | driver.MemHostCached},
	}
}

func (a *Adapter) Open() (driver.Device, error) {
	dev := &Device{heaps: a.Heaps()}
	dev.queue = &Queue{device: dev}
	return dev, nil
}

var _ driver.Driver = (*Driver)(nil)

func errUnsupported(op string) error {
	return fmt.Errorf("soft: %s not supported", op)
}
