// Package wgpu is a backend over the pure-Go gogpu/wgpu HAL. It carries
// compute and transfer work; resource memory is emulated host-side because
// the HAL owns placement itself.
//
// WGSL sources are accepted alongside SPIR-V: anything without the SPIR-V
// magic goes through the naga compiler first.
package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Registers the HAL's Vulkan implementation via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/italicsjenga/portability/driver"
)

// BackendName is the name this backend registers under.
const BackendName = "wgpu"

func init() {
	driver.Register(BackendName, New)
}

const (
	deviceHeapSize = 256 << 20
	hostHeapSize   = 256 << 20
)

// Driver owns one hal.Instance and the adapters exposed through it.
type Driver struct {
	instance hal.Instance
	adapters []driver.Adapter
}

func New() (driver.Driver, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("wgpu: no hal backend available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}

	exposed := instance.EnumerateAdapters(nil)
	if len(exposed) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: no adapters")
	}

	d := &Driver{instance: instance}
	for i := range exposed {
		d.adapters = append(d.adapters, &Adapter{exposed: exposed[i]})
	}
	return d, nil
}

func (d *Driver) Name() string { return BackendName }

func (d *Driver) Adapters() []driver.Adapter { return d.adapters }

func (d *Driver) Close() error {
	d.instance.Destroy()
	return nil
}

// Adapter wraps one exposed HAL adapter.
type Adapter struct {
	exposed hal.ExposedAdapter
}

func (a *Adapter) Info() driver.AdapterInfo {
	limits := gputypes.DefaultLimits()
	return driver.AdapterInfo{
		Name: a.exposed.Info.Name,
		Type: deviceType(a.exposed.Info.DeviceType),
		Limits: driver.Limits{
			MaxBufferSize:        limits.MaxBufferSize,
			MaxImageDimension2D:  8192,
			MaxBoundDescriptors:  4,
			MaxPushConstantsSize: 0, // the HAL has no push constant path
			NonCoherentAtomSize:  256,
		},
	}
}

// Heaps exposes two synthetic heaps. The host-visible one is reported
// non-coherent on purpose: flush and invalidate are the points where the
// emulated memory shadows are pushed to and pulled from the HAL buffers.
func (a *Adapter) Heaps() []driver.Heap {
	return []driver.Heap{
		{Size: deviceHeapSize, Flags: driver.MemDeviceLocal},
		{Size: hostHeapSize, Flags: driver.MemHostVisible | driver.MemHostCached},
	}
}

func (a *Adapter) Open() (driver.Device, error) {
	open, err := a.exposed.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return nil, fmt.Errorf("wgpu: open adapter: %w", err)
	}
	dev := &Device{handle: open.Device}
	dev.queue = &Queue{device: dev, handle: open.Queue}
	return dev, nil
}

func deviceType(t gputypes.DeviceType) driver.DeviceType {
	switch t {
	case gputypes.DeviceTypeIntegratedGPU:
		return driver.DeviceTypeIntegratedGPU
	case gputypes.DeviceTypeDiscreteGPU:
		return driver.DeviceTypeDiscreteGPU
	case gputypes.DeviceTypeVirtualGPU:
		return driver.DeviceTypeVirtualGPU
	case gputypes.DeviceTypeCPU:
		return driver.DeviceTypeCPU
	}
	return driver.DeviceTypeOther
}
