// Package vulkan is the native Vulkan backend, implemented over the
// vulkan-go binding. It exposes the compute and transfer families; its
// adapters are the real physical devices of the host ICD.
//
// Importing the package registers it; opening it initializes the loader,
// so a host without a Vulkan ICD fails at Open and the frontend falls
// through to the next backend.
package vulkan

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/italicsjenga/portability/driver"
)

// BackendName is the name this backend registers under.
const BackendName = "vulkan"

func init() {
	driver.Register(BackendName, New)
}

// Driver owns one vk.Instance and the adapters enumerated from it.
type Driver struct {
	instance vk.Instance
	adapters []driver.Adapter
}

// New initializes the loader and creates the instance.
func New() (driver.Driver, error) {
	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return nil, fmt.Errorf("vulkan: loader: %w", err)
	}
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("vulkan: init: %w", err)
	}

	appInfo := vk.ApplicationInfo{
		SType:            vk.StructureTypeApplicationInfo,
		ApiVersion:       vk.MakeVersion(1, 1, 0),
		PApplicationName: safeString("portability"),
		PEngineName:      safeString("portability"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &appInfo,
	}

	d := &Driver{}
	if err := vk.Error(vk.CreateInstance(&createInfo, nil, &d.instance)); err != nil {
		return nil, fmt.Errorf("vulkan: create instance: %w", err)
	}
	vk.InitInstance(d.instance)

	if err := d.enumerate(); err != nil {
		vk.DestroyInstance(d.instance, nil)
		return nil, err
	}
	return d, nil
}

func (d *Driver) Name() string { return BackendName }

func (d *Driver) Adapters() []driver.Adapter { return d.adapters }

func (d *Driver) Close() error {
	vk.DestroyInstance(d.instance, nil)
	return nil
}

func (d *Driver) enumerate() error {
	var count uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(d.instance, &count, nil)); err != nil {
		return fmt.Errorf("vulkan: enumerate: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("vulkan: no physical devices")
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := vk.Error(vk.EnumeratePhysicalDevices(d.instance, &count, devices)); err != nil {
		return fmt.Errorf("vulkan: enumerate: %w", err)
	}

	for _, pd := range devices {
		a := &Adapter{physical: pd}
		vk.GetPhysicalDeviceProperties(pd, &a.props)
		a.props.Deref()
		vk.GetPhysicalDeviceMemoryProperties(pd, &a.memProps)
		a.memProps.Deref()
		d.adapters = append(d.adapters, a)
	}
	return nil
}

// Adapter wraps one vk.PhysicalDevice.
type Adapter struct {
	physical vk.PhysicalDevice
	props    vk.PhysicalDeviceProperties
	memProps vk.PhysicalDeviceMemoryProperties
}

func (a *Adapter) Info() driver.AdapterInfo {
	limits := a.props.Limits
	limits.Deref()

	return driver.AdapterInfo{
		Name:     vk.ToString(a.props.DeviceName[:]),
		VendorID: a.props.VendorID,
		DeviceID: a.props.DeviceID,
		Type:     deviceType(a.props.DeviceType),
		Limits: driver.Limits{
			MaxBufferSize:        0, // Vulkan has no global buffer size cap
			MaxImageDimension2D:  limits.MaxImageDimension2D,
			MaxBoundDescriptors:  limits.MaxBoundDescriptorSets,
			MaxPushConstantsSize: limits.MaxPushConstantsSize,
			NonCoherentAtomSize:  uint64(limits.NonCoherentAtomSize),
		},
	}
}

// Heaps reports one entry per native memory type: the frontend's emulated
// table is type-granular, so the heap index it allocates with is the
// Vulkan memory type index.
func (a *Adapter) Heaps() []driver.Heap {
	var out []driver.Heap
	n := a.memProps.MemoryTypeCount
	if n > 32 {
		n = 32
	}
	for i := uint32(0); i < n; i++ {
		mt := a.memProps.MemoryTypes[i]
		mt.Deref()
		heap := a.memProps.MemoryHeaps[mt.HeapIndex]
		heap.Deref()
		out = append(out, driver.Heap{
			Size:  uint64(heap.Size),
			Flags: memoryFlags(vk.MemoryPropertyFlagBits(mt.PropertyFlags)),
		})
	}
	return out
}

func (a *Adapter) Open() (driver.Device, error) {
	family, err := a.findQueueFamily()
	if err != nil {
		return nil, err
	}

	queueCreateInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: family,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}
	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos:    []vk.DeviceQueueCreateInfo{queueCreateInfo},
	}

	var ldevice vk.Device
	if err := vk.Error(vk.CreateDevice(a.physical, &deviceCreateInfo, nil, &ldevice)); err != nil {
		return nil, fmt.Errorf("vulkan: create device: %w", err)
	}

	dev := &Device{handle: ldevice, family: family}

	var vkq vk.Queue
	vk.GetDeviceQueue(ldevice, family, 0, &vkq)
	dev.queue = &Queue{device: dev, handle: vkq}

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: family,
	}
	if err := vk.Error(vk.CreateCommandPool(ldevice, &poolCreateInfo, nil, &dev.cmdPool)); err != nil {
		vk.DestroyDevice(ldevice, nil)
		return nil, fmt.Errorf("vulkan: create command pool: %w", err)
	}

	descPoolCreateInfo := vk.DescriptorPoolCreateInfo{
		SType:   vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:   vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets: 1024,
		PoolSizeCount: 4,
		PPoolSizes: []vk.DescriptorPoolSize{
			{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1024},
			{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: 1024},
			{Type: vk.DescriptorTypeSampledImage, DescriptorCount: 512},
			{Type: vk.DescriptorTypeStorageImage, DescriptorCount: 512},
		},
	}
	if err := vk.Error(vk.CreateDescriptorPool(ldevice, &descPoolCreateInfo, nil, &dev.descPool)); err != nil {
		vk.DestroyCommandPool(ldevice, dev.cmdPool, nil)
		vk.DestroyDevice(ldevice, nil)
		return nil, fmt.Errorf("vulkan: create descriptor pool: %w", err)
	}

	return dev, nil
}

func (a *Adapter) findQueueFamily() (uint32, error) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(a.physical, &count, nil)
	if count == 0 {
		return 0, fmt.Errorf("vulkan: no queue families")
	}
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(a.physical, &count, families)

	want := vk.QueueFlags(vk.QueueComputeBit | vk.QueueTransferBit)
	for i := range families {
		families[i].Deref()
		if families[i].QueueFlags&want == want {
			return uint32(i), nil
		}
	}
	return 0, fmt.Errorf("vulkan: no compute-capable queue family")
}

func deviceType(t vk.PhysicalDeviceType) driver.DeviceType {
	switch t {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return driver.DeviceTypeIntegratedGPU
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return driver.DeviceTypeDiscreteGPU
	case vk.PhysicalDeviceTypeVirtualGpu:
		return driver.DeviceTypeVirtualGPU
	case vk.PhysicalDeviceTypeCpu:
		return driver.DeviceTypeCPU
	}
	return driver.DeviceTypeOther
}

func memoryFlags(p vk.MemoryPropertyFlagBits) driver.MemoryFlags {
	var f driver.MemoryFlags
	if p&vk.MemoryPropertyDeviceLocalBit != 0 {
		f |= driver.MemDeviceLocal
	}
	if p&vk.MemoryPropertyHostVisibleBit != 0 {
		f |= driver.MemHostVisible
	}
	if p&vk.MemoryPropertyHostCoherentBit != 0 {
		f |= driver.MemHostCoherent
	}
	if p&vk.MemoryPropertyHostCachedBit != 0 {
		f |= driver.MemHostCached
	}
	if p&vk.MemoryPropertyLazilyAllocatedBit != 0 {
		f |= driver.MemLazilyAllocated
	}
	return f
}

var end = "\x00"

func safeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != '\x00' {
		return s + end
	}
	return s
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = safeString(list[i])
	}
	return out
}
