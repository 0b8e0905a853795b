package portability

import "time"

// ProcTable is the flat dispatch surface loaders consume: every entry
// point as a function value, resolved once. The table covers the base
// version of the target API; Version records what the caller asked for.
type ProcTable struct {
	Version Version

	CreateInstance           func(*InstanceCreateInfo) (Instance, error)
	DestroyInstance          func(Instance) error
	EnumeratePhysicalDevices func(Instance) ([]PhysicalDevice, error)

	GetPhysicalDeviceProperties       func(PhysicalDevice) (PhysicalDeviceProperties, error)
	GetPhysicalDeviceMemoryProperties func(PhysicalDevice) (MemoryProperties, error)
	GetPhysicalDeviceQueueFamilies    func(PhysicalDevice) ([]QueueFamilyProperties, error)

	CreateDevice   func(PhysicalDevice, *DeviceCreateInfo) (Device, error)
	DestroyDevice  func(Device) error
	GetDeviceQueue func(Device) (Queue, error)
	DeviceWaitIdle func(Device) error

	AllocateMemory func(Device, *MemoryAllocateInfo) (DeviceMemory, error)
	FreeMemory     func(DeviceMemory) error
	MapMemory      func(DeviceMemory, uint64, uint64) ([]byte, error)
	UnmapMemory    func(DeviceMemory) error

	CreateBuffer  func(Device, *BufferCreateInfo) (Buffer, error)
	DestroyBuffer func(Buffer) error

	QueueSubmit   func(Queue, []SubmitInfo, Fence) error
	QueueWaitIdle func(Queue) error

	CreateFence  func(Device, bool) (Fence, error)
	WaitForFence func(Fence, time.Duration) (Result, error)
	DestroyFence func(Fence) error
}

// NewProcTable resolves the dispatch table. Every entry is populated
// regardless of the requested version; loaders that need a newer surface
// than the layer exports check GetProcAddr for nil instead.
func NewProcTable(version Version) *ProcTable {
	var t ProcTable
	t.Version = version

	t.CreateInstance = CreateInstance
	t.DestroyInstance = Instance.Destroy
	t.EnumeratePhysicalDevices = Instance.EnumeratePhysicalDevices

	t.GetPhysicalDeviceProperties = PhysicalDevice.Properties
	t.GetPhysicalDeviceMemoryProperties = PhysicalDevice.MemoryProperties
	t.GetPhysicalDeviceQueueFamilies = PhysicalDevice.QueueFamilies

	t.CreateDevice = PhysicalDevice.CreateDevice
	t.DestroyDevice = Device.Destroy
	t.GetDeviceQueue = Device.GetQueue
	t.DeviceWaitIdle = Device.WaitIdle

	t.AllocateMemory = Device.AllocateMemory
	t.FreeMemory = DeviceMemory.Free
	t.MapMemory = DeviceMemory.Map
	t.UnmapMemory = DeviceMemory.Unmap

	t.CreateBuffer = Device.CreateBuffer
	t.DestroyBuffer = Buffer.Destroy

	t.QueueSubmit = Queue.Submit
	t.QueueWaitIdle = Queue.WaitIdle

	t.CreateFence = Device.CreateFence
	t.WaitForFence = Fence.Wait
	t.DestroyFence = Fence.Destroy

	return &t
}

// GetProcAddr looks an entry point up by name, nil when unknown. The
// names follow the target API's verbs so loaders can map one-to-one.
func (t *ProcTable) GetProcAddr(name string) any {
	switch name {
	case "CreateInstance":
		return t.CreateInstance
	case "DestroyInstance":
		return t.DestroyInstance
	case "EnumeratePhysicalDevices":
		return t.EnumeratePhysicalDevices
	case "GetPhysicalDeviceProperties":
		return t.GetPhysicalDeviceProperties
	case "GetPhysicalDeviceMemoryProperties":
		return t.GetPhysicalDeviceMemoryProperties
	case "GetPhysicalDeviceQueueFamilies":
		return t.GetPhysicalDeviceQueueFamilies
	case "CreateDevice":
		return t.CreateDevice
	case "DestroyDevice":
		return t.DestroyDevice
	case "GetDeviceQueue":
		return t.GetDeviceQueue
	case "DeviceWaitIdle":
		return t.DeviceWaitIdle
	case "AllocateMemory":
		return t.AllocateMemory
	case "FreeMemory":
		return t.FreeMemory
	case "MapMemory":
		return t.MapMemory
	case "UnmapMemory":
		return t.UnmapMemory
	case "CreateBuffer":
		return t.CreateBuffer
	case "DestroyBuffer":
		return t.DestroyBuffer
	case "QueueSubmit":
		return t.QueueSubmit
	case "QueueWaitIdle":
		return t.QueueWaitIdle
	case "CreateFence":
		return t.CreateFence
	case "WaitForFence":
		return t.WaitForFence
	case "DestroyFence":
		return t.DestroyFence
	}
	return nil
}
