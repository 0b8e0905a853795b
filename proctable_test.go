package portability

import "testing"

func TestProcTableComplete(t *testing.T) {
	pt := NewProcTable(Version{Major: 1})

	names := []string{
		"CreateInstance", "DestroyInstance", "EnumeratePhysicalDevices",
		"GetPhysicalDeviceProperties", "GetPhysicalDeviceMemoryProperties",
		"GetPhysicalDeviceQueueFamilies", "CreateDevice", "DestroyDevice",
		"GetDeviceQueue", "DeviceWaitIdle", "AllocateMemory", "FreeMemory",
		"MapMemory", "UnmapMemory", "CreateBuffer", "DestroyBuffer",
		"QueueSubmit", "QueueWaitIdle", "CreateFence", "WaitForFence",
		"DestroyFence",
	}
	for _, name := range names {
		if pt.GetProcAddr(name) == nil {
			t.Errorf("%s not resolved", name)
		}
	}
	if pt.GetProcAddr("NotAnEntryPoint") != nil {
		t.Error("unknown name resolved")
	}
}
