package portability

import (
	"os"

	"github.com/italicsjenga/portability/driver"
)

// BackendEnv is the environment variable that selects the backend when more
// than one is compiled in. An explicit InstanceCreateInfo.Backend overrides
// it.
const BackendEnv = "VKP_BACKEND"

// backendPriority is the selection order when nothing is configured.
// Native APIs win over the emulation backend.
var backendPriority = []string{"vulkan", "wgpu", "soft"}

// Version packs a target-API version the way the ABI does.
type Version struct {
	Major int
	Minor int
	Patch int
}

func (v Version) Uint32() uint32 {
	return uint32(v.Major)<<22 | uint32(v.Minor)<<12 | uint32(v.Patch)
}

// InstanceCreateInfo mirrors the target API's instance creation parameters.
type InstanceCreateInfo struct {
	ApplicationName string
	EngineName      string
	APIVersion      Version

	// Backend forces a specific backend by registry name. Empty consults
	// VKP_BACKEND, then compiled-in priority order.
	Backend string

	EnabledExtensions []string
}

type instanceObject struct {
	reg      *registry
	drv      driver.Driver
	physical []PhysicalDevice
	appName  string
}

// CreateInstance selects and opens a backend and enumerates its adapters.
// The process-wide registry comes alive with the first instance and is torn
// down with the last.
func CreateInstance(info *InstanceCreateInfo) (Instance, error) {
	if info == nil {
		info = &InstanceCreateInfo{}
	}

	for _, ext := range info.EnabledExtensions {
		if !instanceExtensionSupported(ext) {
			return 0, Error(ErrorExtensionNotPresent)
		}
	}

	name := info.Backend
	if name == "" {
		name = os.Getenv(BackendEnv)
	}

	var drv driver.Driver
	var err error
	if name != "" {
		drv, err = driver.Open(name)
		if err != nil {
			Logger().Warn("backend unavailable", "backend", name, "err", err)
			return 0, Error(ErrorInitializationFailed)
		}
	} else {
		for _, candidate := range backendPriority {
			if !driver.Registered(candidate) {
				continue
			}
			drv, err = driver.Open(candidate)
			if err == nil {
				break
			}
			Logger().Debug("backend probe failed", "backend", candidate, "err", err)
			drv = nil
		}
		if drv == nil {
			return 0, Error(ErrorInitializationFailed)
		}
	}

	reg := acquireRegistry()

	inst := &instanceObject{reg: reg, drv: drv, appName: info.ApplicationName}
	h := reg.allocate(KindInstance, inst)

	for _, ad := range drv.Adapters() {
		pd := newPhysicalDeviceObject(Instance(h), ad)
		inst.physical = append(inst.physical, PhysicalDevice(reg.allocate(KindPhysicalDevice, pd)))
	}

	Logger().Info("instance created", "backend", drv.Name(), "adapters", len(inst.physical))
	return Instance(h), nil
}

// BackendName reports which backend the instance is bound to.
func (i Instance) BackendName() (string, error) {
	inst, err := resolve[*instanceObject](Handle(i), KindInstance)
	if err != nil {
		return "", err
	}
	return inst.drv.Name(), nil
}

// EnumeratePhysicalDevices returns the adapters the bound backend exposes.
// The result is stable for the instance's lifetime.
func (i Instance) EnumeratePhysicalDevices() ([]PhysicalDevice, error) {
	inst, err := resolve[*instanceObject](Handle(i), KindInstance)
	if err != nil {
		return nil, err
	}
	out := make([]PhysicalDevice, len(inst.physical))
	copy(out, inst.physical)
	return out, nil
}

// Destroy tears the instance down. Physical device handles die with it; the
// caller is responsible for having destroyed descendant devices first, as
// in the target API.
func (i Instance) Destroy() error {
	inst, err := resolve[*instanceObject](Handle(i), KindInstance)
	if err != nil {
		return err
	}

	for _, pd := range inst.physical {
		inst.reg.destroy(Handle(pd), KindPhysicalDevice, nil)
	}
	inst.reg.destroy(Handle(i), KindInstance, nil)

	if err := inst.drv.Close(); err != nil {
		Logger().Warn("backend close failed", "backend", inst.drv.Name(), "err", err)
	}
	releaseRegistry()
	return nil
}

// instanceExtensionSupported reports whether an instance-level extension is
// implemented by the layer itself. Device-level extensions come from the
// backend via PhysicalDevice.ExtensionProperties.
func instanceExtensionSupported(name string) bool {
	for _, ext := range instanceExtensions {
		if ext == name {
			return true
		}
	}
	return false
}

var instanceExtensions = []string{
	"VK_KHR_get_physical_device_properties2",
}

// InstanceExtensions returns the instance-level extensions the layer
// implements, independent of backend.
func InstanceExtensions() []string {
	out := make([]string, len(instanceExtensions))
	copy(out, instanceExtensions)
	return out
}

// Backends returns the compiled-in backend names.
func Backends() []string {
	return driver.List()
}
