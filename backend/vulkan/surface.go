package vulkan

import (
	"fmt"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"
)

// Windowing bridges glfw windows to native surfaces. It is optional:
// headless compute never touches it, and the loader hookup below replaces
// the default one only when presentation is wanted.

// InitWindowing initializes glfw and routes instance proc resolution
// through it, which is required before New when surfaces will be created.
func InitWindowing() error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("vulkan: glfw init: %w", err)
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return fmt.Errorf("vulkan: loader not found by glfw")
	}
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	return nil
}

// TerminateWindowing shuts glfw down again.
func TerminateWindowing() {
	glfw.Terminate()
}

// RequiredInstanceExtensions reports the instance extensions glfw needs
// for surface creation on this platform.
func RequiredInstanceExtensions() []string {
	return glfw.GetRequiredInstanceExtensions()
}

// Surface is a presentable window surface tied to the driver's instance.
type Surface struct {
	driver *Driver
	handle vk.Surface
}

// CreateSurface makes a surface for the window. The window must have been
// created with glfw.ClientAPI set to glfw.NoAPI.
func (d *Driver) CreateSurface(window *glfw.Window) (*Surface, error) {
	ptr, err := window.CreateWindowSurface(d.instance, nil)
	if err != nil {
		return nil, fmt.Errorf("vulkan: create surface: %w", err)
	}
	return &Surface{driver: d, handle: vk.SurfaceFromPointer(ptr)}, nil
}

// SupportsPresent reports whether the adapter's chosen queue family can
// present to the surface.
func (s *Surface) SupportsPresent(a *Adapter) (bool, error) {
	family, err := a.findQueueFamily()
	if err != nil {
		return false, err
	}
	var supported vk.Bool32
	err = vk.Error(vk.GetPhysicalDeviceSurfaceSupport(a.physical, family, s.handle, &supported))
	if err != nil {
		return false, fmt.Errorf("vulkan: surface support query: %w", err)
	}
	return supported == vk.True, nil
}

func (s *Surface) Destroy() {
	vk.DestroySurface(s.driver.instance, s.handle, nil)
}
