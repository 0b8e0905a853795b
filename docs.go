/*
Package portability implements a translation layer that presents a
Vulkan-shaped API on top of whatever graphics backend the host actually
has. Applications talk to opaque 64-bit handles and the familiar object
vocabulary (instances, devices, memory, buffers, command buffers,
pipelines); the layer validates, records and translates, and a backend
driver carries the work to the native API.

Architecture

The package splits into a frontend (this package) and backends (under
backend/). The frontend owns every piece of stateful bookkeeping the
target API implies:

	Handles		a generational registry; stale and destroyed handles
			are detected, never dereferenced
	Memory		an emulated memory-type table derived from the native
			heaps, plus sub-allocation of small allocations into
			shared blocks
	Command buffers	the Initial/Recording/Executable/Pending/Invalid
			state machine, with recorded commands kept as resolved
			backend objects
	Descriptors	set layouts, pools with budget accounting, and write
			tracking; contents are flattened for the backend only
			at bind time
	Render passes	a deterministic layout-transition schedule computed
			once at creation
	Barriers	target-API pipeline barriers decomposed into coarse
			per-resource state transitions

Backends implement the driver package's narrow interface. Three are
provided: soft, a synchronous pure-Go device useful for tests and
headless work; vulkan, over the vulkan-go binding; and wgpu, over the
pure-Go gogpu HAL. Importing backend/all compiles in all three.

Backend selection happens at instance creation: an explicit name in
InstanceCreateInfo wins, then the VKP_BACKEND environment variable, then
compiled-in priority order. Backends report capability flags and the
frontend refuses, at the API boundary, operations the selected backend
cannot carry.

A minimal compute round trip looks like the target API with Go error
handling:

	inst, _ := portability.CreateInstance(&portability.InstanceCreateInfo{})
	phys, _ := inst.EnumeratePhysicalDevices()
	dev, _ := phys[0].CreateDevice(&portability.DeviceCreateInfo{})
	queue, _ := dev.GetQueue()

	buf, _ := dev.CreateBuffer(&portability.BufferCreateInfo{Size: 256,
		Usage: portability.BufferUsageTransferSrc | portability.BufferUsageTransferDst})
	reqs, _ := buf.MemoryRequirements()
	typeIndex, _ := phys[0].FindMemoryType(reqs.MemoryTypeBits,
		portability.MemoryPropertyHostVisible)
	mem, _ := dev.AllocateMemory(&portability.MemoryAllocateInfo{
		AllocationSize: reqs.Size, MemoryTypeIndex: typeIndex})
	buf.BindMemory(mem, 0)

	data, _ := mem.Map(0, portability.WholeSize)
	copy(data, payload)
	mem.Unmap()

Errors

Every fallible operation returns an error; errors that correspond to a
target-API result code unwrap to a Result via AsResult. Defined misuse
(recording into the wrong state, overlapping memory binds, writing a
descriptor against the wrong type) fails with ErrorValidationFailed
instead of corrupting state. A lost device poisons itself: every
subsequent operation on it reports ErrorDeviceLost.
*/
package portability
