package portability

import (
	"github.com/italicsjenga/portability/driver"
)

// PhysicalDeviceProperties is the read-only identity and limits snapshot of
// an adapter.
type PhysicalDeviceProperties struct {
	Name       string
	VendorID   uint32
	DeviceID   uint32
	DeviceType driver.DeviceType
	Limits     driver.Limits
}

// MemoryType is one entry of the emulated memory-type table.
type MemoryType struct {
	PropertyFlags MemoryPropertyFlags
	HeapIndex     uint32
}

// MemoryHeap is one native heap as reported through the table.
type MemoryHeap struct {
	Size        uint64
	DeviceLocal bool
}

// MemoryProperties is the full emulated memory model of an adapter.
type MemoryProperties struct {
	Types []MemoryType
	Heaps []MemoryHeap
}

// QueueFamilyProperties describes one queue family. Backends expose a
// single timeline per device, so the table always has exactly one family
// carrying every capability the device reports.
type QueueFamilyProperties struct {
	Flags      QueueFlags
	QueueCount uint32
}

type physicalDeviceObject struct {
	instance Instance
	adapter  driver.Adapter
	info     driver.AdapterInfo
	heaps    []driver.Heap

	// memTable is computed once at enumeration so repeated queries within
	// the adapter's lifetime return identical index-to-property mappings.
	memTable MemoryProperties
}

func newPhysicalDeviceObject(inst Instance, ad driver.Adapter) *physicalDeviceObject {
	pd := &physicalDeviceObject{
		instance: inst,
		adapter:  ad,
		info:     ad.Info(),
		heaps:    ad.Heaps(),
	}
	pd.memTable = buildMemoryTable(pd.heaps)
	return pd
}

// buildMemoryTable derives the emulated memory-type table from the native
// heaps. The derivation is a pure function of the heap list: heaps are
// walked in index order and each contributes exactly one type carrying the
// property combination it satisfies, so the table is deterministic and
// index-stable across queries.
func buildMemoryTable(heaps []driver.Heap) MemoryProperties {
	var props MemoryProperties
	for i, h := range heaps {
		props.Heaps = append(props.Heaps, MemoryHeap{
			Size:        h.Size,
			DeviceLocal: h.Flags&driver.MemDeviceLocal != 0,
		})
		props.Types = append(props.Types, MemoryType{
			PropertyFlags: memoryFlagsToProperties(h.Flags),
			HeapIndex:     uint32(i),
		})
	}
	return props
}

func memoryFlagsToProperties(f driver.MemoryFlags) MemoryPropertyFlags {
	var p MemoryPropertyFlags
	if f&driver.MemDeviceLocal != 0 {
		p |= MemoryPropertyDeviceLocal
	}
	if f&driver.MemHostVisible != 0 {
		p |= MemoryPropertyHostVisible
	}
	if f&driver.MemHostCoherent != 0 {
		p |= MemoryPropertyHostCoherent
	}
	if f&driver.MemHostCached != 0 {
		p |= MemoryPropertyHostCached
	}
	if f&driver.MemLazilyAllocated != 0 {
		p |= MemoryPropertyLazilyAllocated
	}
	return p
}

// Properties returns the adapter's identity and limits.
func (p PhysicalDevice) Properties() (PhysicalDeviceProperties, error) {
	pd, err := resolve[*physicalDeviceObject](Handle(p), KindPhysicalDevice)
	if err != nil {
		return PhysicalDeviceProperties{}, err
	}
	return PhysicalDeviceProperties{
		Name:       pd.info.Name,
		VendorID:   pd.info.VendorID,
		DeviceID:   pd.info.DeviceID,
		DeviceType: pd.info.Type,
		Limits:     pd.info.Limits,
	}, nil
}

// MemoryProperties returns the emulated memory-type table. The table is
// computed once per adapter; repeated queries are idempotent.
func (p PhysicalDevice) MemoryProperties() (MemoryProperties, error) {
	pd, err := resolve[*physicalDeviceObject](Handle(p), KindPhysicalDevice)
	if err != nil {
		return MemoryProperties{}, err
	}
	out := MemoryProperties{
		Types: append([]MemoryType(nil), pd.memTable.Types...),
		Heaps: append([]MemoryHeap(nil), pd.memTable.Heaps...),
	}
	return out, nil
}

// FindMemoryType returns the first table index whose bit is set in typeBits
// and whose properties contain all the requested flags, matching the search
// the target API documents for its memory-type query.
func (p PhysicalDevice) FindMemoryType(typeBits uint32, properties MemoryPropertyFlags) (uint32, error) {
	pd, err := resolve[*physicalDeviceObject](Handle(p), KindPhysicalDevice)
	if err != nil {
		return 0, err
	}
	for i, t := range pd.memTable.Types {
		if typeBits&(1<<uint(i)) != 0 && t.PropertyFlags&properties == properties {
			return uint32(i), nil
		}
	}
	return 0, Error(ErrorFeatureNotPresent)
}

// QueueFamilies reports the queue family table.
func (p PhysicalDevice) QueueFamilies() ([]QueueFamilyProperties, error) {
	pd, err := resolve[*physicalDeviceObject](Handle(p), KindPhysicalDevice)
	if err != nil {
		return nil, err
	}
	// The family table can be derived before the device is opened: the
	// adapter's device will report at least transfer; graphics/compute come
	// from the adapter type. The opened device's Caps remain authoritative
	// for per-call branching.
	flags := QueueTransfer
	if pd.info.Type != driver.DeviceTypeCPU {
		flags |= QueueGraphics | QueueCompute
	} else {
		flags |= QueueCompute
	}
	return []QueueFamilyProperties{{Flags: flags, QueueCount: 1}}, nil
}

// ExtensionProperties reports the device-level extensions the backend fully
// implements for this adapter. Nothing partially implemented ever appears
// here.
func (p PhysicalDevice) ExtensionProperties() ([]string, error) {
	pd, err := resolve[*physicalDeviceObject](Handle(p), KindPhysicalDevice)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), pd.info.Extensions...), nil
}
