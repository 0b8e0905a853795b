package portability

import "testing"

func TestMemoryTableDerivation(t *testing.T) {
	phys, _ := newTestDevice(t)

	props, err := phys.MemoryProperties()
	if err != nil {
		t.Fatal(err)
	}
	if len(props.Types) != len(props.Heaps) {
		t.Fatalf("%d types for %d heaps, want one per heap", len(props.Types), len(props.Heaps))
	}
	for i, ty := range props.Types {
		if ty.HeapIndex != uint32(i) {
			t.Errorf("type %d points at heap %d", i, ty.HeapIndex)
		}
	}

	// the soft adapter orders its heaps device-local, coherent, cached
	if len(props.Types) != 3 {
		t.Fatalf("soft adapter exposes %d types, want 3", len(props.Types))
	}
	if props.Types[0].PropertyFlags != MemoryPropertyDeviceLocal {
		t.Errorf("type 0 flags %v", props.Types[0].PropertyFlags)
	}
	if props.Types[1].PropertyFlags != MemoryPropertyHostVisible|MemoryPropertyHostCoherent {
		t.Errorf("type 1 flags %v", props.Types[1].PropertyFlags)
	}
	if props.Types[2].PropertyFlags != MemoryPropertyHostVisible|MemoryPropertyHostCached {
		t.Errorf("type 2 flags %v", props.Types[2].PropertyFlags)
	}
	if !props.Heaps[0].DeviceLocal {
		t.Error("heap 0 should be device local")
	}

	// repeated queries return the identical table
	again, err := phys.MemoryProperties()
	if err != nil {
		t.Fatal(err)
	}
	for i := range props.Types {
		if again.Types[i] != props.Types[i] {
			t.Errorf("type %d changed between queries", i)
		}
	}
}

func TestFindMemoryType(t *testing.T) {
	phys, _ := newTestDevice(t)

	idx, err := phys.FindMemoryType(0x7, MemoryPropertyHostVisible)
	if err != nil || idx != 1 {
		t.Errorf("host-visible search got (%d, %v), want index 1", idx, err)
	}

	idx, err = phys.FindMemoryType(0x7, MemoryPropertyHostVisible|MemoryPropertyHostCached)
	if err != nil || idx != 2 {
		t.Errorf("cached search got (%d, %v), want index 2", idx, err)
	}

	// the type bit mask excludes otherwise matching types
	idx, err = phys.FindMemoryType(0x1, MemoryPropertyDeviceLocal)
	if err != nil || idx != 0 {
		t.Errorf("device-local search got (%d, %v), want index 0", idx, err)
	}
	if _, err = phys.FindMemoryType(0x1, MemoryPropertyHostVisible); AsResult(err) != ErrorFeatureNotPresent {
		t.Errorf("impossible search: %v", err)
	}
}

func TestPhysicalDeviceProperties(t *testing.T) {
	phys, _ := newTestDevice(t)

	p, err := phys.Properties()
	if err != nil {
		t.Fatal(err)
	}
	if p.Name == "" {
		t.Error("empty adapter name")
	}
	if p.Limits.MaxBufferSize == 0 {
		t.Error("no buffer size limit reported")
	}

	fams, err := phys.QueueFamilies()
	if err != nil {
		t.Fatal(err)
	}
	if len(fams) != 1 || fams[0].QueueCount != 1 {
		t.Errorf("queue family table %+v, want one family with one queue", fams)
	}
	if fams[0].Flags&QueueCompute == 0 {
		t.Error("family missing compute")
	}
}
