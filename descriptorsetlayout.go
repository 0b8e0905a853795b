package portability

import (
	"fmt"
	"sort"
	"strings"
)

// DescriptorBinding describes one binding slot of a set layout.
type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStageFlags
}

// descriptorSetLayoutState is the shared immutable layout. Identical
// creation parameters share one state through the device's dedup cache;
// handles stay distinct so destruction rules are unchanged.
type descriptorSetLayoutState struct {
	bindings []DescriptorBinding // sorted by binding index
	key      string
}

type descriptorSetLayoutObject struct {
	device Device
	state  *descriptorSetLayoutState
}

// CreateDescriptorSetLayout creates (or dedups) an immutable set layout.
// Binding indices must be unique; counts default to one.
func (d Device) CreateDescriptorSetLayout(bindings []DescriptorBinding) (DescriptorSetLayout, error) {
	obj, err := deviceFor(d)
	if err != nil {
		return 0, err
	}

	sorted := append([]DescriptorBinding(nil), bindings...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Binding < sorted[j].Binding })
	for i := range sorted {
		if sorted[i].Count == 0 {
			sorted[i].Count = 1
		}
		if i > 0 && sorted[i].Binding == sorted[i-1].Binding {
			return 0, Error(ErrorValidationFailed)
		}
	}

	key := layoutKey(sorted)
	obj.mu.Lock()
	state, ok := obj.stateCache[key].(*descriptorSetLayoutState)
	if !ok {
		state = &descriptorSetLayoutState{bindings: sorted, key: key}
		obj.stateCache[key] = state
	}
	obj.mu.Unlock()

	lo := &descriptorSetLayoutObject{device: d, state: state}
	return DescriptorSetLayout(obj.reg.allocate(KindDescriptorSetLayout, lo)), nil
}

func layoutKey(bindings []DescriptorBinding) string {
	var sb strings.Builder
	sb.WriteString("dsl")
	for _, b := range bindings {
		fmt.Fprintf(&sb, "|%d:%d:%d:%d", b.Binding, b.Type, b.Count, b.Stages)
	}
	return sb.String()
}

// Bindings returns the layout's bindings in binding-index order. The
// round-trip is exact: what went in comes back out, normalized counts
// aside.
func (l DescriptorSetLayout) Bindings() ([]DescriptorBinding, error) {
	lo, err := resolve[*descriptorSetLayoutObject](Handle(l), KindDescriptorSetLayout)
	if err != nil {
		return nil, err
	}
	return append([]DescriptorBinding(nil), lo.state.bindings...), nil
}

// Destroy releases the handle. The shared state stays cached for the
// device's lifetime; sets created from the layout are unaffected.
func (l DescriptorSetLayout) Destroy() error {
	if _, err := resolve[*descriptorSetLayoutObject](Handle(l), KindDescriptorSetLayout); err != nil {
		return err
	}
	reg := currentRegistry()
	if reg == nil {
		return Error(ErrorInitializationFailed)
	}
	reg.destroy(Handle(l), KindDescriptorSetLayout, nil)
	return nil
}
