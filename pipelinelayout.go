package portability

import (
	"fmt"
	"strings"
)

// PushConstantRange declares a push constant window.
type PushConstantRange struct {
	Stages ShaderStageFlags
	Offset uint32
	Size   uint32
}

// PipelineLayoutCreateInfo mirrors the target API.
type PipelineLayoutCreateInfo struct {
	SetLayouts         []DescriptorSetLayout
	PushConstantRanges []PushConstantRange
}

type pipelineLayoutState struct {
	setLayouts []*descriptorSetLayoutState
	pushRanges []PushConstantRange
	pushSize   uint32
	key        string
}

type pipelineLayoutObject struct {
	device Device
	state  *pipelineLayoutState
}

// CreatePipelineLayout creates (or dedups) a pipeline layout. Push
// constant windows are checked against the adapter limit.
func (d Device) CreatePipelineLayout(info *PipelineLayoutCreateInfo) (PipelineLayout, error) {
	obj, err := deviceFor(d)
	if err != nil {
		return 0, err
	}
	if info == nil {
		info = &PipelineLayoutCreateInfo{}
	}

	var states []*descriptorSetLayoutState
	for _, l := range info.SetLayouts {
		lo, err := resolve[*descriptorSetLayoutObject](Handle(l), KindDescriptorSetLayout)
		if err != nil {
			return 0, err
		}
		states = append(states, lo.state)
	}

	var pushSize uint32
	for _, r := range info.PushConstantRanges {
		if end := r.Offset + r.Size; end > pushSize {
			pushSize = end
		}
	}
	if obj.limits.MaxPushConstantsSize != 0 && pushSize > obj.limits.MaxPushConstantsSize {
		return 0, Error(ErrorValidationFailed)
	}

	var sb strings.Builder
	sb.WriteString("pl")
	for _, st := range states {
		sb.WriteByte('|')
		sb.WriteString(st.key)
	}
	for _, r := range info.PushConstantRanges {
		fmt.Fprintf(&sb, "|p%d:%d:%d", r.Stages, r.Offset, r.Size)
	}
	key := sb.String()

	obj.mu.Lock()
	state, ok := obj.stateCache[key].(*pipelineLayoutState)
	if !ok {
		state = &pipelineLayoutState{
			setLayouts: states,
			pushRanges: append([]PushConstantRange(nil), info.PushConstantRanges...),
			pushSize:   pushSize,
			key:        key,
		}
		obj.stateCache[key] = state
	}
	obj.mu.Unlock()

	lo := &pipelineLayoutObject{device: d, state: state}
	return PipelineLayout(obj.reg.allocate(KindPipelineLayout, lo)), nil
}

// Destroy releases the handle; the shared state stays cached.
func (l PipelineLayout) Destroy() error {
	if _, err := resolve[*pipelineLayoutObject](Handle(l), KindPipelineLayout); err != nil {
		return err
	}
	reg := currentRegistry()
	if reg == nil {
		return Error(ErrorInitializationFailed)
	}
	reg.destroy(Handle(l), KindPipelineLayout, nil)
	return nil
}
