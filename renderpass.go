package portability

import (
	"fmt"
	"strings"

	"github.com/italicsjenga/portability/driver"
)

// AttachmentDescription describes one render pass attachment.
type AttachmentDescription struct {
	Format        Format
	LoadOp        AttachmentLoadOp
	StoreOp       AttachmentStoreOp
	InitialLayout ImageLayout
	FinalLayout   ImageLayout
}

// SubpassDescription lists the attachments a subpass touches, by index
// into the render pass attachment array.
type SubpassDescription struct {
	ColorAttachments []uint32
	DepthAttachment  *uint32
	InputAttachments []uint32
}

// SubpassDependency is an ordering edge between subpasses, or to the
// outside via SubpassExternal.
type SubpassDependency struct {
	SrcSubpass    uint32
	DstSubpass    uint32
	SrcStageMask  PipelineStageFlags
	DstStageMask  PipelineStageFlags
	SrcAccessMask AccessFlags
	DstAccessMask AccessFlags
}

// RenderPassCreateInfo mirrors the target API's render pass parameters.
type RenderPassCreateInfo struct {
	Attachments  []AttachmentDescription
	Subpasses    []SubpassDescription
	Dependencies []SubpassDependency
}

// attTransition is a layout change of one attachment, computed at creation
// time when only indices exist; images arrive when the pass begins.
type attTransition struct {
	attachment uint32
	before     driver.ResourceState
	after      driver.ResourceState
}

// renderPassState holds the immutable translated pass. The transition
// schedule is a pure function of the creation parameters: attachments are
// walked in index order within each subpass in subpass order, so two
// passes created from equal parameters produce byte-equal schedules.
type renderPassState struct {
	attachments  []AttachmentDescription
	subpasses    []SubpassDescription
	dependencies []SubpassDependency

	perSubpass [][]attTransition // index 0 applies on pass entry
	final      []attTransition   // applies on pass exit
	key        string
}

type renderPassObject struct {
	device Device
	state  *renderPassState
}

// CreateRenderPass translates and dedups a render pass. Attachment indices
// referenced by subpasses must exist.
func (d Device) CreateRenderPass(info *RenderPassCreateInfo) (RenderPass, error) {
	obj, err := deviceFor(d)
	if err != nil {
		return 0, err
	}
	if info == nil || len(info.Subpasses) == 0 {
		return 0, Error(ErrorValidationFailed)
	}
	n := uint32(len(info.Attachments))
	for _, sp := range info.Subpasses {
		for _, a := range sp.ColorAttachments {
			if a >= n {
				return 0, Error(ErrorValidationFailed)
			}
		}
		for _, a := range sp.InputAttachments {
			if a >= n {
				return 0, Error(ErrorValidationFailed)
			}
		}
		if sp.DepthAttachment != nil && *sp.DepthAttachment >= n {
			return 0, Error(ErrorValidationFailed)
		}
	}

	key := renderPassKey(info)
	obj.mu.Lock()
	state, ok := obj.stateCache[key].(*renderPassState)
	if !ok {
		state = buildRenderPassState(info, key)
		obj.stateCache[key] = state
	}
	obj.mu.Unlock()

	rpo := &renderPassObject{device: d, state: state}
	return RenderPass(obj.reg.allocate(KindRenderPass, rpo)), nil
}

// buildRenderPassState computes the per-subpass transition schedule by
// tracking each attachment's current layout from InitialLayout through
// every subpass use to FinalLayout.
func buildRenderPassState(info *RenderPassCreateInfo, key string) *renderPassState {
	st := &renderPassState{
		attachments:  append([]AttachmentDescription(nil), info.Attachments...),
		subpasses:    append([]SubpassDescription(nil), info.Subpasses...),
		dependencies: append([]SubpassDependency(nil), info.Dependencies...),
		key:          key,
	}

	current := make([]driver.ResourceState, len(info.Attachments))
	for i, a := range info.Attachments {
		current[i] = layoutToState(a.InitialLayout)
	}

	for _, sp := range info.Subpasses {
		var trans []attTransition

		// required states per attachment for this subpass, in index order
		required := make(map[uint32]driver.ResourceState)
		for _, a := range sp.InputAttachments {
			required[a] = driver.StateShaderRead
		}
		for _, a := range sp.ColorAttachments {
			required[a] = driver.StateColorTarget
		}
		if sp.DepthAttachment != nil {
			required[*sp.DepthAttachment] = driver.StateDepthTarget
		}

		for a := uint32(0); a < uint32(len(info.Attachments)); a++ {
			want, used := required[a]
			if !used || current[a] == want {
				continue
			}
			trans = append(trans, attTransition{attachment: a, before: current[a], after: want})
			current[a] = want
		}
		st.perSubpass = append(st.perSubpass, trans)
	}

	for i, a := range info.Attachments {
		want := layoutToState(a.FinalLayout)
		if current[i] == want {
			continue
		}
		st.final = append(st.final, attTransition{attachment: uint32(i), before: current[i], after: want})
		current[i] = want
	}
	return st
}

func renderPassKey(info *RenderPassCreateInfo) string {
	var sb strings.Builder
	sb.WriteString("rp")
	for _, a := range info.Attachments {
		fmt.Fprintf(&sb, "|a%d:%d:%d:%d:%d", a.Format, a.LoadOp, a.StoreOp, a.InitialLayout, a.FinalLayout)
	}
	for _, sp := range info.Subpasses {
		sb.WriteString("|s")
		for _, c := range sp.ColorAttachments {
			fmt.Fprintf(&sb, "c%d", c)
		}
		for _, c := range sp.InputAttachments {
			fmt.Fprintf(&sb, "i%d", c)
		}
		if sp.DepthAttachment != nil {
			fmt.Fprintf(&sb, "d%d", *sp.DepthAttachment)
		}
	}
	for _, dep := range info.Dependencies {
		fmt.Fprintf(&sb, "|e%d:%d:%d:%d:%d:%d",
			dep.SrcSubpass, dep.DstSubpass, dep.SrcStageMask, dep.DstStageMask, dep.SrcAccessMask, dep.DstAccessMask)
	}
	return sb.String()
}

// materialize binds the index-based schedule to concrete images.
func (st *renderPassState) materialize(images []driver.Image) [][]driver.Transition {
	out := make([][]driver.Transition, len(st.perSubpass))
	for i, trans := range st.perSubpass {
		out[i] = materializeTransitions(trans, images)
	}
	return out
}

func materializeTransitions(trans []attTransition, images []driver.Image) []driver.Transition {
	if len(trans) == 0 {
		return nil
	}
	out := make([]driver.Transition, len(trans))
	for i, t := range trans {
		out[i] = driver.Transition{
			Image:  images[t.attachment],
			Before: t.before,
			After:  t.after,
		}
	}
	return out
}

// Properties returns the creation parameters, exactly as given.
func (r RenderPass) Properties() (RenderPassCreateInfo, error) {
	rpo, err := resolve[*renderPassObject](Handle(r), KindRenderPass)
	if err != nil {
		return RenderPassCreateInfo{}, err
	}
	return RenderPassCreateInfo{
		Attachments:  append([]AttachmentDescription(nil), rpo.state.attachments...),
		Subpasses:    append([]SubpassDescription(nil), rpo.state.subpasses...),
		Dependencies: append([]SubpassDependency(nil), rpo.state.dependencies...),
	}, nil
}

// Destroy releases the handle; the shared translated state stays cached.
func (r RenderPass) Destroy() error {
	if _, err := resolve[*renderPassObject](Handle(r), KindRenderPass); err != nil {
		return err
	}
	reg := currentRegistry()
	if reg == nil {
		return Error(ErrorInitializationFailed)
	}
	reg.destroy(Handle(r), KindRenderPass, nil)
	return nil
}
