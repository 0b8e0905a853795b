package portability

import (
	"reflect"
	"testing"

	"github.com/italicsjenga/portability/driver"
)

func TestRenderPassTransitionSchedule(t *testing.T) {
	info := &RenderPassCreateInfo{
		Attachments: []AttachmentDescription{{
			Format:        FormatR8G8B8A8Unorm,
			LoadOp:        LoadOpClear,
			StoreOp:       StoreOpStore,
			InitialLayout: ImageLayoutUndefined,
			FinalLayout:   ImageLayoutPresent,
		}},
		Subpasses: []SubpassDescription{{ColorAttachments: []uint32{0}}},
	}
	st := buildRenderPassState(info, "k")

	if len(st.perSubpass) != 1 {
		t.Fatalf("%d subpass schedules, want 1", len(st.perSubpass))
	}
	entry := []attTransition{{attachment: 0, before: driver.StateUndefined, after: driver.StateColorTarget}}
	if !reflect.DeepEqual(st.perSubpass[0], entry) {
		t.Errorf("entry transitions %+v", st.perSubpass[0])
	}
	exit := []attTransition{{attachment: 0, before: driver.StateColorTarget, after: driver.StatePresent}}
	if !reflect.DeepEqual(st.final, exit) {
		t.Errorf("final transitions %+v", st.final)
	}
}

func TestRenderPassMultiSubpassSchedule(t *testing.T) {
	depth := uint32(1)
	info := &RenderPassCreateInfo{
		Attachments: []AttachmentDescription{
			{Format: FormatR8G8B8A8Unorm, InitialLayout: ImageLayoutUndefined, FinalLayout: ImageLayoutShaderReadOnly},
			{Format: FormatD32Sfloat, InitialLayout: ImageLayoutUndefined, FinalLayout: ImageLayoutDepthStencilReadOnly},
		},
		Subpasses: []SubpassDescription{
			{ColorAttachments: []uint32{0}, DepthAttachment: &depth},
			{InputAttachments: []uint32{0}},
		},
	}
	st := buildRenderPassState(info, "k")

	if len(st.perSubpass) != 2 {
		t.Fatalf("%d subpass schedules, want 2", len(st.perSubpass))
	}
	// subpass 0: attachment order, color then depth
	want0 := []attTransition{
		{attachment: 0, before: driver.StateUndefined, after: driver.StateColorTarget},
		{attachment: 1, before: driver.StateUndefined, after: driver.StateDepthTarget},
	}
	if !reflect.DeepEqual(st.perSubpass[0], want0) {
		t.Errorf("subpass 0 %+v", st.perSubpass[0])
	}
	// subpass 1 reads the color target; depth stays put
	want1 := []attTransition{
		{attachment: 0, before: driver.StateColorTarget, after: driver.StateShaderRead},
	}
	if !reflect.DeepEqual(st.perSubpass[1], want1) {
		t.Errorf("subpass 1 %+v", st.perSubpass[1])
	}
	// both attachments already sit in their final states on exit
	if len(st.final) != 0 {
		t.Errorf("final %+v, want none", st.final)
	}
}

func TestRenderPassScheduleDeterministic(t *testing.T) {
	depth := uint32(2)
	info := &RenderPassCreateInfo{
		Attachments: []AttachmentDescription{
			{Format: FormatR8G8B8A8Unorm, InitialLayout: ImageLayoutUndefined, FinalLayout: ImageLayoutPresent},
			{Format: FormatB8G8R8A8Unorm, InitialLayout: ImageLayoutUndefined, FinalLayout: ImageLayoutShaderReadOnly},
			{Format: FormatD32Sfloat, InitialLayout: ImageLayoutUndefined, FinalLayout: ImageLayoutDepthStencilAttachment},
		},
		Subpasses: []SubpassDescription{
			{ColorAttachments: []uint32{1, 0}, DepthAttachment: &depth},
		},
	}

	a := buildRenderPassState(info, "k")
	b := buildRenderPassState(info, "k")
	if !reflect.DeepEqual(a.perSubpass, b.perSubpass) || !reflect.DeepEqual(a.final, b.final) {
		t.Error("equal parameters produced different schedules")
	}

	// attachments are walked in index order regardless of reference order
	for i := 1; i < len(a.perSubpass[0]); i++ {
		if a.perSubpass[0][i].attachment <= a.perSubpass[0][i-1].attachment {
			t.Errorf("schedule not in attachment order: %+v", a.perSubpass[0])
		}
	}
}

func TestRenderPassCreateValidation(t *testing.T) {
	_, dev := newTestDevice(t)

	if _, err := dev.CreateRenderPass(nil); AsResult(err) != ErrorValidationFailed {
		t.Errorf("nil info: %v", err)
	}
	if _, err := dev.CreateRenderPass(&RenderPassCreateInfo{}); AsResult(err) != ErrorValidationFailed {
		t.Errorf("no subpasses: %v", err)
	}
	_, err := dev.CreateRenderPass(&RenderPassCreateInfo{
		Attachments: []AttachmentDescription{{Format: FormatR8G8B8A8Unorm}},
		Subpasses:   []SubpassDescription{{ColorAttachments: []uint32{3}}},
	})
	if AsResult(err) != ErrorValidationFailed {
		t.Errorf("attachment index out of range: %v", err)
	}
}

func TestRenderPassPropertiesRoundTrip(t *testing.T) {
	_, dev := newTestDevice(t)

	info := &RenderPassCreateInfo{
		Attachments: []AttachmentDescription{{
			Format:        FormatR8G8B8A8Unorm,
			LoadOp:        LoadOpClear,
			StoreOp:       StoreOpStore,
			InitialLayout: ImageLayoutUndefined,
			FinalLayout:   ImageLayoutShaderReadOnly,
		}},
		Subpasses: []SubpassDescription{{ColorAttachments: []uint32{0}}},
		Dependencies: []SubpassDependency{{
			SrcSubpass:    SubpassExternal,
			DstSubpass:    0,
			SrcStageMask:  PipelineStageColorAttachmentOutput,
			DstStageMask:  PipelineStageColorAttachmentOutput,
			DstAccessMask: AccessColorAttachmentWrite,
		}},
	}
	rp, err := dev.CreateRenderPass(info)
	if err != nil {
		t.Fatal(err)
	}
	defer rp.Destroy()

	got, err := rp.Properties()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, *info) {
		t.Errorf("properties %+v, want %+v", got, *info)
	}
}

func TestRenderPassDedup(t *testing.T) {
	_, dev := newTestDevice(t)

	info := &RenderPassCreateInfo{
		Attachments: []AttachmentDescription{{Format: FormatR8G8B8A8Unorm}},
		Subpasses:   []SubpassDescription{{ColorAttachments: []uint32{0}}},
	}
	r1, err := dev.CreateRenderPass(info)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := dev.CreateRenderPass(info)
	if err != nil {
		t.Fatal(err)
	}
	if r1 == r2 {
		t.Fatal("handles must stay distinct")
	}
	o1, _ := resolve[*renderPassObject](Handle(r1), KindRenderPass)
	o2, _ := resolve[*renderPassObject](Handle(r2), KindRenderPass)
	if o1.state != o2.state {
		t.Error("equal passes did not share translated state")
	}
	r1.Destroy()
	r2.Destroy()
}
