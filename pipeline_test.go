package portability

import "testing"

// a SPIR-V-shaped stand-in; the soft backend stores shader bytes opaquely
var testShaderCode = []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}

func newComputePipeline(t *testing.T, dev Device, cache PipelineCache) (Pipeline, PipelineLayout, DescriptorSetLayout) {
	t.Helper()
	dsl, err := dev.CreateDescriptorSetLayout([]DescriptorBinding{
		{Binding: 0, Type: DescriptorTypeStorageBuffer, Stages: ShaderStageCompute},
	})
	if err != nil {
		t.Fatal(err)
	}
	pl, err := dev.CreatePipelineLayout(&PipelineLayoutCreateInfo{
		SetLayouts: []DescriptorSetLayout{dsl},
	})
	if err != nil {
		t.Fatal(err)
	}
	p, err := dev.CreateComputePipeline(&ComputePipelineCreateInfo{
		Stage: ShaderStageInfo{
			Stage:      ShaderStageCompute,
			Code:       testShaderCode,
			EntryPoint: "main",
		},
		Layout: pl,
		Cache:  cache,
	})
	if err != nil {
		t.Fatal(err)
	}
	return p, pl, dsl
}

func TestComputePipelineCreation(t *testing.T) {
	_, dev := newTestDevice(t)

	p, pl, dsl := newComputePipeline(t, dev, 0)
	defer dsl.Destroy()
	defer pl.Destroy()
	defer p.Destroy()

	// the wrong stage flag is a defined failure
	_, err := dev.CreateComputePipeline(&ComputePipelineCreateInfo{
		Stage:  ShaderStageInfo{Stage: ShaderStageVertex, Code: testShaderCode},
		Layout: pl,
	})
	if AsResult(err) != ErrorValidationFailed {
		t.Errorf("compute pipeline with vertex stage: %v", err)
	}
	_, err = dev.CreateComputePipeline(&ComputePipelineCreateInfo{
		Stage:  ShaderStageInfo{Stage: ShaderStageCompute},
		Layout: pl,
	})
	if AsResult(err) != ErrorValidationFailed {
		t.Errorf("compute pipeline without code: %v", err)
	}
}

func TestGraphicsPipelineNeedsGraphicsCaps(t *testing.T) {
	_, dev := newTestDevice(t)

	pl, err := dev.CreatePipelineLayout(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer pl.Destroy()

	_, err = dev.CreateGraphicsPipeline(&GraphicsPipelineCreateInfo{
		Stages: []ShaderStageInfo{{Stage: ShaderStageVertex, Code: testShaderCode}},
		Layout: pl,
	})
	if AsResult(err) != ErrorFeatureNotPresent {
		t.Errorf("graphics pipeline on compute-only device: %v", err)
	}
}

func TestDispatchSubmission(t *testing.T) {
	phys, dev := newTestDevice(t)

	p, pl, dsl := newComputePipeline(t, dev, 0)
	defer dsl.Destroy()
	defer pl.Destroy()
	defer p.Destroy()

	buf, mem := newBoundBuffer(t, phys, dev, 1024, BufferUsageStorage,
		MemoryPropertyHostVisible|MemoryPropertyHostCoherent)
	defer mem.Free()
	defer buf.Destroy()

	pool, err := dev.CreateDescriptorPool(&DescriptorPoolCreateInfo{
		MaxSets:   1,
		PoolSizes: []DescriptorPoolSize{{Type: DescriptorTypeStorageBuffer, Count: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Destroy()
	sets, err := pool.AllocateSets([]DescriptorSetLayout{dsl})
	if err != nil {
		t.Fatal(err)
	}
	if err := sets[0].WriteBuffer(0, buf, 0, WholeSize); err != nil {
		t.Fatal(err)
	}

	cb := newTestCommandBuffer(t, dev)
	if err := cb.Begin(nil); err != nil {
		t.Fatal(err)
	}
	if err := cb.CmdBindPipeline(p); err != nil {
		t.Fatal(err)
	}
	if err := cb.CmdBindDescriptorSets(pl, 0, sets); err != nil {
		t.Fatal(err)
	}
	if err := cb.CmdDispatch(16, 1, 1); err != nil {
		t.Fatal(err)
	}
	if err := cb.End(); err != nil {
		t.Fatal(err)
	}

	queue, _ := dev.GetQueue()
	if err := queue.Submit([]SubmitInfo{{CommandBuffers: []CommandBuffer{cb}}}, 0); err != nil {
		t.Fatal(err)
	}
	if err := queue.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	wantState(t, cb, "Executable")
}

func TestPipelineLayoutPushConstantLimit(t *testing.T) {
	phys, dev := newTestDevice(t)

	props, err := phys.Properties()
	if err != nil {
		t.Fatal(err)
	}
	limit := props.Limits.MaxPushConstantsSize
	if limit == 0 {
		t.Skip("adapter reports no push constant limit")
	}

	_, err = dev.CreatePipelineLayout(&PipelineLayoutCreateInfo{
		PushConstantRanges: []PushConstantRange{{Stages: ShaderStageCompute, Offset: 0, Size: limit + 4}},
	})
	if AsResult(err) != ErrorValidationFailed {
		t.Errorf("over-limit push constants: %v", err)
	}

	pl, err := dev.CreatePipelineLayout(&PipelineLayoutCreateInfo{
		PushConstantRanges: []PushConstantRange{{Stages: ShaderStageCompute, Offset: 0, Size: limit}},
	})
	if err != nil {
		t.Errorf("at-limit push constants: %v", err)
	} else {
		pl.Destroy()
	}
}

func TestPipelineLayoutDedup(t *testing.T) {
	_, dev := newTestDevice(t)

	dsl, err := dev.CreateDescriptorSetLayout([]DescriptorBinding{
		{Binding: 0, Type: DescriptorTypeUniformBuffer, Stages: ShaderStageCompute},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer dsl.Destroy()

	info := &PipelineLayoutCreateInfo{SetLayouts: []DescriptorSetLayout{dsl}}
	l1, err := dev.CreatePipelineLayout(info)
	if err != nil {
		t.Fatal(err)
	}
	l2, err := dev.CreatePipelineLayout(info)
	if err != nil {
		t.Fatal(err)
	}

	o1, _ := resolve[*pipelineLayoutObject](Handle(l1), KindPipelineLayout)
	o2, _ := resolve[*pipelineLayoutObject](Handle(l2), KindPipelineLayout)
	if o1.state != o2.state {
		t.Error("equal pipeline layouts did not share state")
	}
	l1.Destroy()
	l2.Destroy()
}
