package portability

import "testing"

func TestDescriptorSetLayoutRoundTrip(t *testing.T) {
	_, dev := newTestDevice(t)

	layout, err := dev.CreateDescriptorSetLayout([]DescriptorBinding{
		{Binding: 1, Type: DescriptorTypeStorageBuffer, Stages: ShaderStageCompute},
		{Binding: 0, Type: DescriptorTypeUniformBuffer, Count: 2, Stages: ShaderStageCompute},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer layout.Destroy()

	bindings, err := layout.Bindings()
	if err != nil {
		t.Fatal(err)
	}
	if len(bindings) != 2 {
		t.Fatalf("%d bindings, want 2", len(bindings))
	}
	// returned in binding-index order, with counts normalized
	if bindings[0].Binding != 0 || bindings[0].Count != 2 {
		t.Errorf("binding 0 came back as %+v", bindings[0])
	}
	if bindings[1].Binding != 1 || bindings[1].Count != 1 {
		t.Errorf("binding 1 came back as %+v", bindings[1])
	}
}

func TestDescriptorSetLayoutDuplicateBinding(t *testing.T) {
	_, dev := newTestDevice(t)

	_, err := dev.CreateDescriptorSetLayout([]DescriptorBinding{
		{Binding: 0, Type: DescriptorTypeUniformBuffer},
		{Binding: 0, Type: DescriptorTypeStorageBuffer},
	})
	if AsResult(err) != ErrorValidationFailed {
		t.Errorf("duplicate binding: %v", err)
	}
}

func TestDescriptorSetLayoutDedup(t *testing.T) {
	_, dev := newTestDevice(t)

	bindings := []DescriptorBinding{{Binding: 0, Type: DescriptorTypeStorageBuffer, Stages: ShaderStageCompute}}
	l1, err := dev.CreateDescriptorSetLayout(bindings)
	if err != nil {
		t.Fatal(err)
	}
	l2, err := dev.CreateDescriptorSetLayout(bindings)
	if err != nil {
		t.Fatal(err)
	}
	if l1 == l2 {
		t.Fatal("handles must stay distinct")
	}

	o1, err := resolve[*descriptorSetLayoutObject](Handle(l1), KindDescriptorSetLayout)
	if err != nil {
		t.Fatal(err)
	}
	o2, err := resolve[*descriptorSetLayoutObject](Handle(l2), KindDescriptorSetLayout)
	if err != nil {
		t.Fatal(err)
	}
	if o1.state != o2.state {
		t.Error("equal layouts did not share state")
	}
	l1.Destroy()
	l2.Destroy()
}

func TestDescriptorPoolBudget(t *testing.T) {
	_, dev := newTestDevice(t)

	layout, err := dev.CreateDescriptorSetLayout([]DescriptorBinding{
		{Binding: 0, Type: DescriptorTypeStorageBuffer, Stages: ShaderStageCompute},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer layout.Destroy()

	pool, err := dev.CreateDescriptorPool(&DescriptorPoolCreateInfo{
		MaxSets:   2,
		PoolSizes: []DescriptorPoolSize{{Type: DescriptorTypeStorageBuffer, Count: 2}},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Destroy()

	// three sets exceed MaxSets; the failure must consume nothing
	if _, err := pool.AllocateSets([]DescriptorSetLayout{layout, layout, layout}); AsResult(err) != ErrorOutOfPoolMemory {
		t.Errorf("over-budget allocation: %v", err)
	}
	sets, err := pool.AllocateSets([]DescriptorSetLayout{layout, layout})
	if err != nil {
		t.Fatalf("budget should be untouched after rejection: %v", err)
	}
	if len(sets) != 2 {
		t.Fatalf("%d sets, want 2", len(sets))
	}
	if _, err := pool.AllocateSets([]DescriptorSetLayout{layout}); AsResult(err) != ErrorOutOfPoolMemory {
		t.Errorf("exhausted pool: %v", err)
	}

	// reset reclaims every set and restores the budget
	if err := pool.Reset(); err != nil {
		t.Fatal(err)
	}
	if err := sets[0].WriteBuffer(0, 0, 0, 0); AsResult(err) != ErrorInvalidExternalHandle {
		t.Errorf("set survived pool reset: %v", err)
	}
	if _, err := pool.AllocateSets([]DescriptorSetLayout{layout, layout}); err != nil {
		t.Errorf("allocation after reset: %v", err)
	}
}

func TestDescriptorPoolTypeBudget(t *testing.T) {
	_, dev := newTestDevice(t)

	layout, err := dev.CreateDescriptorSetLayout([]DescriptorBinding{
		{Binding: 0, Type: DescriptorTypeUniformBuffer, Count: 4, Stages: ShaderStageCompute},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer layout.Destroy()

	pool, err := dev.CreateDescriptorPool(&DescriptorPoolCreateInfo{
		MaxSets:   8,
		PoolSizes: []DescriptorPoolSize{{Type: DescriptorTypeUniformBuffer, Count: 3}},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Destroy()

	// plenty of sets left, but the layout needs four uniform descriptors
	// against a budget of three
	if _, err := pool.AllocateSets([]DescriptorSetLayout{layout}); AsResult(err) != ErrorOutOfPoolMemory {
		t.Errorf("over type budget: %v", err)
	}
}

func TestDescriptorWriteTypeChecked(t *testing.T) {
	phys, dev := newTestDevice(t)

	layout, err := dev.CreateDescriptorSetLayout([]DescriptorBinding{
		{Binding: 0, Type: DescriptorTypeStorageBuffer, Stages: ShaderStageCompute},
		{Binding: 1, Type: DescriptorTypeStorageImage, Stages: ShaderStageCompute},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer layout.Destroy()

	pool, err := dev.CreateDescriptorPool(&DescriptorPoolCreateInfo{
		MaxSets: 1,
		PoolSizes: []DescriptorPoolSize{
			{Type: DescriptorTypeStorageBuffer, Count: 1},
			{Type: DescriptorTypeStorageImage, Count: 1},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Destroy()

	sets, err := pool.AllocateSets([]DescriptorSetLayout{layout})
	if err != nil {
		t.Fatal(err)
	}
	set := sets[0]

	buf, mem := newBoundBuffer(t, phys, dev, 256, BufferUsageStorage,
		MemoryPropertyHostVisible)
	defer mem.Free()
	defer buf.Destroy()

	img, err := dev.CreateImage(&ImageCreateInfo{
		Extent: Extent3D{Width: 4, Height: 4},
		Format: FormatR8G8B8A8Unorm,
		Usage:  ImageUsageStorage,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer img.Destroy()

	if err := set.WriteBuffer(0, buf, 0, WholeSize); err != nil {
		t.Errorf("buffer write: %v", err)
	}
	if err := set.WriteImage(1, img, ImageLayoutGeneral); err != nil {
		t.Errorf("image write: %v", err)
	}

	// type mismatches and unknown bindings fail without changing the set
	if err := set.WriteImage(0, img, ImageLayoutGeneral); AsResult(err) != ErrorValidationFailed {
		t.Errorf("image into buffer slot: %v", err)
	}
	if err := set.WriteBuffer(1, buf, 0, WholeSize); AsResult(err) != ErrorValidationFailed {
		t.Errorf("buffer into image slot: %v", err)
	}
	if err := set.WriteBuffer(7, buf, 0, WholeSize); AsResult(err) != ErrorValidationFailed {
		t.Errorf("undeclared binding: %v", err)
	}
	if err := set.WriteBuffer(0, buf, 64, 256); AsResult(err) != ErrorValidationFailed {
		t.Errorf("out-of-range write: %v", err)
	}
	if err := set.WriteBuffer(0, buf, ^uint64(0)-1, 4); AsResult(err) != ErrorValidationFailed {
		t.Errorf("wrapping write range: %v", err)
	}
}

func TestBindUnwrittenSetFails(t *testing.T) {
	phys, dev := newTestDevice(t)

	layout, err := dev.CreateDescriptorSetLayout([]DescriptorBinding{
		{Binding: 0, Type: DescriptorTypeStorageBuffer, Stages: ShaderStageCompute},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer layout.Destroy()

	pl, err := dev.CreatePipelineLayout(&PipelineLayoutCreateInfo{
		SetLayouts: []DescriptorSetLayout{layout},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer pl.Destroy()

	pool, err := dev.CreateDescriptorPool(&DescriptorPoolCreateInfo{
		MaxSets:   1,
		PoolSizes: []DescriptorPoolSize{{Type: DescriptorTypeStorageBuffer, Count: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Destroy()
	sets, err := pool.AllocateSets([]DescriptorSetLayout{layout})
	if err != nil {
		t.Fatal(err)
	}

	cb := newTestCommandBuffer(t, dev)
	if err := cb.Begin(nil); err != nil {
		t.Fatal(err)
	}
	err = cb.CmdBindDescriptorSets(pl, 0, sets)
	if AsResult(err) != ErrorValidationFailed {
		t.Errorf("bind of unwritten set: %v", err)
	}

	// after writing the declared binding the bind goes through
	buf, mem := newBoundBuffer(t, phys, dev, 64, BufferUsageStorage,
		MemoryPropertyHostVisible)
	defer mem.Free()
	defer buf.Destroy()
	if err := sets[0].WriteBuffer(0, buf, 0, WholeSize); err != nil {
		t.Fatal(err)
	}
	if err := cb.CmdBindDescriptorSets(pl, 0, sets); err != nil {
		t.Errorf("bind after write: %v", err)
	}
}
