package portability

import "sync"

// DescriptorPoolSize budgets one descriptor type in a pool.
type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

// DescriptorPoolCreateInfo mirrors the target API's pool parameters.
type DescriptorPoolCreateInfo struct {
	MaxSets   uint32
	PoolSizes []DescriptorPoolSize
}

type descriptorPoolObject struct {
	mu     sync.Mutex
	device Device

	maxSets   uint32
	setsLeft  uint32
	budget    map[DescriptorType]uint32
	remaining map[DescriptorType]uint32

	sets map[DescriptorSet]*descriptorSetObject
}

// CreateDescriptorPool creates a pool with fixed per-type budgets.
func (d Device) CreateDescriptorPool(info *DescriptorPoolCreateInfo) (DescriptorPool, error) {
	obj, err := deviceFor(d)
	if err != nil {
		return 0, err
	}
	if info == nil || info.MaxSets == 0 {
		return 0, Error(ErrorValidationFailed)
	}

	budget := make(map[DescriptorType]uint32)
	for _, ps := range info.PoolSizes {
		budget[ps.Type] += ps.Count
	}
	remaining := make(map[DescriptorType]uint32, len(budget))
	for t, c := range budget {
		remaining[t] = c
	}

	po := &descriptorPoolObject{
		device:    d,
		maxSets:   info.MaxSets,
		setsLeft:  info.MaxSets,
		budget:    budget,
		remaining: remaining,
		sets:      make(map[DescriptorSet]*descriptorSetObject),
	}
	return DescriptorPool(obj.reg.allocate(KindDescriptorPool, po)), nil
}

// AllocateSets carves sets out of the pool, one per layout. The call is
// all-or-nothing: if any layout exceeds the remaining budget nothing is
// allocated and the pool is unchanged.
func (p DescriptorPool) AllocateSets(layouts []DescriptorSetLayout) ([]DescriptorSet, error) {
	po, err := resolve[*descriptorPoolObject](Handle(p), KindDescriptorPool)
	if err != nil {
		return nil, err
	}
	dev, err := deviceFor(po.device)
	if err != nil {
		return nil, err
	}
	if len(layouts) == 0 {
		return nil, Error(ErrorValidationFailed)
	}

	states := make([]*descriptorSetLayoutState, len(layouts))
	for i, l := range layouts {
		lo, err := resolve[*descriptorSetLayoutObject](Handle(l), KindDescriptorSetLayout)
		if err != nil {
			return nil, err
		}
		states[i] = lo.state
	}

	po.mu.Lock()
	defer po.mu.Unlock()

	// Dry run against the budget first so failure has no effect.
	if uint32(len(layouts)) > po.setsLeft {
		return nil, Error(ErrorOutOfPoolMemory)
	}
	need := make(map[DescriptorType]uint32)
	for _, st := range states {
		for _, b := range st.bindings {
			need[b.Type] += b.Count
		}
	}
	for t, n := range need {
		if po.remaining[t] < n {
			return nil, Error(ErrorOutOfPoolMemory)
		}
	}

	po.setsLeft -= uint32(len(layouts))
	for t, n := range need {
		po.remaining[t] -= n
	}

	out := make([]DescriptorSet, len(states))
	for i, st := range states {
		so := &descriptorSetObject{
			pool:     p,
			layout:   st,
			bindings: make(map[uint32]boundDescriptor),
		}
		h := DescriptorSet(dev.reg.allocate(KindDescriptorSet, so))
		po.sets[h] = so
		out[i] = h
	}
	return out, nil
}

// Reset reclaims every set at once; individual sets are never freed, as in
// the pool model of the target API without the free-descriptor-set flag.
func (p DescriptorPool) Reset() error {
	po, err := resolve[*descriptorPoolObject](Handle(p), KindDescriptorPool)
	if err != nil {
		return err
	}
	reg := currentRegistry()
	if reg == nil {
		return Error(ErrorInitializationFailed)
	}

	po.mu.Lock()
	defer po.mu.Unlock()
	for h := range po.sets {
		reg.destroy(Handle(h), KindDescriptorSet, nil)
	}
	po.sets = make(map[DescriptorSet]*descriptorSetObject)
	po.setsLeft = po.maxSets
	for t, c := range po.budget {
		po.remaining[t] = c
	}
	return nil
}

// Destroy frees the pool and all its sets.
func (p DescriptorPool) Destroy() error {
	po, err := resolve[*descriptorPoolObject](Handle(p), KindDescriptorPool)
	if err != nil {
		return err
	}
	reg := currentRegistry()
	if reg == nil {
		return Error(ErrorInitializationFailed)
	}

	po.mu.Lock()
	for h := range po.sets {
		reg.destroy(Handle(h), KindDescriptorSet, nil)
	}
	po.sets = nil
	po.mu.Unlock()

	reg.destroy(Handle(p), KindDescriptorPool, nil)
	return nil
}
