package portability

import "testing"

func TestPipelineCacheRecordsDigests(t *testing.T) {
	_, dev := newTestDevice(t)

	cache, err := dev.CreatePipelineCache(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Destroy()

	n, err := cache.EntryCount()
	if err != nil || n != 0 {
		t.Fatalf("fresh cache has %d entries (%v)", n, err)
	}

	p, pl, dsl := newComputePipeline(t, dev, cache)
	defer dsl.Destroy()
	defer pl.Destroy()
	defer p.Destroy()

	n, _ = cache.EntryCount()
	if n != 1 {
		t.Errorf("%d entries after one pipeline, want 1", n)
	}

	// an identical pipeline hits the same digest
	p2, err := dev.CreateComputePipeline(&ComputePipelineCreateInfo{
		Stage:  ShaderStageInfo{Stage: ShaderStageCompute, Code: testShaderCode, EntryPoint: "main"},
		Layout: pl,
		Cache:  cache,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer p2.Destroy()
	n, _ = cache.EntryCount()
	if n != 1 {
		t.Errorf("%d entries after duplicate pipeline, want 1", n)
	}

	// different code is a different digest
	p3, err := dev.CreateComputePipeline(&ComputePipelineCreateInfo{
		Stage:  ShaderStageInfo{Stage: ShaderStageCompute, Code: []byte("other"), EntryPoint: "main"},
		Layout: pl,
		Cache:  cache,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer p3.Destroy()
	n, _ = cache.EntryCount()
	if n != 2 {
		t.Errorf("%d entries after distinct pipeline, want 2", n)
	}
}

func TestPipelineCacheSerializationRoundTrip(t *testing.T) {
	_, dev := newTestDevice(t)

	cache, err := dev.CreatePipelineCache(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Destroy()

	p, pl, dsl := newComputePipeline(t, dev, cache)
	defer dsl.Destroy()
	defer pl.Destroy()
	defer p.Destroy()

	blob, err := cache.GetData()
	if err != nil {
		t.Fatal(err)
	}
	if len(blob) == 0 {
		t.Fatal("empty blob")
	}

	restored, err := dev.CreatePipelineCache(&PipelineCacheCreateInfo{InitialData: blob})
	if err != nil {
		t.Fatal(err)
	}
	defer restored.Destroy()
	n, _ := restored.EntryCount()
	if n != 1 {
		t.Errorf("restored cache has %d entries, want 1", n)
	}

	// serialization is deterministic
	again, err := restored.GetData()
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != string(blob) {
		t.Error("round-tripped blob differs")
	}
}

func TestPipelineCacheRejectsForeignData(t *testing.T) {
	_, dev := newTestDevice(t)

	// corrupt data loads as an empty cache rather than failing
	for _, blob := range [][]byte{
		[]byte("garbage"),
		{'V', 'K', 'P', 'C'},
		{'V', 'K', 'P', 'C', 0xFF, 0xFF, 0xFF, 0xFF},
	} {
		cache, err := dev.CreatePipelineCache(&PipelineCacheCreateInfo{InitialData: blob})
		if err != nil {
			t.Fatalf("corrupt blob errored: %v", err)
		}
		n, _ := cache.EntryCount()
		if n != 0 {
			t.Errorf("corrupt blob produced %d entries", n)
		}
		cache.Destroy()
	}
}

func TestPipelineCacheMerge(t *testing.T) {
	_, dev := newTestDevice(t)

	a, err := dev.CreatePipelineCache(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Destroy()
	b, err := dev.CreatePipelineCache(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Destroy()

	p, pl, dsl := newComputePipeline(t, dev, a)
	defer dsl.Destroy()
	defer pl.Destroy()
	defer p.Destroy()

	p2, err := dev.CreateComputePipeline(&ComputePipelineCreateInfo{
		Stage:  ShaderStageInfo{Stage: ShaderStageCompute, Code: []byte("second"), EntryPoint: "main"},
		Layout: pl,
		Cache:  b,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer p2.Destroy()

	dst, err := dev.CreatePipelineCache(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer dst.Destroy()
	if err := dst.Merge([]PipelineCache{a, b}); err != nil {
		t.Fatal(err)
	}
	n, _ := dst.EntryCount()
	if n != 2 {
		t.Errorf("merged cache has %d entries, want 2", n)
	}
}
