package portability

import (
	"log"
	"testing"
)

func TestAlignUp(t *testing.T) {
	if alignUp(12, 4) != 12 {
		t.Fail()
	}
	if alignUp(10, 4) != 12 {
		t.Fail()
	}
	if alignUp(0, 16) != 0 {
		t.Fail()
	}
}

func TestRangeAllocator(t *testing.T) {
	a := NewRangeAllocator(1024, 1)

	if _, ok := a.Allocate(2048); ok {
		t.Error("oversized allocation succeeded")
	}

	fa, ok := a.Allocate(512)
	if !ok {
		t.Error("failed 512 allocation")
	}

	if _, ok := a.Allocate(768); ok {
		t.Error("768 fit in 512 free")
	}

	k, ok := a.Allocate(500)
	if !ok {
		t.Error("failed 500 allocation")
	}

	if _, ok := a.Allocate(50); ok {
		t.Error("50 fit in 12 free")
	}

	if _, ok := a.Allocate(5); !ok {
		t.Error("failed 5 allocation")
	}

	if _, ok := a.Allocate(20); ok {
		t.Error("20 fit in 7 free")
	}

	a.Free(k, 500)
	log.Printf("after free: %s", a.String())
	if _, ok := a.Allocate(500); !ok {
		t.Error("failed reallocation after free")
	}

	a.Free(fa, 512)
	if _, ok := a.Allocate(512); !ok {
		t.Error("failed reallocation of merged span")
	}
}

func TestRangeAllocatorAlignment(t *testing.T) {
	a := NewRangeAllocator(1024, 256)

	off1, ok := a.Allocate(10)
	if !ok || off1%256 != 0 {
		t.Errorf("offset %d not aligned", off1)
	}
	off2, ok := a.Allocate(10)
	if !ok || off2 != 256 {
		t.Errorf("second offset %d, want 256", off2)
	}
	if a.FreeSpace() != 512 {
		t.Errorf("free space %d, want 512", a.FreeSpace())
	}
}

func TestRangeAllocatorMerge(t *testing.T) {
	a := NewRangeAllocator(300, 1)

	o1, _ := a.Allocate(100)
	o2, _ := a.Allocate(100)
	o3, _ := a.Allocate(100)
	if a.FreeSpace() != 0 {
		t.Fatalf("free space %d after exhausting", a.FreeSpace())
	}

	// free the middle, then the neighbors: everything must coalesce back
	// into one span
	a.Free(o2, 100)
	if _, ok := a.Allocate(150); ok {
		t.Error("150 fit in fragmented 100")
	}
	a.Free(o1, 100)
	a.Free(o3, 100)
	if a.FreeSpace() != 300 {
		t.Errorf("free space %d, want 300", a.FreeSpace())
	}
	if off, ok := a.Allocate(300); !ok || off != 0 {
		t.Errorf("full-span allocation got (%d, %v)", off, ok)
	}
}
