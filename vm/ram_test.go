package vm

import "testing"

func TestRamAllocDisjoint(t *testing.T) {
	r := NewRAM(64)
	a, err := r.Alloc(10)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Alloc(10)
	if err != nil {
		t.Fatal(err)
	}
	if a.Start() == 0 || b.Start() == 0 {
		t.Fatal("address 0 must never be allocated")
	}
	if a.End() > b.Start() && b.End() > a.Start() {
		t.Fatalf("overlapping ranges: %d-%d and %d-%d", a.Start(), a.End(), b.Start(), b.End())
	}
}

func TestRamAllocOutOfMemory(t *testing.T) {
	r := NewRAM(8)
	if _, err := r.Alloc(100); err == nil {
		t.Fatal("expected RamOutOfMemory, got nil")
	}
}

func TestRamReleaseReusesSpace(t *testing.T) {
	r := NewRAM(16)
	a, err := r.Alloc(15)
	if err != nil {
		t.Fatal(err)
	}
	a.Release()
	if _, err := r.Alloc(15); err != nil {
		t.Fatalf("expected released space to be reusable: %v", err)
	}
}

func TestRamCheckedWriteOutsideAllocationSegfaults(t *testing.T) {
	r := NewRAM(16)
	if _, err := r.Alloc(4); err != nil {
		t.Fatal(err)
	}
	if err := r.WriteChecked(12, []byte{1, 2}); err == nil {
		t.Fatal("expected a segmentation fault writing outside any live allocation")
	}
}

func TestRamWriteReadRoundTrip(t *testing.T) {
	r := NewRAM(32)
	a, err := r.Alloc(8)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.WriteWordChecked(a.Start(), 0xBEEF); err != nil {
		t.Fatal(err)
	}
	got, err := r.ReadWordChecked(a.Start())
	if err != nil {
		t.Fatal(err)
	}
	if got != 0xBEEF {
		t.Fatalf("got %x, want 0xBEEF", got)
	}
}

func TestRamAddressZeroNeverAllocated(t *testing.T) {
	r := NewRAM(16)
	if err := r.checkBounds(0, 1); err == nil {
		t.Fatal("address 0 must fail bounds/segfault checks")
	}
}
