package regfield

import "testing"

func TestFieldExtractInsert(t *testing.T) {
	f := Field{Shift: 4, Width: 3} // bits [6:4]
	if got := f.Mask(); got != 0x70 {
		t.Fatalf("Mask() = 0x%x, want 0x70", got)
	}
	word := f.Insert(0, 0x5) // 0b101
	if got := f.Extract(word); got != 0x5 {
		t.Fatalf("Extract(Insert(0,5)) = %d, want 5", got)
	}
	// Insert must clear any previous bits in the field, not OR into them.
	word = f.Insert(0x70, 0x1)
	if got := f.Extract(word); got != 0x1 {
		t.Fatalf("Extract after overwrite = %d, want 1", got)
	}
}

func TestFieldWidth32(t *testing.T) {
	f := Field{Shift: 0, Width: 32}
	if got := f.Mask(); got != 0xFFFFFFFF {
		t.Fatalf("Mask() = 0x%x, want 0xFFFFFFFF", got)
	}
}

func TestBit(t *testing.T) {
	b := Bit(3)
	if b.Mask() != 0x8 {
		t.Fatalf("Bit(3).Mask() = 0x%x, want 0x8", b.Mask())
	}
}

func TestRegisterSetDropsReserved(t *testing.T) {
	r := Register{WritableMask: 0x7}
	res := r.Set(0xFF)
	if res.Applied != 0x7 {
		t.Fatalf("Applied = 0x%x, want 0x7", res.Applied)
	}
	if res.Dropped != 0xF8 {
		t.Fatalf("Dropped = 0x%x, want 0xF8", res.Dropped)
	}
	if r.Value != 0x7 {
		t.Fatalf("Value = 0x%x, want 0x7", r.Value)
	}
}

func TestRegisterClearWriteOneToClear(t *testing.T) {
	r := Register{Value: 0x1, WritableMask: 0x1}
	res := r.Clear(0x1)
	if r.Value != 0 {
		t.Fatalf("Value = 0x%x, want 0", r.Value)
	}
	if res.Applied != 0x1 {
		t.Fatalf("Applied = 0x%x, want 0x1", res.Applied)
	}
	// Clearing an already-zero bit is a no-op (idempotence, §8 invariant 8).
	res = r.Clear(0x1)
	if res.Applied != 0 {
		t.Fatalf("second Clear Applied = 0x%x, want 0", res.Applied)
	}
}
