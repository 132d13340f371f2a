package devices

import "testing"

type fakeMMIODevice struct {
	reads  []uint64
	writes []uint64
}

func (d *fakeMMIODevice) ReadMMIO(offset uint64, size int) (uint64, error) {
	d.reads = append(d.reads, offset)
	return offset, nil
}

func (d *fakeMMIODevice) WriteMMIO(offset uint64, size int, value uint64) error {
	d.writes = append(d.writes, offset)
	return nil
}

func TestBusRoutesToCorrectWindow(t *testing.T) {
	b := NewBus(nil)
	a := &fakeMMIODevice{}
	c := &fakeMMIODevice{}
	b.Register("a", 0x1000, 0x100, a)
	b.Register("c", 0x2000, 0x100, c)

	if _, err := b.ReadMMIO(0x1010, 4); err != nil {
		t.Fatalf("ReadMMIO: %v", err)
	}
	if len(a.reads) != 1 || a.reads[0] != 0x10 {
		t.Fatalf("device a reads = %v, want offset 0x10", a.reads)
	}
	if len(c.reads) != 0 {
		t.Fatalf("device c reads = %v, want none", c.reads)
	}

	if err := b.WriteMMIO(0x2050, 4, 7); err != nil {
		t.Fatalf("WriteMMIO: %v", err)
	}
	if len(c.writes) != 1 || c.writes[0] != 0x50 {
		t.Fatalf("device c writes = %v, want offset 0x50", c.writes)
	}
}

func TestBusUnmappedAddressErrors(t *testing.T) {
	b := NewBus(nil)
	b.Register("a", 0x1000, 0x100, &fakeMMIODevice{})

	if _, err := b.ReadMMIO(0x5000, 4); err == nil {
		t.Fatalf("ReadMMIO at unmapped address succeeded, want error")
	}
	if err := b.WriteMMIO(0x5000, 4, 1); err == nil {
		t.Fatalf("WriteMMIO at unmapped address succeeded, want error")
	}
}

func TestBusLaterRegistrationWinsOnOverlap(t *testing.T) {
	b := NewBus(nil)
	first := &fakeMMIODevice{}
	second := &fakeMMIODevice{}
	b.Register("first", 0x1000, 0x100, first)
	b.Register("second", 0x1080, 0x100, second)

	if _, err := b.ReadMMIO(0x1090, 4); err != nil {
		t.Fatalf("ReadMMIO: %v", err)
	}
	if len(second.reads) != 1 {
		t.Fatalf("second.reads = %v, want the later registration to win the overlapping address", second.reads)
	}
}
