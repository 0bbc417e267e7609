package ud

import (
	"path/filepath"
	"testing"
)

func newTable(t *testing.T) *partialTable[uint64] {
	t.Helper()
	tbl := &partialTable[uint64]{}
	if err := tbl.init(filepath.Join(t.TempDir(), "partial-uses"), ModeTemp); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tbl.close() })
	return tbl
}

func TestPartialTableSetLookup(t *testing.T) {
	tbl := newTable(t)
	if _, ok := tbl.lookup(3); ok {
		t.Fatal("lookup on empty table succeeded")
	}
	if err := tbl.set(3, Def[uint64]{Start: 0x10, End: 0x14}); err != nil {
		t.Fatal(err)
	}
	if err := tbl.set(3, Def[uint64]{Start: 0x10, End: 0x12}); err != nil {
		t.Fatal(err)
	}
	d, ok := tbl.lookup(3)
	if !ok || d.Start != 0x10 || d.End != 0x12 {
		t.Errorf("lookup(3) = %+v, %v; want last value set", d, ok)
	}
}

func TestPartialTableRehash(t *testing.T) {
	tbl := newTable(t)
	if got := tbl.entries.Len(); got != 11 {
		t.Fatalf("initial size = %d, want 11", got)
	}
	for i := uint32(0); i < 64; i++ {
		if err := tbl.set(i, Def[uint64]{Start: uint64(i), End: uint64(i) + 1}); err != nil {
			t.Fatal(err)
		}
	}
	size := tbl.entries.Len()
	if size < 256 {
		t.Errorf("size after 64 inserts = %d, want >= 256", size)
	}
	if !isPrime(size) || size%2 == 0 {
		t.Errorf("size %d is not an odd prime", size)
	}
	for i := uint32(0); i < 64; i++ {
		d, ok := tbl.lookup(i)
		if !ok || d.Start != uint64(i) || d.End != uint64(i)+1 {
			t.Fatalf("lookup(%d) = %+v, %v after rehash", i, d, ok)
		}
	}
	if _, ok := tbl.lookup(64); ok {
		t.Error("lookup(64) found an entry that was never set")
	}
}

func TestPartialTableCollisions(t *testing.T) {
	tbl := newTable(t)
	// All keys hash to the same slot mod 11; probing must keep them
	// all retrievable.
	for i := uint32(0); i < 5; i++ {
		key := i * 11
		if err := tbl.set(key, Def[uint64]{Start: uint64(key), End: uint64(key) + 4}); err != nil {
			t.Fatal(err)
		}
	}
	for i := uint32(0); i < 5; i++ {
		key := i * 11
		d, ok := tbl.lookup(key)
		if !ok || d.Start != uint64(key) {
			t.Errorf("lookup(%d) = %+v, %v", key, d, ok)
		}
	}
}

func TestFirstPrimeAtLeast(t *testing.T) {
	cases := []struct{ n, want int }{
		{0, 11},
		{11, 11},
		{12, 13},
		{24, 29},
		{60, 61},
		{124, 127},
		{128, 131},
		{256, 257},
	}
	for _, c := range cases {
		if got := firstPrimeAtLeast(c.n); got != c.want {
			t.Errorf("firstPrimeAtLeast(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}
