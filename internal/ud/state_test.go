package ud

import (
	"errors"
	"path/filepath"
	"testing"
)

func newState(t *testing.T) *spaceState[uint64] {
	t.Helper()
	s := &spaceState[uint64]{}
	dir := t.TempDir()
	err := s.init(statePaths{
		uses:    filepath.Join(dir, "uses"),
		defs:    filepath.Join(dir, "defs"),
		partial: filepath.Join(dir, "partial-uses"),
	}, ModeTemp, 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.close() })
	// Catch-all def over the whole address space, as the builder seeds.
	if err := s.addDef(0, ^uint64(0)); err != nil {
		t.Fatal(err)
	}
	return s
}

// checkLive verifies the interval-map invariant: live ranges are
// non-empty, disjoint, sorted and cover the address space end to end.
func checkLive(t *testing.T, s *spaceState[uint64]) {
	t.Helper()
	it := s.live.Iterator()
	prevEnd := uint64(0)
	any := false
	for it.Next() {
		end := it.Key().(uint64)
		lv := it.Value().(liveDef)
		if lv.start != prevEnd {
			t.Fatalf("live range [%#x, %#x) does not abut previous end %#x", lv.start, end, prevEnd)
		}
		if end <= lv.start {
			t.Fatalf("empty live range [%#x, %#x)", lv.start, end)
		}
		prevEnd = end
		any = true
	}
	if !any {
		t.Fatal("live map is empty")
	}
	if prevEnd != ^uint64(0) {
		t.Fatalf("live map ends at %#x, not the address-space end", prevEnd)
	}
}

func TestAddUsesFullCover(t *testing.T) {
	s := newState(t)
	if err := s.addDefs(0x1000, 4); err != nil {
		t.Fatal(err)
	}
	// Read exactly the def's range: one use, no partial refinement.
	if err := s.addUses(0x1000, 4); err != nil {
		t.Fatal(err)
	}
	if s.useCount() != 1 {
		t.Fatalf("use count = %d, want 1", s.useCount())
	}
	if s.uses.Slice()[0] != 1 {
		t.Errorf("uses[0] = %d, want def 1", s.uses.Slice()[0])
	}
	if _, ok := s.partial.lookup(0); ok {
		t.Error("full cover recorded a partial refinement")
	}
	checkLive(t, s)
}

func TestAddUsesAgainstCatchAll(t *testing.T) {
	s := newState(t)
	// A read before any write resolves to the catch-all def, refined
	// to the read range.
	if err := s.addUses(0x1000, 4); err != nil {
		t.Fatal(err)
	}
	if s.useCount() != 1 {
		t.Fatalf("use count = %d, want 1", s.useCount())
	}
	if s.uses.Slice()[0] != 0 {
		t.Errorf("uses[0] = %d, want catch-all def 0", s.uses.Slice()[0])
	}
	d, ok := s.partial.lookup(0)
	if !ok || d.Start != 0x1000 || d.End != 0x1004 {
		t.Errorf("partial[0] = %+v, %v; want [0x1000, 0x1004)", d, ok)
	}
}

func TestAddUsesStraddlingTwoDefs(t *testing.T) {
	s := newState(t)
	if err := s.addDefs(0x1000, 4); err != nil {
		t.Fatal(err)
	}
	// After the store the map holds three ranges; a read of
	// [0x1002, 0x1006) touches the store and the catch-all tail.
	if s.live.Size() != 3 {
		t.Fatalf("live ranges = %d, want 3", s.live.Size())
	}
	if err := s.addUses(0x1002, 4); err != nil {
		t.Fatal(err)
	}
	if s.useCount() != 2 {
		t.Fatalf("use count = %d, want 2", s.useCount())
	}
	uses := s.uses.Slice()
	if uses[0] != 1 || uses[1] != 0 {
		t.Errorf("uses = %v, want [1 0]", uses)
	}
	d0, ok0 := s.partial.lookup(0)
	if !ok0 || d0.Start != 0x1002 || d0.End != 0x1004 {
		t.Errorf("partial[0] = %+v, %v; want [0x1002, 0x1004)", d0, ok0)
	}
	d1, ok1 := s.partial.lookup(1)
	if !ok1 || d1.Start != 0x1004 || d1.End != 0x1006 {
		t.Errorf("partial[1] = %+v, %v; want [0x1004, 0x1006)", d1, ok1)
	}
	checkLive(t, s)
}

func TestAddDefsResidues(t *testing.T) {
	s := newState(t)
	if err := s.addDefs(0x1000, 0x10); err != nil { // def 1
		t.Fatal(err)
	}
	checkLive(t, s)

	// Inner overlap: def 2 splits def 1 into head and tail residues.
	if err := s.addDefs(0x1004, 4); err != nil { // def 2
		t.Fatal(err)
	}
	checkLive(t, s)
	if err := s.addUses(0x1000, 0x10); err != nil {
		t.Fatal(err)
	}
	// Expect: [0x1000,0x1004)@def1, [0x1004,0x1008)@def2, [0x1008,0x1010)@def1.
	uses := s.uses.Slice()
	if len(uses) != 3 || uses[0] != 1 || uses[1] != 2 || uses[2] != 1 {
		t.Fatalf("uses = %v, want [1 2 1]", uses)
	}
	if d, ok := s.partial.lookup(0); !ok || d.Start != 0x1000 || d.End != 0x1004 {
		t.Errorf("partial[0] = %+v, %v", d, ok)
	}
	if d, ok := s.partial.lookup(1); ok {
		t.Errorf("use 1 fully covers def 2 but has partial %+v", d)
	}
	if d, ok := s.partial.lookup(2); !ok || d.Start != 0x1008 || d.End != 0x1010 {
		t.Errorf("partial[2] = %+v, %v", d, ok)
	}

	// Right overlap on the catch-all head; def 1's head residue is
	// swallowed outright.
	if err := s.addDefs(0x0ffc, 8); err != nil { // def 3
		t.Fatal(err)
	}
	checkLive(t, s)

	// Mixed overlaps: def 4 trims def 3 on the right, swallows defs
	// 1 and 2, and trims the catch-all tail on the left.
	if err := s.addDefs(0x1000, 0x20); err != nil { // def 4
		t.Fatal(err)
	}
	checkLive(t, s)
	if err := s.addUses(0x1000, 0x20); err != nil {
		t.Fatal(err)
	}
	uses = s.uses.Slice()
	if last := uses[len(uses)-1]; last != 4 {
		t.Errorf("after outer overlap the live def is %d, want 4", last)
	}
}

func TestAddDefsTooManyOverlaps(t *testing.T) {
	s := newState(t)
	// 33 adjacent one-byte defs, then one def spanning all of them.
	for i := uint64(0); i < 33; i++ {
		if err := s.addDefs(0x2000+i, 1); err != nil {
			t.Fatal(err)
		}
	}
	err := s.addDefs(0x2000, 33)
	if !errors.Is(err, ErrTooManyOverlaps) {
		t.Fatalf("spanning def err = %v, want ErrTooManyOverlaps", err)
	}

	// 32 overlapped ranges are still fine.
	s2 := newState(t)
	for i := uint64(0); i < 31; i++ {
		if err := s2.addDefs(0x2000+i, 1); err != nil {
			t.Fatal(err)
		}
	}
	// Spanning def overlaps 31 one-byte defs plus the catch-all residue.
	if err := s2.addDefs(0x2000, 32); err != nil {
		t.Fatalf("32-range overlap: %v", err)
	}
	checkLive(t, s2)
}
