package ud

import (
	"memtrace/internal/mmvec"
)

// emptySlot marks an unoccupied hash slot.
const emptySlot = ^uint32(0)

// PartialUse refines a use whose read range is a strict subset of its
// covering def's range. The dense use vector stays one word per use;
// refinements live in this sparse side table.
type PartialUse[W word] struct {
	UseIndex uint32
	Range    Def[W]
}

// partialTable is an open-addressed, linearly probed hash table over
// PartialUse records, persisted through mmvec. The slot count is always
// prime; the load factor never exceeds one half.
type partialTable[W word] struct {
	entries *mmvec.Vector[PartialUse[W]]
	load    int
	maxLoad int
	path    string
}

func (t *partialTable[W]) init(path string, mode Mode) error {
	t.path = path
	var err error
	switch mode {
	case ModeTemp:
		t.entries, err = mmvec.CreateTemp[PartialUse[W]](path)
	case ModeCreate:
		t.entries, err = mmvec.Create[PartialUse[W]](path)
	default:
		t.entries, err = mmvec.Open[PartialUse[W]](path)
	}
	if err != nil {
		return err
	}
	if mode != ModeOpen {
		if err := t.entries.Resize(minTableSize); err != nil {
			return err
		}
		slots := t.entries.Slice()
		for i := range slots {
			slots[i].UseIndex = emptySlot
		}
	}
	t.maxLoad = t.entries.Len() / 2
	return nil
}

func (t *partialTable[W]) close() error {
	if t.entries == nil {
		return nil
	}
	return t.entries.Close()
}

const minTableSize = 11

// findSlot scans from the hash position for the slot holding useIndex
// or the first empty slot, wrapping once. With load capped at one half
// a free slot always exists.
func findSlot[W word](slots []PartialUse[W], useIndex uint32) *PartialUse[W] {
	start := int(useIndex) % len(slots)
	for i := start; i < len(slots); i++ {
		if slots[i].UseIndex == useIndex || slots[i].UseIndex == emptySlot {
			return &slots[i]
		}
	}
	for i := 0; i < start; i++ {
		if slots[i].UseIndex == useIndex || slots[i].UseIndex == emptySlot {
			return &slots[i]
		}
	}
	return nil
}

// lookup returns the refined range recorded for useIndex, if any.
func (t *partialTable[W]) lookup(useIndex uint32) (Def[W], bool) {
	slot := findSlot(t.entries.Slice(), useIndex)
	if slot == nil || slot.UseIndex != useIndex {
		return Def[W]{}, false
	}
	return slot.Range, true
}

// set inserts or overwrites the refined range for useIndex, rehashing
// first when the insert would push the load factor past one half.
func (t *partialTable[W]) set(useIndex uint32, r Def[W]) error {
	slot := findSlot(t.entries.Slice(), useIndex)
	if slot.UseIndex == useIndex {
		slot.Range = r
		return nil
	}
	t.load++
	if t.load > t.maxLoad {
		if err := t.rehash(t.load * 2); err != nil {
			return err
		}
		slot = findSlot(t.entries.Slice(), useIndex)
	}
	slot.UseIndex = useIndex
	slot.Range = r
	return nil
}

// rehash grows the table to the least prime at or above 2n. The old
// contents are parked in a temporary side vector while the primary is
// resized and refilled.
func (t *partialTable[W]) rehash(n int) error {
	newSize := firstPrimeAtLeast(2 * n)
	side, err := mmvec.CreateTemp[PartialUse[W]](t.path)
	if err != nil {
		return err
	}
	defer side.Close()
	if err := side.AppendSlice(t.entries.Slice()); err != nil {
		return err
	}
	if err := t.entries.Resize(newSize); err != nil {
		return err
	}
	slots := t.entries.Slice()
	for i := range slots {
		slots[i] = PartialUse[W]{UseIndex: emptySlot}
	}
	for _, old := range side.Slice() {
		if old.UseIndex == emptySlot {
			continue
		}
		*findSlot(slots, old.UseIndex) = old
	}
	t.maxLoad = newSize / 2
	return nil
}

func firstPrimeAtLeast(n int) int {
	if n <= minTableSize {
		return minTableSize
	}
	v := n | 1
	for !isPrime(v) {
		v += 2
	}
	return v
}

func isPrime(v int) bool {
	for d := 3; d*d <= v; d += 2 {
		if v%d == 0 {
			return false
		}
	}
	return true
}
