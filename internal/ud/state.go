package ud

import (
	"errors"
	"sort"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"

	"memtrace/internal/mmvec"
)

// ErrTooManyOverlaps reports a single write overlapping more live
// ranges than the instrumentation can produce.
var ErrTooManyOverlaps = errors.New("ud: write overlaps too many live ranges")

// maxAffected bounds how many live ranges one def may overlap; it is
// the maximum write width the upstream instrumentation emits.
const maxAffected = 32

// word is the address width of the traced program.
type word interface {
	~uint32 | ~uint64
}

// Def is a half-open byte range written by one dynamic instruction.
type Def[W word] struct {
	Start W
	End   W
}

// liveDef is the in-core interval map value: the start of the live
// range and the def currently covering it. The map key is the range's
// end address.
type liveDef struct {
	start uint64
	def   uint32
}

// spaceState is the per-address-space analyzer state: the persisted
// use/def vectors and partial-use table, plus the in-core live-writer
// interval map. Intervals are disjoint and cover the address space.
type spaceState[W word] struct {
	uses    *mmvec.Vector[uint32]
	defs    *mmvec.Vector[Def[W]]
	partial partialTable[W]
	live    *redblacktree.Tree
}

// statePaths names the three files of one address space.
type statePaths struct {
	uses, defs, partial string
}

func (s *spaceState[W]) init(paths statePaths, mode Mode, expUses, expDefs, expPartial int) error {
	var err error
	switch mode {
	case ModeTemp:
		s.uses, err = mmvec.CreateTemp[uint32](paths.uses)
		if err == nil {
			s.defs, err = mmvec.CreateTemp[Def[W]](paths.defs)
		}
	case ModeCreate:
		s.uses, err = mmvec.Create[uint32](paths.uses)
		if err == nil {
			s.defs, err = mmvec.Create[Def[W]](paths.defs)
		}
	default:
		s.uses, err = mmvec.Open[uint32](paths.uses)
		if err == nil {
			s.defs, err = mmvec.Open[Def[W]](paths.defs)
		}
	}
	if err != nil {
		return err
	}
	if err := s.partial.init(paths.partial, mode); err != nil {
		return err
	}
	if mode != ModeOpen {
		if err := s.uses.Reserve(expUses); err != nil {
			return err
		}
		if err := s.defs.Reserve(expDefs); err != nil {
			return err
		}
		if err := s.partial.rehash(expPartial); err != nil {
			return err
		}
	}
	s.live = redblacktree.NewWith(utils.UInt64Comparator)
	return nil
}

func (s *spaceState[W]) close() error {
	var firstErr error
	if s.uses != nil {
		firstErr = s.uses.Close()
	}
	if s.defs != nil {
		if err := s.defs.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.partial.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (s *spaceState[W]) useCount() int { return s.uses.Len() }
func (s *spaceState[W]) defCount() int { return s.defs.Len() }

// addUses records one use per live range overlapping [start, start+size),
// refining in the partial table whenever the overlap is a strict subset
// of the covering def's recorded range.
func (s *spaceState[W]) addUses(start, size uint64) error {
	end := start + size
	node, found := s.live.Ceiling(start + 1)
	if !found {
		return nil
	}
	it := s.live.IteratorAt(node)
	for {
		rangeEnd := it.Key().(uint64)
		lv := it.Value().(liveDef)
		if lv.start >= end {
			break
		}
		useIndex := uint32(s.uses.Len())
		if err := s.uses.Append(lv.def); err != nil {
			return err
		}
		d := *s.defs.At(int(lv.def))
		lo := max(start, lv.start)
		hi := min(end, rangeEnd)
		if uint64(d.Start) != lo || uint64(d.End) != hi {
			if err := s.partial.set(useIndex, Def[W]{Start: W(lo), End: W(hi)}); err != nil {
				return err
			}
		}
		if !it.Next() {
			break
		}
	}
	return nil
}

// addDefs retires the live ranges overlapped by [start, start+size),
// reinserting their residues, then installs the new def as live.
func (s *spaceState[W]) addDefs(start, size uint64) error {
	end := start + size

	type affectedRange struct {
		end uint64
		lv  liveDef
	}
	var affected [maxAffected]affectedRange
	count := 0
	if node, found := s.live.Ceiling(start + 1); found {
		it := s.live.IteratorAt(node)
		for {
			rangeEnd := it.Key().(uint64)
			lv := it.Value().(liveDef)
			if lv.start >= end {
				break
			}
			if count == maxAffected {
				return ErrTooManyOverlaps
			}
			affected[count] = affectedRange{end: rangeEnd, lv: lv}
			count++
			if !it.Next() {
				break
			}
		}
	}

	for _, a := range affected[:count] {
		s.live.Remove(a.end)
	}
	for _, a := range affected[:count] {
		switch {
		case start <= a.lv.start && end < a.end:
			// Left overlap: the tail survives.
			s.live.Put(a.end, liveDef{start: end, def: a.lv.def})
		case start <= a.lv.start:
			// Outer overlap: fully replaced.
		case end < a.end:
			// Inner overlap: both ends survive.
			s.live.Put(start, liveDef{start: a.lv.start, def: a.lv.def})
			s.live.Put(a.end, liveDef{start: end, def: a.lv.def})
		default:
			// Right overlap: the head survives.
			s.live.Put(start, liveDef{start: a.lv.start, def: a.lv.def})
		}
	}
	return s.addDef(start, end)
}

// addDef appends a def and marks [start, end) live under it.
func (s *spaceState[W]) addDef(start, end uint64) error {
	defIndex := uint32(s.defs.Len())
	if err := s.defs.Append(Def[W]{Start: W(start), End: W(end)}); err != nil {
		return err
	}
	s.live.Put(end, liveDef{start: start, def: defIndex})
	return nil
}

// resolveUse returns the effective range of a use (the partial
// refinement when present, the covering def's range otherwise) and the
// trace index of the instruction that produced it: the last trace entry
// whose def window starts at or before the use's def.
func (s *spaceState[W]) resolveUse(useIndex uint32, trace []InsnInTrace, startDef func(*InsnInTrace) uint32) (Def[W], uint32) {
	defIndex := s.uses.Slice()[useIndex]
	d, ok := s.partial.lookup(useIndex)
	if !ok {
		d = *s.defs.At(int(defIndex))
	}
	i := sort.Search(len(trace), func(i int) bool {
		return defIndex < startDef(&trace[i])
	})
	return d, uint32(i - 1)
}
