package ud

import (
	"fmt"
	"io"

	"memtrace/internal/disasm"
	"memtrace/internal/wire"
)

// ResolvedUse is a use after resolution: the byte range actually read
// from its producer and the trace index of the producing instruction.
type ResolvedUse struct {
	Start uint64
	End   uint64
	Trace uint32
}

// AddrRange is a half-open byte range.
type AddrRange struct {
	Start uint64
	End   uint64
}

func (u *ud[W]) Machine() wire.MachineType   { return u.machine }
func (u *ud[W]) Endianness() wire.Endianness { return u.endian }
func (u *ud[W]) WordSize() int               { return wordSize[W]() }

func (u *ud[W]) NumCodes() uint32  { return uint32(u.code.Len()) }
func (u *ud[W]) NumTraces() uint32 { return uint32(u.trace.Len()) }

func (u *ud[W]) RegUseCount() uint32 { return uint32(u.reg.useCount()) }
func (u *ud[W]) MemUseCount() uint32 { return uint32(u.mem.useCount()) }
func (u *ud[W]) RegDefCount() uint32 { return uint32(u.reg.defCount()) }
func (u *ud[W]) MemDefCount() uint32 { return uint32(u.mem.defCount()) }

// CodesForPC returns every static instruction at pc. The code table is
// small next to the trace, so a scan is fine.
func (u *ud[W]) CodesForPC(pc uint64) []uint32 {
	var codes []uint32
	for i, c := range u.code.Slice() {
		if uint64(c.PC) == pc {
			codes = append(codes, uint32(i))
		}
	}
	return codes
}

func (u *ud[W]) PCForCode(code uint32) uint64 {
	return uint64(u.code.At(int(code)).PC)
}

// CodeBytes returns the opcode bytes of a static instruction. The slice
// aliases the text mapping.
func (u *ud[W]) CodeBytes(code uint32) []byte {
	c := u.code.At(int(code))
	return u.text.Slice()[c.TextIndex : c.TextIndex+c.TextSize]
}

func (u *ud[W]) DisasmForCode(code uint32) string {
	if int(code) < len(u.disasm) {
		return u.disasm[code]
	}
	return u.eng.Disasm(u.CodeBytes(code), u.PCForCode(code))
}

func (u *ud[W]) TracesForCode(code uint32) []uint32 {
	var traces []uint32
	for i, t := range u.trace.Slice() {
		if t.CodeIndex == code {
			traces = append(traces, uint32(i))
		}
	}
	return traces
}

func (u *ud[W]) CodeForTrace(trace uint32) uint32 {
	return u.trace.At(int(trace)).CodeIndex
}

func (u *ud[W]) RegUsesForTrace(trace uint32) []uint32 {
	t := u.trace.At(int(trace))
	return useWindow(t.RegUseStart, t.RegUseEnd)
}

func (u *ud[W]) MemUsesForTrace(trace uint32) []uint32 {
	t := u.trace.At(int(trace))
	return useWindow(t.MemUseStart, t.MemUseEnd)
}

func useWindow(start, end uint32) []uint32 {
	uses := make([]uint32, 0, end-start)
	for i := start; i < end; i++ {
		uses = append(uses, i)
	}
	return uses
}

func (u *ud[W]) TraceForRegUse(use uint32) uint32 {
	return u.ResolveRegUse(use).Trace
}

func (u *ud[W]) TraceForMemUse(use uint32) uint32 {
	return u.ResolveMemUse(use).Trace
}

func (u *ud[W]) ResolveRegUse(use uint32) ResolvedUse {
	d, t := u.reg.resolveUse(use, u.trace.Slice(), regDefStart)
	return ResolvedUse{Start: uint64(d.Start), End: uint64(d.End), Trace: t}
}

func (u *ud[W]) ResolveMemUse(use uint32) ResolvedUse {
	d, t := u.mem.resolveUse(use, u.trace.Slice(), memDefStart)
	return ResolvedUse{Start: uint64(d.Start), End: uint64(d.End), Trace: t}
}

func (u *ud[W]) RegDefsForTrace(trace uint32) []AddrRange {
	t := u.trace.At(int(trace))
	return u.defWindow(&u.reg, t.RegDefStart, t.RegDefEnd)
}

func (u *ud[W]) MemDefsForTrace(trace uint32) []AddrRange {
	t := u.trace.At(int(trace))
	return u.defWindow(&u.mem, t.MemDefStart, t.MemDefEnd)
}

func (u *ud[W]) defWindow(s *spaceState[W], start, end uint32) []AddrRange {
	defs := s.defs.Slice()
	ranges := make([]AddrRange, 0, end-start)
	for i := start; i < end; i++ {
		ranges = append(ranges, AddrRange{Start: uint64(defs[i].Start), End: uint64(defs[i].End)})
	}
	return ranges
}

// dumpFlush writes one line per flushed instruction: its disassembly
// and the resolved use and def windows of both address spaces.
func (u *ud[W]) dumpFlush(w io.Writer, traceIndex uint32, t InsnInTrace) {
	pc := uint64(0)
	text := disasm.Unknown
	var raw []byte
	if t.CodeIndex < u.NumCodes() {
		pc = u.PCForCode(t.CodeIndex)
		text = u.DisasmForCode(t.CodeIndex)
		raw = u.CodeBytes(t.CodeIndex)
	}
	fmt.Fprintf(w, "[%d]0x%x: %x %s reg_uses=[", traceIndex, pc, raw, text)
	u.dumpUses(w, &u.reg, t.RegUseStart, t.RegUseEnd, regDefStart)
	fmt.Fprintf(w, "] reg_defs=[")
	dumpRanges(w, u.defWindow(&u.reg, t.RegDefStart, t.RegDefEnd))
	fmt.Fprintf(w, "] mem_uses=[")
	u.dumpUses(w, &u.mem, t.MemUseStart, t.MemUseEnd, memDefStart)
	fmt.Fprintf(w, "] mem_defs=[")
	dumpRanges(w, u.defWindow(&u.mem, t.MemDefStart, t.MemDefEnd))
	fmt.Fprintf(w, "]\n")
}

func (u *ud[W]) dumpUses(w io.Writer, s *spaceState[W], start, end uint32, startDef func(*InsnInTrace) uint32) {
	for i := start; i < end; i++ {
		d, producer := s.resolveUse(i, u.trace.Slice(), startDef)
		if i != start {
			fmt.Fprintf(w, ", ")
		}
		fmt.Fprintf(w, "0x%x-0x%x@[%d]", uint64(d.Start), uint64(d.End), producer)
	}
}

func dumpRanges(w io.Writer, ranges []AddrRange) {
	for i, r := range ranges {
		if i != 0 {
			fmt.Fprintf(w, ", ")
		}
		fmt.Fprintf(w, "0x%x-0x%x", r.Start, r.End)
	}
}
