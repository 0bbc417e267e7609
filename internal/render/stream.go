// Package render turns traces and use-definition graphs into
// human-readable and machine-readable output: a stream dump, DOT and
// HTML graph dumps, CSV exports and a code-level flow summary.
package render

import (
	"fmt"
	"io"

	"memtrace/internal/disasm"
	"memtrace/internal/tracefile"
	"memtrace/internal/wire"
)

// StreamOptions bounds a stream dump to an entry-index window.
type StreamOptions struct {
	Start uint64 // first entry index to print
	End   uint64 // one past the last entry index to print; 0 = no bound
}

// Stream walks the trace from its current position and prints one line
// per record inside the window. The whole stream is still parsed, so a
// malformed record fails the dump even outside the window.
func Stream(w io.Writer, t *tracefile.Trace, opts StreamOptions) error {
	eng, err := disasm.New(t.Machine(), t.Endianness(), t.WordSize())
	if err != nil {
		return err
	}
	end := opts.End
	if end == 0 {
		end = ^uint64(0)
	}

	fmt.Fprintf(w, "Endian            : %s\n", t.Endianness().Symbol())
	fmt.Fprintf(w, "Word              : %s\n", t.Codec().WordFormat())
	fmt.Fprintf(w, "Word size         : %d\n", t.WordSize())
	fmt.Fprintf(w, "Machine           : %s\n", t.Machine())

	insns := 0
	for {
		entry, err := t.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if entry.EntryIndex() < opts.Start || entry.EntryIndex() >= end {
			continue
		}
		switch e := entry.(type) {
		case *wire.LdStEntry:
			fmt.Fprintf(w, "[%10d] 0x%08x: %s uint%d_t [0x%x] %s\n",
				e.Index, e.InsnSeq, e.Tag, len(e.Value)*8, e.Addr,
				formatValue(t.Codec(), e.Value))
		case *wire.InsnEntry:
			fmt.Fprintf(w, "[%10d] 0x%08x: INSN 0x%016x %x %s\n",
				e.Index, e.InsnSeq, e.PC, e.Bytes, eng.Disasm(e.Bytes, e.PC))
		case *wire.InsnExecEntry:
			fmt.Fprintf(w, "[%10d] 0x%08x: INSN_EXEC\n", e.Index, e.InsnSeq)
			insns++
		case *wire.LdStNxEntry:
			fmt.Fprintf(w, "[%10d] 0x%08x: %s uint%d_t [0x%x]\n",
				e.Index, e.InsnSeq, e.Tag, e.Size*8, e.Addr)
		case *wire.MmapEntry:
			fmt.Fprintf(w, "[%10d] MMAP %016x-%016x %c%c%c %s\n",
				e.Index, e.Start, e.End+1,
				flagChar(e.Flags, wire.MmapRead, 'r'),
				flagChar(e.Flags, wire.MmapWrite, 'w'),
				flagChar(e.Flags, wire.MmapExec, 'x'),
				e.Name)
		}
	}
	fmt.Fprintf(w, "Insns             : %d\n", insns)
	return nil
}

func flagChar(flags, bit uint64, c byte) byte {
	if flags&bit != 0 {
		return c
	}
	return '-'
}

// formatValue renders an access value: power-of-two widths as one
// integer in the trace's endianness, anything else as a byte repr.
func formatValue(c wire.Codec, value []byte) string {
	switch len(value) {
	case 1:
		return fmt.Sprintf("0x%x", value[0])
	case 2:
		return fmt.Sprintf("0x%x", c.U16(value))
	case 4:
		return fmt.Sprintf("0x%x", c.U32(value))
	case 8:
		return fmt.Sprintf("0x%x", c.U64(value))
	default:
		s := "b'"
		for _, b := range value {
			s += fmt.Sprintf("\\x%02x", b)
		}
		return s + "'"
	}
}
