package render

import (
	"fmt"
	"io"

	"memtrace/internal/disasm"
	"memtrace/internal/ud"
)

// codeLabel is tolerant of a trace entry whose static instruction was
// never declared; the graph stays renderable.
func codeLabel(g ud.Graph, code uint32) (pc uint64, text string) {
	if code >= g.NumCodes() {
		return 0, disasm.Unknown
	}
	return g.PCForCode(code), g.DisasmForCode(code)
}

// DOT writes the full graph: one node per dynamic instruction, one
// labeled edge per resolved use ("r" register, "m" memory).
func DOT(w io.Writer, g ud.Graph) error {
	if _, err := fmt.Fprintf(w, "digraph ud {\n"); err != nil {
		return err
	}
	for t := uint32(0); t < g.NumTraces(); t++ {
		pc, text := codeLabel(g, g.CodeForTrace(t))
		fmt.Fprintf(w, "    %d [label=\"[%d] 0x%x: %s\"]\n", t, t, pc, dotEscape(text))
		for _, use := range g.RegUsesForTrace(t) {
			r := g.ResolveRegUse(use)
			fmt.Fprintf(w, "    %d -> %d [label=\"r0x%x-0x%x\"]\n", t, r.Trace, r.Start, r.End)
		}
		for _, use := range g.MemUsesForTrace(t) {
			r := g.ResolveMemUse(use)
			fmt.Fprintf(w, "    %d -> %d [label=\"m0x%x-0x%x\"]\n", t, r.Trace, r.Start, r.End)
		}
	}
	_, err := fmt.Fprintf(w, "}\n")
	return err
}

// dotEscape escapes a label for a double-quoted DOT string.
func dotEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
