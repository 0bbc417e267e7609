package render

import (
	"fmt"
	"html"
	"io"

	"memtrace/internal/ud"
)

// HTML writes the graph as a table with one anchored row per dynamic
// instruction; use entries link to their producing row.
func HTML(w io.Writer, g ud.Graph) error {
	if _, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
<title>ud</title>
</head>
<body>
<table>
    <tr>
        <th>Seq</th>
        <th>Address</th>
        <th>Bytes</th>
        <th>Instruction</th>
        <th>Uses</th>
        <th>Defs</th>
    </tr>
`); err != nil {
		return err
	}
	for t := uint32(0); t < g.NumTraces(); t++ {
		code := g.CodeForTrace(t)
		pc, text := codeLabel(g, code)
		var raw []byte
		if code < g.NumCodes() {
			raw = g.CodeBytes(code)
		}
		fmt.Fprintf(w, "    <tr id=\"%d\">\n", t)
		fmt.Fprintf(w, "        <td>%d</td>\n", t)
		fmt.Fprintf(w, "        <td>0x%x</td>\n", pc)
		fmt.Fprintf(w, "        <td>%x</td>\n", raw)
		fmt.Fprintf(w, "        <td>%s</td>\n", html.EscapeString(text))
		fmt.Fprintf(w, "        <td>\n")
		for _, use := range g.RegUsesForTrace(t) {
			r := g.ResolveRegUse(use)
			fmt.Fprintf(w, "            <a href=\"#%d\">r0x%x-0x%x</a>\n", r.Trace, r.Start, r.End)
		}
		for _, use := range g.MemUsesForTrace(t) {
			r := g.ResolveMemUse(use)
			fmt.Fprintf(w, "            <a href=\"#%d\">m0x%x-0x%x</a>\n", r.Trace, r.Start, r.End)
		}
		fmt.Fprintf(w, "        </td>\n")
		fmt.Fprintf(w, "        <td>\n")
		for _, d := range g.RegDefsForTrace(t) {
			fmt.Fprintf(w, "            r0x%x-0x%x\n", d.Start, d.End)
		}
		for _, d := range g.MemDefsForTrace(t) {
			fmt.Fprintf(w, "            m0x%x-0x%x\n", d.Start, d.End)
		}
		fmt.Fprintf(w, "        </td>\n")
		fmt.Fprintf(w, "    </tr>\n")
	}
	_, err := fmt.Fprintf(w, "</table>\n</body>\n</html>\n")
	return err
}
