package render

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"memtrace/internal/ud"
)

// CSV writes three files through a "{}" path template: the static
// instructions (index, pc, opcode hex, disassembly), the dynamic
// instructions (index, code index) and the resolved uses (trace,
// producing trace, space, start, end).
func CSV(pathTemplate string, g ud.Graph) error {
	tmpl, err := ud.ParseTemplate(pathTemplate)
	if err != nil {
		return err
	}
	if err := writeCSV(tmpl.File("code"), codeRows(g)); err != nil {
		return err
	}
	if err := writeCSV(tmpl.File("trace"), traceRows(g)); err != nil {
		return err
	}
	return writeCSV(tmpl.File("uses"), useRows(g))
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return pkgerrors.Wrap(err, "render: create csv")
	}
	cw := csv.NewWriter(f)
	if err := cw.WriteAll(rows); err != nil {
		f.Close()
		return pkgerrors.Wrap(err, "render: write csv")
	}
	return f.Close()
}

func codeRows(g ud.Graph) [][]string {
	rows := make([][]string, 0, g.NumCodes())
	for c := uint32(0); c < g.NumCodes(); c++ {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(c), 10),
			strconv.FormatUint(g.PCForCode(c), 10),
			fmt.Sprintf("%x", g.CodeBytes(c)),
			g.DisasmForCode(c),
		})
	}
	return rows
}

func traceRows(g ud.Graph) [][]string {
	rows := make([][]string, 0, g.NumTraces())
	for t := uint32(0); t < g.NumTraces(); t++ {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(t), 10),
			strconv.FormatUint(uint64(g.CodeForTrace(t)), 10),
		})
	}
	return rows
}

func useRows(g ud.Graph) [][]string {
	var rows [][]string
	addRow := func(t uint32, space string, r ud.ResolvedUse) {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(t), 10),
			strconv.FormatUint(uint64(r.Trace), 10),
			space,
			strconv.FormatUint(r.Start, 10),
			strconv.FormatUint(r.End, 10),
		})
	}
	for t := uint32(0); t < g.NumTraces(); t++ {
		for _, use := range g.RegUsesForTrace(t) {
			addRow(t, "r", g.ResolveRegUse(use))
		}
		for _, use := range g.MemUsesForTrace(t) {
			addRow(t, "m", g.ResolveMemUse(use))
		}
	}
	return rows
}
