package render

import (
	"fmt"

	"github.com/zboralski/lattice"
	latrender "github.com/zboralski/lattice/render"

	"memtrace/internal/ud"
)

// FlowDOT collapses the graph to the static-instruction level: one
// node per static instruction, one deduplicated edge from each reader
// to the instructions that produced its bytes. A compact companion to
// the full per-execution DOT dump.
func FlowDOT(g ud.Graph, title string) string {
	label := func(code uint32) string {
		pc, text := codeLabel(g, code)
		return fmt.Sprintf("0x%x %s", pc, text)
	}

	flow := &lattice.Graph{}
	for c := uint32(0); c < g.NumCodes(); c++ {
		flow.Nodes = append(flow.Nodes, label(c))
	}
	addEdge := func(t uint32, r ud.ResolvedUse) {
		flow.Edges = append(flow.Edges, lattice.Edge{
			Caller: label(g.CodeForTrace(t)),
			Callee: label(g.CodeForTrace(r.Trace)),
		})
	}
	for t := uint32(0); t < g.NumTraces(); t++ {
		for _, use := range g.RegUsesForTrace(t) {
			addEdge(t, g.ResolveRegUse(use))
		}
		for _, use := range g.MemUsesForTrace(t) {
			addEdge(t, g.ResolveMemUse(use))
		}
	}
	flow.Dedup()
	return latrender.DOT(flow, title)
}
