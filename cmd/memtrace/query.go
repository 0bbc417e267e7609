package main

import (
	"flag"
	"fmt"
	"strconv"

	"memtrace/internal/ud"
)

func cmdQuery(args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	binary := fs.String("binary", "", "path template of a persisted graph")
	pc := fs.String("pc", "", "list static instructions at this pc (hex ok)")
	code := fs.Int("code", -1, "describe this static instruction")
	trace := fs.Int("trace", -1, "describe this dynamic instruction")
	regUse := fs.Int("reg-use", -1, "resolve this register use to its producer")
	memUse := fs.Int("mem-use", -1, "resolve this memory use to its producer")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *binary == "" {
		return fmt.Errorf("--binary is required")
	}

	g, err := ud.Load(*binary)
	if err != nil {
		return err
	}
	defer g.Close()

	if *pc != "" {
		addr, err := strconv.ParseUint(*pc, 0, 64)
		if err != nil {
			return fmt.Errorf("bad --pc %q: %w", *pc, err)
		}
		for _, c := range g.CodesForPC(addr) {
			fmt.Printf("code %d: 0x%x %s\n", c, g.PCForCode(c), g.DisasmForCode(c))
		}
	}
	if *code >= 0 {
		c := uint32(*code)
		fmt.Printf("code %d: 0x%x %x %s\n", c, g.PCForCode(c), g.CodeBytes(c), g.DisasmForCode(c))
		fmt.Printf("traces:")
		for _, t := range g.TracesForCode(c) {
			fmt.Printf(" %d", t)
		}
		fmt.Println()
	}
	if *trace >= 0 {
		t := uint32(*trace)
		fmt.Printf("trace %d: code %d\n", t, g.CodeForTrace(t))
		for _, use := range g.RegUsesForTrace(t) {
			r := g.ResolveRegUse(use)
			fmt.Printf("  reg use %d: 0x%x-0x%x from trace %d\n", use, r.Start, r.End, r.Trace)
		}
		for _, use := range g.MemUsesForTrace(t) {
			r := g.ResolveMemUse(use)
			fmt.Printf("  mem use %d: 0x%x-0x%x from trace %d\n", use, r.Start, r.End, r.Trace)
		}
	}
	if *regUse >= 0 {
		fmt.Printf("reg use %d: trace %d\n", *regUse, g.TraceForRegUse(uint32(*regUse)))
	}
	if *memUse >= 0 {
		fmt.Printf("mem use %d: trace %d\n", *memUse, g.TraceForMemUse(uint32(*memUse)))
	}
	return nil
}
