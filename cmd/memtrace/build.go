package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/apex/log"

	"memtrace/internal/render"
	"memtrace/internal/ud"
)

func cmdBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	trace := fs.String("trace", "", "path to the trace file")
	binary := fs.String("binary", "", "output path template for the persisted graph")
	dotPath := fs.String("dot", "", "write the full graph as DOT")
	flowPath := fs.String("flow", "", "write the static-instruction flow summary as DOT")
	htmlPath := fs.String("html", "", "write the graph as an HTML table")
	csvTmpl := fs.String("csv", "", "path template for the CSV exports")
	verbose := fs.Bool("verbose", false, "print each instruction while building")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *trace == "" {
		return fmt.Errorf("--trace is required")
	}

	opts := ud.BuildOptions{Binary: *binary}
	if *verbose {
		opts.Verbose = os.Stdout
	}
	g, err := ud.Build(*trace, opts)
	if err != nil {
		return err
	}
	defer g.Close()

	log.WithFields(log.Fields{
		"machine": g.Machine().String(),
		"codes":   g.NumCodes(),
		"traces":  g.NumTraces(),
		"reg":     fmt.Sprintf("%d uses / %d defs", g.RegUseCount(), g.RegDefCount()),
		"mem":     fmt.Sprintf("%d uses / %d defs", g.MemUseCount(), g.MemDefCount()),
	}).Info("graph built")

	if *dotPath != "" {
		if err := writeFileWith(*dotPath, func(w *bufio.Writer) error {
			return render.DOT(w, g)
		}); err != nil {
			return err
		}
	}
	if *htmlPath != "" {
		if err := writeFileWith(*htmlPath, func(w *bufio.Writer) error {
			return render.HTML(w, g)
		}); err != nil {
			return err
		}
	}
	if *flowPath != "" {
		if err := os.WriteFile(*flowPath, []byte(render.FlowDOT(g, "memtrace flow")), 0o644); err != nil {
			return err
		}
	}
	if *csvTmpl != "" {
		if err := render.CSV(*csvTmpl, g); err != nil {
			return err
		}
	}
	return nil
}

func writeFileWith(path string, fill func(*bufio.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := fill(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
