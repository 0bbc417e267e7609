package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"memtrace/internal/render"
	"memtrace/internal/tracefile"
)

func cmdDump(args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	trace := fs.String("trace", "", "path to the trace file")
	start := fs.Uint64("start", 0, "first entry index to print")
	end := fs.Uint64("end", 0, "one past the last entry index to print (0 = all)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *trace == "" {
		return fmt.Errorf("--trace is required")
	}

	t, err := tracefile.Open(*trace)
	if err != nil {
		return err
	}
	defer t.Close()

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	return render.Stream(w, t, render.StreamOptions{Start: *start, End: *end})
}
