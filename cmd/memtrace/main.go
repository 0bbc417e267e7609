package main

import (
	"fmt"
	"os"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
)

func main() {
	log.SetHandler(cli.New(os.Stderr))

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "dump":
		err = cmdDump(os.Args[2:])
	case "build":
		err = cmdBuild(os.Args[2:])
	case "query":
		err = cmdQuery(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `memtrace — use-definition analysis over recorded instruction traces

Usage:
  memtrace dump  --trace <file> [--start N] [--end N]       Print trace records
  memtrace build --trace <file> [--binary <tmpl>] [...]     Build a ud graph
  memtrace query --binary <tmpl> [--pc A|--code N|...]      Query a built graph

The --binary and --csv arguments are path templates containing one "{}"
placeholder, e.g. "out/memtrace.{}.bin".
`)
}
