package ud

import (
	"fmt"
	"io"

	"memtrace/internal/tracefile"
	"memtrace/internal/wire"
)

// Graph is a built or reopened use-definition graph. Building is
// single-threaded; a reopened graph must be treated as read-only.
type Graph interface {
	Machine() wire.MachineType
	Endianness() wire.Endianness
	WordSize() int

	NumCodes() uint32
	NumTraces() uint32
	RegUseCount() uint32
	MemUseCount() uint32
	RegDefCount() uint32
	MemDefCount() uint32

	CodesForPC(pc uint64) []uint32
	PCForCode(code uint32) uint64
	CodeBytes(code uint32) []byte
	DisasmForCode(code uint32) string
	TracesForCode(code uint32) []uint32
	CodeForTrace(trace uint32) uint32
	RegUsesForTrace(trace uint32) []uint32
	MemUsesForTrace(trace uint32) []uint32
	TraceForRegUse(use uint32) uint32
	TraceForMemUse(use uint32) uint32
	ResolveRegUse(use uint32) ResolvedUse
	ResolveMemUse(use uint32) ResolvedUse
	RegDefsForTrace(trace uint32) []AddrRange
	MemDefsForTrace(trace uint32) []AddrRange

	Close() error
}

// BuildOptions configures a build.
type BuildOptions struct {
	// Binary is the output path template ("{}" placeholder). Empty
	// means the graph is backed by unlinked temporary files and
	// vanishes on Close.
	Binary string
	// Verbose, when set, receives one line per flushed instruction.
	Verbose io.Writer
}

// Build replays a trace file into a new graph.
func Build(tracePath string, opts BuildOptions) (Graph, error) {
	t, err := tracefile.Open(tracePath)
	if err != nil {
		return nil, err
	}
	defer t.Close()
	return BuildFrom(t, opts)
}

// BuildFrom replays an open trace from its current position. A trace
// file averages on the order of 128 bytes per executed instruction;
// vector reservations start from that estimate.
func BuildFrom(t *tracefile.Trace, opts BuildOptions) (Graph, error) {
	expected := t.Size() / 128
	if t.WordSize() == 4 {
		return build[uint32](t, opts, expected)
	}
	return build[uint64](t, opts, expected)
}

func build[W word](t *tracefile.Trace, opts BuildOptions, expectedInsns int) (Graph, error) {
	mode := ModeTemp
	tmpl := tempTemplate()
	if opts.Binary != "" {
		var err error
		if tmpl, err = ParseTemplate(opts.Binary); err != nil {
			return nil, err
		}
		mode = ModeCreate
	}

	u := &ud[W]{verbose: opts.Verbose}
	if err := u.init(tmpl, mode, t.Machine(), t.Endianness(), expectedInsns); err != nil {
		u.Close()
		return nil, err
	}
	for {
		entry, err := t.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			u.Close()
			return nil, err
		}
		if err := u.handle(entry); err != nil {
			u.Close()
			return nil, err
		}
	}
	if err := u.complete(); err != nil {
		u.Close()
		return nil, err
	}
	return u, nil
}

// Load reopens a persisted graph for querying. Nothing is ever
// partially returned: any mismatch or open failure yields a nil graph.
func Load(pathTemplate string) (Graph, error) {
	tmpl, err := ParseTemplate(pathTemplate)
	if err != nil {
		return nil, err
	}
	ws, machine, endian, err := readHeader(tmpl)
	if err != nil {
		return nil, err
	}
	switch ws {
	case 4:
		return load[uint32](tmpl, machine, endian)
	case 8:
		return load[uint64](tmpl, machine, endian)
	default:
		return nil, fmt.Errorf("%w: word size %d", wire.ErrInvalidFormat, ws)
	}
}

func load[W word](tmpl Template, machine wire.MachineType, endian wire.Endianness) (Graph, error) {
	u := &ud[W]{}
	if err := u.init(tmpl, ModeOpen, machine, endian, 0); err != nil {
		u.Close()
		return nil, err
	}
	return u, nil
}
