// Package disasm decodes instruction bytes to display text for the
// machines a trace can carry.
package disasm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/arch/arm/armasm"
	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/ppc64/ppc64asm"
	"golang.org/x/arch/x86/x86asm"

	"memtrace/internal/wire"
)

// Unknown is the display text for bytes that do not decode.
const Unknown = "<unknown>"

// ErrUnsupported reports a (machine, endianness, word size) combination
// no engine can be built for.
var ErrUnsupported = errors.New("disasm: unsupported machine/endianness/word size")

// Engine decodes the first instruction of a byte region.
type Engine struct {
	decode func(code []byte, pc uint64) (string, bool)
}

// New validates the machine triple and builds the matching engine.
func New(machine wire.MachineType, endianness wire.Endianness, wordSize int) (*Engine, error) {
	bad := func() error {
		return fmt.Errorf("%w: %s/%s/%d", ErrUnsupported, machine, endianness, wordSize)
	}
	switch machine {
	case wire.EM386:
		if endianness != wire.Little || wordSize != 4 {
			return nil, bad()
		}
		return &Engine{decode: decodeX86(32)}, nil
	case wire.EMX8664:
		if endianness != wire.Little || wordSize != 8 {
			return nil, bad()
		}
		return &Engine{decode: decodeX86(64)}, nil
	case wire.EMPPC64:
		if wordSize != 8 {
			return nil, bad()
		}
		return &Engine{decode: decodePPC64(byteOrder(endianness))}, nil
	case wire.EMARM:
		if wordSize != 4 {
			return nil, bad()
		}
		return &Engine{decode: decodeARM(endianness == wire.Big)}, nil
	case wire.EMAARCH64:
		if wordSize != 8 {
			return nil, bad()
		}
		return &Engine{decode: decodeARM64(endianness == wire.Big)}, nil
	case wire.EMS390:
		if endianness != wire.Big {
			return nil, bad()
		}
		// Tuple is valid but no Go decoder exists; everything
		// renders as Unknown.
		return &Engine{}, nil
	case wire.EMMIPS:
		if wordSize != 4 && wordSize != 8 {
			return nil, bad()
		}
		return &Engine{}, nil
	default:
		// EM_PPC and EM_NANOMIPS among them.
		return nil, bad()
	}
}

// Disasm returns the display text of the first instruction in code, or
// Unknown if it does not decode.
func (e *Engine) Disasm(code []byte, pc uint64) string {
	if e.decode == nil || len(code) == 0 {
		return Unknown
	}
	text, ok := e.decode(code, pc)
	if !ok {
		return Unknown
	}
	return text
}

func byteOrder(endianness wire.Endianness) binary.ByteOrder {
	if endianness == wire.Big {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func decodeX86(bits int) func([]byte, uint64) (string, bool) {
	return func(code []byte, pc uint64) (string, bool) {
		inst, err := x86asm.Decode(code, bits)
		if err != nil {
			return "", false
		}
		return x86asm.GNUSyntax(inst, pc, nil), true
	}
}

func decodePPC64(order binary.ByteOrder) func([]byte, uint64) (string, bool) {
	return func(code []byte, pc uint64) (string, bool) {
		inst, err := ppc64asm.Decode(code, order)
		if err != nil {
			return "", false
		}
		return ppc64asm.GNUSyntax(inst, pc), true
	}
}

func decodeARM(big bool) func([]byte, uint64) (string, bool) {
	return func(code []byte, pc uint64) (string, bool) {
		inst, err := armasm.Decode(wordLE(code, big), armasm.ModeARM)
		if err != nil {
			return "", false
		}
		return armasm.GNUSyntax(inst), true
	}
}

func decodeARM64(big bool) func([]byte, uint64) (string, bool) {
	return func(code []byte, pc uint64) (string, bool) {
		inst, err := arm64asm.Decode(wordLE(code, big))
		if err != nil {
			return "", false
		}
		// GNUSyntax leaves a trailing space after operand-less mnemonics.
		return strings.TrimSpace(arm64asm.GNUSyntax(inst)), true
	}
}

// wordLE presents a fixed-width instruction to the little-endian-only
// x/arch decoders, swapping if the trace is big-endian.
func wordLE(code []byte, big bool) []byte {
	if !big || len(code) < 4 {
		return code
	}
	swapped := make([]byte, 4)
	swapped[0], swapped[1], swapped[2], swapped[3] = code[3], code[2], code[1], code[0]
	return swapped
}
