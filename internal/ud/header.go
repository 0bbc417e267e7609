package ud

import (
	"encoding/binary"
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"

	"memtrace/internal/wire"
)

// The header file records the persisted graph's format: a two-byte
// magic in the writer's host byte order (the trace magic scheme), the
// traced program's machine type and its endianness.
const headerFileSize = 6

func writeHeader(tmpl Template, wordSize int, machine wire.MachineType, endian wire.Endianness) error {
	var buf [headerFileSize]byte
	magic := wire.EncodeMagic(wordSize)
	copy(buf[:2], magic[:])
	binary.NativeEndian.PutUint16(buf[2:], uint16(machine))
	binary.NativeEndian.PutUint16(buf[4:], uint16(endian))
	if err := os.WriteFile(tmpl.File("header"), buf[:], 0o644); err != nil {
		return pkgerrors.Wrap(err, "ud: write header")
	}
	return nil
}

// readHeader decodes a header file. A graph written on a big-endian
// host spells its magic M4/M8, a little-endian host 4M/8M; both
// encodings of the same word size are accepted, and the magic picks
// the byte order for the remaining fields.
func readHeader(tmpl Template) (wordSize int, machine wire.MachineType, endian wire.Endianness, err error) {
	buf, err := os.ReadFile(tmpl.File("header"))
	if err != nil {
		return 0, 0, 0, pkgerrors.Wrap(err, "ud: read header")
	}
	if len(buf) != headerFileSize {
		return 0, 0, 0, fmt.Errorf("%w: header file of %d bytes", wire.ErrInvalidFormat, len(buf))
	}
	var order binary.ByteOrder
	switch {
	case buf[0] == 'M' && (buf[1] == '4' || buf[1] == '8'):
		wordSize = int(buf[1] - '0')
		order = binary.BigEndian
	case buf[1] == 'M' && (buf[0] == '4' || buf[0] == '8'):
		wordSize = int(buf[0] - '0')
		order = binary.LittleEndian
	default:
		return 0, 0, 0, fmt.Errorf("%w: bad header magic %q%q", wire.ErrInvalidFormat, buf[0], buf[1])
	}
	machine = wire.MachineType(order.Uint16(buf[2:]))
	endian = wire.Endianness(order.Uint16(buf[4:]))
	return wordSize, machine, endian, nil
}
