// Package tracegen assembles synthetic trace files in any of the four
// (endianness, word size) flavors. It exists for tests and tooling; the
// real producer is the instrumentation tool.
package tracegen

import (
	"bytes"
	"encoding/binary"
	"os"

	"memtrace/internal/wire"
)

// Writer accumulates an in-memory trace image.
type Writer struct {
	buf   bytes.Buffer
	codec wire.Codec
}

// New starts a trace with its header record.
func New(order wire.Endianness, wordSize int, machine wire.MachineType) *Writer {
	w := &Writer{codec: wire.Codec{Order: order, WordSize: wordSize}}
	w.buf.Write(magicBytes(order, wordSize))
	w.u16(8) // header length, a whole number of words on both widths
	w.u16(uint16(machine))
	w.pad(wire.HeaderLen)
	return w
}

func magicBytes(order wire.Endianness, wordSize int) []byte {
	digit := byte('0' + wordSize)
	if order == wire.Big {
		return []byte{'M', digit}
	}
	return []byte{digit, 'M'}
}

// LdSt appends a value access record.
func (w *Writer) LdSt(tag wire.Tag, seq uint32, addr uint64, value []byte) {
	w.record(tag, func() {
		w.u32(seq)
		w.word(addr)
		w.buf.Write(value)
	})
}

// Insn appends a static instruction declaration.
func (w *Writer) Insn(seq uint32, pc uint64, opcode []byte) {
	w.record(wire.TagInsn, func() {
		w.u32(seq)
		w.word(pc)
		w.buf.Write(opcode)
	})
}

// InsnExec appends an instruction execution marker.
func (w *Writer) InsnExec(seq uint32) {
	w.record(wire.TagInsnExec, func() {
		w.u32(seq)
	})
}

// LdStNx appends a size-only register access record.
func (w *Writer) LdStNx(tag wire.Tag, seq uint32, addr, size uint64) {
	w.record(tag, func() {
		w.u32(seq)
		w.word(addr)
		w.word(size)
	})
}

// Mmap appends a mapping record. end is inclusive, as on the wire. The
// start field sits at one word past the record start, so on 8-byte
// words the TLV header is followed by four bytes of padding.
func (w *Writer) Mmap(start, end, flags uint64, name string) {
	w.record(wire.TagMmap, func() {
		for n := w.codec.WordSize - wire.TLVLen; n > 0; n-- {
			w.buf.WriteByte(0)
		}
		w.word(start)
		w.word(end)
		w.word(flags)
		w.buf.WriteString(name)
		w.buf.WriteByte(0)
	})
}

// record writes the TLV header, the payload, then the length backpatch
// and alignment padding.
func (w *Writer) record(tag wire.Tag, payload func()) {
	start := w.buf.Len()
	w.u16(uint16(tag))
	w.u16(0) // patched below
	payload()
	length := w.buf.Len() - start
	w.patchU16(start+2, uint16(length))
	w.pad(length)
}

// pad aligns a record of the given unpadded length up to a word.
func (w *Writer) pad(length int) {
	for n := w.codec.AlignUp(length) - length; n > 0; n-- {
		w.buf.WriteByte(0)
	}
}

func (w *Writer) u16(v uint16) {
	var b [2]byte
	w.order().PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) u32(v uint32) {
	var b [4]byte
	w.order().PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) word(v uint64) {
	if w.codec.WordSize == 4 {
		w.u32(uint32(v))
		return
	}
	var b [8]byte
	w.order().PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) patchU16(off int, v uint16) {
	w.order().PutUint16(w.buf.Bytes()[off:], v)
}

func (w *Writer) order() binary.ByteOrder {
	if w.codec.Order == wire.Big {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Bytes returns the assembled trace image.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// WriteFile writes the trace image to path.
func (w *Writer) WriteFile(path string) error {
	return os.WriteFile(path, w.buf.Bytes(), 0o644)
}
