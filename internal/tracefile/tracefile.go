// Package tracefile reads a recorded trace through a read-only memory
// mapping and walks its TLV records.
package tracefile

import (
	"errors"
	"fmt"
	"io"
	"os"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"memtrace/internal/wire"
)

var (
	// ErrNotFound reports a seek past the last instruction.
	ErrNotFound = errors.New("tracefile: no such instruction")
)

// Trace owns the mapping of one trace file. Not safe for concurrent use.
type Trace struct {
	data    []byte
	codec   wire.Codec
	machine wire.MachineType
	bodyOff int
	cur     int
	index   uint64 // entry index of the record at cur
}

// Open maps the file and validates the magic and the header record.
func Open(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "tracefile: open")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "tracefile: stat")
	}
	if info.Size() < 2 {
		return nil, fmt.Errorf("%w: %d-byte file", wire.ErrInvalidFormat, info.Size())
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "tracefile: mmap")
	}

	t := &Trace{data: data}
	if err := t.init(); err != nil {
		unix.Munmap(data)
		return nil, err
	}
	return t, nil
}

func (t *Trace) init() error {
	codec, err := wire.DecodeMagic(t.data[0], t.data[1])
	if err != nil {
		return err
	}
	t.codec = codec
	if len(t.data) < wire.HeaderLen {
		return fmt.Errorf("%w: truncated header", wire.ErrInvalidFormat)
	}
	length := int(codec.U16(t.data[2:]))
	aligned := codec.AlignUp(length)
	if length < wire.HeaderLen || aligned > len(t.data) {
		return fmt.Errorf("%w: header length %d", wire.ErrInvalidFormat, length)
	}
	t.machine = wire.MachineType(codec.U16(t.data[4:]))
	t.bodyOff = aligned
	t.cur = aligned
	return nil
}

// Close unmaps the trace. Entry values handed out by Next become invalid.
func (t *Trace) Close() error {
	if t.data == nil {
		return nil
	}
	data := t.data
	t.data = nil
	return unix.Munmap(data)
}

func (t *Trace) Endianness() wire.Endianness { return t.codec.Order }
func (t *Trace) WordSize() int               { return t.codec.WordSize }
func (t *Trace) Machine() wire.MachineType   { return t.machine }
func (t *Trace) Codec() wire.Codec           { return t.codec }

// Size returns the mapped file size in bytes.
func (t *Trace) Size() int { return len(t.data) }

// Rewind repositions the cursor to the first record after the header.
func (t *Trace) Rewind() {
	t.cur = t.bodyOff
	t.index = 0
}

// Next decodes the record under the cursor and advances past it.
// Returns io.EOF at end of stream; any malformed record is a format
// error, never silently skipped.
func (t *Trace) Next() (wire.Entry, error) {
	if t.cur == len(t.data) {
		return nil, io.EOF
	}
	if t.cur+wire.TLVLen > len(t.data) {
		return nil, fmt.Errorf("%w: truncated TLV at %#x", wire.ErrInvalidFormat, t.cur)
	}
	length := int(t.codec.U16(t.data[t.cur+2:]))
	if length < wire.TLVLen {
		return nil, fmt.Errorf("%w: TLV length %d at %#x", wire.ErrInvalidFormat, length, t.cur)
	}
	aligned := t.codec.AlignUp(length)
	if t.cur+aligned > len(t.data) {
		return nil, fmt.Errorf("%w: record at %#x runs past end of file", wire.ErrInvalidFormat, t.cur)
	}
	entry, err := wire.DecodeEntry(t.codec, t.index, t.data[t.cur:t.cur+length])
	if err != nil {
		return nil, err
	}
	t.cur += aligned
	t.index++
	return entry, nil
}

// SeekInsn positions the cursor at the first record of the k-th dynamic
// instruction. Instructions are counted by distinct insnSeq runs over
// the records that carry a sequence number.
func (t *Trace) SeekInsn(k uint32) error {
	t.Rewind()
	insnIndex := ^uint64(0)
	prevSeq := ^uint32(0)
	for {
		if t.cur == len(t.data) {
			return fmt.Errorf("%w: instruction %d", ErrNotFound, k)
		}
		prevCur, prevIndex := t.cur, t.index
		entry, err := t.Next()
		if err != nil {
			return err
		}
		if seq, ok := wire.InsnSeqOf(entry); ok && seq != prevSeq {
			insnIndex++
			prevSeq = seq
		}
		if insnIndex == uint64(k) {
			t.cur, t.index = prevCur, prevIndex
			return nil
		}
	}
}
