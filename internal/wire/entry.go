package wire

import (
	"bytes"
	"fmt"
)

// TLV header: 16-bit tag, 16-bit length. The length covers the header
// itself; the cursor stride is the length rounded up to the word size.
const (
	TLVLen    = 4
	HeaderLen = TLVLen + 2 // TLV + 16-bit machine type
)

// Record layouts after the TLV header (offsets in bytes, W = word size):
//
//	LOAD/STORE/REG/GET_REG/PUT_REG:  +4 insnSeq u32, +8 addr W, +8+W value
//	INSN:                            +4 insnSeq u32, +8 pc W, +8+W opcode
//	INSN_EXEC:                       +4 insnSeq u32
//	GET_REG_NX/PUT_REG_NX:           +4 insnSeq u32, +8 addr W, +8+W size W
//	MMAP:                            +W start W, +2W end W, +3W flags W,
//	                                 +4W NUL-terminated name
const (
	seqOffset  = TLVLen
	addrOffset = seqOffset + 4
)

// Entry is one decoded trace record. Index is the entry's position in
// the stream, counting from the first record after the header.
type Entry interface {
	EntryIndex() uint64
	EntryTag() Tag
}

// LdStEntry is a value access: LOAD, STORE, REG, GET_REG or PUT_REG.
// Value aliases the trace mapping; it is valid while the trace is open.
type LdStEntry struct {
	Index   uint64
	Tag     Tag
	InsnSeq uint32
	Addr    uint64
	Value   []byte
}

func (e *LdStEntry) EntryIndex() uint64 { return e.Index }
func (e *LdStEntry) EntryTag() Tag      { return e.Tag }

// InsnEntry declares a static instruction: its pc and opcode bytes.
type InsnEntry struct {
	Index   uint64
	InsnSeq uint32
	PC      uint64
	Bytes   []byte
}

func (e *InsnEntry) EntryIndex() uint64 { return e.Index }
func (e *InsnEntry) EntryTag() Tag      { return TagInsn }

// InsnExecEntry marks one execution of a static instruction.
type InsnExecEntry struct {
	Index   uint64
	InsnSeq uint32
}

func (e *InsnExecEntry) EntryIndex() uint64 { return e.Index }
func (e *InsnExecEntry) EntryTag() Tag      { return TagInsnExec }

// LdStNxEntry is a register access with the value omitted:
// GET_REG_NX or PUT_REG_NX.
type LdStNxEntry struct {
	Index   uint64
	Tag     Tag
	InsnSeq uint32
	Addr    uint64
	Size    uint64
}

func (e *LdStNxEntry) EntryIndex() uint64 { return e.Index }
func (e *LdStNxEntry) EntryTag() Tag      { return e.Tag }

// MmapEntry describes a mapping of the traced address space. End is
// inclusive as stored on the wire.
type MmapEntry struct {
	Index uint64
	Start uint64
	End   uint64
	Flags uint64
	Name  string
}

func (e *MmapEntry) EntryIndex() uint64 { return e.Index }
func (e *MmapEntry) EntryTag() Tag      { return TagMmap }

// Mmap flag bits, matching POSIX PROT_*.
const (
	MmapRead  = 1 << 0
	MmapWrite = 1 << 1
	MmapExec  = 1 << 2
)

// DecodeEntry decodes one record. rec is the unpadded record: exactly
// the TLV length bytes, TLV header included.
func DecodeEntry(c Codec, index uint64, rec []byte) (Entry, error) {
	tag := Tag(c.U16(rec))
	switch tag {
	case TagLoad, TagStore, TagReg, TagGetReg, TagPutReg:
		valueOffset := addrOffset + c.WordSize
		if len(rec) < valueOffset {
			return nil, fmt.Errorf("%w: %s record of %d bytes", ErrInvalidFormat, tag, len(rec))
		}
		return &LdStEntry{
			Index:   index,
			Tag:     tag,
			InsnSeq: c.U32(rec[seqOffset:]),
			Addr:    c.Word(rec[addrOffset:]),
			Value:   rec[valueOffset:],
		}, nil
	case TagInsn:
		valueOffset := addrOffset + c.WordSize
		if len(rec) < valueOffset {
			return nil, fmt.Errorf("%w: INSN record of %d bytes", ErrInvalidFormat, len(rec))
		}
		return &InsnEntry{
			Index:   index,
			InsnSeq: c.U32(rec[seqOffset:]),
			PC:      c.Word(rec[addrOffset:]),
			Bytes:   rec[valueOffset:],
		}, nil
	case TagInsnExec:
		if len(rec) < seqOffset+4 {
			return nil, fmt.Errorf("%w: INSN_EXEC record of %d bytes", ErrInvalidFormat, len(rec))
		}
		return &InsnExecEntry{
			Index:   index,
			InsnSeq: c.U32(rec[seqOffset:]),
		}, nil
	case TagGetRegNx, TagPutRegNx:
		sizeOffset := addrOffset + c.WordSize
		if len(rec) < sizeOffset+c.WordSize {
			return nil, fmt.Errorf("%w: %s record of %d bytes", ErrInvalidFormat, tag, len(rec))
		}
		return &LdStNxEntry{
			Index:   index,
			Tag:     tag,
			InsnSeq: c.U32(rec[seqOffset:]),
			Addr:    c.Word(rec[addrOffset:]),
			Size:    c.Word(rec[sizeOffset:]),
		}, nil
	case TagMmap:
		w := c.WordSize
		nameOffset := 4 * w
		if len(rec) < nameOffset {
			return nil, fmt.Errorf("%w: MMAP record of %d bytes", ErrInvalidFormat, len(rec))
		}
		name := rec[nameOffset:]
		nul := bytes.IndexByte(name, 0)
		if nul < 0 {
			return nil, fmt.Errorf("%w: MMAP name is not NUL-terminated", ErrInvalidFormat)
		}
		return &MmapEntry{
			Index: index,
			Start: c.Word(rec[w:]),
			End:   c.Word(rec[2*w:]),
			Flags: c.Word(rec[3*w:]),
			Name:  string(name[:nul]),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown tag %#04x", ErrInvalidFormat, uint16(tag))
	}
}

// InsnSeqOf returns the instruction sequence number carried by the
// entry. INSN and MMAP records do not advance the instruction counter.
func InsnSeqOf(e Entry) (uint32, bool) {
	switch e := e.(type) {
	case *LdStEntry:
		return e.InsnSeq, true
	case *InsnExecEntry:
		return e.InsnSeq, true
	case *LdStNxEntry:
		return e.InsnSeq, true
	default:
		return 0, false
	}
}
