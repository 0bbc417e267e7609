package tracefile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"memtrace/internal/tracegen"
	"memtrace/internal/wire"
)

func writeTrace(t *testing.T, w *tracegen.Writer) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.bin")
	if err := w.WriteFile(path); err != nil {
		t.Fatal(err)
	}
	return path
}

// smallTrace is a two-instruction trace: a register write, then a read
// of the same register.
func smallTrace(order wire.Endianness, wordSize int) *tracegen.Writer {
	w := tracegen.New(order, wordSize, wire.EM386)
	w.LdSt(wire.TagPutReg, 1, 0x00, []byte{0xef, 0xbe, 0xad, 0xde})
	w.Insn(1, 0x400000, []byte{0x90})
	w.InsnExec(1)
	w.LdSt(wire.TagGetReg, 2, 0x00, []byte{0xef, 0xbe, 0xad, 0xde})
	w.InsnExec(2)
	return w
}

func TestOpenRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.bin")
	if err := os.WriteFile(path, []byte("XXtrailing"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); !errors.Is(err, wire.ErrInvalidFormat) {
		t.Fatalf("Open err = %v, want ErrInvalidFormat", err)
	}
}

func TestIterateFourFlavors(t *testing.T) {
	for _, order := range []wire.Endianness{wire.Little, wire.Big} {
		for _, wordSize := range []int{4, 8} {
			tr, err := Open(writeTrace(t, smallTrace(order, wordSize)))
			if err != nil {
				t.Fatalf("%v/%d: Open: %v", order, wordSize, err)
			}
			if tr.Endianness() != order || tr.WordSize() != wordSize {
				t.Fatalf("%v/%d: got %v/%d", order, wordSize, tr.Endianness(), tr.WordSize())
			}
			if tr.Machine() != wire.EM386 {
				t.Errorf("machine = %v, want EM_386", tr.Machine())
			}

			var tags []wire.Tag
			for {
				entry, err := tr.Next()
				if err == io.EOF {
					break
				}
				if err != nil {
					t.Fatalf("%v/%d: Next: %v", order, wordSize, err)
				}
				tags = append(tags, entry.EntryTag())
			}
			want := []wire.Tag{wire.TagPutReg, wire.TagInsn, wire.TagInsnExec, wire.TagGetReg, wire.TagInsnExec}
			if len(tags) != len(want) {
				t.Fatalf("%v/%d: %d entries, want %d", order, wordSize, len(tags), len(want))
			}
			for i := range want {
				if tags[i] != want[i] {
					t.Errorf("%v/%d: entry %d tag = %v, want %v", order, wordSize, i, tags[i], want[i])
				}
			}
			tr.Close()
		}
	}
}

func TestEntryValues(t *testing.T) {
	tr, err := Open(writeTrace(t, smallTrace(wire.Big, 8)))
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	entry, err := tr.Next()
	if err != nil {
		t.Fatal(err)
	}
	put := entry.(*wire.LdStEntry)
	if put.InsnSeq != 1 || put.Addr != 0 || len(put.Value) != 4 {
		t.Errorf("PUT_REG = %+v", put)
	}

	entry, err = tr.Next()
	if err != nil {
		t.Fatal(err)
	}
	insn := entry.(*wire.InsnEntry)
	if insn.PC != 0x400000 || len(insn.Bytes) != 1 || insn.Bytes[0] != 0x90 {
		t.Errorf("INSN = %+v", insn)
	}
}

func TestTruncatedRecord(t *testing.T) {
	w := smallTrace(wire.Little, 4)
	full := w.Bytes()
	path := filepath.Join(t.TempDir(), "trunc.bin")
	if err := os.WriteFile(path, full[:len(full)-2], 0o644); err != nil {
		t.Fatal(err)
	}
	tr, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
	for {
		_, err := tr.Next()
		if err == io.EOF {
			t.Fatal("reached EOF, want format error")
		}
		if err != nil {
			if !errors.Is(err, wire.ErrInvalidFormat) {
				t.Fatalf("err = %v, want ErrInvalidFormat", err)
			}
			return
		}
	}
}

func TestSeekInsn(t *testing.T) {
	w := tracegen.New(wire.Little, 4, wire.EM386)
	// Instruction 0: seq 5 (two records). Instruction 1: seq 3.
	// Instruction 2: seq 5 again (a re-execution). MMAP and INSN do
	// not advance the counter.
	w.Mmap(0x1000, 0x1fff, 5, "libc.so")
	w.LdSt(wire.TagPutReg, 5, 0x10, []byte{1, 2, 3, 4})
	w.InsnExec(5)
	w.Insn(3, 0x400000, []byte{0x90})
	w.InsnExec(3)
	w.InsnExec(5)
	tr, err := Open(writeTrace(t, w))
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	wantSeq := []uint32{5, 3, 5}
	for k, want := range wantSeq {
		if err := tr.SeekInsn(uint32(k)); err != nil {
			t.Fatalf("SeekInsn(%d): %v", k, err)
		}
		entry, err := tr.Next()
		if err != nil {
			t.Fatalf("Next after SeekInsn(%d): %v", k, err)
		}
		seq, ok := wire.InsnSeqOf(entry)
		if !ok || seq != want {
			t.Errorf("SeekInsn(%d) landed on %v (seq %d), want seq %d", k, entry.EntryTag(), seq, want)
		}
	}

	if err := tr.SeekInsn(3); !errors.Is(err, ErrNotFound) {
		t.Errorf("SeekInsn(3) err = %v, want ErrNotFound", err)
	}
}

func TestAlignedWalkCoversFile(t *testing.T) {
	w := smallTrace(wire.Little, 8)
	tr, err := Open(writeTrace(t, w))
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
	for {
		if _, err := tr.Next(); err != nil {
			if err != io.EOF {
				t.Fatalf("Next: %v", err)
			}
			break
		}
	}
	// Next returned EOF only because the cursor landed exactly on the
	// file end: the aligned record strides sum to the file size.
}
