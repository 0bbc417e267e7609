package mmvec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type record struct {
	A uint64
	B uint32
	C uint32
}

func TestAppendAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records")
	v, err := Create[record](path)
	if err != nil {
		t.Fatal(err)
	}
	want := []record{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}
	for _, r := range want {
		if err := v.Append(r); err != nil {
			t.Fatal(err)
		}
	}
	if v.Len() != 3 {
		t.Fatalf("Len = %d, want 3", v.Len())
	}
	if err := v.Close(); err != nil {
		t.Fatal(err)
	}

	v2, err := Open[record](path)
	if err != nil {
		t.Fatal(err)
	}
	defer v2.Close()
	if v2.Len() != 3 || v2.Cap() != 3 {
		t.Fatalf("reopened Len/Cap = %d/%d, want 3/3", v2.Len(), v2.Cap())
	}
	if diff := cmp.Diff(want, v2.Slice()); diff != "" {
		t.Errorf("contents mismatch (-want +got):\n%s", diff)
	}
}

func TestCloseTruncatesToLogicalSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sized")
	v, err := Create[uint32](path)
	if err != nil {
		t.Fatal(err)
	}
	for i := uint32(0); i < 10; i++ {
		if err := v.Append(i); err != nil {
			t.Fatal(err)
		}
	}
	if v.Cap() <= 10 {
		t.Fatalf("Cap = %d, expected growth beyond 10", v.Cap())
	}
	if err := v.Close(); err != nil {
		t.Fatal(err)
	}
	// The file now holds the 8-byte count and ten 4-byte elements.
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 8+10*4 {
		t.Errorf("file size = %d, want %d", info.Size(), 8+10*4)
	}
	// Reopen sees the stored length as both Len and Cap.
	v2, err := Open[uint32](path)
	if err != nil {
		t.Fatal(err)
	}
	defer v2.Close()
	if v2.Len() != 10 || v2.Cap() != 10 {
		t.Errorf("Len/Cap = %d/%d, want 10/10", v2.Len(), v2.Cap())
	}
}

func TestMutateAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mut")
	v, err := Create[uint64](path)
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Append(41); err != nil {
		t.Fatal(err)
	}
	if err := v.Close(); err != nil {
		t.Fatal(err)
	}
	v2, err := Open[uint64](path)
	if err != nil {
		t.Fatal(err)
	}
	defer v2.Close()
	*v2.At(0) = 42
	if got := v2.Slice()[0]; got != 42 {
		t.Errorf("At(0) = %d, want 42", got)
	}
}

func TestCreateTempIsUnlinked(t *testing.T) {
	dir := t.TempDir()
	v, err := CreateTemp[record](filepath.Join(dir, "scratch"))
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()
	if err := v.Append(record{A: 1}); err != nil {
		t.Fatal(err)
	}
	entries, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("temp vector left files behind: %v", entries)
	}
}

func TestAppendSliceAndResize(t *testing.T) {
	v, err := CreateTemp[byte](filepath.Join(t.TempDir(), "bytes"))
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()
	if err := v.AppendSlice([]byte("hello ")); err != nil {
		t.Fatal(err)
	}
	if err := v.AppendSlice([]byte("world")); err != nil {
		t.Fatal(err)
	}
	if got := string(v.Slice()); got != "hello world" {
		t.Errorf("contents = %q", got)
	}
	if err := v.Resize(13); err != nil {
		t.Fatal(err)
	}
	if v.Len() != 13 || v.Slice()[12] != 0 {
		t.Errorf("Resize did not zero-fill: len=%d tail=%v", v.Len(), v.Slice()[11:])
	}
	if err := v.Resize(5); err != nil {
		t.Fatal(err)
	}
	if got := string(v.Slice()); got != "hello" {
		t.Errorf("after shrink = %q", got)
	}
}

func TestReserveKeepsContents(t *testing.T) {
	v, err := CreateTemp[uint32](filepath.Join(t.TempDir(), "res"))
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()
	for i := uint32(0); i < 100; i++ {
		if err := v.Append(i); err != nil {
			t.Fatal(err)
		}
	}
	if err := v.Reserve(v.Cap() + 1000); err != nil {
		t.Fatal(err)
	}
	for i, got := range v.Slice() {
		if got != uint32(i) {
			t.Fatalf("element %d = %d after Reserve", i, got)
		}
	}
}
