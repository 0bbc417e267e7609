// Package mmvec implements a file-backed growable vector of fixed-size
// elements. The file stores a 64-bit element count followed by the
// elements themselves; the mapping is shared, so the count is durable.
package mmvec

import (
	"errors"
	"os"
	"path/filepath"
	"unsafe"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrAlloc reports that growth or rehash could not acquire space.
var ErrAlloc = errors.New("mmvec: cannot grow")

const (
	headerSize = 8
	// Growth quantum. Appends are amortized O(1); files are sparse
	// until written, and Close truncates back to the logical size.
	growBytes = 1 << 30
)

// Vector is a file-backed vector of T. T must be a fixed-size type with
// no pointers. Element pointers and slices obtained from the vector are
// valid only until the next growing mutation. Not safe for concurrent
// mutation.
type Vector[T any] struct {
	f        *os.File
	data     []byte
	capacity int
}

func elemSize[T any]() int {
	var t T
	return int(unsafe.Sizeof(t))
}

// Create truncates or creates a persistent vector file.
func Create[T any](path string) (*Vector[T], error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "mmvec: create")
	}
	return initCreated[T](f)
}

// CreateTemp creates a vector in an unlinked temporary file placed next
// to path, which serves only as a name prefix.
func CreateTemp[T any](path string) (*Vector[T], error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, base+"-*")
	if err != nil {
		return nil, pkgerrors.Wrap(err, "mmvec: create temp")
	}
	if err := os.Remove(f.Name()); err != nil {
		f.Close()
		return nil, pkgerrors.Wrap(err, "mmvec: unlink temp")
	}
	return initCreated[T](f)
}

func initCreated[T any](f *os.File) (*Vector[T], error) {
	if err := unix.Ftruncate(int(f.Fd()), headerSize); err != nil {
		f.Close()
		return nil, pkgerrors.Wrap(err, "mmvec: truncate")
	}
	data, err := unix.Mmap(int(f.Fd()), 0, headerSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, pkgerrors.Wrap(err, "mmvec: mmap")
	}
	v := &Vector[T]{f: f, data: data}
	v.setLen(0)
	return v, nil
}

// Open maps an existing vector file; capacity equals the stored length.
func Open[T any](path string) (*Vector[T], error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "mmvec: open")
	}
	var hdr [headerSize]byte
	if _, err := f.ReadAt(hdr[:], 0); err != nil {
		f.Close()
		return nil, pkgerrors.Wrap(err, "mmvec: read header")
	}
	size := int(*(*uint64)(unsafe.Pointer(&hdr[0])))
	data, err := unix.Mmap(int(f.Fd()), 0, headerSize+size*elemSize[T](),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, pkgerrors.Wrap(err, "mmvec: mmap")
	}
	return &Vector[T]{f: f, data: data, capacity: size}, nil
}

// Close truncates the file to its logical size, unmaps and closes it.
func (v *Vector[T]) Close() error {
	if v.data == nil {
		return nil
	}
	var firstErr error
	if err := unix.Ftruncate(int(v.f.Fd()), int64(headerSize+v.Len()*elemSize[T]())); err != nil {
		firstErr = pkgerrors.Wrap(err, "mmvec: truncate on close")
	}
	if err := unix.Munmap(v.data); err != nil && firstErr == nil {
		firstErr = pkgerrors.Wrap(err, "mmvec: munmap")
	}
	v.data = nil
	if err := v.f.Close(); err != nil && firstErr == nil {
		firstErr = pkgerrors.Wrap(err, "mmvec: close")
	}
	return firstErr
}

func (v *Vector[T]) lenPtr() *uint64 {
	return (*uint64)(unsafe.Pointer(&v.data[0]))
}

func (v *Vector[T]) setLen(n int) { *v.lenPtr() = uint64(n) }

// Len returns the logical element count.
func (v *Vector[T]) Len() int { return int(*v.lenPtr()) }

// Cap returns the mapped capacity in elements.
func (v *Vector[T]) Cap() int { return v.capacity }

// Slice returns a typed view of the elements. The view is invalidated
// by any growing mutation.
func (v *Vector[T]) Slice() []T {
	if v.capacity == 0 {
		return nil
	}
	p := unsafe.Add(unsafe.Pointer(&v.data[0]), headerSize)
	return unsafe.Slice((*T)(p), v.capacity)[:v.Len()]
}

// At returns a pointer to element i, valid until the next growing
// mutation.
func (v *Vector[T]) At(i int) *T {
	return &v.Slice()[i]
}

// Reserve ensures capacity for at least n elements. Either the new
// mapping is installed or the old one remains usable.
func (v *Vector[T]) Reserve(n int) error {
	if n <= v.capacity {
		return nil
	}
	newBytes := headerSize + n*elemSize[T]()
	if err := unix.Ftruncate(int(v.f.Fd()), int64(newBytes)); err != nil {
		return pkgerrors.Wrapf(ErrAlloc, "truncate to %d bytes: %v", newBytes, err)
	}
	data, err := unix.Mremap(v.data, newBytes, unix.MREMAP_MAYMOVE)
	if err != nil {
		return pkgerrors.Wrapf(ErrAlloc, "remap to %d bytes: %v", newBytes, err)
	}
	v.data = data
	v.capacity = n
	return nil
}

func (v *Vector[T]) grow(need int) error {
	n := v.capacity + growBytes/elemSize[T]()
	if n < need {
		n = need
	}
	return v.Reserve(n)
}

// Append adds one element.
func (v *Vector[T]) Append(val T) error {
	n := v.Len()
	if n+1 > v.capacity {
		if err := v.grow(n + 1); err != nil {
			return err
		}
	}
	p := unsafe.Add(unsafe.Pointer(&v.data[0]), headerSize)
	unsafe.Slice((*T)(p), v.capacity)[n] = val
	v.setLen(n + 1)
	return nil
}

// AppendSlice adds all elements of vals.
func (v *Vector[T]) AppendSlice(vals []T) error {
	n := v.Len()
	if n+len(vals) > v.capacity {
		if err := v.grow(n + len(vals)); err != nil {
			return err
		}
	}
	p := unsafe.Add(unsafe.Pointer(&v.data[0]), headerSize)
	copy(unsafe.Slice((*T)(p), v.capacity)[n:], vals)
	v.setLen(n + len(vals))
	return nil
}

// Resize sets the logical length to n, zero-filling any new elements.
func (v *Vector[T]) Resize(n int) error {
	if n > v.capacity {
		if err := v.grow(n); err != nil {
			return err
		}
	}
	old := v.Len()
	if n > old {
		var zero T
		p := unsafe.Add(unsafe.Pointer(&v.data[0]), headerSize)
		s := unsafe.Slice((*T)(p), v.capacity)
		for i := old; i < n; i++ {
			s[i] = zero
		}
	}
	v.setLen(n)
	return nil
}
