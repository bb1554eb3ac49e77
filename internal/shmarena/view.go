package shmarena

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"
)

// U32 reads a little-endian uint32 at off without synchronization. Use
// [Arena.AtomicU32] for fields shared with concurrent writers in other
// processes (counters, flags, the generation word).
func (a *Arena) U32(off uint32) (uint32, error) {
	b, err := a.slice(off, 4)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(b), nil
}

// PutU32 writes v as little-endian at off.
func (a *Arena) PutU32(off uint32, v uint32) error {
	b, err := a.slice(off, 4)
	if err != nil {
		return err
	}

	binary.LittleEndian.PutUint32(b, v)

	return nil
}

// U64 reads a little-endian uint64 at off without synchronization.
func (a *Arena) U64(off uint32) (uint64, error) {
	b, err := a.slice(off, 8)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(b), nil
}

// PutU64 writes v as little-endian at off.
func (a *Arena) PutU64(off uint32, v uint64) error {
	b, err := a.slice(off, 8)
	if err != nil {
		return err
	}

	binary.LittleEndian.PutUint64(b, v)

	return nil
}

// AtomicU32 atomically loads the uint32 at off. Used for cross-process
// shared counters and flags (new_cid, new_sid, suspended, ...) so a
// concurrent reader never observes a torn value.
func (a *Arena) AtomicU32(off uint32) (uint32, error) {
	b, err := a.slice(off, 4)
	if err != nil {
		return 0, err
	}

	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&b[0]))), nil
}

// AtomicPutU32 atomically stores v at off.
func (a *Arena) AtomicPutU32(off uint32, v uint32) error {
	b, err := a.slice(off, 4)
	if err != nil {
		return err
	}

	atomic.StoreUint32((*uint32)(unsafe.Pointer(&b[0])), v)

	return nil
}

// AtomicAddU32 atomically adds delta to the uint32 at off and returns the
// new value. Backs the header's new_cid/new_sid/new_sub_id/new_evpipe_num
// monotonic counters.
func (a *Arena) AtomicAddU32(off uint32, delta uint32) (uint32, error) {
	b, err := a.slice(off, 4)
	if err != nil {
		return 0, err
	}

	return atomic.AddUint32((*uint32)(unsafe.Pointer(&b[0])), delta), nil
}

// AtomicU64 atomically loads the uint64 at off.
func (a *Arena) AtomicU64(off uint32) (uint64, error) {
	b, err := a.slice(off, 8)
	if err != nil {
		return 0, err
	}

	return atomic.LoadUint64((*uint64)(unsafe.Pointer(&b[0]))), nil
}

// AtomicPutU64 atomically stores v at off.
func (a *Arena) AtomicPutU64(off uint32, v uint64) error {
	b, err := a.slice(off, 8)
	if err != nil {
		return err
	}

	atomic.StoreUint64((*uint64)(unsafe.Pointer(&b[0])), v)

	return nil
}

// AtomicCASU64 attempts a compare-and-swap on the uint64 at off. Used by
// the seqlock generation bump (even -> odd -> even) so a single writer
// invariant can be enforced without a process-shared mutex primitive.
func (a *Arena) AtomicCASU64(off uint32, old, newVal uint64) (bool, error) {
	b, err := a.slice(off, 8)
	if err != nil {
		return false, err
	}

	return atomic.CompareAndSwapUint64((*uint64)(unsafe.Pointer(&b[0])), old, newVal), nil
}

// CString reads a NUL-terminated string starting at off, never scanning
// past the end of the mapped region. Returns ErrCorrupt if no terminator
// is found before the arena boundary, matching the "bounds-checked
// reference valid only until the next remap" contract.
func (a *Arena) CString(off uint32) (string, error) {
	if int(off) > len(a.base) {
		return "", fmt.Errorf("%w: cstring offset %d beyond arena size %d", ErrCorrupt, off, len(a.base))
	}

	rest := a.base[off:]

	for i, b := range rest {
		if b == 0 {
			return string(rest[:i]), nil
		}
	}

	return "", fmt.Errorf("%w: cstring at offset %d has no terminator", ErrCorrupt, off)
}

// PutCString writes s followed by a NUL terminator at off, returning the
// number of bytes written (len(s)+1).
func (a *Arena) PutCString(off uint32, s string) (uint32, error) {
	n := uint32(len(s)) + 1

	b, err := a.slice(off, n)
	if err != nil {
		return 0, err
	}

	copy(b, s)
	b[len(s)] = 0

	return n, nil
}

// Raw reads a raw byte slice of length n at off. The returned slice
// aliases the arena and must not be retained across a remap.
func (a *Arena) Raw(off, n uint32) ([]byte, error) {
	return a.slice(off, n)
}

// PutRaw copies src into the arena at off.
func (a *Arena) PutRaw(off uint32, src []byte) error {
	b, err := a.slice(off, uint32(len(src)))
	if err != nil {
		return err
	}

	copy(b, src)

	return nil
}

// slice returns a bounds-checked sub-slice of the arena.
func (a *Arena) slice(off, n uint32) ([]byte, error) {
	end := uint64(off) + uint64(n)
	if end > uint64(len(a.base)) {
		return nil, fmt.Errorf("%w: offset %d len %d exceeds arena size %d", ErrCorrupt, off, n, len(a.base))
	}

	return a.base[off:end], nil
}
