// Package shmarena implements the growable, mmap-backed byte arena that
// backs both the main and ext shared-memory segments. Offsets into the
// arena are always relative (uint32 byte indices), never absolute
// pointers, so that a remap to a new virtual address never invalidates
// state held by a reader across processes. Growth through [Arena.Remap]
// never shrinks the mapping in place; [Arena.ShrinkTo] is the one
// explicit exception, used to compact after a rebuild.
package shmarena

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/myonlystarWang/sysrepo/internal/shmfile"
)

// ErrCorrupt is returned by accessors when an offset or length would read
// or write outside the mapped region.
var ErrCorrupt = errors.New("shmarena: out-of-range offset")

// Arena is a growable memory-mapped byte region backed by a regular file.
//
// The zero value is not usable; construct with [Open].
type Arena struct {
	fd   int
	base []byte
	size int64
	path string
}

// Open maps the file at path, creating it with perm (after applying
// umask) if absent. initSize is the size to truncate a newly created file
// to; it is ignored if the file already exists.
func Open(path string, perm uint32, umask int, initSize int64) (*Arena, bool, error) {
	fd, err := shmfile.OpenExisting(path)
	created := false

	switch {
	case errors.Is(err, shmfile.ErrNotExist):
		fd, err = shmfile.CreateExclusive(path, perm, umask)
		if err != nil {
			return nil, false, err
		}

		if err := shmfile.Ftruncate(fd, initSize); err != nil {
			_ = shmfile.Close(fd)

			return nil, false, err
		}

		created = true
	case err != nil:
		return nil, false, err
	}

	size, _, _, err := shmfile.Fstat(fd)
	if err != nil {
		_ = shmfile.Close(fd)

		return nil, false, err
	}

	base, err := mmapFull(fd, size)
	if err != nil {
		_ = shmfile.Close(fd)

		return nil, false, err
	}

	return &Arena{fd: fd, base: base, size: size, path: path}, created, nil
}

func mmapFull(fd int, size int64) ([]byte, error) {
	if size == 0 {
		// An empty mapping is not valid; callers must ftruncate before
		// mapping. Map a minimal placeholder so remap has a base to
		// Munmap from.
		return []byte{}, nil
	}

	base, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shmarena: mmap: %w", err)
	}

	return base, nil
}

// Size returns the current mapped size in bytes.
func (a *Arena) Size() int64 { return a.size }

// Path returns the backing file path.
func (a *Arena) Path() string { return a.path }

// Bytes exposes the raw mapped region. Callers must not retain slices
// derived from it across a [Arena.Remap] call, since the backing storage
// is unmapped and remapped at a potentially different address.
func (a *Arena) Bytes() []byte { return a.base }

// Remap grows the backing file to newSize and remaps it in place. newSize
// must be >= the current size; the arena never shrinks through this call
// (append-only growth per the SHM arena's growth contract; use [Arena.ShrinkTo]
// for the one place that needs to compact).
//
// newSize == 0 is a special case: re-stat the backing file and remap to
// its current on-disk length, without truncating. This lets a long-lived
// process that mapped the arena before a peer's StoreModules grew it pick
// up that growth on its own next access, rather than reading stale bounds
// and failing with ErrCorrupt on offsets the peer already wrote.
func (a *Arena) Remap(newSize int64) error {
	if newSize == 0 {
		onDisk, _, _, err := shmfile.Fstat(a.fd)
		if err != nil {
			return err
		}

		if onDisk == a.size {
			return nil
		}

		if onDisk < a.size {
			return fmt.Errorf("shmarena: backing file shrank to %d from %d: %w", onDisk, a.size, ErrCorrupt)
		}

		return a.remapTo(onDisk)
	}

	if newSize < a.size {
		return fmt.Errorf("shmarena: remap to %d smaller than current size %d: %w", newSize, a.size, ErrCorrupt)
	}

	if newSize == a.size {
		return nil
	}

	if err := shmfile.Ftruncate(a.fd, newSize); err != nil {
		return err
	}

	return a.remapTo(newSize)
}

// ShrinkTo truncates the backing file down to newSize and remaps it,
// compacting away trailing space a previous, larger build left unused.
// Unlike Remap, newSize < current size is the expected case here; this
// method exists solely for the exact-size compaction a full rebuild
// performs once its new layout size is known.
func (a *Arena) ShrinkTo(newSize int64) error {
	if newSize > a.size {
		return fmt.Errorf("shmarena: ShrinkTo %d larger than current size %d: %w", newSize, a.size, ErrCorrupt)
	}

	if newSize == a.size {
		return nil
	}

	if err := shmfile.Ftruncate(a.fd, newSize); err != nil {
		return err
	}

	return a.remapTo(newSize)
}

// remapTo unmaps the current mapping (if any) and maps newSize bytes of
// the backing file, updating a.base/a.size. The caller is responsible for
// the file already being newSize bytes long.
func (a *Arena) remapTo(newSize int64) error {
	if len(a.base) > 0 {
		if err := unix.Munmap(a.base); err != nil {
			return fmt.Errorf("shmarena: munmap for remap: %w", err)
		}
	}

	base, err := mmapFull(a.fd, newSize)
	if err != nil {
		return err
	}

	a.base = base
	a.size = newSize

	return nil
}

// Close unmaps and closes the backing file descriptor.
func (a *Arena) Close() error {
	if len(a.base) > 0 {
		if err := unix.Munmap(a.base); err != nil {
			return fmt.Errorf("shmarena: munmap: %w", err)
		}

		a.base = nil
	}

	return shmfile.Close(a.fd)
}

// Msync flushes the mapped region to the backing file, the msync(2)
// equivalent of an fsync after a header write for an already-mapped
// region.
func (a *Arena) Msync() error {
	if len(a.base) == 0 {
		return nil
	}

	if err := unix.Msync(a.base, unix.MS_SYNC); err != nil {
		return fmt.Errorf("shmarena: msync: %w", err)
	}

	return nil
}
