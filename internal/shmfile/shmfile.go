// Package shmfile provides the low-level, umask-controlled file primitives
// shared by the SHM arena and the create-lock: creating/opening backing
// files with a controlled umask, truncation, and raw fd lifecycle.
//
// Mirrors sysrepo's umask(SR_UMASK)/open()/umask(saved) dance so a newly
// created backing file gets exactly the requested permission bits
// regardless of the calling process's ambient umask.
package shmfile

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrNotExist is returned when a file was required to already exist.
var ErrNotExist = errors.New("shmfile: does not exist")

// OpenExisting opens path for read-write without creating it.
//
// Returns ErrNotExist if the file is absent.
func OpenExisting(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return -1, ErrNotExist
		}

		return -1, fmt.Errorf("shmfile: open %s: %w", path, err)
	}

	return fd, nil
}

// CreateExclusive creates path exclusively (O_CREAT|O_EXCL) with perm,
// applying umask exactly for the duration of the call so the resulting mode
// bits are deterministic regardless of the caller's ambient umask.
//
// Mirrors sr_shmmain_createlock_open: umask is swapped in, the syscall
// runs, and the previous umask is always restored.
func CreateExclusive(path string, perm uint32, umask int) (int, error) {
	old := unix.Umask(umask)
	defer unix.Umask(old)

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, perm)
	if err != nil {
		return -1, fmt.Errorf("shmfile: create %s: %w", path, err)
	}

	return fd, nil
}

// OpenOrCreate opens path for read-write, creating it (without O_EXCL) if
// absent, under a controlled umask.
func OpenOrCreate(path string, perm uint32, umask int) (int, error) {
	old := unix.Umask(umask)
	defer unix.Umask(old)

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, perm)
	if err != nil {
		return -1, fmt.Errorf("shmfile: open-or-create %s: %w", path, err)
	}

	return fd, nil
}

// Ftruncate resizes the file behind fd to size bytes, zero-extending.
func Ftruncate(fd int, size int64) error {
	if err := unix.Ftruncate(fd, size); err != nil {
		return fmt.Errorf("shmfile: ftruncate: %w", err)
	}

	return nil
}

// Fstat returns size and identity (dev, ino) for fd.
func Fstat(fd int) (size int64, dev uint64, ino uint64, err error) {
	var st unix.Stat_t

	if statErr := unix.Fstat(fd, &st); statErr != nil {
		return 0, 0, 0, fmt.Errorf("shmfile: fstat: %w", statErr)
	}

	return st.Size, uint64(st.Dev), st.Ino, nil
}

// Pread reads len(buf) bytes at offset off.
func Pread(fd int, buf []byte, off int64) (int, error) {
	n, err := unix.Pread(fd, buf, off)
	if err != nil {
		return n, fmt.Errorf("shmfile: pread: %w", err)
	}

	return n, nil
}

// Pwrite writes buf at offset off.
func Pwrite(fd int, buf []byte, off int64) (int, error) {
	n, err := unix.Pwrite(fd, buf, off)
	if err != nil {
		return n, fmt.Errorf("shmfile: pwrite: %w", err)
	}

	return n, nil
}

// Close closes fd, ignoring EBADF (double-close safety for defer chains).
func Close(fd int) error {
	if fd < 0 {
		return nil
	}

	if err := unix.Close(fd); err != nil && !errors.Is(err, unix.EBADF) {
		return fmt.Errorf("shmfile: close: %w", err)
	}

	return nil
}

// Unlink removes path, ignoring ENOENT.
func Unlink(path string) error {
	if err := unix.Unlink(path); err != nil && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("shmfile: unlink %s: %w", path, err)
	}

	return nil
}
