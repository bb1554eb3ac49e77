// Package createlock implements the file-range advisory lock that
// serializes all structural changes to the shared-memory arenas across
// processes — the outermost lock in the concurrency hierarchy.
//
// Mirrors sysrepo's sr_shmmain_createlock_open / sr_shmmain_createlock /
// sr_shmmain_createunlock: a fcntl (F_SETLKW/F_SETLK) byte-range lock
// owned by (process, inode) rather than a flock(2) lock owned by file
// descriptor. Because of that ownership, closing any fd this process
// holds on the lock file releases the lock.
package createlock

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/myonlystarWang/sysrepo/internal/shmfile"
)

// Lock is a held or closed handle on the create-lock file.
type Lock struct {
	fd int
}

// Open opens (creating if absent) the create-lock file at path with the
// given permission bits, applying umask for the duration of creation.
// The returned Lock is not yet held; call [Lock.Acquire].
//
// Mirrors sr_shmmain_createlock_open's umask(SR_UMASK)/open()/umask(um)
// sequence, using O_CREAT without O_EXCL since the lock file is meant to
// persist and be reopened across process lifetimes.
func Open(path string, perm uint32, umask int) (*Lock, error) {
	fd, err := shmfile.OpenOrCreate(path, perm, umask)
	if err != nil {
		return nil, err
	}

	return &Lock{fd: fd}, nil
}

// Acquire blocks until an exclusive write lock on the entire file is
// held, retrying on EINTR exactly as sr_shmmain_createlock does with its
// do/while loop around fcntl(F_SETLKW).
func (l *Lock) Acquire() error {
	flock := unix.Flock_t{Type: unix.F_WRLCK, Whence: 0, Start: 0, Len: 0}

	for {
		err := unix.FcntlFlock(uintptr(l.fd), unix.F_SETLKW, &flock)
		if err == nil {
			return nil
		}

		if errors.Is(err, unix.EINTR) {
			continue
		}

		return fmt.Errorf("createlock: fcntl F_SETLKW: %w", err)
	}
}

// Release drops the lock with a non-blocking F_SETLK, matching
// sr_shmmain_createunlock. A failure here indicates a programming error
// (the lock was not actually held) rather than contention, since F_UNLCK
// never blocks or fails on EAGAIN.
func (l *Lock) Release() error {
	flock := unix.Flock_t{Type: unix.F_UNLCK, Whence: 0, Start: 0, Len: 0}

	if err := unix.FcntlFlock(uintptr(l.fd), unix.F_SETLK, &flock); err != nil {
		return fmt.Errorf("createlock: fcntl F_SETLK unlock: %w", err)
	}

	return nil
}

// Close releases the file descriptor. It does not release the lock
// first; callers must call [Lock.Release] while still holding it.
func (l *Lock) Close() error {
	return shmfile.Close(l.fd)
}

// WithLock acquires the create-lock, runs fn, and releases it
// unconditionally, mirroring the acquire/defer-unlock shape used
// throughout sr_shmmain_* for guarding a single structural operation.
func WithLock(l *Lock, fn func() error) error {
	if err := l.Acquire(); err != nil {
		return err
	}
	defer func() { _ = l.Release() }()

	return fn()
}
