// Package clt implements the connection liveness tracker: per-connection
// advisory lock files used to determine whether a cid identifies a still
// running process on the same host, sharing the repository root.
//
// A POSIX advisory (fcntl) lock on a file is released the instant any
// file descriptor to that file is closed by the holding process — even
// an unrelated one. A process checking its own cid therefore must never
// open/close its own lock file; it must consult its private registry
// first, a Go map guarded by a sync.Mutex keyed by cid.
package clt

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/myonlystarWang/sysrepo/internal/logutil"
	"github.com/myonlystarWang/sysrepo/internal/pathutil"
	"github.com/myonlystarWang/sysrepo/internal/shmfile"
)

// Status reports the liveness of a connection.
type Status struct {
	Alive bool
	PID   int32
}

// Tracker owns the in-process registry of connections this process has
// itself registered, plus the layout needed to locate lock files for
// connections owned by other processes.
type Tracker struct {
	layout pathutil.Layout
	log    *logutil.Logger

	mu    sync.Mutex
	conns map[uint32]int // cid -> lock fd, owned exclusively by this process
}

// New returns a Tracker rooted at layout.
func New(layout pathutil.Layout) *Tracker {
	return &Tracker{
		layout: layout,
		log:    logutil.Default,
		conns:  make(map[uint32]int),
	}
}

// Register creates and locks the lock file for cid, recording it in this
// process's private list. Failure to acquire the lock (the file already
// locked by someone else) indicates a cid reuse collision and is
// reported as a System-class error.
func (t *Tracker) Register(cid uint32) error {
	path := t.layout.ConnLock(cid)

	fd, err := shmfile.OpenOrCreate(path, uint32(pathutil.FilePerm), 0o022)
	if err != nil {
		return fmt.Errorf("clt: open lockfile for cid %d: %w", cid, err)
	}

	diag := fmt.Sprintf("/%d\n", unix.Getpid())
	if _, err := shmfile.Pwrite(fd, []byte(diag), 0); err != nil {
		_ = shmfile.Close(fd)

		return fmt.Errorf("clt: write pid diagnostic for cid %d: %w", cid, err)
	}

	flock := unix.Flock_t{Type: unix.F_WRLCK, Whence: 0, Start: 0, Len: 0}
	if err := unix.FcntlFlock(uintptr(fd), unix.F_SETLK, &flock); err != nil {
		_ = shmfile.Close(fd)
		_ = shmfile.Unlink(path)

		return fmt.Errorf("clt: lock collision for cid %d (cid reuse?): %w", cid, err)
	}

	t.mu.Lock()
	t.conns[cid] = fd
	t.mu.Unlock()

	return nil
}

// Unregister releases and removes the entry for a cid owned by this
// process. Closing the fd releases the lock; the lock file is then
// unlinked.
func (t *Tracker) Unregister(cid uint32) error {
	t.mu.Lock()
	fd, ok := t.conns[cid]
	if ok {
		delete(t.conns, cid)
	}
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("clt: unregister unknown cid %d", cid)
	}

	if err := shmfile.Close(fd); err != nil {
		return fmt.Errorf("clt: close lock fd for cid %d: %w", cid, err)
	}

	return shmfile.Unlink(t.layout.ConnLock(cid))
}

// Check reports whether cid identifies a live connection.
//
// If cid belongs to this process's own registry, the answer comes
// straight from that registry and the filesystem is never touched — the
// crucial rule that avoids ever opening/closing our own lock file, which
// would silently release the lock we hold.
func (t *Tracker) Check(cid uint32) (Status, error) {
	t.mu.Lock()
	_, owned := t.conns[cid]
	t.mu.Unlock()

	if owned {
		return Status{Alive: true, PID: int32(unix.Getpid())}, nil
	}

	path := t.layout.ConnLock(cid)

	fd, err := shmfile.OpenExisting(path)
	if err != nil {
		if errors.Is(err, shmfile.ErrNotExist) {
			return Status{Alive: false}, nil
		}

		return Status{}, fmt.Errorf("clt: open lockfile for cid %d: %w", cid, err)
	}

	flock := unix.Flock_t{Type: unix.F_WRLCK, Whence: 0, Start: 0, Len: 0}
	getErr := unix.FcntlFlock(uintptr(fd), unix.F_GETLK, &flock)

	// Closing any fd to a lock file releases all locks held by THIS
	// process on it. Since ownership was already ruled out above, fd
	// belongs to a file we never locked ourselves, so closing it here is
	// safe and required (it must not be held open beyond the check).
	_ = shmfile.Close(fd)

	if getErr != nil {
		return Status{}, fmt.Errorf("clt: fcntl F_GETLK for cid %d: %w", cid, getErr)
	}

	if flock.Type == unix.F_UNLCK {
		t.log.Warnf("Connection with CID %d is dead.", cid)
		_ = shmfile.Unlink(path)

		return Status{Alive: false}, nil
	}

	return Status{Alive: true, PID: flock.Pid}, nil
}
