package msr

import (
	"fmt"
	"time"

	"github.com/myonlystarWang/sysrepo/internal/shmarena"
)

// seqlock is the Go-idiomatic, cgo-free stand-in for a POSIX
// pthread_rwlock_t initialized PTHREAD_PROCESS_SHARED: a 64-bit
// generation word at a fixed arena offset. Even means stable, odd means
// "writer in progress." It serves as the process-shared lock primitive
// for the header mutexes and the per-module/per-RPC/per-datastore locks,
// generalized from a read-only consistency check (read the generation,
// retry on change) into a genuine mutual-exclusion primitive by having
// writers CAS the word from even to odd and back.
type seqlock struct {
	arena *shmarena.Arena
	off   uint32
}

const (
	lockRetryInitialBackoff = 50 * time.Microsecond
	lockRetryMaxBackoff     = 2 * time.Millisecond
)

// newSeqlock returns a seqlock rooted at off within arena. The caller is
// responsible for having initialized the word to an even value (normally
// 0) when the arena region was first allocated.
func newSeqlock(arena *shmarena.Arena, off uint32) seqlock {
	return seqlock{arena: arena, off: off}
}

// Generation returns the current generation word.
func (l seqlock) Generation() (uint64, error) {
	return l.arena.AtomicU64(l.off)
}

// TryAcquire attempts a single even-to-odd transition, returning false
// (not an error) if the word is currently odd or changed underneath us.
func (l seqlock) TryAcquire() (bool, error) {
	g, err := l.arena.AtomicU64(l.off)
	if err != nil {
		return false, err
	}

	if g%2 == 1 {
		return false, nil
	}

	ok, err := l.arena.AtomicCASU64(l.off, g, g+1)
	if err != nil {
		return false, err
	}

	return ok, nil
}

// Release transitions the word from odd back to the next even value.
// Called by whoever last succeeded at TryAcquire; calling it without
// holding the lock is a programming error.
func (l seqlock) Release() error {
	g, err := l.arena.AtomicU64(l.off)
	if err != nil {
		return err
	}

	if g%2 == 0 {
		return fmt.Errorf("%w: release of a seqlock that is not held", ErrInternal)
	}

	return l.arena.AtomicPutU64(l.off, g+1)
}

// Acquire blocks (with exponential backoff) until TryAcquire succeeds or
// timeout elapses, at which point it returns ErrTimeout. Every
// process-shared mutex acquisition in this package goes through this
// path so none can block forever.
func (l seqlock) Acquire(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	backoff := lockRetryInitialBackoff

	for {
		ok, err := l.TryAcquire()
		if err != nil {
			return err
		}

		if ok {
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: seqlock at offset %d", ErrTimeout, l.off)
		}

		time.Sleep(backoff)

		backoff *= 2
		if backoff > lockRetryMaxBackoff {
			backoff = lockRetryMaxBackoff
		}
	}
}

// WithLock acquires l, runs fn, and always releases, returning fn's error
// (or the acquire/release error if either of those fails first).
func (l seqlock) WithLock(timeout time.Duration, fn func() error) error {
	if err := l.Acquire(timeout); err != nil {
		return err
	}

	fnErr := fn()

	if relErr := l.Release(); relErr != nil {
		if fnErr != nil {
			return fnErr
		}

		return relErr
	}

	return fnErr
}

// readRetry runs fn under a seqlock-style optimistic read: it reads the
// generation before and after fn, retrying while the generation is odd
// or changed across the call, and surfacing ErrTimeout after maxRetries.
func readRetry(l seqlock, maxRetries int, fn func() (any, error)) (any, error) {
	backoff := lockRetryInitialBackoff

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)

			backoff *= 2
			if backoff > lockRetryMaxBackoff {
				backoff = lockRetryMaxBackoff
			}
		}

		g1, err := l.Generation()
		if err != nil {
			return nil, err
		}

		if g1%2 == 1 {
			continue
		}

		result, fnErr := fn()

		g2, err := l.Generation()
		if err != nil {
			return nil, err
		}

		if g1 != g2 {
			continue
		}

		return result, fnErr
	}

	return nil, fmt.Errorf("%w: seqlock read at offset %d", ErrTimeout, l.off)
}
