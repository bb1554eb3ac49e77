// Package msr implements the Main Shared-Memory Registry: a
// memory-mapped, self-describing, append-grow arena holding the catalog
// of schema modules, their revisions, feature sets, cross-module
// dependencies, RPC/notification descriptors, and the per-module/per-ds
// locks guarding them.
//
// The on-disk layout is a fixed header followed by a module record
// array, with variable-length tails (names, features, deps, RPCs,
// notifications) referenced by arena offset rather than embedded
// inline. All scalar fields are binary.LittleEndian. Lookups and decodes
// read the arena without locking; a caller that needs a consistent read
// across several fields wraps it in [Registry.ReadLydmods], a seqlock
// retry loop rather than a mutex.
package msr

import (
	"time"

	"github.com/myonlystarWang/sysrepo/internal/shmarena"
)

// Options configures a Registry's lock behavior. The zero value is
// usable; LockTimeout defaults to DefaultLockTimeout.
type Options struct {
	// LockTimeout bounds every process-shared mutex acquisition.
	LockTimeout time.Duration
}

// DefaultLockTimeout is the fallback bound on a lock acquisition when
// Options.LockTimeout is left at its zero value, matching sysrepo's
// SR_*_LOCK_TIMEOUT of 2 seconds.
const DefaultLockTimeout = 2 * time.Second

// Registry is an opened handle on the main SHM arena.
type Registry struct {
	arena       *shmarena.Arena
	lydmodsLock seqlock
	extLock     seqlock
	lockTimeout time.Duration
}

func (o Options) timeout() time.Duration {
	if o.LockTimeout <= 0 {
		return DefaultLockTimeout
	}

	return o.LockTimeout
}

// Init writes a fresh header into arena: magic, the compiled shm_ver,
// both header mutexes unlocked, the four ID counters seeded to 1, and
// mod_count = 0. Mirrors main_open step 2's header initialization.
func Init(arena *shmarena.Arena, opts Options) (*Registry, error) {
	if arena.Size() < headerSize {
		if err := arena.Remap(headerSize); err != nil {
			return nil, err
		}
	}

	if err := arena.PutRaw(offMagic, magic[:]); err != nil {
		return nil, err
	}

	if err := arena.PutU32(offShmVer, shmVer); err != nil {
		return nil, err
	}

	if err := arena.PutU32(offHeaderSize, headerSize); err != nil {
		return nil, err
	}

	if err := arena.PutU64(offLydmodsLck, 0); err != nil {
		return nil, err
	}

	if err := arena.PutU64(offExtLock, 0); err != nil {
		return nil, err
	}

	for _, off := range []uint32{offNewCID, offNewSID, offNewSubID, offNewEvpipe} {
		if err := arena.PutU32(off, 1); err != nil {
			return nil, err
		}
	}

	if err := arena.PutU32(offModCount, 0); err != nil {
		return nil, err
	}

	return newRegistry(arena, opts), nil
}

// Open wraps an already-initialized arena, verifying the magic and
// shm_ver. A version mismatch fails with ErrUnsupported and a
// "remove the SHM to fix" message.
func Open(arena *shmarena.Arena, opts Options) (*Registry, error) {
	got, err := arena.Raw(offMagic, 4)
	if err != nil {
		return nil, err
	}

	if string(got) != string(magic[:]) {
		return nil, newErr(ErrUnsupported, "not an MSR arena (bad magic); remove the SHM to fix")
	}

	ver, err := arena.U32(offShmVer)
	if err != nil {
		return nil, err
	}

	if ver != shmVer {
		return nil, newErr(ErrUnsupported, "shm_ver mismatch: file has %d, this build expects %d; remove the SHM to fix", ver, shmVer)
	}

	return newRegistry(arena, opts), nil
}

func newRegistry(arena *shmarena.Arena, opts Options) *Registry {
	return &Registry{
		arena:       arena,
		lydmodsLock: newSeqlock(arena, offLydmodsLck),
		extLock:     newSeqlock(arena, offExtLock),
		lockTimeout: opts.timeout(),
	}
}

// ShmVer returns the arena's stored layout version.
func (r *Registry) ShmVer() (uint32, error) { return r.arena.U32(offShmVer) }

// ModCount returns the number of module records currently stored.
func (r *Registry) ModCount() (uint32, error) { return r.arena.U32(offModCount) }

// Arena exposes the underlying byte arena, for callers (e.g. cmd/srplay,
// cmd/srd-bench) that need to manage its lifecycle directly.
func (r *Registry) Arena() *shmarena.Arena { return r.arena }

// allocateID performs a relaxed fetch-and-increment on one of the
// header's monotonic ID counters, returning the value handed to the
// caller (the counter is seeded to 1, so the first allocation from a
// freshly initialized registry is 1).
func (r *Registry) allocateID(off uint32) (uint32, error) {
	next, err := r.arena.AtomicAddU32(off, 1)
	if err != nil {
		return 0, err
	}

	return next - 1, nil
}

// NewCID allocates a fresh connection id.
func (r *Registry) NewCID() (uint32, error) { return r.allocateID(offNewCID) }

// NewSID allocates a fresh session id.
func (r *Registry) NewSID() (uint32, error) { return r.allocateID(offNewSID) }

// NewSubID allocates a fresh subscription id.
func (r *Registry) NewSubID() (uint32, error) { return r.allocateID(offNewSubID) }

// NewEvpipeNum allocates a fresh event-pipe number.
func (r *Registry) NewEvpipeNum() (uint32, error) { return r.allocateID(offNewEvpipe) }

func moduleRecordOffset(idx uint32) uint32 {
	return headerSize + idx*moduleRecordSize
}

// moduleName reads the NUL-terminated name string for the module record
// at idx.
func (r *Registry) moduleName(idx uint32) (string, error) {
	recOff := moduleRecordOffset(idx)

	nameOff, err := r.arena.U32(recOff + mrNameOff)
	if err != nil {
		return "", err
	}

	return r.arena.CString(nameOff)
}

// findModuleIndex performs the raw linear scan find_module describes,
// without acquiring any lock; callers that need stability across a
// concurrent StoreModules hold lydmodsLock themselves.
func (r *Registry) findModuleIndex(name string) (uint32, bool, error) {
	count, err := r.ModCount()
	if err != nil {
		return 0, false, err
	}

	for i := uint32(0); i < count; i++ {
		got, err := r.moduleName(i)
		if err != nil {
			return 0, false, err
		}

		if got == name {
			return i, true, nil
		}
	}

	return 0, false, nil
}

// bump allocates n bytes at *cursor, growing the arena first if the
// allocation would exceed its current size. It never shrinks the arena
// mid-build; StoreModules compacts down to the final cursor with
// [shmarena.Arena.ShrinkTo] once the whole layout has been written, so a
// rebuild that needs less room than a previous, larger build still ends
// with shm_end == base + size.
func (r *Registry) bump(cursor *uint32, n uint32) (uint32, error) {
	off := *cursor
	newEnd := off + n

	if int64(newEnd) > r.arena.Size() {
		if err := r.arena.Remap(int64(newEnd)); err != nil {
			return 0, err
		}
	}

	*cursor = newEnd

	return off, nil
}

// writeCString bump-allocates and writes a NUL-terminated string,
// returning its offset. An empty string is stored as a null offset (0)
// without allocating: offset 0 means "absent" for every optional
// reference field in the registry.
func (r *Registry) writeCString(cursor *uint32, s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}

	off, err := r.bump(cursor, uint32(len(s))+1)
	if err != nil {
		return 0, err
	}

	if _, err := r.arena.PutCString(off, s); err != nil {
		return 0, err
	}

	return off, nil
}
