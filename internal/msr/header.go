package msr

// Header field offsets, little-endian throughout (host byte order; the
// file is not portable across architectures).
//
// A magic/version pair, the two process-shared mutexes guarding schema
// mutation and the ext region, the four relaxed-atomic ID counters, and
// the module count.
const (
	offMagic      = 0  // [4]byte, "MSR1"
	offShmVer     = 4  // uint32
	offHeaderSize = 8  // uint32, self-describing for a future layout change
	offLydmodsLck = 12 // uint64 seqlock generation word
	offExtLock    = 20 // uint64 seqlock generation word
	offNewCID     = 28 // uint32 atomic counter
	offNewSID     = 32 // uint32 atomic counter
	offNewSubID   = 36 // uint32 atomic counter
	offNewEvpipe  = 40 // uint32 atomic counter
	offModCount   = 44 // uint32

	headerSize = 48
)

// shmVer is the compiled layout version. A stored value that differs
// causes Bootstrap to fail with ErrUnsupported ("remove the SHM to fix").
const shmVer = uint32(1)

var magic = [4]byte{'M', 'S', 'R', '1'}

// DSCount is the number of datastore kinds carrying per-module locks:
// startup, running, operational, candidate.
const DSCount = 4

// Datastore indexes into the per-module data_lock_info/change_sub arrays.
const (
	DSStartup = iota
	DSRunning
	DSOperational
	DSCandidate
)
