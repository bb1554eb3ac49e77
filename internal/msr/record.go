package msr

// Module record field offsets, relative to the start of the record.
// Fixed-size so that the record array can be indexed directly, with all
// variable-length tails (name, features, deps, rpcs, notifs) referenced
// by arena offsets.
const (
	mrNameOff        = 0  // uint32
	mrRevision       = 4  // [revisionLen]byte, NUL-padded
	mrReplaySupp     = 20 // uint32 atomic flag
	mrFeatCount      = 24 // uint32
	mrFeaturesOff    = 28 // uint32
	mrDepCount       = 32 // uint32
	mrDepsOff        = 36 // uint32
	mrInvDepCount    = 40 // uint32
	mrInvDepsOff     = 44 // uint32
	mrRPCCount       = 48 // uint32
	mrRPCsOff        = 52 // uint32
	mrNotifCount     = 56 // uint32
	mrNotifsOff      = 60 // uint32
	mrVer            = 64 // uint32
	mrNotifSubsOff   = 68 // uint32
	mrNotifSubCount  = 72 // uint32
	mrDataLockInfo   = 80 // [DSCount]uint64
	mrReplayLock     = mrDataLockInfo + DSCount*8
	mrChangeSub      = mrReplayLock + 8 // [DSCount]uint64
	mrOperLock       = mrChangeSub + DSCount*8
	mrNotifLock      = mrOperLock + 8
	moduleRecordSize = mrNotifLock + 8
)

// revisionLen is the fixed width of the module record's inline revision
// string (e.g. "2020-01-01"), NUL-padded and possibly all-zero for an
// unrevisioned module.
const revisionLen = 16

// Dep record layout: {kind uint32, module uint32, path uint32}.
const (
	drKind     = 0
	drModule   = 4
	drPath     = 8
	depRecSize = 12
)

// RPC record layout: {path, in_dep_count, in_deps, out_dep_count,
// out_deps, <4 bytes padding>, lock}.
const (
	rrPath        = 0
	rrInDepCount  = 4
	rrInDepsOff   = 8
	rrOutDepCount = 12
	rrOutDepsOff  = 16
	rrLock        = 24 // uint64, 8-byte aligned
	rpcRecSize    = rrLock + 8
)

// Notification record layout: {path, dep_count, deps}.
const (
	nrPath       = 0
	nrDepCount   = 4
	nrDepsOff    = 8
	notifRecSize = 12
)
