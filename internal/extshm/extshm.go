// Package extshm implements the second, independently-growing arena
// referenced by the main registry only through offsets: notification
// subscription records. Event-pipe plumbing and the subscription wire
// format that would populate these records are out of scope; this
// package owns only the record layout and the append/lookup operations
// the registry's update_notif_suspend mutation needs.
package extshm

import (
	"github.com/myonlystarWang/sysrepo/internal/shmarena"
)

// Record field offsets within one notifSubRecord.
const (
	offSubID     = 0
	offCID       = 4
	offEvpipeNum = 8
	offSuspended = 12
	offXPathOff  = 16
	recSize      = 20
)

// extHeaderSize reserves room for a tiny header (just the arena's live
// end cursor) ahead of the subscription record array.
const (
	offEnd       = 0 // uint32, byte offset of the first free byte
	extHeaderSize = 8
)

// Arena wraps the ext-SHM mmap region.
type Arena struct {
	a *shmarena.Arena
}

// Open wraps an already-opened arena, initializing the header if this is
// a freshly created (all-zero) file.
func Open(a *shmarena.Arena) (*Arena, error) {
	e := &Arena{a: a}

	if a.Size() < extHeaderSize {
		if err := a.Remap(extHeaderSize); err != nil {
			return nil, err
		}
	}

	end, err := a.U32(offEnd)
	if err != nil {
		return nil, err
	}

	if end == 0 {
		if err := a.PutU32(offEnd, extHeaderSize); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Sub is the decoded form of one notification subscription record.
type Sub struct {
	SubID     uint32
	CID       uint32
	EvpipeNum uint32
	Suspended bool
	XPath     string
}

// AppendSubs allocates count contiguous subscription records at the
// current end of the arena, writes subs into them, and returns the
// offset of the first record (for storage in the owning module's
// notif_subs field).
func (e *Arena) AppendSubs(subs []Sub) (uint32, error) {
	if len(subs) == 0 {
		return 0, nil
	}

	end, err := e.a.U32(offEnd)
	if err != nil {
		return 0, err
	}

	newEnd := end + uint32(len(subs))*recSize
	if err := e.a.Remap(int64(newEnd)); err != nil {
		return 0, err
	}

	if err := e.a.PutU32(offEnd, newEnd); err != nil {
		return 0, err
	}

	for i, s := range subs {
		recOff := end + uint32(i)*recSize

		if err := e.writeSub(recOff, s); err != nil {
			return 0, err
		}
	}

	return end, nil
}

func (e *Arena) writeSub(recOff uint32, s Sub) error {
	if err := e.a.PutU32(recOff+offSubID, s.SubID); err != nil {
		return err
	}

	if err := e.a.PutU32(recOff+offCID, s.CID); err != nil {
		return err
	}

	if err := e.a.PutU32(recOff+offEvpipeNum, s.EvpipeNum); err != nil {
		return err
	}

	suspended := uint32(0)
	if s.Suspended {
		suspended = 1
	}

	if err := e.a.AtomicPutU32(recOff+offSuspended, suspended); err != nil {
		return err
	}

	if s.XPath == "" {
		return e.a.PutU32(recOff+offXPathOff, 0)
	}

	end, err := e.a.U32(offEnd)
	if err != nil {
		return err
	}

	n := uint32(len(s.XPath)) + 1

	if err := e.a.Remap(int64(end + n)); err != nil {
		return err
	}

	if _, err := e.a.PutCString(end, s.XPath); err != nil {
		return err
	}

	if err := e.a.PutU32(offEnd, end+n); err != nil {
		return err
	}

	return e.a.PutU32(recOff+offXPathOff, end)
}

// FindBySubID scans the count records starting at off looking for
// subID, returning the record's offset.
func (e *Arena) FindBySubID(off, count, subID uint32) (uint32, bool, error) {
	for i := uint32(0); i < count; i++ {
		recOff := off + i*recSize

		got, err := e.a.U32(recOff + offSubID)
		if err != nil {
			return 0, false, err
		}

		if got == subID {
			return recOff, true, nil
		}
	}

	return 0, false, nil
}

// Suspended atomically loads the suspended flag of the record at recOff.
func (e *Arena) Suspended(recOff uint32) (bool, error) {
	v, err := e.a.AtomicU32(recOff + offSuspended)
	if err != nil {
		return false, err
	}

	return v != 0, nil
}

// SetSuspended atomically stores the suspended flag of the record at
// recOff. The caller is expected to already hold the ext_lock seqlock.
func (e *Arena) SetSuspended(recOff uint32, suspend bool) error {
	v := uint32(0)
	if suspend {
		v = 1
	}

	return e.a.AtomicPutU32(recOff+offSuspended, v)
}

// Raw exposes the underlying byte arena for callers (msr.Registry)
// that need to pass it to shared remap/close lifecycle helpers.
func (e *Arena) Raw() *shmarena.Arena { return e.a }
