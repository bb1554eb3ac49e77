package msr

import "fmt"

// DataLock returns the seqlock guarding datastore ds of module idx's
// content against concurrent structural changes: the level-3
// data_lock_info[ds] rwlock from the concurrency hierarchy, colocated in
// the arena right next to the record it protects rather than in a
// separate process-local table.
func (r *Registry) DataLock(idx uint32, ds int) (seqlock, error) {
	if ds < 0 || ds >= DSCount {
		return seqlock{}, fmt.Errorf("%w: datastore index %d out of range", ErrInvalArg, ds)
	}

	off := moduleRecordOffset(idx) + mrDataLockInfo + uint32(ds)*8

	return newSeqlock(r.arena, off), nil
}

// ReplayLock returns the seqlock serializing notification replay for
// module idx.
func (r *Registry) ReplayLock(idx uint32) seqlock {
	return newSeqlock(r.arena, moduleRecordOffset(idx)+mrReplayLock)
}

// ChangeSubLock returns the seqlock guarding the change-subscription list
// for datastore ds of module idx.
func (r *Registry) ChangeSubLock(idx uint32, ds int) (seqlock, error) {
	if ds < 0 || ds >= DSCount {
		return seqlock{}, fmt.Errorf("%w: datastore index %d out of range", ErrInvalArg, ds)
	}

	off := moduleRecordOffset(idx) + mrChangeSub + uint32(ds)*8

	return newSeqlock(r.arena, off), nil
}

// OperLock returns the seqlock guarding module idx's operational-data
// push/pull paths.
func (r *Registry) OperLock(idx uint32) seqlock {
	return newSeqlock(r.arena, moduleRecordOffset(idx)+mrOperLock)
}

// NotifLock returns the seqlock guarding module idx's notification
// delivery path.
func (r *Registry) NotifLock(idx uint32) seqlock {
	return newSeqlock(r.arena, moduleRecordOffset(idx)+mrNotifLock)
}

// RPCLock returns the seqlock guarding a single RPC's in-flight-call
// serialization, resolved the same way [Registry.FindRPC] resolves the
// RPC itself. The bool is false if no RPC is registered at xpath.
func (r *Registry) RPCLock(xpath string) (seqlock, bool, error) {
	rOff, found, err := r.findRPCRecordOffset(xpath)
	if err != nil || !found {
		return seqlock{}, found, err
	}

	return newSeqlock(r.arena, rOff+rrLock), true, nil
}

// findRPCRecordOffset mirrors FindRPC's module-first-then-fallback scan,
// but returns the raw record offset instead of a decoded value, since a
// lock accessor has no use for the decoded dep lists.
func (r *Registry) findRPCRecordOffset(xpath string) (uint32, bool, error) {
	if modName, ok := moduleFromXPath(xpath); ok {
		idx, found, err := r.findModuleIndex(modName)
		if err != nil {
			return 0, false, err
		}

		if found {
			off, ok, err := r.rpcRecordOffsetInModule(moduleRecordOffset(idx), xpath)
			if err != nil || ok {
				return off, ok, err
			}
		}
	}

	count, err := r.ModCount()
	if err != nil {
		return 0, false, err
	}

	for i := uint32(0); i < count; i++ {
		off, ok, err := r.rpcRecordOffsetInModule(moduleRecordOffset(i), xpath)
		if err != nil {
			return 0, false, err
		}

		if ok {
			return off, true, nil
		}
	}

	return 0, false, nil
}

func (r *Registry) rpcRecordOffsetInModule(recOff uint32, xpath string) (uint32, bool, error) {
	count, err := r.arena.U32(recOff + mrRPCCount)
	if err != nil {
		return 0, false, err
	}

	arrOff, err := r.arena.U32(recOff + mrRPCsOff)
	if err != nil {
		return 0, false, err
	}

	for i := uint32(0); i < count; i++ {
		rOff := arrOff + i*rpcRecSize

		pathOff, err := r.arena.U32(rOff + rrPath)
		if err != nil {
			return 0, false, err
		}

		path, err := r.arena.CString(pathOff)
		if err != nil {
			return 0, false, err
		}

		if path == xpath {
			return rOff, true, nil
		}
	}

	return 0, false, nil
}
