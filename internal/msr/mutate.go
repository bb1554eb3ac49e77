package msr

import "github.com/myonlystarWang/sysrepo/internal/extshm"

// UpdateReplaySupport atomically flips a module's replay_support flag.
// No seqlock needed: the flag is read and written with a single atomic
// instruction, so a concurrent reader never observes a torn value.
func (r *Registry) UpdateReplaySupport(name string, enabled bool) error {
	idx, found, err := r.findModuleIndex(name)
	if err != nil {
		return err
	}

	if !found {
		return newErr(ErrNotFound, "module %q not found", name)
	}

	v := uint32(0)
	if enabled {
		v = 1
	}

	return r.arena.AtomicPutU32(moduleRecordOffset(idx)+mrReplaySupp, v)
}

// SetNotifSubs records where a module's notification-subscription
// records live in the ext-SHM arena, under the ext lock. Called once per
// module whenever its subscriber set is (re)built.
func (r *Registry) SetNotifSubs(name string, off, count uint32) error {
	idx, found, err := r.findModuleIndex(name)
	if err != nil {
		return err
	}

	if !found {
		return newErr(ErrNotFound, "module %q not found", name)
	}

	return r.extLock.WithLock(r.lockTimeout, func() error {
		recOff := moduleRecordOffset(idx)

		if err := r.arena.PutU32(recOff+mrNotifSubsOff, off); err != nil {
			return err
		}

		return r.arena.PutU32(recOff+mrNotifSubCount, count)
	})
}

// UpdateNotifSuspend toggles the suspended flag of subscription subID
// under module name, guarding against redundant transitions: suspending
// an already-suspended subscription, or resuming one that isn't
// suspended, returns ErrUnsupported instead of silently no-opping.
func (r *Registry) UpdateNotifSuspend(ext *extshm.Arena, name string, subID uint32, suspend bool) error {
	idx, found, err := r.findModuleIndex(name)
	if err != nil {
		return err
	}

	if !found {
		return newErr(ErrNotFound, "module %q not found", name)
	}

	return r.extLock.WithLock(r.lockTimeout, func() error {
		recOff := moduleRecordOffset(idx)

		subsOff, err := r.arena.U32(recOff + mrNotifSubsOff)
		if err != nil {
			return err
		}

		subsCount, err := r.arena.U32(recOff + mrNotifSubCount)
		if err != nil {
			return err
		}

		recAt, found, err := ext.FindBySubID(subsOff, subsCount, subID)
		if err != nil {
			return err
		}

		if !found {
			return newErr(ErrNotFound, "subscription %d not found on module %q", subID, name)
		}

		wasSuspended, err := ext.Suspended(recAt)
		if err != nil {
			return err
		}

		if suspend && wasSuspended {
			return newErr(ErrUnsupported, "subscription %d on module %q is already suspended", subID, name)
		}

		if !suspend && !wasSuspended {
			return newErr(ErrUnsupported, "subscription %d on module %q is not suspended", subID, name)
		}

		return ext.SetSuspended(recAt, suspend)
	})
}
