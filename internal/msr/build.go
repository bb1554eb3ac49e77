package msr

import (
	"fmt"

	"github.com/myonlystarWang/sysrepo/internal/schema"
)

// StoreModules performs a complete build pass from tree under
// lydmodsLock, using a three-stage algorithm so that offsets to module
// names are resolvable before any dep/rpc/notif record references them.
// A full rebuild always replaces every module's dep/rpc/notif arrays
// from scratch. Once the layout is fully written, the arena is shrunk to
// the exact final cursor so shm_end == base + size holds for every
// rebuild, not just ones that happen to need as much room as the last.
func (r *Registry) StoreModules(tree schema.Tree) error {
	return r.lydmodsLock.WithLock(r.lockTimeout, func() error {
		cursor, err := r.buildStageA(len(tree.Modules))
		if err != nil {
			return err
		}

		if err := r.buildStageB(tree, &cursor); err != nil {
			return err
		}

		if err := r.buildStageC(tree, &cursor); err != nil {
			return err
		}

		return r.arena.ShrinkTo(int64(cursor))
	})
}

// buildStageA allocates the module record array, zeroing every record
// (including per-module/per-ds/per-rpc lock words) and publishing the
// new mod_count. Returns the cursor positioned right after the array,
// where stage B begins writing variable-length tails.
func (r *Registry) buildStageA(n int) (uint32, error) {
	cursor := headerSize

	arrSize := uint32(n) * moduleRecordSize

	if int64(headerSize+arrSize) > r.arena.Size() {
		if err := r.arena.Remap(int64(headerSize + arrSize)); err != nil {
			return 0, err
		}
	}

	zero := make([]byte, arrSize)
	if err := r.arena.PutRaw(headerSize, zero); err != nil {
		return 0, err
	}

	if err := r.arena.PutU32(offModCount, uint32(n)); err != nil {
		return 0, err
	}

	return uint32(cursor) + arrSize, nil
}

// buildStageB writes each module's scalar fields, name, and feature list.
func (r *Registry) buildStageB(tree schema.Tree, cursor *uint32) error {
	for i, m := range tree.Modules {
		recOff := moduleRecordOffset(uint32(i))

		nameOff, err := r.writeCString(cursor, m.Name)
		if err != nil {
			return err
		}

		if nameOff == 0 {
			return newErr(ErrInvalArg, "module %d has an empty name", i)
		}

		if err := r.arena.PutU32(recOff+mrNameOff, nameOff); err != nil {
			return err
		}

		revBuf := make([]byte, revisionLen)
		if len(m.Revision) > revisionLen-1 {
			return newErr(ErrInvalArg, "module %q revision %q exceeds %d bytes", m.Name, m.Revision, revisionLen-1)
		}

		copy(revBuf, m.Revision)

		if err := r.arena.PutRaw(recOff+mrRevision, revBuf); err != nil {
			return err
		}

		replay := uint32(0)
		if m.ReplaySupport {
			replay = 1
		}

		if err := r.arena.AtomicPutU32(recOff+mrReplaySupp, replay); err != nil {
			return err
		}

		if err := r.arena.PutU32(recOff+mrVer, 1); err != nil {
			return err
		}

		if err := r.writeFeatures(recOff, m.Features, cursor); err != nil {
			return err
		}
	}

	return nil
}

func (r *Registry) writeFeatures(recOff uint32, features []string, cursor *uint32) error {
	count := len(features)
	if count == 0 {
		return r.arena.PutU32(recOff+mrFeatCount, 0)
	}

	arrOff, err := r.bump(cursor, uint32(count)*4)
	if err != nil {
		return err
	}

	for i, feat := range features {
		off, err := r.writeCString(cursor, feat)
		if err != nil {
			return err
		}

		if off == 0 {
			return newErr(ErrInvalArg, "feature %d has an empty name", i)
		}

		if err := r.arena.PutU32(arrOff+uint32(i)*4, off); err != nil {
			return err
		}
	}

	if err := r.arena.PutU32(recOff+mrFeatCount, uint32(count)); err != nil {
		return err
	}

	return r.arena.PutU32(recOff+mrFeaturesOff, arrOff)
}

// buildStageC fills dependencies, RPCs, and notifications, each as its
// own full pass over every module (add_module_deps / add_module_rpcs /
// add_module_notifs), then computes inverse dependencies from the
// forward deps just written.
func (r *Registry) buildStageC(tree schema.Tree, cursor *uint32) error {
	for i, m := range tree.Modules {
		recOff := moduleRecordOffset(uint32(i))

		depsOff, depCount, err := r.writeDepRecords(m.Deps, cursor)
		if err != nil {
			return fmt.Errorf("module %q: %w", m.Name, err)
		}

		if err := r.arena.PutU32(recOff+mrDepCount, depCount); err != nil {
			return err
		}

		if err := r.arena.PutU32(recOff+mrDepsOff, depsOff); err != nil {
			return err
		}
	}

	for i, m := range tree.Modules {
		if err := r.writeRPCs(moduleRecordOffset(uint32(i)), m.RPCs, cursor); err != nil {
			return fmt.Errorf("module %q: %w", m.Name, err)
		}
	}

	for i, m := range tree.Modules {
		if err := r.writeNotifs(moduleRecordOffset(uint32(i)), m.Notifications, cursor); err != nil {
			return fmt.Errorf("module %q: %w", m.Name, err)
		}
	}

	return r.buildInverseDeps(tree, cursor)
}

// writeDepRecords validates and writes one packed dep-record array,
// enforcing the REF/INSTID typing invariant: a REF dep has module != 0
// and path == 0; an INSTID dep has path != 0 (module may be 0, meaning
// no default).
func (r *Registry) writeDepRecords(deps []schema.Dep, cursor *uint32) (uint32, uint32, error) {
	if len(deps) == 0 {
		return 0, 0, nil
	}

	arrOff, err := r.bump(cursor, uint32(len(deps))*depRecSize)
	if err != nil {
		return 0, 0, err
	}

	for i, d := range deps {
		var moduleOff uint32

		if d.Module != "" {
			idx, found, err := r.findModuleIndex(d.Module)
			if err != nil {
				return 0, 0, err
			}

			if !found {
				return 0, 0, newErr(ErrInternal, "dep %d references unknown module %q", i, d.Module)
			}

			moduleOff, err = r.arena.U32(moduleRecordOffset(idx) + mrNameOff)
			if err != nil {
				return 0, 0, err
			}
		}

		pathOff, err := r.writeCString(cursor, d.XPath)
		if err != nil {
			return 0, 0, err
		}

		switch d.Kind {
		case schema.DepRef:
			if moduleOff == 0 || pathOff != 0 {
				return 0, 0, newErr(ErrInvalArg, "dep %d: REF dep must have module!=0 and path=0", i)
			}
		case schema.DepInstID:
			if pathOff == 0 {
				return 0, 0, newErrXPath(ErrInvalArg, d.XPath, "dep %d: INSTID dep must have path!=0", i)
			}
		default:
			return 0, 0, newErr(ErrInvalArg, "dep %d: unknown dep kind %d", i, d.Kind)
		}

		recOff := arrOff + uint32(i)*depRecSize

		if err := r.arena.PutU32(recOff+drKind, uint32(d.Kind)); err != nil {
			return 0, 0, err
		}

		if err := r.arena.PutU32(recOff+drModule, moduleOff); err != nil {
			return 0, 0, err
		}

		if err := r.arena.PutU32(recOff+drPath, pathOff); err != nil {
			return 0, 0, err
		}
	}

	return arrOff, uint32(len(deps)), nil
}

func (r *Registry) writeRPCs(recOff uint32, rpcs []schema.RPC, cursor *uint32) error {
	count := len(rpcs)
	if count == 0 {
		return r.arena.PutU32(recOff+mrRPCCount, 0)
	}

	arrOff, err := r.bump(cursor, uint32(count)*rpcRecSize)
	if err != nil {
		return err
	}

	for i, rpc := range rpcs {
		rOff := arrOff + uint32(i)*rpcRecSize

		pathOff, err := r.writeCString(cursor, rpc.Path)
		if err != nil {
			return err
		}

		if pathOff == 0 {
			return newErr(ErrInvalArg, "rpc %d has an empty path", i)
		}

		inOff, inCount, err := r.writeDepRecords(rpc.InDeps, cursor)
		if err != nil {
			return fmt.Errorf("rpc %q in-deps: %w", rpc.Path, err)
		}

		outOff, outCount, err := r.writeDepRecords(rpc.OutDeps, cursor)
		if err != nil {
			return fmt.Errorf("rpc %q out-deps: %w", rpc.Path, err)
		}

		if err := r.arena.PutU32(rOff+rrPath, pathOff); err != nil {
			return err
		}

		if err := r.arena.PutU32(rOff+rrInDepCount, inCount); err != nil {
			return err
		}

		if err := r.arena.PutU32(rOff+rrInDepsOff, inOff); err != nil {
			return err
		}

		if err := r.arena.PutU32(rOff+rrOutDepCount, outCount); err != nil {
			return err
		}

		if err := r.arena.PutU32(rOff+rrOutDepsOff, outOff); err != nil {
			return err
		}

		if err := r.arena.PutU64(rOff+rrLock, 0); err != nil {
			return err
		}
	}

	if err := r.arena.PutU32(recOff+mrRPCCount, uint32(count)); err != nil {
		return err
	}

	return r.arena.PutU32(recOff+mrRPCsOff, arrOff)
}

func (r *Registry) writeNotifs(recOff uint32, notifs []schema.Notification, cursor *uint32) error {
	count := len(notifs)
	if count == 0 {
		return r.arena.PutU32(recOff+mrNotifCount, 0)
	}

	arrOff, err := r.bump(cursor, uint32(count)*notifRecSize)
	if err != nil {
		return err
	}

	for i, n := range notifs {
		nOff := arrOff + uint32(i)*notifRecSize

		pathOff, err := r.writeCString(cursor, n.Path)
		if err != nil {
			return err
		}

		if pathOff == 0 {
			return newErr(ErrInvalArg, "notification %d has an empty path", i)
		}

		depsOff, depCount, err := r.writeDepRecords(n.Deps, cursor)
		if err != nil {
			return fmt.Errorf("notification %q: %w", n.Path, err)
		}

		if err := r.arena.PutU32(nOff+nrPath, pathOff); err != nil {
			return err
		}

		if err := r.arena.PutU32(nOff+nrDepCount, depCount); err != nil {
			return err
		}

		if err := r.arena.PutU32(nOff+nrDepsOff, depsOff); err != nil {
			return err
		}
	}

	if err := r.arena.PutU32(recOff+mrNotifCount, uint32(count)); err != nil {
		return err
	}

	return r.arena.PutU32(recOff+mrNotifsOff, arrOff)
}

// buildInverseDeps scans every module's just-written forward REF deps
// and, for each referenced module, appends the referencing module's name
// offset to that module's inv_deps array.
func (r *Registry) buildInverseDeps(tree schema.Tree, cursor *uint32) error {
	inverse := make(map[string][]string)

	for _, m := range tree.Modules {
		for _, d := range m.Deps {
			if d.Kind == schema.DepRef && d.Module != "" {
				inverse[d.Module] = append(inverse[d.Module], m.Name)
			}
		}
	}

	for i, m := range tree.Modules {
		recOff := moduleRecordOffset(uint32(i))

		referrers := inverse[m.Name]
		if len(referrers) == 0 {
			if err := r.arena.PutU32(recOff+mrInvDepCount, 0); err != nil {
				return err
			}

			continue
		}

		arrOff, err := r.bump(cursor, uint32(len(referrers))*4)
		if err != nil {
			return err
		}

		for j, refName := range referrers {
			idx, found, err := r.findModuleIndex(refName)
			if err != nil {
				return err
			}

			if !found {
				return newErr(ErrInternal, "inverse dep references unknown module %q", refName)
			}

			nameOff, err := r.arena.U32(moduleRecordOffset(idx) + mrNameOff)
			if err != nil {
				return err
			}

			if err := r.arena.PutU32(arrOff+uint32(j)*4, nameOff); err != nil {
				return err
			}
		}

		if err := r.arena.PutU32(recOff+mrInvDepCount, uint32(len(referrers))); err != nil {
			return err
		}

		if err := r.arena.PutU32(recOff+mrInvDepsOff, arrOff); err != nil {
			return err
		}
	}

	return nil
}
