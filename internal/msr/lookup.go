package msr

import "strings"

// DecodedDep is the decoded form of one dep record.
type DecodedDep struct {
	Kind   uint32
	Module string
	XPath  string
}

// DecodedRPC is the decoded form of one RPC record.
type DecodedRPC struct {
	Path    string
	InDeps  []DecodedDep
	OutDeps []DecodedDep
}

// DecodedNotification is the decoded form of one notification record.
type DecodedNotification struct {
	Path string
	Deps []DecodedDep
}

// DecodedModule is the fully decoded form of one module record, used by
// round-trip tests and by callers that want the whole catalog entry at
// once rather than field-by-field accessors.
type DecodedModule struct {
	Name          string
	Revision      string
	ReplaySupport bool
	Features      []string
	Deps          []DecodedDep
	InverseDeps   []string
	RPCs          []DecodedRPC
	Notifications []DecodedNotification
}

// FindModule returns the index of the module named name, performing the
// same linear scan the C find_module does. Callers that need the result
// to stay valid across a concurrent StoreModules should wrap this (and
// any subsequent reads) in ReadLydmods.
func (r *Registry) FindModule(name string) (uint32, bool, error) {
	return r.findModuleIndex(name)
}

// ReadLydmods runs fn under an optimistic read of the lydmods generation,
// retrying if a concurrent StoreModules overlapped the read. This is the
// public counterpart of the readRetry helper used internally throughout
// this package.
func (r *Registry) ReadLydmods(fn func() (any, error)) (any, error) {
	return readRetry(r.lydmodsLock, readMaxRetries, fn)
}

const readMaxRetries = 10

// FindRPC locates the RPC descriptor at xpath, scanning every module's
// RPC array. xpath is expected in the form "/module:rest/of/path"; the
// leading module name (if present) narrows the search to that module's
// record before falling back to scanning all modules, mirroring how an
// RPC's module is normally known from its own first path segment.
func (r *Registry) FindRPC(xpath string) (DecodedRPC, bool, error) {
	if modName, ok := moduleFromXPath(xpath); ok {
		idx, found, err := r.findModuleIndex(modName)
		if err != nil {
			return DecodedRPC{}, false, err
		}

		if found {
			rpc, ok, err := r.findRPCInModule(moduleRecordOffset(idx), xpath)
			if err != nil || ok {
				return rpc, ok, err
			}
		}
	}

	count, err := r.ModCount()
	if err != nil {
		return DecodedRPC{}, false, err
	}

	for i := uint32(0); i < count; i++ {
		rpc, ok, err := r.findRPCInModule(moduleRecordOffset(i), xpath)
		if err != nil {
			return DecodedRPC{}, false, err
		}

		if ok {
			return rpc, true, nil
		}
	}

	return DecodedRPC{}, false, nil
}

func moduleFromXPath(xpath string) (string, bool) {
	trimmed := strings.TrimPrefix(xpath, "/")

	segment, _, _ := strings.Cut(trimmed, "/")

	name, _, found := strings.Cut(segment, ":")
	if !found {
		return "", false
	}

	return name, true
}

func (r *Registry) findRPCInModule(recOff uint32, xpath string) (DecodedRPC, bool, error) {
	count, err := r.arena.U32(recOff + mrRPCCount)
	if err != nil {
		return DecodedRPC{}, false, err
	}

	arrOff, err := r.arena.U32(recOff + mrRPCsOff)
	if err != nil {
		return DecodedRPC{}, false, err
	}

	for i := uint32(0); i < count; i++ {
		rOff := arrOff + i*rpcRecSize

		pathOff, err := r.arena.U32(rOff + rrPath)
		if err != nil {
			return DecodedRPC{}, false, err
		}

		path, err := r.arena.CString(pathOff)
		if err != nil {
			return DecodedRPC{}, false, err
		}

		if path != xpath {
			continue
		}

		rpc, err := r.decodeRPC(rOff)
		if err != nil {
			return DecodedRPC{}, false, err
		}

		return rpc, true, nil
	}

	return DecodedRPC{}, false, nil
}

// DecodeModule decodes the full module record at idx, for round-trip
// testing and for callers that want the whole catalog entry at once.
func (r *Registry) DecodeModule(idx uint32) (DecodedModule, error) {
	recOff := moduleRecordOffset(idx)

	nameOff, err := r.arena.U32(recOff + mrNameOff)
	if err != nil {
		return DecodedModule{}, err
	}

	name, err := r.arena.CString(nameOff)
	if err != nil {
		return DecodedModule{}, err
	}

	revRaw, err := r.arena.Raw(recOff+mrRevision, revisionLen)
	if err != nil {
		return DecodedModule{}, err
	}

	revision := strings.TrimRight(string(revRaw), "\x00")

	replay, err := r.arena.AtomicU32(recOff + mrReplaySupp)
	if err != nil {
		return DecodedModule{}, err
	}

	features, err := r.decodeStringArray(recOff+mrFeatCount, recOff+mrFeaturesOff)
	if err != nil {
		return DecodedModule{}, err
	}

	deps, err := r.decodeDepArray(recOff+mrDepCount, recOff+mrDepsOff)
	if err != nil {
		return DecodedModule{}, err
	}

	invDeps, err := r.decodeStringArray(recOff+mrInvDepCount, recOff+mrInvDepsOff)
	if err != nil {
		return DecodedModule{}, err
	}

	rpcs, err := r.decodeRPCArray(recOff)
	if err != nil {
		return DecodedModule{}, err
	}

	notifs, err := r.decodeNotifArray(recOff)
	if err != nil {
		return DecodedModule{}, err
	}

	return DecodedModule{
		Name:          name,
		Revision:      revision,
		ReplaySupport: replay != 0,
		Features:      features,
		Deps:          deps,
		InverseDeps:   invDeps,
		RPCs:          rpcs,
		Notifications: notifs,
	}, nil
}

func (r *Registry) decodeStringArray(countOff, arrOffOff uint32) ([]string, error) {
	count, err := r.arena.U32(countOff)
	if err != nil {
		return nil, err
	}

	if count == 0 {
		return nil, nil
	}

	arrOff, err := r.arena.U32(arrOffOff)
	if err != nil {
		return nil, err
	}

	out := make([]string, count)

	for i := uint32(0); i < count; i++ {
		strOff, err := r.arena.U32(arrOff + i*4)
		if err != nil {
			return nil, err
		}

		out[i], err = r.arena.CString(strOff)
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

func (r *Registry) decodeDepArray(countOff, arrOffOff uint32) ([]DecodedDep, error) {
	count, err := r.arena.U32(countOff)
	if err != nil {
		return nil, err
	}

	if count == 0 {
		return nil, nil
	}

	arrOff, err := r.arena.U32(arrOffOff)
	if err != nil {
		return nil, err
	}

	out := make([]DecodedDep, count)

	for i := uint32(0); i < count; i++ {
		recOff := arrOff + i*depRecSize

		kind, err := r.arena.U32(recOff + drKind)
		if err != nil {
			return nil, err
		}

		modOff, err := r.arena.U32(recOff + drModule)
		if err != nil {
			return nil, err
		}

		var modName string
		if modOff != 0 {
			modName, err = r.arena.CString(modOff)
			if err != nil {
				return nil, err
			}
		}

		pathOff, err := r.arena.U32(recOff + drPath)
		if err != nil {
			return nil, err
		}

		var xpath string
		if pathOff != 0 {
			xpath, err = r.arena.CString(pathOff)
			if err != nil {
				return nil, err
			}
		}

		out[i] = DecodedDep{Kind: kind, Module: modName, XPath: xpath}
	}

	return out, nil
}

func (r *Registry) decodeRPC(rOff uint32) (DecodedRPC, error) {
	pathOff, err := r.arena.U32(rOff + rrPath)
	if err != nil {
		return DecodedRPC{}, err
	}

	path, err := r.arena.CString(pathOff)
	if err != nil {
		return DecodedRPC{}, err
	}

	inDeps, err := r.decodeDepArray(rOff+rrInDepCount, rOff+rrInDepsOff)
	if err != nil {
		return DecodedRPC{}, err
	}

	outDeps, err := r.decodeDepArray(rOff+rrOutDepCount, rOff+rrOutDepsOff)
	if err != nil {
		return DecodedRPC{}, err
	}

	return DecodedRPC{Path: path, InDeps: inDeps, OutDeps: outDeps}, nil
}

func (r *Registry) decodeRPCArray(recOff uint32) ([]DecodedRPC, error) {
	count, err := r.arena.U32(recOff + mrRPCCount)
	if err != nil {
		return nil, err
	}

	if count == 0 {
		return nil, nil
	}

	arrOff, err := r.arena.U32(recOff + mrRPCsOff)
	if err != nil {
		return nil, err
	}

	out := make([]DecodedRPC, count)

	for i := uint32(0); i < count; i++ {
		out[i], err = r.decodeRPC(arrOff + i*rpcRecSize)
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

func (r *Registry) decodeNotifArray(recOff uint32) ([]DecodedNotification, error) {
	count, err := r.arena.U32(recOff + mrNotifCount)
	if err != nil {
		return nil, err
	}

	if count == 0 {
		return nil, nil
	}

	arrOff, err := r.arena.U32(recOff + mrNotifsOff)
	if err != nil {
		return nil, err
	}

	out := make([]DecodedNotification, count)

	for i := uint32(0); i < count; i++ {
		nOff := arrOff + i*notifRecSize

		pathOff, err := r.arena.U32(nOff + nrPath)
		if err != nil {
			return nil, err
		}

		path, err := r.arena.CString(pathOff)
		if err != nil {
			return nil, err
		}

		deps, err := r.decodeDepArray(nOff+nrDepCount, nOff+nrDepsOff)
		if err != nil {
			return nil, err
		}

		out[i] = DecodedNotification{Path: path, Deps: deps}
	}

	return out, nil
}
