package msr

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/myonlystarWang/sysrepo/internal/pathutil"
)

const datastoreReadMaxRetries = 10

// WriteDatastore atomically replaces module name's on-disk datastore
// content for datastore ds, under its per-module level-3 data lock, and
// bumps the module's version counter so a reader that cached ver can
// tell the content changed underneath it.
func (r *Registry) WriteDatastore(layout pathutil.Layout, name string, ds int, data []byte) error {
	idx, found, err := r.findModuleIndex(name)
	if err != nil {
		return err
	}

	if !found {
		return newErr(ErrNotFound, "module %q not found", name)
	}

	path, err := datastorePath(layout, name, ds)
	if err != nil {
		return err
	}

	lock, err := r.DataLock(idx, ds)
	if err != nil {
		return err
	}

	return lock.WithLock(r.lockTimeout, func() error {
		if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("msr: write datastore %s: %w", path, err)
		}

		_, err := r.arena.AtomicAddU32(moduleRecordOffset(idx)+mrVer, 1)

		return err
	})
}

// ReadDatastore reads module name's datastore content for datastore ds
// under an optimistic read of its level-3 data lock, retrying if a
// concurrent WriteDatastore overlapped the read. A datastore file that
// does not yet exist reads as empty rather than failing, matching an
// unconfigured module.
func (r *Registry) ReadDatastore(layout pathutil.Layout, name string, ds int) ([]byte, error) {
	idx, found, err := r.findModuleIndex(name)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, newErr(ErrNotFound, "module %q not found", name)
	}

	path, err := datastorePath(layout, name, ds)
	if err != nil {
		return nil, err
	}

	lock, err := r.DataLock(idx, ds)
	if err != nil {
		return nil, err
	}

	result, err := readRetry(lock, datastoreReadMaxRetries, func() (any, error) {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return []byte{}, nil
		}

		if err != nil {
			return nil, fmt.Errorf("msr: read datastore %s: %w", path, err)
		}

		return data, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}

// ModuleVersion returns module name's current content version, bumped by
// every successful WriteDatastore.
func (r *Registry) ModuleVersion(name string) (uint32, error) {
	idx, found, err := r.findModuleIndex(name)
	if err != nil {
		return 0, err
	}

	if !found {
		return 0, newErr(ErrNotFound, "module %q not found", name)
	}

	return r.arena.AtomicU32(moduleRecordOffset(idx) + mrVer)
}

// datastorePath resolves the backing file for datastore ds. The
// candidate datastore is a volatile, session-local copy of running and
// is never persisted, so it has no backing file.
func datastorePath(layout pathutil.Layout, module string, ds int) (string, error) {
	switch ds {
	case DSStartup:
		return layout.DataStartup(module), nil
	case DSRunning:
		return layout.DataRunning(module), nil
	case DSOperational:
		return layout.DataOperational(module), nil
	case DSCandidate:
		return "", newErr(ErrUnsupported, "candidate datastore has no persistent backing file")
	default:
		return "", newErr(ErrInvalArg, "unknown datastore index %d", ds)
	}
}
