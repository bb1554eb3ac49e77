// Package pathutil computes filesystem paths for the shared-memory registry
// and its satellite files from a configured repository root, following the
// same derived-subdirectory convention sysrepo's own sr_path_*/
// sr_shmmain_check_dirs helpers use: one root, several well-known
// subpaths computed from it rather than stored independently.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirPerm is the permission mode for directories created under the
// repository root, before umask is applied.
const DirPerm = 0o777

// FilePerm is the permission mode for files created under the repository
// root, before umask is applied.
const FilePerm = 0o666

// Layout resolves all well-known paths under a repository root.
//
// The zero value is not usable; construct with [New].
type Layout struct {
	root string
}

// New returns a Layout rooted at the given repository directory.
//
// root is used as-is (not created); call [Layout.EnsureDirs] separately.
func New(root string) (Layout, error) {
	if root == "" {
		return Layout{}, fmt.Errorf("pathutil: empty repository root")
	}

	return Layout{root: root}, nil
}

// Root returns the configured repository root.
func (l Layout) Root() string { return l.root }

// MainSHM returns the path to the main SHM arena backing file.
func (l Layout) MainSHM() string { return filepath.Join(l.root, "main_shm") }

// ExtSHM returns the path to the ext SHM arena backing file.
func (l Layout) ExtSHM() string { return filepath.Join(l.root, "ext_shm") }

// CreateLock returns the path to the create-lock file.
//
// This file is never truncated and is distinct from the main SHM file
// itself (spec requirement: structural-change serialization must not
// contend with readers mapping the SHM file).
func (l Layout) CreateLock() string { return filepath.Join(l.root, "main_shm.lock") }

// ConnDir returns the directory holding per-connection lock files.
func (l Layout) ConnDir() string { return filepath.Join(l.root, "conn") }

// ConnLock returns the path to the lock file for a given connection id.
func (l Layout) ConnLock(cid uint32) string {
	return filepath.Join(l.ConnDir(), fmt.Sprintf("%d.lock", cid))
}

// DataDir returns the directory holding per-module datastore files.
func (l Layout) DataDir() string { return filepath.Join(l.root, "data") }

// DataStartup returns the path to a module's startup datastore file.
func (l Layout) DataStartup(module string) string {
	return filepath.Join(l.DataDir(), module+".startup")
}

// DataRunning returns the path to a module's running datastore file.
func (l Layout) DataRunning(module string) string {
	return filepath.Join(l.DataDir(), module+".running")
}

// DataOperational returns the path to a module's operational datastore file.
func (l Layout) DataOperational(module string) string {
	return filepath.Join(l.DataDir(), module+".operational")
}

// EnsureDirs creates the root, connection, and data directories if missing.
//
// Directories are created with [DirPerm] before umask, matching
// sr_shmmain_check_dirs's access()-then-mkpath pattern.
func (l Layout) EnsureDirs() error {
	for _, dir := range []string{l.root, l.ConnDir(), l.DataDir()} {
		if err := os.MkdirAll(dir, DirPerm); err != nil {
			return fmt.Errorf("pathutil: create directory %s: %w", dir, err)
		}
	}

	return nil
}

// SweepStaleEvpipes removes leftover event-pipe files under the repository
// root left behind by a crashed process.
//
// Event pipe creation and use belongs to the out-of-scope event-pipe
// component; MSR only owns the one-time cleanup sweep performed during
// bootstrap (spec: "perform a one-time cleanup of leftover event pipes").
// Files are named "evpipe.<n>" at the repository root.
func (l Layout) SweepStaleEvpipes() error {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("pathutil: read repo root: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if len(name) > 7 && name[:7] == "evpipe." {
			_ = os.Remove(filepath.Join(l.root, name))
		}
	}

	return nil
}
