package createlock

import (
	"github.com/myonlystarWang/sysrepo/internal/extshm"
	"github.com/myonlystarWang/sysrepo/internal/msr"
	"github.com/myonlystarWang/sysrepo/internal/pathutil"
	"github.com/myonlystarWang/sysrepo/internal/shmarena"
)

// Bootstrap performs the main_open sequence under the create-lock:
// open-or-create the main and ext arenas, initialize a fresh header if
// the main arena was just created, otherwise validate the existing one,
// and sweep stale event-pipe files on first open of a repository.
// created reports whether this call initialized a new registry (vs.
// attaching to an existing one).
//
// Mirrors main_open's three steps: attempt to open existing SHM, else
// create and initialize it, all while holding the create-lock so two
// racing processes never both believe they created it.
func Bootstrap(layout pathutil.Layout, umask int, opts msr.Options) (reg *msr.Registry, ext *extshm.Arena, created bool, err error) {
	if err := layout.EnsureDirs(); err != nil {
		return nil, nil, false, err
	}

	lock, err := Open(layout.CreateLock(), pathutil.FilePerm, umask)
	if err != nil {
		return nil, nil, false, err
	}
	defer func() { _ = lock.Close() }()

	err = WithLock(lock, func() error {
		mainArena, mainCreated, openErr := shmarena.Open(layout.MainSHM(), pathutil.FilePerm, umask, 0)
		if openErr != nil {
			return openErr
		}

		extArena, _, openErr := shmarena.Open(layout.ExtSHM(), pathutil.FilePerm, umask, 0)
		if openErr != nil {
			_ = mainArena.Close()

			return openErr
		}

		extWrapped, openErr := extshm.Open(extArena)
		if openErr != nil {
			_ = mainArena.Close()
			_ = extArena.Close()

			return openErr
		}

		var r *msr.Registry

		if mainCreated {
			r, openErr = msr.Init(mainArena, opts)
			if openErr != nil {
				_ = mainArena.Close()
				_ = extArena.Close()

				return openErr
			}

			if sweepErr := layout.SweepStaleEvpipes(); sweepErr != nil {
				_ = mainArena.Close()
				_ = extArena.Close()

				return sweepErr
			}
		} else {
			r, openErr = msr.Open(mainArena, opts)
			if openErr != nil {
				_ = mainArena.Close()
				_ = extArena.Close()

				return openErr
			}
		}

		reg, ext, created = r, extWrapped, mainCreated

		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}

	return reg, ext, created, nil
}
