// srd-bench opens a fresh registry, seeds it with a synthetic schema tree
// of N modules, and registers M fake connections, timing each phase to
// exercise arena growth and connection liveness under load.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/myonlystarWang/sysrepo/internal/clt"
	"github.com/myonlystarWang/sysrepo/internal/createlock"
	"github.com/myonlystarWang/sysrepo/internal/msr"
	"github.com/myonlystarWang/sysrepo/internal/pathutil"
	"github.com/myonlystarWang/sysrepo/internal/schema"
)

func main() {
	root := flag.String("root", filepath.Join(os.TempDir(), "srd-bench"), "repository root to seed")
	modules := flag.Int("modules", 1000, "number of synthetic modules to build")
	conns := flag.Int("conns", 1000, "number of fake connections to register")
	depFanout := flag.Int("dep-fanout", 2, "number of deps each module (after the first) gets on earlier modules")

	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "Usage: srd-bench [flags]\n\n")
		fmt.Fprint(os.Stderr, "Seeds a registry with synthetic modules and connections, reporting timings.\n\n")
		fmt.Fprint(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if err := run(*root, *modules, *conns, *depFanout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(root string, moduleCount, connCount, depFanout int) error {
	_ = os.RemoveAll(root)

	layout, err := pathutil.New(root)
	if err != nil {
		return err
	}

	bootstrapStart := time.Now()

	reg, ext, _, err := createlock.Bootstrap(layout, 0o022, msr.Options{})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer reg.Arena().Close()
	defer ext.Raw().Close()

	fmt.Printf("bootstrap: %s -> %s\n", time.Since(bootstrapStart), root)

	tree := syntheticTree(moduleCount, depFanout)

	buildStart := time.Now()

	if err := reg.StoreModules(tree); err != nil {
		return fmt.Errorf("store modules: %w", err)
	}

	fmt.Printf("store_modules(%d modules): %s, arena size=%d bytes\n",
		moduleCount, time.Since(buildStart), reg.Arena().Size())

	tracker := clt.New(layout)

	registerStart := time.Now()

	for i := 0; i < connCount; i++ {
		cid, err := reg.NewCID()
		if err != nil {
			return fmt.Errorf("new cid: %w", err)
		}

		if err := tracker.Register(cid); err != nil {
			return fmt.Errorf("register cid %d: %w", cid, err)
		}
	}

	fmt.Printf("register(%d conns): %s\n", connCount, time.Since(registerStart))

	return nil
}

func syntheticTree(moduleCount, depFanout int) schema.Tree {
	tree := schema.Tree{Modules: make([]schema.Module, moduleCount)}

	for i := 0; i < moduleCount; i++ {
		m := schema.Module{
			Name:     fmt.Sprintf("bench-mod-%06d", i),
			Revision: "2024-01-01",
			Features: []string{"feat-a"},
			RPCs: []schema.RPC{
				{Path: fmt.Sprintf("/bench-mod-%06d:ping", i)},
			},
			Notifications: []schema.Notification{
				{Path: fmt.Sprintf("/bench-mod-%06d:tick", i)},
			},
		}

		for j := 0; j < depFanout && j < i; j++ {
			target := i - j - 1

			m.Deps = append(m.Deps, schema.Dep{
				Kind:   schema.DepRef,
				Module: fmt.Sprintf("bench-mod-%06d", target),
			})
		}

		tree.Modules[i] = m
	}

	return tree
}
