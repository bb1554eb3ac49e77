package createlock_test

import (
	"testing"

	"github.com/myonlystarWang/sysrepo/internal/createlock"
	"github.com/myonlystarWang/sysrepo/internal/msr"
	"github.com/myonlystarWang/sysrepo/internal/pathutil"
)

func Test_Bootstrap_Creates_A_Fresh_Registry_On_First_Call(t *testing.T) {
	t.Parallel()

	layout, err := pathutil.New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	reg, ext, created, err := createlock.Bootstrap(layout, 0o022, msr.Options{})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	defer reg.Arena().Close()
	defer ext.Raw().Close()

	if !created {
		t.Fatalf("expected created=true for a fresh repository")
	}

	count, err := reg.ModCount()
	if err != nil {
		t.Fatalf("ModCount: %v", err)
	}

	if count != 0 {
		t.Fatalf("ModCount = %d, want 0", count)
	}
}

func Test_Bootstrap_Reattaches_On_Second_Call(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	layout, err := pathutil.New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	reg1, ext1, created1, err := createlock.Bootstrap(layout, 0o022, msr.Options{})
	if err != nil {
		t.Fatalf("Bootstrap 1: %v", err)
	}

	if !created1 {
		t.Fatalf("expected created=true on first bootstrap")
	}

	cid, err := reg1.NewCID()
	if err != nil {
		t.Fatalf("NewCID: %v", err)
	}

	if err := reg1.Arena().Close(); err != nil {
		t.Fatalf("Close reg1: %v", err)
	}

	if err := ext1.Raw().Close(); err != nil {
		t.Fatalf("Close ext1: %v", err)
	}

	reg2, ext2, created2, err := createlock.Bootstrap(layout, 0o022, msr.Options{})
	if err != nil {
		t.Fatalf("Bootstrap 2: %v", err)
	}
	defer reg2.Arena().Close()
	defer ext2.Raw().Close()

	if created2 {
		t.Fatalf("expected created=false when reattaching to an existing repository")
	}

	nextCID, err := reg2.NewCID()
	if err != nil {
		t.Fatalf("NewCID: %v", err)
	}

	if nextCID != cid+1 {
		t.Fatalf("NewCID = %d, want %d (counters must persist across reattach)", nextCID, cid+1)
	}
}
