package msr_test

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/myonlystarWang/sysrepo/internal/msr"
	"github.com/myonlystarWang/sysrepo/internal/schema"
	"github.com/myonlystarWang/sysrepo/internal/shmarena"
)

func newTestRegistry(t *testing.T) *msr.Registry {
	t.Helper()

	path := filepath.Join(t.TempDir(), "main_shm")

	arena, created, err := shmarena.Open(path, 0o644, 0o022, 0)
	require.NoError(t, err)
	require.True(t, created)

	t.Cleanup(func() { _ = arena.Close() })

	reg, err := msr.Init(arena, msr.Options{})
	require.NoError(t, err)

	return reg
}

func Test_Init_Empty_Bootstrap_Has_Zero_Modules(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)

	count, err := reg.ModCount()
	require.NoError(t, err)
	require.Zero(t, count)

	ver, err := reg.ShmVer()
	require.NoError(t, err)
	require.Equal(t, uint32(1), ver)
}

func Test_Open_Rejects_Bad_Magic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "main_shm")

	arena, _, err := shmarena.Open(path, 0o644, 0o022, 64)
	require.NoError(t, err)
	defer arena.Close()

	_, err = msr.Open(arena, msr.Options{})
	require.ErrorIs(t, err, msr.ErrUnsupported)
}

func Test_Open_Reattaches_To_An_Initialized_Registry(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "main_shm")

	arena, _, err := shmarena.Open(path, 0o644, 0o022, 0)
	require.NoError(t, err)

	_, err = msr.Init(arena, msr.Options{})
	require.NoError(t, err)
	require.NoError(t, arena.Close())

	arena2, created, err := shmarena.Open(path, 0o644, 0o022, 0)
	require.NoError(t, err)
	require.False(t, created)
	defer arena2.Close()

	reg, err := msr.Open(arena2, msr.Options{})
	require.NoError(t, err)

	count, err := reg.ModCount()
	require.NoError(t, err)
	require.Zero(t, count)
}

func twoModuleTree() schema.Tree {
	return schema.Tree{
		Modules: []schema.Module{
			{
				Name:          "base-mod",
				Revision:      "2024-01-01",
				ReplaySupport: true,
				Features:      []string{"feat-a", "feat-b"},
			},
			{
				Name:     "dep-mod",
				Revision: "2024-02-02",
				Deps: []schema.Dep{
					{Kind: schema.DepRef, Module: "base-mod"},
					{Kind: schema.DepInstID, XPath: "/base-mod:leaf"},
				},
				RPCs: []schema.RPC{
					{
						Path:    "/dep-mod:do-thing",
						InDeps:  []schema.Dep{{Kind: schema.DepRef, Module: "base-mod"}},
						OutDeps: nil,
					},
				},
				Notifications: []schema.Notification{
					{Path: "/dep-mod:something-happened"},
				},
			},
		},
	}
}

func Test_StoreModules_Two_Module_Build_Resolves_Deps_And_Inverse_Deps(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)

	require.NoError(t, reg.StoreModules(twoModuleTree()))

	count, err := reg.ModCount()
	require.NoError(t, err)
	require.Equal(t, uint32(2), count)

	baseIdx, found, err := reg.FindModule("base-mod")
	require.NoError(t, err)
	require.True(t, found)

	base, err := reg.DecodeModule(baseIdx)
	require.NoError(t, err)

	require.Equal(t, "base-mod", base.Name)
	require.Equal(t, "2024-01-01", base.Revision)
	require.True(t, base.ReplaySupport)
	require.Equal(t, []string{"feat-a", "feat-b"}, base.Features)
	require.Equal(t, []string{"dep-mod"}, base.InverseDeps)

	depIdx, found, err := reg.FindModule("dep-mod")
	require.NoError(t, err)
	require.True(t, found)

	dep, err := reg.DecodeModule(depIdx)
	require.NoError(t, err)

	wantDeps := []msr.DecodedDep{
		{Kind: uint32(schema.DepRef), Module: "base-mod"},
		{Kind: uint32(schema.DepInstID), XPath: "/base-mod:leaf"},
	}
	if diff := cmp.Diff(wantDeps, dep.Deps); diff != "" {
		t.Fatalf("deps mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, dep.RPCs, 1)
	require.Equal(t, "/dep-mod:do-thing", dep.RPCs[0].Path)
	require.Len(t, dep.RPCs[0].InDeps, 1)
	require.Equal(t, "base-mod", dep.RPCs[0].InDeps[0].Module)

	require.Len(t, dep.Notifications, 1)
	require.Equal(t, "/dep-mod:something-happened", dep.Notifications[0].Path)
}

func Test_FindRPC_Locates_By_Full_XPath(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)
	require.NoError(t, reg.StoreModules(twoModuleTree()))

	rpc, found, err := reg.FindRPC("/dep-mod:do-thing")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "/dep-mod:do-thing", rpc.Path)

	_, found, err = reg.FindRPC("/dep-mod:no-such-rpc")
	require.NoError(t, err)
	require.False(t, found)
}

func Test_StoreModules_Rebuild_With_Same_Schema_Is_Idempotent_In_Size(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)
	tree := twoModuleTree()

	require.NoError(t, reg.StoreModules(tree))
	firstSize := reg.Arena().Size()

	require.NoError(t, reg.StoreModules(tree))
	secondSize := reg.Arena().Size()

	require.Equal(t, firstSize, secondSize)

	idx, found, err := reg.FindModule("dep-mod")
	require.NoError(t, err)
	require.True(t, found)

	decoded, err := reg.DecodeModule(idx)
	require.NoError(t, err)
	require.Len(t, decoded.Deps, 2)
}

func Test_StoreModules_Rebuild_With_Smaller_Schema_Shrinks_Arena(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)

	require.NoError(t, reg.StoreModules(twoModuleTree()))
	largeSize := reg.Arena().Size()

	smallTree := schema.Tree{
		Modules: []schema.Module{{Name: "base-mod", Revision: "2024-01-01"}},
	}

	require.NoError(t, reg.StoreModules(smallTree))
	smallSize := reg.Arena().Size()

	require.Less(t, smallSize, largeSize)

	count, err := reg.ModCount()
	require.NoError(t, err)
	require.Equal(t, uint32(1), count)

	require.NoError(t, reg.StoreModules(smallTree))
	require.Equal(t, smallSize, reg.Arena().Size())
}

func Test_StoreModules_Rejects_Dep_On_Unknown_Module(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)

	tree := schema.Tree{
		Modules: []schema.Module{
			{
				Name: "lonely",
				Deps: []schema.Dep{{Kind: schema.DepRef, Module: "does-not-exist"}},
			},
		},
	}

	err := reg.StoreModules(tree)
	require.ErrorIs(t, err, msr.ErrInternal)
}

func Test_StoreModules_Rejects_Malformed_Ref_Dep(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)

	tree := schema.Tree{
		Modules: []schema.Module{
			{Name: "a"},
			{
				Name: "b",
				// A REF dep must carry a module and no xpath.
				Deps: []schema.Dep{{Kind: schema.DepRef, Module: "a", XPath: "/a:leaf"}},
			},
		},
	}

	err := reg.StoreModules(tree)
	require.ErrorIs(t, err, msr.ErrInvalArg)
}

func Test_UpdateReplaySupport_Toggles_Flag(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)
	require.NoError(t, reg.StoreModules(twoModuleTree()))

	require.NoError(t, reg.UpdateReplaySupport("dep-mod", true))

	idx, _, err := reg.FindModule("dep-mod")
	require.NoError(t, err)

	decoded, err := reg.DecodeModule(idx)
	require.NoError(t, err)
	require.True(t, decoded.ReplaySupport)
}

func Test_UpdateReplaySupport_Unknown_Module_Is_NotFound(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)

	err := reg.UpdateReplaySupport("ghost", true)
	require.ErrorIs(t, err, msr.ErrNotFound)
}
