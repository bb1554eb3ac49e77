package schema_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/myonlystarWang/sysrepo/internal/schema"
)

func Test_DumpJSON_LoadJSON_RoundTrip(t *testing.T) {
	t.Parallel()

	tree := schema.Tree{
		Modules: []schema.Module{
			{
				Name:     "a",
				Revision: "2024-01-01",
				Features: []string{"x"},
			},
			{
				Name: "b",
				Deps: []schema.Dep{{Kind: schema.DepRef, Module: "a"}},
			},
		},
	}

	path := filepath.Join(t.TempDir(), "tree.json")

	if err := schema.DumpJSON(path, tree); err != nil {
		t.Fatalf("DumpJSON: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	got, err := schema.LoadJSON(data)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}

	if diff := cmp.Diff(tree, got); diff != "" {
		t.Fatalf("round-trip mismatch (-want +got):\n%s", diff)
	}
}
