package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/natefinch/atomic"
)

// DumpJSON writes tree as indented JSON to path, replacing any existing
// file atomically so a reader never observes a partially written dump.
func DumpJSON(path string, tree Tree) error {
	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return fmt.Errorf("schema: marshal tree: %w", err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("schema: write %s: %w", path, err)
	}

	return nil
}

// LoadJSON reads and decodes a schema tree previously written by DumpJSON
// (or hand-authored in the same shape).
func LoadJSON(data []byte) (Tree, error) {
	var tree Tree

	if err := json.Unmarshal(data, &tree); err != nil {
		return Tree{}, fmt.Errorf("schema: unmarshal tree: %w", err)
	}

	return tree, nil
}
