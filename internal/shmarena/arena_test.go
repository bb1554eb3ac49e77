package shmarena_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/myonlystarWang/sysrepo/internal/shmarena"
)

func Test_Open_Creates_File_And_Truncates_To_InitSize(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "main_shm")

	a, created, err := shmarena.Open(path, 0o644, 0o022, 4096)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	if !created {
		t.Fatalf("expected created=true for a fresh path")
	}

	if a.Size() != 4096 {
		t.Fatalf("size = %d, want 4096", a.Size())
	}
}

func Test_Open_Existing_File_Does_Not_Truncate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "main_shm")

	a1, _, err := shmarena.Open(path, 0o644, 0o022, 4096)
	if err != nil {
		t.Fatalf("Open 1: %v", err)
	}

	if err := a1.PutU32(0, 0xDEADBEEF); err != nil {
		t.Fatalf("PutU32: %v", err)
	}

	if err := a1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	a2, created, err := shmarena.Open(path, 0o644, 0o022, 8192)
	if err != nil {
		t.Fatalf("Open 2: %v", err)
	}
	defer a2.Close()

	if created {
		t.Fatalf("expected created=false for an existing path")
	}

	if a2.Size() != 4096 {
		t.Fatalf("size = %d, want unchanged 4096 (initSize must be ignored on reopen)", a2.Size())
	}

	got, err := a2.U32(0)
	if err != nil {
		t.Fatalf("U32: %v", err)
	}

	if got != 0xDEADBEEF {
		t.Fatalf("U32(0) = %#x, want 0xDEADBEEF (data must survive reopen)", got)
	}
}

func Test_Remap_Grows_In_Place_And_Preserves_Existing_Bytes(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "main_shm")

	a, _, err := shmarena.Open(path, 0o644, 0o022, 64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	if err := a.PutU64(8, 42); err != nil {
		t.Fatalf("PutU64: %v", err)
	}

	if err := a.Remap(4096); err != nil {
		t.Fatalf("Remap: %v", err)
	}

	if a.Size() != 4096 {
		t.Fatalf("size after remap = %d, want 4096", a.Size())
	}

	got, err := a.U64(8)
	if err != nil {
		t.Fatalf("U64: %v", err)
	}

	if got != 42 {
		t.Fatalf("U64(8) after remap = %d, want 42", got)
	}
}

func Test_Remap_Rejects_Shrink(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "main_shm")

	a, _, err := shmarena.Open(path, 0o644, 0o022, 4096)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	if err := a.Remap(64); err == nil {
		t.Fatalf("Remap to a smaller size should fail")
	}
}

func Test_Remap_Zero_Resyncs_To_Current_File_Size(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "main_shm")

	a1, _, err := shmarena.Open(path, 0o644, 0o022, 64)
	if err != nil {
		t.Fatalf("Open 1: %v", err)
	}
	defer a1.Close()

	a2, _, err := shmarena.Open(path, 0o644, 0o022, 64)
	if err != nil {
		t.Fatalf("Open 2: %v", err)
	}
	defer a2.Close()

	// a2 grows the backing file behind a1's back, as a peer process's
	// rebuild would.
	if err := a2.Remap(4096); err != nil {
		t.Fatalf("Remap: %v", err)
	}

	if a1.Size() != 64 {
		t.Fatalf("a1 size before resync = %d, want unchanged 64", a1.Size())
	}

	if err := a1.Remap(0); err != nil {
		t.Fatalf("Remap(0): %v", err)
	}

	if a1.Size() != 4096 {
		t.Fatalf("a1 size after Remap(0) = %d, want 4096 (picked up peer's growth)", a1.Size())
	}
}

func Test_Remap_Zero_Is_NoOp_When_File_Size_Unchanged(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "main_shm")

	a, _, err := shmarena.Open(path, 0o644, 0o022, 4096)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	if err := a.Remap(0); err != nil {
		t.Fatalf("Remap(0): %v", err)
	}

	if a.Size() != 4096 {
		t.Fatalf("size after no-op Remap(0) = %d, want unchanged 4096", a.Size())
	}
}

func Test_ShrinkTo_Compacts_Arena(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "main_shm")

	a, _, err := shmarena.Open(path, 0o644, 0o022, 64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	if err := a.PutU64(8, 42); err != nil {
		t.Fatalf("PutU64: %v", err)
	}

	if err := a.Remap(4096); err != nil {
		t.Fatalf("Remap: %v", err)
	}

	if err := a.ShrinkTo(64); err != nil {
		t.Fatalf("ShrinkTo: %v", err)
	}

	if a.Size() != 64 {
		t.Fatalf("size after ShrinkTo = %d, want 64", a.Size())
	}

	got, err := a.U64(8)
	if err != nil {
		t.Fatalf("U64: %v", err)
	}

	if got != 42 {
		t.Fatalf("U64(8) after ShrinkTo = %d, want 42 (bytes within the new size must survive)", got)
	}
}

func Test_ShrinkTo_Rejects_Grow(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "main_shm")

	a, _, err := shmarena.Open(path, 0o644, 0o022, 64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	if err := a.ShrinkTo(4096); err == nil {
		t.Fatalf("ShrinkTo to a larger size should fail")
	}
}

func Test_Accessors_Reject_Out_Of_Range_Offsets(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "main_shm")

	a, _, err := shmarena.Open(path, 0o644, 0o022, 16)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	if _, err := a.U32(13); !errors.Is(err, shmarena.ErrCorrupt) {
		t.Fatalf("U32 near the end should fail with ErrCorrupt, got %v", err)
	}

	if _, err := a.U64(9); !errors.Is(err, shmarena.ErrCorrupt) {
		t.Fatalf("U64 near the end should fail with ErrCorrupt, got %v", err)
	}

	if _, err := a.CString(100); !errors.Is(err, shmarena.ErrCorrupt) {
		t.Fatalf("CString beyond arena size should fail with ErrCorrupt, got %v", err)
	}
}

func Test_CString_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "main_shm")

	a, _, err := shmarena.Open(path, 0o644, 0o022, 64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	n, err := a.PutCString(0, "ietf-interfaces")
	if err != nil {
		t.Fatalf("PutCString: %v", err)
	}

	if n != uint32(len("ietf-interfaces"))+1 {
		t.Fatalf("PutCString wrote %d bytes, want %d", n, len("ietf-interfaces")+1)
	}

	got, err := a.CString(0)
	if err != nil {
		t.Fatalf("CString: %v", err)
	}

	if got != "ietf-interfaces" {
		t.Fatalf("CString = %q, want %q", got, "ietf-interfaces")
	}
}

func Test_CString_Missing_Terminator_Is_Corrupt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "main_shm")

	a, _, err := shmarena.Open(path, 0o644, 0o022, 8)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	for i := range 8 {
		_ = a.PutRaw(uint32(i), []byte{'x'})
	}

	if _, err := a.CString(0); !errors.Is(err, shmarena.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for an unterminated string, got %v", err)
	}
}

func Test_AtomicAddU32_Is_Monotonic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "main_shm")

	a, _, err := shmarena.Open(path, 0o644, 0o022, 16)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	first, err := a.AtomicAddU32(0, 1)
	if err != nil {
		t.Fatalf("AtomicAddU32: %v", err)
	}

	second, err := a.AtomicAddU32(0, 1)
	if err != nil {
		t.Fatalf("AtomicAddU32: %v", err)
	}

	if first != 1 || second != 2 {
		t.Fatalf("AtomicAddU32 sequence = %d, %d, want 1, 2", first, second)
	}
}

func Test_AtomicCASU64_OnlySucceedsOnMatch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "main_shm")

	a, _, err := shmarena.Open(path, 0o644, 0o022, 16)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	ok, err := a.AtomicCASU64(0, 1, 2)
	if err != nil {
		t.Fatalf("AtomicCASU64: %v", err)
	}

	if ok {
		t.Fatalf("CAS against wrong old value should fail")
	}

	ok, err = a.AtomicCASU64(0, 0, 2)
	if err != nil {
		t.Fatalf("AtomicCASU64: %v", err)
	}

	if !ok {
		t.Fatalf("CAS against the correct old value should succeed")
	}

	got, err := a.U64(0)
	if err != nil {
		t.Fatalf("U64: %v", err)
	}

	if got != 2 {
		t.Fatalf("U64(0) = %d, want 2", got)
	}
}
