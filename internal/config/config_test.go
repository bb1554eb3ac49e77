package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/myonlystarWang/sysrepo/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func Test_Load_Uses_Defaults_With_CLI_Override_When_No_Config_Files_Exist(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cfg, sources, err := config.Load(dir, "", config.Config{RepoRoot: "/data/repo"}, true, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.RepoRoot != "/data/repo" {
		t.Fatalf("RepoRoot = %q, want /data/repo", cfg.RepoRoot)
	}

	if cfg.Umask != config.DefaultUmask {
		t.Fatalf("Umask = %q, want default %q", cfg.Umask, config.DefaultUmask)
	}

	if sources.Project != "" {
		t.Fatalf("expected no project config loaded, got %q", sources.Project)
	}
}

func Test_Load_Reads_Project_Config_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.ConfigFileName), `{
		// trailing comments are fine, it's JSONC
		"repo_root": "/var/lib/sysrepo",
		"umask": "0022",
	}`)

	cfg, sources, err := config.Load(dir, "", config.Config{}, false, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.RepoRoot != "/var/lib/sysrepo" {
		t.Fatalf("RepoRoot = %q", cfg.RepoRoot)
	}

	if cfg.Umask != "0022" {
		t.Fatalf("Umask = %q", cfg.Umask)
	}

	if sources.Project == "" {
		t.Fatalf("expected project config path to be recorded")
	}
}

func Test_Load_Rejects_Explicit_Empty_RepoRoot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.ConfigFileName), `{"repo_root": ""}`)

	_, _, err := config.Load(dir, "", config.Config{}, false, nil)
	if err == nil {
		t.Fatalf("expected an error for explicit empty repo_root")
	}
}

func Test_Load_Fails_Without_RepoRoot_Anywhere(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, _, err := config.Load(dir, "", config.Config{}, false, nil)
	if err == nil {
		t.Fatalf("expected an error when repo_root is never set")
	}
}

func Test_ParseUmask_Parses_Octal_String(t *testing.T) {
	t.Parallel()

	got, err := config.ParseUmask("0027")
	if err != nil {
		t.Fatalf("ParseUmask: %v", err)
	}

	if got != 0o027 {
		t.Fatalf("ParseUmask = %o, want %o", got, 0o027)
	}
}

func Test_LockTimeout_Falls_Back_To_Default(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}

	if cfg.LockTimeout() != config.DefaultLockTimeoutMs*1_000_000 {
		t.Fatalf("LockTimeout = %v", cfg.LockTimeout())
	}
}
