// Package config loads repository configuration for the registry: the
// on-disk root, the umask applied to newly created arena/lock files, and
// the default lock-acquisition timeout.
//
// Precedence is global config, then project config, then CLI overrides.
// Files are preprocessed with hujson.Standardize (so comments and trailing
// commas are allowed) before encoding/json decodes them. A repo_root key
// that is present but set to "" is distinguished from one that is simply
// absent and rejected, so a config file can't silently clear the root.
// Other fields set to their zero value are treated as absent.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tailscale/hujson"
)

// Config holds all configuration options for a registry repository.
type Config struct {
	RepoRoot      string `json:"repo_root"`
	Umask         string `json:"umask,omitempty"`
	LockTimeoutMs int    `json:"lock_timeout_ms,omitempty"`
}

// Sources tracks which config files were loaded, for diagnostics.
type Sources struct {
	Global  string
	Project string
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".sysrepo.json"

// DefaultUmask mirrors sysrepo's SR_UMASK (owner keeps full access, group
// loses write access, no access to others).
const DefaultUmask = "0027"

// DefaultLockTimeoutMs matches msr.DefaultLockTimeout in milliseconds.
const DefaultLockTimeoutMs = 2000

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigFileRead     = errors.New("cannot read config file")
	errConfigInvalid      = errors.New("invalid config file")
	errRepoRootEmpty      = errors.New("repo_root cannot be empty")
)

// DefaultConfig returns the default configuration. RepoRoot is left
// empty; callers must supply one via a config file or CLI override.
func DefaultConfig() Config {
	return Config{
		Umask:         DefaultUmask,
		LockTimeoutMs: DefaultLockTimeoutMs,
	}
}

// getGlobalConfigPath returns $XDG_CONFIG_HOME/sysrepo/config.json, or
// ~/.config/sysrepo/config.json if unset, or "" if neither resolves.
func getGlobalConfigPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "sysrepo", "config.json")
		}
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sysrepo", "config.json")
	}

	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, ".config", "sysrepo", "config.json")
	}

	return ""
}

// Load loads configuration with the following precedence (highest wins):
//  1. Defaults
//  2. Global user config
//  3. Project config file at workDir/.sysrepo.json, or an explicit path
//  4. CLI overrides
func Load(workDir, configPath string, cliOverrides Config, hasRepoRootOverride bool, env []string) (Config, Sources, error) {
	cfg := DefaultConfig()

	var sources Sources

	globalCfg, globalPath, err := loadGlobalConfig(env)
	if err != nil {
		return Config{}, Sources{}, err
	}

	sources.Global = globalPath
	cfg = mergeConfig(cfg, globalCfg)

	projectCfg, projectPath, err := loadProjectConfig(workDir, configPath)
	if err != nil {
		return Config{}, Sources{}, err
	}

	sources.Project = projectPath
	cfg = mergeConfig(cfg, projectCfg)

	if hasRepoRootOverride {
		cfg.RepoRoot = cliOverrides.RepoRoot
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, Sources{}, err
	}

	return cfg, sources, nil
}

func loadGlobalConfig(env []string) (Config, string, error) {
	path := getGlobalConfigPath(env)
	if path == "" {
		return Config{}, "", nil
	}

	cfg, explicitEmpty, loaded, err := loadConfigFile(path, false)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	if explicitEmpty["repo_root"] {
		return Config{}, "", fmt.Errorf("%w %s: %w", errConfigInvalid, path, errRepoRootEmpty)
	}

	return cfg, path, nil
}

func loadProjectConfig(workDir, configPath string) (Config, string, error) {
	var cfgFile string

	var mustExist bool

	if configPath != "" {
		cfgFile = configPath
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(workDir, cfgFile)
		}

		mustExist = true

		if _, err := os.Stat(cfgFile); err != nil {
			return Config{}, "", fmt.Errorf("%w: %s", errConfigFileNotFound, configPath)
		}
	} else {
		cfgFile = filepath.Join(workDir, ConfigFileName)
		mustExist = false
	}

	cfg, explicitEmpty, loaded, err := loadConfigFile(cfgFile, mustExist)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	if explicitEmpty["repo_root"] {
		return Config{}, "", fmt.Errorf("%w %s: %w", errConfigInvalid, cfgFile, errRepoRootEmpty)
	}

	return cfg, cfgFile, nil
}

func loadConfigFile(path string, mustExist bool) (Config, map[string]bool, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, nil, false, nil
		}

		if mustExist {
			return Config{}, nil, false, fmt.Errorf("%w: %s", errConfigFileRead, path)
		}

		return Config{}, nil, false, nil
	}

	cfg, explicitEmpty, err := parseConfig(data)
	if err != nil {
		return Config{}, nil, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	return cfg, explicitEmpty, true, nil
}

func parseConfig(data []byte) (Config, map[string]bool, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, nil, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, nil, fmt.Errorf("invalid JSON: %w", err)
	}

	var raw map[string]any

	_ = json.Unmarshal(standardized, &raw)

	explicitEmpty := make(map[string]bool)

	if val, exists := raw["repo_root"]; exists {
		if str, ok := val.(string); ok && str == "" {
			explicitEmpty["repo_root"] = true
		}
	}

	return cfg, explicitEmpty, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.RepoRoot != "" {
		base.RepoRoot = overlay.RepoRoot
	}

	if overlay.Umask != "" {
		base.Umask = overlay.Umask
	}

	if overlay.LockTimeoutMs != 0 {
		base.LockTimeoutMs = overlay.LockTimeoutMs
	}

	return base
}

func validateConfig(cfg Config) error {
	if cfg.RepoRoot == "" {
		return errRepoRootEmpty
	}

	return nil
}

// ParseUmask parses the config's Umask string (e.g. "0027") as an octal
// int suitable for unix.Umask.
func ParseUmask(s string) (int, error) {
	if s == "" {
		s = DefaultUmask
	}

	var v int

	if _, err := fmt.Sscanf(s, "%o", &v); err != nil {
		return 0, fmt.Errorf("config: invalid umask %q: %w", s, err)
	}

	return v, nil
}

// LockTimeout returns LockTimeoutMs as a time.Duration, falling back to
// DefaultLockTimeoutMs if unset.
func (c Config) LockTimeout() time.Duration {
	ms := c.LockTimeoutMs
	if ms <= 0 {
		ms = DefaultLockTimeoutMs
	}

	return time.Duration(ms) * time.Millisecond
}

// FormatConfig returns cfg as formatted JSON, for "print-config"-style
// diagnostics.
func FormatConfig(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}

	return string(data), nil
}
