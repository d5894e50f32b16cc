// Package config loads the typed, immutable server configuration shared by
// every component constructed in cmd/termhost, discovering it from one of
// several file formats before falling back to a synthesized default.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvSlice returns the process environment overlaid with this shell's
// configured variables, in the "KEY=VALUE" form os/exec expects. Configured
// variables replace any inherited entry of the same name rather than merely
// being appended after it: duplicate names in a process's environ are
// resolved implementation-defined (glibc's getenv returns the first match),
// so a same-key override only takes effect if the original is removed.
func (sc ShellConfig) EnvSlice() []string {
	merged := make(map[string]string, len(sc.Environment))
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			merged[k] = v
		}
	}
	for k, v := range sc.Environment {
		merged[k] = v
	}

	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	return env
}

// TerminalSize is a PTY window size in columns and rows.
type TerminalSize struct {
	Columns uint32 `toml:"columns" yaml:"columns" json:"columns"`
	Rows    uint32 `toml:"rows" yaml:"rows" json:"rows"`
}

// ShellConfig describes how to spawn one named shell.
type ShellConfig struct {
	Command          []string          `toml:"command" yaml:"command" json:"command"`
	WorkingDirectory string            `toml:"working_directory" yaml:"working_directory" json:"working_directory"`
	Environment      map[string]string `toml:"environment" yaml:"environment" json:"environment"`
	TerminalSize     *TerminalSize     `toml:"terminal_size" yaml:"terminal_size" json:"terminal_size"`
}

// TerminalConfig is the terminal-subsystem section of Config.
type TerminalConfig struct {
	DefaultShellType        string                 `toml:"default_shell_type" yaml:"default_shell_type" json:"default_shell_type"`
	DefaultTerminalSize     TerminalSize           `toml:"default_terminal_size" yaml:"default_terminal_size" json:"default_terminal_size"`
	DefaultWorkingDirectory string                 `toml:"default_working_directory" yaml:"default_working_directory" json:"default_working_directory"`
	SessionTimeout          uint64                 `toml:"session_timeout" yaml:"session_timeout" json:"session_timeout"`
	Shells                  map[string]ShellConfig `toml:"shells" yaml:"shells" json:"shells"`
}

// PortConfig names the TCP port a transport listens on.
type PortConfig struct {
	Port uint16 `toml:"port" yaml:"port" json:"port"`
}

// AuditConfig names the sqlite file backing the lifecycle event log.
type AuditConfig struct {
	DBPath string `toml:"db_path" yaml:"db_path" json:"db_path"`
}

// Config is the full, immutable server configuration.
type Config struct {
	Terminal     TerminalConfig `toml:"terminal" yaml:"terminal" json:"terminal"`
	HTTP         PortConfig     `toml:"http" yaml:"http" json:"http"`
	WebSocket    PortConfig     `toml:"websocket" yaml:"websocket" json:"websocket"`
	WebTransport PortConfig     `toml:"webtransport" yaml:"webtransport" json:"webtransport"`
	Audit        AuditConfig    `toml:"audit" yaml:"audit" json:"audit"`
}

// candidatePaths is the discovery order: each base path tried for every
// extension, in the order .toml, .yml, .yaml, .json.
func candidatePaths() []string {
	var paths []string
	bases := []string{
		"./application",
		"src/main/resources/application",
		"../src/main/resources/application",
	}
	exts := []string{".toml", ".yml", ".yaml", ".json"}
	for _, base := range bases {
		for _, ext := range exts {
			paths = append(paths, base+ext)
		}
	}
	return paths
}

// Load discovers a config file at one of the well-known paths and parses it
// by extension. If none exists, it returns Default().
func Load() (*Config, error) {
	for _, path := range candidatePaths() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return loadFile(path)
	}
	return Default(), nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %q: %w", path, err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse TOML %q: %w", path, err)
		}
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse YAML %q: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse JSON %q: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("config: unrecognized extension for %q", path)
	}
	return cfg, nil
}

// GetShellConfig returns the named shell's config, if present.
func (c *Config) GetShellConfig(shellType string) (ShellConfig, bool) {
	sc, ok := c.Terminal.Shells[shellType]
	return sc, ok
}

// GetDefaultShellConfig returns the default shell's config, falling back to
// "bash" if the configured default shell type is not itself present.
func (c *Config) GetDefaultShellConfig() ShellConfig {
	if sc, ok := c.GetShellConfig(c.Terminal.DefaultShellType); ok {
		return sc
	}
	return c.Terminal.Shells["bash"]
}

// Default synthesizes the configuration used when no config file is found,
// grounded on the original implementation's Config::default(): bash, sh,
// cmd, and powershell shells, with powershell as the default shell and its
// cwd pinned to ${USERPROFILE} (resolved later, at spawn time, by
// internal/ptyproc).
func Default() *Config {
	defaultEnv := map[string]string{"TERM": "xterm-256color"}

	shells := map[string]ShellConfig{
		"bash":       {Command: []string{"bash"}, Environment: cloneEnv(defaultEnv)},
		"sh":         {Command: []string{"sh"}, Environment: cloneEnv(defaultEnv)},
		"cmd":        {Command: []string{"cmd.exe"}, Environment: cloneEnv(defaultEnv)},
		"powershell": {Command: []string{"powershell.exe"}, WorkingDirectory: "${USERPROFILE}", Environment: cloneEnv(defaultEnv)},
	}

	return &Config{
		Terminal: TerminalConfig{
			DefaultShellType:        "powershell",
			DefaultTerminalSize:     TerminalSize{Columns: 80, Rows: 24},
			DefaultWorkingDirectory: ".",
			SessionTimeout:          30 * 60 * 1000,
			Shells:                  shells,
		},
		HTTP:         PortConfig{Port: 8080},
		WebSocket:    PortConfig{Port: 8081},
		WebTransport: PortConfig{Port: 8082},
		Audit:        AuditConfig{DBPath: filepath.Join(".", "data", "termhost-audit.db")},
	}
}

func cloneEnv(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
