package core

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tailscale/hujson"
	"github.com/xeipuuv/gojsonschema"

	"github.com/gitmzc/claude-code-bridge/internal/core/osutil"
	"github.com/gitmzc/claude-code-bridge/internal/core/session"
)

const (
	stateDirName      = ".ccb"
	projectConfigName = ".ccb-config.json"
)

//go:embed config.schema.json
var configSchema string

// ErrConfigInvalid marks a config file that fails to parse or validate.
var ErrConfigInvalid = errors.New("invalid configuration")

// ConfigManager handles the ccb state directory (~/.ccb, or $CCB_HOME) and
// reading and writing project configuration files.
type ConfigManager struct {
	configDir string
	mu        sync.RWMutex
}

// NewConfigManager creates a ConfigManager using the default state
// directory.
func NewConfigManager() (*ConfigManager, error) {
	if dir := osutil.EnvString("CCB_HOME"); dir != "" {
		return &ConfigManager{configDir: osutil.ExpandPath(dir)}, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}
	return &ConfigManager{
		configDir: filepath.Join(home, stateDirName),
	}, nil
}

// NewConfigManagerWithDir creates a ConfigManager using a custom state
// directory. Useful for testing.
func NewConfigManagerWithDir(dir string) *ConfigManager {
	return &ConfigManager{configDir: dir}
}

// ConfigDir returns the state directory path.
func (cm *ConfigManager) ConfigDir() string {
	return cm.configDir
}

// LogDir returns where ccb.log is written.
func (cm *ConfigManager) LogDir() string {
	return filepath.Join(cm.configDir, "logs")
}

// HistoryPath returns the sqlite history database path.
func (cm *ConfigManager) HistoryPath() string {
	return filepath.Join(cm.configDir, "history.db")
}

// EnvPath returns the global env file path.
func (cm *ConfigManager) EnvPath() string {
	return filepath.Join(cm.configDir, "ccb.env")
}

// ConfigCandidates returns the project config paths in lookup order.
func ConfigCandidates(workDir string) []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(workDir, projectConfigName),
		filepath.Join(osutil.ExpandPath("$XDG_CONFIG"), "ccb", "config.json"),
		filepath.Join(home, projectConfigName),
	}
}

// FindConfig returns the first existing config file for workDir, or "".
func FindConfig(workDir string) string {
	for _, p := range ConfigCandidates(workDir) {
		if osutil.FileExists(p) {
			return p
		}
	}
	return ""
}

// Load reads the project config for workDir. It returns defaults and an
// empty path when no config file exists.
func (cm *ConfigManager) Load(workDir string) (*Config, string, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	path := FindConfig(workDir)
	if path == "" {
		return defaultConfig(), "", nil
	}
	cfg, err := LoadConfigFile(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// LoadConfigFile reads, validates and decodes one config file. JSONC
// comments and trailing commas are accepted.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, NewExitError(ExitConfigPermission, fmt.Errorf("reading config: %w", err))
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	std, err := standardizeConfig(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w: %w", path, ErrConfigInvalid, err)
	}
	if err := ValidateConfig(std); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	cfg := defaultConfig()
	if err := json.Unmarshal(std, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w: %w", path, ErrConfigInvalid, err)
	}
	return cfg, nil
}

// ValidateConfig checks standard JSON against the embedded schema.
func ValidateConfig(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrConfigInvalid, strings.Join(msgs, "; "))
	}
	return nil
}

// Save writes cfg to path atomically.
func (cm *ConfigManager) Save(path string, cfg *Config) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := ValidateConfig(data); err != nil {
		return err
	}
	if err := osutil.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return NewExitError(ExitConfigPermission, fmt.Errorf("saving config: %w", err))
		}
		return fmt.Errorf("saving config: %w", err)
	}
	return nil
}

func standardizeConfig(data []byte) ([]byte, error) {
	v, err := hujson.Parse(data)
	if err != nil {
		return nil, err
	}
	v.Standardize()
	return v.Pack(), nil
}

func defaultConfig() *Config {
	return &Config{}
}

// ProjectConfigPath returns ./.ccb-config.json for workDir.
func ProjectConfigPath(workDir string) string {
	return filepath.Join(workDir, projectConfigName)
}

// ErrConfigExists is returned by InitProject when a config is present and
// overwrite was not requested.
var ErrConfigExists = errors.New("config file already exists")

// InitProject writes the project config and keeps the session files out
// of git when workDir is a repository. It returns the config path and the .gitignore entries added.
func (cm *ConfigManager) InitProject(workDir string, cfg *Config, overwrite bool) (string, []string, error) {
	path := ProjectConfigPath(workDir)
	if osutil.FileExists(path) && !overwrite {
		return path, nil, fmt.Errorf("%s: %w", path, ErrConfigExists)
	}
	if err := cm.Save(path, cfg); err != nil {
		return path, nil, err
	}
	if !osutil.PathExists(filepath.Join(workDir, ".git")) {
		return path, nil, nil
	}
	ignore := []string{projectEnvName}
	for _, name := range SessionNames() {
		ignore = append(ignore, session.FileName(name), session.LockPath(session.FileName(name)))
	}
	added, err := EnsureGitignore(workDir, ignore...)
	return path, added, err
}
