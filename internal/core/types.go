// Package core provides the business logic behind the ccb CLI:
// configuration, the installer, the launcher and the services around the
// bridge. It has zero UI dependencies and is independently testable.
package core

import (
	"slices"
	"time"

	"github.com/gitmzc/claude-code-bridge/internal/core/provider"
	"github.com/gitmzc/claude-code-bridge/internal/core/system"
)

// Config is the project configuration read from .ccb-config.json.
type Config struct {
	Terminal          string   `json:"terminal,omitempty"`
	DefaultProviders  []string `json:"default_providers,omitempty"`
	AutoMode          bool     `json:"auto_mode,omitempty"`
	KeepOpen          *bool    `json:"keep_open,omitempty"`
	WarmupTimeout     float64  `json:"warmup_timeout,omitempty"`     // seconds
	HeartbeatInterval float64  `json:"heartbeat_interval,omitempty"` // seconds
	TimeoutAction     string   `json:"timeout_action,omitempty"`
}

const (
	defaultWarmupTimeout = 8 * time.Second
	defaultProvider      = "codex"
)

// Providers returns the configured default providers, or codex.
func (c *Config) Providers() []string {
	if len(c.DefaultProviders) == 0 {
		return []string{defaultProvider}
	}
	return slices.Clone(c.DefaultProviders)
}

// KeepPanesOpen reports whether provider panes drop into a shell when the
// CLI exits. Defaults to true.
func (c *Config) KeepPanesOpen() bool {
	return c.KeepOpen == nil || *c.KeepOpen
}

// Warmup returns the provider warmup budget.
func (c *Config) Warmup() time.Duration {
	if c.WarmupTimeout <= 0 {
		return defaultWarmupTimeout
	}
	return time.Duration(c.WarmupTimeout * float64(time.Second))
}

// Heartbeat returns the session heartbeat interval, or 0 when disabled.
func (c *Config) Heartbeat() time.Duration {
	if c.HeartbeatInterval <= 0 {
		return 0
	}
	return time.Duration(c.HeartbeatInterval * float64(time.Second))
}

// AskRecord is one row of the history store.
type AskRecord struct {
	ID         string     `json:"id"`
	Provider   string     `json:"provider"`
	WorkDir    string     `json:"work_dir"`
	Question   string     `json:"question"`
	Reply      string     `json:"reply,omitempty"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ElapsedMS  int64      `json:"elapsed_ms"`
}

// InstallManifest is written to <prefix>/install.json so uninstall removes
// exactly what install created.
type InstallManifest struct {
	Version     string            `json:"version"`
	InstalledAt time.Time         `json:"installed_at"`
	Prefix      string            `json:"prefix"`
	BinDir      string            `json:"bin_dir"`
	Binary      string            `json:"binary"`
	Shims       []string          `json:"shims"`
	Files       []ManifestEntry   `json:"files"`
	PathRC      string            `json:"path_rc,omitempty"`
	PathRCOwned *system.Ownership `json:"path_rc_owned,omitempty"`
}

// ManifestEntry is a user file ccb patched and what it owns there.
type ManifestEntry struct {
	System string `json:"system,omitempty"`
	Path   string `json:"path"`
	Owns   string `json:"owns"` // "block", "entries", "file"

	// Owned is what install added to a file that existed before it.
	Owned *system.Ownership `json:"owned,omitempty"`
}

// knownProvider reports whether name is a registered provider.
func knownProvider(name string) bool {
	_, ok := provider.ByName(name)
	return ok
}
