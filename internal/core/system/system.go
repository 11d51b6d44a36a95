// Package system defines the AI CLIs ccb integrates with.
//
// A System is the user-global home of one AI CLI (Claude Code, Codex,
// Gemini). Each system knows its config directory, the instruction file
// that receives the ccb rule block, the settings file that must allow the
// ccb commands, and which embedded assets it accepts.
package system

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gitmzc/claude-code-bridge/internal/core/asset"
)

// Action describes what an install step did to one target.
type Action string

const (
	ActionWrote     Action = "wrote"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
	ActionRemoved   Action = "removed"
	ActionSkipped   Action = "skipped"
	ActionError     Action = "error"
)

// Change is one reported install or uninstall step.
type Change struct {
	Target string `json:"target"`
	Action Action `json:"action"`
	Detail string `json:"detail,omitempty"`

	// Owned is set when the step added something uninstall must take back.
	Owned *Ownership `json:"-"`
}

// Ownership records what install added to one user file, so uninstall
// restores the file as it was.
type Ownership struct {
	Entries   []string `json:"entries,omitempty"`   // array entries ccb added
	Container string   `json:"container,omitempty"` // topmost JSON pointer ccb created
	Created   bool     `json:"created,omitempty"`   // the file did not exist
	Newline   bool     `json:"newline,omitempty"`   // a final newline was added before the block
}

// Merge folds a later install's ownership into o.
func (o Ownership) Merge(later Ownership) Ownership {
	for _, e := range later.Entries {
		if !slices.Contains(o.Entries, e) {
			o.Entries = append(o.Entries, e)
		}
	}
	if o.Container == "" {
		o.Container = later.Container
	}
	o.Created = o.Created || later.Created
	o.Newline = o.Newline || later.Newline
	return o
}

// Finding is one integration check reported by Inspect.
type Finding struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// System is one AI CLI whose user-global config ccb patches.
type System interface {
	// Identity
	Name() string        // machine name: "claude", "codex", "gemini"
	DisplayName() string // human name: "Claude Code"

	// Home is the resolved config directory (CLAUDE_CONFIG_DIR, CODEX_HOME,
	// GEMINI_HOME or the ~ default).
	Home() string
	// IsInstalled reports whether the CLI is on PATH or its home exists.
	IsInstalled() bool
	// InstructionsFile is the markdown file that receives the rule block.
	InstructionsFile() string

	Supports(kind asset.Kind) bool

	// Install writes assets, the rule block and settings entries. It is
	// idempotent: a second run reports every target unchanged.
	Install(opts InstallOptions) ([]Change, error)
	// Uninstall removes what Install added. Missing targets are skipped.
	Uninstall(opts InstallOptions) ([]Change, error)
	// Inspect reports whether the integration is in place.
	Inspect() []Finding
}

// InstallOptions for system-level installation.
type InstallOptions struct {
	Lang   string // rule block language, "en" or "zh"
	DryRun bool   // report changes without writing

	// Owned maps a file path to what an earlier install added there. Nil
	// means no record exists and uninstall falls back to removing every
	// ccb entry while keeping the file.
	Owned map[string]Ownership
}

// --- Registry ---

var systems []System

// Register adds a system to the global registry.
func Register(s System) { systems = append(systems, s) }

// All returns all registered systems.
func All() []System { return systems }

// ByName returns the system with the given machine name, if registered.
func ByName(name string) (System, bool) {
	for _, s := range systems {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Detect returns all systems installed on this machine.
func Detect() []System {
	var detected []System
	for _, s := range systems {
		if s.IsInstalled() {
			detected = append(detected, s)
		}
	}
	return detected
}

// ByNames resolves a list of system names to System values.
// Returns an error if any name is unknown.
func ByNames(names []string) ([]System, error) {
	result := make([]System, 0, len(names))
	for _, name := range names {
		s, ok := ByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown system %q; available: %s",
				name, strings.Join(Names(systems), ", "))
		}
		result = append(result, s)
	}
	return result, nil
}

// Supporting returns all systems that support the given asset kind.
func Supporting(kind asset.Kind) []System {
	var result []System
	for _, s := range systems {
		if s.Supports(kind) {
			result = append(result, s)
		}
	}
	return result
}

// Names returns the machine names of the given systems.
func Names(systems []System) []string {
	names := make([]string, len(systems))
	for i, s := range systems {
		names[i] = s.Name()
	}
	return names
}

// DisplayNames returns the display names of the given systems.
func DisplayNames(systems []System) []string {
	names := make([]string, len(systems))
	for i, s := range systems {
		names[i] = s.DisplayName()
	}
	return names
}
