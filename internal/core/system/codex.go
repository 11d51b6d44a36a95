package system

import "github.com/gitmzc/claude-code-bridge/internal/core/asset"

// Codex implements the System interface for the Codex CLI.
type Codex struct {
	BaseSystem
}

// NewCodex creates a configured Codex system. Codex only receives the
// reply protocol in AGENTS.md and the paste-burst switch in config.toml.
func NewCodex() *Codex {
	return &Codex{BaseSystem{
		name:             "codex",
		displayName:      "Codex",
		homeEnv:          "CODEX_HOME",
		defaultHome:      "~/.codex",
		binary:           "codex",
		supportedKinds:   []asset.Kind{asset.KindRule},
		instructionsFile: "AGENTS.md",
		ruleTarget:       asset.TargetCodex,
		tomlFile:         "config.toml",
		tomlBody:         "disable_paste_burst = true",
	}}
}

func init() { Register(NewCodex()) }
