package system

import "github.com/gitmzc/claude-code-bridge/internal/core/asset"

// ClaudeCode implements the System interface for Claude Code, the side that
// drives the bridge commands.
type ClaudeCode struct {
	BaseSystem
}

// NewClaudeCode creates a configured Claude Code system.
func NewClaudeCode() *ClaudeCode {
	return &ClaudeCode{BaseSystem{
		name:             "claude",
		displayName:      "Claude Code",
		homeEnv:          "CLAUDE_CONFIG_DIR",
		defaultHome:      "~/.claude",
		binary:           "claude",
		supportedKinds:   []asset.Kind{asset.KindCommand, asset.KindSkill, asset.KindRule},
		instructionsFile: "CLAUDE.md",
		ruleTarget:       asset.TargetClaude,
		legacyHeadings:   []string{"## Codex Collaboration Rules", "## Gemini Collaboration Rules"},
		settingsFile:     "settings.json",
		settingsPointer:  "/permissions/allow",
		settingsEntry:    func(cmd string) string { return "Bash(" + cmd + ":*)" },
	}}
}

func init() { Register(NewClaudeCode()) }
