package system

import "github.com/gitmzc/claude-code-bridge/internal/core/asset"

// GeminiCLI implements the System interface for the Gemini CLI.
type GeminiCLI struct {
	BaseSystem
}

// NewGeminiCLI creates a configured Gemini CLI system.
func NewGeminiCLI() *GeminiCLI {
	return &GeminiCLI{BaseSystem{
		name:             "gemini",
		displayName:      "Gemini CLI",
		homeEnv:          "GEMINI_HOME",
		defaultHome:      "~/.gemini",
		binary:           "gemini",
		supportedKinds:   []asset.Kind{asset.KindRule},
		instructionsFile: "GEMINI.md",
		ruleTarget:       asset.TargetGemini,
		settingsFile:     "settings.json",
		settingsPointer:  "/tools/allowed",
		settingsEntry:    func(cmd string) string { return "run_shell_command(" + cmd + ")" },
	}}
}

func init() { Register(NewGeminiCLI()) }
