package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"slices"
	"strings"
	"time"

	units "github.com/docker/go-units"

	"github.com/gitmzc/claude-code-bridge/internal/core/osutil"
	"github.com/gitmzc/claude-code-bridge/internal/core/provider"
	"github.com/gitmzc/claude-code-bridge/internal/core/session"
	"github.com/gitmzc/claude-code-bridge/internal/core/system"
	"github.com/gitmzc/claude-code-bridge/internal/core/terminal"
)

const versionProbeTimeout = 5 * time.Second

// DiagnosticCheck is one line of `ccb doctor`.
type DiagnosticCheck struct {
	Name       string `json:"name"`
	Passed     bool   `json:"passed"`
	Required   bool   `json:"required"`
	Message    string `json:"message,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Doctor runs the environment checks.
type Doctor struct {
	WorkDir   string
	Config    *ConfigManager
	Installer *Installer

	// version runs `<bin> --version`; replaced in tests.
	version func(ctx context.Context, bin string) (string, error)
}

// NewDoctor returns a Doctor for workDir.
func NewDoctor(workDir string, cm *ConfigManager, inst *Installer) *Doctor {
	return &Doctor{WorkDir: workDir, Config: cm, Installer: inst, version: commandVersion}
}

// Run executes every check in display order.
func (d *Doctor) Run(ctx context.Context) []DiagnosticCheck {
	checks := []DiagnosticCheck{d.checkTerminal()}
	for _, p := range provider.All() {
		checks = append(checks, d.checkProvider(ctx, p))
	}
	checks = append(checks,
		d.checkSessions(),
		d.checkConfig(),
	)
	checks = append(checks, d.checkSystems()...)
	checks = append(checks,
		d.checkEnvironment(),
		d.checkInstall(),
		d.checkState(),
	)
	if wsl, ok := d.checkWSL(ctx); ok {
		checks = append(checks, wsl)
	}
	return checks
}

// Failed counts the required checks that did not pass.
func Failed(checks []DiagnosticCheck) int {
	n := 0
	for _, c := range checks {
		if c.Required && !c.Passed {
			n++
		}
	}
	return n
}

func (d *Doctor) checkTerminal() DiagnosticCheck {
	c := DiagnosticCheck{Name: "Terminal Backend", Required: true}
	found := terminal.Available()
	if runtime.GOOS == "darwin" && !slices.Contains(found, "iterm2") && osutil.DirExists("/Applications/iTerm.app") {
		found = append(found, "iterm2 (it2 CLI not installed)")
	}
	if len(found) == 0 {
		c.Message = "No terminal backend found"
		c.Suggestion = CodeSuggestion(ExitTerminalNotSupported)
		return c
	}
	c.Passed = true
	c.Message = strings.Join(found, ", ")
	if name, err := terminal.DetectName(); err == nil {
		c.Message += " (using " + name + ")"
	}
	return c
}

func (d *Doctor) checkProvider(ctx context.Context, p provider.Provider) DiagnosticCheck {
	c := DiagnosticCheck{Name: p.DisplayName() + " CLI"}
	if !provider.Installed(p) {
		c.Message = "Not installed"
		c.Suggestion = "Install: " + p.InstallHint()
		return c
	}
	v, err := d.version(ctx, p.Command())
	if err != nil {
		c.Message = "Installed but not working: " + err.Error()
		c.Suggestion = "Try reinstalling: " + p.InstallHint()
		return c
	}
	c.Passed = true
	c.Message = v
	return c
}

func (d *Doctor) checkSessions() DiagnosticCheck {
	c := DiagnosticCheck{Name: "Session Files", Passed: true}
	var found []string
	for _, name := range SessionNames() {
		path := session.FilePath(d.WorkDir, name)
		info, err := session.Read(path)
		if err != nil {
			if !errors.Is(err, session.ErrNotFound) {
				c.Passed = false
				c.Suggestion = CodeSuggestion(ExitSessionInvalid)
				found = append(found, name+" (invalid)")
			}
			continue
		}
		label := name
		if !info.Active {
			label += " (inactive)"
		} else if fi, err := os.Stat(path); err == nil {
			label += " (updated " + units.HumanDuration(time.Since(fi.ModTime())) + " ago)"
		}
		found = append(found, label)
	}
	if len(found) == 0 {
		c.Message = "No sessions in this directory (this is normal)"
		return c
	}
	c.Message = "Found: " + strings.Join(found, ", ")
	return c
}

func (d *Doctor) checkConfig() DiagnosticCheck {
	c := DiagnosticCheck{Name: "Configuration", Required: true, Passed: true}
	path := FindConfig(d.WorkDir)
	if path == "" {
		c.Message = "No config file (using defaults)"
		return c
	}
	if _, err := LoadConfigFile(path); err != nil {
		c.Passed = false
		c.Message = err.Error()
		c.Suggestion = CodeSuggestion(ExitCodeFor(err))
		return c
	}
	c.Message = "Valid: " + path
	return c
}

// checkSystems reports the integration of every installed host CLI.
func (d *Doctor) checkSystems() []DiagnosticCheck {
	var out []DiagnosticCheck
	for _, s := range system.All() {
		if !s.IsInstalled() {
			continue
		}
		c := DiagnosticCheck{Name: s.DisplayName() + " Integration", Passed: true}
		var ok, bad []string
		for _, f := range s.Inspect() {
			if f.OK {
				ok = append(ok, f.Name)
				continue
			}
			c.Passed = false
			bad = append(bad, f.Name+": "+f.Detail)
		}
		if c.Passed {
			c.Message = strings.Join(ok, ", ")
		} else {
			c.Message = strings.Join(bad, "; ")
			c.Suggestion = "Run: ccb install"
		}
		out = append(out, c)
	}
	return out
}

var doctorEnvVars = []string{
	"CCB_TERMINAL", "CCB_LANG", "CCB_TIMEOUT_ACTION", "CODEX_SESSION_ROOT",
	"GEMINI_ROOT", "CODEX_INSTALL_PREFIX", "CODEX_BIN_DIR",
}

func (d *Doctor) checkEnvironment() DiagnosticCheck {
	c := DiagnosticCheck{Name: "Environment", Passed: true}
	var set []string
	for _, v := range NewEnvResolver(d.WorkDir, d.Config.EnvPath()).ResolveEnvWithSource(doctorEnvVars) {
		if v.Source != "" {
			set = append(set, fmt.Sprintf("%s (%s)", v.Name, v.Source))
		}
	}
	if len(set) == 0 {
		c.Message = "Using defaults"
		return c
	}
	c.Message = "Set: " + strings.Join(set, ", ")
	return c
}

func (d *Doctor) checkInstall() DiagnosticCheck {
	c := DiagnosticCheck{Name: "Installation", Passed: true}
	m, err := d.Installer.ReadManifest()
	if err != nil {
		c.Message = "Not installed via 'ccb install'"
		if !os.IsNotExist(err) {
			c.Passed = false
			c.Message = err.Error()
		}
		c.Suggestion = "Run: ccb install"
		return c
	}
	c.Message = fmt.Sprintf("v%s in %s, %d shims", strings.TrimPrefix(m.Version, "v"), m.Prefix, len(m.Shims))
	if !onPath(m.BinDir) {
		c.Message += ", " + m.BinDir + " not on PATH"
		c.Suggestion = "Add to your shell profile: " + pathExport(m.BinDir)
	}
	return c
}

// checkState reports the size of the log and history files.
func (d *Doctor) checkState() DiagnosticCheck {
	c := DiagnosticCheck{Name: "State Directory", Passed: true}
	parts := []string{d.Config.ConfigDir()}
	if fi, err := os.Stat(d.Config.HistoryPath()); err == nil {
		parts = append(parts, "history "+units.HumanSize(float64(fi.Size())))
	}
	if entries, err := os.ReadDir(d.Config.LogDir()); err == nil {
		var total int64
		for _, e := range entries {
			if fi, err := e.Info(); err == nil {
				total += fi.Size()
			}
		}
		parts = append(parts, "logs "+units.HumanSize(float64(total)))
	}
	c.Message = strings.Join(parts, ", ")
	return c
}

func (d *Doctor) checkWSL(ctx context.Context) (DiagnosticCheck, bool) {
	data, err := os.ReadFile("/proc/version")
	if err != nil || !strings.Contains(strings.ToLower(string(data)), "microsoft") {
		return DiagnosticCheck{}, false
	}
	c := DiagnosticCheck{Name: "WSL", Passed: true}
	out, err := d.version(ctx, "wsl.exe")
	switch {
	case err != nil:
		c.Message = "WSL detected (version unknown)"
	case strings.Contains(out, "WSL 2"), strings.Contains(out, "WSL version: 2"):
		c.Message = "WSL 2 detected"
	default:
		c.Passed = false
		c.Message = "WSL 1 detected"
		c.Suggestion = "Upgrade to WSL 2: wsl --set-version <distro> 2"
	}
	return c, true
}

// commandVersion returns the first line `bin --version` prints.
func commandVersion(ctx context.Context, bin string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, bin, "--version").CombinedOutput()
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	if len(line) > 50 {
		line = line[:50]
	}
	if line == "" {
		line = "Installed"
	}
	return line, nil
}
