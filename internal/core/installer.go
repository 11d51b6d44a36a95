package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gitmzc/claude-code-bridge/internal/core/asset"
	"github.com/gitmzc/claude-code-bridge/internal/core/osutil"
	"github.com/gitmzc/claude-code-bridge/internal/core/provider"
	"github.com/gitmzc/claude-code-bridge/internal/core/system"
	"github.com/gitmzc/claude-code-bridge/internal/core/terminal"
)

const (
	defaultInstallPrefix = "~/.local/share/codex-dual"
	defaultBinDir        = "~/.local/bin"
	manifestName         = "install.json"
)

// ErrMissingDependency means no supported terminal multiplexer is installed.
var ErrMissingDependency = errors.New("missing dependency")

// Installer copies the ccb binary into the install prefix, writes the
// command shims and patches the AI CLI configs.
type Installer struct {
	Prefix  string // CODEX_INSTALL_PREFIX
	BinDir  string // CODEX_BIN_DIR
	Lang    string // CCB_LANG
	Version string
	Exe     string // binary to install; the running executable when empty

	// Terminals lists the installed terminal backends. Replaced in tests.
	Terminals func() []string
}

// NewInstaller creates an Installer configured from CODEX_INSTALL_PREFIX,
// CODEX_BIN_DIR and CCB_LANG.
func NewInstaller(version string) *Installer {
	prefix := osutil.EnvString("CODEX_INSTALL_PREFIX")
	if prefix == "" {
		prefix = defaultInstallPrefix
	}
	binDir := osutil.EnvString("CODEX_BIN_DIR")
	if binDir == "" {
		binDir = defaultBinDir
	}
	return &Installer{
		Prefix:    osutil.ExpandPath(prefix),
		BinDir:    osutil.ExpandPath(binDir),
		Lang:      asset.ResolveLang(os.Getenv("CCB_LANG")),
		Version:   version,
		Terminals: terminal.Available,
	}
}

// InstallOptions configures an installation.
type InstallOptions struct {
	SkipDeps bool            // do not require a terminal backend
	NoPath   bool            // never touch shell rc files
	DryRun   bool            // report without writing
	Systems  []system.System // systems to patch; all when nil
}

// InstallResult is the report of an install or uninstall.
type InstallResult struct {
	Changes  []system.Change
	PathHint string // manual PATH instruction, when ccb could not add it
	Manifest *InstallManifest
}

func (r *InstallResult) add(c system.Change) { r.Changes = append(r.Changes, c) }

// BinaryPath returns where the installed ccb binary lives.
func (inst *Installer) BinaryPath() string {
	name := "ccb"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(inst.Prefix, "bin", name)
}

// ManifestPath returns the install manifest path.
func (inst *Installer) ManifestPath() string {
	return filepath.Join(inst.Prefix, manifestName)
}

// ShimNames returns ccb and every bridge command.
func ShimNames() []string {
	return append([]string{"ccb"}, provider.AllCommands()...)
}

// Install runs every install step. A failing system step does not stop the
// others; the first error is returned with the full report.
func (inst *Installer) Install(opts InstallOptions) (*InstallResult, error) {
	res := &InstallResult{}

	if !opts.SkipDeps {
		if found := inst.Terminals(); len(found) == 0 {
			return res, NewExitError(ExitMissingDependency,
				fmt.Errorf("no terminal backend found (install WezTerm, iTerm2 with it2, or tmux): %w", ErrMissingDependency))
		}
	}

	exe := inst.Exe
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return res, fmt.Errorf("locating the running binary: %w", err)
		}
	}
	c, err := inst.copyBinary(exe, opts.DryRun)
	res.add(c)
	if err != nil {
		return res, err
	}

	prev, _ := inst.ReadManifest()
	owned := prev.owned()
	if owned == nil {
		owned = map[string]system.Ownership{}
	}
	manifest := &InstallManifest{
		Version:     inst.Version,
		InstalledAt: time.Now().UTC(),
		Prefix:      inst.Prefix,
		BinDir:      inst.BinDir,
		Binary:      inst.BinaryPath(),
	}

	for _, name := range ShimNames() {
		c, path, err := inst.writeShim(name, opts.DryRun)
		res.add(c)
		if err != nil {
			return res, err
		}
		manifest.Shims = append(manifest.Shims, path)
	}

	systems := opts.Systems
	if systems == nil {
		systems = system.All()
	}
	var firstErr error
	for _, s := range systems {
		changes, err := s.Install(system.InstallOptions{Lang: inst.Lang, DryRun: opts.DryRun})
		res.Changes = append(res.Changes, changes...)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("configuring %s: %w", s.DisplayName(), err)
		}
		recordOwned(owned, changes)
		manifest.Files = append(manifest.Files, manifestEntries(s, owned)...)
	}

	if !opts.NoPath && !onPath(inst.BinDir) {
		if runtime.GOOS == "windows" {
			res.PathHint = fmt.Sprintf("Add %s to your user PATH (System Properties > Environment Variables).", inst.BinDir)
		} else {
			rc := shellRC()
			c, err := system.UpsertBlockFile(rc, system.HashMarkers, pathExport(inst.BinDir), system.Append, nil, opts.DryRun)
			res.add(c)
			if err != nil && firstErr == nil {
				firstErr = err
			}
			recordOwned(owned, []system.Change{c})
			manifest.PathRC = rc
			if own, ok := owned[rc]; ok {
				manifest.PathRCOwned = &own
			}
			res.PathHint = fmt.Sprintf("Restart your shell or run: source %s", rc)
		}
	}

	res.Manifest = manifest
	c, err = inst.writeManifest(manifest, opts.DryRun)
	res.add(c)
	if err != nil && firstErr == nil {
		firstErr = err
	}

	log.Info().Str("prefix", inst.Prefix).Str("bin_dir", inst.BinDir).Int("changes", len(res.Changes)).Msg("install finished")
	return res, firstErr
}

// Uninstall removes what Install created. It is best effort: missing
// targets are skipped and errors are collected, never fatal.
func (inst *Installer) Uninstall(opts InstallOptions) (*InstallResult, error) {
	res := &InstallResult{}
	manifest, _ := inst.ReadManifest()
	owned := manifest.owned()

	shims := make([]string, 0, len(ShimNames()))
	for _, name := range ShimNames() {
		shims = append(shims, inst.shimPath(name))
	}
	if manifest != nil {
		for _, s := range manifest.Shims {
			if !slices.Contains(shims, s) {
				shims = append(shims, s)
			}
		}
	}

	var firstErr error
	note := func(c system.Change, err error) {
		res.add(c)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, path := range shims {
		note(inst.removeShim(path, opts.DryRun))
	}

	systems := opts.Systems
	if systems == nil {
		systems = system.All()
	}
	for _, s := range systems {
		changes, err := s.Uninstall(system.InstallOptions{DryRun: opts.DryRun, Owned: owned})
		res.Changes = append(res.Changes, changes...)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("cleaning %s: %w", s.DisplayName(), err)
		}
	}

	if !opts.NoPath {
		rcs := candidateRCs()
		if manifest != nil && manifest.PathRC != "" && !slices.Contains(rcs, manifest.PathRC) {
			rcs = append(rcs, manifest.PathRC)
		}
		for _, rc := range rcs {
			var own *system.Ownership
			if manifest != nil && rc == manifest.PathRC {
				own = &system.Ownership{}
				if manifest.PathRCOwned != nil {
					own = manifest.PathRCOwned
				}
			}
			c, err := system.RemoveBlockFile(rc, system.HashMarkers, own, opts.DryRun)
			if c.Action == system.ActionSkipped {
				continue
			}
			note(c, err)
		}
	}

	note(inst.removePrefix(opts.DryRun))
	log.Info().Str("prefix", inst.Prefix).Int("changes", len(res.Changes)).Msg("uninstall finished")
	return res, firstErr
}

// ReadManifest loads <prefix>/install.json.
func (inst *Installer) ReadManifest() (*InstallManifest, error) {
	data, err := os.ReadFile(inst.ManifestPath())
	if err != nil {
		return nil, err
	}
	var m InstallManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", inst.ManifestPath(), err)
	}
	return &m, nil
}

func (inst *Installer) copyBinary(exe string, dryRun bool) (system.Change, error) {
	dst := inst.BinaryPath()
	c := system.Change{Target: dst}
	if same, _ := sameFile(exe, dst); same {
		c.Action = system.ActionUnchanged
		return c, nil
	}
	existed := osutil.FileExists(dst)
	if dryRun {
		c.Action, c.Detail = system.ActionWrote, "dry run"
		return c, nil
	}
	changed, err := osutil.CopyFile(exe, dst)
	if err != nil {
		c.Action = system.ActionError
		return c, fmt.Errorf("copying %s to %s: %w", exe, dst, err)
	}
	switch {
	case !changed:
		c.Action = system.ActionUnchanged
	case existed:
		c.Action = system.ActionUpdated
	default:
		c.Action = system.ActionWrote
	}
	if err := os.Chmod(dst, 0o755); err != nil {
		c.Action = system.ActionError
		return c, err
	}
	return c, nil
}

func (inst *Installer) shimPath(name string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(inst.BinDir, name+".cmd")
	}
	return filepath.Join(inst.BinDir, name)
}

// shimContent is the .cmd wrapper body used on Windows.
func (inst *Installer) shimContent(name string) string {
	args := "%*"
	if name != "ccb" {
		args = name + " %*"
	}
	return fmt.Sprintf("@echo off\r\n\"%s\" %s\r\n", inst.BinaryPath(), args)
}

// writeShim makes name dispatch to the installed binary: a symlink on Unix,
// a .cmd wrapper on Windows.
func (inst *Installer) writeShim(name string, dryRun bool) (system.Change, string, error) {
	path := inst.shimPath(name)
	c := system.Change{Target: path}

	if runtime.GOOS == "windows" {
		old, err := osutil.ReadFileIfExists(path)
		if err != nil {
			c.Action = system.ActionError
			return c, path, err
		}
		if old != nil && string(old) == inst.shimContent(name) {
			c.Action = system.ActionUnchanged
			return c, path, nil
		}
		c.Action = system.ActionWrote
		if old != nil {
			c.Action = system.ActionUpdated
		}
		if dryRun {
			c.Detail = "dry run"
			return c, path, nil
		}
		if err := osutil.WriteFileAtomic(path, []byte(inst.shimContent(name)), 0o755); err != nil {
			c.Action = system.ActionError
			return c, path, err
		}
		return c, path, nil
	}

	target := inst.BinaryPath()
	if link, err := os.Readlink(path); err == nil && link == target {
		c.Action = system.ActionUnchanged
		return c, path, nil
	}
	c.Action = system.ActionWrote
	if osutil.PathExists(path) {
		c.Action = system.ActionUpdated
	}
	if dryRun {
		c.Detail = "dry run"
		return c, path, nil
	}
	if err := os.MkdirAll(inst.BinDir, 0o755); err != nil {
		c.Action = system.ActionError
		return c, path, fmt.Errorf("creating %s: %w", inst.BinDir, err)
	}
	_ = os.Remove(path)
	if err := os.Symlink(target, path); err != nil {
		c.Action = system.ActionError
		return c, path, fmt.Errorf("linking %s: %w", path, err)
	}
	return c, path, nil
}

// removeShim deletes a shim only when it points at our binary.
func (inst *Installer) removeShim(path string, dryRun bool) (system.Change, error) {
	c := system.Change{Target: path}
	if !osutil.PathExists(path) {
		c.Action, c.Detail = system.ActionSkipped, "not found"
		return c, nil
	}
	if !inst.ownsShim(path) {
		c.Action, c.Detail = system.ActionSkipped, "not a ccb shim"
		return c, nil
	}
	c.Action = system.ActionRemoved
	if dryRun {
		c.Detail = "dry run"
		return c, nil
	}
	if err := os.Remove(path); err != nil {
		c.Action = system.ActionError
		return c, fmt.Errorf("removing %s: %w", path, err)
	}
	return c, nil
}

func (inst *Installer) ownsShim(path string) bool {
	if strings.HasSuffix(path, ".cmd") {
		data, err := os.ReadFile(path)
		return err == nil && strings.Contains(string(data), inst.BinaryPath())
	}
	link, err := os.Readlink(path)
	return err == nil && link == inst.BinaryPath()
}

// writeManifest writes the manifest. A re-install that changes nothing
// keeps the original installed_at.
func (inst *Installer) writeManifest(m *InstallManifest, dryRun bool) (system.Change, error) {
	path := inst.ManifestPath()
	c := system.Change{Target: path, Action: system.ActionWrote}
	if old, err := inst.ReadManifest(); err == nil {
		c.Action = system.ActionUpdated
		stamp := m.InstalledAt
		m.InstalledAt = old.InstalledAt
		if a, b := mustJSON(old), mustJSON(m); a != "" && a == b {
			c.Action = system.ActionUnchanged
			return c, nil
		}
		m.InstalledAt = stamp
	}
	if dryRun {
		c.Detail = "dry run"
		return c, nil
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		c.Action = system.ActionError
		return c, fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := osutil.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		c.Action = system.ActionError
		return c, err
	}
	return c, nil
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func (inst *Installer) removePrefix(dryRun bool) (system.Change, error) {
	c := system.Change{Target: inst.Prefix}
	if inst.Prefix == "" || !osutil.DirExists(inst.Prefix) {
		c.Action, c.Detail = system.ActionSkipped, "not found"
		return c, nil
	}
	c.Action = system.ActionRemoved
	if dryRun {
		c.Detail = "dry run"
		return c, nil
	}
	if err := os.RemoveAll(inst.Prefix); err != nil {
		c.Action = system.ActionError
		return c, fmt.Errorf("removing %s: %w", inst.Prefix, err)
	}
	return c, nil
}

// owned collects the recorded ownership by path. A nil manifest yields nil.
func (m *InstallManifest) owned() map[string]system.Ownership {
	if m == nil {
		return nil
	}
	out := map[string]system.Ownership{}
	for _, f := range m.Files {
		if f.Owned != nil {
			out[f.Path] = *f.Owned
		}
	}
	if m.PathRC != "" && m.PathRCOwned != nil {
		out[m.PathRC] = *m.PathRCOwned
	}
	return out
}

// recordOwned merges what changes added into owned. A re-install that
// adds nothing keeps the earlier record.
func recordOwned(owned map[string]system.Ownership, changes []system.Change) {
	for _, c := range changes {
		if c.Owned != nil {
			owned[c.Target] = owned[c.Target].Merge(*c.Owned)
		}
	}
}

// manifestEntries lists what a system's install owns.
func manifestEntries(s system.System, owned map[string]system.Ownership) []ManifestEntry {
	out := manifestPaths(s)
	for i := range out {
		if own, ok := owned[out[i].Path]; ok {
			out[i].Owned = &own
		}
	}
	return out
}

func manifestPaths(s system.System) []ManifestEntry {
	var out []ManifestEntry
	if s.Supports(asset.KindRule) {
		out = append(out, ManifestEntry{System: s.Name(), Path: s.InstructionsFile(), Owns: "block"})
	}
	if sf, ok := s.(interface{ SettingsFile() string }); ok && sf.SettingsFile() != "" {
		out = append(out, ManifestEntry{System: s.Name(), Path: sf.SettingsFile(), Owns: "entries"})
	}
	if s.Name() == "codex" {
		out = append(out, ManifestEntry{System: s.Name(), Path: filepath.Join(s.Home(), "config.toml"), Owns: "block"})
	}
	if s.Supports(asset.KindCommand) {
		out = append(out, ManifestEntry{System: s.Name(), Path: filepath.Join(s.Home(), "commands"), Owns: "file"})
	}
	if s.Supports(asset.KindSkill) {
		out = append(out, ManifestEntry{System: s.Name(), Path: filepath.Join(s.Home(), "skills"), Owns: "file"})
	}
	return out
}

// onPath reports whether dir is listed in $PATH.
func onPath(dir string) bool {
	want := osutil.NormalizePathForMatch(dir)
	for _, p := range filepath.SplitList(os.Getenv("PATH")) {
		if p != "" && osutil.NormalizePathForMatch(p) == want {
			return true
		}
	}
	return false
}

func pathExport(binDir string) string {
	return fmt.Sprintf("export PATH=\"%s:$PATH\"", binDir)
}

// shellRC picks the rc file for $SHELL.
func shellRC() string {
	home, _ := os.UserHomeDir()
	switch filepath.Base(os.Getenv("SHELL")) {
	case "zsh":
		return filepath.Join(home, ".zshrc")
	case "bash":
		return filepath.Join(home, ".bashrc")
	default:
		return filepath.Join(home, ".profile")
	}
}

func candidateRCs() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, ".zshrc"),
		filepath.Join(home, ".bashrc"),
		filepath.Join(home, ".profile"),
	}
}

// sameFile reports whether a and b resolve to the same file.
func sameFile(a, b string) (bool, error) {
	ai, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	return os.SameFile(ai, bi), nil
}
