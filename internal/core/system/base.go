package system

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gitmzc/claude-code-bridge/internal/core/asset"
	"github.com/gitmzc/claude-code-bridge/internal/core/osutil"
	"github.com/gitmzc/claude-code-bridge/internal/core/provider"
)

// BaseSystem provides the install steps shared by every system. Individual
// systems embed it and fill in their paths.
type BaseSystem struct {
	name           string
	displayName    string
	homeEnv        string // env var overriding the home directory
	defaultHome    string // home directory with ~
	binary         string // CLI executable looked up on PATH
	supportedKinds []asset.Kind

	// Rule block
	instructionsFile string   // home-relative markdown file
	ruleTarget       string   // asset.TargetClaude, TargetCodex, TargetGemini
	legacyHeadings   []string // unmarked sections older installers wrote

	// Settings allow-list
	settingsFile    string // home-relative JSONC file
	settingsPointer string // JSON pointer of the string array
	settingsEntry   func(cmd string) string

	// TOML block
	tomlFile string
	tomlBody string
}

func (b *BaseSystem) Name() string        { return b.name }
func (b *BaseSystem) DisplayName() string { return b.displayName }

func (b *BaseSystem) Supports(kind asset.Kind) bool {
	return slices.Contains(b.supportedKinds, kind)
}

// Home returns the config directory, honouring the override env var.
func (b *BaseSystem) Home() string {
	if v := osutil.EnvString(b.homeEnv); v != "" {
		return osutil.ExpandPath(v)
	}
	return osutil.ExpandPath(b.defaultHome)
}

func (b *BaseSystem) IsInstalled() bool {
	if _, err := exec.LookPath(b.binary); err == nil {
		return true
	}
	return osutil.DirExists(b.Home())
}

func (b *BaseSystem) InstructionsFile() string {
	return filepath.Join(b.Home(), b.instructionsFile)
}

// SettingsFile returns the settings path, or "" when the system has none.
func (b *BaseSystem) SettingsFile() string {
	if b.settingsFile == "" {
		return ""
	}
	return filepath.Join(b.Home(), b.settingsFile)
}

// SettingsEntries returns the allow-list entries for every bridge command.
func (b *BaseSystem) SettingsEntries() []string {
	if b.settingsEntry == nil {
		return nil
	}
	cmds := provider.AllCommands()
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = b.settingsEntry(c)
	}
	return out
}

// Install runs every step and keeps going after a failed one; the first
// error is returned alongside the full report.
func (b *BaseSystem) Install(opts InstallOptions) ([]Change, error) {
	var r report
	home := b.Home()

	if b.Supports(asset.KindCommand) {
		r.addAll(b.installAssets(asset.KindCommand, opts.DryRun))
	}
	if b.Supports(asset.KindSkill) {
		r.addAll(b.installAssets(asset.KindSkill, opts.DryRun))
	}
	if b.Supports(asset.KindRule) {
		body, err := asset.Rule(b.ruleTarget, asset.ResolveLang(opts.Lang))
		if err != nil {
			r.add(Change{Target: b.InstructionsFile(), Action: ActionError}, err)
		} else {
			r.add(UpsertBlockFile(b.InstructionsFile(), MarkdownMarkers, string(body), Append, b.legacyHeadings, opts.DryRun))
		}
	}
	if b.settingsFile != "" {
		r.add(AddArrayEntries(b.SettingsFile(), b.settingsPointer, b.SettingsEntries(), opts.DryRun))
	}
	if b.tomlFile != "" {
		r.add(b.installTOML(filepath.Join(home, b.tomlFile), opts.DryRun))
	}

	log.Debug().Str("system", b.name).Int("changes", len(r.changes)).Msg("install finished")
	return r.changes, r.err
}

// Uninstall removes what Install wrote. Missing targets are skipped.
func (b *BaseSystem) Uninstall(opts InstallOptions) ([]Change, error) {
	var r report
	home := b.Home()

	if b.tomlFile != "" {
		path := filepath.Join(home, b.tomlFile)
		r.add(RemoveBlockFile(path, HashMarkers, opts.owned(path), opts.DryRun))
	}
	if b.settingsFile != "" {
		r.add(b.removeSettings(opts))
	}
	if b.Supports(asset.KindRule) {
		path := b.InstructionsFile()
		r.add(RemoveBlockFile(path, MarkdownMarkers, opts.owned(path), opts.DryRun))
	}
	if b.Supports(asset.KindSkill) {
		r.addAll(b.removeAssets(asset.KindSkill, opts.DryRun))
	}
	if b.Supports(asset.KindCommand) {
		r.addAll(b.removeAssets(asset.KindCommand, opts.DryRun))
	}
	return r.changes, r.err
}

// installTOML prepends the TOML block unless the file already assigns one
// of its keys at the top level, where a second assignment is a duplicate
// key. A block left over from an earlier install is then removed.
func (b *BaseSystem) installTOML(path string, dryRun bool) (Change, error) {
	raw, err := osutil.ReadFileIfExists(path)
	if err != nil {
		return Change{Target: path, Action: ActionError}, fmt.Errorf("reading %s: %w", path, err)
	}
	key, ok := userTOMLKey(string(raw), b.tomlBody)
	if !ok {
		return UpsertBlockFile(path, HashMarkers, b.tomlBody, Prepend, nil, dryRun)
	}
	if HasBlock(string(raw), HashMarkers) {
		c, err := RemoveBlockFile(path, HashMarkers, &Ownership{}, dryRun)
		c.Detail = strings.TrimSpace(c.Detail + " " + key + " already set")
		return c, err
	}
	return Change{Target: path, Action: ActionSkipped, Detail: key + " already set"}, nil
}

// removeSettings takes back the settings entries install recorded. With
// no record every ccb entry goes but the file is kept.
func (b *BaseSystem) removeSettings(opts InstallOptions) (Change, error) {
	path := b.SettingsFile()
	if opts.Owned == nil {
		top := "/" + strings.Split(strings.TrimPrefix(b.settingsPointer, "/"), "/")[0]
		return RemoveArrayEntries(path, b.settingsPointer, Ownership{Entries: b.SettingsEntries(), Container: top}, opts.DryRun)
	}
	own, ok := opts.Owned[path]
	if !ok || len(own.Entries) == 0 {
		return Change{Target: path, Action: ActionSkipped, Detail: "no ccb entries"}, nil
	}
	return RemoveArrayEntries(path, b.settingsPointer, own, opts.DryRun)
}

// owned returns the recorded ownership of path. Nil means no record
// exists; a manifest without an entry for path yields a zero Ownership.
func (o InstallOptions) owned(path string) *Ownership {
	if o.Owned == nil {
		return nil
	}
	own := o.Owned[path]
	return &own
}

// userTOMLKey returns the first key of body that content assigns at the
// top level outside the ccb block.
func userTOMLKey(content, body string) (string, bool) {
	content, _ = RemoveBlock(content, HashMarkers)
	keys := map[string]bool{}
	for _, line := range strings.Split(body, "\n") {
		if k, ok := tomlKey(line); ok {
			keys[k] = true
		}
	}
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") {
			break
		}
		if k, ok := tomlKey(trimmed); ok && keys[k] {
			return k, true
		}
	}
	return "", false
}

// tomlKey returns the bare or quoted key of a "key = value" line.
func tomlKey(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", false
	}
	k, _, ok := strings.Cut(line, "=")
	if !ok {
		return "", false
	}
	return strings.Trim(strings.TrimSpace(k), `"'`), true
}

// Inspect checks the rule block, the settings entries, the TOML block and
// the installed assets.
func (b *BaseSystem) Inspect() []Finding {
	var out []Finding

	if b.Supports(asset.KindRule) {
		path := b.InstructionsFile()
		data, err := osutil.ReadFileIfExists(path)
		f := Finding{Name: b.instructionsFile + " block", OK: err == nil && HasBlock(string(data), MarkdownMarkers)}
		if !f.OK {
			f.Detail = "no ccb block in " + path
		}
		out = append(out, f)
	}
	if b.settingsFile != "" {
		f := Finding{Name: b.settingsFile + " allow-list", OK: true}
		missing, err := MissingArrayEntries(b.SettingsFile(), b.settingsPointer, b.SettingsEntries())
		switch {
		case err != nil:
			f.OK, f.Detail = false, err.Error()
		case len(missing) > 0:
			f.OK, f.Detail = false, "missing "+strings.Join(missing, ", ")
		}
		out = append(out, f)
	}
	if b.tomlFile != "" {
		data, err := osutil.ReadFileIfExists(filepath.Join(b.Home(), b.tomlFile))
		f := Finding{Name: b.tomlFile + " block", OK: err == nil && HasBlock(string(data), HashMarkers)}
		if key, ok := userTOMLKey(string(data), b.tomlBody); err == nil && ok {
			f.OK, f.Detail = true, key+" set by the user"
		}
		if !f.OK {
			f.Detail = "disable_paste_burst not set by ccb"
		}
		out = append(out, f)
	}
	for _, kind := range []asset.Kind{asset.KindCommand, asset.KindSkill} {
		if !b.Supports(kind) {
			continue
		}
		assets, err := listAssets(kind)
		if err != nil {
			out = append(out, Finding{Name: string(kind) + "s", Detail: err.Error()})
			continue
		}
		var missing []string
		for _, a := range assets {
			if !osutil.FileExists(b.assetPath(a)) {
				missing = append(missing, a.Name)
			}
		}
		f := Finding{Name: string(kind) + "s", OK: len(missing) == 0,
			Detail: fmt.Sprintf("%d/%d installed", len(assets)-len(missing), len(assets))}
		if len(missing) > 0 {
			f.Detail += ", missing " + strings.Join(missing, ", ")
		}
		out = append(out, f)
	}
	return out
}

// assetPath returns where an asset lives under the system home.
func (b *BaseSystem) assetPath(a asset.Asset) string {
	switch a.Kind {
	case asset.KindSkill:
		return filepath.Join(b.Home(), "skills", a.Name, "SKILL.md")
	default:
		return filepath.Join(b.Home(), "commands", a.Name+".md")
	}
}

func (b *BaseSystem) installAssets(kind asset.Kind, dryRun bool) ([]Change, error) {
	assets, err := listAssets(kind)
	if err != nil {
		return []Change{{Target: filepath.Join(b.Home(), string(kind)+"s"), Action: ActionError}}, err
	}
	var r report
	for _, a := range assets {
		path := b.assetPath(a)
		data, err := a.Content()
		if err != nil {
			r.add(Change{Target: path, Action: ActionError}, err)
			continue
		}
		old, err := osutil.ReadFileIfExists(path)
		if err != nil {
			r.add(Change{Target: path, Action: ActionError}, fmt.Errorf("reading %s: %w", path, err))
			continue
		}
		r.add(writeChanged(path, string(old), string(data), old != nil, dryRun))
	}
	return r.changes, r.err
}

func (b *BaseSystem) removeAssets(kind asset.Kind, dryRun bool) ([]Change, error) {
	assets, err := listAssets(kind)
	if err != nil {
		return nil, err
	}
	var r report
	for _, a := range assets {
		path := b.assetPath(a)
		target := path
		if kind == asset.KindSkill {
			target = filepath.Dir(path)
		}
		if !osutil.PathExists(target) {
			r.add(Change{Target: target, Action: ActionSkipped, Detail: "not found"}, nil)
			continue
		}
		if dryRun {
			r.add(Change{Target: target, Action: ActionRemoved, Detail: "dry run"}, nil)
			continue
		}
		if err := os.RemoveAll(target); err != nil {
			r.add(Change{Target: target, Action: ActionError}, fmt.Errorf("removing %s: %w", target, err))
			continue
		}
		r.add(Change{Target: target, Action: ActionRemoved}, nil)
	}
	if !dryRun {
		osutil.CleanupEmptyDir(filepath.Join(b.Home(), string(kind)+"s"))
	}
	return r.changes, r.err
}

func listAssets(kind asset.Kind) ([]asset.Asset, error) {
	h, ok := asset.Get(kind)
	if !ok {
		return nil, fmt.Errorf("no handler for asset kind %s", kind)
	}
	return h.List()
}

// report collects changes and remembers the first error.
type report struct {
	changes []Change
	err     error
}

func (r *report) add(c Change, err error) {
	r.changes = append(r.changes, c)
	if err != nil && r.err == nil {
		r.err = err
	}
}

func (r *report) addAll(cs []Change, err error) {
	r.changes = append(r.changes, cs...)
	if err != nil && r.err == nil {
		r.err = err
	}
}
