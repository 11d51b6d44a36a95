package asset

import (
	"fmt"
	"io/fs"
	"os"
	"strings"

	"golang.org/x/text/language"
)

// Rule targets: the instruction file each block is inserted into.
const (
	TargetClaude = "claude" // CLAUDE.md
	TargetCodex  = "codex"  // AGENTS.md
	TargetGemini = "gemini" // GEMINI.md
)

// RuleMeta records where a rule block goes.
type RuleMeta struct {
	Target string
	Lang   string // empty when the block is not localised
}

// AssetKind implements Meta.
func (m RuleMeta) AssetKind() Kind { return KindRule }

var ruleFiles = []struct {
	name, target, lang, path string
}{
	{"claude.en", TargetClaude, "en", "files/rules/claude.en.md"},
	{"claude.zh", TargetClaude, "zh", "files/rules/claude.zh.md"},
	{"agents", TargetCodex, "", "files/rules/agents.md"},
	{"gemini", TargetGemini, "", "files/rules/gemini.md"},
}

// RuleHandler lists the rule blocks.
type RuleHandler struct{}

func (h *RuleHandler) Kind() Kind          { return KindRule }
func (h *RuleHandler) DisplayName() string { return "Rule" }

func (h *RuleHandler) List() ([]Asset, error) {
	assets := make([]Asset, 0, len(ruleFiles))
	for _, r := range ruleFiles {
		if _, err := fs.Stat(files, r.path); err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.name, err)
		}
		assets = append(assets, Asset{
			Kind:        KindRule,
			Name:        r.name,
			Description: "ccb block for " + r.target,
			Path:        r.path,
			Meta:        RuleMeta{Target: r.target, Lang: r.lang},
		})
	}
	return assets, nil
}

// Parse has nothing to read from a rule; rules carry no frontmatter.
func (h *RuleHandler) Parse([]byte) (Meta, error) { return RuleMeta{}, nil }

// Rule returns the block for target. Claude's block is localised; lang
// falls back to English.
func Rule(target, lang string) ([]byte, error) {
	for _, r := range ruleFiles {
		if r.target == target && r.lang == lang {
			return fs.ReadFile(files, r.path)
		}
	}
	for _, r := range ruleFiles {
		if r.target == target && (r.lang == "" || r.lang == "en") {
			return fs.ReadFile(files, r.path)
		}
	}
	return nil, fmt.Errorf("no rule block for %q", target)
}

// ResolveLang maps a CCB_LANG value to "en" or "zh". "auto" or an empty
// value looks at LANG, LC_ALL and LC_MESSAGES.
func ResolveLang(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "zh", "cn", "chinese":
		return "zh"
	case "en", "english":
		return "en"
	}
	for _, name := range []string{"LANG", "LC_ALL", "LC_MESSAGES"} {
		if v := os.Getenv(name); v != "" {
			return localeLang(v)
		}
	}
	return "en"
}

// localeLang reads a POSIX locale such as "zh_CN.UTF-8".
func localeLang(locale string) string {
	if strings.Contains(strings.ToLower(locale), "chinese") {
		return "zh"
	}
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return "en"
	}
	if base, _ := tag.Base(); base.String() == "zh" {
		return "zh"
	}
	return "en"
}

func init() { Register(&RuleHandler{}) }
