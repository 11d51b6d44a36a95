package asset

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
)

const skillFileName = "SKILL.md"

// SkillMeta holds skill-specific metadata parsed from SKILL.md frontmatter.
type SkillMeta struct {
	Author  string `yaml:"author,omitempty"`
	Version string `yaml:"version,omitempty"`
	ArgHint string `yaml:"argument-hint,omitempty"`
}

// AssetKind implements Meta.
func (m SkillMeta) AssetKind() Kind { return KindSkill }

// SkillFrontmatter is the YAML structure at the top of a SKILL.md file.
type SkillFrontmatter struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Metadata    SkillMeta `yaml:"metadata,omitempty"`
}

// SkillHandler lists the embedded Claude skills (files/skills/<name>/SKILL.md).
type SkillHandler struct{}

func (h *SkillHandler) Kind() Kind          { return KindSkill }
func (h *SkillHandler) DisplayName() string { return "Skill" }

func (h *SkillHandler) List() ([]Asset, error) {
	matches, err := fs.Glob(files, "files/skills/*/"+skillFileName)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	assets := make([]Asset, 0, len(matches))
	for _, p := range matches {
		raw, err := fs.ReadFile(files, p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		fm, err := ParseSkillFrontmatter(raw, p)
		if err != nil {
			return nil, err
		}
		if dir := path.Base(path.Dir(p)); fm.Name != dir {
			return nil, fmt.Errorf("skill %s: name %q does not match directory %q", p, fm.Name, dir)
		}
		assets = append(assets, Asset{
			Kind:        KindSkill,
			Name:        fm.Name,
			Description: fm.Description,
			Path:        p,
			Meta:        fm.Metadata,
		})
	}
	return assets, nil
}

func (h *SkillHandler) Parse(data []byte) (Meta, error) {
	fm, err := ParseSkillFrontmatter(data, skillFileName)
	if err != nil {
		return nil, err
	}
	return fm.Metadata, nil
}

// ParseSkillFrontmatter reads the YAML frontmatter of a SKILL.md file. A
// skill without a name is rejected.
func ParseSkillFrontmatter(raw []byte, source string) (*SkillFrontmatter, error) {
	var fm SkillFrontmatter
	if _, err := decodeFrontmatter(raw, source, &fm); err != nil {
		return nil, err
	}
	if fm.Name == "" {
		return nil, fmt.Errorf("SKILL.md missing name field: %s", source)
	}
	return &fm, nil
}

func init() { Register(&SkillHandler{}) }
