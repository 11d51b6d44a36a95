package asset

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// CommandMeta is the frontmatter of a Claude slash command.
type CommandMeta struct {
	Description  string `yaml:"description"`
	ArgHint      string `yaml:"argument-hint,omitempty"`
	AllowedTools string `yaml:"allowed-tools,omitempty"`
}

// AssetKind implements Meta.
func (m CommandMeta) AssetKind() Kind { return KindCommand }

// CommandHandler lists the embedded slash commands (files/commands/*.md).
// The command name is the file name without ".md".
type CommandHandler struct{}

func (h *CommandHandler) Kind() Kind          { return KindCommand }
func (h *CommandHandler) DisplayName() string { return "Command" }

func (h *CommandHandler) List() ([]Asset, error) {
	matches, err := fs.Glob(files, "files/commands/*.md")
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
		meta, err := parseCommand(raw, p)
		if err != nil {
			return nil, err
		}
		assets = append(assets, Asset{
			Kind:        KindCommand,
			Name:        strings.TrimSuffix(path.Base(p), ".md"),
			Description: meta.Description,
			Path:        p,
			Meta:        meta,
		})
	}
	return assets, nil
}

func (h *CommandHandler) Parse(data []byte) (Meta, error) {
	return parseCommand(data, "command")
}

func parseCommand(raw []byte, source string) (CommandMeta, error) {
	var meta CommandMeta
	if _, err := decodeFrontmatter(raw, source, &meta); err != nil {
		return CommandMeta{}, err
	}
	if meta.Description == "" {
		return CommandMeta{}, fmt.Errorf("command %s missing description", source)
	}
	return meta, nil
}

func init() { Register(&CommandHandler{}) }
