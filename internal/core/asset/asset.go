// Package asset holds the markdown files ccb installs for the AI CLIs.
//
// An Asset is one embedded file: a Claude slash command, a Claude skill or
// a rule block inserted into CLAUDE.md, AGENTS.md or GEMINI.md. Each kind
// registers a Handler that lists and parses the files of that kind.
package asset

import (
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
)

//go:embed files
var files embed.FS

// Kind identifies an asset type.
type Kind string

const (
	KindCommand Kind = "command"
	KindSkill   Kind = "skill"
	KindRule    Kind = "rule"
)

// Asset describes one embedded file.
type Asset struct {
	Kind        Kind
	Name        string
	Description string
	Path        string // slash path inside the embedded tree
	Meta        Meta
}

// Content returns the asset's bytes.
func (a Asset) Content() ([]byte, error) {
	data, err := fs.ReadFile(files, a.Path)
	if err != nil {
		return nil, fmt.Errorf("reading embedded %s: %w", a.Path, err)
	}
	return data, nil
}

// Meta is the interface for kind-specific metadata.
type Meta interface {
	AssetKind() Kind
}

// Handler lists and parses the embedded assets of one kind.
type Handler interface {
	Kind() Kind
	DisplayName() string // "Command", "Skill", "Rule"

	// List returns every embedded asset of this kind, sorted by name.
	List() ([]Asset, error)

	// Parse reads kind-specific metadata from raw file content.
	Parse(data []byte) (Meta, error)
}

// --- Registry ---

var handlers = map[Kind]Handler{}

// Register adds a handler for the given asset kind.
func Register(h Handler) { handlers[h.Kind()] = h }

// Get returns the handler for the given kind, if registered.
func Get(k Kind) (Handler, bool) { h, ok := handlers[k]; return h, ok }

// All returns all registered handlers.
func All() map[Kind]Handler { return handlers }

// Kinds returns the registered kinds in install order.
func Kinds() []Kind {
	result := make([]Kind, 0, len(handlers))
	for _, k := range []Kind{KindCommand, KindSkill, KindRule} {
		if _, ok := handlers[k]; ok {
			result = append(result, k)
		}
	}
	return result
}

// List returns every embedded asset, grouped by kind in install order.
func List() ([]Asset, error) {
	var all []Asset
	for _, k := range Kinds() {
		assets, err := handlers[k].List()
		if err != nil {
			return nil, fmt.Errorf("listing %s assets: %w", k, err)
		}
		all = append(all, assets...)
	}
	return all, nil
}

// Hash returns a "sha256:<hex>" hash string for the given data.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("sha256:%x", h)
}
