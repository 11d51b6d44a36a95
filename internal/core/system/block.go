package system

import (
	"fmt"
	"os"
	"strings"

	"github.com/gitmzc/claude-code-bridge/internal/core/osutil"
)

// Markers delimit a block ccb owns inside a user file.
type Markers struct {
	Start string
	End   string
}

var (
	// MarkdownMarkers wrap the rule block in CLAUDE.md, AGENTS.md and GEMINI.md.
	MarkdownMarkers = Markers{"<!-- CCB_CONFIG_START -->", "<!-- CCB_CONFIG_END -->"}
	// HashMarkers wrap blocks in config.toml and shell rc files.
	HashMarkers = Markers{"# CCB_CONFIG_START", "# CCB_CONFIG_END"}
)

// Placement says where a new block goes when the file has none.
type Placement int

const (
	Append Placement = iota
	// Prepend is for TOML, where top-level keys must precede any table.
	Prepend
)

// Render returns the block text including both marker lines.
func (m Markers) Render(body string) string {
	return m.Start + "\n" + strings.TrimSpace(body) + "\n" + m.End + "\n"
}

// UpsertBlock returns content with the block replaced in place, or added
// when content has none.
func UpsertBlock(content string, m Markers, body string, place Placement) string {
	block := m.Render(body)
	if start, end, ok := findBlock(content, m); ok {
		return content[:start] + block + content[end:]
	}
	if strings.TrimSpace(content) == "" {
		return block
	}
	if place == Prepend {
		return block + "\n" + content
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + block
}

// RemoveBlock returns content without the block and the blank line that
// UpsertBlock put next to it. It reports whether a block was found.
func RemoveBlock(content string, m Markers) (string, bool) {
	start, end, ok := findBlock(content, m)
	if !ok {
		return content, false
	}
	switch {
	case start >= 2 && content[start-1] == '\n' && content[start-2] == '\n':
		start--
	case start == 0 && end < len(content) && content[end] == '\n':
		end++
	}
	return content[:start] + content[end:], true
}

// HasBlock reports whether content contains a complete block.
func HasBlock(content string, m Markers) bool {
	_, _, ok := findBlock(content, m)
	return ok
}

// findBlock returns the byte range of the block, including the newline
// after the end marker. An unterminated block runs to the end of content.
func findBlock(content string, m Markers) (int, int, bool) {
	start := -1
	for off := 0; off < len(content); {
		i := strings.Index(content[off:], m.Start)
		if i < 0 {
			break
		}
		if at := off + i; at == 0 || content[at-1] == '\n' {
			start = at
			break
		}
		off += i + len(m.Start)
	}
	if start < 0 {
		return 0, 0, false
	}
	rel := strings.Index(content[start+len(m.Start):], m.End)
	if rel < 0 {
		return start, len(content), true
	}
	end := start + len(m.Start) + rel + len(m.End)
	if end < len(content) && content[end] == '\r' {
		end++
	}
	if end < len(content) && content[end] == '\n' {
		end++
	}
	return start, end, true
}

// RemoveSection drops a markdown section that starts with heading and runs
// to the next heading of the same or a higher level. It reports whether one
// was found.
func RemoveSection(content, heading string) (string, bool) {
	level := headingLevel(heading)
	lines := strings.SplitAfter(content, "\n")

	var out []string
	found, skipping := false, false
	for _, line := range lines {
		trimmed := strings.TrimRight(line, "\r\n")
		switch {
		case strings.TrimSpace(trimmed) == heading:
			found, skipping = true, true
			continue
		case skipping:
			if l := headingLevel(trimmed); l > 0 && l <= level {
				skipping = false
			}
		}
		if !skipping {
			out = append(out, line)
		}
	}
	if !found {
		return content, false
	}
	result := strings.Join(out, "")
	for strings.Contains(result, "\n\n\n") {
		result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	}
	return result, true
}

// headingLevel returns the ATX heading level of line, or 0.
func headingLevel(line string) int {
	n := 0
	for n < len(line) && line[n] == '#' {
		n++
	}
	if n == 0 || n >= len(line) || line[n] != ' ' {
		return 0
	}
	return n
}

// UpsertBlockFile writes the block into path, first removing any legacy
// sections named by their headings. When the block is new, the change
// carries in Owned what uninstall needs to restore the file.
func UpsertBlockFile(path string, m Markers, body string, place Placement, legacy []string, dryRun bool) (Change, error) {
	raw, err := osutil.ReadFileIfExists(path)
	if err != nil {
		return Change{Target: path, Action: ActionError}, fmt.Errorf("reading %s: %w", path, err)
	}
	existed := raw != nil
	content := string(raw)

	updated := content
	for _, h := range legacy {
		updated, _ = RemoveSection(updated, h)
	}
	var own *Ownership
	if !HasBlock(updated, m) {
		own = &Ownership{
			Created: !existed,
			Newline: place == Append && strings.TrimSpace(updated) != "" && !strings.HasSuffix(updated, "\n"),
		}
	}
	updated = UpsertBlock(updated, m, body, place)
	change, err := writeChanged(path, content, updated, existed, dryRun)
	if err == nil && own != nil && (own.Created || own.Newline) {
		change.Owned = own
	}
	return change, err
}

// RemoveBlockFile removes the block from path. own, when known, restores a
// final newline the file lacked and limits deleting an emptied file to one
// install created. Without it an emptied file is deleted.
func RemoveBlockFile(path string, m Markers, own *Ownership, dryRun bool) (Change, error) {
	raw, err := osutil.ReadFileIfExists(path)
	if err != nil {
		return Change{Target: path, Action: ActionError}, fmt.Errorf("reading %s: %w", path, err)
	}
	if raw == nil {
		return Change{Target: path, Action: ActionSkipped, Detail: "not found"}, nil
	}
	updated, ok := RemoveBlock(string(raw), m)
	if !ok {
		return Change{Target: path, Action: ActionSkipped, Detail: "no ccb block"}, nil
	}
	if own != nil && own.Newline {
		updated = strings.TrimSuffix(updated, "\n")
	}
	if dryRun {
		return Change{Target: path, Action: ActionRemoved}, nil
	}
	if strings.TrimSpace(updated) == "" && (own == nil || own.Created) {
		if err := os.Remove(path); err != nil {
			return Change{Target: path, Action: ActionError}, fmt.Errorf("removing %s: %w", path, err)
		}
		return Change{Target: path, Action: ActionRemoved, Detail: "file deleted"}, nil
	}
	if err := osutil.WriteFileAtomic(path, []byte(updated), filePerm(path)); err != nil {
		return Change{Target: path, Action: ActionError}, err
	}
	return Change{Target: path, Action: ActionRemoved}, nil
}

// writeChanged writes updated when it differs from old and reports what
// happened.
func writeChanged(path, old, updated string, existed, dryRun bool) (Change, error) {
	if existed && old == updated {
		return Change{Target: path, Action: ActionUnchanged}, nil
	}
	action := ActionUpdated
	if !existed {
		action = ActionWrote
	}
	if dryRun {
		return Change{Target: path, Action: action, Detail: "dry run"}, nil
	}
	if err := osutil.WriteFileAtomic(path, []byte(updated), filePerm(path)); err != nil {
		return Change{Target: path, Action: ActionError}, err
	}
	return Change{Target: path, Action: action}, nil
}

// filePerm keeps an existing file's permissions.
func filePerm(path string) os.FileMode {
	if info, err := os.Stat(path); err == nil {
		return info.Mode().Perm()
	}
	return 0o644
}
