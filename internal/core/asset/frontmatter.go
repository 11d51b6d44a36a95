package asset

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// splitFrontmatter separates a leading "---" YAML block from the markdown
// body. The source parameter is used only for error messages.
func splitFrontmatter(raw []byte, source string) (string, string, error) {
	content := strings.TrimPrefix(string(raw), "\ufeff")
	if !strings.HasPrefix(strings.TrimSpace(content), "---") {
		return "", "", fmt.Errorf("no frontmatter in %s", source)
	}

	start := strings.Index(content, "---")
	rest := content[start+3:]
	rest = strings.TrimPrefix(strings.TrimPrefix(rest, "\r"), "\n")

	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", "", fmt.Errorf("no closing frontmatter delimiter in %s", source)
	}
	fm := rest[:end]
	body := rest[end+4:]
	body = strings.TrimPrefix(strings.TrimPrefix(body, "\r"), "\n")
	return fm, body, nil
}

// decodeFrontmatter unmarshals the frontmatter of raw into v and returns
// the body.
func decodeFrontmatter(raw []byte, source string, v any) (string, error) {
	fm, body, err := splitFrontmatter(raw, source)
	if err != nil {
		return "", err
	}
	if err := yaml.Unmarshal([]byte(fm), v); err != nil {
		return "", fmt.Errorf("parsing frontmatter in %s: %w", source, err)
	}
	return body, nil
}
