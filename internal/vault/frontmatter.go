package vault

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// documentMeta is the subset of document frontmatter used to find prior documents.
type documentMeta struct {
	FileID    string `yaml:"fileid"`
	Timestamp string `yaml:"timestamp"`
}

// parseFrontmatter decodes the leading YAML block. ok=false when there is
// none or it does not parse.
func parseFrontmatter[T any](contents string) (T, bool) {
	var zero T
	raw, hasFrontmatter := splitFrontmatter(contents)
	if !hasFrontmatter {
		return zero, false
	}
	var out T
	if err := yaml.Unmarshal([]byte(raw), &out); err != nil {
		return zero, false
	}
	return out, true
}

// splitFrontmatter returns the YAML between a leading "---" line and the next "---" line.
func splitFrontmatter(contents string) (string, bool) {
	lines := strings.Split(strings.ReplaceAll(contents, "\r\n", "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", false
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[1:i], "\n"), true
		}
	}
	return "", false
}
