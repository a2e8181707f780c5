package extract

import (
	"log/slog"
	"regexp"
	"strings"
)

var existingLink = regexp.MustCompile(`\[\[([^\]]+)\]\]`)

// LinkPattern is a named, compiled link pattern.
type LinkPattern struct {
	Name string
	Re   *regexp.Regexp
}

// NamedPattern is an uncompiled link pattern as it appears in configuration.
type NamedPattern struct {
	Name    string
	Pattern string
}

// CompilePatterns compiles patterns in order. Patterns that fail to compile
// are skipped with a warning.
func CompilePatterns(patterns []NamedPattern, logger *slog.Logger) []LinkPattern {
	out := make([]LinkPattern, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			if logger != nil {
				logger.Warn("skipping invalid link pattern", "name", p.Name, "error", err)
			}
			continue
		}
		out = append(out, LinkPattern{Name: p.Name, Re: re})
	}
	return out
}

type span struct{ start, end int }

// ApplyRegexLinks wraps matches of each pattern in [[...]]. Patterns run in
// order. Only the first free occurrence of each distinct match is wrapped,
// and text already inside [[...]] (or already linked elsewhere) is left alone.
func ApplyRegexLinks(text string, patterns []LinkPattern) string {
	if text == "" || len(patterns) == 0 {
		return text
	}

	linked := make(map[string]bool)
	for _, m := range existingLink.FindAllStringSubmatch(text, -1) {
		linked[m[1]] = true
	}

	for _, p := range patterns {
		if p.Re == nil {
			continue
		}
		text = linkPattern(text, p.Re, linked)
	}
	return text
}

func linkPattern(text string, re *regexp.Regexp, linked map[string]bool) string {
	var occupied []span
	for _, loc := range existingLink.FindAllStringIndex(text, -1) {
		occupied = append(occupied, span{loc[0], loc[1]})
	}

	var b strings.Builder
	last := 0
	for _, loc := range re.FindAllStringIndex(text, -1) {
		if loc[0] == loc[1] {
			continue
		}
		match := text[loc[0]:loc[1]]
		if linked[match] || overlaps(occupied, loc[0], loc[1]) {
			continue
		}
		b.WriteString(text[last:loc[0]])
		b.WriteString("[[")
		b.WriteString(match)
		b.WriteString("]]")
		last = loc[1]
		linked[match] = true
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

func overlaps(spans []span, start, end int) bool {
	for _, s := range spans {
		if start < s.end && end > s.start {
			return true
		}
	}
	return false
}
