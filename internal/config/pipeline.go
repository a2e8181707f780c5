package config

import (
	"log/slog"

	"oden/internal/extract"
	"oden/internal/pipeline"
	"oden/internal/vault"
)

// Pipeline derives the immutable processing settings. Invalid regex patterns
// are skipped with a warning.
func (c *Config) Pipeline(logger *slog.Logger) (pipeline.Settings, error) {
	loc, err := c.General.Location()
	if err != nil {
		return pipeline.Settings{}, err
	}
	p := c.Processing

	named := make([]extract.NamedPattern, 0, len(p.RegexPatterns))
	for _, rp := range p.RegexPatterns {
		named = append(named, extract.NamedPattern{Name: rp.Name, Pattern: rp.Pattern})
	}

	return pipeline.Settings{
		Location:        loc,
		AppendWindow:    p.AppendWindow(),
		AppendMarker:    p.AppendMarker,
		IgnoreMarker:    p.IgnoreMarker,
		CommandPrefix:   p.CommandPrefix,
		FilenameFormat:  vault.ParseFilenameFormat(p.FilenameFormat),
		IgnoredGroups:   append([]string(nil), p.IgnoredGroups...),
		WhitelistGroups: append([]string(nil), p.WhitelistGroups...),
		Patterns:        extract.CompilePatterns(named, logger),
	}, nil
}
