// Package pipeline turns normalized message events into vault documents and
// keyword replies.
package pipeline

import (
	"slices"
	"time"

	"oden/internal/extract"
	"oden/internal/vault"
)

// Settings is the immutable processing configuration handed to the
// orchestrator at construction time.
type Settings struct {
	Location        *time.Location
	AppendWindow    time.Duration
	AppendMarker    string
	IgnoreMarker    string
	CommandPrefix   string
	FilenameFormat  vault.FilenameFormat
	IgnoredGroups   []string
	WhitelistGroups []string
	Patterns        []extract.LinkPattern
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Location:       time.Local,
		AppendWindow:   30 * time.Minute,
		AppendMarker:   "++",
		IgnoreMarker:   "--",
		CommandPrefix:  "#",
		FilenameFormat: vault.FormatClassic,
	}
}

// withDefaults fills required fields. Empty markers stay empty and disable
// the corresponding feature.
func (s Settings) withDefaults() Settings {
	if s.Location == nil {
		s.Location = time.Local
	}
	if s.AppendWindow <= 0 {
		s.AppendWindow = 30 * time.Minute
	}
	if s.CommandPrefix == "" {
		s.CommandPrefix = "#"
	}
	if s.FilenameFormat == "" {
		s.FilenameFormat = vault.FormatClassic
	}
	return s
}

// AllowsGroup applies the whitelist when it is non-empty, otherwise the
// ignore list. Group titles are compared exactly.
func (s Settings) AllowsGroup(title string) bool {
	if len(s.WhitelistGroups) > 0 {
		return slices.Contains(s.WhitelistGroups, title)
	}
	return !slices.Contains(s.IgnoredGroups, title)
}
