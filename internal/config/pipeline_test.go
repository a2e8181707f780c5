package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"oden/internal/vault"
)

func TestPipelineSettings(t *testing.T) {
	cfg := Defaults()
	cfg.General.Timezone = "UTC"
	cfg.Processing.AppendWindowMinutes = 45
	cfg.Processing.FilenameFormat = "tnr-name"
	cfg.Processing.IgnoredGroups = []string{"Muted"}
	cfg.Processing.RegexPatterns = append(cfg.Processing.RegexPatterns, RegexPattern{Name: "broken", Pattern: "(unclosed"})

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s, err := cfg.Pipeline(logger)
	if err != nil {
		t.Fatalf("Pipeline: %v", err)
	}
	if s.Location != time.UTC {
		t.Errorf("Location = %v", s.Location)
	}
	if s.AppendWindow != 45*time.Minute {
		t.Errorf("AppendWindow = %s", s.AppendWindow)
	}
	if s.FilenameFormat != vault.FormatTNRName {
		t.Errorf("FilenameFormat = %s", s.FilenameFormat)
	}
	if len(s.Patterns) != 3 {
		t.Errorf("patterns = %d, want the 3 valid defaults", len(s.Patterns))
	}
	if s.Patterns[0].Name != "registration_number" {
		t.Errorf("pattern order changed: first = %s", s.Patterns[0].Name)
	}
	if s.AllowsGroup("Muted") || !s.AllowsGroup("Ops") {
		t.Error("ignored groups not carried over")
	}

	// The settings own their slices.
	cfg.Processing.IgnoredGroups[0] = "Changed"
	if s.AllowsGroup("Muted") {
		t.Error("settings share the config slice")
	}
}

func TestPipelineSettings_BadTimezone(t *testing.T) {
	cfg := Defaults()
	cfg.General.Timezone = "Mars/Olympus"
	if _, err := cfg.Pipeline(slog.Default()); err == nil {
		t.Error("expected timezone error")
	}
}
