package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FilenameFormat selects how new document names are built.
type FilenameFormat string

const (
	FormatClassic FilenameFormat = "classic"  // DDHHMM-number-name
	FormatTNR     FilenameFormat = "tnr"      // DDHHMM
	FormatTNRName FilenameFormat = "tnr-name" // DDHHMM-name
)

// ParseFilenameFormat maps a config value to a format. Unknown values fall back to classic.
func ParseFilenameFormat(s string) FilenameFormat {
	switch FilenameFormat(s) {
	case FormatTNR, FormatTNRName:
		return FilenameFormat(s)
	}
	return FormatClassic
}

const tnrLayout = "021504"

// TimeToken formats t in loc as DDHHMM.
func TimeToken(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(tnrLayout)
}

// SenderToken is the sender part of a classic identifier: number without "+"
// then name, joined by "-", with unsafe characters replaced. It is empty when
// the sender has neither.
func SenderToken(name, number string) string {
	var parts []string
	if n := strings.TrimPrefix(number, "+"); n != "" {
		parts = append(parts, n)
	}
	if name != "" {
		parts = append(parts, name)
	}
	return safeToken(strings.Join(parts, "-"))
}

// FileID is the classic identifier stored in document frontmatter. It does
// not depend on the configured filename format.
func FileID(t time.Time, loc *time.Location, name, number string) string {
	token := SenderToken(name, number)
	if token == "" {
		token = "unknown"
	}
	return TimeToken(t, loc) + "-" + token
}

// BuildIdentifier returns the document base name (without extension) for the format.
func BuildIdentifier(t time.Time, loc *time.Location, name, number string, format FilenameFormat) string {
	switch format {
	case FormatTNR:
		return TimeToken(t, loc)
	case FormatTNRName:
		if name == "" {
			return TimeToken(t, loc)
		}
		return TimeToken(t, loc) + "-" + safeToken(name)
	}
	return FileID(t, loc, name, number)
}

// UniqueFilename returns desired if no entry with that name exists in dir,
// otherwise the first free "base-N.ext" for N = 1, 2, ...
func UniqueFilename(dir, desired string) (string, error) {
	free, err := isFree(filepath.Join(dir, desired))
	if err != nil || free {
		return desired, err
	}

	ext := filepath.Ext(desired)
	base := strings.TrimSuffix(desired, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s-%d%s", base, n, ext)
		free, err := isFree(filepath.Join(dir, candidate))
		if err != nil {
			return "", err
		}
		if free {
			return candidate, nil
		}
	}
}

func isFree(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	return false, fmt.Errorf("stat %s: %w", path, err)
}
