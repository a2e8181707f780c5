package vault

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

const (
	fallbackFilename = "unnamed"
	fallbackGroupDir = "unnamed-group"
)

// SanitizeFilename reduces an untrusted filename to a safe base name: path
// components are dropped, ".." is removed, reserved and control characters
// become "_", and an empty result falls back to "unnamed".
func SanitizeFilename(name string) string {
	if name == "" {
		return fallbackFilename
	}
	// Treat both separators as path separators regardless of host OS.
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ReplaceAll(name, "..", "")
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return '_'
		case strings.ContainsRune(`<>:"/\|?*`, r):
			return '_'
		}
		return r
	}, name)
	name = strings.Trim(name, ". \t\n\r")
	if name == "" {
		return fallbackFilename
	}
	return name
}

// SafeGroupDir turns a group title into a single directory name. Letters,
// digits, "_", "-", "." and spaces survive; everything else becomes "_".
func SafeGroupDir(title string) string {
	safe := strings.Map(func(r rune) rune {
		if isWordRune(r) || r == '-' || r == '.' || r == ' ' {
			return r
		}
		return '_'
	}, title)
	if strings.Trim(safe, ". ") == "" {
		return fallbackGroupDir
	}
	return safe
}

// safeToken keeps word characters, "-" and "."; used for identifier parts.
func safeToken(s string) string {
	return strings.Map(func(r rune) rune {
		if isWordRune(r) || r == '-' || r == '.' {
			return r
		}
		return '_'
	}, s)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// within resolves name under root and rejects anything that escapes it.
func within(root, name string) (string, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve vault: %w", err)
	}
	resolved, err := filepath.Abs(filepath.Join(rootAbs, name))
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if !strings.HasPrefix(resolved, rootAbs+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside %q", resolved, rootAbs)
	}
	return resolved, nil
}
