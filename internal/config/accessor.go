package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Paths address config values by their JSON names joined with dots, as in
// "processing.appendWindowMinutes". List elements are addressed by index:
// "processing.regexPatterns.1.name".

// GetByPath returns the value at path in its JSON form.
func GetByPath(cfg *Config, path string) (any, error) {
	doc, err := document(cfg)
	if err != nil {
		return nil, err
	}
	return lookup(doc, strings.Split(path, "."), path)
}

// SetByPath replaces the value at path. String input is converted to the type
// the current value has, so "true" sets a flag and "45" sets a number while
// "+46701234567" stays text. Keys the config does not know are rejected.
func SetByPath(cfg *Config, path string, value any) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	doc, err := document(cfg)
	if err != nil {
		return err
	}

	parts := strings.Split(path, ".")
	parent, err := lookup(doc, parts[:len(parts)-1], path)
	if err != nil {
		return err
	}
	section, ok := parent.(map[string]any)
	if !ok {
		return fmt.Errorf("%s: parent is not a section", path)
	}
	key := parts[len(parts)-1]
	v, err := coerce(section[key], value)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	section[key] = v

	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var next Config
	if err := dec.Decode(&next); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	*cfg = next
	return nil
}

// ListPaths flattens cfg into path/value pairs.
func ListPaths(cfg *Config) map[string]any {
	doc, err := document(cfg)
	if err != nil {
		return nil
	}
	out := make(map[string]any)
	flatten("", doc, out)
	return out
}

// Sanitize returns a copy of cfg with the account number masked.
func Sanitize(cfg *Config) *Config {
	c := *cfg
	if c.Signal.Number != "" {
		c.Signal.Number = maskNumber(c.Signal.Number)
	}
	return &c
}

// maskNumber keeps the country code prefix and the last two digits.
func maskNumber(s string) string {
	if len(s) <= 6 {
		return "***"
	}
	return s[:3] + "****" + s[len(s)-2:]
}

// document is cfg in generic JSON form.
func document(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func lookup(node any, parts []string, path string) (any, error) {
	for _, key := range parts {
		switch n := node.(type) {
		case map[string]any:
			next, ok := n[key]
			if !ok {
				return nil, fmt.Errorf("unknown config key: %s", path)
			}
			node = next
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(n) {
				return nil, fmt.Errorf("%s: no element %q", path, key)
			}
			node = n[i]
		default:
			return nil, fmt.Errorf("%s: %q is not a section", path, key)
		}
	}
	return node, nil
}

// coerce converts string input to the JSON type of current. Optional keys
// left out of the document and unset lists have no current value: they take
// a JSON list when the input looks like one and text otherwise.
func coerce(current, value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	switch current.(type) {
	case nil:
		if !strings.HasPrefix(strings.TrimSpace(s), "[") {
			return s, nil
		}
		return coerce([]any{}, s)
	case string:
		return s, nil
	case bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("expected true or false, got %q", s)
		}
		return b, nil
	case float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("expected a number, got %q", s)
		}
		return f, nil
	default:
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("expected a JSON value: %w", err)
		}
		return v, nil
	}
}

func flatten(prefix string, node any, out map[string]any) {
	join := func(k string) string {
		if prefix == "" {
			return k
		}
		return prefix + "." + k
	}
	switch n := node.(type) {
	case map[string]any:
		for k, v := range n {
			flatten(join(k), v, out)
		}
	case []any:
		if len(n) == 0 {
			out[prefix] = n
		}
		for i, v := range n {
			flatten(join(strconv.Itoa(i)), v, out)
		}
	default:
		out[prefix] = n
	}
}
