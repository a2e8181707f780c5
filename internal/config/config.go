package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata" // timezone database for hosts without zoneinfo

	"github.com/tidwall/jsonc"
)

// Config is the root configuration for oden.
type Config struct {
	General    GeneralConfig    `json:"general"`
	Signal     SignalConfig     `json:"signal"`
	Processing ProcessingConfig `json:"processing"`
	Templates  TemplatesConfig  `json:"templates"`
	Store      StoreConfig      `json:"store"`
	Metrics    MetricsConfig    `json:"metrics"`
}

type GeneralConfig struct {
	Vault     string `json:"vault"`
	LogLevel  string `json:"logLevel"`
	LogFormat string `json:"logFormat"`         // "text" | "json"
	LogFile   string `json:"logFile,omitempty"` // optional log file path
	Timezone  string `json:"timezone"`
}

// SignalConfig points at a signal-cli daemon running in JSON-RPC TCP mode.
type SignalConfig struct {
	Number              string `json:"number"`
	DisplayName         string `json:"displayName,omitempty"`
	Host                string `json:"host"`
	Port                int    `json:"port"`
	StartupMessage      string `json:"startupMessage"` // "self" | "all" | "off"
	RPCTimeoutSeconds   int    `json:"rpcTimeoutSeconds"`
	ReconnectMaxSeconds int    `json:"reconnectMaxSeconds"`
}

type ProcessingConfig struct {
	AppendWindowMinutes int            `json:"appendWindowMinutes"`
	AppendMarker        string         `json:"appendMarker"` // empty disables explicit appends
	IgnoreMarker        string         `json:"ignoreMarker"`
	CommandPrefix       string         `json:"commandPrefix"`
	FilenameFormat      string         `json:"filenameFormat"` // "classic" | "tnr" | "tnr-name"
	IgnoredGroups       []string       `json:"ignoredGroups"`
	WhitelistGroups     []string       `json:"whitelistGroups"`
	RegexPatterns       []RegexPattern `json:"regexPatterns"`
}

// RegexPattern is one named link pattern. Order in the list is the order of application.
type RegexPattern struct {
	Name    string `json:"name"`
	Pattern string `json:"pattern"`
}

// TemplatesConfig allows overriding the embedded report and append templates.
type TemplatesConfig struct {
	Dir string `json:"dir,omitempty"`
}

type StoreConfig struct {
	DBPath string `json:"dbPath"`
}

// MetricsConfig configures the Prometheus text endpoint.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Listen   string `json:"listen"`
	Endpoint string `json:"endpoint"`
}

// AppendWindow returns the configured append window.
func (p ProcessingConfig) AppendWindow() time.Duration {
	return time.Duration(p.AppendWindowMinutes) * time.Minute
}

// Location loads the configured timezone.
func (g GeneralConfig) Location() (*time.Location, error) {
	if g.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", g.Timezone, err)
	}
	return loc, nil
}

// Addr returns the host:port of the signal-cli daemon.
func (s SignalConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RPCTimeout returns the bounded wait for correlated requests.
func (s SignalConfig) RPCTimeout() time.Duration {
	return time.Duration(s.RPCTimeoutSeconds) * time.Second
}

// ReconnectMax caps the delay between reconnect attempts.
func (s SignalConfig) ReconnectMax() time.Duration {
	return time.Duration(s.ReconnectMaxSeconds) * time.Second
}

// DefaultConfigDir returns the default config directory (~/.oden).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".oden"
	}
	return filepath.Join(home, ".oden")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Comments and trailing commas are allowed; strip them before decoding.
	data = jsonc.ToJSON(data)
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.Vault = ExpandPath(cfg.General.Vault)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)
	cfg.Templates.Dir = ExpandPath(cfg.Templates.Dir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if strings.TrimSpace(cfg.General.Vault) == "" {
		errs = append(errs, "general.vault is required")
	}
	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}
	if _, err := cfg.General.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("general.timezone: %v", err))
	}

	if cfg.Signal.Host == "" {
		errs = append(errs, "signal.host is required")
	}
	if cfg.Signal.Port < 1 || cfg.Signal.Port > 65535 {
		errs = append(errs, "signal.port must be between 1 and 65535")
	}
	switch cfg.Signal.StartupMessage {
	case "self", "all", "off":
	default:
		errs = append(errs, "signal.startupMessage must be one of: self, all, off")
	}
	if cfg.Signal.RPCTimeoutSeconds < 1 {
		errs = append(errs, "signal.rpcTimeoutSeconds must be >= 1")
	}
	if cfg.Signal.ReconnectMaxSeconds < 1 {
		errs = append(errs, "signal.reconnectMaxSeconds must be >= 1")
	}

	if cfg.Processing.AppendWindowMinutes < 1 {
		errs = append(errs, "processing.appendWindowMinutes must be >= 1")
	}
	switch cfg.Processing.FilenameFormat {
	case "classic", "tnr", "tnr-name":
	default:
		errs = append(errs, "processing.filenameFormat must be one of: classic, tnr, tnr-name")
	}
	if cfg.Processing.CommandPrefix == "" {
		errs = append(errs, "processing.commandPrefix is required")
	}
	if m := cfg.Processing.AppendMarker; m != "" && m == cfg.Processing.IgnoreMarker {
		errs = append(errs, "processing.appendMarker and processing.ignoreMarker must differ")
	}
	seen := make(map[string]bool)
	for i, p := range cfg.Processing.RegexPatterns {
		if p.Name == "" {
			errs = append(errs, fmt.Sprintf("processing.regexPatterns[%d]: name is required", i))
		} else if seen[p.Name] {
			errs = append(errs, fmt.Sprintf("processing.regexPatterns[%d]: duplicate name %q", i, p.Name))
		}
		seen[p.Name] = true
		if p.Pattern == "" {
			errs = append(errs, fmt.Sprintf("processing.regexPatterns[%d]: pattern is required", i))
		}
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Listen == "" {
			errs = append(errs, "metrics.listen is required when metrics are enabled")
		}
		if !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
			errs = append(errs, "metrics.endpoint must start with /")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
