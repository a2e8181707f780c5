package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"oden/internal/config"
	"oden/internal/store"

	"github.com/spf13/cobra"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "oden",
		Short:   "Oden: Signal group messages to a markdown vault",
		Long:    "Oden listens to a signal-cli daemon and files incoming group messages as markdown documents.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.oden/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(responsesCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(backupCmd())
	root.AddCommand(restoreCmd())

	daemon := &cobra.Command{Use: "daemon", Short: "Manage the background service"}
	daemon.AddCommand(installDaemonCmd(), uninstallDaemonCmd())
	root.AddCommand(daemon)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return config.ExpandPath(configPath)
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from the general section. The returned
// closer releases the log file, if one was opened.
func newLogger(g config.GeneralConfig) (*slog.Logger, io.Closer, error) {
	opts := &slog.HandlerOptions{Level: parseLevel(g.LogLevel)}

	var w io.Writer = os.Stderr
	var closer io.Closer = io.NopCloser(nil)
	if g.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(g.LogFile), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(g.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closer = f
	}

	var h slog.Handler
	if g.LogFormat == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), closer, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config and create the vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			vaultDir := config.ExpandPath(cfg.General.Vault)
			if err := os.MkdirAll(vaultDir, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "vault", vaultDir)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func statusCmd() *cobra.Command {
	var auditLimit int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show config, database, recent security events and signal-cli status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false, "error", err)
				cfg = config.Defaults()
			} else {
				logger.Info("config", "path", cfgPath, "loaded", true)
			}
			logger.Info("vault", "path", cfg.General.Vault, "format", cfg.Processing.FilenameFormat)

			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			reportDatabase(ctx, logger, config.ExpandPath(cfg.Store.DBPath), auditLimit)

			addr := cfg.Signal.Addr()
			conn, err := net.DialTimeout("tcp", addr, 3*time.Second)
			if err != nil {
				logger.Info("signal-cli", "addr", addr, "reachable", false)
			} else {
				conn.Close()
				logger.Info("signal-cli", "addr", addr, "reachable", true)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&auditLimit, "audit", 5, "number of recent audit entries to show")
	return cmd
}

// reportDatabase logs the schema version, the response count and the most
// recent audit entries of the store at dbPath.
func reportDatabase(ctx context.Context, log *slog.Logger, dbPath string, auditLimit int) {
	st, err := store.Open(dbPath, log)
	if err != nil {
		log.Info("database", "path", dbPath, "ok", false, "error", err)
		return
	}
	defer st.Close()

	v, err := st.SchemaVersion()
	if err != nil {
		log.Warn("database schema version unavailable", "path", dbPath, "error", err)
	}
	bindings, err := st.ListResponses(ctx)
	if err != nil {
		log.Warn("listing responses failed", "path", dbPath, "error", err)
	}
	log.Info("database", "path", dbPath, "schema", v, "responses", len(bindings))

	if auditLimit <= 0 {
		return
	}
	records, err := st.RecentAudit(ctx, auditLimit)
	if err != nil {
		log.Warn("reading audit log failed", "error", err)
		return
	}
	for _, r := range records {
		log.Info("audit",
			"at", r.CreatedAt.Format(time.RFC3339),
			"action", r.Entry.Action,
			"subject", r.Entry.Subject,
			"input", r.Entry.Input,
			"result", r.Entry.Result,
		)
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. processing.appendWindowMinutes)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. signal.startupMessage off)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			paths := config.ListPaths(config.Sanitize(cfg))
			data, _ := json.MarshalIndent(paths, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

// withTimeout is the bounded context used by one-shot CLI operations.
func withTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, 30*time.Second)
}
