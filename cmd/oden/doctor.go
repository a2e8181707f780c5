package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"oden/internal/config"
	"oden/internal/render"
	"oden/internal/store"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your Oden installation",
		Long: `Verifies that the configuration, vault, database, templates and the
signal-cli daemon are usable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("Oden Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			var r doctorReport

			if _, err := os.Stat(cfgPath); err != nil {
				r.fail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'oden init' to create a default configuration.\n")
				return nil
			}
			r.pass("Config file", cfgPath)

			cfg, err := config.Load(cfgPath)
			if err != nil {
				r.fail("Config validation", err.Error())
				fmt.Printf("\n%d passed, %d failed\n", r.passed, r.failed)
				return nil
			}
			r.pass("Config validation", "valid")

			if err := checkWritableDir(cfg.General.Vault); err != nil {
				r.fail("Vault", err.Error())
			} else {
				r.pass("Vault", cfg.General.Vault)
			}

			if err := checkDatabase(cfg.Store.DBPath); err != nil {
				r.fail("Database", err.Error())
			} else {
				r.pass("Database", cfg.Store.DBPath)
			}

			if err := checkTemplates(cfg.Templates.Dir); err != nil {
				r.fail("Templates", err.Error())
			} else if cfg.Templates.Dir == "" {
				r.pass("Templates", "built-in")
			} else {
				r.pass("Templates", cfg.Templates.Dir)
			}

			if cfg.Signal.Number == "" {
				r.warn("Signal account", "signal.number not set; own messages cannot be recognised")
			} else {
				r.pass("Signal account", cfg.Signal.Number)
			}

			addr := cfg.Signal.Addr()
			if conn, err := net.DialTimeout("tcp", addr, 3*time.Second); err != nil {
				r.warn("signal-cli", fmt.Sprintf("%s not reachable: %v", addr, err))
			} else {
				conn.Close()
				r.pass("signal-cli", addr)
			}

			if cfg.Metrics.Enabled {
				if err := checkListen(cfg.Metrics.Listen); err != nil {
					r.warn("Metrics listen", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Listen, err))
				} else {
					r.pass("Metrics listen", cfg.Metrics.Listen)
				}
			}

			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					r.pass("Log file", cfg.General.LogFile)
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
			if r.failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running Oden.\n")
				return fmt.Errorf("%d check(s) failed", r.failed)
			}
			if r.warned > 0 {
				fmt.Printf("\nOden should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! Oden is ready to run.\n")
			}
			return nil
		},
	}
}

type doctorReport struct {
	passed, warned, failed int
}

func (r *doctorReport) pass(check, detail string) {
	r.passed++
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func (r *doctorReport) fail(check, detail string) {
	r.failed++
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func (r *doctorReport) warn(check, detail string) {
	r.warned++
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}

// checkWritableDir creates dir if needed and verifies a file can be written in it.
func checkWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create: %w", err)
	}
	f, err := os.CreateTemp(dir, ".oden-doctor-*")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func checkDatabase(dbPath string) error {
	st, err := store.Open(dbPath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := st.Ping(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	v, err := st.SchemaVersion()
	if err != nil {
		return fmt.Errorf("schema version: %w", err)
	}
	if v == 0 {
		return fmt.Errorf("no migrations applied")
	}
	return nil
}

// checkTemplates parses the templates and renders a sample message with each.
func checkTemplates(dir string) error {
	rd, err := render.New(dir)
	if err != nil {
		return err
	}
	sample := render.ReportContext{
		FileID:        "061430-46701234567-Doctor",
		GroupTitle:    "Doctor",
		GroupID:       "doctor",
		TNR:           "061430",
		Timestamp:     "2026-02-06T14:30:00+01:00",
		SenderDisplay: "Doctor ([[+46701234567]])",
		SenderName:    "Doctor",
		SenderNumber:  "+46701234567",
		Message:       "sample",
	}
	if _, err := rd.RenderReport(sample); err != nil {
		return err
	}
	_, err = rd.RenderAppend(render.AppendContext{
		TNR:           sample.TNR,
		Timestamp:     sample.Timestamp,
		SenderDisplay: sample.SenderDisplay,
		Message:       sample.Message,
	})
	return err
}

func checkListen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}
