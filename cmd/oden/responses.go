package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"oden/internal/domain"
	"oden/internal/store"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// responseFile is the YAML layout used by import and export.
type responseFile struct {
	Responses []domain.ResponseBinding `yaml:"responses"`
}

func responsesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "responses",
		Short: "Manage keyword auto-replies",
		Long:  "List, add, update and remove the replies sent for #keyword commands.",
	}
	cmd.AddCommand(responsesListCmd(), responsesAddCmd(), responsesUpdateCmd(),
		responsesRemoveCmd(), responsesImportCmd(), responsesExportCmd())
	return cmd
}

func openStore() (*store.SQLiteStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return store.Open(cfg.Store.DBPath, logger)
}

func splitKeywords(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func responsesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			bindings, err := st.ListResponses(ctx)
			if err != nil {
				return err
			}
			if len(bindings) == 0 {
				fmt.Println("No responses configured.")
				return nil
			}
			for _, b := range bindings {
				body := strings.ReplaceAll(b.Body, "\n", " ")
				if len(body) > 60 {
					body = body[:57] + "..."
				}
				fmt.Printf("%4d  %-30s %s\n", b.ID, strings.Join(b.Keywords, ","), body)
			}
			return nil
		},
	}
}

func responsesAddCmd() *cobra.Command {
	var keywords, body string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a response (e.g. --keywords help,hjälp --body \"...\")",
		RunE: func(cmd *cobra.Command, args []string) error {
			if body == "" {
				return fmt.Errorf("--body is required")
			}
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			id, err := st.AddResponse(ctx, splitKeywords(keywords), body)
			if err != nil {
				return err
			}
			logger.Info("response added", "id", id, "keywords", keywords)
			return nil
		},
	}
	cmd.Flags().StringVarP(&keywords, "keywords", "k", "", "comma-separated keywords")
	cmd.Flags().StringVarP(&body, "body", "b", "", "reply text")
	return cmd
}

func responsesUpdateCmd() *cobra.Command {
	var keywords, body string
	cmd := &cobra.Command{
		Use:   "update [id]",
		Short: "Replace the keywords and body of a response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			if err := st.UpdateResponse(ctx, id, splitKeywords(keywords), body); err != nil {
				return err
			}
			logger.Info("response updated", "id", id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&keywords, "keywords", "k", "", "comma-separated keywords")
	cmd.Flags().StringVarP(&body, "body", "b", "", "reply text")
	return cmd
}

func responsesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [id]",
		Short: "Remove a response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			if err := st.DeleteResponse(ctx, id); err != nil {
				return err
			}
			logger.Info("response removed", "id", id)
			return nil
		},
	}
}

func responsesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file.yaml]",
		Short: "Import responses from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var f responseFile
			if err := yaml.Unmarshal(data, &f); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			added, updated, err := st.ImportResponses(ctx, f.Responses)
			if err != nil {
				return err
			}
			logger.Info("responses imported", "file", args[0], "added", added, "updated", updated)
			return nil
		},
	}
}

func responsesExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print all responses as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			bindings, err := st.ListResponses(ctx)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(responseFile{Responses: bindings})
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}
