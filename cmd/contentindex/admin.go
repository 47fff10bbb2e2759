package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperjump/contentindex/internal/cli"
	"github.com/hyperjump/contentindex/internal/indexer"
)

// withComponents runs fn against directly opened indexes.
func withComponents(opts *globalOptions, mode string, fn func(*Components) error) error {
	cfg, logger, err := opts.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if mode != "" {
		cfg.Reindex.Mode = mode
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()
	return fn(components)
}

func newReindexCmd(opts *globalOptions) *cobra.Command {
	var app, file, serverURL, mode, output string
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild an app's index from a JSON-lines content export",
		Long: `Rebuild an app's index from a file holding one content item (or one
notification) per line. Content missing from the file is removed from the index.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			report, err := runReindex(cmd.Context(), opts, app, file, serverURL, mode)
			if err != nil {
				return err
			}
			return cli.WriteReindexReport(cmd.OutOrStdout(), report, format)
		},
	}
	f := cmd.Flags()
	f.StringVar(&app, "app", "", "app (tenant) to rebuild")
	f.StringVar(&file, "file", "", "JSON-lines file with the app's content")
	f.StringVar(&serverURL, "server", defaultServerURL, "server URL (empty = open the indexes directly)")
	f.StringVar(&mode, "mode", "", "in_place or swap (direct mode only; default from config)")
	f.StringVar(&output, "output", "text", "output format: text or json")
	_ = cmd.MarkFlagRequired("app")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runReindex(ctx context.Context, opts *globalOptions, app, file, serverURL, mode string) (*indexer.ReindexReport, error) {
	if serverURL != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("failed to open content file: %w", err)
		}
		defer f.Close()
		client := newAPIClient(serverURL)
		var report indexer.ReindexReport
		if err := client.do(ctx, http.MethodPost, client.appPath(app, "/reindex"), "application/x-ndjson", f, &report); err != nil {
			return nil, fmt.Errorf("reindex failed: %w", err)
		}
		return &report, nil
	}

	var report *indexer.ReindexReport
	err := withComponents(opts, mode, func(c *Components) error {
		var err error
		report, err = c.Indexer.ReindexAll(ctx, app, indexer.JSONLinesSource{Path: file})
		return err
	})
	return report, err
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	var app, serverURL, output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show document and content counts of an app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			var st *indexer.TenantStatus
			if serverURL != "" {
				client := newAPIClient(serverURL)
				st = &indexer.TenantStatus{}
				if err := client.do(cmd.Context(), http.MethodGet, client.appPath(app, "/status"), "", nil, st); err != nil {
					return fmt.Errorf("status failed: %w", err)
				}
			} else {
				err = withComponents(opts, "", func(c *Components) error {
					var err error
					st, err = c.Indexer.Status(cmd.Context(), app)
					return err
				})
				if err != nil {
					return err
				}
			}
			return cli.WriteStatus(cmd.OutOrStdout(), st, format)
		},
	}
	f := cmd.Flags()
	f.StringVar(&app, "app", "", "app (tenant)")
	f.StringVar(&serverURL, "server", defaultServerURL, "server URL (empty = open the indexes directly)")
	f.StringVar(&output, "output", "text", "output format: text or json")
	_ = cmd.MarkFlagRequired("app")
	return cmd
}

func newDropCmd(opts *globalOptions) *cobra.Command {
	var app, serverURL string
	var yes bool
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Delete an app's index and index state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to drop app %q without --yes", app)
			}
			if serverURL != "" {
				client := newAPIClient(serverURL)
				if err := client.do(cmd.Context(), http.MethodDelete, client.appPath(app, ""), "", nil, nil); err != nil {
					return fmt.Errorf("drop failed: %w", err)
				}
			} else {
				err := withComponents(opts, "", func(c *Components) error {
					return c.Indexer.DropTenant(cmd.Context(), app)
				})
				if err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dropped app %s\n", app)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&app, "app", "", "app (tenant) to drop")
	f.StringVar(&serverURL, "server", defaultServerURL, "server URL (empty = open the indexes directly)")
	f.BoolVar(&yes, "yes", false, "confirm deletion")
	_ = cmd.MarkFlagRequired("app")
	return cmd
}
