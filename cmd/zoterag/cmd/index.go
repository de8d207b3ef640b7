package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newIndexCmd() *cobra.Command {
	var incremental bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the library: extract, chunk, embed, and write to the vector store",
		Long: `Runs the indexing pipeline against the configured Zotero catalogue:
extracts page-aware text from each item's PDF, chunks it, embeds it, and
writes the result plus a BM25 index into the profile's vector store.

Use --incremental to only index items not already present in the store.`,
		RunE: func(c *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := buildService()
			if err != nil {
				return err
			}
			defer svc.Close()

			svc.StartIndexing(ctx, incremental)

			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					svc.CancelIndexing()
					return ctx.Err()
				case <-ticker.C:
					status := svc.IndexStatus()
					fmt.Fprintf(c.OutOrStdout(), "\r%s: %d/%d processed, %d skipped (eta %s)  ",
						status.Mode, status.ProcessedItems, status.TotalItems, status.SkippedItems, formatDuration(status.ETASeconds))
					if !status.InProgress {
						fmt.Fprintln(c.OutOrStdout())
						for _, reason := range status.SkipReasons {
							fmt.Fprintf(c.OutOrStdout(), "  skipped: %s\n", reason)
						}
						return nil
					}
				}
			}
		},
	}

	cmd.Flags().BoolVar(&incremental, "incremental", false, "only index items not already in the store")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the current (or last) indexing job's status",
		RunE: func(c *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}
			defer svc.Close()

			status := svc.IndexStatus()
			fmt.Fprintf(c.OutOrStdout(), "mode: %s\nin progress: %t\nprocessed: %d/%d\nskipped: %d\n",
				status.Mode, status.InProgress, status.ProcessedItems, status.TotalItems, status.SkippedItems)
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Check and, if needed, migrate chunk metadata to the current format",
		RunE: func(c *cobra.Command, args []string) error {
			ctx := context.Background()
			svc, err := buildService()
			if err != nil {
				return err
			}
			defer svc.Close()

			info := svc.MetadataVersion(ctx)
			if !info.MigrationNeeded {
				fmt.Fprintln(c.OutOrStdout(), "metadata is already current; nothing to do")
				return nil
			}
			fmt.Fprintln(c.OutOrStdout(), info.Message)
			if err := svc.MigrateMetadata(ctx); err != nil {
				return fmt.Errorf("migrating metadata: %w", err)
			}
			fmt.Fprintln(c.OutOrStdout(), "migration complete")
			return nil
		},
	}
}
