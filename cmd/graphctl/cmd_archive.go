package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"entitygraph/internal/archive"
	"entitygraph/internal/blob"
	"entitygraph/internal/codec"
	"entitygraph/internal/config"
)

// loadConfig is replaced in tests.
var loadConfig = config.FromEnv

func openArchive(ctx context.Context) (*archive.Archive, config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cfg, err
	}
	if !cfg.Blob.ArchiveEnabled() {
		return nil, cfg, errors.New("no blob driver configured (set ENTITYGRAPH_BLOB_DRIVER)")
	}
	c, err := codec.ByName(cfg.Codec)
	if err != nil {
		return nil, cfg, err
	}
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return nil, cfg, err
	}
	return archive.New(blobs, c), cfg, nil
}

func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "List and prune archived snapshots",
	}
	var lineage string
	cmd.PersistentFlags().StringVar(&lineage, "lineage", "", "lineage name (default from ENTITYGRAPH_LINEAGE)")
	resolve := func(cfg config.Config) string {
		if lineage != "" {
			return lineage
		}
		return cfg.Lineage
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List archived versions, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			arch, cfg, err := openArchive(cmd.Context())
			if err != nil {
				return err
			}
			entries, err := arch.List(cmd.Context(), resolve(cfg))
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tCODEC\tSIZE\tCREATED\tKEY")
			for _, e := range entries {
				created := ""
				if !e.Created.IsZero() {
					created = e.Created.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", e.Version, e.Codec, e.Size, created, e.Key)
			}
			return tw.Flush()
		},
	})

	var keep int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest archived versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if keep < 1 {
				return fmt.Errorf("--keep must be at least 1, got %d", keep)
			}
			arch, cfg, err := openArchive(cmd.Context())
			if err != nil {
				return err
			}
			removed, err := arch.Prune(cmd.Context(), resolve(cfg), keep)
			if err != nil {
				return err
			}
			for _, e := range removed {
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", e.Key)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d version(s) removed\n", len(removed))
			return nil
		},
	}
	prune.Flags().IntVar(&keep, "keep", 10, "number of newest versions to keep")
	cmd.AddCommand(prune)
	return cmd
}
