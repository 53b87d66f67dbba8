package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/elevateanalytics/star-go/internal/cache"
)

// pullConcurrency caps in-flight fetches during a pull.
const pullConcurrency = 4

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Snapshot configured tables and documents for offline reads",
		Long: `Snapshot configured tables and documents for offline reads.

The [pull] section of the config file lists what to fetch. Snapshots
land in the local cache and serve 'star get --offline'.`,
		Args: cobra.NoArgs,
		RunE: runPull,
	}
}

func runPull(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if len(a.cfg.Pull.Tables) == 0 && len(a.cfg.Pull.Documents) == 0 {
		return fmt.Errorf("nothing to pull, add tables or documents to the [pull] config section")
	}

	store, err := cache.Open(a.cfg.CachePath, a.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(pullConcurrency)

	for _, table := range a.cfg.Pull.Tables {
		g.Go(func() error {
			q := a.gateway.From(table)

			var rows json.RawMessage
			if err := q.Rows(ctx, &rows); err != nil {
				return fmt.Errorf("pulling table %s: %w", table, err)
			}

			var parsed []json.RawMessage
			if err := json.Unmarshal(rows, &parsed); err != nil {
				return fmt.Errorf("pulling table %s: %w", table, err)
			}

			if err := store.SaveTable(ctx, table, q.QueryString(), rows, len(parsed)); err != nil {
				return fmt.Errorf("caching table %s: %w", table, err)
			}

			a.logger.Info("pulled table", "table", table, "rows", len(parsed))

			return nil
		})
	}

	for _, doc := range a.cfg.Pull.Documents {
		g.Go(func() error {
			var payload json.RawMessage

			found, err := a.storage.DownloadJSON(ctx, doc.Bucket, doc.Path, &payload)
			if err != nil {
				return fmt.Errorf("pulling %s/%s: %w", doc.Bucket, doc.Path, err)
			}

			if !found {
				a.logger.Warn("document missing, skipped", "bucket", doc.Bucket, "path", doc.Path)
				return nil
			}

			if err := store.SaveObject(ctx, doc.Bucket, doc.Path, payload); err != nil {
				return fmt.Errorf("caching %s/%s: %w", doc.Bucket, doc.Path, err)
			}

			a.logger.Info("pulled document", "bucket", doc.Bucket, "path", doc.Path)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	statusf("pull complete: %d table(s), %d document(s)\n",
		len(a.cfg.Pull.Tables), len(a.cfg.Pull.Documents))

	return nil
}
