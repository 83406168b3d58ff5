package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/stockwatch/history"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit  int
		offset time.Duration
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the sighting report from the history store.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("limit") {
				limit = a.cfg.History.Limit
			}
			if !cmd.Flags().Changed("offset") {
				offset = a.cfg.History.DisplayOffset
			}
			highTiers, err := a.cfg.HighTiers()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			// A fresh store reports no data rather than a missing table.
			if err := store.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("read history: %w", err)
			}
			records, err := store.Recent(ctx, limit)
			if err != nil {
				return fmt.Errorf("read history: %w", err)
			}
			summary := history.Summarize(records, offset, highTiers)
			if limit > 0 && len(records) == limit {
				total, err := store.Count(ctx)
				if err != nil {
					return fmt.Errorf("read history: %w", err)
				}
				summary.Total = int(total)
			}
			return history.WriteReport(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "most recent sightings to read, 0 for all (overrides history.limit)")
	cmd.Flags().DurationVar(&offset, "offset", history.DefaultDisplayOffset, "display time offset from UTC (overrides history.display_offset)")
	return cmd
}
