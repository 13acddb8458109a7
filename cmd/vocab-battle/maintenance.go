package main

import (
	"fmt"
	"os"

	"github.com/samber/lo"
	"github.com/smith3v/vocab-battle/pkg/catalog"
	"github.com/smith3v/vocab-battle/pkg/config"
	"github.com/smith3v/vocab-battle/pkg/db"
	"github.com/smith3v/vocab-battle/pkg/domain"
	"github.com/smith3v/vocab-battle/pkg/logger"
	"github.com/spf13/cobra"
)

func newRegenerateCmd() *cobra.Command {
	var bookID int64

	cmd := &cobra.Command{
		Use:   "regenerate",
		Short: "Rebuild learning parts, distractors and battle sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := newServices(db.DB, config.AppConfig)

			var scope *int64
			if cmd.Flags().Changed("book") {
				scope = &bookID
			}
			report, err := svc.regen.RegenerateAll(cmd.Context(), scope)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "regenerated=%d skipped=%d distractor_sets=%d failures=%d canceled=%t\n",
				report.ScopesRegenerated, report.ScopesSkipped, report.DistractorSets, len(report.Failures), report.Canceled)
			for _, f := range report.Failures {
				fmt.Fprintf(out, "failed %s\n", f.Error())
			}
			if err != nil {
				return err
			}
			if len(report.Failures) > 0 {
				return fmt.Errorf("%d scopes failed", len(report.Failures))
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&bookID, "book", 0, "regenerate only this book")
	return cmd
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired friend battle codes and battle plays",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := newServices(db.DB, config.AppConfig)
			codes, plays, err := svc.sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "codes=%d plays=%d\n", codes, plays)
			return nil
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Seed books, topics and words from a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			report, err := catalog.ImportCSV(ctx, db.DB, data)
			if err != nil {
				return err
			}

			// Existing sessions no longer reflect the imported words.
			svc := newServices(db.DB, config.AppConfig)
			bookIDs, err := svc.store.ListBookIDs(ctx)
			if err != nil {
				return err
			}
			for _, bookID := range bookIDs {
				topicIDs, err := svc.store.ResolveTopicsOfBook(ctx, bookID)
				if err != nil {
					return err
				}
				scopes := append(lo.Map(topicIDs, func(id int64, _ int) domain.Scope { return domain.TopicScope(id) }), domain.BookScope(bookID))
				for _, scope := range scopes {
					if _, err := svc.sessions.MarkStale(ctx, scope); err != nil {
						logger.Warn("failed to mark sessions stale", "scope", scope.String(), "error", err)
					}
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "books=%d topics=%d inserted=%d updated=%d skipped=%d\n",
				report.Books, report.Topics, report.Inserted, report.Updated, report.Skipped)
			return nil
		},
	}
}
