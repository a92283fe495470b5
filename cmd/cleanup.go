package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	cleanupUserID string
	cleanupAll    bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Repair corrupted fields and remove duplicate test records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if cleanupUserID == "" && !cleanupAll {
			return eris.New("either --user or --all is required")
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if cleanupUserID != "" {
			summary, err := e.Engine.CleanupUser(ctx, cleanupUserID)
			if err != nil {
				return err
			}
			printCleanupSummary(cleanupUserID, summary.CleanedCount, summary.DeletedDuplicates)
			return nil
		}

		userIDs, err := e.Store.ListUserIDs(ctx)
		if err != nil {
			return err
		}

		var g errgroup.Group
		g.SetLimit(cfg.Cleanup.MaxConcurrentUsers)
		for _, userID := range userIDs {
			g.Go(func() error {
				summary, err := e.Engine.CleanupUser(ctx, userID)
				if err != nil {
					// One user's failure should not stop the sweep.
					zap.L().Error("cleanup failed",
						zap.String("user_id", userID),
						zap.Error(err),
					)
					return nil
				}
				printCleanupSummary(userID, summary.CleanedCount, summary.DeletedDuplicates)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		zap.L().Info("cleanup sweep complete", zap.Int("users", len(userIDs)))
		return nil
	},
}

func printCleanupSummary(userID string, cleaned, deduped int) {
	fmt.Printf("user %s: %d repaired, %d duplicates removed\n", userID, cleaned, deduped)
}

func init() {
	cleanupCmd.Flags().StringVar(&cleanupUserID, "user", "", "user ID to clean up")
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "clean up every user")
	rootCmd.AddCommand(cleanupCmd)
}
