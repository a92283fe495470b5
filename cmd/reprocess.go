package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	reprocessUserID string
	reprocessYes    bool
	reprocessResume bool
)

var reprocessCmd = &cobra.Command{
	Use:   "reprocess",
	Short: "Delete a user's structured records and re-extract them from stored documents",
	Long: "Destructive: removes every structured test record for the user, then rebuilds " +
		"them from the stored source documents. Progress is recorded so an interrupted " +
		"run can be finished with --resume.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if reprocessResume {
			summary, err := e.Reprocess.Resume(ctx, reprocessUserID)
			if err != nil {
				return err
			}
			if summary == nil {
				fmt.Println("nothing to resume")
				return nil
			}
			fmt.Printf("resumed: %d tests extracted\n", summary.TestsCount)
			return nil
		}

		if !reprocessYes && !confirm(fmt.Sprintf(
			"Delete all structured test records for user %s and re-extract? [y/N]: ",
			reprocessUserID,
		)) {
			fmt.Println("aborted")
			return nil
		}

		summary, err := e.Reprocess.Run(ctx, reprocessUserID)
		if err != nil {
			return err
		}

		fmt.Printf("reprocessed %d documents, %d tests extracted\n",
			summary.RecordsProcessed, summary.TestsCount)
		return nil
	},
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func init() {
	reprocessCmd.Flags().StringVar(&reprocessUserID, "user", "", "user ID (required)")
	reprocessCmd.Flags().BoolVar(&reprocessYes, "yes", false, "skip the confirmation prompt")
	reprocessCmd.Flags().BoolVar(&reprocessResume, "resume", false, "finish an interrupted reprocess")
	_ = reprocessCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(reprocessCmd)
}
