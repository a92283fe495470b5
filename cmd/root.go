package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/doclab/labrepair-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "labrepair-cli",
	Short: "Lab-test record repair and recovery toolkit",
	Long:  "Cleans marker-corrupted lab test records, recovers lost field values from source documents, removes duplicates, and re-extracts structured results.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
