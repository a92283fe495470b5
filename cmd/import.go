package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/doclab/labrepair-cli/internal/model"
)

var (
	importUserID string
	importFile   string
	importType   string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a text document as a medical record",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		content, err := os.ReadFile(importFile)
		if err != nil {
			return eris.Wrapf(err, "read %s", importFile)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		rec := &model.MedicalRecord{
			UserID:     importUserID,
			RecordType: importType,
			Content:    string(content),
		}
		if err := st.InsertMedicalRecord(ctx, rec); err != nil {
			return err
		}

		zap.L().Info("document imported",
			zap.String("record_id", rec.ID),
			zap.String("user_id", importUserID),
			zap.Int("bytes", len(content)),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importUserID, "user", "", "user ID (required)")
	importCmd.Flags().StringVar(&importFile, "file", "", "path to the document text (required)")
	importCmd.Flags().StringVar(&importType, "type", "document", "record type label")
	_ = importCmd.MarkFlagRequired("user")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
