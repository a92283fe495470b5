package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/doclab/labrepair-cli/internal/model"
)

var (
	recordsUserID string
	recordsXLSX   string
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List a user's structured test records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		recs, err := st.ListTestRecords(ctx, recordsUserID)
		if err != nil {
			return err
		}

		if recordsXLSX != "" {
			if err := exportXLSX(recs, recordsXLSX); err != nil {
				return err
			}
			zap.L().Info("records exported",
				zap.String("path", recordsXLSX),
				zap.Int("count", len(recs)),
			)
			return nil
		}

		for _, r := range recs {
			fmt.Printf("%-30s %-20s %-12s %s\n", r.TestName, r.Result, r.TestDate, r.TestSystem)
		}
		fmt.Printf("%d records\n", len(recs))
		return nil
	},
}

var recordsHeader = []string{
	"Test Name", "Result", "Reference Values", "Units",
	"Test Date", "Test System", "Equipment", "Notes",
}

func exportXLSX(recs []model.TestRecord, path string) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Test Results")
	if err != nil {
		return err
	}

	header := sheet.AddRow()
	for _, h := range recordsHeader {
		header.AddCell().Value = h
	}

	for _, r := range recs {
		row := sheet.AddRow()
		for _, v := range []string{
			r.TestName, r.Result, r.ReferenceValues, r.Units,
			r.TestDate, r.TestSystem, r.Equipment, r.Notes,
		} {
			row.AddCell().Value = v
		}
	}

	return file.Save(path)
}

func init() {
	recordsCmd.Flags().StringVar(&recordsUserID, "user", "", "user ID (required)")
	recordsCmd.Flags().StringVar(&recordsXLSX, "xlsx", "", "export to an XLSX file instead of printing")
	_ = recordsCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(recordsCmd)
}
