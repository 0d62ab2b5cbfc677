package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"radiology-ai/internal/sentinel"
	"radiology-ai/internal/store"
)

var reportFlags struct {
	by string
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Review, sign or amend archived reports",
}

func transitionCmd(use, short string, apply func(r *sentinel.Report, by string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <report-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := database(ctx)
			if err != nil {
				return err
			}
			repo := store.NewRepository(db)

			r, err := repo.GetReport(ctx, args[0])
			if err != nil {
				return err
			}
			if err := apply(r, reportFlags.by); err != nil {
				return err
			}
			if err := repo.UpdateReport(ctx, r); err != nil {
				return err
			}
			app.logger.Info("report updated",
				zap.String("report_id", r.ID),
				zap.String("status", string(r.Status)),
				zap.String("by", reportFlags.by))

			_, err = fmt.Fprintln(cmd.OutOrStdout(), r.ClinicalText())
			return err
		},
	}
}

func init() {
	reportCmd.PersistentFlags().StringVar(&reportFlags.by, "by", "", "Radiologist identity")
	_ = reportCmd.MarkPersistentFlagRequired("by")

	reportCmd.AddCommand(
		transitionCmd("review", "Mark a report reviewed", (*sentinel.Report).MarkReviewed),
		transitionCmd("sign", "Sign a reviewed report", (*sentinel.Report).Sign),
		transitionCmd("amend", "Reopen a signed report for amendment", (*sentinel.Report).Amend),
	)
}
