package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"radiology-ai/internal/orchestrator"
	"radiology-ai/internal/store"
)

var correctionFlags struct {
	diagnosis string
	by        string
	reason    string
}

var correctionsCmd = &cobra.Command{
	Use:   "corrections",
	Short: "Submit radiologist corrections and drain them for training",
}

var correctionsSubmitCmd = &cobra.Command{
	Use:   "submit <report-id>",
	Short: "Record a correction of an archived report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := database(ctx)
		if err != nil {
			return err
		}
		r, err := store.NewRepository(db).GetReport(ctx, args[0])
		if err != nil {
			return err
		}
		orch, err := newOrchestrator(ctx)
		if err != nil {
			return err
		}

		ack, err := orch.SubmitCorrection(ctx, &orchestrator.Result{Report: r},
			correctionFlags.diagnosis, correctionFlags.by, correctionFlags.reason)
		if err != nil {
			return err
		}
		return printJSON(cmd, ack)
	},
}

var correctionsFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Print every buffered correction as JSON and clear the buffer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if _, err := database(ctx); err != nil {
			return err
		}
		orch, err := newOrchestrator(ctx)
		if err != nil {
			return err
		}
		records, err := orch.FlushLearning(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd, records)
	},
}

func init() {
	f := correctionsSubmitCmd.Flags()
	f.StringVar(&correctionFlags.diagnosis, "diagnosis", "", "Corrected diagnosis")
	f.StringVar(&correctionFlags.by, "by", "", "Radiologist identity")
	f.StringVar(&correctionFlags.reason, "reason", "", "Why the draft was wrong")
	_ = correctionsSubmitCmd.MarkFlagRequired("diagnosis")
	_ = correctionsSubmitCmd.MarkFlagRequired("by")

	correctionsCmd.AddCommand(correctionsSubmitCmd, correctionsFlushCmd)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
