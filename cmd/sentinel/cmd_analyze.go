package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"radiology-ai/internal/clinical"
	"radiology-ai/internal/orchestrator"
	"radiology-ai/internal/store"
)

var analyzeFlags struct {
	requestPath string
	imagePath   string
	format      string
	pdfPath     string
	archive     bool
	deliver     bool
}

// requestFile is the on-disk form of an analysis request.
type requestFile struct {
	StudyID  string            `yaml:"study_id"`
	Priority string            `yaml:"priority"`
	Metadata clinical.Metadata `yaml:"metadata"`
	Context  clinical.Context  `yaml:"context"`
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze one study and draft its report",
	Long: `Analyze runs the full pass pipeline on one image and prints the drafted
report.

Example request file:

  study_id: 1.2.840.113619.2.55
  priority: urgent
  metadata:
    Modality: CR
    BodyPartExamined: CHEST
    PatientAge: 045Y
    PatientSex: M
  context:
    chief_complaint: Chest trauma after MVA
    mechanism_of_injury: MVA, restrained driver
    recent_procedures: [Right IJ CVC]`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVarP(&analyzeFlags.requestPath, "request", "r", "", "Path to request YAML (metadata and clinical context)")
	f.StringVarP(&analyzeFlags.imagePath, "image", "i", "", "Path to the image file")
	f.StringVarP(&analyzeFlags.format, "format", "f", "text", "Output format: text (clinical layout) or json (full result)")
	f.StringVar(&analyzeFlags.pdfPath, "pdf", "", "Also write the report as PDF to this path")
	f.BoolVar(&analyzeFlags.archive, "archive", false, "Store the result in the database")
	f.BoolVar(&analyzeFlags.deliver, "deliver", false, "Send the report to the configured Telegram chat")
	_ = analyzeCmd.MarkFlagRequired("request")
	_ = analyzeCmd.MarkFlagRequired("image")
}

func loadRequest(path string) (*requestFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}
	var rf requestFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse request %s: %w", path, err)
	}
	return &rf, nil
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if analyzeFlags.format != "text" && analyzeFlags.format != "json" {
		return fmt.Errorf("unknown format %q (want text or json)", analyzeFlags.format)
	}

	rf, err := loadRequest(analyzeFlags.requestPath)
	if err != nil {
		return err
	}
	image, err := os.ReadFile(analyzeFlags.imagePath)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	orch, err := newOrchestrator(ctx)
	if err != nil {
		return err
	}
	res, err := orch.Analyze(ctx, orchestrator.Request{
		StudyID:  rf.StudyID,
		Image:    image,
		Metadata: rf.Metadata,
		Context:  rf.Context,
		Priority: rf.Priority,
	})
	if err != nil {
		return err
	}

	if analyzeFlags.archive {
		db, err := database(ctx)
		if err != nil {
			return err
		}
		if err := store.NewRepository(db).SaveAnalysis(ctx, res); err != nil {
			return err
		}
		app.logger.Info("result archived", zap.String("report_id", res.Report.ID))
	}

	svc := newReportService()
	if analyzeFlags.pdfPath != "" {
		pdf, err := svc.RenderPDF(res.Report)
		if err != nil {
			return err
		}
		if err := os.WriteFile(analyzeFlags.pdfPath, pdf, 0o644); err != nil {
			return fmt.Errorf("write pdf: %w", err)
		}
	}
	if analyzeFlags.deliver {
		if err := svc.Deliver(ctx, res.Report); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if analyzeFlags.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	_, err = fmt.Fprintln(out, res.Report.ClinicalText())
	return err
}
