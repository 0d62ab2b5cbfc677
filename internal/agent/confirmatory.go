package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"radiology-ai/internal/clinical"
)

// ConfirmatoryPass collects the supporting evidence already attached to
// earlier findings and narrates how the clinical picture correlates.
type ConfirmatoryPass struct{}

func NewConfirmatoryPass() *ConfirmatoryPass { return &ConfirmatoryPass{} }

func (p *ConfirmatoryPass) Name() Name { return Confirmatory }

func (p *ConfirmatoryPass) Analyze(_ context.Context, in Input) (clinical.AgentOutput, error) {
	start := time.Now()
	out := emptyOutput(Confirmatory)

	out.Reasoning = fmt.Sprintf("SUPPORTIVE ANALYSIS:\n\n%s\n\nClinical Correlation:\n%s\n",
		supportingEvidence(in.Previous), clinicalCorrelation(in.Context))
	out.Recommendations = []string{"Clinical correlation supports imaging findings"}
	out.ProcessingTimeMS = elapsedMS(start)
	return out, nil
}

func supportingEvidence(outputs []clinical.AgentOutput) string {
	var lines []string
	for _, o := range outputs {
		for _, f := range o.Findings {
			if len(f.SupportingEvidence) > 0 {
				lines = append(lines, f.Name+": "+strings.Join(f.SupportingEvidence, ", "))
			}
		}
		for _, h := range o.Hypotheses {
			if c, ok := o.Confidence[h]; ok && c >= lowConfidence {
				lines = append(lines, fmt.Sprintf("%s: rated %.0f%% by %s", h, c*100, o.Agent))
			}
		}
	}
	if len(lines) == 0 {
		return "Awaiting findings to support"
	}
	return strings.Join(lines, "\n")
}

func clinicalCorrelation(c clinical.Context) string {
	var lines []string
	if c.MechanismOfInjury != "" {
		lines = append(lines, fmt.Sprintf("Mechanism (%s) consistent with thoracic trauma", c.MechanismOfInjury))
	}
	complaint := strings.ToLower(c.ChiefComplaint)
	if strings.Contains(complaint, "pain") {
		lines = append(lines, "Patient symptoms support imaging evaluation")
	}
	if strings.Contains(complaint, "dyspnea") {
		lines = append(lines, "Respiratory symptoms warrant careful lung evaluation")
	}
	if len(lines) == 0 {
		return "Limited clinical correlation available"
	}
	return strings.Join(lines, "\n")
}
