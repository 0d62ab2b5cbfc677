package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"radiology-ai/internal/clinical"
)

// lowConfidence is the bar below which the critique pass questions a finding.
const lowConfidence = 0.7

var commonPitfalls = []string{
	"Skin folds mimicking pneumothorax",
	"Scapular edge simulating pneumothorax line",
	"Costophrenic angle blunting from positioning",
	"Artifact from patient movement",
}

// CritiquePass inspects earlier findings for weak confidence or missing
// evidence. It adds no findings or hypotheses of its own.
type CritiquePass struct{}

func NewCritiquePass() *CritiquePass { return &CritiquePass{} }

func (p *CritiquePass) Name() Name { return Critique }

func (p *CritiquePass) Analyze(_ context.Context, in Input) (clinical.AgentOutput, error) {
	start := time.Now()
	out := emptyOutput(Critique)

	warnings := critiqueFindings(in.Previous)
	pitfalls := diagnosticPitfalls(in.Context)

	issues := "No major issues identified"
	if len(warnings) > 0 {
		issues = strings.Join(warnings, "\n")
	}

	var b strings.Builder
	b.WriteString("CRITICAL ANALYSIS:\n\nPotential Issues Identified:\n")
	b.WriteString(issues)
	b.WriteString("\n\nDiagnostic Pitfalls to Consider:\n")
	for _, pf := range pitfalls {
		b.WriteString("- " + pf + "\n")
	}
	out.Reasoning = b.String()

	out.Recommendations = append(out.Recommendations, warnings...)
	out.Recommendations = append(out.Recommendations,
		"Verify findings with clinical correlation",
		"Consider artifact vs true pathology",
		"Review prior studies if available",
	)
	out.ProcessingTimeMS = elapsedMS(start)
	return out, nil
}

func critiqueFindings(outputs []clinical.AgentOutput) []string {
	var warnings []string
	for _, o := range outputs {
		for _, f := range o.Findings {
			if f.Confidence < lowConfidence {
				warnings = append(warnings, fmt.Sprintf(
					"Low confidence finding '%s' (%.0f%%) - needs verification", f.Name, f.Confidence*100))
			}
			if len(f.SupportingEvidence) == 0 {
				warnings = append(warnings, fmt.Sprintf("Finding '%s' lacks supporting evidence", f.Name))
			}
		}
	}
	return warnings
}

func diagnosticPitfalls(c clinical.Context) []string {
	pitfalls := append([]string(nil), commonPitfalls...)
	if c.HasProcedure("cvc") {
		pitfalls = append(pitfalls, "Expected post-procedure changes")
	}
	return pitfalls
}
