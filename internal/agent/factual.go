package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"radiology-ai/internal/clinical"
)

// FactualPass extracts technical metadata and flags image-quality defects.
// It never proposes hypotheses.
type FactualPass struct {
	client ModelClient
}

func NewFactualPass(client ModelClient) *FactualPass {
	return &FactualPass{client: client}
}

func (p *FactualPass) Name() Name { return Factual }

func (p *FactualPass) Analyze(ctx context.Context, in Input) (clinical.AgentOutput, error) {
	start := time.Now()
	if len(in.Image) == 0 {
		return degraded(Factual, start, "no image data supplied"), nil
	}

	out := emptyOutput(Factual)
	out.Findings = append(out.Findings, assessTechnicalQuality(in.Metadata)...)

	if p.client != nil {
		resp, err := p.client.Analyze(ctx, ModelRequest{
			Pass:     Factual,
			Image:    in.Image,
			Metadata: in.Metadata,
			Context:  in.Context,
			Prompt:   basePrompt(Factual, in.Context, in.Metadata.String(clinical.KeyModality)) + "\nTASK: Report technical adequacy and positioning only.\n",
		})
		if err != nil {
			return clinical.AgentOutput{}, fmt.Errorf("factual pass: %w", err)
		}
		if resp != nil {
			// Factual analysis stays hypothesis-free; only quality findings are kept.
			for _, f := range resp.Findings {
				if f.Severity == "" {
					f.Severity = clinical.SeverityMild
				}
				out.Findings = append(out.Findings, f)
			}
		}
	}

	quality := "Adequate"
	if len(out.Findings) > 0 {
		quality = "Suboptimal"
	}

	var b strings.Builder
	b.WriteString("FACTUAL ANALYSIS:\n")
	fmt.Fprintf(&b, "- Modality: %s\n", in.Metadata.StringOr(clinical.KeyModality, "Unknown"))
	fmt.Fprintf(&b, "- Study Date: %s\n", in.Metadata.StringOr(clinical.KeyStudyDate, "Unknown"))
	fmt.Fprintf(&b, "- Body Part: %s\n", in.Metadata.StringOr(clinical.KeyBodyPart, "Unknown"))
	fmt.Fprintf(&b, "- View Position: %s\n", in.Metadata.StringOr(clinical.KeyViewPosition, "Unknown"))
	fmt.Fprintf(&b, "- Image Quality: %s\n\n", quality)
	b.WriteString("Clinical Context Summary:\n")
	b.WriteString(in.Context.Prompt())

	out.Reasoning = b.String()
	out.Recommendations = []string{"Review technical adequacy before interpretation"}
	out.ProcessingTimeMS = elapsedMS(start)
	return out, nil
}

func assessTechnicalQuality(md clinical.Metadata) []clinical.Finding {
	var findings []clinical.Finding

	if exposure, ok := md.Float(clinical.KeyExposure); ok && exposure != 0 && (exposure < 1 || exposure > 100) {
		findings = append(findings, clinical.Finding{
			Name:                  "Suboptimal Exposure",
			Severity:              clinical.SeverityMild,
			Confidence:            0.8,
			SupportingEvidence:    []string{fmt.Sprintf("Exposure value: %g", exposure)},
			ContradictingEvidence: []string{},
		})
	}

	return findings
}
