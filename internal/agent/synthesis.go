package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/montanaflynn/stats"

	"radiology-ai/internal/clinical"
)

// SynthesisPass runs last over every other output. It adds no findings; it
// reports process-quality metrics, aggregate recommendations and the union of
// urgency flags.
type SynthesisPass struct{}

func NewSynthesisPass() *SynthesisPass { return &SynthesisPass{} }

func (p *SynthesisPass) Name() Name { return Synthesis }

func (p *SynthesisPass) Analyze(_ context.Context, in Input) (clinical.AgentOutput, error) {
	start := time.Now()
	out := emptyOutput(Synthesis)
	outputs := in.Previous

	var totalFindings, totalHypotheses int
	var summary []string
	for _, o := range outputs {
		totalFindings += len(o.Findings)
		totalHypotheses += len(o.Hypotheses)
		summary = append(summary, fmt.Sprintf("- %s: %d findings, %d hypotheses", o.Agent, len(o.Findings), len(o.Hypotheses)))
	}
	if len(summary) == 0 {
		summary = []string{"No agent outputs to synthesize"}
	}

	var b strings.Builder
	b.WriteString("META-ANALYSIS:\n\nProcess Summary:\n")
	fmt.Fprintf(&b, "- %d agent analyses completed\n", len(outputs))
	fmt.Fprintf(&b, "- Total findings: %d\n", totalFindings)
	fmt.Fprintf(&b, "- Total hypotheses considered: %d\n\n", totalHypotheses)
	b.WriteString("Synthesis:\n" + strings.Join(summary, "\n") + "\n\n")
	b.WriteString("Quality Metrics:\n")
	fmt.Fprintf(&b, "- Analysis completeness: %.0f%%\n", Completeness(outputs)*100)
	fmt.Fprintf(&b, "- Consensus level: %.0f%%\n", Consensus(outputs)*100)
	if mean, median, ok := confidenceStats(outputs); ok {
		fmt.Fprintf(&b, "- Hypothesis confidence: mean %.0f%%, median %.0f%%\n", mean*100, median*100)
	}
	out.Reasoning = b.String()

	out.Recommendations = finalRecommendations(in.Context)
	out.Flags = UnionFlags(outputs)
	out.ProcessingTimeMS = elapsedMS(start)
	return out, nil
}

// Completeness is the fraction of the six expected passes represented by a
// real (non-placeholder) output. The synthesis pass counts itself.
func Completeness(outputs []clinical.AgentOutput) float64 {
	present := map[Name]bool{Synthesis: true}
	for _, o := range outputs {
		if !o.Placeholder && Known(Name(o.Agent)) {
			present[Name(o.Agent)] = true
		}
	}
	return float64(len(present)) / float64(len(All))
}

// Consensus is the count of the most repeated hypothesis divided by the number
// of unique hypotheses. With no hypotheses there is no disagreement and the
// result is 1.
func Consensus(outputs []clinical.AgentOutput) float64 {
	counts := map[string]int{}
	best := 0
	for _, o := range outputs {
		for _, h := range o.Hypotheses {
			counts[h]++
			best = max(best, counts[h])
		}
	}
	if len(counts) == 0 {
		return 1
	}
	return float64(best) / float64(len(counts))
}

// UnionFlags returns every flag raised by any output, first occurrence order.
func UnionFlags(outputs []clinical.AgentOutput) []string {
	seen := map[string]bool{}
	flags := []string{}
	for _, o := range outputs {
		for _, f := range o.Flags {
			if !seen[f] {
				seen[f] = true
				flags = append(flags, f)
			}
		}
	}
	return flags
}

func confidenceStats(outputs []clinical.AgentOutput) (mean, median float64, ok bool) {
	var data stats.Float64Data
	for _, o := range outputs {
		for _, h := range o.Hypotheses {
			data = append(data, o.ScoreOf(h, DefaultHypothesisConfidence))
		}
	}
	if len(data) == 0 {
		return 0, 0, false
	}
	mean, err := stats.Mean(data)
	if err != nil {
		return 0, 0, false
	}
	median, err = stats.Median(data)
	if err != nil {
		return 0, 0, false
	}
	return mean, median, true
}

func finalRecommendations(c clinical.Context) []string {
	recs := []string{
		"Complete systematic review of all lung fields",
		"Evaluate mediastinal contour",
		"Assess cardiac silhouette",
		"Review costophrenic angles",
		"Check tube/line positions if present",
	}
	if c.MechanismOfInjury != "" {
		recs = append([]string{"PRIORITY: Evaluate for traumatic injury"}, recs...)
	}
	return recs
}
