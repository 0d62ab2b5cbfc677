package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"radiology-ai/internal/clinical"
)

const (
	differentialConfidence = 0.3
	maxDifferentials       = 8
)

var baseDifferentials = []string{
	"Tension pneumothorax",
	"Simple pneumothorax",
	"Hemothorax",
	"Pulmonary contusion",
	"Rib fractures (multiple)",
	"Flail chest",
	"Cardiac contusion",
	"Aortic injury",
	"Diaphragmatic rupture",
	"Tracheobronchial injury",
}

// DifferentialPass proposes a longer list of clinical differentials, all at a
// deliberately low confidence.
type DifferentialPass struct{}

func NewDifferentialPass() *DifferentialPass { return &DifferentialPass{} }

func (p *DifferentialPass) Name() Name { return Differential }

func (p *DifferentialPass) Analyze(_ context.Context, in Input) (clinical.AgentOutput, error) {
	start := time.Now()
	if len(in.Image) == 0 {
		return degraded(Differential, start, "no image data supplied"), nil
	}

	out := emptyOutput(Differential)
	out.Hypotheses = Differentials(in.Context)
	for _, d := range out.Hypotheses {
		out.Confidence[d] = differentialConfidence
	}

	var b strings.Builder
	b.WriteString("ALTERNATIVE ANALYSIS:\n\nDifferential Diagnoses to Consider:\n")
	for i, d := range out.Hypotheses {
		fmt.Fprintf(&b, "%d. %s\n", i+1, d)
	}
	b.WriteString("\nAlternative Interpretations:\n- Consider atypical presentations\n- Evaluate for incidental findings\n- Consider combination of pathologies\n")
	out.Reasoning = b.String()

	out.Recommendations = []string{"Consider alternative diagnoses if primary findings don't correlate"}
	out.ProcessingTimeMS = elapsedMS(start)
	return out, nil
}

// Differentials returns the ordered differential list for c. Device
// malposition differentials move to the front when the matching tube or line
// is among the recent procedures.
func Differentials(c clinical.Context) []string {
	diffs := append([]string(nil), baseDifferentials...)

	if c.HasProcedure("ngt", "sne") {
		diffs = append([]string{"NGT malposition"}, diffs...)
	}
	if c.HasProcedure("ett", "intubation") {
		diffs = append([]string{"ETT malposition"}, diffs...)
	}
	if c.HasProcedure("cvc", "central line") {
		diffs = append([]string{"Iatrogenic pneumothorax", "CVC malposition"}, diffs...)
	}

	if len(diffs) > maxDifferentials {
		diffs = diffs[:maxDifferentials]
	}
	return diffs
}
