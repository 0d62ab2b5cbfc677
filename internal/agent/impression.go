package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"radiology-ai/internal/clinical"
)

// FlagTraumaMechanism marks outputs produced with a documented mechanism of injury.
const FlagTraumaMechanism = "TRAUMA_MECHANISM"

// impressionHypotheses is the fixed candidate list, in listing order.
var impressionHypotheses = []string{
	"pneumothorax",
	"hemothorax",
	"pulmonary_contusion",
	"rib_fracture",
	"normal_study",
}

// ImpressionPass produces the first-impression hypothesis list that seeds the
// orchestrator's initial hypothesis.
type ImpressionPass struct {
	client ModelClient
}

func NewImpressionPass(client ModelClient) *ImpressionPass {
	return &ImpressionPass{client: client}
}

func (p *ImpressionPass) Name() Name { return Impression }

func (p *ImpressionPass) Analyze(ctx context.Context, in Input) (clinical.AgentOutput, error) {
	start := time.Now()
	if len(in.Image) == 0 {
		return degraded(Impression, start, "no image data supplied"), nil
	}

	out := emptyOutput(Impression)
	out.Hypotheses = append(out.Hypotheses, impressionHypotheses...)
	out.Confidence = Priors(in.Context)

	gestalt := "Routine evaluation"
	if in.Context.MechanismOfInjury != "" {
		gestalt = "High concern for trauma"
		out.Flags = append(out.Flags, FlagTraumaMechanism)
	}
	out.Reasoning = fmt.Sprintf(`INTUITIVE ANALYSIS:
Based on initial pattern recognition and clinical context:

Gestalt: %s

Initial probability estimates generated based on:
- Clinical presentation
- Mechanism of injury
- Recent procedures
`, gestalt)

	if p.client != nil {
		resp, err := p.client.Analyze(ctx, ModelRequest{
			Pass:     Impression,
			Image:    in.Image,
			Metadata: in.Metadata,
			Context:  in.Context,
			Prompt: basePrompt(Impression, in.Context, in.Metadata.String(clinical.KeyModality)) +
				"\nTASK: Provide your initial intuitive assessment: normal vs abnormal, areas of immediate concern, subtle patterns, confidence.\n",
		})
		if err != nil {
			return clinical.AgentOutput{}, fmt.Errorf("impression pass: %w", err)
		}
		mergeModel(&out, resp)
	}

	out.Recommendations = []string{"Proceed with systematic analysis"}
	out.ProcessingTimeMS = elapsedMS(start)
	return out, nil
}

// Priors returns the impression pass's prior probabilities for the given
// context. Mechanism keywords reshape the whole table; procedure keywords only
// raise the pneumothorax floor.
func Priors(c clinical.Context) map[string]float64 {
	priors := map[string]float64{
		"pneumothorax":        0.1,
		"hemothorax":          0.05,
		"pulmonary_contusion": 0.05,
		"rib_fracture":        0.1,
		"normal_study":        0.6,
	}

	moi := strings.ToLower(c.MechanismOfInjury)
	switch {
	case moi == "":
	case containsAny(moi, "mva", "collision", "blunt"):
		priors["pneumothorax"] = 0.25
		priors["hemothorax"] = 0.15
		priors["pulmonary_contusion"] = 0.2
		priors["rib_fracture"] = 0.3
		priors["normal_study"] = 0.2
	case containsAny(moi, "fall"):
		priors["rib_fracture"] = 0.25
		priors["pneumothorax"] = 0.15
		priors["normal_study"] = 0.4
	case containsAny(moi, "penetrating", "stab", "gsw"):
		priors["pneumothorax"] = 0.4
		priors["hemothorax"] = 0.35
		priors["normal_study"] = 0.1
	}

	if c.HasProcedure("cvc", "central line") {
		priors["pneumothorax"] = max(priors["pneumothorax"], 0.2)
	}
	if c.HasProcedure("thoracentesis") {
		priors["pneumothorax"] = max(priors["pneumothorax"], 0.15)
	}

	return priors
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
