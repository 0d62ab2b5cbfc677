package agent

import (
	"context"
	"slices"

	"radiology-ai/internal/clinical"
)

// ModelClient is the image-understanding capability behind the passes.
// Implementations are injected per pass at construction.
type ModelClient interface {
	Analyze(ctx context.Context, req ModelRequest) (*ModelResponse, error)
}

// ModelRequest carries one pass's question to the model.
type ModelRequest struct {
	Pass     Name
	Image    []byte
	Metadata clinical.Metadata
	Context  clinical.Context
	Prompt   string
}

// ModelResponse is the structured answer the model returns.
type ModelResponse struct {
	Findings   []clinical.Finding `json:"findings"`
	Hypotheses []string           `json:"hypotheses"`
	Confidence map[string]float64 `json:"confidence_scores"`
	Reasoning  string             `json:"reasoning"`
}

func basePrompt(pass Name, c clinical.Context, modality string) string {
	if modality == "" {
		modality = "chest_xray"
	}
	return "You are analyzing a " + modality + " image in an emergency department setting.\n\n" +
		"CLINICAL CONTEXT:\n" + c.Prompt() + "\n\n" +
		"ANALYSIS MODE: " + string(pass) + "\n"
}

// mergeModel folds the model's answer into an output. Model scores replace
// rule-based priors for the same hypothesis; new hypotheses are appended in
// the model's order.
func mergeModel(out *clinical.AgentOutput, resp *ModelResponse) {
	if resp == nil {
		return
	}
	out.Findings = append(out.Findings, resp.Findings...)
	for _, h := range resp.Hypotheses {
		if !slices.Contains(out.Hypotheses, h) {
			out.Hypotheses = append(out.Hypotheses, h)
		}
		conf, ok := resp.Confidence[h]
		if !ok {
			conf = DefaultHypothesisConfidence
		}
		out.Confidence[h] = conf
	}
	if resp.Reasoning != "" {
		out.Reasoning += "\nModel assessment:\n" + resp.Reasoning + "\n"
	}
}
