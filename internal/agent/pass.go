package agent

import (
	"context"
	"fmt"
	"time"

	"radiology-ai/internal/clinical"
)

// Name identifies an analysis pass.
type Name string

const (
	Factual      Name = "factual"
	Impression   Name = "impression"
	Critique     Name = "critique"
	Confirmatory Name = "confirmatory"
	Differential Name = "differential"
	Synthesis    Name = "synthesis"
)

// All lists every pass in pipeline order.
var All = []Name{Factual, Impression, Critique, Confirmatory, Differential, Synthesis}

// Known reports whether n names one of the six passes.
func Known(n Name) bool {
	for _, k := range All {
		if k == n {
			return true
		}
	}
	return false
}

// Input is what a pass receives for one analysis.
// Previous holds the outputs produced earlier in the same analysis and must
// not be modified.
type Input struct {
	Image    []byte
	Metadata clinical.Metadata
	Context  clinical.Context
	Previous []clinical.AgentOutput
}

// Pass is one independent analysis routine.
//
// Analyze never fails for malformed input it can detect; it returns a
// degraded output explaining why instead. A non-nil error means the model
// capability behind the pass failed.
type Pass interface {
	Name() Name
	Analyze(ctx context.Context, in Input) (clinical.AgentOutput, error)
}

// Set maps pass names to implementations.
type Set map[Name]Pass

// Defaults builds all six passes. client may be nil, in which case the
// passes run on rules alone.
func Defaults(client ModelClient) Set {
	return Set{
		Factual:      NewFactualPass(client),
		Impression:   NewImpressionPass(client),
		Critique:     NewCritiquePass(),
		Confirmatory: NewConfirmatoryPass(),
		Differential: NewDifferentialPass(),
		Synthesis:    NewSynthesisPass(),
	}
}

// DefaultHypothesisConfidence is used for hypotheses a pass lists without
// scoring them.
const DefaultHypothesisConfidence = 0.3

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

func degraded(name Name, start time.Time, reason string) clinical.AgentOutput {
	return clinical.AgentOutput{
		Agent:            string(name),
		Findings:         []clinical.Finding{},
		Hypotheses:       []string{},
		Confidence:       map[string]float64{},
		Reasoning:        fmt.Sprintf("%s analysis skipped: %s", name, reason),
		Recommendations:  []string{},
		Flags:            []string{},
		ProcessingTimeMS: elapsedMS(start),
	}
}

func emptyOutput(name Name) clinical.AgentOutput {
	return clinical.AgentOutput{
		Agent:           string(name),
		Findings:        []clinical.Finding{},
		Hypotheses:      []string{},
		Confidence:      map[string]float64{},
		Recommendations: []string{},
		Flags:           []string{},
	}
}
