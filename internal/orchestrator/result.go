package orchestrator

import (
	"time"

	"radiology-ai/internal/agent"
	"radiology-ai/internal/clinical"
	"radiology-ai/internal/sentinel"
)

const (
	StageInitial = "initial"
	StageFinal   = "final"
)

// Result is everything one analysis produced.
type Result struct {
	StudyID          string                              `json:"study_id"`
	Report           *sentinel.Report                    `json:"report"`
	Collapse         *sentinel.CollapseResult            `json:"collapse"`
	Outputs          map[agent.Name]clinical.AgentOutput `json:"agent_outputs"`
	ProcessingTimeMS float64                             `json:"processing_time_ms"`
	Timeline         []TimelineEntry                     `json:"hypothesis_timeline"`
	Summary          ValidationSummary                   `json:"validation_summary"`

	// PassOrder is the order outputs were fed to the validator.
	PassOrder []agent.Name `json:"pass_order"`
}

type TimelineEntry struct {
	Stage      string           `json:"stage"`
	Timestamp  time.Time        `json:"timestamp"`
	Hypothesis string           `json:"hypothesis"`
	Confidence float64          `json:"confidence"`
	Collapse   *sentinel.Counts `json:"collapse_summary,omitempty"`
}

type ValidationSummary struct {
	TotalHypotheses       int             `json:"total_hypotheses_generated"`
	UniqueHypotheses      int             `json:"unique_hypotheses"`
	ConsensusHypothesis   string          `json:"consensus_hypothesis"`
	ConsensusCount        int             `json:"consensus_count"`
	Stages                sentinel.Counts `json:"collapse_stages"`
	FinalConfidence       float64         `json:"final_confidence"`
	HypothesisChanged     bool            `json:"hypothesis_changed"`
	AgentsWithFindings    int             `json:"agents_with_findings"`
	TotalProcessingTimeMS float64         `json:"total_processing_time_ms"`

	// AgentsCompleted excludes placeholder outputs.
	AgentsCompleted int `json:"agents_completed"`
}

// summarize walks outputs in pipeline order; among equally frequent
// hypotheses the first one seen is the consensus.
func summarize(initial sentinel.Hypothesis, collapse *sentinel.CollapseResult, outputs []clinical.AgentOutput) ValidationSummary {
	s := ValidationSummary{
		ConsensusHypothesis: "none",
		Stages:              collapse.Counts(),
		FinalConfidence:     collapse.Final.Confidence,
		HypothesisChanged:   initial.Diagnosis != collapse.Final.Diagnosis,
	}

	counts := map[string]int{}
	var seen []string
	for _, o := range outputs {
		for _, h := range o.Hypotheses {
			s.TotalHypotheses++
			if counts[h] == 0 {
				seen = append(seen, h)
			}
			counts[h]++
		}
		if !o.Placeholder {
			s.AgentsCompleted++
		}
		if len(o.Findings) > 0 {
			s.AgentsWithFindings++
		}
		s.TotalProcessingTimeMS += o.ProcessingTimeMS
	}
	s.UniqueHypotheses = len(seen)
	for _, h := range seen {
		if counts[h] > s.ConsensusCount {
			s.ConsensusHypothesis = h
			s.ConsensusCount = counts[h]
		}
	}
	return s
}
