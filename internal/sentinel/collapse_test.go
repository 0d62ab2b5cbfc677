package sentinel

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radiology-ai/internal/clinical"
)

var fixedNow = time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestValidator() *Validator {
	return NewValidator(Config{Now: func() time.Time { return fixedNow }}, nil)
}

func evidence(n int, prefix string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s %d", prefix, i+1)
	}
	return out
}

func finding(name string, conf float64, support, contra int) clinical.Finding {
	return clinical.Finding{
		Name:                  name,
		Confidence:            conf,
		Severity:              clinical.SeverityModerate,
		SupportingEvidence:    evidence(support, "support"),
		ContradictingEvidence: evidence(contra, "contra"),
	}
}

func findingsOutput(findings ...clinical.Finding) []clinical.AgentOutput {
	return []clinical.AgentOutput{{Agent: "factual", Findings: findings}}
}

func TestCollapse_ScenarioA(t *testing.T) {
	v := newTestValidator()
	outputs := findingsOutput(
		finding("pneumothorax", 0.85, 3, 0),
		finding("rib_fracture", 0.3, 1, 0),
		finding("normal_study", 0.1, 0, 0),
	)

	res := v.Collapse(Hypothesis{Diagnosis: "pneumothorax", Confidence: 0.85}, outputs)

	assert.Len(t, res.Stage1, 3)
	assert.Len(t, res.Stage2, 3)
	assert.Equal(t, "pneumothorax", res.Final.Diagnosis)
	assert.InDelta(t, 0.85, res.Final.Confidence, 1e-9)
	assert.Contains(t, res.Log, "VALIDATION: Initial hypothesis confirmed")

	report := v.GenerateReport(res, clinical.Metadata{}, "Chest pain", outputs)
	assert.Equal(t, UrgencyUrgent, report.Urgency)
	assert.True(t, report.RadiologistRequired)
	assert.Equal(t, StatusPendingReview, report.Status)
}

func TestCollapse_ScenarioB(t *testing.T) {
	v := newTestValidator()
	outputs := findingsOutput(
		finding("A", 0.9, 1, 5),
		finding("B", 0.4, 2, 0),
	)

	res := v.Collapse(Hypothesis{Diagnosis: "A", Confidence: 0.9}, outputs)

	require.Len(t, res.Stage1, 2)
	require.Len(t, res.Stage2, 1)
	assert.Equal(t, "B", res.Final.Diagnosis)
	assert.True(t, res.Initial[0].Eliminated)
	assert.Equal(t, "Stage 2: contradicting evidence (5 vs 1)", res.Initial[0].EliminationReason)
	assert.Contains(t, res.Log, "Collapsed 'A': Stage 2: contradicting evidence (5 vs 1)")
	assert.Contains(t, res.Log, "VALIDATION: Hypothesis changed from 'A' to 'B'")
}

func TestCollapse_ScenarioC(t *testing.T) {
	v := newTestValidator()

	res := v.Collapse(Hypothesis{Diagnosis: "Unknown", Confidence: 0.5}, nil)

	require.Len(t, res.Initial, 1)
	assert.Equal(t, "Unknown", res.Initial[0].Diagnosis)
	assert.Equal(t, "Unknown", res.Final.Diagnosis)
	assert.InDelta(t, 0.5, res.Final.Confidence, 1e-9)
	assert.Equal(t, Counts{Initial: 1, Stage1: 1, Stage2: 1, Final: 1}, res.Counts())
}

func TestCollapse_IndeterminateWhenNothingSurvives(t *testing.T) {
	v := newTestValidator()

	// The seed is too weak for stage 1, so the universe empties out.
	res := v.Collapse(Hypothesis{Diagnosis: "faint", Confidence: 0.01}, nil)

	assert.Empty(t, res.Stage1)
	assert.Empty(t, res.Stage2)
	assert.Equal(t, Indeterminate, res.Final.Diagnosis)
	assert.Zero(t, res.Final.Confidence)
	assert.Equal(t, []string{"No valid hypotheses survived collapse."}, res.Final.SupportingEvidence)

	report := v.GenerateReport(res, nil, "", nil)
	assert.True(t, report.RadiologistRequired)
	assert.Equal(t, StatusPendingReview, report.Status)
}

func TestCollapse_GatherKeepsHighestHypothesisScore(t *testing.T) {
	v := newTestValidator()
	outputs := []clinical.AgentOutput{
		{
			Agent:      "impression",
			Hypotheses: []string{"pneumothorax", "normal_study"},
			Confidence: map[string]float64{"pneumothorax": 0.4, "normal_study": 0.6},
		},
		{
			Agent:      "differential",
			Hypotheses: []string{"pneumothorax", "atelectasis"},
			Confidence: map[string]float64{"pneumothorax": 0.7},
		},
		// A finding never overwrites a listed hypothesis.
		{Agent: "factual", Findings: []clinical.Finding{finding("pneumothorax", 0.99, 0, 9)}},
	}

	res := v.Collapse(Hypothesis{Diagnosis: "pneumothorax", Confidence: 0.4}, outputs)

	names := make([]string, len(res.Initial))
	for i, h := range res.Initial {
		names[i] = h.Diagnosis
	}
	assert.Equal(t, []string{"pneumothorax", "normal_study", "atelectasis"}, names)
	assert.InDelta(t, 0.7, res.Initial[0].Confidence, 1e-9)
	assert.Empty(t, res.Initial[0].ContradictingEvidence)
	assert.InDelta(t, defaultConfidence, res.Initial[2].Confidence, 1e-9)
	assert.Equal(t, "pneumothorax", res.Final.Diagnosis)
}

func TestCollapse_SeedPrependedWhenAbsent(t *testing.T) {
	v := newTestValidator()
	outputs := findingsOutput(finding("effusion", 0.6, 1, 0))

	res := v.Collapse(Hypothesis{Diagnosis: "contusion", Confidence: 0.2}, outputs)

	require.Len(t, res.Initial, 2)
	assert.Equal(t, "contusion", res.Initial[0].Diagnosis)
	assert.Equal(t, "effusion", res.Final.Diagnosis)
}

func TestCollapse_StageOneInvariant(t *testing.T) {
	v := newTestValidator()
	outputs := findingsOutput(
		finding("a", 0.95, 1, 0),
		finding("b", 0.05, 1, 0),
		finding("c", 0.8, 1, 0),
		finding("d", 0.10, 1, 0),
		finding("e", 0.6, 1, 0),
		finding("f", 0.7, 1, 0),
		finding("g", 0.099, 1, 0),
	)

	res := v.Collapse(Hypothesis{Diagnosis: "a"}, outputs)

	require.Len(t, res.Stage1, stage1Keep)
	for _, h := range res.Stage1 {
		assert.GreaterOrEqual(t, h.Confidence, stage1Floor)
		assert.False(t, h.Eliminated)
	}
	var names []string
	for _, h := range res.Stage1 {
		names = append(names, h.Diagnosis)
	}
	assert.Equal(t, []string{"a", "c", "f", "e"}, names)

	for _, h := range res.Initial {
		if h.Eliminated {
			assert.Contains(t, h.EliminationReason, "Stage 1: low probability")
		}
	}
	assert.Contains(t, res.Log, "Collapsed 'b': Stage 1: low probability (5%)")
	assert.Contains(t, res.Log, "Collapsed 'd': Stage 1: low probability (10%)")
}

func TestCollapse_StageOneFloorIsInclusive(t *testing.T) {
	v := newTestValidator()
	res := v.Collapse(Hypothesis{Diagnosis: "edge"}, findingsOutput(finding("edge", 0.10, 0, 0)))

	require.Len(t, res.Stage1, 1)
	assert.Equal(t, "edge", res.Final.Diagnosis)
}

func TestCollapse_FallbackPreservesTopSurvivor(t *testing.T) {
	v := newTestValidator()
	outputs := findingsOutput(
		finding("x", 0.5, 0, 1),
		finding("y", 0.8, 1, 3),
	)

	res := v.Collapse(Hypothesis{Diagnosis: "y"}, outputs)

	require.Len(t, res.Stage2, 1)
	assert.Equal(t, "y", res.Final.Diagnosis)
	assert.False(t, res.Final.Eliminated)
	assert.Empty(t, res.Final.EliminationReason)
	assert.Contains(t, res.Log, "Preserved 'y' as fallback")

	// Every other stage-2 casualty satisfies the evidence rule.
	for _, h := range res.Stage1 {
		if h.Eliminated {
			assert.Greater(t, len(h.ContradictingEvidence), 2*len(h.SupportingEvidence))
		}
	}
}

func TestCollapse_TieGoesToFirstGathered(t *testing.T) {
	v := newTestValidator()
	outputs := findingsOutput(
		finding("first", 0.6, 1, 0),
		finding("second", 0.6, 1, 0),
	)

	res := v.Collapse(Hypothesis{Diagnosis: "first"}, outputs)

	assert.Equal(t, "first", res.Final.Diagnosis)
	assert.Contains(t, res.Log, "Alternative: second (60%)")
}

func TestCollapse_LogIsDeterministic(t *testing.T) {
	build := func() []clinical.AgentOutput {
		return []clinical.AgentOutput{
			{
				Agent:      "impression",
				Hypotheses: []string{"pneumothorax", "rib_fracture", "normal_study"},
				Confidence: map[string]float64{"pneumothorax": 0.25, "rib_fracture": 0.3, "normal_study": 0.2},
			},
			{Agent: "factual", Findings: []clinical.Finding{finding("Suboptimal Exposure", 0.8, 1, 0)}},
		}
	}
	initial := Hypothesis{Diagnosis: "rib_fracture", Confidence: 0.3}

	first := newTestValidator().Collapse(initial, build())
	second := newTestValidator().Collapse(initial, build())

	if diff := cmp.Diff(first.Log, second.Log); diff != "" {
		t.Errorf("collapse log differs (-first +second):\n%s", diff)
	}
	assert.Equal(t, first.Final.Diagnosis, second.Final.Diagnosis)
}

func TestCollapse_LogShape(t *testing.T) {
	v := newTestValidator()
	outputs := findingsOutput(
		finding("A", 0.9, 1, 5),
		finding("B", 0.4, 2, 0),
		finding("C", 0.05, 0, 0),
	)

	res := v.Collapse(Hypothesis{Diagnosis: "B"}, outputs)

	want := []string{
		"Initial hypotheses: 3",
		"Collapsed 'C': Stage 1: low probability (5%)",
		"Stage 1 survivors: 2",
		"Collapsed 'A': Stage 2: contradicting evidence (5 vs 1)",
		"Stage 2 survivors: 1",
		"Final diagnosis: B (40%)",
		"VALIDATION: Initial hypothesis confirmed",
	}
	if diff := cmp.Diff(want, res.Log); diff != "" {
		t.Errorf("collapse log mismatch (-want +got):\n%s", diff)
	}
}
