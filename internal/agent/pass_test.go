package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radiology-ai/internal/clinical"
)

var testImage = []byte{0x44, 0x49, 0x43, 0x4d}

type stubModel struct {
	resp *ModelResponse
	err  error
	reqs []ModelRequest
}

func (s *stubModel) Analyze(_ context.Context, req ModelRequest) (*ModelResponse, error) {
	s.reqs = append(s.reqs, req)
	return s.resp, s.err
}

func TestDefaults_CoversEveryPass(t *testing.T) {
	set := Defaults(nil)
	require.Len(t, set, len(All))
	for _, n := range All {
		p, ok := set[n]
		require.True(t, ok, "missing %s", n)
		assert.Equal(t, n, p.Name())
	}
	assert.False(t, Known("black_hat"))
}

func TestImagePasses_DegradeOnEmptyImage(t *testing.T) {
	for _, p := range []Pass{NewFactualPass(nil), NewImpressionPass(nil), NewDifferentialPass()} {
		t.Run(string(p.Name()), func(t *testing.T) {
			out, err := p.Analyze(context.Background(), Input{})
			require.NoError(t, err)
			assert.Empty(t, out.Findings)
			assert.Empty(t, out.Hypotheses)
			assert.Contains(t, out.Reasoning, "no image data")
			assert.Equal(t, string(p.Name()), out.Agent)
		})
	}
}

func TestFactualPass_FlagsExposureAndProposesNothing(t *testing.T) {
	out, err := NewFactualPass(nil).Analyze(context.Background(), Input{
		Image:    testImage,
		Metadata: clinical.Metadata{clinical.KeyModality: "CR", clinical.KeyExposure: 250.0},
	})
	require.NoError(t, err)
	require.Len(t, out.Findings, 1)
	assert.Equal(t, "Suboptimal Exposure", out.Findings[0].Name)
	assert.Equal(t, clinical.SeverityMild, out.Findings[0].Severity)
	assert.Empty(t, out.Hypotheses)
	assert.Contains(t, out.Reasoning, "Image Quality: Suboptimal")
	assert.GreaterOrEqual(t, out.ProcessingTimeMS, 0.0)
}

func TestFactualPass_ModelFailureIsReturned(t *testing.T) {
	model := &stubModel{err: errors.New("gpu on fire")}
	_, err := NewFactualPass(model).Analyze(context.Background(), Input{Image: testImage})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gpu on fire")
}

func TestPriors(t *testing.T) {
	tests := []struct {
		name   string
		ctx    clinical.Context
		pneumo float64
		ribFx  float64
		normal float64
	}{
		{"no context", clinical.Context{}, 0.1, 0.1, 0.6},
		{"collision", clinical.Context{MechanismOfInjury: "High-speed collision"}, 0.25, 0.3, 0.2},
		{"blunt", clinical.Context{MechanismOfInjury: "Blunt chest trauma"}, 0.25, 0.3, 0.2},
		{"fall", clinical.Context{MechanismOfInjury: "Fall from ladder"}, 0.15, 0.25, 0.4},
		{"stab", clinical.Context{MechanismOfInjury: "Stab wound"}, 0.4, 0.1, 0.1},
		{"central line", clinical.Context{RecentProcedures: []string{"Central line placement"}}, 0.2, 0.1, 0.6},
		{"thoracentesis", clinical.Context{RecentProcedures: []string{"Thoracentesis"}}, 0.15, 0.1, 0.6},
		{"stab keeps higher prior over cvc", clinical.Context{MechanismOfInjury: "stab", RecentProcedures: []string{"CVC"}}, 0.4, 0.1, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Priors(tt.ctx)
			assert.InDelta(t, tt.pneumo, p["pneumothorax"], 1e-9)
			assert.InDelta(t, tt.ribFx, p["rib_fracture"], 1e-9)
			assert.InDelta(t, tt.normal, p["normal_study"], 1e-9)
		})
	}
}

func TestImpressionPass_FlagsTraumaAndMergesModel(t *testing.T) {
	model := &stubModel{resp: &ModelResponse{
		Hypotheses: []string{"pneumothorax", "subcutaneous_emphysema"},
		Confidence: map[string]float64{"pneumothorax": 0.85},
		Findings:   []clinical.Finding{{Name: "pneumothorax", Confidence: 0.85, SupportingEvidence: []string{"visible pleural line"}}},
		Reasoning:  "Apical lucency.",
	}}
	out, err := NewImpressionPass(model).Analyze(context.Background(), Input{
		Image:   testImage,
		Context: clinical.Context{MechanismOfInjury: "MVA"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{FlagTraumaMechanism}, out.Flags)
	assert.Equal(t, []string{"pneumothorax", "hemothorax", "pulmonary_contusion", "rib_fracture", "normal_study", "subcutaneous_emphysema"}, out.Hypotheses)
	assert.InDelta(t, 0.85, out.Confidence["pneumothorax"], 1e-9)
	assert.InDelta(t, DefaultHypothesisConfidence, out.Confidence["subcutaneous_emphysema"], 1e-9)
	assert.Len(t, out.Findings, 1)
	assert.Contains(t, out.Reasoning, "Apical lucency.")

	require.Len(t, model.reqs, 1)
	assert.Equal(t, Impression, model.reqs[0].Pass)
	assert.Contains(t, model.reqs[0].Prompt, "Mechanism of injury: MVA")
}

func TestCritiquePass_WarnsAndDoesNotMutatePrevious(t *testing.T) {
	prev := []clinical.AgentOutput{{
		Agent: "factual",
		Findings: []clinical.Finding{
			{Name: "Suboptimal Exposure", Confidence: 0.8, SupportingEvidence: []string{"Exposure value: 250"}},
			{Name: "Rotation", Confidence: 0.4},
		},
	}}
	before := prev[0].Findings[1]

	out, err := NewCritiquePass().Analyze(context.Background(), Input{
		Previous: prev,
		Context:  clinical.Context{RecentProcedures: []string{"CVC"}},
	})
	require.NoError(t, err)

	assert.Empty(t, out.Findings)
	assert.Empty(t, out.Hypotheses)
	assert.Equal(t, []string{
		"Low confidence finding 'Rotation' (40%) - needs verification",
		"Finding 'Rotation' lacks supporting evidence",
		"Verify findings with clinical correlation",
		"Consider artifact vs true pathology",
		"Review prior studies if available",
	}, out.Recommendations)
	assert.Contains(t, out.Reasoning, "Expected post-procedure changes")
	assert.Equal(t, before, prev[0].Findings[1])
}

func TestConfirmatoryPass_NarratesEvidence(t *testing.T) {
	out, err := NewConfirmatoryPass().Analyze(context.Background(), Input{
		Previous: []clinical.AgentOutput{{
			Agent:      "impression",
			Hypotheses: []string{"pneumothorax", "normal_study"},
			Confidence: map[string]float64{"pneumothorax": 0.8, "normal_study": 0.1},
			Findings:   []clinical.Finding{{Name: "pneumothorax", SupportingEvidence: []string{"pleural line", "absent markings"}}},
		}},
		Context: clinical.Context{MechanismOfInjury: "MVA", ChiefComplaint: "Chest pain and dyspnea"},
	})
	require.NoError(t, err)
	assert.Empty(t, out.Findings)
	assert.Contains(t, out.Reasoning, "pneumothorax: pleural line, absent markings")
	assert.Contains(t, out.Reasoning, "pneumothorax: rated 80% by impression")
	assert.NotContains(t, out.Reasoning, "normal_study: rated")
	assert.Contains(t, out.Reasoning, "Mechanism (MVA) consistent with thoracic trauma")
	assert.Contains(t, out.Reasoning, "Respiratory symptoms warrant careful lung evaluation")
}

func TestDifferentials(t *testing.T) {
	t.Run("base list capped at eight", func(t *testing.T) {
		d := Differentials(clinical.Context{})
		require.Len(t, d, maxDifferentials)
		assert.Equal(t, "Tension pneumothorax", d[0])
	})
	t.Run("airway tube promotes ETT malposition", func(t *testing.T) {
		d := Differentials(clinical.Context{RecentProcedures: []string{"Intubation"}})
		assert.Equal(t, "ETT malposition", d[0])
		assert.Equal(t, "Tension pneumothorax", d[1])
	})
	t.Run("central line leads with iatrogenic pneumothorax", func(t *testing.T) {
		d := Differentials(clinical.Context{RecentProcedures: []string{"CVC", "ETT", "NGT"}})
		assert.Equal(t, []string{
			"Iatrogenic pneumothorax", "CVC malposition", "ETT malposition", "NGT malposition",
			"Tension pneumothorax", "Simple pneumothorax", "Hemothorax", "Pulmonary contusion",
		}, d)
	})
}

func TestDifferentialPass_LowConfidence(t *testing.T) {
	out, err := NewDifferentialPass().Analyze(context.Background(), Input{Image: testImage})
	require.NoError(t, err)
	require.NotEmpty(t, out.Hypotheses)
	for _, h := range out.Hypotheses {
		assert.InDelta(t, differentialConfidence, out.Confidence[h], 1e-9)
	}
}

func TestSynthesisPass_Metrics(t *testing.T) {
	prev := []clinical.AgentOutput{
		{Agent: "impression", Hypotheses: []string{"pneumothorax", "rib_fracture"}, Flags: []string{"TRAUMA_MECHANISM"}},
		{Agent: "differential", Hypotheses: []string{"pneumothorax"}, Flags: []string{"LINE_CHECK", "TRAUMA_MECHANISM"}},
		{Agent: "critique", Placeholder: true},
	}

	assert.InDelta(t, 3.0/6.0, Completeness(prev), 1e-9)
	assert.InDelta(t, 2.0/2.0, Consensus(prev), 1e-9)
	assert.InDelta(t, 1.0, Consensus(nil), 1e-9)

	out, err := NewSynthesisPass().Analyze(context.Background(), Input{
		Previous: prev,
		Context:  clinical.Context{MechanismOfInjury: "fall"},
	})
	require.NoError(t, err)
	assert.Empty(t, out.Findings)
	assert.Empty(t, out.Hypotheses)
	assert.Equal(t, []string{"TRAUMA_MECHANISM", "LINE_CHECK"}, out.Flags)
	assert.Equal(t, "PRIORITY: Evaluate for traumatic injury", out.Recommendations[0])
	assert.Contains(t, out.Reasoning, "Analysis completeness: 50%")
	assert.Contains(t, out.Reasoning, "mean 30%")
}
