package clinical

// Severity is the tier attached to a finding.
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// Context holds the patient and study facts every analysis pass reads.
// A zero Age means the age is unknown.
type Context struct {
	Age               int            `json:"age,omitempty" yaml:"age"`
	Sex               string         `json:"sex,omitempty" yaml:"sex"`
	ChiefComplaint    string         `json:"chief_complaint,omitempty" yaml:"chief_complaint"`
	MechanismOfInjury string         `json:"mechanism_of_injury,omitempty" yaml:"mechanism_of_injury"`
	VitalSigns        map[string]any `json:"vital_signs,omitempty" yaml:"vital_signs"`
	RelevantHistory   []string       `json:"relevant_history,omitempty" yaml:"relevant_history"`
	RecentProcedures  []string       `json:"recent_procedures,omitempty" yaml:"recent_procedures"`
	Medications       []string       `json:"medications,omitempty" yaml:"medications"`
}

// Finding is a single observed or inferred radiological feature.
type Finding struct {
	Name                  string   `json:"name"`
	Location              string   `json:"location,omitempty"`
	Severity              Severity `json:"severity,omitempty"`
	Confidence            float64  `json:"confidence"`
	SupportingEvidence    []string `json:"supporting_evidence"`
	ContradictingEvidence []string `json:"contradicting_evidence"`
	Code                  string   `json:"icd10_code,omitempty"`
}

// AgentOutput is the envelope every analysis pass returns.
// Outputs are read-only once returned.
type AgentOutput struct {
	Agent            string             `json:"agent_type"`
	Findings         []Finding          `json:"findings"`
	Hypotheses       []string           `json:"hypotheses"`
	Confidence       map[string]float64 `json:"confidence_scores"`
	Reasoning        string             `json:"reasoning"`
	Recommendations  []string           `json:"recommendations"`
	Flags            []string           `json:"flags"`
	ProcessingTimeMS float64            `json:"processing_time_ms"`

	// Placeholder is set by the orchestrator when it stands in for a pass
	// that timed out or failed.
	Placeholder bool `json:"placeholder,omitempty"`
}

// ScoreOf returns the confidence the output assigns to a hypothesis, or def
// when the hypothesis carries no score.
func (o AgentOutput) ScoreOf(hypothesis string, def float64) float64 {
	if c, ok := o.Confidence[hypothesis]; ok {
		return c
	}
	return def
}
