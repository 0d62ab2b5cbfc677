package sentinel

import (
	"slices"

	"radiology-ai/internal/clinical"
)

// Hypothesis is a candidate final diagnosis under arbitration.
// Only the collapse stages set Eliminated and EliminationReason.
type Hypothesis struct {
	Diagnosis             string   `json:"diagnosis"`
	Code                  string   `json:"icd10_code,omitempty"`
	Confidence            float64  `json:"confidence"`
	SupportingEvidence    []string `json:"supporting_evidence"`
	ContradictingEvidence []string `json:"contradicting_evidence"`
	Eliminated            bool     `json:"collapsed"`
	EliminationReason     string   `json:"collapse_reason,omitempty"`
}

func (h *Hypothesis) eliminate(reason string) {
	h.Eliminated = true
	h.EliminationReason = reason
}

func (h *Hypothesis) restore() {
	h.Eliminated = false
	h.EliminationReason = ""
}

// CollapseResult is the audit record of one collapse run. The stage slices
// share Hypothesis pointers with Initial.
type CollapseResult struct {
	Initial []*Hypothesis `json:"initial_hypotheses"`
	Stage1  []*Hypothesis `json:"stage1_survivors"`
	Stage2  []*Hypothesis `json:"stage2_survivors"`
	Final   *Hypothesis   `json:"final_diagnosis"`
	Log     []string      `json:"collapse_log"`
}

// Counts summarizes the survivor count at each stage.
type Counts struct {
	Initial int `json:"initial"`
	Stage1  int `json:"stage1"`
	Stage2  int `json:"stage2"`
	Final   int `json:"final"`
}

func (r *CollapseResult) Counts() Counts {
	return Counts{
		Initial: len(r.Initial),
		Stage1:  len(r.Stage1),
		Stage2:  len(r.Stage2),
		Final:   1,
	}
}

// universe is the insertion-ordered set of hypotheses keyed by diagnosis name.
// Order matters: it is the tie-break for final selection.
type universe struct {
	items []*Hypothesis
	index map[string]*Hypothesis
}

func newUniverse() *universe {
	return &universe{index: map[string]*Hypothesis{}}
}

func (u *universe) get(name string) (*Hypothesis, bool) {
	h, ok := u.index[name]
	return h, ok
}

func (u *universe) add(h *Hypothesis) {
	u.items = append(u.items, h)
	u.index[h.Diagnosis] = h
}

func (u *universe) prepend(h *Hypothesis) {
	u.items = append([]*Hypothesis{h}, u.items...)
	u.index[h.Diagnosis] = h
}

// gather merges every pass's hypotheses and findings, in pass order.
// Listed hypotheses keep the highest score seen for their name; findings only
// introduce names not already present.
func gather(outputs []clinical.AgentOutput) *universe {
	u := newUniverse()
	for _, o := range outputs {
		for _, name := range o.Hypotheses {
			conf := o.ScoreOf(name, defaultConfidence)
			if h, ok := u.get(name); ok {
				if conf > h.Confidence {
					h.Confidence = conf
				}
				continue
			}
			u.add(&Hypothesis{
				Diagnosis:             name,
				Confidence:            conf,
				SupportingEvidence:    []string{},
				ContradictingEvidence: []string{},
			})
		}

		for _, f := range o.Findings {
			if _, ok := u.get(f.Name); ok {
				continue
			}
			u.add(&Hypothesis{
				Diagnosis:             f.Name,
				Code:                  f.Code,
				Confidence:            f.Confidence,
				SupportingEvidence:    cloneOrEmpty(f.SupportingEvidence),
				ContradictingEvidence: cloneOrEmpty(f.ContradictingEvidence),
			})
		}
	}
	return u
}

func cloneOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}
