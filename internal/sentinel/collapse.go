package sentinel

import (
	"fmt"
	"slices"
	"time"

	"radiology-ai/internal/clinical"
)

const (
	// defaultConfidence scores hypotheses a pass lists without a confidence.
	defaultConfidence = 0.3

	stage1Keep  = 4
	stage1Floor = 0.10

	// DefaultRadiologistThreshold is the confidence below which a report
	// always requires radiologist sign-off.
	DefaultRadiologistThreshold = 0.95

	// Indeterminate names the synthetic diagnosis used when nothing survives.
	Indeterminate = "Indeterminate"
)

// Config tunes a Validator.
type Config struct {
	// RadiologistThreshold defaults to DefaultRadiologistThreshold.
	RadiologistThreshold float64

	// Now defaults to time.Now. Report ids and timestamps use it.
	Now func() time.Time
}

// Validator arbitrates between pass outputs, renders the structured report
// and owns the correction buffer.
//
// The rules are deliberately simple and fixed; nothing is learned at
// inference time.
type Validator struct {
	radiologistBelow float64
	buffer           LearningBuffer
	now              func() time.Time
}

// NewValidator builds a Validator. A nil buffer gets an in-memory one.
func NewValidator(cfg Config, buffer LearningBuffer) *Validator {
	if cfg.RadiologistThreshold <= 0 {
		cfg.RadiologistThreshold = DefaultRadiologistThreshold
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if buffer == nil {
		buffer = NewMemoryBuffer()
	}
	return &Validator{
		radiologistBelow: cfg.RadiologistThreshold,
		buffer:           buffer,
		now:              cfg.Now,
	}
}

// Collapse reduces the candidate diagnoses produced by outputs to exactly one
// final hypothesis. initial is the seed pass's first impression; it joins the
// universe at the front when no pass produced its name.
func (v *Validator) Collapse(initial Hypothesis, outputs []clinical.AgentOutput) *CollapseResult {
	u := gather(outputs)
	if _, ok := u.get(initial.Diagnosis); !ok {
		seed := initial
		seed.SupportingEvidence = cloneOrEmpty(initial.SupportingEvidence)
		seed.ContradictingEvidence = cloneOrEmpty(initial.ContradictingEvidence)
		seed.restore()
		u.prepend(&seed)
	}

	res := &CollapseResult{Initial: u.items}
	res.Log = append(res.Log, fmt.Sprintf("Initial hypotheses: %d", len(u.items)))

	res.Stage1 = stage1(u.items, &res.Log)
	res.Log = append(res.Log, fmt.Sprintf("Stage 1 survivors: %d", len(res.Stage1)))

	res.Stage2 = stage2(res.Stage1, &res.Log)
	res.Log = append(res.Log, fmt.Sprintf("Stage 2 survivors: %d", len(res.Stage2)))

	res.Final = selectFinal(res.Stage2, &res.Log)
	res.Log = append(res.Log, fmt.Sprintf("Final diagnosis: %s (%s)", res.Final.Diagnosis, pct(res.Final.Confidence)))

	checkConsistency(initial.Diagnosis, res.Final.Diagnosis, &res.Log)
	return res
}

// stage1 keeps at most the top four hypotheses by confidence that sit at or
// above the floor. The sort is stable so equal scores keep gather order.
func stage1(all []*Hypothesis, log *[]string) []*Hypothesis {
	ranked := slices.Clone(all)
	slices.SortStableFunc(ranked, func(a, b *Hypothesis) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		}
		return 0
	})

	var survivors []*Hypothesis
	for i, h := range ranked {
		if i < stage1Keep && h.Confidence >= stage1Floor {
			survivors = append(survivors, h)
			continue
		}
		h.eliminate(fmt.Sprintf("Stage 1: low probability (%s)", pct(h.Confidence)))
		*log = append(*log, fmt.Sprintf("Collapsed '%s': %s", h.Diagnosis, h.EliminationReason))
	}
	return survivors
}

// stage2 drops hypotheses whose contradicting evidence outnumbers supporting
// evidence more than two to one. It never returns an empty slice for a
// non-empty input: the top stage-1 survivor is preserved instead.
func stage2(candidates []*Hypothesis, log *[]string) []*Hypothesis {
	var survivors []*Hypothesis
	for _, h := range candidates {
		support := len(h.SupportingEvidence)
		contra := len(h.ContradictingEvidence)
		if contra > 2*support {
			h.eliminate(fmt.Sprintf("Stage 2: contradicting evidence (%d vs %d)", contra, support))
			*log = append(*log, fmt.Sprintf("Collapsed '%s': %s", h.Diagnosis, h.EliminationReason))
			continue
		}
		survivors = append(survivors, h)
	}

	if len(survivors) == 0 && len(candidates) > 0 {
		keep := candidates[0]
		keep.restore()
		survivors = []*Hypothesis{keep}
		*log = append(*log, fmt.Sprintf("Preserved '%s' as fallback", keep.Diagnosis))
	}
	return survivors
}

// selectFinal picks the highest-confidence survivor; the first one wins a tie.
func selectFinal(survivors []*Hypothesis, log *[]string) *Hypothesis {
	switch len(survivors) {
	case 0:
		return &Hypothesis{
			Diagnosis:             Indeterminate,
			Confidence:            0,
			SupportingEvidence:    []string{"No valid hypotheses survived collapse."},
			ContradictingEvidence: []string{},
		}
	case 1:
		return survivors[0]
	}

	final := survivors[0]
	for _, h := range survivors[1:] {
		if h.Confidence > final.Confidence {
			final = h
		}
	}
	for _, h := range survivors {
		if h != final {
			*log = append(*log, fmt.Sprintf("Alternative: %s (%s)", h.Diagnosis, pct(h.Confidence)))
		}
	}
	return final
}

// checkConsistency is advisory; it only writes to the log.
func checkConsistency(initial, final string, log *[]string) {
	if initial == final {
		*log = append(*log, "VALIDATION: Initial hypothesis confirmed")
		return
	}
	*log = append(*log,
		fmt.Sprintf("VALIDATION: Hypothesis changed from '%s' to '%s'", initial, final),
		"Consider reviewing analysis for consistency",
	)
}

func pct(f float64) string {
	return fmt.Sprintf("%.0f%%", f*100)
}
