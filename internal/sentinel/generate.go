package sentinel

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"radiology-ai/internal/clinical"
)

const maxAdditionalFindings = 5

// diagnosisAdvice holds diagnosis-specific recommendations; the first keyword
// contained in the normalized diagnosis wins.
var diagnosisAdvice = []struct {
	keyword string
	advice  string
}{
	{"pneumothorax", "Consider chest tube placement if symptomatic"},
	{"hemothorax", "Surgical consultation recommended"},
	{"fracture", "Pain management and follow-up imaging as indicated"},
}

// GenerateReport drafts the structured report for a collapse result.
// outputs are the raw pass outputs the collapse consumed.
func (v *Validator) GenerateReport(res *CollapseResult, md clinical.Metadata, indication string, outputs []clinical.AgentOutput) *Report {
	now := v.now()
	final := res.Final
	urgency := DetermineUrgency(final.Diagnosis, final.Confidence)
	required := final.Confidence < v.radiologistBelow || urgency.Escalated()

	status := StatusDraft
	if required {
		status = StatusPendingReview
	}

	return &Report{
		ID:                  reportID(md, now),
		StudyDate:           md.StringOr(clinical.KeyStudyDate, now.Format("2006-01-02")),
		StudyType:           md.StringOr(clinical.KeyModality, "Unknown"),
		ClinicalIndication:  indication,
		Technique:           techniqueText(md),
		Comparison:          md.String(clinical.KeyPriorStudy),
		Findings:            findingsText(res, outputs),
		Impression:          impressionText(final),
		Recommendations:     recommendations(res, urgency),
		Urgency:             urgency,
		Status:              status,
		AIConfidence:        final.Confidence,
		RadiologistRequired: required,
		CreatedAt:           now.UTC(),
		Diagnosis:           final.Diagnosis,
		Collapse:            res,
	}
}

// reportID hashes the metadata together with the creation instant and keeps
// the first 12 hex characters.
func reportID(md clinical.Metadata, at time.Time) string {
	data, err := json.Marshal(md)
	if err != nil {
		data = []byte(fmt.Sprint(md))
	}
	sum := sha256.Sum256(append(data, at.UTC().Format(time.RFC3339Nano)...))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:12])
}

func techniqueText(md clinical.Metadata) string {
	modality := md.StringOr(clinical.KeyModality, "Unknown")
	switch modality {
	case "CR", "DX":
		return fmt.Sprintf("Portable chest radiograph, %s projection.", md.StringOr(clinical.KeyViewPosition, "AP"))
	case "CT":
		return "CT examination performed with IV contrast."
	default:
		return modality + " examination performed per protocol."
	}
}

func findingsText(res *CollapseResult, outputs []clinical.AgentOutput) string {
	var lines []string
	final := res.Final

	if final.Confidence > 0.5 {
		lines = append(lines,
			"PRIMARY FINDING: "+final.Diagnosis,
			"Confidence: "+pct(final.Confidence),
			"",
		)
		if len(final.SupportingEvidence) > 0 {
			lines = append(lines, "Supporting evidence:")
			for _, e := range final.SupportingEvidence {
				lines = append(lines, "  - "+e)
			}
			lines = append(lines, "")
		}
	}

	var alternatives []string
	for _, h := range res.Stage2 {
		if h != final && !h.Eliminated {
			alternatives = append(alternatives, fmt.Sprintf("  - %s (%s)", h.Diagnosis, pct(h.Confidence)))
		}
	}
	if len(alternatives) > 0 {
		lines = append(lines, "DIFFERENTIAL CONSIDERATIONS:")
		lines = append(lines, alternatives...)
		lines = append(lines, "")
	}

	var additional []string
	for _, o := range outputs {
		for _, f := range o.Findings {
			if f.Name == final.Diagnosis || len(additional) == maxAdditionalFindings {
				continue
			}
			severity := string(f.Severity)
			if severity == "" {
				severity = "noted"
			}
			additional = append(additional, fmt.Sprintf("  - %s: %s", f.Name, severity))
		}
	}
	if len(additional) > 0 {
		lines = append(lines, "ADDITIONAL FINDINGS:")
		lines = append(lines, additional...)
	}

	if len(lines) == 0 {
		return "No significant findings identified."
	}
	return strings.Join(lines, "\n")
}

func impressionText(final *Hypothesis) string {
	switch c := final.Confidence; {
	case c > 0.9:
		return final.Diagnosis + "."
	case c > 0.7:
		return final.Diagnosis + ", probable."
	case c > 0.5:
		return fmt.Sprintf("Findings suggestive of %s. Clinical correlation recommended.", final.Diagnosis)
	default:
		return fmt.Sprintf("Indeterminate study. Cannot exclude %s. Recommend further evaluation.", final.Diagnosis)
	}
}

func recommendations(res *CollapseResult, urgency Urgency) []string {
	recs := []string{}
	final := res.Final

	switch urgency {
	case UrgencyCritical:
		recs = append(recs, "IMMEDIATE physician notification required", "Consider emergent intervention")
	case UrgencyUrgent:
		recs = append(recs, "Urgent physician notification recommended")
	}

	if final.Confidence < 0.8 {
		recs = append(recs, "Clinical correlation recommended")
	}

	if len(res.Stage2) > 1 {
		recs = append(recs, "Consider alternative diagnoses if clinical presentation changes")
	}

	name := normalizeDiagnosis(final.Diagnosis)
	for _, a := range diagnosisAdvice {
		if strings.Contains(name, a.keyword) {
			recs = append(recs, a.advice)
			break
		}
	}
	return recs
}
