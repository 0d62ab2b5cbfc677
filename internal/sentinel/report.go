package sentinel

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the report workflow state.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusPendingReview Status = "pending_review"
	StatusReviewed      Status = "reviewed"
	StatusSigned        Status = "signed"
	StatusAmended       Status = "amended"
)

var ErrInvalidTransition = errors.New("invalid report status transition")

// Report is the structured radiology report.
type Report struct {
	ID                  string    `json:"report_id"`
	StudyDate           string    `json:"study_date"`
	StudyType           string    `json:"study_type"`
	ClinicalIndication  string    `json:"clinical_indication"`
	Technique           string    `json:"technique"`
	Comparison          string    `json:"comparison,omitempty"`
	Findings            string    `json:"findings"`
	Impression          string    `json:"impression"`
	Recommendations     []string  `json:"recommendations"`
	Urgency             Urgency   `json:"urgency"`
	Status              Status    `json:"status"`
	AIConfidence        float64   `json:"ai_confidence"`
	RadiologistRequired bool      `json:"radiologist_required"`
	CreatedAt           time.Time `json:"created_at"`
	ReviewedBy          string    `json:"reviewed_by,omitempty"`
	SignedBy            string    `json:"signed_by,omitempty"`

	// Diagnosis is the final diagnosis the report was drafted from.
	Diagnosis string `json:"diagnosis"`

	Collapse *CollapseResult `json:"-"`
}

// MarkReviewed records a radiologist review of a draft or pending report.
func (r *Report) MarkReviewed(by string) error {
	if by == "" {
		return fmt.Errorf("%w: reviewer is required", ErrInvalidTransition)
	}
	switch r.Status {
	case StatusDraft, StatusPendingReview, StatusAmended:
	default:
		return fmt.Errorf("%w: cannot review a %s report", ErrInvalidTransition, r.Status)
	}
	r.Status = StatusReviewed
	r.ReviewedBy = by
	return nil
}

// Sign finalizes a reviewed report. Reports that require a radiologist can
// only be signed after review.
func (r *Report) Sign(by string) error {
	if by == "" {
		return fmt.Errorf("%w: signer is required", ErrInvalidTransition)
	}
	switch r.Status {
	case StatusReviewed:
	case StatusDraft:
		if r.RadiologistRequired {
			return fmt.Errorf("%w: report requires radiologist review before signing", ErrInvalidTransition)
		}
	default:
		return fmt.Errorf("%w: cannot sign a %s report", ErrInvalidTransition, r.Status)
	}
	r.Status = StatusSigned
	r.SignedBy = by
	return nil
}

// Amend reopens a signed report; it must be reviewed and signed again.
func (r *Report) Amend(by string) error {
	if r.Status != StatusSigned {
		return fmt.Errorf("%w: only signed reports can be amended", ErrInvalidTransition)
	}
	r.Status = StatusAmended
	r.ReviewedBy = by
	r.SignedBy = ""
	return nil
}

const (
	heavyRule = "============================================================"
	lightRule = "------------------------------------------------------------"
)

// ClinicalText renders the report in the fixed clinical layout downstream
// consumers parse positionally. Do not reorder sections.
func (r *Report) ClinicalText() string {
	lines := []string{
		heavyRule,
		"RADIOLOGY REPORT",
		heavyRule,
		"",
		"Study Date: " + r.StudyDate,
		"Study Type: " + r.StudyType,
		"Report ID: " + r.ID,
		"",
		"CLINICAL INDICATION:",
		r.ClinicalIndication,
		"",
		"TECHNIQUE:",
		r.Technique,
		"",
	}

	if r.Comparison != "" {
		lines = append(lines, "COMPARISON:", r.Comparison, "")
	}

	lines = append(lines,
		"FINDINGS:",
		r.Findings,
		"",
		"IMPRESSION:",
		r.Impression,
		"",
	)

	if len(r.Recommendations) > 0 {
		lines = append(lines, "RECOMMENDATIONS:")
		for i, rec := range r.Recommendations {
			lines = append(lines, fmt.Sprintf("  %d. %s", i+1, rec))
		}
		lines = append(lines, "")
	}

	lines = append(lines,
		lightRule,
		"Urgency: "+strings.ToUpper(string(r.Urgency)),
		"AI Confidence: "+pct(r.AIConfidence),
		"Status: "+string(r.Status),
		"",
	)

	switch {
	case r.SignedBy != "":
		lines = append(lines, "Electronically signed by: "+r.SignedBy)
	case r.ReviewedBy != "":
		lines = append(lines, "Reviewed by: "+r.ReviewedBy)
	default:
		lines = append(lines, "*** PENDING RADIOLOGIST REVIEW ***")
	}
	lines = append(lines, heavyRule)

	return strings.Join(lines, "\n")
}
