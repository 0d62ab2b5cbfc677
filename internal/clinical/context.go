package clinical

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// History annotations appended during enrichment.
const (
	NoteTraumaEvaluation  = "TRAUMA EVALUATION"
	NotePostCVCEvaluation = "POST-CVC EVALUATION"
)

// Clone returns a deep copy of c.
func (c Context) Clone() Context {
	out := c
	out.VitalSigns = maps.Clone(c.VitalSigns)
	out.RelevantHistory = slices.Clone(c.RelevantHistory)
	out.RecentProcedures = slices.Clone(c.RecentProcedures)
	out.Medications = slices.Clone(c.Medications)
	return out
}

// Enrich derives the per-request context from c and the study metadata.
// Age and sex are filled from metadata when c lacks them, and chest studies
// get trauma / post-line annotations appended to the history. c itself is
// left untouched.
func (c Context) Enrich(md Metadata) Context {
	enriched := c.Clone()

	if enriched.Age == 0 {
		if age, ok := md.Age(); ok {
			enriched.Age = age
		}
	}

	if enriched.Sex == "" {
		switch strings.ToUpper(md.String(KeyPatientSex)) {
		case "M":
			enriched.Sex = "Male"
		case "F":
			enriched.Sex = "Female"
		}
	}

	if strings.EqualFold(md.String(KeyBodyPart), "chest") {
		if strings.Contains(strings.ToLower(enriched.ChiefComplaint), "trauma") {
			enriched.RelevantHistory = append(enriched.RelevantHistory, NoteTraumaEvaluation)
		}
		if enriched.HasProcedure("cvc", "central") {
			enriched.RelevantHistory = append(enriched.RelevantHistory, NotePostCVCEvaluation)
		}
	}

	return enriched
}

// HasProcedure reports whether any recent procedure mentions one of the
// keywords, case-insensitively.
func (c Context) HasProcedure(keywords ...string) bool {
	for _, p := range c.RecentProcedures {
		lp := strings.ToLower(p)
		for _, k := range keywords {
			if strings.Contains(lp, k) {
				return true
			}
		}
	}
	return false
}

// Prompt renders the context as a single prose line for the model.
func (c Context) Prompt() string {
	var parts []string
	if c.Age > 0 {
		parts = append(parts, fmt.Sprintf("Patient is %d years old", c.Age))
	}
	if c.Sex != "" {
		parts = append(parts, "Sex: "+c.Sex)
	}
	if c.ChiefComplaint != "" {
		parts = append(parts, "Chief complaint: "+c.ChiefComplaint)
	}
	if c.MechanismOfInjury != "" {
		parts = append(parts, "Mechanism of injury: "+c.MechanismOfInjury)
	}
	if len(c.RecentProcedures) > 0 {
		parts = append(parts, "Recent procedures: "+strings.Join(c.RecentProcedures, ", "))
	}
	if len(c.RelevantHistory) > 0 {
		parts = append(parts, "Relevant history: "+strings.Join(c.RelevantHistory, ", "))
	}
	if len(parts) == 0 {
		return "No clinical context provided."
	}
	return strings.Join(parts, ". ") + "."
}
