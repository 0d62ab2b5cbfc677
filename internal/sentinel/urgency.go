package sentinel

import "strings"

// Urgency is the report urgency tier.
type Urgency string

const (
	UrgencyRoutine  Urgency = "routine"
	UrgencyPriority Urgency = "priority"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyCritical Urgency = "critical"
)

// priorityBelow is the confidence under which an otherwise routine report is
// bumped to priority.
const priorityBelow = 0.7

// diagnosisTier is keyed by normalized diagnosis name.
var diagnosisTier = map[string]Urgency{
	"tension pneumothorax":    UrgencyCritical,
	"massive hemothorax":      UrgencyCritical,
	"aortic dissection":       UrgencyCritical,
	"cardiac tamponade":       UrgencyCritical,
	"pneumothorax":            UrgencyUrgent,
	"hemothorax":              UrgencyUrgent,
	"pulmonary embolism":      UrgencyUrgent,
	"intracranial hemorrhage": UrgencyUrgent,
}

// normalizeDiagnosis lower-cases a diagnosis name and treats underscores as
// spaces so "Tension_Pneumothorax" and "tension pneumothorax" compare equal.
func normalizeDiagnosis(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.ReplaceAll(name, "_", " "))), " ")
}

// DetermineUrgency maps a final diagnosis to its urgency tier. Named critical
// and urgent diagnoses win regardless of confidence.
func DetermineUrgency(diagnosis string, confidence float64) Urgency {
	if tier, ok := diagnosisTier[normalizeDiagnosis(diagnosis)]; ok {
		return tier
	}
	if confidence < priorityBelow {
		return UrgencyPriority
	}
	return UrgencyRoutine
}

// Escalated reports whether u requires physician notification.
func (u Urgency) Escalated() bool {
	return u == UrgencyUrgent || u == UrgencyCritical
}
