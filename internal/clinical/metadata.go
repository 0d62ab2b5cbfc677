package clinical

import (
	"fmt"
	"strconv"
	"strings"
)

// DICOM keywords conventionally present in study metadata.
const (
	KeyModality         = "Modality"
	KeyBodyPart         = "BodyPartExamined"
	KeyStudyDate        = "StudyDate"
	KeyPatientAge       = "PatientAge"
	KeyPatientSex       = "PatientSex"
	KeyViewPosition     = "ViewPosition"
	KeyExposure         = "Exposure"
	KeyPriorStudy       = "PriorStudy"
	KeyStudyInstanceUID = "StudyInstanceUID"
)

// Metadata is the flat study metadata map supplied with an image.
// Any key may be absent.
type Metadata map[string]any

// String returns the value under key rendered as a trimmed string, or "".
func (m Metadata) String(key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case fmt.Stringer:
		return strings.TrimSpace(s.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// StringOr returns String(key), or def when that is empty.
func (m Metadata) StringOr(key, def string) string {
	if s := m.String(key); s != "" {
		return s
	}
	return def
}

// Float returns the numeric value under key. ok is false when the key is
// missing or not numeric.
func (m Metadata) Float(key string) (float64, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Age parses PatientAge. DICOM age strings ("045Y") and plain numbers are
// accepted; anything else reports ok=false.
func (m Metadata) Age() (int, bool) {
	raw := m.String(KeyPatientAge)
	if raw == "" {
		return 0, false
	}
	raw = strings.TrimSuffix(strings.ToUpper(raw), "Y")
	age, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || age <= 0 {
		return 0, false
	}
	return age, true
}
