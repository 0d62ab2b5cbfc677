package sentinel

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Correction is one radiologist correction of a drafted report. Records are
// append-only; nothing in the validator reads them back to re-score reports.
type Correction struct {
	ID                 string    `json:"record_id"`
	ReportID           string    `json:"report_id"`
	OriginalDiagnosis  string    `json:"original_diagnosis"`
	OriginalConfidence float64   `json:"original_confidence"`
	CorrectedDiagnosis string    `json:"corrected_diagnosis"`
	CorrectedBy        string    `json:"corrected_by"`
	Reason             string    `json:"correction_reason"`
	Timestamp          time.Time `json:"timestamp"`
	StudyType          string    `json:"study_type"`
	Urgency            Urgency   `json:"urgency"`
}

// LearningBuffer collects corrections for an external training pipeline.
// Implementations must be safe for concurrent use.
type LearningBuffer interface {
	Append(ctx context.Context, c Correction) error
	Records(ctx context.Context) ([]Correction, error)
	// Flush returns every record and empties the buffer.
	Flush(ctx context.Context) ([]Correction, error)
}

// CorrectionAck is returned to whoever submitted a correction.
type CorrectionAck struct {
	Status   string `json:"status"`
	RecordID string `json:"record_id,omitempty"`
	Message  string `json:"message"`
}

const (
	AckRecorded = "recorded"
	AckDisabled = "disabled"
)

// LearnFromCorrection records a correction of report.
func (v *Validator) LearnFromCorrection(ctx context.Context, report *Report, diagnosis, by, reason string) (CorrectionAck, error) {
	if report == nil {
		return CorrectionAck{}, fmt.Errorf("learn from correction: report is required")
	}
	c := Correction{
		ID:                 uuid.NewString(),
		ReportID:           report.ID,
		OriginalDiagnosis:  report.Diagnosis,
		OriginalConfidence: report.AIConfidence,
		CorrectedDiagnosis: diagnosis,
		CorrectedBy:        by,
		Reason:             reason,
		Timestamp:          v.now().UTC(),
		StudyType:          report.StudyType,
		Urgency:            report.Urgency,
	}
	if err := v.buffer.Append(ctx, c); err != nil {
		return CorrectionAck{}, fmt.Errorf("learn from correction: %w", err)
	}
	return CorrectionAck{
		Status:   AckRecorded,
		RecordID: c.ID,
		Message:  "Correction recorded for model improvement",
	}, nil
}

// LearningRecords returns the buffered corrections without draining them.
func (v *Validator) LearningRecords(ctx context.Context) ([]Correction, error) {
	return v.buffer.Records(ctx)
}

// FlushLearning drains the buffer.
func (v *Validator) FlushLearning(ctx context.Context) ([]Correction, error) {
	return v.buffer.Flush(ctx)
}

// MemoryBuffer is a process-local LearningBuffer.
type MemoryBuffer struct {
	mu      sync.Mutex
	records []Correction
}

func NewMemoryBuffer() *MemoryBuffer {
	return &MemoryBuffer{}
}

func (b *MemoryBuffer) Append(_ context.Context, c Correction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, c)
	return nil
}

func (b *MemoryBuffer) Records(_ context.Context) ([]Correction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.records), nil
}

func (b *MemoryBuffer) Flush(_ context.Context) ([]Correction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.records
	b.records = nil
	return out, nil
}
