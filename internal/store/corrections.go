package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"

	"radiology-ai/internal/sentinel"
)

// CorrectionBuffer is a sentinel.LearningBuffer backed by the corrections
// table, so submitted corrections survive restarts until flushed.
type CorrectionBuffer struct {
	db *sql.DB
}

var _ sentinel.LearningBuffer = (*CorrectionBuffer)(nil)

func NewCorrectionBuffer(db *sql.DB) *CorrectionBuffer {
	return &CorrectionBuffer{db: db}
}

func (b *CorrectionBuffer) Append(ctx context.Context, c sentinel.Correction) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal correction: %w", err)
	}
	query := `INSERT INTO corrections (id, report_id, payload, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := b.db.ExecContext(ctx, query, c.ID, c.ReportID, payload, c.Timestamp); err != nil {
		return fmt.Errorf("append correction: %w", err)
	}
	return nil
}

func (b *CorrectionBuffer) Records(ctx context.Context) ([]sentinel.Correction, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT seq, payload FROM corrections ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list corrections: %w", err)
	}
	return scanCorrections(rows)
}

// Flush deletes and returns every buffered correction in one statement, so
// records appended concurrently are either returned or kept, never lost.
func (b *CorrectionBuffer) Flush(ctx context.Context) ([]sentinel.Correction, error) {
	rows, err := b.db.QueryContext(ctx, `DELETE FROM corrections RETURNING seq, payload`)
	if err != nil {
		return nil, fmt.Errorf("flush corrections: %w", err)
	}
	return scanCorrections(rows)
}

type seqCorrection struct {
	seq int64
	c   sentinel.Correction
}

// scanCorrections closes rows and returns the records in append order.
func scanCorrections(rows *sql.Rows) ([]sentinel.Correction, error) {
	defer rows.Close()

	var scanned []seqCorrection
	for rows.Next() {
		var sc seqCorrection
		var payload []byte
		if err := rows.Scan(&sc.seq, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &sc.c); err != nil {
			return nil, fmt.Errorf("failed to unmarshal correction: %w", err)
		}
		scanned = append(scanned, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.SortFunc(scanned, func(a, b seqCorrection) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})

	out := make([]sentinel.Correction, len(scanned))
	for i, sc := range scanned {
		out[i] = sc.c
	}
	return out, nil
}
