package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"radiology-ai/internal/orchestrator"
	"radiology-ai/internal/sentinel"
)

// Repository archives analysis results and the reports drafted from them.
type Repository interface {
	SaveAnalysis(ctx context.Context, res *orchestrator.Result) error
	GetReport(ctx context.Context, reportID string) (*sentinel.Report, error)
	// UpdateReport stores a report whose status or sign-off changed.
	UpdateReport(ctx context.Context, r *sentinel.Report) error
}

type postgresRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) Repository {
	return &postgresRepo{db: db, now: time.Now}
}

func (r *postgresRepo) SaveAnalysis(ctx context.Context, res *orchestrator.Result) error {
	if res == nil || res.Report == nil {
		return errors.New("save analysis: result has no report")
	}
	reportJSON, err := json.Marshal(res.Report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	resultJSON, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	rep := res.Report
	query := `
		INSERT INTO analyses (report_id, study_id, diagnosis, urgency, status, report, result, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (report_id) DO UPDATE SET
			status = $5,
			report = $6,
			result = $7,
			updated_at = $9
	`
	_, err = r.db.ExecContext(ctx, query,
		rep.ID, res.StudyID, rep.Diagnosis, string(rep.Urgency), string(rep.Status),
		reportJSON, resultJSON, rep.CreatedAt, r.now().UTC())
	if err != nil {
		return fmt.Errorf("save analysis %s: %w", rep.ID, err)
	}
	return nil
}

func (r *postgresRepo) GetReport(ctx context.Context, reportID string) (*sentinel.Report, error) {
	query := `SELECT report FROM analyses WHERE report_id = $1`

	var reportJSON []byte
	if err := r.db.QueryRowContext(ctx, query, reportID).Scan(&reportJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("report %s: %w", reportID, ErrNotFound)
		}
		return nil, err
	}

	var rep sentinel.Report
	if err := json.Unmarshal(reportJSON, &rep); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &rep, nil
}

func (r *postgresRepo) UpdateReport(ctx context.Context, rep *sentinel.Report) error {
	reportJSON, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	query := `UPDATE analyses SET status = $2, report = $3, updated_at = $4 WHERE report_id = $1`
	res, err := r.db.ExecContext(ctx, query, rep.ID, string(rep.Status), reportJSON, r.now().UTC())
	if err != nil {
		return fmt.Errorf("update report %s: %w", rep.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("report %s: %w", rep.ID, ErrNotFound)
	}
	return nil
}
