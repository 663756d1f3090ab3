package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invigilo/invigilo-backend/internal/model"
)

// FlagRepository reads the flagged-event audit log. Writes go through
// the flag worker's batch path, never through request handlers.
type FlagRepository struct {
	pool *pgxpool.Pool
}

// NewFlagRepository creates a new FlagRepository.
func NewFlagRepository(pool *pgxpool.Pool) *FlagRepository {
	return &FlagRepository{pool: pool}
}

// ListByStudentWindow returns the events recorded for a student inside
// [from, to], oldest first.
func (r *FlagRepository) ListByStudentWindow(ctx context.Context, studentID int, from, to time.Time) ([]model.FlaggedEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, student_id, flag_type, risk_level, evidence_ref, recorded_at
		 FROM flagged_events
		 WHERE student_id = $1 AND recorded_at BETWEEN $2 AND $3
		 ORDER BY recorded_at ASC`, studentID, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.FlaggedEvent
	for rows.Next() {
		var e model.FlaggedEvent
		if err := rows.Scan(&e.ID, &e.StudentID, &e.Type, &e.RiskLevel, &e.EvidenceRef, &e.RecordedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
