package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invigilo/invigilo-backend/internal/model"
)

// MonitorRepository aggregates flag counts for the live integrity
// overview of one exam. Events are correlated to sessions by subject
// and session window: the event log itself carries no exam id.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// FlagCountsByExam returns per-student flag counts inside each
// student's session window for the exam.
func (r *MonitorRepository) FlagCountsByExam(ctx context.Context, examID uuid.UUID) (map[int]int64, error) {
	return r.countFlags(ctx, examID, false)
}

// HighRiskCountsByExam is FlagCountsByExam restricted to High risk.
func (r *MonitorRepository) HighRiskCountsByExam(ctx context.Context, examID uuid.UUID) (map[int]int64, error) {
	return r.countFlags(ctx, examID, true)
}

func (r *MonitorRepository) countFlags(ctx context.Context, examID uuid.UUID, highOnly bool) (map[int]int64, error) {
	query := `
		SELECT s.student_id, COUNT(f.id)
		FROM exam_sessions s
		JOIN flagged_events f
		  ON f.student_id = s.student_id
		 AND f.recorded_at >= s.started_at
		 AND f.recorded_at <= COALESCE(s.finished_at, NOW())
		WHERE s.exam_id = $1
	`
	args := []any{examID}
	if highOnly {
		args = append(args, model.RiskHigh)
		query += ` AND f.risk_level = $2`
	}
	query += ` GROUP BY s.student_id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var studentID int
		var n int64
		if err := rows.Scan(&studentID, &n); err != nil {
			return nil, err
		}
		counts[studentID] = n
	}
	return counts, rows.Err()
}
