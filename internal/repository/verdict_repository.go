package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invigilo/invigilo-backend/internal/model"
)

// VerdictRepository persists per-question correctness decisions. Auto
// and manual verdicts are stored as distinct rows so the automatic
// decision stays auditable after an instructor overrides it.
type VerdictRepository struct {
	pool *pgxpool.Pool
}

// NewVerdictRepository creates a new VerdictRepository.
func NewVerdictRepository(pool *pgxpool.Pool) *VerdictRepository {
	return &VerdictRepository{pool: pool}
}

// ListBySession returns all verdicts for a session.
func (r *VerdictRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Verdict, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT session_id, question_id, is_correct, source, decided_at
		 FROM session_verdicts
		 WHERE session_id = $1
		 ORDER BY decided_at ASC`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var verdicts []model.Verdict
	for rows.Next() {
		var v model.Verdict
		if err := rows.Scan(&v.SessionID, &v.QuestionID, &v.IsCorrect, &v.Source, &v.DecidedAt); err != nil {
			return nil, err
		}
		verdicts = append(verdicts, v)
	}
	return verdicts, rows.Err()
}

// UpsertManual records or replaces an instructor's verdict.
func (r *VerdictRepository) UpsertManual(ctx context.Context, v model.Verdict) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_verdicts (session_id, question_id, is_correct, source, decided_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session_id, question_id, source) DO UPDATE
		 SET is_correct = EXCLUDED.is_correct, decided_at = EXCLUDED.decided_at`,
		v.SessionID, v.QuestionID, v.IsCorrect, model.VerdictSourceManual, v.DecidedAt,
	)
	return err
}
