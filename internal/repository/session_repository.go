package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invigilo/invigilo-backend/internal/model"
)

// SessionRepository persists exam sessions and their answer ledger.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create inserts a new session with its fixed randomized orders.
// A concurrent start for the same (exam, student) pair hits the unique
// constraint and surfaces as pgx.ErrNoRows.
func (r *SessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	questionOrder, err := json.Marshal(s.QuestionOrder)
	if err != nil {
		return fmt.Errorf("encode question order: %w", err)
	}
	optionOrders, err := json.Marshal(s.OptionOrders)
	if err != nil {
		return fmt.Errorf("encode option orders: %w", err)
	}

	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (id, exam_id, student_id, status, started_at, question_order, option_orders)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (exam_id, student_id) DO NOTHING
		 RETURNING id`,
		s.ID, s.ExamID, s.StudentID, s.Status, s.StartedAt, questionOrder, optionOrders,
	).Scan(&s.ID)
}

// Get retrieves a session with its persisted answers.
func (r *SessionRepository) Get(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	s, err := r.scanSession(r.pool.QueryRow(ctx,
		`SELECT id, exam_id, student_id, status, started_at, finished_at, graded_at, final_score, question_order, option_orders
		 FROM exam_sessions
		 WHERE id = $1`, id,
	))
	if err != nil {
		return nil, err
	}
	if err := r.loadAnswers(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// GetByExamAndStudent retrieves the session for an (exam, student) pair.
func (r *SessionRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error) {
	s, err := r.scanSession(r.pool.QueryRow(ctx,
		`SELECT id, exam_id, student_id, status, started_at, finished_at, graded_at, final_score, question_order, option_orders
		 FROM exam_sessions
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID,
	))
	if err != nil {
		return nil, err
	}
	if err := r.loadAnswers(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// ListExpiredInProgress returns ids of IN_PROGRESS sessions whose
// countdown has run out, for the sweeper's recovery auto-submit.
func (r *SessionRepository) ListExpiredInProgress(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id
		 FROM exam_sessions s
		 JOIN exams e ON e.id = s.exam_id
		 WHERE s.status = $1
		   AND s.started_at + make_interval(mins => e.duration_minutes) < $2`,
		model.SessionStatusInProgress, now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkGraded performs the guarded SUBMITTED → GRADED transition.
// Returns false when the session was not in SUBMITTED, so a concurrent
// publish cannot double-apply.
func (r *SessionRepository) MarkGraded(ctx context.Context, id uuid.UUID, score int, gradedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET status = $1, final_score = $2, graded_at = $3
		 WHERE id = $4 AND status = $5`,
		model.SessionStatusGraded, score, gradedAt, id, model.SessionStatusSubmitted,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *SessionRepository) scanSession(row pgx.Row) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	var questionOrder, optionOrders []byte
	err := row.Scan(
		&s.ID, &s.ExamID, &s.StudentID, &s.Status,
		&s.StartedAt, &s.FinishedAt, &s.GradedAt, &s.FinalScore,
		&questionOrder, &optionOrders,
	)
	if err != nil {
		return nil, err
	}
	if len(questionOrder) > 0 {
		if err := json.Unmarshal(questionOrder, &s.QuestionOrder); err != nil {
			return nil, fmt.Errorf("decode question order: %w", err)
		}
	}
	if len(optionOrders) > 0 {
		if err := json.Unmarshal(optionOrders, &s.OptionOrders); err != nil {
			return nil, fmt.Errorf("decode option orders: %w", err)
		}
	}
	return s, nil
}

func (r *SessionRepository) loadAnswers(ctx context.Context, s *model.ExamSession) error {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, answer
		 FROM session_answers
		 WHERE session_id = $1`, s.ID,
	)
	if err != nil {
		return fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	s.Answers = make(map[uuid.UUID]model.AnswerValue)
	for rows.Next() {
		var qid uuid.UUID
		var raw []byte
		if err := rows.Scan(&qid, &raw); err != nil {
			return err
		}
		var v model.AnswerValue
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decode answer for question %s: %w", qid, err)
		}
		s.Answers[qid] = v
	}
	return rows.Err()
}
