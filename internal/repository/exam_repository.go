package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invigilo/invigilo-backend/internal/model"
)

// ExamRepository reads exam definitions and enrollment. The session
// engine never writes exams: they are owned by the instructor tooling.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetExam retrieves an exam with its ordered question list.
func (r *ExamRepository) GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, duration_minutes, shuffle_questions, shuffle_options, release_grades, created_at, updated_at
		 FROM exams
		 WHERE id = $1`, examID,
	).Scan(&e.ID, &e.Title, &e.DurationMinutes, &e.ShuffleQuestions, &e.ShuffleOptions, &e.ReleaseGrades, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, question_type, question_text, options, correct_answers, points, required, order_num
		 FROM questions
		 WHERE exam_id = $1
		 ORDER BY order_num ASC`, examID,
	)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var q model.Question
		var options, correct []byte
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Type, &q.Text, &options, &correct, &q.Points, &q.Required, &q.OrderNum); err != nil {
			return nil, err
		}
		if len(options) > 0 {
			if err := json.Unmarshal(options, &q.Options); err != nil {
				return nil, fmt.Errorf("decode options for question %s: %w", q.ID, err)
			}
		}
		if len(correct) > 0 {
			if err := json.Unmarshal(correct, &q.CorrectAnswers); err != nil {
				return nil, fmt.Errorf("decode correct answers for question %s: %w", q.ID, err)
			}
		}
		e.Questions = append(e.Questions, q)
	}
	return e, rows.Err()
}

// IsEnrolled reports whether the student has access to the exam.
func (r *ExamRepository) IsEnrolled(ctx context.Context, studentID int, examID uuid.UUID) (bool, error) {
	var enrolled bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM enrollments
			WHERE student_id = $1 AND exam_id = $2
		 )`, studentID, examID,
	).Scan(&enrolled)
	return enrolled, err
}
