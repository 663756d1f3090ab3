package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/model"
)

// ExamStore provides read access to exam definitions and enrollment.
// Exams are owned by the instructor side; the engine never writes them.
type ExamStore interface {
	GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error)
	IsEnrolled(ctx context.Context, studentID int, examID uuid.UUID) (bool, error)
}

// SessionStore persists exam sessions. Get and GetByExamAndStudent load
// the session with its answers; Create persists the fixed randomized
// orders alongside the row.
type SessionStore interface {
	Create(ctx context.Context, s *model.ExamSession) error
	Get(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error)
	// ListExpiredInProgress returns ids of IN_PROGRESS sessions whose
	// deadline has passed, for the sweeper's recovery auto-submit.
	ListExpiredInProgress(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	// MarkGraded transitions SUBMITTED → GRADED, guarded on the current
	// status. Returns false when the session was not in SUBMITTED.
	MarkGraded(ctx context.Context, id uuid.UUID, score int, gradedAt time.Time) (bool, error)
}

// VerdictStore persists per-question correctness decisions.
type VerdictStore interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Verdict, error)
	UpsertManual(ctx context.Context, v model.Verdict) error
}

// FlagStore reads the flagged-event audit log.
type FlagStore interface {
	ListByStudentWindow(ctx context.Context, studentID int, from, to time.Time) ([]model.FlaggedEvent, error)
}

// PolicyRepo persists the proctoring policy as a single mutable record.
type PolicyRepo interface {
	Get(ctx context.Context) (*model.ProctoringPolicy, error)
	Save(ctx context.Context, p *model.ProctoringPolicy) error
}
