package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states. Transitions are strictly
// forward-only: NOT_STARTED → IN_PROGRESS → SUBMITTED → GRADED.
type SessionStatus string

const (
	SessionStatusNotStarted SessionStatus = "NOT_STARTED"
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusSubmitted  SessionStatus = "SUBMITTED"
	SessionStatusGraded     SessionStatus = "GRADED"
)

// CanTransitionTo reports whether moving from s to next is a legal
// forward step.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	switch s {
	case SessionStatusNotStarted:
		return next == SessionStatusInProgress
	case SessionStatusInProgress:
		return next == SessionStatusSubmitted
	case SessionStatusSubmitted:
		return next == SessionStatusGraded
	default:
		return false
	}
}

// ExamSession is one student's timed attempt at one exam. It is the
// system of record for a grade: never deleted, only transitioned forward.
type ExamSession struct {
	ID         uuid.UUID     `json:"id"`
	ExamID     uuid.UUID     `json:"exam_id"`
	StudentID  int           `json:"student_id"`
	Status     SessionStatus `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	GradedAt   *time.Time    `json:"graded_at,omitempty"`
	FinalScore *int          `json:"final_score,omitempty"`

	// QuestionOrder and OptionOrders are fixed at session creation and
	// stable for the session's lifetime. OptionOrders maps a question id
	// to a permutation of its option indices.
	QuestionOrder []uuid.UUID               `json:"question_order"`
	OptionOrders  map[uuid.UUID][]int       `json:"option_orders"`
	Answers       map[uuid.UUID]AnswerValue `json:"answers,omitempty"`
}

// Deadline returns the instant the session times out.
func (s *ExamSession) Deadline(exam *Exam) time.Time {
	return s.StartedAt.Add(exam.Duration())
}

// VerdictSource distinguishes automatic from instructor verdicts.
type VerdictSource string

const (
	VerdictSourceAuto   VerdictSource = "AUTO"
	VerdictSourceManual VerdictSource = "MANUAL"
)

// Verdict is a correctness decision for one question within one session.
// Manual verdicts supersede automatic ones for the same question.
type Verdict struct {
	SessionID  uuid.UUID     `json:"session_id"`
	QuestionID uuid.UUID     `json:"question_id"`
	IsCorrect  bool          `json:"is_correct"`
	Source     VerdictSource `json:"source"`
	DecidedAt  time.Time     `json:"decided_at"`
}

// SessionView is the student-facing projection of a session. The score
// is withheld until the exam's grade-release policy allows it.
type SessionView struct {
	ID               uuid.UUID     `json:"id"`
	ExamID           uuid.UUID     `json:"exam_id"`
	Status           SessionStatus `json:"status"`
	StartedAt        time.Time     `json:"started_at"`
	EndsAt           time.Time     `json:"ends_at"`
	RemainingSeconds float64       `json:"remaining_seconds"`
	Score            *int          `json:"score,omitempty"`
}

// SessionState is returned on page reload so the client can restore the
// autosaved answers and the countdown.
type SessionState struct {
	SessionID        uuid.UUID         `json:"session_id"`
	ExamID           uuid.UUID         `json:"exam_id"`
	StudentID        int               `json:"student_id"`
	Status           SessionStatus     `json:"status"`
	AutosavedAnswers map[string]string `json:"autosaved_answers"`
	RemainingSeconds float64           `json:"remaining_seconds"`
}

// SubmitAnswerRequest is the payload for answering one question.
type SubmitAnswerRequest struct {
	QuestionID string      `json:"question_id" binding:"required,uuid"`
	Value      AnswerValue `json:"value" binding:"required"`
}

// ManualVerdictRequest is the payload for an instructor's verdict on a
// free-text question.
type ManualVerdictRequest struct {
	QuestionID string `json:"question_id" binding:"required,uuid"`
	IsCorrect  *bool  `json:"is_correct" binding:"required"`
}
