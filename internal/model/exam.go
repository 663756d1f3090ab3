package model

import (
	"time"

	"github.com/google/uuid"
)

// GradeRelease controls when a student may see their score.
type GradeRelease string

const (
	GradeReleaseImmediately GradeRelease = "IMMEDIATELY"
	GradeReleaseLater       GradeRelease = "LATER"
)

// Exam represents an exam definition. Owned by the instructor; the
// session engine treats it as read-only.
type Exam struct {
	ID               uuid.UUID    `json:"id"`
	Title            string       `json:"title"`
	DurationMinutes  int          `json:"duration_minutes"`
	ShuffleQuestions bool         `json:"shuffle_questions"`
	ShuffleOptions   bool         `json:"shuffle_options"`
	ReleaseGrades    GradeRelease `json:"release_grades"`
	Questions        []Question   `json:"questions,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Duration returns the exam duration as a time.Duration.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// QuestionByID returns the question with the given id, if any.
func (e *Exam) QuestionByID(id uuid.UUID) (*Question, bool) {
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			return &e.Questions[i], true
		}
	}
	return nil, false
}

// TotalPoints sums the point values of all questions.
func (e *Exam) TotalPoints() int {
	total := 0
	for i := range e.Questions {
		total += e.Questions[i].Points
	}
	return total
}

// ExamPaper is the student-facing rendering of an exam: questions in the
// session's stored order, options in stored order, answers stripped.
type ExamPaper struct {
	ExamID          uuid.UUID            `json:"exam_id"`
	SessionID       uuid.UUID            `json:"session_id"`
	Title           string               `json:"title"`
	DurationMinutes int                  `json:"duration_minutes"`
	Questions       []QuestionForStudent `json:"questions"`
}
