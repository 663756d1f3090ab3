package service

import "errors"

// Domain errors surfaced by the session engine. Handlers map these to
// typed response codes; every rejected operation leaves the session in
// its pre-call state.
var (
	// ErrInvalidStateTransition signals an operation that is illegal for
	// the session's current status (double submit, answering after
	// submission, publishing twice).
	ErrInvalidStateTransition = errors.New("invalid session state transition")

	// ErrAlreadyActive signals a StartSession call while an in-progress
	// session already exists for the (student, exam) pair.
	ErrAlreadyActive = errors.New("an active session already exists for this exam")

	// ErrNotEnrolled signals a student without access to the exam.
	ErrNotEnrolled = errors.New("student is not enrolled for this exam")

	// ErrSessionNotFound signals an unknown session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrExamNotFound signals an unknown exam id.
	ErrExamNotFound = errors.New("exam not found")

	// ErrUnknownQuestion signals a question id absent from the exam.
	ErrUnknownQuestion = errors.New("question is not part of this exam")

	// ErrMalformedAnswer signals an answer whose shape does not match the
	// question type (e.g. a value set for a single-choice question).
	ErrMalformedAnswer = errors.New("answer shape does not match question type")

	// ErrIncompleteGrading blocks publication while any question still
	// lacks a verdict. Fully recoverable by completing the verdicts.
	ErrIncompleteGrading = errors.New("grading is incomplete")

	// ErrInvalidPolicy signals a policy update with an unknown risk level
	// or a negative threshold.
	ErrInvalidPolicy = errors.New("invalid proctoring policy")
)
