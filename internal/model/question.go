package model

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// QuestionType enumerates the supported question kinds.
type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "SINGLE_CHOICE"
	QuestionTypeMultiChoice  QuestionType = "MULTI_CHOICE"
	QuestionTypeDropdown     QuestionType = "DROPDOWN"
	QuestionTypeFreeText     QuestionType = "FREE_TEXT"
)

// IsObjective reports whether the type can be graded automatically.
func (t QuestionType) IsObjective() bool {
	return t != QuestionTypeFreeText
}

// Question represents a single exam question. Immutable once the exam is
// published; the session engine only ever reads it.
type Question struct {
	ID             uuid.UUID    `json:"id"`
	ExamID         uuid.UUID    `json:"exam_id"`
	Type           QuestionType `json:"type"`
	Text           string       `json:"text"`
	Options        []string     `json:"options,omitempty"`
	CorrectAnswers []string     `json:"correct_answers,omitempty"`
	Points         int          `json:"points"`
	Required       bool         `json:"required"`
	OrderNum       int          `json:"order_num"`
}

// QuestionForStudent is a question with the correct answers stripped,
// options already in the session's stored order.
type QuestionForStudent struct {
	ID       uuid.UUID    `json:"id"`
	Type     QuestionType `json:"type"`
	Text     string       `json:"text"`
	Options  []string     `json:"options,omitempty"`
	Points   int          `json:"points"`
	Required bool         `json:"required"`
}

// AnswerValue holds a submitted answer: a single string for choice,
// dropdown and free-text questions, or a string set for multi-choice.
// It marshals as either a JSON string or a JSON array.
type AnswerValue struct {
	Single string
	Multi  []string
	IsSet  bool
}

// SingleValue builds a scalar answer.
func SingleValue(v string) AnswerValue {
	return AnswerValue{Single: v}
}

// SetValue builds a multi-choice answer.
func SetValue(vs ...string) AnswerValue {
	return AnswerValue{Multi: vs, IsSet: true}
}

// MarshalJSON implements json.Marshaler.
func (a AnswerValue) MarshalJSON() ([]byte, error) {
	if a.IsSet {
		return json.Marshal(a.Multi)
	}
	return json.Marshal(a.Single)
}

// UnmarshalJSON implements json.Unmarshaler. Accepts a string or an
// array of strings; anything else is rejected at the boundary.
func (a *AnswerValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = AnswerValue{Single: s}
		return nil
	}
	var m []string
	if err := json.Unmarshal(data, &m); err == nil {
		*a = AnswerValue{Multi: m, IsSet: true}
		return nil
	}
	return fmt.Errorf("answer must be a string or an array of strings")
}
