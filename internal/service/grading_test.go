package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/invigilo/invigilo-backend/internal/model"
)

func TestAutoGradeSingleChoice(t *testing.T) {
	exam := sampleExam()
	q1 := exam.Questions[0] // correct answer "B", 10 points

	tests := []struct {
		name    string
		answer  model.AnswerValue
		correct bool
	}{
		{"exact match", model.SingleValue("B"), true},
		{"wrong option", model.SingleValue("A"), false},
		{"empty string", model.SingleValue(""), false},
		{"set where scalar expected", model.SetValue("B"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdicts, _ := AutoGrade(exam.Questions, map[uuid.UUID]model.AnswerValue{q1.ID: tt.answer})
			assert.Equal(t, tt.correct, verdicts[q1.ID])
		})
	}
}

func TestAutoGradeSingleChoiceRequiresSoleCorrectAnswer(t *testing.T) {
	// A single-choice question whose correct set holds more than one
	// element can never be satisfied by a scalar answer.
	examID := uuid.New()
	q := model.Question{
		ID: uuid.New(), ExamID: examID, Type: model.QuestionTypeSingleChoice,
		Options: []string{"A", "B"}, CorrectAnswers: []string{"A", "B"}, Points: 5,
	}
	verdicts, score := AutoGrade([]model.Question{q}, map[uuid.UUID]model.AnswerValue{
		q.ID: model.SingleValue("A"),
	})
	assert.False(t, verdicts[q.ID])
	assert.Zero(t, score)
}

func TestAutoGradeMultiChoiceSetEquality(t *testing.T) {
	exam := sampleExam()
	q3 := exam.Questions[2] // correct set {"1","3"}, 15 points

	tests := []struct {
		name    string
		answer  model.AnswerValue
		correct bool
	}{
		{"exact set", model.SetValue("1", "3"), true},
		{"order independent", model.SetValue("3", "1"), true},
		{"duplicates collapse", model.SetValue("1", "3", "3"), true},
		{"strict subset", model.SetValue("1"), false},
		{"strict superset", model.SetValue("1", "3", "4"), false},
		{"disjoint", model.SetValue("2", "4"), false},
		{"empty set", model.SetValue(), false},
		{"scalar where set expected", model.SingleValue("1"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdicts, _ := AutoGrade(exam.Questions, map[uuid.UUID]model.AnswerValue{q3.ID: tt.answer})
			assert.Equal(t, tt.correct, verdicts[q3.ID])
		})
	}
}

func TestAutoGradeMissingAnswersAreIncorrect(t *testing.T) {
	exam := sampleExam()

	verdicts, score := AutoGrade(exam.Questions, map[uuid.UUID]model.AnswerValue{})

	// All three objective questions get an explicit false verdict.
	assert.Len(t, verdicts, 3)
	for _, v := range verdicts {
		assert.False(t, v)
	}
	assert.Zero(t, score)
}

func TestAutoGradeSkipsFreeText(t *testing.T) {
	exam := sampleExam()
	q4 := exam.Questions[3]

	verdicts, score := AutoGrade(exam.Questions, map[uuid.UUID]model.AnswerValue{
		q4.ID: model.SingleValue("a thoughtful essay"),
	})

	_, hasVerdict := verdicts[q4.ID]
	assert.False(t, hasVerdict, "free-text must stay awaiting a manual verdict")
	assert.Zero(t, score)
}

func TestAutoGradeFullScore(t *testing.T) {
	exam := sampleExam()

	verdicts, score := AutoGrade(exam.Questions, map[uuid.UUID]model.AnswerValue{
		exam.Questions[0].ID: model.SingleValue("B"),
		exam.Questions[1].ID: model.SingleValue("Y"),
		exam.Questions[2].ID: model.SetValue("3", "1"),
	})

	assert.Equal(t, 35, score) // 10 + 10 + 15; free-text not counted
	assert.True(t, verdicts[exam.Questions[0].ID])
	assert.True(t, verdicts[exam.Questions[1].ID])
	assert.True(t, verdicts[exam.Questions[2].ID])
}

func TestScoreFromVerdictsRecomputesFromFullSet(t *testing.T) {
	exam := sampleExam()

	verdicts := map[uuid.UUID]bool{
		exam.Questions[0].ID: true,
		exam.Questions[1].ID: false,
		exam.Questions[2].ID: true,
		exam.Questions[3].ID: true, // manual verdict on the free-text item
	}
	assert.Equal(t, 45, ScoreFromVerdicts(exam.Questions, verdicts))

	// Flipping one verdict changes only its contribution.
	verdicts[exam.Questions[3].ID] = false
	assert.Equal(t, 25, ScoreFromVerdicts(exam.Questions, verdicts))
}

func TestValidateAnswerShape(t *testing.T) {
	exam := sampleExam()
	single := &exam.Questions[0]
	multi := &exam.Questions[2]
	freeText := &exam.Questions[3]

	assert.NoError(t, validateAnswerShape(single, model.SingleValue("A")))
	assert.ErrorIs(t, validateAnswerShape(single, model.SetValue("A")), ErrMalformedAnswer)

	assert.NoError(t, validateAnswerShape(multi, model.SetValue("1")))
	assert.ErrorIs(t, validateAnswerShape(multi, model.SingleValue("1")), ErrMalformedAnswer)

	assert.NoError(t, validateAnswerShape(freeText, model.SingleValue("essay")))
	assert.ErrorIs(t, validateAnswerShape(freeText, model.SetValue("essay")), ErrMalformedAnswer)
}
