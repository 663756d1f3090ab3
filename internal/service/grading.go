package service

import (
	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/model"
)

// AutoGrade computes the automatic verdicts for the objective questions
// of an exam and the provisional score. Free-text questions receive no
// verdict and stay awaiting a manual decision. Missing answers never
// error: an unanswered question is simply incorrect.
func AutoGrade(questions []model.Question, answers map[uuid.UUID]model.AnswerValue) (map[uuid.UUID]bool, int) {
	verdicts := make(map[uuid.UUID]bool)
	for i := range questions {
		q := &questions[i]
		if !q.Type.IsObjective() {
			continue
		}
		answer, answered := answers[q.ID]
		verdicts[q.ID] = answered && answerIsCorrect(q, answer)
	}
	return verdicts, ScoreFromVerdicts(questions, verdicts)
}

// ScoreFromVerdicts sums the point values of all questions with a true
// verdict. The final score is always recomputed from the full verdict
// set, never patched incrementally, so manual overrides cannot drift.
func ScoreFromVerdicts(questions []model.Question, verdicts map[uuid.UUID]bool) int {
	score := 0
	for i := range questions {
		if verdicts[questions[i].ID] {
			score += questions[i].Points
		}
	}
	return score
}

// answerIsCorrect applies the type-specific correctness semantics.
func answerIsCorrect(q *model.Question, a model.AnswerValue) bool {
	switch q.Type {
	case model.QuestionTypeSingleChoice, model.QuestionTypeDropdown:
		// Correct iff the value equals the sole element of the correct set.
		if a.IsSet || len(q.CorrectAnswers) != 1 {
			return false
		}
		return a.Single == q.CorrectAnswers[0]
	case model.QuestionTypeMultiChoice:
		// Binary exact match: neither subset nor superset earns credit.
		if !a.IsSet {
			return false
		}
		return setEqual(a.Multi, q.CorrectAnswers)
	default:
		return false
	}
}

func setEqual(a, b []string) bool {
	seen := make(map[string]struct{}, len(a))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	if len(seen) != len(b) {
		return false
	}
	for _, v := range b {
		if _, ok := seen[v]; !ok {
			return false
		}
	}
	return true
}

// validateAnswerShape rejects answers whose shape cannot belong to the
// question type before they reach the ledger.
func validateAnswerShape(q *model.Question, a model.AnswerValue) error {
	if q.Type == model.QuestionTypeMultiChoice {
		if !a.IsSet {
			return ErrMalformedAnswer
		}
		return nil
	}
	if a.IsSet {
		return ErrMalformedAnswer
	}
	return nil
}
