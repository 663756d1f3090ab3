package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invigilo/invigilo-backend/internal/model"
)

type reviewFixture struct {
	service  *ReviewService
	exam     *model.Exam
	session  *model.ExamSession
	store    *fakeSessionStore
	verdicts *fakeVerdictStore
	flags    *fakeFlagStore
}

// newReviewFixture seeds a SUBMITTED session with the objective
// questions answered correctly and auto verdicts recorded, leaving the
// free-text question awaiting a manual decision.
func newReviewFixture(t *testing.T) *reviewFixture {
	t.Helper()

	exams := newFakeExamStore()
	store := newFakeSessionStore()
	verdicts := &fakeVerdictStore{}
	flags := &fakeFlagStore{}
	policy := NewPolicyService(&fakePolicyRepo{}, testLogger())
	require.NoError(t, policy.Load(context.Background()))

	exam := sampleExam()
	exams.addExam(exam, testStudentID)

	started := time.Now().Add(-20 * time.Minute)
	finished := time.Now().Add(-5 * time.Minute)
	sess := &model.ExamSession{
		ID:        uuid.New(),
		ExamID:    exam.ID,
		StudentID: testStudentID,
		Status:    model.SessionStatusInProgress,
		StartedAt: started,
		Answers: map[uuid.UUID]model.AnswerValue{
			exam.Questions[0].ID: model.SingleValue("B"),
			exam.Questions[1].ID: model.SingleValue("Y"),
			exam.Questions[2].ID: model.SetValue("1", "3"),
			exam.Questions[3].ID: model.SingleValue("a long essay"),
		},
	}
	require.NoError(t, store.Create(context.Background(), sess))
	store.setStatus(sess.ID, model.SessionStatusSubmitted, &finished, nil)
	store.setAnswers(sess.ID, sess.Answers)

	for _, q := range exam.Questions[:3] {
		verdicts.addAuto(sess.ID, q.ID, true, finished)
	}

	return &reviewFixture{
		service:  NewReviewService(store, exams, verdicts, flags, policy, testLogger()),
		exam:     exam,
		session:  sess,
		store:    store,
		verdicts: verdicts,
		flags:    flags,
	}
}

func TestReviewGradingIncomplete(t *testing.T) {
	f := newReviewFixture(t)

	review, err := f.service.Review(context.Background(), f.session.ID)
	require.NoError(t, err)

	assert.False(t, review.GradingComplete)
	assert.Equal(t, 35, review.ProvisionalScore)
	assert.Equal(t, 55, review.MaxScore)

	byID := make(map[uuid.UUID]ReviewQuestion)
	for _, rq := range review.Questions {
		byID[rq.Question.ID] = rq
	}
	freeText := byID[f.exam.Questions[3].ID]
	assert.True(t, freeText.AwaitingManual)
	assert.Nil(t, freeText.Verdict)
	require.NotNil(t, freeText.Answer)

	objective := byID[f.exam.Questions[0].ID]
	assert.False(t, objective.AwaitingManual)
	require.NotNil(t, objective.Verdict)
	assert.True(t, objective.Verdict.IsCorrect)
}

func TestReviewMarksMissingRequired(t *testing.T) {
	f := newReviewFixture(t)

	answers := map[uuid.UUID]model.AnswerValue{
		f.exam.Questions[0].ID: model.SingleValue("B"),
	}
	f.store.setAnswers(f.session.ID, answers)

	review, err := f.service.Review(context.Background(), f.session.ID)
	require.NoError(t, err)

	for _, rq := range review.Questions {
		if rq.Question.ID == f.exam.Questions[2].ID {
			assert.True(t, rq.MissingRequired)
			assert.Nil(t, rq.Answer)
		}
		if rq.Question.ID == f.exam.Questions[1].ID {
			// Unanswered but not required.
			assert.False(t, rq.MissingRequired)
		}
	}
}

func TestReviewFlagsFilteredToSessionWindow(t *testing.T) {
	f := newReviewFixture(t)

	inside := model.FlaggedEvent{
		StudentID: testStudentID, Type: model.FlagPhoneDetected,
		RiskLevel: model.RiskHigh, RecordedAt: f.session.StartedAt.Add(time.Minute),
	}
	before := inside
	before.RecordedAt = f.session.StartedAt.Add(-time.Hour)
	after := inside
	after.RecordedAt = time.Now().Add(time.Hour)
	otherStudent := inside
	otherStudent.StudentID = 7

	f.flags.add(inside)
	f.flags.add(before)
	f.flags.add(after)
	f.flags.add(otherStudent)

	review, err := f.service.Review(context.Background(), f.session.ID)
	require.NoError(t, err)

	require.Len(t, review.Flags, 1)
	assert.Equal(t, inside.RecordedAt.Unix(), review.Flags[0].RecordedAt.Unix())
	assert.Equal(t, 1, review.HighRiskFlags)
	assert.False(t, review.AutoFailAdvised)
}

func TestReviewAdvisesAutoFailAtThreshold(t *testing.T) {
	f := newReviewFixture(t)

	for i := 0; i < 5; i++ {
		f.flags.add(model.FlaggedEvent{
			StudentID: testStudentID, Type: model.FlagUnknownPerson,
			RiskLevel: model.RiskHigh, RecordedAt: f.session.StartedAt.Add(time.Duration(i+1) * time.Minute),
		})
	}

	review, err := f.service.Review(context.Background(), f.session.ID)
	require.NoError(t, err)

	assert.Equal(t, 5, review.HighRiskFlags)
	assert.Equal(t, 5, review.AutoFailThreshold)
	assert.True(t, review.AutoFailAdvised, "advisory only; nothing about the session changed")

	sess, err := f.store.Get(context.Background(), f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusSubmitted, sess.Status)
}

func TestSetManualVerdict(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	err := f.service.SetManualVerdict(ctx, f.session.ID, f.exam.Questions[3].ID, true)
	require.NoError(t, err)

	review, err := f.service.Review(ctx, f.session.ID)
	require.NoError(t, err)
	assert.True(t, review.GradingComplete)
	assert.Equal(t, 55, review.ProvisionalScore)
}

func TestSetManualVerdictUnknownQuestion(t *testing.T) {
	f := newReviewFixture(t)

	err := f.service.SetManualVerdict(context.Background(), f.session.ID, uuid.New(), true)
	assert.ErrorIs(t, err, ErrUnknownQuestion)
}

func TestSetManualVerdictSupersedesAuto(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	// Override a correct auto verdict with an incorrect manual one.
	q1 := f.exam.Questions[0]
	require.NoError(t, f.service.SetManualVerdict(ctx, f.session.ID, q1.ID, false))

	review, err := f.service.Review(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, review.ProvisionalScore, "manual false must replace the auto true")

	for _, rq := range review.Questions {
		if rq.Question.ID == q1.ID {
			require.NotNil(t, rq.Verdict)
			assert.Equal(t, model.VerdictSourceManual, rq.Verdict.Source)
			assert.False(t, rq.Verdict.IsCorrect)
		}
	}
}

func TestPublishGradeIncomplete(t *testing.T) {
	f := newReviewFixture(t)

	_, err := f.service.PublishGrade(context.Background(), f.session.ID)
	assert.ErrorIs(t, err, ErrIncompleteGrading)

	sess, getErr := f.store.Get(context.Background(), f.session.ID)
	require.NoError(t, getErr)
	assert.Equal(t, model.SessionStatusSubmitted, sess.Status, "failed publication must not transition the session")
}

func TestPublishGradeHappyPath(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.SetManualVerdict(ctx, f.session.ID, f.exam.Questions[3].ID, true))

	result, err := f.service.PublishGrade(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, 55, result.Score)

	sess, err := f.store.Get(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusGraded, sess.Status)
	require.NotNil(t, sess.FinalScore)
	assert.Equal(t, 55, *sess.FinalScore)

	// Verdicts are frozen once the grade is published.
	err = f.service.SetManualVerdict(ctx, f.session.ID, f.exam.Questions[3].ID, false)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestPublishGradeTwiceRejected(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.SetManualVerdict(ctx, f.session.ID, f.exam.Questions[3].ID, true))
	_, err := f.service.PublishGrade(ctx, f.session.ID)
	require.NoError(t, err)

	_, err = f.service.PublishGrade(ctx, f.session.ID)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestReviewUnknownSession(t *testing.T) {
	f := newReviewFixture(t)

	_, err := f.service.Review(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
