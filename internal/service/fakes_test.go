package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/model"
)

// In-memory store fakes. They mimic the pgx repositories' contracts,
// including pgx.ErrNoRows on misses, so the services under test follow
// the same error paths as in production.

type fakeExamStore struct {
	mu       sync.Mutex
	exams    map[uuid.UUID]*model.Exam
	enrolled map[string]bool
}

func newFakeExamStore() *fakeExamStore {
	return &fakeExamStore{
		exams:    make(map[uuid.UUID]*model.Exam),
		enrolled: make(map[string]bool),
	}
}

func enrollKey(examID uuid.UUID, studentID int) string {
	return fmt.Sprintf("%s|%d", examID, studentID)
}

func (f *fakeExamStore) addExam(e *model.Exam, studentIDs ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exams[e.ID] = e
	for _, sid := range studentIDs {
		f.enrolled[enrollKey(e.ID, sid)] = true
	}
}

func (f *fakeExamStore) GetExam(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return e, nil
}

func (f *fakeExamStore) IsEnrolled(_ context.Context, studentID int, examID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enrolled[enrollKey(examID, studentID)], nil
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*model.ExamSession
	byPair   map[string]uuid.UUID
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		sessions: make(map[uuid.UUID]*model.ExamSession),
		byPair:   make(map[string]uuid.UUID),
	}
}

func (f *fakeSessionStore) Create(_ context.Context, s *model.ExamSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := enrollKey(s.ExamID, s.StudentID)
	if _, exists := f.byPair[key]; exists {
		return pgx.ErrNoRows // unique constraint, as the repository surfaces it
	}
	cp := *s
	f.sessions[s.ID] = &cp
	f.byPair[key] = s.ID
	return nil
}

func (f *fakeSessionStore) Get(_ context.Context, id uuid.UUID) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *s
	cp.Answers = make(map[uuid.UUID]model.AnswerValue, len(s.Answers))
	for k, v := range s.Answers {
		cp.Answers[k] = v
	}
	return &cp, nil
}

func (f *fakeSessionStore) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error) {
	f.mu.Lock()
	id, ok := f.byPair[enrollKey(examID, studentID)]
	f.mu.Unlock()
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return f.Get(ctx, id)
}

func (f *fakeSessionStore) ListExpiredInProgress(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	// Deadlines need the exam; tests drive expiry through setStatus and
	// the engine's own timers instead.
	return nil, nil
}

func (f *fakeSessionStore) MarkGraded(_ context.Context, id uuid.UUID, score int, gradedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.Status != model.SessionStatusSubmitted {
		return false, nil
	}
	s.Status = model.SessionStatusGraded
	s.FinalScore = &score
	s.GradedAt = &gradedAt
	return true, nil
}

// setStatus mutates a stored session directly, simulating a row the
// results worker already persisted.
func (f *fakeSessionStore) setStatus(id uuid.UUID, status model.SessionStatus, finishedAt *time.Time, score *int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		s.Status = status
		s.FinishedAt = finishedAt
		s.FinalScore = score
	}
}

func (f *fakeSessionStore) setAnswers(id uuid.UUID, answers map[uuid.UUID]model.AnswerValue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		s.Answers = answers
	}
}

type fakeVerdictStore struct {
	mu       sync.Mutex
	verdicts []model.Verdict
}

func (f *fakeVerdictStore) ListBySession(_ context.Context, sessionID uuid.UUID) ([]model.Verdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Verdict
	for _, v := range f.verdicts {
		if v.SessionID == sessionID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeVerdictStore) UpsertManual(_ context.Context, v model.Verdict) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v.Source = model.VerdictSourceManual
	for i := range f.verdicts {
		if f.verdicts[i].SessionID == v.SessionID &&
			f.verdicts[i].QuestionID == v.QuestionID &&
			f.verdicts[i].Source == model.VerdictSourceManual {
			f.verdicts[i] = v
			return nil
		}
	}
	f.verdicts = append(f.verdicts, v)
	return nil
}

func (f *fakeVerdictStore) addAuto(sessionID, questionID uuid.UUID, isCorrect bool, decidedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verdicts = append(f.verdicts, model.Verdict{
		SessionID:  sessionID,
		QuestionID: questionID,
		IsCorrect:  isCorrect,
		Source:     model.VerdictSourceAuto,
		DecidedAt:  decidedAt,
	})
}

type fakeFlagStore struct {
	mu     sync.Mutex
	events []model.FlaggedEvent
}

func (f *fakeFlagStore) ListByStudentWindow(_ context.Context, studentID int, from, to time.Time) ([]model.FlaggedEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.FlaggedEvent
	for _, e := range f.events {
		if e.StudentID == studentID && !e.RecordedAt.Before(from) && !e.RecordedAt.After(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeFlagStore) add(e model.FlaggedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

type fakePolicyRepo struct {
	mu     sync.Mutex
	stored *model.ProctoringPolicy
}

func (f *fakePolicyRepo) Get(_ context.Context) (*model.ProctoringPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stored == nil {
		return nil, pgx.ErrNoRows
	}
	cp := *f.stored
	return &cp, nil
}

func (f *fakePolicyRepo) Save(_ context.Context, p *model.ProctoringPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.stored = &cp
	return nil
}

// ─── Shared test helpers ────────────────────────────────────────────

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// sampleExam builds a four-question exam: two single-choice, one
// multi-choice and one free-text worth 10/10/15/20 points.
func sampleExam() *model.Exam {
	examID := uuid.New()
	return &model.Exam{
		ID:               examID,
		Title:            "Sample Exam",
		DurationMinutes:  30,
		ShuffleQuestions: true,
		ShuffleOptions:   true,
		ReleaseGrades:    model.GradeReleaseImmediately,
		Questions: []model.Question{
			{
				ID: uuid.New(), ExamID: examID, Type: model.QuestionTypeSingleChoice,
				Text: "Q1", Options: []string{"A", "B", "C"}, CorrectAnswers: []string{"B"},
				Points: 10, Required: true, OrderNum: 1,
			},
			{
				ID: uuid.New(), ExamID: examID, Type: model.QuestionTypeDropdown,
				Text: "Q2", Options: []string{"X", "Y"}, CorrectAnswers: []string{"Y"},
				Points: 10, OrderNum: 2,
			},
			{
				ID: uuid.New(), ExamID: examID, Type: model.QuestionTypeMultiChoice,
				Text: "Q3", Options: []string{"1", "2", "3", "4"}, CorrectAnswers: []string{"1", "3"},
				Points: 15, Required: true, OrderNum: 3,
			},
			{
				ID: uuid.New(), ExamID: examID, Type: model.QuestionTypeFreeText,
				Text: "Q4", Points: 20, Required: true, OrderNum: 4,
			},
		},
	}
}
