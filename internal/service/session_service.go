package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/model"
)

// SessionEngine owns the session state machine. Every mutation of one
// session (answer updates, the submit transition) is serialized behind
// that session's mutex, while sessions for different students run fully
// in parallel. The countdown timer and the explicit submit path race
// logically; both route into the same guarded transition, so exactly one
// caller wins regardless of order. The lock is only ever held for O(1)
// in-memory work; Redis and queue writes happen outside it.
type SessionEngine struct {
	mu     sync.RWMutex
	active map[uuid.UUID]*activeSession

	exams ExamStore
	store SessionStore
	rdb   *redis.Client
	log   zerolog.Logger
}

// activeSession is the in-memory owned unit for one in-flight attempt.
type activeSession struct {
	mu    sync.Mutex
	sess  *model.ExamSession
	exam  *model.Exam
	timer *time.Timer
}

// NewSessionEngine creates a SessionEngine.
func NewSessionEngine(exams ExamStore, store SessionStore, rdb *redis.Client, log zerolog.Logger) *SessionEngine {
	return &SessionEngine{
		active: make(map[uuid.UUID]*activeSession),
		exams:  exams,
		store:  store,
		rdb:    rdb,
		log:    log.With().Str("component", "session_engine").Logger(),
	}
}

// resultPayload is the queue wire format consumed by the results worker.
type resultPayload struct {
	SessionID  string          `json:"session_id"`
	ExamID     string          `json:"exam_id"`
	StudentID  int             `json:"student_id"`
	Score      int             `json:"score"`
	FinishedAt int64           `json:"finished_at"`
	Verdicts   map[string]bool `json:"verdicts"`
}

// answerQueuePayload is the queue wire format consumed by the autosave worker.
type answerQueuePayload struct {
	SessionID  string          `json:"session_id"`
	QuestionID string          `json:"question_id"`
	Answer     json.RawMessage `json:"answer"`
}

// StartSession begins a student's attempt at an exam. It fixes the
// randomized orderings, records the start time and arms the countdown.
// Fails with ErrAlreadyActive when an IN_PROGRESS session exists for the
// pair and with ErrNotEnrolled when the student lacks access.
func (e *SessionEngine) StartSession(ctx context.Context, studentID int, examID uuid.UUID) (*model.SessionView, error) {
	enrolled, err := e.exams.IsEnrolled(ctx, studentID, examID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if !enrolled {
		return nil, ErrNotEnrolled
	}

	exam, err := e.exams.GetExam(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	existing, err := e.store.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing session: %w", err)
	}
	if existing != nil {
		if existing.Status == model.SessionStatusInProgress {
			return nil, ErrAlreadyActive
		}
		// The session is the system of record for a grade: a finished
		// attempt is never restarted.
		return nil, ErrInvalidStateTransition
	}

	sess := &model.ExamSession{
		ID:        uuid.New(),
		ExamID:    examID,
		StudentID: studentID,
		Status:    model.SessionStatusInProgress,
		StartedAt: time.Now(),
		Answers:   make(map[uuid.UUID]model.AnswerValue),
	}
	sess.QuestionOrder, sess.OptionOrders = SessionOrders(exam, sess.ID)

	if err := e.store.Create(ctx, sess); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Concurrent start won the unique (exam, student) constraint.
			return nil, ErrAlreadyActive
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	// Best-effort cache of the start time; the store row is the source
	// of truth on a cache miss.
	sid := sess.ID.String()
	if err := e.rdb.Set(ctx, config.CacheKey.SessionStartKey(sid), sess.StartedAt.Unix(), 0).Err(); err != nil {
		e.log.Warn().Err(err).Str("session_id", sid).Msg("Failed to cache session start")
	}
	_ = e.rdb.Set(ctx, config.CacheKey.StudentActiveSessionKey(examID.String(), studentID), sid, 0)

	as := &activeSession{sess: sess, exam: exam}
	e.armTimer(as)

	e.mu.Lock()
	e.active[sess.ID] = as
	e.mu.Unlock()

	e.log.Info().
		Str("session_id", sid).
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Bool("shuffled", exam.ShuffleQuestions).
		Msg("Session started")

	return e.buildView(sess, exam), nil
}

// SubmitAnswer records one answer in the ledger. Fails with
// ErrInvalidStateTransition unless the session is IN_PROGRESS and with
// ErrUnknownQuestion when the question id is not part of the exam; a
// rejected call has no side effect.
func (e *SessionEngine) SubmitAnswer(ctx context.Context, sessionID uuid.UUID, studentID int, questionID uuid.UUID, value model.AnswerValue) error {
	as, err := e.resolveActive(ctx, sessionID)
	if err != nil {
		return err
	}

	as.mu.Lock()
	if as.sess.StudentID != studentID {
		as.mu.Unlock()
		return ErrSessionNotFound
	}
	if as.sess.Status != model.SessionStatusInProgress {
		as.mu.Unlock()
		return ErrInvalidStateTransition
	}
	q, ok := as.exam.QuestionByID(questionID)
	if !ok {
		as.mu.Unlock()
		return ErrUnknownQuestion
	}
	if err := validateAnswerShape(q, value); err != nil {
		as.mu.Unlock()
		return err
	}
	as.sess.Answers[questionID] = value
	as.mu.Unlock()

	// Ledger and persistence queue live outside the session lock.
	encoded, _ := json.Marshal(value)
	sid := sessionID.String()
	if err := e.rdb.HSet(ctx, config.CacheKey.SessionAnswersKey(sid), questionID.String(), encoded).Err(); err != nil {
		e.log.Error().Err(err).Str("session_id", sid).Msg("Ledger autosave failed")
	}
	payload, _ := json.Marshal(answerQueuePayload{
		SessionID:  sid,
		QuestionID: questionID.String(),
		Answer:     encoded,
	})
	_ = e.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload).Err()

	return nil
}

// Submit performs the student-initiated IN_PROGRESS → SUBMITTED
// transition. A second explicit submit fails with
// ErrInvalidStateTransition.
func (e *SessionEngine) Submit(ctx context.Context, sessionID uuid.UUID, studentID int) (*model.SessionView, error) {
	return e.submit(ctx, sessionID, &studentID, false)
}

// TimeoutSubmit is the timer-driven twin of Submit. Reaching the
// deadline is not a failure: it grades whatever is in the ledger. Firing
// after an explicit submit already happened is a silent no-op.
func (e *SessionEngine) TimeoutSubmit(ctx context.Context, sessionID uuid.UUID) error {
	_, err := e.submit(ctx, sessionID, nil, true)
	return err
}

// submit is the single guarded transition both paths route through.
func (e *SessionEngine) submit(ctx context.Context, sessionID uuid.UUID, studentID *int, timeout bool) (*model.SessionView, error) {
	as, err := e.resolveActive(ctx, sessionID)
	if err != nil {
		if timeout && errors.Is(err, ErrInvalidStateTransition) {
			return nil, nil // already past IN_PROGRESS, nothing to do
		}
		return nil, err
	}

	as.mu.Lock()
	if studentID != nil && as.sess.StudentID != *studentID {
		as.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if as.sess.Status != model.SessionStatusInProgress {
		// The other racer already won the compare-and-set.
		as.mu.Unlock()
		if timeout {
			return nil, nil
		}
		return nil, ErrInvalidStateTransition
	}

	verdicts, score := AutoGrade(as.exam.Questions, as.sess.Answers)
	now := time.Now()
	as.sess.Status = model.SessionStatusSubmitted
	as.sess.FinishedAt = &now
	as.sess.FinalScore = &score
	if as.timer != nil {
		as.timer.Stop()
	}
	sess := *as.sess
	exam := as.exam
	as.mu.Unlock()

	wireVerdicts := make(map[string]bool, len(verdicts))
	for qid, ok := range verdicts {
		wireVerdicts[qid.String()] = ok
	}
	payload, _ := json.Marshal(resultPayload{
		SessionID:  sessionID.String(),
		ExamID:     sess.ExamID.String(),
		StudentID:  sess.StudentID,
		Score:      score,
		FinishedAt: now.Unix(),
		Verdicts:   wireVerdicts,
	})
	if err := e.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, payload).Err(); err != nil {
		e.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("Failed to queue result")
	}
	_ = e.rdb.Del(ctx, config.CacheKey.StudentActiveSessionKey(sess.ExamID.String(), sess.StudentID))

	e.log.Info().
		Str("session_id", sessionID.String()).
		Int("student_id", sess.StudentID).
		Int("score", score).
		Bool("timeout", timeout).
		Msg("Session submitted")

	return e.buildView(&sess, exam), nil
}

// View returns the student-facing projection of a session.
func (e *SessionEngine) View(ctx context.Context, sessionID uuid.UUID, studentID int) (*model.SessionView, error) {
	sess, exam, err := e.snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.StudentID != studentID {
		return nil, ErrSessionNotFound
	}
	return e.buildView(sess, exam), nil
}

// Paper returns the exam questions in the session's stored order with
// options permuted per the stored orders and correct answers stripped.
// Only an IN_PROGRESS session may download its paper.
func (e *SessionEngine) Paper(ctx context.Context, sessionID uuid.UUID, studentID int) (*model.ExamPaper, error) {
	sess, exam, err := e.snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.StudentID != studentID {
		return nil, ErrSessionNotFound
	}
	if sess.Status != model.SessionStatusInProgress {
		return nil, ErrInvalidStateTransition
	}

	order := sess.QuestionOrder
	if len(order) == 0 {
		order = make([]uuid.UUID, len(exam.Questions))
		for i := range exam.Questions {
			order[i] = exam.Questions[i].ID
		}
	}

	paper := &model.ExamPaper{
		ExamID:          exam.ID,
		SessionID:       sess.ID,
		Title:           exam.Title,
		DurationMinutes: exam.DurationMinutes,
		Questions:       make([]model.QuestionForStudent, 0, len(order)),
	}
	for _, qid := range order {
		q, ok := exam.QuestionByID(qid)
		if !ok {
			continue
		}
		paper.Questions = append(paper.Questions, model.QuestionForStudent{
			ID:       q.ID,
			Type:     q.Type,
			Text:     q.Text,
			Options:  OrderedOptions(q, sess.OptionOrders[qid]),
			Points:   q.Points,
			Required: q.Required,
		})
	}
	return paper, nil
}

// State returns the reload-recovery view: autosaved answers plus the
// remaining countdown.
func (e *SessionEngine) State(ctx context.Context, sessionID uuid.UUID, studentID int) (*model.SessionState, error) {
	sess, exam, err := e.snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.StudentID != studentID {
		return nil, ErrSessionNotFound
	}

	autosaved, err := e.rdb.HGetAll(ctx, config.CacheKey.SessionAnswersKey(sessionID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if len(autosaved) == 0 && len(sess.Answers) > 0 {
		// Ledger evicted; rebuild from the persisted answers.
		autosaved = make(map[string]string, len(sess.Answers))
		for qid, v := range sess.Answers {
			raw, _ := json.Marshal(v)
			autosaved[qid.String()] = string(raw)
		}
	}

	remaining := 0.0
	if sess.Status == model.SessionStatusInProgress {
		remaining = time.Until(sess.Deadline(exam)).Seconds()
		if remaining < 0 {
			remaining = 0
		}
	}

	return &model.SessionState{
		SessionID:        sess.ID,
		ExamID:           sess.ExamID,
		StudentID:        sess.StudentID,
		Status:           sess.Status,
		AutosavedAnswers: autosaved,
		RemainingSeconds: remaining,
	}, nil
}

// EvictFinished drops registry entries that left IN_PROGRESS longer than
// grace ago. The entry must outlive its submit long enough for racing
// callers to observe the terminal status in memory instead of rebuilding
// a stale IN_PROGRESS copy from a store the worker has not flushed yet.
func (e *SessionEngine) EvictFinished(grace time.Duration) int {
	cutoff := time.Now().Add(-grace)
	evicted := 0

	e.mu.Lock()
	defer e.mu.Unlock()
	for id, as := range e.active {
		as.mu.Lock()
		done := as.sess.Status != model.SessionStatusInProgress &&
			as.sess.FinishedAt != nil && as.sess.FinishedAt.Before(cutoff)
		as.mu.Unlock()
		if done {
			delete(e.active, id)
			evicted++
		}
	}
	return evicted
}

// Shutdown stops all armed countdown timers. In-progress sessions are
// recovered by the deadline sweeper on the next start.
func (e *SessionEngine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, as := range e.active {
		as.mu.Lock()
		if as.timer != nil {
			as.timer.Stop()
		}
		as.mu.Unlock()
	}
}

// resolveActive returns the owned in-memory session, rebuilding it from
// the store and ledger after a restart. Sessions past IN_PROGRESS that
// are no longer in the registry resolve to ErrInvalidStateTransition.
func (e *SessionEngine) resolveActive(ctx context.Context, sessionID uuid.UUID) (*activeSession, error) {
	e.mu.RLock()
	as, ok := e.active[sessionID]
	e.mu.RUnlock()
	if ok {
		return as, nil
	}

	sess, err := e.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.Status != model.SessionStatusInProgress {
		return nil, ErrInvalidStateTransition
	}

	exam, err := e.exams.GetExam(ctx, sess.ExamID)
	if err != nil {
		return nil, fmt.Errorf("load exam: %w", err)
	}

	if sess.Answers == nil {
		sess.Answers = make(map[uuid.UUID]model.AnswerValue)
	}
	// The live ledger supersedes persisted answers: the autosave worker
	// may lag behind.
	ledger, err := e.rdb.HGetAll(ctx, config.CacheKey.SessionAnswersKey(sessionID.String())).Result()
	if err == nil {
		for rawQID, rawVal := range ledger {
			qid, parseErr := uuid.Parse(rawQID)
			if parseErr != nil {
				continue
			}
			var v model.AnswerValue
			if json.Unmarshal([]byte(rawVal), &v) == nil {
				sess.Answers[qid] = v
			}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.active[sessionID]; ok {
		return existing, nil
	}
	as = &activeSession{sess: sess, exam: exam}
	e.armTimer(as)
	e.active[sessionID] = as

	e.log.Info().
		Str("session_id", sessionID.String()).
		Int("student_id", sess.StudentID).
		Msg("Session rehydrated into registry")
	return as, nil
}

// snapshot returns a read-only copy of a session, preferring the
// registry over the store.
func (e *SessionEngine) snapshot(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, *model.Exam, error) {
	e.mu.RLock()
	as, ok := e.active[sessionID]
	e.mu.RUnlock()
	if ok {
		as.mu.Lock()
		sess := *as.sess
		// The struct copy still shares the live Answers map; clone it so
		// readers never race a concurrent SubmitAnswer.
		sess.Answers = make(map[uuid.UUID]model.AnswerValue, len(as.sess.Answers))
		for qid, v := range as.sess.Answers {
			sess.Answers[qid] = v
		}
		exam := as.exam
		as.mu.Unlock()
		return &sess, exam, nil
	}

	sess, err := e.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("load session: %w", err)
	}
	exam, err := e.exams.GetExam(ctx, sess.ExamID)
	if err != nil {
		return nil, nil, fmt.Errorf("load exam: %w", err)
	}
	return sess, exam, nil
}

func (e *SessionEngine) armTimer(as *activeSession) {
	remaining := time.Until(as.sess.Deadline(as.exam))
	if remaining < 0 {
		remaining = 0
	}
	id := as.sess.ID
	as.timer = time.AfterFunc(remaining, func() {
		if err := e.TimeoutSubmit(context.Background(), id); err != nil {
			e.log.Error().Err(err).Str("session_id", id.String()).Msg("Timeout submit failed")
		}
	})
}

func (e *SessionEngine) buildView(sess *model.ExamSession, exam *model.Exam) *model.SessionView {
	view := &model.SessionView{
		ID:        sess.ID,
		ExamID:    sess.ExamID,
		Status:    sess.Status,
		StartedAt: sess.StartedAt,
		EndsAt:    sess.Deadline(exam),
	}
	if sess.Status == model.SessionStatusInProgress {
		remaining := time.Until(view.EndsAt).Seconds()
		if remaining < 0 {
			remaining = 0
		}
		view.RemainingSeconds = remaining
	}
	// The grade-release policy withholds a submitted score until
	// publication unless the exam releases immediately.
	switch sess.Status {
	case model.SessionStatusSubmitted:
		if exam.ReleaseGrades == model.GradeReleaseImmediately {
			view.Score = sess.FinalScore
		}
	case model.SessionStatusGraded:
		view.Score = sess.FinalScore
	}
	return view
}
