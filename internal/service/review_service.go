package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/model"
)

// ReviewService is the instructor-side coordinator: it surfaces the
// per-question verdicts and the integrity flags of a submitted session,
// accepts manual verdicts for free-text items and publishes the final
// grade. Publication is the only place a score becomes durable and
// visible past the grade-release policy.
type ReviewService struct {
	sessions SessionStore
	exams    ExamStore
	verdicts VerdictStore
	flags    FlagStore
	policy   *PolicyService
	log      zerolog.Logger
}

// NewReviewService creates a ReviewService.
func NewReviewService(
	sessions SessionStore,
	exams ExamStore,
	verdicts VerdictStore,
	flags FlagStore,
	policy *PolicyService,
	log zerolog.Logger,
) *ReviewService {
	return &ReviewService{
		sessions: sessions,
		exams:    exams,
		verdicts: verdicts,
		flags:    flags,
		policy:   policy,
		log:      log.With().Str("component", "review_service").Logger(),
	}
}

// ReviewQuestion pairs a question with the student's answer and the
// effective verdict (manual supersedes automatic).
type ReviewQuestion struct {
	Question       model.Question     `json:"question"`
	Answer         *model.AnswerValue `json:"answer,omitempty"`
	Verdict        *model.Verdict     `json:"verdict,omitempty"`
	AwaitingManual bool               `json:"awaiting_manual"`
	// MissingRequired marks a required question the student never
	// answered. It is informational: the question is simply incorrect.
	MissingRequired bool `json:"missing_required"`
}

// SessionReview is the full instructor view of one attempt.
type SessionReview struct {
	Session model.ExamSession `json:"session"`
	Exam    model.Exam        `json:"exam"`

	Questions []ReviewQuestion `json:"questions"`

	// Flags holds the FlaggedEvents whose timestamp falls inside the
	// session window; events outside it belong to other activity.
	Flags             []model.FlaggedEvent `json:"flags"`
	HighRiskFlags     int                  `json:"high_risk_flags"`
	AutoFailThreshold int                  `json:"auto_fail_threshold"`
	// AutoFailAdvised is advisory only: the instructor confirms, the
	// engine never fails a session automatically.
	AutoFailAdvised bool `json:"auto_fail_advised"`

	GradingComplete  bool `json:"grading_complete"`
	ProvisionalScore int  `json:"provisional_score"`
	MaxScore         int  `json:"max_score"`
}

// Review assembles the review view for a session.
func (s *ReviewService) Review(ctx context.Context, sessionID uuid.UUID) (*SessionReview, error) {
	sess, exam, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	effective, err := s.effectiveVerdicts(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	windowEnd := time.Now()
	if sess.FinishedAt != nil {
		windowEnd = *sess.FinishedAt
	}
	flags, err := s.flags.ListByStudentWindow(ctx, sess.StudentID, sess.StartedAt, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}

	highRisk := 0
	for i := range flags {
		if flags[i].RiskLevel == model.RiskHigh {
			highRisk++
		}
	}

	review := &SessionReview{
		Session:           *sess,
		Exam:              *exam,
		Flags:             flags,
		HighRiskFlags:     highRisk,
		AutoFailThreshold: s.policy.Current().AutoFailThreshold,
		GradingComplete:   true,
		MaxScore:          exam.TotalPoints(),
	}
	review.AutoFailAdvised = review.AutoFailThreshold > 0 && highRisk >= review.AutoFailThreshold

	verdictMap := make(map[uuid.UUID]bool, len(effective))
	for i := range exam.Questions {
		q := exam.Questions[i]
		entry := ReviewQuestion{Question: q}
		if a, ok := sess.Answers[q.ID]; ok {
			answer := a
			entry.Answer = &answer
		} else if q.Required {
			entry.MissingRequired = true
		}
		if v, ok := effective[q.ID]; ok {
			verdict := v
			entry.Verdict = &verdict
			verdictMap[q.ID] = v.IsCorrect
		} else {
			entry.AwaitingManual = true
			review.GradingComplete = false
		}
		review.Questions = append(review.Questions, entry)
	}
	review.ProvisionalScore = ScoreFromVerdicts(exam.Questions, verdictMap)

	return review, nil
}

// SetManualVerdict records an instructor's binary correctness decision.
// Only SUBMITTED sessions accept verdicts: once GRADED, a published
// score cannot change without an explicit new grading action.
func (s *ReviewService) SetManualVerdict(ctx context.Context, sessionID, questionID uuid.UUID, isCorrect bool) error {
	sess, exam, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status != model.SessionStatusSubmitted {
		return ErrInvalidStateTransition
	}
	if _, ok := exam.QuestionByID(questionID); !ok {
		return ErrUnknownQuestion
	}

	return s.verdicts.UpsertManual(ctx, model.Verdict{
		SessionID:  sessionID,
		QuestionID: questionID,
		IsCorrect:  isCorrect,
		Source:     model.VerdictSourceManual,
		DecidedAt:  time.Now(),
	})
}

// PublishResult is returned once a grade becomes durable.
type PublishResult struct {
	SessionID uuid.UUID `json:"session_id"`
	Score     int       `json:"score"`
	GradedAt  time.Time `json:"graded_at"`
}

// PublishGrade performs the SUBMITTED → GRADED transition. It fails
// with ErrIncompleteGrading while any question lacks a verdict; the
// score is recomputed from the full verdict set at this moment, never
// read from a running total.
func (s *ReviewService) PublishGrade(ctx context.Context, sessionID uuid.UUID) (*PublishResult, error) {
	sess, exam, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.SessionStatusSubmitted {
		return nil, ErrInvalidStateTransition
	}

	effective, err := s.effectiveVerdicts(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	verdictMap := make(map[uuid.UUID]bool, len(effective))
	for i := range exam.Questions {
		q := exam.Questions[i]
		v, ok := effective[q.ID]
		if !ok {
			return nil, ErrIncompleteGrading
		}
		verdictMap[q.ID] = v.IsCorrect
	}

	score := ScoreFromVerdicts(exam.Questions, verdictMap)
	gradedAt := time.Now()

	ok, err := s.sessions.MarkGraded(ctx, sessionID, score, gradedAt)
	if err != nil {
		return nil, fmt.Errorf("mark graded: %w", err)
	}
	if !ok {
		// A concurrent publish won the guarded update.
		return nil, ErrInvalidStateTransition
	}

	s.log.Info().
		Str("session_id", sessionID.String()).
		Int("student_id", sess.StudentID).
		Int("score", score).
		Msg("Grade published")

	return &PublishResult{SessionID: sessionID, Score: score, GradedAt: gradedAt}, nil
}

// effectiveVerdicts merges the stored verdicts, letting a manual
// decision supersede the automatic one for the same question.
func (s *ReviewService) effectiveVerdicts(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]model.Verdict, error) {
	list, err := s.verdicts.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list verdicts: %w", err)
	}
	effective := make(map[uuid.UUID]model.Verdict, len(list))
	for _, v := range list {
		existing, ok := effective[v.QuestionID]
		if ok && existing.Source == model.VerdictSourceManual && v.Source == model.VerdictSourceAuto {
			continue
		}
		effective[v.QuestionID] = v
	}
	return effective, nil
}

func (s *ReviewService) load(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, *model.Exam, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("load session: %w", err)
	}
	exam, err := s.exams.GetExam(ctx, sess.ExamID)
	if err != nil {
		return nil, nil, fmt.Errorf("load exam: %w", err)
	}
	return sess, exam, nil
}
