package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/model"
)

// FlagClassifier turns raw detected incidents into risk-scored
// FlaggedEvents. The risk level is looked up from the current policy
// snapshot at classification time, so a sensitivity change affects
// future events without rewriting already-emitted ones. No
// deduplication: every incident produces a distinct event.
type FlagClassifier struct {
	policy *PolicyService
	rdb    *redis.Client
	log    zerolog.Logger
}

// NewFlagClassifier creates a FlagClassifier.
func NewFlagClassifier(policy *PolicyService, rdb *redis.Client, log zerolog.Logger) *FlagClassifier {
	return &FlagClassifier{
		policy: policy,
		rdb:    rdb,
		log:    log.With().Str("component", "flag_classifier").Logger(),
	}
}

// flagPayload is the queue wire format consumed by the flag worker.
type flagPayload struct {
	StudentID   int    `json:"student_id"`
	FlagType    string `json:"flag_type"`
	RiskLevel   string `json:"risk_level"`
	EvidenceRef string `json:"evidence_ref"`
	Timestamp   int64  `json:"timestamp"`
}

// Classify records one incident. It never fails: an unconfigured flag
// type degrades to Medium risk instead of dropping the event, and queue
// errors are logged rather than returned. Integrity monitoring is
// best-effort audit, never a blocker on the student's session. Evidence
// capture is the caller's concern; only the opaque reference is stored.
func (c *FlagClassifier) Classify(ctx context.Context, studentID int, flagType model.FlagType, evidenceRef string) model.FlaggedEvent {
	risk, ok := c.policy.Current().RiskFor(flagType)
	if !ok {
		risk = model.RiskMedium
		c.log.Warn().
			Str("flag_type", string(flagType)).
			Msg("Flag type not in policy, defaulting to MEDIUM risk")
	}

	event := model.FlaggedEvent{
		StudentID:   studentID,
		Type:        flagType,
		RiskLevel:   risk,
		EvidenceRef: evidenceRef,
		RecordedAt:  time.Now(),
	}

	payload, _ := json.Marshal(flagPayload{
		StudentID:   event.StudentID,
		FlagType:    string(event.Type),
		RiskLevel:   string(event.RiskLevel),
		EvidenceRef: event.EvidenceRef,
		Timestamp:   event.RecordedAt.Unix(),
	})
	if err := c.rdb.RPush(ctx, config.WorkerKey.PersistFlagsQueue, payload).Err(); err != nil {
		c.log.Error().Err(err).
			Int("student_id", studentID).
			Str("flag_type", string(flagType)).
			Msg("Failed to queue flagged event")
	}

	return event
}
