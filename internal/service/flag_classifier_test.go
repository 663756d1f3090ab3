package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/model"
)

func newTestClassifier(t *testing.T) (*FlagClassifier, *PolicyService) {
	t.Helper()
	policy := NewPolicyService(&fakePolicyRepo{}, testLogger())
	require.NoError(t, policy.Load(context.Background()))
	return NewFlagClassifier(policy, testRedis(t), testLogger()), policy
}

func TestClassifyUsesPolicySensitivity(t *testing.T) {
	classifier, _ := newTestClassifier(t)

	event := classifier.Classify(context.Background(), testStudentID, model.FlagPhoneDetected, "snap-1")
	assert.Equal(t, model.RiskHigh, event.RiskLevel)
	assert.Equal(t, model.FlagPhoneDetected, event.Type)
	assert.Equal(t, "snap-1", event.EvidenceRef)

	event = classifier.Classify(context.Background(), testStudentID, model.FlagLookingAway, "")
	assert.Equal(t, model.RiskLow, event.RiskLevel)
}

func TestClassifyUnknownTypeDefaultsToMedium(t *testing.T) {
	classifier, _ := newTestClassifier(t)

	event := classifier.Classify(context.Background(), testStudentID, model.FlagType("NEW_DETECTOR_SIGNAL"), "")
	assert.Equal(t, model.RiskMedium, event.RiskLevel, "unconfigured types must degrade, not drop")
}

func TestClassifyEnqueuesPayload(t *testing.T) {
	classifier, _ := newTestClassifier(t)
	ctx := context.Background()

	classifier.Classify(ctx, testStudentID, model.FlagTabSwitch, "evidence-ref")

	raw, err := classifier.rdb.LPop(ctx, config.WorkerKey.PersistFlagsQueue).Result()
	require.NoError(t, err)

	var payload flagPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	assert.Equal(t, testStudentID, payload.StudentID)
	assert.Equal(t, string(model.FlagTabSwitch), payload.FlagType)
	assert.Equal(t, string(model.RiskHigh), payload.RiskLevel)
	assert.Equal(t, "evidence-ref", payload.EvidenceRef)
	assert.NotZero(t, payload.Timestamp)
}

func TestPolicyChangeAffectsOnlyFutureEvents(t *testing.T) {
	classifier, policy := newTestClassifier(t)
	ctx := context.Background()

	before := classifier.Classify(ctx, testStudentID, model.FlagLookingAway, "")
	assert.Equal(t, model.RiskLow, before.RiskLevel)

	threshold := 3
	_, err := policy.Update(ctx, &model.UpdatePolicyRequest{
		Sensitivities:     map[string]string{string(model.FlagLookingAway): string(model.RiskHigh)},
		AutoFailThreshold: &threshold,
	})
	require.NoError(t, err)

	after := classifier.Classify(ctx, testStudentID, model.FlagLookingAway, "")
	assert.Equal(t, model.RiskHigh, after.RiskLevel)

	// The event classified before the update keeps its original level.
	assert.Equal(t, model.RiskLow, before.RiskLevel)
}

func TestPolicyLoadPersistsDefaultsOnEmptyStore(t *testing.T) {
	repo := &fakePolicyRepo{}
	policy := NewPolicyService(repo, testLogger())
	require.NoError(t, policy.Load(context.Background()))

	stored, err := repo.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.DefaultProctoringPolicy().Sensitivities, stored.Sensitivities)
	assert.Equal(t, 5, stored.AutoFailThreshold)
}

func TestPolicyUpdateRejectsUnknownRiskLevel(t *testing.T) {
	policy := NewPolicyService(&fakePolicyRepo{}, testLogger())
	threshold := 5

	_, err := policy.Update(context.Background(), &model.UpdatePolicyRequest{
		Sensitivities:     map[string]string{string(model.FlagTabSwitch): "EXTREME"},
		AutoFailThreshold: &threshold,
	})
	assert.ErrorIs(t, err, ErrInvalidPolicy)

	// The snapshot in force is untouched by the rejected update.
	lvl, ok := policy.Current().RiskFor(model.FlagTabSwitch)
	assert.True(t, ok)
	assert.Equal(t, model.RiskHigh, lvl)
}

func TestPolicyUpdateRejectsNegativeThreshold(t *testing.T) {
	policy := NewPolicyService(&fakePolicyRepo{}, testLogger())
	threshold := -1

	_, err := policy.Update(context.Background(), &model.UpdatePolicyRequest{
		Sensitivities:     map[string]string{},
		AutoFailThreshold: &threshold,
	})
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestFlagAfterSubmitDoesNotTouchSession(t *testing.T) {
	engine, _, _, exam := newTestEngine(t)
	classifier, _ := newTestClassifier(t)
	ctx := context.Background()

	view, err := engine.StartSession(ctx, testStudentID, exam.ID)
	require.NoError(t, err)
	submitted, err := engine.Submit(ctx, view.ID, testStudentID)
	require.NoError(t, err)

	classifier.Classify(ctx, testStudentID, model.FlagMultiplePeople, "")

	after, err := engine.View(ctx, view.ID, testStudentID)
	require.NoError(t, err)
	assert.Equal(t, submitted.Status, after.Status)
	assert.Equal(t, submitted.Score, after.Score, "flags never alter a computed score")
}
