package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMonitorStore struct {
	totals   map[int]int64
	highs    map[int]int64
	highsErr error
}

func (f *fakeMonitorStore) FlagCountsByExam(context.Context, uuid.UUID) (map[int]int64, error) {
	return f.totals, nil
}

func (f *fakeMonitorStore) HighRiskCountsByExam(context.Context, uuid.UUID) (map[int]int64, error) {
	return f.highs, f.highsErr
}

func newTestMonitor(t *testing.T, store MonitorStore) *MonitorService {
	t.Helper()
	policy := NewPolicyService(&fakePolicyRepo{}, testLogger())
	require.NoError(t, policy.Load(context.Background()))
	return NewMonitorService(store, policy)
}

func TestIntegritySnapshot(t *testing.T) {
	monitor := newTestMonitor(t, &fakeMonitorStore{
		totals: map[int]int64{1: 3, 2: 8, 3: 1},
		highs:  map[int]int64{1: 1, 2: 6},
	})

	snap, err := monitor.GetIntegritySnapshot(context.Background(), uuid.New())
	require.NoError(t, err)

	assert.EqualValues(t, 12, snap.TotalFlags)
	assert.Equal(t, 5, snap.AutoFailThreshold)
	// Only student 2 reached the advisory threshold.
	assert.Equal(t, []int{2}, snap.OverThreshold)
}

func TestIntegritySnapshotHighRiskBestEffort(t *testing.T) {
	monitor := newTestMonitor(t, &fakeMonitorStore{
		totals:   map[int]int64{1: 2},
		highsErr: errors.New("aggregate timeout"),
	})

	snap, err := monitor.GetIntegritySnapshot(context.Background(), uuid.New())
	require.NoError(t, err)

	assert.EqualValues(t, 2, snap.TotalFlags)
	assert.Empty(t, snap.HighRiskCounts)
	assert.Empty(t, snap.OverThreshold)
}
