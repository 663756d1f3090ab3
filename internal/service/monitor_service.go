package service

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MonitorStore aggregates flag counts over the sessions of one exam.
type MonitorStore interface {
	// FlagCountsByExam returns, per student with a session for the exam,
	// the number of flags recorded inside that student's session window.
	FlagCountsByExam(ctx context.Context, examID uuid.UUID) (map[int]int64, error)
	// HighRiskCountsByExam is the same restricted to High-risk flags.
	HighRiskCountsByExam(ctx context.Context, examID uuid.UUID) (map[int]int64, error)
}

// MonitorService builds the live integrity overview for an exam.
type MonitorService struct {
	monitorStore MonitorStore
	policy       *PolicyService
}

// NewMonitorService creates a MonitorService.
func NewMonitorService(monitorStore MonitorStore, policy *PolicyService) *MonitorService {
	return &MonitorService{monitorStore: monitorStore, policy: policy}
}

// IntegritySnapshot holds per-student flag totals for one exam.
type IntegritySnapshot struct {
	FlagCounts     map[int]int64 `json:"flag_counts"`      // student_id → flags in window
	HighRiskCounts map[int]int64 `json:"high_risk_counts"` // student_id → High-risk flags
	TotalFlags     int64         `json:"total_flags"`

	AutoFailThreshold int `json:"auto_fail_threshold"`
	// OverThreshold lists students whose High-risk count reached the
	// advisory threshold. Review confirmation stays with the instructor.
	OverThreshold []int `json:"over_threshold"`
}

// GetIntegritySnapshot fires the two aggregate queries concurrently and
// merges them with the advisory threshold.
func (s *MonitorService) GetIntegritySnapshot(ctx context.Context, examID uuid.UUID) (*IntegritySnapshot, error) {
	var (
		totals    map[int]int64
		highs     map[int]int64
		totalsErr error
		highsErr  error
		wg        sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		totals, totalsErr = s.monitorStore.FlagCountsByExam(ctx, examID)
	}()
	go func() {
		defer wg.Done()
		highs, highsErr = s.monitorStore.HighRiskCountsByExam(ctx, examID)
	}()
	wg.Wait()

	if totalsErr != nil {
		return nil, totalsErr
	}
	// High-risk counts are best-effort: the overview stays useful
	// without them.
	if highsErr != nil {
		highs = nil
	}

	snapshot := &IntegritySnapshot{
		FlagCounts:        totals,
		HighRiskCounts:    make(map[int]int64),
		AutoFailThreshold: s.policy.Current().AutoFailThreshold,
	}
	if snapshot.FlagCounts == nil {
		snapshot.FlagCounts = make(map[int]int64)
	}
	for _, n := range snapshot.FlagCounts {
		snapshot.TotalFlags += n
	}
	if highs != nil {
		snapshot.HighRiskCounts = highs
		for studentID, n := range highs {
			if snapshot.AutoFailThreshold > 0 && n >= int64(snapshot.AutoFailThreshold) {
				snapshot.OverThreshold = append(snapshot.OverThreshold, studentID)
			}
		}
		sort.Ints(snapshot.OverThreshold)
	}
	return snapshot, nil
}
