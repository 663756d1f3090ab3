package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invigilo/invigilo-backend/internal/model"
)

// PolicyRepository persists the proctoring policy as one mutable record.
type PolicyRepository struct {
	pool *pgxpool.Pool
}

// NewPolicyRepository creates a new PolicyRepository.
func NewPolicyRepository(pool *pgxpool.Pool) *PolicyRepository {
	return &PolicyRepository{pool: pool}
}

// Get retrieves the current policy. Returns pgx.ErrNoRows when no
// policy has been persisted yet.
func (r *PolicyRepository) Get(ctx context.Context) (*model.ProctoringPolicy, error) {
	p := &model.ProctoringPolicy{}
	var sensitivities []byte
	err := r.pool.QueryRow(ctx,
		`SELECT sensitivities, auto_fail_threshold, updated_at
		 FROM proctoring_policy
		 WHERE id = 1`,
	).Scan(&sensitivities, &p.AutoFailThreshold, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sensitivities, &p.Sensitivities); err != nil {
		return nil, fmt.Errorf("decode sensitivities: %w", err)
	}
	return p, nil
}

// Save replaces the policy record in one statement so readers never see
// a partially applied mapping.
func (r *PolicyRepository) Save(ctx context.Context, p *model.ProctoringPolicy) error {
	sensitivities, err := json.Marshal(p.Sensitivities)
	if err != nil {
		return fmt.Errorf("encode sensitivities: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO proctoring_policy (id, sensitivities, auto_fail_threshold, updated_at)
		 VALUES (1, $1, $2, $3)
		 ON CONFLICT (id) DO UPDATE
		 SET sensitivities = EXCLUDED.sensitivities,
		     auto_fail_threshold = EXCLUDED.auto_fail_threshold,
		     updated_at = EXCLUDED.updated_at`,
		sensitivities, p.AutoFailThreshold, p.UpdatedAt,
	)
	return err
}
