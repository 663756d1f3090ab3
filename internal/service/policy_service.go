package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/model"
)

// PolicyService owns the proctoring policy snapshot. The snapshot is an
// explicitly injected dependency of the classifier, read on every
// classification; Update replaces it in one atomic store so readers
// never observe a half-updated policy.
type PolicyService struct {
	repo    PolicyRepo
	current atomic.Pointer[model.ProctoringPolicy]
	log     zerolog.Logger
}

// NewPolicyService creates a PolicyService seeded with the default policy.
// Call Load to replace the seed with the persisted record.
func NewPolicyService(repo PolicyRepo, log zerolog.Logger) *PolicyService {
	s := &PolicyService{
		repo: repo,
		log:  log.With().Str("component", "policy_service").Logger(),
	}
	s.current.Store(model.DefaultProctoringPolicy())
	return s
}

// Load reads the persisted policy. A missing record keeps the defaults
// and persists them so operators edit a concrete row.
func (s *PolicyService) Load(ctx context.Context) error {
	p, err := s.repo.Get(ctx)
	if errors.Is(err, pgx.ErrNoRows) {
		defaults := model.DefaultProctoringPolicy()
		defaults.UpdatedAt = time.Now()
		if saveErr := s.repo.Save(ctx, defaults); saveErr != nil {
			return fmt.Errorf("persist default policy: %w", saveErr)
		}
		s.current.Store(defaults)
		s.log.Info().Msg("No stored policy, defaults persisted")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}
	s.current.Store(p)
	s.log.Info().Int("auto_fail_threshold", p.AutoFailThreshold).Msg("Proctoring policy loaded")
	return nil
}

// Current returns the policy snapshot in force right now.
func (s *PolicyService) Current() *model.ProctoringPolicy {
	return s.current.Load()
}

// Update validates and replaces the policy. Future classifications see
// the new sensitivities; already-emitted events keep their risk levels.
func (s *PolicyService) Update(ctx context.Context, req *model.UpdatePolicyRequest) (*model.ProctoringPolicy, error) {
	sensitivities := make(map[model.FlagType]model.RiskLevel, len(req.Sensitivities))
	for rawType, rawLevel := range req.Sensitivities {
		level := model.RiskLevel(rawLevel)
		switch level {
		case model.RiskLow, model.RiskMedium, model.RiskHigh:
		default:
			return nil, fmt.Errorf("%w: unknown risk level %q for flag type %q", ErrInvalidPolicy, rawLevel, rawType)
		}
		sensitivities[model.FlagType(rawType)] = level
	}
	if *req.AutoFailThreshold < 0 {
		return nil, fmt.Errorf("%w: auto-fail threshold must not be negative", ErrInvalidPolicy)
	}

	next := &model.ProctoringPolicy{
		Sensitivities:     sensitivities,
		AutoFailThreshold: *req.AutoFailThreshold,
		UpdatedAt:         time.Now(),
	}

	if err := s.repo.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("save policy: %w", err)
	}
	s.current.Store(next)

	s.log.Info().
		Int("auto_fail_threshold", next.AutoFailThreshold).
		Int("flag_types", len(next.Sensitivities)).
		Msg("Proctoring policy replaced")
	return next, nil
}
