package model

import "time"

// ProctoringPolicy maps flag types to risk levels and carries the
// advisory auto-fail threshold. A single mutable record, replaced
// atomically so classifiers never observe a half-updated policy.
type ProctoringPolicy struct {
	Sensitivities     map[FlagType]RiskLevel `json:"sensitivities"`
	AutoFailThreshold int                    `json:"auto_fail_threshold"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// RiskFor returns the configured risk level for a flag type and whether
// the type is configured at all.
func (p *ProctoringPolicy) RiskFor(t FlagType) (RiskLevel, bool) {
	lvl, ok := p.Sensitivities[t]
	return lvl, ok
}

// DefaultProctoringPolicy returns the factory sensitivity mapping.
func DefaultProctoringPolicy() *ProctoringPolicy {
	return &ProctoringPolicy{
		Sensitivities: map[FlagType]RiskLevel{
			FlagLookingAway:     RiskLow,
			FlagPhoneDetected:   RiskHigh,
			FlagMultiplePeople:  RiskHigh,
			FlagUnknownPerson:   RiskHigh,
			FlagSuspiciousAudio: RiskMedium,
			FlagTabSwitch:       RiskHigh,
			FlagFullscreenExit:  RiskMedium,
		},
		AutoFailThreshold: 5,
	}
}

// UpdatePolicyRequest is the payload for replacing the proctoring policy.
type UpdatePolicyRequest struct {
	Sensitivities     map[string]string `json:"sensitivities" binding:"required"`
	AutoFailThreshold *int              `json:"auto_fail_threshold" binding:"required,min=0"`
}
