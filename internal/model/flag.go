package model

import "time"

// FlagType is the closed enumeration of detectable integrity incidents.
// Detection itself (vision/audio inference, browser events) happens in
// external collaborators; this engine only consumes the type.
type FlagType string

const (
	FlagLookingAway     FlagType = "LOOKING_AWAY"
	FlagPhoneDetected   FlagType = "PHONE_DETECTED"
	FlagMultiplePeople  FlagType = "MULTIPLE_PEOPLE"
	FlagUnknownPerson   FlagType = "UNKNOWN_PERSON"
	FlagSuspiciousAudio FlagType = "SUSPICIOUS_AUDIO"
	FlagTabSwitch       FlagType = "TAB_SWITCH"
	FlagFullscreenExit  FlagType = "FULLSCREEN_EXIT"
)

// RiskLevel is the severity assigned to a flag by the policy in force at
// classification time.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// FlaggedEvent records one detected incident. Immutable after creation
// and retained independently of session status for audit. The ID is
// assigned when the flag worker persists the row; an ingestion ack
// carries the event without it.
type FlaggedEvent struct {
	ID          int64     `json:"id,omitempty"`
	StudentID   int       `json:"student_id"`
	Type        FlagType  `json:"type"`
	RiskLevel   RiskLevel `json:"risk_level"`
	EvidenceRef string    `json:"evidence_ref,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// RecordFlagRequest is the payload for reporting a detected incident.
// EvidenceRef is an opaque snapshot reference, never raw media bytes.
type RecordFlagRequest struct {
	FlagType    string `json:"flag_type" binding:"required,max=40"`
	EvidenceRef string `json:"evidence_ref" binding:"omitempty,max=512"`
}
