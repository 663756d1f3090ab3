package websocket

import "encoding/json"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionSubmit   Action = "submit"
	ActionFlag     Action = "flag"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AutosaveRequest is sent by the client to save a single answer. The
// answer value is a scalar for single-selection questions and an array
// for multi-choice ones.
type AutosaveRequest struct {
	Action Action          `json:"action"`
	QID    string          `json:"q_id"`
	Answer json.RawMessage `json:"ans"`
}

// FlagRequest is sent by the proctoring client to report a detector event.
type FlagRequest struct {
	Action      Action `json:"action"`
	FlagType    string `json:"flag_type"`
	EvidenceRef string `json:"evidence_ref"`
}

// SubmitRequest is sent by the client to finish the exam.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError        Event = "error"
	EventSuccess      Event = "success"
	EventSubmitted    Event = "submitted"
	EventFlagRecorded Event = "flag_recorded"
	EventPong         Event = "pong"
)

type AutosaveResponse struct {
	Event  Event  `json:"event"`
	Status string `json:"status"`
}

// SubmittedResponse confirms the session transition. Score is present
// only when the exam releases results immediately.
type SubmittedResponse struct {
	Event  Event  `json:"event"`
	Status string `json:"status"`
	Score  *int   `json:"score,omitempty"`
}

type FlagRecordedResponse struct {
	Event     Event  `json:"event"`
	RiskLevel string `json:"risk_level"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
