package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/middleware"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/service"
	ws "github.com/invigilo/invigilo-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler handles the per-session exam stream: autosave, submit and
// integrity flags arrive over one socket while the student works.
type WSHandler struct {
	engine     *service.SessionEngine
	classifier *service.FlagClassifier
	log        zerolog.Logger
	upgrader   websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(engine *service.SessionEngine, classifier *service.FlagClassifier, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		engine:     engine,
		classifier: classifier,
		log:        log.With().Str("component", "ws_handler").Logger(),
		upgrader:   buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/student/sessions/:session_id/stream
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return
	}

	// Ownership and liveness check before committing to the upgrade.
	if _, err := h.engine.View(c.Request.Context(), sessionID, claims.StudentID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "no such session for this student"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	studentID := claims.StudentID
	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("session_id", sessionID.String()).
		Logger()

	wsLog.Info().Msg("Student connected")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		var envelope ws.RequestEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			ws.WriteError(conn, "malformed message")
			continue
		}

		switch envelope.Action {
		case ws.ActionAutosave:
			h.handleAutosave(conn, wsLog, sessionID, studentID, raw)
		case ws.ActionSubmit:
			h.handleSubmit(conn, wsLog, sessionID, studentID)
		case ws.ActionFlag:
			h.handleFlag(conn, studentID, raw)
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(envelope.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(envelope.Action))
		}
	}
}

func (h *WSHandler) handleAutosave(conn *websocket.Conn, wsLog zerolog.Logger, sessionID uuid.UUID, studentID int, raw []byte) {
	var msg ws.AutosaveRequest
	if err := json.Unmarshal(raw, &msg); err != nil {
		ws.WriteError(conn, "malformed autosave payload")
		return
	}

	questionID, err := uuid.Parse(msg.QID)
	if err != nil {
		ws.WriteError(conn, "invalid q_id format")
		return
	}

	var value model.AnswerValue
	if err := json.Unmarshal(msg.Answer, &value); err != nil {
		ws.WriteError(conn, "invalid answer value")
		return
	}

	if err := h.engine.SubmitAnswer(context.Background(), sessionID, studentID, questionID, value); err != nil {
		wsLog.Debug().Err(err).Str("q_id", msg.QID).Msg("Autosave rejected")
		ws.WriteError(conn, err.Error())
		return
	}

	ws.WriteTyped(conn, ws.AutosaveResponse{Event: ws.EventSuccess, Status: "saved"})
}

func (h *WSHandler) handleSubmit(conn *websocket.Conn, wsLog zerolog.Logger, sessionID uuid.UUID, studentID int) {
	view, err := h.engine.Submit(context.Background(), sessionID, studentID)
	if err != nil {
		wsLog.Warn().Err(err).Msg("Submit rejected")
		ws.WriteError(conn, err.Error())
		return
	}

	wsLog.Info().Msg("Exam submitted")
	ws.WriteTyped(conn, ws.SubmittedResponse{
		Event:  ws.EventSubmitted,
		Status: string(view.Status),
		Score:  view.Score,
	})
}

func (h *WSHandler) handleFlag(conn *websocket.Conn, studentID int, raw []byte) {
	var msg ws.FlagRequest
	if err := json.Unmarshal(raw, &msg); err != nil {
		ws.WriteError(conn, "malformed flag payload")
		return
	}
	if msg.FlagType == "" {
		ws.WriteError(conn, "flag_type is required")
		return
	}

	event := h.classifier.Classify(context.Background(), studentID, model.FlagType(msg.FlagType), msg.EvidenceRef)
	ws.WriteTyped(conn, ws.FlagRecordedResponse{
		Event:     ws.EventFlagRecorded,
		RiskLevel: string(event.RiskLevel),
	})
}
