package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/middleware"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/response"
	"github.com/invigilo/invigilo-backend/internal/service"
	"github.com/invigilo/invigilo-backend/internal/validator"
)

// SessionHandler exposes the student-facing session lifecycle.
type SessionHandler struct {
	engine *service.SessionEngine
	log    zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(engine *service.SessionEngine, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		engine: engine,
		log:    log.With().Str("component", "session_handler").Logger(),
	}
}

// StartSession godoc
// POST /api/v1/student/exams/:exam_id/session
func (h *SessionHandler) StartSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	view, err := h.engine.StartSession(c.Request.Context(), claims.StudentID, examID)
	if err != nil {
		failFromService(c, err)
		return
	}
	response.Success(c, http.StatusCreated, view)
}

// GetSession godoc
// GET /api/v1/student/sessions/:session_id
func (h *SessionHandler) GetSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	view, err := h.engine.View(c.Request.Context(), sessionID, claims.StudentID)
	if err != nil {
		failFromService(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// GetPaper godoc
// GET /api/v1/student/sessions/:session_id/paper
// Returns the questions in this session's fixed order, options permuted,
// correct answers stripped.
func (h *SessionHandler) GetPaper(c *gin.Context) {
	claims := middleware.GetClaims(c)
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	paper, err := h.engine.Paper(c.Request.Context(), sessionID, claims.StudentID)
	if err != nil {
		failFromService(c, err)
		return
	}
	response.Success(c, http.StatusOK, paper)
}

// GetState godoc
// GET /api/v1/student/sessions/:session_id/state
// Restores the autosaved answers and the countdown after a page reload.
func (h *SessionHandler) GetState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	state, err := h.engine.State(c.Request.Context(), sessionID, claims.StudentID)
	if err != nil {
		failFromService(c, err)
		return
	}
	response.Success(c, http.StatusOK, state)
}

// SubmitAnswer godoc
// PUT /api/v1/student/sessions/:session_id/answers
// REST fallback for the WebSocket autosave path.
func (h *SessionHandler) SubmitAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.engine.SubmitAnswer(c.Request.Context(), sessionID, claims.StudentID, questionID, req.Value); err != nil {
		failFromService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// Submit godoc
// POST /api/v1/student/sessions/:session_id/submit
func (h *SessionHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	view, err := h.engine.Submit(c.Request.Context(), sessionID, claims.StudentID)
	if err != nil {
		failFromService(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}
