package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/response"
	"github.com/invigilo/invigilo-backend/internal/service"
	"github.com/invigilo/invigilo-backend/internal/validator"
)

// ReviewHandler exposes the instructor review and grading surface.
type ReviewHandler struct {
	reviews *service.ReviewService
	log     zerolog.Logger
}

// NewReviewHandler creates a new ReviewHandler.
func NewReviewHandler(reviews *service.ReviewService, log zerolog.Logger) *ReviewHandler {
	return &ReviewHandler{
		reviews: reviews,
		log:     log.With().Str("component", "review_handler").Logger(),
	}
}

// ReviewSession godoc
// GET /api/v1/instructor/sessions/:session_id/review
func (h *ReviewHandler) ReviewSession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	review, err := h.reviews.Review(c.Request.Context(), sessionID)
	if err != nil {
		failFromService(c, err)
		return
	}
	response.Success(c, http.StatusOK, review)
}

// SetManualVerdict godoc
// PUT /api/v1/instructor/sessions/:session_id/verdicts
func (h *ReviewHandler) SetManualVerdict(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.ManualVerdictRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.reviews.SetManualVerdict(c.Request.Context(), sessionID, questionID, *req.IsCorrect); err != nil {
		failFromService(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "recorded"})
}

// PublishGrade godoc
// POST /api/v1/instructor/sessions/:session_id/publish
func (h *ReviewHandler) PublishGrade(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.reviews.PublishGrade(c.Request.Context(), sessionID)
	if err != nil {
		failFromService(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}
