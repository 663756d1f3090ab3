package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/response"
	"github.com/invigilo/invigilo-backend/internal/service"
	"github.com/invigilo/invigilo-backend/internal/validator"
)

// FlagHandler ingests integrity incidents from proctoring detectors.
type FlagHandler struct {
	classifier *service.FlagClassifier
	log        zerolog.Logger
}

// NewFlagHandler creates a new FlagHandler.
func NewFlagHandler(classifier *service.FlagClassifier, log zerolog.Logger) *FlagHandler {
	return &FlagHandler{
		classifier: classifier,
		log:        log.With().Str("component", "flag_handler").Logger(),
	}
}

// RecordFlag godoc
// POST /api/v1/proctor/students/:student_id/flags
// Classification never fails: an unknown flag type is accepted at
// MEDIUM risk so detector upgrades cannot drop events.
func (h *FlagHandler) RecordFlag(c *gin.Context) {
	studentID, err := strconv.Atoi(c.Param("student_id"))
	if err != nil || studentID <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.RecordFlagRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	event := h.classifier.Classify(c.Request.Context(), studentID, model.FlagType(req.FlagType), req.EvidenceRef)
	response.Success(c, http.StatusAccepted, event)
}
