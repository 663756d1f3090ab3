package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/response"
	"github.com/invigilo/invigilo-backend/internal/service"
)

// MonitorHandler serves the live integrity overview of a running exam.
type MonitorHandler struct {
	monitor *service.MonitorService
	log     zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(monitor *service.MonitorService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		monitor: monitor,
		log:     log.With().Str("component", "monitor_handler").Logger(),
	}
}

// GetIntegritySnapshot godoc
// GET /api/v1/instructor/exams/:exam_id/integrity
func (h *MonitorHandler) GetIntegritySnapshot(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	snapshot, err := h.monitor.GetIntegritySnapshot(c.Request.Context(), examID)
	if err != nil {
		failFromService(c, err)
		return
	}
	response.Success(c, http.StatusOK, snapshot)
}
