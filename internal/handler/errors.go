package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/invigilo/invigilo-backend/internal/response"
	"github.com/invigilo/invigilo-backend/internal/service"
)

// failFromService maps service sentinel errors onto the response
// envelope. Unknown errors become a 500 without leaking internals.
func failFromService(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
	case errors.Is(err, service.ErrExamNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrExamNotFound)
	case errors.Is(err, service.ErrNotEnrolled):
		response.Fail(c, http.StatusForbidden, response.ErrNotEnrolled)
	case errors.Is(err, service.ErrAlreadyActive):
		response.Fail(c, http.StatusConflict, response.ErrSessionAlreadyActive)
	case errors.Is(err, service.ErrInvalidStateTransition):
		response.Fail(c, http.StatusConflict, response.ErrInvalidStateTransition)
	case errors.Is(err, service.ErrUnknownQuestion):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrUnknownQuestion)
	case errors.Is(err, service.ErrMalformedAnswer):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrMalformedAnswer)
	case errors.Is(err, service.ErrIncompleteGrading):
		response.Fail(c, http.StatusConflict, response.ErrIncompleteGrading)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
