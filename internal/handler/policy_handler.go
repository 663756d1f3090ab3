package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/response"
	"github.com/invigilo/invigilo-backend/internal/service"
	"github.com/invigilo/invigilo-backend/internal/validator"
)

// PolicyHandler manages the proctoring policy singleton.
type PolicyHandler struct {
	policy *service.PolicyService
	log    zerolog.Logger
}

// NewPolicyHandler creates a new PolicyHandler.
func NewPolicyHandler(policy *service.PolicyService, log zerolog.Logger) *PolicyHandler {
	return &PolicyHandler{
		policy: policy,
		log:    log.With().Str("component", "policy_handler").Logger(),
	}
}

// GetPolicy godoc
// GET /api/v1/instructor/policy
func (h *PolicyHandler) GetPolicy(c *gin.Context) {
	response.Success(c, http.StatusOK, h.policy.Current())
}

// UpdatePolicy godoc
// PUT /api/v1/instructor/policy
// Takes effect for flags classified after the update; already-recorded
// events keep the risk level assigned at classification time.
func (h *PolicyHandler) UpdatePolicy(c *gin.Context) {
	var req model.UpdatePolicyRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	updated, err := h.policy.Update(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidPolicy) {
			response.Fail(c, http.StatusUnprocessableEntity, response.ErrValidation)
			return
		}
		failFromService(c, err)
		return
	}
	response.Success(c, http.StatusOK, updated)
}
