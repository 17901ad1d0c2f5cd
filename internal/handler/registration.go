package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hostpulse/backend/internal/model"
	"github.com/hostpulse/backend/internal/service"
)

type RegistrationHandler struct {
	svc *service.RegistryService
}

func NewRegistrationHandler(svc *service.RegistryService) *RegistrationHandler {
	return &RegistrationHandler{svc: svc}
}

// Register godoc
// @Summary Register a monitoring client
// @Description Upserts the client record and issues a bearer token for subsequent calls.
// @Tags registry
// @Accept json
// @Produce json
// @Param request body model.RegisterRequest true "Client identity"
// @Success 200 {object} model.RegisterResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/register [post]
func (h *RegistrationHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	resp, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		writeRegistryError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Heartbeat godoc
// @Summary Client liveness ping
// @Tags registry
// @Produce json
// @Success 200 {object} model.HeartbeatResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /api/v1/heartbeat [post]
func (h *RegistrationHandler) Heartbeat(c *gin.Context) {
	principal := GetAgentPrincipal(c)
	if principal == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.svc.Heartbeat(c.Request.Context(), principal.ClientID); err != nil {
		writeRegistryError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.HeartbeatResponse{
		Status:   "ok",
		ClientID: principal.ClientID,
	})
}

func writeRegistryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
	}
}
