package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hostpulse/backend/internal/model"
	"github.com/hostpulse/backend/internal/service"
)

type IncidentHandler struct {
	svc *service.IncidentService
}

func NewIncidentHandler(svc *service.IncidentService) *IncidentHandler {
	return &IncidentHandler{svc: svc}
}

// List godoc
// @Summary List incidents
// @Tags incidents
// @Produce json
// @Success 200 {object} model.IncidentListResponse
// @Router /api/v1/incidents [get]
func (h *IncidentHandler) List(c *gin.Context) {
	incidents, err := h.svc.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}

	c.JSON(http.StatusOK, model.IncidentListResponse{Incidents: incidents})
}

// Get godoc
// @Summary Incident detail with similar incidents
// @Tags incidents
// @Produce json
// @Param id path string true "Incident ID"
// @Success 200 {object} model.IncidentDetailEnvelope
// @Failure 404 {object} model.ErrorResponse
// @Router /api/v1/incidents/{id} [get]
func (h *IncidentHandler) Get(c *gin.Context) {
	envelope, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeIncidentError(c, err)
		return
	}

	c.JSON(http.StatusOK, envelope)
}

// Update godoc
// @Summary Advance incident lifecycle
// @Description Transitions are forward-only: open -> investigating -> resolved -> closed.
// @Tags incidents
// @Accept json
// @Produce json
// @Param id path string true "Incident ID"
// @Param request body model.UpdateIncidentRequest true "Target status"
// @Success 200 {object} model.IncidentUpdateResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /api/v1/incidents/{id} [put]
func (h *IncidentHandler) Update(c *gin.Context) {
	var req model.UpdateIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	actor := c.GetHeader("X-Operator")
	if actor == "" {
		actor = "operator"
	}

	updated, err := h.svc.Update(c.Request.Context(), c.Param("id"), actor, req)
	if err != nil {
		writeIncidentError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.IncidentUpdateResponse{
		Status:     "ok",
		Message:    "incident updated",
		IncidentID: updated.IncidentID,
	})
}

func writeIncidentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
	}
}
