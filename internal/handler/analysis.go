package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hostpulse/backend/internal/model"
	"github.com/hostpulse/backend/internal/service"
)

type AnalysisHandler struct {
	svc *service.IngestService
}

func NewAnalysisHandler(svc *service.IngestService) *AnalysisHandler {
	return &AnalysisHandler{svc: svc}
}

// Submit godoc
// @Summary Submit an analysis record
// @Description Payload is encrypted at rest. High severity submissions open or join an incident.
// @Tags analysis
// @Accept json
// @Produce json
// @Param request body model.SubmitAnalysisRequest true "Analysis payload"
// @Success 200 {object} model.SubmitAnalysisResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /api/v1/analysis [post]
func (h *AnalysisHandler) Submit(c *gin.Context) {
	principal := GetAgentPrincipal(c)
	if principal == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req model.SubmitAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	resp, err := h.svc.Submit(c.Request.Context(), principal.ClientID, req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Get godoc
// @Summary Get a stored analysis
// @Description Returns the analysis record with its payload decrypted.
// @Tags analysis
// @Produce json
// @Param id path string true "Analysis ID"
// @Success 200 {object} model.Analysis
// @Failure 404 {object} model.ErrorResponse
// @Router /api/v1/analysis/{id} [get]
func (h *AnalysisHandler) Get(c *gin.Context) {
	analysis, err := h.svc.GetAnalysis(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "analysis not found"})
		case errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		}
		return
	}

	c.JSON(http.StatusOK, analysis)
}
