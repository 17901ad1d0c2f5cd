package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hostpulse/backend/internal/db"
	"github.com/hostpulse/backend/internal/model"
	"github.com/hostpulse/backend/internal/service"
)

type WebhookHandler struct {
	svc *service.WebhookService
}

func NewWebhookHandler(svc *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{svc: svc}
}

// List godoc
// @Summary List webhook configs
// @Tags webhooks
// @Produce json
// @Success 200 {object} model.WebhookConfigListResponse
// @Router /api/v1/webhooks [get]
func (h *WebhookHandler) List(c *gin.Context) {
	configs, err := h.svc.ListWebhookConfigs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}
	c.JSON(http.StatusOK, model.WebhookConfigListResponse{Status: "ok", Data: configs})
}

// Get godoc
// @Summary Webhook config detail
// @Tags webhooks
// @Produce json
// @Param id path int true "Config ID"
// @Success 200 {object} model.WebhookConfigResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /api/v1/webhooks/{id} [get]
func (h *WebhookHandler) Get(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	cfg, err := h.svc.GetWebhookConfig(c.Request.Context(), id)
	if err != nil {
		if db.IsNoRows(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "webhook config not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}
	c.JSON(http.StatusOK, model.WebhookConfigResponse{Status: "ok", Data: cfg})
}

// Create godoc
// @Summary Create webhook config
// @Tags webhooks
// @Accept json
// @Produce json
// @Param request body model.WebhookConfigRequest true "Webhook config"
// @Success 200 {object} model.WebhookConfigMutationResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /api/v1/webhooks [post]
func (h *WebhookHandler) Create(c *gin.Context) {
	var req model.WebhookConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	id, err := h.svc.CreateWebhookConfig(c.Request.Context(), req)
	if err != nil {
		writeWebhookError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.WebhookConfigMutationResponse{Status: "ok", Message: "webhook config created", ID: id})
}

// Update godoc
// @Summary Update webhook config
// @Tags webhooks
// @Accept json
// @Produce json
// @Param id path int true "Config ID"
// @Param request body model.WebhookConfigRequest true "Webhook config"
// @Success 200 {object} model.WebhookConfigMutationResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /api/v1/webhooks/{id} [put]
func (h *WebhookHandler) Update(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req model.WebhookConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.svc.UpdateWebhookConfig(c.Request.Context(), id, req); err != nil {
		writeWebhookError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.WebhookConfigMutationResponse{Status: "ok", Message: "webhook config updated", ID: id})
}

// Delete godoc
// @Summary Delete webhook config
// @Tags webhooks
// @Produce json
// @Param id path int true "Config ID"
// @Success 200 {object} model.WebhookConfigMutationResponse
// @Router /api/v1/webhooks/{id} [delete]
func (h *WebhookHandler) Delete(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := h.svc.DeleteWebhookConfig(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}
	c.JSON(http.StatusOK, model.WebhookConfigMutationResponse{Status: "ok", Message: "webhook config deleted", ID: id})
}

func writeWebhookError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrInvalidInput) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
}
