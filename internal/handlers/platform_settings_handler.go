package handlers

import (
	"net/http"

	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/internal/services"
	"github.com/gin-gonic/gin"
)

// PlatformSettingsHandler handles platform settings requests
type PlatformSettingsHandler struct {
	settingsService services.PlatformSettingsService
}

// NewPlatformSettingsHandler creates a new PlatformSettingsHandler
func NewPlatformSettingsHandler(settingsService services.PlatformSettingsService) *PlatformSettingsHandler {
	return &PlatformSettingsHandler{
		settingsService: settingsService,
	}
}

// GetLimits handles GET /public/platform-settings/limits
func (h *PlatformSettingsHandler) GetLimits(c *gin.Context) {
	limits, err := h.settingsService.Limits(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, limits)
}

// GetSettings handles GET /admin/platform-settings
func (h *PlatformSettingsHandler) GetSettings(c *gin.Context) {
	settings, err := h.settingsService.Current(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateSettings handles PUT /admin/platform-settings
func (h *PlatformSettingsHandler) UpdateSettings(c *gin.Context) {
	actor, ok := principal(c)
	if !ok {
		return
	}
	var settings models.PlatformSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		writeBindingError(c, err)
		return
	}

	updated, err := h.settingsService.Update(c.Request.Context(), actor, settings)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
