package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/clinsim/simlab-api/pkg/errors"
	"github.com/clinsim/simlab-api/pkg/config"
	"github.com/clinsim/simlab-api/pkg/mail"
	"github.com/clinsim/simlab-api/pkg/response"
)

// MailSettingsRequest updates the SMTP settings at runtime.
type MailSettingsRequest struct {
	Host     string `json:"host" binding:"required"`
	Port     int    `json:"port" binding:"required"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from" binding:"required,email"`
}

// ConfigurationHandler exposes runtime configuration endpoints.
type ConfigurationHandler struct {
	mailer *mail.Mailer
}

// NewConfigurationHandler constructs ConfigurationHandler.
func NewConfigurationHandler(mailer *mail.Mailer) *ConfigurationHandler {
	return &ConfigurationHandler{mailer: mailer}
}

// GetMailSettings godoc
// @Summary Get the current SMTP settings
// @Tags Configuration
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /configuration/mail [get]
func (h *ConfigurationHandler) GetMailSettings(c *gin.Context) {
	settings := h.mailer.Settings()
	settings.Password = "" // never echo credentials
	response.OK(c, "mail settings retrieved", settings)
}

// UpdateMailSettings godoc
// @Summary Replace the SMTP settings without a restart
// @Tags Configuration
// @Accept json
// @Produce json
// @Param payload body MailSettingsRequest true "SMTP settings"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /configuration/mail [put]
func (h *ConfigurationHandler) UpdateMailSettings(c *gin.Context) {
	var req MailSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	cfg := config.MailConfig{
		Host:     req.Host,
		Port:     req.Port,
		Username: req.Username,
		Password: req.Password,
		From:     req.From,
	}
	if err := h.mailer.Reconfigure(cfg); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply mail settings"))
		return
	}

	applied := cfg
	applied.Password = ""
	response.OK(c, "mail settings applied", applied)
}
