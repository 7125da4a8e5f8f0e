package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"receptionist/internal/model"
	"receptionist/internal/repository"
	"receptionist/internal/transport"
)

type ServiceConfigHandler struct {
	configs *repository.ServiceConfigRepository
}

func NewServiceConfigHandler(configs *repository.ServiceConfigRepository) *ServiceConfigHandler {
	return &ServiceConfigHandler{configs: configs}
}

func validService(service string) bool {
	switch transport.Kind(service) {
	case transport.KindSendGrid, transport.KindSMTP, transport.KindMailgun:
		return true
	}
	return false
}

// Upsert handles PUT /services/:service/config.
func (h *ServiceConfigHandler) Upsert(c *gin.Context) {
	service := c.Param("service")
	if !validService(service) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown service"})
		return
	}

	var req struct {
		FromEmail            string `json:"from_email" binding:"required"`
		FromName             string `json:"from_name"`
		IsActive             bool   `json:"is_active"`
		APIKey               string `json:"api_key"`
		Domain               string `json:"domain"`
		AuthorizedRecipients string `json:"authorized_recipients"`
		Host                 string `json:"host"`
		Port                 int    `json:"port"`
		Username             string `json:"username"`
		Password             string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	err := h.configs.Upsert(c.Request.Context(), &model.ServiceConfig{
		UserID:               userID,
		Service:              service,
		FromEmail:            req.FromEmail,
		FromName:             req.FromName,
		IsActive:             req.IsActive,
		APIKey:               req.APIKey,
		Domain:               req.Domain,
		AuthorizedRecipients: req.AuthorizedRecipients,
		Host:                 req.Host,
		Port:                 req.Port,
		Username:             req.Username,
		Password:             req.Password,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save service config"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

// Get handles GET /services/:service/config. Credentials are redacted.
func (h *ServiceConfigHandler) Get(c *gin.Context) {
	service := c.Param("service")
	if !validService(service) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown service"})
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	cfg, err := h.configs.GetConfigByUserId(c.Request.Context(), userID, service)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load service config"})
		return
	}
	if cfg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "service not configured"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"service":               cfg.Service,
		"from_email":            cfg.FromEmail,
		"from_name":             cfg.FromName,
		"is_active":             cfg.IsActive,
		"domain":                cfg.Domain,
		"authorized_recipients": cfg.AuthorizedRecipients,
		"host":                  cfg.Host,
		"port":                  cfg.Port,
		"username":              cfg.Username,
		"has_api_key":           cfg.APIKey != "",
	})
}
