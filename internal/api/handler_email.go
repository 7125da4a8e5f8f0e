package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"receptionist/internal/dispatch"
	"receptionist/internal/process"
	"receptionist/internal/repository"
	"receptionist/internal/transport"
)

type EmailHandler struct {
	orchestrator *process.Orchestrator
	dispatcher   *dispatch.Dispatcher
	emails       *repository.EmailRepository
}

func NewEmailHandler(
	orchestrator *process.Orchestrator,
	dispatcher *dispatch.Dispatcher,
	emails *repository.EmailRepository,
) *EmailHandler {
	return &EmailHandler{
		orchestrator: orchestrator,
		dispatcher:   dispatcher,
		emails:       emails,
	}
}

// Ingest handles POST /email/incoming: webhook-style delivery of one
// inbound email. The reply itself happens asynchronously via the outbox.
func (h *EmailHandler) Ingest(c *gin.Context) {
	var req struct {
		From      string            `json:"from" binding:"required"`
		To        string            `json:"to"`
		Subject   string            `json:"subject"`
		Body      string            `json:"body"`
		MessageID string            `json:"message_id"`
		Headers   map[string]string `json:"headers"`
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

	emailID, accepted, err := h.orchestrator.ProcessIncoming(c.Request.Context(), userID, process.IncomingEmail{
		From:      req.From,
		To:        req.To,
		Subject:   req.Subject,
		Body:      req.Body,
		MessageID: req.MessageID,
		Headers:   req.Headers,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to accept email"})
		return
	}
	if !accepted {
		c.JSON(http.StatusOK, gin.H{"status": "skipped"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"email_id": emailID,
		"status":   "queued",
	})
}

// TestSend handles POST /email/test: a direct synchronous dispatch used to
// verify provider configuration.
func (h *EmailHandler) TestSend(c *gin.Context) {
	var req struct {
		To      string `json:"to" binding:"required"`
		Subject string `json:"subject" binding:"required"`
		Body    string `json:"body"`
		Service string `json:"service"`
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

	result := h.dispatcher.SendEmail(c.Request.Context(), userID, transport.Kind(req.Service), transport.EmailParams{
		To:      req.To,
		Subject: req.Subject,
		Text:    req.Body,
	})
	if !result.Success {
		c.JSON(http.StatusBadGateway, gin.H{"error": result.Error})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"service":    string(result.Service),
		"message_id": result.MessageID,
	})
}

// List handles GET /emails.
func (h *EmailHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	emails, err := h.emails.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load emails"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"emails": emails})
}
