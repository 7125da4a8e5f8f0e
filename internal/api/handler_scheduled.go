package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"receptionist/internal/model"
	"receptionist/internal/repository"
)

type ScheduledHandler struct {
	scheduled *repository.ScheduledEmailRepository
}

func NewScheduledHandler(scheduled *repository.ScheduledEmailRepository) *ScheduledHandler {
	return &ScheduledHandler{scheduled: scheduled}
}

func (h *ScheduledHandler) Create(c *gin.Context) {
	var req struct {
		To            string    `json:"to" binding:"required"`
		Subject       string    `json:"subject" binding:"required"`
		Body          string    `json:"body"`
		TemplateID    *int64    `json:"template_id"`
		ScheduledTime time.Time `json:"scheduled_time" binding:"required"`
		IsRecurring   bool      `json:"is_recurring"`
		RecurringRule string    `json:"recurring_rule"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if req.IsRecurring {
		switch req.RecurringRule {
		case model.RecurDaily, model.RecurWeekly, model.RecurMonthly:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recurring_rule"})
			return
		}
	}

	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	id, err := h.scheduled.Create(c.Request.Context(), &model.ScheduledEmail{
		UserID:        userID,
		To:            req.To,
		Subject:       req.Subject,
		Body:          req.Body,
		TemplateID:    req.TemplateID,
		ScheduledTime: req.ScheduledTime,
		IsRecurring:   req.IsRecurring,
		RecurringRule: req.RecurringRule,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to schedule email"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"scheduled_id": id})
}

func (h *ScheduledHandler) List(c *gin.Context) {
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

	items, err := h.scheduled.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load scheduled emails"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"scheduled": items})
}

// Cancel only touches rows still pending; sent rows are immutable.
func (h *ScheduledHandler) Cancel(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scheduled id"})
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	if err := h.scheduled.Cancel(c.Request.Context(), id, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel scheduled email"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}
