package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"receptionist/pkg/outbox"
)

// AdminHandler exposes outbox inspection and replay for operators.
type AdminHandler struct {
	outboxRepo *outbox.Repository
}

func NewAdminHandler(outboxRepo *outbox.Repository) *AdminHandler {
	return &AdminHandler{outboxRepo: outboxRepo}
}

// FailedEvents handles GET /admin/outbox/failed.
func (h *AdminHandler) FailedEvents(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events, err := h.outboxRepo.GetFailedEvents(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load outbox events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

// ReplayEvent handles POST /admin/outbox/:id/replay: resets a failed event
// so the dispatcher picks it up again.
func (h *AdminHandler) ReplayEvent(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	if _, err := h.outboxRepo.GetEventByID(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}

	if err := h.outboxRepo.ReplayEvent(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to replay event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "replayed"})
}
