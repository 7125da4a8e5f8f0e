package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"receptionist/internal/repository"
)

type ActivityHandler struct {
	activities *repository.ActivityRepository
}

func NewActivityHandler(activities *repository.ActivityRepository) *ActivityHandler {
	return &ActivityHandler{activities: activities}
}

// List handles GET /activities: the audit trail, newest first.
func (h *ActivityHandler) List(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	activities, err := h.activities.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load activities"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"activities": activities})
}
