package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	pool *pgxpool.Pool,
	emailHandler *EmailHandler,
	templateHandler *TemplateHandler,
	scheduledHandler *ScheduledHandler,
	activityHandler *ActivityHandler,
	serviceConfigHandler *ServiceConfigHandler,
	adminHandler *AdminHandler,
) *Router {
	r := gin.Default()
	r.Use(TraceMiddleware())
	r.Use(MetricsMiddleware())

	// Ops surface
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Per-user surface, identified via X-User-ID
	auth := r.Group("/")
	auth.Use(UserIDMiddleware())
	{
		auth.POST("/email/incoming", emailHandler.Ingest)
		auth.POST("/email/test", emailHandler.TestSend)
		auth.GET("/emails", emailHandler.List)

		auth.POST("/templates", templateHandler.Create)
		auth.GET("/templates", templateHandler.List)
		auth.PUT("/templates/:id", templateHandler.Update)
		auth.DELETE("/templates/:id", templateHandler.Delete)

		auth.POST("/scheduled", scheduledHandler.Create)
		auth.GET("/scheduled", scheduledHandler.List)
		auth.POST("/scheduled/:id/cancel", scheduledHandler.Cancel)

		auth.PUT("/services/:service/config", serviceConfigHandler.Upsert)
		auth.GET("/services/:service/config", serviceConfigHandler.Get)
	}

	// Operator surface
	admin := r.Group("/admin")
	{
		admin.GET("/outbox/failed", adminHandler.FailedEvents)
		admin.POST("/outbox/:id/replay", adminHandler.ReplayEvent)
		admin.GET("/activities", activityHandler.List)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
