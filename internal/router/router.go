package router

import (
	"github.com/gin-gonic/gin"

	"pulse/internal/handlers"
	"pulse/internal/middleware"
	"pulse/internal/services"
	"pulse/internal/triggers"
)

func RegisterRoutes(r *gin.Engine, svc *services.Services, d *triggers.Dispatcher, adminSecret string) {
	// Handlers
	adminHandler := handlers.NewAdminHandler(svc)
	eventHandler := handlers.NewEventHandler(d)

	r.GET("/healthz", handlers.Healthz)

	// Event ingestion
	r.POST("/events", eventHandler.Document)
	r.POST("/auth-events", eventHandler.Account)

	// Admin jobs
	admin := r.Group("/")
	admin.Use(middleware.AdminRequired(adminSecret))
	{
		jobs := map[string]gin.HandlerFunc{
			"/recompute-each-post-score":  adminHandler.RecomputeEachPostScore,
			"/recompute-each-topic-score": adminHandler.RecomputeEachTopicScore,
			"/recompute-each-user-score":  adminHandler.RecomputeEachUserScore,
			"/sweep-inactive-users":       adminHandler.SweepInactiveUsers,
		}
		for path, h := range jobs {
			admin.GET(path, h)
			admin.POST(path, h)
		}
	}
}
