package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lightquark/maptracker/internal/handler"
	"github.com/lightquark/maptracker/internal/middleware"
	"github.com/lightquark/maptracker/internal/permission"
	"github.com/lightquark/maptracker/internal/provider"
	"github.com/lightquark/maptracker/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies are the components the router serves
type Dependencies struct {
	TrackingService *service.TrackingService
	Dispatcher      provider.Dispatcher
	Grants          *permission.Grants
	// Verifier protects /api/v1 when set
	Verifier *middleware.TokenVerifier
	// RateLimiter throttles /api/v1 per client IP when set
	RateLimiter *middleware.RateLimiter
	// Gatherer backs /metrics when set
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// SetupRouter wires handlers and middleware
func SetupRouter(deps Dependencies) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(deps.Logger))

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"message":  "Map tracker API is running",
			"tracking": deps.TrackingService.TrackingStatus().Get(),
		})
	})

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	trackingHandler := handler.NewTrackingHandler(deps.TrackingService, deps.Grants)
	locationHandler := handler.NewLocationHandler(deps.TrackingService)
	liveHandler := handler.NewLiveHandler(deps.TrackingService, deps.Logger)
	deliveryHandler := handler.NewDeliveryHandler(deps.Dispatcher)
	permissionHandler := handler.NewPermissionHandler(deps.Grants)

	api := r.Group("/api/v1")
	api.Use(middleware.Auth(deps.Verifier))
	if deps.RateLimiter != nil {
		api.Use(middleware.RateLimit(deps.RateLimiter))
	}
	{
		tracking := api.Group("/tracking")
		{
			tracking.GET("", trackingHandler.GetStatus)
			tracking.POST("/start", trackingHandler.Start)
			tracking.POST("/stop", trackingHandler.Stop)
		}

		locations := api.Group("/locations")
		{
			locations.GET("", locationHandler.GetLocations)
			locations.POST("", locationHandler.CreateLocations)
			locations.DELETE("", locationHandler.DeleteLocations)
			locations.GET("/live", liveHandler.Stream)
			locations.GET("/:id", locationHandler.GetLocationByID)
			locations.PUT("/:id", locationHandler.UpdateLocation)
		}

		api.POST("/deliveries/:target", deliveryHandler.Deliver)

		permissions := api.Group("/permissions")
		{
			permissions.GET("", permissionHandler.GetPermissions)
			permissions.PUT("", permissionHandler.UpdatePermissions)
		}
	}

	return r
}
