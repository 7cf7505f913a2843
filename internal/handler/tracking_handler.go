package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/lightquark/maptracker/internal/permission"
	"github.com/lightquark/maptracker/internal/service"
	"github.com/lightquark/maptracker/internal/subscription"
	"github.com/lightquark/maptracker/pkg/response"
)

// TrackingHandler handles HTTP requests that switch location updates on and off
type TrackingHandler struct {
	trackingService *service.TrackingService
	oracle          permission.Oracle
}

// NewTrackingHandler creates a new tracking handler
func NewTrackingHandler(trackingService *service.TrackingService, oracle permission.Oracle) *TrackingHandler {
	return &TrackingHandler{
		trackingService: trackingService,
		oracle:          oracle,
	}
}

// TrackingStatus is the payload of tracking endpoints
type TrackingStatus struct {
	Active bool `json:"active"`
	// Missing lists the capabilities that kept tracking from starting
	Missing []permission.Capability `json:"missing,omitempty"`
}

// GetStatus handles GET /api/v1/tracking
func (h *TrackingHandler) GetStatus(c *gin.Context) {
	response.Success(c, h.status())
}

// Start handles POST /api/v1/tracking/start
func (h *TrackingHandler) Start(c *gin.Context) {
	err := h.trackingService.Start(c.Request.Context())
	switch {
	case err == nil:
		response.Success(c, h.status())
	case errors.Is(err, subscription.ErrPermissionRevoked):
		response.Conflict(c, "Location permission was revoked; tracking did not start")
	case errors.Is(err, subscription.ErrProviderUnavailable):
		response.ServiceUnavailable(c, "Location provider unavailable")
	default:
		response.InternalError(c, err.Error())
	}
}

// Stop handles POST /api/v1/tracking/stop
func (h *TrackingHandler) Stop(c *gin.Context) {
	if err := h.trackingService.Stop(c.Request.Context()); err != nil {
		response.InternalError(c, err.Error())
		return
	}
	response.Success(c, h.status())
}

func (h *TrackingHandler) status() TrackingStatus {
	active := h.trackingService.TrackingStatus().Get()
	status := TrackingStatus{Active: active}
	if !active {
		status.Missing = permission.Missing(h.oracle)
	}
	return status
}
