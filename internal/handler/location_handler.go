package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lightquark/maptracker/internal/models"
	"github.com/lightquark/maptracker/internal/service"
	"github.com/lightquark/maptracker/internal/store"
	"github.com/lightquark/maptracker/pkg/response"
)

// LocationHandler handles HTTP requests for recorded locations
type LocationHandler struct {
	trackingService *service.TrackingService
}

// NewLocationHandler creates a new location handler
func NewLocationHandler(trackingService *service.TrackingService) *LocationHandler {
	return &LocationHandler{
		trackingService: trackingService,
	}
}

// WriteResult reports a queued mutation
type WriteResult struct {
	Op      string `json:"op"`
	Records int    `json:"records"`
	Applied bool   `json:"applied"`
}

// GetLocations handles GET /api/v1/locations
func (h *LocationHandler) GetLocations(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", strconv.Itoa(store.DefaultQueryLimit))
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 {
		response.BadRequest(c, "Invalid limit parameter")
		return
	}
	if limit > store.DefaultQueryLimit {
		limit = store.DefaultQueryLimit
	}

	view, err := h.trackingService.Query(limit)
	if err != nil {
		response.ServiceUnavailable(c, err.Error())
		return
	}
	records := view.Records()
	view.Close()

	if records == nil {
		records = []models.LocationRecord{}
	}
	response.Success(c, models.LocationRecordsResponse{
		Data:  records,
		Count: len(records),
		Limit: limit,
	})
}

// GetLocationByID handles GET /api/v1/locations/:id
func (h *LocationHandler) GetLocationByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid location ID")
		return
	}

	rec, err := h.trackingService.Record(id)
	if errors.Is(err, store.ErrNotFound) {
		response.NotFound(c, "Location not found")
		return
	}
	if err != nil {
		response.ServiceUnavailable(c, err.Error())
		return
	}

	response.Success(c, rec)
}

// CreateLocations handles POST /api/v1/locations. The body is a JSON array
// of records; they are stored as one batch.
func (h *LocationHandler) CreateLocations(c *gin.Context) {
	var records []models.LocationRecord
	if err := c.ShouldBindJSON(&records); err != nil || len(records) == 0 {
		response.BadRequest(c, "Body must be a non-empty array of locations")
		return
	}

	w, err := h.trackingService.Backfill(records)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.respondWrite(c, w, len(records))
}

// UpdateLocation handles PUT /api/v1/locations/:id
func (h *LocationHandler) UpdateLocation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid location ID")
		return
	}

	var rec models.LocationRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		response.BadRequest(c, "Invalid location body")
		return
	}
	rec.ID = id

	w, err := h.trackingService.UpdateRecord(rec)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.respondWrite(c, w, 1)
}

// DeleteLocations handles DELETE /api/v1/locations
func (h *LocationHandler) DeleteLocations(c *gin.Context) {
	h.respondWrite(c, h.trackingService.Reset(), 0)
}

// respondWrite answers 202 for a queued write, or waits for it when the
// request carries wait=true
func (h *LocationHandler) respondWrite(c *gin.Context, w *store.Write, records int) {
	result := WriteResult{Op: w.Op(), Records: records}

	if wait, _ := strconv.ParseBool(c.Query("wait")); !wait {
		response.Accepted(c, result)
		return
	}

	err := w.Wait(c.Request.Context())
	switch {
	case err == nil:
		result.Applied = true
		response.Success(c, result)
	case errors.Is(err, store.ErrUpdateTargetMissing):
		response.NotFound(c, "Location not found")
	case errors.Is(err, store.ErrDuplicateID):
		response.Conflict(c, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.Accepted(c, result)
	default:
		response.ServiceUnavailable(c, err.Error())
	}
}
