package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/lightquark/maptracker/internal/models"
	"github.com/lightquark/maptracker/internal/provider"
	"github.com/lightquark/maptracker/pkg/response"
)

// DeliveryHandler accepts samples pushed by a location source and hands
// them to the provider for the addressed target
type DeliveryHandler struct {
	dispatcher provider.Dispatcher
}

// NewDeliveryHandler creates a new delivery handler
func NewDeliveryHandler(dispatcher provider.Dispatcher) *DeliveryHandler {
	return &DeliveryHandler{
		dispatcher: dispatcher,
	}
}

// DeliveryResult reports how many samples were queued
type DeliveryResult struct {
	Target  string `json:"target"`
	Samples int    `json:"samples"`
}

// Deliver handles POST /api/v1/deliveries/:target
func (h *DeliveryHandler) Deliver(c *gin.Context) {
	target := c.Param("target")

	var samples []models.Sample
	if err := c.ShouldBindJSON(&samples); err != nil || len(samples) == 0 {
		response.BadRequest(c, "Body must be a non-empty array of samples")
		return
	}

	if err := h.dispatcher.Dispatch(target, samples); err != nil {
		if errors.Is(err, provider.ErrNotRegistered) {
			response.Conflict(c, "Location updates are not active for "+target)
			return
		}
		response.InternalError(c, err.Error())
		return
	}

	response.Accepted(c, DeliveryResult{Target: target, Samples: len(samples)})
}
