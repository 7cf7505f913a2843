package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lightquark/maptracker/internal/permission"
	"github.com/lightquark/maptracker/pkg/response"
)

// PermissionHandler exposes the capability grants the location provider
// and the subscription consult
type PermissionHandler struct {
	grants *permission.Grants
}

// NewPermissionHandler creates a new permission handler
func NewPermissionHandler(grants *permission.Grants) *PermissionHandler {
	return &PermissionHandler{
		grants: grants,
	}
}

// PermissionState lists granted and missing capabilities
type PermissionState struct {
	Granted []permission.Capability `json:"granted"`
	Missing []permission.Capability `json:"missing"`
}

// UpdatePermissionsRequest replaces the set of granted capabilities
type UpdatePermissionsRequest struct {
	Granted []string `json:"granted"`
}

// GetPermissions handles GET /api/v1/permissions
func (h *PermissionHandler) GetPermissions(c *gin.Context) {
	response.Success(c, h.state())
}

// UpdatePermissions handles PUT /api/v1/permissions. Revoking a capability
// does not stop active tracking; the provider notices on the next start.
func (h *PermissionHandler) UpdatePermissions(c *gin.Context) {
	var req UpdatePermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	granted, err := permission.ParseCapabilities(strings.Join(req.Granted, ","))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	h.grants.Set(granted)
	response.Success(c, h.state())
}

func (h *PermissionHandler) state() PermissionState {
	missing := permission.Missing(h.grants)
	if missing == nil {
		missing = []permission.Capability{}
	}
	return PermissionState{Granted: h.grants.Snapshot(), Missing: missing}
}
