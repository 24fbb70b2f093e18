// README: Base handler utilities (JSON helpers, error mapping, access checks).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"trackmybus/internal/http/middleware"
	"trackmybus/internal/maps"
	"trackmybus/internal/modules/route"
	"trackmybus/internal/modules/tracking"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts the ids used as RTDB keys: letters, digits, '_' and '-'.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '-' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeTrackingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tracking.ErrInvalidPosition), errors.Is(err, tracking.ErrInvalidVehicle):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, route.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, tracking.ErrMalformedRecord):
		writeError(c, http.StatusBadGateway, "vehicle record is unreadable")
	case errors.Is(err, maps.ErrNoNextStop):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// canPublish allows the driver bound to the vehicle, and admins.
func canPublish(s middleware.Session, vehicleID string) bool {
	switch s.Role {
	case middleware.RoleAdmin:
		return true
	case middleware.RoleDriver:
		return s.VehicleID == vehicleID
	}
	return false
}

// canView allows admins and any caller bound to the vehicle.
func canView(s middleware.Session, vehicleID string) bool {
	return s.Role == middleware.RoleAdmin || (s.VehicleID != "" && s.VehicleID == vehicleID)
}
