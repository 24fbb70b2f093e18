// README: Fleet handlers: admin view over the last-position index.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"trackmybus/internal/http/middleware"
	"trackmybus/internal/modules/location"
	"trackmybus/internal/types"
)

const defaultNearbyRadiusKm = 5.0

// NearbyFinder searches the last-position index. location.Service implements it.
type NearbyFinder interface {
	NearbyVehicles(ctx context.Context, center types.GeoPoint, radiusKm float64) ([]location.NearbyVehicle, error)
}

var _ NearbyFinder = (*location.Service)(nil)

type FleetHandler struct {
	nearby NearbyFinder
}

func NewFleetHandler(nearby NearbyFinder) *FleetHandler {
	return &FleetHandler{nearby: nearby}
}

type nearbyReq struct {
	Lat      *float64 `form:"lat" binding:"required,gte=-90,lte=90"`
	Lng      *float64 `form:"lng" binding:"required,gte=-180,lte=180"`
	RadiusKm float64  `form:"radius_km" binding:"gte=0,lte=50"`
}

// Nearby lists vehicles whose last indexed position is within radius_km
// (default 5, at most 50) of lat/lng, closest first. Admins only.
func (h *FleetHandler) Nearby(c *gin.Context) {
	if middleware.CallerRole(c) != middleware.RoleAdmin {
		writeError(c, http.StatusForbidden, "forbidden: admin only")
		return
	}
	var req nearbyReq
	if err := c.ShouldBindQuery(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid query: "+err.Error())
		return
	}
	radius := req.RadiusKm
	if radius == 0 {
		radius = defaultNearbyRadiusKm
	}

	center := types.GeoPoint{Lat: *req.Lat, Lng: *req.Lng}
	vehicles, err := h.nearby.NearbyVehicles(c.Request.Context(), center, radius)
	if err != nil {
		writeTrackingError(c, err)
		return
	}
	if vehicles == nil {
		vehicles = []location.NearbyVehicle{}
	}
	writeJSON(c, http.StatusOK, gin.H{"center": center, "radius_km": radius, "vehicles": vehicles})
}
