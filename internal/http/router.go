// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"trackmybus/internal/http/handlers"
	"trackmybus/internal/http/middleware"
)

type RouterDeps struct {
	Vehicles *handlers.VehicleHandler
	// Fleet is optional; without it the admin routes are not registered.
	Fleet *handlers.FleetHandler
	// Auth guards /api. It is required; use middleware.Anonymous to run without tokens.
	Auth gin.HandlerFunc
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logging(), middleware.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api", deps.Auth)
	v := deps.Vehicles
	api.PUT("/vehicles/:id/location", v.UpdateLocation)
	api.PUT("/vehicles/:id/active", v.SetActive)
	api.GET("/vehicles/:id", v.Get)
	api.GET("/vehicles/:id/progress", v.Progress)
	api.GET("/vehicles/:id/progress.geojson", v.ProgressGeoJSON)
	api.GET("/vehicles/:id/eta", v.ETA)
	api.GET("/vehicles/:id/stream", v.Stream)

	if deps.Fleet != nil {
		api.GET("/admin/vehicles/nearby", deps.Fleet.Nearby)
	}

	return r
}
