// README: Vehicle handlers: publish position/activity, read state, progress, ETA and live stream.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"trackmybus/internal/http/middleware"
	"trackmybus/internal/maps"
	"trackmybus/internal/modules/motion"
	"trackmybus/internal/modules/progress"
	"trackmybus/internal/modules/route"
	"trackmybus/internal/modules/tracking"
	"trackmybus/internal/types"
)

const statusWaiting = "waiting_for_signal"

type VehicleHandlerDeps struct {
	Publisher  *tracking.Publisher
	Subscriber *tracking.Subscriber
	Routes     route.Directory
	ETA        *maps.ETAService
	Motion     motion.Interpolator
	TickPeriod time.Duration
}

type VehicleHandler struct {
	publisher  *tracking.Publisher
	subscriber *tracking.Subscriber
	routes     route.Directory
	eta        *maps.ETAService
	motion     motion.Interpolator
	tickPeriod time.Duration
}

func NewVehicleHandler(deps VehicleHandlerDeps) *VehicleHandler {
	return &VehicleHandler{
		publisher:  deps.Publisher,
		subscriber: deps.Subscriber,
		routes:     deps.Routes,
		eta:        deps.ETA,
		motion:     deps.Motion,
		tickPeriod: deps.TickPeriod,
	}
}

type updateLocationReq struct {
	Lat       *float64 `json:"lat" binding:"required,gte=-90,lte=90"`
	Lng       *float64 `json:"lng" binding:"required,gte=-180,lte=180"`
	Timestamp int64    `json:"timestamp" binding:"gte=0"`
}

type setActiveReq struct {
	Active *bool `json:"active" binding:"required"`
}

type progressResp struct {
	VehicleID types.ID `json:"vehicle_id"`
	RouteID   types.ID `json:"route_id"`
	Navigable bool     `json:"navigable"`
	IsActive  bool     `json:"is_active"`
	progress.Result
}

// vehicleID validates the :id parameter and the caller's access to it.
func (h *VehicleHandler) vehicleID(c *gin.Context, publish bool) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid vehicle id")
		return "", false
	}
	s := middleware.CallerSession(c)
	allowed := canView(s, id)
	if publish {
		allowed = canPublish(s, id)
	}
	if !allowed {
		writeError(c, http.StatusForbidden, "forbidden: not bound to this vehicle")
		return "", false
	}
	return types.ID(id), true
}

func (h *VehicleHandler) UpdateLocation(c *gin.Context) {
	id, ok := h.vehicleID(c, true)
	if !ok {
		return
	}
	var req updateLocationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid location: "+err.Error())
		return
	}
	p := types.GeoPoint{Lat: *req.Lat, Lng: *req.Lng}
	if err := h.publisher.Publish(c.Request.Context(), id, p, req.Timestamp); err != nil {
		writeTrackingError(c, err)
		return
	}
	st, err := h.publisher.State(id)
	if err != nil {
		writeTrackingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok", "seq": st.Seq, "path_length": len(st.Path)})
}

func (h *VehicleHandler) SetActive(c *gin.Context) {
	id, ok := h.vehicleID(c, true)
	if !ok {
		return
	}
	var req setActiveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := h.publisher.SetActive(c.Request.Context(), id, *req.Active); err != nil {
		writeTrackingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok", "is_active": *req.Active})
}

func (h *VehicleHandler) Get(c *gin.Context) {
	id, ok := h.vehicleID(c, false)
	if !ok {
		return
	}
	st, err := h.subscriber.Latest(c.Request.Context(), id)
	if errors.Is(err, tracking.ErrNoData) {
		writeJSON(c, http.StatusOK, gin.H{"vehicle_id": id, "status": statusWaiting})
		return
	}
	if err != nil {
		writeTrackingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}

// routeID picks ?route_id, then the caller's session route, then a route named
// after the vehicle. ok is false when a response has already been written.
func routeID(c *gin.Context, vehicleID types.ID) (types.ID, bool) {
	id := c.Query("route_id")
	if id == "" {
		id = middleware.CallerSession(c).RouteID
	}
	if id == "" {
		id = string(vehicleID)
	}
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid route id")
		return "", false
	}
	return types.ID(id), true
}

// progress loads the vehicle's latest state and its route. ok is false when a
// response has already been written.
func (h *VehicleHandler) progress(c *gin.Context) (tracking.VehicleState, route.Route, bool) {
	id, ok := h.vehicleID(c, false)
	if !ok {
		return tracking.VehicleState{}, route.Route{}, false
	}
	rid, ok := routeID(c, id)
	if !ok {
		return tracking.VehicleState{}, route.Route{}, false
	}

	st, err := h.subscriber.Latest(c.Request.Context(), id)
	if errors.Is(err, tracking.ErrNoData) {
		writeJSON(c, http.StatusOK, gin.H{"vehicle_id": id, "status": statusWaiting})
		return tracking.VehicleState{}, route.Route{}, false
	}
	if err != nil {
		writeTrackingError(c, err)
		return tracking.VehicleState{}, route.Route{}, false
	}
	if _, has := st.Position(); !has {
		writeJSON(c, http.StatusOK, gin.H{"vehicle_id": id, "status": statusWaiting, "is_active": st.IsActive})
		return tracking.VehicleState{}, route.Route{}, false
	}

	r, err := h.routes.Get(c.Request.Context(), rid)
	if err != nil {
		writeTrackingError(c, err)
		return tracking.VehicleState{}, route.Route{}, false
	}
	return st, r, true
}

func (h *VehicleHandler) Progress(c *gin.Context) {
	st, r, ok := h.progress(c)
	if !ok {
		return
	}
	pos, _ := st.Position()
	writeJSON(c, http.StatusOK, progressResp{
		VehicleID: st.VehicleID,
		RouteID:   r.ID,
		Navigable: r.Navigable(),
		IsActive:  st.IsActive,
		Result:    progress.Resolve(pos, r),
	})
}

func (h *VehicleHandler) ProgressGeoJSON(c *gin.Context) {
	st, r, ok := h.progress(c)
	if !ok {
		return
	}
	pos, _ := st.Position()
	fc := progress.FeatureCollection(progress.Resolve(pos, r), &pos)
	data, err := fc.MarshalJSON()
	if err != nil {
		writeTrackingError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/geo+json", data)
}

func (h *VehicleHandler) ETA(c *gin.Context) {
	st, r, ok := h.progress(c)
	if !ok {
		return
	}
	pos, _ := st.Position()
	est, err := h.eta.NextStop(c.Request.Context(), pos, r)
	if err != nil {
		writeTrackingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, est)
}

type frameEvent struct {
	Position      types.GeoPoint `json:"position"`
	FromStopIndex int            `json:"from_stop_index"`
	Progress      float64        `json:"progress"`
}

type statusEvent struct {
	VehicleID types.ID `json:"vehicle_id"`
	Status    string   `json:"status"`
}

// Stream sends the vehicle state as Server-Sent Events ("state"). A vehicle
// with no usable record first gets a "status" event saying it is waiting for
// a signal. With smooth=1 it also sends interpolated "frame" events along the
// route.
func (h *VehicleHandler) Stream(c *gin.Context) {
	id, ok := h.vehicleID(c, false)
	if !ok {
		return
	}
	smooth := c.Query("smooth") == "1"
	var r route.Route
	if smooth {
		rid, ok := routeID(c, id)
		if !ok {
			return
		}
		var err error
		if r, err = h.routes.Get(c.Request.Context(), rid); err != nil {
			writeTrackingError(c, err)
			return
		}
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events := make(chan any, 16)
	send := func(ev any) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	// Checked before subscribing so the status event precedes any state.
	_, err := h.subscriber.Latest(ctx, id)
	switch {
	case errors.Is(err, tracking.ErrNoData), errors.Is(err, tracking.ErrMalformedRecord):
		events <- statusEvent{VehicleID: id, Status: statusWaiting}
	case err != nil:
		writeTrackingError(c, err)
		return
	}

	unsubscribe, err := h.subscriber.Subscribe(ctx, id, func(st tracking.VehicleState) { send(st) })
	if err != nil {
		writeTrackingError(c, err)
		return
	}
	defer unsubscribe()

	if smooth {
		anim := motion.NewAnimator(r, h.motion, h.tickPeriod, func(f motion.Frame) {
			send(frameEvent{Position: f.Position, FromStopIndex: f.State.FromStopIndex, Progress: f.State.Progress})
		})
		anim.Start(ctx)
		defer anim.Stop()
	}

	defer cancel()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev := <-events:
			switch e := ev.(type) {
			case tracking.VehicleState:
				c.SSEvent("state", e)
			case frameEvent:
				c.SSEvent("frame", e)
			case statusEvent:
				c.SSEvent("status", e)
			}
			return true
		}
	})
}
