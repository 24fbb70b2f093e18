// README: Firebase ID-token auth; stores the caller's Session in the gin context.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"trackmybus/internal/infra"
)

const sessionKey = "session"

const (
	RoleDriver = "driver"
	RoleParent = "parent"
	RoleAdmin  = "admin"
)

// Session is the authenticated caller. VehicleID and RouteID come from custom
// claims set when the account was linked to a bus.
type Session struct {
	UID       string
	Role      string
	VehicleID string
	RouteID   string
}

type errorResponse struct {
	Error string `json:"error"`
}

// Auth verifies the bearer token on every request and rejects the request with
// 401 when it is missing or invalid.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil || token == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "invalid token"})
			return
		}
		c.Set(sessionKey, Session{
			UID:       token.UID,
			Role:      claimString(token.Claims, "role"),
			VehicleID: claimString(token.Claims, "vehicle_id"),
			RouteID:   claimString(token.Claims, "route_id"),
		})
		c.Next()
	}
}

// Anonymous attaches a fixed session to every request. Used when auth is
// disabled for local runs and demos.
func Anonymous(s Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(sessionKey, s)
		c.Next()
	}
}

func claimString(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

func CallerSession(c *gin.Context) Session {
	if v, ok := c.Get(sessionKey); ok {
		if s, ok := v.(Session); ok {
			return s
		}
	}
	return Session{}
}

func CallerUID(c *gin.Context) string  { return CallerSession(c).UID }
func CallerRole(c *gin.Context) string { return CallerSession(c).Role }
