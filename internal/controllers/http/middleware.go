package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Identity resolution is an external collaborator: the gateway in
// front of this service authenticates the caller and forwards the
// resolved identity in headers. This middleware only translates those
// headers into request context.
const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"

	ctxUserID  = "user_id"
	ctxIsAdmin = "is_admin"
)

func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(headerUserID)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Code:    "unauthenticated",
				Message: "missing identity",
			})
			return
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Code:    "unauthenticated",
				Message: "invalid identity",
			})
			return
		}
		c.Set(ctxUserID, id)
		c.Set(ctxIsAdmin, c.GetHeader(headerUserRole) == "admin")
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isAdmin(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Code:    "forbidden",
				Message: "admin role required",
			})
			return
		}
		c.Next()
	}
}

func userID(c *gin.Context) uint64 {
	v, _ := c.Get(ctxUserID)
	id, _ := v.(uint64)
	return id
}

func isAdmin(c *gin.Context) bool {
	v, _ := c.Get(ctxIsAdmin)
	admin, _ := v.(bool)
	return admin
}
