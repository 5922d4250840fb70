package http

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyOwnerID is the gin context key holding the resolved owner.
	ContextKeyOwnerID = "owner_id"

	// DefaultOwnerID is used when the proxy supplies no owner header.
	DefaultOwnerID uint = 1

	ownerHeader = "X-Owner-ID"
)

// OwnerMiddleware resolves the requesting owner. Authentication happens at
// the proxy in front of this service; it forwards the verified owner in a
// header. Absent or malformed headers fall back to the single-user default.
func OwnerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := DefaultOwnerID
		if raw := c.GetHeader(ownerHeader); raw != "" {
			if parsed, err := strconv.ParseUint(raw, 10, 32); err == nil && parsed > 0 {
				owner = uint(parsed)
			}
		}
		c.Set(ContextKeyOwnerID, owner)
		c.Next()
	}
}

// ownerID reads the resolved owner off the request context.
func ownerID(c *gin.Context) uint {
	if v, ok := c.Get(ContextKeyOwnerID); ok {
		if id, ok := v.(uint); ok {
			return id
		}
	}
	return DefaultOwnerID
}
