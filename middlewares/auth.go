package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"

	"chat-server/services"
	"chat-server/utils"
)

const userIDKey = "userID"

// TokenAuthMiddleware requires an "Authorization: Bearer <token>" header and
// stores the authenticated user id in the context.
func TokenAuthMiddleware(identity services.Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			utils.RespondError(c, utils.Unauthorized("missing token"))
			return
		}

		userID, err := identity.ParseToken(strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")))
		if err != nil {
			utils.RespondError(c, utils.Unauthorized(err.Error()))
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// MustUserID returns the id set by TokenAuthMiddleware.
func MustUserID(c *gin.Context) uint {
	return c.MustGet(userIDKey).(uint)
}
