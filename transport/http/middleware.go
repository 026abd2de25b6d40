package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/0xsend/sendauth/core"
	"github.com/0xsend/sendauth/service"
)

const sessionContextKey = "session"

// AuthMiddleware validates the session token from the Authorization header
// or, failing that, the session cookie set at login.
func AuthMiddleware(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			cookie, err := c.Cookie(sessionCookie)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing credentials"})
				return
			}
			token = cookie
		}

		session, err := auth.ValidateSessionToken(c.Request.Context(), token)
		if err != nil {
			if core.KindOf(err) == core.KindUnauthorized {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			} else {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
			}
			return
		}

		c.Set(sessionContextKey, session)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

// sessionFromContext returns the session stored by AuthMiddleware. Only
// valid on routes behind it.
func sessionFromContext(c *gin.Context) *core.Session {
	return c.MustGet(sessionContextKey).(*core.Session)
}
