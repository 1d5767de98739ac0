package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rynok/market/internal/domain"
)

const identityKey = "identity"

// IdentityMiddleware resolves the request's bearer token and stores
// the result on the gin context. It never aborts: anonymous requests
// pass through and are rejected per-route by RequireUser where a real
// identity is needed.
//
// The token is taken from the Authorization header, falling back to
// the "token" query parameter (the websocket handshake cannot set
// headers from browsers).
func IdentityMiddleware(r *Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if header := c.GetHeader("Authorization"); header != "" {
			token = strings.TrimPrefix(header, "Bearer ")
		}
		c.Set(identityKey, r.Resolve(token))
		c.Next()
	}
}

// RequireUser aborts with 401 unless the request carries a verified
// identity.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if Identity(c).IsAnonymous() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

// Identity returns the identity bound to the request, or
// domain.Anonymous when the middleware did not run or the token
// failed verification.
func Identity(c *gin.Context) domain.UserID {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(domain.UserID); ok {
			return id
		}
	}
	return domain.Anonymous
}
