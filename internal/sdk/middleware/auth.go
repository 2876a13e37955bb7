// Package middleware provides the HTTP request gate plus CORS and request
// logging for the auth service.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/sdk/models"
)

const identityKey = "auth_identity"

// TokenResolver turns a bearer token into a verified user.
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (models.User, error)
}

// Authenticate extracts a bearer token, resolves it and attaches the identity
// to the request context. Requests without a resolvable token proceed
// anonymously; whether anonymity is acceptable is decided downstream by
// RequireUser.
func Authenticate(resolver TokenResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		// Expect "Bearer <token>" format.
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.Next()
			return
		}

		raw := strings.TrimSpace(parts[1])
		if raw == "" {
			c.Next()
			return
		}

		user, err := resolver.ResolveToken(c.Request.Context(), raw)
		if err != nil {
			c.Next()
			return
		}

		c.Set(identityKey, user)
		c.Next()
	}
}

// RequireUser rejects any request that reached a protected route without an
// attached identity.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := UserFrom(c); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication_required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserFrom fetches the authenticated user attached by Authenticate.
func UserFrom(c *gin.Context) (models.User, bool) {
	value, ok := c.Get(identityKey)
	if !ok {
		return models.User{}, false
	}

	user, ok := value.(models.User)
	if !ok {
		return models.User{}, false
	}

	return user, true
}
