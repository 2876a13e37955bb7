package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/sdk/middleware"
	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/sdk/models"
)

type stubResolver struct {
	users map[string]models.User
}

func (s *stubResolver) ResolveToken(_ context.Context, token string) (models.User, error) {
	if u, ok := s.users[token]; ok {
		return u, nil
	}
	return models.User{}, errors.New("unauthenticated")
}

func newTestRouter(resolver middleware.TokenResolver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.Authenticate(resolver))

	router.GET("/public", func(c *gin.Context) {
		_, ok := middleware.UserFrom(c)
		c.JSON(http.StatusOK, gin.H{"authenticated": ok})
	})
	router.GET("/protected", middleware.RequireUser(), func(c *gin.Context) {
		user, _ := middleware.UserFrom(c)
		c.JSON(http.StatusOK, gin.H{"id": user.ID})
	})

	return router
}

func TestAuthenticate(t *testing.T) {
	resolver := &stubResolver{users: map[string]models.User{
		"good-token": {ID: "user-1", Name: "Maria", CPF: "12345678901"},
	}}
	router := newTestRouter(resolver)

	request := func(path, header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("missing header proceeds anonymously", func(t *testing.T) {
		rec := request("/public", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"authenticated": false}`, rec.Body.String())
	})

	t.Run("non-bearer scheme proceeds anonymously", func(t *testing.T) {
		rec := request("/public", "Basic dXNlcjpwYXNz")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"authenticated": false}`, rec.Body.String())
	})

	t.Run("unresolvable token proceeds anonymously", func(t *testing.T) {
		rec := request("/public", "Bearer bad-token")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"authenticated": false}`, rec.Body.String())
	})

	t.Run("valid token attaches the identity", func(t *testing.T) {
		rec := request("/protected", "Bearer good-token")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"id": "user-1"}`, rec.Body.String())
	})

	t.Run("bearer prefix is case-insensitive and whitespace-tolerant", func(t *testing.T) {
		rec := request("/protected", "bearer  good-token ")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("protected route rejects anonymous requests", func(t *testing.T) {
		rec := request("/protected", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error": "authentication_required"}`, rec.Body.String())
	})

	t.Run("protected route rejects invalid tokens", func(t *testing.T) {
		rec := request("/protected", "Bearer bad-token")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
