package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/app"
	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/sdk/models"
	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/sdk/sqldb"
	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/services/auth"
	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/services/sentry"
	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/services/token"
)

// fakeStore implements sqldb.Store in memory.
type fakeStore struct {
	users       map[string]models.User
	resetTokens map[string]models.PasswordResetToken
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       make(map[string]models.User),
		resetTokens: make(map[string]models.PasswordResetToken),
	}
}

func (f *fakeStore) Health() map[string]string       { return map[string]string{"status": "up"} }
func (f *fakeStore) Close() error                    { return nil }
func (f *fakeStore) Migrate(_ context.Context) error { return nil }

func (f *fakeStore) GetUserByID(_ context.Context, userID string) (models.User, error) {
	if u, ok := f.users[userID]; ok {
		return u, nil
	}
	return models.User{}, sqldb.ErrDBNotFound
}

func (f *fakeStore) GetUserByCPF(_ context.Context, cpf string) (models.User, error) {
	for _, u := range f.users {
		if u.CPF == cpf {
			return u, nil
		}
	}
	return models.User{}, sqldb.ErrDBNotFound
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	for _, u := range f.users {
		if u.Email != nil && *u.Email == email {
			return u, nil
		}
	}
	return models.User{}, sqldb.ErrDBNotFound
}

func (f *fakeStore) CreateUser(_ context.Context, user models.User) (models.User, error) {
	for _, existing := range f.users {
		if existing.CPF == user.CPF {
			return models.User{}, sqldb.ErrDBDuplicatedEntry
		}
	}
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeStore) UpdateUserPassword(_ context.Context, userID string, newHash []byte, updatedAt time.Time) error {
	u, ok := f.users[userID]
	if !ok {
		return sqldb.ErrDBNotFound
	}
	u.PasswordHash = newHash
	u.UpdatedAt = updatedAt
	f.users[userID] = u
	return nil
}

func (f *fakeStore) CreatePasswordResetToken(_ context.Context, t models.PasswordResetToken) (models.PasswordResetToken, error) {
	f.resetTokens[t.Token] = t
	return t, nil
}

func (f *fakeStore) GetPasswordResetToken(_ context.Context, raw string) (models.PasswordResetToken, error) {
	if t, ok := f.resetTokens[raw]; ok {
		return t, nil
	}
	return models.PasswordResetToken{}, sqldb.ErrDBNotFound
}

func (f *fakeStore) DeletePasswordResetTokensByUserID(_ context.Context, userID string) error {
	for raw, t := range f.resetTokens {
		if t.UserID == userID {
			delete(f.resetTokens, raw)
		}
	}
	return nil
}

func (f *fakeStore) DeleteExpiredPasswordResetTokens(_ context.Context) error { return nil }

func (f *fakeStore) ConsumePasswordResetToken(_ context.Context, tokenID, userID string, newHash []byte, now time.Time) error {
	for raw, t := range f.resetTokens {
		if t.ID == tokenID {
			if t.UsedAt != nil {
				return sqldb.ErrDBNotFound
			}
			used := now
			t.UsedAt = &used
			f.resetTokens[raw] = t

			u, ok := f.users[userID]
			if !ok {
				return sqldb.ErrDBNotFound
			}
			u.PasswordHash = newHash
			u.UpdatedAt = now
			f.users[userID] = u
			return nil
		}
	}
	return sqldb.ErrDBNotFound
}

// captureSender records the last dispatched secrets.
type captureSender struct {
	lastTemporaryPassword string
	lastResetToken        string
}

func (s *captureSender) SendRegistrationWelcome(_, _, _, temporaryPassword string) error {
	s.lastTemporaryPassword = temporaryPassword
	return nil
}

func (s *captureSender) SendPasswordRecovery(_, _, resetToken string, _ int) error {
	s.lastResetToken = resetToken
	return nil
}

func (s *captureSender) SendTemporaryPassword(_, _, temporaryPassword string) error {
	s.lastTemporaryPassword = temporaryPassword
	return nil
}

func newTestApp(t *testing.T) (*gin.Engine, *fakeStore, *captureSender) {
	t.Helper()
	t.Setenv("AUTH_JWT_SECRET", "test-signing-secret")
	t.Setenv("AUTH_EXPOSE_RECOVERY_TOKEN", "true")
	gin.SetMode(gin.TestMode)

	store := newFakeStore()
	sender := &captureSender{}

	codec, err := token.NewService()
	require.NoError(t, err)

	authService := auth.NewService(store, codec, sender)
	a := app.NewApp(store, authService, sentry.NewService())
	return a.RegisterRoutes(), store, sender
}

func doJSON(router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterEndpoint(t *testing.T) {
	router, store, _ := newTestApp(t)

	t.Run("creates user and returns token", func(t *testing.T) {
		rec := doJSON(router, http.MethodPost, "/api/auth/register", gin.H{
			"name": "Maria Souza",
			"cpf":  "12345678901",
		}, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp struct {
			Token string          `json:"token"`
			User  models.UserView `json:"user"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "12345678901", resp.User.CPF)
		assert.False(t, resp.User.EmailVerified)
		assert.Len(t, store.users, 1)
	})

	t.Run("duplicate cpf conflicts without creating a record", func(t *testing.T) {
		rec := doJSON(router, http.MethodPost, "/api/auth/register", gin.H{
			"name": "Someone Else",
			"cpf":  "12345678901",
		}, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Len(t, store.users, 1)
	})

	t.Run("rejects malformed cpf", func(t *testing.T) {
		rec := doJSON(router, http.MethodPost, "/api/auth/register", gin.H{
			"name": "Maria",
			"cpf":  "123",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLoginEndpoint(t *testing.T) {
	router, _, sender := newTestApp(t)

	rec := doJSON(router, http.MethodPost, "/api/auth/register", gin.H{
		"name":  "Maria Souza",
		"cpf":   "12345678901",
		"email": "maria@example.com",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	password := sender.lastTemporaryPassword

	t.Run("valid credentials", func(t *testing.T) {
		rec := doJSON(router, http.MethodPost, "/api/auth/login", gin.H{
			"cpf":      "12345678901",
			"password": password,
		}, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("wrong password and unknown cpf look identical", func(t *testing.T) {
		wrongPassword := doJSON(router, http.MethodPost, "/api/auth/login", gin.H{
			"cpf":      "12345678901",
			"password": "WrongPass1!",
		}, nil)
		unknownUser := doJSON(router, http.MethodPost, "/api/auth/login", gin.H{
			"cpf":      "98765432100",
			"password": password,
		}, nil)

		assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
		assert.Equal(t, http.StatusUnauthorized, unknownUser.Code)
		assert.JSONEq(t, wrongPassword.Body.String(), unknownUser.Body.String())
	})
}

func TestRecoveryEndpoints(t *testing.T) {
	router, _, sender := newTestApp(t)

	rec := doJSON(router, http.MethodPost, "/api/auth/register", gin.H{
		"name":  "Maria Souza",
		"cpf":   "12345678901",
		"email": "maria@example.com",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("unknown identifier still succeeds generically", func(t *testing.T) {
		rec := doJSON(router, http.MethodPost, "/api/auth/recover", gin.H{
			"cpf": "98765432100",
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Empty(t, resp.Token)
	})

	t.Run("full recovery round trip", func(t *testing.T) {
		rec := doJSON(router, http.MethodPost, "/api/auth/recover", gin.H{
			"cpf": "12345678901",
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Token            string `json:"token"`
			ExpiresInMinutes int    `json:"expires_in_minutes"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		// Expose flag is on in tests, so the raw token is echoed.
		require.NotEmpty(t, resp.Token)
		assert.Equal(t, sender.lastResetToken, resp.Token)
		assert.Equal(t, 30, resp.ExpiresInMinutes)

		confirm := doJSON(router, http.MethodPost, "/api/auth/recover/confirm", gin.H{
			"token":        resp.Token,
			"new_password": "BrandNew1!",
		}, nil)
		require.Equal(t, http.StatusOK, confirm.Code, confirm.Body.String())

		login := doJSON(router, http.MethodPost, "/api/auth/login", gin.H{
			"cpf":      "12345678901",
			"password": "BrandNew1!",
		}, nil)
		assert.Equal(t, http.StatusOK, login.Code)

		// A second confirm with the same token must fail.
		again := doJSON(router, http.MethodPost, "/api/auth/recover/confirm", gin.H{
			"token":        resp.Token,
			"new_password": "Another1!pass",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, again.Code)
	})

	t.Run("unknown token is rejected", func(t *testing.T) {
		rec := doJSON(router, http.MethodPost, "/api/auth/recover/confirm", gin.H{
			"token":        "feedfacecafe",
			"new_password": "BrandNew1!",
		}, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSendTemporaryPasswordEndpoint(t *testing.T) {
	router, _, sender := newTestApp(t)

	rec := doJSON(router, http.MethodPost, "/api/auth/register", gin.H{
		"name":  "Maria Souza",
		"cpf":   "12345678901",
		"email": "maria@example.com",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("unknown email is a 404", func(t *testing.T) {
		rec := doJSON(router, http.MethodPost, "/api/auth/send-temporary-password", gin.H{
			"email": "nobody@example.com",
		}, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("replaces the password", func(t *testing.T) {
		rec := doJSON(router, http.MethodPost, "/api/auth/send-temporary-password", gin.H{
			"email": "maria@example.com",
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		login := doJSON(router, http.MethodPost, "/api/auth/login", gin.H{
			"cpf":      "12345678901",
			"password": sender.lastTemporaryPassword,
		}, nil)
		assert.Equal(t, http.StatusOK, login.Code)
	})
}

func TestMeEndpoint(t *testing.T) {
	router, _, _ := newTestApp(t)

	rec := doJSON(router, http.MethodPost, "/api/auth/register", gin.H{
		"name": "Maria Souza",
		"cpf":  "12345678901",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var registered struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &registered))

	t.Run("without a token", func(t *testing.T) {
		rec := doJSON(router, http.MethodGet, "/api/auth/me", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("with a garbage token", func(t *testing.T) {
		rec := doJSON(router, http.MethodGet, "/api/auth/me", nil, map[string]string{
			"Authorization": "Bearer not-a-token",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("with a valid token", func(t *testing.T) {
		rec := doJSON(router, http.MethodGet, "/api/auth/me", nil, map[string]string{
			"Authorization": fmt.Sprintf("Bearer %s", registered.Token),
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			User models.UserView `json:"user"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "12345678901", resp.User.CPF)
	})
}
