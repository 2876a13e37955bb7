package app

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/sdk/middleware"
	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/sdk/models"
	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/services/auth"
	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/services/sentry"
)

const (
	maxNameLength        = 160
	minResetTokenLength  = 6
	minNewPasswordLength = 8
)

type RegisterRequest struct {
	Name  string `json:"name"`
	CPF   string `json:"cpf"`
	Email string `json:"email"`
}

type LoginRequest struct {
	CPF      string `json:"cpf"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RecoverRequest struct {
	CPF   string `json:"cpf"`
	Email string `json:"email"`
}

type RecoverConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type TemporaryPasswordRequest struct {
	Email string `json:"email"`
}

type AuthResponse struct {
	Token string          `json:"token"`
	User  models.UserView `json:"user"`
}

type RecoverResponse struct {
	Message          string `json:"message"`
	ExpiresInMinutes int    `json:"expires_in_minutes"`
	Token            string `json:"token,omitempty"`
}

// HandleRegister creates a user with a generated temporary password and
// returns a bearer token plus the public user view.
func (a *App) HandleRegister(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request_body", nil)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.CPF = strings.TrimSpace(req.CPF)

	if validationErrors := validateRegisterInput(req); len(validationErrors) > 0 {
		writeError(c, http.StatusBadRequest, "validation_failed", validationErrors)
		return
	}

	result, err := a.auth.Register(c.Request.Context(), auth.RegisterInput{
		Name:  req.Name,
		CPF:   req.CPF,
		Email: emailPtr(req.Email),
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrConflict):
			writeError(c, http.StatusConflict, "already_registered", nil)
		case errors.Is(err, auth.ErrNotificationFailed):
			writeError(c, http.StatusBadGateway, "notification_channel_unavailable", nil)
		default:
			a.toSentry(c, "register", "auth", sentry.LevelError, err)
			writeError(c, http.StatusInternalServerError, "internal_register_error", nil)
		}
		return
	}

	c.JSON(http.StatusCreated, AuthResponse{
		Token: result.Token,
		User:  models.NewUserView(result.User),
	})
}

// HandleLogin authenticates by cpf or email plus password.
func (a *App) HandleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request_body", nil)
		return
	}

	req.CPF = strings.TrimSpace(req.CPF)
	req.Email = strings.TrimSpace(req.Email)

	if validationErrors := validateLoginInput(req); len(validationErrors) > 0 {
		writeError(c, http.StatusBadRequest, "validation_failed", validationErrors)
		return
	}

	result, err := a.auth.Login(c.Request.Context(), req.CPF, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(c, http.StatusUnauthorized, "invalid_credentials", nil)
			return
		}
		a.toSentry(c, "login", "auth", sentry.LevelError, err)
		writeError(c, http.StatusInternalServerError, "internal_login_error", nil)
		return
	}

	c.JSON(http.StatusOK, AuthResponse{
		Token: result.Token,
		User:  models.NewUserView(result.User),
	})
}

// HandleRecover starts password recovery. The response never reveals whether
// the identifier matched an account.
func (a *App) HandleRecover(c *gin.Context) {
	var req RecoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request_body", nil)
		return
	}

	req.CPF = strings.TrimSpace(req.CPF)
	req.Email = strings.TrimSpace(req.Email)

	if req.CPF == "" && req.Email == "" {
		writeError(c, http.StatusBadRequest, "validation_failed", map[string]string{
			"cpf": "cpf_or_email_required",
		})
		return
	}

	rawToken, found, err := a.auth.RequestRecovery(c.Request.Context(), req.CPF, req.Email)
	if err != nil {
		if errors.Is(err, auth.ErrNotificationFailed) {
			writeError(c, http.StatusBadGateway, "notification_channel_unavailable", nil)
			return
		}
		a.toSentry(c, "recover", "auth", sentry.LevelError, err)
		writeError(c, http.StatusInternalServerError, "internal_recover_error", nil)
		return
	}

	response := RecoverResponse{
		Message:          "If the account exists, instructions have been sent to its email",
		ExpiresInMinutes: a.auth.ResetTTLMinutes(),
	}
	if found && a.auth.ExposeRecoveryToken() {
		response.Token = rawToken
	}

	c.JSON(http.StatusOK, response)
}

// HandleRecoverConfirm completes password recovery with a reset token.
func (a *App) HandleRecoverConfirm(c *gin.Context) {
	var req RecoverConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request_body", nil)
		return
	}

	req.Token = strings.TrimSpace(req.Token)

	if validationErrors := validateRecoverConfirmInput(req); len(validationErrors) > 0 {
		writeError(c, http.StatusBadRequest, "validation_failed", validationErrors)
		return
	}

	if err := a.auth.ConfirmRecovery(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, auth.ErrResetTokenNotFound):
			writeError(c, http.StatusNotFound, "invalid_or_expired_reset_token", nil)
		case errors.Is(err, auth.ErrResetTokenInvalid):
			writeError(c, http.StatusBadRequest, "invalid_or_expired_reset_token", nil)
		default:
			a.toSentry(c, "recover_confirm", "auth", sentry.LevelError, err)
			writeError(c, http.StatusInternalServerError, "internal_recover_confirm_error", nil)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Password has been reset, you can now sign in",
	})
}

// HandleSendTemporaryPassword replaces the account's password with a mailed
// temporary one. The email was supplied as an explicit lookup key, so a miss
// is a 404.
func (a *App) HandleSendTemporaryPassword(c *gin.Context) {
	var req TemporaryPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request_body", nil)
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if !isValidEmail(req.Email) {
		writeError(c, http.StatusBadRequest, "validation_failed", map[string]string{
			"email": "invalid_email_format",
		})
		return
	}

	plaintext, err := a.auth.SendTemporaryPassword(c.Request.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserNotFound):
			writeError(c, http.StatusNotFound, "user_not_found", nil)
		case errors.Is(err, auth.ErrNotificationFailed):
			writeError(c, http.StatusBadGateway, "notification_channel_unavailable", nil)
		default:
			a.toSentry(c, "send_temporary_password", "auth", sentry.LevelError, err)
			writeError(c, http.StatusInternalServerError, "internal_temporary_password_error", nil)
		}
		return
	}

	response := gin.H{
		"message": "A temporary password has been sent to the registered email",
	}
	if a.auth.ExposeRecoveryToken() {
		// Environments without email infrastructure only. Never enable in production.
		response["temporary_password"] = plaintext
	}

	c.JSON(http.StatusOK, response)
}

// HandleMe returns the authenticated user's view.
func (a *App) HandleMe(c *gin.Context) {
	user, ok := middleware.UserFrom(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "authentication_required", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": models.NewUserView(user)})
}

func validateRegisterInput(req RegisterRequest) map[string]string {
	validationErrors := make(map[string]string)

	if req.Name == "" {
		validationErrors["name"] = "name_required"
	} else if len(req.Name) > maxNameLength {
		validationErrors["name"] = "name_too_long"
	}

	if req.CPF == "" {
		validationErrors["cpf"] = "cpf_required"
	} else if !isValidCPF(req.CPF) {
		validationErrors["cpf"] = "cpf_must_be_11_digits"
	}

	if email := strings.TrimSpace(req.Email); email != "" && !isValidEmail(email) {
		validationErrors["email"] = "invalid_email_format"
	}

	if len(validationErrors) == 0 {
		return nil
	}

	return validationErrors
}

func validateLoginInput(req LoginRequest) map[string]string {
	validationErrors := make(map[string]string)

	if req.CPF == "" && req.Email == "" {
		validationErrors["cpf"] = "cpf_or_email_required"
	}
	if req.CPF != "" && !isValidCPF(req.CPF) {
		validationErrors["cpf"] = "cpf_must_be_11_digits"
	}
	if req.Password == "" {
		validationErrors["password"] = "password_required"
	}

	if len(validationErrors) == 0 {
		return nil
	}

	return validationErrors
}

func validateRecoverConfirmInput(req RecoverConfirmRequest) map[string]string {
	validationErrors := make(map[string]string)

	if len(req.Token) < minResetTokenLength {
		validationErrors["token"] = "token_required"
	}
	if len(req.NewPassword) < minNewPasswordLength {
		validationErrors["new_password"] = "password_too_short"
	}

	if len(validationErrors) == 0 {
		return nil
	}

	return validationErrors
}
