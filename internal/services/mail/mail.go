// Package mail dispatches the transactional emails produced by the credential
// lifecycle flows. The core depends only on the Sender interface; the
// production implementation posts to the Mailtrap send API.
package mail

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Sender is the notification capability consumed by the auth service.
type Sender interface {
	SendRegistrationWelcome(to, name, cpf, temporaryPassword string) error
	SendPasswordRecovery(to, name, resetToken string, expiresInMinutes int) error
	SendTemporaryPassword(to, name, temporaryPassword string) error
}

type MailtrapSender struct {
	apiKey         string
	apiURL         string
	fromEmail      string
	fromName       string
	frontendOrigin string
	httpClient     *http.Client
}

// NewMailtrapSender creates the production email sender from environment
// configuration.
func NewMailtrapSender() *MailtrapSender {
	apiURL := os.Getenv("MAILTRAP_API_URL")
	if apiURL == "" {
		apiURL = "https://send.api.mailtrap.io/api/send"
	}

	fromEmail := os.Getenv("MAILTRAP_FROM_EMAIL")
	if fromEmail == "" {
		fromEmail = "noreply@agendaamiga.app"
	}

	fromName := os.Getenv("MAILTRAP_FROM_NAME")
	if fromName == "" {
		fromName = "Agenda Amiga"
	}

	frontendOrigin := os.Getenv("APP_FRONTEND_ORIGIN")
	if frontendOrigin == "" {
		frontendOrigin = "http://localhost:5173"
	}

	return &MailtrapSender{
		apiKey:         os.Getenv("MAILTRAP_API_KEY"),
		apiURL:         apiURL,
		fromEmail:      fromEmail,
		fromName:       fromName,
		frontendOrigin: frontendOrigin,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendRegistrationWelcome delivers the temporary password created during
// registration. The plaintext exists only for the duration of this call.
func (m *MailtrapSender) SendRegistrationWelcome(to, name, cpf, temporaryPassword string) error {
	subject := "Your temporary access is ready"
	body := fmt.Sprintf(
		"Hello %s,\n\n"+
			"Your account has been created and the platform is ready for you.\n"+
			"We prepared a temporary password:\n\n"+
			"Temporary password: %s\n\n"+
			"Sign in with:\n"+
			"Login: %s\n"+
			"Password: the temporary password above\n\n"+
			"After the first sign-in we recommend changing your password.\n"+
			"If you do not recognize this registration, just ignore this email.\n\n"+
			"Agenda Amiga team",
		name, temporaryPassword, cpf,
	)
	return m.send(to, subject, body)
}

// SendPasswordRecovery delivers a password reset code.
func (m *MailtrapSender) SendPasswordRecovery(to, name, resetToken string, expiresInMinutes int) error {
	subject := "Agenda Amiga - password reset"
	body := fmt.Sprintf(
		"Hello %s,\n\n"+
			"We received a request to reset your password.\n"+
			"Use the code below (expires in %d minutes):\n\n"+
			"%s\n\n"+
			"Go to: %s/login\n\n"+
			"If you did not ask for this change, ignore this message.",
		name, expiresInMinutes, resetToken, m.frontendOrigin,
	)
	return m.send(to, subject, body)
}

// SendTemporaryPassword delivers a freshly generated temporary password.
func (m *MailtrapSender) SendTemporaryPassword(to, name, temporaryPassword string) error {
	subject := "Agenda Amiga - temporary password"
	body := fmt.Sprintf(
		"Hello %s,\n\n"+
			"This is the temporary access generated for you:\n\n"+
			"Password: %s\n\n"+
			"Go to: %s/login\n\n"+
			"Change your password as soon as you sign in.",
		name, temporaryPassword, m.frontendOrigin,
	)
	return m.send(to, subject, body)
}

func (m *MailtrapSender) send(to, subject, body string) error {
	reqBody := map[string]any{
		"from": map[string]string{
			"email": m.fromEmail,
			"name":  m.fromName,
		},
		"to": []map[string]string{
			{"email": to},
		},
		"subject": subject,
		"text":    body,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshaling email request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, m.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sending email request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody bytes.Buffer
		if _, readErr := errBody.ReadFrom(resp.Body); readErr == nil {
			return fmt.Errorf("mailtrap API returned status %d: %s", resp.StatusCode, errBody.String())
		}
		return fmt.Errorf("mailtrap API returned status %d", resp.StatusCode)
	}

	slog.Info("email sent", "subject", subject, "to", to)
	return nil
}
