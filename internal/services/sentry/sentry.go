// Package sentry provides error tracking for the auth service.
package sentry

import (
	"os"
	"time"

	"github.com/getsentry/sentry-go"
)

const (
	LevelDebug   Level = sentry.LevelDebug
	LevelInfo    Level = sentry.LevelInfo
	LevelWarning Level = sentry.LevelWarning
	LevelError   Level = sentry.LevelError
	LevelFatal   Level = sentry.LevelFatal
)

type Scope = sentry.Scope
type Level = sentry.Level

type Service struct {
	Dsn         string
	Environment string
	Debug       bool
	SampleRate  float64
}

// NewService initializes the Sentry client from the environment. An empty
// SENTRY_DSN disables delivery without changing the call sites.
func NewService() *Service {
	env := os.Getenv("SENTRY_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	dsn := os.Getenv("SENTRY_DSN")
	debug := env == "development"
	sampleRate := 1.0

	_ = sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: env,
		Debug:       debug,
		SampleRate:  sampleRate,
	})

	return &Service{
		Dsn:         dsn,
		Environment: env,
		Debug:       debug,
		SampleRate:  sampleRate,
	}
}

// CaptureException sends an error to Sentry.
func (s *Service) CaptureException(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
}

// CaptureMessage sends a message to Sentry.
func (s *Service) CaptureMessage(message string) {
	sentry.CaptureMessage(message)
}

// Flush waits for all events to be sent to Sentry.
func (s *Service) Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// Close flushes pending events and shuts down the Sentry client.
func (s *Service) Close() {
	s.Flush(2 * time.Second)
}

// WithScope allows modifying the Sentry scope for a specific operation.
func (s *Service) WithScope(fn func(scope *Scope)) {
	sentry.WithScope(fn)
}
