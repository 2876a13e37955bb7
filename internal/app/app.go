package app

import (
	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/sdk/sqldb"
	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/services/auth"
	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/services/sentry"
)

type App struct {
	db     sqldb.Store
	auth   *auth.Service
	sentry *sentry.Service
}

func NewApp(
	db sqldb.Store,
	authService *auth.Service,
	sentryService *sentry.Service,
) *App {
	return &App{
		db:     db,
		auth:   authService,
		sentry: sentryService,
	}
}
