// Package app provides HTTP handlers for the care coordination auth service.
package app

import (
	"github.com/gin-gonic/gin"

	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/sdk/middleware"
)

// ----------------------------------------------------------------------------
// Route Registration
// ----------------------------------------------------------------------------

func (a *App) RegisterRoutes() *gin.Engine {
	router := gin.New()

	// Global middleware chain. Authenticate attaches an identity when a valid
	// bearer token is present; routes outside a RequireUser group stay public.
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS())
	router.Use(middleware.Authenticate(a.auth))

	// Health check routes (public)
	router.GET("/health", a.HandleLiveness)
	router.GET("/api/health", a.HandleReadiness)

	// Auth routes (public)
	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/register", a.HandleRegister)
		authGroup.POST("/login", a.HandleLogin)
		authGroup.POST("/recover", a.HandleRecover)
		authGroup.POST("/recover/confirm", a.HandleRecoverConfirm)
		authGroup.POST("/send-temporary-password", a.HandleSendTemporaryPassword)

		// Protected: requires an attached identity.
		authGroup.GET("/me", middleware.RequireUser(), a.HandleMe)
	}

	return router
}
