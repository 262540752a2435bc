package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/superpool/walletauth/service"
)

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, appCheckService *service.AppCheckService) *gin.Engine {
	router := gin.Default()

	// Non-POST requests to registered routes get 405 instead of 404;
	// the app-check contract requires it.
	router.HandleMethodNotAllowed = true

	handlers := NewAuthHandlers(authService, appCheckService)

	// Auth routes
	auth := router.Group("/auth")
	{
		auth.POST("/message", handlers.GenerateMessage)
		auth.POST("/verify", handlers.VerifyAndLogin)
		auth.POST("/refresh", handlers.Refresh)
		auth.POST("/logout", handlers.Logout)
	}

	// Device attestation. POST only: every other method gets 405.
	router.POST("/appcheck/mint", handlers.MintAppCheck)
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})

	// Protected API routes
	api := router.Group("/api")
	api.Use(AuthMiddleware(authService))
	{
		api.GET("/me", handlers.Me)
		api.GET("/authorize", handlers.Authorize)
	}

	return router
}
