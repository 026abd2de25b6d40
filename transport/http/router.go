package http

import (
	"github.com/gin-gonic/gin"

	"github.com/0xsend/sendauth/service"
)

// SetupRouter wires the handlers into a Gin engine.
func SetupRouter(handlers *Handlers, auth *service.AuthService) *gin.Engine {
	router := gin.Default()

	// Unauthenticated auth flow
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/challenge", handlers.Challenge)
		authGroup.POST("/verify", handlers.Verify)
		authGroup.POST("/logout", handlers.Logout)
	}

	// Session-protected wallet API
	api := router.Group("/api")
	api.Use(AuthMiddleware(auth))
	{
		api.GET("/me", handlers.Me)
		api.POST("/signers", handlers.AddSigner)
		api.POST("/signers/remove", handlers.RemoveSigner)
		api.POST("/operations", handlers.SubmitOperation)
		api.POST("/operations/decode", handlers.DecodeOperation)
	}

	return router
}
