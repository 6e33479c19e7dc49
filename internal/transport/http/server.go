package http

import (
	stdhttp "net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/airchat/airchat-server/internal/auth"
	"github.com/airchat/airchat-server/internal/config"
	"github.com/airchat/airchat-server/internal/core"
	"github.com/airchat/airchat-server/internal/store"
)

// NewServer builds the HTTP server: REST API, health check, and the
// WebSocket upgrade endpoint.
func NewServer(cfg config.Config, authService *auth.Service, registry *core.Registry, relay *core.Relay, st store.Store, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), LoggerMiddleware(logger))
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	apiHandlers := NewAPIHandlers(authService, logger)
	messageHandlers := NewMessageHandlers(relay, st, logger)
	wsHandler := NewWSHandler(authService, registry, relay, logger)

	engine.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	engine.GET("/ws", gin.WrapH(wsHandler))

	api := engine.Group("/api")
	api.POST("/auth/signup", apiHandlers.Signup)
	api.POST("/auth/login", apiHandlers.Login)

	protected := api.Group("", AuthMiddleware(authService, logger))
	protected.GET("/auth/check", apiHandlers.Check)
	protected.PUT("/auth/update-profile", apiHandlers.UpdateProfile)
	protected.DELETE("/auth/delete-account", apiHandlers.DeleteAccount)

	protected.GET("/messages/users", messageHandlers.ListChatUsers)
	protected.GET("/messages/:id", messageHandlers.GetConversation)
	protected.POST("/messages/send/:id", messageHandlers.SendMessage)
	protected.DELETE("/messages/:id", messageHandlers.DeleteConversation)
	protected.DELETE("/messages", messageHandlers.ClearHistory)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
