package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/smallbiznis/calendar-bridge/internal/config"
	"github.com/smallbiznis/calendar-bridge/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/calendar-bridge/internal/http/middleware"
	"github.com/smallbiznis/calendar-bridge/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, eventHandler *handler.EventHandler, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	r.Use(middleware.CORS(cfg))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/", authHandler.Root)
	r.GET("/healthz", authHandler.Health)
	r.GET("/auth/login", authHandler.Login)
	r.GET("/callback", authHandler.Callback)

	authed := r.Group("/", httpmiddleware.Identity())
	{
		event := authed.Group("/event")
		{
			event.POST("/create", eventHandler.Create)
			event.PATCH("/update/:id", eventHandler.Update)
			event.DELETE("/delete/:id", eventHandler.Delete)
		}
		authed.POST("/logout", authHandler.Logout)
	}

	return r
}
