package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/platewise/auth/internal/config"
	"github.com/platewise/auth/internal/http/handler"
	httpmiddleware "github.com/platewise/auth/internal/http/middleware"
	"github.com/platewise/auth/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, authMiddleware *httpmiddleware.Auth, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(otelgin.Middleware(cfg.ServiceName))

	authGroup := r.Group("/auth")
	{
		otp := authGroup.Group("/otp")
		{
			otp.POST("/request", authHandler.OTPRequest)
			otp.POST("/verify", authHandler.OTPVerify)
		}

		authGroup.POST("/guest", authHandler.GuestStart)
		authGroup.GET("/me", authMiddleware.ValidateToken, authHandler.Me)
	}

	r.GET("/healthz", authHandler.Health)

	return r
}
