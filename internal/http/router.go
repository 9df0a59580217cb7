package http

import (
	"context"
	"log/slog"

	"github.com/geocoder89/chatauth/internal/http/handlers"
	"github.com/geocoder89/chatauth/internal/http/middlewares"
	"github.com/geocoder89/chatauth/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Accounts interface {
	handlers.AccountService
	middlewares.Authenticator
}

type RouterDeps struct {
	Env         string
	ServiceName string
	Log         *slog.Logger
	Accounts    Accounts

	// Ping backs /readyz. nil means always ready.
	Ping func(ctx context.Context) error
	// ShuttingDown flips /readyz to 503 while the server drains.
	ShuttingDown func() bool

	// Prom and Gatherer are optional; without them /metrics is not mounted.
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer

	// Avatars serves /media when avatars live in the local blob bucket.
	Avatars handlers.AvatarReader

	CORSOrigins  []string
	MaxBodyBytes int64
}

func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	if deps.ServiceName != "" {
		r.Use(otelgin.Middleware(deps.ServiceName))
	}
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(deps.Log))
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(deps.CORSOrigins))

	// health
	h := handlers.NewHealthHandler(deps.Ping, deps.ShuttingDown)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	if deps.Avatars != nil {
		r.GET("/media/*key", handlers.NewMediaHandler(deps.Avatars).Get)
	}

	// Routes
	authHandler := handlers.NewAuthHandler(deps.Accounts)
	authMW := middlewares.NewAuthMiddleware(deps.Accounts)

	authGroup := r.Group("/auth")
	authGroup.Use(middlewares.MaxBodyBytes(deps.MaxBodyBytes), middlewares.RequireJSON())
	{
		authGroup.POST("/signup", authHandler.SignUp)
		authGroup.POST("/login", authHandler.Login)
		authGroup.GET("/me", authMW.RequireAuth(), authHandler.Me)
		authGroup.PATCH("/profile", authMW.RequireAuth(), authHandler.UpdateProfile)
	}

	return r
}
