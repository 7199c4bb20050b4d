// Package http provides the HTTP server of the chat API.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/riyak972/capstone-chat/internal/config"
	"github.com/riyak972/capstone-chat/internal/service"
	"github.com/riyak972/capstone-chat/internal/transport/http/middleware"
	v1 "github.com/riyak972/capstone-chat/internal/transport/http/v1"
	"github.com/riyak972/capstone-chat/internal/transport/ws"
)

// Options carries the optional collaborators of the server.
type Options struct {
	// Redis backs the rate limiter. When nil an in-process limiter is used.
	Redis *redis.Client
	// Gatherer is served on /metrics when set.
	Gatherer prometheus.Gatherer
	// WS is mounted on /api/ws when set.
	WS     *ws.Server
	Logger *slog.Logger
}

// NewServer creates and configures the HTTP server.
func NewServer(svc *service.Service, cfg *config.Config, opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{cfg.ClientOrigin},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))

	limitCfg := middleware.RateLimitConfig{Max: cfg.RateLimitMax, Window: cfg.RateLimitWindow}
	limit := middleware.MemoryRateLimit(limitCfg)
	if opts.Redis != nil {
		limit = middleware.RedisRateLimit(opts.Redis, limitCfg)
	}

	// Handlers
	h := v1.NewHandler(svc, cfg, opts.Logger)
	h.RegisterRoutes(e, middleware.RequireAuth(cfg.JWTSecret), limit)

	if opts.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	if opts.WS != nil {
		e.GET("/api/ws", opts.WS.HandleWebSocket)
	}

	return e
}
