// Package v1 provides the HTTP handlers of the chat API.
package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/riyak972/capstone-chat/internal/config"
	"github.com/riyak972/capstone-chat/internal/domain"
	"github.com/riyak972/capstone-chat/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	config  *config.Config
	logger  *slog.Logger
}

// NewHandler creates a new handler.
func NewHandler(svc *service.Service, cfg *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: svc,
		config:  cfg,
		logger:  logger,
	}
}

// RegisterRoutes registers the API routes. authenticated runs on every
// route that needs a user; limit runs after it.
func (h *Handler) RegisterRoutes(e *echo.Echo, authenticated, limit echo.MiddlewareFunc) {
	e.GET("/health", h.Health)
	e.GET("/api/config", h.GetConfig)

	api := e.Group("/api", authenticated, limit)
	api.GET("/metrics", h.GetMetrics)

	// Sessions
	api.GET("/sessions", h.ListSessions)
	api.POST("/sessions", h.CreateSession)
	api.GET("/sessions/messages", h.GetMessages)
	api.GET("/sessions/export/:id", h.ExportSession)
	api.GET("/sessions/:id", h.GetSession)
	api.PATCH("/sessions/:id", h.UpdateSession)
	api.POST("/sessions/:id/clear", h.ClearSession)
	api.POST("/sessions/:id/summarize", h.SummarizeSession)

	// Messages
	api.GET("/messages", h.GetMessages)

	// Chat
	api.POST("/chat", h.Chat)
	api.POST("/chat/stream", h.ChatStream)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// statusFor maps an error code to its HTTP status.
func statusFor(code domain.Code) int {
	switch code {
	case domain.CodeValidationFailed, domain.CodeUnknownProvider,
		domain.CodeProviderUnavailable, domain.CodeNoUserMessage:
		return http.StatusBadRequest
	case domain.CodeUnauthorized:
		return http.StatusUnauthorized
	case domain.CodeSessionNotFound:
		return http.StatusNotFound
	case domain.CodeRateLimited:
		return http.StatusTooManyRequests
	case domain.CodeProviderCallFailed, domain.CodeSummaryFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"code", "error"}.
func (h *Handler) writeError(c echo.Context, err error) error {
	code := domain.CodeOf(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"code", code,
			"error", err)
	}
	return c.JSON(status, map[string]string{
		"code":  string(code),
		"error": domain.MessageOf(err),
	})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{
		"code":  string(domain.CodeValidationFailed),
		"error": msg,
	})
}
