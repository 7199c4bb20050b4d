package v1

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/riyak972/capstone-chat/internal/domain"
	"github.com/riyak972/capstone-chat/internal/service"
	"github.com/riyak972/capstone-chat/internal/transport/http/middleware"
)

// ListSessions lists the caller's active sessions.
// GET /api/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	sessions, err := h.service.ListSessions(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return h.writeError(c, err)
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	return c.JSON(http.StatusOK, map[string]any{"sessions": sessions})
}

// CreateSession creates a session.
// POST /api/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	var req service.CreateSessionInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	session, err := h.service.CreateSession(c.Request().Context(), middleware.UserID(c), req)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"session": session})
}

// GetSession returns one session.
// GET /api/sessions/:id
func (h *Handler) GetSession(c echo.Context) error {
	session, err := h.service.GetSession(c.Request().Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"session": session})
}

// UpdateSession changes title, provider, model, temperature or system prompt.
// PATCH /api/sessions/:id
func (h *Handler) UpdateSession(c echo.Context) error {
	var req domain.SessionUpdate
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	session, err := h.service.UpdateSession(c.Request().Context(), middleware.UserID(c), c.Param("id"), req)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"session": session})
}

// ClearSession deletes the history of a session.
// POST /api/sessions/:id/clear
func (h *Handler) ClearSession(c echo.Context) error {
	session, err := h.service.ClearSession(c.Request().Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"message": "Session cleared",
		"session": session,
	})
}

// SummarizeSession compacts the history of a session.
// POST /api/sessions/:id/summarize
func (h *Handler) SummarizeSession(c echo.Context) error {
	session, err := h.service.SummarizeSession(c.Request().Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"summary": session.Summary,
		"session": session,
	})
}

// ExportSession downloads a session as JSON.
// GET /api/sessions/export/:id
func (h *Handler) ExportSession(c echo.Context) error {
	export, err := h.service.ExportSession(c.Request().Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="session-%s.json"`, export.Session.ID))
	return c.JSON(http.StatusOK, export)
}
