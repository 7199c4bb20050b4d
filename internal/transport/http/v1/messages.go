package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/riyak972/capstone-chat/internal/domain"
	"github.com/riyak972/capstone-chat/internal/transport/http/middleware"
)

// GetMessages returns the ordered history of a session.
// GET /api/messages?sessionId=...
// GET /api/sessions/messages?sessionId=...
func (h *Handler) GetMessages(c echo.Context) error {
	sessionID := c.QueryParam("sessionId")
	if sessionID == "" {
		return badRequest(c, "sessionId required")
	}

	messages, err := h.service.Messages(c.Request().Context(), middleware.UserID(c), sessionID)
	if err != nil {
		return h.writeError(c, err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return c.JSON(http.StatusOK, map[string]any{"messages": messages})
}
