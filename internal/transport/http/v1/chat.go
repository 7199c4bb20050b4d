package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/riyak972/capstone-chat/internal/domain"
	"github.com/riyak972/capstone-chat/internal/relay"
	"github.com/riyak972/capstone-chat/internal/service"
	"github.com/riyak972/capstone-chat/internal/transport/http/middleware"
)

// Chat runs a non-streaming turn.
// POST /api/chat
func (h *Handler) Chat(c echo.Context) error {
	var req domain.ChatRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	resp, err := h.service.Chat(c.Request().Context(), middleware.UserID(c), req)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// ChatStream runs a turn and streams it as server-sent events. Errors found
// before the stream opens are answered as JSON; later ones arrive as a
// terminal error chunk.
// POST /api/chat/stream
func (h *Handler) ChatStream(c echo.Context) error {
	var req domain.ChatRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	var rl *relay.Relay
	open := func() (service.Sink, error) {
		ch, err := relay.NewSSEChannel(c.Response(), c.Request())
		if err != nil {
			return nil, err
		}
		rl = relay.New(ch, relay.Options{
			HeartbeatInterval: h.config.SSEHeartbeatInterval,
			Retry:             h.config.SSERetry,
			Logger:            h.logger,
		})
		return rl, nil
	}

	_, err := h.service.ChatStream(c.Request().Context(), middleware.UserID(c), req, open)
	if rl == nil {
		if err != nil {
			return h.writeError(c, err)
		}
		return nil
	}
	rl.Close()
	return nil
}
