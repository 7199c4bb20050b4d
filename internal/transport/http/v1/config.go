package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type limitsResponse struct {
	MaxMessageLength      int         `json:"maxMessageLength"`
	MaxSystemPromptLength int         `json:"maxSystemPromptLength"`
	TokenBudget           tokenLimits `json:"tokenBudget"`
}

type tokenLimits struct {
	Default int `json:"default"`
	Max     int `json:"max"`
}

// GetConfig describes the providers, limits and features a client can use.
// GET /api/config
func (h *Handler) GetConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"providers": h.service.Registry().ListAvailable(),
		"limits": limitsResponse{
			MaxMessageLength:      h.config.MaxMessageLength,
			MaxSystemPromptLength: h.config.MaxSystemPromptLength,
			TokenBudget: tokenLimits{
				Default: h.config.TokenBudgetDefault,
				Max:     h.config.TokenBudgetMax,
			},
		},
		"features": map[string]bool{
			"websocket": h.config.FeatureWS,
			"tools":     h.config.FeatureTools,
		},
	})
}

// GetMetrics returns the usage snapshot.
// GET /api/metrics
func (h *Handler) GetMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.Metrics().Snapshot())
}
