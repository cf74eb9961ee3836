package api

import (
	"context"
	"net/http"
	"time"

	"JewelForecast/internal/domain/models"
	xhttp "JewelForecast/pkg/http"

	"github.com/labstack/echo/v4"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

type HealthResponse struct {
	Status string              `json:"status"`
	Checks map[string]string   `json:"checks"`
	Models models.ModelsStatus `json:"models"`
}

// HealthEchoHandler reports dependency health. Untrained models do not make
// the service unhealthy; they are reported alongside.
type HealthEchoHandler struct {
	checks map[string]HealthCheck
	status func() models.ModelsStatus
}

func NewHealthEchoHandler(status func() models.ModelsStatus, checks map[string]HealthCheck) *HealthEchoHandler {
	return &HealthEchoHandler{checks: checks, status: status}
}

func (h *HealthEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
}

func (h *HealthEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	res := HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			res.Checks[name] = err.Error()
			res.Status = "degraded"
			continue
		}
		res.Checks[name] = "ok"
	}
	if h.status != nil {
		res.Models = h.status()
	}
	if res.Status != "ok" {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, res)
	}
	return xhttp.SuccessResponse(c, res)
}
