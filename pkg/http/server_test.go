package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

type pingHandler struct{}

type pingRequest struct {
	Name  string `query:"name" validate:"required"`
	Count int    `query:"count" default:"3" validate:"min=1"`
}

func (pingHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error {
		var req pingRequest
		if errs := ReadAndValidateRequest(c, &req); errs != nil {
			return BadRequestResponse(c, errs)
		}
		return SuccessResponse(c, req)
	})
	e.GET("/busy", func(c echo.Context) error {
		return AppErrorResponse(c, ServiceUnavailableError("model not trained").WithRetryAfter(30*time.Second))
	})
	e.GET("/boom", func(c echo.Context) error { panic(errors.New("boom")) })
}

func newTestServer() *Server {
	reg := prometheus.NewRegistry()
	return NewServer(nil, []Handler{pingHandler{}}, WithMetrics("/metrics", reg, reg))
}

func do(s *Server, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestReadAndValidateRequest(t *testing.T) {
	s := newTestServer()
	rec := do(s, "/ping?name=gold")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"Count":3`) {
		t.Fatalf("defaults not applied: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(s, "/ping")
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "ERR_REQUIRED") {
		t.Fatalf("expected required error: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"field":"name"`) {
		t.Fatalf("field should use the wire name: %s", rec.Body.String())
	}
}

func TestAppErrorRetryAfter(t *testing.T) {
	rec := do(newTestServer(), "/busy")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("retry-after: %q", got)
	}
}

func TestRecoverAndMetrics(t *testing.T) {
	s := newTestServer()
	if rec := do(s, "/boom"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("panic status: %d", rec.Code)
	}
	rec := do(s, "/metrics")
	if !strings.Contains(rec.Body.String(), `http_requests_total{method="GET",route="/boom",status="500"} 1`) {
		t.Fatalf("metrics missing panic request:\n%s", rec.Body.String())
	}
}
