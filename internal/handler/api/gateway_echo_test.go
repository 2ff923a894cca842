package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	xlogger "RateGate/pkg/logger"

	"github.com/labstack/echo/v4"
)

func TestGatewayPingWithoutUpstream(t *testing.T) {
	h, err := NewGatewayHandler(xlogger.Nop(), "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	e := echo.New()
	h.RegisterRoutes(e)

	for _, p := range []string{"/ping", "/v1/ping"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
			t.Fatalf("%s: %d %q", p, rec.Code, rec.Body.String())
		}
	}
}

func TestGatewayProxiesToUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream-Path", r.URL.Path)
		w.WriteHeader(http.StatusTeapot)
	}))
	defer upstream.Close()

	h, err := NewGatewayHandler(xlogger.Nop(), upstream.URL)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	e := echo.New()
	h.RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/orders", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected upstream status to pass through, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Upstream-Path"); got != "/v1/orders" {
		t.Fatalf("upstream saw path %q", got)
	}
}

func TestGatewayRejectsBadUpstream(t *testing.T) {
	if _, err := NewGatewayHandler(xlogger.Nop(), "not a url"); err == nil {
		t.Fatalf("expected error for invalid upstream")
	}
}
