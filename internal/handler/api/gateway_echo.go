package api

import (
	"fmt"
	"net/http"
	"net/url"

	xlogger "RateGate/pkg/logger"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// GatewayHandler is the downstream for admitted requests: a reverse proxy
// to the upstream, or built-in ping routes when no upstream is configured.
type GatewayHandler struct {
	logger   *xlogger.Logger
	upstream *url.URL
}

func NewGatewayHandler(logger *xlogger.Logger, upstream string) (*GatewayHandler, error) {
	h := &GatewayHandler{logger: logger}
	if upstream == "" {
		return h, nil
	}
	u, err := url.Parse(upstream)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream url %q", upstream)
	}
	h.upstream = u
	return h, nil
}

func (h *GatewayHandler) RegisterRoutes(e *echo.Echo) {
	if h.upstream == nil {
		e.GET("/ping", h.Ping)
		e.GET("/v1/ping", h.Ping)
		return
	}

	proxy := echomw.ProxyWithConfig(echomw.ProxyConfig{
		Balancer: echomw.NewRoundRobinBalancer([]*echomw.ProxyTarget{{URL: h.upstream}}),
		ErrorHandler: func(c echo.Context, err error) error {
			h.logger.Warn("upstream request failed",
				xlogger.String("upstream", h.upstream.Host),
				xlogger.String("path", c.Request().URL.Path),
				xlogger.Error(err),
			)
			return echo.NewHTTPError(http.StatusBadGateway, "upstream unavailable")
		},
	})
	e.Any("/*", func(echo.Context) error { return nil }, proxy)
}

func (h *GatewayHandler) Ping(c echo.Context) error {
	return c.String(http.StatusOK, "pong")
}
