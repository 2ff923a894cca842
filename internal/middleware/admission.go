package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"RateGate/internal/domain/models"
	domrepo "RateGate/internal/domain/repository"
	"RateGate/internal/service/ratelimit"
	applogger "RateGate/pkg/logger"
	"RateGate/pkg/metrics"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

const (
	HeaderRemaining         = "X-Rate-Limit-Remaining"
	HeaderRetryAfterSeconds = "X-Rate-Limit-Retry-After-Seconds"
)

// KeyExtractor returns the rate-limit key for a request. applies=false means
// the request is outside the filter's scope and is forwarded untouched.
type KeyExtractor func(c echo.Context) (key string, applies bool)

// RemoteIP keys by client address. With trustProxy the address comes from
// X-Forwarded-For / X-Real-IP, otherwise from the connection.
func RemoteIP(trustProxy bool) KeyExtractor {
	return func(c echo.Context) (string, bool) {
		if trustProxy {
			return c.RealIP(), true
		}
		addr := c.Request().RemoteAddr
		if host, _, err := net.SplitHostPort(addr); err == nil {
			return host, true
		}
		return addr, true
	}
}

// HeaderWithPrefix keys by a request header, only for paths under prefix.
// An empty prefix applies to every path.
func HeaderWithPrefix(header, prefix string) KeyExtractor {
	return func(c echo.Context) (string, bool) {
		if prefix != "" && !hasPathPrefix(c.Request().URL.Path, prefix) {
			return "", false
		}
		return c.Request().Header.Get(header), true
	}
}

// SkipPaths skips requests whose path equals or lies under any of paths.
func SkipPaths(paths ...string) echomw.Skipper {
	return func(c echo.Context) bool {
		p := c.Request().URL.Path
		for _, s := range paths {
			if hasPathPrefix(p, s) {
				return true
			}
		}
		return false
	}
}

func hasPathPrefix(path, prefix string) bool {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// Admission gates requests with the per-key token bucket.
type Admission struct {
	limiter *ratelimit.Limiter
	extract KeyExtractor
	skipper echomw.Skipper
	metrics domrepo.Metrics
	log     *applogger.Logger
}

type AdmissionOption func(*Admission)

func WithSkipper(s echomw.Skipper) AdmissionOption {
	return func(a *Admission) {
		if s != nil {
			a.skipper = s
		}
	}
}

func WithAdmissionMetrics(m domrepo.Metrics) AdmissionOption {
	return func(a *Admission) {
		if m != nil {
			a.metrics = m
		}
	}
}

func WithAdmissionLogger(l *applogger.Logger) AdmissionOption {
	return func(a *Admission) {
		if l != nil {
			a.log = l
		}
	}
}

func NewAdmission(limiter *ratelimit.Limiter, extract KeyExtractor, opts ...AdmissionOption) *Admission {
	a := &Admission{
		limiter: limiter,
		extract: extract,
		skipper: echomw.DefaultSkipper,
		metrics: metrics.Noop{},
		log:     applogger.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With(applogger.String("component", "admission"))
	return a
}

// Middleware returns the echo middleware. Rejections are written here and
// never returned as errors, so nothing downstream sees a rejected request.
func (a *Admission) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if a.skipper(c) {
				return next(c)
			}

			key, applies := a.extract(c)
			if !applies {
				a.metrics.RecordAdmission(string(models.OutcomeBypassed))
				return next(c)
			}

			key = strings.TrimSpace(key)
			if key == "" {
				return a.forbid(c, models.OutcomeMissingKey, ratelimit.ErrMissingKey)
			}

			probe, err := a.limiter.Allow(c.Request().Context(), key)
			if err != nil {
				return a.forbid(c, ratelimit.Classify(err), err)
			}

			h := c.Response().Header()
			h.Set(HeaderRemaining, strconv.FormatInt(probe.Remaining, 10))
			if !probe.Consumed {
				a.metrics.RecordAdmission(string(models.OutcomeTooManyRequests))
				h.Set(HeaderRetryAfterSeconds, strconv.FormatInt(retrySeconds(probe.RetryAfter), 10))
				h.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
				return c.NoContent(http.StatusTooManyRequests)
			}

			a.metrics.RecordAdmission(string(models.OutcomeForwarded))
			return next(c)
		}
	}
}

func (a *Admission) forbid(c echo.Context, outcome models.Outcome, err error) error {
	a.metrics.RecordAdmission(string(outcome))
	a.log.Warn("request rejected",
		applogger.String("outcome", string(outcome)),
		applogger.String("path", c.Request().URL.Path),
		applogger.Error(err),
	)
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return c.NoContent(http.StatusForbidden)
}

func retrySeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}
