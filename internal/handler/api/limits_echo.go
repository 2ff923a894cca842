package api

import (
	"crypto/subtle"
	"errors"

	models "RateGate/internal/domain/models"
	domrepo "RateGate/internal/domain/repository"
	"RateGate/internal/usecase"
	xhttp "RateGate/pkg/http"
	xlogger "RateGate/pkg/logger"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// LimitsEchoHandler serves the operator API under /admin.
type LimitsEchoHandler struct {
	logger *xlogger.Logger
	admin  *usecase.LimitAdmin
	token  string
}

// NewLimitsEchoHandler creates the admin handler. An empty token leaves the API unauthenticated.
func NewLimitsEchoHandler(logger *xlogger.Logger, admin *usecase.LimitAdmin, token string) *LimitsEchoHandler {
	return &LimitsEchoHandler{logger: logger, admin: admin, token: token}
}

func (h *LimitsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/admin")
	if h.token != "" {
		g.Use(echomw.KeyAuthWithConfig(echomw.KeyAuthConfig{
			KeyLookup:  "header:" + echo.HeaderAuthorization,
			AuthScheme: "Bearer",
			Validator: func(key string, _ echo.Context) (bool, error) {
				return subtle.ConstantTimeCompare([]byte(key), []byte(h.token)) == 1, nil
			},
		}))
	}
	g.GET("/limits/:userId", h.GetLimit)
	g.PUT("/limits/:userId", h.SetLimit)
	g.POST("/cache/flush", h.Flush)
	g.GET("/stats", h.Stats)
}

func (h *LimitsEchoHandler) GetLimit(c echo.Context) error {
	req := &models.UserLimitPathRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.admin.GetLimit(c.Request().Context(), req.UserID)
	if err != nil {
		return h.fail(c, "get limit", req.UserID, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *LimitsEchoHandler) SetLimit(c echo.Context) error {
	req := &models.SetUserLimitRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.admin.SetLimit(c.Request().Context(), req.UserID, req.Limit)
	if err != nil {
		return h.fail(c, "set limit", req.UserID, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *LimitsEchoHandler) Flush(c echo.Context) error {
	h.admin.Flush("admin")
	return xhttp.AcceptedResponse(c, h.admin.Stats())
}

func (h *LimitsEchoHandler) Stats(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.admin.Stats())
}

func (h *LimitsEchoHandler) fail(c echo.Context, op, userID string, err error) error {
	if errors.Is(err, domrepo.ErrUserNotFound) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no limit for user %s", userID).WithParam("user_id", userID))
	}
	h.logger.Error(op+" usecase error", xlogger.String("user_id", userID), xlogger.Error(err))
	return xhttp.AppErrorResponse(c, xhttp.UnavailableError("user limit store unavailable").WithError(err))
}
