package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"RateGate/internal/domain/models"
	domrepo "RateGate/internal/domain/repository"
	pkghttp "RateGate/pkg/http"
)

// HTTPUserLimits reads limits from a remote user service:
// GET {base}/users/{id}/limit and PUT {base}/users/{id}/limit.
type HTTPUserLimits struct {
	client *pkghttp.Client
}

func NewHTTPUserLimits(client *pkghttp.Client) *HTTPUserLimits {
	return &HTTPUserLimits{client: client}
}

func limitPath(userID string) string {
	return "users/" + url.PathEscape(userID) + "/limit"
}

func (r *HTTPUserLimits) GetUserLimit(ctx context.Context, userID string) (*models.UserLimit, error) {
	var ul models.UserLimit
	err := r.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL:    limitPath(userID),
	}, &ul)
	if err != nil {
		var se *pkghttp.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, domrepo.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user limit %s: %w", userID, err)
	}
	if ul.UserID == "" {
		ul.UserID = userID
	}
	return &ul, nil
}

func (r *HTTPUserLimits) SaveUserLimit(ctx context.Context, limit *models.UserLimit) error {
	err := r.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodPut,
		URL:    limitPath(limit.UserID),
		Body:   limit,
	}, nil)
	if err != nil {
		var se *pkghttp.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return domrepo.ErrUserNotFound
		}
		return fmt.Errorf("save user limit %s: %w", limit.UserID, err)
	}
	return nil
}

// Health probes the user service root.
func (r *HTTPUserLimits) Health(ctx context.Context) error {
	resp, err := r.client.SendRequest(ctx, &pkghttp.RequestOptions{Method: pkghttp.MethodGet, URL: "health"})
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("user service health: status %d", resp.StatusCode)
	}
	return nil
}

func (r *HTTPUserLimits) Close() error { return nil }
