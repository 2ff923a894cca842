package models

// Requests for the admin limit endpoints.

type UserLimitPathRequest struct {
	UserID string `param:"userId" validate:"required,max=128"`
}

type SetUserLimitRequest struct {
	UserID string `param:"userId" json:"-" validate:"required,max=128"`
	Limit  int64  `json:"limit" validate:"required,gt=0,lte=1000000"`
}

// UserLimitResponse is the admin view of a stored limit.
type UserLimitResponse struct {
	UserID       string `json:"user_id"`
	Limit        int64  `json:"limit"`
	RefillPeriod string `json:"refill_period"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

// StatsResponse summarizes in-memory limiter state.
type StatsResponse struct {
	Buckets       int    `json:"buckets"`
	CachedConfigs int    `json:"cached_configs"`
	Policy        string `json:"policy"`
}
