package models

import "time"

// Outcome is the terminal state of one request passing the admission filter.
type Outcome string

const (
	OutcomeForwarded       Outcome = "forwarded"
	OutcomeBypassed        Outcome = "bypassed"
	OutcomeTooManyRequests Outcome = "too_many_requests"
	OutcomeMissingKey      Outcome = "forbidden_missing_key"
	OutcomeUnknownIdentity Outcome = "forbidden_unknown_identity"
	OutcomeInvalidConfig   Outcome = "forbidden_invalid_config"
	OutcomeLookupFailed    Outcome = "forbidden_lookup_failed"
)

// Forbidden reports whether the outcome maps to a 403.
func (o Outcome) Forbidden() bool {
	switch o {
	case OutcomeMissingKey, OutcomeUnknownIdentity, OutcomeInvalidConfig, OutcomeLookupFailed:
		return true
	default:
		return false
	}
}

// LimitChangedEvent is published when an operator changes a user's limit.
type LimitChangedEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Limit     int64     `json:"limit"`
	ChangedAt time.Time `json:"changed_at"`
}
