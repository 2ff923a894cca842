package ratelimit

import (
	"errors"

	"RateGate/internal/domain/models"
)

var (
	// ErrMissingKey means no rate-limit key could be extracted from the request.
	ErrMissingKey = errors.New("ratelimit: missing key")
	// ErrUnknownIdentity means the per-user lookup has no record for the key.
	ErrUnknownIdentity = errors.New("ratelimit: unknown identity")
	// ErrInvalidConfig aliases the model error so callers need one import.
	ErrInvalidConfig = models.ErrInvalidConfig
)

// Classify maps a resolution error to the request outcome it produces.
func Classify(err error) models.Outcome {
	switch {
	case err == nil:
		return models.OutcomeForwarded
	case errors.Is(err, ErrMissingKey):
		return models.OutcomeMissingKey
	case errors.Is(err, ErrUnknownIdentity):
		return models.OutcomeUnknownIdentity
	case errors.Is(err, ErrInvalidConfig):
		return models.OutcomeInvalidConfig
	default:
		return models.OutcomeLookupFailed
	}
}
