package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrShoutNotFound        = errors.New("shout_not_found")
	ErrShoutNotWithdrawable = errors.New("shout_not_withdrawable")
	ErrInvalidTransition    = errors.New("invalid_state_transition")
	ErrDuplicateShout       = errors.New("duplicate_shout")
	ErrMarketNotFound       = errors.New("market_not_found")
	ErrWrongMarket          = errors.New("shout_belongs_to_another_market")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
