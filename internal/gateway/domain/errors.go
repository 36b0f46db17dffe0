package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotConfigured     = errors.New("payment_gateway_not_configured")
	ErrProviderNotFound  = errors.New("payment_provider_not_found")
	ErrInvalidSignature  = errors.New("invalid_webhook_signature")
	ErrInvalidPayload    = errors.New("invalid_webhook_payload")
	ErrEventIgnored      = errors.New("webhook_event_ignored")
	ErrSessionNotExpired = errors.New("checkout_session_not_expirable")
)

// GatewayError wraps a failed call to the processor. Local state is never
// modified when one is returned.
type GatewayError struct {
	Op         string
	Code       string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway %s failed (%s): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func (e *GatewayError) IsRetryable() bool { return e.Retryable }

func (e *GatewayError) ErrorKind() string { return "gateway_error" }

// IsTimeout reports whether the processor call ran out of time.
func (e *GatewayError) IsTimeout() bool {
	return e.Code == CodeTimeout
}

const (
	CodeTimeout     = "timeout"
	CodeNetwork     = "network"
	CodeRateLimited = "rate_limited"
)
