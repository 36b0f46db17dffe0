package stripe

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/smallbiznis/rigmarket/internal/gateway/domain"
	stripe "github.com/stripe/stripe-go/v79"
)

func wrapError(op string, err error) *domain.GatewayError {
	gwErr := &domain.GatewayError{Op: op, Err: err}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		gwErr.StatusCode = stripeErr.HTTPStatusCode
		gwErr.Code = string(stripeErr.Code)
		switch {
		case stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
			gwErr.Code = domain.CodeRateLimited
			gwErr.Retryable = true
		case stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
			gwErr.Retryable = true
		case stripeErr.HTTPStatusCode == http.StatusConflict:
			// Concurrent request with the same idempotency key still in flight.
			gwErr.Retryable = true
		}
		if gwErr.Code == "" {
			gwErr.Code = string(stripeErr.Type)
		}
		return gwErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		gwErr.Code = domain.CodeTimeout
		gwErr.Retryable = true
		return gwErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		gwErr.Code = domain.CodeNetwork
		if netErr.Timeout() {
			gwErr.Code = domain.CodeTimeout
		}
		gwErr.Retryable = true
		return gwErr
	}

	gwErr.Code = domain.CodeNetwork
	gwErr.Retryable = !errors.Is(err, context.Canceled)
	return gwErr
}
