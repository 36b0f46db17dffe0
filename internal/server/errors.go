package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/rigmarket/internal/checkout/domain"
	gatewaydomain "github.com/smallbiznis/rigmarket/internal/gateway/domain"
	ledgerdomain "github.com/smallbiznis/rigmarket/internal/ledger/domain"
	payeedomain "github.com/smallbiznis/rigmarket/internal/payee/domain"
	"github.com/smallbiznis/rigmarket/internal/pricing"
	rentaldomain "github.com/smallbiznis/rigmarket/internal/rental/domain"
	"github.com/smallbiznis/rigmarket/internal/validation"
	webhookdomain "github.com/smallbiznis/rigmarket/internal/webhook/domain"
	"github.com/smallbiznis/rigmarket/pkg/db"
)

type ValidationError = validation.FieldError

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		var rateErr *checkoutdomain.RateLimitError
		if errors.As(lastErr.Err, &rateErr) && rateErr.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rateErr.RetryAfter.Seconds()))))
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request body")
}

func newValidationError(field, code, message string) error {
	return validation.New(ErrInvalidRequest, ValidationError{Field: field, Code: code, Message: message})
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if fields := validation.Fields(err); len(fields) > 0 {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  fields,
		}
	}

	if code, ok := validationCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{Field: validationField(err), Code: code, Message: err.Error()},
			},
		}
	}

	var gwErr *gatewaydomain.GatewayError
	switch {
	case errors.Is(err, gatewaydomain.ErrInvalidSignature):
		return http.StatusBadRequest, errorPayload{
			Type:    "signature_error",
			Message: "webhook signature verification failed",
		}
	case errors.Is(err, gatewaydomain.ErrInvalidPayload),
		errors.Is(err, webhookdomain.ErrEmptyPayload):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_payload",
			Message: "webhook payload could not be decoded",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, checkoutdomain.ErrOrderNotPending),
		errors.Is(err, rentaldomain.ErrAlreadyPaid),
		errors.Is(err, rentaldomain.ErrNotPayable):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, checkoutdomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many checkout attempts, retry later",
		}
	case errors.Is(err, gatewaydomain.ErrNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "config_error",
			Message: "payment gateway is not configured",
		}
	case errors.As(err, &gwErr):
		status := http.StatusBadGateway
		if gwErr.IsTimeout() {
			status = http.StatusGatewayTimeout
		}
		return status, errorPayload{
			Type:    "gateway_error",
			Message: "payment provider request failed, it is safe to retry",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// validationCode maps domain sentinels without field detail to an error code.
func validationCode(err error) (string, bool) {
	for _, sentinel := range []error{
		ErrInvalidRequest,
		checkoutdomain.ErrInvalidRequest,
		checkoutdomain.ErrInvalidOrderID,
		checkoutdomain.ErrZeroAmount,
		checkoutdomain.ErrAmountTooLarge,
		checkoutdomain.ErrMixedCurrency,
		checkoutdomain.ErrIntervalRequired,
		rentaldomain.ErrInvalidRequest,
		rentaldomain.ErrInvalidID,
		rentaldomain.ErrInvalidDateRange,
		rentaldomain.ErrZeroAmount,
		rentaldomain.ErrAmountMismatch,
		rentaldomain.ErrCurrencyMismatch,
		payeedomain.ErrInvalidRequest,
		payeedomain.ErrInvalidOwner,
		ledgerdomain.ErrInvalidOwner,
		ledgerdomain.ErrInvalidPageToken,
		pricing.ErrInvalidDailyRate,
		pricing.ErrInvalidDateRange,
		pricing.ErrRentalTooLong,
		pricing.ErrAmountTooLarge,
		pricing.ErrZeroPayout,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), true
		}
	}
	return "", false
}

func validationField(err error) string {
	switch {
	case errors.Is(err, checkoutdomain.ErrZeroAmount),
		errors.Is(err, checkoutdomain.ErrAmountTooLarge),
		errors.Is(err, rentaldomain.ErrZeroAmount),
		errors.Is(err, rentaldomain.ErrAmountMismatch):
		return "amount"
	case errors.Is(err, checkoutdomain.ErrMixedCurrency),
		errors.Is(err, rentaldomain.ErrCurrencyMismatch):
		return "currency"
	case errors.Is(err, checkoutdomain.ErrIntervalRequired):
		return "line_items"
	case errors.Is(err, rentaldomain.ErrInvalidDateRange),
		errors.Is(err, pricing.ErrInvalidDateRange),
		errors.Is(err, pricing.ErrRentalTooLong):
		return "end_date"
	case errors.Is(err, pricing.ErrInvalidDailyRate),
		errors.Is(err, pricing.ErrAmountTooLarge),
		errors.Is(err, pricing.ErrZeroPayout):
		return "daily_rate"
	case errors.Is(err, ledgerdomain.ErrInvalidPageToken):
		return "page_token"
	case errors.Is(err, checkoutdomain.ErrInvalidOrderID),
		errors.Is(err, rentaldomain.ErrInvalidID),
		errors.Is(err, payeedomain.ErrInvalidOwner),
		errors.Is(err, ledgerdomain.ErrInvalidOwner):
		return "id"
	default:
		return "request"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, checkoutdomain.ErrNotFound),
		errors.Is(err, rentaldomain.ErrNotFound),
		errors.Is(err, payeedomain.ErrNotFound),
		errors.Is(err, ledgerdomain.ErrNotFound),
		errors.Is(err, gatewaydomain.ErrProviderNotFound):
		return true
	default:
		return false
	}
}

// classifyErrorForLog returns the low-cardinality error type and code for
// request logs.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	var kinded interface{ ErrorKind() string }
	if errors.As(err, &kinded) {
		var gwErr *gatewaydomain.GatewayError
		if errors.As(err, &gwErr) {
			return kinded.ErrorKind(), gwErr.Code
		}
		var perr *db.PersistenceError
		if errors.As(err, &perr) {
			return kinded.ErrorKind(), perr.Op
		}
		return kinded.ErrorKind(), ""
	}
	status, payload := mapError(err)
	return payload.Type, strconv.Itoa(status)
}
