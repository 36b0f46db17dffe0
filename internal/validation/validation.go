// Package validation runs struct tag validation and reports field errors in
// the shape returned by the HTTP error payload.
package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error is a request rejected before any external call was made. Err is the
// domain sentinel callers match with errors.Is.
type Error struct {
	Err    error
	Fields []FieldError
}

func New(sentinel error, fields ...FieldError) *Error {
	return &Error{Err: sentinel, Fields: fields}
}

func (e *Error) Error() string {
	if e == nil || e.Err == nil {
		return "validation_error"
	}
	if len(e.Fields) == 0 {
		return e.Err.Error()
	}
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return e.Err.Error() + ": " + strings.Join(names, ",")
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) ErrorKind() string { return "validation_error" }

// Struct validates v against its `validate` tags. It returns nil or an
// *Error wrapping sentinel.
func Struct(sentinel error, v any) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return New(sentinel, FieldError{Field: "request", Code: "invalid", Message: err.Error()})
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{
			Field:   fieldPath(fe),
			Code:    codeFor(fe.Tag()),
			Message: messageFor(fe),
		})
	}
	return New(sentinel, fields...)
}

// Fields extracts field errors from err, if any.
func Fields(err error) []FieldError {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Fields
	}
	return nil
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

func codeFor(tag string) string {
	switch tag {
	case "required", "required_if", "required_with":
		return "required"
	case "email":
		return "invalid_email"
	case "url", "http_url":
		return "invalid_url"
	case "gt", "gte", "min":
		return "too_small"
	case "lt", "lte", "max":
		return "too_large"
	case "oneof":
		return "invalid_choice"
	case "iso3166_1_alpha2", "iso4217":
		return "invalid_code"
	default:
		return "invalid"
	}
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if", "required_with":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "url", "http_url":
		return fe.Field() + " must be an absolute URL"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	case "gt", "gte", "min":
		return fe.Field() + " must be at least " + fe.Param()
	case "iso3166_1_alpha2":
		return fe.Field() + " must be a two-letter country code"
	case "iso4217":
		return fe.Field() + " must be a three-letter currency code"
	default:
		return fe.Field() + " is invalid"
	}
}
