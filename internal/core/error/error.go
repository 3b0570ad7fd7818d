package errx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// FetchErrorMessage describes a failed upstream collection fetch.
	FetchErrorMessage = "upstream fetch failed"
	// ValidationErrorMessage describes a request rejected before dispatch.
	ValidationErrorMessage = "upstream request failed validation"
)

// Sentinels for errors.Is checks across packages.
var (
	ErrNotFound    = errors.New("not found")
	ErrFetchFailed = errors.New("fetch failed")
	ErrValidation  = errors.New("validation failed")
	ErrUnresolved  = errors.New("unresolved filter values")
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// WrapRedis maps Redis errors to an AppError with a consistent status code and message.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return New(fmt.Errorf("%w: %w", ErrNotFound, err), http.StatusNotFound, RedisNotFoundMessage)
	}
	return New(err, http.StatusBadGateway, RedisErrorMessage)
}

// WrapFetch marks err as a failed upstream fetch. The result matches ErrFetchFailed.
func WrapFetch(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrFetchFailed) {
		return err
	}
	return New(fmt.Errorf("%w: %w", ErrFetchFailed, err), http.StatusBadGateway, FetchErrorMessage)
}

// WrapValidation marks err as a request blocked by validation. The result matches ErrValidation.
func WrapValidation(err error) error {
	if err == nil {
		return nil
	}
	return New(fmt.Errorf("%w: %w", ErrValidation, err), http.StatusUnprocessableEntity, ValidationErrorMessage)
}

// StatusOf returns the HTTP status carried by err, or 500 when it has none.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
