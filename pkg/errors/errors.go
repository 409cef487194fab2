package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrItemNotFound      = errors.New("corpus item not found")
	ErrScheduleNotFound  = errors.New("scheduled item not found")
	ErrDuplicateURL      = errors.New("url already exists in the corpus")
	ErrDuplicateSchedule = errors.New("item already scheduled for this surface and date")
	ErrUnknownSurface    = errors.New("unknown scheduled surface")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrItemNotFound), errors.Is(err, ErrScheduleNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateURL), errors.Is(err, ErrDuplicateSchedule):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnknownSurface):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
