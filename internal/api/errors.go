package api

import (
	"errors"
	"log/slog"
	"net/http"
)

// AppError is an error with a client-safe message and an HTTP status.
type AppError struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
}

func (e *AppError) Error() string {
	return e.Message
}

func NewBadRequestError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func NewServiceUnavailableError(msg string) *AppError {
	return &AppError{Code: http.StatusServiceUnavailable, Message: msg}
}

// HandleError writes err as a JSON error body. Anything other than an
// AppError is logged and hidden behind a generic 500.
func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		JSONErrorMessage(w, appErr.Code, appErr.Message)
		return
	}
	slog.Error("unhandled error", "error", err)
	JSONErrorMessage(w, http.StatusInternalServerError, "internal server error")
}
