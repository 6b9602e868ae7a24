package engine

import (
	"errors"
	"fmt"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

// StatusCode lets middleware outside this package see the HTTP status.
func (e *AppError) StatusCode() int { return e.Status }

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

// ErrSuperseded is returned for a fetch whose result was discarded because a
// newer fetch for the same resource started.
var ErrSuperseded = errors.New("superseded by a newer request")

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func PageNotFoundError(id string) *AppError {
	return &AppError{
		Code:    "PAGE_NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("Page %s not found", id),
	}
}

func UnknownButtonError(page, ref string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_BUTTON",
		Status:  404,
		Message: fmt.Sprintf("Page %s has no button %s", page, ref),
	}
}

func InvalidDefinitionError(msg string, details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "INVALID_DEFINITION",
		Status:  422,
		Message: msg,
		Details: details,
	}
}

func InvalidPayloadError(msg string) *AppError {
	return &AppError{Code: "INVALID_PAYLOAD", Status: 400, Message: msg}
}

func ActionUnavailableError(title, reason string) *AppError {
	return &AppError{
		Code:    "ACTION_UNAVAILABLE",
		Status:  409,
		Message: fmt.Sprintf("Action %q is %s", title, reason),
	}
}

func ActionInFlightError(title string) *AppError {
	return &AppError{
		Code:    "ACTION_IN_FLIGHT",
		Status:  409,
		Message: fmt.Sprintf("Action %q is already running for this row", title),
	}
}

// OperationFailedError carries a backend failure message verbatim.
func OperationFailedError(msg string) *AppError {
	if msg == "" {
		msg = "Operation failed"
	}
	return &AppError{Code: "OPERATION_FAILED", Status: 502, Message: msg}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Status: 403, Message: msg}
}
