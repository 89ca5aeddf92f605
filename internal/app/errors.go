package app

import (
	"fmt"
	"net/http"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// FieldIssue describes one rejected input field.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func notFound(format string, args ...any) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf(format, args...), nil)
}

func conflict(format string, args ...any) *DomainError {
	return domainError(http.StatusConflict, "CONFLICT", fmt.Sprintf(format, args...), nil)
}

func badRequest(format string, args ...any) *DomainError {
	return domainError(http.StatusBadRequest, "BAD_REQUEST", fmt.Sprintf(format, args...), nil)
}

func validationFailed(issues []FieldIssue) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Validation error", issues)
}

func postNotFound(slug string) *DomainError {
	return notFound("Post with slug %q not found", slug)
}

func postSlugTaken(slug string) *DomainError {
	return conflict("Post with slug %q already exists", slug)
}
