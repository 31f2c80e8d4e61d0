// Package tools implements the business handlers behind the MCP tool
// surface. Handlers return a Result; infrastructure failures (context
// cancellation, programming errors) are Go errors, everything the model can
// act on is a Result with StatusError.
package tools

import (
	"context"
	"errors"

	"github.com/vmforge/proxmox-mcp/internal/guest"
	"github.com/vmforge/proxmox-mcp/internal/proxmox"
	"github.com/vmforge/proxmox-mcp/internal/security"
)

// Status indicates whether a tool call succeeded.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ErrorCode classifies tool errors for the model.
type ErrorCode string

const (
	ErrCodeValidation  ErrorCode = "VALIDATION"
	ErrCodeSecurity    ErrorCode = "SECURITY"
	ErrCodeNotFound    ErrorCode = "NOT_FOUND"
	ErrCodeExecution   ErrorCode = "EXECUTION"
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE"
)

// Error is a structured tool error the model can understand and correct.
type Error struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Result is the uniform outcome of every tool handler.
type Result struct {
	Status Status `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  *Error `json:"error,omitempty"`
}

func success(data any) Result {
	return Result{Status: StatusSuccess, Data: data}
}

func failure(code ErrorCode, message string) Result {
	return Result{Status: StatusError, Error: &Error{Code: code, Message: message}}
}

// errorResult maps a domain error to a Result, or propagates context errors
// as Go errors so the protocol layer can abort the call.
func errorResult(err error) (Result, error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Result{}, err
	}

	var apiErr *proxmox.APIError
	switch {
	case errors.Is(err, security.ErrInvalidInput):
		return failure(ErrCodeValidation, err.Error()), nil
	case errors.Is(err, guest.ErrNoChannel),
		errors.Is(err, guest.ErrAgentUnavailable),
		errors.Is(err, guest.ErrConnectTimeout),
		errors.Is(err, guest.ErrAuthFailure),
		errors.Is(err, proxmox.ErrAgentNotRunning):
		return failure(ErrCodeUnavailable, err.Error()), nil
	case errors.As(err, &apiErr) && apiErr.Status == 404:
		return failure(ErrCodeNotFound, err.Error()), nil
	default:
		return failure(ErrCodeExecution, err.Error()), nil
	}
}
