package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/google/go-github/v66/github"
)

// ErrorType represents different categories of provider errors
type ErrorType string

const (
	ErrorTypeAuth                    ErrorType = "authentication"
	ErrorTypeInsufficientPermissions ErrorType = "insufficient_permissions"
	ErrorTypeTransient               ErrorType = "transient"
	ErrorTypeNotFound                ErrorType = "not_found"
	ErrorTypeValidation              ErrorType = "validation"
	ErrorTypeConflict                ErrorType = "conflict"
	ErrorTypeUnknown                 ErrorType = "unknown"
)

// Error represents a structured error from a provider call
type Error struct {
	Type     ErrorType `json:"type"`
	Message  string    `json:"message"`
	Cause    error     `json:"-"`
	Resource string    `json:"resource,omitempty"`
	// Scope names the missing token scope for insufficient permission errors
	Scope      string `json:"scope,omitempty"`
	Field      string `json:"field,omitempty"`
	Code       string `json:"code,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Retryable  bool   `json:"retryable"`
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if e.Scope != "" {
		msg = fmt.Sprintf("%s (missing scope: %s)", msg, e.Scope)
	}
	if e.Resource != "" {
		return fmt.Sprintf("%s error for %s: %s", e.Type, e.Resource, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Type, msg)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable returns whether the error is retryable
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new Error with the specified type and message
func NewError(errorType ErrorType, message string, cause error) *Error {
	return &Error{
		Type:      errorType,
		Message:   message,
		Cause:     cause,
		Retryable: errorType == ErrorTypeTransient,
	}
}

// IsType reports whether err is a provider error of the given type
func IsType(err error, t ErrorType) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Type == t
}

// IsFatal reports whether err stops all further work on an organization
func IsFatal(err error) bool {
	return IsType(err, ErrorTypeAuth) || IsType(err, ErrorTypeInsufficientPermissions)
}

// Wrap converts an error returned by a provider call into an *Error
func Wrap(err error, resource string) error {
	if err == nil {
		return nil
	}

	var perr *Error
	if errors.As(err, &perr) {
		if perr.Resource == "" {
			perr.Resource = resource
		}
		return perr
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &Error{
			Type:       ErrorTypeTransient,
			Message:    fmt.Sprintf("rate limit exceeded, resets at %v", rateErr.Rate.Reset.Time),
			Cause:      err,
			Resource:   resource,
			StatusCode: statusOf(rateErr.Response),
			Retryable:  true,
		}
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &Error{
			Type:       ErrorTypeTransient,
			Message:    "secondary rate limit exceeded",
			Cause:      err,
			Resource:   resource,
			StatusCode: statusOf(abuseErr.Response),
			Retryable:  true,
		}
	}

	var apiErr *github.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		return parseAPIError(apiErr, resource)
	}

	if isNetworkError(err) {
		return &Error{
			Type:      ErrorTypeTransient,
			Message:   "network error occurred",
			Cause:     err,
			Resource:  resource,
			Retryable: true,
		}
	}

	return &Error{
		Type:     ErrorTypeUnknown,
		Message:  err.Error(),
		Cause:    err,
		Resource: resource,
	}
}

// parseAPIError parses REST error responses into structured errors
func parseAPIError(apiErr *github.ErrorResponse, resource string) *Error {
	resp := apiErr.Response
	baseErr := &Error{
		Resource:   resource,
		Cause:      apiErr,
		StatusCode: resp.StatusCode,
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		baseErr.Type = ErrorTypeAuth
		baseErr.Message = "authentication failed, check the organization's token"
		if strings.Contains(strings.ToLower(apiErr.Message), "token") {
			baseErr.Message = "invalid or expired token"
		}

	case http.StatusForbidden:
		if strings.Contains(strings.ToLower(apiErr.Message), "rate limit") {
			baseErr.Type = ErrorTypeTransient
			baseErr.Message = "API rate limit exceeded"
			baseErr.Retryable = true
			break
		}
		baseErr.Type = ErrorTypeInsufficientPermissions
		baseErr.Message = "insufficient permissions"
		if apiErr.Message != "" {
			baseErr.Message = apiErr.Message
		}
		baseErr.Scope = missingScope(resp)

	case http.StatusNotFound:
		baseErr.Type = ErrorTypeNotFound
		baseErr.Message = "resource not found"
		// the platform hides resources the token cannot see behind 404s
		if scope := missingScope(resp); scope != "" {
			baseErr.Type = ErrorTypeInsufficientPermissions
			baseErr.Message = "resource not visible with the current token"
			baseErr.Scope = scope
		}

	case http.StatusConflict:
		baseErr.Type = ErrorTypeConflict
		baseErr.Message = "resource conflict occurred"
		if strings.Contains(apiErr.Message, "already exists") {
			baseErr.Message = "resource already exists with the same name"
		}

	case http.StatusUnprocessableEntity:
		baseErr.Type = ErrorTypeValidation
		baseErr.Message = "validation failed"
		if len(apiErr.Errors) > 0 {
			var validationErrors []string
			for _, e := range apiErr.Errors {
				if e.Field != "" {
					validationErrors = append(validationErrors, fmt.Sprintf("%s: %s", e.Field, e.Message))
					if baseErr.Field == "" {
						baseErr.Field = e.Field
						baseErr.Code = e.Code
					}
				} else {
					validationErrors = append(validationErrors, e.Message)
				}
			}
			baseErr.Message = fmt.Sprintf("validation failed: %s", strings.Join(validationErrors, "; "))
		} else if apiErr.Message != "" {
			baseErr.Message = fmt.Sprintf("validation failed: %s", apiErr.Message)
		}

	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		baseErr.Type = ErrorTypeTransient
		baseErr.Message = "API is temporarily unavailable"
		baseErr.Retryable = true

	default:
		baseErr.Type = ErrorTypeUnknown
		baseErr.Message = apiErr.Message
		baseErr.Retryable = resp.StatusCode >= 500
		if baseErr.Retryable {
			baseErr.Type = ErrorTypeTransient
		}
	}

	return baseErr
}

// missingScope compares the scopes an endpoint accepts with the scopes the
// token was granted and returns the first one missing
func missingScope(resp *http.Response) string {
	accepted := splitScopes(resp.Header.Get("X-Accepted-OAuth-Scopes"))
	if len(accepted) == 0 {
		return ""
	}
	granted := map[string]bool{}
	for _, s := range splitScopes(resp.Header.Get("X-OAuth-Scopes")) {
		granted[s] = true
	}
	for _, s := range accepted {
		if granted[s] {
			return ""
		}
	}
	return accepted[0]
}

func splitScopes(header string) []string {
	var out []string
	for _, s := range strings.Split(header, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

// isNetworkError checks if an error is a network-related error
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	networkKeywords := []string{
		"connection refused",
		"connection reset",
		"network is unreachable",
		"no such host",
		"i/o timeout",
		"unexpected eof",
	}
	for _, keyword := range networkKeywords {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}
	return false
}
