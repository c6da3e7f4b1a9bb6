package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apiError(status int, message string, header http.Header) *github.ErrorResponse {
	if header == nil {
		header = http.Header{}
	}
	return &github.ErrorResponse{
		Response: &http.Response{StatusCode: status, Header: header},
		Message:  message,
	}
}

func TestWrap(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
		scope     string
	}{
		{
			name:     "unauthorized",
			err:      apiError(401, "Bad credentials", nil),
			wantType: ErrorTypeAuth,
		},
		{
			name:     "forbidden with missing scope",
			err:      apiError(403, "Resource not accessible", http.Header{"X-Accepted-Oauth-Scopes": {"admin:org"}, "X-Oauth-Scopes": {"repo"}}),
			wantType: ErrorTypeInsufficientPermissions,
			scope:    "admin:org",
		},
		{
			name:      "forbidden by rate limit",
			err:       apiError(403, "API rate limit exceeded for user", nil),
			wantType:  ErrorTypeTransient,
			retryable: true,
		},
		{
			name:     "not found",
			err:      apiError(404, "Not Found", nil),
			wantType: ErrorTypeNotFound,
		},
		{
			name:     "not found hiding a missing scope",
			err:      apiError(404, "Not Found", http.Header{"X-Accepted-Oauth-Scopes": {"admin:org_hook"}, "X-Oauth-Scopes": {"repo, read:org"}}),
			wantType: ErrorTypeInsufficientPermissions,
			scope:    "admin:org_hook",
		},
		{
			name:     "conflict",
			err:      apiError(409, "name already exists on this account", nil),
			wantType: ErrorTypeConflict,
		},
		{
			name:     "validation",
			err:      apiError(422, "Validation Failed", nil),
			wantType: ErrorTypeValidation,
		},
		{
			name:      "server error",
			err:       apiError(502, "Bad Gateway", nil),
			wantType:  ErrorTypeTransient,
			retryable: true,
		},
		{
			name:      "secondary rate limit",
			err:       &github.AbuseRateLimitError{Response: &http.Response{StatusCode: 403}, Message: "slow down"},
			wantType:  ErrorTypeTransient,
			retryable: true,
		},
		{
			name:      "network failure",
			err:       errors.New("dial tcp: connection refused"),
			wantType:  ErrorTypeTransient,
			retryable: true,
		},
		{
			name:     "anything else",
			err:      errors.New("boom"),
			wantType: ErrorTypeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Wrap(tt.err, "organization acme")

			var perr *Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.wantType, perr.Type)
			assert.Equal(t, tt.retryable, perr.IsRetryable())
			assert.Equal(t, tt.scope, perr.Scope)
			assert.Equal(t, "organization acme", perr.Resource)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestWrap_PassThrough(t *testing.T) {
	assert.NoError(t, Wrap(nil, "x"))
	assert.Equal(t, context.Canceled, Wrap(context.Canceled, "x"))

	existing := &Error{Type: ErrorTypeConflict, Message: "taken"}
	err := Wrap(fmt.Errorf("create: %w", existing), "team acme/core")
	assert.Same(t, existing, err)
	assert.Equal(t, "team acme/core", existing.Resource)
}

func TestError_Message(t *testing.T) {
	err := &Error{Type: ErrorTypeInsufficientPermissions, Message: "forbidden", Resource: "webhooks of acme", Scope: "admin:org_hook"}
	assert.Equal(t, "insufficient_permissions error for webhooks of acme: forbidden (missing scope: admin:org_hook)", err.Error())

	bare := NewError(ErrorTypeTransient, "try later", nil)
	assert.Equal(t, "transient error: try later", bare.Error())
	assert.True(t, bare.IsRetryable())
}

func TestValidationErrorFields(t *testing.T) {
	apiErr := apiError(422, "Validation Failed", nil)
	apiErr.Errors = []github.Error{{Resource: "Hook", Field: "url", Code: "invalid", Message: "url is not valid"}}

	var perr *Error
	require.ErrorAs(t, Wrap(apiErr, "webhook"), &perr)
	assert.Equal(t, "url", perr.Field)
	assert.Equal(t, "invalid", perr.Code)
	assert.Contains(t, perr.Message, "url: url is not valid")
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(&Error{Type: ErrorTypeAuth}))
	assert.True(t, IsFatal(fmt.Errorf("wrapped: %w", &Error{Type: ErrorTypeInsufficientPermissions})))
	assert.False(t, IsFatal(&Error{Type: ErrorTypeTransient}))
	assert.False(t, IsFatal(errors.New("plain")))
}

func TestClassifyGraphQLError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType ErrorType
	}{
		{"unauthorized", errors.New("non-200 OK status code: 401 Unauthorized body: \"Bad credentials\""), ErrorTypeAuth},
		{"missing scope", errors.New("Your token has not been granted the required scopes (INSUFFICIENT_SCOPES)"), ErrorTypeInsufficientPermissions},
		{"server error", errors.New("non-200 OK status code: 502 Bad Gateway body: \"\""), ErrorTypeTransient},
		{"unresolvable", errors.New("Could not resolve to an Organization with the login of 'nope'."), ErrorTypeNotFound},
		{"other", errors.New("Field 'x' doesn't exist"), ErrorTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var perr *Error
			require.ErrorAs(t, classifyGraphQLError(tt.err, "rules"), &perr)
			assert.Equal(t, tt.wantType, perr.Type)
		})
	}

	assert.NoError(t, classifyGraphQLError(nil, "rules"))
	deadline := classifyGraphQLError(context.DeadlineExceeded, "rules")
	assert.ErrorIs(t, deadline, context.DeadlineExceeded)
}

func TestRateLimitWait(t *testing.T) {
	retryAfter := 3 * time.Second
	perr := &Error{Cause: &github.AbuseRateLimitError{RetryAfter: &retryAfter}}
	assert.Equal(t, retryAfter, rateLimitWait(perr))
	assert.Zero(t, rateLimitWait(&Error{Cause: errors.New("x")}))
}
