package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
)

// ErrorType represents different types of credential errors
type ErrorType string

const (
	ErrorTypeMissingCredentials ErrorType = "missing_credentials"
	ErrorTypePromptUnavailable  ErrorType = "prompt_unavailable"
	ErrorTypeInvalidFile        ErrorType = "invalid_credentials_file"
	ErrorTypeInsecureFile       ErrorType = "insecure_credentials_file"
	ErrorTypeCredentialsAccess  ErrorType = "credentials_access"
	ErrorTypePermissionDenied   ErrorType = "permission_denied"
)

// Error represents a structured credential error with troubleshooting guidance
type Error struct {
	Type                 ErrorType `json:"type"`
	Message              string    `json:"message"`
	OriginalError        error     `json:"-"`
	TroubleshootingSteps []string  `json:"troubleshooting_steps"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the original error for error unwrapping
func (e *Error) Unwrap() error {
	return e.OriginalError
}

// GetTroubleshootingMessage returns a formatted troubleshooting message
func (e *Error) GetTroubleshootingMessage() string {
	if len(e.TroubleshootingSteps) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\nTroubleshooting steps:\n")
	for i, step := range e.TroubleshootingSteps {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, step))
	}
	return sb.String()
}

// ErrNotFound is returned by a source that has no value for a credential
var ErrNotFound = errors.New("credential not found")

func missingCredential(org string, kind Kind) *Error {
	return &Error{
		Type:          ErrorTypeMissingCredentials,
		Message:       fmt.Sprintf("no %s configured for organization %s", kind, org),
		OriginalError: ErrNotFound,
		TroubleshootingSteps: []string{
			fmt.Sprintf("Set %s or %s", envName(org, kind), envName("", kind)),
			fmt.Sprintf("Add %q to the [%s] section of the credentials file", string(kind), org),
			"Run the command from a terminal to be prompted",
		},
	}
}

// ClassifyError analyzes an error and returns a structured Error
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr
	}

	if isFileSystemError(err) {
		return classifyFileSystemError(err)
	}

	return &Error{
		Type:          ErrorTypeCredentialsAccess,
		Message:       fmt.Sprintf("Failed to read credentials: %v", err),
		OriginalError: err,
	}
}

// isFileSystemError checks if the error comes from the file system
func isFileSystemError(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return true
	}

	var syscallErr syscall.Errno
	return errors.As(err, &syscallErr)
}

// classifyFileSystemError creates a specific file system error
func classifyFileSystemError(err error) *Error {
	if errors.Is(err, os.ErrPermission) {
		return &Error{
			Type:          ErrorTypePermissionDenied,
			Message:       "Permission denied - unable to read credentials file",
			OriginalError: err,
			TroubleshootingSteps: []string{
				"Check file permissions on the credentials file",
				"Check if the file is owned by another user",
			},
		}
	}

	return &Error{
		Type:          ErrorTypeCredentialsAccess,
		Message:       "Unable to access credentials file",
		OriginalError: err,
		TroubleshootingSteps: []string{
			"Check that credentials_file in ~/.orgsync/config.yaml points to an existing file",
			"Verify file system permissions",
		},
	}
}
