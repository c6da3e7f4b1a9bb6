package model

import "fmt"

// ConfigFormatError is returned when configuration text cannot be parsed at all
type ConfigFormatError struct {
	Source string
	Cause  error
}

func (e *ConfigFormatError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("malformed configuration: %v", e.Cause)
	}
	return fmt.Sprintf("malformed configuration in %s: %v", e.Source, e.Cause)
}

func (e *ConfigFormatError) Unwrap() error { return e.Cause }

// ConfigSchemaError is returned for configuration that parses but does not
// match the resource type's declared fields
type ConfigSchemaError struct {
	Type    string
	Path    string
	Message string
}

func (e *ConfigSchemaError) Error() string {
	return fmt.Sprintf("invalid %s configuration at %s: %s", e.Type, e.Path, e.Message)
}

func schemaError(s *Schema, path, format string, args ...any) *ConfigSchemaError {
	return &ConfigSchemaError{Type: s.Type, Path: path, Message: fmt.Sprintf(format, args...)}
}
