package models

import "fmt"

// ErrorType represents different categories of errors
type ErrorType int

const (
	ErrSourceUnreadable ErrorType = iota
	ErrUnresolvedProvenance
	ErrMalformed
	ErrCommand
	ErrInvalidConfig
	ErrNotFound
	ErrClosed
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrSourceUnreadable:
		return "SourceUnreadable"
	case ErrUnresolvedProvenance:
		return "UnresolvedProvenance"
	case ErrMalformed:
		return "Malformed"
	case ErrCommand:
		return "Command"
	case ErrInvalidConfig:
		return "InvalidConfig"
	case ErrNotFound:
		return "NotFound"
	case ErrClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// CatalogError represents a failure local to one file or operation
type CatalogError struct {
	Type ErrorType
	Path string // file path or package name the error relates to
	Err  error
}

// Error implements the error interface
func (e *CatalogError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Path, e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.Type, e.Err)
}

// Unwrap returns the wrapped error
func (e *CatalogError) Unwrap() error {
	return e.Err
}

// CommandError carries the raw error output of a failed external command
type CommandError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %s", e.Command, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
