package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Exit codes shared by every command.
const (
	ExitOK          = 0
	ExitOperation   = 1
	ExitEnvironment = 2
)

// Error classes reported by the secret store client and the authenticator.
// Callers test for them with errors.Is.
var (
	ErrNotFound          = errors.New("secret not found")
	ErrForbidden         = errors.New("permission denied by secret store")
	ErrUnreachable       = errors.New("secret store unreachable")
	ErrNotRenewable      = errors.New("token cannot be renewed")
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrManualTokenUpdate = errors.New("token expired and must be replaced manually")
	ErrStore             = errors.New("secret store request failed")
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// CommandError represents a failure to launch a child command
type CommandError struct {
	Command    string
	ExitCode   int
	Message    string
	Suggestion string
}

func (e CommandError) Error() string {
	msg := fmt.Sprintf("Command '%s' failed", e.Command)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit code: %d)", e.ExitCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// StoreError describes a failed request against the secret store. Kind is
// one of the sentinel classes above.
type StoreError struct {
	Op     string
	Path   string
	Status int
	Kind   error
	Err    error
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Err != nil && e.Err != e.Kind {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports the error class, so errors.Is(err, ErrForbidden) works on a
// wrapped StoreError.
func (e *StoreError) Is(target error) bool {
	return e.Kind == target
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IOError is a local filesystem failure. It is never swallowed.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ExitError carries a child process exit code through the command layer
// so that main can exit with it unchanged.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var cmdErr CommandError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode != 0 {
		return cmdErr.ExitCode
	}

	var ioErr *IOError
	var cfgErr ConfigError
	var cfgErrPtr *ConfigError
	switch {
	case errors.Is(err, ErrUnreachable):
		return ExitEnvironment
	case errors.As(err, &ioErr):
		return ExitEnvironment
	case errors.As(err, &cfgErr), errors.As(err, &cfgErrPtr):
		return ExitEnvironment
	}

	return ExitOperation
}

// WrapCommandNotFound wraps command not found errors with helpful suggestions
func WrapCommandNotFound(command string, err error) error {
	suggestions := map[string]string{
		"docker":  "Install Docker from https://docker.com/",
		"compose": "Use 'docker compose' or install docker-compose",
		"node":    "Install Node.js from https://nodejs.org/",
		"python3": "Install Python from https://python.org/",
	}

	suggestion := suggestions[command]
	if suggestion == "" {
		suggestion = fmt.Sprintf("Make sure '%s' is installed and in your PATH", command)
	}

	return CommandError{
		Command:    command,
		ExitCode:   127,
		Message:    "command not found",
		Suggestion: suggestion,
	}
}

// Suggest returns a hint for the common store failures, or "".
func Suggest(err error) string {
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return "Run 'vaultctl init' to configure AppRole or token credentials"
	case errors.Is(err, ErrManualTokenUpdate):
		return "Issue a new token and run 'vaultctl init --token <token>'"
	case errors.Is(err, ErrForbidden):
		return "Check that the token's policy grants access to this path"
	case errors.Is(err, ErrUnreachable):
		return "Check VAULT_ADDR and your network connection"
	case errors.Is(err, ErrNotFound):
		return "Run 'vaultctl list' to see the available scopes"
	}
	return ""
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Already a user-friendly error
	var userErr UserError
	if errors.As(err, &userErr) {
		return err
	}
	var cfgErr ConfigError
	if errors.As(err, &cfgErr) {
		return err
	}
	var cmdErr CommandError
	if errors.As(err, &cmdErr) {
		return err
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}

	if suggestion := Suggest(err); suggestion != "" {
		return UserError{
			Message:    err.Error(),
			Suggestion: suggestion,
			Err:        err,
		}
	}

	errStr := err.Error()

	if strings.Contains(errStr, "yaml:") {
		return UserError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	return err
}
