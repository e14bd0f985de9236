package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/sheetmyself/internal/sheet"
	"github.com/roach88/sheetmyself/internal/store"
	"github.com/roach88/sheetmyself/internal/template"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected operation or failed scenario (unknown id, type mismatch, ...)
	ExitCommandError = 2 // Command error (unreadable document, storage failure, bad config, ...)
)

// Error codes used in CLI responses.
const (
	ErrCodeGeneric            = "E001" // Generic/unknown error
	ErrCodeNotFound           = "E002" // Entity or stored document not found
	ErrCodeInvalidArgument    = "E003" // Rejected argument
	ErrCodeTypeMismatch       = "E004" // Value kind does not fit the field
	ErrCodeParse              = "E005" // Stored document unreadable
	ErrCodeUnsupportedVersion = "E006" // Stored document written by a newer version
	ErrCodeIO                 = "E007" // Storage failure
	ErrCodeTimeout            = "E008" // Storage call timed out
	ErrCodeTemplate           = "E009" // Template failed to compile
	ErrCodeExists             = "E010" // A sheet is already stored
	ErrCodeScenarioFailed     = "E011" // One or more test scenarios failed
	ErrCodeConfig             = "E012" // Config file or flags rejected
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)

	reported bool // already written through an OutputFormatter
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Reported reports whether err was already written to the user, so callers
// printing errors at exit can skip it.
func Reported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.reported
}

// classify maps an error to its response code and exit code.
// Storage problems are checked first: a timeout is also an IO error.
func classify(err error) (string, int) {
	var tmplErr *template.Error
	switch {
	case store.IsTimeout(err):
		return ErrCodeTimeout, ExitCommandError
	case errors.Is(err, store.ErrIO):
		return ErrCodeIO, ExitCommandError
	case errors.Is(err, sheet.ErrUnsupportedVersion):
		return ErrCodeUnsupportedVersion, ExitCommandError
	case errors.Is(err, sheet.ErrParse):
		return ErrCodeParse, ExitCommandError
	case errors.As(err, &tmplErr):
		return ErrCodeTemplate, ExitCommandError
	case errors.Is(err, errConfig):
		return ErrCodeConfig, ExitCommandError
	case errors.Is(err, errSheetExists):
		return ErrCodeExists, ExitFailure
	case errors.Is(err, sheet.ErrNotFound):
		return ErrCodeNotFound, ExitFailure
	case errors.Is(err, sheet.ErrTypeMismatch):
		return ErrCodeTypeMismatch, ExitFailure
	case errors.Is(err, sheet.ErrInvalidArgument):
		return ErrCodeInvalidArgument, ExitFailure
	default:
		return ErrCodeGeneric, ExitFailure
	}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err in the configured format and returns an ExitError
// carrying the matching exit code. message prefixes the error text.
func (f *OutputFormatter) Fail(message string, err error) error {
	code, exit := classify(err)
	var details any
	var ioErr *store.IOError
	if errors.As(err, &ioErr) {
		details = map[string]any{"op": ioErr.Op, "timed_out": ioErr.TimedOut}
	}
	var tmplErr *template.Error
	if errors.As(err, &tmplErr) && tmplErr.Field != "" {
		details = map[string]any{"field": tmplErr.Field}
	}
	_ = f.Error(code, fmt.Sprintf("%s: %v", message, err), details)
	exitErr := WrapExitError(exit, message, err)
	exitErr.reported = true
	return exitErr
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
