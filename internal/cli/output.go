package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/workgraph/internal/model"
	"github.com/roach88/workgraph/internal/query"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Domain failure (cycle found, index stale, ...)
	ExitCommandError = 2 // Command error (bad arguments, unknown id, unreadable workspace)
)

// CLI-level error codes. Domain failures use the model.ErrorCode string.
const (
	ErrCodeGeneric   = "E001"
	ErrCodeUsage     = "E002"
	ErrCodeConfig    = "E003"
	ErrCodeWorkspace = "E004"
	ErrCodeSelector  = "E005"
)

// ExitError carries an exit code and the error code reported to the user.
type ExitError struct {
	Code    int    // process exit code
	ErrCode string // "E001", "NOT_FOUND", ...
	Message string
	Err     error
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

// NewExitError creates an ExitError without a cause.
func NewExitError(code int, errCode, message string) *ExitError {
	return &ExitError{Code: code, ErrCode: errCode, Message: message}
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, errCode, message string, err error) *ExitError {
	return &ExitError{Code: code, ErrCode: errCode, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// classify maps a domain error to an exit code and error code.
func classify(message string, err error) *ExitError {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	var parseErr *query.ParseError
	if errors.As(err, &parseErr) {
		return WrapExitError(ExitCommandError, ErrCodeSelector, message, err)
	}
	var invalid validator.ValidationErrors
	if errors.As(err, &invalid) {
		return WrapExitError(ExitCommandError, ErrCodeUsage, message, err)
	}
	switch code := model.CodeOf(err); code {
	case model.CodeNotFound, model.CodeDuplicateID, model.CodeMalformedDocument:
		return WrapExitError(ExitCommandError, string(code), message, err)
	case "":
		return WrapExitError(ExitFailure, ErrCodeGeneric, message, err)
	default:
		return WrapExitError(ExitFailure, string(code), message, err)
	}
}

// textRenderer is implemented by results with a human-readable form.
type textRenderer interface {
	renderText(w io.Writer) error
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
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}
	if r, ok := data.(textRenderer); ok {
		return r.renderText(f.Writer)
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
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

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns the ExitError the command should return.
// Cycle errors carry their path as details.
func (f *OutputFormatter) Fail(message string, err error) error {
	exitErr := classify(message, err)
	var details any
	var modelErr *model.Error
	if errors.As(err, &modelErr) && len(modelErr.Path) > 0 {
		details = map[string]any{"path": modelErr.Path}
	}
	if werr := f.Error(exitErr.ErrCode, exitErr.Error(), details); werr != nil {
		return werr
	}
	return exitErr
}

// VerboseLog outputs a message only if verbose mode is enabled.
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
