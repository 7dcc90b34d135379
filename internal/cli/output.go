package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/fault"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/hasher"
)

// Process exit statuses.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the archive did not verify
	ExitCommandError = 2 // the command itself could not complete
)

// Codes carried in CLIError.Code and in the "Error [CODE]" text prefix.
const (
	ErrCodeConfig      = "E_CONFIG"
	ErrCodeIO          = "E_IO"
	ErrCodeNetwork     = "E_NETWORK"
	ErrCodeStructural  = "E_STRUCTURAL"
	ErrCodeData        = "E_DATA"
	ErrCodeInterrupted = "E_INTERRUPTED"
	ErrCodeVerify      = "E_VERIFY"
	ErrCodeInternal    = "E_INTERNAL"
)

var faultCodes = map[fault.Kind]string{
	fault.KindConfiguration: ErrCodeConfig,
	fault.KindIO:            ErrCodeIO,
	fault.KindNetwork:       ErrCodeNetwork,
	fault.KindStructural:    ErrCodeStructural,
	fault.KindData:          ErrCodeData,
}

// ErrorCode classifies err for reporting. Interruption wins over the fault
// kind; an unclassified deadline is treated as a network timeout.
func ErrorCode(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, hasher.ErrInterrupted) {
		return ErrCodeInterrupted
	}
	if code, ok := faultCodes[fault.KindOf(err)]; ok {
		return code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrCodeNetwork
	}
	return ErrCodeInternal
}

// ExitError carries the process exit status out of a command's RunE.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return WrapExitError(code, message, nil)
}

// WrapExitError returns an ExitError wrapping err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the status the process should exit with. Errors that
// are not ExitErrors count as command errors.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// OutputFormatter writes command results either as plain text or as a
// CLIResponse JSON envelope.
type OutputFormatter struct {
	Format  string
	Writer  io.Writer
	Verbose bool

	// ErrWriter receives verbose diagnostics. Writer is used when nil.
	ErrWriter io.Writer

	// RunID is attached to JSON responses once a ledger run is started.
	RunID string
}

// CLIResponse is the JSON envelope. Status is "ok", "failed" or "error".
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
	RunID  string    `json:"run_id,omitempty"`
}

// CLIError describes why a command did not succeed.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (f *OutputFormatter) isJSON() bool { return f.Format == "json" }

// Success prints data, or wraps it in an "ok" envelope.
func (f *OutputFormatter) Success(data any) error {
	if !f.isJSON() {
		_, err := fmt.Fprintln(f.Writer, data)
		return err
	}
	return f.encode(CLIResponse{Status: "ok", Data: data, RunID: f.RunID})
}

// Failed reports a completed run whose archive did not verify. Text mode
// prints nothing because the caller has already rendered its report.
func (f *OutputFormatter) Failed(message string, data any) error {
	if !f.isJSON() {
		return nil
	}
	return f.encode(CLIResponse{
		Status: "failed",
		Data:   data,
		Error:  &CLIError{Code: ErrCodeVerify, Message: message},
		RunID:  f.RunID,
	})
}

// Error reports a command error under code. Details are printed in text
// mode only when verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.isJSON() {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
			RunID:  f.RunID,
		})
	}
	if _, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message); err != nil {
		return err
	}
	if f.Verbose && details != nil {
		_, err := fmt.Fprintf(f.Writer, "Details: %v\n", details)
		return err
	}
	return nil
}

// Fail reports err under its mapped code and returns the ExitError the
// command should return.
func (f *OutputFormatter) Fail(message string, err error) error {
	_ = f.Error(ErrorCode(err), fmt.Sprintf("%s: %v", message, err), nil)
	return WrapExitError(ExitCommandError, message, err)
}

// VerboseLog prints a diagnostic line when verbose.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if f.Verbose {
		fmt.Fprintf(f.diag(), format+"\n", args...)
	}
}

func (f *OutputFormatter) diag() io.Writer {
	if f.ErrWriter == nil {
		return f.Writer
	}
	return f.ErrWriter
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
