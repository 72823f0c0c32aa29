package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Process exit codes. A run that resolved nothing but failed nothing still
// exits 0.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // a document failed to resolve or a scenario failed
	ExitCommandError = 2 // bad flags, unreadable database or policy
)

// ExitError carries the exit code a command wants docsync to terminate with.
type ExitError struct {
	Code    int
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

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError around err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// ExitCodeOf maps err to a process exit code. Errors that are not an
// ExitError count as ExitFailure.
func ExitCodeOf(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Texter is implemented by results with a human-readable rendering.
type Texter interface {
	Text() string
}

// Envelope wraps every JSON document docsync prints, one per line.
type Envelope struct {
	Status string         `json:"status"` // "ok" or "error"
	Data   any            `json:"data,omitempty"`
	Error  *EnvelopeError `json:"error,omitempty"`
}

// EnvelopeError describes a failed command. Code is a conflict error code
// such as RESOLUTION_CALLBACK_ERROR, or E_COMMAND / E_FAILURE.
type EnvelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Printer writes command results as text or as JSON envelopes.
type Printer struct {
	Format  string // "text" or "json"
	Out     io.Writer
	Diag    io.Writer // progress lines; Out when nil
	Verbose bool
}

func (p *Printer) encode(env Envelope) error {
	return json.NewEncoder(p.Out).Encode(env)
}

// Success prints one result. In text mode a Texter renders itself.
func (p *Printer) Success(data any) error {
	if p.Format == "json" {
		return p.encode(Envelope{Status: "ok", Data: data})
	}
	var err error
	if t, ok := data.(Texter); ok {
		_, err = io.WriteString(p.Out, t.Text())
	} else {
		_, err = fmt.Fprintln(p.Out, data)
	}
	return err
}

// Error prints a failure. Text mode shows details only with --verbose.
func (p *Printer) Error(code, message string, details any) error {
	if p.Format == "json" {
		return p.encode(Envelope{
			Status: "error",
			Error:  &EnvelopeError{Code: code, Message: message, Details: details},
		})
	}
	if _, err := fmt.Fprintf(p.Out, "error %s: %s\n", code, message); err != nil {
		return err
	}
	if p.Verbose && details != nil {
		_, err := fmt.Fprintf(p.Out, "  details: %v\n", details)
		return err
	}
	return nil
}

// Progress prints a status line under --verbose. It goes to Diag so JSON on
// Out stays parseable.
func (p *Printer) Progress(format string, args ...any) {
	if !p.Verbose {
		return
	}
	w := p.Diag
	if w == nil {
		w = p.Out
	}
	fmt.Fprintf(w, format+"\n", args...)
}
