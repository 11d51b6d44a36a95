package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gitmzc/claude-code-bridge/internal/core/provider"
	"github.com/gitmzc/claude-code-bridge/internal/core/session"
	"github.com/gitmzc/claude-code-bridge/internal/core/terminal"
)

// Exit codes. 10-19 are configuration errors, 20-29 session errors,
// 30-39 network errors and 40-49 terminal errors.
const (
	ExitSuccess              = 0
	ExitGeneralError         = 1
	ExitUsageError           = 2
	ExitInterrupted          = 3
	ExitConfigNotFound       = 10
	ExitConfigInvalid        = 11
	ExitConfigPermission     = 12
	ExitMissingDependency    = 13
	ExitSessionNotFound      = 20
	ExitSessionAlreadyExists = 21
	ExitSessionInvalid       = 22
	ExitSessionWriteError    = 23
	ExitNoRecoverableHistory = 24
	ExitNetworkError         = 30
	ExitAPIError             = 31
	ExitUpdateFailed         = 32
	ExitTerminalNotDetected  = 40
	ExitTerminalNotSupported = 41
	ExitBackendStartFailed   = 42
	ExitBackendNotRunning    = 43
	ExitPaneCreateFailed     = 44
)

type codeInfo struct {
	name       string
	message    string
	suggestion string
}

var codes = map[int]codeInfo{
	ExitSuccess:              {"SUCCESS", "Operation completed successfully", ""},
	ExitGeneralError:         {"GENERAL_ERROR", "An unexpected error occurred", "Run 'ccb doctor' to diagnose issues, or use --debug for more details"},
	ExitUsageError:           {"USAGE_ERROR", "Invalid command or arguments", "Run 'ccb --help' for usage information"},
	ExitInterrupted:          {"INTERRUPTED", "Operation was interrupted", "Run the command again to retry"},
	ExitConfigNotFound:       {"CONFIG_NOT_FOUND", "Configuration file not found", "Run 'ccb init' to create a configuration file"},
	ExitConfigInvalid:        {"CONFIG_INVALID", "Configuration file is invalid or corrupted", "Check the JSON syntax in .ccb-config.json or run 'ccb init' to recreate"},
	ExitConfigPermission:     {"CONFIG_PERMISSION", "Cannot read or write configuration file", "Check file permissions for .ccb-config.json"},
	ExitMissingDependency:    {"MISSING_DEPENDENCY", "Required dependency is missing", "Run 'ccb doctor' to check dependencies and install missing ones"},
	ExitSessionNotFound:      {"SESSION_NOT_FOUND", "Session file not found", "Start a new session with 'ccb up <provider>'"},
	ExitSessionAlreadyExists: {"SESSION_ALREADY_EXISTS", "Session already exists and is running", "Use 'ccb kill' to terminate it first"},
	ExitSessionInvalid:       {"SESSION_INVALID", "Session file is invalid or corrupted", "Delete the .<provider>-session file and start a new session"},
	ExitSessionWriteError:    {"SESSION_WRITE_ERROR", "Cannot write session file", "Check write permissions in the current directory"},
	ExitNoRecoverableHistory: {"NO_RECOVERABLE_HISTORY", "No recoverable session history found", "Start a fresh session with 'ccb up <provider>'"},
	ExitNetworkError:         {"NETWORK_ERROR", "Network connection failed", "Check your internet connection and try again"},
	ExitAPIError:             {"API_ERROR", "API request failed", "Check API credentials and service status"},
	ExitUpdateFailed:         {"UPDATE_FAILED", "Failed to update ccb", "Try manual update: cd ~/.local/share/codex-dual && git pull"},
	ExitTerminalNotDetected:  {"TERMINAL_NOT_DETECTED", "Could not detect terminal environment", "Run 'ccb init' to configure the terminal, or set CCB_TERMINAL"},
	ExitTerminalNotSupported: {"TERMINAL_NOT_SUPPORTED", "Terminal is not supported", "ccb supports WezTerm, iTerm2 and tmux. Install one of them."},
	ExitBackendStartFailed:   {"BACKEND_START_FAILED", "Failed to start AI backend", "Check that the AI CLI (codex/gemini) is installed and configured"},
	ExitBackendNotRunning:    {"BACKEND_NOT_RUNNING", "AI backend is not running", "Start the backend with 'ccb up <provider>'"},
	ExitPaneCreateFailed:     {"PANE_CREATE_FAILED", "Failed to create terminal pane", "Check terminal configuration and permissions"},
}

// ExitError carries a process exit code to main.
type ExitError struct {
	Code   int
	Detail string
	Err    error
}

// NewExitError wraps err with an exit code. The detail defaults to the
// error text.
func NewExitError(code int, err error) *ExitError {
	e := &ExitError{Code: code, Err: err}
	if err != nil {
		e.Detail = err.Error()
	}
	return e
}

func (e *ExitError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return CodeMessage(e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// CodeName returns the symbolic name of an exit code, e.g. "SESSION_NOT_FOUND".
func CodeName(code int) string { return info(code).name }

// CodeMessage returns the one-line description of an exit code.
func CodeMessage(code int) string { return info(code).message }

// CodeSuggestion returns the resolution hint for an exit code.
func CodeSuggestion(code int) string { return info(code).suggestion }

func info(code int) codeInfo {
	if ci, ok := codes[code]; ok {
		return ci
	}
	return codes[ExitGeneralError]
}

// ExitCodeFor maps an error to its exit code. An *ExitError wins; the
// sentinel errors of the core packages map to their codes.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	switch {
	case errors.Is(err, provider.ErrBackground):
		return ExitSuccess
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, session.ErrNotFound):
		return ExitSessionNotFound
	case errors.Is(err, session.ErrInvalid):
		return ExitSessionInvalid
	case errors.Is(err, session.ErrLocked):
		return ExitSessionAlreadyExists
	case errors.Is(err, provider.ErrPaneDead):
		return ExitBackendNotRunning
	case errors.Is(err, terminal.ErrNotDetected):
		return ExitTerminalNotDetected
	case errors.Is(err, terminal.ErrUnsupported):
		return ExitTerminalNotSupported
	case errors.Is(err, ErrConfigInvalid):
		return ExitConfigInvalid
	case errors.Is(err, ErrMissingDependency):
		return ExitMissingDependency
	}
	return ExitGeneralError
}

// FormatError renders err as
//
//	Error [code]: message
//	  Detail: detail
//	  Suggestion: suggestion
func FormatError(err error) string {
	code := ExitCodeFor(err)
	ci := info(code)
	lines := []string{fmt.Sprintf("Error [%d]: %s", code, ci.message)}
	if err != nil {
		lines = append(lines, "  Detail: "+err.Error())
	}
	if ci.suggestion != "" {
		lines = append(lines, "  Suggestion: "+ci.suggestion)
	}
	return strings.Join(lines, "\n")
}
