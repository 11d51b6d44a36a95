package core

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const gitTimeout = 60 * time.Second

// GitErrorKind classifies why a git command failed.
type GitErrorKind int

const (
	GitErrUnknown GitErrorKind = iota
	GitErrAuth
	GitErrNetwork
	GitErrDiverged
	GitErrDirty
	GitErrTimeout
)

func (k GitErrorKind) String() string {
	switch k {
	case GitErrAuth:
		return "Authentication Required"
	case GitErrNetwork:
		return "Network Error"
	case GitErrDiverged:
		return "Local Changes Diverged"
	case GitErrDirty:
		return "Uncommitted Changes"
	case GitErrTimeout:
		return "Timeout"
	default:
		return "Unknown Error"
	}
}

// GitError wraps the output of a failed git command with a classification
// and hints.
type GitError struct {
	Kind      GitErrorKind
	Command   string
	RawOutput string
	Hints     []string
}

func (e *GitError) Error() string {
	return fmt.Sprintf("%s failed (%s): %s", e.Command, e.Kind, e.firstLine())
}

func (e *GitError) firstLine() string {
	for _, line := range strings.Split(e.RawOutput, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return "no output"
}

// ExitCode maps the failure to NETWORK_ERROR or UPDATE_FAILED.
func (e *GitError) ExitCode() int {
	if e.Kind == GitErrNetwork || e.Kind == GitErrTimeout {
		return ExitNetworkError
	}
	return ExitUpdateFailed
}

// ClassifyGitError examines git output and returns a structured GitError.
func ClassifyGitError(command, rawOutput string) *GitError {
	kind := classifyGitOutput(rawOutput)
	return &GitError{
		Kind:      kind,
		Command:   command,
		RawOutput: strings.TrimSpace(rawOutput),
		Hints:     gitHints(kind),
	}
}

func classifyGitOutput(output string) GitErrorKind {
	lower := strings.ToLower(output)
	switch {
	case strings.Contains(lower, "timed out"):
		return GitErrTimeout
	case strings.Contains(lower, "could not read username"),
		strings.Contains(lower, "authentication failed"),
		strings.Contains(lower, "permission denied (publickey)"):
		return GitErrAuth
	case strings.Contains(lower, "not possible to fast-forward"),
		strings.Contains(lower, "diverging branches"),
		strings.Contains(lower, "have diverged"):
		return GitErrDiverged
	case strings.Contains(lower, "would be overwritten"),
		strings.Contains(lower, "commit your changes or stash them"):
		return GitErrDirty
	case strings.Contains(lower, "could not resolve host"),
		strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "network is unreachable"),
		strings.Contains(lower, "no route to host"),
		strings.Contains(lower, "unable to access"):
		return GitErrNetwork
	}
	return GitErrUnknown
}

func gitHints(kind GitErrorKind) []string {
	switch kind {
	case GitErrAuth:
		return []string{"The install checkout needs no credentials; check the remote with `git remote -v`"}
	case GitErrNetwork, GitErrTimeout:
		return []string{"Check your internet connection", "If behind a proxy, ensure git is configured to use it"}
	case GitErrDiverged:
		return []string{"The install checkout has local commits; reset it with `git reset --hard origin/main`"}
	case GitErrDirty:
		return []string{"Discard local edits in the install prefix with `git checkout -- .`"}
	default:
		return []string{"Try a manual update: cd <prefix> && git pull"}
	}
}

// runGit runs git in dir, bounded by gitTimeout.
func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return string(out), fmt.Errorf("command timed out after %s", gitTimeout)
	}
	return string(out), err
}
