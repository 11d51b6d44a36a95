package terminal

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// defaultTimeout bounds every multiplexer CLI call.
const defaultTimeout = 10 * time.Second

// Runner executes an external command and returns its stdout.
type Runner interface {
	Run(stdin string, name string, args ...string) (string, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(stdin string, name string, args ...string) (string, error)

// Run calls f.
func (f RunnerFunc) Run(stdin string, name string, args ...string) (string, error) {
	return f(stdin, name, args...)
}

type execRunner struct {
	timeout time.Duration
}

// DefaultRunner runs commands with os/exec and a fixed timeout.
func DefaultRunner() Runner {
	return &execRunner{timeout: defaultTimeout}
}

func (r *execRunner) Run(stdin string, name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	stdout, stderr, err := runWithTimeout(cmd, r.timeout)
	if err != nil {
		detail := strings.TrimSpace(stderr)
		if detail == "" {
			detail = strings.TrimSpace(stdout)
		}
		if detail != "" {
			return stdout, fmt.Errorf("%s %s: %w (%s)", name, subcommand(args), err, detail)
		}
		return stdout, fmt.Errorf("%s %s: %w", name, subcommand(args), err)
	}
	return stdout, nil
}

// runWithTimeout runs a command with a timeout, returning stdout and stderr separately.
func runWithTimeout(cmd *exec.Cmd, timeout time.Duration) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", "", err
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return stdout.String(), stderr.String(), err
	case <-time.After(timeout):
		_ = cmd.Process.Kill()
		<-done
		return stdout.String(), stderr.String(), fmt.Errorf("command timed out after %s", timeout)
	}
}

// subcommand returns the leading non-flag words of args for error messages.
func subcommand(args []string) string {
	var words []string
	for _, a := range args {
		if strings.HasPrefix(a, "-") || len(words) == 2 {
			break
		}
		words = append(words, a)
	}
	return strings.Join(words, " ")
}
