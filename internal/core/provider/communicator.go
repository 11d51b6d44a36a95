package provider

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gitmzc/claude-code-bridge/internal/core/osutil"
	"github.com/gitmzc/claude-code-bridge/internal/core/session"
	"github.com/gitmzc/claude-code-bridge/internal/core/terminal"
)

// Timeout actions offered when AskWait runs out of time.
const (
	ActionWait       = "wait"
	ActionBackground = "background"
	ActionCancel     = "cancel"
)

// History statuses passed to a Recorder.
const (
	StatusSent      = "sent"
	StatusReplied   = "replied"
	StatusTimeout   = "timeout"
	StatusCancelled = "cancelled"
	StatusError     = "error"
)

// stillWaitingEvery is how often an unlimited wait prints a progress line.
const stillWaitingEvery = 30 * time.Second

// menuTimeout is how long the timeout menu waits for a keypress.
const menuTimeout = 10 * time.Second

// Recorder stores asks for `ccb history`.
type Recorder interface {
	Begin(provider, workDir, question string) string
	Finish(id, status, reply string)
}

// Options configure a Communicator. Zero values are usable.
type Options struct {
	Runner        terminal.Runner
	Backend       terminal.Backend // overrides the backend named in the session
	Status        io.Writer        // progress lines; nil discards
	Input         io.Reader        // answers to the timeout menu
	Interactive   bool             // show the timeout menu instead of TimeoutAction
	TimeoutAction string           // wait, background or cancel; CCB_TIMEOUT_ACTION when empty
	Recorder      Recorder
	WaitIdle      bool // wait for the pane to stop printing before sending

	OnWaiting func(p Provider)
	OnReply   func(p Provider, reply string)
}

// Communicator sends questions to a provider pane and reads replies back
// from its transcript.
type Communicator struct {
	Provider Provider
	Session  *session.Info
	Backend  terminal.Backend
	Reader   Reader
	WorkDir  string

	opts  Options
	input *bufio.Reader
	bound string
}

// Open loads the provider's session for workDir and prepares a
// Communicator. A missing session yields an error wrapping
// session.ErrNotFound.
func Open(p Provider, workDir string, opts Options) (*Communicator, error) {
	info, err := session.Load(p.Name(), workDir)
	if err != nil {
		return nil, fmt.Errorf("no active %s session (run 'ccb up %s' first): %w", p.DisplayName(), p.Name(), err)
	}

	backend := opts.Backend
	if backend == nil {
		backend, err = terminal.New(info.Terminal, opts.Runner)
		if err != nil {
			return nil, err
		}
	}
	if opts.Status == nil {
		opts.Status = io.Discard
	}

	c := &Communicator{
		Provider: p,
		Session:  info,
		Backend:  backend,
		Reader:   p.NewReader(info, workDir),
		WorkDir:  workDir,
		opts:     opts,
	}
	if opts.Input != nil {
		c.input = bufio.NewReader(opts.Input)
	}
	c.remember(c.Reader.CurrentLog())
	return c, nil
}

// Check verifies the runtime directory and pane binding; with probe it
// also asks the terminal whether the pane is alive.
func (c *Communicator) Check(probe bool) error {
	if c.Session.RuntimeDir == "" || !osutil.DirExists(c.Session.RuntimeDir) {
		return fmt.Errorf("runtime directory %q does not exist: %w", c.Session.RuntimeDir, session.ErrInvalid)
	}
	if c.Session.PaneID == "" {
		return fmt.Errorf("%s pane id not found: %w", c.Backend.Name(), session.ErrInvalid)
	}
	if probe && !c.Backend.IsAlive(c.Session.PaneID) {
		return fmt.Errorf("%s pane %s does not exist: %w", c.Backend.Name(), c.Session.PaneID, ErrPaneDead)
	}
	return nil
}

// Ping reports the connection status as a one-line message.
func (c *Communicator) Ping() (string, error) {
	if err := c.Check(true); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s connection OK (%s pane %s)", c.Provider.DisplayName(), c.Backend.Name(), c.Session.PaneID), nil
}

// Ask injects question into the pane without waiting for the reply.
func (c *Communicator) Ask(ctx context.Context, question string) error {
	if err := c.Check(false); err != nil {
		return err
	}
	st := c.Reader.Capture()
	id := c.begin(question)
	if err := c.send(ctx, question); err != nil {
		c.finish(id, StatusError, "")
		return err
	}
	if st.Path != "" {
		c.remember(st.Path)
	} else {
		c.remember(c.Reader.CurrentLog())
	}
	return nil
}

// AskWait injects question and blocks until the reply lands in the
// transcript. A zero timeout waits forever. On timeout the configured
// action decides between waiting again, ErrBackground and ErrTimeout.
func (c *Communicator) AskWait(ctx context.Context, question string, timeout time.Duration) (string, error) {
	if err := c.Check(false); err != nil {
		return "", err
	}

	// Capture before sending so a fast reply is not missed.
	st := c.Reader.Capture()
	id := c.begin(question)
	c.status("Sending to %s...", c.Provider.DisplayName())
	if err := c.send(ctx, question); err != nil {
		c.finish(id, StatusError, "")
		return "", err
	}
	if c.opts.OnWaiting != nil {
		c.opts.OnWaiting(c.Provider)
	}

	w := NewWatcher(c.Reader.Roots()...)
	if err := w.Start(); err == nil {
		c.Reader.SetWake(w.Wake())
		defer func() {
			c.Reader.SetWake(nil)
			_ = w.Stop()
		}()
	} else {
		log.Debug().Err(err).Msg("transcript watcher")
		_ = w.Stop()
	}

	if timeout == 0 {
		return c.waitUnlimited(ctx, id, st)
	}

	c.status("Waiting for %s reply (timeout %s)...", c.Provider.DisplayName(), timeout)
	for {
		wctx, cancel := context.WithTimeout(ctx, timeout)
		msg, next, err := c.Reader.Wait(wctx, st)
		cancel()
		st = next
		c.remember(st.Path)

		if msg != "" {
			return c.replied(id, msg), nil
		}
		if ctx.Err() != nil {
			c.finish(id, StatusCancelled, "")
			return "", ctx.Err()
		}
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			c.finish(id, StatusError, "")
			return "", err
		}

		switch c.timeoutAction(timeout) {
		case ActionWait:
			c.status("Continuing to wait (timeout %s)...", timeout)
		case ActionBackground:
			return "", fmt.Errorf("%s is still working; run %s later: %w",
				c.Provider.DisplayName(), PendCommand(c.Provider), ErrBackground)
		default:
			c.finish(id, StatusTimeout, "")
			return "", fmt.Errorf("no reply from %s within %s: %w", c.Provider.DisplayName(), timeout, ErrTimeout)
		}
	}
}

func (c *Communicator) waitUnlimited(ctx context.Context, id string, st State) (string, error) {
	c.status("Waiting for %s reply (no timeout)...", c.Provider.DisplayName())
	start := time.Now()
	for {
		wctx, cancel := context.WithTimeout(ctx, stillWaitingEvery)
		msg, next, err := c.Reader.Wait(wctx, st)
		cancel()
		st = next
		c.remember(st.Path)

		if msg != "" {
			return c.replied(id, msg), nil
		}
		if ctx.Err() != nil {
			c.finish(id, StatusCancelled, "")
			return "", ctx.Err()
		}
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			c.finish(id, StatusError, "")
			return "", err
		}
		c.status("Still waiting... (%s)", time.Since(start).Round(time.Second))
	}
}

// Pending returns the latest reply, or with n > 0 the last n
// question/answer pairs separated by a rule.
func (c *Communicator) Pending(n int) (string, error) {
	c.remember(c.Reader.CurrentLog())
	if n <= 0 {
		return c.Reader.Latest()
	}

	convs, err := c.Reader.Conversations(n)
	if err != nil {
		return "", err
	}
	if len(convs) == 0 {
		return "", ErrNoReply
	}
	return FormatConversations(convs), nil
}

// FormatConversations renders Q/A pairs separated by a line of 40 '='.
func FormatConversations(convs []Conversation) string {
	var b strings.Builder
	for i, conv := range convs {
		if i > 0 {
			b.WriteString("\n" + strings.Repeat("=", 40) + "\n\n")
		}
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", conv.Question, conv.Answer)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Communicator) send(ctx context.Context, text string) error {
	if c.opts.WaitIdle {
		if !terminal.NewIdleDetector(c.Backend, c.Session.PaneID).WaitIdle(ctx) {
			log.Debug().Str("provider", c.Provider.Name()).Msg("pane still busy, sending anyway")
		}
	}
	if err := c.Backend.SendText(c.Session.PaneID, text); err != nil {
		return fmt.Errorf("sending to %s pane %s: %w", c.Backend.Name(), c.Session.PaneID, err)
	}
	log.Debug().Str("provider", c.Provider.Name()).Str("pane", c.Session.PaneID).Int("bytes", len(text)).Msg("sent")
	return nil
}

func (c *Communicator) replied(id, msg string) string {
	c.finish(id, StatusReplied, msg)
	if c.opts.OnReply != nil {
		c.opts.OnReply(c.Provider, msg)
	}
	return msg
}

// timeoutAction asks the user on a TTY, otherwise uses the configured
// action (default cancel).
func (c *Communicator) timeoutAction(timeout time.Duration) string {
	if !c.opts.Interactive || c.input == nil {
		action := c.opts.TimeoutAction
		if action == "" {
			action = osutil.EnvString("CCB_TIMEOUT_ACTION")
		}
		return normalizeAction(action)
	}

	name := c.Provider.DisplayName()
	c.status("\nRequest timed out. %s hasn't replied yet.", name)
	c.status("What would you like to do?")
	c.status("  [w] Wait - continue waiting (%s more)", timeout)
	c.status("  [b] Background - exit and check later with %s", PendCommand(c.Provider))
	c.status("  [c] Cancel - give up (default)")
	fmt.Fprint(c.opts.Status, "Your choice (w/b/c) [c]: ")

	answer := make(chan string, 1)
	go func() {
		line, _ := c.input.ReadString('\n')
		answer <- line
	}()
	select {
	case line := <-answer:
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "w":
			return ActionWait
		case "b":
			return ActionBackground
		}
	case <-time.After(menuTimeout):
		fmt.Fprintln(c.opts.Status)
	}
	return ActionCancel
}

func normalizeAction(action string) string {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case ActionWait:
		return ActionWait
	case ActionBackground:
		return ActionBackground
	}
	return ActionCancel
}

func (c *Communicator) status(format string, args ...any) {
	fmt.Fprintf(c.opts.Status, format+"\n", args...)
}

// remember pins the reader to a transcript and records it in the session
// file so later commands read the same conversation.
func (c *Communicator) remember(path string) {
	if path == "" || path == c.bound {
		return
	}
	c.bound = path
	c.Reader.SetPreferred(path)
	if err := c.Session.Remember(c.Provider.Binding(path)); err != nil {
		log.Warn().Err(err).Str("session", c.Session.Path).Msg("cannot record transcript binding")
	}
}

func (c *Communicator) begin(question string) string {
	if c.opts.Recorder == nil {
		return ""
	}
	return c.opts.Recorder.Begin(c.Provider.Name(), c.WorkDir, question)
}

func (c *Communicator) finish(id, status, reply string) {
	if c.opts.Recorder == nil || id == "" {
		return
	}
	c.opts.Recorder.Finish(id, status, reply)
}
