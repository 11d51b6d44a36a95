package core

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gitmzc/claude-code-bridge/internal/core/osutil"
	"github.com/gitmzc/claude-code-bridge/internal/core/provider"
	"github.com/gitmzc/claude-code-bridge/internal/core/terminal"
)

// DefaultKeepaliveDelay is how long a declared "Next:" step may stall
// before a reminder is sent. Override with CCB_KEEPALIVE_DELAY (seconds).
const DefaultKeepaliveDelay = 60 * time.Second

var nextStepRe = regexp.MustCompile(`(?mi)^\s*(?:[-*]\s*)?Next\s*(?:\(|:)\s*(.+)$`)

type pendingKeepalive struct {
	due  time.Time
	hint string
}

// Keepalive nudges a provider that announced a next step ("Next: ...")
// and then went quiet.
type Keepalive struct {
	Delay   time.Duration
	Enabled bool

	mu      sync.Mutex
	pending map[string]pendingKeepalive
}

// NewKeepalive reads CCB_KEEPALIVE_DELAY and CCB_KEEPALIVE_ENABLED.
func NewKeepalive() *Keepalive {
	return &Keepalive{
		Delay:   osutil.EnvSeconds("CCB_KEEPALIVE_DELAY", DefaultKeepaliveDelay, 0, 0),
		Enabled: osutil.EnvBool("CCB_KEEPALIVE_ENABLED", true),
		pending: map[string]pendingKeepalive{},
	}
}

// NextStep returns the first "Next:" declaration in msg, or "".
func NextStep(msg string) string {
	m := nextStepRe.FindStringSubmatch(msg)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// OnMessage schedules a reminder when msg declares a next step, and
// cancels any pending one otherwise.
func (k *Keepalive) OnMessage(name, msg string, now time.Time) {
	if !k.Enabled {
		return
	}
	if _, ok := provider.ByName(name); !ok {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if hint := NextStep(msg); hint != "" {
		k.pending[name] = pendingKeepalive{due: now.Add(k.Delay), hint: hint}
		return
	}
	delete(k.pending, name)
}

// Tick sends every reminder that is due and returns the providers it sent
// to. A busy provider loses its reminder. Each declaration is reminded at
// most once.
func (k *Keepalive) Tick(now time.Time, send func(name, msg string) error, busy func(name string) bool) []string {
	if !k.Enabled {
		return nil
	}
	k.mu.Lock()
	var due []string
	hints := map[string]string{}
	for name, p := range k.pending {
		if now.Before(p.due) {
			continue
		}
		due = append(due, name)
		hints[name] = p.hint
		delete(k.pending, name)
	}
	k.mu.Unlock()
	slices.Sort(due)

	var sent []string
	for _, name := range due {
		if busy != nil && busy(name) {
			continue
		}
		msg := "[KEEPALIVE] Continue your work."
		if hints[name] != "" {
			msg = "[KEEPALIVE] Continue: " + hints[name]
		}
		if err := send(name, msg); err != nil {
			log.Warn().Err(err).Str("provider", name).Msg("keepalive send failed")
			continue
		}
		sent = append(sent, name)
	}
	return sent
}

// Cancel drops the pending reminder for a provider.
func (k *Keepalive) Cancel(name string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.pending, name)
}

// Until returns the time left before a provider's reminder is due; false
// when none is pending. Negative means overdue.
func (k *Keepalive) Until(name string, now time.Time) (time.Duration, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, ok := k.pending[name]
	if !ok {
		return 0, false
	}
	return p.due.Sub(now), true
}

// PaneTargets delivers keepalive reminders to the provider panes of a
// project. Send and Busy match the callbacks of Keepalive.Tick.
type PaneTargets struct {
	WorkDir string
	Options provider.Options
	Context context.Context
}

// NewPaneTargets returns targets for workDir.
func NewPaneTargets(ctx context.Context, workDir string, opts provider.Options) *PaneTargets {
	return &PaneTargets{WorkDir: workDir, Options: opts, Context: ctx}
}

func (t *PaneTargets) open(name string) (*provider.Communicator, error) {
	p, ok := provider.ByName(name)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return provider.Open(p, t.WorkDir, t.Options)
}

// Send injects msg into the provider pane.
func (t *PaneTargets) Send(name, msg string) error {
	c, err := t.open(name)
	if err != nil {
		return err
	}
	return c.Ask(t.Context, msg)
}

// Busy reports whether the provider pane kept printing for the whole idle
// wait. A pane that cannot be opened counts as busy.
func (t *PaneTargets) Busy(name string) bool {
	c, err := t.open(name)
	if err != nil {
		return true
	}
	return !terminal.NewIdleDetector(c.Backend, c.Session.PaneID).WaitIdle(t.Context)
}
