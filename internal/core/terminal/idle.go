package terminal

import (
	"context"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/gitmzc/claude-code-bridge/internal/core/osutil"
)

// IdleDetector decides whether a pane has stopped printing by comparing
// snapshots of its text. It is a throttle, not a precise busy signal: a
// pane whose text cannot be read is treated as idle.
type IdleDetector struct {
	Backend  Backend
	Pane     string
	Quiet    time.Duration // text must be unchanged this long
	Timeout  time.Duration // WaitIdle gives up after this long
	Interval time.Duration
	Lines    int

	now        func() time.Time
	last       string
	lastChange time.Time
}

// NewIdleDetector reads CCB_IDLE_QUIET_SEC (default 1.5s) and
// CCB_IDLE_TIMEOUT (default 6s).
func NewIdleDetector(b Backend, pane string) *IdleDetector {
	return &IdleDetector{
		Backend:  b,
		Pane:     pane,
		Quiet:    osutil.EnvSeconds("CCB_IDLE_QUIET_SEC", 1500*time.Millisecond, 0, 0),
		Timeout:  osutil.EnvSeconds("CCB_IDLE_TIMEOUT", 6*time.Second, 0, 0),
		Interval: 500 * time.Millisecond,
		Lines:    500,
		now:      time.Now,
	}
}

// IsIdle takes a snapshot and reports whether the text has been stable for
// the quiet period.
func (d *IdleDetector) IsIdle() bool {
	text, err := d.Backend.GetText(d.Pane, d.Lines)
	if err != nil {
		return true
	}
	text = ansi.Strip(text)
	now := d.now()
	if text != d.last || d.lastChange.IsZero() {
		d.last = text
		d.lastChange = now
	}
	return now.Sub(d.lastChange) >= d.Quiet
}

// WaitIdle polls until the pane is idle, the timeout passes or ctx is done.
// It reports whether the pane became idle. CCB_SKIP_IDLE_CHECK skips the
// wait.
func (d *IdleDetector) WaitIdle(ctx context.Context) bool {
	if osutil.EnvBool("CCB_SKIP_IDLE_CHECK", false) {
		return true
	}
	deadline := d.now().Add(d.Timeout)
	for {
		if d.IsIdle() {
			return true
		}
		if !d.now().Before(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d.Interval):
		}
	}
}
