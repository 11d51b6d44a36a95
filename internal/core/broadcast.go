package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"github.com/gitmzc/claude-code-bridge/internal/core/provider"
)

// BroadcastResult is one provider's answer to a broadcast.
type BroadcastResult struct {
	Provider string  `json:"provider"`
	Success  bool    `json:"success"`
	Sent     bool    `json:"sent,omitempty"`
	Reply    string  `json:"reply,omitempty"`
	Error    string  `json:"error,omitempty"`
	Elapsed  float64 `json:"elapsed"`
}

// BroadcastOptions configure Broadcast.
type BroadcastOptions struct {
	Timeout  time.Duration // per provider; zero waits forever
	NoWait   bool          // send only
	Recorder provider.Recorder
	// Open is a seam for tests; provider.Open when nil.
	Open func(p provider.Provider, workDir string, opts provider.Options) (*provider.Communicator, error)
}

// Broadcast sends msg to every provider at once and collects the replies
// in provider order.
func Broadcast(ctx context.Context, ps []provider.Provider, workDir, msg string, opts BroadcastOptions) []BroadcastResult {
	open := opts.Open
	if open == nil {
		open = provider.Open
	}

	type indexed struct {
		i int
		r BroadcastResult
	}
	ch := make(chan indexed, len(ps))
	for i, p := range ps {
		go func() {
			ch <- indexed{i, askOne(ctx, p, workDir, msg, opts, open)}
		}()
	}
	results := make([]BroadcastResult, len(ps))
	for range ps {
		got := <-ch
		results[got.i] = got.r
	}
	return results
}

func askOne(ctx context.Context, p provider.Provider, workDir, msg string, opts BroadcastOptions,
	open func(provider.Provider, string, provider.Options) (*provider.Communicator, error)) BroadcastResult {
	start := time.Now()
	res := BroadcastResult{Provider: p.Name()}

	c, err := open(p, workDir, provider.Options{Recorder: opts.Recorder, TimeoutAction: provider.ActionCancel})
	if err != nil {
		res.Error = err.Error()
		res.Elapsed = time.Since(start).Seconds()
		return res
	}
	if opts.NoWait {
		if err := c.Ask(ctx, msg); err != nil {
			res.Error = err.Error()
		} else {
			res.Success, res.Sent = true, true
		}
		res.Elapsed = time.Since(start).Seconds()
		return res
	}

	reply, err := c.AskWait(ctx, msg, opts.Timeout)
	if err != nil {
		log.Debug().Err(err).Str("provider", p.Name()).Msg("broadcast ask failed")
		res.Error = err.Error()
	} else {
		res.Success, res.Reply = true, reply
	}
	res.Elapsed = time.Since(start).Seconds()
	return res
}

// AnySucceeded reports whether at least one provider answered.
func AnySucceeded(results []BroadcastResult) bool {
	for _, r := range results {
		if r.Success {
			return true
		}
	}
	return false
}

var providerColors = map[string]lipgloss.Color{
	"codex":  lipgloss.Color("12"),
	"gemini": lipgloss.Color("10"),
}

// FormatBroadcast renders the results under one header per provider:
//
//	==================== CODEX (3.2s) ====================
func FormatBroadcast(results []BroadcastResult, color bool) string {
	var b strings.Builder
	bar := strings.Repeat("=", 20)
	for _, r := range results {
		header := bar + " " + strings.ToUpper(r.Provider)
		if r.Elapsed > 0 {
			header += fmt.Sprintf(" (%.1fs)", r.Elapsed)
		}
		header += " " + bar
		if color {
			header = lipgloss.NewStyle().Bold(true).Foreground(providerColors[r.Provider]).Render(header)
		}
		b.WriteString("\n" + header + "\n")
		switch {
		case r.Sent:
			b.WriteString("Sent\n")
		case r.Success:
			b.WriteString(r.Reply + "\n")
		default:
			b.WriteString("Error: " + r.Error + "\n")
		}
	}
	return b.String()
}
