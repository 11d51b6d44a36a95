package provider

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Source is a provider transcript followed by Follow.
type Source struct {
	Provider string
	Reader   Reader
}

// Event reports a new reply seen in a followed transcript.
type Event struct {
	Provider string
	Path     string
	Message  string
	At       time.Time
}

// Follow emits an Event for every new assistant message appearing in the
// sources' transcripts until ctx is done, whether or not it carries the end
// marker. Messages present before the call are not reported. The channel
// is closed on return.
func Follow(ctx context.Context, sources []Source, interval time.Duration) <-chan Event {
	if interval <= 0 {
		interval = time.Second
	}
	out := make(chan Event, 8)

	var roots []string
	states := make([]State, len(sources))
	for i, s := range sources {
		roots = append(roots, s.Reader.Roots()...)
		states[i] = s.Reader.Capture()
	}

	w := NewWatcher(roots...)
	go func() {
		defer close(out)
		defer func() { _ = w.Stop() }()
		var wake <-chan struct{}
		if err := w.Start(); err != nil {
			log.Debug().Err(err).Msg("follow without watcher, polling only")
		} else {
			wake = w.Wake()
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-wake:
			case <-ticker.C:
			}
			for i, s := range sources {
				msgs, st := s.Reader.Messages(states[i])
				states[i] = st
				for _, msg := range msgs {
					ev := Event{Provider: s.Provider, Path: st.Path, Message: msg, At: time.Now()}
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out
}
