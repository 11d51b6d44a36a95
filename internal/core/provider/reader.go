package provider

import (
	"context"
	"os"
	"sync"
	"time"
)

// logReader holds what the Codex and Gemini readers share: the sticky
// preferred transcript and the poll/wake sleep.
type logReader struct {
	root string
	poll time.Duration

	mu        sync.Mutex
	preferred string
	wake      <-chan struct{}
}

func (r *logReader) SetWake(wake <-chan struct{}) {
	r.mu.Lock()
	r.wake = wake
	r.mu.Unlock()
}

func (r *logReader) setPreferred(path string) {
	r.mu.Lock()
	r.preferred = path
	r.mu.Unlock()
}

func (r *logReader) preferredLog() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.preferred
}

// pick returns the transcript to read. The preferred file sticks until a
// newer transcript appears or the preferred file disappears.
func (r *logReader) pick(latest string) string {
	preferred := r.preferredLog()
	if latest == "" {
		if preferred != "" && fileExists(preferred) {
			return preferred
		}
		return ""
	}
	if preferred == "" || !fileExists(preferred) {
		r.setPreferred(latest)
		return latest
	}
	if latest != preferred && modTime(latest).After(modTime(preferred)) {
		r.setPreferred(latest)
		return latest
	}
	return preferred
}

// sleep waits one poll interval, returning early when the watcher fires.
func (r *logReader) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	wake := r.wake
	r.mu.Unlock()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-wake:
	case <-timer.C:
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
