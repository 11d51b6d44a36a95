package provider

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher watches transcript directories and wakes readers as soon as a
// transcript changes. When fsnotify is unavailable it degrades to a
// fixed-interval tick so readers still poll.
type Watcher struct {
	roots        []string
	watcher      *fsnotify.Watcher
	debounceTime time.Duration
	pollInterval time.Duration

	wake    chan struct{}
	changes chan []string

	mu      sync.Mutex
	pending map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher over roots. It never fails: if fsnotify
// cannot be set up the watcher runs in poll mode.
func NewWatcher(roots ...string) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		roots:        roots,
		debounceTime: 200 * time.Millisecond,
		pollInterval: time.Second,
		wake:         make(chan struct{}, 1),
		changes:      make(chan []string, 16),
		pending:      make(map[string]bool),
		ctx:          ctx,
		cancel:       cancel,
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Debug().Err(err).Msg("fsnotify unavailable, polling transcripts")
	} else {
		w.watcher = fw
	}
	return w
}

// Start adds every directory under the roots and begins delivering events.
func (w *Watcher) Start() error {
	if w.watcher == nil {
		w.wg.Add(1)
		go w.pollLoop()
		return nil
	}

	watched := 0
	for _, root := range w.roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if err := w.watcher.Add(path); err != nil {
					log.Debug().Err(err).Str("path", path).Msg("cannot watch directory")
					return nil
				}
				watched++
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("walking %s: %w", root, err)
		}
	}

	if watched == 0 {
		// Nothing exists yet; the CLI creates its directories on first use.
		w.wg.Add(1)
		go w.pollLoop()
	}
	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()
	return nil
}

// Wake fires (coalesced) whenever a transcript may have changed.
func (w *Watcher) Wake() <-chan struct{} { return w.wake }

// Changes delivers debounced batches of changed transcript paths.
func (w *Watcher) Changes() <-chan []string { return w.changes }

// Stop stops the watcher and waits for its goroutines.
func (w *Watcher) Stop() error {
	w.cancel()
	w.wg.Wait()
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

func (w *Watcher) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Watcher) pollLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.signal()
		}
	}
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Debug().Err(err).Msg("transcript watcher error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			// Codex nests logs by date; follow new day directories.
			if err := w.watcher.Add(event.Name); err != nil {
				log.Debug().Err(err).Str("path", event.Name).Msg("cannot watch new directory")
			}
			return
		}
	}
	if !isTranscript(event.Name) {
		return
	}
	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
		w.mu.Lock()
		w.pending[event.Name] = true
		w.mu.Unlock()
		w.signal()
	}
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounceTime)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	sort.Strings(paths)
	select {
	case w.changes <- paths:
	default:
		// Slow consumer; it re-reads the latest state on the next batch.
	}
}

func isTranscript(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return strings.HasSuffix(base, ".jsonl") || strings.HasSuffix(base, ".json")
}
