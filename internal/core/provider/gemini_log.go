package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/gitmzc/claude-code-bridge/internal/core/osutil"
)

// defaultMarkerGrace is how long a streaming Gemini reply may keep growing
// after the wait deadline before it is returned without an end marker.
const defaultMarkerGrace = 600 * time.Second

// GeminiReader follows the chat files Gemini writes under
// ~/.gemini/tmp/<project hash>/chats/session-*.json. Each file is a single
// JSON document rewritten in place, so progress is tracked by message count.
type GeminiReader struct {
	logReader

	projectHash string
	forceRead   time.Duration
	markerGrace time.Duration
}

// NewGeminiReader creates a reader for workDir's chats. GEMINI_PROJECT_HASH
// overrides the computed project hash.
func NewGeminiReader(root, workDir string) *GeminiReader {
	hash := osutil.EnvString("GEMINI_PROJECT_HASH")
	if hash == "" {
		hash = ProjectHash(workDir)
	}
	return &GeminiReader{
		logReader: logReader{
			root: root,
			poll: osutil.EnvSeconds("GEMINI_POLL_INTERVAL", 50*time.Millisecond, 10*time.Millisecond, 500*time.Millisecond),
		},
		projectHash: hash,
		// mtime can have one-second granularity; re-read periodically even
		// when size and mtime look unchanged.
		forceRead:   osutil.EnvSeconds("GEMINI_FORCE_READ_INTERVAL", time.Second, 200*time.Millisecond, 5*time.Second),
		markerGrace: defaultMarkerGrace,
	}
}

func (r *GeminiReader) Roots() []string { return []string{r.root} }

func (r *GeminiReader) SetPreferred(path string) {
	if path == "" {
		return
	}
	path = osutil.ExpandPath(path)
	if !fileExists(path) {
		return
	}
	r.setPreferred(path)
	r.bindProject(path)
}

func (r *GeminiReader) bindProject(path string) {
	if hash := filepath.Base(filepath.Dir(filepath.Dir(path))); hash != "" && hash != "." {
		r.mu.Lock()
		r.projectHash = hash
		r.mu.Unlock()
	}
}

func (r *GeminiReader) chatsDir() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return filepath.Join(r.root, r.projectHash, "chats")
}

func (r *GeminiReader) CurrentLog() string {
	path := r.pick(r.scanLatest())
	if path != "" {
		r.bindProject(path)
	}
	return path
}

// scanLatest prefers this project's newest chat and falls back to the
// newest chat of any project, since Windows/WSL path spellings can hash
// differently.
func (r *GeminiReader) scanLatest() string {
	if p := newestMatch(filepath.Join(r.chatsDir(), "session-*.json")); p != "" {
		return p
	}
	return newestMatch(filepath.Join(r.root, "*", "chats", "session-*.json"))
}

func newestMatch(pattern string) string {
	matches, _ := filepath.Glob(pattern)
	var latest string
	var latestMod time.Time
	for _, m := range matches {
		if strings.HasPrefix(filepath.Base(m), ".") {
			continue
		}
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest, latestMod = m, info.ModTime()
		}
	}
	return latest
}

// Capture records the current chat's message count and fingerprint. A
// count of -1 means the file could not be parsed and the wait loop must
// establish a baseline first.
func (r *GeminiReader) Capture() State {
	st := State{Path: r.CurrentLog()}
	if st.Path == "" {
		return st
	}
	if info, err := os.Stat(st.Path); err == nil {
		st.ModTime, st.Size = info.ModTime(), info.Size()
	}
	// The file is rewritten in place; retry briefly on a torn read.
	for attempt := 0; attempt < 10; attempt++ {
		if data, ok := readGeminiSession(st.Path); ok {
			msgs := data.Get("messages").Array()
			st.MsgCount = len(msgs)
			if id, content, ok := lastGemini(msgs); ok {
				st.LastID, st.LastHash = id, contentHash(content)
			}
			return st
		}
		if !fileExists(st.Path) {
			break
		}
		time.Sleep(min(r.poll, 50*time.Millisecond))
	}
	st.MsgCount = -1
	return st
}

func (r *GeminiReader) Wait(ctx context.Context, st State) (string, State, error) {
	return r.readSince(ctx, st, true)
}

func (r *GeminiReader) Poll(st State) (string, State) {
	msg, st, _ := r.readSince(context.Background(), st, false)
	return msg, st
}

// Messages returns the Gemini messages added since st. Gemini rewrites the
// whole chat file, so a poll already yields whole messages.
func (r *GeminiReader) Messages(st State) ([]string, State) {
	msg, st := r.Poll(st)
	if msg == "" {
		return nil, st
	}
	return []string{msg}, st
}

func (r *GeminiReader) readSince(ctx context.Context, st State, block bool) (string, State, error) {
	rescanEvery := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		rescanEvery = min(max(time.Until(dl)/2, 200*time.Millisecond), 2*time.Second)
	}
	lastRescan := time.Now()
	lastForced := time.Now()

	for {
		if time.Since(lastRescan) >= rescanEvery {
			if latest := r.scanLatest(); latest != "" && latest != r.preferredLog() {
				r.SetPreferred(latest)
				if latest != st.Path {
					st = State{Path: latest}
				}
			}
			lastRescan = time.Now()
		}

		path := r.CurrentLog()
		if path == "" {
			if !block {
				return "", st, nil
			}
			if err := r.sleep(ctx, r.poll); err != nil {
				return "", st, err
			}
			continue
		}
		if st.Path != path {
			if st.Path != "" {
				// A different chat file: every message in it is new.
				st = State{}
			}
			st.Path = path
		}

		if info, err := os.Stat(path); err == nil {
			changed := info.ModTime().After(st.ModTime) || info.Size() != st.Size
			if block && !changed && time.Since(lastForced) < r.forceRead {
				if err := r.sleep(ctx, r.poll); err != nil {
					return "", st, err
				}
				continue
			}

			data, ok := readGeminiSession(path)
			lastForced = time.Now()
			if ok {
				msgs := data.Get("messages").Array()
				count := len(msgs)

				switch {
				case st.MsgCount < 0:
					if count > 0 && changed {
						last := msgs[count-1]
						if content := geminiContent(last); last.Get("type").String() == "gemini" && content != "" {
							return stripMarkers(content), State{
								Path: path, MsgCount: count, ModTime: info.ModTime(), Size: info.Size(),
								LastID: last.Get("id").String(), LastHash: contentHash(content),
							}, nil
						}
					}
				case count > st.MsgCount:
					batch := collectGemini(msgs[st.MsgCount:], st.LastHash)
					if len(batch.contents) > 0 {
						batch.count = count
						if block && !batch.done {
							batch = r.awaitMarker(ctx, path, st, batch)
						}
						next := State{Path: path, MsgCount: batch.count, LastID: batch.lastID, LastHash: batch.lastHash}
						if fi, err := os.Stat(path); err == nil {
							next.ModTime, next.Size = fi.ModTime(), fi.Size()
						}
						return mergeGemini(batch.contents), next, nil
					}
				}
				st = baseline(path, info, msgs, st)
			}
		}

		if !block {
			return "", st, nil
		}
		if err := r.sleep(ctx, r.poll); err != nil {
			return "", st, err
		}
	}
}

// awaitMarker keeps re-reading a chat whose reply is still streaming until
// the end marker shows up. The caller's deadline does not cut this short,
// cancellation does.
func (r *GeminiReader) awaitMarker(ctx context.Context, path string, base State, got geminiBatch) geminiBatch {
	grace := r.markerGrace
	if dl, ok := ctx.Deadline(); ok {
		grace = max(grace, time.Until(dl))
	}
	deadline := time.Now().Add(grace)
	waitCtx := context.WithoutCancel(ctx)
	interval := min(r.forceRead, 2*time.Second)

	for !got.done && time.Now().Before(deadline) {
		if errors.Is(ctx.Err(), context.Canceled) {
			break
		}
		_ = r.sleep(waitCtx, interval)

		data, ok := readGeminiSession(path)
		if !ok {
			continue
		}
		msgs := data.Get("messages").Array()
		if len(msgs) <= base.MsgCount {
			continue
		}
		if next := collectGemini(msgs[base.MsgCount:], base.LastHash); len(next.contents) > 0 {
			next.count = len(msgs)
			got = next
		}
	}
	return got
}

// Latest returns the newest Gemini message in the current chat.
func (r *GeminiReader) Latest() (string, error) {
	path := r.CurrentLog()
	if path == "" {
		return "", ErrNoReply
	}
	data, ok := readGeminiSession(path)
	if !ok {
		return "", ErrNoReply
	}
	if _, content, ok := lastGemini(data.Get("messages").Array()); ok {
		if content = stripMarkers(content); content != "" {
			return content, nil
		}
	}
	return "", ErrNoReply
}

// Conversations pairs user messages with the Gemini reply that follows.
func (r *GeminiReader) Conversations(n int) ([]Conversation, error) {
	path := r.CurrentLog()
	if path == "" {
		return nil, nil
	}
	data, ok := readGeminiSession(path)
	if !ok {
		return nil, nil
	}

	var convs []Conversation
	var question string
	for _, m := range data.Get("messages").Array() {
		content := geminiContent(m)
		switch m.Get("type").String() {
		case "user":
			if content != "" {
				question = content
			}
		case "gemini":
			if question == "" {
				continue
			}
			if answer := stripMarkers(content); answer != "" {
				convs = append(convs, Conversation{Question: question, Answer: answer})
				question = ""
			}
		}
	}
	if n > 0 && len(convs) > n {
		convs = convs[len(convs)-n:]
	}
	return convs, nil
}

type geminiBatch struct {
	contents []string
	lastID   string
	lastHash string
	done     bool
	count    int
}

// collectGemini gathers new Gemini messages, skipping duplicates and the
// message that was already the last reply before the question.
func collectGemini(msgs []gjson.Result, prevHash string) geminiBatch {
	var b geminiBatch
	seen := map[string]bool{}
	if prevHash != "" {
		seen[prevHash] = true
	}
	for _, m := range msgs {
		if m.Get("type").String() != "gemini" {
			continue
		}
		content := geminiContent(m)
		if content == "" {
			continue
		}
		h := contentHash(content)
		if seen[h] {
			continue
		}
		seen[h] = true
		b.contents = append(b.contents, content)
		b.lastID, b.lastHash = m.Get("id").String(), h
		if strings.Contains(content, ReplyEndMarker) {
			b.done = true
		}
	}
	return b
}

func mergeGemini(contents []string) string {
	cleaned := make([]string, 0, len(contents))
	for _, c := range contents {
		if c = stripMarkers(c); c != "" {
			cleaned = append(cleaned, c)
		}
	}
	return strings.Join(cleaned, "\n\n")
}

func baseline(path string, info os.FileInfo, msgs []gjson.Result, prev State) State {
	st := State{
		Path:     path,
		MsgCount: len(msgs),
		ModTime:  info.ModTime(),
		Size:     info.Size(),
		LastID:   prev.LastID,
		LastHash: prev.LastHash,
	}
	if id, content, ok := lastGemini(msgs); ok {
		st.LastID, st.LastHash = id, contentHash(content)
	}
	return st
}

func lastGemini(msgs []gjson.Result) (string, string, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Get("type").String() == "gemini" {
			return msgs[i].Get("id").String(), geminiContent(msgs[i]), true
		}
	}
	return "", "", false
}

// geminiContent returns a message's text; newer CLIs store content as a
// list of parts.
func geminiContent(m gjson.Result) string {
	c := m.Get("content")
	if !c.IsArray() {
		return strings.TrimSpace(c.String())
	}
	var parts []string
	c.ForEach(func(_, part gjson.Result) bool {
		if t := part.Get("text").String(); t != "" {
			parts = append(parts, t)
		}
		return true
	})
	return strings.TrimSpace(strings.Join(parts, ""))
}

func readGeminiSession(path string) (gjson.Result, bool) {
	raw, err := os.ReadFile(path)
	if err != nil || len(raw) == 0 {
		return gjson.Result{}, false
	}
	text := osutil.SmartDecode(raw).Text
	if !gjson.Valid(text) {
		return gjson.Result{}, false
	}
	data := gjson.Parse(text)
	if !data.IsObject() {
		return gjson.Result{}, false
	}
	return data, true
}

func contentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
