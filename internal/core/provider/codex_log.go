package provider

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/gitmzc/claude-code-bridge/internal/core/osutil"
)

// latestTailBytes is how much of a Codex log Latest reads from the end.
const latestTailBytes = 256 * 1024

// CodexReader follows the JSONL logs Codex writes under ~/.codex/sessions.
type CodexReader struct {
	logReader
}

// NewCodexReader creates a reader over the Codex session root. The poll
// interval comes from CODEX_POLL_INTERVAL (seconds, 0.01 to 0.5).
func NewCodexReader(root string) *CodexReader {
	return &CodexReader{logReader{
		root: root,
		poll: osutil.EnvSeconds("CODEX_POLL_INTERVAL", 50*time.Millisecond, 10*time.Millisecond, 500*time.Millisecond),
	}}
}

func (r *CodexReader) Roots() []string { return []string{r.root} }

func (r *CodexReader) SetPreferred(path string) {
	if path != "" {
		r.setPreferred(osutil.ExpandPath(path))
	}
}

func (r *CodexReader) CurrentLog() string {
	return r.pick(r.scanLatest())
}

// scanLatest returns the most recently modified log under the root.
func (r *CodexReader) scanLatest() string {
	var latest string
	var latestMod time.Time
	_ = filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(d.Name(), ".jsonl") {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		if !info.ModTime().Before(latestMod) {
			latest, latestMod = path, info.ModTime()
		}
		return nil
	})
	return latest
}

// Capture records the current log and its size; only lines appended after
// this point count as a reply.
func (r *CodexReader) Capture() State {
	st := State{Path: r.CurrentLog()}
	if st.Path != "" {
		if info, err := os.Stat(st.Path); err == nil {
			st.Offset = info.Size()
		}
	}
	return st
}

func (r *CodexReader) Wait(ctx context.Context, st State) (string, State, error) {
	for {
		if st.Path == "" {
			st.Path = r.CurrentLog()
		}
		if st.Path != "" {
			var msg string
			msg, st = r.extract(st)
			if msg != "" {
				return msg, st, nil
			}
		}
		if err := r.sleep(ctx, r.poll); err != nil {
			// Codex sometimes omits the end marker; hand back what arrived.
			if len(st.Partial) > 0 {
				msg := joinParts(st.Partial)
				st.Partial = nil
				return msg, st, nil
			}
			return "", st, err
		}
	}
}

func (r *CodexReader) Poll(st State) (string, State) {
	if st.Path == "" {
		st.Path = r.CurrentLog()
	}
	if st.Path == "" {
		return "", st
	}
	return r.extract(st)
}

// extract reads complete lines after st.Offset, accumulating assistant
// messages until one carries the end marker.
func (r *CodexReader) extract(st State) (string, State) {
	f, err := os.Open(st.Path)
	if err != nil {
		return "", st
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", st
	}
	if st.Offset > info.Size() {
		st.Offset = 0
		st.Partial = nil
	}
	if st.Offset == info.Size() {
		return "", st
	}
	if _, err := f.Seek(st.Offset, io.SeekStart); err != nil {
		return "", st
	}

	br := bufio.NewReader(f)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) == 0 || line[len(line)-1] != '\n' {
			// Incomplete trailing line; pick it up on the next read.
			break
		}
		st.Offset += int64(len(line))

		if _, ok := codexUserInput(line); ok {
			// A new turn; an unmarked reply before it is finished.
			st.Partial = nil
		}
		msg, ok := codexMessage(line)
		if ok {
			if strings.Contains(msg, ReplyEndMarker) {
				st.Partial = appendPart(st.Partial, strings.TrimRight(strings.ReplaceAll(msg, ReplyEndMarker, ""), " \t\r\n"))
				reply := joinParts(st.Partial)
				st.Partial = nil
				return reply, st
			}
			st.Partial = appendPart(st.Partial, msg)
		}
		if err != nil {
			break
		}
	}
	return "", st
}

// Messages reads complete lines after st.Offset and returns every new
// assistant message, markers stripped. A message equal to the previous one
// is the event/response_item twin of it and is skipped.
func (r *CodexReader) Messages(st State) ([]string, State) {
	if st.Path == "" {
		st.Path = r.CurrentLog()
	}
	if st.Path == "" {
		return nil, st
	}
	f, err := os.Open(st.Path)
	if err != nil {
		return nil, st
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, st
	}
	if st.Offset > info.Size() {
		st.Offset = 0
		st.LastHash = ""
	}
	if st.Offset == info.Size() {
		return nil, st
	}
	if _, err := f.Seek(st.Offset, io.SeekStart); err != nil {
		return nil, st
	}

	var msgs []string
	br := bufio.NewReader(f)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) == 0 || line[len(line)-1] != '\n' {
			break
		}
		st.Offset += int64(len(line))

		if _, ok := codexUserInput(line); ok {
			st.LastHash = ""
		} else if msg, ok := codexMessage(line); ok {
			msg = stripMarkers(msg)
			if h := contentHash(msg); msg != "" && h != st.LastHash {
				msgs = append(msgs, msg)
				st.LastHash = h
			}
		}
		if err != nil {
			break
		}
	}
	return msgs, st
}

// Latest returns the newest assistant message in the current log.
func (r *CodexReader) Latest() (string, error) {
	path := r.CurrentLog()
	if path == "" {
		return "", ErrNoReply
	}
	lines, err := tailLines(path, latestTailBytes)
	if err != nil {
		return "", err
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if msg, ok := codexMessage(lines[i]); ok {
			if msg = stripMarkers(msg); msg != "" {
				return msg, nil
			}
		}
	}
	return "", ErrNoReply
}

// Conversations pairs user inputs with the assistant reply that follows.
func (r *CodexReader) Conversations(n int) ([]Conversation, error) {
	path := r.CurrentLog()
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var convs []Conversation
	var question string
	for _, line := range bytes.Split(data, []byte("\n")) {
		if q, ok := codexUserInput(line); ok {
			question = q
			continue
		}
		msg, ok := codexMessage(line)
		if !ok || question == "" {
			continue
		}
		if msg = stripMarkers(msg); msg != "" {
			convs = append(convs, Conversation{Question: question, Answer: msg})
			question = ""
		}
	}
	if n > 0 && len(convs) > n {
		convs = convs[len(convs)-n:]
	}
	return convs, nil
}

// codexMessage extracts assistant text from one log line.
func codexMessage(line []byte) (string, bool) {
	entry, ok := parseLine(line)
	if !ok {
		return "", false
	}
	payload := entry.Get("payload")
	switch entry.Get("type").String() {
	case "response_item":
		if payload.Get("type").String() != "message" {
			return "", false
		}
		if role := payload.Get("role").String(); role != "" && role != "assistant" {
			return "", false
		}
		var texts []string
		payload.Get("content").ForEach(func(_, item gjson.Result) bool {
			switch item.Get("type").String() {
			case "output_text", "text":
				if t := item.Get("text").String(); t != "" {
					texts = append(texts, t)
				}
			}
			return true
		})
		if len(texts) > 0 {
			return strings.TrimSpace(strings.Join(texts, "\n")), true
		}
		if msg := strings.TrimSpace(payload.Get("message").String()); msg != "" {
			return msg, true
		}
	case "event_msg":
		if payload.Get("type").String() == "agent_message" {
			if msg := strings.TrimSpace(payload.Get("message").String()); msg != "" {
				return msg, true
			}
		}
	}
	return "", false
}

// codexUserInput extracts a user question from one log line.
func codexUserInput(line []byte) (string, bool) {
	entry, ok := parseLine(line)
	if !ok {
		return "", false
	}
	payload := entry.Get("payload")
	var text string
	switch entry.Get("type").String() {
	case "input":
		text = payload.Get("content").String()
	case "event_msg":
		if payload.Get("type").String() == "user_message" {
			text = payload.Get("message").String()
		}
	case "response_item":
		if payload.Get("type").String() == "message" && payload.Get("role").String() == "user" {
			var parts []string
			payload.Get("content").ForEach(func(_, item gjson.Result) bool {
				if item.Get("type").String() == "input_text" {
					parts = append(parts, item.Get("text").String())
				}
				return true
			})
			text = strings.Join(parts, "\n")
		}
	}
	text = strings.TrimSpace(text)
	// Codex injects environment context as a user message; it is not a question.
	if text == "" || strings.HasPrefix(text, "<environment_context>") || strings.HasPrefix(text, "<user_instructions>") {
		return "", false
	}
	return text, true
}

func parseLine(line []byte) (gjson.Result, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return gjson.Result{}, false
	}
	if !gjson.ValidBytes(line) {
		line = bytes.ToValidUTF8(line, nil)
		if !gjson.ValidBytes(line) {
			return gjson.Result{}, false
		}
	}
	return gjson.ParseBytes(line), true
}

// appendPart skips a part identical to the previous one; Codex logs the
// same reply as both an event and a response item.
func appendPart(parts []string, msg string) []string {
	if len(parts) > 0 && parts[len(parts)-1] == msg {
		return parts
	}
	return append(parts, msg)
}

func joinParts(parts []string) string {
	nonEmpty := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}

// tailLines returns the lines in the last limit bytes of a file, dropping a
// leading partial line.
func tailLines(path string, limit int64) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	start := info.Size() - limit
	if start < 0 {
		start = 0
	}
	buf := make([]byte, info.Size()-start)
	if _, err := f.ReadAt(buf, start); err != nil && err != io.EOF {
		return nil, err
	}
	if start > 0 {
		if i := bytes.IndexByte(buf, '\n'); i >= 0 {
			buf = buf[i+1:]
		}
	}
	return bytes.Split(buf, []byte("\n")), nil
}
