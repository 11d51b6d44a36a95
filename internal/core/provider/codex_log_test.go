package provider

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func codexAssistant(text string) string {
	return `{"type":"response_item","payload":{"type":"message","role":"assistant","content":[{"type":"output_text","text":` + quote(text) + `}]}}` + "\n"
}

func codexEvent(text string) string {
	return `{"type":"event_msg","payload":{"type":"agent_message","message":` + quote(text) + `}}` + "\n"
}

func codexUser(text string) string {
	return `{"type":"event_msg","payload":{"type":"user_message","message":` + quote(text) + `}}` + "\n"
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}

func newCodexLog(t *testing.T) (*CodexReader, string) {
	t.Helper()
	t.Setenv("CODEX_POLL_INTERVAL", "0.01")
	root := t.TempDir()
	path := filepath.Join(root, "2025", "01", "02", "rollout-a.jsonl")
	writeFile(t, path, `{"type":"session_meta","payload":{"id":"a"}}`+"\n"+codexAssistant("old answer"))
	return NewCodexReader(root), path
}

func TestCodexReader_CaptureSkipsExisting(t *testing.T) {
	r, path := newCodexLog(t)
	st := r.Capture()
	if st.Path != path {
		t.Fatalf("Capture().Path = %q, want %q", st.Path, path)
	}
	if msg, _ := r.Poll(st); msg != "" {
		t.Errorf("Poll() after Capture = %q, want empty", msg)
	}
}

func TestCodexReader_WaitForMarker(t *testing.T) {
	r, path := newCodexLog(t)
	st := r.Capture()

	appendFile(t, path, codexAssistant("first part"))
	appendFile(t, path, codexEvent("second part\n"+ReplyEndMarker))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, next, err := r.Wait(ctx, st)
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if msg != "first part\n\nsecond part" {
		t.Errorf("Wait() = %q, want %q", msg, "first part\n\nsecond part")
	}
	if len(next.Partial) != 0 {
		t.Errorf("Partial = %v, want empty", next.Partial)
	}
}

func TestCodexReader_DuplicateEventAndResponse(t *testing.T) {
	r, path := newCodexLog(t)
	st := r.Capture()

	appendFile(t, path, codexEvent("same text"))
	appendFile(t, path, codexAssistant("same text"))
	appendFile(t, path, codexAssistant(ReplyEndMarker))

	msg, _ := r.Poll(st)
	if msg != "same text" {
		t.Errorf("Poll() = %q, want %q", msg, "same text")
	}
}

func TestCodexReader_Messages(t *testing.T) {
	r, path := newCodexLog(t)
	st := r.Capture()

	appendFile(t, path, codexUser("q1")+codexEvent("one")+codexAssistant("one"))
	msgs, st := r.Messages(st)
	if len(msgs) != 1 || msgs[0] != "one" {
		t.Fatalf("Messages() = %q, want [one]", msgs)
	}

	// The twin of the last message may land in a later read.
	appendFile(t, path, codexAssistant("one"))
	if msgs, st = r.Messages(st); len(msgs) != 0 {
		t.Fatalf("Messages() after twin = %q, want none", msgs)
	}

	// The same text in a new turn is a new message.
	appendFile(t, path, codexUser("q2")+codexAssistant("one "+ReplyEndMarker))
	if msgs, _ = r.Messages(st); len(msgs) != 1 || msgs[0] != "one" {
		t.Errorf("Messages() in new turn = %q, want [one]", msgs)
	}
}

func TestCodexReader_UserTurnDropsUnmarkedPart(t *testing.T) {
	r, path := newCodexLog(t)
	st := r.Capture()

	appendFile(t, path, codexUser("what is 2+2")+codexAssistant("four"))
	msg, st := r.Poll(st)
	if msg != "" {
		t.Fatalf("Poll() without marker = %q, want empty", msg)
	}
	appendFile(t, path, codexUser("and 3+3")+codexAssistant("six "+ReplyEndMarker))
	if msg, _ := r.Poll(st); msg != "six" {
		t.Errorf("Poll() = %q, want %q", msg, "six")
	}
}

func TestCodexReader_IncompleteLine(t *testing.T) {
	r, path := newCodexLog(t)
	st := r.Capture()

	full := codexAssistant("done " + ReplyEndMarker)
	appendFile(t, path, full[:len(full)/2])
	msg, st := r.Poll(st)
	if msg != "" {
		t.Fatalf("Poll() on half a line = %q, want empty", msg)
	}
	appendFile(t, path, full[len(full)/2:])
	if msg, _ := r.Poll(st); msg != "done" {
		t.Errorf("Poll() after completing line = %q, want %q", msg, "done")
	}
}

func TestCodexReader_OffsetReset(t *testing.T) {
	r, path := newCodexLog(t)
	st := r.Capture()
	st.Partial = []string{"stale"}

	// The log was rewritten and is now shorter than the captured offset.
	writeFile(t, path, codexAssistant("fresh "+ReplyEndMarker))
	msg, _ := r.Poll(st)
	if msg != "fresh" {
		t.Errorf("Poll() after truncation = %q, want %q", msg, "fresh")
	}
}

func TestCodexReader_DeadlineReturnsPartial(t *testing.T) {
	r, path := newCodexLog(t)
	st := r.Capture()
	appendFile(t, path, codexAssistant("no marker here"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	msg, _, err := r.Wait(ctx, st)
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if msg != "no marker here" {
		t.Errorf("Wait() = %q, want partial text", msg)
	}
}

func TestCodexReader_DeadlineWithoutReply(t *testing.T) {
	r, _ := newCodexLog(t)
	st := r.Capture()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err := r.Wait(ctx, st)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
}

func TestCodexReader_Latest(t *testing.T) {
	r, path := newCodexLog(t)
	appendFile(t, path, codexAssistant("answer two\n"+ReplyEndMarker))
	appendFile(t, path, `{"type":"turn_context","payload":{}}`+"\n")

	got, err := r.Latest()
	if err != nil {
		t.Fatalf("Latest() error: %v", err)
	}
	if got != "answer two" {
		t.Errorf("Latest() = %q, want %q", got, "answer two")
	}
}

func TestCodexReader_LatestEmpty(t *testing.T) {
	r := NewCodexReader(t.TempDir())
	if _, err := r.Latest(); !errors.Is(err, ErrNoReply) {
		t.Errorf("Latest() error = %v, want ErrNoReply", err)
	}
}

func TestCodexReader_Conversations(t *testing.T) {
	r, path := newCodexLog(t)
	appendFile(t, path, codexUser("<environment_context>cwd</environment_context>"))
	appendFile(t, path, codexUser("q1"))
	appendFile(t, path, codexAssistant("a1 "+ReplyEndMarker))
	appendFile(t, path, codexUser("q2"))
	appendFile(t, path, codexAssistant("a2"))

	convs, err := r.Conversations(1)
	if err != nil {
		t.Fatalf("Conversations() error: %v", err)
	}
	if len(convs) != 1 || convs[0].Question != "q2" || convs[0].Answer != "a2" {
		t.Errorf("Conversations(1) = %+v", convs)
	}

	convs, _ = r.Conversations(0)
	if len(convs) != 2 || convs[0].Answer != "a1" {
		t.Errorf("Conversations(0) = %+v", convs)
	}
}

func TestCodexReader_PreferredSticks(t *testing.T) {
	r, first := newCodexLog(t)
	second := filepath.Join(filepath.Dir(first), "rollout-b.jsonl")
	writeFile(t, second, codexAssistant("b"))
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(second, old, old); err != nil {
		t.Fatal(err)
	}

	r.SetPreferred(second)
	if got := r.CurrentLog(); got != first {
		// first is newer than the preferred log, so it wins.
		t.Errorf("CurrentLog() = %q, want newer %q", got, first)
	}

	newer := time.Now().Add(time.Hour)
	if err := os.Chtimes(second, newer, newer); err != nil {
		t.Fatal(err)
	}
	r.SetPreferred(second)
	if got := r.CurrentLog(); got != second {
		t.Errorf("CurrentLog() = %q, want preferred %q", got, second)
	}
}
