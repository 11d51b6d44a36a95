package core

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := OpenHistory(context.Background(), filepath.Join(t.TempDir(), "state", "history.db"))
	if err != nil {
		t.Fatalf("OpenHistory() error: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

// clock returns a now func advancing one second per call from base.
func clock(base time.Time) func() time.Time {
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func TestHistory_BeginFinishList(t *testing.T) {
	h := openTestHistory(t)
	h.now = clock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	ctx := context.Background()

	id := h.Begin("codex", "/work/a", "what does main do?")
	if id == "" {
		t.Fatal("Begin() returned empty id")
	}
	h.Finish(id, "replied", "it starts the server")
	pending := h.Begin("gemini", "/work/b", "summarize README")

	got, err := h.List(ctx, HistoryQuery{})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List() returned %d records, want 2", len(got))
	}
	if got[0].ID != pending || got[0].Status != "sent" || got[0].FinishedAt != nil {
		t.Errorf("newest = %+v, want the pending gemini ask", got[0])
	}
	if got[1].Reply != "it starts the server" || got[1].Status != "replied" || got[1].ElapsedMS != 1000 {
		t.Errorf("oldest = %+v", got[1])
	}
}

func TestHistory_Filters(t *testing.T) {
	h := openTestHistory(t)
	h.now = clock(time.Now())
	ctx := context.Background()

	h.Finish(h.Begin("codex", "/w", "fix 100% of tests"), "replied", "done")
	h.Finish(h.Begin("codex", "/w", "rename foo_bar"), "replied", "renamed")
	h.Finish(h.Begin("gemini", "/other", "explain foo"), "error", "")

	tests := []struct {
		name string
		q    HistoryQuery
		want int
	}{
		{"provider", HistoryQuery{Provider: "codex"}, 2},
		{"work dir", HistoryQuery{WorkDir: "/other"}, 1},
		{"search question", HistoryQuery{Search: "foo"}, 2},
		{"search reply", HistoryQuery{Search: "renamed"}, 1},
		{"literal percent", HistoryQuery{Search: "100%"}, 1},
		{"literal underscore", HistoryQuery{Search: "o_b"}, 1},
		{"limit", HistoryQuery{Limit: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.List(ctx, tt.q)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("List(%+v) returned %d, want %d", tt.q, len(got), tt.want)
			}
		})
	}
}

func TestHistory_UnknownProvider(t *testing.T) {
	h := openTestHistory(t)
	_, err := h.List(context.Background(), HistoryQuery{Provider: "claude"})
	if code := ExitCodeFor(err); code != ExitUsageError {
		t.Errorf("List() error = %v (code %d), want usage error", err, code)
	}
}

func TestHistory_Prune(t *testing.T) {
	h := openTestHistory(t)
	base := time.Now()
	h.now = clock(base)
	h.Begin("codex", "/w", "old")
	h.Begin("codex", "/w", "older")
	h.now = clock(base.Add(time.Hour))
	h.Begin("codex", "/w", "new")

	n, err := h.Prune(context.Background(), base.Add(30*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Prune() = %d, want 2", n)
	}
	got, _ := h.List(context.Background(), HistoryQuery{})
	if len(got) != 1 || got[0].Question != "new" {
		t.Errorf("remaining = %+v", got)
	}
}

func TestHistory_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	h, err := OpenHistory(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	h.Begin("codex", "/w", "persisted")
	_ = h.Close()

	h, err = OpenHistory(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()
	got, _ := h.List(context.Background(), HistoryQuery{})
	if len(got) != 1 || got[0].Question != "persisted" {
		t.Errorf("after reopen = %+v", got)
	}
}
