package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

// ---------------------------------------------------------------------------
// Git error classification
// ---------------------------------------------------------------------------

func TestClassifyGitError(t *testing.T) {
	tests := []struct {
		output string
		want   GitErrorKind
		code   int
	}{
		{"fatal: could not read Username for 'https://github.com': terminal prompts disabled", GitErrAuth, ExitUpdateFailed},
		{"fatal: unable to access 'https://github.com/x/y/': Could not resolve host: github.com", GitErrNetwork, ExitNetworkError},
		{"fatal: Not possible to fast-forward, aborting.", GitErrDiverged, ExitUpdateFailed},
		{"error: Your local changes to the following files would be overwritten by merge", GitErrDirty, ExitUpdateFailed},
		{"command timed out after 1m0s", GitErrTimeout, ExitNetworkError},
		{"fatal: something odd", GitErrUnknown, ExitUpdateFailed},
	}
	for _, tt := range tests {
		ge := ClassifyGitError("git pull --ff-only", tt.output)
		if ge.Kind != tt.want {
			t.Errorf("ClassifyGitError(%q).Kind = %s, want %s", tt.output, ge.Kind, tt.want)
		}
		if ge.ExitCode() != tt.code {
			t.Errorf("ClassifyGitError(%q).ExitCode() = %d, want %d", tt.output, ge.ExitCode(), tt.code)
		}
		if len(ge.Hints) == 0 {
			t.Errorf("ClassifyGitError(%q) has no hints", tt.output)
		}
	}
}

func TestGitError_Message(t *testing.T) {
	ge := ClassifyGitError("git pull", "\n\nfatal: Authentication failed for 'x'\nmore\n")
	want := "git pull failed (Authentication Required): fatal: Authentication failed for 'x'"
	if ge.Error() != want {
		t.Errorf("Error() = %q, want %q", ge.Error(), want)
	}
	if got := ClassifyGitError("git pull", "").Error(); got != "git pull failed (Unknown Error): no output" {
		t.Errorf("Error() = %q", got)
	}
}

// ---------------------------------------------------------------------------
// Updater
// ---------------------------------------------------------------------------

func newTestUpdater(t *testing.T, h http.HandlerFunc) *Updater {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &Updater{Prefix: t.TempDir(), Version: "1.2.3", APIURL: srv.URL, Client: srv.Client()}
}

func TestUpdater_Remote(t *testing.T) {
	u := newTestUpdater(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "ccb" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		_, _ = w.Write([]byte(`{"sha":"0123456789abcdef","commit":{"committer":{"date":"2026-09-30T12:00:00Z"}}}`))
	})
	got, err := u.Remote(context.Background())
	if err != nil {
		t.Fatalf("Remote() error: %v", err)
	}
	if got.Commit != "0123456" || got.Date != "2026-09-30" {
		t.Errorf("Remote() = %+v", got)
	}
}

func TestUpdater_RemoteAPIError(t *testing.T) {
	u := newTestUpdater(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"API rate limit exceeded"}`))
	})
	_, err := u.Remote(context.Background())
	if code := ExitCodeFor(err); code != ExitAPIError {
		t.Fatalf("Remote() error = %v (code %d), want %d", err, code, ExitAPIError)
	}
}

func TestUpdater_RemoteMissingSHA(t *testing.T) {
	u := newTestUpdater(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	if _, err := u.Remote(context.Background()); ExitCodeFor(err) != ExitAPIError {
		t.Errorf("Remote() error = %v, want API error", err)
	}
}

func TestUpdater_RemoteNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	u := &Updater{APIURL: url, Client: http.DefaultClient}
	_, err := u.Remote(context.Background())
	if code := ExitCodeFor(err); code != ExitNetworkError {
		t.Errorf("Remote() error = %v (code %d), want %d", err, code, ExitNetworkError)
	}
}

func TestUpdater_CheckNotCheckout(t *testing.T) {
	u := newTestUpdater(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"sha":"abcdef0123"}`))
	})
	res, err := u.Check(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.UpToDate {
		t.Error("UpToDate = true without a local commit")
	}
	if res.Local.String() != "v1.2.3" || res.Remote.Commit != "abcdef0" {
		t.Errorf("check = %+v", res)
	}
}

func TestUpdater_UpdateNotCheckout(t *testing.T) {
	u := &Updater{Prefix: t.TempDir()}
	_, err := u.Update(context.Background())
	if code := ExitCodeFor(err); code != ExitUpdateFailed {
		t.Errorf("Update() error = %v (code %d), want %d", err, code, ExitUpdateFailed)
	}
}

func TestVersionInfo_String(t *testing.T) {
	tests := []struct {
		v    VersionInfo
		want string
	}{
		{VersionInfo{}, "unknown"},
		{VersionInfo{Version: "v2.0.0"}, "v2.0.0"},
		{VersionInfo{Version: "2.0.0", Commit: "abc1234", Date: "2026-01-01"}, "v2.0.0 abc1234 2026-01-01"},
		{VersionInfo{Version: "dev", Commit: "unknown", Date: "unknown"}, "dev"},
		{VersionInfo{Version: "dev", Commit: "abc1234"}, "dev abc1234"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
