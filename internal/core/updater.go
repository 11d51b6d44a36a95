package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/gitmzc/claude-code-bridge/internal/core/osutil"
)

// DefaultUpdateAPI is the GitHub endpoint describing the latest main commit.
const DefaultUpdateAPI = "https://api.github.com/repos/bfly123/claude_code_bridge/commits/main"

// VersionInfo identifies a build.
type VersionInfo struct {
	Version string `json:"version,omitempty"`
	Commit  string `json:"commit,omitempty"`
	Date    string `json:"date,omitempty"`
}

// String prints the known fields. Release numbers get a "v" prefix; a
// development name such as "dev" is printed as is.
func (v VersionInfo) String() string {
	var parts []string
	if version := strings.TrimPrefix(v.Version, "v"); version != "" && version[0] >= '0' && version[0] <= '9' {
		parts = append(parts, "v"+version)
	} else if known(v.Version) {
		parts = append(parts, v.Version)
	}
	if known(v.Commit) {
		parts = append(parts, v.Commit)
	}
	if known(v.Date) {
		parts = append(parts, v.Date)
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, " ")
}

func known(s string) bool { return s != "" && s != "unknown" }

// UpdateCheck compares the local install with the remote main branch.
type UpdateCheck struct {
	Local    VersionInfo `json:"local"`
	Remote   VersionInfo `json:"remote"`
	UpToDate bool        `json:"up_to_date"`
}

// Updater refreshes an install prefix that is a git checkout.
type Updater struct {
	Prefix  string
	Version string
	APIURL  string
	Client  *http.Client
}

// NewUpdater returns an Updater for the configured install prefix.
func NewUpdater(version string) *Updater {
	return &Updater{
		Prefix:  NewInstaller(version).Prefix,
		Version: version,
		APIURL:  DefaultUpdateAPI,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// IsCheckout reports whether the prefix is a git working tree.
func (u *Updater) IsCheckout() bool {
	if _, err := exec.LookPath("git"); err != nil {
		return false
	}
	return osutil.PathExists(filepath.Join(u.Prefix, ".git"))
}

// Local returns the running version plus the checkout's HEAD when known.
func (u *Updater) Local(ctx context.Context) VersionInfo {
	info := VersionInfo{Version: u.Version}
	if !u.IsCheckout() {
		return info
	}
	out, err := runGit(ctx, u.Prefix, "log", "-1", "--format=%h|%ci")
	if err != nil {
		return info
	}
	if commit, date, ok := strings.Cut(strings.TrimSpace(out), "|"); ok {
		info.Commit = commit
		info.Date, _, _ = strings.Cut(date, " ")
	}
	return info
}

// Remote fetches the latest main commit from the GitHub API.
func (u *Updater) Remote(ctx context.Context) (VersionInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.APIURL, nil)
	if err != nil {
		return VersionInfo{}, err
	}
	req.Header.Set("User-Agent", "ccb")
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := u.Client.Do(req)
	if err != nil {
		return VersionInfo{}, NewExitError(ExitNetworkError, fmt.Errorf("fetching %s: %w", u.APIURL, err))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return VersionInfo{}, NewExitError(ExitNetworkError, fmt.Errorf("reading response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "message").String()
		return VersionInfo{}, NewExitError(ExitAPIError, fmt.Errorf("GitHub API returned %s: %s", resp.Status, msg))
	}

	sha := gjson.GetBytes(body, "sha").String()
	if sha == "" {
		return VersionInfo{}, NewExitError(ExitAPIError, errors.New("GitHub API response has no commit sha"))
	}
	info := VersionInfo{Commit: sha[:min(7, len(sha))]}
	if date := gjson.GetBytes(body, "commit.committer.date").String(); len(date) >= 10 {
		info.Date = date[:10]
	}
	return info, nil
}

// Check compares the local checkout with the remote main commit.
func (u *Updater) Check(ctx context.Context) (*UpdateCheck, error) {
	remote, err := u.Remote(ctx)
	if err != nil {
		return nil, err
	}
	local := u.Local(ctx)
	return &UpdateCheck{
		Local:    local,
		Remote:   remote,
		UpToDate: local.Commit != "" && strings.HasPrefix(remote.Commit, local.Commit[:min(7, len(local.Commit))]),
	}, nil
}

// Update fast-forwards the checkout. It returns git's summary line.
func (u *Updater) Update(ctx context.Context) (string, error) {
	if !u.IsCheckout() {
		return "", NewExitError(ExitUpdateFailed,
			fmt.Errorf("%s is not a git checkout; download a new release and run 'ccb install'", u.Prefix))
	}
	out, err := runGit(ctx, u.Prefix, "pull", "--ff-only")
	if err != nil {
		ge := ClassifyGitError("git pull --ff-only", out+"\n"+err.Error())
		return "", &ExitError{Code: ge.ExitCode(), Detail: ge.Error() + "; " + strings.Join(ge.Hints, "; "), Err: ge}
	}
	out = strings.TrimSpace(out)
	if out == "" {
		out = "Already up to date."
	}
	return out, nil
}
