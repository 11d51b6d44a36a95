// Package osutil holds the small filesystem, path, environment and text
// helpers shared by the ccb core packages.
package osutil

import (
	"os"
	"path"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
)

var (
	winDriveRe  = regexp.MustCompile(`^[A-Za-z]:([/\\]|$)`)
	mntDriveRe  = regexp.MustCompile(`^/mnt/([A-Za-z])/(.*)$`)
	msysDriveRe = regexp.MustCompile(`^/([A-Za-z])/(.*)$`)
)

// ExpandPath expands ~ to the home directory and $VAR / $XDG_CONFIG to env values.
func ExpandPath(p string) string {
	if strings.Contains(p, "$XDG_CONFIG") {
		xdgConfig := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfig == "" {
			home, _ := os.UserHomeDir()
			xdgConfig = filepath.Join(home, ".config")
		}
		p = strings.ReplaceAll(p, "$XDG_CONFIG", xdgConfig)
	}

	if strings.Contains(p, "$") {
		p = os.Expand(p, os.Getenv)
	}

	if strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		home, _ := os.UserHomeDir()
		p = filepath.Join(home, p[2:])
	} else if p == "~" {
		home, _ := os.UserHomeDir()
		p = home
	}

	return p
}

// LooksLikeWindowsPath reports whether s is a drive path (C:\, d:/) or a UNC path.
func LooksLikeWindowsPath(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	return winDriveRe.MatchString(s) || strings.HasPrefix(s, `\\`) || strings.HasPrefix(s, "//")
}

// NormalizePathForMatch normalizes a path for loose comparison across
// Windows, WSL and MSYS spellings of the same directory. The result is only
// meant for equality checks, never for opening files.
func NormalizePathForMatch(value string) string {
	s := strings.TrimSpace(value)
	if s == "" {
		return ""
	}

	if strings.HasPrefix(s, "~") {
		s = ExpandPath(s)
	}

	preview := strings.ReplaceAll(s, `\`, "/")
	isAbs := strings.HasPrefix(preview, "/") || winDriveRe.MatchString(preview)
	if !isAbs {
		if abs, err := filepath.Abs(s); err == nil {
			s = abs
		}
	}

	s = strings.ReplaceAll(s, `\`, "/")

	if m := mntDriveRe.FindStringSubmatch(s); m != nil {
		s = strings.ToLower(m[1]) + ":/" + m[2]
	} else if m := msysDriveRe.FindStringSubmatch(s); m != nil && (os.Getenv("MSYSTEM") != "" || runtime.GOOS == "windows") {
		s = strings.ToLower(m[1]) + ":/" + m[2]
	}

	// path.Clean collapses a UNC "//" prefix, so clean the remainder only.
	if strings.HasPrefix(s, "//") {
		rest := strings.TrimLeft(path.Clean(s[2:]), "/")
		s = "//" + rest
	} else {
		s = path.Clean(s)
	}

	if winDriveRe.MatchString(s) {
		s = strings.ToLower(s[:1]) + s[1:]
		if len(s) == 2 {
			s += "/"
		}
	}

	if len(s) > 1 && strings.HasSuffix(s, "/") && !(len(s) == 3 && winDriveRe.MatchString(s)) {
		s = strings.TrimRight(s, "/")
	}

	if LooksLikeWindowsPath(s) {
		s = strings.ToLower(s)
	}
	return s
}

// WorkDirMatchKeys returns the normalized spellings of workDir worth matching
// against a recorded work directory: $PWD, workDir itself and its resolved path.
func WorkDirMatchKeys(workDir string) []string {
	candidates := []string{os.Getenv("PWD"), workDir}
	if resolved, err := filepath.EvalSymlinks(workDir); err == nil {
		candidates = append(candidates, resolved)
	}

	seen := make(map[string]bool)
	var keys []string
	for _, c := range candidates {
		if c == "" {
			continue
		}
		n := NormalizePathForMatch(c)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		keys = append(keys, n)
	}
	return keys
}

// MatchesWorkDir reports whether recorded names the same directory as any of keys.
func MatchesWorkDir(recorded string, keys []string) bool {
	n := NormalizePathForMatch(recorded)
	if n == "" {
		return false
	}
	for _, k := range keys {
		if k == n {
			return true
		}
	}
	return false
}
