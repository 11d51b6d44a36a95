package session

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gitmzc/claude-code-bridge/internal/core/osutil"
)

// DefaultMaxAge is how long a session file may go without a heartbeat
// before it is considered stale. Override with CCB_SESSION_MAX_AGE (seconds).
const DefaultMaxAge = 24 * time.Hour

// ErrLocked is returned when another live process holds the session lock.
var ErrLocked = errors.New("session is locked")

// LockedError carries the PID of the process holding a session lock.
type LockedError struct {
	PID int
}

func (e *LockedError) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("another instance (PID %d) is running", e.PID)
	}
	return "another instance is running"
}

func (e *LockedError) Unwrap() error { return ErrLocked }

// Lock is an exclusive, non-blocking lock beside a session file that
// prevents two launchers from driving the same project at once.
type Lock struct {
	path string
	f    *os.File
}

// LockPath returns the lock file for a session file.
func LockPath(sessionFile string) string {
	return sessionFile + ".lock"
}

// Acquire takes the session lock and writes the current PID into it.
// Setting CCB_SKIP_LOCK returns a no-op lock.
func Acquire(sessionFile string) (*Lock, error) {
	l := &Lock{path: LockPath(sessionFile)}
	if osutil.EnvBool("CCB_SKIP_LOCK", false) {
		return l, nil
	}

	for range 3 {
		f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening lock file: %w", err)
		}
		if err := tryLock(f); err != nil {
			_ = f.Close()
			return nil, &LockedError{PID: readPID(l.path)}
		}
		// The holder unlinks the file on release; a lock on an unlinked
		// file protects nothing.
		if !samePath(f, l.path) {
			_ = unlock(f)
			_ = f.Close()
			continue
		}
		if err := f.Truncate(0); err == nil {
			_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0)
		}
		l.f = f
		return l, nil
	}
	return nil, &LockedError{PID: readPID(l.path)}
}

// samePath reports whether path still names the open file f.
func samePath(f *os.File, path string) bool {
	a, err := f.Stat()
	if err != nil {
		return false
	}
	b, err := os.Stat(path)
	return err == nil && os.SameFile(a, b)
}

// Release removes the lock file and then drops the lock, so a waiting
// Acquire never ends up holding a file that is about to be unlinked. It is
// safe to call on a nil or no-op lock.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	rmErr := os.Remove(l.path)
	_ = unlock(l.f)
	err := l.f.Close()
	l.f = nil
	if rmErr != nil && !os.IsNotExist(rmErr) {
		// Windows refuses to remove an open file.
		rmErr = os.Remove(l.path)
	}
	if rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}

// IsLocked reports whether another process holds the lock and, if known,
// its PID.
func IsLocked(sessionFile string) (bool, int) {
	path := LockPath(sessionFile)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return false, 0
	}
	defer func() { _ = f.Close() }()

	if err := tryLock(f); err == nil {
		_ = unlock(f)
		return false, 0
	}
	return true, readPID(path)
}

// ProcessAlive reports whether a process with pid exists.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return processAlive(pid)
}

// MaxAge returns the staleness threshold from CCB_SESSION_MAX_AGE.
func MaxAge() time.Duration {
	return osutil.EnvSeconds("CCB_SESSION_MAX_AGE", DefaultMaxAge, 0, 0)
}

// IsStale reports whether the session file is missing or older than maxAge.
func IsStale(sessionFile string, maxAge time.Duration) bool {
	info, err := os.Stat(sessionFile)
	if err != nil {
		return true
	}
	return time.Since(info.ModTime()) > maxAge
}

// Heartbeat touches the session file so it does not go stale.
func Heartbeat(sessionFile string) error {
	if !osutil.FileExists(sessionFile) {
		return nil
	}
	now := time.Now()
	return os.Chtimes(sessionFile, now, now)
}

// CleanupStale removes a lock left by a dead process and a stale session
// file. It reports whether anything was removed.
func CleanupStale(sessionFile string) bool {
	cleaned := false
	if locked, pid := IsLocked(sessionFile); locked && pid > 0 && !ProcessAlive(pid) {
		if os.Remove(LockPath(sessionFile)) == nil {
			cleaned = true
		}
	}
	if IsStale(sessionFile, MaxAge()) && osutil.FileExists(sessionFile) {
		if os.Remove(sessionFile) == nil {
			cleaned = true
		}
	}
	return cleaned
}

// Check inspects a session file before launch. It returns false only when
// a live process holds the lock; stale state is cleaned up on the way.
func Check(sessionFile string) (bool, string) {
	if locked, pid := IsLocked(sessionFile); locked {
		if ProcessAlive(pid) {
			return false, (&LockedError{PID: pid}).Error()
		}
		CleanupStale(sessionFile)
		return true, "cleaned up stale lock from dead process"
	}
	if osutil.FileExists(sessionFile) && IsStale(sessionFile, MaxAge()) {
		CleanupStale(sessionFile)
		return true, "cleaned up stale session"
	}
	return true, "session healthy"
}

func readPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
