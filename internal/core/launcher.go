package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"os/user"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gitmzc/claude-code-bridge/internal/core/osutil"
	"github.com/gitmzc/claude-code-bridge/internal/core/provider"
	"github.com/gitmzc/claude-code-bridge/internal/core/session"
	"github.com/gitmzc/claude-code-bridge/internal/core/terminal"
)

// claudeSessionName is the session file describing the Claude side.
const claudeSessionName = "claude"

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]`)

// LaunchOptions configure `ccb up`.
type LaunchOptions struct {
	Providers []string // provider names; config default_providers when empty
	Resume    bool
	Auto      bool
	NoClaude  bool
	NewTab    bool
	WorkDir   string
	Out       io.Writer
}

// Launcher starts provider panes, writes their session files and runs
// Claude in the foreground.
type Launcher struct {
	cfg       *Config
	opts      LaunchOptions
	providers []provider.Provider
	backend   terminal.Backend

	SessionID  string
	RuntimeDir string

	mu    sync.Mutex
	panes map[string]string
	files []string
	locks []*session.Lock
	once  sync.Once

	// Seams replaced in tests.
	ping      func(ctx context.Context, p provider.Provider) (string, error)
	runClaude func(args, env []string) (int, error)
}

// NewLauncher resolves providers and the terminal backend. No terminal
// yields TERMINAL_NOT_DETECTED.
func NewLauncher(cfg *Config, backend terminal.Backend, opts LaunchOptions) (*Launcher, error) {
	if cfg == nil {
		cfg = defaultConfig()
	}
	names := opts.Providers
	if len(names) == 0 {
		names = cfg.Providers()
	}
	ps, err := provider.ByNames(names)
	if err != nil {
		return nil, NewExitError(ExitUsageError, err)
	}
	// Stable layout: codex first, then gemini.
	slices.SortStableFunc(ps, func(a, b provider.Provider) int {
		return slices.Index(provider.All(), a) - slices.Index(provider.All(), b)
	})

	if backend == nil {
		backend, err = SelectBackend(cfg, nil)
		if err != nil {
			return nil, err
		}
	}
	if opts.WorkDir == "" {
		if opts.WorkDir, err = os.Getwd(); err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}

	sessionID := fmt.Sprintf("ai-%d-%d", time.Now().Unix(), os.Getpid())
	l := &Launcher{
		cfg:        cfg,
		opts:       opts,
		providers:  ps,
		backend:    backend,
		SessionID:  sessionID,
		RuntimeDir: filepath.Join(os.TempDir(), "claude-ai-"+currentUser(), sessionID),
		panes:      map[string]string{},
	}
	l.ping = l.pingProvider
	l.runClaude = runClaude
	return l, nil
}

// SelectBackend returns the backend named by the config, or the detected
// one.
func SelectBackend(cfg *Config, r terminal.Runner) (terminal.Backend, error) {
	name := ""
	if cfg != nil && cfg.Terminal != "" && cfg.Terminal != "auto" {
		name = cfg.Terminal
	}
	if name == "" {
		detected, err := terminal.DetectName()
		if err != nil {
			return nil, NewExitError(ExitCodeFor(err), err)
		}
		name = detected
	}
	b, err := terminal.New(name, r)
	if err != nil {
		return nil, NewExitError(ExitTerminalNotSupported, err)
	}
	return b, nil
}

// Panes returns the provider pane ids started so far.
func (l *Launcher) Panes() map[string]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]string, len(l.panes))
	for k, v := range l.panes {
		out[k] = v
	}
	return out
}

// Up starts every provider, then Claude. It returns Claude's exit code.
// With NoClaude it prints activation hints and leaves the panes running.
func (l *Launcher) Up(ctx context.Context) (int, error) {
	out := l.opts.Out
	fmt.Fprintf(out, "Claude Code Bridge: %s via %s\n", strings.Join(provider.Names(l.providers), ", "), l.backend.Name())

	for _, p := range l.providers {
		if err := l.startProvider(p); err != nil {
			l.Cleanup()
			return 1, err
		}
		l.warmup(ctx, p)
	}

	if l.opts.NoClaude {
		l.releaseLocks()
		fmt.Fprintln(out, "Backends started. Attach from any shell in this directory:")
		for _, p := range l.providers {
			fmt.Fprintf(out, "   %s: pane %s\n", p.Name(), l.Panes()[p.Name()])
		}
		fmt.Fprintf(out, "Kill: ccb kill %s\n", strings.Join(provider.Names(l.providers), " "))
		return 0, nil
	}
	defer l.Cleanup()

	stop := l.startHeartbeat()
	defer stop()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)
	go func() {
		if _, ok := <-sigs; ok {
			l.Cleanup()
			os.Exit(ExitInterrupted)
		}
	}()

	l.writeClaudeSession()
	args := l.ClaudeArgs()
	env := append(os.Environ(), l.ClaudeEnv()...)
	fmt.Fprintf(out, "Session ID: %s\nRuntime dir: %s\n", l.SessionID, l.RuntimeDir)
	for _, p := range l.providers {
		fmt.Fprintf(out, "   %s - %s communication\n", strings.Join(provider.Commands(p), "/"), p.DisplayName())
	}
	code, err := l.runClaude(args, env)
	if err != nil {
		return 1, err
	}
	return code, nil
}

// startProvider creates the pane, writes the session file and takes the
// session lock.
func (l *Launcher) startProvider(p provider.Provider) error {
	file := session.FilePath(l.opts.WorkDir, p.Name())
	if ok, msg := session.Check(file); !ok {
		return NewExitError(ExitSessionAlreadyExists, fmt.Errorf("%s: %s: %w", session.FileName(p.Name()), msg, session.ErrLocked))
	}
	lock, err := session.Acquire(file)
	if err != nil {
		return NewExitError(ExitSessionAlreadyExists, err)
	}
	l.mu.Lock()
	l.locks = append(l.locks, lock)
	l.mu.Unlock()

	runtime := filepath.Join(l.RuntimeDir, p.Name())
	if err := os.MkdirAll(runtime, 0o700); err != nil {
		return fmt.Errorf("creating runtime dir: %w", err)
	}

	cmd, resumed := p.StartCommand(provider.StartOptions{WorkDir: l.opts.WorkDir, Auto: l.opts.Auto, Resume: l.opts.Resume})
	switch {
	case resumed:
		fmt.Fprintf(l.opts.Out, "Resuming %s session\n", p.DisplayName())
	case l.opts.Resume:
		fmt.Fprintf(l.opts.Out, "No %s history, starting fresh\n", p.DisplayName())
	}
	if l.keepOpen() {
		cmd = terminal.KeepOpen(cmd)
	}

	paneOpts := terminal.PaneOptions{
		Command: cmd,
		Cwd:     l.opts.WorkDir,
		NewTab:  l.opts.NewTab || osutil.EnvBool("CCB_NEW_TAB", false),
	}
	if first := l.firstPane(); first == "" {
		parent := terminal.CurrentPane(l.backend.Name())
		paneOpts.ParentPane = parent
		paneOpts.Direction = terminal.SplitDirection(l.backend, parent)
	} else {
		paneOpts.ParentPane = first
		paneOpts.Direction = terminal.Bottom
	}

	fmt.Fprintf(l.opts.Out, "Starting %s in %s...\n", p.DisplayName(), l.backend.Name())
	pane, err := l.backend.CreatePane(paneOpts)
	if err != nil {
		return NewExitError(ExitPaneCreateFailed, fmt.Errorf("creating %s pane: %w", p.DisplayName(), err))
	}
	l.mu.Lock()
	l.panes[p.Name()] = pane
	l.mu.Unlock()

	info := &session.Info{
		SessionID:   l.SessionID,
		RuntimeDir:  runtime,
		Terminal:    l.backend.Name(),
		PaneID:      pane,
		WorkDir:     l.opts.WorkDir,
		WorkDirNorm: osutil.NormalizePathForMatch(l.opts.WorkDir),
		Active:      true,
		StartedAt:   time.Now(),
	}
	if err := session.Save(file, info); err != nil {
		return NewExitError(ExitSessionWriteError, err)
	}
	l.mu.Lock()
	l.files = append(l.files, file)
	l.mu.Unlock()

	log.Info().Str("provider", p.Name()).Str("pane", pane).Str("terminal", l.backend.Name()).Msg("provider started")
	return nil
}

// writeClaudeSession records the pane Claude runs in so `ccb status` and
// `ccb kill` can see it.
func (l *Launcher) writeClaudeSession() {
	file := session.FilePath(l.opts.WorkDir, claudeSessionName)
	info := &session.Info{
		SessionID:   l.SessionID,
		RuntimeDir:  l.RuntimeDir,
		Terminal:    l.backend.Name(),
		PaneID:      terminal.CurrentPane(l.backend.Name()),
		WorkDir:     l.opts.WorkDir,
		WorkDirNorm: osutil.NormalizePathForMatch(l.opts.WorkDir),
		Active:      true,
		StartedAt:   time.Now(),
	}
	if err := session.Save(file, info); err != nil {
		log.Warn().Err(err).Msg("write claude session")
		return
	}
	l.mu.Lock()
	l.files = append(l.files, file)
	l.mu.Unlock()
}

func (l *Launcher) firstPane() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.providers {
		if pane := l.panes[p.Name()]; pane != "" {
			return pane
		}
	}
	return ""
}

// keepOpen honours CODEX_<TERMINAL>_KEEP_OPEN over the config.
func (l *Launcher) keepOpen() bool {
	key := "CODEX_" + strings.ToUpper(l.backend.Name()) + "_KEEP_OPEN"
	if os.Getenv(key) != "" {
		return osutil.EnvBool(key, true)
	}
	return l.cfg.KeepPanesOpen()
}

// warmup pings the provider with backoff until it answers or the warmup
// budget runs out.
func (l *Launcher) warmup(ctx context.Context, p provider.Provider) bool {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.Warmup())
	defer cancel()

	delay := 300 * time.Millisecond
	var lastErr error
	for {
		msg, err := l.ping(ctx, p)
		if err == nil {
			fmt.Fprintln(l.opts.Out, msg)
			return true
		}
		lastErr = err
		select {
		case <-ctx.Done():
			fmt.Fprintf(l.opts.Out, "Warmup failed: %s (%v)\n", p.Name(), lastErr)
			return false
		case <-time.After(delay):
		}
		delay = min(time.Second, delay*3/2)
	}
}

func (l *Launcher) pingProvider(_ context.Context, p provider.Provider) (string, error) {
	c, err := provider.Open(p, l.opts.WorkDir, provider.Options{Backend: l.backend})
	if err != nil {
		return "", err
	}
	return c.Ping()
}

// ClaudeArgs returns the claude command line arguments.
func (l *Launcher) ClaudeArgs() []string {
	var args []string
	if l.opts.Auto {
		args = append(args, "--dangerously-skip-permissions")
	}
	if l.opts.Resume {
		if ClaudeHasHistory(l.opts.WorkDir) {
			args = append(args, "--continue")
		} else {
			fmt.Fprintln(l.opts.Out, "No Claude history for this directory, starting fresh")
		}
	}
	return args
}

// ClaudeEnv binds Claude's shell to every started provider session.
func (l *Launcher) ClaudeEnv() []string {
	var env []string
	for _, p := range l.providers {
		pane := l.Panes()[p.Name()]
		if pane == "" {
			continue
		}
		info := session.Info{
			SessionID:  l.SessionID,
			RuntimeDir: filepath.Join(l.RuntimeDir, p.Name()),
			Terminal:   l.backend.Name(),
			PaneID:     pane,
		}
		env = append(env, info.Env(p.Name())...)
	}
	return env
}

func (l *Launcher) startHeartbeat() func() {
	every := l.cfg.Heartbeat()
	if every <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				l.mu.Lock()
				files := slices.Clone(l.files)
				l.mu.Unlock()
				for _, f := range files {
					_ = session.Heartbeat(f)
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// Cleanup kills the panes, marks the session files inactive, removes the
// runtime directory and releases the locks. It runs once.
func (l *Launcher) Cleanup() {
	l.once.Do(func() {
		l.mu.Lock()
		panes := make(map[string]string, len(l.panes))
		for k, v := range l.panes {
			panes[k] = v
		}
		files := slices.Clone(l.files)
		l.mu.Unlock()

		for name, pane := range panes {
			if err := l.backend.KillPane(pane); err != nil {
				log.Debug().Err(err).Str("provider", name).Msg("kill pane")
			}
		}
		for _, f := range files {
			if err := session.MarkInactive(f); err != nil {
				log.Warn().Err(err).Str("file", f).Msg("mark session inactive")
			}
		}
		_ = os.RemoveAll(l.RuntimeDir)
		l.releaseLocks()
		fmt.Fprintln(l.opts.Out, "Cleanup complete")
	})
}

func (l *Launcher) releaseLocks() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, lock := range l.locks {
		_ = lock.Release()
	}
	l.locks = nil
}

// ClaudeProjectDir returns ~/.claude/projects/<key> for workDir, where the
// key is the path with every non-alphanumeric rune replaced by '-'. $PWD,
// the given path and its resolved form are tried in turn.
func ClaudeProjectDir(workDir string) string {
	home, _ := os.UserHomeDir()
	root := filepath.Join(home, ".claude", "projects")

	candidates := []string{os.Getenv("PWD"), workDir}
	if resolved, err := filepath.EvalSymlinks(workDir); err == nil {
		candidates = append(candidates, resolved)
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		dir := filepath.Join(root, nonAlnum.ReplaceAllString(c, "-"))
		if osutil.DirExists(dir) {
			return dir
		}
	}
	return filepath.Join(root, nonAlnum.ReplaceAllString(candidates[len(candidates)-1], "-"))
}

// ClaudeHasHistory reports whether Claude has a non-empty transcript for
// workDir.
func ClaudeHasHistory(workDir string) bool {
	matches, _ := filepath.Glob(filepath.Join(ClaudeProjectDir(workDir), "*.jsonl"))
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.Size() > 0 {
			return true
		}
	}
	return false
}

func runClaude(args, env []string) (int, error) {
	bin, err := exec.LookPath("claude")
	if err != nil {
		return 1, NewExitError(ExitMissingDependency,
			fmt.Errorf("claude CLI not found (install: npm install -g @anthropic-ai/claude-code): %w", ErrMissingDependency))
	}
	cmd := exec.Command(bin, args...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	cmd.Env = env

	// Ctrl-C belongs to claude while it runs.
	signal.Ignore(os.Interrupt)
	defer signal.Reset(os.Interrupt)

	err = cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return 1, fmt.Errorf("running claude: %w", err)
	}
	return 0, nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return filepath.Base(u.Username)
	}
	if v := osutil.EnvString("USER", "USERNAME"); v != "" {
		return v
	}
	return "user"
}
