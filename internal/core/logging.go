package core

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/gitmzc/claude-code-bridge/internal/core/osutil"
)

// LogOptions configure SetupLogging.
type LogOptions struct {
	Dir    string    // log directory; logging to file is off when empty
	Debug  bool      // also log to Stderr at debug level
	Stderr io.Writer // defaults to os.Stderr
}

// SetupLogging points the global zerolog logger at a rotating file in
// opts.Dir (5 MB, 3 backups). --debug or CCB_DEBUG mirrors to stderr.
// The returned closer flushes the file.
func SetupLogging(opts LogOptions) io.Closer {
	debug := opts.Debug || osutil.EnvBool("CCB_DEBUG", false)
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var writers []io.Writer
	var closer io.Closer = nopCloser{}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err == nil {
			lj := &lumberjack.Logger{
				Filename:   filepath.Join(opts.Dir, "ccb.log"),
				MaxSize:    5,
				MaxBackups: 3,
			}
			writers = append(writers, lj)
			closer = lj
		}
	}
	if debug {
		stderr := opts.Stderr
		if stderr == nil {
			stderr = os.Stderr
		}
		writers = append(writers, zerolog.ConsoleWriter{Out: stderr, TimeFormat: "15:04:05"})
	}

	if len(writers) == 0 {
		log.Logger = zerolog.Nop()
		return closer
	}
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp().Int("pid", os.Getpid()).Logger()
	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
