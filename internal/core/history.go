package core

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// History stores every ask in a sqlite database (~/.ccb/history.db). It
// implements provider.Recorder.
type History struct {
	db  *sql.DB
	now func() time.Time
}

// OpenHistory opens or creates the history database.
func OpenHistory(ctx context.Context, path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	// One writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening history: %w", err)
	}
	h := &History{db: db, now: time.Now}
	if err := h.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}
	return h, nil
}

// Close closes the database.
func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) initSchema(ctx context.Context) error {
	_, err := h.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS asks (
		id          TEXT PRIMARY KEY,
		provider    TEXT NOT NULL,
		work_dir    TEXT NOT NULL,
		question    TEXT NOT NULL,
		reply       TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		started_at  INTEGER NOT NULL,
		finished_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_asks_started ON asks(started_at);
	CREATE INDEX IF NOT EXISTS idx_asks_provider ON asks(provider, started_at);
	`)
	return err
}

// Begin records a sent question and returns its id. Errors are logged;
// history never fails an ask.
func (h *History) Begin(provider, workDir, question string) string {
	id := uuid.NewString()
	_, err := h.db.Exec(
		`INSERT INTO asks (id, provider, work_dir, question, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, provider, workDir, question, "sent", h.now().UnixMilli())
	if err != nil {
		log.Warn().Err(err).Msg("history begin")
	}
	return id
}

// Finish stores the outcome of an ask.
func (h *History) Finish(id, status, reply string) {
	if id == "" {
		return
	}
	_, err := h.db.Exec(
		`UPDATE asks SET status = ?, reply = ?, finished_at = ? WHERE id = ?`,
		status, reply, h.now().UnixMilli(), id)
	if err != nil {
		log.Warn().Err(err).Str("id", id).Msg("history finish")
	}
}

// HistoryQuery filters List.
type HistoryQuery struct {
	Limit    int    // default 20
	Provider string // exact provider name
	WorkDir  string // exact work dir
	Search   string // substring of question or reply
}

// List returns the most recent asks first.
func (h *History) List(ctx context.Context, q HistoryQuery) ([]AskRecord, error) {
	if q.Provider != "" && !knownProvider(q.Provider) {
		return nil, NewExitError(ExitUsageError, fmt.Errorf("unknown provider %q", q.Provider))
	}
	var (
		where []string
		args  []any
	)
	if q.Provider != "" {
		where = append(where, "provider = ?")
		args = append(args, q.Provider)
	}
	if q.WorkDir != "" {
		where = append(where, "work_dir = ?")
		args = append(args, q.WorkDir)
	}
	if q.Search != "" {
		where = append(where, `(question LIKE ? ESCAPE '\' OR reply LIKE ? ESCAPE '\')`)
		pattern := "%" + escapeLike(q.Search) + "%"
		args = append(args, pattern, pattern)
	}
	query := `SELECT id, provider, work_dir, question, reply, status, started_at, finished_at FROM asks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	query += " ORDER BY started_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []AskRecord
	for rows.Next() {
		var (
			r        AskRecord
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.Provider, &r.WorkDir, &r.Question, &r.Reply, &r.Status, &started, &finished); err != nil {
			return nil, fmt.Errorf("reading history: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		if finished.Valid {
			t := time.UnixMilli(finished.Int64)
			r.FinishedAt = &t
			r.ElapsedMS = finished.Int64 - started
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune deletes asks started before cutoff and returns how many went.
func (h *History) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx, `DELETE FROM asks WHERE started_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	return res.RowsAffected()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
