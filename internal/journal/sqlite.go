package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/recthink/recthink-client/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLite is a Recorder backed by a local SQLite database.
type SQLite struct {
	db *sql.DB
	mu sync.Mutex // serializes writes to avoid SQLITE_BUSY
}

// OpenSQLite opens (creating if needed) the journal at dbPath.
func OpenSQLite(dbPath string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}

	j := &SQLite{db: db}
	if err := j.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize journal schema: %w", err)
	}
	return j, nil
}

func (j *SQLite) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		exchange_id TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);

	CREATE TABLE IF NOT EXISTS thinking (
		session_id TEXT NOT NULL,
		exchange_id TEXT NOT NULL,
		rounds INTEGER NOT NULL,
		history_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, exchange_id)
	);
	`
	if _, err := j.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// RecordSession upserts the session row.
func (j *SQLite) RecordSession(ctx context.Context, sess domain.Session) error {
	query := `
	INSERT INTO sessions (session_id, model, created_at)
	VALUES (?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET model = excluded.model`

	return j.exec(ctx, "record session", query, sess.ID, sess.Model, sess.CreatedAt.Unix())
}

// RecordMessage appends one transcript line.
func (j *SQLite) RecordMessage(ctx context.Context, sessionID string, msg domain.Message) error {
	query := `
	INSERT INTO messages (session_id, role, content, exchange_id, created_at)
	VALUES (?, ?, ?, ?, ?)`

	var exchangeID any
	if msg.ExchangeID != "" {
		exchangeID = msg.ExchangeID
	}
	created := msg.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return j.exec(ctx, "record message", query,
		sessionID, string(msg.Role), msg.Content, exchangeID, created.UnixMilli())
}

// RecordThinking upserts the snapshot of one exchange.
func (j *SQLite) RecordThinking(ctx context.Context, sessionID, exchangeID string, p *domain.ThinkingProcess) error {
	if p == nil {
		return nil
	}
	history, err := json.Marshal(p.History)
	if err != nil {
		return fmt.Errorf("encode thinking history: %w", err)
	}

	query := `
	INSERT INTO thinking (session_id, exchange_id, rounds, history_json, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(session_id, exchange_id) DO UPDATE SET
		rounds = excluded.rounds,
		history_json = excluded.history_json,
		updated_at = excluded.updated_at`

	return j.exec(ctx, "record thinking", query,
		sessionID, exchangeID, p.Rounds, string(history), time.Now().Unix())
}

// ForgetSession deletes the session with its messages and snapshots.
func (j *SQLite) ForgetSession(ctx context.Context, sessionID string) error {
	return withBusyRetry(ctx, "forget session", func() error {
		j.mu.Lock()
		defer j.mu.Unlock()

		tx, err := j.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for _, query := range []string{
			`DELETE FROM messages WHERE session_id = ?`,
			`DELETE FROM thinking WHERE session_id = ?`,
			`DELETE FROM sessions WHERE session_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, query, sessionID); err != nil {
				return fmt.Errorf("forget session %s: %w", sessionID, err)
			}
		}
		return tx.Commit()
	})
}

// Messages returns the transcript of a session in append order.
func (j *SQLite) Messages(ctx context.Context, sessionID string) ([]Entry, error) {
	query := `
		SELECT seq, role, content, exchange_id, created_at
		FROM messages WHERE session_id = ? ORDER BY seq`

	rows, err := j.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close journal rows", "error", closeErr)
		}
	}()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var role string
		var exchangeID sql.NullString
		var createdAt int64
		if err := rows.Scan(&e.Seq, &role, &e.Message.Content, &exchangeID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		e.Message.Role = domain.Role(role)
		e.Message.ExchangeID = exchangeID.String
		e.Message.CreatedAt = time.UnixMilli(createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return entries, nil
}

// Thinking returns the stored snapshot of one exchange, or nil when absent.
func (j *SQLite) Thinking(ctx context.Context, sessionID, exchangeID string) (*domain.ThinkingProcess, error) {
	query := `SELECT rounds, history_json FROM thinking WHERE session_id = ? AND exchange_id = ?`

	var p domain.ThinkingProcess
	var history string
	err := j.db.QueryRowContext(ctx, query, sessionID, exchangeID).Scan(&p.Rounds, &history)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan thinking row: %w", err)
	}
	if err := json.Unmarshal([]byte(history), &p.History); err != nil {
		return nil, fmt.Errorf("decode thinking history: %w", err)
	}
	return &p, nil
}

// Close closes the database connection.
func (j *SQLite) Close() error {
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("close journal: %w", err)
	}
	return nil
}

func (j *SQLite) exec(ctx context.Context, op, query string, args ...any) error {
	return withBusyRetry(ctx, op, func() error {
		j.mu.Lock()
		defer j.mu.Unlock()
		if _, err := j.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	})
}
