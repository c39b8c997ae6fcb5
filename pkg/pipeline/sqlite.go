package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteConfig configures a SQLiteBroker.
type SQLiteConfig struct {
	// Path is the database file. It is created on Connect.
	Path string

	// BusyTimeout bounds how long a writer waits for a lock held by
	// another process sharing the file. Default: 5 seconds.
	BusyTimeout time.Duration
}

// SQLiteBroker stores queues in a SQLite database so that several units
// (and the debugger) can share them across processes.
type SQLiteBroker struct {
	cfg SQLiteConfig

	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteBroker returns a broker for the database at cfg.Path.
// No I/O happens until Connect.
func NewSQLiteBroker(cfg SQLiteConfig) *SQLiteBroker {
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	return &SQLiteBroker{cfg: cfg}
}

// Connect opens the database and creates the schema if needed.
func (b *SQLiteBroker) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db != nil {
		return nil
	}
	if b.cfg.Path == "" {
		return errors.New("pipeline: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(b.cfg.Path), 0o755); err != nil {
		return fmt.Errorf("create queue directory: %w", err)
	}

	db, err := sql.Open("sqlite", b.dsn())
	if err != nil {
		return fmt.Errorf("open queue database: %w", err)
	}
	// A single connection serializes writers inside this process.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("connect queue database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id      INTEGER PRIMARY KEY AUTOINCREMENT,
		queue   TEXT NOT NULL,
		payload BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_queue ON messages(queue, id);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return fmt.Errorf("migrate queue database: %w", err)
	}

	b.db = db
	return nil
}

// dsn opens transactions with BEGIN IMMEDIATE so that a pop takes the
// write lock before reading and waits on busy_timeout when another
// process holds it.
func (b *SQLiteBroker) dsn() string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_txlock=immediate",
		b.cfg.Path, b.cfg.BusyTimeout.Milliseconds())
}

func (b *SQLiteBroker) conn() (*sql.DB, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil, ErrNotConnected
	}
	return b.db, nil
}

func (b *SQLiteBroker) Push(ctx context.Context, queue string, data []byte) error {
	db, err := b.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO messages (queue, payload) VALUES (?, ?)`, queue, data); err != nil {
		return fmt.Errorf("push %s: %w", queue, err)
	}
	return nil
}

func (b *SQLiteBroker) Pop(ctx context.Context, source, internal string) ([]byte, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("pop %s: %w", source, err)
	}
	defer tx.Rollback()

	var id int64
	var data []byte
	err = tx.QueryRowContext(ctx,
		`SELECT id, payload FROM messages WHERE queue = ? ORDER BY id LIMIT 1`, source,
	).Scan(&id, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoMessage
	}
	if err != nil {
		return nil, fmt.Errorf("pop %s: %w", source, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("pop %s: %w", source, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO messages (queue, payload) VALUES (?, ?)`, internal, data); err != nil {
		return nil, fmt.Errorf("pop %s: %w", source, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("pop %s: %w", source, err)
	}
	return data, nil
}

func (b *SQLiteBroker) Tail(ctx context.Context, queue string) ([]byte, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}
	var data []byte
	err = db.QueryRowContext(ctx,
		`SELECT payload FROM messages WHERE queue = ? ORDER BY id LIMIT 1`, queue,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoMessage
	}
	if err != nil {
		return nil, fmt.Errorf("tail %s: %w", queue, err)
	}
	return data, nil
}

func (b *SQLiteBroker) Discard(ctx context.Context, queue string) error {
	db, err := b.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`DELETE FROM messages WHERE id = (SELECT id FROM messages WHERE queue = ? ORDER BY id LIMIT 1)`, queue)
	if err != nil {
		return fmt.Errorf("discard %s: %w", queue, err)
	}
	return nil
}

func (b *SQLiteBroker) Len(ctx context.Context, queue string) (int, error) {
	db, err := b.conn()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE queue = ?`, queue).Scan(&n); err != nil {
		return 0, fmt.Errorf("len %s: %w", queue, err)
	}
	return n, nil
}

// Close closes the database. The broker can be connected again afterwards.
func (b *SQLiteBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

var _ Broker = (*SQLiteBroker)(nil)
