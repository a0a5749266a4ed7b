// Package history 记录本地发出的交易及其确认状态。
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Entry 一笔交易的记录
type Entry struct {
	ID        string    `json:"id"`
	Hash      string    `json:"hash"`
	Account   string    `json:"account"`
	ChainID   uint64    `json:"chainId"`
	Summary   string    `json:"summary"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store SQLite 上的交易记录表
type Store struct {
	db *sql.DB
}

// Open path 为 ":memory:" 时使用内存库
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create history dir: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// 内存库每个连接都是独立的库
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS transactions (
  id TEXT PRIMARY KEY,
  hash TEXT NOT NULL UNIQUE,
  account TEXT NOT NULL,
  chain_id INTEGER NOT NULL,
  summary TEXT NOT NULL,
  status TEXT NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate history: %w", err)
		}
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = StatusPending
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	e.Account = strings.ToLower(e.Account)

	_, err := s.db.ExecContext(ctx, `
INSERT INTO transactions (id,hash,account,chain_id,summary,status,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(hash) DO UPDATE SET summary=excluded.summary, updated_at=excluded.updated_at
`, e.ID, e.Hash, e.Account, e.ChainID, e.Summary, string(e.Status), e.CreatedAt.Format(time.RFC3339Nano), e.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Entry{}, fmt.Errorf("insert transaction: %w", err)
	}
	return e, nil
}

func (s *Store) SetStatus(ctx context.Context, hash string, status Status) error {
	res, err := s.db.ExecContext(ctx, `UPDATE transactions SET status=?, updated_at=? WHERE hash=?`,
		string(status), time.Now().UTC().Format(time.RFC3339Nano), hash)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %s: %w", hash, sql.ErrNoRows)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, hash string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id,hash,account,chain_id,summary,status,created_at,updated_at
FROM transactions WHERE hash=?
`, hash)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// List account 为空时列出全部，按时间倒序
func (s *Store) List(ctx context.Context, account string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT id,hash,account,chain_id,summary,status,created_at,updated_at FROM transactions`
	args := []any{}
	if account != "" {
		query += ` WHERE account=?`
		args = append(args, strings.ToLower(account))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var e Entry
	var status, createdAt, updatedAt string
	if err := row.Scan(&e.ID, &e.Hash, &e.Account, &e.ChainID, &e.Summary, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	e.Status = Status(status)
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &e, nil
}
