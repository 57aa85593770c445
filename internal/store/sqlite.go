// Package store persists travel profiles and archived conversation
// history in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"tripbot/internal/domain"
)

// MemoryDSN opens a private in-memory database that lives as long as the
// store.
const MemoryDSN = ":memory:"

// SQLiteStore implements domain.ProfileStore and domain.HistoryStore.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := MemoryDSN
	if dbPath != MemoryDSN {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
		}
		dsn = dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and an in-memory
	// database exists per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := runMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

// --- profiles ---

func (s *SQLiteStore) Get(ctx context.Context, userID string) (domain.Profile, error) {
	return getProfile(ctx, s.db, userID)
}

// Update applies u inside a transaction so concurrent updates for the same
// user do not lose fields.
func (s *SQLiteStore) Update(ctx context.Context, userID string, u domain.ProfileUpdate) (domain.Profile, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	current, err := getProfile(ctx, tx, userID)
	if err != nil {
		return domain.Profile{}, err
	}
	updated := u.Apply(current)
	data, err := json.Marshal(updated)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("encode profile: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (user_id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		userID, string(data), time.Now().UTC(),
	)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("save profile: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Profile{}, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getProfile(ctx context.Context, q queryer, userID string) (domain.Profile, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT data FROM profiles WHERE user_id = ?`, userID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Profile{}, nil
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	var p domain.Profile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return domain.Profile{}, fmt.Errorf("decode profile %s: %w", userID, err)
	}
	return p, nil
}

// --- history ---

// LoadHistory returns the archived entries of one conversation in order.
// An unknown history yields no entries and no error.
func (s *SQLiteStore) LoadHistory(ctx context.Context, confUID, historyUID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, name, content FROM history
		 WHERE conf_uid = ? AND history_uid = ? ORDER BY id ASC`,
		confUID, historyUID,
	)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.Role, &m.Name, &m.Content); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// AppendHistory archives msgs after any entries already stored.
func (s *SQLiteStore) AppendHistory(ctx context.Context, confUID, historyUID string, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO history (conf_uid, history_uid, role, name, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, m := range msgs {
		if _, err := stmt.ExecContext(ctx, confUID, historyUID, m.Role, m.Name, m.Content, now); err != nil {
			return fmt.Errorf("archive entry: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var (
	_ domain.ProfileStore = (*SQLiteStore)(nil)
	_ domain.HistoryStore = (*SQLiteStore)(nil)
)
