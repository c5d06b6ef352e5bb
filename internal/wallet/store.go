package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// Record is one custodial wallet row. The private key is stored only in
// its encrypted form.
type Record struct {
	UserID       int64
	Address      string
	EncryptedKey []byte
	CreatedAt    time.Time
}

type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func OpenStore(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create wallet store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create wallet lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open wallet sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS wallets (
			user_id INTEGER PRIMARY KEY,
			address TEXT NOT NULL,
			encrypted_key BLOB NOT NULL,
			created_at INTEGER NOT NULL
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init wallet schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) withLock(ctx context.Context, fn func() error) error {
	locked, err := s.lock.TryLockContext(ctx, 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock wallet store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock wallet store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

// Get returns the wallet for userID, or nil when none exists.
func (s *Store) Get(ctx context.Context, userID int64) (*Record, error) {
	var rec Record
	var createdUnix int64
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id, address, encrypted_key, created_at FROM wallets WHERE user_id = ?", userID).
		Scan(&rec.UserID, &rec.Address, &rec.EncryptedKey, &createdUnix)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load wallet: %w", err)
	}
	rec.CreatedAt = time.Unix(createdUnix, 0).UTC()
	return &rec, nil
}

func (s *Store) Put(ctx context.Context, rec Record) error {
	return s.withLock(ctx, func() error {
		created := rec.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO wallets (user_id, address, encrypted_key, created_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(user_id) DO UPDATE SET address = excluded.address, encrypted_key = excluded.encrypted_key, created_at = excluded.created_at`,
			rec.UserID, rec.Address, rec.EncryptedKey, created.Unix())
		if err != nil {
			return fmt.Errorf("save wallet: %w", err)
		}
		return nil
	})
}

func (s *Store) Delete(ctx context.Context, userID int64) error {
	return s.withLock(ctx, func() error {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM wallets WHERE user_id = ?", userID); err != nil {
			return fmt.Errorf("delete wallet: %w", err)
		}
		return nil
	})
}
