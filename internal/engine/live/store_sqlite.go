package live

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"walkforward/internal/core"
	apperrors "walkforward/pkg/errors"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `CREATE TABLE IF NOT EXISTS live_state (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	data       TEXT    NOT NULL,
	checksum   BLOB    NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore keeps the symbol map as one checksummed row
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Enable WAL mode for crash recovery
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, states map[string]core.SymbolState) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	data, err := json.Marshal(states)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	checksum := sha256.Sum256(data)
	query := `INSERT OR REPLACE INTO live_state (id, data, checksum, updated_at) VALUES (1, ?, ?, ?)`
	if _, err = tx.ExecContext(ctx, query, string(data), checksum[:], time.Now().UnixNano()); err != nil {
		return fmt.Errorf("failed to write state to db: %w", err)
	}

	return tx.Commit()
}

// Load returns an empty map before the first Save.
func (s *SQLiteStore) Load(ctx context.Context) (map[string]core.SymbolState, error) {
	var data string
	var storedChecksum []byte
	err := s.db.QueryRowContext(ctx, `SELECT data, checksum FROM live_state WHERE id = 1`).Scan(&data, &storedChecksum)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]core.SymbolState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state from db: %w", err)
	}

	computed := sha256.Sum256([]byte(data))
	if !bytes.Equal(storedChecksum, computed[:]) {
		return nil, fmt.Errorf("%w: checksum verification failed", apperrors.ErrStateCorrupt)
	}

	states := map[string]core.SymbolState{}
	if err := json.Unmarshal([]byte(data), &states); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStateCorrupt, err)
	}
	return states, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
