package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yegors/aussie-atis/internal/atis"
	"github.com/yegors/aussie-atis/pkg/logger"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrNotFound is returned when no snapshot exists for an airport
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is a decoded record stored for one airport
type Snapshot struct {
	ID        int64       `json:"id"`
	Airport   string      `json:"airport"`
	Code      string      `json:"code,omitempty"`
	DecodedAt time.Time   `json:"decoded_at"`
	Record    atis.Record `json:"record"`
}

// SnapshotStorage keeps decoded records in SQLite
type SnapshotStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewSnapshotStorage opens (or creates) the snapshot database
func NewSnapshotStorage(dbPath string, log *logger.Logger) (*SnapshotStorage, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite storage",
		logger.String("path", dbPath))

	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %q: %w", pragma, err)
		}
	}

	s := &SnapshotStorage{
		db:     db,
		logger: storageLogger,
	}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *SnapshotStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// initDB initializes the database tables
func (s *SnapshotStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS atis_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			airport TEXT NOT NULL,
			atis_code TEXT,
			decoded_at TEXT NOT NULL,
			record_json TEXT NOT NULL,
			atis_raw TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create atis_snapshots table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_snapshots_airport_time ON atis_snapshots(airport, decoded_at)`)
	if err != nil {
		return fmt.Errorf("failed to create airport/decoded_at index: %w", err)
	}

	return nil
}

// Save stores a record for an airport and returns the new row ID
func (s *SnapshotStorage) Save(airport string, rec *atis.Record) (int64, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("failed to encode record: %w", err)
	}

	result, err := s.db.Exec(
		`INSERT INTO atis_snapshots (airport, atis_code, decoded_at, record_json, atis_raw)
		VALUES (?, ?, ?, ?, ?)`,
		airport,
		nullable(rec.Code),
		rec.DecodedAt.UTC().Format(timeLayout),
		string(payload),
		nullable(rec.ATISRaw),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	s.logger.Debug("Stored snapshot",
		logger.String("airport", airport),
		logger.Int64("id", id))

	return id, nil
}

// Latest returns the most recent snapshot for an airport
func (s *SnapshotStorage) Latest(airport string) (*Snapshot, error) {
	snapshots, err := s.History(airport, 1)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("%s: %w", airport, ErrNotFound)
	}
	return snapshots[0], nil
}

// History returns up to limit snapshots for an airport, newest first
func (s *SnapshotStorage) History(airport string, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT id, airport, atis_code, decoded_at, record_json
		FROM atis_snapshots
		WHERE airport = ?
		ORDER BY decoded_at DESC, id DESC
		LIMIT ?`,
		airport, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*Snapshot
	for rows.Next() {
		var snap Snapshot
		var code sql.NullString
		var decodedAt, payload string

		if err := rows.Scan(&snap.ID, &snap.Airport, &code, &decodedAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}

		snap.DecodedAt, err = time.Parse(timeLayout, decodedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse decoded_at: %w", err)
		}
		if code.Valid {
			snap.Code = code.String
		}
		if err := json.Unmarshal([]byte(payload), &snap.Record); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}

		snapshots = append(snapshots, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}

	return snapshots, nil
}

// Prune deletes snapshots decoded before the cutoff and returns how many were removed
func (s *SnapshotStorage) Prune(before time.Time) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM atis_snapshots WHERE decoded_at < ?`,
		before.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned snapshots: %w", err)
	}
	if n > 0 {
		s.logger.Info("Pruned old snapshots",
			logger.Int64("deleted", n),
			logger.Time("before", before))
	}
	return n, nil
}

func nullable(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
