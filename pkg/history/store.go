// Package history persists completed analyses as an append-only log backed
// by SQLite. Records are immutable after insert; the only mutations are
// insert and delete-by-id. Every mutation is published to subscribers so a
// history view stays live without polling.
package history

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

	"github.com/cardamage/damage-analyzer/pkg/types"
)

// ErrStore indicates a persistence failure. Unlike cloud errors it surfaces
// to the caller: a computed analysis with a missing history entry is a real
// inconsistency the user must see.
var ErrStore = errors.New("history: store failure")

const schema = `
CREATE TABLE IF NOT EXISTS analyses (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  image_reference TEXT NOT NULL,
  damage_type TEXT NOT NULL,
  severity_level INTEGER NOT NULL,
  confidence REAL NOT NULL,
  estimated_cost REAL NOT NULL,
  description TEXT,
  timestamp INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_timestamp ON analyses(timestamp);
`

// Store is the append-only analysis log.
type Store struct {
	db *sql.DB

	subMu   sync.Mutex
	subs    map[int]chan []types.AnalysisRecord
	nextSub int
	pubMu   sync.Mutex
}

// Open opens (or creates) the store at path, creating parent directories as
// needed. ":memory:" gives an ephemeral store for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	// One connection at a time: keeps ":memory:" on a single database and
	// serializes id assignment under concurrent inserts.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create schema: %v", ErrStore, err)
	}

	return &Store{
		db:   db,
		subs: make(map[int]chan []types.AnalysisRecord),
	}, nil
}

// Close closes the database and drops all subscriptions.
func (s *Store) Close() error {
	s.subMu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.subMu.Unlock()
	return s.db.Close()
}

// Insert appends one record and returns its assigned id. The id is unique,
// monotonically increasing and never reused (SQLite AUTOINCREMENT). A zero
// Timestamp is filled with the current epoch milliseconds.
func (s *Store) Insert(ctx context.Context, record *types.AnalysisRecord) (int64, error) {
	if record.Timestamp == 0 {
		record.Timestamp = time.Now().UnixMilli()
	}

	var description sql.NullString
	if record.Description != nil {
		description = sql.NullString{String: *record.Description, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO analyses (image_reference, damage_type, severity_level, confidence, estimated_cost, description, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ImageReference, record.DamageType, record.SeverityLevel,
		record.Confidence, record.EstimatedCost, description, record.Timestamp,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: insert: %v", ErrStore, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: insert id: %v", ErrStore, err)
	}
	record.ID = id

	s.publish()
	return id, nil
}

// ListAll returns every record, most recent first.
func (s *Store) ListAll(ctx context.Context) ([]types.AnalysisRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, image_reference, damage_type, severity_level, confidence, estimated_cost, description, timestamp
		FROM analyses
		ORDER BY timestamp DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrStore, err)
	}
	defer rows.Close()

	var records []types.AnalysisRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrStore, err)
	}
	return records, nil
}

// GetByID returns the record with the given id, or nil when it does not
// exist.
func (s *Store) GetByID(ctx context.Context, id int64) (*types.AnalysisRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, image_reference, damage_type, severity_level, confidence, estimated_cost, description, timestamp
		FROM analyses
		WHERE id = ?`, id)

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// DeleteByID removes the record with the given id. Deleting a missing id is
// a no-op, not an error.
func (s *Store) DeleteByID(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analyses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: delete: %v", ErrStore, err)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.publish()
	}
	return nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analyses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %v", ErrStore, err)
	}
	return n, nil
}

// Subscribe registers a live view of the record list. The channel receives
// the current list immediately and a fresh list after every insert or
// delete, newest first. A slow consumer sees the latest list, not every
// intermediate one; the store never blocks on a subscriber. The returned
// function cancels the subscription.
func (s *Store) Subscribe() (<-chan []types.AnalysisRecord, func()) {
	ch := make(chan []types.AnalysisRecord, 1)
	snapshot, err := s.ListAll(context.Background())

	// Register and seed under subMu: the buffer is empty here and publish
	// needs subMu to fan out, so the seed send can never block.
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	if err == nil {
		ch <- snapshot
	}
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

// publish pushes the current list to every subscriber, replacing any
// undelivered snapshot. pubMu serializes concurrent publishes so a stale
// snapshot can never overwrite a fresher one; the list query runs outside
// subMu so it never stalls Subscribe or cancel.
func (s *Store) publish() {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.subMu.Lock()
	n := len(s.subs)
	s.subMu.Unlock()
	if n == 0 {
		return
	}

	snapshot, err := s.ListAll(context.Background())
	if err != nil {
		return
	}

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- snapshot:
		default:
			// Drop the stale snapshot, then deliver the new one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (types.AnalysisRecord, error) {
	var record types.AnalysisRecord
	var description sql.NullString

	err := row.Scan(
		&record.ID, &record.ImageReference, &record.DamageType,
		&record.SeverityLevel, &record.Confidence, &record.EstimatedCost,
		&description, &record.Timestamp,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.AnalysisRecord{}, err
		}
		return types.AnalysisRecord{}, fmt.Errorf("%w: scan: %v", ErrStore, err)
	}

	if description.Valid {
		record.Description = &description.String
	}
	return record, nil
}
